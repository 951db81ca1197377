package managers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/captura-dev/captura/internal/domain"
	"github.com/captura-dev/captura/internal/transform"

	"github.com/rs/zerolog/log"
)

const (
	// DefaultInteractiveTimeout bounds prime sessions, which block on a human
	// clicking through the portal's source picker.
	DefaultInteractiveTimeout = 2 * time.Minute

	// DefaultPortalTimeout bounds headless portal round trips (restore and
	// transient session negotiation, session release).
	DefaultPortalTimeout = 15 * time.Second

	// DefaultFrameTimeout bounds the wait for a single frame on an
	// established stream.
	DefaultFrameTimeout = 10 * time.Second

	releaseTimeout = 3 * time.Second
)

type SessionBrokerDependencies struct {
	Vault  domain.CredentialVault
	Portal domain.ConsentPortal
	Frames domain.FrameSource

	InteractiveTimeout time.Duration
	PortalTimeout      time.Duration
	FrameTimeout       time.Duration
}

// sessionBroker drives the prime/restore/fallback lifecycle. Each call is
// logically sequential: at most one portal round trip and one frame wait, no
// background work. Vault-layer failures are reinterpreted as "unprimed" at
// this boundary; portal failures propagate with remediation hints.
type sessionBroker struct {
	vault  domain.CredentialVault
	portal domain.ConsentPortal
	frames domain.FrameSource

	interactiveTimeout time.Duration
	portalTimeout      time.Duration
	frameTimeout       time.Duration
}

// NewSessionBroker builds the broker. The returned value also implements
// domain.ConsentPrimer since the portal backend supports interactive consent.
func NewSessionBroker(deps SessionBrokerDependencies) domain.SessionBroker {
	if deps.InteractiveTimeout <= 0 {
		deps.InteractiveTimeout = DefaultInteractiveTimeout
	}
	if deps.PortalTimeout <= 0 {
		deps.PortalTimeout = DefaultPortalTimeout
	}
	if deps.FrameTimeout <= 0 {
		deps.FrameTimeout = DefaultFrameTimeout
	}

	return &sessionBroker{
		vault:              deps.Vault,
		portal:             deps.Portal,
		frames:             deps.Frames,
		interactiveTimeout: deps.InteractiveTimeout,
		portalTimeout:      deps.PortalTimeout,
		frameTimeout:       deps.FrameTimeout,
	}
}

// Prime runs the interactive consent path: a brand-new session with user
// source selection and "persist until revoked" intent. The single issued
// credential is stored under params.SourceID; one session may cover several
// streams under that credential.
func (b *sessionBroker) Prime(ctx context.Context, params domain.PrimeParams) (*domain.PrimeResult, error) {
	if params.SourceID == "" {
		return nil, fmt.Errorf("source id is required")
	}
	if params.Kind == "" {
		params.Kind = domain.SourceKindMonitor
	}
	if params.Persist == "" {
		params.Persist = domain.PersistUntilRevoked
	}

	openCtx, cancel := context.WithTimeout(ctx, b.interactiveTimeout)
	defer cancel()

	session, err := b.portal.OpenSession(openCtx, domain.OpenSessionParams{
		Mode:    domain.SessionModeInteractive,
		Filter:  domain.SourceFilter{Kind: params.Kind},
		Persist: params.Persist,
	})
	if err != nil {
		return nil, b.mapPortalError(err)
	}
	defer b.releaseSession(session.Handle)

	if session.IssuedCredential == nil {
		return nil, fmt.Errorf("%w: interactive session yielded no restore credential", domain.ErrPortalUnavailable)
	}

	if err := b.vault.Store(ctx, params.SourceID, *session.IssuedCredential); err != nil {
		return nil, fmt.Errorf("persist issued credential: %w", err)
	}

	issued := make([]string, 0, len(session.Streams))
	for _, stream := range session.Streams {
		issued = append(issued, stream.ID)
	}

	log.Info().
		Str("source_id", params.SourceID).
		Int("stream_count", len(session.Streams)).
		Msg("Consent primed")

	return &domain.PrimeResult{
		IssuedSourceIDs: issued,
		StreamCount:     len(session.Streams),
	}, nil
}

// Capture acquires one frame for sourceID. Lookup decides the path: a stored
// credential selects the headless restore path; anything else (no record,
// corrupt record, unusable vault) degrades to the full-display fallback.
func (b *sessionBroker) Capture(ctx context.Context, sourceID string, opts domain.TransformOptions) (*domain.CaptureResult, error) {
	if sourceID == "" {
		return nil, fmt.Errorf("source id is required")
	}

	credential, err := b.vault.Retrieve(ctx, sourceID)
	if err != nil {
		// Corrupt, foreign, or unreadable records all mean the same thing
		// here: this source is not primed.
		log.Warn().Err(err).Str("source_id", sourceID).Msg("Credential lookup failed, treating source as unprimed")
		credential = nil
	}

	if credential != nil {
		result, err := b.restoreCapture(ctx, sourceID, credential, opts)
		if err == nil {
			return result, nil
		}
		if terminalCaptureError(err) {
			return nil, err
		}
		log.Warn().Err(err).Str("source_id", sourceID).Msg("Session restore failed, degrading to full-display fallback")
	}

	return b.fallbackCapture(ctx, sourceID, opts)
}

// restoreCapture re-establishes the consented session headlessly, rotates the
// vault entry with the freshly issued token, then awaits one frame. Rotation
// happens before the frame wait: tokens are single-use, so a crash between
// frame delivery and persistence must cost a re-prime, never a replay of a
// spent credential.
func (b *sessionBroker) restoreCapture(ctx context.Context, sourceID string, credential *domain.RestoreCredential, opts domain.TransformOptions) (*domain.CaptureResult, error) {
	openCtx, cancel := context.WithTimeout(ctx, b.portalTimeout)
	defer cancel()

	session, err := b.portal.OpenSession(openCtx, domain.OpenSessionParams{
		Mode:       domain.SessionModeRestore,
		Credential: credential,
		Persist:    domain.PersistUntilRevoked,
	})
	if err != nil {
		return nil, b.mapPortalError(err)
	}

	stale := false
	if session.IssuedCredential == nil {
		// Protocol violation: a restored session must reissue. Without a
		// fresh token the stored one is already consumed.
		err = fmt.Errorf("%w: restored session reissued no credential", domain.ErrRotationFailed)
	} else {
		err = b.vault.Rotate(ctx, sourceID, *session.IssuedCredential)
	}
	if err != nil {
		// The old token is consumed and the new one is lost. Drop the record
		// so the next call re-primes instead of replaying a spent credential.
		log.Error().Err(err).Str("source_id", sourceID).Msg("Credential rotation failed, flagging source stale")
		if _, delErr := b.vault.Delete(ctx, sourceID); delErr != nil {
			log.Error().Err(delErr).Str("source_id", sourceID).Msg("Failed to drop stale credential record")
		}
		stale = true
	}

	if len(session.Streams) == 0 {
		b.releaseSession(session.Handle)
		return nil, fmt.Errorf("%w: restored session exposed no streams", domain.ErrRestoreRejected)
	}

	frame, err := b.awaitAndTransform(ctx, session, session.Streams[0], opts)
	b.releaseSession(session.Handle)
	if err != nil {
		return nil, err
	}

	return &domain.CaptureResult{Frame: frame, Stale: stale}, nil
}

// fallbackCapture opens a transient, non-persisted session for the coarsest
// available source and applies the caller's requested region as a post-hoc
// crop against the full-display frame. Expected degraded behavior, not an
// error; nothing is written to the vault.
func (b *sessionBroker) fallbackCapture(ctx context.Context, sourceID string, opts domain.TransformOptions) (*domain.CaptureResult, error) {
	openCtx, cancel := context.WithTimeout(ctx, b.portalTimeout)
	defer cancel()

	session, err := b.portal.OpenSession(openCtx, domain.OpenSessionParams{
		Mode:    domain.SessionModeTransient,
		Filter:  domain.SourceFilter{Kind: domain.SourceKindMonitor},
		Persist: domain.PersistNone,
	})
	if err != nil {
		err = b.mapPortalError(err)
		if errors.Is(err, domain.ErrPortalUnavailable) {
			// Both restoration and fallback are exhausted.
			return nil, domain.WithRemediation(
				fmt.Errorf("%w: %v", domain.ErrSourceUnavailable, err),
				"install or start the desktop consent service",
			)
		}
		return nil, err
	}
	defer b.releaseSession(session.Handle)

	if len(session.Streams) == 0 {
		return nil, fmt.Errorf("%w: transient session exposed no streams", domain.ErrSourceUnavailable)
	}

	frame, err := b.awaitAndTransform(ctx, session, coarsestStream(session.Streams), opts)
	if err != nil {
		return nil, err
	}

	log.Debug().Str("source_id", sourceID).Msg("Delivered full-display fallback frame")
	return &domain.CaptureResult{Frame: frame, Degraded: true}, nil
}

func (b *sessionBroker) awaitAndTransform(ctx context.Context, session *domain.Session, stream domain.StreamDescriptor, opts domain.TransformOptions) (*domain.RawFrame, error) {
	frameCtx, cancel := context.WithTimeout(ctx, b.frameTimeout)
	defer cancel()

	raw, err := b.frames.AwaitFrame(frameCtx, session.Handle, stream)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, domain.ErrTimeout) {
			return nil, domain.WithRemediation(domain.ErrTimeout, "frame was not delivered in time; the capture target may be suspended")
		}
		return nil, fmt.Errorf("await frame: %w", err)
	}

	shaped, err := transform.Apply(raw, opts)
	if err != nil {
		return nil, fmt.Errorf("apply transforms: %w", err)
	}
	return shaped, nil
}

// releaseSession closes a session on a detached deadline so a canceled caller
// never leaks a half-open session.
func (b *sessionBroker) releaseSession(handle string) {
	if handle == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
	defer cancel()
	if err := b.portal.CloseSession(ctx, handle); err != nil {
		log.Warn().Err(err).Str("session", handle).Msg("Failed to release capture session")
	}
}

func (b *sessionBroker) ListPrimedSources(ctx context.Context) ([]string, error) {
	ids, err := b.vault.ListSourceIDs(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Source listing failed, reporting no primed sources")
		ids = nil
	}
	if len(ids) == 0 {
		// The portal protocol forbids true enumeration without prior consent.
		return []string{domain.PlaceholderSourceEntry}, nil
	}
	return ids, nil
}

func (b *sessionBroker) Revoke(ctx context.Context, sourceID string) (bool, error) {
	if sourceID == "" {
		return false, fmt.Errorf("source id is required")
	}
	return b.vault.Delete(ctx, sourceID)
}

// mapPortalError normalizes transport-level failures onto the domain
// taxonomy and attaches remediation hints to the ones operators can act on.
func (b *sessionBroker) mapPortalError(err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, domain.ErrTimeout):
		return domain.WithRemediation(domain.ErrTimeout, "the portal did not answer in time; retry may succeed")
	case errors.Is(err, domain.ErrConsentDenied):
		return err
	case errors.Is(err, domain.ErrPortalUnavailable):
		return domain.WithRemediation(err, "install or start the desktop consent service")
	default:
		return err
	}
}

// terminalCaptureError reports whether a restore-path failure must surface to
// the caller instead of degrading to the fallback. Timeouts are terminal:
// the session was reachable, it just did not deliver in time.
func terminalCaptureError(err error) bool {
	return errors.Is(err, domain.ErrTimeout) ||
		errors.Is(err, domain.ErrConsentDenied)
}

func coarsestStream(streams []domain.StreamDescriptor) domain.StreamDescriptor {
	best := streams[0]
	for _, s := range streams[1:] {
		if s.Width*s.Height > best.Width*best.Height {
			best = s
		}
	}
	return best
}
