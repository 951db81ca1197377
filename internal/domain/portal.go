package domain

import "context"

// SessionMode selects how the portal establishes a session.
type SessionMode string

const (
	// SessionModeInteractive shows the portal's source picker and asks the
	// user for consent. The only mode that may issue a persistent credential
	// for a brand-new source.
	SessionModeInteractive SessionMode = "interactive"

	// SessionModeRestore re-establishes a previously consented session
	// headlessly using a stored restore credential.
	SessionModeRestore SessionMode = "restore"

	// SessionModeTransient opens a one-shot, non-persisted session for the
	// coarsest available source. Used by the fallback path.
	SessionModeTransient SessionMode = "transient"
)

// SourceFilter narrows which targets an interactive or transient session may
// offer.
type SourceFilter struct {
	Kind SourceKind `json:"kind"`
}

// OpenSessionParams describes one session negotiation with the portal.
type OpenSessionParams struct {
	Mode SessionMode

	// Credential is the stored restore token. Set only for SessionModeRestore.
	Credential *RestoreCredential

	Filter  SourceFilter
	Persist PersistMode
}

// StreamDescriptor identifies one capturable pixel stream inside an
// established session. One session may yield several streams under a single
// credential.
type StreamDescriptor struct {
	ID     string     `json:"id"`
	Kind   SourceKind `json:"kind"`
	Width  int        `json:"width"`
	Height int        `json:"height"`
}

// Session is an established capture session. IssuedCredential is nil for
// transient sessions; for interactive and successfully restored sessions the
// portal always issues a fresh single-use credential.
type Session struct {
	Handle           string
	IssuedCredential *RestoreCredential
	Streams          []StreamDescriptor
}

// ConsentPortal is the opaque interface to the desktop consent service.
// Implementations map protocol-level failures onto the domain error taxonomy:
// ErrConsentDenied, ErrPortalUnavailable, ErrRestoreRejected, ErrTimeout.
type ConsentPortal interface {
	OpenSession(ctx context.Context, params OpenSessionParams) (*Session, error)

	// CloseSession releases a session that will deliver no more frames.
	// Safe to call on an already-closed handle.
	CloseSession(ctx context.Context, handle string) error
}

// FrameSource delivers exactly one raw frame per established stream. The wait
// is bounded by ctx; expiry yields ErrTimeout.
type FrameSource interface {
	AwaitFrame(ctx context.Context, handle string, stream StreamDescriptor) (*RawFrame, error)
}
