package domain

import "context"

// PlaceholderSourceEntry is returned as the sole element of
// ListPrimedSources when the vault is empty. The portal protocol forbids
// enumerating capturable sources without prior consent, so an empty listing
// would otherwise be indistinguishable from "nothing on this desktop".
const PlaceholderSourceEntry = "(no primed sources; call prime to grant capture consent)"

// PrimeParams describes an explicit "obtain consent" request.
type PrimeParams struct {
	// SourceID is the caller-chosen stable key the issued credential will be
	// stored under.
	SourceID string      `json:"source_id"`
	Kind     SourceKind  `json:"kind"`
	Persist  PersistMode `json:"persist"`
}

// PrimeResult reports what an interactive session yielded. One session may
// cover several streams under the single issued credential.
type PrimeResult struct {
	// IssuedSourceIDs are the stream identifiers the session exposed.
	IssuedSourceIDs []string `json:"issued_source_ids"`
	StreamCount     int      `json:"stream_count"`
}

// CaptureResult is one delivered frame plus degradation flags.
type CaptureResult struct {
	Frame *RawFrame `json:"frame"`

	// Degraded is set when the frame came from the full-display fallback path
	// rather than the requested target. Expected behavior, not an error.
	Degraded bool `json:"degraded"`

	// Stale is set when the frame was delivered but the fresh credential
	// could not be persisted; the source must be re-primed before the next
	// capture.
	Stale bool `json:"stale"`
}

// SessionBroker drives the prime/restore/fallback lifecycle for capture
// requests.
type SessionBroker interface {
	// Capture acquires one frame for sourceID, applying opts. It restores a
	// stored session when a credential exists and silently degrades to the
	// full-display fallback when it does not or when restoration is refused.
	// ErrSourceUnavailable only when both paths fail to reach the portal.
	Capture(ctx context.Context, sourceID string, opts TransformOptions) (*CaptureResult, error)

	// ListPrimedSources enumerates source ids with stored credentials, or the
	// single placeholder entry when there are none.
	ListPrimedSources(ctx context.Context) ([]string, error)

	// Revoke deletes the stored credential for sourceID and reports whether
	// one existed.
	Revoke(ctx context.Context, sourceID string) (bool, error)
}

// ConsentPrimer is the optional capability of brokers whose backend supports
// interactive consent. Callers type-assert against this interface instead of
// inspecting the broker's concrete type.
type ConsentPrimer interface {
	Prime(ctx context.Context, params PrimeParams) (*PrimeResult, error)
}
