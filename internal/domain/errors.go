package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrConsentDenied means the user rejected the interactive consent dialog.
	// Never auto-retried.
	ErrConsentDenied = errors.New("consent denied by user")

	// ErrPortalUnavailable means the desktop consent service is not reachable
	// at all (not installed, not running, or the socket is gone).
	ErrPortalUnavailable = errors.New("consent portal unavailable")

	// ErrTimeout means a bounded wait on the portal or the frame source
	// expired. Distinct from ErrConsentDenied; the caller may retry.
	ErrTimeout = errors.New("operation timed out")

	// ErrRestoreRejected means the portal refused a headless restore attempt:
	// the token was revoked, already consumed, or the session host restarted.
	// The broker treats this as a signal to fall back, never as a fatal error.
	ErrRestoreRejected = errors.New("session restore rejected")

	// ErrVaultUnavailable means the OS secret store cannot be used. It is
	// absorbed inside the vault (triggering the file backend) and must never
	// cross the broker boundary.
	ErrVaultUnavailable = errors.New("secret store unavailable")

	// ErrDecryptionFailed means a stored record is corrupt, tampered with, or
	// was encrypted under a different host identity. Callers treat it as
	// "no credential".
	ErrDecryptionFailed = errors.New("credential record decryption failed")

	// ErrIO covers disk and OS-store failures while persisting records.
	ErrIO = errors.New("credential storage i/o failure")

	// ErrRotationFailed means a fresh credential could not be persisted after
	// a successful restore. The captured frame may still be valid, but the
	// source must be re-primed before the next capture.
	ErrRotationFailed = errors.New("credential rotation failed")

	// ErrSourceUnavailable is terminal: both the restore path and the
	// full-display fallback failed to reach the portal.
	ErrSourceUnavailable = errors.New("source unavailable")
)

// RemediationError attaches an operator-facing hint to an underlying error.
// The hint travels with portal and timeout errors up to the protocol surface;
// vault-internal errors are reinterpreted before they get here and never
// carry hints.
type RemediationError struct {
	Err  error
	Hint string
}

func (e *RemediationError) Error() string {
	if e.Hint == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s (%s)", e.Err.Error(), e.Hint)
}

func (e *RemediationError) Unwrap() error {
	return e.Err
}

// WithRemediation wraps err with a hint. A nil err stays nil.
func WithRemediation(err error, hint string) error {
	if err == nil {
		return nil
	}
	return &RemediationError{Err: err, Hint: hint}
}
