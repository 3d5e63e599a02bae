package engine

import "errors"

// Error taxonomy shared across the core. Handlers map these onto HTTP
// statuses; everything else is treated as an internal failure.
var (
	// ErrNeedsAuth: no session or an expired one, user action required.
	ErrNeedsAuth = errors.New("needs_auth")

	// ErrValidation: malformed input (bad URL, bad cookie shape). Never retried.
	ErrValidation = errors.New("validation_error")

	// ErrNotFound: the addressed content or job does not exist.
	ErrNotFound = errors.New("not_found")

	// ErrExtractionFailed: page reachable but no transcript rows found.
	ErrExtractionFailed = errors.New("extraction_failed")

	// ErrTransient: navigation timeout or network hiccup; the next scheduled
	// refresh (or the caller) may retry.
	ErrTransient = errors.New("transient_error")

	// ErrUpstreamWrite: the external document store rejected one item's write.
	// Isolated per item; never aborts a batch.
	ErrUpstreamWrite = errors.New("upstream_write_error")
)
