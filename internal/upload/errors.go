package upload

import "errors"

// Sentinel errors returned by the upload pipeline. Handlers translate
// these to HTTP statuses with errors.Is; anything else is a plain
// internal error.
var (
	// ErrNotFound means the session doesn't exist, expired or was
	// already consumed by a completion or cancellation
	ErrNotFound = errors.New("upload session not found")

	// ErrForbidden means the requester is not the session owner
	ErrForbidden = errors.New("upload session owned by another user")

	// ErrInvalidArgument means a bad chunk index or malformed input
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrIncomplete means completion was requested before every chunk
	// was received. Hard precondition, not retryable
	ErrIncomplete = errors.New("not all chunks uploaded")

	// ErrConflict means a finalization for the same content hash is
	// already in flight. Retry later
	ErrConflict = errors.New("finalization already in progress")

	// ErrUnavailable means a downstream write (metadata store, broker,
	// staging filesystem) failed. Retry-worthy
	ErrUnavailable = errors.New("backing store unavailable")
)
