package metadata

import "errors"

// StoreError represents a domain error from synkerd operations.
//
// These are business logic errors (node not found, sibling name conflict,
// share quota exhausted, ...) as opposed to infrastructure errors (disk
// failure, network failure). Transport layers translate StoreError codes to
// their wire-level error codes; infrastructure errors are wrapped and
// surfaced as-is.
type StoreError struct {
	// Code is the error category.
	Code ErrorCode

	// Message is a human-readable error description.
	Message string

	// Path is the filesystem path or token related to the error, when
	// applicable. This helps with debugging and error reporting.
	Path string
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	if e.Path != "" {
		return e.Message + ": " + e.Path
	}
	return e.Message
}

// NewError constructs a StoreError.
func NewError(code ErrorCode, message, path string) *StoreError {
	return &StoreError{Code: code, Message: message, Path: path}
}

// IsCode reports whether err is (or wraps) a StoreError with the given code.
func IsCode(err error, code ErrorCode) bool {
	var se *StoreError
	if errors.As(err, &se) {
		return se.Code == code
	}
	return false
}

// ErrorCode represents the category of a StoreError.
type ErrorCode int

const (
	// ErrNotFound indicates the requested node/user/session/token doesn't
	// exist. Revoked share links also surface as ErrNotFound so that a
	// revoked token is indistinguishable from a never-issued one.
	ErrNotFound ErrorCode = iota

	// ErrNameConflict indicates a live sibling with the name already exists.
	ErrNameConflict

	// ErrCycleDetected indicates a move would make a node its own ancestor.
	ErrCycleDetected

	// ErrInvalidParent indicates the target parent doesn't exist, is not a
	// directory, or belongs to another user.
	ErrInvalidParent

	// ErrNotEmpty indicates a non-recursive delete of a non-empty directory.
	ErrNotEmpty

	// ErrIsDirectory indicates an operation expected a file but got a
	// directory.
	ErrIsDirectory

	// ErrNotDirectory indicates an operation expected a directory but got a
	// file.
	ErrNotDirectory

	// ErrInvalidArgument indicates invalid parameters were provided.
	// Examples: empty name, name containing "/", non-monotonic cursor.
	ErrInvalidArgument

	// ErrPermissionDenied indicates the caller lacks the required capability
	// on the target node (e.g. creating a share link without Share).
	ErrPermissionDenied

	// ErrIncompleteUpload indicates commit was requested before the received
	// ranges cover the declared size contiguously.
	ErrIncompleteUpload

	// ErrChecksumMismatch indicates the staged bytes don't hash to the
	// declared checksum at commit time.
	ErrChecksumMismatch

	// ErrChunkMismatch indicates a chunk was re-submitted at an already
	// received offset with different bytes.
	ErrChunkMismatch

	// ErrUnknownUpload indicates the upload id is not (or no longer) active.
	ErrUnknownUpload

	// ErrOffsetOutOfRange indicates a chunk would extend past the declared
	// upload size.
	ErrOffsetOutOfRange

	// ErrCursorExpired indicates the change-log entries after the cursor
	// were already garbage-collected; the caller must full-resync.
	ErrCursorExpired

	// ErrExpired indicates the share link's expiry has passed.
	ErrExpired

	// ErrQuotaExceeded indicates the share link's download quota is
	// exhausted.
	ErrQuotaExceeded

	// ErrBadPassword indicates the share link password gate failed.
	ErrBadPassword

	// ErrInvalidCredentials indicates the identity provider rejected the
	// supplied username/password pair.
	ErrInvalidCredentials
)
