package content

import "errors"

// ============================================================================
// Standard Content Store Errors
// ============================================================================
//
// These errors provide a consistent way to indicate common failure conditions
// across all content store implementations. Callers check them with
// errors.Is; implementations wrap them with additional context:
//
//	return fmt.Errorf("content %s: %w", ref, content.ErrContentNotFound)

var (
	// ErrContentNotFound indicates the requested ref does not exist.
	ErrContentNotFound = errors.New("content not found")

	// ErrInvalidRange indicates a read range extends past the end of the
	// blob or is otherwise malformed.
	ErrInvalidRange = errors.New("invalid content range")
)
