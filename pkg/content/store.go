package content

import (
	"context"
	"io"
)

// ============================================================================
// ContentStore Interface
// ============================================================================

// ContentStore provides protocol-agnostic blob storage for file data.
//
// Separation of Concerns:
//
// The content store manages only raw bytes. It does NOT manage:
//   - File metadata (names, checksums, ownership) → handled by MetadataStore
//   - The namespace and paths → handled by MetadataStore
//   - Upload sessions and chunk accounting → handled by the upload
//     coordinator (pkg/upload)
//
// Content Identifiers:
// A content ref is an opaque string chosen by the writer. The upload
// coordinator uses the upload session's UUID: the staged blob becomes the
// committed blob without a copy, and the metadata store's FileNode.ContentRef
// points at it after commit.
//
// Thread Safety:
// Implementations must be safe for concurrent use by multiple goroutines.
// Concurrent writes to the same ref yield last-write-wins per range; the
// upload coordinator serializes writers that could overlap.
type ContentStore interface {
	// ReadContent returns a reader over the whole blob.
	//
	// The caller must close the returned reader.
	//
	// Returns:
	//   - error: ErrContentNotFound if the ref doesn't exist
	ReadContent(ctx context.Context, ref string) (io.ReadCloser, error)

	// ReadRange reads length bytes starting at offset.
	//
	// A range extending past the end of the blob returns ErrInvalidRange;
	// backends with native range support (S3) translate their range
	// semantics accordingly.
	//
	// Returns:
	//   - error: ErrContentNotFound, ErrInvalidRange
	ReadRange(ctx context.Context, ref string, offset, length uint64) ([]byte, error)

	// GetContentSize returns the blob's size in bytes.
	//
	// Returns:
	//   - error: ErrContentNotFound
	GetContentSize(ctx context.Context, ref string) (uint64, error)

	// ContentExists reports whether the ref exists without reading it.
	ContentExists(ctx context.Context, ref string) (bool, error)
}

// WritableContentStore extends ContentStore with write operations.
//
// The read/write split lets read-only consumers (the share-link download
// path) hold the narrower interface.
type WritableContentStore interface {
	ContentStore

	// WriteContent stores the whole blob at ref, replacing any previous
	// bytes.
	WriteContent(ctx context.Context, ref string, reader io.Reader) (uint64, error)

	// WriteAt writes data at offset, extending the blob as needed. Sparse
	// gaps between the previous end and offset read back as zero bytes.
	//
	// The upload coordinator relies on WriteAt for out-of-order chunk
	// arrival; backends without native random access (S3) implement it
	// with read-modify-write.
	WriteAt(ctx context.Context, ref string, offset uint64, data []byte) error

	// DeleteContent removes the blob. Deleting a missing ref returns
	// ErrContentNotFound.
	DeleteContent(ctx context.Context, ref string) error

	// ListAllContent returns every ref in the store. The gc collector
	// diffs this against the metadata store's live refs to find orphans.
	ListAllContent(ctx context.Context) ([]string, error)
}
