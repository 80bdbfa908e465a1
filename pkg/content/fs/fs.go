// Package fs implements filesystem-based content storage.
//
// Blobs are stored as flat files under a base directory, named by a
// hex-encoded content ref. This keeps arbitrary refs filesystem-safe and the
// store inspectable with standard tools.
//
// Thread Safety:
// The underlying filesystem operations are thread-safe at the OS level.
// Concurrent writers to the same ref are serialized by the upload
// coordinator, never by this package.
package fs

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/marmos91/synkerd/pkg/content"
)

// Store implements content.WritableContentStore on a local directory.
type Store struct {
	basePath string
}

// NewStore creates a filesystem content store rooted at basePath, creating
// the directory if needed.
func NewStore(ctx context.Context, basePath string) (*Store, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	return &Store{basePath: basePath}, nil
}

// blobPath returns the file path for a content ref. Refs are hex-encoded so
// arbitrary strings never escape the base directory.
func (s *Store) blobPath(ref string) string {
	return filepath.Join(s.basePath, hex.EncodeToString([]byte(ref)))
}

// ReadContent returns a reader over the whole blob.
func (s *Store) ReadContent(ctx context.Context, ref string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	file, err := os.Open(s.blobPath(ref))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("content %s: %w", ref, content.ErrContentNotFound)
		}
		return nil, fmt.Errorf("failed to open content file: %w", err)
	}
	return file, nil
}

// ReadRange reads length bytes starting at offset.
func (s *Store) ReadRange(ctx context.Context, ref string, offset, length uint64) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	file, err := os.Open(s.blobPath(ref))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("content %s: %w", ref, content.ErrContentNotFound)
		}
		return nil, fmt.Errorf("failed to open content file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat content file: %w", err)
	}
	if offset+length > uint64(info.Size()) {
		return nil, fmt.Errorf("range [%d, %d) beyond size %d: %w",
			offset, offset+length, info.Size(), content.ErrInvalidRange)
	}

	buf := make([]byte, length)
	if _, err := file.ReadAt(buf, int64(offset)); err != nil {
		return nil, fmt.Errorf("failed to read content range: %w", err)
	}
	return buf, nil
}

// GetContentSize returns the blob's size in bytes.
func (s *Store) GetContentSize(ctx context.Context, ref string) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	info, err := os.Stat(s.blobPath(ref))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, fmt.Errorf("content %s: %w", ref, content.ErrContentNotFound)
		}
		return 0, fmt.Errorf("failed to stat content file: %w", err)
	}
	return uint64(info.Size()), nil
}

// ContentExists reports whether the ref exists.
func (s *Store) ContentExists(ctx context.Context, ref string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	_, err := os.Stat(s.blobPath(ref))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat content file: %w", err)
	}
	return true, nil
}

// WriteContent stores the whole blob at ref.
//
// The blob is written to a temp file and renamed into place, so readers
// never observe a partially written blob.
func (s *Store) WriteContent(ctx context.Context, ref string, reader io.Reader) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	tmp, err := os.CreateTemp(s.basePath, ".write-*")
	if err != nil {
		return 0, fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	written, err := io.Copy(tmp, reader)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmpPath)
		return 0, fmt.Errorf("failed to write content: %w", err)
	}

	if err := os.Rename(tmpPath, s.blobPath(ref)); err != nil {
		os.Remove(tmpPath)
		return 0, fmt.Errorf("failed to finalize content file: %w", err)
	}
	return uint64(written), nil
}

// WriteAt writes data at offset, extending the blob as needed. The OS leaves
// sparse gaps reading back as zero bytes.
func (s *Store) WriteAt(ctx context.Context, ref string, offset uint64, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	file, err := os.OpenFile(s.blobPath(ref), os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open content file for writing: %w", err)
	}
	defer file.Close()

	if _, err := file.WriteAt(data, int64(offset)); err != nil {
		return fmt.Errorf("failed to write content at offset %d: %w", offset, err)
	}
	return nil
}

// DeleteContent removes the blob.
func (s *Store) DeleteContent(ctx context.Context, ref string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := os.Remove(s.blobPath(ref)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("content %s: %w", ref, content.ErrContentNotFound)
		}
		return fmt.Errorf("failed to delete content file: %w", err)
	}
	return nil
}

// ListAllContent returns every ref in the store, sorted.
func (s *Store) ListAllContent(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(s.basePath)
	if err != nil {
		return nil, fmt.Errorf("failed to list content directory: %w", err)
	}

	refs := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		decoded, err := hex.DecodeString(entry.Name())
		if err != nil {
			// Temp files and foreign files are not content.
			continue
		}
		refs = append(refs, string(decoded))
	}
	sort.Strings(refs)
	return refs, nil
}
