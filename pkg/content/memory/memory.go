// Package memory implements in-memory content storage.
//
// This implementation stores all blobs in a map. It's designed for testing,
// development and ephemeral deployments where persistence is not required.
//
// Thread Safety:
// All operations are protected by a sync.RWMutex. Data is copied on read and
// write so caller-owned buffers never alias stored state.
package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/marmos91/synkerd/pkg/content"
)

// Store implements content.WritableContentStore using in-memory byte slices.
type Store struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewStore creates an empty in-memory content store.
func NewStore() *Store {
	return &Store{data: make(map[string][]byte)}
}

// ReadContent returns a reader over the whole blob.
func (s *Store) ReadContent(ctx context.Context, ref string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	blob, ok := s.data[ref]
	s.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("content %s: %w", ref, content.ErrContentNotFound)
	}

	return io.NopCloser(bytes.NewReader(append([]byte(nil), blob...))), nil
}

// ReadRange reads length bytes starting at offset.
func (s *Store) ReadRange(ctx context.Context, ref string, offset, length uint64) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	blob, ok := s.data[ref]
	if !ok {
		return nil, fmt.Errorf("content %s: %w", ref, content.ErrContentNotFound)
	}
	if offset+length > uint64(len(blob)) {
		return nil, fmt.Errorf("range [%d, %d) beyond size %d: %w",
			offset, offset+length, len(blob), content.ErrInvalidRange)
	}

	return append([]byte(nil), blob[offset:offset+length]...), nil
}

// GetContentSize returns the blob's size in bytes.
func (s *Store) GetContentSize(ctx context.Context, ref string) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	blob, ok := s.data[ref]
	if !ok {
		return 0, fmt.Errorf("content %s: %w", ref, content.ErrContentNotFound)
	}
	return uint64(len(blob)), nil
}

// ContentExists reports whether the ref exists.
func (s *Store) ContentExists(ctx context.Context, ref string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.data[ref]
	return ok, nil
}

// WriteContent stores the whole blob at ref.
func (s *Store) WriteContent(ctx context.Context, ref string, reader io.Reader) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	blob, err := io.ReadAll(reader)
	if err != nil {
		return 0, fmt.Errorf("failed to read content: %w", err)
	}

	s.mu.Lock()
	s.data[ref] = blob
	s.mu.Unlock()

	return uint64(len(blob)), nil
}

// WriteAt writes data at offset, extending the blob as needed.
func (s *Store) WriteAt(ctx context.Context, ref string, offset uint64, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	blob := s.data[ref]
	end := offset + uint64(len(data))
	if end > uint64(len(blob)) {
		grown := make([]byte, end)
		copy(grown, blob)
		blob = grown
	}
	copy(blob[offset:end], data)
	s.data[ref] = blob

	return nil
}

// DeleteContent removes the blob.
func (s *Store) DeleteContent(ctx context.Context, ref string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data[ref]; !ok {
		return fmt.Errorf("content %s: %w", ref, content.ErrContentNotFound)
	}
	delete(s.data, ref)
	return nil
}

// ListAllContent returns every ref in the store, sorted.
func (s *Store) ListAllContent(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	refs := make([]string, 0, len(s.data))
	for ref := range s.data {
		refs = append(refs, ref)
	}
	sort.Strings(refs)
	return refs, nil
}
