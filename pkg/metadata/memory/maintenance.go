package memory

import (
	"context"
	"sort"
)

// ListContentRefs returns the content references of all live file nodes
// across every user.
//
// The tree pointers are snapshotted under the registry lock and the lock is
// released before any tree is locked; holding the registry while waiting on
// a tree would invert the lock order used by mutators.
func (s *Store) ListContentRefs(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	trees := make([]*tree, 0, len(s.trees))
	for _, t := range s.trees {
		trees = append(trees, t)
	}
	s.mu.RUnlock()

	refs := make([]string, 0)
	for _, t := range trees {
		t.mu.RLock()
		for _, node := range t.nodes {
			if !node.Deleted && !node.Dir && node.ContentRef != "" {
				refs = append(refs, node.ContentRef)
			}
		}
		t.mu.RUnlock()
	}
	sort.Strings(refs)

	return refs, nil
}

// Healthcheck always succeeds for the in-memory store.
func (s *Store) Healthcheck(ctx context.Context) error {
	return ctx.Err()
}

// Close is a no-op for the in-memory store.
func (s *Store) Close() error {
	return nil
}
