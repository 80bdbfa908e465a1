package memory

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/marmos91/synkerd/pkg/metadata"
)

// DeleteNode tombstones a node, or its whole subtree with recursive=true.
//
// Deletion is depth-first so the change log lists children before their
// parent, and share links pointing at any tombstoned node are revoked.
func (s *Store) DeleteNode(ctx context.Context, id uuid.UUID, recursive bool, origin string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	t, ok := s.treeOf(id)
	if !ok {
		return metadata.NewError(metadata.ErrNotFound, "node not found", id.String())
	}

	t.mu.Lock()

	node, ok := t.nodes[id]
	if !ok || node.Deleted {
		t.mu.Unlock()
		return metadata.NewError(metadata.ErrNotFound, "node not found", id.String())
	}
	if node.ParentID == nil {
		t.mu.Unlock()
		return metadata.NewError(metadata.ErrInvalidArgument, "cannot delete root directory", "/")
	}
	if node.Dir && !recursive && len(t.children[id]) > 0 {
		t.mu.Unlock()
		return metadata.NewError(metadata.ErrNotEmpty, "directory not empty", node.Name)
	}

	ops := make([]metadata.ChangeOp, 0, 4)
	deleted := make([]uuid.UUID, 0, 4)
	if err := t.deleteSubtreeLocked(node, origin, &ops, &deleted); err != nil {
		t.mu.Unlock()
		return err
	}

	s.revokeLinksFor(deleted)
	t.mu.Unlock()

	s.publish(ops)
	return nil
}

// deleteSubtreeLocked tombstones node and everything below it, children
// first. Caller must hold the tree's write lock.
func (t *tree) deleteSubtreeLocked(node *metadata.FileNode, origin string, ops *[]metadata.ChangeOp, deleted *[]uuid.UUID) error {
	if node.Dir {
		for _, child := range t.sortedChildren(node.ID) {
			if err := t.deleteSubtreeLocked(t.nodes[child.ID], origin, ops, deleted); err != nil {
				return err
			}
		}
	}

	path, err := t.nodePathLocked(node.ID)
	if err != nil {
		return err
	}

	node.Deleted = true
	node.ModifiedAt = time.Now()
	delete(t.children[*node.ParentID], node.Name)
	delete(t.children, node.ID)

	*deleted = append(*deleted, node.ID)
	*ops = append(*ops, t.appendChangeLocked(metadata.ChangeDeleted, node, path, "", origin))
	return nil
}

// revokeLinksFor revokes every share link pointing at one of the tombstoned
// nodes.
func (s *Store) revokeLinksFor(nodeIDs []uuid.UUID) {
	tombstoned := make(map[uuid.UUID]struct{}, len(nodeIDs))
	for _, id := range nodeIDs {
		tombstoned[id] = struct{}{}
	}

	s.linkMu.Lock()
	defer s.linkMu.Unlock()

	for _, link := range s.links {
		if _, ok := tombstoned[link.FileID]; ok {
			link.Revoked = true
		}
	}
}
