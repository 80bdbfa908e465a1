package memory

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/marmos91/synkerd/pkg/metadata"
)

// MoveNode renames and/or re-parents a node atomically.
func (s *Store) MoveNode(ctx context.Context, id, newParentID uuid.UUID, newName string, origin string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := metadata.ValidateName(newName); err != nil {
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
		return metadata.NewError(metadata.ErrInvalidArgument, "cannot move root directory", "/")
	}

	// A parent outside this tree belongs to another user or doesn't exist.
	newParent, ok := t.nodes[newParentID]
	if !ok || newParent.Deleted {
		t.mu.Unlock()
		return metadata.NewError(metadata.ErrInvalidParent, "target parent does not exist", newName)
	}
	if !newParent.Dir {
		t.mu.Unlock()
		return metadata.NewError(metadata.ErrInvalidParent, "target parent is not a directory", newName)
	}
	if newParent.OwnerID != node.OwnerID {
		t.mu.Unlock()
		return metadata.NewError(metadata.ErrInvalidParent, "target parent belongs to another user", newName)
	}

	// Same parent, same name: nothing to do and no change entry.
	if *node.ParentID == newParentID && node.Name == newName {
		t.mu.Unlock()
		return nil
	}

	if existing, exists := t.children[newParentID][newName]; exists && existing != id {
		t.mu.Unlock()
		return metadata.NewError(metadata.ErrNameConflict, "name already exists in target directory", newName)
	}

	if err := t.checkCycleLocked(id, newParentID); err != nil {
		t.mu.Unlock()
		return err
	}

	oldPath, err := t.nodePathLocked(id)
	if err != nil {
		t.mu.Unlock()
		return err
	}

	delete(t.children[*node.ParentID], node.Name)
	parent := newParentID
	node.ParentID = &parent
	node.Name = newName
	node.ModifiedAt = time.Now()
	t.children[newParentID][newName] = id

	newPath, err := t.nodePathLocked(id)
	if err != nil {
		t.mu.Unlock()
		return err
	}

	op := t.appendChangeLocked(metadata.ChangeMoved, node, newPath, oldPath, origin)
	t.mu.Unlock()

	s.publish([]metadata.ChangeOp{op})
	return nil
}

// checkCycleLocked walks from candidate up to the root and fails if it passes
// through id. Caller must hold the tree's write lock.
func (t *tree) checkCycleLocked(id, candidate uuid.UUID) error {
	current := candidate
	for depth := 0; ; depth++ {
		if depth >= maxPathDepth {
			return metadata.NewError(metadata.ErrInvalidArgument,
				"parent chain too deep or cyclic", candidate.String())
		}
		if current == id {
			return metadata.NewError(metadata.ErrCycleDetected,
				"move would create a cycle", id.String())
		}

		node, ok := t.nodes[current]
		if !ok {
			return metadata.NewError(metadata.ErrNotFound, "broken parent chain", current.String())
		}
		if node.ParentID == nil {
			return nil
		}
		current = *node.ParentID
	}
}
