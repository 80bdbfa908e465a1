package memory

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/marmos91/synkerd/pkg/metadata"
)

// latestLocked derives the head cursor of the tree's log.
// log[0].Seq == floor+1, so head == floor + len(log).
func (t *tree) latestLocked() metadata.Cursor {
	return t.floor + metadata.Cursor(len(t.log))
}

// appendChangeLocked appends one change entry and returns a copy for
// publication. Caller must hold the tree's write lock.
func (t *tree) appendChangeLocked(
	changeType metadata.ChangeType,
	node *metadata.FileNode,
	path, oldPath, origin string,
) metadata.ChangeOp {
	op := metadata.ChangeOp{
		Seq:       t.latestLocked() + 1,
		Type:      changeType,
		NodeID:    node.ID,
		UserID:    node.OwnerID,
		Path:      path,
		OldPath:   oldPath,
		Origin:    origin,
		Timestamp: time.Now(),
	}
	if changeType != metadata.ChangeDeleted {
		op.Node = copyNode(node)
	}

	t.log = append(t.log, op)
	return copyOp(op)
}

// ChangesSince returns entries after cursor plus the current head cursor.
func (s *Store) ChangesSince(
	ctx context.Context,
	userID uuid.UUID,
	cursor metadata.Cursor,
) ([]metadata.ChangeOp, metadata.Cursor, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}

	t, ok := s.treeFor(userID)
	if !ok {
		if cursor > 0 {
			return nil, 0, metadata.NewError(metadata.ErrInvalidArgument,
				"cursor beyond change log head", "")
		}
		return []metadata.ChangeOp{}, 0, nil
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	head := t.latestLocked()

	if cursor < t.floor {
		return nil, 0, metadata.NewError(metadata.ErrCursorExpired,
			"change log trimmed past cursor", "")
	}
	if cursor > head {
		return nil, 0, metadata.NewError(metadata.ErrInvalidArgument,
			"cursor beyond change log head", "")
	}

	pending := t.log[cursor-t.floor:]

	ops := make([]metadata.ChangeOp, 0, len(pending))
	for _, op := range pending {
		ops = append(ops, copyOp(op))
	}

	return ops, head, nil
}

// LatestCursor returns the head of a user's change log.
func (s *Store) LatestCursor(ctx context.Context, userID uuid.UUID) (metadata.Cursor, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	t, ok := s.treeFor(userID)
	if !ok {
		return 0, nil
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	return t.latestLocked(), nil
}

// TrimChangeLog drops entries with Seq <= upto and hard-deletes tombstones
// whose deletion entry was dropped.
func (s *Store) TrimChangeLog(ctx context.Context, userID uuid.UUID, upto metadata.Cursor) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	t, ok := s.treeFor(userID)
	if !ok {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if upto <= t.floor {
		return nil
	}
	if head := t.latestLocked(); upto > head {
		upto = head
	}

	dropped := t.log[:upto-t.floor]

	// A tombstone is only needed while its deletion entry can still be
	// replayed; once that entry is trimmed, the node row goes with it.
	for _, op := range dropped {
		if op.Type != metadata.ChangeDeleted {
			continue
		}
		if node, ok := t.nodes[op.NodeID]; ok && node.Deleted {
			delete(t.nodes, op.NodeID)
			s.dropOwner(op.NodeID)
		}
	}

	t.log = append([]metadata.ChangeOp(nil), t.log[upto-t.floor:]...)
	t.floor = upto

	return nil
}
