package badger

import (
	"context"
	"time"

	badger "github.com/dgraph-io/badger/v4"
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

	var op metadata.ChangeOp
	moved := false

	err := s.update(func(txn *badger.Txn) error {
		// The closure can re-run after a commit conflict.
		moved = false

		node, err := getLiveNodeTxn(txn, id)
		if err != nil {
			return err
		}
		if node.ParentID == nil {
			return metadata.NewError(metadata.ErrInvalidArgument, "cannot move root directory", "/")
		}

		newParent, err := getNodeTxn(txn, newParentID)
		if err != nil || newParent.Deleted {
			return metadata.NewError(metadata.ErrInvalidParent, "target parent does not exist", newName)
		}
		if !newParent.Dir {
			return metadata.NewError(metadata.ErrInvalidParent, "target parent is not a directory", newName)
		}
		if newParent.OwnerID != node.OwnerID {
			return metadata.NewError(metadata.ErrInvalidParent, "target parent belongs to another user", newName)
		}

		// Same parent, same name: nothing to do and no change entry.
		if *node.ParentID == newParentID && node.Name == newName {
			return nil
		}

		if existing, exists, err := childTxn(txn, newParentID, newName); err != nil {
			return err
		} else if exists && existing != id {
			return metadata.NewError(metadata.ErrNameConflict, "name already exists in target directory", newName)
		}

		if err := checkCycleTxn(txn, id, newParentID); err != nil {
			return err
		}

		oldPath, err := nodePathTxn(txn, id)
		if err != nil {
			return err
		}

		if err := txn.Delete(keyChild(*node.ParentID, node.Name)); err != nil {
			return err
		}
		parent := newParentID
		node.ParentID = &parent
		node.Name = newName
		node.ModifiedAt = time.Now()
		if err := setJSON(txn, keyNode(id), node); err != nil {
			return err
		}
		if err := txn.Set(keyChild(newParentID, newName), []byte(id.String())); err != nil {
			return err
		}

		newPath, err := nodePathTxn(txn, id)
		if err != nil {
			return err
		}

		op, err = appendChangeTxn(txn, metadata.ChangeMoved, node, newPath, oldPath, origin)
		moved = true
		return err
	})
	if err != nil {
		return err
	}
	if moved {
		s.publish([]metadata.ChangeOp{op})
	}
	return nil
}

// checkCycleTxn walks from candidate up to the root and fails if it passes
// through id.
func checkCycleTxn(txn *badger.Txn, id, candidate uuid.UUID) error {
	current := candidate
	for depth := 0; ; depth++ {
		if depth >= maxPathDepth {
			return metadata.NewError(metadata.ErrInvalidArgument,
				"parent chain too deep or cyclic", candidate.String())
		}
		if current == id {
			return metadata.NewError(metadata.ErrCycleDetected, "move would create a cycle", id.String())
		}

		node, err := getNodeTxn(txn, current)
		if err != nil {
			return metadata.NewError(metadata.ErrNotFound, "broken parent chain", current.String())
		}
		if node.ParentID == nil {
			return nil
		}
		current = *node.ParentID
	}
}
