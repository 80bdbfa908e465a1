package badger

import (
	"context"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/marmos91/synkerd/pkg/metadata"
)

// ChangesSince returns entries after cursor plus the current head cursor.
//
// Log keys embed the sequence number big-endian, so the scan can seek
// directly to cursor+1 and read forward in order.
func (s *Store) ChangesSince(
	ctx context.Context,
	userID uuid.UUID,
	cursor metadata.Cursor,
) ([]metadata.ChangeOp, metadata.Cursor, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}

	var ops []metadata.ChangeOp
	var head metadata.Cursor

	err := s.db.View(func(txn *badger.Txn) error {
		floor, err := cursorTxn(txn, keyFloor(userID))
		if err != nil {
			return err
		}
		head, err = cursorTxn(txn, keyHead(userID))
		if err != nil {
			return err
		}

		if cursor < floor {
			return metadata.NewError(metadata.ErrCursorExpired, "change log trimmed past cursor", "")
		}
		if cursor > head {
			return metadata.NewError(metadata.ErrInvalidArgument, "cursor beyond change log head", "")
		}

		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefixLog(userID)
		it := txn.NewIterator(opts)
		defer it.Close()

		ops = make([]metadata.ChangeOp, 0, head-cursor)
		for it.Seek(keyLog(userID, cursor+1)); it.Valid(); it.Next() {
			val, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			op, err := decodeOp(val)
			if err != nil {
				return err
			}
			ops = append(ops, op)
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return ops, head, nil
}

// LatestCursor returns the head of a user's change log.
func (s *Store) LatestCursor(ctx context.Context, userID uuid.UUID) (metadata.Cursor, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	var head metadata.Cursor
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		head, err = cursorTxn(txn, keyHead(userID))
		return err
	})
	return head, err
}

// TrimChangeLog drops entries with Seq <= upto and hard-deletes tombstones
// whose deletion entry was dropped.
func (s *Store) TrimChangeLog(ctx context.Context, userID uuid.UUID, upto metadata.Cursor) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.update(func(txn *badger.Txn) error {
		floor, err := cursorTxn(txn, keyFloor(userID))
		if err != nil {
			return err
		}
		if upto <= floor {
			return nil
		}
		head, err := cursorTxn(txn, keyHead(userID))
		if err != nil {
			return err
		}
		if upto > head {
			upto = head
		}

		// Collect before deleting: Badger iterators don't see writes made
		// during the same iteration pass reliably.
		var dropKeys [][]byte
		var tombstoneIDs []uuid.UUID

		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefixLog(userID)
		it := txn.NewIterator(opts)
		for it.Seek(keyLog(userID, floor+1)); it.Valid(); it.Next() {
			val, err := it.Item().ValueCopy(nil)
			if err != nil {
				it.Close()
				return err
			}
			op, err := decodeOp(val)
			if err != nil {
				it.Close()
				return err
			}
			if op.Seq > upto {
				break
			}
			dropKeys = append(dropKeys, it.Item().KeyCopy(nil))
			if op.Type == metadata.ChangeDeleted {
				tombstoneIDs = append(tombstoneIDs, op.NodeID)
			}
		}
		it.Close()

		for _, key := range dropKeys {
			if err := txn.Delete(key); err != nil {
				return err
			}
		}

		// A tombstone is only needed while its deletion entry can still
		// be replayed; once that entry is trimmed, the node row goes too.
		for _, nodeID := range tombstoneIDs {
			node, err := getNodeTxn(txn, nodeID)
			if err != nil {
				if metadata.IsCode(err, metadata.ErrNotFound) {
					continue
				}
				return err
			}
			if node.Deleted {
				if err := txn.Delete(keyNode(nodeID)); err != nil {
					return err
				}
			}
		}

		return txn.Set(keyFloor(userID), encodeCursor(upto))
	})
}
