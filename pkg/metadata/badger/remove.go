package badger

import (
	"context"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/marmos91/synkerd/pkg/metadata"
)

// DeleteNode tombstones a node, or its whole subtree with recursive=true.
//
// The whole subtree commits in one transaction, with children logged before
// their parents. Share links pointing at any tombstoned node are revoked.
func (s *Store) DeleteNode(ctx context.Context, id uuid.UUID, recursive bool, origin string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var ops []metadata.ChangeOp

	err := s.update(func(txn *badger.Txn) error {
		node, err := getLiveNodeTxn(txn, id)
		if err != nil {
			return err
		}
		if node.ParentID == nil {
			return metadata.NewError(metadata.ErrInvalidArgument, "cannot delete root directory", "/")
		}

		if node.Dir && !recursive {
			empty, err := directoryEmptyTxn(txn, id)
			if err != nil {
				return err
			}
			if !empty {
				return metadata.NewError(metadata.ErrNotEmpty, "directory not empty", node.Name)
			}
		}

		ops = make([]metadata.ChangeOp, 0, 4)
		return deleteSubtreeTxn(txn, node, origin, &ops)
	})
	if err != nil {
		return err
	}

	s.publish(ops)
	return nil
}

// directoryEmptyTxn reports whether a directory has any live children.
func directoryEmptyTxn(txn *badger.Txn, id uuid.UUID) (bool, error) {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefixChildren(id)
	opts.PrefetchValues = false
	it := txn.NewIterator(opts)
	defer it.Close()

	it.Rewind()
	return !it.Valid(), nil
}

// deleteSubtreeTxn tombstones node and everything below it, children first.
func deleteSubtreeTxn(txn *badger.Txn, node *metadata.FileNode, origin string, ops *[]metadata.ChangeOp) error {
	if node.Dir {
		// Collect child ids first: mutating while iterating the child
		// index is undefined.
		var childIDs []uuid.UUID

		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefixChildren(node.ID)
		it := txn.NewIterator(opts)
		for it.Rewind(); it.Valid(); it.Next() {
			val, err := it.Item().ValueCopy(nil)
			if err != nil {
				it.Close()
				return err
			}
			childID, err := uuid.Parse(string(val))
			if err != nil {
				it.Close()
				return err
			}
			childIDs = append(childIDs, childID)
		}
		it.Close()

		for _, childID := range childIDs {
			child, err := getNodeTxn(txn, childID)
			if err != nil {
				return err
			}
			if err := deleteSubtreeTxn(txn, child, origin, ops); err != nil {
				return err
			}
		}
	}

	path, err := nodePathTxn(txn, node.ID)
	if err != nil {
		return err
	}

	node.Deleted = true
	node.ModifiedAt = time.Now()
	if err := setJSON(txn, keyNode(node.ID), node); err != nil {
		return err
	}
	if err := txn.Delete(keyChild(*node.ParentID, node.Name)); err != nil {
		return err
	}

	if err := revokeLinksForNodeTxn(txn, node.ID); err != nil {
		return err
	}

	op, err := appendChangeTxn(txn, metadata.ChangeDeleted, node, path, "", origin)
	if err != nil {
		return err
	}
	*ops = append(*ops, op)
	return nil
}

// revokeLinksForNodeTxn revokes every share link pointing at nodeID.
func revokeLinksForNodeTxn(txn *badger.Txn, nodeID uuid.UUID) error {
	type pending struct {
		key  []byte
		link *metadata.ShareLink
	}
	var updates []pending

	opts := badger.DefaultIteratorOptions
	opts.Prefix = []byte(prefixShareLinks)
	it := txn.NewIterator(opts)
	for it.Rewind(); it.Valid(); it.Next() {
		val, err := it.Item().ValueCopy(nil)
		if err != nil {
			it.Close()
			return err
		}
		link, err := decodeShareLink(val)
		if err != nil {
			it.Close()
			return err
		}
		if link.FileID == nodeID && !link.Revoked {
			link.Revoked = true
			updates = append(updates, pending{key: it.Item().KeyCopy(nil), link: link})
		}
	}
	it.Close()

	for _, update := range updates {
		if err := setJSON(txn, update.key, update.link); err != nil {
			return err
		}
	}
	return nil
}
