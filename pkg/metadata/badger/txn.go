package badger

import (
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/marmos91/synkerd/pkg/metadata"
)

// maxPathDepth bounds parent-chain walks. A chain longer than this means the
// database is corrupt.
const maxPathDepth = 4096

// getNodeTxn loads a node row (including tombstones).
func getNodeTxn(txn *badger.Txn, id uuid.UUID) (*metadata.FileNode, error) {
	val, err := getValue(txn, keyNode(id))
	if err == badger.ErrKeyNotFound {
		return nil, metadata.NewError(metadata.ErrNotFound, "node not found", id.String())
	}
	if err != nil {
		return nil, err
	}
	return decodeNode(val)
}

// getLiveNodeTxn loads a node row and treats tombstones as not found.
func getLiveNodeTxn(txn *badger.Txn, id uuid.UUID) (*metadata.FileNode, error) {
	node, err := getNodeTxn(txn, id)
	if err != nil {
		return nil, err
	}
	if node.Deleted {
		return nil, metadata.NewError(metadata.ErrNotFound, "node not found", id.String())
	}
	return node, nil
}

// childTxn resolves a live (parent, name) entry to a node id.
func childTxn(txn *badger.Txn, parentID uuid.UUID, name string) (uuid.UUID, bool, error) {
	val, err := getValue(txn, keyChild(parentID, name))
	if err == badger.ErrKeyNotFound {
		return uuid.Nil, false, nil
	}
	if err != nil {
		return uuid.Nil, false, err
	}
	id, err := uuid.Parse(string(val))
	if err != nil {
		return uuid.Nil, false, err
	}
	return id, true, nil
}

// nodePathTxn derives the canonical path of a node by walking parent links.
func nodePathTxn(txn *badger.Txn, id uuid.UUID) (string, error) {
	segments := make([]string, 0, 8)

	current, err := getNodeTxn(txn, id)
	if err != nil {
		return "", err
	}

	for depth := 0; current.ParentID != nil; depth++ {
		if depth >= maxPathDepth {
			return "", metadata.NewError(metadata.ErrInvalidArgument,
				"parent chain too deep or cyclic", id.String())
		}
		segments = append(segments, current.Name)

		parent, err := getNodeTxn(txn, *current.ParentID)
		if err != nil {
			return "", metadata.NewError(metadata.ErrNotFound, "broken parent chain", id.String())
		}
		current = parent
	}

	if len(segments) == 0 {
		return "/", nil
	}

	var b []byte
	for i := len(segments) - 1; i >= 0; i-- {
		b = append(b, '/')
		b = append(b, segments[i]...)
	}
	return string(b), nil
}

// cursorTxn reads a BE8 cursor value, defaulting to zero when absent.
func cursorTxn(txn *badger.Txn, key []byte) (metadata.Cursor, error) {
	val, err := getValue(txn, key)
	if err == badger.ErrKeyNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return decodeCursor(val), nil
}

// appendChangeTxn assigns the next sequence number, writes the log entry and
// advances the head. The returned op is published after the transaction
// commits.
func appendChangeTxn(
	txn *badger.Txn,
	changeType metadata.ChangeType,
	node *metadata.FileNode,
	path, oldPath, origin string,
) (metadata.ChangeOp, error) {
	head, err := cursorTxn(txn, keyHead(node.OwnerID))
	if err != nil {
		return metadata.ChangeOp{}, err
	}

	op := metadata.ChangeOp{
		Seq:       head + 1,
		Type:      changeType,
		NodeID:    node.ID,
		UserID:    node.OwnerID,
		Path:      path,
		OldPath:   oldPath,
		Origin:    origin,
		Timestamp: time.Now(),
	}
	if changeType != metadata.ChangeDeleted {
		snapshot := *node
		op.Node = &snapshot
	}

	if err := setJSON(txn, keyLog(node.OwnerID, op.Seq), &op); err != nil {
		return metadata.ChangeOp{}, err
	}
	if err := txn.Set(keyHead(node.OwnerID), encodeCursor(op.Seq)); err != nil {
		return metadata.ChangeOp{}, err
	}
	return op, nil
}
