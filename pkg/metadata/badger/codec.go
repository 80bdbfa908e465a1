package badger

import (
	"encoding/json"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/marmos91/synkerd/pkg/metadata"
)

// Values are JSON. Metadata records are small and infrequent relative to
// content IO, so readability wins over a binary codec here.

func encodeJSON(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode record: %w", err)
	}
	return data, nil
}

func decodeUser(val []byte) (*metadata.User, error) {
	var user metadata.User
	if err := json.Unmarshal(val, &user); err != nil {
		return nil, fmt.Errorf("failed to decode user record: %w", err)
	}
	return &user, nil
}

func decodeNode(val []byte) (*metadata.FileNode, error) {
	var node metadata.FileNode
	if err := json.Unmarshal(val, &node); err != nil {
		return nil, fmt.Errorf("failed to decode node record: %w", err)
	}
	return &node, nil
}

func decodeSession(val []byte) (*metadata.SyncSession, error) {
	var session metadata.SyncSession
	if err := json.Unmarshal(val, &session); err != nil {
		return nil, fmt.Errorf("failed to decode session record: %w", err)
	}
	return &session, nil
}

func decodeShareLink(val []byte) (*metadata.ShareLink, error) {
	var link metadata.ShareLink
	if err := json.Unmarshal(val, &link); err != nil {
		return nil, fmt.Errorf("failed to decode share link record: %w", err)
	}
	return &link, nil
}

func decodeOp(val []byte) (metadata.ChangeOp, error) {
	var op metadata.ChangeOp
	if err := json.Unmarshal(val, &op); err != nil {
		return metadata.ChangeOp{}, fmt.Errorf("failed to decode change record: %w", err)
	}
	return op, nil
}

// getValue copies the value stored at key, or returns badger.ErrKeyNotFound.
func getValue(txn *badger.Txn, key []byte) ([]byte, error) {
	item, err := txn.Get(key)
	if err != nil {
		return nil, err
	}
	return item.ValueCopy(nil)
}

// setJSON encodes v and stores it at key.
func setJSON(txn *badger.Txn, key []byte, v any) error {
	data, err := encodeJSON(v)
	if err != nil {
		return err
	}
	return txn.Set(key, data)
}
