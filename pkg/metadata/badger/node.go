package badger

import (
	"context"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/marmos91/synkerd/pkg/metadata"
)

// CreateNode inserts a new file or directory under node.ParentID.
//
// This uses a BadgerDB write transaction so the node row, the child index
// entry and the change-log entry commit atomically.
func (s *Store) CreateNode(ctx context.Context, node *metadata.FileNode, origin string) (uuid.UUID, error) {
	if err := ctx.Err(); err != nil {
		return uuid.Nil, err
	}
	if err := metadata.ValidateName(node.Name); err != nil {
		return uuid.Nil, err
	}
	if node.ParentID == nil {
		return uuid.Nil, metadata.NewError(metadata.ErrInvalidParent, "parent id required", node.Name)
	}

	var op metadata.ChangeOp

	err := s.update(func(txn *badger.Txn) error {
		parent, err := getNodeTxn(txn, *node.ParentID)
		if err != nil || parent.Deleted {
			return metadata.NewError(metadata.ErrInvalidParent, "parent does not exist", node.Name)
		}
		if !parent.Dir {
			return metadata.NewError(metadata.ErrInvalidParent, "parent is not a directory", node.Name)
		}
		if parent.OwnerID != node.OwnerID {
			return metadata.NewError(metadata.ErrInvalidParent, "parent belongs to another user", node.Name)
		}

		if _, exists, err := childTxn(txn, parent.ID, node.Name); err != nil {
			return err
		} else if exists {
			return metadata.NewError(metadata.ErrNameConflict, "name already exists in directory", node.Name)
		}

		now := time.Now()
		stored := *node
		if stored.ID == uuid.Nil {
			stored.ID = uuid.New()
		}
		stored.CreatedAt = now
		stored.ModifiedAt = now
		stored.Deleted = false
		if stored.Perm == (metadata.FilePermissions{}) {
			stored.Perm = metadata.OwnerPermissions()
		}
		if stored.Dir {
			stored.Size = 0
			stored.Checksum = ""
			stored.ContentRef = ""
			if stored.MimeType == "" {
				stored.MimeType = "inode/directory"
			}
		}
		node.ID = stored.ID

		if err := setJSON(txn, keyNode(stored.ID), &stored); err != nil {
			return err
		}
		if err := txn.Set(keyChild(parent.ID, stored.Name), []byte(stored.ID.String())); err != nil {
			return err
		}

		path, err := nodePathTxn(txn, stored.ID)
		if err != nil {
			return err
		}
		op, err = appendChangeTxn(txn, metadata.ChangeCreated, &stored, path, "", origin)
		return err
	})
	if err != nil {
		return uuid.Nil, err
	}

	s.publish([]metadata.ChangeOp{op})
	return node.ID, nil
}

// GetNode retrieves a node by id, including tombstones.
func (s *Store) GetNode(ctx context.Context, id uuid.UUID) (*metadata.FileNode, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var node *metadata.FileNode
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		node, err = getNodeTxn(txn, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return node, nil
}

// NodePath derives the canonical path of a node by walking parent links.
func (s *Store) NodePath(ctx context.Context, id uuid.UUID) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	var path string
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		path, err = nodePathTxn(txn, id)
		return err
	})
	return path, err
}

// ResolvePath resolves a canonical path to a live node id within one user's
// tree.
func (s *Store) ResolvePath(ctx context.Context, userID uuid.UUID, path string) (uuid.UUID, error) {
	if err := ctx.Err(); err != nil {
		return uuid.Nil, err
	}

	segments, err := metadata.SplitPath(path)
	if err != nil {
		return uuid.Nil, err
	}

	var resolved uuid.UUID
	err = s.db.View(func(txn *badger.Txn) error {
		val, err := getValue(txn, keyRoot(userID))
		if err == badger.ErrKeyNotFound {
			return metadata.NewError(metadata.ErrNotFound, "user not found", userID.String())
		}
		if err != nil {
			return err
		}
		current, err := uuid.Parse(string(val))
		if err != nil {
			return err
		}

		for _, segment := range segments {
			next, exists, err := childTxn(txn, current, segment)
			if err != nil {
				return err
			}
			if !exists {
				return metadata.NewError(metadata.ErrNotFound, "path not found", path)
			}
			current = next
		}

		resolved = current
		return nil
	})
	if err != nil {
		return uuid.Nil, err
	}
	return resolved, nil
}

// ListChildren returns the live children of a directory, ordered by name.
//
// The child index keys are "c:<parent>:<name>", so a prefix scan yields the
// children already sorted.
func (s *Store) ListChildren(ctx context.Context, parentID uuid.UUID) ([]metadata.FileNode, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var children []metadata.FileNode
	err := s.db.View(func(txn *badger.Txn) error {
		parent, err := getNodeTxn(txn, parentID)
		if err != nil || parent.Deleted {
			return metadata.NewError(metadata.ErrNotFound, "directory not found", parentID.String())
		}
		if !parent.Dir {
			return metadata.NewError(metadata.ErrNotDirectory, "node is not a directory", parent.Name)
		}

		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefixChildren(parentID)
		it := txn.NewIterator(opts)
		defer it.Close()

		children = make([]metadata.FileNode, 0, 16)
		for it.Rewind(); it.Valid(); it.Next() {
			val, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			childID, err := uuid.Parse(string(val))
			if err != nil {
				return err
			}
			child, err := getNodeTxn(txn, childID)
			if err != nil {
				return err
			}
			children = append(children, *child)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return children, nil
}

// ReplaceContent atomically swaps a file's content metadata.
func (s *Store) ReplaceContent(
	ctx context.Context,
	id uuid.UUID,
	size uint64,
	checksum, contentRef, mimeType string,
	origin string,
) (*metadata.FileNode, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var op metadata.ChangeOp
	var updated *metadata.FileNode

	err := s.update(func(txn *badger.Txn) error {
		node, err := getLiveNodeTxn(txn, id)
		if err != nil {
			return err
		}
		if node.Dir {
			return metadata.NewError(metadata.ErrIsDirectory, "cannot replace directory content", node.Name)
		}

		node.Size = size
		node.Checksum = checksum
		node.ContentRef = contentRef
		if mimeType != "" {
			node.MimeType = mimeType
		}
		node.ModifiedAt = time.Now()

		if err := setJSON(txn, keyNode(id), node); err != nil {
			return err
		}

		path, err := nodePathTxn(txn, id)
		if err != nil {
			return err
		}
		op, err = appendChangeTxn(txn, metadata.ChangeModified, node, path, "", origin)
		updated = node
		return err
	})
	if err != nil {
		return nil, err
	}

	s.publish([]metadata.ChangeOp{op})
	return updated, nil
}
