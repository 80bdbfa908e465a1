package badger

import (
	"context"
	"sort"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/marmos91/synkerd/pkg/metadata"
)

// PutUser creates or refreshes a mirrored user row. On first insert the
// user's root directory node is created without a change-log entry.
func (s *Store) PutUser(ctx context.Context, user *metadata.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if user.Username == "" {
		return metadata.NewError(metadata.ErrInvalidArgument, "empty username", "")
	}
	if user.ID == uuid.Nil {
		return metadata.NewError(metadata.ErrInvalidArgument, "user id required", user.Username)
	}

	return s.update(func(txn *badger.Txn) error {
		now := time.Now()

		if val, err := getValue(txn, keyUser(user.ID)); err == nil {
			existing, err := decodeUser(val)
			if err != nil {
				return err
			}
			existing.Email = user.Email
			existing.Permissions = append([]string(nil), user.Permissions...)
			existing.Active = user.Active
			existing.LastLogin = user.LastLogin
			return setJSON(txn, keyUser(user.ID), existing)
		} else if err != badger.ErrKeyNotFound {
			return err
		}

		stored := *user
		if stored.CreatedAt.IsZero() {
			stored.CreatedAt = now
		}
		if err := setJSON(txn, keyUser(user.ID), &stored); err != nil {
			return err
		}
		if err := txn.Set(keyUsername(user.Username), []byte(user.ID.String())); err != nil {
			return err
		}

		root := &metadata.FileNode{
			ID:         uuid.New(),
			OwnerID:    user.ID,
			Dir:        true,
			MimeType:   "inode/directory",
			CreatedAt:  now,
			ModifiedAt: now,
			Perm:       metadata.OwnerPermissions(),
		}
		if err := setJSON(txn, keyNode(root.ID), root); err != nil {
			return err
		}
		return txn.Set(keyRoot(user.ID), []byte(root.ID.String()))
	})
}

// GetUser retrieves a mirrored user by id.
func (s *Store) GetUser(ctx context.Context, id uuid.UUID) (*metadata.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var user *metadata.User
	err := s.db.View(func(txn *badger.Txn) error {
		val, err := getValue(txn, keyUser(id))
		if err == badger.ErrKeyNotFound {
			return metadata.NewError(metadata.ErrNotFound, "user not found", id.String())
		}
		if err != nil {
			return err
		}
		user, err = decodeUser(val)
		return err
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// GetUserByUsername retrieves a mirrored user by external username.
func (s *Store) GetUserByUsername(ctx context.Context, username string) (*metadata.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var user *metadata.User
	err := s.db.View(func(txn *badger.Txn) error {
		val, err := getValue(txn, keyUsername(username))
		if err == badger.ErrKeyNotFound {
			return metadata.NewError(metadata.ErrNotFound, "user not found", username)
		}
		if err != nil {
			return err
		}

		id, err := uuid.Parse(string(val))
		if err != nil {
			return err
		}

		userVal, err := getValue(txn, keyUser(id))
		if err != nil {
			return err
		}
		user, err = decodeUser(userVal)
		return err
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// GetUserRoot returns the id of the user's root directory node.
func (s *Store) GetUserRoot(ctx context.Context, userID uuid.UUID) (uuid.UUID, error) {
	if err := ctx.Err(); err != nil {
		return uuid.Nil, err
	}

	var root uuid.UUID
	err := s.db.View(func(txn *badger.Txn) error {
		val, err := getValue(txn, keyRoot(userID))
		if err == badger.ErrKeyNotFound {
			return metadata.NewError(metadata.ErrNotFound, "user not found", userID.String())
		}
		if err != nil {
			return err
		}
		root, err = uuid.Parse(string(val))
		return err
	})
	if err != nil {
		return uuid.Nil, err
	}
	return root, nil
}

// ListUsers returns all mirrored users ordered by username.
func (s *Store) ListUsers(ctx context.Context) ([]metadata.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var users []metadata.User
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte("u:")
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			val, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			user, err := decodeUser(val)
			if err != nil {
				return err
			}
			users = append(users, *user)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(users, func(i, j int) bool { return users[i].Username < users[j].Username })
	return users, nil
}
