package badger

import (
	"context"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/marmos91/synkerd/pkg/metadata"
)

// RegisterSession creates or reactivates the session for a (user, device)
// pair. Existing sessions keep their cursor.
func (s *Store) RegisterSession(ctx context.Context, session *metadata.SyncSession) (*metadata.SyncSession, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if session.DeviceID == "" {
		return nil, metadata.NewError(metadata.ErrInvalidArgument, "empty device id", "")
	}

	var result *metadata.SyncSession
	err := s.update(func(txn *badger.Txn) error {
		if _, err := getValue(txn, keyUser(session.UserID)); err == badger.ErrKeyNotFound {
			return metadata.NewError(metadata.ErrNotFound, "user not found", session.UserID.String())
		} else if err != nil {
			return err
		}

		now := time.Now()
		key := keySession(session.UserID, session.DeviceID)

		if val, err := getValue(txn, key); err == nil {
			existing, err := decodeSession(val)
			if err != nil {
				return err
			}
			existing.DeviceName = session.DeviceName
			existing.SyncFolders = append([]string(nil), session.SyncFolders...)
			existing.Active = true
			existing.LastSync = now
			result = existing
			return setJSON(txn, key, existing)
		} else if err != badger.ErrKeyNotFound {
			return err
		}

		stored := *session
		stored.SyncFolders = append([]string(nil), session.SyncFolders...)
		stored.Cursor = 0
		stored.Active = true
		stored.LastSync = now
		result = &stored
		return setJSON(txn, key, &stored)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// GetSession retrieves the session for a (user, device) pair.
func (s *Store) GetSession(ctx context.Context, userID uuid.UUID, deviceID string) (*metadata.SyncSession, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var session *metadata.SyncSession
	err := s.db.View(func(txn *badger.Txn) error {
		val, err := getValue(txn, keySession(userID, deviceID))
		if err == badger.ErrKeyNotFound {
			return metadata.NewError(metadata.ErrNotFound, "session not found", deviceID)
		}
		if err != nil {
			return err
		}
		session, err = decodeSession(val)
		return err
	})
	if err != nil {
		return nil, err
	}
	return session, nil
}

// ListSessions returns all sessions of a user, ordered by device id.
func (s *Store) ListSessions(ctx context.Context, userID uuid.UUID) ([]metadata.SyncSession, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var sessions []metadata.SyncSession
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefixSessions(userID)
		it := txn.NewIterator(opts)
		defer it.Close()

		sessions = make([]metadata.SyncSession, 0, 4)
		for it.Rewind(); it.Valid(); it.Next() {
			val, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			session, err := decodeSession(val)
			if err != nil {
				return err
			}
			sessions = append(sessions, *session)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sessions, nil
}

// AdvanceCursor moves a session's cursor forward.
func (s *Store) AdvanceCursor(ctx context.Context, userID uuid.UUID, deviceID string, cursor metadata.Cursor) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.update(func(txn *badger.Txn) error {
		key := keySession(userID, deviceID)
		val, err := getValue(txn, key)
		if err == badger.ErrKeyNotFound {
			return metadata.NewError(metadata.ErrNotFound, "session not found", deviceID)
		}
		if err != nil {
			return err
		}
		session, err := decodeSession(val)
		if err != nil {
			return err
		}

		if cursor < session.Cursor {
			return metadata.NewError(metadata.ErrInvalidArgument, "cursor would move backwards", deviceID)
		}
		head, err := cursorTxn(txn, keyHead(userID))
		if err != nil {
			return err
		}
		if cursor > head {
			return metadata.NewError(metadata.ErrInvalidArgument, "cursor beyond change log head", deviceID)
		}

		session.Cursor = cursor
		session.LastSync = time.Now()
		return setJSON(txn, key, session)
	})
}

// DeactivateSession marks a session inactive. Idempotent.
func (s *Store) DeactivateSession(ctx context.Context, userID uuid.UUID, deviceID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.update(func(txn *badger.Txn) error {
		key := keySession(userID, deviceID)
		val, err := getValue(txn, key)
		if err == badger.ErrKeyNotFound {
			return metadata.NewError(metadata.ErrNotFound, "session not found", deviceID)
		}
		if err != nil {
			return err
		}
		session, err := decodeSession(val)
		if err != nil {
			return err
		}

		session.Active = false
		return setJSON(txn, key, session)
	})
}
