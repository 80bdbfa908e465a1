package memory

import (
	"context"
	"sort"
	"time"

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

	t, ok := s.treeFor(session.UserID)
	if !ok {
		return nil, metadata.NewError(metadata.ErrNotFound, "user not found", session.UserID.String())
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()

	if existing, ok := t.sessions[session.DeviceID]; ok {
		existing.DeviceName = session.DeviceName
		existing.SyncFolders = append([]string(nil), session.SyncFolders...)
		existing.Active = true
		existing.LastSync = now
		return copySession(existing), nil
	}

	stored := copySession(session)
	stored.Cursor = 0
	stored.Active = true
	stored.LastSync = now
	t.sessions[session.DeviceID] = stored

	return copySession(stored), nil
}

// GetSession retrieves the session for a (user, device) pair.
func (s *Store) GetSession(ctx context.Context, userID uuid.UUID, deviceID string) (*metadata.SyncSession, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	t, ok := s.treeFor(userID)
	if !ok {
		return nil, metadata.NewError(metadata.ErrNotFound, "session not found", deviceID)
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	session, ok := t.sessions[deviceID]
	if !ok {
		return nil, metadata.NewError(metadata.ErrNotFound, "session not found", deviceID)
	}
	return copySession(session), nil
}

// ListSessions returns all sessions of a user, ordered by device id.
func (s *Store) ListSessions(ctx context.Context, userID uuid.UUID) ([]metadata.SyncSession, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	t, ok := s.treeFor(userID)
	if !ok {
		return []metadata.SyncSession{}, nil
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	sessions := make([]metadata.SyncSession, 0, len(t.sessions))
	for _, session := range t.sessions {
		sessions = append(sessions, *copySession(session))
	}
	sort.Slice(sessions, func(i, j int) bool { return sessions[i].DeviceID < sessions[j].DeviceID })

	return sessions, nil
}

// AdvanceCursor moves a session's cursor forward. The cursor and the log
// head are checked under the same tree lock.
func (s *Store) AdvanceCursor(ctx context.Context, userID uuid.UUID, deviceID string, cursor metadata.Cursor) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	t, ok := s.treeFor(userID)
	if !ok {
		return metadata.NewError(metadata.ErrNotFound, "session not found", deviceID)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	session, ok := t.sessions[deviceID]
	if !ok {
		return metadata.NewError(metadata.ErrNotFound, "session not found", deviceID)
	}
	if cursor < session.Cursor {
		return metadata.NewError(metadata.ErrInvalidArgument, "cursor would move backwards", deviceID)
	}
	if head := t.latestLocked(); cursor > head {
		return metadata.NewError(metadata.ErrInvalidArgument, "cursor beyond change log head", deviceID)
	}

	session.Cursor = cursor
	session.LastSync = time.Now()
	return nil
}

// DeactivateSession marks a session inactive. Idempotent.
func (s *Store) DeactivateSession(ctx context.Context, userID uuid.UUID, deviceID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	t, ok := s.treeFor(userID)
	if !ok {
		return metadata.NewError(metadata.ErrNotFound, "session not found", deviceID)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	session, ok := t.sessions[deviceID]
	if !ok {
		return metadata.NewError(metadata.ErrNotFound, "session not found", deviceID)
	}

	session.Active = false
	return nil
}
