package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/marmos91/synkerd/pkg/metadata"
)

// PutUser creates or refreshes a mirrored user row.
//
// On first insert the user's tree and root directory node are created. The
// root is server-side bookkeeping, not a client-visible change, so no
// change-log entry is emitted for it.
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

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()

	if existing, ok := s.users[user.ID]; ok {
		existing.Email = user.Email
		existing.Permissions = append([]string(nil), user.Permissions...)
		existing.Active = user.Active
		existing.LastLogin = user.LastLogin
		return nil
	}

	stored := copyUser(user)
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	s.users[user.ID] = stored
	s.usersByName[user.Username] = user.ID

	root := &metadata.FileNode{
		ID:         uuid.New(),
		OwnerID:    user.ID,
		Dir:        true,
		MimeType:   "inode/directory",
		CreatedAt:  now,
		ModifiedAt: now,
		Perm:       metadata.OwnerPermissions(),
	}
	s.trees[user.ID] = &tree{
		root:     root.ID,
		nodes:    map[uuid.UUID]*metadata.FileNode{root.ID: root},
		children: map[uuid.UUID]map[string]uuid.UUID{root.ID: {}},
		sessions: make(map[string]*metadata.SyncSession),
	}
	s.owners[root.ID] = user.ID

	return nil
}

// GetUser retrieves a mirrored user by id.
func (s *Store) GetUser(ctx context.Context, id uuid.UUID) (*metadata.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[id]
	if !ok {
		return nil, metadata.NewError(metadata.ErrNotFound, "user not found", id.String())
	}
	return copyUser(user), nil
}

// GetUserByUsername retrieves a mirrored user by external username.
func (s *Store) GetUserByUsername(ctx context.Context, username string) (*metadata.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.usersByName[username]
	if !ok {
		return nil, metadata.NewError(metadata.ErrNotFound, "user not found", username)
	}
	return copyUser(s.users[id]), nil
}

// GetUserRoot returns the id of the user's root directory node.
func (s *Store) GetUserRoot(ctx context.Context, userID uuid.UUID) (uuid.UUID, error) {
	if err := ctx.Err(); err != nil {
		return uuid.Nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.trees[userID]
	if !ok {
		return uuid.Nil, metadata.NewError(metadata.ErrNotFound, "user not found", userID.String())
	}
	return t.root, nil
}

// ListUsers returns all mirrored users ordered by username.
func (s *Store) ListUsers(ctx context.Context) ([]metadata.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]metadata.User, 0, len(s.users))
	for _, user := range s.users {
		users = append(users, *copyUser(user))
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Username < users[j].Username })

	return users, nil
}
