package testing

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/marmos91/synkerd/pkg/metadata"
	"github.com/stretchr/testify/require"
)

// RunUserTests executes all user mirroring tests.
func (suite *StoreTestSuite) RunUserTests(t *testing.T) {
	t.Run("PutCreatesRoot", suite.testPutUserCreatesRoot)
	t.Run("PutIsUpsert", suite.testPutUserIsUpsert)
	t.Run("GetByUsername", suite.testGetUserByUsername)
	t.Run("ErrorEmptyUsername", suite.testPutUserErrorEmptyUsername)
	t.Run("ErrorUnknownUser", suite.testGetUserErrorUnknown)
	t.Run("List", suite.testListUsers)
}

func (suite *StoreTestSuite) testPutUserCreatesRoot(t *testing.T) {
	store := suite.NewStore()
	defer store.Close()

	userID, rootID := createTestUser(t, store, "alice")

	root, err := store.GetNode(context.Background(), rootID)
	require.NoError(t, err)
	require.True(t, root.Dir)
	require.Nil(t, root.ParentID)
	require.Equal(t, userID, root.OwnerID)

	// The root is server bookkeeping, not a synced change.
	head, err := store.LatestCursor(context.Background(), userID)
	require.NoError(t, err)
	require.Equal(t, metadata.Cursor(0), head)

	path, err := store.NodePath(context.Background(), rootID)
	require.NoError(t, err)
	require.Equal(t, "/", path)
}

func (suite *StoreTestSuite) testPutUserIsUpsert(t *testing.T) {
	store := suite.NewStore()
	defer store.Close()

	userID, rootID := createTestUser(t, store, "alice")

	updated := &metadata.User{
		ID:       userID,
		Username: "alice",
		Email:    "new@example.com",
		Active:   false,
	}
	require.NoError(t, store.PutUser(context.Background(), updated))

	user, err := store.GetUser(context.Background(), userID)
	require.NoError(t, err)
	require.Equal(t, "new@example.com", user.Email)
	require.False(t, user.Active)

	// The root survives re-registration.
	root, err := store.GetUserRoot(context.Background(), userID)
	require.NoError(t, err)
	require.Equal(t, rootID, root)
}

func (suite *StoreTestSuite) testGetUserByUsername(t *testing.T) {
	store := suite.NewStore()
	defer store.Close()

	userID, _ := createTestUser(t, store, "alice")

	user, err := store.GetUserByUsername(context.Background(), "alice")
	require.NoError(t, err)
	require.Equal(t, userID, user.ID)

	_, err = store.GetUserByUsername(context.Background(), "nobody")
	AssertErrorCode(t, metadata.ErrNotFound, err)
}

func (suite *StoreTestSuite) testPutUserErrorEmptyUsername(t *testing.T) {
	store := suite.NewStore()
	defer store.Close()

	err := store.PutUser(context.Background(), &metadata.User{ID: uuid.New()})
	AssertErrorCode(t, metadata.ErrInvalidArgument, err)
}

func (suite *StoreTestSuite) testGetUserErrorUnknown(t *testing.T) {
	store := suite.NewStore()
	defer store.Close()

	_, err := store.GetUser(context.Background(), uuid.New())
	AssertErrorCode(t, metadata.ErrNotFound, err)

	_, err = store.GetUserRoot(context.Background(), uuid.New())
	AssertErrorCode(t, metadata.ErrNotFound, err)
}

func (suite *StoreTestSuite) testListUsers(t *testing.T) {
	store := suite.NewStore()
	defer store.Close()

	createTestUser(t, store, "carol")
	createTestUser(t, store, "alice")
	createTestUser(t, store, "bob")

	users, err := store.ListUsers(context.Background())
	require.NoError(t, err)
	require.Len(t, users, 3)
	require.Equal(t, "alice", users[0].Username)
	require.Equal(t, "bob", users[1].Username)
	require.Equal(t, "carol", users[2].Username)
}
