package testing

import (
	"context"
	"testing"

	"github.com/marmos91/synkerd/pkg/metadata"
	"github.com/stretchr/testify/require"
)

// RunSessionTests executes all sync-session tests.
func (suite *StoreTestSuite) RunSessionTests(t *testing.T) {
	t.Run("Register", suite.testSessionRegister)
	t.Run("ReRegisterKeepsCursor", suite.testSessionReRegisterKeepsCursor)
	t.Run("AdvanceCursor", suite.testSessionAdvanceCursor)
	t.Run("ErrorCursorBackwards", suite.testSessionErrorCursorBackwards)
	t.Run("ErrorCursorBeyondHead", suite.testSessionErrorCursorBeyondHead)
	t.Run("Deactivate", suite.testSessionDeactivate)
	t.Run("List", suite.testSessionList)
}

func (suite *StoreTestSuite) testSessionRegister(t *testing.T) {
	store := suite.NewStore()
	defer store.Close()

	userID, _ := createTestUser(t, store, "alice")
	session := registerTestSession(t, store, userID, "laptop")

	require.Equal(t, metadata.Cursor(0), session.Cursor)
	require.True(t, session.Active)

	fetched, err := store.GetSession(context.Background(), userID, "laptop")
	require.NoError(t, err)
	require.Equal(t, "laptop", fetched.DeviceID)
}

func (suite *StoreTestSuite) testSessionReRegisterKeepsCursor(t *testing.T) {
	store := suite.NewStore()
	defer store.Close()

	userID, rootID := createTestUser(t, store, "alice")
	registerTestSession(t, store, userID, "laptop")
	createTestFile(t, store, userID, rootID, "a.txt")

	require.NoError(t, store.AdvanceCursor(context.Background(), userID, "laptop", 1))

	session, err := store.RegisterSession(context.Background(), &metadata.SyncSession{
		UserID:     userID,
		DeviceID:   "laptop",
		DeviceName: "renamed laptop",
	})
	require.NoError(t, err)
	require.Equal(t, metadata.Cursor(1), session.Cursor)
	require.Equal(t, "renamed laptop", session.DeviceName)
	require.True(t, session.Active)
}

func (suite *StoreTestSuite) testSessionAdvanceCursor(t *testing.T) {
	store := suite.NewStore()
	defer store.Close()

	userID, rootID := createTestUser(t, store, "alice")
	registerTestSession(t, store, userID, "laptop")
	createTestFile(t, store, userID, rootID, "a.txt")
	createTestFile(t, store, userID, rootID, "b.txt")

	require.NoError(t, store.AdvanceCursor(context.Background(), userID, "laptop", 2))

	session, err := store.GetSession(context.Background(), userID, "laptop")
	require.NoError(t, err)
	require.Equal(t, metadata.Cursor(2), session.Cursor)

	// Advancing to the same cursor is a no-op, not an error.
	require.NoError(t, store.AdvanceCursor(context.Background(), userID, "laptop", 2))
}

func (suite *StoreTestSuite) testSessionErrorCursorBackwards(t *testing.T) {
	store := suite.NewStore()
	defer store.Close()

	userID, rootID := createTestUser(t, store, "alice")
	registerTestSession(t, store, userID, "laptop")
	createTestFile(t, store, userID, rootID, "a.txt")
	createTestFile(t, store, userID, rootID, "b.txt")

	require.NoError(t, store.AdvanceCursor(context.Background(), userID, "laptop", 2))

	err := store.AdvanceCursor(context.Background(), userID, "laptop", 1)
	AssertErrorCode(t, metadata.ErrInvalidArgument, err)
}

func (suite *StoreTestSuite) testSessionErrorCursorBeyondHead(t *testing.T) {
	store := suite.NewStore()
	defer store.Close()

	userID, _ := createTestUser(t, store, "alice")
	registerTestSession(t, store, userID, "laptop")

	err := store.AdvanceCursor(context.Background(), userID, "laptop", 5)
	AssertErrorCode(t, metadata.ErrInvalidArgument, err)
}

func (suite *StoreTestSuite) testSessionDeactivate(t *testing.T) {
	store := suite.NewStore()
	defer store.Close()

	userID, _ := createTestUser(t, store, "alice")
	registerTestSession(t, store, userID, "laptop")

	require.NoError(t, store.DeactivateSession(context.Background(), userID, "laptop"))
	require.NoError(t, store.DeactivateSession(context.Background(), userID, "laptop"))

	session, err := store.GetSession(context.Background(), userID, "laptop")
	require.NoError(t, err)
	require.False(t, session.Active)

	err = store.DeactivateSession(context.Background(), userID, "phone")
	AssertErrorCode(t, metadata.ErrNotFound, err)
}

func (suite *StoreTestSuite) testSessionList(t *testing.T) {
	store := suite.NewStore()
	defer store.Close()

	userID, _ := createTestUser(t, store, "alice")
	registerTestSession(t, store, userID, "phone")
	registerTestSession(t, store, userID, "laptop")

	sessions, err := store.ListSessions(context.Background(), userID)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	require.Equal(t, "laptop", sessions[0].DeviceID)
	require.Equal(t, "phone", sessions[1].DeviceID)
}
