package testing

import (
	"context"
	"testing"

	"github.com/marmos91/synkerd/pkg/metadata"
	"github.com/stretchr/testify/require"
)

// RunChangeLogTests executes all change-log tests.
func (suite *StoreTestSuite) RunChangeLogTests(t *testing.T) {
	t.Run("SequenceIsMonotonic", suite.testChangeLogSequenceIsMonotonic)
	t.Run("PerUserIsolation", suite.testChangeLogPerUserIsolation)
	t.Run("ChangesSinceCursor", suite.testChangesSinceCursor)
	t.Run("Trim", suite.testChangeLogTrim)
	t.Run("TrimPrunesTombstones", suite.testChangeLogTrimPrunesTombstones)
	t.Run("ErrorCursorBeyondHead", suite.testChangesSinceErrorCursorBeyondHead)
}

func (suite *StoreTestSuite) testChangeLogSequenceIsMonotonic(t *testing.T) {
	store := suite.NewStore()
	defer store.Close()

	userID, rootID := createTestUser(t, store, "alice")
	createTestFile(t, store, userID, rootID, "a.txt")
	createTestFile(t, store, userID, rootID, "b.txt")
	createTestDir(t, store, userID, rootID, "docs")

	ops, head, err := store.ChangesSince(context.Background(), userID, 0)
	require.NoError(t, err)
	require.Len(t, ops, 3)
	require.Equal(t, metadata.Cursor(3), head)

	for i, op := range ops {
		require.Equal(t, metadata.Cursor(i+1), op.Seq)
		require.Equal(t, metadata.ChangeCreated, op.Type)
		require.Equal(t, userID, op.UserID)
	}
}

func (suite *StoreTestSuite) testChangeLogPerUserIsolation(t *testing.T) {
	store := suite.NewStore()
	defer store.Close()

	aliceID, aliceRoot := createTestUser(t, store, "alice")
	bobID, bobRoot := createTestUser(t, store, "bob")

	createTestFile(t, store, aliceID, aliceRoot, "alice.txt")
	createTestFile(t, store, bobID, bobRoot, "bob.txt")

	aliceOps, aliceHead, err := store.ChangesSince(context.Background(), aliceID, 0)
	require.NoError(t, err)
	require.Len(t, aliceOps, 1)
	require.Equal(t, metadata.Cursor(1), aliceHead)
	require.Equal(t, "/alice.txt", aliceOps[0].Path)

	bobOps, _, err := store.ChangesSince(context.Background(), bobID, 0)
	require.NoError(t, err)
	require.Len(t, bobOps, 1)
	require.Equal(t, "/bob.txt", bobOps[0].Path)
}

func (suite *StoreTestSuite) testChangesSinceCursor(t *testing.T) {
	store := suite.NewStore()
	defer store.Close()

	userID, rootID := createTestUser(t, store, "alice")
	createTestFile(t, store, userID, rootID, "a.txt")
	createTestFile(t, store, userID, rootID, "b.txt")
	createTestFile(t, store, userID, rootID, "c.txt")

	ops, head, err := store.ChangesSince(context.Background(), userID, 2)
	require.NoError(t, err)
	require.Len(t, ops, 1)
	require.Equal(t, "/c.txt", ops[0].Path)
	require.Equal(t, metadata.Cursor(3), head)

	// Reading at the head returns nothing new.
	ops, head, err = store.ChangesSince(context.Background(), userID, head)
	require.NoError(t, err)
	require.Empty(t, ops)
	require.Equal(t, metadata.Cursor(3), head)
}

func (suite *StoreTestSuite) testChangeLogTrim(t *testing.T) {
	store := suite.NewStore()
	defer store.Close()

	userID, rootID := createTestUser(t, store, "alice")
	createTestFile(t, store, userID, rootID, "a.txt")
	createTestFile(t, store, userID, rootID, "b.txt")
	createTestFile(t, store, userID, rootID, "c.txt")

	require.NoError(t, store.TrimChangeLog(context.Background(), userID, 2))

	// A cursor before the trim point is expired.
	_, _, err := store.ChangesSince(context.Background(), userID, 1)
	AssertErrorCode(t, metadata.ErrCursorExpired, err)

	// The trim point itself is still a valid cursor.
	ops, head, err := store.ChangesSince(context.Background(), userID, 2)
	require.NoError(t, err)
	require.Len(t, ops, 1)
	require.Equal(t, metadata.Cursor(3), ops[0].Seq)
	require.Equal(t, metadata.Cursor(3), head)

	// Trimming is idempotent and never moves backwards.
	require.NoError(t, store.TrimChangeLog(context.Background(), userID, 1))
	_, _, err = store.ChangesSince(context.Background(), userID, 2)
	require.NoError(t, err)
}

func (suite *StoreTestSuite) testChangeLogTrimPrunesTombstones(t *testing.T) {
	store := suite.NewStore()
	defer store.Close()

	userID, rootID := createTestUser(t, store, "alice")
	fileID := createTestFile(t, store, userID, rootID, "a.txt")
	require.NoError(t, store.DeleteNode(context.Background(), fileID, false, ""))

	head, err := store.LatestCursor(context.Background(), userID)
	require.NoError(t, err)
	require.NoError(t, store.TrimChangeLog(context.Background(), userID, head))

	// Once the deletion entry is trimmed, the tombstone row is gone too.
	_, err = store.GetNode(context.Background(), fileID)
	AssertErrorCode(t, metadata.ErrNotFound, err)
}

func (suite *StoreTestSuite) testChangesSinceErrorCursorBeyondHead(t *testing.T) {
	store := suite.NewStore()
	defer store.Close()

	userID, rootID := createTestUser(t, store, "alice")
	createTestFile(t, store, userID, rootID, "a.txt")

	_, _, err := store.ChangesSince(context.Background(), userID, 99)
	AssertErrorCode(t, metadata.ErrInvalidArgument, err)
}
