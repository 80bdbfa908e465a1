package testing

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/marmos91/synkerd/pkg/metadata"
	"github.com/stretchr/testify/require"
)

// RunMoveTests executes all move and rename tests.
func (suite *StoreTestSuite) RunMoveTests(t *testing.T) {
	t.Run("RenameInSameDirectory", suite.testMoveRenameInSameDirectory)
	t.Run("MoveToAnotherDirectory", suite.testMoveToAnotherDirectory)
	t.Run("MoveDirectoryKeepsSubtreePaths", suite.testMoveDirectoryKeepsSubtreePaths)
	t.Run("NoOpSameParentSameName", suite.testMoveNoOpSameParentSameName)
	t.Run("ErrorNameConflict", suite.testMoveErrorNameConflict)
	t.Run("ErrorCycle", suite.testMoveErrorCycle)
	t.Run("ErrorMoveRoot", suite.testMoveErrorRoot)
	t.Run("ErrorNotFound", suite.testMoveErrorNotFound)
	t.Run("ChangeEntryCarriesOldPath", suite.testMoveChangeEntryCarriesOldPath)
}

func (suite *StoreTestSuite) testMoveRenameInSameDirectory(t *testing.T) {
	store := suite.NewStore()
	defer store.Close()

	userID, rootID := createTestUser(t, store, "alice")
	fileID := createTestFile(t, store, userID, rootID, "oldname.txt")

	err := store.MoveNode(context.Background(), fileID, rootID, "newname.txt", "")
	require.NoError(t, err)

	_, err = store.ResolvePath(context.Background(), userID, "/oldname.txt")
	AssertErrorCode(t, metadata.ErrNotFound, err)

	resolved, err := store.ResolvePath(context.Background(), userID, "/newname.txt")
	require.NoError(t, err)
	require.Equal(t, fileID, resolved)
}

func (suite *StoreTestSuite) testMoveToAnotherDirectory(t *testing.T) {
	store := suite.NewStore()
	defer store.Close()

	userID, rootID := createTestUser(t, store, "alice")
	dir1 := createTestDir(t, store, userID, rootID, "dir1")
	dir2 := createTestDir(t, store, userID, rootID, "dir2")
	fileID := createTestFile(t, store, userID, dir1, "file.txt")

	err := store.MoveNode(context.Background(), fileID, dir2, "file.txt", "")
	require.NoError(t, err)

	_, err = store.ResolvePath(context.Background(), userID, "/dir1/file.txt")
	AssertErrorCode(t, metadata.ErrNotFound, err)

	resolved, err := store.ResolvePath(context.Background(), userID, "/dir2/file.txt")
	require.NoError(t, err)
	require.Equal(t, fileID, resolved)
}

func (suite *StoreTestSuite) testMoveDirectoryKeepsSubtreePaths(t *testing.T) {
	store := suite.NewStore()
	defer store.Close()

	userID, rootID := createTestUser(t, store, "alice")
	docsID := createTestDir(t, store, userID, rootID, "docs")
	fileID := createTestFile(t, store, userID, docsID, "report.pdf")
	archiveID := createTestDir(t, store, userID, rootID, "archive")

	err := store.MoveNode(context.Background(), docsID, archiveID, "docs-2024", "")
	require.NoError(t, err)

	path, err := store.NodePath(context.Background(), fileID)
	require.NoError(t, err)
	require.Equal(t, "/archive/docs-2024/report.pdf", path)
}

func (suite *StoreTestSuite) testMoveNoOpSameParentSameName(t *testing.T) {
	store := suite.NewStore()
	defer store.Close()

	userID, rootID := createTestUser(t, store, "alice")
	fileID := createTestFile(t, store, userID, rootID, "file.txt")

	headBefore, err := store.LatestCursor(context.Background(), userID)
	require.NoError(t, err)

	err = store.MoveNode(context.Background(), fileID, rootID, "file.txt", "")
	require.NoError(t, err)

	// No-op moves emit no change entry.
	headAfter, err := store.LatestCursor(context.Background(), userID)
	require.NoError(t, err)
	require.Equal(t, headBefore, headAfter)
}

func (suite *StoreTestSuite) testMoveErrorNameConflict(t *testing.T) {
	store := suite.NewStore()
	defer store.Close()

	userID, rootID := createTestUser(t, store, "alice")
	fileID := createTestFile(t, store, userID, rootID, "a.txt")
	createTestFile(t, store, userID, rootID, "b.txt")

	err := store.MoveNode(context.Background(), fileID, rootID, "b.txt", "")
	AssertErrorCode(t, metadata.ErrNameConflict, err)
}

func (suite *StoreTestSuite) testMoveErrorCycle(t *testing.T) {
	store := suite.NewStore()
	defer store.Close()

	userID, rootID := createTestUser(t, store, "alice")
	outerID := createTestDir(t, store, userID, rootID, "outer")
	innerID := createTestDir(t, store, userID, outerID, "inner")

	// Moving a directory under itself is a cycle.
	err := store.MoveNode(context.Background(), outerID, innerID, "outer", "")
	AssertErrorCode(t, metadata.ErrCycleDetected, err)

	err = store.MoveNode(context.Background(), outerID, outerID, "outer", "")
	AssertErrorCode(t, metadata.ErrCycleDetected, err)
}

func (suite *StoreTestSuite) testMoveErrorRoot(t *testing.T) {
	store := suite.NewStore()
	defer store.Close()

	userID, rootID := createTestUser(t, store, "alice")
	dirID := createTestDir(t, store, userID, rootID, "docs")

	err := store.MoveNode(context.Background(), rootID, dirID, "root", "")
	AssertErrorCode(t, metadata.ErrInvalidArgument, err)
}

func (suite *StoreTestSuite) testMoveErrorNotFound(t *testing.T) {
	store := suite.NewStore()
	defer store.Close()

	_, rootID := createTestUser(t, store, "alice")

	err := store.MoveNode(context.Background(), uuid.New(), rootID, "ghost.txt", "")
	AssertErrorCode(t, metadata.ErrNotFound, err)
}

func (suite *StoreTestSuite) testMoveChangeEntryCarriesOldPath(t *testing.T) {
	store := suite.NewStore()
	defer store.Close()

	userID, rootID := createTestUser(t, store, "alice")
	fileID := createTestFile(t, store, userID, rootID, "old.txt")

	head, err := store.LatestCursor(context.Background(), userID)
	require.NoError(t, err)

	err = store.MoveNode(context.Background(), fileID, rootID, "new.txt", "laptop")
	require.NoError(t, err)

	ops, _, err := store.ChangesSince(context.Background(), userID, head)
	require.NoError(t, err)
	require.Len(t, ops, 1)
	require.Equal(t, metadata.ChangeMoved, ops[0].Type)
	require.Equal(t, "/old.txt", ops[0].OldPath)
	require.Equal(t, "/new.txt", ops[0].Path)
	require.Equal(t, "laptop", ops[0].Origin)
	require.NotNil(t, ops[0].Node)
}
