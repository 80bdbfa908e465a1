package testing

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/marmos91/synkerd/pkg/metadata"
	"github.com/stretchr/testify/require"
)

// RunRemoveTests executes all deletion tests.
func (suite *StoreTestSuite) RunRemoveTests(t *testing.T) {
	t.Run("DeleteFile", suite.testDeleteFile)
	t.Run("DeleteFreesName", suite.testDeleteFreesName)
	t.Run("RecursiveChildrenFirst", suite.testDeleteRecursiveChildrenFirst)
	t.Run("RevokesShareLinks", suite.testDeleteRevokesShareLinks)
	t.Run("ErrorNotEmpty", suite.testDeleteErrorNotEmpty)
	t.Run("ErrorRoot", suite.testDeleteErrorRoot)
	t.Run("ErrorNotFound", suite.testDeleteErrorNotFound)
	t.Run("ErrorAlreadyDeleted", suite.testDeleteErrorAlreadyDeleted)
}

func (suite *StoreTestSuite) testDeleteFile(t *testing.T) {
	store := suite.NewStore()
	defer store.Close()

	userID, rootID := createTestUser(t, store, "alice")
	fileID := createTestFile(t, store, userID, rootID, "notes.txt")

	err := store.DeleteNode(context.Background(), fileID, false, "laptop")
	require.NoError(t, err)

	// The tombstone is still resolvable by id.
	node, err := store.GetNode(context.Background(), fileID)
	require.NoError(t, err)
	require.True(t, node.Deleted)

	// But invisible to namespace operations.
	_, err = store.ResolvePath(context.Background(), userID, "/notes.txt")
	AssertErrorCode(t, metadata.ErrNotFound, err)

	children, err := store.ListChildren(context.Background(), rootID)
	require.NoError(t, err)
	require.Empty(t, children)

	ops, _, err := store.ChangesSince(context.Background(), userID, 0)
	require.NoError(t, err)
	last := ops[len(ops)-1]
	require.Equal(t, metadata.ChangeDeleted, last.Type)
	require.Equal(t, fileID, last.NodeID)
	require.Nil(t, last.Node)
}

func (suite *StoreTestSuite) testDeleteFreesName(t *testing.T) {
	store := suite.NewStore()
	defer store.Close()

	userID, rootID := createTestUser(t, store, "alice")
	oldID := createTestFile(t, store, userID, rootID, "notes.txt")

	require.NoError(t, store.DeleteNode(context.Background(), oldID, false, ""))

	newID := createTestFile(t, store, userID, rootID, "notes.txt")
	require.NotEqual(t, oldID, newID)

	resolved, err := store.ResolvePath(context.Background(), userID, "/notes.txt")
	require.NoError(t, err)
	require.Equal(t, newID, resolved)
}

func (suite *StoreTestSuite) testDeleteRecursiveChildrenFirst(t *testing.T) {
	store := suite.NewStore()
	defer store.Close()

	userID, rootID := createTestUser(t, store, "alice")
	docsID := createTestDir(t, store, userID, rootID, "docs")
	workID := createTestDir(t, store, userID, docsID, "work")
	fileID := createTestFile(t, store, userID, workID, "report.pdf")

	head, err := store.LatestCursor(context.Background(), userID)
	require.NoError(t, err)

	err = store.DeleteNode(context.Background(), docsID, true, "")
	require.NoError(t, err)

	ops, _, err := store.ChangesSince(context.Background(), userID, head)
	require.NoError(t, err)
	require.Len(t, ops, 3)

	// Children are logged before their parents.
	require.Equal(t, fileID, ops[0].NodeID)
	require.Equal(t, workID, ops[1].NodeID)
	require.Equal(t, docsID, ops[2].NodeID)
	for _, op := range ops {
		require.Equal(t, metadata.ChangeDeleted, op.Type)
	}
}

func (suite *StoreTestSuite) testDeleteRevokesShareLinks(t *testing.T) {
	store := suite.NewStore()
	defer store.Close()

	userID, rootID := createTestUser(t, store, "alice")
	docsID := createTestDir(t, store, userID, rootID, "docs")
	fileID := createTestFile(t, store, userID, docsID, "report.pdf")

	require.NoError(t, store.CreateShareLink(context.Background(), &metadata.ShareLink{
		Token:     "tok-report",
		FileID:    fileID,
		CreatedBy: userID,
	}))

	require.NoError(t, store.DeleteNode(context.Background(), docsID, true, ""))

	_, err := store.GetShareLink(context.Background(), "tok-report")
	AssertErrorCode(t, metadata.ErrNotFound, err)
}

func (suite *StoreTestSuite) testDeleteErrorNotEmpty(t *testing.T) {
	store := suite.NewStore()
	defer store.Close()

	userID, rootID := createTestUser(t, store, "alice")
	docsID := createTestDir(t, store, userID, rootID, "docs")
	createTestFile(t, store, userID, docsID, "report.pdf")

	err := store.DeleteNode(context.Background(), docsID, false, "")
	AssertErrorCode(t, metadata.ErrNotEmpty, err)
}

func (suite *StoreTestSuite) testDeleteErrorRoot(t *testing.T) {
	store := suite.NewStore()
	defer store.Close()

	_, rootID := createTestUser(t, store, "alice")

	err := store.DeleteNode(context.Background(), rootID, true, "")
	AssertErrorCode(t, metadata.ErrInvalidArgument, err)
}

func (suite *StoreTestSuite) testDeleteErrorNotFound(t *testing.T) {
	store := suite.NewStore()
	defer store.Close()

	createTestUser(t, store, "alice")

	err := store.DeleteNode(context.Background(), uuid.New(), false, "")
	AssertErrorCode(t, metadata.ErrNotFound, err)
}

func (suite *StoreTestSuite) testDeleteErrorAlreadyDeleted(t *testing.T) {
	store := suite.NewStore()
	defer store.Close()

	userID, rootID := createTestUser(t, store, "alice")
	fileID := createTestFile(t, store, userID, rootID, "notes.txt")

	require.NoError(t, store.DeleteNode(context.Background(), fileID, false, ""))

	err := store.DeleteNode(context.Background(), fileID, false, "")
	AssertErrorCode(t, metadata.ErrNotFound, err)
}
