package testing

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/marmos91/synkerd/pkg/metadata"
	"github.com/stretchr/testify/require"
)

// RunNodeTests executes all node creation, lookup and listing tests.
func (suite *StoreTestSuite) RunNodeTests(t *testing.T) {
	t.Run("CreateFile", suite.testCreateFile)
	t.Run("CreateNested", suite.testCreateNested)
	t.Run("ErrorNameConflict", suite.testCreateErrorNameConflict)
	t.Run("ErrorInvalidName", suite.testCreateErrorInvalidName)
	t.Run("ErrorFileParent", suite.testCreateErrorFileParent)
	t.Run("ErrorForeignParent", suite.testCreateErrorForeignParent)
	t.Run("ResolvePath", suite.testResolvePath)
	t.Run("PathRoundTrip", suite.testPathRoundTrip)
	t.Run("ListChildrenOrdered", suite.testListChildrenOrdered)
	t.Run("ReplaceContent", suite.testReplaceContent)
	t.Run("ErrorReplaceDirectory", suite.testReplaceContentErrorDirectory)
}

func (suite *StoreTestSuite) testCreateFile(t *testing.T) {
	store := suite.NewStore()
	defer store.Close()

	userID, rootID := createTestUser(t, store, "alice")
	fileID := createTestFile(t, store, userID, rootID, "notes.txt")

	node, err := store.GetNode(context.Background(), fileID)
	require.NoError(t, err)
	require.Equal(t, "notes.txt", node.Name)
	require.False(t, node.Dir)
	require.False(t, node.Deleted)
	require.Equal(t, metadata.OwnerPermissions(), node.Perm)
	require.False(t, node.CreatedAt.IsZero())

	path, err := store.NodePath(context.Background(), fileID)
	require.NoError(t, err)
	require.Equal(t, "/notes.txt", path)
}

func (suite *StoreTestSuite) testCreateNested(t *testing.T) {
	store := suite.NewStore()
	defer store.Close()

	userID, rootID := createTestUser(t, store, "alice")
	docsID := createTestDir(t, store, userID, rootID, "docs")
	workID := createTestDir(t, store, userID, docsID, "work")
	fileID := createTestFile(t, store, userID, workID, "report.pdf")

	path, err := store.NodePath(context.Background(), fileID)
	require.NoError(t, err)
	require.Equal(t, "/docs/work/report.pdf", path)
}

func (suite *StoreTestSuite) testCreateErrorNameConflict(t *testing.T) {
	store := suite.NewStore()
	defer store.Close()

	userID, rootID := createTestUser(t, store, "alice")
	createTestFile(t, store, userID, rootID, "notes.txt")

	_, err := store.CreateNode(context.Background(), &metadata.FileNode{
		OwnerID:  userID,
		ParentID: &rootID,
		Name:     "notes.txt",
	}, "")
	AssertErrorCode(t, metadata.ErrNameConflict, err)

	// A directory with the same name conflicts too.
	_, err = store.CreateNode(context.Background(), &metadata.FileNode{
		OwnerID:  userID,
		ParentID: &rootID,
		Name:     "notes.txt",
		Dir:      true,
	}, "")
	AssertErrorCode(t, metadata.ErrNameConflict, err)
}

func (suite *StoreTestSuite) testCreateErrorInvalidName(t *testing.T) {
	store := suite.NewStore()
	defer store.Close()

	userID, rootID := createTestUser(t, store, "alice")

	for _, name := range []string{"", ".", "..", "a/b", "nul\x00byte"} {
		_, err := store.CreateNode(context.Background(), &metadata.FileNode{
			OwnerID:  userID,
			ParentID: &rootID,
			Name:     name,
		}, "")
		AssertErrorCode(t, metadata.ErrInvalidArgument, err, "name %q", name)
	}
}

func (suite *StoreTestSuite) testCreateErrorFileParent(t *testing.T) {
	store := suite.NewStore()
	defer store.Close()

	userID, rootID := createTestUser(t, store, "alice")
	fileID := createTestFile(t, store, userID, rootID, "notes.txt")

	_, err := store.CreateNode(context.Background(), &metadata.FileNode{
		OwnerID:  userID,
		ParentID: &fileID,
		Name:     "child.txt",
	}, "")
	AssertErrorCode(t, metadata.ErrInvalidParent, err)
}

func (suite *StoreTestSuite) testCreateErrorForeignParent(t *testing.T) {
	store := suite.NewStore()
	defer store.Close()

	aliceID, aliceRoot := createTestUser(t, store, "alice")
	bobID, _ := createTestUser(t, store, "bob")
	_ = aliceID

	_, err := store.CreateNode(context.Background(), &metadata.FileNode{
		OwnerID:  bobID,
		ParentID: &aliceRoot,
		Name:     "intruder.txt",
	}, "")
	AssertErrorCode(t, metadata.ErrInvalidParent, err)
}

func (suite *StoreTestSuite) testResolvePath(t *testing.T) {
	store := suite.NewStore()
	defer store.Close()

	userID, rootID := createTestUser(t, store, "alice")
	docsID := createTestDir(t, store, userID, rootID, "docs")
	fileID := createTestFile(t, store, userID, docsID, "report.pdf")

	resolved, err := store.ResolvePath(context.Background(), userID, "/docs/report.pdf")
	require.NoError(t, err)
	require.Equal(t, fileID, resolved)

	resolved, err = store.ResolvePath(context.Background(), userID, "/")
	require.NoError(t, err)
	require.Equal(t, rootID, resolved)

	_, err = store.ResolvePath(context.Background(), userID, "/docs/missing.pdf")
	AssertErrorCode(t, metadata.ErrNotFound, err)
}

func (suite *StoreTestSuite) testPathRoundTrip(t *testing.T) {
	store := suite.NewStore()
	defer store.Close()

	userID, rootID := createTestUser(t, store, "alice")
	docsID := createTestDir(t, store, userID, rootID, "docs")
	workID := createTestDir(t, store, userID, docsID, "work")
	fileID := createTestFile(t, store, userID, workID, "report.pdf")

	for _, id := range []uuid.UUID{rootID, docsID, workID, fileID} {
		path, err := store.NodePath(context.Background(), id)
		require.NoError(t, err)

		resolved, err := store.ResolvePath(context.Background(), userID, path)
		require.NoError(t, err)
		require.Equal(t, id, resolved, "round trip through %q", path)
	}
}

func (suite *StoreTestSuite) testListChildrenOrdered(t *testing.T) {
	store := suite.NewStore()
	defer store.Close()

	userID, rootID := createTestUser(t, store, "alice")
	createTestFile(t, store, userID, rootID, "charlie.txt")
	createTestFile(t, store, userID, rootID, "alpha.txt")
	createTestDir(t, store, userID, rootID, "bravo")

	children, err := store.ListChildren(context.Background(), rootID)
	require.NoError(t, err)
	require.Len(t, children, 3)
	require.Equal(t, "alpha.txt", children[0].Name)
	require.Equal(t, "bravo", children[1].Name)
	require.Equal(t, "charlie.txt", children[2].Name)

	fileID := children[0].ID
	_, err = store.ListChildren(context.Background(), fileID)
	AssertErrorCode(t, metadata.ErrNotDirectory, err)
}

func (suite *StoreTestSuite) testReplaceContent(t *testing.T) {
	store := suite.NewStore()
	defer store.Close()

	userID, rootID := createTestUser(t, store, "alice")
	fileID := createTestFile(t, store, userID, rootID, "notes.txt")

	before, err := store.GetNode(context.Background(), fileID)
	require.NoError(t, err)

	updated, err := store.ReplaceContent(context.Background(), fileID,
		11, "aabbcc", "blob-2", "text/markdown", "device-1")
	require.NoError(t, err)
	require.Equal(t, uint64(11), updated.Size)
	require.Equal(t, "aabbcc", updated.Checksum)
	require.Equal(t, "blob-2", updated.ContentRef)
	require.Equal(t, "text/markdown", updated.MimeType)
	require.NotEqual(t, before.ContentRef, updated.ContentRef)

	ops, _, err := store.ChangesSince(context.Background(), userID, 0)
	require.NoError(t, err)
	last := ops[len(ops)-1]
	require.Equal(t, metadata.ChangeModified, last.Type)
	require.Equal(t, fileID, last.NodeID)
	require.Equal(t, "device-1", last.Origin)
}

func (suite *StoreTestSuite) testReplaceContentErrorDirectory(t *testing.T) {
	store := suite.NewStore()
	defer store.Close()

	userID, rootID := createTestUser(t, store, "alice")
	dirID := createTestDir(t, store, userID, rootID, "docs")

	_, err := store.ReplaceContent(context.Background(), dirID, 1, "aa", "blob", "", "")
	AssertErrorCode(t, metadata.ErrIsDirectory, err)
}
