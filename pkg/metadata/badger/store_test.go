package badger

import (
	"context"
	"testing"

	"github.com/marmos91/synkerd/pkg/metadata"
	metadatatesting "github.com/marmos91/synkerd/pkg/metadata/testing"
	"github.com/stretchr/testify/require"
)

func TestBadgerStore(t *testing.T) {
	suite := &metadatatesting.StoreTestSuite{
		NewStore: func() metadata.MetadataStore {
			store, err := NewStore(context.Background(), Config{DBPath: t.TempDir()})
			require.NoError(t, err)
			return store
		},
	}
	suite.Run(t)
}

func TestBadgerStorePersistence(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	store, err := NewStore(ctx, Config{DBPath: dir})
	require.NoError(t, err)

	user := &metadata.User{
		ID:       metadata.DeterministicUserID("alice"),
		Username: "alice",
		Active:   true,
	}
	require.NoError(t, store.PutUser(ctx, user))

	rootID, err := store.GetUserRoot(ctx, user.ID)
	require.NoError(t, err)

	fileID, err := store.CreateNode(ctx, &metadata.FileNode{
		OwnerID:    user.ID,
		ParentID:   &rootID,
		Name:       "persisted.txt",
		Size:       5,
		ContentRef: "blob-1",
	}, "laptop")
	require.NoError(t, err)
	require.NoError(t, store.Close())

	// Reopen and verify everything survived.
	store, err = NewStore(ctx, Config{DBPath: dir})
	require.NoError(t, err)
	defer store.Close()

	resolved, err := store.ResolvePath(ctx, user.ID, "/persisted.txt")
	require.NoError(t, err)
	require.Equal(t, fileID, resolved)

	ops, head, err := store.ChangesSince(ctx, user.ID, 0)
	require.NoError(t, err)
	require.Len(t, ops, 1)
	require.Equal(t, metadata.Cursor(1), head)
	require.Equal(t, "laptop", ops[0].Origin)
	require.NotNil(t, ops[0].Node)
	require.Equal(t, "blob-1", ops[0].Node.ContentRef)
}
