package memory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/synkerd/pkg/metadata"
	metadatatesting "github.com/marmos91/synkerd/pkg/metadata/testing"
)

func TestMemoryStore(t *testing.T) {
	suite := &metadatatesting.StoreTestSuite{
		NewStore: func() metadata.MetadataStore {
			return NewStore()
		},
	}
	suite.Run(t)
}

// A stalled mutation in one user's tree must not serialize mutations in
// another user's tree.
func TestUnrelatedUsersMutateConcurrently(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	alice := &metadata.User{ID: uuid.New(), Username: "alice", Active: true}
	bob := &metadata.User{ID: uuid.New(), Username: "bob", Active: true}
	require.NoError(t, store.PutUser(ctx, alice))
	require.NoError(t, store.PutUser(ctx, bob))

	bobRoot, err := store.GetUserRoot(ctx, bob.ID)
	require.NoError(t, err)

	// Wedge alice's tree the way a long-running mutation would.
	aliceTree := store.trees[alice.ID]
	aliceTree.mu.Lock()
	defer aliceTree.mu.Unlock()

	done := make(chan error, 1)
	go func() {
		parent := bobRoot
		_, err := store.CreateNode(ctx, &metadata.FileNode{
			OwnerID:  bob.ID,
			ParentID: &parent,
			Name:     "notes.txt",
			MimeType: "text/plain",
		}, "device-b")
		done <- err
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("mutation in one user's tree blocked on another user's lock")
	}
}
