package fs

import (
	"context"
	"testing"

	"github.com/marmos91/synkerd/pkg/content"
	contenttesting "github.com/marmos91/synkerd/pkg/content/testing"
	"github.com/stretchr/testify/require"
)

func TestFSContentStore(t *testing.T) {
	suite := &contenttesting.StoreTestSuite{
		NewStore: func() content.WritableContentStore {
			store, err := NewStore(context.Background(), t.TempDir())
			require.NoError(t, err)
			return store
		},
	}
	suite.Run(t)
}
