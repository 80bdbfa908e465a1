package memory

import (
	"testing"

	"github.com/marmos91/synkerd/pkg/content"
	contenttesting "github.com/marmos91/synkerd/pkg/content/testing"
)

func TestMemoryContentStore(t *testing.T) {
	suite := &contenttesting.StoreTestSuite{
		NewStore: func() content.WritableContentStore {
			return NewStore()
		},
	}
	suite.Run(t)
}
