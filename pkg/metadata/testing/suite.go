package testing

import (
	"testing"

	"github.com/marmos91/synkerd/pkg/metadata"
)

// StoreTestSuite is a comprehensive test suite for MetadataStore
// implementations. It tests the interface contract, not implementation
// details, making it reusable across different backends (memory, badger).
type StoreTestSuite struct {
	// NewStore is a factory function that creates a fresh MetadataStore
	// instance for each test. This ensures test isolation.
	NewStore func() metadata.MetadataStore
}

// Run executes all tests in the suite.
func (suite *StoreTestSuite) Run(test *testing.T) {
	test.Run("User", suite.RunUserTests)
	test.Run("Node", suite.RunNodeTests)
	test.Run("Move", suite.RunMoveTests)
	test.Run("Remove", suite.RunRemoveTests)
	test.Run("ChangeLog", suite.RunChangeLogTests)
	test.Run("Session", suite.RunSessionTests)
	test.Run("ShareLink", suite.RunShareLinkTests)
	test.Run("Healthcheck", suite.RunHealthcheckTests)
}
