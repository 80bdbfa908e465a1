package testing

import (
	"testing"

	"github.com/marmos91/synkerd/pkg/content"
)

// StoreTestSuite is a test suite for WritableContentStore implementations.
// It tests the interface contract, not implementation details, making it
// reusable across backends (memory, fs, s3).
type StoreTestSuite struct {
	// NewStore is a factory function that creates a fresh store for each
	// test. This ensures test isolation.
	NewStore func() content.WritableContentStore
}

// Run executes all tests in the suite.
func (suite *StoreTestSuite) Run(test *testing.T) {
	test.Run("WriteRead", suite.RunWriteReadTests)
	test.Run("Range", suite.RunRangeTests)
	test.Run("WriteAt", suite.RunWriteAtTests)
	test.Run("Delete", suite.RunDeleteTests)
	test.Run("List", suite.RunListTests)
}
