package testing

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/marmos91/synkerd/pkg/content"
	"github.com/stretchr/testify/require"
)

// RunWriteReadTests executes whole-blob write and read tests.
func (suite *StoreTestSuite) RunWriteReadTests(t *testing.T) {
	t.Run("RoundTrip", suite.testWriteReadRoundTrip)
	t.Run("Overwrite", suite.testWriteOverwrite)
	t.Run("EmptyBlob", suite.testWriteEmptyBlob)
	t.Run("ErrorNotFound", suite.testReadErrorNotFound)
	t.Run("Size", suite.testGetContentSize)
	t.Run("Exists", suite.testContentExists)
}

func (suite *StoreTestSuite) testWriteReadRoundTrip(t *testing.T) {
	store := suite.NewStore()
	ctx := context.Background()

	written, err := store.WriteContent(ctx, "blob-1", strings.NewReader("hello world"))
	require.NoError(t, err)
	require.Equal(t, uint64(11), written)

	reader, err := store.ReadContent(ctx, "blob-1")
	require.NoError(t, err)
	defer reader.Close()

	data, err := io.ReadAll(reader)
	require.NoError(t, err)
	require.Equal(t, "hello world", string(data))
}

func (suite *StoreTestSuite) testWriteOverwrite(t *testing.T) {
	store := suite.NewStore()
	ctx := context.Background()

	_, err := store.WriteContent(ctx, "blob-1", strings.NewReader("first version"))
	require.NoError(t, err)
	_, err = store.WriteContent(ctx, "blob-1", strings.NewReader("second"))
	require.NoError(t, err)

	size, err := store.GetContentSize(ctx, "blob-1")
	require.NoError(t, err)
	require.Equal(t, uint64(6), size)
}

func (suite *StoreTestSuite) testWriteEmptyBlob(t *testing.T) {
	store := suite.NewStore()
	ctx := context.Background()

	written, err := store.WriteContent(ctx, "empty", bytes.NewReader(nil))
	require.NoError(t, err)
	require.Equal(t, uint64(0), written)

	size, err := store.GetContentSize(ctx, "empty")
	require.NoError(t, err)
	require.Equal(t, uint64(0), size)
}

func (suite *StoreTestSuite) testReadErrorNotFound(t *testing.T) {
	store := suite.NewStore()

	_, err := store.ReadContent(context.Background(), "missing")
	require.ErrorIs(t, err, content.ErrContentNotFound)

	_, err = store.GetContentSize(context.Background(), "missing")
	require.ErrorIs(t, err, content.ErrContentNotFound)
}

func (suite *StoreTestSuite) testGetContentSize(t *testing.T) {
	store := suite.NewStore()
	ctx := context.Background()

	_, err := store.WriteContent(ctx, "blob-1", strings.NewReader("12345"))
	require.NoError(t, err)

	size, err := store.GetContentSize(ctx, "blob-1")
	require.NoError(t, err)
	require.Equal(t, uint64(5), size)
}

func (suite *StoreTestSuite) testContentExists(t *testing.T) {
	store := suite.NewStore()
	ctx := context.Background()

	exists, err := store.ContentExists(ctx, "blob-1")
	require.NoError(t, err)
	require.False(t, exists)

	_, err = store.WriteContent(ctx, "blob-1", strings.NewReader("x"))
	require.NoError(t, err)

	exists, err = store.ContentExists(ctx, "blob-1")
	require.NoError(t, err)
	require.True(t, exists)
}

// RunRangeTests executes range-read tests.
func (suite *StoreTestSuite) RunRangeTests(t *testing.T) {
	t.Run("Middle", suite.testRangeMiddle)
	t.Run("Full", suite.testRangeFull)
	t.Run("ErrorBeyondEnd", suite.testRangeErrorBeyondEnd)
	t.Run("ErrorNotFound", suite.testRangeErrorNotFound)
}

func (suite *StoreTestSuite) testRangeMiddle(t *testing.T) {
	store := suite.NewStore()
	ctx := context.Background()

	_, err := store.WriteContent(ctx, "blob-1", strings.NewReader("hello world"))
	require.NoError(t, err)

	data, err := store.ReadRange(ctx, "blob-1", 6, 5)
	require.NoError(t, err)
	require.Equal(t, "world", string(data))
}

func (suite *StoreTestSuite) testRangeFull(t *testing.T) {
	store := suite.NewStore()
	ctx := context.Background()

	_, err := store.WriteContent(ctx, "blob-1", strings.NewReader("hello"))
	require.NoError(t, err)

	data, err := store.ReadRange(ctx, "blob-1", 0, 5)
	require.NoError(t, err)
	require.Equal(t, "hello", string(data))
}

func (suite *StoreTestSuite) testRangeErrorBeyondEnd(t *testing.T) {
	store := suite.NewStore()
	ctx := context.Background()

	_, err := store.WriteContent(ctx, "blob-1", strings.NewReader("hello"))
	require.NoError(t, err)

	_, err = store.ReadRange(ctx, "blob-1", 3, 10)
	require.ErrorIs(t, err, content.ErrInvalidRange)
}

func (suite *StoreTestSuite) testRangeErrorNotFound(t *testing.T) {
	store := suite.NewStore()

	_, err := store.ReadRange(context.Background(), "missing", 0, 1)
	require.ErrorIs(t, err, content.ErrContentNotFound)
}

// RunWriteAtTests executes random-access write tests.
func (suite *StoreTestSuite) RunWriteAtTests(t *testing.T) {
	t.Run("OutOfOrder", suite.testWriteAtOutOfOrder)
	t.Run("SparseGapReadsZero", suite.testWriteAtSparseGapReadsZero)
	t.Run("OverlapRewrite", suite.testWriteAtOverlapRewrite)
}

func (suite *StoreTestSuite) testWriteAtOutOfOrder(t *testing.T) {
	store := suite.NewStore()
	ctx := context.Background()

	// Chunks arrive tail first.
	require.NoError(t, store.WriteAt(ctx, "blob-1", 6, []byte("world")))
	require.NoError(t, store.WriteAt(ctx, "blob-1", 0, []byte("hello ")))

	reader, err := store.ReadContent(ctx, "blob-1")
	require.NoError(t, err)
	defer reader.Close()

	data, err := io.ReadAll(reader)
	require.NoError(t, err)
	require.Equal(t, "hello world", string(data))
}

func (suite *StoreTestSuite) testWriteAtSparseGapReadsZero(t *testing.T) {
	store := suite.NewStore()
	ctx := context.Background()

	require.NoError(t, store.WriteAt(ctx, "blob-1", 4, []byte("tail")))

	data, err := store.ReadRange(ctx, "blob-1", 0, 8)
	require.NoError(t, err)
	require.Equal(t, append([]byte{0, 0, 0, 0}, []byte("tail")...), data)
}

func (suite *StoreTestSuite) testWriteAtOverlapRewrite(t *testing.T) {
	store := suite.NewStore()
	ctx := context.Background()

	require.NoError(t, store.WriteAt(ctx, "blob-1", 0, []byte("aaaaaa")))
	require.NoError(t, store.WriteAt(ctx, "blob-1", 2, []byte("bb")))

	data, err := store.ReadRange(ctx, "blob-1", 0, 6)
	require.NoError(t, err)
	require.Equal(t, "aabbaa", string(data))
}

// RunDeleteTests executes deletion tests.
func (suite *StoreTestSuite) RunDeleteTests(t *testing.T) {
	t.Run("Delete", suite.testDelete)
	t.Run("ErrorNotFound", suite.testDeleteErrorNotFound)
}

func (suite *StoreTestSuite) testDelete(t *testing.T) {
	store := suite.NewStore()
	ctx := context.Background()

	_, err := store.WriteContent(ctx, "blob-1", strings.NewReader("x"))
	require.NoError(t, err)
	require.NoError(t, store.DeleteContent(ctx, "blob-1"))

	exists, err := store.ContentExists(ctx, "blob-1")
	require.NoError(t, err)
	require.False(t, exists)
}

func (suite *StoreTestSuite) testDeleteErrorNotFound(t *testing.T) {
	store := suite.NewStore()

	err := store.DeleteContent(context.Background(), "missing")
	require.ErrorIs(t, err, content.ErrContentNotFound)
}

// RunListTests executes listing tests.
func (suite *StoreTestSuite) RunListTests(t *testing.T) {
	t.Run("Empty", suite.testListEmpty)
	t.Run("All", suite.testListAll)
}

func (suite *StoreTestSuite) testListEmpty(t *testing.T) {
	store := suite.NewStore()

	refs, err := store.ListAllContent(context.Background())
	require.NoError(t, err)
	require.Empty(t, refs)
}

func (suite *StoreTestSuite) testListAll(t *testing.T) {
	store := suite.NewStore()
	ctx := context.Background()

	for _, ref := range []string{"charlie", "alpha", "bravo"} {
		_, err := store.WriteContent(ctx, ref, strings.NewReader(ref))
		require.NoError(t, err)
	}

	refs, err := store.ListAllContent(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"alpha", "bravo", "charlie"}, refs)
}
