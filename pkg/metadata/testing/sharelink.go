package testing

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/marmos91/synkerd/pkg/metadata"
	"github.com/stretchr/testify/require"
)

// RunShareLinkTests executes all share-link tests.
func (suite *StoreTestSuite) RunShareLinkTests(t *testing.T) {
	t.Run("CreateAndGet", suite.testShareLinkCreateAndGet)
	t.Run("Redeem", suite.testShareLinkRedeem)
	t.Run("RedeemErrorExpired", suite.testShareLinkRedeemErrorExpired)
	t.Run("RedeemErrorQuota", suite.testShareLinkRedeemErrorQuota)
	t.Run("RedeemConcurrentQuota", suite.testShareLinkRedeemConcurrentQuota)
	t.Run("Revoke", suite.testShareLinkRevoke)
	t.Run("ErrorDuplicateToken", suite.testShareLinkErrorDuplicateToken)
	t.Run("ErrorUnknownTarget", suite.testShareLinkErrorUnknownTarget)
	t.Run("List", suite.testShareLinkList)
}

func (suite *StoreTestSuite) testShareLinkCreateAndGet(t *testing.T) {
	store := suite.NewStore()
	defer store.Close()

	userID, rootID := createTestUser(t, store, "alice")
	fileID := createTestFile(t, store, userID, rootID, "report.pdf")

	require.NoError(t, store.CreateShareLink(context.Background(), &metadata.ShareLink{
		Token:     "tok-1",
		FileID:    fileID,
		CreatedBy: userID,
	}))

	link, err := store.GetShareLink(context.Background(), "tok-1")
	require.NoError(t, err)
	require.Equal(t, fileID, link.FileID)
	require.Equal(t, uint32(0), link.DownloadCount)
	require.False(t, link.CreatedAt.IsZero())

	_, err = store.GetShareLink(context.Background(), "tok-missing")
	AssertErrorCode(t, metadata.ErrNotFound, err)
}

func (suite *StoreTestSuite) testShareLinkRedeem(t *testing.T) {
	store := suite.NewStore()
	defer store.Close()

	userID, rootID := createTestUser(t, store, "alice")
	fileID := createTestFile(t, store, userID, rootID, "report.pdf")

	require.NoError(t, store.CreateShareLink(context.Background(), &metadata.ShareLink{
		Token:     "tok-1",
		FileID:    fileID,
		CreatedBy: userID,
	}))

	link, err := store.RedeemShareLink(context.Background(), "tok-1", time.Now())
	require.NoError(t, err)
	require.Equal(t, uint32(1), link.DownloadCount)

	link, err = store.RedeemShareLink(context.Background(), "tok-1", time.Now())
	require.NoError(t, err)
	require.Equal(t, uint32(2), link.DownloadCount)
}

func (suite *StoreTestSuite) testShareLinkRedeemErrorExpired(t *testing.T) {
	store := suite.NewStore()
	defer store.Close()

	userID, rootID := createTestUser(t, store, "alice")
	fileID := createTestFile(t, store, userID, rootID, "report.pdf")

	expiry := time.Now().Add(time.Hour)
	require.NoError(t, store.CreateShareLink(context.Background(), &metadata.ShareLink{
		Token:     "tok-1",
		FileID:    fileID,
		CreatedBy: userID,
		ExpiresAt: &expiry,
	}))

	// Still valid before expiry.
	_, err := store.RedeemShareLink(context.Background(), "tok-1", time.Now())
	require.NoError(t, err)

	// Expired after the instant passes.
	_, err = store.RedeemShareLink(context.Background(), "tok-1", expiry.Add(time.Second))
	AssertErrorCode(t, metadata.ErrExpired, err)
}

func (suite *StoreTestSuite) testShareLinkRedeemErrorQuota(t *testing.T) {
	store := suite.NewStore()
	defer store.Close()

	userID, rootID := createTestUser(t, store, "alice")
	fileID := createTestFile(t, store, userID, rootID, "report.pdf")

	require.NoError(t, store.CreateShareLink(context.Background(), &metadata.ShareLink{
		Token:        "tok-1",
		FileID:       fileID,
		CreatedBy:    userID,
		MaxDownloads: uint32Ptr(2),
	}))

	_, err := store.RedeemShareLink(context.Background(), "tok-1", time.Now())
	require.NoError(t, err)
	_, err = store.RedeemShareLink(context.Background(), "tok-1", time.Now())
	require.NoError(t, err)

	_, err = store.RedeemShareLink(context.Background(), "tok-1", time.Now())
	AssertErrorCode(t, metadata.ErrQuotaExceeded, err)
}

func (suite *StoreTestSuite) testShareLinkRedeemConcurrentQuota(t *testing.T) {
	store := suite.NewStore()
	defer store.Close()

	userID, rootID := createTestUser(t, store, "alice")
	fileID := createTestFile(t, store, userID, rootID, "report.pdf")

	require.NoError(t, store.CreateShareLink(context.Background(), &metadata.ShareLink{
		Token:        "tok-1",
		FileID:       fileID,
		CreatedBy:    userID,
		MaxDownloads: uint32Ptr(1),
	}))

	const redeemers = 50
	var successes atomic.Int32
	var wg sync.WaitGroup
	wg.Add(redeemers)

	for i := 0; i < redeemers; i++ {
		go func() {
			defer wg.Done()
			if _, err := store.RedeemShareLink(context.Background(), "tok-1", time.Now()); err == nil {
				successes.Add(1)
			}
		}()
	}
	wg.Wait()

	// Exactly one redeemer may win the last quota slot.
	require.Equal(t, int32(1), successes.Load())

	link, err := store.GetShareLink(context.Background(), "tok-1")
	require.NoError(t, err)
	require.Equal(t, uint32(1), link.DownloadCount)
}

func (suite *StoreTestSuite) testShareLinkRevoke(t *testing.T) {
	store := suite.NewStore()
	defer store.Close()

	userID, rootID := createTestUser(t, store, "alice")
	fileID := createTestFile(t, store, userID, rootID, "report.pdf")

	require.NoError(t, store.CreateShareLink(context.Background(), &metadata.ShareLink{
		Token:     "tok-1",
		FileID:    fileID,
		CreatedBy: userID,
	}))
	require.NoError(t, store.RevokeShareLink(context.Background(), "tok-1"))
	require.NoError(t, store.RevokeShareLink(context.Background(), "tok-1"))

	// A revoked token is indistinguishable from a never-issued one.
	_, err := store.GetShareLink(context.Background(), "tok-1")
	AssertErrorCode(t, metadata.ErrNotFound, err)

	_, err = store.RedeemShareLink(context.Background(), "tok-1", time.Now())
	AssertErrorCode(t, metadata.ErrNotFound, err)

	err = store.RevokeShareLink(context.Background(), "tok-missing")
	AssertErrorCode(t, metadata.ErrNotFound, err)
}

func (suite *StoreTestSuite) testShareLinkErrorDuplicateToken(t *testing.T) {
	store := suite.NewStore()
	defer store.Close()

	userID, rootID := createTestUser(t, store, "alice")
	fileID := createTestFile(t, store, userID, rootID, "report.pdf")

	link := &metadata.ShareLink{Token: "tok-1", FileID: fileID, CreatedBy: userID}
	require.NoError(t, store.CreateShareLink(context.Background(), link))

	err := store.CreateShareLink(context.Background(), link)
	AssertErrorCode(t, metadata.ErrNameConflict, err)
}

func (suite *StoreTestSuite) testShareLinkErrorUnknownTarget(t *testing.T) {
	store := suite.NewStore()
	defer store.Close()

	userID, rootID := createTestUser(t, store, "alice")
	fileID := createTestFile(t, store, userID, rootID, "report.pdf")
	require.NoError(t, store.DeleteNode(context.Background(), fileID, false, ""))

	err := store.CreateShareLink(context.Background(), &metadata.ShareLink{
		Token:     "tok-1",
		FileID:    fileID,
		CreatedBy: userID,
	})
	AssertErrorCode(t, metadata.ErrNotFound, err)
}

func (suite *StoreTestSuite) testShareLinkList(t *testing.T) {
	store := suite.NewStore()
	defer store.Close()

	userID, rootID := createTestUser(t, store, "alice")
	fileID := createTestFile(t, store, userID, rootID, "report.pdf")

	require.NoError(t, store.CreateShareLink(context.Background(), &metadata.ShareLink{
		Token: "tok-1", FileID: fileID, CreatedBy: userID,
	}))
	require.NoError(t, store.CreateShareLink(context.Background(), &metadata.ShareLink{
		Token: "tok-2", FileID: fileID, CreatedBy: userID,
	}))
	require.NoError(t, store.RevokeShareLink(context.Background(), "tok-1"))

	// Listing includes revoked links so owners can audit them.
	links, err := store.ListShareLinks(context.Background(), userID)
	require.NoError(t, err)
	require.Len(t, links, 2)
}
