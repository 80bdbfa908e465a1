package share

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	contentmem "github.com/marmos91/synkerd/pkg/content/memory"
	"github.com/marmos91/synkerd/pkg/metadata"
	metamem "github.com/marmos91/synkerd/pkg/metadata/memory"
)

type shareEnv struct {
	manager *Manager
	meta    metadata.MetadataStore
	ownerID uuid.UUID
	rootID  uuid.UUID
}

func newShareEnv(t *testing.T) *shareEnv {
	t.Helper()

	meta := metamem.NewStore()
	t.Cleanup(func() { _ = meta.Close() })
	blobs := contentmem.NewStore()

	user := &metadata.User{
		ID:       metadata.DeterministicUserID("alice"),
		Username: "alice",
		Email:    "alice@example.com",
		Active:   true,
	}
	require.NoError(t, meta.PutUser(context.Background(), user))
	rootID, err := meta.GetUserRoot(context.Background(), user.ID)
	require.NoError(t, err)

	env := &shareEnv{
		manager: NewManager(meta, blobs),
		meta:    meta,
		ownerID: user.ID,
		rootID:  rootID,
	}
	env.addFile(t, blobs, "report.pdf", []byte("quarterly numbers"))
	return env
}

func (env *shareEnv) addFile(t *testing.T, blobs *contentmem.Store, name string, data []byte) uuid.UUID {
	t.Helper()

	ref := uuid.NewString()
	_, err := blobs.WriteContent(context.Background(), ref, bytes.NewReader(data))
	require.NoError(t, err)

	sum := sha256.Sum256(data)
	id, err := env.meta.CreateNode(context.Background(), &metadata.FileNode{
		OwnerID:    env.ownerID,
		ParentID:   &env.rootID,
		Name:       name,
		Size:       uint64(len(data)),
		Checksum:   hex.EncodeToString(sum[:]),
		MimeType:   "application/pdf",
		ContentRef: ref,
	}, "")
	require.NoError(t, err)
	return id
}

func TestShareCreateAndRedeem(t *testing.T) {
	env := newShareEnv(t)

	link, err := env.manager.CreateLink(context.Background(), CreateParams{
		OwnerID: env.ownerID,
		Path:    "/report.pdf",
	})
	require.NoError(t, err)
	require.NotEmpty(t, link.Token)
	require.Empty(t, link.PasswordHash)

	dl, err := env.manager.Redeem(context.Background(), link.Token, "", time.Now())
	require.NoError(t, err)
	defer dl.Reader.Close()

	require.Equal(t, "report.pdf", dl.Node.Name)
	data, err := io.ReadAll(dl.Reader)
	require.NoError(t, err)
	require.Equal(t, "quarterly numbers", string(data))

	stored, err := env.meta.GetShareLink(context.Background(), link.Token)
	require.NoError(t, err)
	require.Equal(t, uint32(1), stored.DownloadCount)
}

func TestShareUnknownToken(t *testing.T) {
	env := newShareEnv(t)

	_, err := env.manager.Redeem(context.Background(), "no-such-token", "", time.Now())
	require.True(t, metadata.IsCode(err, metadata.ErrNotFound))
}

func TestSharePasswordGate(t *testing.T) {
	env := newShareEnv(t)

	link, err := env.manager.CreateLink(context.Background(), CreateParams{
		OwnerID:  env.ownerID,
		Path:     "/report.pdf",
		Password: "hunter2",
	})
	require.NoError(t, err)
	require.NotEmpty(t, link.PasswordHash)
	require.NotContains(t, link.PasswordHash, "hunter2")

	_, err = env.manager.Redeem(context.Background(), link.Token, "wrong", time.Now())
	require.True(t, metadata.IsCode(err, metadata.ErrBadPassword))

	// A failed password attempt must not consume quota.
	stored, err := env.meta.GetShareLink(context.Background(), link.Token)
	require.NoError(t, err)
	require.Equal(t, uint32(0), stored.DownloadCount)

	dl, err := env.manager.Redeem(context.Background(), link.Token, "hunter2", time.Now())
	require.NoError(t, err)
	dl.Reader.Close()
}

func TestShareExpiry(t *testing.T) {
	env := newShareEnv(t)

	expiry := time.Now().Add(time.Hour)
	link, err := env.manager.CreateLink(context.Background(), CreateParams{
		OwnerID:   env.ownerID,
		Path:      "/report.pdf",
		ExpiresAt: &expiry,
	})
	require.NoError(t, err)

	dl, err := env.manager.Redeem(context.Background(), link.Token, "", expiry.Add(-time.Minute))
	require.NoError(t, err)
	dl.Reader.Close()

	_, err = env.manager.Redeem(context.Background(), link.Token, "", expiry.Add(time.Minute))
	require.True(t, metadata.IsCode(err, metadata.ErrExpired))
}

func TestShareAlreadyExpiredAtCreation(t *testing.T) {
	env := newShareEnv(t)

	past := time.Now().Add(-time.Hour)
	max := uint32(100)
	link, err := env.manager.CreateLink(context.Background(), CreateParams{
		OwnerID:      env.ownerID,
		Path:         "/report.pdf",
		ExpiresAt:    &past,
		MaxDownloads: &max,
	})
	require.NoError(t, err)

	// Remaining quota is irrelevant once the link is past its expiry.
	_, err = env.manager.Redeem(context.Background(), link.Token, "", time.Now())
	require.True(t, metadata.IsCode(err, metadata.ErrExpired))
}

func TestShareDownloadQuota(t *testing.T) {
	env := newShareEnv(t)

	max := uint32(2)
	link, err := env.manager.CreateLink(context.Background(), CreateParams{
		OwnerID:      env.ownerID,
		Path:         "/report.pdf",
		MaxDownloads: &max,
	})
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		dl, err := env.manager.Redeem(context.Background(), link.Token, "", time.Now())
		require.NoError(t, err)
		dl.Reader.Close()
	}

	_, err = env.manager.Redeem(context.Background(), link.Token, "", time.Now())
	require.True(t, metadata.IsCode(err, metadata.ErrQuotaExceeded))
}

func TestShareRevoke(t *testing.T) {
	env := newShareEnv(t)

	link, err := env.manager.CreateLink(context.Background(), CreateParams{
		OwnerID: env.ownerID,
		Path:    "/report.pdf",
	})
	require.NoError(t, err)

	stranger := metadata.DeterministicUserID("mallory")
	err = env.manager.Revoke(context.Background(), stranger, link.Token)
	require.True(t, metadata.IsCode(err, metadata.ErrPermissionDenied))

	require.NoError(t, env.manager.Revoke(context.Background(), env.ownerID, link.Token))

	// A revoked token is indistinguishable from one that never existed.
	_, err = env.manager.Redeem(context.Background(), link.Token, "", time.Now())
	require.True(t, metadata.IsCode(err, metadata.ErrNotFound))
}

func TestShareDirectoryRejected(t *testing.T) {
	env := newShareEnv(t)

	_, err := env.meta.CreateNode(context.Background(), &metadata.FileNode{
		OwnerID:  env.ownerID,
		ParentID: &env.rootID,
		Name:     "docs",
		Dir:      true,
	}, "")
	require.NoError(t, err)

	_, err = env.manager.CreateLink(context.Background(), CreateParams{
		OwnerID: env.ownerID,
		Path:    "/docs",
	})
	require.True(t, metadata.IsCode(err, metadata.ErrIsDirectory))
}

func TestShareList(t *testing.T) {
	env := newShareEnv(t)

	first, err := env.manager.CreateLink(context.Background(), CreateParams{OwnerID: env.ownerID, Path: "/report.pdf"})
	require.NoError(t, err)
	second, err := env.manager.CreateLink(context.Background(), CreateParams{OwnerID: env.ownerID, Path: "/report.pdf"})
	require.NoError(t, err)
	require.NoError(t, env.manager.Revoke(context.Background(), env.ownerID, second.Token))

	links, err := env.manager.List(context.Background(), env.ownerID)
	require.NoError(t, err)
	require.Len(t, links, 2)

	tokens := map[string]bool{}
	for _, l := range links {
		tokens[l.Token] = l.Revoked
	}
	require.False(t, tokens[first.Token])
	require.True(t, tokens[second.Token])
}
