package server

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/marmos91/synkerd/pkg/config"
	"github.com/marmos91/synkerd/pkg/identity"
	"github.com/marmos91/synkerd/pkg/metadata"
	"github.com/marmos91/synkerd/pkg/share"
	"github.com/marmos91/synkerd/pkg/upload"
)

// newTestServer builds an all-in-memory server with one static account.
func newTestServer(t *testing.T) *Server {
	t.Helper()

	hash, err := identity.HashPassword("s3cret")
	require.NoError(t, err)

	cfg := &config.Config{
		Metadata: config.MetadataConfig{Type: "memory"},
		Content:  config.ContentConfig{Type: "memory"},
		Identity: config.IdentityConfig{
			Type: "static",
			Static: map[string]any{
				"users": []map[string]any{
					{"username": "alice", "password_hash": hash},
				},
			},
		},
		// An explicit interval keeps ApplyDefaults from re-enabling gc.
		GC: config.GCConfig{Enabled: false, Interval: time.Hour},
	}
	config.ApplyDefaults(cfg)
	require.NoError(t, config.Validate(cfg))

	srv, err := New(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Close() })
	return srv
}

// TestServerEndToEnd drives a full client session through the wired
// components: login, upload, delta pull, share, download.
func TestServerEndToEnd(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()

	// Login mirrors the user and registers the laptop.
	user, session, err := srv.Auth().Login(ctx, identity.LoginParams{
		Username:   "alice",
		Password:   "s3cret",
		DeviceID:   "laptop",
		DeviceName: "Alice's laptop",
	})
	require.NoError(t, err)
	require.Zero(t, session.Cursor)

	// A second device subscribes to change notifications.
	notifications, cancel := srv.Notifier().Subscribe(user.ID)
	defer cancel()

	// The laptop uploads a file in two chunks.
	data := []byte("the quick brown fox jumps over the lazy dog")
	sum := sha256.Sum256(data)

	up, err := srv.Uploads().Initiate(ctx, upload.InitiateParams{
		OwnerID:          user.ID,
		DeviceID:         "laptop",
		TargetPath:       "/docs/fox.txt",
		DeclaredSize:     uint64(len(data)),
		DeclaredChecksum: hex.EncodeToString(sum[:]),
	})
	require.NoError(t, err)

	// The parent directory must exist before commit.
	rootID, err := srv.Metadata().GetUserRoot(ctx, user.ID)
	require.NoError(t, err)
	_, err = srv.Metadata().CreateNode(ctx, &metadata.FileNode{
		OwnerID:  user.ID,
		ParentID: &rootID,
		Name:     "docs",
		Dir:      true,
	}, "laptop")
	require.NoError(t, err)

	require.NoError(t, srv.Uploads().PutChunk(ctx, up.ID, 20, data[20:]))
	require.NoError(t, srv.Uploads().PutChunk(ctx, up.ID, 0, data[:20]))

	node, err := srv.Uploads().Commit(ctx, up.ID)
	require.NoError(t, err)
	require.Equal(t, "fox.txt", node.Name)

	// The mutation reached the dispatcher.
	select {
	case op := <-notifications:
		require.Equal(t, user.ID, op.UserID)
	case <-time.After(time.Second):
		t.Fatal("no change notification delivered")
	}

	// A phone logs in and pulls the delta.
	_, _, err = srv.Auth().Login(ctx, identity.LoginParams{
		Username: "alice",
		Password: "s3cret",
		DeviceID: "phone",
	})
	require.NoError(t, err)

	delta, err := srv.Sync().ComputeDelta(ctx, user.ID, "phone")
	require.NoError(t, err)
	require.Len(t, delta.Changes, 2) // /docs and /docs/fox.txt
	require.NoError(t, srv.Sync().Acknowledge(ctx, user.ID, "phone", delta.Cursor))

	// Alice shares the file and a guest downloads it.
	link, err := srv.Shares().CreateLink(ctx, share.CreateParams{
		OwnerID: user.ID,
		Path:    "/docs/fox.txt",
	})
	require.NoError(t, err)

	dl, err := srv.Shares().Redeem(ctx, link.Token, "", time.Now())
	require.NoError(t, err)
	defer dl.Reader.Close()

	downloaded, err := io.ReadAll(dl.Reader)
	require.NoError(t, err)
	require.Equal(t, data, downloaded)
}

func TestServerRunStopsOnCancel(t *testing.T) {
	srv := newTestServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
