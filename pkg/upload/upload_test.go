package upload

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	contentmemory "github.com/marmos91/synkerd/pkg/content/memory"
	"github.com/marmos91/synkerd/pkg/metadata"
	metadatamemory "github.com/marmos91/synkerd/pkg/metadata/memory"
	"github.com/stretchr/testify/require"
)

func newTestCoordinator(t *testing.T, opts ...Option) (*Coordinator, *metadatamemory.Store, *contentmemory.Store) {
	t.Helper()
	meta := metadatamemory.NewStore()
	blobs := contentmemory.NewStore()
	return NewCoordinator(meta, blobs, opts...), meta, blobs
}

func newTestOwner(t *testing.T, meta metadata.MetadataStore) uuid.UUID {
	t.Helper()
	user := &metadata.User{
		ID:       metadata.DeterministicUserID("alice"),
		Username: "alice",
		Active:   true,
	}
	require.NoError(t, meta.PutUser(context.Background(), user))
	return user.ID
}

func checksumOf(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func TestUploadTwoChunkCommit(t *testing.T) {
	coord, meta, blobs := newTestCoordinator(t)
	ctx := context.Background()
	owner := newTestOwner(t, meta)

	root, err := meta.GetUserRoot(ctx, owner)
	require.NoError(t, err)
	_, err = meta.CreateNode(ctx, &metadata.FileNode{
		OwnerID:  owner,
		ParentID: &root,
		Name:     "docs",
		Dir:      true,
	}, "")
	require.NoError(t, err)

	payload := []byte("first half|second half")
	session, err := coord.Initiate(ctx, InitiateParams{
		OwnerID:          owner,
		DeviceID:         "laptop",
		TargetPath:       "/docs/report.pdf",
		DeclaredSize:     uint64(len(payload)),
		DeclaredChecksum: checksumOf(payload),
	})
	require.NoError(t, err)

	// Chunks arrive out of order.
	require.NoError(t, coord.PutChunk(ctx, session.ID, 11, payload[11:]))
	require.NoError(t, coord.PutChunk(ctx, session.ID, 0, payload[:11]))

	node, err := coord.Commit(ctx, session.ID)
	require.NoError(t, err)
	require.Equal(t, "report.pdf", node.Name)
	require.Equal(t, uint64(len(payload)), node.Size)
	require.Equal(t, checksumOf(payload), node.Checksum)
	require.Equal(t, session.ID.String(), node.ContentRef)
	require.Equal(t, "application/pdf", node.MimeType)

	// The staged blob is the committed blob; no copy happened.
	reader, err := blobs.ReadContent(ctx, node.ContentRef)
	require.NoError(t, err)
	stored, err := io.ReadAll(reader)
	reader.Close()
	require.NoError(t, err)
	require.Equal(t, payload, stored)

	// The change log carries exactly one entry for the new file.
	ops, _, err := meta.ChangesSince(ctx, owner, 0)
	require.NoError(t, err)
	last := ops[len(ops)-1]
	require.Equal(t, metadata.ChangeCreated, last.Type)
	require.Equal(t, "/docs/report.pdf", last.Path)
	require.Equal(t, "laptop", last.Origin)
}

func TestUploadCommitIncomplete(t *testing.T) {
	coord, meta, _ := newTestCoordinator(t)
	ctx := context.Background()
	owner := newTestOwner(t, meta)

	payload := []byte("0123456789")
	session, err := coord.Initiate(ctx, InitiateParams{
		OwnerID:          owner,
		TargetPath:       "/partial.bin",
		DeclaredSize:     uint64(len(payload)),
		DeclaredChecksum: checksumOf(payload),
	})
	require.NoError(t, err)

	require.NoError(t, coord.PutChunk(ctx, session.ID, 0, payload[:4]))
	require.NoError(t, coord.PutChunk(ctx, session.ID, 7, payload[7:]))

	_, err = coord.Commit(ctx, session.ID)
	require.True(t, metadata.IsCode(err, metadata.ErrIncompleteUpload))

	// The session survives the failed commit; the gap can be repaired.
	status, err := coord.Status(ctx, session.ID)
	require.NoError(t, err)
	require.False(t, status.Complete)
	require.Equal(t, []Range{{Start: 0, End: 4}, {Start: 7, End: 10}}, status.Staged)
	require.Equal(t, []Range{{Start: 4, End: 7}}, status.Missing)

	require.NoError(t, coord.PutChunk(ctx, session.ID, 4, payload[4:7]))
	_, err = coord.Commit(ctx, session.ID)
	require.NoError(t, err)

	// The target is visible only after the successful commit.
	_, err = meta.ResolvePath(ctx, owner, "/partial.bin")
	require.NoError(t, err)
}

func TestUploadChunkIdempotentRetry(t *testing.T) {
	coord, meta, _ := newTestCoordinator(t)
	ctx := context.Background()
	owner := newTestOwner(t, meta)

	payload := []byte("hello world")
	session, err := coord.Initiate(ctx, InitiateParams{
		OwnerID:          owner,
		TargetPath:       "/notes.txt",
		DeclaredSize:     uint64(len(payload)),
		DeclaredChecksum: checksumOf(payload),
	})
	require.NoError(t, err)

	require.NoError(t, coord.PutChunk(ctx, session.ID, 0, payload))

	// An identical retry succeeds silently.
	require.NoError(t, coord.PutChunk(ctx, session.ID, 0, payload))

	// A conflicting retry fails and leaves the staged bytes untouched.
	conflicting := []byte("HELLO WORLD")
	err = coord.PutChunk(ctx, session.ID, 0, conflicting)
	require.True(t, metadata.IsCode(err, metadata.ErrChunkMismatch))

	node, err := coord.Commit(ctx, session.ID)
	require.NoError(t, err)
	require.Equal(t, checksumOf(payload), node.Checksum)
}

func TestUploadChunkBeyondDeclaredSize(t *testing.T) {
	coord, meta, _ := newTestCoordinator(t)
	ctx := context.Background()
	owner := newTestOwner(t, meta)

	session, err := coord.Initiate(ctx, InitiateParams{
		OwnerID:          owner,
		TargetPath:       "/small.bin",
		DeclaredSize:     4,
		DeclaredChecksum: checksumOf([]byte("abcd")),
	})
	require.NoError(t, err)

	err = coord.PutChunk(ctx, session.ID, 2, []byte("cdef"))
	require.True(t, metadata.IsCode(err, metadata.ErrOffsetOutOfRange))
}

func TestUploadChecksumMismatch(t *testing.T) {
	coord, meta, _ := newTestCoordinator(t)
	ctx := context.Background()
	owner := newTestOwner(t, meta)

	payload := []byte("actual bytes")
	session, err := coord.Initiate(ctx, InitiateParams{
		OwnerID:          owner,
		TargetPath:       "/corrupt.bin",
		DeclaredSize:     uint64(len(payload)),
		DeclaredChecksum: checksumOf([]byte("declared other bytes")),
	})
	require.NoError(t, err)

	require.NoError(t, coord.PutChunk(ctx, session.ID, 0, payload))

	_, err = coord.Commit(ctx, session.ID)
	require.True(t, metadata.IsCode(err, metadata.ErrChecksumMismatch))

	// Nothing was published.
	_, err = meta.ResolvePath(ctx, owner, "/corrupt.bin")
	require.True(t, metadata.IsCode(err, metadata.ErrNotFound))
}

func TestUploadOverwriteReplacesContent(t *testing.T) {
	coord, meta, _ := newTestCoordinator(t)
	ctx := context.Background()
	owner := newTestOwner(t, meta)

	first := []byte("version one")
	session, err := coord.Initiate(ctx, InitiateParams{
		OwnerID:          owner,
		TargetPath:       "/file.txt",
		DeclaredSize:     uint64(len(first)),
		DeclaredChecksum: checksumOf(first),
	})
	require.NoError(t, err)
	require.NoError(t, coord.PutChunk(ctx, session.ID, 0, first))
	created, err := coord.Commit(ctx, session.ID)
	require.NoError(t, err)

	// Without overwrite, a second upload to the same path fails fast.
	second := []byte("version two!")
	_, err = coord.Initiate(ctx, InitiateParams{
		OwnerID:          owner,
		TargetPath:       "/file.txt",
		DeclaredSize:     uint64(len(second)),
		DeclaredChecksum: checksumOf(second),
	})
	require.True(t, metadata.IsCode(err, metadata.ErrNameConflict))

	// With overwrite, the node is updated in place.
	session, err = coord.Initiate(ctx, InitiateParams{
		OwnerID:          owner,
		TargetPath:       "/file.txt",
		DeclaredSize:     uint64(len(second)),
		DeclaredChecksum: checksumOf(second),
		Overwrite:        true,
	})
	require.NoError(t, err)
	require.NoError(t, coord.PutChunk(ctx, session.ID, 0, second))
	updated, err := coord.Commit(ctx, session.ID)
	require.NoError(t, err)

	require.Equal(t, created.ID, updated.ID)
	require.Equal(t, checksumOf(second), updated.Checksum)
	require.NotEqual(t, created.ContentRef, updated.ContentRef)
}

func TestUploadConcurrentSamePathCommits(t *testing.T) {
	coord, meta, _ := newTestCoordinator(t)
	ctx := context.Background()
	owner := newTestOwner(t, meta)

	payload := []byte("raced payload")
	open := func() uuid.UUID {
		session, err := coord.Initiate(ctx, InitiateParams{
			OwnerID:          owner,
			TargetPath:       "/raced.bin",
			DeclaredSize:     uint64(len(payload)),
			DeclaredChecksum: checksumOf(payload),
		})
		require.NoError(t, err)
		require.NoError(t, coord.PutChunk(ctx, session.ID, 0, payload))
		return session.ID
	}

	first, second := open(), open()

	var wg sync.WaitGroup
	results := make([]error, 2)
	wg.Add(2)
	go func() { defer wg.Done(); _, results[0] = coord.Commit(ctx, first) }()
	go func() { defer wg.Done(); _, results[1] = coord.Commit(ctx, second) }()
	wg.Wait()

	// Exactly one commit wins; the loser sees a name conflict.
	wins, conflicts := 0, 0
	for _, err := range results {
		switch {
		case err == nil:
			wins++
		case metadata.IsCode(err, metadata.ErrNameConflict):
			conflicts++
		default:
			t.Fatalf("unexpected commit error: %v", err)
		}
	}
	require.Equal(t, 1, wins)
	require.Equal(t, 1, conflicts)
}

func TestUploadWithoutDeclaredChecksum(t *testing.T) {
	coord, meta, _ := newTestCoordinator(t)
	ctx := context.Background()
	owner := newTestOwner(t, meta)

	payload := []byte("checksum left to the server")
	session, err := coord.Initiate(ctx, InitiateParams{
		OwnerID:      owner,
		TargetPath:   "/trusted.bin",
		DeclaredSize: uint64(len(payload)),
	})
	require.NoError(t, err)
	require.NoError(t, coord.PutChunk(ctx, session.ID, 0, payload))

	// Without a declared checksum the commit records the computed hash.
	node, err := coord.Commit(ctx, session.ID)
	require.NoError(t, err)
	require.Equal(t, checksumOf(payload), node.Checksum)
}

func TestUploadConcurrentOverwriteCommitsNewPath(t *testing.T) {
	coord, meta, _ := newTestCoordinator(t)
	ctx := context.Background()
	owner := newTestOwner(t, meta)

	payloads := [][]byte{[]byte("device a wins?"), []byte("device b wins?")}
	ids := make([]uuid.UUID, 2)
	for i, payload := range payloads {
		session, err := coord.Initiate(ctx, InitiateParams{
			OwnerID:      owner,
			TargetPath:   "/draft.txt",
			DeclaredSize: uint64(len(payload)),
			Overwrite:    true,
		})
		require.NoError(t, err)
		require.NoError(t, coord.PutChunk(ctx, session.ID, 0, payload))
		ids[i] = session.ID
	}

	// Both commit a path that does not exist yet. Commits on one target
	// are serialized, so the loser lands as a content replacement instead
	// of a second create.
	var wg sync.WaitGroup
	results := make([]error, 2)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = coord.Commit(ctx, ids[i])
		}(i)
	}
	wg.Wait()

	require.NoError(t, results[0])
	require.NoError(t, results[1])

	nodeID, err := meta.ResolvePath(ctx, owner, "/draft.txt")
	require.NoError(t, err)
	node, err := meta.GetNode(ctx, nodeID)
	require.NoError(t, err)
	require.Contains(t, []string{ids[0].String(), ids[1].String()}, node.ContentRef)
}

func TestUploadCommitsRaceSweep(t *testing.T) {
	coord, meta, _ := newTestCoordinator(t, WithSessionTTL(time.Hour))
	ctx := context.Background()
	owner := newTestOwner(t, meta)

	done := make(chan struct{})
	var sweeps sync.WaitGroup
	sweeps.Add(1)
	go func() {
		defer sweeps.Done()
		for {
			select {
			case <-done:
				return
			default:
				_, err := coord.SweepExpired(ctx, time.Now())
				require.NoError(t, err)
			}
		}
	}()

	payload := []byte("sweep me not")
	for i := 0; i < 200; i++ {
		session, err := coord.Initiate(ctx, InitiateParams{
			OwnerID:      owner,
			TargetPath:   "/raced-sweep.bin",
			DeclaredSize: uint64(len(payload)),
			Overwrite:    true,
		})
		require.NoError(t, err)
		require.NoError(t, coord.PutChunk(ctx, session.ID, 0, payload))
		_, err = coord.Commit(ctx, session.ID)
		require.NoError(t, err)
	}

	close(done)
	sweeps.Wait()
}

func TestUploadAbandonAndSweep(t *testing.T) {
	coord, meta, blobs := newTestCoordinator(t, WithSessionTTL(time.Minute))
	ctx := context.Background()
	owner := newTestOwner(t, meta)

	session, err := coord.Initiate(ctx, InitiateParams{
		OwnerID:          owner,
		TargetPath:       "/gone.bin",
		DeclaredSize:     3,
		DeclaredChecksum: checksumOf([]byte("xyz")),
	})
	require.NoError(t, err)
	require.NoError(t, coord.PutChunk(ctx, session.ID, 0, []byte("xyz")))

	require.NoError(t, coord.Abandon(ctx, session.ID))

	exists, err := blobs.ContentExists(ctx, session.ID.String())
	require.NoError(t, err)
	require.False(t, exists)

	_, err = coord.Status(ctx, session.ID)
	require.True(t, metadata.IsCode(err, metadata.ErrUnknownUpload))

	// Sweep reclaims idle sessions past the TTL.
	stale, err := coord.Initiate(ctx, InitiateParams{
		OwnerID:          owner,
		TargetPath:       "/stale.bin",
		DeclaredSize:     3,
		DeclaredChecksum: checksumOf([]byte("xyz")),
	})
	require.NoError(t, err)
	require.NoError(t, coord.PutChunk(ctx, stale.ID, 0, []byte("xyz")))

	swept, err := coord.SweepExpired(ctx, time.Now().Add(2*time.Minute))
	require.NoError(t, err)
	require.Equal(t, 1, swept)

	exists, err = blobs.ContentExists(ctx, stale.ID.String())
	require.NoError(t, err)
	require.False(t, exists)
}

func TestUploadEmptyFile(t *testing.T) {
	coord, meta, _ := newTestCoordinator(t)
	ctx := context.Background()
	owner := newTestOwner(t, meta)

	session, err := coord.Initiate(ctx, InitiateParams{
		OwnerID:          owner,
		TargetPath:       "/empty.txt",
		DeclaredSize:     0,
		DeclaredChecksum: checksumOf(nil),
	})
	require.NoError(t, err)

	node, err := coord.Commit(ctx, session.ID)
	require.NoError(t, err)
	require.Equal(t, uint64(0), node.Size)
	require.Equal(t, checksumOf(nil), node.Checksum)
}
