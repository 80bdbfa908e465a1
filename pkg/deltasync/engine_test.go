package deltasync

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/marmos91/synkerd/pkg/metadata"
	"github.com/marmos91/synkerd/pkg/metadata/memory"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	engine *Engine
	meta   metadata.MetadataStore
	userID uuid.UUID
	rootID uuid.UUID
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	meta := memory.NewStore()
	t.Cleanup(func() { _ = meta.Close() })

	user := &metadata.User{
		ID:       metadata.DeterministicUserID("alice"),
		Username: "alice",
		Email:    "alice@example.com",
		Active:   true,
	}
	require.NoError(t, meta.PutUser(context.Background(), user))

	rootID, err := meta.GetUserRoot(context.Background(), user.ID)
	require.NoError(t, err)

	return &testEnv{
		engine: NewEngine(meta),
		meta:   meta,
		userID: user.ID,
		rootID: rootID,
	}
}

func (env *testEnv) register(t *testing.T, deviceID string, folders ...string) {
	t.Helper()

	_, err := env.meta.RegisterSession(context.Background(), &metadata.SyncSession{
		UserID:      env.userID,
		DeviceID:    deviceID,
		DeviceName:  "device " + deviceID,
		SyncFolders: folders,
	})
	require.NoError(t, err)
}

func (env *testEnv) mkdir(t *testing.T, parentID uuid.UUID, name, origin string) uuid.UUID {
	t.Helper()

	id, err := env.meta.CreateNode(context.Background(), &metadata.FileNode{
		OwnerID:  env.userID,
		ParentID: &parentID,
		Name:     name,
		Dir:      true,
	}, origin)
	require.NoError(t, err)
	return id
}

func (env *testEnv) mkfile(t *testing.T, parentID uuid.UUID, name, origin string) uuid.UUID {
	t.Helper()

	id, err := env.meta.CreateNode(context.Background(), &metadata.FileNode{
		OwnerID:    env.userID,
		ParentID:   &parentID,
		Name:       name,
		Size:       4,
		Checksum:   "9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08",
		MimeType:   "text/plain",
		ContentRef: uuid.NewString(),
	}, origin)
	require.NoError(t, err)
	return id
}

func (env *testEnv) rewrite(t *testing.T, id uuid.UUID, origin string) {
	t.Helper()

	_, err := env.meta.ReplaceContent(context.Background(), id, 8, "newsum", uuid.NewString(), "text/plain", origin)
	require.NoError(t, err)
}

func TestDeltaCreateAndModifyCollapses(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "laptop")

	fileID := env.mkfile(t, env.rootID, "notes.txt", "phone")
	env.rewrite(t, fileID, "phone")
	env.rewrite(t, fileID, "phone")

	delta, err := env.engine.ComputeDelta(context.Background(), env.userID, "laptop")
	require.NoError(t, err)

	require.Empty(t, delta.Conflicts)
	require.Len(t, delta.Changes, 1)
	change := delta.Changes[0]
	require.Equal(t, metadata.ChangeCreated, change.Type)
	require.Equal(t, fileID, change.NodeID)
	require.Equal(t, "/notes.txt", change.Path)
	require.NotNil(t, change.Node)
	require.Equal(t, uint64(8), change.Node.Size)
}

func TestDeltaCreateThenDeleteVanishes(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "laptop")

	fileID := env.mkfile(t, env.rootID, "scratch.txt", "phone")
	require.NoError(t, env.meta.DeleteNode(context.Background(), fileID, false, "phone"))

	delta, err := env.engine.ComputeDelta(context.Background(), env.userID, "laptop")
	require.NoError(t, err)

	require.Empty(t, delta.Changes)
	require.Empty(t, delta.Conflicts)
	require.NotZero(t, delta.Cursor)
}

func TestDeltaOwnChangesNotEchoed(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "laptop")

	env.mkfile(t, env.rootID, "mine.txt", "laptop")
	otherID := env.mkfile(t, env.rootID, "theirs.txt", "phone")

	delta, err := env.engine.ComputeDelta(context.Background(), env.userID, "laptop")
	require.NoError(t, err)

	require.Len(t, delta.Changes, 1)
	require.Equal(t, otherID, delta.Changes[0].NodeID)
}

func TestDeltaMoveChainCollapses(t *testing.T) {
	env := newTestEnv(t)

	docsID := env.mkdir(t, env.rootID, "docs", "phone")
	archiveID := env.mkdir(t, env.rootID, "archive", "phone")
	fileID := env.mkfile(t, docsID, "report.pdf", "phone")

	// Register after the setup so only the moves land in the window.
	env.register(t, "laptop")
	head, err := env.meta.LatestCursor(context.Background(), env.userID)
	require.NoError(t, err)
	require.NoError(t, env.meta.AdvanceCursor(context.Background(), env.userID, "laptop", head))

	require.NoError(t, env.meta.MoveNode(context.Background(), fileID, docsID, "report-v2.pdf", "phone"))
	require.NoError(t, env.meta.MoveNode(context.Background(), fileID, archiveID, "report-v2.pdf", "phone"))

	delta, err := env.engine.ComputeDelta(context.Background(), env.userID, "laptop")
	require.NoError(t, err)

	require.Len(t, delta.Changes, 1)
	change := delta.Changes[0]
	require.Equal(t, metadata.ChangeMoved, change.Type)
	require.Equal(t, "/docs/report.pdf", change.OldPath)
	require.Equal(t, "/archive/report-v2.pdf", change.Path)
}

func TestDeltaConflictDetection(t *testing.T) {
	env := newTestEnv(t)

	fileID := env.mkfile(t, env.rootID, "shared.txt", "")
	env.register(t, "laptop")
	head, err := env.meta.LatestCursor(context.Background(), env.userID)
	require.NoError(t, err)
	require.NoError(t, env.meta.AdvanceCursor(context.Background(), env.userID, "laptop", head))

	env.rewrite(t, fileID, "laptop")
	env.rewrite(t, fileID, "phone")

	delta, err := env.engine.ComputeDelta(context.Background(), env.userID, "laptop")
	require.NoError(t, err)

	require.Empty(t, delta.Changes)
	require.Len(t, delta.Conflicts, 1)
	conflict := delta.Conflicts[0]
	require.Equal(t, fileID, conflict.NodeID)
	require.Equal(t, "/shared.txt", conflict.Path)
	require.Equal(t, []string{"phone"}, conflict.Origins)
}

func TestDeltaFolderScoping(t *testing.T) {
	env := newTestEnv(t)

	docsID := env.mkdir(t, env.rootID, "docs", "")
	picsID := env.mkdir(t, env.rootID, "pics", "")
	env.register(t, "laptop", "/docs")
	head, err := env.meta.LatestCursor(context.Background(), env.userID)
	require.NoError(t, err)
	require.NoError(t, env.meta.AdvanceCursor(context.Background(), env.userID, "laptop", head))

	inScope := env.mkfile(t, docsID, "report.pdf", "phone")
	env.mkfile(t, picsID, "cat.jpg", "phone")

	delta, err := env.engine.ComputeDelta(context.Background(), env.userID, "laptop")
	require.NoError(t, err)

	require.Len(t, delta.Changes, 1)
	require.Equal(t, inScope, delta.Changes[0].NodeID)
}

func TestDeltaMoveOutOfScopeStillReported(t *testing.T) {
	env := newTestEnv(t)

	docsID := env.mkdir(t, env.rootID, "docs", "")
	picsID := env.mkdir(t, env.rootID, "pics", "")
	fileID := env.mkfile(t, docsID, "report.pdf", "")

	env.register(t, "laptop", "/docs")
	head, err := env.meta.LatestCursor(context.Background(), env.userID)
	require.NoError(t, err)
	require.NoError(t, env.meta.AdvanceCursor(context.Background(), env.userID, "laptop", head))

	require.NoError(t, env.meta.MoveNode(context.Background(), fileID, picsID, "report.pdf", "phone"))

	delta, err := env.engine.ComputeDelta(context.Background(), env.userID, "laptop")
	require.NoError(t, err)

	// The move leaves the device's scope; it still arrives, with the
	// pre-move path, so the device can remove its local copy.
	require.Len(t, delta.Changes, 1)
	change := delta.Changes[0]
	require.Equal(t, metadata.ChangeMoved, change.Type)
	require.Equal(t, "/docs/report.pdf", change.OldPath)
	require.Equal(t, "/pics/report.pdf", change.Path)
}

func TestDeltaAcknowledgeConverges(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "laptop")

	env.mkfile(t, env.rootID, "a.txt", "phone")
	env.mkfile(t, env.rootID, "b.txt", "phone")

	delta, err := env.engine.ComputeDelta(context.Background(), env.userID, "laptop")
	require.NoError(t, err)
	require.Len(t, delta.Changes, 2)

	require.NoError(t, env.engine.Acknowledge(context.Background(), env.userID, "laptop", delta.Cursor))

	delta, err = env.engine.ComputeDelta(context.Background(), env.userID, "laptop")
	require.NoError(t, err)
	require.Empty(t, delta.Changes)
	require.Empty(t, delta.Conflicts)
}

func TestDeltaCursorExpiredAfterTrim(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "laptop")

	fileID := env.mkfile(t, env.rootID, "a.txt", "phone")
	env.rewrite(t, fileID, "phone")
	env.rewrite(t, fileID, "phone")

	head, err := env.meta.LatestCursor(context.Background(), env.userID)
	require.NoError(t, err)
	require.NoError(t, env.meta.TrimChangeLog(context.Background(), env.userID, head))

	_, err = env.engine.ComputeDelta(context.Background(), env.userID, "laptop")
	require.Error(t, err)
	require.True(t, metadata.IsCode(err, metadata.ErrCursorExpired))
}

func TestSnapshotBootstrap(t *testing.T) {
	env := newTestEnv(t)

	docsID := env.mkdir(t, env.rootID, "docs", "phone")
	env.mkfile(t, docsID, "report.pdf", "phone")
	env.mkfile(t, env.rootID, "readme.txt", "phone")

	nodes, cursor, err := env.engine.Snapshot(context.Background(), env.userID, nil)
	require.NoError(t, err)
	require.Len(t, nodes, 3)
	require.NotZero(t, cursor)

	// A device bootstrapping from the snapshot acknowledges its cursor
	// and sees an empty delta afterwards.
	env.register(t, "tablet")
	require.NoError(t, env.engine.Acknowledge(context.Background(), env.userID, "tablet", cursor))

	delta, err := env.engine.ComputeDelta(context.Background(), env.userID, "tablet")
	require.NoError(t, err)
	require.Empty(t, delta.Changes)
}

func TestSnapshotScopedToFolders(t *testing.T) {
	env := newTestEnv(t)

	docsID := env.mkdir(t, env.rootID, "docs", "phone")
	env.mkfile(t, docsID, "report.pdf", "phone")
	env.mkfile(t, env.rootID, "readme.txt", "phone")

	nodes, _, err := env.engine.Snapshot(context.Background(), env.userID, []string{"/docs"})
	require.NoError(t, err)

	require.Len(t, nodes, 2)
	names := []string{nodes[0].Name, nodes[1].Name}
	require.ElementsMatch(t, []string{"docs", "report.pdf"}, names)
}

func TestDeltaDeleteAfterModify(t *testing.T) {
	env := newTestEnv(t)

	fileID := env.mkfile(t, env.rootID, "a.txt", "")
	env.register(t, "laptop")
	head, err := env.meta.LatestCursor(context.Background(), env.userID)
	require.NoError(t, err)
	require.NoError(t, env.meta.AdvanceCursor(context.Background(), env.userID, "laptop", head))

	env.rewrite(t, fileID, "phone")
	require.NoError(t, env.meta.DeleteNode(context.Background(), fileID, false, "phone"))

	delta, err := env.engine.ComputeDelta(context.Background(), env.userID, "laptop")
	require.NoError(t, err)

	require.Len(t, delta.Changes, 1)
	change := delta.Changes[0]
	require.Equal(t, metadata.ChangeDeleted, change.Type)
	require.Equal(t, fileID, change.NodeID)
	require.Nil(t, change.Node)
}
