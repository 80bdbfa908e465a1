// Package upload implements the chunked, resumable upload coordinator.
//
// Uploads are staged in the content store and published to the metadata
// store only at commit time, so a partially transferred file is never
// visible in the namespace.
//
// Staging Model:
// Each upload session stages its bytes at a content ref equal to the session
// id. At commit the staged blob simply becomes the committed blob: the
// FileNode's ContentRef is set to the session id and no bytes are copied.
//
// Chunk Semantics:
//   - Chunks may arrive in any order and from concurrent connections
//   - Re-sending a chunk is idempotent as long as the bytes match; a
//     mismatching re-send fails the chunk with ErrChunkMismatch
//   - A chunk extending past the declared size fails with
//     ErrOffsetOutOfRange
//
// Commit validates contiguous coverage of the declared size, streams the
// staged blob through SHA-256 and, when the client declared a checksum at
// initiate, compares against it before touching the namespace.
package upload

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/marmos91/synkerd/internal/logger"
	"github.com/marmos91/synkerd/pkg/content"
	"github.com/marmos91/synkerd/pkg/metadata"
)

// DefaultSessionTTL is how long an upload session may stay idle before
// SweepExpired reclaims it.
const DefaultSessionTTL = 24 * time.Hour

// Session is the coordinator's view of one in-flight upload.
type Session struct {
	// ID identifies the session and doubles as the staging content ref.
	ID uuid.UUID

	// OwnerID and DeviceID identify who is uploading.
	OwnerID  uuid.UUID
	DeviceID string

	// TargetPath is the canonical destination path.
	TargetPath string

	// DeclaredSize is the client's size commitment, validated at commit.
	// DeclaredChecksum is optional; when set, Commit compares it against
	// the hash of the staged bytes.
	DeclaredSize     uint64
	DeclaredChecksum string

	// Overwrite selects ReplaceContent semantics at commit when the
	// target already exists; without it an existing target fails the
	// commit with ErrNameConflict.
	Overwrite bool

	CreatedAt    time.Time
	LastActivity time.Time

	received rangeSet
}

// Status describes an upload session's progress.
type Status struct {
	ID           uuid.UUID
	TargetPath   string
	DeclaredSize uint64
	Received     uint64
	Complete     bool

	// Staged lists the byte ranges already received, merged and sorted.
	Staged []Range

	// Missing lists the byte gaps still required, for client resume.
	Missing []Range
}

// Range is a half-open byte interval reported in Status.
type Range struct {
	Start uint64
	End   uint64
}

// Coordinator manages upload sessions over a metadata store and a content
// store.
//
// Thread Safety:
// Safe for concurrent use. Session bookkeeping is guarded by one mutex;
// chunk writes to distinct sessions proceed concurrently, writes within one
// session are serialized by the session lock. Commits to the same target
// path are additionally serialized by a per-path lock, so racing commits
// observe each other's published node.
//
// Lock order: the target-path lock, then the session lock. The coordinator
// mutex is never held while acquiring a session lock.
type Coordinator struct {
	meta  metadata.MetadataStore
	blobs content.WritableContentStore

	ttl time.Duration

	mu       sync.Mutex
	sessions map[uuid.UUID]*sessionState

	pathMu    sync.Mutex
	pathLocks map[string]*pathLock
}

type sessionState struct {
	mu      sync.Mutex
	session Session

	// done is set once the session is committed, abandoned or swept.
	// A done session's staging ref must not be written or deleted again:
	// after a commit it is the live content ref.
	done bool
}

// pathLock serializes commits on one (owner, path) pair. The refs count
// keeps the entry alive while any commit is waiting on it.
type pathLock struct {
	mu   sync.Mutex
	refs int
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithSessionTTL overrides the idle TTL after which SweepExpired reclaims a
// session.
func WithSessionTTL(ttl time.Duration) Option {
	return func(c *Coordinator) { c.ttl = ttl }
}

// NewCoordinator creates an upload coordinator.
func NewCoordinator(meta metadata.MetadataStore, blobs content.WritableContentStore, opts ...Option) *Coordinator {
	c := &Coordinator{
		meta:      meta,
		blobs:     blobs,
		ttl:       DefaultSessionTTL,
		sessions:  make(map[uuid.UUID]*sessionState),
		pathLocks: make(map[string]*pathLock),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// InitiateParams describes a new upload.
type InitiateParams struct {
	OwnerID    uuid.UUID
	DeviceID   string
	TargetPath string

	// DeclaredSize is the total upload size in bytes.
	DeclaredSize uint64

	// DeclaredChecksum is the optional hex SHA-256 of the full content.
	// When empty, Commit skips the comparison and records the computed
	// hash on the node.
	DeclaredChecksum string

	Overwrite bool
}

// Initiate opens a new upload session.
//
// The target path is validated and, unless Overwrite is set, checked for a
// conflicting live node up front so clients fail fast. The authoritative
// conflict check happens again at commit.
func (c *Coordinator) Initiate(ctx context.Context, params InitiateParams) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path, err := metadata.CleanPath(params.TargetPath)
	if err != nil {
		return nil, err
	}
	if path == "/" {
		return nil, metadata.NewError(metadata.ErrInvalidArgument, "upload target is the root directory", path)
	}

	if existing, err := c.meta.ResolvePath(ctx, params.OwnerID, path); err == nil {
		node, err := c.meta.GetNode(ctx, existing)
		if err != nil {
			return nil, err
		}
		if node.Dir {
			return nil, metadata.NewError(metadata.ErrIsDirectory, "upload target is a directory", path)
		}
		if !params.Overwrite {
			return nil, metadata.NewError(metadata.ErrNameConflict, "target already exists", path)
		}
	} else if !metadata.IsCode(err, metadata.ErrNotFound) {
		return nil, err
	}

	now := time.Now()
	session := Session{
		ID:               uuid.New(),
		OwnerID:          params.OwnerID,
		DeviceID:         params.DeviceID,
		TargetPath:       path,
		DeclaredSize:     params.DeclaredSize,
		DeclaredChecksum: params.DeclaredChecksum,
		Overwrite:        params.Overwrite,
		CreatedAt:        now,
		LastActivity:     now,
	}

	c.mu.Lock()
	c.sessions[session.ID] = &sessionState{session: session}
	c.mu.Unlock()

	logger.Debug("upload initiated: id=%s path=%s size=%d overwrite=%v",
		session.ID, path, params.DeclaredSize, params.Overwrite)

	copied := session
	return &copied, nil
}

// lookup fetches the live session state.
func (c *Coordinator) lookup(id uuid.UUID) (*sessionState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	state, ok := c.sessions[id]
	if !ok {
		return nil, metadata.NewError(metadata.ErrUnknownUpload, "unknown upload session", id.String())
	}
	return state, nil
}

// lockPath takes the commit lock for one (owner, path) pair and returns the
// release func.
func (c *Coordinator) lockPath(ownerID uuid.UUID, path string) func() {
	key := ownerID.String() + path

	c.pathMu.Lock()
	l, ok := c.pathLocks[key]
	if !ok {
		l = &pathLock{}
		c.pathLocks[key] = l
	}
	l.refs++
	c.pathMu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()

		c.pathMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(c.pathLocks, key)
		}
		c.pathMu.Unlock()
	}
}

// PutChunk stages one chunk at the given offset.
//
// Re-sent chunks are verified byte-for-byte against the already staged
// overlap: a retry of the same data succeeds silently, different data fails
// with ErrChunkMismatch and leaves the staged bytes untouched.
func (c *Coordinator) PutChunk(ctx context.Context, id uuid.UUID, offset uint64, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(data) == 0 {
		return metadata.NewError(metadata.ErrInvalidArgument, "empty chunk", id.String())
	}

	state, err := c.lookup(id)
	if err != nil {
		return err
	}

	state.mu.Lock()
	defer state.mu.Unlock()

	if state.done {
		return metadata.NewError(metadata.ErrUnknownUpload, "unknown upload session", id.String())
	}

	end := offset + uint64(len(data))
	if end > state.session.DeclaredSize {
		return metadata.NewError(metadata.ErrOffsetOutOfRange,
			fmt.Sprintf("chunk [%d, %d) exceeds declared size %d", offset, end, state.session.DeclaredSize),
			state.session.TargetPath)
	}

	// Verify overlap with already staged ranges before writing anything.
	for _, r := range state.session.received.overlap(offset, end) {
		staged, err := c.blobs.ReadRange(ctx, id.String(), r.Start, r.End-r.Start)
		if err != nil {
			return fmt.Errorf("failed to read staged overlap: %w", err)
		}
		incoming := data[r.Start-offset : r.End-offset]
		if !bytes.Equal(staged, incoming) {
			return metadata.NewError(metadata.ErrChunkMismatch,
				fmt.Sprintf("chunk re-sent at offset %d with different bytes", r.Start),
				state.session.TargetPath)
		}
	}

	if err := c.blobs.WriteAt(ctx, id.String(), offset, data); err != nil {
		return fmt.Errorf("failed to stage chunk: %w", err)
	}

	state.session.received.add(offset, end)
	state.session.LastActivity = time.Now()
	return nil
}

// Status reports an upload's progress, staged ranges and missing ranges.
func (c *Coordinator) Status(ctx context.Context, id uuid.UUID) (*Status, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	state, err := c.lookup(id)
	if err != nil {
		return nil, err
	}

	state.mu.Lock()
	defer state.mu.Unlock()

	if state.done {
		return nil, metadata.NewError(metadata.ErrUnknownUpload, "unknown upload session", id.String())
	}

	session := &state.session
	status := &Status{
		ID:           session.ID,
		TargetPath:   session.TargetPath,
		DeclaredSize: session.DeclaredSize,
		Received:     session.received.covered(),
		Complete:     session.received.complete(session.DeclaredSize),
	}
	for _, r := range session.received.snapshot() {
		status.Staged = append(status.Staged, Range{Start: r.Start, End: r.End})
	}
	for _, r := range session.received.missing(session.DeclaredSize) {
		status.Missing = append(status.Missing, Range{Start: r.Start, End: r.End})
	}
	return status, nil
}

// Commit validates the staged upload and publishes it to the namespace.
//
// Validation order: contiguous coverage of the declared size, then checksum
// of the staged bytes. Only then is the metadata store touched, with a
// single CreateNode or ReplaceContent so the transition is atomic. On any
// validation failure the session stays open for the client to repair.
func (c *Coordinator) Commit(ctx context.Context, id uuid.UUID) (*metadata.FileNode, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	state, err := c.lookup(id)
	if err != nil {
		return nil, err
	}

	// OwnerID and TargetPath are immutable after Initiate, so they are
	// safe to read before the session lock.
	unlock := c.lockPath(state.session.OwnerID, state.session.TargetPath)
	defer unlock()

	state.mu.Lock()
	node, err := c.commitLocked(ctx, state)
	state.mu.Unlock()
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	delete(c.sessions, id)
	c.mu.Unlock()

	logger.Info("upload committed: id=%s path=%s size=%d", id, state.session.TargetPath, node.Size)
	return node, nil
}

// commitLocked runs the validation and publish steps. Caller holds the
// target-path lock and the session lock.
func (c *Coordinator) commitLocked(ctx context.Context, state *sessionState) (*metadata.FileNode, error) {
	session := &state.session

	if state.done {
		return nil, metadata.NewError(metadata.ErrUnknownUpload, "unknown upload session", session.ID.String())
	}

	if !session.received.complete(session.DeclaredSize) {
		missing := session.received.missing(session.DeclaredSize)
		return nil, metadata.NewError(metadata.ErrIncompleteUpload,
			fmt.Sprintf("%d byte range(s) missing", len(missing)), session.TargetPath)
	}

	// A zero-byte upload has no chunks; materialize the empty blob so the
	// checksum pass and later downloads have something to read.
	if session.DeclaredSize == 0 {
		exists, err := c.blobs.ContentExists(ctx, session.ID.String())
		if err != nil {
			return nil, err
		}
		if !exists {
			if _, err := c.blobs.WriteContent(ctx, session.ID.String(), bytes.NewReader(nil)); err != nil {
				return nil, err
			}
		}
	}

	checksum, err := c.stagedChecksum(ctx, session.ID)
	if err != nil {
		return nil, err
	}
	if session.DeclaredChecksum != "" && checksum != session.DeclaredChecksum {
		return nil, metadata.NewError(metadata.ErrChecksumMismatch,
			fmt.Sprintf("staged bytes hash to %s, declared %s", checksum, session.DeclaredChecksum),
			session.TargetPath)
	}

	node, err := c.publish(ctx, session, checksum)
	if err != nil {
		return nil, err
	}

	state.done = true
	return node, nil
}

// publish performs the single metadata mutation that makes the upload
// visible. The staging ref becomes the node's content ref unchanged.
func (c *Coordinator) publish(ctx context.Context, session *Session, checksum string) (*metadata.FileNode, error) {
	mimeType := detectMimeType(session.TargetPath)

	existingID, err := c.meta.ResolvePath(ctx, session.OwnerID, session.TargetPath)
	switch {
	case err == nil:
		if !session.Overwrite {
			return nil, metadata.NewError(metadata.ErrNameConflict, "target already exists", session.TargetPath)
		}
		return c.meta.ReplaceContent(ctx, existingID,
			session.DeclaredSize, checksum, session.ID.String(), mimeType, session.DeviceID)

	case metadata.IsCode(err, metadata.ErrNotFound):
		parentID, err := c.meta.ResolvePath(ctx, session.OwnerID, metadata.ParentPath(session.TargetPath))
		if err != nil {
			return nil, err
		}
		node := &metadata.FileNode{
			OwnerID:    session.OwnerID,
			ParentID:   &parentID,
			Name:       metadata.BaseName(session.TargetPath),
			Size:       session.DeclaredSize,
			Checksum:   checksum,
			MimeType:   mimeType,
			ContentRef: session.ID.String(),
		}
		nodeID, err := c.meta.CreateNode(ctx, node, session.DeviceID)
		if err != nil {
			return nil, err
		}
		return c.meta.GetNode(ctx, nodeID)

	default:
		return nil, err
	}
}

// stagedChecksum streams the staged blob through SHA-256.
func (c *Coordinator) stagedChecksum(ctx context.Context, id uuid.UUID) (string, error) {
	reader, err := c.blobs.ReadContent(ctx, id.String())
	if err != nil {
		return "", fmt.Errorf("failed to open staged blob: %w", err)
	}
	defer reader.Close()

	hash := sha256.New()
	if _, err := io.Copy(hash, reader); err != nil {
		return "", fmt.Errorf("failed to hash staged blob: %w", err)
	}
	return hex.EncodeToString(hash.Sum(nil)), nil
}

// Abandon discards a session and deletes its staged bytes.
func (c *Coordinator) Abandon(ctx context.Context, id uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	state, ok := c.sessions[id]
	delete(c.sessions, id)
	c.mu.Unlock()

	if !ok {
		return metadata.NewError(metadata.ErrUnknownUpload, "unknown upload session", id.String())
	}

	state.mu.Lock()
	done := state.done
	state.done = true
	state.mu.Unlock()
	if done {
		// Lost a race with a concurrent commit or sweep; the staging ref
		// is no longer ours to delete.
		return metadata.NewError(metadata.ErrUnknownUpload, "unknown upload session", id.String())
	}

	if err := c.blobs.DeleteContent(ctx, id.String()); err != nil && !isContentNotFound(err) {
		return err
	}

	logger.Debug("upload abandoned: id=%s", id)
	return nil
}

// SweepExpired abandons sessions idle past the TTL and deletes their staged
// bytes. Returns the number of sessions reclaimed.
//
// The session map is snapshotted first; session locks are never acquired
// while the coordinator mutex is held.
func (c *Coordinator) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	c.mu.Lock()
	candidates := make(map[uuid.UUID]*sessionState, len(c.sessions))
	for id, state := range c.sessions {
		candidates[id] = state
	}
	c.mu.Unlock()

	var expired []uuid.UUID
	for id, state := range candidates {
		state.mu.Lock()
		if !state.done && now.Sub(state.session.LastActivity) > c.ttl {
			state.done = true
			expired = append(expired, id)
		}
		state.mu.Unlock()
	}

	c.mu.Lock()
	for _, id := range expired {
		delete(c.sessions, id)
	}
	c.mu.Unlock()

	for _, id := range expired {
		if err := c.blobs.DeleteContent(ctx, id.String()); err != nil && !isContentNotFound(err) {
			logger.Warn("failed to delete expired staging blob %s: %v", id, err)
		}
	}

	if len(expired) > 0 {
		logger.Info("swept %d expired upload session(s)", len(expired))
	}
	return len(expired), nil
}

// ActiveStagingRefs returns the content refs of all in-flight sessions,
// sorted. The gc collector must not treat these as orphans.
func (c *Coordinator) ActiveStagingRefs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	refs := make([]string, 0, len(c.sessions))
	for id := range c.sessions {
		refs = append(refs, id.String())
	}
	sort.Strings(refs)
	return refs
}

// detectMimeType maps the target path's extension to a mime type, falling
// back to application/octet-stream.
func detectMimeType(path string) string {
	if mimeType := mime.TypeByExtension(filepath.Ext(path)); mimeType != "" {
		return mimeType
	}
	return "application/octet-stream"
}

func isContentNotFound(err error) bool {
	return errors.Is(err, content.ErrContentNotFound)
}
