package metadata

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ============================================================================
// MetadataStore Interface
// ============================================================================

// MetadataStore owns the hierarchical namespace: files, directories,
// ownership, checksums, sync sessions, share links and the per-user
// append-only change log. It is the single source of truth for "what exists
// where".
//
// Separation of Concerns:
//
// The metadata store manages structure and metadata but NOT file content.
// Content bytes live in a content store (pkg/content) and are referenced by
// FileNode.ContentRef. The upload coordinator stages bytes in the content
// store and publishes them here with a single atomic CreateNode or
// ReplaceContent at commit time, so a partially transferred file is never
// visible in the tree.
//
// Change Log:
//
// Every successful mutation appends exactly one ChangeOp to the owning
// user's log, with a per-user monotonically increasing sequence number.
// The delta-sync engine (pkg/deltasync) replays the log to converge devices;
// the configured ChangeSink receives each entry as it is committed.
//
// Design Principles:
//   - Protocol-agnostic: no HTTP or wire-format concepts
//   - Consistent error handling: business errors are *StoreError
//   - Context-aware: all operations respect cancellation and timeouts
//   - Atomic mutations: a crash or concurrent conflicting mutation never
//     leaves a dangling parent or a duplicate sibling name
//
// Thread Safety:
// Implementations must be safe for concurrent use by multiple goroutines.
// Serialization is required only per affected subtree; unrelated parts of
// the tree must be able to mutate concurrently.
type MetadataStore interface {
	// ========================================================================
	// User Mirroring
	// ========================================================================

	// PutUser creates or refreshes a mirrored user row.
	//
	// On first insert the user's root directory node is created as well.
	// Subsequent calls update the mutable fields (email, permissions,
	// activity flag, last login) and leave CreatedAt and the root intact.
	//
	// Returns:
	//   - error: ErrInvalidArgument if the username is empty, or context
	//     cancellation error
	PutUser(ctx context.Context, user *User) error

	// GetUser retrieves a mirrored user by id.
	//
	// Returns:
	//   - *User: copy of the user row
	//   - error: ErrNotFound if the user was never mirrored
	GetUser(ctx context.Context, id uuid.UUID) (*User, error)

	// GetUserByUsername retrieves a mirrored user by external username.
	GetUserByUsername(ctx context.Context, username string) (*User, error)

	// GetUserRoot returns the id of the user's root directory node.
	GetUserRoot(ctx context.Context, userID uuid.UUID) (uuid.UUID, error)

	// ListUsers returns all mirrored users. Used by the gc collector to
	// walk per-user change logs.
	ListUsers(ctx context.Context) ([]User, error)

	// ========================================================================
	// Node Operations
	// ========================================================================

	// CreateNode inserts a new file or directory under node.ParentID.
	//
	// The store assigns the id (if zero) and timestamps and appends a
	// ChangeCreated entry. Origin is the device that caused the mutation
	// (empty for server-side changes).
	//
	// Returns:
	//   - uuid.UUID: id of the created node
	//   - error: ErrNameConflict if a live sibling has the name,
	//     ErrInvalidParent if the parent is missing/not a directory/owned by
	//     another user, ErrInvalidArgument for an illegal name
	CreateNode(ctx context.Context, node *FileNode, origin string) (uuid.UUID, error)

	// GetNode retrieves a node by id. Tombstoned nodes are returned with
	// Deleted set; callers that only want live nodes must check the flag.
	//
	// Returns:
	//   - error: ErrNotFound if the id was never allocated
	GetNode(ctx context.Context, id uuid.UUID) (*FileNode, error)

	// NodePath derives the canonical path of a node by walking parent links
	// up to the per-user root. The walk is bounded and a broken or cyclic
	// chain aborts with an error: such a state is unreachable through this
	// interface, so detection is a defensive assertion, not a recoverable
	// path.
	NodePath(ctx context.Context, id uuid.UUID) (string, error)

	// ResolvePath resolves a canonical path to a live node id within one
	// user's tree.
	//
	// Returns:
	//   - error: ErrNotFound if any segment is missing or tombstoned
	ResolvePath(ctx context.Context, userID uuid.UUID, path string) (uuid.UUID, error)

	// ListChildren returns the live children of a directory, ordered by
	// name.
	//
	// Returns:
	//   - error: ErrNotFound if the parent doesn't exist or is tombstoned,
	//     ErrNotDirectory if the parent is a file
	ListChildren(ctx context.Context, parentID uuid.UUID) ([]FileNode, error)

	// MoveNode renames and/or re-parents a node atomically and appends a
	// ChangeMoved entry.
	//
	// The cycle check walks the candidate new-parent chain up to the root
	// before committing; an operation that would make the node its own
	// ancestor fails with ErrCycleDetected.
	//
	// Returns:
	//   - error: ErrNotFound, ErrNameConflict, ErrCycleDetected,
	//     ErrInvalidParent, ErrInvalidArgument
	MoveNode(ctx context.Context, id, newParentID uuid.UUID, newName string, origin string) error

	// DeleteNode tombstones a node and appends ChangeDeleted entries.
	//
	// With recursive=true the whole subtree is tombstoned depth-first
	// (children before parents, so replayed logs never reference a deleted
	// parent). Share links pointing at any tombstoned node are revoked.
	//
	// Returns:
	//   - error: ErrNotFound, ErrNotEmpty if recursive=false and the
	//     directory has live children, ErrInvalidArgument for the root
	DeleteNode(ctx context.Context, id uuid.UUID, recursive bool, origin string) error

	// ReplaceContent atomically swaps a file's content metadata (size,
	// checksum, content ref, mime type) and appends a ChangeModified entry.
	// This is the commit half of a content-replacing upload.
	//
	// Returns:
	//   - *FileNode: the updated node
	//   - error: ErrNotFound, ErrIsDirectory
	ReplaceContent(ctx context.Context, id uuid.UUID, size uint64, checksum, contentRef, mimeType string, origin string) (*FileNode, error)

	// ========================================================================
	// Change Log
	// ========================================================================

	// ChangesSince returns the change-log entries for one user with
	// sequence numbers strictly greater than cursor, in order, together
	// with the log's current head cursor.
	//
	// Returns:
	//   - error: ErrCursorExpired if entries after cursor were already
	//     trimmed (the caller must request a full snapshot instead)
	ChangesSince(ctx context.Context, userID uuid.UUID, cursor Cursor) ([]ChangeOp, Cursor, error)

	// LatestCursor returns the head of a user's change log (zero if the
	// log is empty).
	LatestCursor(ctx context.Context, userID uuid.UUID) (Cursor, error)

	// TrimChangeLog drops entries with sequence numbers <= upto and prunes
	// tombstones whose deletion entry was dropped. After a trim, cursors
	// at or before upto report ErrCursorExpired from ChangesSince.
	TrimChangeLog(ctx context.Context, userID uuid.UUID, upto Cursor) error

	// ========================================================================
	// Sync Sessions
	// ========================================================================

	// RegisterSession creates or reactivates the session for a (user,
	// device) pair. An existing session keeps its cursor; device name and
	// sync folders are refreshed.
	RegisterSession(ctx context.Context, session *SyncSession) (*SyncSession, error)

	// GetSession retrieves the session for a (user, device) pair.
	//
	// Returns:
	//   - error: ErrNotFound if the device never registered
	GetSession(ctx context.Context, userID uuid.UUID, deviceID string) (*SyncSession, error)

	// ListSessions returns all sessions of a user.
	ListSessions(ctx context.Context, userID uuid.UUID) ([]SyncSession, error)

	// AdvanceCursor moves a session's cursor forward. Cursors only ever
	// advance; a cursor before the current one, or past the log head,
	// fails with ErrInvalidArgument. Re-acknowledging the current cursor
	// is an idempotent no-op.
	AdvanceCursor(ctx context.Context, userID uuid.UUID, deviceID string, cursor Cursor) error

	// DeactivateSession marks a session inactive (explicit device unlink
	// or inactivity cleanup). Idempotent.
	DeactivateSession(ctx context.Context, userID uuid.UUID, deviceID string) error

	// ========================================================================
	// Share Links
	// ========================================================================

	// CreateShareLink stores a new share link. The token must be unique.
	//
	// Returns:
	//   - error: ErrNotFound if the target node doesn't exist or is
	//     tombstoned, ErrInvalidArgument for an empty token
	CreateShareLink(ctx context.Context, link *ShareLink) error

	// GetShareLink retrieves a link by token without redeeming it.
	// Revoked links surface as ErrNotFound.
	GetShareLink(ctx context.Context, token string) (*ShareLink, error)

	// RedeemShareLink performs the atomic conditional check-and-increment
	// on the download counter. Expiry, revocation, quota check and the
	// increment happen in a single critical section (or transaction), so
	// concurrent redemptions racing for the last quota slot cannot both
	// succeed.
	//
	// Returns:
	//   - *ShareLink: the link after the increment
	//   - error: ErrNotFound (unknown or revoked token), ErrExpired,
	//     ErrQuotaExceeded
	RedeemShareLink(ctx context.Context, token string, now time.Time) (*ShareLink, error)

	// RevokeShareLink makes a link permanently unusable regardless of
	// remaining quota or expiry. Idempotent on already revoked links.
	//
	// Returns:
	//   - error: ErrNotFound for an unknown token
	RevokeShareLink(ctx context.Context, token string) error

	// ListShareLinks returns all links created by a user, including
	// revoked ones.
	ListShareLinks(ctx context.Context, userID uuid.UUID) ([]ShareLink, error)

	// ========================================================================
	// Maintenance & Health
	// ========================================================================

	// ListContentRefs returns the content references of all live file
	// nodes. The gc collector diffs this against the content store to find
	// orphaned blobs.
	ListContentRefs(ctx context.Context) ([]string, error)

	// SetChangeSink installs the sink that receives committed ChangeOps.
	// Must be called before concurrent use; a nil sink disables delivery.
	SetChangeSink(sink ChangeSink)

	// Healthcheck verifies the store is operational. Implementations with
	// external dependencies verify connectivity; in-memory implementations
	// return nil.
	Healthcheck(ctx context.Context) error

	// Close releases underlying resources. The store must not be used
	// afterwards.
	Close() error
}
