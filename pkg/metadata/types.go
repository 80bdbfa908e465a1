package metadata

import (
	"time"

	"github.com/google/uuid"
)

// ============================================================================
// Domain Types
// ============================================================================

// User is a mirrored identity row.
//
// Synkerd does not own credentials: authentication happens against an external
// identity provider (pkg/identity) and the resulting account is mirrored here
// so that nodes, sessions and share links can reference a stable local id.
type User struct {
	// ID is the deterministic local id derived from the external username.
	ID uuid.UUID

	// Username is the external account name, unique across the store.
	Username string

	// Email is the account email reported by the identity provider.
	Email string

	// Permissions are the provider-reported capability strings, stored
	// verbatim for diagnostics.
	Permissions []string

	// Active is false once the account is disabled upstream.
	Active bool

	// CreatedAt is when the user was first mirrored.
	CreatedAt time.Time

	// LastLogin is the last successful authentication through this server.
	LastLogin time.Time
}

// DeterministicUserID derives the stable local id for an external username.
// Mirroring the same account on different servers (or after a wipe) yields
// the same id, keeping content refs and share links portable.
func DeterministicUserID(username string) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte("synkerd:user:"+username))
}

// FilePermissions is the per-node capability set.
type FilePermissions struct {
	Read   bool
	Write  bool
	Delete bool
	Share  bool
}

// OwnerPermissions returns the full capability set granted to a node's owner.
func OwnerPermissions() FilePermissions {
	return FilePermissions{Read: true, Write: true, Delete: true, Share: true}
}

// FileNode is one entry in the hierarchical namespace: a file or a directory.
//
// Content bytes are never stored here. For files, ContentRef names the blob in
// the content store and Checksum/Size describe it; for directories all three
// are empty.
type FileNode struct {
	// ID is the store-assigned node id, stable across renames and moves.
	ID uuid.UUID

	// OwnerID is the owning user. Nodes never change owner.
	OwnerID uuid.UUID

	// ParentID is the containing directory. It is nil only for the
	// per-user root.
	ParentID *uuid.UUID

	// Name is the node's name within its parent. The per-user root has an
	// empty name.
	Name string

	// Dir is true for directories.
	Dir bool

	// Size is the content size in bytes (zero for directories).
	Size uint64

	// Checksum is the lowercase hex SHA-256 of the content (empty for
	// directories).
	Checksum string

	// MimeType is the detected content type.
	MimeType string

	// ContentRef names the blob in the content store (empty for
	// directories).
	ContentRef string

	CreatedAt  time.Time
	ModifiedAt time.Time

	// Perm is the capability set on this node.
	Perm FilePermissions

	// Deleted marks a tombstone. Tombstones are invisible to namespace
	// operations but remain resolvable by id until their deletion entry is
	// trimmed from the change log.
	Deleted bool
}

// SyncSession tracks one device's position in its user's change log.
type SyncSession struct {
	// UserID and DeviceID form the session key.
	UserID   uuid.UUID
	DeviceID string

	// DeviceName is the human-readable device label.
	DeviceName string

	// Cursor is the highest change-log sequence number the device has
	// acknowledged. It only ever moves forward.
	Cursor Cursor

	// SyncFolders restricts delta computation to these canonical folder
	// paths. Empty means the whole tree.
	SyncFolders []string

	// Active is false after an explicit unlink or inactivity cleanup.
	Active bool

	// LastSync is the last time the device pulled or acknowledged changes.
	LastSync time.Time
}

// ShareLink grants time- and quota-bounded download access to a single file
// through an unguessable token.
type ShareLink struct {
	// Token is the URL-safe secret identifying the link.
	Token string

	// FileID is the shared file node.
	FileID uuid.UUID

	// CreatedBy is the user that issued the link.
	CreatedBy uuid.UUID

	// ExpiresAt is the optional expiry instant (nil means no expiry).
	ExpiresAt *time.Time

	// PasswordHash is the optional bcrypt hash gating redemption (empty
	// means no password).
	PasswordHash string

	// DownloadCount is the number of successful redemptions so far.
	DownloadCount uint32

	// MaxDownloads is the optional redemption quota (nil means unlimited).
	MaxDownloads *uint32

	// Revoked marks a permanently disabled link. Revoked links surface as
	// not-found to redeemers.
	Revoked bool

	CreatedAt time.Time
}

// ============================================================================
// Change Log Types
// ============================================================================

// Cursor is a position in one user's change log. Zero is "before the first
// entry"; sequence numbers are per-user and strictly increasing.
type Cursor uint64

// ChangeType classifies a change-log entry.
type ChangeType int

const (
	ChangeCreated ChangeType = iota
	ChangeModified
	ChangeDeleted
	ChangeMoved
)

// String returns the wire name of the change type.
func (t ChangeType) String() string {
	switch t {
	case ChangeCreated:
		return "created"
	case ChangeModified:
		return "modified"
	case ChangeDeleted:
		return "deleted"
	case ChangeMoved:
		return "moved"
	default:
		return "unknown"
	}
}

// ChangeOp is one committed entry in a user's change log.
type ChangeOp struct {
	// Seq is the per-user sequence number, assigned at commit.
	Seq Cursor

	// Type classifies the mutation.
	Type ChangeType

	// NodeID is the affected node.
	NodeID uuid.UUID

	// UserID is the owning user (the log the entry lives in).
	UserID uuid.UUID

	// Path is the node's canonical path after the mutation.
	Path string

	// OldPath is the canonical path before a move (empty otherwise).
	OldPath string

	// Origin is the device id that caused the mutation, or empty for
	// server-side changes. Delta computation uses it to detect conflicts
	// and to avoid echoing a device's own changes back at it.
	Origin string

	// Node is a snapshot of the node after the mutation. It is nil for
	// deletions.
	Node *FileNode

	// Timestamp is when the entry was committed.
	Timestamp time.Time
}

// ChangeSink receives committed change entries.
//
// Implementations must not block: stores deliver entries synchronously after
// releasing their locks, and a slow sink delays the mutator's caller.
type ChangeSink interface {
	Publish(userID uuid.UUID, op ChangeOp)
}
