// Package deltasync computes the minimal change set a device needs to
// converge with the server's view of its user's tree.
//
// The engine replays the per-user change log from the device's acknowledged
// cursor, scopes it to the device's sync folders, collapses multiple entries
// per node into one effective change and detects concurrent-edit conflicts.
//
// Conflict Policy:
// Conflicts are surfaced, never resolved. A node touched since the cursor
// both by the requesting device and by any other origin is excluded from the
// change list and reported separately; the client decides how to reconcile
// before acknowledging.
package deltasync

import (
	"context"

	"github.com/google/uuid"
	"github.com/marmos91/synkerd/internal/logger"
	"github.com/marmos91/synkerd/pkg/metadata"
)

// Engine computes deltas over a metadata store's change logs.
type Engine struct {
	meta metadata.MetadataStore
}

// NewEngine creates a delta-sync engine.
func NewEngine(meta metadata.MetadataStore) *Engine {
	return &Engine{meta: meta}
}

// Delta is the result of one delta computation.
type Delta struct {
	// Changes are the collapsed effective changes the device must apply,
	// in change-log order of each node's last entry.
	Changes []Change

	// Conflicts are nodes with concurrent edits from the requesting
	// device and another origin. They are excluded from Changes.
	Conflicts []Conflict

	// Cursor is the log head covered by this delta. The device passes it
	// to Acknowledge after applying (and resolving conflicts).
	Cursor metadata.Cursor
}

// Change is one collapsed, effective change for a node.
type Change struct {
	// Type is the effective change type after collapsing.
	Type metadata.ChangeType

	// NodeID is the affected node.
	NodeID uuid.UUID

	// Path is the node's path after all collapsed entries.
	Path string

	// OldPath is the node's path before the first collapsed move (empty
	// unless Type is ChangeMoved).
	OldPath string

	// Node is the latest snapshot (nil for deletions).
	Node *metadata.FileNode
}

// Conflict reports concurrent edits on one node.
type Conflict struct {
	// NodeID is the contested node.
	NodeID uuid.UUID

	// Path is the node's most recent path in the replayed window.
	Path string

	// Origins are the distinct non-requesting origins that touched the
	// node ("" marks server-side changes).
	Origins []string
}

// ComputeDelta computes the changes a device needs since its acknowledged
// cursor.
//
// Returns:
//   - error: ErrNotFound if the device has no session, ErrCursorExpired if
//     the log was trimmed past the device's cursor (the device must call
//     Snapshot and re-register instead)
func (e *Engine) ComputeDelta(ctx context.Context, userID uuid.UUID, deviceID string) (*Delta, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	session, err := e.meta.GetSession(ctx, userID, deviceID)
	if err != nil {
		return nil, err
	}

	ops, head, err := e.meta.ChangesSince(ctx, userID, session.Cursor)
	if err != nil {
		return nil, err
	}

	scoped := scopeToFolders(ops, session.SyncFolders)
	delta := collapse(scoped, deviceID)
	delta.Cursor = head

	logger.Debug("delta computed: user=%s device=%s ops=%d changes=%d conflicts=%d",
		userID, deviceID, len(ops), len(delta.Changes), len(delta.Conflicts))
	return delta, nil
}

// Acknowledge records that a device has applied everything up to cursor.
func (e *Engine) Acknowledge(ctx context.Context, userID uuid.UUID, deviceID string, cursor metadata.Cursor) error {
	return e.meta.AdvanceCursor(ctx, userID, deviceID, cursor)
}

// Snapshot returns the full live tree (scoped to folders, if any) together
// with the log head the snapshot corresponds to. Devices whose cursor
// expired bootstrap from a snapshot and acknowledge the returned cursor.
func (e *Engine) Snapshot(ctx context.Context, userID uuid.UUID, folders []string) ([]metadata.FileNode, metadata.Cursor, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}

	// Read the head before walking: changes committed during the walk
	// will be picked up by the next delta rather than silently skipped.
	head, err := e.meta.LatestCursor(ctx, userID)
	if err != nil {
		return nil, 0, err
	}

	rootID, err := e.meta.GetUserRoot(ctx, userID)
	if err != nil {
		return nil, 0, err
	}

	var nodes []metadata.FileNode
	var walk func(dirID uuid.UUID, dirPath string) error
	walk = func(dirID uuid.UUID, dirPath string) error {
		children, err := e.meta.ListChildren(ctx, dirID)
		if err != nil {
			return err
		}
		for _, child := range children {
			childPath := metadata.JoinPath(dirPath, child.Name)
			if folderMatch(childPath, folders) {
				nodes = append(nodes, child)
			}
			if child.Dir {
				if err := walk(child.ID, childPath); err != nil {
					return err
				}
			}
		}
		return nil
	}
	if err := walk(rootID, "/"); err != nil {
		return nil, 0, err
	}

	return nodes, head, nil
}

// scopeToFolders drops entries outside the device's sync folders. An entry
// counts as in scope if either its path or its pre-move path lies within any
// folder, so moves out of scope still reach the device as deletions of the
// old path.
func scopeToFolders(ops []metadata.ChangeOp, folders []string) []metadata.ChangeOp {
	if len(folders) == 0 {
		return ops
	}

	scoped := make([]metadata.ChangeOp, 0, len(ops))
	for _, op := range ops {
		if folderMatch(op.Path, folders) || (op.OldPath != "" && folderMatch(op.OldPath, folders)) {
			scoped = append(scoped, op)
		}
	}
	return scoped
}

// folderMatch reports whether path lies within any of folders (an empty
// folder list matches everything).
func folderMatch(path string, folders []string) bool {
	if len(folders) == 0 {
		return true
	}
	for _, folder := range folders {
		if metadata.PathWithin(path, folder) {
			return true
		}
	}
	return false
}
