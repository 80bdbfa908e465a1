// Package memory provides an in-memory MetadataStore implementation.
//
// This implementation is suitable for testing and development environments,
// ephemeral servers where persistence is not required, and as the reference
// against which persistent backends are validated (both run the shared suite
// in pkg/metadata/testing).
//
// Thread Safety:
// State is sharded per user: each user's namespace, sync sessions and change
// log live in their own tree with a dedicated read-write mutex, so mutations
// in unrelated trees proceed concurrently. A registry lock covers the user
// table and the node-owner index, and share links carry their own lock.
// Change-log entries are published to the configured ChangeSink after the
// tree lock is released, so a slow sink never blocks mutators.
package memory

import (
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/marmos91/synkerd/pkg/metadata"
)

// tree holds one user's namespace, sync sessions and change log.
//
// Storage Model:
//
//  1. Nodes (nodes, children):
//     nodes maps node ids to attributes (including tombstones); children
//     maps each directory id to its live child entries (name → id).
//     Tombstoned nodes stay in nodes (keeping historical parent chains
//     resolvable) but are removed from children, which frees the name.
//
//  2. Sessions (sessions):
//     One SyncSession per device id.
//
//  3. Change log (log, floor):
//     Append-only slice. floor is the highest trimmed sequence number;
//     log[0].Seq == floor+1 whenever the log is non-empty.
type tree struct {
	mu sync.RWMutex

	root     uuid.UUID
	nodes    map[uuid.UUID]*metadata.FileNode
	children map[uuid.UUID]map[string]uuid.UUID
	sessions map[string]*metadata.SyncSession

	log   []metadata.ChangeOp
	floor metadata.Cursor
}

// Store implements metadata.MetadataStore using in-memory maps sharded per
// user.
//
// Lock order: the registry lock (mu) and the link lock (linkMu) are leaves,
// taken either alone or while a tree lock is held. Neither is ever held
// while a tree lock is being acquired.
type Store struct {
	// mu guards the user registry (users, usersByName, trees) and the
	// node-owner index used to find a node's tree by id.
	mu          sync.RWMutex
	users       map[uuid.UUID]*metadata.User
	usersByName map[string]uuid.UUID
	trees       map[uuid.UUID]*tree
	owners      map[uuid.UUID]uuid.UUID

	// linkMu guards the share-link table. Links are keyed by token and
	// looked up without knowing the owner, so they sit outside the trees.
	linkMu sync.Mutex
	links  map[string]*metadata.ShareLink

	sinkMu sync.RWMutex
	sink   metadata.ChangeSink
}

// NewStore creates an empty in-memory metadata store, immediately ready for
// concurrent use.
func NewStore() *Store {
	return &Store{
		users:       make(map[uuid.UUID]*metadata.User),
		usersByName: make(map[string]uuid.UUID),
		trees:       make(map[uuid.UUID]*tree),
		owners:      make(map[uuid.UUID]uuid.UUID),
		links:       make(map[string]*metadata.ShareLink),
	}
}

// treeFor returns the tree owned by userID.
func (s *Store) treeFor(userID uuid.UUID) (*tree, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.trees[userID]
	return t, ok
}

// treeOf resolves the tree containing nodeID through the owner index.
func (s *Store) treeOf(nodeID uuid.UUID) (*tree, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	owner, ok := s.owners[nodeID]
	if !ok {
		return nil, false
	}
	t, ok := s.trees[owner]
	return t, ok
}

// indexOwner records which user's tree a node lives in.
func (s *Store) indexOwner(nodeID, userID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.owners[nodeID] = userID
}

// dropOwner removes a node from the owner index once its row is gone.
func (s *Store) dropOwner(nodeID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.owners, nodeID)
}

// SetChangeSink installs the sink notified of committed change entries.
func (s *Store) SetChangeSink(sink metadata.ChangeSink) {
	s.sinkMu.Lock()
	defer s.sinkMu.Unlock()
	s.sink = sink
}

// publish delivers ops to the sink. Called after the tree lock is released.
func (s *Store) publish(ops []metadata.ChangeOp) {
	s.sinkMu.RLock()
	sink := s.sink
	s.sinkMu.RUnlock()

	if sink == nil {
		return
	}
	for _, op := range ops {
		sink.Publish(op.UserID, op)
	}
}

// copyNode returns a defensive copy so callers can't mutate stored state.
func copyNode(node *metadata.FileNode) *metadata.FileNode {
	clone := *node
	if node.ParentID != nil {
		parent := *node.ParentID
		clone.ParentID = &parent
	}
	return &clone
}

func copyUser(user *metadata.User) *metadata.User {
	clone := *user
	clone.Permissions = append([]string(nil), user.Permissions...)
	return &clone
}

func copySession(session *metadata.SyncSession) *metadata.SyncSession {
	clone := *session
	clone.SyncFolders = append([]string(nil), session.SyncFolders...)
	return &clone
}

func copyLink(link *metadata.ShareLink) *metadata.ShareLink {
	clone := *link
	if link.ExpiresAt != nil {
		expires := *link.ExpiresAt
		clone.ExpiresAt = &expires
	}
	if link.MaxDownloads != nil {
		max := *link.MaxDownloads
		clone.MaxDownloads = &max
	}
	return &clone
}

// copyOp deep-copies a change entry, including the node snapshot.
func copyOp(op metadata.ChangeOp) metadata.ChangeOp {
	clone := op
	if op.Node != nil {
		clone.Node = copyNode(op.Node)
	}
	return clone
}

// sortedChildren returns a directory's live children ordered by name.
// Caller must hold at least a read lock on the tree.
func (t *tree) sortedChildren(parentID uuid.UUID) []metadata.FileNode {
	entries := t.children[parentID]
	names := make([]string, 0, len(entries))
	for name := range entries {
		names = append(names, name)
	}
	sort.Strings(names)

	nodes := make([]metadata.FileNode, 0, len(names))
	for _, name := range names {
		if node, ok := t.nodes[entries[name]]; ok {
			nodes = append(nodes, *copyNode(node))
		}
	}
	return nodes
}
