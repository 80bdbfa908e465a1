package memory

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/marmos91/synkerd/pkg/metadata"
)

// maxPathDepth bounds parent-chain walks. A chain longer than this means the
// store is corrupt.
const maxPathDepth = 4096

// CreateNode inserts a new file or directory under node.ParentID.
func (s *Store) CreateNode(ctx context.Context, node *metadata.FileNode, origin string) (uuid.UUID, error) {
	if err := ctx.Err(); err != nil {
		return uuid.Nil, err
	}
	if err := metadata.ValidateName(node.Name); err != nil {
		return uuid.Nil, err
	}
	if node.ParentID == nil {
		return uuid.Nil, metadata.NewError(metadata.ErrInvalidParent,
			"parent id required", node.Name)
	}

	t, ok := s.treeOf(*node.ParentID)
	if !ok {
		return uuid.Nil, metadata.NewError(metadata.ErrInvalidParent,
			"parent does not exist", node.Name)
	}

	t.mu.Lock()

	parent, ok := t.nodes[*node.ParentID]
	if !ok || parent.Deleted {
		t.mu.Unlock()
		return uuid.Nil, metadata.NewError(metadata.ErrInvalidParent,
			"parent does not exist", node.Name)
	}
	if !parent.Dir {
		t.mu.Unlock()
		return uuid.Nil, metadata.NewError(metadata.ErrInvalidParent,
			"parent is not a directory", node.Name)
	}
	if parent.OwnerID != node.OwnerID {
		t.mu.Unlock()
		return uuid.Nil, metadata.NewError(metadata.ErrInvalidParent,
			"parent belongs to another user", node.Name)
	}
	if _, exists := t.children[parent.ID][node.Name]; exists {
		t.mu.Unlock()
		return uuid.Nil, metadata.NewError(metadata.ErrNameConflict,
			"name already exists in directory", node.Name)
	}

	now := time.Now()
	stored := copyNode(node)
	if stored.ID == uuid.Nil {
		stored.ID = uuid.New()
	}
	stored.CreatedAt = now
	stored.ModifiedAt = now
	stored.Deleted = false
	if stored.Perm == (metadata.FilePermissions{}) {
		stored.Perm = metadata.OwnerPermissions()
	}
	if stored.Dir {
		stored.Size = 0
		stored.Checksum = ""
		stored.ContentRef = ""
		if stored.MimeType == "" {
			stored.MimeType = "inode/directory"
		}
	}

	t.nodes[stored.ID] = stored
	t.children[parent.ID][stored.Name] = stored.ID
	if stored.Dir {
		t.children[stored.ID] = make(map[string]uuid.UUID)
	}

	path, err := t.nodePathLocked(stored.ID)
	if err != nil {
		// Unreachable with a consistent tree; undo and report.
		delete(t.nodes, stored.ID)
		delete(t.children, stored.ID)
		delete(t.children[parent.ID], stored.Name)
		t.mu.Unlock()
		return uuid.Nil, err
	}

	op := t.appendChangeLocked(metadata.ChangeCreated, stored, path, "", origin)
	s.indexOwner(stored.ID, stored.OwnerID)
	t.mu.Unlock()

	s.publish([]metadata.ChangeOp{op})
	return stored.ID, nil
}

// GetNode retrieves a node by id, including tombstones.
func (s *Store) GetNode(ctx context.Context, id uuid.UUID) (*metadata.FileNode, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	t, ok := s.treeOf(id)
	if !ok {
		return nil, metadata.NewError(metadata.ErrNotFound, "node not found", id.String())
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	node, ok := t.nodes[id]
	if !ok {
		return nil, metadata.NewError(metadata.ErrNotFound, "node not found", id.String())
	}
	return copyNode(node), nil
}

// NodePath derives the canonical path of a node by walking parent links.
func (s *Store) NodePath(ctx context.Context, id uuid.UUID) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	t, ok := s.treeOf(id)
	if !ok {
		return "", metadata.NewError(metadata.ErrNotFound, "node not found", id.String())
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	return t.nodePathLocked(id)
}

// nodePathLocked walks parent links up to the root. Caller must hold at
// least a read lock on the tree.
func (t *tree) nodePathLocked(id uuid.UUID) (string, error) {
	segments := make([]string, 0, 8)

	current, ok := t.nodes[id]
	if !ok {
		return "", metadata.NewError(metadata.ErrNotFound, "node not found", id.String())
	}

	for depth := 0; current.ParentID != nil; depth++ {
		if depth >= maxPathDepth {
			return "", metadata.NewError(metadata.ErrInvalidArgument,
				"parent chain too deep or cyclic", id.String())
		}
		segments = append(segments, current.Name)

		parent, ok := t.nodes[*current.ParentID]
		if !ok {
			return "", metadata.NewError(metadata.ErrNotFound,
				"broken parent chain", id.String())
		}
		current = parent
	}

	if len(segments) == 0 {
		return "/", nil
	}

	// Segments were collected leaf-first.
	var b []byte
	for i := len(segments) - 1; i >= 0; i-- {
		b = append(b, '/')
		b = append(b, segments[i]...)
	}
	return string(b), nil
}

// ResolvePath resolves a canonical path to a live node id within one user's
// tree.
func (s *Store) ResolvePath(ctx context.Context, userID uuid.UUID, path string) (uuid.UUID, error) {
	if err := ctx.Err(); err != nil {
		return uuid.Nil, err
	}

	segments, err := metadata.SplitPath(path)
	if err != nil {
		return uuid.Nil, err
	}

	t, ok := s.treeFor(userID)
	if !ok {
		return uuid.Nil, metadata.NewError(metadata.ErrNotFound, "user not found", userID.String())
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	current := t.root
	for _, segment := range segments {
		next, ok := t.children[current][segment]
		if !ok {
			return uuid.Nil, metadata.NewError(metadata.ErrNotFound, "path not found", path)
		}
		current = next
	}

	return current, nil
}

// ListChildren returns the live children of a directory, ordered by name.
func (s *Store) ListChildren(ctx context.Context, parentID uuid.UUID) ([]metadata.FileNode, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	t, ok := s.treeOf(parentID)
	if !ok {
		return nil, metadata.NewError(metadata.ErrNotFound, "directory not found", parentID.String())
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	parent, ok := t.nodes[parentID]
	if !ok || parent.Deleted {
		return nil, metadata.NewError(metadata.ErrNotFound, "directory not found", parentID.String())
	}
	if !parent.Dir {
		return nil, metadata.NewError(metadata.ErrNotDirectory, "node is not a directory", parent.Name)
	}

	return t.sortedChildren(parentID), nil
}

// ReplaceContent atomically swaps a file's content metadata.
func (s *Store) ReplaceContent(
	ctx context.Context,
	id uuid.UUID,
	size uint64,
	checksum, contentRef, mimeType string,
	origin string,
) (*metadata.FileNode, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	t, ok := s.treeOf(id)
	if !ok {
		return nil, metadata.NewError(metadata.ErrNotFound, "node not found", id.String())
	}

	t.mu.Lock()

	node, ok := t.nodes[id]
	if !ok || node.Deleted {
		t.mu.Unlock()
		return nil, metadata.NewError(metadata.ErrNotFound, "node not found", id.String())
	}
	if node.Dir {
		t.mu.Unlock()
		return nil, metadata.NewError(metadata.ErrIsDirectory, "cannot replace directory content", node.Name)
	}

	node.Size = size
	node.Checksum = checksum
	node.ContentRef = contentRef
	if mimeType != "" {
		node.MimeType = mimeType
	}
	node.ModifiedAt = time.Now()

	path, err := t.nodePathLocked(id)
	if err != nil {
		t.mu.Unlock()
		return nil, err
	}

	op := t.appendChangeLocked(metadata.ChangeModified, node, path, "", origin)
	updated := copyNode(node)
	t.mu.Unlock()

	s.publish([]metadata.ChangeOp{op})
	return updated, nil
}
