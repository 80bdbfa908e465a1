package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/marmos91/synkerd/pkg/metadata"
)

// CreateShareLink stores a new share link.
//
// The target tree's read lock is held across the liveness check and the
// insert, so a concurrent delete of the shared node either happens before
// (link creation fails) or after (the delete revokes the link).
func (s *Store) CreateShareLink(ctx context.Context, link *metadata.ShareLink) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if link.Token == "" {
		return metadata.NewError(metadata.ErrInvalidArgument, "empty share token", "")
	}

	t, ok := s.treeOf(link.FileID)
	if !ok {
		return metadata.NewError(metadata.ErrNotFound, "shared node not found", link.FileID.String())
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	node, ok := t.nodes[link.FileID]
	if !ok || node.Deleted {
		return metadata.NewError(metadata.ErrNotFound, "shared node not found", link.FileID.String())
	}

	s.linkMu.Lock()
	defer s.linkMu.Unlock()

	if _, exists := s.links[link.Token]; exists {
		return metadata.NewError(metadata.ErrNameConflict, "share token already exists", link.Token)
	}

	stored := copyLink(link)
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
	}
	stored.DownloadCount = 0
	stored.Revoked = false
	s.links[link.Token] = stored

	return nil
}

// GetShareLink retrieves a link by token without redeeming it. Revoked links
// surface as not found.
func (s *Store) GetShareLink(ctx context.Context, token string) (*metadata.ShareLink, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.linkMu.Lock()
	defer s.linkMu.Unlock()

	link, ok := s.links[token]
	if !ok || link.Revoked {
		return nil, metadata.NewError(metadata.ErrNotFound, "share link not found", token)
	}
	return copyLink(link), nil
}

// RedeemShareLink performs the atomic conditional check-and-increment on the
// download counter. Expiry, revocation, quota check and the increment happen
// under one lock, so concurrent redemptions racing for the last quota slot
// cannot both succeed.
func (s *Store) RedeemShareLink(ctx context.Context, token string, now time.Time) (*metadata.ShareLink, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.linkMu.Lock()
	defer s.linkMu.Unlock()

	link, ok := s.links[token]
	if !ok || link.Revoked {
		return nil, metadata.NewError(metadata.ErrNotFound, "share link not found", token)
	}
	if link.ExpiresAt != nil && now.After(*link.ExpiresAt) {
		return nil, metadata.NewError(metadata.ErrExpired, "share link expired", token)
	}
	if link.MaxDownloads != nil && link.DownloadCount >= *link.MaxDownloads {
		return nil, metadata.NewError(metadata.ErrQuotaExceeded, "share link download quota exhausted", token)
	}

	link.DownloadCount++
	return copyLink(link), nil
}

// RevokeShareLink makes a link permanently unusable. Idempotent on already
// revoked links.
func (s *Store) RevokeShareLink(ctx context.Context, token string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.linkMu.Lock()
	defer s.linkMu.Unlock()

	link, ok := s.links[token]
	if !ok {
		return metadata.NewError(metadata.ErrNotFound, "share link not found", token)
	}

	link.Revoked = true
	return nil
}

// ListShareLinks returns all links created by a user, including revoked
// ones, ordered by creation time.
func (s *Store) ListShareLinks(ctx context.Context, userID uuid.UUID) ([]metadata.ShareLink, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.linkMu.Lock()
	defer s.linkMu.Unlock()

	links := make([]metadata.ShareLink, 0)
	for _, link := range s.links {
		if link.CreatedBy == userID {
			links = append(links, *copyLink(link))
		}
	}
	sort.Slice(links, func(i, j int) bool {
		if links[i].CreatedAt.Equal(links[j].CreatedAt) {
			return links[i].Token < links[j].Token
		}
		return links[i].CreatedAt.Before(links[j].CreatedAt)
	})

	return links, nil
}
