// Package share issues and redeems share links: unguessable tokens granting
// time- and quota-bounded download access to a single file, optionally gated
// by a password.
package share

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/marmos91/synkerd/internal/logger"
	"github.com/marmos91/synkerd/pkg/content"
	"github.com/marmos91/synkerd/pkg/metadata"
)

// tokenBytes is the entropy of a share token before encoding (256 bits).
const tokenBytes = 32

// Manager issues, redeems and revokes share links. It needs only read access
// to the content store: downloads never mutate blobs.
type Manager struct {
	meta  metadata.MetadataStore
	blobs content.ContentStore
}

// NewManager creates a share-link manager.
func NewManager(meta metadata.MetadataStore, blobs content.ContentStore) *Manager {
	return &Manager{meta: meta, blobs: blobs}
}

// CreateParams describes a link to issue.
type CreateParams struct {
	// OwnerID is the issuing user. The target must belong to them and
	// carry the Share capability.
	OwnerID uuid.UUID

	// Path is the canonical path of the file to share.
	Path string

	// ExpiresAt optionally bounds the link in time.
	ExpiresAt *time.Time

	// Password optionally gates redemption. It is stored as a bcrypt hash;
	// the plaintext never reaches the metadata store.
	Password string

	// MaxDownloads optionally bounds the number of redemptions.
	MaxDownloads *uint32
}

// CreateLink issues a share link for a file.
//
// Returns:
//   - error: ErrNotFound if the path doesn't resolve, ErrIsDirectory for a
//     directory target, ErrPermissionDenied if the issuer doesn't own the
//     file or the node lacks the Share capability
func (m *Manager) CreateLink(ctx context.Context, params CreateParams) (*metadata.ShareLink, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	nodeID, err := m.meta.ResolvePath(ctx, params.OwnerID, params.Path)
	if err != nil {
		return nil, err
	}
	node, err := m.meta.GetNode(ctx, nodeID)
	if err != nil {
		return nil, err
	}
	if node.Dir {
		return nil, metadata.NewError(metadata.ErrIsDirectory, "only files can be shared", params.Path)
	}
	if node.OwnerID != params.OwnerID {
		return nil, metadata.NewError(metadata.ErrPermissionDenied, "not the owner", params.Path)
	}
	if !node.Perm.Share {
		return nil, metadata.NewError(metadata.ErrPermissionDenied, "sharing disabled on this file", params.Path)
	}

	token, err := newToken()
	if err != nil {
		return nil, fmt.Errorf("generating share token: %w", err)
	}

	link := &metadata.ShareLink{
		Token:        token,
		FileID:       node.ID,
		CreatedBy:    params.OwnerID,
		ExpiresAt:    params.ExpiresAt,
		MaxDownloads: params.MaxDownloads,
	}
	if params.Password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(params.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("hashing share password: %w", err)
		}
		link.PasswordHash = string(hash)
	}

	if err := m.meta.CreateShareLink(ctx, link); err != nil {
		return nil, err
	}

	logger.Info("share link created: file=%s owner=%s expires=%v", node.ID, params.OwnerID, params.ExpiresAt)
	return link, nil
}

// Download is a redeemed share link: the file's metadata plus a reader over
// its content. The caller must close Reader.
type Download struct {
	Node   *metadata.FileNode
	Reader io.ReadCloser
}

// Redeem validates a token (password, expiry, quota) and opens the shared
// file for download. The download counter is consumed only after the
// password gate passes, so failed password attempts never burn quota.
//
// Returns:
//   - error: ErrNotFound (unknown or revoked token), ErrBadPassword,
//     ErrExpired, ErrQuotaExceeded
func (m *Manager) Redeem(ctx context.Context, token, password string, now time.Time) (*Download, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	link, err := m.meta.GetShareLink(ctx, token)
	if err != nil {
		return nil, err
	}
	if link.PasswordHash != "" {
		if err := bcrypt.CompareHashAndPassword([]byte(link.PasswordHash), []byte(password)); err != nil {
			return nil, metadata.NewError(metadata.ErrBadPassword, "wrong share password", "")
		}
	}

	link, err = m.meta.RedeemShareLink(ctx, token, now)
	if err != nil {
		return nil, err
	}

	node, err := m.meta.GetNode(ctx, link.FileID)
	if err != nil {
		return nil, err
	}

	reader, err := m.blobs.ReadContent(ctx, node.ContentRef)
	if err != nil {
		return nil, fmt.Errorf("opening shared content %s: %w", node.ContentRef, err)
	}

	logger.Debug("share link redeemed: file=%s downloads=%d", node.ID, link.DownloadCount)
	return &Download{Node: node, Reader: reader}, nil
}

// Revoke permanently disables a link. Only its creator may revoke it.
//
// Returns:
//   - error: ErrNotFound for an unknown token, ErrPermissionDenied for a
//     non-creator
func (m *Manager) Revoke(ctx context.Context, ownerID uuid.UUID, token string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	link, err := m.meta.GetShareLink(ctx, token)
	if err != nil {
		// Already revoked links surface as not-found; revoking them again
		// is a no-op for the creator.
		return err
	}
	if link.CreatedBy != ownerID {
		return metadata.NewError(metadata.ErrPermissionDenied, "not the link creator", "")
	}

	return m.meta.RevokeShareLink(ctx, token)
}

// List returns all links issued by a user, including revoked ones.
func (m *Manager) List(ctx context.Context, ownerID uuid.UUID) ([]metadata.ShareLink, error) {
	return m.meta.ListShareLinks(ctx, ownerID)
}

// newToken returns a 256-bit URL-safe random token.
func newToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
