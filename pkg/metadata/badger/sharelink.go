package badger

import (
	"context"
	"sort"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/marmos91/synkerd/pkg/metadata"
)

// CreateShareLink stores a new share link.
func (s *Store) CreateShareLink(ctx context.Context, link *metadata.ShareLink) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if link.Token == "" {
		return metadata.NewError(metadata.ErrInvalidArgument, "empty share token", "")
	}

	return s.update(func(txn *badger.Txn) error {
		if _, err := getValue(txn, keyShareLink(link.Token)); err == nil {
			return metadata.NewError(metadata.ErrNameConflict, "share token already exists", link.Token)
		} else if err != badger.ErrKeyNotFound {
			return err
		}

		node, err := getNodeTxn(txn, link.FileID)
		if err != nil || node.Deleted {
			return metadata.NewError(metadata.ErrNotFound, "shared node not found", link.FileID.String())
		}

		stored := *link
		if stored.CreatedAt.IsZero() {
			stored.CreatedAt = time.Now()
		}
		stored.DownloadCount = 0
		stored.Revoked = false
		return setJSON(txn, keyShareLink(link.Token), &stored)
	})
}

// GetShareLink retrieves a link by token without redeeming it. Revoked links
// surface as not found.
func (s *Store) GetShareLink(ctx context.Context, token string) (*metadata.ShareLink, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var link *metadata.ShareLink
	err := s.db.View(func(txn *badger.Txn) error {
		val, err := getValue(txn, keyShareLink(token))
		if err == badger.ErrKeyNotFound {
			return metadata.NewError(metadata.ErrNotFound, "share link not found", token)
		}
		if err != nil {
			return err
		}
		link, err = decodeShareLink(val)
		if err != nil {
			return err
		}
		if link.Revoked {
			return metadata.NewError(metadata.ErrNotFound, "share link not found", token)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return link, nil
}

// RedeemShareLink performs the atomic conditional check-and-increment on the
// download counter. Expiry, revocation, quota check and the increment happen
// in one write transaction; of two redemptions racing for the last quota
// slot, one hits a commit conflict, retries and sees the exhausted counter.
func (s *Store) RedeemShareLink(ctx context.Context, token string, now time.Time) (*metadata.ShareLink, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var link *metadata.ShareLink
	err := s.update(func(txn *badger.Txn) error {
		val, err := getValue(txn, keyShareLink(token))
		if err == badger.ErrKeyNotFound {
			return metadata.NewError(metadata.ErrNotFound, "share link not found", token)
		}
		if err != nil {
			return err
		}
		link, err = decodeShareLink(val)
		if err != nil {
			return err
		}

		if link.Revoked {
			return metadata.NewError(metadata.ErrNotFound, "share link not found", token)
		}
		if link.ExpiresAt != nil && now.After(*link.ExpiresAt) {
			return metadata.NewError(metadata.ErrExpired, "share link expired", token)
		}
		if link.MaxDownloads != nil && link.DownloadCount >= *link.MaxDownloads {
			return metadata.NewError(metadata.ErrQuotaExceeded, "share link download quota exhausted", token)
		}

		link.DownloadCount++
		return setJSON(txn, keyShareLink(token), link)
	})
	if err != nil {
		return nil, err
	}
	return link, nil
}

// RevokeShareLink makes a link permanently unusable. Idempotent on already
// revoked links.
func (s *Store) RevokeShareLink(ctx context.Context, token string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.update(func(txn *badger.Txn) error {
		val, err := getValue(txn, keyShareLink(token))
		if err == badger.ErrKeyNotFound {
			return metadata.NewError(metadata.ErrNotFound, "share link not found", token)
		}
		if err != nil {
			return err
		}
		link, err := decodeShareLink(val)
		if err != nil {
			return err
		}

		link.Revoked = true
		return setJSON(txn, keyShareLink(token), link)
	})
}

// ListShareLinks returns all links created by a user, including revoked
// ones, ordered by creation time.
func (s *Store) ListShareLinks(ctx context.Context, userID uuid.UUID) ([]metadata.ShareLink, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var links []metadata.ShareLink
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefixShareLinks)
		it := txn.NewIterator(opts)
		defer it.Close()

		links = make([]metadata.ShareLink, 0, 8)
		for it.Rewind(); it.Valid(); it.Next() {
			val, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			link, err := decodeShareLink(val)
			if err != nil {
				return err
			}
			if link.CreatedBy == userID {
				links = append(links, *link)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(links, func(i, j int) bool {
		if links[i].CreatedAt.Equal(links[j].CreatedAt) {
			return links[i].Token < links[j].Token
		}
		return links[i].CreatedAt.Before(links[j].CreatedAt)
	})
	return links, nil
}
