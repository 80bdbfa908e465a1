package identity

import (
	"context"
	"time"

	"github.com/marmos91/synkerd/internal/logger"
	"github.com/marmos91/synkerd/pkg/metadata"
)

// Authenticator turns external credential checks into local accounts and
// device sessions.
//
// Login Flow:
//  1. The provider verifies the username/password pair.
//  2. The verified account is mirrored into the metadata store under its
//     deterministic id (first login also creates the user's root directory).
//  3. The calling device's sync session is registered (or reactivated,
//     keeping its cursor).
type Authenticator struct {
	provider Provider
	meta     metadata.MetadataStore
}

// NewAuthenticator creates an authenticator backed by the given provider.
func NewAuthenticator(provider Provider, meta metadata.MetadataStore) *Authenticator {
	return &Authenticator{provider: provider, meta: meta}
}

// LoginParams describes one login attempt.
type LoginParams struct {
	Username string
	Password string

	// DeviceID identifies the calling device; required.
	DeviceID string

	// DeviceName is the human-readable device label.
	DeviceName string

	// SyncFolders optionally restricts the device to these folders.
	SyncFolders []string
}

// Login verifies credentials, mirrors the user and registers the device
// session.
//
// Returns:
//   - *metadata.User: the mirrored local account
//   - *metadata.SyncSession: the device's session (cursor preserved on
//     re-login)
//   - error: ErrInvalidCredentials, ErrInvalidArgument for a missing
//     device id, or provider transport errors
func (a *Authenticator) Login(ctx context.Context, params LoginParams) (*metadata.User, *metadata.SyncSession, error) {
	if params.DeviceID == "" {
		return nil, nil, metadata.NewError(metadata.ErrInvalidArgument, "device id is required", "")
	}

	identity, err := a.provider.VerifyCredentials(ctx, params.Username, params.Password)
	if err != nil {
		return nil, nil, err
	}

	user := &metadata.User{
		ID:          metadata.DeterministicUserID(identity.Username),
		Username:    identity.Username,
		Email:       identity.Email,
		Permissions: identity.Permissions,
		Active:      true,
		LastLogin:   time.Now(),
	}
	if err := a.meta.PutUser(ctx, user); err != nil {
		return nil, nil, err
	}
	// Read the row back so CreatedAt reflects the first mirror, not this
	// login.
	user, err = a.meta.GetUser(ctx, user.ID)
	if err != nil {
		return nil, nil, err
	}

	session, err := a.meta.RegisterSession(ctx, &metadata.SyncSession{
		UserID:      user.ID,
		DeviceID:    params.DeviceID,
		DeviceName:  params.DeviceName,
		SyncFolders: params.SyncFolders,
	})
	if err != nil {
		return nil, nil, err
	}

	logger.Info("login: user=%s device=%s cursor=%d", identity.Username, params.DeviceID, session.Cursor)
	return user, session, nil
}
