package identity

import (
	"context"

	"golang.org/x/crypto/bcrypt"

	"github.com/marmos91/synkerd/pkg/metadata"
)

// StaticUser is one configuration-listed account for the static provider.
type StaticUser struct {
	// Username is the account name.
	Username string

	// PasswordHash is the bcrypt hash of the account's password.
	PasswordHash string

	// Email is optional.
	Email string

	// Admin marks administrator accounts.
	Admin bool
}

// dummyHash is a valid bcrypt hash compared against when the username is
// unknown, so unknown and known usernames take similar time.
const dummyHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

// StaticProvider verifies credentials against a fixed, configuration-loaded
// account list. Intended for standalone deployments without an appliance.
type StaticProvider struct {
	users map[string]StaticUser
}

// NewStaticProvider creates a static identity provider.
func NewStaticProvider(users []StaticUser) *StaticProvider {
	byName := make(map[string]StaticUser, len(users))
	for _, u := range users {
		byName[u.Username] = u
	}
	return &StaticProvider{users: byName}
}

// HashPassword produces a bcrypt hash suitable for StaticUser.PasswordHash.
// Exposed so setup tooling can generate config entries.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyCredentials compares against the stored bcrypt hash. Unknown users
// and wrong passwords are indistinguishable to the caller.
func (p *StaticProvider) VerifyCredentials(ctx context.Context, username, password string) (*Identity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	user, ok := p.users[username]
	if !ok {
		_ = bcrypt.CompareHashAndPassword([]byte(dummyHash), []byte(password))
		return nil, metadata.NewError(metadata.ErrInvalidCredentials, "invalid username or password", "")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, metadata.NewError(metadata.ErrInvalidCredentials, "invalid username or password", "")
	}

	identity := &Identity{
		Username: user.Username,
		Email:    user.Email,
		Admin:    user.Admin,
	}
	if user.Admin {
		identity.Permissions = []string{"admin"}
	}
	return identity, nil
}
