// Package identity verifies user credentials against an external provider
// and mirrors the resulting accounts into the metadata store.
//
// Synkerd never stores plaintext passwords. The MyCloud provider delegates
// verification to the appliance's REST API; the static provider keeps only
// bcrypt hashes loaded from configuration.
package identity

import (
	"context"
	"time"
)

// Identity is a verified external account.
type Identity struct {
	// Username is the external account name.
	Username string

	// Email is the account email, if the provider reports one.
	Email string

	// Permissions are the provider-reported capability or group strings.
	Permissions []string

	// Admin is true for administrator accounts.
	Admin bool

	// LastLogin is the provider-reported last login, if any.
	LastLogin time.Time
}

// Provider verifies credentials against an external identity source.
type Provider interface {
	// VerifyCredentials checks a username/password pair.
	//
	// Returns:
	//   - *Identity: the verified account
	//   - error: ErrInvalidCredentials for a wrong pair or disabled
	//     account; transport failures are returned verbatim
	VerifyCredentials(ctx context.Context, username, password string) (*Identity, error)
}
