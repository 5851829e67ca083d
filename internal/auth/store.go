package auth

import "context"

// Store describes the persistence operations the session core depends on.
// Uniqueness of email and username is enforced by the store, not by
// application-level locking; concurrent registrations race at the database.
type Store interface {
	Accounts(ctx context.Context) AccountStore
	Roles(ctx context.Context) RoleStore
	RefreshTokens(ctx context.Context) RefreshTokenStore
}

// AccountStore manages account rows.
type AccountStore interface {
	// Create inserts the account and returns ErrConflict when email or
	// username is already taken.
	Create(ctx context.Context, acct *Account) error
	Find(ctx context.Context, id string) (*Account, error)
	// FindByEmailOrUsername matches either column against active accounts.
	FindByEmailOrUsername(ctx context.Context, email, username string) (*Account, error)
	UpdateLastLogin(ctx context.Context, id string) error
	UpdatePassword(ctx context.Context, id, passwordHash string) error
}

// RoleStore exposes the read-mostly role catalog.
type RoleStore interface {
	FindByName(ctx context.Context, name string) (*Role, error)
	Assign(ctx context.Context, assignment Assignment) error
}

// RefreshTokenStore manages the refresh-token ledger.
type RefreshTokenStore interface {
	Create(ctx context.Context, tok *RefreshToken) error
	// FindActive returns the entry matching hash and owner where the entry
	// is unrevoked and unexpired and the owning account is active.
	FindActive(ctx context.Context, accountID, tokenHash string) (*RefreshToken, error)
	// Revoke reports whether a live entry was actually revoked.
	Revoke(ctx context.Context, tokenHash string) (bool, error)
	RevokeAllForAccount(ctx context.Context, accountID string) error
}
