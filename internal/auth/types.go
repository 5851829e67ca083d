package auth

import "time"

// Account is the local identity record. Federated-only accounts carry an
// unusable password hash and are otherwise indistinguishable from
// password-registered ones.
type Account struct {
	ID           string
	Email        string
	Username     string
	PasswordHash string
	FirstName    string
	LastName     string
	Phone        string
	Department   string
	EmployeeID   string
	Group        string
	Roles        string
	Admin        bool
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
	LastLogin    *time.Time
}

// Role groups accounts; an account is an administrator when it holds an
// active assignment to a role whose name marks administrative privilege.
type Role struct {
	ID        string
	Name      string
	Active    bool
	CreatedAt time.Time
}

// Assignment links an account to a role.
type Assignment struct {
	ID        string
	AccountID string
	RoleID    string
	Active    bool
	CreatedAt time.Time
}

// RefreshToken is the server-side ledger entry backing an issued refresh
// token. Only the sha256 of the raw token is ever stored. Entries are
// immutable except for Revoked, which transitions false to true once.
type RefreshToken struct {
	ID        string
	AccountID string
	TokenHash string
	ExpiresAt time.Time
	Revoked   bool
	CreatedAt time.Time
}
