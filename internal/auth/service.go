package auth

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"tempora.org/internal/ids"
)

// DefaultRoleName is assigned to every new account. Provisioning of other
// roles happens outside this core.
const DefaultRoleName = "Employee"

// TokenBundle is the caller-visible result of any successful login,
// identical for password and federated flows.
type TokenBundle struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	TokenType        string    `json:"token_type"`
	ExpiresIn        int64     `json:"expires_in"`
	AccessExpiresAt  time.Time `json:"-"`
	RefreshExpiresAt time.Time `json:"-"`
}

// AccessGrant is the result of a refresh: a new access token on the same
// refresh lineage.
type AccessGrant struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresIn   int64     `json:"expires_in"`
	ExpiresAt   time.Time `json:"-"`
}

// RegisterParams carries the registration input.
type RegisterParams struct {
	Email      string
	Username   string
	Password   string
	FirstName  string
	LastName   string
	Phone      string
	Department string
	EmployeeID string
}

// Service is the session facade: registration, password and federated
// login, refresh, logout and password change.
type Service struct {
	store      Store
	tokens     *TokenService
	ledger     *Ledger
	bcryptCost int
	now        func() time.Time
	logf       func(format string, args ...any)
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service) error

// WithBcryptCost overrides the password hashing cost factor.
func WithBcryptCost(cost int) ServiceOption {
	return func(s *Service) error {
		if cost > 0 {
			s.bcryptCost = cost
		}
		return nil
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) error {
		if fn != nil {
			s.now = fn
		}
		return nil
	}
}

// WithLogf overrides the logger used for best-effort failures.
func WithLogf(fn func(format string, args ...any)) ServiceOption {
	return func(s *Service) error {
		if fn != nil {
			s.logf = fn
		}
		return nil
	}
}

// NewService constructs the session facade.
func NewService(store Store, tokens *TokenService, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, errors.New("auth: store is required")
	}
	if tokens == nil {
		return nil, errors.New("auth: token service is required")
	}
	svc := &Service{
		store:      store,
		tokens:     tokens,
		bcryptCost: DefaultBcryptCost,
		now:        time.Now,
		logf:       log.Printf,
	}
	for _, opt := range opts {
		if err := opt(svc); err != nil {
			return nil, err
		}
	}
	svc.ledger = NewLedger(store, svc.now)
	return svc, nil
}

// Tokens exposes the local token service for per-request verification.
func (s *Service) Tokens() *TokenService { return s.tokens }

// Register creates an account. The store's unique constraints arbitrate
// duplicate email/username, surfaced as ErrConflict. Registration does not
// log the account in.
func (s *Service) Register(ctx context.Context, p RegisterParams) (*Account, error) {
	email := strings.ToLower(strings.TrimSpace(p.Email))
	username := strings.TrimSpace(p.Username)
	if email == "" || username == "" || p.Password == "" {
		return nil, fmt.Errorf("%w: email, username and password are required", ErrInvalidCredentials)
	}

	hash, err := HashPassword(p.Password, s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	acct := &Account{
		ID:           ids.New(),
		Email:        email,
		Username:     username,
		PasswordHash: hash,
		FirstName:    strings.TrimSpace(p.FirstName),
		LastName:     strings.TrimSpace(p.LastName),
		Phone:        strings.TrimSpace(p.Phone),
		Department:   strings.TrimSpace(p.Department),
		EmployeeID:   strings.TrimSpace(p.EmployeeID),
		Group:        DefaultRoleName,
		Active:       true,
	}
	if err := s.store.Accounts(ctx).Create(ctx, acct); err != nil {
		return nil, err
	}
	s.assignDefaultRole(ctx, acct.ID)
	return s.loadAccount(ctx, acct.ID)
}

// assignDefaultRole is best-effort: failure is logged, never fatal.
func (s *Service) assignDefaultRole(ctx context.Context, accountID string) {
	role, err := s.store.Roles(ctx).FindByName(ctx, DefaultRoleName)
	if err != nil {
		s.logf("auth: default role lookup failed for %s: %v", accountID, err)
		return
	}
	err = s.store.Roles(ctx).Assign(ctx, Assignment{
		ID:        ids.New(),
		AccountID: accountID,
		RoleID:    role.ID,
		Active:    true,
	})
	if err != nil {
		s.logf("auth: default role assignment failed for %s: %v", accountID, err)
	}
}

// Login verifies credentials and issues a fresh token pair. Unknown user
// and wrong password are indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, usernameOrEmail, password string) (TokenBundle, *Account, error) {
	key := strings.TrimSpace(usernameOrEmail)
	if key == "" || password == "" {
		return TokenBundle{}, nil, ErrInvalidCredentials
	}
	acct, err := s.store.Accounts(ctx).FindByEmailOrUsername(ctx, strings.ToLower(key), key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return TokenBundle{}, nil, ErrInvalidCredentials
		}
		return TokenBundle{}, nil, err
	}
	if !acct.Active || !VerifyPassword(acct.PasswordHash, password) {
		return TokenBundle{}, nil, ErrInvalidCredentials
	}
	s.touchLastLogin(ctx, acct.ID)
	bundle, err := s.MintTokens(ctx, acct)
	if err != nil {
		return TokenBundle{}, nil, err
	}
	return bundle, acct, nil
}

// FederatedLogin resolves an externally-verified identity to a local
// account, creating one on first sight, and issues the standard bundle.
// The generated password is never usable for password login.
func (s *Service) FederatedLogin(ctx context.Context, email, firstName, lastName string) (TokenBundle, *Account, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return TokenBundle{}, nil, NewFederationError("missing email claim", nil)
	}
	acct, err := s.store.Accounts(ctx).FindByEmailOrUsername(ctx, email, email)
	if errors.Is(err, ErrNotFound) {
		acct, err = s.Register(ctx, RegisterParams{
			Email:     email,
			Username:  email,
			Password:  uuid.NewString(),
			FirstName: firstName,
			LastName:  lastName,
		})
		if errors.Is(err, ErrConflict) {
			// Lost a provisioning race; the winner's account serves.
			acct, err = s.store.Accounts(ctx).FindByEmailOrUsername(ctx, email, email)
		}
	}
	if err != nil {
		return TokenBundle{}, nil, err
	}
	s.touchLastLogin(ctx, acct.ID)
	bundle, err := s.MintTokens(ctx, acct)
	if err != nil {
		return TokenBundle{}, nil, err
	}
	return bundle, acct, nil
}

// MintTokens issues an access+refresh pair and records the refresh hash in
// the ledger.
func (s *Service) MintTokens(ctx context.Context, acct *Account) (TokenBundle, error) {
	access, accessExp, err := s.tokens.IssueAccess(acct)
	if err != nil {
		return TokenBundle{}, err
	}
	refresh, refreshExp, err := s.tokens.IssueRefresh(acct.ID)
	if err != nil {
		return TokenBundle{}, err
	}
	if err := s.ledger.Record(ctx, acct.ID, refresh, refreshExp); err != nil {
		return TokenBundle{}, fmt.Errorf("record refresh token: %w", err)
	}
	return TokenBundle{
		AccessToken:      access,
		RefreshToken:     refresh,
		TokenType:        "bearer",
		ExpiresIn:        int64(s.tokens.AccessTTL().Seconds()),
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

// Refresh exchanges a live refresh token for a new access token. The
// refresh token itself is not rotated. Requires a valid signature and kind,
// a live ledger entry and an active owner.
func (s *Service) Refresh(ctx context.Context, rawRefresh string) (AccessGrant, error) {
	claims, err := s.tokens.VerifyRefresh(rawRefresh)
	if err != nil {
		return AccessGrant{}, err
	}
	if _, err := s.ledger.LookupActive(ctx, claims.Subject, rawRefresh); err != nil {
		if errors.Is(err, ErrNotFound) {
			return AccessGrant{}, fmt.Errorf("%w: no live ledger entry", ErrTokenInvalid)
		}
		return AccessGrant{}, err
	}
	acct, err := s.loadAccount(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return AccessGrant{}, fmt.Errorf("%w: unknown subject", ErrTokenInvalid)
		}
		return AccessGrant{}, err
	}
	if !acct.Active {
		return AccessGrant{}, fmt.Errorf("%w: account inactive", ErrTokenInvalid)
	}
	access, exp, err := s.tokens.IssueAccess(acct)
	if err != nil {
		return AccessGrant{}, err
	}
	return AccessGrant{
		AccessToken: access,
		TokenType:   "bearer",
		ExpiresIn:   int64(s.tokens.AccessTTL().Seconds()),
		ExpiresAt:   exp,
	}, nil
}

// Logout revokes the presented refresh token. A token without a live
// ledger entry reports ErrTokenInvalid.
func (s *Service) Logout(ctx context.Context, rawRefresh string) error {
	if strings.TrimSpace(rawRefresh) == "" {
		return ErrTokenInvalid
	}
	revoked, err := s.ledger.Revoke(ctx, rawRefresh)
	if err != nil {
		return err
	}
	if !revoked {
		return fmt.Errorf("%w: nothing to revoke", ErrTokenInvalid)
	}
	return nil
}

// ChangePassword verifies the current password, stores the new hash and
// revokes every outstanding refresh token, forcing re-authentication on
// all sessions.
func (s *Service) ChangePassword(ctx context.Context, accountID, current, next string) error {
	if next == "" {
		return fmt.Errorf("%w: new password is required", ErrInvalidCredentials)
	}
	acct, err := s.loadAccount(ctx, accountID)
	if err != nil {
		return err
	}
	if !VerifyPassword(acct.PasswordHash, current) {
		return ErrInvalidCredentials
	}
	hash, err := HashPassword(next, s.bcryptCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.store.Accounts(ctx).UpdatePassword(ctx, accountID, hash); err != nil {
		return err
	}
	if err := s.ledger.RevokeAll(ctx, accountID); err != nil {
		return fmt.Errorf("revoke sessions: %w", err)
	}
	return nil
}

// Account loads the profile for an authenticated subject.
func (s *Service) Account(ctx context.Context, accountID string) (*Account, error) {
	return s.loadAccount(ctx, accountID)
}

func (s *Service) loadAccount(ctx context.Context, id string) (*Account, error) {
	if strings.TrimSpace(id) == "" {
		return nil, ErrNotFound
	}
	return s.store.Accounts(ctx).Find(ctx, id)
}

// touchLastLogin is best-effort: failure is logged, never fatal.
func (s *Service) touchLastLogin(ctx context.Context, accountID string) {
	if err := s.store.Accounts(ctx).UpdateLastLogin(ctx, accountID); err != nil {
		s.logf("auth: last-login update failed for %s: %v", accountID, err)
	}
}
