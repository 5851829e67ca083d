package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Token kinds. A token of one kind never verifies as the other, even with a
// valid signature.
const (
	KindAccess  = "access"
	KindRefresh = "refresh"
)

const (
	defaultIssuer     = "tempora"
	DefaultAccessTTL  = 30 * time.Minute
	DefaultRefreshTTL = 7 * 24 * time.Hour
)

// AccessClaims is the decoded payload of an access token.
type AccessClaims struct {
	Username string `json:"username,omitempty"`
	Email    string `json:"email,omitempty"`
	Admin    bool   `json:"is_admin,omitempty"`
	Roles    string `json:"roles,omitempty"`
	Kind     string `json:"kind"`
	jwt.RegisteredClaims
}

// RefreshClaims is the decoded payload of a refresh token. Only the subject
// matters; everything else lives in the ledger.
type RefreshClaims struct {
	Kind string `json:"kind"`
	jwt.RegisteredClaims
}

// TokenService mints and verifies the application-local session tokens.
// Tokens are compact JWS structures signed with a symmetric secret.
type TokenService struct {
	secret     []byte
	method     *jwt.SigningMethodHMAC
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// TokenOption configures TokenService.
type TokenOption func(*TokenService) error

// WithSigningAlgorithm selects the HMAC variant (HS256, HS384, HS512).
func WithSigningAlgorithm(alg string) TokenOption {
	return func(ts *TokenService) error {
		method, ok := jwt.GetSigningMethod(strings.ToUpper(strings.TrimSpace(alg))).(*jwt.SigningMethodHMAC)
		if !ok || method == nil {
			return fmt.Errorf("auth: unsupported signing algorithm %q", alg)
		}
		ts.method = method
		return nil
	}
}

// WithAccessTTL configures access token lifetime.
func WithAccessTTL(ttl time.Duration) TokenOption {
	return func(ts *TokenService) error {
		if ttl > 0 {
			ts.accessTTL = ttl
		}
		return nil
	}
}

// WithRefreshTTL configures refresh token lifetime.
func WithRefreshTTL(ttl time.Duration) TokenOption {
	return func(ts *TokenService) error {
		if ttl > 0 {
			ts.refreshTTL = ttl
		}
		return nil
	}
}

// WithTokenIssuer overrides the issuer claim.
func WithTokenIssuer(issuer string) TokenOption {
	return func(ts *TokenService) error {
		if s := strings.TrimSpace(issuer); s != "" {
			ts.issuer = s
		}
		return nil
	}
}

// WithTokenClock overrides the time source, useful in tests.
func WithTokenClock(fn func() time.Time) TokenOption {
	return func(ts *TokenService) error {
		if fn != nil {
			ts.now = fn
		}
		return nil
	}
}

// NewTokenService constructs a TokenService signing with secret.
func NewTokenService(secret string, opts ...TokenOption) (*TokenService, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("auth: signing secret is not configured")
	}
	ts := &TokenService{
		secret:     []byte(secret),
		method:     jwt.SigningMethodHS256,
		issuer:     defaultIssuer,
		accessTTL:  DefaultAccessTTL,
		refreshTTL: DefaultRefreshTTL,
	}
	ts.now = time.Now
	for _, opt := range opts {
		if err := opt(ts); err != nil {
			return nil, err
		}
	}
	return ts, nil
}

// AccessTTL reports the configured access token lifetime.
func (ts *TokenService) AccessTTL() time.Duration { return ts.accessTTL }

// RefreshTTL reports the configured refresh token lifetime.
func (ts *TokenService) RefreshTTL() time.Duration { return ts.refreshTTL }

// IssueAccess signs a short-lived access token for the account.
func (ts *TokenService) IssueAccess(acct *Account) (string, time.Time, error) {
	now := ts.now().UTC()
	exp := now.Add(ts.accessTTL)
	claims := AccessClaims{
		Username: acct.Username,
		Email:    acct.Email,
		Admin:    acct.Admin,
		Roles:    acct.Roles,
		Kind:     KindAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    ts.issuer,
			Subject:   acct.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(ts.method, claims).SignedString(ts.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign access token: %w", err)
	}
	return signed, exp, nil
}

// IssueRefresh signs a long-lived refresh token carrying only the subject.
func (ts *TokenService) IssueRefresh(accountID string) (string, time.Time, error) {
	now := ts.now().UTC()
	exp := now.Add(ts.refreshTTL)
	claims := RefreshClaims{
		Kind: KindRefresh,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    ts.issuer,
			Subject:   accountID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(ts.method, claims).SignedString(ts.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign refresh token: %w", err)
	}
	return signed, exp, nil
}

// VerifyAccess validates signature, kind and expiry of an access token.
// Every failure mode maps onto ErrTokenInvalid; the underlying cause is
// wrapped for server-side logs only.
func (ts *TokenService) VerifyAccess(token string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := ts.verify(token, claims); err != nil {
		return nil, err
	}
	if claims.Kind != KindAccess {
		return nil, fmt.Errorf("%w: kind mismatch", ErrTokenInvalid)
	}
	return claims, nil
}

// VerifyRefresh validates signature, kind and expiry of a refresh token.
// Ledger state is checked separately by the session service.
func (ts *TokenService) VerifyRefresh(token string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := ts.verify(token, claims); err != nil {
		return nil, err
	}
	if claims.Kind != KindRefresh {
		return nil, fmt.Errorf("%w: kind mismatch", ErrTokenInvalid)
	}
	return claims, nil
}

func (ts *TokenService) verify(token string, claims jwt.Claims) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrTokenInvalid
	}
	parsed, err := jwt.ParseWithClaims(token, claims, ts.keyfunc,
		jwt.WithValidMethods([]string{ts.method.Alg()}),
		jwt.WithIssuer(ts.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return ts.now().UTC() }),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return fmt.Errorf("%w: %v", ErrTokenExpired, err)
		}
		return fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if !parsed.Valid {
		return ErrTokenInvalid
	}
	return nil
}

func (ts *TokenService) keyfunc(t *jwt.Token) (any, error) {
	if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, ErrTokenInvalid
	}
	return ts.secret, nil
}
