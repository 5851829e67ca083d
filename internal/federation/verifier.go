package federation

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"tempora.org/internal/auth"
)

// IdentityClaims is the decoded payload of an externally-issued identity
// token. Email may be absent; preferred_username is the fallback key.
type IdentityClaims struct {
	Email             string `json:"email"`
	PreferredUsername string `json:"preferred_username"`
	GivenName         string `json:"given_name"`
	FamilyName        string `json:"family_name"`
	Name              string `json:"name"`
	jwt.RegisteredClaims
}

// Verifier validates identity tokens issued by the external IdP: RS256
// signature against the published key set, audience equal to the client ID,
// issuer equal to the tenant's issuer URL, and expiry. Failure reasons stay
// distinguishable; the federation caller is a trusted frontend.
type Verifier struct {
	keys     *KeySet
	audience string
	issuer   string
	now      func() time.Time
}

// NewVerifier constructs a Verifier for the given audience and issuer.
func NewVerifier(keys *KeySet, audience, issuer string) *Verifier {
	return &Verifier{keys: keys, audience: audience, issuer: issuer, now: time.Now}
}

// WithVerifierClock overrides the time source (useful for tests).
func (v *Verifier) WithVerifierClock(fn func() time.Time) *Verifier {
	if fn != nil {
		v.now = fn
	}
	return v
}

// Verify checks the identity token and returns its claims.
func (v *Verifier) Verify(ctx context.Context, idToken string) (*IdentityClaims, error) {
	claims := &IdentityClaims{}
	keyfunc := func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("token header carries no kid")
		}
		return v.keys.Key(ctx, kid)
	}
	_, err := jwt.ParseWithClaims(idToken, claims, keyfunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithAudience(v.audience),
		jwt.WithIssuer(v.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return v.now().UTC() }),
	)
	if err != nil {
		return nil, verifyError(err)
	}
	return claims, nil
}

// verifyError maps parser failures onto federation errors with the
// specific reason preserved.
func verifyError(err error) error {
	switch {
	case errors.Is(err, ErrIdPUnreachable):
		return auth.NewFederationError("identity provider unreachable", err)
	case errors.Is(err, ErrNoMatchingKey):
		return auth.NewFederationError("no matching key", err)
	case errors.Is(err, jwt.ErrTokenMalformed):
		return auth.NewFederationError("invalid token header", err)
	case errors.Is(err, jwt.ErrTokenExpired):
		return auth.NewFederationError("identity token expired", err)
	default:
		return auth.NewFederationError("invalid identity token", err)
	}
}
