package federation

import (
	"context"
	"crypto/rsa"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"tempora.org/internal/auth"
)

const (
	testAudience = "client-123"
	testIssuer   = "https://login.microsoftonline.com/tenant-1/v2.0"
)

func signIdentity(t *testing.T, key *rsa.PrivateKey, kid string, claims IdentityClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	if kid != "" {
		token.Header["kid"] = kid
	}
	signed, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("sign identity token: %v", err)
	}
	return signed
}

func identityClaims(email string, expires time.Time) IdentityClaims {
	return IdentityClaims{
		Email:      email,
		GivenName:  "Sam",
		FamilyName: "Lee",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    testIssuer,
			Audience:  jwt.ClaimStrings{testAudience},
			Subject:   "oid-1",
			ExpiresAt: jwt.NewNumericDate(expires),
			IssuedAt:  jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	}
}

func newTestVerifier(t *testing.T, key *rsa.PrivateKey, kid string) (*Verifier, func()) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(jwksDocument(map[string]*rsa.PublicKey{kid: &key.PublicKey}))
	}))
	v := NewVerifier(NewKeySet(srv.URL), testAudience, testIssuer)
	return v, srv.Close
}

func TestVerifyIdentityToken(t *testing.T) {
	key := mustRSAKey(t)
	v, done := newTestVerifier(t, key, "kid-1")
	defer done()

	token := signIdentity(t, key, "kid-1", identityClaims("sam@example.com", time.Now().Add(time.Hour)))
	claims, err := v.Verify(context.Background(), token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if claims.Email != "sam@example.com" || claims.GivenName != "Sam" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestVerifyFailureReasons(t *testing.T) {
	key := mustRSAKey(t)
	otherKey := mustRSAKey(t)
	v, done := newTestVerifier(t, key, "kid-1")
	defer done()
	ctx := context.Background()

	cases := map[string]struct {
		token  string
		reason string
	}{
		"expired": {
			token:  signIdentity(t, key, "kid-1", identityClaims("sam@example.com", time.Now().Add(-time.Hour))),
			reason: "identity token expired",
		},
		"unknown kid": {
			token:  signIdentity(t, key, "kid-rotated", identityClaims("sam@example.com", time.Now().Add(time.Hour))),
			reason: "no matching key",
		},
		"garbage": {
			token:  "definitely-not-a-jwt",
			reason: "invalid token header",
		},
		"wrong signer": {
			token:  signIdentity(t, otherKey, "kid-1", identityClaims("sam@example.com", time.Now().Add(time.Hour))),
			reason: "invalid identity token",
		},
	}
	for name, tc := range cases {
		_, err := v.Verify(ctx, tc.token)
		var fedErr *auth.FederationError
		if !errors.As(err, &fedErr) {
			t.Fatalf("%s: expected FederationError, got %v", name, err)
		}
		if fedErr.Reason != tc.reason {
			t.Fatalf("%s: expected reason %q, got %q", name, tc.reason, fedErr.Reason)
		}
	}
}

func TestVerifyChecksAudienceAndIssuer(t *testing.T) {
	key := mustRSAKey(t)
	v, done := newTestVerifier(t, key, "kid-1")
	defer done()
	ctx := context.Background()

	wrongAud := identityClaims("sam@example.com", time.Now().Add(time.Hour))
	wrongAud.Audience = jwt.ClaimStrings{"another-app"}
	if _, err := v.Verify(ctx, signIdentity(t, key, "kid-1", wrongAud)); err == nil {
		t.Fatal("token for another audience accepted")
	}

	wrongIss := identityClaims("sam@example.com", time.Now().Add(time.Hour))
	wrongIss.Issuer = "https://evil.example.com/v2.0"
	if _, err := v.Verify(ctx, signIdentity(t, key, "kid-1", wrongIss)); err == nil {
		t.Fatal("token from another issuer accepted")
	}

	noKid := signIdentity(t, key, "", identityClaims("sam@example.com", time.Now().Add(time.Hour)))
	if _, err := v.Verify(ctx, noKid); err == nil {
		t.Fatal("token without kid accepted")
	}
}

func TestVerifyRejectsNonRS256(t *testing.T) {
	key := mustRSAKey(t)
	v, done := newTestVerifier(t, key, "kid-1")
	defer done()

	// HMAC-signed token must never pass, regardless of content
	hmacToken := jwt.NewWithClaims(jwt.SigningMethodHS256, identityClaims("sam@example.com", time.Now().Add(time.Hour)))
	hmacToken.Header["kid"] = "kid-1"
	signed, err := hmacToken.SignedString([]byte("shared-secret"))
	if err != nil {
		t.Fatalf("sign hmac token: %v", err)
	}
	if _, err := v.Verify(context.Background(), signed); err == nil {
		t.Fatal("HMAC token accepted by RS256 verifier")
	}
}
