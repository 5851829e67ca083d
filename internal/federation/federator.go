package federation

import (
	"context"
	"strings"

	"tempora.org/internal/auth"
)

// SessionService is the slice of the session facade federation depends on.
type SessionService interface {
	FederatedLogin(ctx context.Context, email, firstName, lastName string) (auth.TokenBundle, *auth.Account, error)
}

// Federator drives both federation flows and converges them on the shared
// account-resolution step: a verified external identity becomes a local
// account (created on first sight) plus the standard local token bundle.
type Federator struct {
	verifier *Verifier
	idp      *Client
	sessions SessionService
}

// NewFederator wires the orchestrator.
func NewFederator(verifier *Verifier, idp *Client, sessions SessionService) *Federator {
	return &Federator{verifier: verifier, idp: idp, sessions: sessions}
}

// AuthorizeRedirectURL exposes the IdP authorize URL for the facade.
func (f *Federator) AuthorizeRedirectURL(state string) string {
	return f.idp.AuthorizeRedirectURL(state)
}

// LoginWithIdentityToken is the direct flow: the caller already holds an
// identity token obtained from the IdP.
func (f *Federator) LoginWithIdentityToken(ctx context.Context, idToken string) (auth.TokenBundle, *auth.Account, error) {
	claims, err := f.verifier.Verify(ctx, idToken)
	if err != nil {
		return auth.TokenBundle{}, nil, err
	}
	return f.resolve(ctx, claims)
}

// LoginWithCode is the redirect flow: exchange the authorization code at
// the IdP token endpoint, then verify the returned identity token exactly
// as in the direct flow.
func (f *Federator) LoginWithCode(ctx context.Context, code string) (auth.TokenBundle, *auth.Account, error) {
	bundle, err := f.idp.ExchangeCode(ctx, code)
	if err != nil {
		return auth.TokenBundle{}, nil, err
	}
	claims, err := f.verifier.Verify(ctx, bundle.IDToken)
	if err != nil {
		return auth.TokenBundle{}, nil, err
	}
	return f.resolve(ctx, claims)
}

func (f *Federator) resolve(ctx context.Context, claims *IdentityClaims) (auth.TokenBundle, *auth.Account, error) {
	email, first, last, err := identityProfile(claims)
	if err != nil {
		return auth.TokenBundle{}, nil, err
	}
	return f.sessions.FederatedLogin(ctx, email, first, last)
}

// identityProfile extracts the account fields from identity claims. Email
// falls back to preferred_username; the name parts fall back to splitting
// the display name on its first space.
func identityProfile(claims *IdentityClaims) (email, first, last string, err error) {
	email = strings.TrimSpace(claims.Email)
	if email == "" {
		email = strings.TrimSpace(claims.PreferredUsername)
	}
	if email == "" {
		return "", "", "", auth.NewFederationError("missing email claim", nil)
	}

	first = strings.TrimSpace(claims.GivenName)
	last = strings.TrimSpace(claims.FamilyName)
	if first == "" || last == "" {
		head, tail, _ := strings.Cut(strings.TrimSpace(claims.Name), " ")
		if first == "" {
			first = head
		}
		if last == "" {
			last = strings.TrimSpace(tail)
		}
	}
	return email, first, last, nil
}
