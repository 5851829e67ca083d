package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"tempora.org/internal/ids"
)

// HashToken returns the hex sha256 digest of a raw token. Only this digest
// is ever persisted, so a leaked ledger cannot be replayed as sessions.
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// Ledger persists one revocable entry per issued refresh token. It backs
// logout and the forced re-authentication after a password change.
type Ledger struct {
	store Store
	now   func() time.Time
}

// NewLedger constructs a Ledger over the store.
func NewLedger(store Store, now func() time.Time) *Ledger {
	if now == nil {
		now = time.Now
	}
	return &Ledger{store: store, now: now}
}

// Record inserts a ledger entry for the raw token. Multiple concurrent
// sessions per account are expected; entries never collide.
func (l *Ledger) Record(ctx context.Context, accountID, rawToken string, expiresAt time.Time) error {
	entry := &RefreshToken{
		ID:        ids.New(),
		AccountID: accountID,
		TokenHash: HashToken(rawToken),
		ExpiresAt: expiresAt.UTC(),
	}
	return l.store.RefreshTokens(ctx).Create(ctx, entry)
}

// LookupActive finds the live entry for the raw token: unrevoked, unexpired
// and owned by an active account. Returns ErrNotFound otherwise.
func (l *Ledger) LookupActive(ctx context.Context, accountID, rawToken string) (*RefreshToken, error) {
	entry, err := l.store.RefreshTokens(ctx).FindActive(ctx, accountID, HashToken(rawToken))
	if err != nil {
		return nil, err
	}
	if !entry.ExpiresAt.After(l.now().UTC()) {
		return nil, ErrNotFound
	}
	return entry, nil
}

// Revoke marks the entry for the raw token revoked. Idempotent; reports
// whether a live entry was affected.
func (l *Ledger) Revoke(ctx context.Context, rawToken string) (bool, error) {
	return l.store.RefreshTokens(ctx).Revoke(ctx, HashToken(rawToken))
}

// RevokeAll revokes every live entry for the account, ending all of its
// sessions at once.
func (l *Ledger) RevokeAll(ctx context.Context, accountID string) error {
	return l.store.RefreshTokens(ctx).RevokeAllForAccount(ctx, accountID)
}
