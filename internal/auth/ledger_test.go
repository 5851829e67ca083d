package auth

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestHashTokenIsStableHex(t *testing.T) {
	a := HashToken("raw-token")
	b := HashToken("raw-token")
	if a != b {
		t.Fatal("hash not deterministic")
	}
	if len(a) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(a))
	}
	if a == "raw-token" || HashToken("other") == a {
		t.Fatal("hash not binding")
	}
}

func TestLedgerRecordLookupRevoke(t *testing.T) {
	current := time.Now().UTC()
	store := newMemStore(func() time.Time { return current })
	store.accounts["acct-1"] = &Account{ID: "acct-1", Active: true}
	ledger := NewLedger(store, func() time.Time { return current })
	ctx := context.Background()

	if err := ledger.Record(ctx, "acct-1", "raw-token", current.Add(time.Hour)); err != nil {
		t.Fatalf("Record: %v", err)
	}

	entry, err := ledger.LookupActive(ctx, "acct-1", "raw-token")
	if err != nil {
		t.Fatalf("LookupActive: %v", err)
	}
	if entry.TokenHash != HashToken("raw-token") {
		t.Fatal("ledger stored something other than the hash")
	}
	if entry.TokenHash == "raw-token" {
		t.Fatal("raw token persisted")
	}

	// wrong owner never matches
	if _, err := ledger.LookupActive(ctx, "acct-2", "raw-token"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for wrong owner, got %v", err)
	}

	revoked, err := ledger.Revoke(ctx, "raw-token")
	if err != nil || !revoked {
		t.Fatalf("Revoke: %v revoked=%v", err, revoked)
	}
	// revocation is terminal and idempotent
	revoked, err = ledger.Revoke(ctx, "raw-token")
	if err != nil || revoked {
		t.Fatalf("second Revoke: %v revoked=%v", err, revoked)
	}
	if _, err := ledger.LookupActive(ctx, "acct-1", "raw-token"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("revoked entry still live: %v", err)
	}
}

func TestLedgerExpiryUsesClock(t *testing.T) {
	current := time.Now().UTC()
	store := newMemStore(func() time.Time { return current })
	store.accounts["acct-1"] = &Account{ID: "acct-1", Active: true}
	ledger := NewLedger(store, func() time.Time { return current })
	ctx := context.Background()

	if err := ledger.Record(ctx, "acct-1", "raw-token", current.Add(time.Minute)); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if _, err := ledger.LookupActive(ctx, "acct-1", "raw-token"); err != nil {
		t.Fatalf("LookupActive before expiry: %v", err)
	}

	current = current.Add(2 * time.Minute)
	if _, err := ledger.LookupActive(ctx, "acct-1", "raw-token"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after expiry, got %v", err)
	}
}

func TestLedgerRevokeAll(t *testing.T) {
	current := time.Now().UTC()
	store := newMemStore(func() time.Time { return current })
	store.accounts["acct-1"] = &Account{ID: "acct-1", Active: true}
	store.accounts["acct-2"] = &Account{ID: "acct-2", Active: true}
	ledger := NewLedger(store, func() time.Time { return current })
	ctx := context.Background()

	for _, raw := range []string{"one", "two"} {
		if err := ledger.Record(ctx, "acct-1", raw, current.Add(time.Hour)); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}
	if err := ledger.Record(ctx, "acct-2", "three", current.Add(time.Hour)); err != nil {
		t.Fatalf("Record: %v", err)
	}

	if err := ledger.RevokeAll(ctx, "acct-1"); err != nil {
		t.Fatalf("RevokeAll: %v", err)
	}
	for _, raw := range []string{"one", "two"} {
		if _, err := ledger.LookupActive(ctx, "acct-1", raw); !errors.Is(err, ErrNotFound) {
			t.Fatalf("entry %q survived RevokeAll: %v", raw, err)
		}
	}
	// other accounts are untouched
	if _, err := ledger.LookupActive(ctx, "acct-2", "three"); err != nil {
		t.Fatalf("unrelated entry revoked: %v", err)
	}
}
