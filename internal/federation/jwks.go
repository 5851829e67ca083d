package federation

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"
)

// ErrNoMatchingKey reports that the IdP key set holds no key for the
// token's key-ID, even after a refetch.
var ErrNoMatchingKey = errors.New("federation: no matching key in key set")

// ErrIdPUnreachable marks transport-level failures talking to the IdP.
var ErrIdPUnreachable = errors.New("federation: identity provider unreachable")

const defaultMinRefetch = 15 * time.Minute

// KeySet caches the IdP's published signing keys, addressed by key-ID.
// Keys are fetched lazily on first use and replaced wholesale on refetch.
// An unknown kid triggers a refetch (the IdP rotates keys), throttled by a
// minimum interval so a bad client cannot stampede the IdP. Duplicate
// fetches under concurrent misses are benign.
type KeySet struct {
	url        string
	client     *http.Client
	now        func() time.Time
	minRefetch time.Duration

	mu        sync.Mutex
	keys      map[string]*rsa.PublicKey
	fetchedAt time.Time
}

// KeySetOption configures KeySet.
type KeySetOption func(*KeySet)

// WithHTTPClient overrides the outbound HTTP client.
func WithHTTPClient(client *http.Client) KeySetOption {
	return func(ks *KeySet) {
		if client != nil {
			ks.client = client
		}
	}
}

// WithKeySetClock overrides the time source (useful for tests).
func WithKeySetClock(fn func() time.Time) KeySetOption {
	return func(ks *KeySet) {
		if fn != nil {
			ks.now = fn
		}
	}
}

// WithMinRefetchInterval bounds how often an unknown kid may force a
// refetch.
func WithMinRefetchInterval(d time.Duration) KeySetOption {
	return func(ks *KeySet) {
		if d >= 0 {
			ks.minRefetch = d
		}
	}
}

// NewKeySet constructs a KeySet reading from url.
func NewKeySet(url string, opts ...KeySetOption) *KeySet {
	ks := &KeySet{
		url:        url,
		client:     &http.Client{Timeout: 10 * time.Second},
		now:        time.Now,
		minRefetch: defaultMinRefetch,
	}
	for _, opt := range opts {
		opt(ks)
	}
	return ks
}

// Key returns the public key for kid, fetching the set on first use and
// refetching once when the kid is unknown.
func (ks *KeySet) Key(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	ks.mu.Lock()
	defer ks.mu.Unlock()

	if key, ok := ks.keys[kid]; ok {
		return key, nil
	}
	if ks.fetchedAt.IsZero() || ks.now().Sub(ks.fetchedAt) >= ks.minRefetch {
		if err := ks.fetchLocked(ctx); err != nil {
			return nil, err
		}
		if key, ok := ks.keys[kid]; ok {
			return key, nil
		}
	}
	return nil, ErrNoMatchingKey
}

// jwk mirrors the RSA members of a JSON Web Key document entry.
type jwk struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Use string `json:"use"`
	N   string `json:"n"`
	E   string `json:"e"`
}

func (ks *KeySet) fetchLocked(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ks.url, nil)
	if err != nil {
		return fmt.Errorf("build key set request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := ks.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrIdPUnreachable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read key set: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch key set: status %d", resp.StatusCode)
	}

	var doc struct {
		Keys []jwk `json:"keys"`
	}
	if err := json.Unmarshal(body, &doc); err != nil {
		return fmt.Errorf("decode key set: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey, len(doc.Keys))
	for _, k := range doc.Keys {
		if !strings.EqualFold(k.Kty, "RSA") || k.Kid == "" {
			continue
		}
		pub, err := rsaPublicKey(k)
		if err != nil {
			return fmt.Errorf("decode key %s: %w", k.Kid, err)
		}
		keys[k.Kid] = pub
	}
	if len(keys) == 0 {
		return errors.New("key set contains no usable RSA keys")
	}

	ks.keys = keys
	ks.fetchedAt = ks.now()
	return nil
}

// rsaPublicKey rebuilds the public key from the base64url modulus and
// exponent members.
func rsaPublicKey(k jwk) (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(k.N, "="))
	if err != nil {
		return nil, fmt.Errorf("modulus: %w", err)
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(k.E, "="))
	if err != nil {
		return nil, fmt.Errorf("exponent: %w", err)
	}
	e := new(big.Int).SetBytes(eBytes)
	if !e.IsInt64() || e.Int64() <= 0 {
		return nil, errors.New("exponent out of range")
	}
	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(nBytes),
		E: int(e.Int64()),
	}, nil
}
