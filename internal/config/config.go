package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// IdP carries the external identity provider settings. The endpoint URLs
// are derived from the tenant ID unless overridden.
type IdP struct {
	TenantID     string
	ClientID     string
	ClientSecret string
	RedirectURI  string
	Scope        string
	Authority    string
	AuthorizeURL string
	TokenURL     string
	JWKSURL      string
	IssuerURL    string
}

// Config holds every recognized option of the service.
type Config struct {
	Addr       string
	DatabaseDSN string

	JWTSecret    string
	JWTAlgorithm string
	AccessTTL    time.Duration
	RefreshTTL   time.Duration
	BcryptCost   int

	IdP IdP
}

const (
	defaultAddr       = ":8080"
	defaultAlgorithm  = "HS256"
	defaultAccessTTL  = 30 * time.Minute
	defaultRefreshTTL = 7 * 24 * time.Hour
	defaultBcryptCost = 12
	defaultScope      = "openid profile email"
)

// Load reads configuration from the environment. A .env file in the
// working directory is applied first when present.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Addr:        envOr("TEMPORA_ADDR", defaultAddr),
		DatabaseDSN: os.Getenv("TEMPORA_PG_DSN"),

		JWTSecret:    os.Getenv("TEMPORA_JWT_SECRET"),
		JWTAlgorithm: envOr("TEMPORA_JWT_ALG", defaultAlgorithm),
		AccessTTL:    defaultAccessTTL,
		RefreshTTL:   defaultRefreshTTL,
		BcryptCost:   defaultBcryptCost,

		IdP: IdP{
			TenantID:     os.Getenv("TEMPORA_IDP_TENANT_ID"),
			ClientID:     os.Getenv("TEMPORA_IDP_CLIENT_ID"),
			ClientSecret: os.Getenv("TEMPORA_IDP_CLIENT_SECRET"),
			RedirectURI:  os.Getenv("TEMPORA_IDP_REDIRECT_URI"),
			Scope:        envOr("TEMPORA_IDP_SCOPE", defaultScope),
			Authority:    os.Getenv("TEMPORA_IDP_AUTHORITY"),
			AuthorizeURL: os.Getenv("TEMPORA_IDP_AUTHORIZE_URL"),
			TokenURL:     os.Getenv("TEMPORA_IDP_TOKEN_URL"),
			JWKSURL:      os.Getenv("TEMPORA_IDP_JWKS_URL"),
			IssuerURL:    os.Getenv("TEMPORA_IDP_ISSUER"),
		},
	}

	var err error
	if cfg.AccessTTL, err = envDuration("TEMPORA_ACCESS_TTL", cfg.AccessTTL); err != nil {
		return Config{}, err
	}
	if cfg.RefreshTTL, err = envDuration("TEMPORA_REFRESH_TTL", cfg.RefreshTTL); err != nil {
		return Config{}, err
	}
	if cfg.BcryptCost, err = envInt("TEMPORA_BCRYPT_COST", cfg.BcryptCost); err != nil {
		return Config{}, err
	}

	cfg.IdP.derive()
	return cfg, nil
}

// derive fills the endpoint URLs from the tenant authority unless they
// were set explicitly.
func (p *IdP) derive() {
	if p.Authority == "" && p.TenantID != "" {
		p.Authority = "https://login.microsoftonline.com/" + p.TenantID
	}
	authority := strings.TrimRight(p.Authority, "/")
	if authority == "" {
		return
	}
	if p.AuthorizeURL == "" {
		p.AuthorizeURL = authority + "/oauth2/v2.0/authorize"
	}
	if p.TokenURL == "" {
		p.TokenURL = authority + "/oauth2/v2.0/token"
	}
	if p.JWKSURL == "" {
		p.JWKSURL = authority + "/discovery/v2.0/keys"
	}
	if p.IssuerURL == "" {
		p.IssuerURL = authority + "/v2.0"
	}
}

// Enabled reports whether federation is configured at all.
func (p IdP) Enabled() bool {
	return p.ClientID != "" && p.JWKSURL != ""
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("config: %s must be a positive duration: %q", key, raw)
	}
	return d, nil
}

func envInt(key string, def int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("config: %s must be a positive integer: %q", key, raw)
	}
	return n, nil
}
