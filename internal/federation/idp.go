package federation

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"tempora.org/internal/auth"
)

// ClientConfig carries the registered-application credentials for the
// authorization-code exchange.
type ClientConfig struct {
	TokenURL     string
	AuthorizeURL string
	ClientID     string
	ClientSecret string
	RedirectURI  string
	Scope        string
}

// TokenResponse is the bundle returned by the IdP token endpoint. Only the
// identity token is consumed; the rest is passed through for logging.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	IDToken      string `json:"id_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	Scope        string `json:"scope"`
	ExpiresIn    int64  `json:"expires_in"`
}

// Client performs the outbound calls of the code-exchange flow.
type Client struct {
	cfg  ClientConfig
	http *http.Client
}

// NewClient constructs a Client; a nil httpClient gets the default bounded
// one.
func NewClient(cfg ClientConfig, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{cfg: cfg, http: httpClient}
}

// AuthorizeRedirectURL builds the IdP authorize URL the frontend redirects
// the browser to.
func (c *Client) AuthorizeRedirectURL(state string) string {
	q := url.Values{}
	q.Set("client_id", c.cfg.ClientID)
	q.Set("response_type", "code")
	q.Set("redirect_uri", c.cfg.RedirectURI)
	q.Set("response_mode", "query")
	q.Set("scope", c.cfg.Scope)
	if state != "" {
		q.Set("state", state)
	}
	return c.cfg.AuthorizeURL + "?" + q.Encode()
}

// ExchangeCode trades an authorization code for the IdP token bundle.
// Failures are loud: non-success statuses and missing identity tokens are
// federation errors, transport failures are marked unreachable.
func (c *Client) ExchangeCode(ctx context.Context, code string) (*TokenResponse, error) {
	if strings.TrimSpace(code) == "" {
		return nil, auth.NewFederationError("authorization code is required", nil)
	}
	data := url.Values{}
	data.Set("client_id", c.cfg.ClientID)
	data.Set("client_secret", c.cfg.ClientSecret)
	data.Set("grant_type", "authorization_code")
	data.Set("code", code)
	data.Set("redirect_uri", c.cfg.RedirectURI)
	data.Set("scope", c.cfg.Scope)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.TokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, auth.NewFederationError("identity provider unreachable",
			fmt.Errorf("%w: %v", ErrIdPUnreachable, err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read token response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, auth.NewFederationError(
			fmt.Sprintf("token exchange failed: status %d", resp.StatusCode), nil)
	}

	var bundle TokenResponse
	if err := json.Unmarshal(body, &bundle); err != nil {
		return nil, auth.NewFederationError("token exchange returned malformed response", err)
	}
	if bundle.IDToken == "" {
		return nil, auth.NewFederationError("identity provider returned no identity token", nil)
	}
	return &bundle, nil
}
