package federation

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"tempora.org/internal/auth"
)

func testClientConfig(tokenURL string) ClientConfig {
	return ClientConfig{
		TokenURL:     tokenURL,
		AuthorizeURL: "https://login.example.com/authorize",
		ClientID:     "client-123",
		ClientSecret: "s3cret",
		RedirectURI:  "https://app.example.com/callback",
		Scope:        "openid profile email",
	}
}

func TestAuthorizeRedirectURL(t *testing.T) {
	c := NewClient(testClientConfig("https://login.example.com/token"), nil)

	raw := c.AuthorizeRedirectURL("state-42")
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse authorize url: %v", err)
	}
	q := u.Query()
	if q.Get("client_id") != "client-123" {
		t.Fatalf("missing client_id: %s", raw)
	}
	if q.Get("response_type") != "code" || q.Get("response_mode") != "query" {
		t.Fatalf("unexpected response params: %s", raw)
	}
	if q.Get("redirect_uri") != "https://app.example.com/callback" {
		t.Fatalf("missing redirect_uri: %s", raw)
	}
	if q.Get("state") != "state-42" {
		t.Fatalf("missing state: %s", raw)
	}

	// state is optional
	if strings.Contains(c.AuthorizeRedirectURL(""), "state=") {
		t.Fatal("empty state must be omitted")
	}
}

func TestExchangeCodeSendsForm(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Fatalf("unexpected method %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/x-www-form-urlencoded" {
			t.Fatalf("unexpected content type %q", ct)
		}
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		for key, want := range map[string]string{
			"client_id":     "client-123",
			"client_secret": "s3cret",
			"grant_type":    "authorization_code",
			"code":          "code-1",
			"redirect_uri":  "https://app.example.com/callback",
			"scope":         "openid profile email",
		} {
			if got := r.PostFormValue(key); got != want {
				t.Fatalf("form %s: got %q want %q", key, got, want)
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"at","id_token":"idt","token_type":"Bearer","expires_in":3600}`))
	}))
	defer srv.Close()

	c := NewClient(testClientConfig(srv.URL), nil)
	bundle, err := c.ExchangeCode(context.Background(), "code-1")
	if err != nil {
		t.Fatalf("ExchangeCode: %v", err)
	}
	if bundle.IDToken != "idt" || bundle.AccessToken != "at" {
		t.Fatalf("unexpected bundle: %+v", bundle)
	}
}

func TestExchangeCodeFailures(t *testing.T) {
	c := NewClient(testClientConfig("https://unused.example.com/token"), nil)
	if _, err := c.ExchangeCode(context.Background(), "  "); err == nil {
		t.Fatal("expected error for empty code")
	}

	denied := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
	}))
	defer denied.Close()
	c = NewClient(testClientConfig(denied.URL), nil)
	_, err := c.ExchangeCode(context.Background(), "code-1")
	var fedErr *auth.FederationError
	if !errors.As(err, &fedErr) || !strings.Contains(fedErr.Reason, "status 400") {
		t.Fatalf("expected federation error with status, got %v", err)
	}

	noIDToken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"access_token":"at","token_type":"Bearer"}`))
	}))
	defer noIDToken.Close()
	c = NewClient(testClientConfig(noIDToken.URL), nil)
	if _, err := c.ExchangeCode(context.Background(), "code-1"); !errors.As(err, &fedErr) {
		t.Fatalf("expected federation error for missing id_token, got %v", err)
	}

	closed := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	closed.Close()
	c = NewClient(testClientConfig(closed.URL), nil)
	if _, err := c.ExchangeCode(context.Background(), "code-1"); !errors.Is(err, ErrIdPUnreachable) {
		t.Fatalf("expected ErrIdPUnreachable, got %v", err)
	}
}
