package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"tempora.org/internal/auth"
)

func TestExtractBearerToken(t *testing.T) {
	cases := map[string]struct {
		header string
		want   string
		fails  bool
	}{
		"plain":            {header: "Bearer abc.def.ghi", want: "abc.def.ghi"},
		"case-insensitive": {header: "bearer abc", want: "abc"},
		"padded":           {header: "  Bearer   abc  ", want: "abc"},
		"empty":            {header: "", fails: true},
		"wrong scheme":     {header: "Basic dXNlcjpwdw==", fails: true},
		"scheme only":      {header: "Bearer ", fails: true},
	}
	for name, tc := range cases {
		got, err := extractBearerToken(tc.header)
		if tc.fails {
			if err == nil {
				t.Fatalf("%s: expected error", name)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Fatalf("%s: got %q err %v", name, got, err)
		}
	}
}

func TestWithAuthAttachesClaims(t *testing.T) {
	api := newTestAPI(t)
	var seen *auth.AccessClaims
	protected := api.withAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = auth.ClaimsFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	access, _, err := api.sessions.Tokens().IssueAccess(&auth.Account{
		ID: "acct-1", Username: "jdoe", Email: "jane@example.com", Active: true,
	})
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+access)
	rr := httptest.NewRecorder()
	protected.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if seen == nil || seen.Subject != "acct-1" || seen.Username != "jdoe" {
		t.Fatalf("claims not attached: %+v", seen)
	}
}

func TestWithAuthRejectsBadTokens(t *testing.T) {
	api := newTestAPI(t)
	protected := api.withAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for name, header := range map[string]string{
		"missing": "",
		"garbage": "Bearer not-a-token",
	} {
		req := httptest.NewRequest(http.MethodGet, "/v1/auth/me", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rr := httptest.NewRecorder()
		protected.ServeHTTP(rr, req)
		if rr.Code != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401, got %d", name, rr.Code)
		}
	}

	// a refresh token is never a valid bearer credential
	refresh, _, err := api.sessions.Tokens().IssueRefresh("acct-1")
	if err != nil {
		t.Fatalf("IssueRefresh: %v", err)
	}
	req := httptest.NewRequest(http.MethodGet, "/v1/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+refresh)
	rr := httptest.NewRecorder()
	protected.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("refresh as bearer: expected 401, got %d", rr.Code)
	}
}

func TestWithAuthSkipsPublicPaths(t *testing.T) {
	api := newTestAPI(t)
	protected := api.withAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for _, path := range []string{"/healthz", "/v1/auth/login", "/v1/auth/refresh", "/metrics"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rr := httptest.NewRecorder()
		protected.ServeHTTP(rr, req)
		if rr.Code != http.StatusOK {
			t.Fatalf("%s: expected pass-through, got %d", path, rr.Code)
		}
	}
}

func TestRequireAdmin(t *testing.T) {
	handler := func(w http.ResponseWriter, r *http.Request) {
		if !requireAdmin(w, r) {
			return
		}
		w.WriteHeader(http.StatusOK)
	}

	req := httptest.NewRequest(http.MethodGet, "/internal", nil)
	req = req.WithContext(auth.ContextWithClaims(req.Context(), &auth.AccessClaims{Admin: true}))
	rr := httptest.NewRecorder()
	handler(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("admin: expected 200, got %d", rr.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/internal", nil)
	req = req.WithContext(auth.ContextWithClaims(req.Context(), &auth.AccessClaims{Admin: false}))
	rr = httptest.NewRecorder()
	handler(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("non-admin: expected 403, got %d", rr.Code)
	}
}
