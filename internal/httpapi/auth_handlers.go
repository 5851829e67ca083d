package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"tempora.org/internal/audit"
	"tempora.org/internal/auth"
	"tempora.org/internal/federation"
	"tempora.org/internal/obs"
)

type registerRequest struct {
	Email      string `json:"email"`
	Username   string `json:"username"`
	Password   string `json:"password"`
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	Phone      string `json:"phone"`
	Department string `json:"department"`
	EmployeeID string `json:"employee_id"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

type ssoLoginRequest struct {
	IDToken string `json:"id_token"`
}

type ssoCallbackRequest struct {
	Code string `json:"code"`
}

type accountResponse struct {
	ID         string     `json:"id"`
	Email      string     `json:"email"`
	Username   string     `json:"username"`
	FirstName  string     `json:"first_name,omitempty"`
	LastName   string     `json:"last_name,omitempty"`
	Phone      string     `json:"phone,omitempty"`
	Department string     `json:"department,omitempty"`
	EmployeeID string     `json:"employee_id,omitempty"`
	Group      string     `json:"group,omitempty"`
	Roles      []string   `json:"roles"`
	Admin      bool       `json:"is_admin"`
	Active     bool       `json:"active"`
	CreatedAt  time.Time  `json:"created_at"`
	LastLogin  *time.Time `json:"last_login,omitempty"`
}

type sessionResponse struct {
	auth.TokenBundle
	Account accountResponse `json:"account"`
}

func toAccountResponse(acct *auth.Account) accountResponse {
	roles := []string{}
	for _, name := range strings.Split(acct.Roles, ",") {
		if name = strings.TrimSpace(name); name != "" {
			roles = append(roles, name)
		}
	}
	return accountResponse{
		ID:         acct.ID,
		Email:      acct.Email,
		Username:   acct.Username,
		FirstName:  acct.FirstName,
		LastName:   acct.LastName,
		Phone:      acct.Phone,
		Department: acct.Department,
		EmployeeID: acct.EmployeeID,
		Group:      acct.Group,
		Roles:      roles,
		Admin:      acct.Admin,
		Active:     acct.Active,
		CreatedAt:  acct.CreatedAt,
		LastLogin:  acct.LastLogin,
	}
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	acct, err := a.sessions.Register(r.Context(), auth.RegisterParams{
		Email:      req.Email,
		Username:   req.Username,
		Password:   req.Password,
		FirstName:  req.FirstName,
		LastName:   req.LastName,
		Phone:      req.Phone,
		Department: req.Department,
		EmployeeID: req.EmployeeID,
	})
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			writeError(w, r, http.StatusBadRequest, "email, username and password are required")
			return
		}
		a.authError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.account.registered", map[string]any{
		"account_id": acct.ID,
		"email":      acct.Email,
	})
	writeJSON(w, http.StatusCreated, toAccountResponse(acct))
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	bundle, acct, err := a.sessions.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		obs.ObserveLogin("denied")
		a.authError(w, r, err)
		return
	}
	obs.ObserveLogin("ok")
	_ = audit.LogEvent(r.Context(), "auth.session.opened", map[string]any{
		"account_id": acct.ID,
		"method":     "password",
	})
	writeJSON(w, http.StatusOK, sessionResponse{TokenBundle: bundle, Account: toAccountResponse(acct)})
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req refreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	grant, err := a.sessions.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		obs.ObserveTokenVerification("refresh", "denied")
		a.authError(w, r, err)
		return
	}
	obs.ObserveTokenVerification("refresh", "ok")
	writeJSON(w, http.StatusOK, grant)
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req refreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.sessions.Logout(r.Context(), req.RefreshToken); err != nil {
		a.authError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.session.closed", nil)
	writeJSON(w, http.StatusOK, map[string]any{"status": "logged_out"})
}

func (a *API) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	accountID, ok := auth.AccountIDFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	var req changePasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.sessions.ChangePassword(r.Context(), accountID, req.CurrentPassword, req.NewPassword); err != nil {
		a.authError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.password.changed", map[string]any{
		"account_id": accountID,
	})
	writeJSON(w, http.StatusOK, map[string]any{"status": "password_changed"})
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	accountID, ok := auth.AccountIDFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	acct, err := a.sessions.Account(r.Context(), accountID)
	if err != nil {
		a.authError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAccountResponse(acct))
}

// --- federated sign-in ---

func (a *API) handleSSOLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if a.federator == nil {
		writeError(w, r, http.StatusNotImplemented, "federated sign-in is not configured")
		return
	}
	var req ssoLoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	bundle, acct, err := a.federator.LoginWithIdentityToken(r.Context(), req.IDToken)
	if err != nil {
		obs.ObserveFederation("denied")
		a.authError(w, r, err)
		return
	}
	obs.ObserveFederation("ok")
	_ = audit.LogEvent(r.Context(), "auth.session.opened", map[string]any{
		"account_id": acct.ID,
		"method":     "sso",
	})
	writeJSON(w, http.StatusOK, sessionResponse{TokenBundle: bundle, Account: toAccountResponse(acct)})
}

func (a *API) handleSSOAuthorize(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if a.federator == nil {
		writeError(w, r, http.StatusNotImplemented, "federated sign-in is not configured")
		return
	}
	state := strings.TrimSpace(r.URL.Query().Get("state"))
	writeJSON(w, http.StatusOK, map[string]any{
		"authorize_url": a.federator.AuthorizeRedirectURL(state),
	})
}

func (a *API) handleSSOCallback(w http.ResponseWriter, r *http.Request) {
	if a.federator == nil {
		writeError(w, r, http.StatusNotImplemented, "federated sign-in is not configured")
		return
	}
	var code string
	switch r.Method {
	case http.MethodGet:
		code = r.URL.Query().Get("code")
	case http.MethodPost:
		var req ssoCallbackRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		code = req.Code
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
		return
	}
	bundle, acct, err := a.federator.LoginWithCode(r.Context(), code)
	if err != nil {
		obs.ObserveFederation("denied")
		a.authError(w, r, err)
		return
	}
	obs.ObserveFederation("ok")
	_ = audit.LogEvent(r.Context(), "auth.session.opened", map[string]any{
		"account_id": acct.ID,
		"method":     "sso",
	})
	writeJSON(w, http.StatusOK, sessionResponse{TokenBundle: bundle, Account: toAccountResponse(acct)})
}

// authError translates domain errors into HTTP responses. Internal causes
// never leak; federation reasons do, the frontend is trusted.
func (a *API) authError(w http.ResponseWriter, r *http.Request, err error) {
	var fedErr *auth.FederationError
	switch {
	case errors.As(err, &fedErr):
		if errors.Is(err, federation.ErrIdPUnreachable) {
			writeError(w, r, http.StatusBadGateway, fedErr.Reason)
			return
		}
		writeError(w, r, http.StatusUnauthorized, fedErr.Reason)
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeError(w, r, http.StatusUnauthorized, "invalid credentials")
	case errors.Is(err, auth.ErrTokenExpired):
		writeError(w, r, http.StatusUnauthorized, "token expired")
	case errors.Is(err, auth.ErrTokenInvalid):
		writeError(w, r, http.StatusUnauthorized, "invalid token")
	case errors.Is(err, auth.ErrConflict):
		writeError(w, r, http.StatusConflict, "email or username already registered")
	case errors.Is(err, auth.ErrForbidden):
		writeError(w, r, http.StatusForbidden, "forbidden")
	case errors.Is(err, auth.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "not found")
	default:
		obs.Logger().Printf(`{"level":"error","msg":"auth handler failed","path":%q,"err":%q}`, r.URL.Path, err.Error())
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}
