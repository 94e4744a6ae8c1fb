package httpapi

import (
	"net/http"
	"time"

	"authgate.dev/internal/audit"
	"authgate.dev/internal/auth"
)

type loginRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
	TenantID int64  `json:"tenant_id,omitempty"`
}

type loginResponse struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
	Principal auth.Summary `json:"principal"`
}

func (a *API) handleLogin(pt auth.PrincipalType) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		var req loginRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, errValidation)
			return
		}

		result, err := a.svc.Login(r.Context(), auth.LoginRequest{
			PrincipalType: pt,
			Login:         req.Login,
			Password:      req.Password,
			TenantID:      req.TenantID,
			Request:       a.requestInfo(r),
		})
		if err != nil {
			respondAuthError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, loginResponse{
			Token:     result.Token,
			ExpiresAt: result.ExpiresAt,
			Principal: result.Principal,
		})
	}
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	token, ok := auth.TokenFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, errUnauthorized)
		return
	}
	result, err := a.svc.Refresh(r.Context(), token, a.requestInfo(r))
	if err != nil {
		respondAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{
		Token:     result.Token,
		ExpiresAt: result.ExpiresAt,
		Principal: result.Principal,
	})
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	id, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, errUnauthorized)
		return
	}
	a.svc.Logout(id, a.requestInfo(r))
	writeJSON(w, http.StatusOK, map[string]any{"status": "logged_out"})
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

func (a *API) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	id, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, errUnauthorized)
		return
	}
	var req changePasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, errValidation)
		return
	}
	if err := a.svc.ChangePassword(r.Context(), id, req.CurrentPassword, req.NewPassword, a.requestInfo(r)); err != nil {
		respondAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "password_changed"})
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	id, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, errUnauthorized)
		return
	}
	writeJSON(w, http.StatusOK, auth.Summary{
		ID:            id.ID,
		Login:         id.Login,
		PrincipalType: id.PrincipalType,
		Role:          id.Role,
		TenantID:      id.TenantID,
	})
}

func (a *API) requestInfo(r *http.Request) audit.RequestInfo {
	return audit.RequestInfo{
		Route:     r.URL.Path,
		Method:    r.Method,
		ClientIP:  audit.ClientIP(r, a.trustProxy),
		UserAgent: r.UserAgent(),
	}
}
