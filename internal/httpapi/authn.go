package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"authgate.dev/internal/audit"
	"authgate.dev/internal/auth"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

// withAuth verifies the bearer token against live account state and attaches
// the identity and raw token to the request context. Denials are audited;
// rejected requests never reach the wrapped handler.
func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil {
			a.svc.RecordDenied(audit.KindInvalidToken, a.requestInfo(r), http.StatusUnauthorized, 0)
			writeError(w, r, http.StatusUnauthorized, errUnauthorized)
			return
		}

		// Panel principals must hold a recognized role; guardians carry none
		// and pass the role check untouched.
		id, err := a.svc.Authenticate(r.Context(), token, auth.PanelRoles...)
		if err != nil {
			switch {
			case errors.Is(err, auth.ErrForbidden):
				a.svc.RecordDenied(audit.KindAccessDenied, a.requestInfo(r), http.StatusForbidden, 0)
				writeError(w, r, http.StatusForbidden, errForbidden)
			case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrUnauthorized):
				a.svc.RecordDenied(audit.KindInvalidToken, a.requestInfo(r), http.StatusUnauthorized, 0)
				writeError(w, r, http.StatusUnauthorized, errInvalidToken)
			default:
				writeError(w, r, http.StatusInternalServerError, errServer)
			}
			return
		}

		ctx := auth.ContextWithIdentity(r.Context(), id)
		ctx = auth.ContextWithToken(ctx, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}
