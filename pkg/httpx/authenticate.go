package httpx

import (
	"errors"
	"net/http"
	"strings"

	"github.com/aussiebroadwan/miniokta/pkg/jwtx"
	"github.com/aussiebroadwan/miniokta/pkg/slogx"
)

// AuthError is the outcome of a failed bearer authentication. Missing
// credentials are a 401; credentials that were presented but rejected are a
// 403.
type AuthError struct {
	Status      int
	Code        string
	Description string
}

func (e *AuthError) Error() string { return e.Code + ": " + e.Description }

var (
	ErrMissingToken = &AuthError{
		Status:      http.StatusUnauthorized,
		Code:        "unauthorized",
		Description: "missing bearer token",
	}
	ErrTokenExpired = &AuthError{
		Status:      http.StatusForbidden,
		Code:        "token_expired",
		Description: "the access token has expired",
	}
	ErrTokenInvalid = &AuthError{
		Status:      http.StatusForbidden,
		Code:        "invalid_token",
		Description: "the access token is invalid",
	}
)

// BearerToken extracts the token from an "Authorization: Bearer <token>"
// header. The scheme is matched case-insensitively.
func BearerToken(r *http.Request) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(r.Header.Get("Authorization")), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// Authenticate verifies the bearer token on r. It has no side effects and
// returns either the claims or one of ErrMissingToken, ErrTokenExpired,
// ErrTokenInvalid.
func Authenticate(r *http.Request, v jwtx.Verifier) (jwtx.Claims, error) {
	raw, ok := BearerToken(r)
	if !ok {
		return jwtx.Claims{}, ErrMissingToken
	}

	claims, err := v.Verify(raw)
	switch {
	case err == nil:
		return claims, nil
	case errors.Is(err, jwtx.ErrExpired):
		return jwtx.Claims{}, ErrTokenExpired
	default:
		return jwtx.Claims{}, ErrTokenInvalid
	}
}

// AuthnMiddleware rejects requests without a valid bearer token and injects
// the verified claims into the request context.
func AuthnMiddleware(v jwtx.Verifier) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := Authenticate(r, v)
			if err != nil {
				var authErr *AuthError
				if !errors.As(err, &authErr) {
					authErr = ErrTokenInvalid
				}
				slogx.FromContext(r.Context()).Info("bearer authentication rejected", "reason", authErr.Code)
				WriteAuthError(w, authErr)
				return
			}

			next.ServeHTTP(w, r.WithContext(ContextWithClaims(r.Context(), claims)))
		})
	}
}

// WriteAuthError writes an RFC 6750 style bearer error.
func WriteAuthError(w http.ResponseWriter, e *AuthError) {
	if e.Status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", `Bearer`)
	} else {
		w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token", error_description="`+e.Description+`"`)
	}
	WriteJSON(w, e.Status, map[string]string{
		"error":             e.Code,
		"error_description": e.Description,
	})
}
