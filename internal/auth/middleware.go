package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/realar/estate/internal/logging"
)

type contextKey string

const claimsContextKey contextKey = "claims"

// CookieName is the cookie that carries the session token.
const CookieName = "token"

// Middleware authenticates requests using a JWTManager.
type Middleware struct {
	jwt     *JWTManager
	onError func(w http.ResponseWriter, status int, message string)
}

// NewMiddleware creates auth middleware. onError writes the rejection
// response; it lets the API keep one error body format.
func NewMiddleware(jwt *JWTManager, onError func(w http.ResponseWriter, status int, message string)) *Middleware {
	if onError == nil {
		onError = func(w http.ResponseWriter, status int, message string) {
			http.Error(w, message, status)
		}
	}
	return &Middleware{jwt: jwt, onError: onError}
}

// tokenFromRequest reads the token cookie, falling back to a Bearer header.
func tokenFromRequest(r *http.Request) string {
	if c, err := r.Cookie(CookieName); err == nil && c.Value != "" {
		return c.Value
	}
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return ""
}

// Require rejects requests without a valid token: 401 when none is sent,
// 403 when it does not verify.
func (m *Middleware) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := tokenFromRequest(r)
		if raw == "" {
			m.onError(w, http.StatusUnauthorized, "Not Authenticated!")
			return
		}
		claims, err := m.jwt.ValidateToken(raw)
		if err != nil {
			logging.Debug().Err(err).Str("path", r.URL.Path).Msg("auth: token rejected")
			m.onError(w, http.StatusForbidden, "Token is not Valid!")
			return
		}
		next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
	})
}

// Optional attaches claims when a token is present. A token that is present
// but invalid is rejected with 403.
func (m *Middleware) Optional(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := tokenFromRequest(r)
		if raw == "" {
			next.ServeHTTP(w, r)
			return
		}
		claims, err := m.jwt.ValidateToken(raw)
		if err != nil {
			m.onError(w, http.StatusForbidden, "Token is not Valid!")
			return
		}
		next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
	})
}

// WithClaims returns a copy of ctx carrying claims.
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, claimsContextKey, claims)
}

// UserID returns the authenticated user id from ctx, if any.
func UserID(ctx context.Context) (string, bool) {
	claims, ok := ctx.Value(claimsContextKey).(*Claims)
	if !ok || claims == nil {
		return "", false
	}
	return claims.UserID, true
}
