package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/realar/estate/internal/account"
	"github.com/realar/estate/internal/auth"
	"github.com/realar/estate/internal/logging"
	"github.com/realar/estate/internal/ratelimit"
)

type registerRequest struct {
	Username string `json:"username" validate:"required,min=3,max=32"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6,max=72"`
}

type loginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// Register handles POST /api/auth/register.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	_, err := h.deps.Accounts.Register(r.Context(), account.RegisterInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, messageBody{Message: "User created successfully"})
}

// Login handles POST /api/auth/login. On success the token is set as an
// HTTP-only cookie and the user is returned.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	ip := ClientIP(r)
	ctx, cancel := context.WithTimeout(r.Context(), time.Second)
	allowed, err := h.deps.Limiter.Allow(ctx, ip, ratelimit.RuleLogin)
	if err != nil {
		// The limiter fails open; the login proceeds.
		logging.Debug().Err(err).Str("ip", ip).Msg("api: login rate limit check failed")
	}
	if !allowed {
		retry := h.deps.Limiter.RetryAfter(ctx, ip, ratelimit.RuleLogin)
		cancel()
		logging.Warn().Str("ip", ip).Msg("api: login rate limited")
		w.Header().Set("Retry-After", strconv.Itoa(int(retry.Seconds())))
		writeError(w, http.StatusTooManyRequests, "rate_limited", "Too many login attempts")
		return
	}
	// Remaining logs its own Redis errors and reports the full limit.
	remaining, _ := h.deps.Limiter.Remaining(ctx, ip, ratelimit.RuleLogin)
	cancel()
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))

	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	user, token, err := h.deps.Accounts.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	http.SetCookie(w, h.tokenCookie(token, int(h.deps.JWT.TTL().Seconds())))
	writeJSON(w, http.StatusOK, user)
}

// Logout handles POST /api/auth/logout by expiring the token cookie.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, h.tokenCookie("", -1))
	writeJSON(w, http.StatusOK, messageBody{Message: "Logout Successful"})
}

func (h *Handler) tokenCookie(value string, maxAge int) *http.Cookie {
	c := &http.Cookie{
		Name:     auth.CookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.cfg.SecureCookie,
		SameSite: http.SameSiteLaxMode,
	}
	if h.cfg.SecureCookie {
		// Cross-site clients only send Secure cookies with SameSite=None.
		c.SameSite = http.SameSiteNoneMode
	}
	return c
}

// currentUser returns the authenticated user id. Routes behind Require
// always have one.
func currentUser(r *http.Request) string {
	id, _ := auth.UserID(r.Context())
	return id
}
