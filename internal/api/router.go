// Package api exposes the REST surface and mounts the realtime endpoint.
package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"

	"github.com/realar/estate/internal/account"
	"github.com/realar/estate/internal/auth"
	"github.com/realar/estate/internal/chat"
	"github.com/realar/estate/internal/listing"
	"github.com/realar/estate/internal/metrics"
	"github.com/realar/estate/internal/presence"
	"github.com/realar/estate/internal/ratelimit"
	"github.com/realar/estate/internal/ws"
)

var validate = validator.New()

// Config holds the HTTP-facing settings.
type Config struct {
	ServerName   string
	CORSOrigins  []string
	SecureCookie bool
}

// Pinger reports database reachability. *store.DB satisfies it.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Deps are the services the handlers call. DB, Realtime, Presence and
// Limiter may be nil.
type Deps struct {
	DB       Pinger
	Accounts *account.Service
	Listings *listing.Service
	Chats    *chat.Coordinator
	JWT      *auth.JWTManager
	Limiter  *ratelimit.Limiter
	Realtime *ws.Server
	Presence *presence.Directory
}

// Handler serves every HTTP route of the application.
type Handler struct {
	cfg  Config
	deps Deps
	auth *auth.Middleware
}

// NewHandler creates a Handler.
func NewHandler(cfg Config, deps Deps) *Handler {
	return &Handler{
		cfg:  cfg,
		deps: deps,
		auth: auth.NewMiddleware(deps.JWT, func(w http.ResponseWriter, status int, message string) {
			writeError(w, status, codeForStatus(status), message)
		}),
	}
}

// Routes builds the chi router.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(requestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   h.cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", h.Health)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())
	if h.deps.Realtime != nil {
		r.Get("/ws", h.deps.Realtime.HandleUpgrade)
	}

	r.Route("/api/auth", func(r chi.Router) {
		r.Post("/register", h.Register)
		r.Post("/login", h.Login)
		r.Post("/logout", h.Logout)
	})

	r.Route("/api/users", func(r chi.Router) {
		r.Get("/", h.ListUsers)
		r.Group(func(r chi.Router) {
			r.Use(h.auth.Require)
			r.Get("/profilePosts", h.ProfilePosts)
			r.Get("/notification", h.Notification)
			r.Post("/save", h.SavePost)
			r.Get("/{id}", h.GetUser)
			r.Put("/{id}", h.UpdateUser)
			r.Delete("/{id}", h.DeleteUser)
		})
	})

	r.Route("/api/posts", func(r chi.Router) {
		r.Get("/", h.ListPosts)
		r.Get("/{id}/coordinates", h.PostCoordinates)
		r.With(h.auth.Optional).Get("/{id}", h.GetPost)
		r.Group(func(r chi.Router) {
			r.Use(h.auth.Require)
			r.Post("/", h.CreatePost)
			r.Put("/{id}", h.UpdatePost)
			r.Delete("/{id}", h.DeletePost)
		})
	})

	r.Get("/api/models/{id}/models", h.PostModels)
	r.Get("/api/panoramic/{id}/images", h.PostPanoramics)

	r.Route("/api/chats", func(r chi.Router) {
		r.Use(h.auth.Require)
		r.Get("/", h.ListChats)
		r.Get("/{id}", h.GetChat)
		r.Post("/", h.CreateChat)
		r.Put("/read/{id}", h.ReadChat)
	})

	r.Route("/api/messages", func(r chi.Router) {
		r.Use(h.auth.Require)
		r.Get("/{chatId}", h.ListMessages)
		r.Post("/{chatId}", h.SendMessage)
	})

	return r
}
