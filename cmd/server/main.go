package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/realar/estate/internal/account"
	"github.com/realar/estate/internal/api"
	"github.com/realar/estate/internal/auth"
	"github.com/realar/estate/internal/chat"
	"github.com/realar/estate/internal/config"
	"github.com/realar/estate/internal/listing"
	"github.com/realar/estate/internal/logging"
	"github.com/realar/estate/internal/messaging"
	"github.com/realar/estate/internal/presence"
	"github.com/realar/estate/internal/ratelimit"
	"github.com/realar/estate/internal/realtime"
	"github.com/realar/estate/internal/session"
	"github.com/realar/estate/internal/store"
	"github.com/realar/estate/internal/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to load config")
	}

	logCfg := logging.DefaultConfig()
	logCfg.Level = cfg.Logging.Level
	logCfg.Format = cfg.Logging.Format
	logCfg.Caller = cfg.Logging.Caller
	logging.Init(logCfg)

	ctx := context.Background()

	// --- Postgres ---
	db, err := store.Open(ctx, cfg.Database.URL, store.Options{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to connect to database")
	}
	if cfg.Database.AutoMigrate {
		res, err := db.Migrate()
		if err != nil {
			logging.Fatal().Err(err).Msg("failed to run migrations")
		}
		logging.Info().Uint("version", res.Version).Bool("changed", res.Changed).Msg("database migrated")
	}

	// --- Redis (optional) ---
	var (
		sessionStore *session.Store
		limiter      *ratelimit.Limiter
		mirror       realtime.SessionMirror
	)
	if cfg.Redis.Enabled {
		sessionStore, err = session.NewStore(cfg.Redis.Addr, cfg.Server.Name)
		if err != nil {
			logging.Fatal().Err(err).Str("addr", cfg.Redis.Addr).Msg("failed to connect to Redis")
		}
		limiter = ratelimit.NewLimiter(sessionStore.Client())
		mirror = sessionStore
	} else {
		logging.Warn().Msg("redis disabled: sessions are not mirrored and rate limits are off")
	}

	// --- NATS (optional) ---
	var (
		natsClient   *messaging.NATSClient
		chatEvents   chat.EventPublisher
		listingEvent listing.EventPublisher
	)
	if cfg.NATS.Enabled {
		natsCfg := messaging.DefaultNATSConfig()
		natsCfg.URL = cfg.NATS.URL
		natsCfg.Name = cfg.Server.Name
		natsClient, err = messaging.NewNATSClient(natsCfg)
		if err != nil {
			logging.Fatal().Err(err).Str("url", cfg.NATS.URL).Msg("failed to connect to NATS")
		}
		chatEvents = natsClient
		listingEvent = natsClient
	}

	// --- Realtime ---
	dir := presence.NewDirectory(presence.ParsePolicy(cfg.Presence.Policy))
	manager := realtime.NewManager(dir, mirror)

	wsCfg := ws.DefaultServerConfig()
	wsCfg.WorkerPoolSize = cfg.WebSocket.WorkerPoolSize
	wsCfg.MaxConnections = cfg.WebSocket.MaxConnections
	wsCfg.ReadTimeout = cfg.WebSocket.ReadTimeout
	wsCfg.WriteTimeout = cfg.WebSocket.WriteTimeout
	wsCfg.Heartbeat = ws.HeartbeatConfig{
		Interval: cfg.WebSocket.HeartbeatInterval,
		Timeout:  cfg.WebSocket.HeartbeatTimeout,
	}

	dispatcher := ws.NewMessageDispatcher()
	wsServer := ws.NewServer(wsCfg, sessionStore, dispatcher.Dispatch)
	if limiter != nil {
		wsServer.SetAdmission(func(r *http.Request) bool {
			ctx, cancel := context.WithTimeout(r.Context(), time.Second)
			defer cancel()
			allowed, err := limiter.Allow(ctx, api.ClientIP(r), ratelimit.RuleConnect)
			if err != nil {
				// The limiter fails open; the upgrade proceeds.
				logging.Debug().Err(err).Msg("ws admission check failed")
			}
			return allowed
		})
	}
	router := realtime.NewRouter(dir, wsServer)
	realtime.NewHandlers(manager, router, limiter).Attach(wsServer, dispatcher)

	if err := wsServer.Start(); err != nil {
		logging.Fatal().Err(err).Msg("failed to start websocket server")
	}

	// --- Services ---
	jwtManager, err := auth.NewJWTManager(cfg.Security.JWTSecret, cfg.Security.TokenTTL)
	if err != nil {
		logging.Fatal().Err(err).Msg("invalid auth config")
	}

	handler := api.NewHandler(api.Config{
		ServerName:   cfg.Server.Name,
		CORSOrigins:  cfg.Security.CORSOrigins,
		SecureCookie: cfg.Security.SecureCookie,
	}, api.Deps{
		DB:       db,
		Accounts: account.NewService(db, jwtManager),
		Listings: listing.NewService(db, listingEvent),
		Chats:    chat.NewCoordinator(db, router, chatEvents),
		JWT:      jwtManager,
		Limiter:  limiter,
		Realtime: wsServer,
		Presence: dir,
	})

	httpServer := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           handler.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logging.Info().
		Str("listen_addr", cfg.Server.ListenAddr).
		Str("server_name", cfg.Server.Name).
		Str("presence_policy", dir.Policy().String()).
		Bool("redis", cfg.Redis.Enabled).
		Bool("nats", cfg.NATS.Enabled).
		Msg("estate server starting")

	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Graceful shutdown.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logging.Info().Str("signal", sig.String()).Msg("received signal, initiating graceful shutdown")
	case err := <-errCh:
		logging.Error().Err(err).Msg("http server failed")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logging.Error().Err(err).Msg("http shutdown error")
	}
	if err := wsServer.Shutdown(shutdownCtx); err != nil {
		logging.Error().Err(err).Msg("websocket shutdown error")
	}
	if natsClient != nil {
		natsClient.Close()
	}
	if sessionStore != nil {
		if err := sessionStore.Close(); err != nil {
			logging.Error().Err(err).Msg("session store close error")
		}
	}
	if err := db.Close(); err != nil {
		logging.Error().Err(err).Msg("database close error")
	}
	logging.Info().Msg("shutdown complete")
}
