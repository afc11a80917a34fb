package ws

import (
	"context"
	"time"

	"github.com/realar/estate/internal/logging"
)

// HeartbeatConfig holds heartbeat tuning parameters.
type HeartbeatConfig struct {
	Interval time.Duration // how often to ping (default: 30s)
	Timeout  time.Duration // grace period after a missed interval (default: 10s)
}

// DefaultHeartbeatConfig returns defaults for heartbeat monitoring.
func DefaultHeartbeatConfig() HeartbeatConfig {
	return HeartbeatConfig{
		Interval: 30 * time.Second,
		Timeout:  10 * time.Second,
	}
}

// StartHeartbeat begins a background goroutine that periodically pings all
// connections and removes those with no inbound activity within
// Interval + Timeout. It exits when the server is shut down.
func StartHeartbeat(server *Server, config HeartbeatConfig) {
	if config.Interval <= 0 {
		config = DefaultHeartbeatConfig()
	}
	go func() {
		ticker := time.NewTicker(config.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-server.done:
				return
			case <-ticker.C:
				checkConnections(server, config, time.Now())
			}
		}
	}()
}

// checkConnections evicts stale connections, pings the rest, and refreshes
// the Redis sessions of the survivors in one pipeline.
func checkConnections(server *Server, config HeartbeatConfig, now time.Time) {
	deadline := config.Interval + config.Timeout
	alive := make([]string, 0, server.conns.Count())

	for _, c := range server.Connections().All() {
		if idle := now.Sub(c.LastSeen()); idle > deadline {
			logging.Info().
				Str("conn_id", c.ID).
				Dur("idle", idle.Round(time.Second)).
				Msg("ws: heartbeat timeout")
			server.RemoveConnection(c)
			continue
		}

		if err := c.WritePing(); err != nil {
			logging.Info().Err(err).Str("conn_id", c.ID).Msg("ws: heartbeat ping failed")
			server.RemoveConnection(c)
			continue
		}
		alive = append(alive, c.ID)
	}

	if server.sessionStore != nil && len(alive) > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := server.sessionStore.RefreshMany(ctx, alive); err != nil {
			logging.Warn().Err(err).Int("sessions", len(alive)).Msg("ws: session refresh failed")
		}
	}
}
