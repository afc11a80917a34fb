package api

import (
	"context"
	"net/http"
	"time"
)

type healthResponse struct {
	Status        string  `json:"status"`
	Server        string  `json:"server,omitempty"`
	Database      string  `json:"database"`
	Connections   int     `json:"connections"`
	OnlineUsers   int     `json:"online_users"`
	UptimeSeconds float64 `json:"uptime_seconds"`
}

// Health handles GET /health. An unreachable database reports 503.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok", Server: h.cfg.ServerName, Database: "disabled"}

	if h.deps.DB != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		err := h.deps.DB.PingContext(ctx)
		cancel()
		resp.Database = "ok"
		if err != nil {
			resp.Status = "degraded"
			resp.Database = err.Error()
		}
	}
	if h.deps.Realtime != nil {
		resp.Connections = h.deps.Realtime.Connections().Count()
		resp.UptimeSeconds = h.deps.Realtime.Uptime().Seconds()
	}
	if h.deps.Presence != nil {
		resp.OnlineUsers = h.deps.Presence.Count()
	}

	status := http.StatusOK
	if resp.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}
