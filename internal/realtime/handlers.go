package realtime

import (
	"context"
	"time"

	"github.com/realar/estate/internal/logging"
	"github.com/realar/estate/internal/protocol"
	"github.com/realar/estate/internal/ratelimit"
	"github.com/realar/estate/internal/ws"
)

// Handlers connects the WebSocket transport to the lifecycle manager and
// the router.
type Handlers struct {
	manager *Manager
	router  *Router
	limiter *ratelimit.Limiter // nil disables relay throttling
}

// NewHandlers creates Handlers. limiter may be nil.
func NewHandlers(manager *Manager, router *Router, limiter *ratelimit.Limiter) *Handlers {
	return &Handlers{manager: manager, router: router, limiter: limiter}
}

// Attach registers the realtime message types on d and the lifecycle hooks
// on server.
func (h *Handlers) Attach(server *ws.Server, d *ws.MessageDispatcher) {
	server.SetOnConnect(h.manager.Open)
	server.SetOnDisconnect(h.manager.Close)
	h.Register(d)
}

// Register adds the announce_identity and send_message handlers to d.
func (h *Handlers) Register(d *ws.MessageDispatcher) {
	d.Register(protocol.TypeAnnounceIdentity, h.handleAnnounceIdentity)
	d.Register(protocol.TypeSendMessage, h.handleSendMessage)
}

// ---------------------------------------------------------------------------
// announce_identity
// ---------------------------------------------------------------------------

func (h *Handlers) handleAnnounceIdentity(conn *ws.Connection, msg interface{}) {
	m, ok := msg.(protocol.AnnounceIdentityMsg)
	if !ok || m.UserID == "" {
		ws.SendError(conn, protocol.CodeInvalidPayload, "user_id is required")
		return
	}
	// A refused rebind is resolved by the directory policy and not reported
	// to the client.
	h.manager.Bind(m.UserID, conn.ID)
}

// ---------------------------------------------------------------------------
// send_message
// ---------------------------------------------------------------------------

func (h *Handlers) handleSendMessage(conn *ws.Connection, msg interface{}) {
	m, ok := msg.(protocol.SendMessageMsg)
	if !ok || m.RecipientUserID == "" || len(m.Message) == 0 {
		ws.SendError(conn, protocol.CodeInvalidPayload, "recipient_user_id and message are required")
		return
	}

	sender := conn.ID
	if userID, bound := h.manager.Directory().UserOf(conn.ID); bound {
		sender = userID
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	allowed, err := h.limiter.Allow(ctx, sender, ratelimit.RuleMessage)
	cancel()
	if err != nil {
		// The limiter fails open; the relay proceeds.
		logging.Debug().Err(err).Str("sender", sender).Msg("realtime: rate limit check failed")
	}
	if !allowed {
		logging.Info().Str("sender", sender).Msg("realtime: relay rate limited")
		ws.SendError(conn, protocol.CodeRateLimited, "too many messages")
		return
	}

	h.router.Route(m.RecipientUserID, m.Message)
}
