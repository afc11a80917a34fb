// Package realtime implements the presence-aware delivery layer: the
// connection lifecycle (open, bind, close), identity binding into the
// presence directory, and best-effort routing of chat payloads to a user's
// live connection.
package realtime

import (
	"github.com/realar/estate/internal/logging"
	"github.com/realar/estate/internal/metrics"
	"github.com/realar/estate/internal/presence"
	"github.com/realar/estate/internal/protocol"
)

// Sender writes a complete frame to an open connection.
type Sender interface {
	SendMessage(connID string, data []byte) error
}

// Outcome is the result of a single Route call.
type Outcome int

const (
	// Delivered means the frame was written to the recipient's connection.
	Delivered Outcome = iota
	// Offline means the recipient had no route; nothing was sent.
	Offline
	// Failed means a route existed but the frame could not be built or
	// written.
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Delivered:
		return "delivered"
	case Offline:
		return "offline"
	default:
		return "failed"
	}
}

// Router forwards payloads to the connection a user is bound to.
type Router struct {
	dir    *presence.Directory
	sender Sender
}

// NewRouter creates a Router reading routes from dir and writing through
// sender.
func NewRouter(dir *presence.Directory, sender Sender) *Router {
	return &Router{dir: dir, sender: sender}
}

// Route pushes payload to userID's live connection as a deliver_message
// frame. It never fails the caller: a missing recipient is reported as
// Offline and write errors as Failed. The directory lock is released before
// any write.
func (r *Router) Route(userID string, payload []byte) Outcome {
	outcome := r.route(userID, payload)
	metrics.DeliveriesTotal.WithLabelValues(outcome.String()).Inc()
	return outcome
}

func (r *Router) route(userID string, payload []byte) Outcome {
	connID, ok := r.dir.Lookup(userID)
	if !ok {
		logging.Debug().Str("user_id", userID).Msg("realtime: recipient offline, delivery skipped")
		return Offline
	}

	frame, err := protocol.NewDeliverMessage(payload)
	if err != nil {
		logging.Warn().Err(err).Str("user_id", userID).Msg("realtime: failed to build deliver_message")
		return Failed
	}

	if err := r.sender.SendMessage(connID, frame); err != nil {
		logging.Warn().Err(err).
			Str("user_id", userID).
			Str("conn_id", connID).
			Msg("realtime: delivery write failed")
		return Failed
	}
	return Delivered
}
