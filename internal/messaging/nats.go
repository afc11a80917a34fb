// Package messaging provides a NATS client wrapper for publishing domain
// events (new chats, new messages, listing changes) to other services such
// as notification or search indexers.
package messaging

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/nats-io/nats.go"

	"github.com/realar/estate/internal/logging"
)

// NATS subjects for domain events.
const (
	SubjectChatCreated    = "chat.created"
	SubjectMessageCreated = "chat.message.created"
	SubjectPostCreated    = "post.created"
	SubjectPostDeleted    = "post.deleted"
)

// Event is the envelope published on every subject.
type Event struct {
	Subject    string          `json:"subject"`
	Source     string          `json:"source"` // server name
	OccurredAt time.Time       `json:"occurred_at"`
	Data       json.RawMessage `json:"data"`
}

// NATSClient wraps the NATS connection and stamps published events with
// its source name.
type NATSClient struct {
	conn   *nats.Conn
	source string
}

// NATSConfig holds NATS connection settings.
type NATSConfig struct {
	URL           string        // nats://localhost:4222
	Name          string        // client name, also the event source
	ReconnectWait time.Duration // time between reconnect attempts
	MaxReconnects int           // max reconnect attempts (-1 for infinite)
}

// DefaultNATSConfig returns sensible defaults.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           nats.DefaultURL,
		Name:          "estate",
		ReconnectWait: 2 * time.Second,
		MaxReconnects: -1,
	}
}

// NewNATSClient connects to NATS with the given config and returns a ready
// client. It returns an error if the initial connection fails.
func NewNATSClient(config NATSConfig) (*NATSClient, error) {
	opts := []nats.Option{
		nats.Name(config.Name),
		nats.ReconnectWait(config.ReconnectWait),
		nats.MaxReconnects(config.MaxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logging.Warn().Err(err).Msg("nats: disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logging.Info().Str("url", nc.ConnectedUrl()).Msg("nats: reconnected")
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			logging.Info().Msg("nats: connection closed")
		}),
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	logging.Info().Str("url", nc.ConnectedUrl()).Msg("nats: connected")

	return &NATSClient{
		conn:   nc,
		source: config.Name,
	}, nil
}

// PublishEvent encodes v inside an Event envelope and publishes it on
// subject.
func (c *NATSClient) PublishEvent(subject string, v interface{}) error {
	data, err := EncodeEvent(c.source, subject, v, time.Now())
	if err != nil {
		return err
	}
	if err := c.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("nats publish %s: %w", subject, err)
	}
	return nil
}

// EncodeEvent builds the wire form of an Event.
func EncodeEvent(source, subject string, v interface{}, at time.Time) ([]byte, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("messaging: encode %s payload: %w", subject, err)
	}
	return json.Marshal(Event{
		Subject:    subject,
		Source:     source,
		OccurredAt: at.UTC(),
		Data:       payload,
	})
}

// Close flushes pending publishes and closes the NATS connection.
func (c *NATSClient) Close() {
	if err := c.conn.Drain(); err != nil {
		logging.Warn().Err(err).Msg("nats: connection drain failed")
	}

	logging.Info().Msg("nats: client closed")
}
