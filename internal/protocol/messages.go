// Package protocol defines the realtime WebSocket frames exchanged between
// browser clients and the server. Every frame is a JSON object carrying a
// "type" discriminator.
package protocol

import (
	"errors"
	"fmt"

	"github.com/goccy/go-json"
)

// ---------------------------------------------------------------------------
// Message type constants
// ---------------------------------------------------------------------------

// Client -> Server message types.
const (
	TypeAnnounceIdentity = "announce_identity"
	TypeSendMessage      = "send_message"
	TypePing             = "ping"
)

// Server -> Client message types.
const (
	TypeConnectionCreated = "connection_created"
	TypeDeliverMessage    = "deliver_message"
	TypeError             = "error"
	TypePong              = "pong"
)

// Error codes carried in ErrorMsg.
const (
	CodeParseError      = "parse_error"
	CodeUnsupportedType = "unsupported_type"
	CodeInvalidPayload  = "invalid_payload"
	CodeRateLimited     = "rate_limited"
)

// ErrUnknownType is returned by ParseClientMessage for types a client may
// not send.
var ErrUnknownType = errors.New("protocol: unknown client message type")

// ---------------------------------------------------------------------------
// Envelope
// ---------------------------------------------------------------------------

// Envelope holds the message type and the raw bytes for deferred decoding.
type Envelope struct {
	Type string          `json:"type"`
	Raw  json.RawMessage `json:"-"`
}

// UnmarshalJSON captures the raw frame and extracts only the type field.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	e.Raw = make(json.RawMessage, len(data))
	copy(e.Raw, data)

	var partial struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &partial); err != nil {
		return fmt.Errorf("protocol: failed to unmarshal envelope: %w", err)
	}
	if partial.Type == "" {
		return fmt.Errorf("protocol: missing or empty \"type\" field")
	}
	e.Type = partial.Type
	return nil
}

// ---------------------------------------------------------------------------
// Client -> Server
// ---------------------------------------------------------------------------

// AnnounceIdentityMsg binds the sending connection to a user id.
type AnnounceIdentityMsg struct {
	Type   string `json:"type"`
	UserID string `json:"user_id"`
}

// SendMessageMsg asks the server to push Message to the recipient's live
// connection. Message is forwarded without interpretation.
type SendMessageMsg struct {
	Type            string          `json:"type"`
	RecipientUserID string          `json:"recipient_user_id"`
	Message         json.RawMessage `json:"message"`
}

// PingMsg is a client keepalive.
type PingMsg struct {
	Type string `json:"type"`
}

// ---------------------------------------------------------------------------
// Server -> Client
// ---------------------------------------------------------------------------

// ConnectionCreatedMsg tells the client its server-assigned connection id.
type ConnectionCreatedMsg struct {
	Type         string `json:"type"`
	ConnectionID string `json:"connection_id"`
}

// DeliverMessageMsg carries a chat payload to its recipient.
type DeliverMessageMsg struct {
	Type    string          `json:"type"`
	Message json.RawMessage `json:"message"`
}

// ErrorMsg reports a rejected frame.
type ErrorMsg struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// PongMsg answers a client ping.
type PongMsg struct {
	Type string `json:"type"`
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// ParseClientMessage decodes a raw frame into its typed struct. Unknown and
// server-only types are errors.
func ParseClientMessage(data []byte) (string, interface{}, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", nil, fmt.Errorf("protocol: failed to parse message: %w", err)
	}

	var (
		msg interface{}
		err error
	)

	switch env.Type {
	case TypeAnnounceIdentity:
		var m AnnounceIdentityMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeSendMessage:
		var m SendMessageMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypePing:
		var m PingMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	default:
		return env.Type, nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}

	if err != nil {
		return env.Type, nil, fmt.Errorf("protocol: failed to decode %q payload: %w", env.Type, err)
	}
	return env.Type, msg, nil
}

// NewServerMessage encodes payload and sets its "type" key to msgType.
func NewServerMessage(msgType string, payload interface{}) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal payload: %w", err)
	}

	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("protocol: failed to unmarshal payload into map: %w", err)
	}

	typ, err := json.Marshal(msgType)
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal type: %w", err)
	}
	m["type"] = typ

	out, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal server message: %w", err)
	}
	return out, nil
}

const deliverPrefix = `{"type":"` + TypeDeliverMessage + `","message":`

// NewDeliverMessage wraps payload in a deliver_message frame. The payload
// bytes are embedded verbatim, not re-encoded.
func NewDeliverMessage(payload []byte) ([]byte, error) {
	if len(payload) == 0 || !json.Valid(payload) {
		return nil, fmt.Errorf("protocol: deliver payload is not valid JSON")
	}
	out := make([]byte, 0, len(deliverPrefix)+len(payload)+1)
	out = append(out, deliverPrefix...)
	out = append(out, payload...)
	out = append(out, '}')
	return out, nil
}
