package ws

import (
	"errors"

	"github.com/realar/estate/internal/logging"
	"github.com/realar/estate/internal/protocol"
)

// MessageHandler is the callback signature for handling a parsed client
// message. msg is the concrete struct returned by
// protocol.ParseClientMessage (e.g. protocol.AnnounceIdentityMsg).
type MessageHandler func(conn *Connection, msg interface{})

// MessageDispatcher routes incoming frames to registered handlers by
// message type. Ping is answered internally; malformed or unsupported
// frames get a structured error reply.
type MessageDispatcher struct {
	handlers map[string]MessageHandler
}

// NewMessageDispatcher creates an empty MessageDispatcher.
func NewMessageDispatcher() *MessageDispatcher {
	return &MessageDispatcher{
		handlers: make(map[string]MessageHandler),
	}
}

// Register associates a handler with a message type, replacing any
// previous registration.
func (d *MessageDispatcher) Register(msgType string, handler MessageHandler) {
	d.handlers[msgType] = handler
}

// Dispatch is the onMessage callback for Server.
func (d *MessageDispatcher) Dispatch(conn *Connection, data []byte) {
	msgType, msg, err := protocol.ParseClientMessage(data)
	if err != nil {
		logging.Debug().Err(err).Str("conn_id", conn.ID).Msg("ws: dispatch parse error")
		switch {
		case errors.Is(err, protocol.ErrUnknownType):
			SendError(conn, protocol.CodeUnsupportedType, "unsupported message type")
		case msgType != "":
			SendError(conn, protocol.CodeInvalidPayload, "invalid message payload")
		default:
			SendError(conn, protocol.CodeParseError, "invalid message format")
		}
		return
	}

	if msgType == protocol.TypePing {
		d.sendPong(conn)
		return
	}

	handler, ok := d.handlers[msgType]
	if !ok {
		logging.Debug().Str("type", msgType).Str("conn_id", conn.ID).Msg("ws: unsupported message type")
		SendError(conn, protocol.CodeUnsupportedType, "unsupported message type")
		return
	}

	handler(conn, msg)
}

// SendError writes a structured error frame. Failures are logged only.
func SendError(conn *Connection, code string, message string) {
	data, err := protocol.NewServerMessage(protocol.TypeError, protocol.ErrorMsg{
		Code:    code,
		Message: message,
	})
	if err != nil {
		logging.Error().Err(err).Str("conn_id", conn.ID).Msg("ws: failed to build error message")
		return
	}

	if err := conn.WriteMessage(data); err != nil {
		logging.Debug().Err(err).Str("conn_id", conn.ID).Msg("ws: failed to send error message")
	}
}

func (d *MessageDispatcher) sendPong(conn *Connection) {
	conn.Touch()

	data, err := protocol.NewServerMessage(protocol.TypePong, protocol.PongMsg{})
	if err != nil {
		logging.Error().Err(err).Str("conn_id", conn.ID).Msg("ws: failed to build pong message")
		return
	}

	if err := conn.WriteMessage(data); err != nil {
		logging.Debug().Err(err).Str("conn_id", conn.ID).Msg("ws: failed to send pong message")
	}
}
