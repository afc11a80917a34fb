package chat

import "errors"

var (
	ErrSelfChat          = errors.New("chat: cannot start a chat with yourself")
	ErrChatNotFound      = errors.New("chat: not found")
	ErrRecipientNotFound = errors.New("chat: recipient not found")
	ErrNotParticipant    = errors.New("chat: user is not a participant")
	ErrInvalidMessage    = errors.New("chat: invalid message")
	// ErrStorage wraps any durable storage failure. Nothing is delivered
	// when it is returned from SendMessage.
	ErrStorage = errors.New("chat: storage failure")
)
