// Package chat owns conversations between two users: finding or creating
// the chat for a pair, persisting messages, and pushing each stored message
// to the recipient's live connection.
package chat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/realar/estate/internal/logging"
	"github.com/realar/estate/internal/messaging"
	"github.com/realar/estate/internal/metrics"
	"github.com/realar/estate/internal/models"
	"github.com/realar/estate/internal/realtime"
	"github.com/realar/estate/internal/store"
)

// Repository is the durable storage the coordinator depends on. Errors wrap
// store.ErrNotFound and store.ErrConflict.
type Repository interface {
	FindChatByParticipants(ctx context.Context, x, y string) (*models.Chat, error)
	CreateChat(ctx context.Context, initiatorID, recipientID string) (*models.Chat, error)
	GetChat(ctx context.Context, id string) (*models.Chat, error)
	ListChats(ctx context.Context, userID string) ([]models.Chat, error)
	CreateMessage(ctx context.Context, msg *models.Message) error
	ListMessages(ctx context.Context, chatID string) ([]models.Message, error)
	MarkChatSeen(ctx context.Context, chatID, userID string) error
	CountUnseenChats(ctx context.Context, userID string) (int, error)
}

// Deliverer pushes a payload to a user's live connection.
type Deliverer interface {
	Route(userID string, payload []byte) realtime.Outcome
}

// EventPublisher emits domain events. *messaging.NATSClient satisfies it.
type EventPublisher interface {
	PublishEvent(subject string, v interface{}) error
}

// Coordinator implements chat creation and message sending on top of a
// Repository and a Deliverer.
type Coordinator struct {
	repo      Repository
	deliverer Deliverer
	events    EventPublisher // optional
}

// NewCoordinator creates a Coordinator. events may be nil.
func NewCoordinator(repo Repository, deliverer Deliverer, events EventPublisher) *Coordinator {
	return &Coordinator{repo: repo, deliverer: deliverer, events: events}
}

// CreateChat returns the chat between initiatorID and recipientID, creating
// it when the pair has none. The pair is unordered.
func (c *Coordinator) CreateChat(ctx context.Context, initiatorID, recipientID string) (*models.Chat, error) {
	if initiatorID == recipientID {
		return nil, ErrSelfChat
	}

	existing, err := c.repo.FindChatByParticipants(ctx, initiatorID, recipientID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}

	created, err := c.repo.CreateChat(ctx, initiatorID, recipientID)
	switch {
	case err == nil:
	case errors.Is(err, store.ErrConflict):
		// Lost a concurrent create for the same pair.
		existing, ferr := c.repo.FindChatByParticipants(ctx, initiatorID, recipientID)
		if ferr != nil {
			return nil, fmt.Errorf("%w: %w", ErrStorage, ferr)
		}
		return existing, nil
	case errors.Is(err, store.ErrNotFound):
		return nil, ErrRecipientNotFound
	default:
		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}

	logging.Info().
		Str("chat_id", created.ID).
		Str("initiator", initiatorID).
		Str("recipient", recipientID).
		Msg("chat: created")
	c.publish(messaging.SubjectChatCreated, ChatEvent{
		ChatID:      created.ID,
		UserIDs:     created.UserIDs,
		InitiatorID: initiatorID,
	})
	return created, nil
}

// SendMessage stores text as a message from senderID in chatID and then
// routes it to the other participant. Nothing is routed unless the message
// was stored.
func (c *Coordinator) SendMessage(ctx context.Context, chatID, senderID, text string) (*models.Message, error) {
	start := time.Now()

	if err := ValidateMessage(text); err != nil {
		metrics.MessagesTotal.WithLabelValues("rejected").Inc()
		return nil, err
	}

	chat, err := c.participantChat(ctx, chatID, senderID)
	if err != nil {
		metrics.MessagesTotal.WithLabelValues("rejected").Inc()
		return nil, err
	}

	msg := &models.Message{ChatID: chat.ID, UserID: senderID, Text: text}
	if err := c.repo.CreateMessage(ctx, msg); err != nil {
		metrics.MessagesTotal.WithLabelValues("failed").Inc()
		logging.Error().Err(err).Str("chat_id", chatID).Str("sender", senderID).Msg("chat: failed to store message")
		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}
	metrics.MessagesTotal.WithLabelValues("persisted").Inc()

	recipientID := chat.Other(senderID)
	var outcome realtime.Outcome
	if payload, err := json.Marshal(msg); err != nil {
		logging.Error().Err(err).Str("message_id", msg.ID).Msg("chat: failed to encode message for delivery")
		outcome = realtime.Failed
	} else {
		outcome = c.deliverer.Route(recipientID, payload)
	}
	metrics.MessageLatency.Observe(time.Since(start).Seconds())

	c.publish(messaging.SubjectMessageCreated, MessageEvent{
		ChatID:      chat.ID,
		MessageID:   msg.ID,
		SenderID:    senderID,
		RecipientID: recipientID,
		Text:        msg.Text,
		Delivery:    outcome.String(),
		CreatedAt:   msg.CreatedAt,
	})
	return msg, nil
}

// ListChats returns userID's chats with the other participant attached.
func (c *Coordinator) ListChats(ctx context.Context, userID string) ([]models.Chat, error) {
	chats, err := c.repo.ListChats(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}
	return chats, nil
}

// GetChat returns the chat with its messages and marks it seen by userID.
func (c *Coordinator) GetChat(ctx context.Context, chatID, userID string) (*models.Chat, error) {
	chat, err := c.participantChat(ctx, chatID, userID)
	if err != nil {
		return nil, err
	}
	if err := c.repo.MarkChatSeen(ctx, chat.ID, userID); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}
	if !contains(chat.SeenBy, userID) {
		chat.SeenBy = append(chat.SeenBy, userID)
	}

	msgs, err := c.repo.ListMessages(ctx, chat.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}
	chat.Messages = msgs
	return chat, nil
}

// MarkRead records that userID has seen the latest message in chatID.
func (c *Coordinator) MarkRead(ctx context.Context, chatID, userID string) error {
	chat, err := c.participantChat(ctx, chatID, userID)
	if err != nil {
		return err
	}
	if err := c.repo.MarkChatSeen(ctx, chat.ID, userID); err != nil {
		return fmt.Errorf("%w: %w", ErrStorage, err)
	}
	return nil
}

// Messages returns the stored messages of chatID for a participant.
func (c *Coordinator) Messages(ctx context.Context, chatID, userID string) ([]models.Message, error) {
	chat, err := c.participantChat(ctx, chatID, userID)
	if err != nil {
		return nil, err
	}
	msgs, err := c.repo.ListMessages(ctx, chat.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}
	return msgs, nil
}

// UnseenCount returns the number of userID's chats with unseen messages.
func (c *Coordinator) UnseenCount(ctx context.Context, userID string) (int, error) {
	n, err := c.repo.CountUnseenChats(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrStorage, err)
	}
	return n, nil
}

func (c *Coordinator) participantChat(ctx context.Context, chatID, userID string) (*models.Chat, error) {
	chat, err := c.repo.GetChat(ctx, chatID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrChatNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}
	if !chat.HasParticipant(userID) {
		return nil, ErrNotParticipant
	}
	return chat, nil
}

func (c *Coordinator) publish(subject string, v interface{}) {
	if c.events == nil {
		return
	}
	if err := c.events.PublishEvent(subject, v); err != nil {
		logging.Warn().Err(err).Str("subject", subject).Msg("chat: failed to publish event")
	}
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
