package chat

import "time"

// MessageEvent is published on chat.message.created after a message is
// stored.
type MessageEvent struct {
	ChatID      string    `json:"chatId"`
	MessageID   string    `json:"messageId"`
	SenderID    string    `json:"senderId"`
	RecipientID string    `json:"recipientId"`
	Text        string    `json:"text"`
	Delivery    string    `json:"delivery"` // realtime outcome: delivered, offline, failed
	CreatedAt   time.Time `json:"createdAt"`
}

// ChatEvent is published on chat.created when a new pair starts talking.
type ChatEvent struct {
	ChatID      string   `json:"chatId"`
	UserIDs     []string `json:"userIds"`
	InitiatorID string   `json:"initiatorId"`
}
