package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/realar/estate/internal/chat"
	"github.com/realar/estate/internal/models"
)

type createChatRequest struct {
	ReceiverID string `json:"receiverId" validate:"required"`
}

type sendMessageRequest struct {
	Text string `json:"text" validate:"required"`
}

// ListChats handles GET /api/chats.
func (h *Handler) ListChats(w http.ResponseWriter, r *http.Request) {
	chats, err := h.deps.Chats.ListChats(r.Context(), currentUser(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if chats == nil {
		chats = []models.Chat{}
	}
	writeJSON(w, http.StatusOK, chats)
}

// GetChat handles GET /api/chats/{id}. Reading a chat marks it seen.
func (h *Handler) GetChat(w http.ResponseWriter, r *http.Request) {
	c, err := h.deps.Chats.GetChat(r.Context(), chi.URLParam(r, "id"), currentUser(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// CreateChat handles POST /api/chats. The existing chat for the pair is
// returned when there is one.
func (h *Handler) CreateChat(w http.ResponseWriter, r *http.Request) {
	var req createChatRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	c, err := h.deps.Chats.CreateChat(r.Context(), currentUser(r), req.ReceiverID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// ReadChat handles PUT /api/chats/read/{id}.
func (h *Handler) ReadChat(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.deps.Chats.MarkRead(r.Context(), id, currentUser(r)); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageBody{Message: "Chat marked as read"})
}

// ListMessages handles GET /api/messages/{chatId}. Unlike GetChat it does
// not mark the chat seen.
func (h *Handler) ListMessages(w http.ResponseWriter, r *http.Request) {
	msgs, err := h.deps.Chats.Messages(r.Context(), chi.URLParam(r, "chatId"), currentUser(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if msgs == nil {
		msgs = []models.Message{}
	}
	writeJSON(w, http.StatusOK, msgs)
}

// SendMessage handles POST /api/messages/{chatId}. The message is stored
// before it is pushed to the recipient.
func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	msg, err := h.deps.Chats.SendMessage(r.Context(), chi.URLParam(r, "chatId"), currentUser(r), req.Text)
	if errors.Is(err, chat.ErrStorage) {
		writeError(w, http.StatusInternalServerError, "storage_error", "Failed to send message")
		return
	}
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, msg)
}
