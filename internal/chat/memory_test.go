package chat

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/realar/estate/internal/models"
	"github.com/realar/estate/internal/store"
)

// memoryRepo is an in-memory Repository with the same pair and error
// semantics as the Postgres store.
type memoryRepo struct {
	mu       sync.Mutex
	nextID   int
	chats    map[string]*models.Chat
	messages map[string][]models.Message
	users    map[string]bool // nil accepts any user id

	failCreateMessage error
	conflictOnce      bool // next CreateChat loses a race
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		chats:    make(map[string]*models.Chat),
		messages: make(map[string][]models.Message),
	}
}

func (r *memoryRepo) id(prefix string) string {
	r.nextID++
	return fmt.Sprintf("%s%d", prefix, r.nextID)
}

func pairOf(x, y string) [2]string {
	if x < y {
		return [2]string{x, y}
	}
	return [2]string{y, x}
}

func (r *memoryRepo) findLocked(x, y string) *models.Chat {
	want := pairOf(x, y)
	for _, c := range r.chats {
		if pairOf(c.UserIDs[0], c.UserIDs[1]) == want {
			return c
		}
	}
	return nil
}

func clone(c *models.Chat) *models.Chat {
	cp := *c
	cp.UserIDs = append([]string(nil), c.UserIDs...)
	cp.SeenBy = append([]string(nil), c.SeenBy...)
	return &cp
}

func (r *memoryRepo) FindChatByParticipants(_ context.Context, x, y string) (*models.Chat, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c := r.findLocked(x, y); c != nil {
		return clone(c), nil
	}
	return nil, fmt.Errorf("memory: find chat: %w", store.ErrNotFound)
}

func (r *memoryRepo) CreateChat(_ context.Context, x, y string) (*models.Chat, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.users != nil && (!r.users[x] || !r.users[y]) {
		return nil, fmt.Errorf("memory: create chat: %w", store.ErrNotFound)
	}
	if r.conflictOnce {
		// Simulate another request inserting the pair first.
		r.conflictOnce = false
		a := pairOf(x, y)
		r.chats["raced"] = &models.Chat{ID: "raced", UserIDs: a[:], SeenBy: []string{y}, CreatedAt: time.Now()}
		return nil, fmt.Errorf("memory: create chat: %w", store.ErrConflict)
	}
	if r.findLocked(x, y) != nil {
		return nil, fmt.Errorf("memory: create chat: %w", store.ErrConflict)
	}
	a := pairOf(x, y)
	c := &models.Chat{ID: r.id("chat"), UserIDs: a[:], SeenBy: []string{x}, CreatedAt: time.Now()}
	r.chats[c.ID] = c
	return clone(c), nil
}

func (r *memoryRepo) GetChat(_ context.Context, id string) (*models.Chat, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.chats[id]
	if !ok {
		return nil, fmt.Errorf("memory: get chat: %w", store.ErrNotFound)
	}
	return clone(c), nil
}

func (r *memoryRepo) ListChats(_ context.Context, userID string) ([]models.Chat, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []models.Chat{}
	for _, c := range r.chats {
		if c.HasParticipant(userID) {
			cp := clone(c)
			cp.Receiver = &models.PublicUser{ID: c.Other(userID), Username: c.Other(userID)}
			out = append(out, *cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memoryRepo) CreateMessage(_ context.Context, msg *models.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failCreateMessage != nil {
		return r.failCreateMessage
	}
	c, ok := r.chats[msg.ChatID]
	if !ok {
		return fmt.Errorf("memory: create message: %w", store.ErrNotFound)
	}
	msg.ID = r.id("msg")
	msg.CreatedAt = time.Now()
	r.messages[msg.ChatID] = append(r.messages[msg.ChatID], *msg)

	text, at := msg.Text, msg.CreatedAt
	c.LastMessage = &text
	c.LastMessageAt = &at
	c.SeenBy = []string{msg.UserID}
	return nil
}

func (r *memoryRepo) ListMessages(_ context.Context, chatID string) ([]models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.Message{}, r.messages[chatID]...), nil
}

func (r *memoryRepo) MarkChatSeen(_ context.Context, chatID, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.chats[chatID]
	if !ok {
		return store.ErrNotFound
	}
	if !contains(c.SeenBy, userID) {
		c.SeenBy = append(c.SeenBy, userID)
	}
	msgs := r.messages[chatID]
	for i := range msgs {
		if msgs[i].UserID != userID {
			msgs[i].Read = true
		}
	}
	return nil
}

func (r *memoryRepo) CountUnseenChats(_ context.Context, userID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.chats {
		if c.HasParticipant(userID) && !contains(c.SeenBy, userID) {
			n++
		}
	}
	return n, nil
}

var errDiskFull = errors.New("disk full")
