package api

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/realar/estate/internal/models"
	"github.com/realar/estate/internal/store"
)

// memStore backs the account, listing and chat services in handler tests.
type memStore struct {
	mu       sync.Mutex
	seq      int
	users    map[string]*models.User
	posts    map[string]*models.Post
	saved    map[[2]string]bool
	chats    map[string]*models.Chat
	messages map[string][]models.Message

	failMessages bool
}

func newMemStore() *memStore {
	return &memStore{
		users:    make(map[string]*models.User),
		posts:    make(map[string]*models.Post),
		saved:    make(map[[2]string]bool),
		chats:    make(map[string]*models.Chat),
		messages: make(map[string][]models.Message),
	}
}

func (m *memStore) next(prefix string) string {
	m.seq++
	return fmt.Sprintf("%s-%d", prefix, m.seq)
}

// users

func (m *memStore) CreateUser(_ context.Context, u *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.users {
		if e.Username == u.Username || e.Email == u.Email {
			return fmt.Errorf("mem: %w", store.ErrConflict)
		}
	}
	u.ID = m.next("user")
	u.CreatedAt = time.Now()
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func (m *memStore) GetUser(_ context.Context, id string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memStore) GetUserByUsername(_ context.Context, username string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Username == username {
			cp := *u
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *memStore) ListUsers(context.Context) ([]models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.User{}
	for _, u := range m.users {
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStore) UpdateUser(_ context.Context, id string, upd store.UserUpdate) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if upd.Username != nil {
		u.Username = *upd.Username
	}
	if upd.Email != nil {
		u.Email = *upd.Email
	}
	if upd.Password != nil {
		u.Password = *upd.Password
	}
	if upd.Avatar != nil {
		u.Avatar = upd.Avatar
	}
	cp := *u
	return &cp, nil
}

func (m *memStore) DeleteUser(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[id]; !ok {
		return store.ErrNotFound
	}
	delete(m.users, id)
	return nil
}

func (m *memStore) ToggleSavedPost(_ context.Context, userID, postID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.posts[postID]; !ok {
		return false, store.ErrNotFound
	}
	k := [2]string{userID, postID}
	if m.saved[k] {
		delete(m.saved, k)
		return false, nil
	}
	m.saved[k] = true
	return true, nil
}

func (m *memStore) IsPostSaved(_ context.Context, userID, postID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saved[[2]string{userID, postID}], nil
}

// posts

func (m *memStore) ListPosts(_ context.Context, f models.PostFilter) ([]models.Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Post{}
	for _, p := range m.posts {
		if f.City != "" && !strings.EqualFold(p.City, f.City) {
			continue
		}
		if f.Type != "" && p.Type != f.Type {
			continue
		}
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStore) ListPostsByUser(_ context.Context, userID string) ([]models.Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Post
	for _, p := range m.posts {
		if p.UserID == userID {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (m *memStore) ListSavedPosts(_ context.Context, userID string) ([]models.Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Post
	for k := range m.saved {
		if k[0] == userID {
			out = append(out, *m.posts[k[1]])
		}
	}
	return out, nil
}

func (m *memStore) GetPost(_ context.Context, id string) (*models.Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.posts[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memStore) CreatePost(_ context.Context, p *models.Post, d *models.PostDetail) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p.ID = m.next("post")
	p.CreatedAt = time.Now()
	if d != nil {
		d.PostID = p.ID
		p.Detail = d
	}
	cp := *p
	m.posts[p.ID] = &cp
	return nil
}

func (m *memStore) UpdatePost(_ context.Context, p *models.Post, d *models.PostDetail) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.posts[p.ID]; !ok {
		return store.ErrNotFound
	}
	if d != nil {
		d.PostID = p.ID
		p.Detail = d
	}
	cp := *p
	m.posts[p.ID] = &cp
	return nil
}

func (m *memStore) DeletePost(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.posts[id]; !ok {
		return store.ErrNotFound
	}
	delete(m.posts, id)
	return nil
}

// chats

func samePair(c *models.Chat, x, y string) bool {
	return c.HasParticipant(x) && c.HasParticipant(y)
}

func (m *memStore) FindChatByParticipants(_ context.Context, x, y string) (*models.Chat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.chats {
		if samePair(c, x, y) {
			cp := *c
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *memStore) CreateChat(_ context.Context, x, y string) (*models.Chat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.users[x] == nil || m.users[y] == nil {
		return nil, store.ErrNotFound
	}
	a, b := x, y
	if b < a {
		a, b = b, a
	}
	c := &models.Chat{ID: m.next("chat"), UserIDs: []string{a, b}, SeenBy: []string{x}, CreatedAt: time.Now()}
	m.chats[c.ID] = c
	cp := *c
	return &cp, nil
}

func (m *memStore) GetChat(_ context.Context, id string) (*models.Chat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.chats[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *c
	cp.SeenBy = append([]string(nil), c.SeenBy...)
	return &cp, nil
}

func (m *memStore) ListChats(_ context.Context, userID string) ([]models.Chat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Chat
	for _, c := range m.chats {
		if c.HasParticipant(userID) {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (m *memStore) CreateMessage(_ context.Context, msg *models.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failMessages {
		return errors.New("mem: connection reset")
	}
	c, ok := m.chats[msg.ChatID]
	if !ok {
		return store.ErrNotFound
	}
	msg.ID = m.next("msg")
	msg.CreatedAt = time.Now()
	m.messages[msg.ChatID] = append(m.messages[msg.ChatID], *msg)
	text := msg.Text
	c.LastMessage = &text
	c.SeenBy = []string{msg.UserID}
	return nil
}

func (m *memStore) ListMessages(_ context.Context, chatID string) ([]models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.Message{}, m.messages[chatID]...), nil
}

func (m *memStore) MarkChatSeen(_ context.Context, chatID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.chats[chatID]
	if !ok {
		return store.ErrNotFound
	}
	for _, id := range c.SeenBy {
		if id == userID {
			return nil
		}
	}
	c.SeenBy = append(c.SeenBy, userID)
	return nil
}

func (m *memStore) CountUnseenChats(_ context.Context, userID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.chats {
		if !c.HasParticipant(userID) {
			continue
		}
		seen := false
		for _, id := range c.SeenBy {
			if id == userID {
				seen = true
			}
		}
		if !seen {
			n++
		}
	}
	return n, nil
}
