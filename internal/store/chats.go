package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/realar/estate/internal/models"
)

const chatColumns = `c.id, c.user_a, c.user_b, c.seen_by, c.last_message, c.last_message_at, c.created_at`

func scanChat(row rowScanner, extra ...any) (*models.Chat, error) {
	var (
		c    models.Chat
		a, b string
	)
	dest := []any{&c.ID, &a, &b, pq.Array(&c.SeenBy), &c.LastMessage, &c.LastMessageAt, &c.CreatedAt}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	c.UserIDs = []string{a, b}
	return &c, nil
}

// orderedPair returns the two ids with the smaller first, matching the
// user_a < user_b constraint.
func orderedPair(x, y string) (string, string) {
	if x < y {
		return x, y
	}
	return y, x
}

// FindChatByParticipants returns the chat between x and y in either order.
func (db *DB) FindChatByParticipants(ctx context.Context, x, y string) (*models.Chat, error) {
	a, b := orderedPair(x, y)
	c, err := scanChat(db.QueryRowContext(ctx,
		`SELECT `+chatColumns+` FROM chats c WHERE c.user_a = $1 AND c.user_b = $2`, a, b))
	if err != nil {
		return nil, fmt.Errorf("store: find chat: %w", mapError(err))
	}
	return c, nil
}

// CreateChat inserts a chat between x and y, seen by x. A chat that already
// exists for the pair yields ErrConflict.
func (db *DB) CreateChat(ctx context.Context, x, y string) (*models.Chat, error) {
	a, b := orderedPair(x, y)
	c := &models.Chat{
		ID:        uuid.NewString(),
		UserIDs:   []string{a, b},
		SeenBy:    []string{x},
		CreatedAt: time.Now().UTC(),
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO chats (id, user_a, user_b, seen_by, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		c.ID, a, b, pq.Array(c.SeenBy), c.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("store: create chat: %w", mapError(err))
	}
	return c, nil
}

// GetChat returns the chat with the given id.
func (db *DB) GetChat(ctx context.Context, id string) (*models.Chat, error) {
	c, err := scanChat(db.QueryRowContext(ctx, `SELECT `+chatColumns+` FROM chats c WHERE c.id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("store: get chat: %w", mapError(err))
	}
	return c, nil
}

// ListChats returns userID's chats, most recent activity first, each with
// the other participant as Receiver.
func (db *DB) ListChats(ctx context.Context, userID string) ([]models.Chat, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT `+chatColumns+`, u.id, u.username, u.avatar
		FROM chats c
		JOIN users u ON u.id = CASE WHEN c.user_a = $1 THEN c.user_b ELSE c.user_a END
		WHERE c.user_a = $1 OR c.user_b = $1
		ORDER BY COALESCE(c.last_message_at, c.created_at) DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("store: list chats: %w", err)
	}
	defer func() { _ = rows.Close() }()

	chats := []models.Chat{}
	for rows.Next() {
		r := &models.PublicUser{}
		c, err := scanChat(rows, &r.ID, &r.Username, &r.Avatar)
		if err != nil {
			return nil, fmt.Errorf("store: list chats: %w", err)
		}
		c.Receiver = r
		chats = append(chats, *c)
	}
	return chats, rows.Err()
}

// CreateMessage inserts msg and, in the same transaction, records it as the
// chat's last message with only the sender having seen it.
func (db *DB) CreateMessage(ctx context.Context, msg *models.Message) error {
	msg.ID = uuid.NewString()
	msg.CreatedAt = time.Now().UTC()

	err := db.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO messages (id, chat_id, user_id, text, read, created_at)
			VALUES ($1, $2, $3, $4, false, $5)`,
			msg.ID, msg.ChatID, msg.UserID, msg.Text, msg.CreatedAt); err != nil {
			return mapError(err)
		}
		res, err := tx.ExecContext(ctx, `
			UPDATE chats SET seen_by = $2, last_message = $3, last_message_at = $4
			WHERE id = $1`,
			msg.ChatID, pq.Array([]string{msg.UserID}), msg.Text, msg.CreatedAt)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("store: create message: %w", err)
	}
	return nil
}

// ListMessages returns the messages of chatID in send order.
func (db *DB) ListMessages(ctx context.Context, chatID string) ([]models.Message, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, chat_id, user_id, text, read, created_at
		FROM messages WHERE chat_id = $1
		ORDER BY created_at, id`, chatID)
	if err != nil {
		return nil, fmt.Errorf("store: list messages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	msgs := []models.Message{}
	for rows.Next() {
		var m models.Message
		if err := rows.Scan(&m.ID, &m.ChatID, &m.UserID, &m.Text, &m.Read, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: list messages: %w", err)
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// MarkChatSeen adds userID to the chat's seen set and flags the other
// participant's messages as read.
func (db *DB) MarkChatSeen(ctx context.Context, chatID, userID string) error {
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE chats
			SET seen_by = CASE WHEN $2 = ANY(seen_by) THEN seen_by ELSE array_append(seen_by, $2) END
			WHERE id = $1`, chatID, userID)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNotFound
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE messages SET read = true
			WHERE chat_id = $1 AND user_id <> $2 AND NOT read`, chatID, userID)
		return err
	})
	if err != nil {
		return fmt.Errorf("store: mark chat seen: %w", err)
	}
	return nil
}

// CountUnseenChats returns how many of userID's chats they have not seen
// since the last message.
func (db *DB) CountUnseenChats(ctx context.Context, userID string) (int, error) {
	var n int
	err := db.QueryRowContext(ctx, `
		SELECT count(*) FROM chats
		WHERE (user_a = $1 OR user_b = $1) AND NOT ($1 = ANY(seen_by))`, userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("store: count unseen chats: %w", err)
	}
	return n, nil
}
