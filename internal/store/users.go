package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/realar/estate/internal/models"
)

const userColumns = `id, email, username, password, avatar, phone, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*models.User, error) {
	var u models.User
	if err := row.Scan(&u.ID, &u.Email, &u.Username, &u.Password, &u.Avatar, &u.Phone, &u.CreatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

// CreateUser inserts u, assigning its ID and CreatedAt. Duplicate emails or
// usernames yield ErrConflict.
func (db *DB) CreateUser(ctx context.Context, u *models.User) error {
	u.ID = uuid.NewString()
	u.CreatedAt = time.Now().UTC()
	_, err := db.ExecContext(ctx, `
		INSERT INTO users (id, email, username, password, avatar, phone, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		u.ID, u.Email, u.Username, u.Password, u.Avatar, u.Phone, u.CreatedAt)
	if err != nil {
		return fmt.Errorf("store: create user: %w", mapError(err))
	}
	return nil
}

// GetUser returns the user with the given id.
func (db *DB) GetUser(ctx context.Context, id string) (*models.User, error) {
	u, err := scanUser(db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("store: get user: %w", mapError(err))
	}
	return u, nil
}

// GetUserByUsername returns the user registered under username.
func (db *DB) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	u, err := scanUser(db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE username = $1`, username))
	if err != nil {
		return nil, fmt.Errorf("store: get user by username: %w", mapError(err))
	}
	return u, nil
}

// ListUsers returns every user ordered by creation time.
func (db *DB) ListUsers(ctx context.Context) ([]models.User, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("store: list users: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var users []models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("store: list users: %w", err)
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

// UserUpdate holds the optional fields of a profile update. Nil fields are
// left unchanged.
type UserUpdate struct {
	Username *string
	Email    *string
	Password *string // already hashed
	Avatar   *string
}

// UpdateUser applies upd to the user and returns the updated row.
func (db *DB) UpdateUser(ctx context.Context, id string, upd UserUpdate) (*models.User, error) {
	u, err := scanUser(db.QueryRowContext(ctx, `
		UPDATE users SET
			username = COALESCE($2, username),
			email    = COALESCE($3, email),
			password = COALESCE($4, password),
			avatar   = COALESCE($5, avatar)
		WHERE id = $1
		RETURNING `+userColumns,
		id, upd.Username, upd.Email, upd.Password, upd.Avatar))
	if err != nil {
		return nil, fmt.Errorf("store: update user: %w", mapError(err))
	}
	return u, nil
}

// DeleteUser removes the user and, by cascade, their posts and chats.
func (db *DB) DeleteUser(ctx context.Context, id string) error {
	res, err := db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("store: delete user: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("store: delete user: %w", ErrNotFound)
	}
	return nil
}

// ToggleSavedPost saves postID for userID, or unsaves it if it was already
// saved. It reports whether the post is saved afterwards.
func (db *DB) ToggleSavedPost(ctx context.Context, userID, postID string) (bool, error) {
	var saved bool
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`DELETE FROM saved_posts WHERE user_id = $1 AND post_id = $2`, userID, postID)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n > 0 {
			return nil
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO saved_posts (user_id, post_id) VALUES ($1, $2)`, userID, postID); err != nil {
			return mapError(err)
		}
		saved = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("store: toggle saved post: %w", err)
	}
	return saved, nil
}

// IsPostSaved reports whether userID has saved postID.
func (db *DB) IsPostSaved(ctx context.Context, userID, postID string) (bool, error) {
	var exists bool
	err := db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM saved_posts WHERE user_id = $1 AND post_id = $2)`,
		userID, postID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("store: is post saved: %w", err)
	}
	return exists, nil
}
