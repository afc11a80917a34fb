package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/realar/estate/internal/models"
)

const postColumns = `p.id, p.title, p.price, p.images, p.address, p.city, p.bedroom, p.bathroom,
	p.latitude, p.longitude, p.type, p.property, p.models, p.panoramic, p.user_id, p.created_at`

func scanPost(row rowScanner, extra ...any) (*models.Post, error) {
	var p models.Post
	dest := []any{
		&p.ID, &p.Title, &p.Price, pq.Array(&p.Images), &p.Address, &p.City, &p.Bedroom, &p.Bathroom,
		&p.Latitude, &p.Longitude, &p.Type, &p.Property, pq.Array(&p.Models), pq.Array(&p.Panoramic),
		&p.UserID, &p.CreatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	return &p, nil
}

func (db *DB) queryPosts(ctx context.Context, query string, args ...any) ([]models.Post, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	posts := []models.Post{}
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, *p)
	}
	return posts, rows.Err()
}

// ListPosts returns posts matching f, newest first.
func (db *DB) ListPosts(ctx context.Context, f models.PostFilter) ([]models.Post, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.City != "" {
		add("lower(p.city) = lower($%d)", f.City)
	}
	if f.Type != "" {
		add("p.type = $%d", f.Type)
	}
	if f.Property != "" {
		add("p.property = $%d", f.Property)
	}
	if f.Bedroom > 0 {
		add("p.bedroom = $%d", f.Bedroom)
	}
	if f.MinPrice > 0 {
		add("p.price >= $%d", f.MinPrice)
	}
	if f.MaxPrice > 0 {
		add("p.price <= $%d", f.MaxPrice)
	}

	query := `SELECT ` + postColumns + ` FROM posts p`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY p.created_at DESC`

	posts, err := db.queryPosts(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list posts: %w", err)
	}
	return posts, nil
}

// ListPostsByUser returns the posts created by userID.
func (db *DB) ListPostsByUser(ctx context.Context, userID string) ([]models.Post, error) {
	posts, err := db.queryPosts(ctx,
		`SELECT `+postColumns+` FROM posts p WHERE p.user_id = $1 ORDER BY p.created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("store: list user posts: %w", err)
	}
	return posts, nil
}

// ListSavedPosts returns the posts userID has saved, most recently saved
// first.
func (db *DB) ListSavedPosts(ctx context.Context, userID string) ([]models.Post, error) {
	posts, err := db.queryPosts(ctx, `
		SELECT `+postColumns+`
		FROM saved_posts s
		JOIN posts p ON p.id = s.post_id
		WHERE s.user_id = $1
		ORDER BY s.created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("store: list saved posts: %w", err)
	}
	return posts, nil
}

// GetPost returns a post with its detail and owner summary.
func (db *DB) GetPost(ctx context.Context, id string) (*models.Post, error) {
	owner := &models.PublicUser{}
	p, err := scanPost(db.QueryRowContext(ctx, `
		SELECT `+postColumns+`, u.id, u.username, u.avatar, u.phone
		FROM posts p
		JOIN users u ON u.id = p.user_id
		WHERE p.id = $1`, id),
		&owner.ID, &owner.Username, &owner.Avatar, &owner.Phone)
	if err != nil {
		return nil, fmt.Errorf("store: get post: %w", mapError(err))
	}
	p.User = owner

	d, err := db.getPostDetail(ctx, id)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("store: get post detail: %w", err)
	}
	p.Detail = d
	return p, nil
}

func (db *DB) getPostDetail(ctx context.Context, postID string) (*models.PostDetail, error) {
	var d models.PostDetail
	err := db.QueryRowContext(ctx, `
		SELECT post_id, "desc", utilities, pet, income, size, school, bus, restaurant
		FROM post_details WHERE post_id = $1`, postID).
		Scan(&d.PostID, &d.Desc, &d.Utilities, &d.Pet, &d.Income, &d.Size, &d.School, &d.Bus, &d.Restaurant)
	if err != nil {
		return nil, mapError(err)
	}
	return &d, nil
}

// CreatePost inserts p and its optional detail in one transaction, assigning
// p.ID and p.CreatedAt.
func (db *DB) CreatePost(ctx context.Context, p *models.Post, d *models.PostDetail) error {
	p.ID = uuid.NewString()
	p.CreatedAt = time.Now().UTC()

	err := db.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO posts (id, title, price, images, address, city, bedroom, bathroom,
				latitude, longitude, type, property, models, panoramic, user_id, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
			p.ID, p.Title, p.Price, pq.Array(nonNil(p.Images)), p.Address, p.City, p.Bedroom, p.Bathroom,
			p.Latitude, p.Longitude, p.Type, p.Property, pq.Array(nonNil(p.Models)), pq.Array(nonNil(p.Panoramic)),
			p.UserID, p.CreatedAt)
		if err != nil {
			return mapError(err)
		}
		if d == nil {
			return nil
		}
		d.PostID = p.ID
		return upsertDetail(ctx, tx, d)
	})
	if err != nil {
		return fmt.Errorf("store: create post: %w", err)
	}
	p.Detail = d
	return nil
}

// UpdatePost overwrites the mutable fields of p and upserts its detail.
func (db *DB) UpdatePost(ctx context.Context, p *models.Post, d *models.PostDetail) error {
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE posts SET
				title = $2, price = $3, images = $4, address = $5, city = $6,
				bedroom = $7, bathroom = $8, latitude = $9, longitude = $10,
				type = $11, property = $12, models = $13, panoramic = $14
			WHERE id = $1`,
			p.ID, p.Title, p.Price, pq.Array(nonNil(p.Images)), p.Address, p.City,
			p.Bedroom, p.Bathroom, p.Latitude, p.Longitude,
			p.Type, p.Property, pq.Array(nonNil(p.Models)), pq.Array(nonNil(p.Panoramic)))
		if err != nil {
			return mapError(err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNotFound
		}
		if d == nil {
			return nil
		}
		d.PostID = p.ID
		return upsertDetail(ctx, tx, d)
	})
	if err != nil {
		return fmt.Errorf("store: update post: %w", err)
	}
	return nil
}

func upsertDetail(ctx context.Context, tx *sql.Tx, d *models.PostDetail) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO post_details (post_id, "desc", utilities, pet, income, size, school, bus, restaurant)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (post_id) DO UPDATE SET
			"desc" = excluded."desc",
			utilities = excluded.utilities,
			pet = excluded.pet,
			income = excluded.income,
			size = excluded.size,
			school = excluded.school,
			bus = excluded.bus,
			restaurant = excluded.restaurant`,
		d.PostID, d.Desc, d.Utilities, d.Pet, d.Income, d.Size, d.School, d.Bus, d.Restaurant)
	return mapError(err)
}

// DeletePost removes a post and its detail.
func (db *DB) DeletePost(ctx context.Context, id string) error {
	res, err := db.ExecContext(ctx, `DELETE FROM posts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("store: delete post: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("store: delete post: %w", ErrNotFound)
	}
	return nil
}

// nonNil keeps NOT NULL array columns from receiving SQL NULL.
func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
