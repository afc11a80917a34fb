// Package listing manages property posts and their media.
package listing

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/realar/estate/internal/logging"
	"github.com/realar/estate/internal/messaging"
	"github.com/realar/estate/internal/models"
	"github.com/realar/estate/internal/store"
)

var (
	ErrPostNotFound = errors.New("listing: post not found")
	ErrForbidden    = errors.New("listing: not the owner")
	ErrInvalidPost  = errors.New("listing: invalid post")
)

// Store is the persistence the listing service needs.
type Store interface {
	ListPosts(ctx context.Context, f models.PostFilter) ([]models.Post, error)
	GetPost(ctx context.Context, id string) (*models.Post, error)
	CreatePost(ctx context.Context, p *models.Post, d *models.PostDetail) error
	UpdatePost(ctx context.Context, p *models.Post, d *models.PostDetail) error
	DeletePost(ctx context.Context, id string) error
	IsPostSaved(ctx context.Context, userID, postID string) (bool, error)
}

// EventPublisher emits domain events.
type EventPublisher interface {
	PublishEvent(subject string, v interface{}) error
}

// Service implements listing operations.
type Service struct {
	store  Store
	events EventPublisher // optional
}

// NewService creates a Service. events may be nil.
func NewService(s Store, events EventPublisher) *Service {
	return &Service{store: s, events: events}
}

// PostEvent is published on post.created and post.deleted.
type PostEvent struct {
	PostID string `json:"postId"`
	UserID string `json:"userId"`
	City   string `json:"city,omitempty"`
	Type   string `json:"type,omitempty"`
	Price  int    `json:"price,omitempty"`
}

// List returns posts matching f.
func (s *Service) List(ctx context.Context, f models.PostFilter) ([]models.Post, error) {
	return s.store.ListPosts(ctx, f)
}

// Get returns a post with its detail and owner. When viewerID is set the
// result reports whether the viewer saved it.
func (s *Service) Get(ctx context.Context, id, viewerID string) (*models.Post, error) {
	p, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if viewerID != "" {
		saved, err := s.store.IsPostSaved(ctx, viewerID, id)
		if err != nil {
			return nil, err
		}
		p.IsSaved = &saved
	}
	return p, nil
}

func (s *Service) get(ctx context.Context, id string) (*models.Post, error) {
	p, err := s.store.GetPost(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrPostNotFound
	}
	return p, err
}

// Validate checks the fields a post must carry.
func Validate(p *models.Post) error {
	var problems []string
	if strings.TrimSpace(p.Title) == "" {
		problems = append(problems, "title is required")
	}
	if p.Price < 0 {
		problems = append(problems, "price must not be negative")
	}
	switch p.Type {
	case models.TypeBuy, models.TypeRent:
	default:
		problems = append(problems, fmt.Sprintf("type %q is not buy or rent", p.Type))
	}
	switch p.Property {
	case models.PropertyApartment, models.PropertyHouse, models.PropertyCondo, models.PropertyLand:
	default:
		problems = append(problems, fmt.Sprintf("property %q is not supported", p.Property))
	}
	for _, urls := range [][]string{p.Images, p.Models, p.Panoramic} {
		for _, u := range urls {
			if strings.TrimSpace(u) == "" {
				problems = append(problems, "media urls must be non-empty strings")
				break
			}
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidPost, strings.Join(problems, "; "))
	}
	return nil
}

// Create stores a new post owned by ownerID.
func (s *Service) Create(ctx context.Context, ownerID string, p *models.Post, d *models.PostDetail) (*models.Post, error) {
	p.UserID = ownerID
	if err := Validate(p); err != nil {
		return nil, err
	}
	if err := s.store.CreatePost(ctx, p, d); err != nil {
		return nil, err
	}

	logging.Info().Str("post_id", p.ID).Str("user_id", ownerID).Msg("listing: post created")
	s.publish(messaging.SubjectPostCreated, PostEvent{
		PostID: p.ID, UserID: ownerID, City: p.City, Type: p.Type, Price: p.Price,
	})
	return p, nil
}

// Update replaces the post's fields and upserts its detail. Only the owner
// may update.
func (s *Service) Update(ctx context.Context, actorID, id string, p *models.Post, d *models.PostDetail) (*models.Post, error) {
	existing, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing.UserID != actorID {
		return nil, ErrForbidden
	}

	p.ID = id
	p.UserID = existing.UserID
	p.CreatedAt = existing.CreatedAt
	if err := Validate(p); err != nil {
		return nil, err
	}
	if err := s.store.UpdatePost(ctx, p, d); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrPostNotFound
		}
		return nil, err
	}
	return s.get(ctx, id)
}

// Delete removes a post. Only the owner may delete.
func (s *Service) Delete(ctx context.Context, actorID, id string) error {
	existing, err := s.get(ctx, id)
	if err != nil {
		return err
	}
	if existing.UserID != actorID {
		return ErrForbidden
	}
	if err := s.store.DeletePost(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrPostNotFound
		}
		return err
	}

	s.publish(messaging.SubjectPostDeleted, PostEvent{PostID: id, UserID: actorID})
	return nil
}

// Coordinates returns the map position of a post.
func (s *Service) Coordinates(ctx context.Context, id string) (*models.Coordinates, error) {
	p, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	return &models.Coordinates{Latitude: p.Latitude, Longitude: p.Longitude}, nil
}

// Models returns the 3D model urls of a post.
func (s *Service) Models(ctx context.Context, id string) ([]string, error) {
	p, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	return p.Models, nil
}

// Panoramics returns the panoramic image urls of a post.
func (s *Service) Panoramics(ctx context.Context, id string) ([]string, error) {
	p, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	return p.Panoramic, nil
}

func (s *Service) publish(subject string, v interface{}) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishEvent(subject, v); err != nil {
		logging.Warn().Err(err).Str("subject", subject).Msg("listing: failed to publish event")
	}
}
