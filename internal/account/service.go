// Package account manages user registration, login and profiles.
package account

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/realar/estate/internal/auth"
	"github.com/realar/estate/internal/logging"
	"github.com/realar/estate/internal/models"
	"github.com/realar/estate/internal/store"
)

var (
	ErrUserExists         = errors.New("account: user already exists")
	ErrInvalidCredentials = errors.New("account: invalid credentials")
	ErrUserNotFound       = errors.New("account: user not found")
	ErrPostNotFound       = errors.New("account: post not found")
	ErrForbidden          = errors.New("account: not allowed")
)

// Store is the persistence the account service needs.
type Store interface {
	CreateUser(ctx context.Context, u *models.User) error
	GetUser(ctx context.Context, id string) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	ListUsers(ctx context.Context) ([]models.User, error)
	UpdateUser(ctx context.Context, id string, upd store.UserUpdate) (*models.User, error)
	DeleteUser(ctx context.Context, id string) error
	ToggleSavedPost(ctx context.Context, userID, postID string) (bool, error)
	ListPostsByUser(ctx context.Context, userID string) ([]models.Post, error)
	ListSavedPosts(ctx context.Context, userID string) ([]models.Post, error)
}

// Service implements account operations.
type Service struct {
	store Store
	jwt   *auth.JWTManager
	cost  int
}

// NewService creates a Service hashing passwords with bcrypt.DefaultCost.
func NewService(s Store, jwt *auth.JWTManager) *Service {
	return &Service{store: s, jwt: jwt, cost: bcrypt.DefaultCost}
}

// RegisterInput is the data needed to create an account.
type RegisterInput struct {
	Username string
	Email    string
	Password string
}

// Register creates a user with a hashed password.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("account: hash password: %w", err)
	}

	u := &models.User{Username: in.Username, Email: in.Email, Password: string(hash)}
	if err := s.store.CreateUser(ctx, u); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, ErrUserExists
		}
		return nil, err
	}
	logging.Info().Str("user_id", u.ID).Str("username", u.Username).Msg("account: registered")
	return u, nil
}

// Login verifies the credentials and returns the user with a fresh token.
func (s *Service) Login(ctx context.Context, username, password string) (*models.User, string, error) {
	u, err := s.store.GetUserByUsername(ctx, username)
	if errors.Is(err, store.ErrNotFound) {
		return nil, "", ErrInvalidCredentials
	}
	if err != nil {
		return nil, "", err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(password)); err != nil {
		return nil, "", ErrInvalidCredentials
	}

	token, err := s.jwt.GenerateToken(u.ID)
	if err != nil {
		return nil, "", err
	}
	return u, token, nil
}

// Users returns every user.
func (s *Service) Users(ctx context.Context) ([]models.User, error) {
	return s.store.ListUsers(ctx)
}

// User returns one user.
func (s *Service) User(ctx context.Context, id string) (*models.User, error) {
	u, err := s.store.GetUser(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	return u, err
}

// UpdateInput holds optional profile changes; nil fields are kept.
type UpdateInput struct {
	Username *string
	Email    *string
	Password *string // plain text
	Avatar   *string
}

// UpdateUser changes the profile of id. Only the user themselves may do so.
func (s *Service) UpdateUser(ctx context.Context, actorID, id string, in UpdateInput) (*models.User, error) {
	if actorID != id {
		return nil, ErrForbidden
	}

	upd := store.UserUpdate{Username: in.Username, Email: in.Email, Avatar: in.Avatar}
	if in.Password != nil && *in.Password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(*in.Password), s.cost)
		if err != nil {
			return nil, fmt.Errorf("account: hash password: %w", err)
		}
		h := string(hash)
		upd.Password = &h
	}

	u, err := s.store.UpdateUser(ctx, id, upd)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return nil, ErrUserNotFound
	case errors.Is(err, store.ErrConflict):
		return nil, ErrUserExists
	}
	return u, err
}

// DeleteUser removes id. Only the user themselves may do so.
func (s *Service) DeleteUser(ctx context.Context, actorID, id string) error {
	if actorID != id {
		return ErrForbidden
	}
	err := s.store.DeleteUser(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return ErrUserNotFound
	}
	return err
}

// ToggleSave saves or unsaves postID for userID and reports the new state.
func (s *Service) ToggleSave(ctx context.Context, userID, postID string) (bool, error) {
	saved, err := s.store.ToggleSavedPost(ctx, userID, postID)
	if errors.Is(err, store.ErrNotFound) {
		return false, ErrPostNotFound
	}
	return saved, err
}

// ProfilePosts returns the posts userID created and the posts they saved.
func (s *Service) ProfilePosts(ctx context.Context, userID string) (own, saved []models.Post, err error) {
	own, err = s.store.ListPostsByUser(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	saved, err = s.store.ListSavedPosts(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	return own, saved, nil
}
