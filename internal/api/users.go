package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/realar/estate/internal/account"
	"github.com/realar/estate/internal/models"
)

type updateUserRequest struct {
	Username *string `json:"username" validate:"omitempty,min=3,max=32"`
	Email    *string `json:"email" validate:"omitempty,email"`
	Password *string `json:"password" validate:"omitempty,min=6,max=72"`
	Avatar   *string `json:"avatar" validate:"omitempty,url"`
}

type savePostRequest struct {
	PostID string `json:"postId" validate:"required"`
}

type profilePostsResponse struct {
	UserPosts  []models.Post `json:"userPosts"`
	SavedPosts []models.Post `json:"savedPosts"`
}

// ListUsers handles GET /api/users.
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.deps.Accounts.Users(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

// GetUser handles GET /api/users/{id}.
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.deps.Accounts.User(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// UpdateUser handles PUT /api/users/{id}.
func (h *Handler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	var req updateUserRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	user, err := h.deps.Accounts.UpdateUser(r.Context(), currentUser(r), chi.URLParam(r, "id"), account.UpdateInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
		Avatar:   req.Avatar,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// DeleteUser handles DELETE /api/users/{id}.
func (h *Handler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.Accounts.DeleteUser(r.Context(), currentUser(r), chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageBody{Message: "User deleted"})
}

// SavePost handles POST /api/users/save, toggling the saved state.
func (h *Handler) SavePost(w http.ResponseWriter, r *http.Request) {
	var req savePostRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	saved, err := h.deps.Accounts.ToggleSave(r.Context(), currentUser(r), req.PostID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	msg := "Post removed from saved list"
	if saved {
		msg = "Post saved"
	}
	writeJSON(w, http.StatusOK, messageBody{Message: msg})
}

// ProfilePosts handles GET /api/users/profilePosts.
func (h *Handler) ProfilePosts(w http.ResponseWriter, r *http.Request) {
	own, saved, err := h.deps.Accounts.ProfilePosts(r.Context(), currentUser(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profilePostsResponse{UserPosts: nonNilPosts(own), SavedPosts: nonNilPosts(saved)})
}

// Notification handles GET /api/users/notification and returns the number
// of chats with unseen messages.
func (h *Handler) Notification(w http.ResponseWriter, r *http.Request) {
	n, err := h.deps.Chats.UnseenCount(r.Context(), currentUser(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

func nonNilPosts(p []models.Post) []models.Post {
	if p == nil {
		return []models.Post{}
	}
	return p
}
