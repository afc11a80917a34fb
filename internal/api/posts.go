package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/realar/estate/internal/auth"
	"github.com/realar/estate/internal/models"
)

type postData struct {
	Title     string   `json:"title" validate:"required,max=200"`
	Price     int      `json:"price" validate:"gte=0"`
	Images    []string `json:"images" validate:"dive,required"`
	Address   string   `json:"address" validate:"required"`
	City      string   `json:"city" validate:"required"`
	Bedroom   int      `json:"bedroom" validate:"gte=0"`
	Bathroom  int      `json:"bathroom" validate:"gte=0"`
	Latitude  string   `json:"latitude"`
	Longitude string   `json:"longitude"`
	Type      string   `json:"type" validate:"oneof=buy rent"`
	Property  string   `json:"property" validate:"oneof=apartment house condo land"`
	Models    []string `json:"models" validate:"dive,required"`
	Panoramic []string `json:"panoramic" validate:"dive,required"`
}

type postRequest struct {
	PostData   postData           `json:"postData"`
	PostDetail *models.PostDetail `json:"postDetail"`
}

func (p postData) toModel() *models.Post {
	return &models.Post{
		Title:     p.Title,
		Price:     p.Price,
		Images:    p.Images,
		Address:   p.Address,
		City:      p.City,
		Bedroom:   p.Bedroom,
		Bathroom:  p.Bathroom,
		Latitude:  p.Latitude,
		Longitude: p.Longitude,
		Type:      p.Type,
		Property:  p.Property,
		Models:    p.Models,
		Panoramic: p.Panoramic,
	}
}

// postFilter reads the listing query. Unparseable numbers are ignored.
func postFilter(r *http.Request) models.PostFilter {
	q := r.URL.Query()
	atoi := func(key string) int {
		n, _ := strconv.Atoi(q.Get(key))
		return n
	}
	return models.PostFilter{
		City:     q.Get("city"),
		Type:     q.Get("type"),
		Property: q.Get("property"),
		Bedroom:  atoi("bedroom"),
		MinPrice: atoi("minPrice"),
		MaxPrice: atoi("maxPrice"),
	}
}

// ListPosts handles GET /api/posts.
func (h *Handler) ListPosts(w http.ResponseWriter, r *http.Request) {
	posts, err := h.deps.Listings.List(r.Context(), postFilter(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNilPosts(posts))
}

// GetPost handles GET /api/posts/{id}. Signed-in viewers also get isSaved.
func (h *Handler) GetPost(w http.ResponseWriter, r *http.Request) {
	viewer, _ := auth.UserID(r.Context())
	post, err := h.deps.Listings.Get(r.Context(), chi.URLParam(r, "id"), viewer)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, post)
}

// CreatePost handles POST /api/posts.
func (h *Handler) CreatePost(w http.ResponseWriter, r *http.Request) {
	var req postRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	post, err := h.deps.Listings.Create(r.Context(), currentUser(r), req.PostData.toModel(), req.PostDetail)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, post)
}

// UpdatePost handles PUT /api/posts/{id}.
func (h *Handler) UpdatePost(w http.ResponseWriter, r *http.Request) {
	var req postRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	post, err := h.deps.Listings.Update(r.Context(), currentUser(r), chi.URLParam(r, "id"), req.PostData.toModel(), req.PostDetail)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, post)
}

// DeletePost handles DELETE /api/posts/{id}.
func (h *Handler) DeletePost(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.Listings.Delete(r.Context(), currentUser(r), chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageBody{Message: "Post deleted"})
}

// PostCoordinates handles GET /api/posts/{id}/coordinates.
func (h *Handler) PostCoordinates(w http.ResponseWriter, r *http.Request) {
	c, err := h.deps.Listings.Coordinates(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// PostModels handles GET /api/models/{id}/models.
func (h *Handler) PostModels(w http.ResponseWriter, r *http.Request) {
	urls, err := h.deps.Listings.Models(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"models": nonNilStrings(urls)})
}

// PostPanoramics handles GET /api/panoramic/{id}/images.
func (h *Handler) PostPanoramics(w http.ResponseWriter, r *http.Request) {
	urls, err := h.deps.Listings.Panoramics(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"panoramics": nonNilStrings(urls)})
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
