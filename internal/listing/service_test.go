package listing

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/realar/estate/internal/messaging"
	"github.com/realar/estate/internal/models"
	"github.com/realar/estate/internal/store"
)

type fakeStore struct {
	posts   map[string]*models.Post
	details map[string]*models.PostDetail
	saved   map[[2]string]bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		posts:   make(map[string]*models.Post),
		details: make(map[string]*models.PostDetail),
		saved:   make(map[[2]string]bool),
	}
}

func (f *fakeStore) ListPosts(_ context.Context, flt models.PostFilter) ([]models.Post, error) {
	out := []models.Post{}
	for _, p := range f.posts {
		if flt.City != "" && p.City != flt.City {
			continue
		}
		out = append(out, *p)
	}
	return out, nil
}

func (f *fakeStore) GetPost(_ context.Context, id string) (*models.Post, error) {
	p, ok := f.posts[id]
	if !ok {
		return nil, fmt.Errorf("fake: %w", store.ErrNotFound)
	}
	cp := *p
	cp.Detail = f.details[id]
	return &cp, nil
}

func (f *fakeStore) CreatePost(_ context.Context, p *models.Post, d *models.PostDetail) error {
	p.ID = fmt.Sprintf("p%d", len(f.posts)+1)
	cp := *p
	f.posts[p.ID] = &cp
	if d != nil {
		d.PostID = p.ID
		f.details[p.ID] = d
	}
	return nil
}

func (f *fakeStore) UpdatePost(_ context.Context, p *models.Post, d *models.PostDetail) error {
	if _, ok := f.posts[p.ID]; !ok {
		return store.ErrNotFound
	}
	cp := *p
	f.posts[p.ID] = &cp
	if d != nil {
		d.PostID = p.ID
		f.details[p.ID] = d
	}
	return nil
}

func (f *fakeStore) DeletePost(_ context.Context, id string) error {
	if _, ok := f.posts[id]; !ok {
		return store.ErrNotFound
	}
	delete(f.posts, id)
	return nil
}

func (f *fakeStore) IsPostSaved(_ context.Context, userID, postID string) (bool, error) {
	return f.saved[[2]string{userID, postID}], nil
}

type recordingPublisher struct{ subjects []string }

func (p *recordingPublisher) PublishEvent(subject string, _ interface{}) error {
	p.subjects = append(p.subjects, subject)
	return nil
}

func validPost() *models.Post {
	return &models.Post{
		Title: "Cottage", Price: 250000, City: "Leeds", Address: "2 Lane",
		Latitude: "53.8", Longitude: "-1.5", Type: models.TypeBuy, Property: models.PropertyHouse,
		Images: []string{"a.jpg"}, Models: []string{"m.glb"}, Panoramic: []string{"pano.jpg"},
	}
}

func TestCreateGet(t *testing.T) {
	fs := newFakeStore()
	events := &recordingPublisher{}
	s := NewService(fs, events)
	ctx := context.Background()

	p, err := s.Create(ctx, "owner", validPost(), &models.PostDetail{Desc: "cosy"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if p.UserID != "owner" {
		t.Errorf("UserID = %q, want owner", p.UserID)
	}
	if len(events.subjects) != 1 || events.subjects[0] != messaging.SubjectPostCreated {
		t.Errorf("events = %v", events.subjects)
	}

	anon, err := s.Get(ctx, p.ID, "")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if anon.IsSaved != nil {
		t.Error("anonymous Get should not report isSaved")
	}

	fs.saved[[2]string{"viewer", p.ID}] = true
	viewed, _ := s.Get(ctx, p.ID, "viewer")
	if viewed.IsSaved == nil || !*viewed.IsSaved {
		t.Error("viewer Get should report isSaved=true")
	}

	if _, err := s.Get(ctx, "missing", ""); !errors.Is(err, ErrPostNotFound) {
		t.Errorf("Get(missing) error = %v, want ErrPostNotFound", err)
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(p *models.Post)
		ok     bool
	}{
		{"valid", func(*models.Post) {}, true},
		{"no title", func(p *models.Post) { p.Title = " " }, false},
		{"negative price", func(p *models.Post) { p.Price = -1 }, false},
		{"bad type", func(p *models.Post) { p.Type = "lease" }, false},
		{"bad property", func(p *models.Post) { p.Property = "castle" }, false},
		{"empty image url", func(p *models.Post) { p.Images = []string{""} }, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := validPost()
			tc.mutate(p)
			err := Validate(p)
			if tc.ok != (err == nil) {
				t.Errorf("Validate() = %v, want ok=%v", err, tc.ok)
			}
			if err != nil && !errors.Is(err, ErrInvalidPost) {
				t.Errorf("error %v should wrap ErrInvalidPost", err)
			}
		})
	}
}

func TestUpdateDelete_OwnerOnly(t *testing.T) {
	fs := newFakeStore()
	events := &recordingPublisher{}
	s := NewService(fs, events)
	ctx := context.Background()
	p, _ := s.Create(ctx, "owner", validPost(), nil)

	changed := validPost()
	changed.Price = 200000
	if _, err := s.Update(ctx, "intruder", p.ID, changed, nil); !errors.Is(err, ErrForbidden) {
		t.Errorf("foreign Update error = %v, want ErrForbidden", err)
	}
	updated, err := s.Update(ctx, "owner", p.ID, changed, &models.PostDetail{Desc: "reduced"})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Price != 200000 || updated.UserID != "owner" || updated.Detail.Desc != "reduced" {
		t.Errorf("unexpected update result %+v", updated)
	}

	if err := s.Delete(ctx, "intruder", p.ID); !errors.Is(err, ErrForbidden) {
		t.Errorf("foreign Delete error = %v, want ErrForbidden", err)
	}
	if err := s.Delete(ctx, "owner", p.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if events.subjects[len(events.subjects)-1] != messaging.SubjectPostDeleted {
		t.Errorf("last event = %q, want post.deleted", events.subjects[len(events.subjects)-1])
	}
	if err := s.Delete(ctx, "owner", p.ID); !errors.Is(err, ErrPostNotFound) {
		t.Errorf("second Delete error = %v, want ErrPostNotFound", err)
	}
}

func TestMedia(t *testing.T) {
	s := NewService(newFakeStore(), nil)
	ctx := context.Background()
	p, _ := s.Create(ctx, "owner", validPost(), nil)

	coords, err := s.Coordinates(ctx, p.ID)
	if err != nil || coords.Latitude != "53.8" || coords.Longitude != "-1.5" {
		t.Errorf("Coordinates = %+v, %v", coords, err)
	}
	if m, _ := s.Models(ctx, p.ID); len(m) != 1 || m[0] != "m.glb" {
		t.Errorf("Models = %v", m)
	}
	if pano, _ := s.Panoramics(ctx, p.ID); len(pano) != 1 || pano[0] != "pano.jpg" {
		t.Errorf("Panoramics = %v", pano)
	}
	if _, err := s.Models(ctx, "missing"); !errors.Is(err, ErrPostNotFound) {
		t.Errorf("Models(missing) error = %v, want ErrPostNotFound", err)
	}
}

var _ Store = (*store.DB)(nil)
