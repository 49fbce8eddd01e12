package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/heartwise/backend/internal/models"
	"github.com/heartwise/backend/internal/repositories"
)

type memoryTestimonyStore struct {
	mu          sync.Mutex
	testimonies map[string]models.TestimonyDetails
}

func newMemoryTestimonyStore(items ...models.TestimonyDetails) *memoryTestimonyStore {
	s := &memoryTestimonyStore{testimonies: make(map[string]models.TestimonyDetails)}
	for _, t := range items {
		s.testimonies[t.ID] = t
	}
	return s
}

func (s *memoryTestimonyStore) filter(keep func(models.TestimonyDetails) bool) []models.TestimonyDetails {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.TestimonyDetails
	for _, t := range s.testimonies {
		if keep(t) {
			out = append(out, t)
		}
	}
	return out
}

func (s *memoryTestimonyStore) ListApproved(_ context.Context, category string, _ int) ([]models.TestimonyDetails, error) {
	return s.filter(func(t models.TestimonyDetails) bool {
		return t.IsApproved && (category == "" || t.Category == category)
	}), nil
}

func (s *memoryTestimonyStore) ListPending(context.Context) ([]models.TestimonyDetails, error) {
	return s.filter(func(t models.TestimonyDetails) bool { return !t.IsApproved }), nil
}

func (s *memoryTestimonyStore) Create(_ context.Context, t models.Testimony) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.testimonies[t.ID] = models.TestimonyDetails{Testimony: t}
	return nil
}

func (s *memoryTestimonyStore) Approve(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.testimonies[id]
	if !ok {
		return repositories.ErrNotFound
	}
	t.IsApproved = true
	s.testimonies[id] = t
	return nil
}

func (s *memoryTestimonyStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.testimonies[id]; !ok {
		return repositories.ErrNotFound
	}
	delete(s.testimonies, id)
	return nil
}

func (s *memoryTestimonyStore) Stats(context.Context) (models.TestimonyStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var stats models.TestimonyStats
	for _, t := range s.testimonies {
		stats.Total++
		if t.IsApproved {
			stats.Approved++
		} else {
			stats.Pending++
		}
	}
	return stats, nil
}

func newTestimonyHandler(store *memoryTestimonyStore, notes *recordingNotifications) TestimonyHandler {
	return TestimonyHandler{Guard: testGuard(), Testimonies: store, Notifications: notes, NowFunc: fixedClock}
}

func TestTestimonyCreateAwaitsApproval(t *testing.T) {
	store := newMemoryTestimonyStore()
	notes := &recordingNotifications{}
	handler := newTestimonyHandler(store, notes)

	body := map[string]any{"title": "Restored", "story": "God restored our marriage", "category": models.TestimonyCategoryMarriage}
	rec := httptest.NewRecorder()
	handler.Create(rec, newRequest(t, http.MethodPost, "/api/v1/testimonies", memberID, body))
	assertStatus(t, rec, http.StatusCreated)

	id := decodeBody[map[string]string](t, rec)["id"]
	if store.testimonies[id].IsApproved {
		t.Fatal("new testimony must not be approved")
	}
	if len(notes.items) != 1 {
		t.Fatalf("expected a notification got %d", len(notes.items))
	}
	note := notes.items[0]
	if note.Priority != models.PriorityHigh || note.Description != `New testimony: "Restored" - Requires approval` {
		t.Fatalf("unexpected notification %+v", note)
	}

	rec = httptest.NewRecorder()
	handler.List(rec, newRequest(t, http.MethodGet, "/api/v1/testimonies", "", nil))
	if views := decodeBody[[]testimonyView](t, rec); len(views) != 0 {
		t.Fatalf("pending testimony must not be listed, got %+v", views)
	}
}

func TestTestimonyListAuthorNames(t *testing.T) {
	store := newMemoryTestimonyStore(
		models.TestimonyDetails{Testimony: models.Testimony{ID: "t1", UserID: memberID, IsApproved: true, IsAnonymous: true, Category: "healing"}},
		models.TestimonyDetails{Testimony: models.Testimony{ID: "t2", UserID: memberID, IsApproved: true, Category: "healing"}, Author: models.Author{Email: memberEmail}},
		models.TestimonyDetails{Testimony: models.Testimony{ID: "t3", UserID: "ghost", IsApproved: true, Category: "healing"}},
	)
	handler := newTestimonyHandler(store, &recordingNotifications{})

	rec := httptest.NewRecorder()
	handler.List(rec, newRequest(t, http.MethodGet, "/api/v1/testimonies?category=healing", "", nil))
	assertStatus(t, rec, http.StatusOK)

	want := map[string]string{"t1": "Anonymous", "t2": memberEmail, "t3": "A Believer"}
	for _, v := range decodeBody[[]testimonyView](t, rec) {
		if v.AuthorName != want[v.ID] {
			t.Fatalf("testimony %s: expected author %q got %q", v.ID, want[v.ID], v.AuthorName)
		}
	}
}

func TestTestimonyModerationRequiresAdmin(t *testing.T) {
	store := newMemoryTestimonyStore(models.TestimonyDetails{Testimony: models.Testimony{ID: "t1", UserID: memberID}})
	handler := newTestimonyHandler(store, &recordingNotifications{})

	rec := httptest.NewRecorder()
	handler.Approve(rec, withPathValue(newRequest(t, http.MethodPost, "/api/v1/admin/testimonies/t1/approve", "", nil), "id", "t1"))
	assertError(t, rec, http.StatusUnauthorized, "Not authenticated")

	rec = httptest.NewRecorder()
	handler.Approve(rec, withPathValue(newRequest(t, http.MethodPost, "/api/v1/admin/testimonies/t1/approve", memberID, nil), "id", "t1"))
	assertError(t, rec, http.StatusForbidden, "Admin access required")

	rec = httptest.NewRecorder()
	handler.Approve(rec, withPathValue(newRequest(t, http.MethodPost, "/api/v1/admin/testimonies/t1/approve", adminID, nil), "id", "t1"))
	assertStatus(t, rec, http.StatusOK)
	if !store.testimonies["t1"].IsApproved {
		t.Fatal("expected testimony to be approved")
	}

	rec = httptest.NewRecorder()
	handler.Stats(rec, newRequest(t, http.MethodGet, "/api/v1/admin/testimonies/stats", adminID, nil))
	if stats := decodeBody[models.TestimonyStats](t, rec); stats.Total != 1 || stats.Approved != 1 || stats.Pending != 0 {
		t.Fatalf("unexpected stats %+v", stats)
	}

	rec = httptest.NewRecorder()
	handler.Reject(rec, withPathValue(newRequest(t, http.MethodDelete, "/api/v1/admin/testimonies/missing", adminID, nil), "id", "missing"))
	assertError(t, rec, http.StatusNotFound, "Testimony not found")
}
