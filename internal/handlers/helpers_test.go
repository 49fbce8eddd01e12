package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/heartwise/backend/internal/logging"
	"github.com/heartwise/backend/internal/models"
	"github.com/heartwise/backend/internal/repositories"
)

var fixedNow = time.Date(2024, 2, 14, 9, 30, 0, 0, time.UTC)

func fixedClock() time.Time { return fixedNow }

type inMemoryUserStore struct {
	mu    sync.Mutex
	users map[string]models.User
}

func newInMemoryUserStore(users ...models.User) *inMemoryUserStore {
	s := &inMemoryUserStore{users: make(map[string]models.User)}
	for _, u := range users {
		s.users[u.Email] = u
	}
	return s
}

func (s *inMemoryUserStore) Create(_ context.Context, user models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.users[user.Email]; exists {
		return repositories.ErrConflict
	}
	s.users[user.Email] = user
	return nil
}

func (s *inMemoryUserStore) FindByEmail(_ context.Context, email string) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[email]
	if !ok {
		return models.User{}, repositories.ErrNotFound
	}
	return user, nil
}

func (s *inMemoryUserStore) FindByID(_ context.Context, id string) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.ID == id {
			return u, nil
		}
	}
	return models.User{}, repositories.ErrNotFound
}

type adminList []string

func (a adminList) IsAdmin(email string) bool {
	for _, e := range a {
		if e == email {
			return true
		}
	}
	return false
}

const (
	memberID    = "user-member"
	memberEmail = "member@example.com"
	adminID     = "user-admin"
	adminEmail  = "admin@example.com"
)

// testGuard knows one member and one moderator.
func testGuard() Guard {
	return Guard{
		Users: newInMemoryUserStore(
			models.User{ID: memberID, Email: memberEmail, Name: "Member"},
			models.User{ID: adminID, Email: adminEmail, Name: "Admin"},
		),
		Admins: adminList{adminEmail},
	}
}

// newRequest builds a request whose context carries userID the way the
// Authenticate middleware would. An empty userID yields an anonymous request.
func newRequest(t *testing.T, method, target, userID string, body any) *http.Request {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, target, reader)
	if userID != "" {
		req = req.WithContext(logging.WithUserID(req.Context(), userID))
	}
	return req
}

func withPathValue(req *http.Request, name, value string) *http.Request {
	req.SetPathValue(name, value)
	return req
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func assertStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("expected status %d got %d: %s", want, rec.Code, rec.Body.String())
	}
}

func assertError(t *testing.T, rec *httptest.ResponseRecorder, status int, message string) {
	t.Helper()
	assertStatus(t, rec, status)
	body := decodeBody[map[string]string](t, rec)
	if body["error"] != message {
		t.Fatalf("expected error %q got %q", message, body["error"])
	}
}

type recordingNotifications struct {
	mu    sync.Mutex
	items []models.AdminNotification
	err   error
}

func (n *recordingNotifications) Create(_ context.Context, item models.AdminNotification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.items = append(n.items, item)
	return nil
}

func (n *recordingNotifications) List(_ context.Context, limit int) ([]models.AdminNotification, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.items) > limit {
		return n.items[:limit], nil
	}
	return n.items, nil
}

func (n *recordingNotifications) MarkRead(_ context.Context, id string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i := range n.items {
		if n.items[i].ID == id {
			n.items[i].IsRead = true
			return nil
		}
	}
	return repositories.ErrNotFound
}

func (n *recordingNotifications) MarkAllRead(context.Context) (int64, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	var updated int64
	for i := range n.items {
		if !n.items[i].IsRead {
			n.items[i].IsRead = true
			updated++
		}
	}
	return updated, nil
}
