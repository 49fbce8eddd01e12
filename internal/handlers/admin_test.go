package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/heartwise/backend/internal/models"
)

type stubStats struct {
	since time.Time
}

func (s *stubStats) AdminStats(_ context.Context, since time.Time) (models.AdminStats, error) {
	s.since = since
	return models.AdminStats{TotalUsers: 3, RecentPosts: 1}, nil
}

func newAdminHandler(stats *stubStats, notes *recordingNotifications, posts *memoryPostStore) AdminHandler {
	return AdminHandler{Guard: testGuard(), Stats: stats, Notifications: notes, Posts: posts, NowFunc: fixedClock}
}

func TestAdminStats(t *testing.T) {
	stats := &stubStats{}
	handler := newAdminHandler(stats, &recordingNotifications{}, newMemoryPostStore())

	rec := httptest.NewRecorder()
	handler.DashboardStats(rec, newRequest(t, http.MethodGet, "/api/v1/admin/stats", memberID, nil))
	assertError(t, rec, http.StatusForbidden, "Admin access required")

	rec = httptest.NewRecorder()
	handler.DashboardStats(rec, newRequest(t, http.MethodGet, "/api/v1/admin/stats", adminID, nil))
	assertStatus(t, rec, http.StatusOK)
	if got := decodeBody[models.AdminStats](t, rec); got.TotalUsers != 3 {
		t.Fatalf("unexpected stats %+v", got)
	}
	if want := fixedNow.Add(-7 * 24 * time.Hour); !stats.since.Equal(want) {
		t.Fatalf("expected recent window since %v got %v", want, stats.since)
	}
}

func TestAdminNotifications(t *testing.T) {
	notes := &recordingNotifications{items: []models.AdminNotification{
		{ID: "n1", Type: models.NotificationNewPost},
		{ID: "n2", Type: models.NotificationNewTestimony},
	}}
	handler := newAdminHandler(&stubStats{}, notes, newMemoryPostStore())

	rec := httptest.NewRecorder()
	handler.ListNotifications(rec, newRequest(t, http.MethodGet, "/api/v1/admin/notifications", adminID, nil))
	if got := decodeBody[[]models.AdminNotification](t, rec); len(got) != 2 {
		t.Fatalf("expected two notifications got %d", len(got))
	}

	rec = httptest.NewRecorder()
	handler.MarkRead(rec, withPathValue(newRequest(t, http.MethodPost, "/api/v1/admin/notifications/n1/read", adminID, nil), "id", "n1"))
	assertStatus(t, rec, http.StatusOK)

	rec = httptest.NewRecorder()
	handler.MarkRead(rec, withPathValue(newRequest(t, http.MethodPost, "/api/v1/admin/notifications/nope/read", adminID, nil), "id", "nope"))
	assertError(t, rec, http.StatusNotFound, "Notification not found")

	rec = httptest.NewRecorder()
	handler.MarkAllRead(rec, newRequest(t, http.MethodPost, "/api/v1/admin/notifications/read-all", adminID, nil))
	if got := decodeBody[map[string]any](t, rec)["updated"]; got != float64(1) {
		t.Fatalf("expected one notification updated got %v", got)
	}
}

func TestAdminPosts(t *testing.T) {
	posts := newMemoryPostStore(models.Post{ID: "p1", UserID: memberID, Title: "Hello", IsAnonymous: true})
	posts.authors[memberID] = models.Author{UserID: memberID, Email: memberEmail}
	posts.comments = []models.Comment{{ID: "c1", PostID: "p1"}}
	handler := newAdminHandler(&stubStats{}, &recordingNotifications{}, posts)

	rec := httptest.NewRecorder()
	handler.ListPosts(rec, newRequest(t, http.MethodGet, "/api/v1/admin/posts", adminID, nil))
	assertStatus(t, rec, http.StatusOK)

	views := decodeBody[[]adminPostView](t, rec)
	if len(views) != 1 || views[0].AuthorEmail != memberEmail || views[0].CommentCount != 1 {
		t.Fatalf("unexpected admin posts %+v", views)
	}
}
