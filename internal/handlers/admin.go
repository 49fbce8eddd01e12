package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/heartwise/backend/internal/logging"
	"github.com/heartwise/backend/internal/models"
	"github.com/heartwise/backend/internal/repositories"
)

const (
	notificationLimit = 100
	recentWindow      = 7 * 24 * time.Hour
)

// AdminHandler serves the moderator dashboard.
type AdminHandler struct {
	Guard
	Stats         StatsStore
	Notifications NotificationStore
	Posts         PostStore
	NowFunc       func() time.Time
}

type adminPostView struct {
	models.Post
	AuthorEmail  string `json:"authorEmail"`
	AuthorName   string `json:"authorName"`
	CommentCount int    `json:"commentCount"`
}

// DashboardStats handles GET /api/v1/admin/stats.
func (h AdminHandler) DashboardStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := h.requireAdmin(w, r); !ok {
		return
	}

	stats, err := h.Stats.AdminStats(ctx, h.now().Add(-recentWindow))
	if err != nil {
		logging.FromContext(ctx).Error("load admin stats", "error", err)
		respondError(ctx, w, http.StatusInternalServerError, "unable to load stats")
		return
	}
	respondJSON(ctx, w, http.StatusOK, stats)
}

// ListNotifications handles GET /api/v1/admin/notifications.
func (h AdminHandler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := h.requireAdmin(w, r); !ok {
		return
	}

	items, err := h.Notifications.List(ctx, notificationLimit)
	if err != nil {
		logging.FromContext(ctx).Error("list notifications", "error", err)
		respondError(ctx, w, http.StatusInternalServerError, "unable to load notifications")
		return
	}
	if items == nil {
		items = []models.AdminNotification{}
	}
	respondJSON(ctx, w, http.StatusOK, items)
}

// MarkRead handles POST /api/v1/admin/notifications/{id}/read.
func (h AdminHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := h.requireAdmin(w, r); !ok {
		return
	}

	if err := h.Notifications.MarkRead(ctx, r.PathValue("id")); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			respondError(ctx, w, http.StatusNotFound, "Notification not found")
			return
		}
		logging.FromContext(ctx).Error("mark notification read", "error", err)
		respondError(ctx, w, http.StatusInternalServerError, "unable to update notification")
		return
	}
	respondJSON(ctx, w, http.StatusOK, map[string]any{"success": true})
}

// MarkAllRead handles POST /api/v1/admin/notifications/read-all.
func (h AdminHandler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := h.requireAdmin(w, r); !ok {
		return
	}

	updated, err := h.Notifications.MarkAllRead(ctx)
	if err != nil {
		logging.FromContext(ctx).Error("mark all notifications read", "error", err)
		respondError(ctx, w, http.StatusInternalServerError, "unable to update notifications")
		return
	}
	respondJSON(ctx, w, http.StatusOK, map[string]any{"success": true, "updated": updated})
}

// ListPosts handles GET /api/v1/admin/posts.
func (h AdminHandler) ListPosts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := h.requireAdmin(w, r); !ok {
		return
	}

	posts, err := h.Posts.ListAll(ctx)
	if err != nil {
		logging.FromContext(ctx).Error("list all posts", "error", err)
		respondError(ctx, w, http.StatusInternalServerError, "unable to load posts")
		return
	}

	views := make([]adminPostView, 0, len(posts))
	for _, p := range posts {
		views = append(views, adminPostView{
			Post:         p.Post,
			AuthorEmail:  p.Author.Email,
			AuthorName:   p.Author.Label("Unknown"),
			CommentCount: p.CommentCount,
		})
	}
	respondJSON(ctx, w, http.StatusOK, views)
}

func (h AdminHandler) now() time.Time {
	if h.NowFunc != nil {
		return h.NowFunc()
	}
	return time.Now().UTC()
}
