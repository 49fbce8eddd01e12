package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/heartwise/backend/internal/logging"
	"github.com/heartwise/backend/internal/models"
	"github.com/heartwise/backend/internal/repositories"
)

const testimonyLimit = 10

// TestimonyHandler serves testimonies and their moderation queue.
type TestimonyHandler struct {
	Guard
	Testimonies   TestimonyStore
	Notifications NotificationStore
	NowFunc       func() time.Time
}

type testimonyView struct {
	models.Testimony
	AuthorName string `json:"authorName"`
}

func newTestimonyView(t models.TestimonyDetails) testimonyView {
	v := testimonyView{Testimony: t.Testimony, AuthorName: "Anonymous"}
	if t.IsAnonymous {
		v.UserID = ""
	} else {
		v.AuthorName = firstNonEmpty(t.Author.DisplayName, t.Author.Email, "A Believer")
	}
	return v
}

// List handles GET /api/v1/testimonies?category=. Only approved testimonies are returned.
func (h TestimonyHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	category := strings.TrimSpace(r.URL.Query().Get("category"))
	if category == "all" {
		category = ""
	}
	if category != "" && !models.ValidTestimonyCategory(category) {
		respondError(ctx, w, http.StatusBadRequest, "Invalid category")
		return
	}

	testimonies, err := h.Testimonies.ListApproved(ctx, category, testimonyLimit)
	if err != nil {
		logging.FromContext(ctx).Error("list testimonies", "error", err)
		respondError(ctx, w, http.StatusInternalServerError, "unable to load testimonies")
		return
	}
	h.respondList(w, r, testimonies)
}

// Create handles POST /api/v1/testimonies. New testimonies wait for approval.
func (h TestimonyHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	var req struct {
		Title       string `json:"title"`
		Story       string `json:"story"`
		Category    string `json:"category"`
		IsAnonymous bool   `json:"isAnonymous"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(ctx, w, http.StatusBadRequest, "invalid request body")
		return
	}
	title := strings.TrimSpace(req.Title)
	story := strings.TrimSpace(req.Story)
	if title == "" || story == "" {
		respondError(ctx, w, http.StatusBadRequest, "Title and story are required")
		return
	}
	if !models.ValidTestimonyCategory(req.Category) {
		respondError(ctx, w, http.StatusBadRequest, "Invalid category")
		return
	}

	now := h.now()
	testimony := models.Testimony{
		ID:          uuid.NewString(),
		UserID:      userID,
		Title:       title,
		Story:       story,
		Category:    req.Category,
		IsAnonymous: req.IsAnonymous,
		CreatedAt:   now,
	}
	if err := h.Testimonies.Create(ctx, testimony); err != nil {
		logging.FromContext(ctx).Error("create testimony", "error", err)
		respondError(ctx, w, http.StatusInternalServerError, "unable to submit testimony")
		return
	}

	notify(ctx, h.Notifications, models.AdminNotification{
		ID:          uuid.NewString(),
		Type:        models.NotificationNewTestimony,
		Title:       "New Testimony Submitted",
		Description: `New testimony: "` + title + `" - Requires approval`,
		RelatedID:   stringPtr(testimony.ID),
		Priority:    models.PriorityHigh,
		CreatedAt:   now,
	})

	respondJSON(ctx, w, http.StatusCreated, map[string]string{"id": testimony.ID})
}

// Pending handles GET /api/v1/admin/testimonies/pending.
func (h TestimonyHandler) Pending(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := h.requireAdmin(w, r); !ok {
		return
	}

	testimonies, err := h.Testimonies.ListPending(ctx)
	if err != nil {
		logging.FromContext(ctx).Error("list pending testimonies", "error", err)
		respondError(ctx, w, http.StatusInternalServerError, "unable to load testimonies")
		return
	}
	h.respondList(w, r, testimonies)
}

// Approve handles POST /api/v1/admin/testimonies/{id}/approve.
func (h TestimonyHandler) Approve(w http.ResponseWriter, r *http.Request) {
	h.moderate(w, r, "approve", h.Testimonies.Approve)
}

// Reject handles DELETE /api/v1/admin/testimonies/{id}.
func (h TestimonyHandler) Reject(w http.ResponseWriter, r *http.Request) {
	h.moderate(w, r, "reject", h.Testimonies.Delete)
}

// Stats handles GET /api/v1/admin/testimonies/stats.
func (h TestimonyHandler) Stats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := h.requireAdmin(w, r); !ok {
		return
	}

	stats, err := h.Testimonies.Stats(ctx)
	if err != nil {
		logging.FromContext(ctx).Error("testimony stats", "error", err)
		respondError(ctx, w, http.StatusInternalServerError, "unable to load testimony stats")
		return
	}
	respondJSON(ctx, w, http.StatusOK, stats)
}

func (h TestimonyHandler) moderate(w http.ResponseWriter, r *http.Request, action string, apply func(ctx context.Context, id string) error) {
	ctx := r.Context()
	admin, ok := h.requireAdmin(w, r)
	if !ok {
		return
	}

	id := r.PathValue("id")
	if err := apply(ctx, id); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			respondError(ctx, w, http.StatusNotFound, "Testimony not found")
			return
		}
		logging.FromContext(ctx).Error(action+" testimony", "error", err, "testimonyId", id)
		respondError(ctx, w, http.StatusInternalServerError, "unable to moderate testimony")
		return
	}

	logging.FromContext(ctx).Info("testimony moderated", "action", action, "testimonyId", id, "moderator", admin.Email)
	respondJSON(ctx, w, http.StatusOK, map[string]any{"success": true})
}

func (h TestimonyHandler) respondList(w http.ResponseWriter, r *http.Request, testimonies []models.TestimonyDetails) {
	views := make([]testimonyView, 0, len(testimonies))
	for _, t := range testimonies {
		views = append(views, newTestimonyView(t))
	}
	respondJSON(r.Context(), w, http.StatusOK, views)
}

func (h TestimonyHandler) now() time.Time {
	if h.NowFunc != nil {
		return h.NowFunc()
	}
	return time.Now().UTC()
}
