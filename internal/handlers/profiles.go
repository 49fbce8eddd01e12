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
	"github.com/heartwise/backend/internal/storage"
)

// ProfileHandler serves the one-per-user public profile.
type ProfileHandler struct {
	Guard
	Profiles ProfileStore
	Images   ImageResolver
	NowFunc  func() time.Time
}

type profileView struct {
	models.Profile
	ImageURL string `json:"imageUrl,omitempty"`
}

type publicProfileView struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
	IsPrivate   bool   `json:"isPrivate"`
}

// Mine handles GET /api/v1/profiles/me. It responds with null when the user
// has not created a profile yet.
func (h ProfileHandler) Mine(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	profile, err := h.Profiles.FindByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			respondJSON(ctx, w, http.StatusOK, nil)
			return
		}
		logging.FromContext(ctx).Error("load profile", "error", err)
		respondError(ctx, w, http.StatusInternalServerError, "unable to load profile")
		return
	}
	respondJSON(ctx, w, http.StatusOK, h.view(ctx, profile))
}

// Save handles PUT /api/v1/profiles/me.
func (h ProfileHandler) Save(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	var req struct {
		DisplayName string  `json:"displayName"`
		Bio         *string `json:"bio"`
		Age         *int    `json:"age"`
		Location    *string `json:"location"`
		IsPrivate   bool    `json:"isPrivate"`
		ImageKey    *string `json:"imageKey"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		logger.Warn("invalid profile payload", "error", err)
		respondError(ctx, w, http.StatusBadRequest, "invalid request body")
		return
	}

	displayName := strings.TrimSpace(req.DisplayName)
	if displayName == "" {
		respondError(ctx, w, http.StatusBadRequest, "Display name is required")
		return
	}
	if req.Age != nil && (*req.Age < 18 || *req.Age > 120) {
		respondError(ctx, w, http.StatusBadRequest, "Age must be between 18 and 120")
		return
	}
	imageKey := optionalString(req.ImageKey)
	if imageKey != nil && !storage.OwnsKey(userID, *imageKey) {
		respondError(ctx, w, http.StatusBadRequest, "Invalid image key")
		return
	}

	now := h.now()
	id, err := h.Profiles.Upsert(ctx, models.Profile{
		ID:          uuid.NewString(),
		UserID:      userID,
		DisplayName: displayName,
		Bio:         optionalString(req.Bio),
		Age:         req.Age,
		Location:    optionalString(req.Location),
		ImageKey:    imageKey,
		IsPrivate:   req.IsPrivate,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		logger.Error("save profile", "error", err)
		respondError(ctx, w, http.StatusInternalServerError, "unable to save profile")
		return
	}
	respondJSON(ctx, w, http.StatusOK, map[string]string{"id": id})
}

// Show handles GET /api/v1/profiles/{userId}.
func (h ProfileHandler) Show(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := r.PathValue("userId")

	profile, err := h.Profiles.FindByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			respondError(ctx, w, http.StatusNotFound, "Profile not found")
			return
		}
		logging.FromContext(ctx).Error("load profile", "error", err, "profileUserId", userID)
		respondError(ctx, w, http.StatusInternalServerError, "unable to load profile")
		return
	}

	viewer := logging.UserIDFromContext(ctx)
	if profile.IsPrivate && viewer != profile.UserID {
		respondJSON(ctx, w, http.StatusOK, publicProfileView{UserID: profile.UserID, DisplayName: profile.DisplayName, IsPrivate: true})
		return
	}
	respondJSON(ctx, w, http.StatusOK, h.view(ctx, profile))
}

func (h ProfileHandler) view(ctx context.Context, profile models.Profile) profileView {
	v := profileView{Profile: profile}
	if profile.ImageKey != nil {
		v.ImageURL = resolveImage(ctx, h.Images, *profile.ImageKey)
	}
	return v
}

func (h ProfileHandler) now() time.Time {
	if h.NowFunc != nil {
		return h.NowFunc()
	}
	return time.Now().UTC()
}

// resolveImage returns the URL for key or "" when it cannot be resolved.
// authorImage resolves the author's profile picture, if any.
func authorImage(ctx context.Context, images ImageResolver, a models.Author) string {
	if a.ImageKey == nil {
		return ""
	}
	return resolveImage(ctx, images, *a.ImageKey)
}

func resolveImage(ctx context.Context, images ImageResolver, key string) string {
	if images == nil || key == "" {
		return ""
	}
	u, err := images.Resolve(ctx, key)
	if err != nil {
		logging.FromContext(ctx).Warn("resolve image url", "key", key, "error", err)
		return ""
	}
	return u
}
