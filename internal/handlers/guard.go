package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/heartwise/backend/internal/logging"
	"github.com/heartwise/backend/internal/models"
	"github.com/heartwise/backend/internal/repositories"
)

// Guard enforces the authentication and moderation rules shared by handlers.
// The caller's identity is read from the context populated by the
// Authenticate middleware.
type Guard struct {
	Users  UserLookup
	Admins AdminPolicy
}

// requireUser returns the authenticated user id or writes a 401.
func (g Guard) requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := logging.UserIDFromContext(r.Context())
	if userID == "" {
		respondError(r.Context(), w, http.StatusUnauthorized, "Not authenticated")
		return "", false
	}
	return userID, true
}

// requireAdmin returns the authenticated moderator or writes a 401/403.
func (g Guard) requireAdmin(w http.ResponseWriter, r *http.Request) (models.User, bool) {
	ctx := r.Context()
	userID, ok := g.requireUser(w, r)
	if !ok {
		return models.User{}, false
	}
	if g.Users == nil || g.Admins == nil {
		logging.FromContext(ctx).Error("admin policy unavailable")
		respondError(ctx, w, http.StatusInternalServerError, "authorization services unavailable")
		return models.User{}, false
	}

	user, err := g.Users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			respondError(ctx, w, http.StatusUnauthorized, "Not authenticated")
			return models.User{}, false
		}
		logging.FromContext(ctx).Error("load caller", "error", err)
		respondError(ctx, w, http.StatusInternalServerError, "unable to verify permissions")
		return models.User{}, false
	}
	if !g.Admins.IsAdmin(user.Email) {
		respondError(ctx, w, http.StatusForbidden, "Admin access required")
		return models.User{}, false
	}
	return user, true
}

// isAdmin reports whether userID belongs to a moderator, treating lookup
// failures as "no".
func (g Guard) isAdmin(ctx context.Context, userID string) bool {
	if userID == "" || g.Users == nil || g.Admins == nil {
		return false
	}
	user, err := g.Users.FindByID(ctx, userID)
	if err != nil {
		return false
	}
	return g.Admins.IsAdmin(user.Email)
}
