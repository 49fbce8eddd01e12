package handlers

import (
	"crypto/rand"
	"errors"
	"net/http"
	"net/mail"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/heartwise/backend/internal/logging"
	"github.com/heartwise/backend/internal/models"
	"github.com/heartwise/backend/internal/repositories"
)

const (
	resetRequestedMessage = "Password reset link has been sent to your email."
	resetPendingMessage   = "A password reset link has already been sent. Please check your email."
	resetUnknownMessage   = "If the email exists, a reset link has been sent."
	resetInvalidMessage   = "Invalid or expired reset token."
	resetDoneMessage      = "Password has been reset successfully. You can now sign in with your new password."
)

// PasswordResetHandler issues and redeems single-use password reset tokens.
// Tokens are delivered out of band; they are only echoed in responses when
// ExposeTokens is set for local development.
type PasswordResetHandler struct {
	Users        UserStore
	Resets       PasswordResetStore
	Sessions     SessionManager
	TokenTTL     time.Duration
	FrontendURL  string
	ExposeTokens bool
	NowFunc      func() time.Time
}

// Request handles POST /api/v1/password-reset/request.
func (h PasswordResetHandler) Request(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if h.Users == nil || h.Resets == nil {
		logger.Error("password reset dependencies unavailable", "hasUsers", h.Users != nil, "hasResets", h.Resets != nil)
		respondError(ctx, w, http.StatusInternalServerError, "unable to process password reset")
		return
	}

	var req struct {
		Email string `json:"email"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		logger.Warn("invalid password reset payload", "error", err)
		respondError(ctx, w, http.StatusBadRequest, "invalid request body")
		return
	}

	email := strings.TrimSpace(strings.ToLower(req.Email))
	if email == "" {
		respondError(ctx, w, http.StatusBadRequest, "email is required")
		return
	}
	if _, err := mail.ParseAddress(email); err != nil {
		logger.Warn("password reset invalid email", "email", email, "error", err)
		respondError(ctx, w, http.StatusBadRequest, "invalid email address")
		return
	}

	user, err := h.Users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			respondJSON(ctx, w, http.StatusOK, resetRequestResponse{Success: true, Message: resetUnknownMessage})
			return
		}
		logger.Error("password reset lookup failed", "error", err, "email", email)
		respondError(ctx, w, http.StatusInternalServerError, "unable to process password reset")
		return
	}

	now := h.now()
	existing, err := h.Resets.FindActiveForUser(ctx, user.ID, now)
	switch {
	case err == nil:
		logger.Info("password reset already pending", "userId", user.ID)
		respondJSON(ctx, w, http.StatusOK, h.requestResponse(resetPendingMessage, existing.Token))
		return
	case !errors.Is(err, repositories.ErrNotFound):
		logger.Error("password reset token lookup failed", "error", err, "userId", user.ID)
		respondError(ctx, w, http.StatusInternalServerError, "unable to process password reset")
		return
	}

	token := models.PasswordResetToken{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		Token:     rand.Text(),
		ExpiresAt: now.Add(h.tokenTTL()),
		CreatedAt: now,
	}
	if err := h.Resets.Create(ctx, token); err != nil {
		logger.Error("store password reset token", "error", err, "userId", user.ID)
		respondError(ctx, w, http.StatusInternalServerError, "unable to process password reset")
		return
	}

	// Email delivery is out of scope; the link is logged for operators.
	logger.Info("password reset issued", "userId", user.ID, "resetUrl", h.resetURL(token.Token), "expiresAt", token.ExpiresAt)
	respondJSON(ctx, w, http.StatusOK, h.requestResponse(resetRequestedMessage, token.Token))
}

// Validate handles GET /api/v1/password-reset/validate?token=.
func (h PasswordResetHandler) Validate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if h.Users == nil || h.Resets == nil {
		respondError(ctx, w, http.StatusInternalServerError, "unable to process password reset")
		return
	}

	raw := strings.TrimSpace(r.URL.Query().Get("token"))
	if raw == "" {
		respondJSON(ctx, w, http.StatusOK, validateResponse{Valid: false, Message: resetInvalidMessage})
		return
	}

	token, err := h.Resets.FindByToken(ctx, raw)
	if err != nil && !errors.Is(err, repositories.ErrNotFound) {
		logger.Error("password reset token lookup failed", "error", err)
		respondError(ctx, w, http.StatusInternalServerError, "unable to validate token")
		return
	}
	if err != nil || !token.Usable(h.now()) {
		respondJSON(ctx, w, http.StatusOK, validateResponse{Valid: false, Message: resetInvalidMessage})
		return
	}

	user, err := h.Users.FindByID(ctx, token.UserID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			respondJSON(ctx, w, http.StatusOK, validateResponse{Valid: false, Message: "User not found."})
			return
		}
		logger.Error("password reset user lookup failed", "error", err)
		respondError(ctx, w, http.StatusInternalServerError, "unable to validate token")
		return
	}

	respondJSON(ctx, w, http.StatusOK, validateResponse{Valid: true, UserID: user.ID, Email: user.Email})
}

// Confirm handles POST /api/v1/password-reset/confirm.
func (h PasswordResetHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if h.Resets == nil {
		respondError(ctx, w, http.StatusInternalServerError, "unable to process password reset")
		return
	}

	var req struct {
		Token       string `json:"token"`
		NewPassword string `json:"newPassword"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		logger.Warn("invalid password reset confirm payload", "error", err)
		respondError(ctx, w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Token = strings.TrimSpace(req.Token)
	if req.Token == "" {
		respondError(ctx, w, http.StatusBadRequest, resetInvalidMessage)
		return
	}
	if len(req.NewPassword) < 8 {
		respondError(ctx, w, http.StatusBadRequest, "password must be at least 8 characters")
		return
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		logger.Error("password reset failed to hash password", "error", err)
		respondError(ctx, w, http.StatusInternalServerError, "failed to secure password")
		return
	}

	userID, err := h.Resets.Consume(ctx, req.Token, string(hashed), h.now())
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			respondError(ctx, w, http.StatusBadRequest, resetInvalidMessage)
			return
		}
		logger.Error("consume password reset token", "error", err)
		respondError(ctx, w, http.StatusInternalServerError, "unable to reset password")
		return
	}

	if h.Sessions != nil {
		if err := h.Sessions.RevokeAll(ctx, userID); err != nil {
			logger.Error("revoke sessions after password reset", "error", err, "userId", userID)
		}
	}

	logger.Info("password reset completed", "userId", userID)
	respondJSON(ctx, w, http.StatusOK, map[string]any{"success": true, "message": resetDoneMessage})
}

// Tokens handles GET /api/v1/password-reset/tokens.
func (h PasswordResetHandler) Tokens(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := logging.UserIDFromContext(ctx)
	if userID == "" {
		respondError(ctx, w, http.StatusUnauthorized, "Not authenticated")
		return
	}
	if h.Resets == nil {
		respondError(ctx, w, http.StatusInternalServerError, "unable to list reset tokens")
		return
	}

	tokens, err := h.Resets.ListUnusedForUser(ctx, userID)
	if err != nil {
		logging.FromContext(ctx).Error("list reset tokens", "error", err)
		respondError(ctx, w, http.StatusInternalServerError, "unable to list reset tokens")
		return
	}
	if tokens == nil {
		tokens = []models.PasswordResetToken{}
	}
	respondJSON(ctx, w, http.StatusOK, tokens)
}

type resetRequestResponse struct {
	Success  bool   `json:"success"`
	Message  string `json:"message"`
	Token    string `json:"token,omitempty"`
	ResetURL string `json:"resetUrl,omitempty"`
}

type validateResponse struct {
	Valid   bool   `json:"valid"`
	Message string `json:"message,omitempty"`
	UserID  string `json:"userId,omitempty"`
	Email   string `json:"email,omitempty"`
}

func (h PasswordResetHandler) requestResponse(message, token string) resetRequestResponse {
	resp := resetRequestResponse{Success: true, Message: message}
	if h.ExposeTokens {
		resp.Token = token
		resp.ResetURL = h.resetURL(token)
	}
	return resp
}

func (h PasswordResetHandler) resetURL(token string) string {
	base := strings.TrimRight(firstNonEmpty(h.FrontendURL, "http://localhost:5174"), "/")
	return base + "/reset-password?token=" + url.QueryEscape(token)
}

func (h PasswordResetHandler) tokenTTL() time.Duration {
	if h.TokenTTL > 0 {
		return h.TokenTTL
	}
	return time.Hour
}

func (h PasswordResetHandler) now() time.Time {
	if h.NowFunc != nil {
		return h.NowFunc()
	}
	return time.Now().UTC()
}
