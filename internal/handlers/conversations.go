package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/heartwise/backend/internal/counsel"
	"github.com/heartwise/backend/internal/logging"
	"github.com/heartwise/backend/internal/models"
	"github.com/heartwise/backend/internal/repositories"
)

const maxMessageLength = 4000

// ConversationHandler serves the AI counseling chat.
type ConversationHandler struct {
	Guard
	Conversations ConversationStore
	Notifications NotificationStore
	Replies       ReplyDispatcher
	NowFunc       func() time.Time
}

// List handles GET /api/v1/conversations.
func (h ConversationHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	conversations, err := h.Conversations.ListActive(ctx, userID)
	if err != nil {
		logging.FromContext(ctx).Error("list conversations", "error", err)
		respondError(ctx, w, http.StatusInternalServerError, "unable to load conversations")
		return
	}
	if conversations == nil {
		conversations = []models.Conversation{}
	}
	respondJSON(ctx, w, http.StatusOK, conversations)
}

// Create handles POST /api/v1/conversations.
func (h ConversationHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	var req struct {
		Title string `json:"title"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(ctx, w, http.StatusBadRequest, "invalid request body")
		return
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = "New Conversation"
	}

	conversation := models.Conversation{
		ID:        uuid.NewString(),
		UserID:    userID,
		Title:     title,
		IsActive:  true,
		CreatedAt: h.now(),
	}
	if err := h.Conversations.Create(ctx, conversation); err != nil {
		logging.FromContext(ctx).Error("create conversation", "error", err)
		respondError(ctx, w, http.StatusInternalServerError, "unable to create conversation")
		return
	}
	respondJSON(ctx, w, http.StatusCreated, map[string]string{"id": conversation.ID})
}

// Messages handles GET /api/v1/conversations/{id}/messages.
func (h ConversationHandler) Messages(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	conversation, ok := h.owned(w, r)
	if !ok {
		return
	}

	messages, err := h.Conversations.Messages(ctx, conversation.ID)
	if err != nil {
		logging.FromContext(ctx).Error("list messages", "error", err, "conversationId", conversation.ID)
		respondError(ctx, w, http.StatusInternalServerError, "unable to load messages")
		return
	}
	if messages == nil {
		messages = []models.Message{}
	}
	respondJSON(ctx, w, http.StatusOK, messages)
}

// Send handles POST /api/v1/conversations/{id}/messages. The user message is
// stored synchronously; the assistant reply is produced in the background.
func (h ConversationHandler) Send(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)
	conversation, ok := h.owned(w, r)
	if !ok {
		return
	}

	var req struct {
		Content string `json:"content"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(ctx, w, http.StatusBadRequest, "invalid request body")
		return
	}
	content := strings.TrimSpace(req.Content)
	if content == "" {
		respondError(ctx, w, http.StatusBadRequest, "Message cannot be empty")
		return
	}
	if len([]rune(content)) > maxMessageLength {
		respondError(ctx, w, http.StatusBadRequest, fmt.Sprintf("Message must be at most %d characters", maxMessageLength))
		return
	}

	now := h.now()
	message := models.Message{
		ID:             uuid.NewString(),
		ConversationID: conversation.ID,
		UserID:         conversation.UserID,
		Content:        content,
		CreatedAt:      now,
	}
	if err := h.Conversations.AddMessage(ctx, message); err != nil {
		logger.Error("store message", "error", err, "conversationId", conversation.ID)
		respondError(ctx, w, http.StatusInternalServerError, "unable to send message")
		return
	}

	notify(ctx, h.Notifications, models.AdminNotification{
		ID:          uuid.NewString(),
		Type:        models.NotificationNewMessage,
		Title:       "New AI Chat Message",
		Description: `User sent: "` + truncate(content, 50) + `"`,
		RelatedID:   stringPtr(message.ID),
		Priority:    models.PriorityMedium,
		CreatedAt:   now,
	})

	if err := h.dispatchReply(ctx, conversation, content); err != nil {
		logger.Error("dispatch assistant reply", "error", err, "conversationId", conversation.ID)
		// Every stored user message gets one assistant reply; answer now
		// with the fallback since no worker will.
		fallback := counsel.FallbackMessage(conversation, h.now())
		saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := h.Conversations.AddMessage(saveCtx, fallback); err != nil {
			logger.Error("store fallback reply", "error", err, "conversationId", conversation.ID)
		}
	}

	respondJSON(ctx, w, http.StatusCreated, map[string]string{"id": message.ID})
}

func (h ConversationHandler) dispatchReply(ctx context.Context, conversation models.Conversation, content string) error {
	if h.Replies == nil {
		return errors.New("reply dispatcher unavailable")
	}
	return h.Replies.Dispatch(ctx, counsel.Job{ConversationID: conversation.ID, UserMessage: content})
}

// Rename handles PATCH /api/v1/conversations/{id}.
func (h ConversationHandler) Rename(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	conversation, ok := h.owned(w, r)
	if !ok {
		return
	}

	var req struct {
		Title string `json:"title"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(ctx, w, http.StatusBadRequest, "invalid request body")
		return
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		respondError(ctx, w, http.StatusBadRequest, "Title cannot be empty")
		return
	}

	if err := h.Conversations.Rename(ctx, conversation.ID, title); err != nil {
		h.writeFailure(w, r, "rename conversation", err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, map[string]string{"id": conversation.ID, "title": title})
}

// Delete handles DELETE /api/v1/conversations/{id}.
func (h ConversationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	conversation, ok := h.owned(w, r)
	if !ok {
		return
	}
	if err := h.Conversations.Deactivate(r.Context(), conversation.ID); err != nil {
		h.writeFailure(w, r, "delete conversation", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// owned loads the conversation named in the path and checks the caller owns it.
func (h ConversationHandler) owned(w http.ResponseWriter, r *http.Request) (models.Conversation, bool) {
	ctx := r.Context()
	userID, ok := h.requireUser(w, r)
	if !ok {
		return models.Conversation{}, false
	}

	conversation, err := h.Conversations.Find(ctx, r.PathValue("id"))
	if err != nil {
		h.writeFailure(w, r, "load conversation", err)
		return models.Conversation{}, false
	}
	if conversation.UserID != userID {
		respondError(ctx, w, http.StatusForbidden, "Unauthorized")
		return models.Conversation{}, false
	}
	if !conversation.IsActive {
		respondError(ctx, w, http.StatusNotFound, "Conversation not found")
		return models.Conversation{}, false
	}
	return conversation, true
}

func (h ConversationHandler) writeFailure(w http.ResponseWriter, r *http.Request, action string, err error) {
	ctx := r.Context()
	if errors.Is(err, repositories.ErrNotFound) {
		respondError(ctx, w, http.StatusNotFound, "Conversation not found")
		return
	}
	logging.FromContext(ctx).Error(action, "error", err)
	respondError(ctx, w, http.StatusInternalServerError, "unable to update conversation")
}

func (h ConversationHandler) now() time.Time {
	if h.NowFunc != nil {
		return h.NowFunc()
	}
	return time.Now().UTC()
}
