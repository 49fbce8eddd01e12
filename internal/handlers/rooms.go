package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/heartwise/backend/internal/logging"
	"github.com/heartwise/backend/internal/models"
	"github.com/heartwise/backend/internal/repositories"
)

const roomHistoryLimit = 50

// DefaultRooms is the room set created by the seed endpoint.
var DefaultRooms = []struct{ Name, Description string }{
	{"General Fellowship", "General discussion for all community members to fellowship and share"},
	{"Dating Advice", "Share and discuss biblical dating advice and experiences"},
	{"Prayer Requests", "Share prayer requests and pray for one another"},
	{"Marriage Prep", "For those preparing for marriage or engaged couples"},
	{"Single & Seeking", "Support group for singles seeking God's will in relationships"},
	{"Faith & Relationships", "Discuss how faith impacts our relationships and dating life"},
	{"Testimonies & Stories", "Share your testimony and relationship success stories"},
}

// RoomHandler serves the live chat rooms.
type RoomHandler struct {
	Guard
	Rooms   RoomStore
	Images  ImageResolver
	NowFunc func() time.Time
}

type chatMessageView struct {
	models.ChatMessage
	AuthorName  string `json:"authorName"`
	AuthorImage string `json:"authorImage,omitempty"`
}

// List handles GET /api/v1/rooms.
func (h RoomHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	rooms, err := h.Rooms.ListActive(ctx)
	if err != nil {
		logging.FromContext(ctx).Error("list rooms", "error", err)
		respondError(ctx, w, http.StatusInternalServerError, "unable to load rooms")
		return
	}
	if rooms == nil {
		rooms = []models.ChatRoom{}
	}
	respondJSON(ctx, w, http.StatusOK, rooms)
}

// Create handles POST /api/v1/rooms.
func (h RoomHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := h.requireUser(w, r); !ok {
		return
	}

	var req struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(ctx, w, http.StatusBadRequest, "invalid request body")
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		respondError(ctx, w, http.StatusBadRequest, "Room name is required")
		return
	}

	room := models.ChatRoom{
		ID:          uuid.NewString(),
		Name:        name,
		Description: strings.TrimSpace(req.Description),
		IsActive:    true,
		CreatedAt:   h.now(),
	}
	if err := h.Rooms.Create(ctx, room); err != nil {
		logging.FromContext(ctx).Error("create room", "error", err)
		respondError(ctx, w, http.StatusInternalServerError, "unable to create room")
		return
	}
	respondJSON(ctx, w, http.StatusCreated, map[string]string{"id": room.ID})
}

// Delete handles DELETE /api/v1/rooms/{id}.
func (h RoomHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := h.requireAdmin(w, r); !ok {
		return
	}

	if err := h.Rooms.Deactivate(ctx, r.PathValue("id")); err != nil {
		h.writeFailure(w, r, "deactivate room", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Seed handles POST /api/v1/rooms/seed.
func (h RoomHandler) Seed(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := h.requireAdmin(w, r); !ok {
		return
	}

	now := h.now()
	rooms := make([]models.ChatRoom, 0, len(DefaultRooms))
	for _, d := range DefaultRooms {
		rooms = append(rooms, models.ChatRoom{
			ID:          uuid.NewString(),
			Name:        d.Name,
			Description: d.Description,
			IsActive:    true,
			CreatedAt:   now,
		})
	}

	created, err := h.Rooms.SeedDefaults(ctx, rooms)
	if err != nil {
		logging.FromContext(ctx).Error("seed rooms", "error", err)
		respondError(ctx, w, http.StatusInternalServerError, "unable to seed rooms")
		return
	}

	message := "Chat rooms already exist"
	if created > 0 {
		message = "Chat rooms seeded successfully"
	}
	respondJSON(ctx, w, http.StatusOK, map[string]any{"created": created, "message": message})
}

// Messages handles GET /api/v1/rooms/{id}/messages.
func (h RoomHandler) Messages(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	messages, err := h.Rooms.RecentMessages(ctx, r.PathValue("id"), roomHistoryLimit)
	if err != nil {
		h.writeFailure(w, r, "list room messages", err)
		return
	}

	views := make([]chatMessageView, 0, len(messages))
	for _, m := range messages {
		v := chatMessageView{ChatMessage: m.ChatMessage, AuthorName: "Anonymous"}
		if m.IsAnonymous {
			v.UserID = ""
		} else {
			v.AuthorName = firstNonEmpty(m.Author.DisplayName, m.Author.Email, "Unknown")
			v.AuthorImage = authorImage(ctx, h.Images, m.Author)
		}
		views = append(views, v)
	}
	respondJSON(ctx, w, http.StatusOK, views)
}

// Send handles POST /api/v1/rooms/{id}/messages.
func (h RoomHandler) Send(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	var req struct {
		Content     string `json:"content"`
		IsAnonymous bool   `json:"isAnonymous"`
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
		respondError(ctx, w, http.StatusBadRequest, "Message is too long")
		return
	}

	room, err := h.Rooms.Find(ctx, r.PathValue("id"))
	if err != nil {
		h.writeFailure(w, r, "load room", err)
		return
	}
	if !room.IsActive {
		respondError(ctx, w, http.StatusNotFound, "Room not found")
		return
	}

	message := models.ChatMessage{
		ID:          uuid.NewString(),
		RoomID:      room.ID,
		UserID:      userID,
		Content:     content,
		IsAnonymous: req.IsAnonymous,
		CreatedAt:   h.now(),
	}
	if err := h.Rooms.AddMessage(ctx, message); err != nil {
		h.writeFailure(w, r, "add room message", err)
		return
	}
	respondJSON(ctx, w, http.StatusCreated, map[string]string{"id": message.ID})
}

func (h RoomHandler) writeFailure(w http.ResponseWriter, r *http.Request, action string, err error) {
	ctx := r.Context()
	if errors.Is(err, repositories.ErrNotFound) {
		respondError(ctx, w, http.StatusNotFound, "Room not found")
		return
	}
	logging.FromContext(ctx).Error(action, "error", err)
	respondError(ctx, w, http.StatusInternalServerError, "unable to process room request")
}

func (h RoomHandler) now() time.Time {
	if h.NowFunc != nil {
		return h.NowFunc()
	}
	return time.Now().UTC()
}
