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

const (
	defaultMaxParticipants = 10
	maxParticipantsCap     = 50
)

// CallHandler schedules and tracks group video calls. Media is handled by an
// external meeting service; calls only carry its URL.
type CallHandler struct {
	Guard
	Calls          CallStore
	Rooms          RoomStore
	MeetingBaseURL string
	Images         ImageResolver
	NowFunc        func() time.Time
}

type callView struct {
	models.VideoCall
	HostName string `json:"hostName"`
}

type participantView struct {
	models.Participant
	Name         string `json:"name"`
	ProfileImage string `json:"profileImage,omitempty"`
}

// List handles GET /api/v1/calls?roomId=.
func (h CallHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	calls, err := h.Calls.ListActive(ctx, strings.TrimSpace(r.URL.Query().Get("roomId")))
	if err != nil {
		logging.FromContext(ctx).Error("list calls", "error", err)
		respondError(ctx, w, http.StatusInternalServerError, "unable to load calls")
		return
	}

	views := make([]callView, 0, len(calls))
	for _, c := range calls {
		views = append(views, callView{
			VideoCall: c.VideoCall,
			HostName:  firstNonEmpty(c.Host.DisplayName, c.Host.Email, "Unknown"),
		})
	}
	respondJSON(ctx, w, http.StatusOK, views)
}

// Create handles POST /api/v1/calls.
func (h CallHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	var req struct {
		RoomID          string     `json:"roomId"`
		Title           string     `json:"title"`
		Description     string     `json:"description"`
		MaxParticipants *int       `json:"maxParticipants"`
		ScheduledTime   *time.Time `json:"scheduledTime"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(ctx, w, http.StatusBadRequest, "invalid request body")
		return
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		respondError(ctx, w, http.StatusBadRequest, "Title is required")
		return
	}
	maxParticipants := defaultMaxParticipants
	if req.MaxParticipants != nil {
		maxParticipants = *req.MaxParticipants
	}
	if maxParticipants < 2 || maxParticipants > maxParticipantsCap {
		respondError(ctx, w, http.StatusBadRequest, "maxParticipants must be between 2 and 50")
		return
	}

	room, err := h.Rooms.Find(ctx, strings.TrimSpace(req.RoomID))
	if err != nil || !room.IsActive {
		if err == nil || errors.Is(err, repositories.ErrNotFound) {
			respondError(ctx, w, http.StatusNotFound, "Room not found")
			return
		}
		logging.FromContext(ctx).Error("load room", "error", err)
		respondError(ctx, w, http.StatusInternalServerError, "unable to create call")
		return
	}

	call := models.VideoCall{
		ID:              uuid.NewString(),
		RoomID:          room.ID,
		HostUserID:      userID,
		Title:           title,
		Description:     strings.TrimSpace(req.Description),
		MeetingURL:      h.meetingURL(),
		ScheduledTime:   req.ScheduledTime,
		IsActive:        true,
		MaxParticipants: maxParticipants,
		CreatedAt:       h.now(),
	}
	if err := h.Calls.Create(ctx, call); err != nil {
		logging.FromContext(ctx).Error("create call", "error", err)
		respondError(ctx, w, http.StatusInternalServerError, "unable to create call")
		return
	}
	respondJSON(ctx, w, http.StatusCreated, map[string]string{"callId": call.ID, "meetingUrl": call.MeetingURL})
}

// Join handles POST /api/v1/calls/{id}/join.
func (h CallHandler) Join(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	result, err := h.Calls.Join(ctx, r.PathValue("id"), userID, uuid.NewString(), h.now())
	if err != nil {
		h.writeFailure(w, r, "join call", err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, result)
}

// Leave handles POST /api/v1/calls/{id}/leave.
func (h CallHandler) Leave(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	if err := h.Calls.Leave(ctx, r.PathValue("id"), userID, h.now()); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			respondError(ctx, w, http.StatusNotFound, "Not in this call")
			return
		}
		h.writeFailure(w, r, "leave call", err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, map[string]any{"success": true})
}

// End handles POST /api/v1/calls/{id}/end. Only the host may end a call.
func (h CallHandler) End(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	call, err := h.Calls.Find(ctx, r.PathValue("id"))
	if err != nil {
		h.writeFailure(w, r, "load call", err)
		return
	}
	if call.HostUserID != userID {
		respondError(ctx, w, http.StatusForbidden, "Unauthorized to end this call")
		return
	}

	if err := h.Calls.End(ctx, call.ID, h.now()); err != nil {
		h.writeFailure(w, r, "end call", err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, map[string]any{"success": true})
}

// Participants handles GET /api/v1/calls/{id}/participants.
func (h CallHandler) Participants(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	participants, err := h.Calls.Participants(ctx, r.PathValue("id"))
	if err != nil {
		h.writeFailure(w, r, "list participants", err)
		return
	}

	views := make([]participantView, 0, len(participants))
	for _, p := range participants {
		views = append(views, participantView{
			Participant:  p.Participant,
			Name:         firstNonEmpty(p.Author.DisplayName, p.Author.Email, "Unknown"),
			ProfileImage: authorImage(ctx, h.Images, p.Author),
		})
	}
	respondJSON(ctx, w, http.StatusOK, views)
}

func (h CallHandler) meetingURL() string {
	base := strings.TrimRight(firstNonEmpty(h.MeetingBaseURL, "https://meet.jit.si"), "/")
	return base + "/HeartWise-" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

func (h CallHandler) writeFailure(w http.ResponseWriter, r *http.Request, action string, err error) {
	ctx := r.Context()
	switch {
	case errors.Is(err, repositories.ErrCallInactive):
		respondError(ctx, w, http.StatusNotFound, "Call not found or inactive")
	case errors.Is(err, repositories.ErrCallFull):
		respondError(ctx, w, http.StatusConflict, "Call is full")
	case errors.Is(err, repositories.ErrNotFound):
		respondError(ctx, w, http.StatusNotFound, "Call not found")
	default:
		logging.FromContext(ctx).Error(action, "error", err)
		respondError(ctx, w, http.StatusInternalServerError, "unable to process call request")
	}
}

func (h CallHandler) now() time.Time {
	if h.NowFunc != nil {
		return h.NowFunc()
	}
	return time.Now().UTC()
}
