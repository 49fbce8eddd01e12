package handlers

import (
	"net/http"
	"strings"

	"github.com/heartwise/backend/internal/logging"
)

const maxTopicLength = 50

// VerseHandler serves the verse of the day.
type VerseHandler struct {
	Verses VerseService
}

// Today handles GET /api/v1/verses/today.
func (h VerseHandler) Today(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	verse, err := h.Verses.Today(ctx)
	if err != nil {
		logging.FromContext(ctx).Error("load today's verse", "error", err)
		respondError(ctx, w, http.StatusInternalServerError, "unable to load verse")
		return
	}
	respondJSON(ctx, w, http.StatusOK, verse)
}

// Current handles GET /api/v1/verses/current.
func (h VerseHandler) Current(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	verse, err := h.Verses.Current(ctx)
	if err != nil {
		logging.FromContext(ctx).Error("load current verse", "error", err)
		respondError(ctx, w, http.StatusInternalServerError, "unable to load verse")
		return
	}
	respondJSON(ctx, w, http.StatusOK, verse)
}

// GenerateCurrent handles POST /api/v1/verses/current.
func (h VerseHandler) GenerateCurrent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	verse, err := h.Verses.GenerateCurrent(ctx)
	if err != nil {
		logging.FromContext(ctx).Error("generate current verse", "error", err)
		respondError(ctx, w, http.StatusInternalServerError, "unable to generate verse")
		return
	}
	respondJSON(ctx, w, http.StatusOK, verse)
}

// GenerateNew handles POST /api/v1/verses.
func (h VerseHandler) GenerateNew(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req struct {
		Topic string `json:"topic"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(ctx, w, http.StatusBadRequest, "invalid request body")
		return
	}
	topic := strings.TrimSpace(req.Topic)
	if len(topic) > maxTopicLength {
		respondError(ctx, w, http.StatusBadRequest, "Topic is too long")
		return
	}

	verse, err := h.Verses.GenerateNew(ctx, topic)
	if err != nil {
		logging.FromContext(ctx).Error("generate verse", "error", err, "topic", topic)
		respondError(ctx, w, http.StatusInternalServerError, "unable to generate verse")
		return
	}
	respondJSON(ctx, w, http.StatusCreated, verse)
}
