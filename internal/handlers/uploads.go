package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/heartwise/backend/internal/logging"
	"github.com/heartwise/backend/internal/storage"
)

const (
	defaultUploadURLTTL = 15 * time.Minute
	maxDirectUpload     = 5 << 20
)

// UploadHandler hands out storage locations for user images. A nil Store
// means object storage is not configured and uploads are disabled.
type UploadHandler struct {
	Guard
	Store   ObjectStore
	Images  ImageResolver
	TTL     time.Duration
	NowFunc func() time.Time
}

type uploadResponse struct {
	UploadURL string    `json:"uploadUrl"`
	Key       string    `json:"key"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Presign handles POST /api/v1/uploads.
func (h UploadHandler) Presign(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	if h.Store == nil {
		respondError(ctx, w, http.StatusServiceUnavailable, "Image uploads are not available")
		return
	}

	var req struct {
		ContentType string `json:"contentType"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(ctx, w, http.StatusBadRequest, "invalid request body")
		return
	}
	contentType := strings.TrimSpace(req.ContentType)
	if !storage.IsImageContentType(contentType) {
		respondError(ctx, w, http.StatusBadRequest, "Only image uploads are supported")
		return
	}

	ttl := h.TTL
	if ttl <= 0 {
		ttl = defaultUploadURLTTL
	}
	key := storage.ImageKey(userID)
	uploadURL, err := h.Store.PresignPut(ctx, key, contentType, ttl)
	if err != nil {
		logging.FromContext(ctx).Error("presign upload", "error", err, "key", key)
		respondError(ctx, w, http.StatusInternalServerError, "unable to prepare upload")
		return
	}

	respondJSON(ctx, w, http.StatusOK, uploadResponse{
		UploadURL: uploadURL,
		Key:       key,
		ExpiresAt: h.now().Add(ttl),
	})
}

// Direct handles POST /api/v1/uploads/direct, a multipart upload proxied
// through the API for clients that cannot PUT to storage themselves.
func (h UploadHandler) Direct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	if h.Store == nil {
		respondError(ctx, w, http.StatusServiceUnavailable, "Image uploads are not available")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxDirectUpload+(1<<20))
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(ctx, w, http.StatusRequestEntityTooLarge, "Image is too large")
			return
		}
		respondError(ctx, w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	if header.Size > maxDirectUpload {
		respondError(ctx, w, http.StatusRequestEntityTooLarge, "Image is too large")
		return
	}
	contentType := header.Header.Get("Content-Type")
	if !storage.IsImageContentType(contentType) {
		respondError(ctx, w, http.StatusBadRequest, "Only image uploads are supported")
		return
	}

	key := storage.ImageKey(userID)
	if err := h.Store.Put(ctx, key, file, header.Size, contentType); err != nil {
		logging.FromContext(ctx).Error("store upload", "error", err, "key", key)
		respondError(ctx, w, http.StatusInternalServerError, "unable to store image")
		return
	}

	respondJSON(ctx, w, http.StatusCreated, map[string]any{
		"key":      key,
		"imageUrl": resolveImage(ctx, h.Images, key),
	})
}

func (h UploadHandler) now() time.Time {
	if h.NowFunc != nil {
		return h.NowFunc()
	}
	return time.Now().UTC()
}
