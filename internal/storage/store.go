package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/heartwise/backend/internal/config"
)

// ObjectStore is a bucket of user-uploaded images.
type ObjectStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	PresignPut(ctx context.Context, key, contentType string, expiry time.Duration) (string, error)
	PresignGet(ctx context.Context, key string, expiry time.Duration) (string, error)
	Delete(ctx context.Context, key string) error
}

// ErrNotConfigured is returned by New when no bucket is configured.
var ErrNotConfigured = errors.New("object storage not configured")

// New builds the ObjectStore selected by cfg.Driver.
func New(ctx context.Context, cfg config.ObjectStoreConfig) (ObjectStore, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, ErrNotConfigured
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", "s3":
		return NewS3Storage(ctx, cfg)
	case "minio":
		return NewMinioStorage(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown object store driver %q", cfg.Driver)
	}
}

// ImageKey returns a fresh object key for an image uploaded by userID.
func ImageKey(userID string) string {
	return path.Join("images", userID, uuid.NewString())
}

// OwnsKey reports whether key names a single object directly under userID's
// image prefix. Keys that are not in clean form are rejected so dot segments
// cannot climb into another user's prefix.
func OwnsKey(userID, key string) bool {
	if userID == "" || strings.Contains(userID, "/") || path.Clean(key) != key {
		return false
	}
	name, ok := strings.CutPrefix(key, path.Join("images", userID)+"/")
	return ok && name != "" && !strings.Contains(name, "/")
}

// IsImageContentType reports whether contentType is an image/* media type.
func IsImageContentType(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return strings.HasPrefix(mediaType, "image/")
}

func cleanKey(key string) (string, error) {
	key = strings.TrimLeft(strings.TrimSpace(key), "/")
	if key == "" {
		return "", errors.New("empty object key")
	}
	return key, nil
}
