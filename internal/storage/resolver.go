package storage

import (
	"context"
	"strings"
	"sync"
	"time"
)

type urlEntry struct {
	url     string
	expires time.Time
}

// URLResolver turns stored object keys into URLs a browser can load. With a
// public base URL keys are joined onto it; otherwise presigned GET URLs are
// issued and cached for the configured TTL.
type URLResolver struct {
	store   ObjectStore
	baseURL string
	ttl     time.Duration
	now     func() time.Time

	mu    sync.RWMutex
	items map[string]urlEntry
}

// NewURLResolver returns a resolver caching presigned URLs for ttl.
func NewURLResolver(store ObjectStore, publicBaseURL string, ttl time.Duration) *URLResolver {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &URLResolver{
		store:   store,
		baseURL: strings.TrimRight(strings.TrimSpace(publicBaseURL), "/"),
		ttl:     ttl,
		now:     time.Now,
		items:   make(map[string]urlEntry),
	}
}

// Resolve returns the URL for key, or "" when it cannot be produced.
func (r *URLResolver) Resolve(ctx context.Context, key string) (string, error) {
	key = strings.TrimLeft(strings.TrimSpace(key), "/")
	if r == nil || key == "" {
		return "", nil
	}
	if r.baseURL != "" {
		return r.baseURL + "/" + key, nil
	}
	if r.store == nil {
		return "", ErrNotConfigured
	}

	now := r.now()

	r.mu.RLock()
	entry, ok := r.items[key]
	r.mu.RUnlock()
	if ok && now.Before(entry.expires) {
		return entry.url, nil
	}

	// Signed URLs outlive the cache entry so a cached URL is never already expired.
	u, err := r.store.PresignGet(ctx, key, 2*r.ttl)
	if err != nil {
		return "", err
	}

	r.mu.Lock()
	r.items[key] = urlEntry{url: u, expires: now.Add(r.ttl)}
	r.mu.Unlock()

	return u, nil
}

// Forget drops any cached URL for key.
func (r *URLResolver) Forget(key string) {
	if r == nil {
		return
	}
	r.mu.Lock()
	delete(r.items, strings.TrimLeft(strings.TrimSpace(key), "/"))
	r.mu.Unlock()
}
