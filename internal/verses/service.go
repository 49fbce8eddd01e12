package verses

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/heartwise/backend/internal/metrics"
	"github.com/heartwise/backend/internal/models"
	"github.com/heartwise/backend/internal/repositories"
)

// Store persists generated verses.
type Store interface {
	LatestForDate(ctx context.Context, date string) (models.DailyVerse, error)
	FindByMinuteKey(ctx context.Context, key string) (models.DailyVerse, error)
	Create(ctx context.Context, verse models.DailyVerse) error
}

// Service generates and looks up verses of the day.
type Service struct {
	store Store
	now   func() time.Time
	intn  func(n int) int
}

// NewService constructs a Service over store.
func NewService(store Store) *Service {
	return &Service{
		store: store,
		now:   func() time.Time { return time.Now().UTC() },
		intn:  rand.IntN,
	}
}

// WithNowFunc overrides the clock, primarily for tests.
func (s *Service) WithNowFunc(now func() time.Time) *Service {
	if now != nil {
		s.now = now
	}
	return s
}

// DateKey formats t as the calendar date verses are grouped by.
func DateKey(t time.Time) string {
	return t.UTC().Format(time.DateOnly)
}

// MinuteKey identifies the verse slot for the minute containing t.
func MinuteKey(t time.Time) string {
	return fmt.Sprintf("%s-%d", DateKey(t), t.Unix()/60)
}

// Today returns the most recent verse generated today, or nil when none exists.
func (s *Service) Today(ctx context.Context) (*models.DailyVerse, error) {
	verse, err := s.store.LatestForDate(ctx, DateKey(s.now()))
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find today's verse: %w", err)
	}
	return &verse, nil
}

// Current returns the verse for the current minute, falling back to today's latest.
func (s *Service) Current(ctx context.Context) (*models.DailyVerse, error) {
	verse, err := s.store.FindByMinuteKey(ctx, MinuteKey(s.now()))
	switch {
	case err == nil:
		return &verse, nil
	case errors.Is(err, repositories.ErrNotFound):
		return s.Today(ctx)
	default:
		return nil, fmt.Errorf("find current verse: %w", err)
	}
}

// GenerateCurrent returns the verse for the current minute, creating it if needed.
// Concurrent callers converge on a single row through the unique minute key.
func (s *Service) GenerateCurrent(ctx context.Context) (models.DailyVerse, error) {
	now := s.now()
	key := MinuteKey(now)

	existing, err := s.store.FindByMinuteKey(ctx, key)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, repositories.ErrNotFound) {
		return models.DailyVerse{}, fmt.Errorf("find current verse: %w", err)
	}

	verse := s.compose("", now, key)
	if err := s.store.Create(ctx, verse); err != nil {
		if errors.Is(err, repositories.ErrConflict) {
			return s.store.FindByMinuteKey(ctx, key)
		}
		return models.DailyVerse{}, fmt.Errorf("create verse: %w", err)
	}
	metrics.VersesGenerated.Inc()
	return verse, nil
}

// GenerateNew always creates a fresh verse, optionally for a specific topic.
func (s *Service) GenerateNew(ctx context.Context, topic string) (models.DailyVerse, error) {
	now := s.now()
	id := uuid.NewString()
	verse := s.compose(topic, now, fmt.Sprintf("%s-manual-%s", MinuteKey(now), id))
	verse.ID = id

	if err := s.store.Create(ctx, verse); err != nil {
		return models.DailyVerse{}, fmt.Errorf("create verse: %w", err)
	}
	metrics.VersesGenerated.Inc()
	return verse, nil
}

func (s *Service) compose(topic string, now time.Time, key string) models.DailyVerse {
	topic = strings.ToLower(strings.TrimSpace(topic))
	if topic == "" {
		topic = Topics[s.intn(len(Topics))]
	}

	candidates := passagesFor(topic)
	if len(candidates) == 0 {
		candidates = Catalog
	}
	passage := candidates[s.intn(len(candidates))]

	return models.DailyVerse{
		ID:            uuid.NewString(),
		Verse:         passage.Text,
		Reference:     passage.Reference,
		Reflection:    fmt.Sprintf(reflections[s.intn(len(reflections))], topic),
		Topic:         topic,
		Date:          DateKey(now),
		MinuteKey:     key,
		IsAIGenerated: true,
		CreatedAt:     now,
	}
}
