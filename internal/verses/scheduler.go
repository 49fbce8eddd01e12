package verses

import (
	"context"
	"time"

	"github.com/heartwise/backend/internal/logging"
)

// Scheduler keeps the current verse generated on a fixed interval.
type Scheduler struct {
	service  *Service
	interval time.Duration
}

// NewScheduler returns a scheduler ticking every interval (24h when unset).
func NewScheduler(service *Service, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	return &Scheduler{service: service, interval: interval}
}

// Run generates a verse immediately and then on every tick until ctx ends.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		s.tick(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	ctx, span := logging.StartSpan(ctx, "verses.generate")
	defer span.End()

	verse, err := s.service.GenerateCurrent(ctx)
	if err != nil {
		if ctx.Err() == nil {
			logging.FromContext(ctx).Error("scheduled verse generation failed", "error", err)
		}
		return
	}
	logging.FromContext(ctx).Info("verse of the day ready", "reference", verse.Reference, "minuteKey", verse.MinuteKey)
}
