package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/heartwise/backend/internal/auth"
	"github.com/heartwise/backend/internal/config"
	"github.com/heartwise/backend/internal/counsel"
	"github.com/heartwise/backend/internal/db"
	"github.com/heartwise/backend/internal/handlers"
	"github.com/heartwise/backend/internal/logging"
	"github.com/heartwise/backend/internal/middleware"
	"github.com/heartwise/backend/internal/repositories"
	"github.com/heartwise/backend/internal/storage"
	"github.com/heartwise/backend/internal/verses"
)

const (
	sessionPurgeInterval = time.Hour
	rateLimiterTTL       = 10 * time.Minute
)

// backgroundTask runs until ctx is cancelled.
type backgroundTask struct {
	name string
	run  func(ctx context.Context) error
}

// services is everything serve needs besides the HTTP server itself.
type services struct {
	deps    handlers.Dependencies
	tasks   []backgroundTask
	closers []func(ctx context.Context) error
}

// cleanup releases resources in reverse order of acquisition.
func (s *services) cleanup(ctx context.Context) error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// buildDependencies wires together concrete implementations used by the HTTP handlers
// and the background workers.
func buildDependencies(ctx context.Context, pool db.Pool, cfg config.Config, logger *slog.Logger) (*services, error) {
	svc := &services{}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password})
		svc.closers = append(svc.closers, func(context.Context) error { return redisClient.Close() })
	}

	limiter, err := buildRateLimiter(cfg, redisClient)
	if err != nil {
		return nil, err
	}

	sessionStore := repositories.NewPostgresSessionStore(pool)
	sessions := auth.NewManager(auth.Options{
		Secret:     cfg.Auth.JWTSecret,
		Issuer:     cfg.Auth.Issuer,
		AccessTTL:  cfg.Auth.AccessTokenTTL,
		RefreshTTL: cfg.Auth.RefreshTokenTTL,
	}, sessionStore)
	if cfg.Auth.JWTSecret == "" {
		logger.Warn("no jwt secret configured, using an ephemeral signing key")
	}

	conversations := repositories.NewPostgresConversationRepository(pool)
	completer := counsel.NewOpenAICompatClient(counsel.CompletionOptions{
		BaseURL:     cfg.AI.BaseURL,
		APIKey:      cfg.AI.APIKey,
		Model:       cfg.AI.Model,
		Temperature: cfg.AI.Temperature,
		MaxTokens:   cfg.AI.MaxTokens,
		Timeout:     cfg.AI.Timeout,
	})
	if cfg.AI.APIKey == "" {
		logger.Warn("no ai api key configured, counselor replies will use the fallback message")
	}
	responder := counsel.NewResponder(conversations, completer, counsel.ResponderOptions{
		HistoryWindow: cfg.AI.HistoryWindow,
		Timeout:       cfg.AI.Timeout,
	})

	dispatcher, err := buildDispatcher(ctx, cfg, redisClient, responder, logger)
	if err != nil {
		_ = svc.cleanup(ctx)
		return nil, err
	}
	// Registered after the redis client so it shuts down before the client closes.
	svc.closers = append(svc.closers, dispatcher.Shutdown)

	var (
		objects  handlers.ObjectStore
		resolver handlers.ImageResolver
	)
	store, err := storage.New(ctx, cfg.ObjectStore)
	switch {
	case errors.Is(err, storage.ErrNotConfigured):
		logger.Info("object storage not configured, image uploads disabled")
	case err != nil:
		_ = svc.cleanup(ctx)
		return nil, fmt.Errorf("configure object storage: %w", err)
	default:
		objects = store
		resolver = storage.NewURLResolver(store, cfg.ObjectStore.PublicBaseURL, cfg.ObjectStore.URLCacheTTL)
	}

	verseService := verses.NewService(repositories.NewPostgresVerseRepository(pool))
	scheduler := verses.NewScheduler(verseService, cfg.VerseInterval)

	users := repositories.NewPostgresUserRepository(pool)
	svc.deps = handlers.Dependencies{
		Users:            users,
		Sessions:         sessions,
		Verifier:         sessions,
		Admins:           cfg,
		Limiter:          limiter,
		Resets:           repositories.NewPostgresPasswordResetRepository(pool),
		Profiles:         repositories.NewPostgresProfileRepository(pool),
		Conversations:    conversations,
		Replies:          dispatcher,
		Notifications:    repositories.NewPostgresNotificationRepository(pool),
		Posts:            repositories.NewPostgresPostRepository(pool),
		Testimonies:      repositories.NewPostgresTestimonyRepository(pool),
		Rooms:            repositories.NewPostgresRoomRepository(pool),
		Calls:            repositories.NewPostgresCallRepository(pool),
		Verses:           verseService,
		Stats:            repositories.NewPostgresStatsRepository(pool),
		Objects:          objects,
		Images:           resolver,
		DB:               pool,
		PasswordResetTTL: cfg.PasswordReset.TokenTTL,
		FrontendURL:      cfg.PasswordReset.FrontendURL,
		ExposeTokens:     cfg.PasswordReset.ExposeTokens,
		UploadURLTTL:     cfg.ObjectStore.UploadURLTTL,
		MeetingBaseURL:   cfg.MeetingBaseURL,
	}

	svc.tasks = append(svc.tasks,
		backgroundTask{name: "verse scheduler", run: scheduler.Run},
		backgroundTask{name: "session purge", run: func(ctx context.Context) error {
			return purgeSessions(ctx, sessionStore, sessionPurgeInterval)
		}},
	)
	return svc, nil
}

func buildRateLimiter(cfg config.Config, client *redis.Client) (middleware.RateLimiter, error) {
	if client != nil {
		limiter, err := middleware.NewRedisRateLimiter(client, "heartwise:ratelimit", cfg.RateLimit.Requests, cfg.RateLimit.Window)
		if err != nil {
			return nil, fmt.Errorf("configure rate limiter: %w", err)
		}
		return limiter, nil
	}
	return middleware.NewIPRateLimiter(cfg.RateLimit.Requests, cfg.RateLimit.Window, cfg.RateLimit.Burst, rateLimiterTTL), nil
}

func buildDispatcher(ctx context.Context, cfg config.Config, client *redis.Client, responder *counsel.Responder, logger *slog.Logger) (counsel.Dispatcher, error) {
	if cfg.Dispatcher.Driver != "redis" {
		return counsel.NewWorkerPool(responder.Handle, counsel.WorkerPoolConfig{
			QueueSize: cfg.Dispatcher.QueueSize,
			Workers:   cfg.Dispatcher.Workers,
			Abandon:   responder.Abandon,
		}, logger), nil
	}

	if client == nil {
		return nil, errors.New("redis dispatcher requires a redis address")
	}
	hostname, _ := os.Hostname()
	dispatcher, err := counsel.NewRedisDispatcher(client, responder.Handle, counsel.RedisDispatcherConfig{
		Stream:   cfg.Dispatcher.Stream,
		Group:    cfg.Dispatcher.Group,
		Consumer: hostname,
		Workers:  cfg.Dispatcher.Workers,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("configure redis dispatcher: %w", err)
	}
	if err := dispatcher.Start(ctx); err != nil {
		return nil, fmt.Errorf("start redis dispatcher: %w", err)
	}
	return dispatcher, nil
}

type sessionPurger interface {
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}

// purgeSessions deletes expired refresh tokens on every tick until ctx ends.
func purgeSessions(ctx context.Context, store sessionPurger, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			spanCtx, span := logging.StartSpan(ctx, "sessions.purge")
			removed, err := store.PurgeExpired(spanCtx, time.Now().UTC())
			if err != nil {
				logging.FromContext(spanCtx).Error("purge expired sessions", "error", err)
			} else if removed > 0 {
				logging.FromContext(spanCtx).Info("purged expired sessions", "count", removed)
			}
			span.End()
		}
	}
}
