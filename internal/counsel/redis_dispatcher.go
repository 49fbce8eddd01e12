package counsel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/heartwise/backend/internal/logging"
	"github.com/heartwise/backend/internal/metrics"
)

// RedisDispatcherConfig configures a RedisDispatcher.
type RedisDispatcherConfig struct {
	Stream    string
	Group     string
	Consumer  string
	Workers   int
	Block     time.Duration
	ClaimIdle time.Duration
	MaxLen    int64
	ReadCount int64
}

// RedisDispatcher queues jobs on a Redis stream so replies survive a restart
// and can be spread across several API instances. Each job is attempted once:
// the stream entry is acknowledged and deleted whatever the handler does,
// because the responder already writes a fallback reply on failure. Entries
// left pending by a consumer that died mid-job are reclaimed and handed out
// again with Redelivered set, so the handler can skip jobs already answered.
type RedisDispatcher struct {
	client   *redis.Client
	handler  HandlerFunc
	logger   *slog.Logger
	stream   string
	group    string
	consumer string
	workers  int
	block    time.Duration
	claim    time.Duration
	maxLen   int64
	count    int64

	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	closed  bool
	started bool
}

// NewRedisDispatcher validates cfg and builds a dispatcher. Call Start to consume.
func NewRedisDispatcher(client *redis.Client, handler HandlerFunc, cfg RedisDispatcherConfig, logger *slog.Logger) (*RedisDispatcher, error) {
	if client == nil {
		return nil, errors.New("redis client required")
	}
	stream := strings.TrimSpace(cfg.Stream)
	if stream == "" {
		return nil, errors.New("dispatcher stream required")
	}
	group := strings.TrimSpace(cfg.Group)
	if group == "" {
		group = "responders"
	}
	consumer := strings.TrimSpace(cfg.Consumer)
	if consumer == "" {
		consumer = uuid.NewString()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.Block <= 0 {
		cfg.Block = 5 * time.Second
	}
	if cfg.ClaimIdle <= 0 {
		cfg.ClaimIdle = 5 * time.Minute
	}
	if cfg.MaxLen <= 0 {
		cfg.MaxLen = 10000
	}
	if cfg.ReadCount <= 0 {
		cfg.ReadCount = 10
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &RedisDispatcher{
		client:   client,
		handler:  handler,
		logger:   logger,
		stream:   stream,
		group:    group,
		consumer: consumer,
		workers:  cfg.Workers,
		block:    cfg.Block,
		claim:    cfg.ClaimIdle,
		maxLen:   cfg.MaxLen,
		count:    cfg.ReadCount,
	}, nil
}

// Start creates the consumer group if needed and launches the consumers.
func (d *RedisDispatcher) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrDispatcherClosed
	}
	if d.started {
		return nil
	}

	err := d.client.XGroupCreateMkStream(ctx, d.stream, d.group, "$").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create consumer group: %w", err)
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel
	d.started = true

	d.wg.Add(d.workers)
	for i := 0; i < d.workers; i++ {
		go d.consumeLoop(loopCtx, fmt.Sprintf("%s-%d", d.consumer, i))
	}
	return nil
}

// Dispatch appends job to the stream.
func (d *RedisDispatcher) Dispatch(ctx context.Context, job Job) error {
	d.mu.Lock()
	closed := d.closed
	d.mu.Unlock()
	if closed {
		return ErrDispatcherClosed
	}
	if job.RequestID == "" {
		job.RequestID = logging.RequestIDFromContext(ctx)
	}

	err := d.client.XAdd(ctx, &redis.XAddArgs{
		Stream: d.stream,
		MaxLen: d.maxLen,
		Approx: true,
		Values: map[string]any{
			"conversation_id": job.ConversationID,
			"user_message":    job.UserMessage,
			"request_id":      job.RequestID,
			"queued_at":       time.Now().UTC().Format(time.RFC3339Nano),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("enqueue reply job: %w", err)
	}
	return nil
}

// Shutdown stops the consumers and waits for in-flight jobs.
func (d *RedisDispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	if d.cancel != nil {
		d.cancel()
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

func (d *RedisDispatcher) consumeLoop(ctx context.Context, consumer string) {
	defer d.wg.Done()

	for {
		if ctx.Err() != nil {
			return
		}

		if msgs, err := d.claimPending(ctx, consumer); err == nil {
			for _, msg := range msgs {
				d.handleMessage(ctx, msg, true)
			}
		}
		d.sampleDepth(ctx)

		streams, err := d.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    d.group,
			Consumer: consumer,
			Streams:  []string{d.stream, ">"},
			Count:    d.count,
			Block:    d.block,
		}).Result()
		if err != nil {
			if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
				d.logger.Warn("read reply stream", "consumer", consumer, "error", err)
				sleepCtx(ctx, time.Second)
			}
			continue
		}
		for _, stream := range streams {
			for _, msg := range stream.Messages {
				d.handleMessage(ctx, msg, false)
			}
		}
	}
}

// sampleDepth publishes the stream length. Handled entries are deleted, so
// the length counts jobs waiting or in flight across every instance.
func (d *RedisDispatcher) sampleDepth(ctx context.Context) {
	n, err := d.client.XLen(ctx, d.stream).Result()
	if err != nil {
		return
	}
	metrics.DispatchQueueDepth.Set(float64(n))
}

// claimPending takes over entries left unacknowledged by a consumer that died mid-job.
func (d *RedisDispatcher) claimPending(ctx context.Context, consumer string) ([]redis.XMessage, error) {
	msgs, _, err := d.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   d.stream,
		Group:    d.group,
		Consumer: consumer,
		MinIdle:  d.claim,
		Start:    "0-0",
		Count:    d.count,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	return msgs, err
}

func (d *RedisDispatcher) handleMessage(ctx context.Context, msg redis.XMessage, redelivered bool) {
	defer d.ackAndDel(msg.ID)

	job := Job{
		ConversationID: stringValue(msg.Values["conversation_id"]),
		UserMessage:    stringValue(msg.Values["user_message"]),
		RequestID:      stringValue(msg.Values["request_id"]),
		QueuedAt:       queuedAt(msg),
		Redelivered:    redelivered,
	}
	if job.ConversationID == "" {
		d.logger.Warn("dropping malformed reply job", "messageId", msg.ID)
		return
	}

	defer func() {
		if rec := recover(); rec != nil {
			d.logger.Error("reply job panicked", "conversationId", job.ConversationID, "panic", rec)
		}
	}()
	// Jobs run to completion even while the dispatcher is shutting down.
	d.handler(jobContext(d.logger, job), job)
}

func (d *RedisDispatcher) ackAndDel(msgID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pipe := d.client.TxPipeline()
	pipe.XAck(ctx, d.stream, d.group, msgID)
	pipe.XDel(ctx, d.stream, msgID)
	if _, err := pipe.Exec(ctx); err != nil {
		d.logger.Warn("ack reply job", "messageId", msgID, "error", err)
	}
}

// queuedAt reads the enqueue time stored with the entry, falling back to the
// millisecond timestamp in the entry id.
func queuedAt(msg redis.XMessage) time.Time {
	if t, err := time.Parse(time.RFC3339Nano, stringValue(msg.Values["queued_at"])); err == nil {
		return t
	}
	ms, _, _ := strings.Cut(msg.ID, "-")
	if n, err := strconv.ParseInt(ms, 10, 64); err == nil {
		return time.UnixMilli(n).UTC()
	}
	return time.Time{}
}

func stringValue(v any) string {
	s, _ := v.(string)
	return s
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
