package counsel

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	dto "github.com/prometheus/client_model/go"
	"github.com/redis/go-redis/v9"

	"github.com/heartwise/backend/internal/metrics"
)

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestRedisDispatcherDeliversAndAcks(t *testing.T) {
	client := newTestRedis(t)
	got := make(chan Job, 1)
	d, err := NewRedisDispatcher(client, func(ctx context.Context, job Job) {
		got <- job
	}, RedisDispatcherConfig{Stream: "test:replies", Group: "g", Consumer: "c", Block: 50 * time.Millisecond}, discardLogger())
	if err != nil {
		t.Fatalf("new dispatcher: %v", err)
	}

	ctx := context.Background()
	if err := d.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = d.Shutdown(shutdownCtx)
	}()

	if err := d.Dispatch(ctx, Job{ConversationID: "conv-1", UserMessage: "hello", RequestID: "req-9"}); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	select {
	case job := <-got:
		if job.ConversationID != "conv-1" || job.UserMessage != "hello" || job.RequestID != "req-9" {
			t.Fatalf("unexpected job %+v", job)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for job")
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		n, err := client.XLen(ctx, "test:replies").Result()
		if err != nil {
			t.Fatalf("xlen: %v", err)
		}
		if n == 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("expected stream entry to be deleted, len=%d", n)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestRedisDispatcherStartIsIdempotent(t *testing.T) {
	client := newTestRedis(t)
	d, err := NewRedisDispatcher(client, func(context.Context, Job) {}, RedisDispatcherConfig{Stream: "s", Block: 20 * time.Millisecond}, discardLogger())
	if err != nil {
		t.Fatalf("new dispatcher: %v", err)
	}
	ctx := context.Background()
	if err := d.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := d.Start(ctx); err != nil {
		t.Fatalf("second start: %v", err)
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := d.Shutdown(shutdownCtx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if err := d.Dispatch(ctx, Job{ConversationID: "c"}); !errors.Is(err, ErrDispatcherClosed) {
		t.Fatalf("expected ErrDispatcherClosed, got %v", err)
	}
}

func TestNewRedisDispatcherValidation(t *testing.T) {
	if _, err := NewRedisDispatcher(nil, nil, RedisDispatcherConfig{Stream: "s"}, nil); err == nil {
		t.Fatal("expected error for nil client")
	}
	client := newTestRedis(t)
	if _, err := NewRedisDispatcher(client, nil, RedisDispatcherConfig{}, nil); err == nil {
		t.Fatal("expected error for empty stream")
	}
}

func TestRedisDispatcherReclaimsStaleEntries(t *testing.T) {
	client := newTestRedis(t)
	ctx := context.Background()

	if err := client.XGroupCreateMkStream(ctx, "test:replies", "g", "$").Err(); err != nil {
		t.Fatalf("create group: %v", err)
	}
	queued := time.Date(2024, 2, 14, 9, 30, 0, 0, time.UTC)
	if err := client.XAdd(ctx, &redis.XAddArgs{
		Stream: "test:replies",
		Values: map[string]any{
			"conversation_id": "conv-7",
			"user_message":    "are you there?",
			"queued_at":       queued.Format(time.RFC3339Nano),
		},
	}).Err(); err != nil {
		t.Fatalf("xadd: %v", err)
	}
	// A consumer that reads the entry and dies before acknowledging it.
	if err := client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    "g",
		Consumer: "crashed",
		Streams:  []string{"test:replies", ">"},
		Count:    1,
	}).Err(); err != nil {
		t.Fatalf("xreadgroup: %v", err)
	}
	time.Sleep(30 * time.Millisecond)

	got := make(chan Job, 2)
	d, err := NewRedisDispatcher(client, func(ctx context.Context, job Job) {
		got <- job
	}, RedisDispatcherConfig{Stream: "test:replies", Group: "g", Consumer: "c", Block: 50 * time.Millisecond, ClaimIdle: 10 * time.Millisecond}, discardLogger())
	if err != nil {
		t.Fatalf("new dispatcher: %v", err)
	}
	if err := d.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = d.Shutdown(shutdownCtx)
	}()

	select {
	case job := <-got:
		if job.ConversationID != "conv-7" || !job.Redelivered || !job.QueuedAt.Equal(queued) {
			t.Fatalf("unexpected reclaimed job %+v", job)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for reclaimed job")
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		pending, err := client.XPending(ctx, "test:replies", "g").Result()
		if err != nil {
			t.Fatalf("xpending: %v", err)
		}
		if pending.Count == 0 && queueDepth(t) == 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("expected reclaimed entry acked and depth 0, pending=%d depth=%v", pending.Count, queueDepth(t))
		}
		time.Sleep(20 * time.Millisecond)
	}

	select {
	case job := <-got:
		t.Fatalf("job handled twice: %+v", job)
	default:
	}
}

func TestQueuedAtFallsBackToEntryID(t *testing.T) {
	at := queuedAt(redis.XMessage{ID: "1707903000000-0", Values: map[string]any{}})
	if !at.Equal(time.UnixMilli(1707903000000)) {
		t.Fatalf("unexpected time %v", at)
	}
	if !queuedAt(redis.XMessage{ID: "bogus"}).IsZero() {
		t.Fatal("expected zero time for malformed id")
	}
}

func queueDepth(t *testing.T) float64 {
	t.Helper()
	var m dto.Metric
	if err := metrics.DispatchQueueDepth.Write(&m); err != nil {
		t.Fatalf("read gauge: %v", err)
	}
	return m.GetGauge().GetValue()
}
