package counsel

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/heartwise/backend/internal/logging"
	"github.com/heartwise/backend/internal/metrics"
)

// HandlerFunc processes one reply job.
type HandlerFunc func(ctx context.Context, job Job)

// Dispatcher hands reply jobs to background workers so the request that
// produced them can return immediately.
type Dispatcher interface {
	Dispatch(ctx context.Context, job Job) error
	Shutdown(ctx context.Context) error
}

// ErrDispatcherClosed is returned by Dispatch after Shutdown.
var ErrDispatcherClosed = errors.New("reply dispatcher closed")

// WorkerPoolConfig controls the concurrency of a WorkerPool.
type WorkerPoolConfig struct {
	QueueSize int
	Workers   int
	// Abandon receives jobs still queued when Shutdown gives up waiting.
	Abandon HandlerFunc
}

// WorkerPool runs jobs on a fixed set of in-process goroutines fed by a
// buffered channel. Jobs still queued at shutdown are drained before workers
// exit; if the shutdown deadline passes first they go to the Abandon handler.
type WorkerPool struct {
	handler HandlerFunc
	abandon HandlerFunc
	logger  *slog.Logger

	jobs   chan Job
	closed chan struct{}
	wg     sync.WaitGroup
	mu     sync.RWMutex
	once   sync.Once
}

// NewWorkerPool starts cfg.Workers goroutines that pass jobs to handler.
func NewWorkerPool(handler HandlerFunc, cfg WorkerPoolConfig, logger *slog.Logger) *WorkerPool {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 16
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if logger == nil {
		logger = slog.Default()
	}

	p := &WorkerPool{
		handler: handler,
		abandon: cfg.Abandon,
		logger:  logger,
		jobs:    make(chan Job, cfg.QueueSize),
		closed:  make(chan struct{}),
	}

	p.wg.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		go p.worker()
	}

	return p
}

// Dispatch queues job, blocking while the queue is full.
func (p *WorkerPool) Dispatch(ctx context.Context, job Job) error {
	if job.RequestID == "" {
		job.RequestID = logging.RequestIDFromContext(ctx)
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-p.closed:
		return ErrDispatcherClosed
	default:
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-p.closed:
		return ErrDispatcherClosed
	case p.jobs <- job:
		metrics.DispatchQueueDepth.Inc()
		return nil
	}
}

// Shutdown stops accepting jobs and waits for queued ones to finish.
func (p *WorkerPool) Shutdown(ctx context.Context) error {
	p.once.Do(func() {
		close(p.closed)
		// Wait out in-flight Dispatch calls before closing the channel they send on.
		p.mu.Lock()
		close(p.jobs)
		p.mu.Unlock()
	})

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		p.abandonQueued()
		return ctx.Err()
	case <-done:
		return nil
	}
}

// abandonQueued takes the jobs no worker has picked up yet. The jobs channel
// is closed by then, so the loop ends once the queue is empty.
func (p *WorkerPool) abandonQueued() {
	for job := range p.jobs {
		metrics.DispatchQueueDepth.Dec()
		if p.abandon == nil {
			p.logger.Error("reply job dropped at shutdown", "conversationId", job.ConversationID)
			continue
		}
		p.abandon(jobContext(p.logger, job), job)
	}
}

func (p *WorkerPool) worker() {
	defer p.wg.Done()

	for job := range p.jobs {
		metrics.DispatchQueueDepth.Dec()
		p.run(job)
	}
}

func (p *WorkerPool) run(job Job) {
	defer func() {
		if rec := recover(); rec != nil {
			p.logger.Error("reply job panicked", "conversationId", job.ConversationID, "panic", rec)
		}
	}()
	p.handler(jobContext(p.logger, job), job)
}

// jobContext rebuilds the logging context of the request that queued job.
func jobContext(logger *slog.Logger, job Job) context.Context {
	ctx := context.Background()
	if job.RequestID != "" {
		logger = logger.With(slog.String("request_id", job.RequestID))
		ctx = logging.WithRequestID(ctx, job.RequestID)
	}
	return logging.WithLogger(ctx, logger)
}
