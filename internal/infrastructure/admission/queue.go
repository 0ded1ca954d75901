package admission

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/formulalab/formula-gateway/internal/infrastructure/metrics"
)

var (
	// ErrQueueFull is returned when every slot is busy and the wait queue is at capacity
	ErrQueueFull = errors.New("inference queue is full")

	// ErrQueueTimeout is returned when a caller waited longer than the queue timeout
	ErrQueueTimeout = errors.New("timed out waiting for an inference slot")
)

// Config bounds the queue.
// MaxConcurrent 0 disables limiting. MaxQueue 0 means callers never wait.
type Config struct {
	MaxConcurrent int
	MaxQueue      int
	Timeout       time.Duration
}

// Queue admits inference calls with bounded concurrency and a bounded wait queue
type Queue struct {
	maxConcurrent int64
	maxQueue      int64
	timeout       time.Duration

	sem *semaphore.Weighted

	active    atomic.Int64
	waiting   atomic.Int64
	processed atomic.Int64
	rejected  atomic.Int64
	timedOut  atomic.Int64

	logger *zap.Logger
}

// Stats is a point-in-time view of the queue
type Stats struct {
	Active        int64 `json:"active"`
	Waiting       int64 `json:"waiting"`
	Processed     int64 `json:"processed"`
	Rejected      int64 `json:"rejected"`
	TimedOut      int64 `json:"timed_out"`
	MaxConcurrent int64 `json:"max_concurrent"`
	MaxQueue      int64 `json:"max_queue"`
}

// NewQueue creates a queue from cfg
func NewQueue(cfg Config, logger *zap.Logger) *Queue {
	if logger == nil {
		logger = zap.NewNop()
	}

	q := &Queue{
		maxConcurrent: int64(cfg.MaxConcurrent),
		maxQueue:      int64(cfg.MaxQueue),
		timeout:       cfg.Timeout,
		logger:        logger,
	}

	if cfg.MaxConcurrent > 0 {
		q.sem = semaphore.NewWeighted(int64(cfg.MaxConcurrent))
		logger.Info("Inference queue initialized",
			zap.Int("max_concurrent", cfg.MaxConcurrent),
			zap.Int("max_queue", cfg.MaxQueue),
			zap.Duration("timeout", cfg.Timeout))
	} else {
		logger.Warn("Inference queue disabled, concurrency is unbounded")
	}

	return q
}

// Acquire blocks until a slot is free, the queue rejects the caller or ctx ends.
// The returned release func must be called exactly once.
func (q *Queue) Acquire(ctx context.Context) (func(), error) {
	if q.sem == nil {
		q.enter()
		return q.release(false), nil
	}

	if q.sem.TryAcquire(1) {
		q.enter()
		return q.release(true), nil
	}

	// reserve a waiting slot without racing other callers past the limit
	for {
		waiting := q.waiting.Load()
		if waiting >= q.maxQueue {
			q.rejected.Add(1)
			metrics.QueueRejected.WithLabelValues("full").Inc()
			q.logger.Warn("Inference rejected: queue full",
				zap.Int64("waiting", waiting),
				zap.Int64("max_queue", q.maxQueue))
			return nil, ErrQueueFull
		}
		if q.waiting.CompareAndSwap(waiting, waiting+1) {
			break
		}
	}
	metrics.QueueWaiting.Inc()
	defer func() {
		q.waiting.Add(-1)
		metrics.QueueWaiting.Dec()
	}()

	waitCtx := ctx
	if q.timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, q.timeout)
		defer cancel()
	}

	start := time.Now()
	if err := q.sem.Acquire(waitCtx, 1); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		q.timedOut.Add(1)
		metrics.QueueRejected.WithLabelValues("timeout").Inc()
		q.logger.Warn("Inference timed out in queue",
			zap.Duration("wait_time", time.Since(start)),
			zap.Duration("timeout", q.timeout))
		return nil, ErrQueueTimeout
	}

	q.logger.Debug("Inference dequeued", zap.Duration("wait_time", time.Since(start)))
	q.enter()
	return q.release(true), nil
}

// Stats returns current counters
func (q *Queue) Stats() Stats {
	return Stats{
		Active:        q.active.Load(),
		Waiting:       q.waiting.Load(),
		Processed:     q.processed.Load(),
		Rejected:      q.rejected.Load(),
		TimedOut:      q.timedOut.Load(),
		MaxConcurrent: q.maxConcurrent,
		MaxQueue:      q.maxQueue,
	}
}

// IsEnabled reports whether concurrency limiting is active
func (q *Queue) IsEnabled() bool {
	return q.sem != nil
}

func (q *Queue) enter() {
	q.active.Add(1)
	metrics.QueueActive.Inc()
}

func (q *Queue) release(holdsSlot bool) func() {
	var once atomic.Bool
	return func() {
		if !once.CompareAndSwap(false, true) {
			return
		}
		q.active.Add(-1)
		q.processed.Add(1)
		metrics.QueueActive.Dec()
		if holdsSlot {
			q.sem.Release(1)
		}
	}
}
