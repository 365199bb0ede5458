// Package worker defines worker contracts for asynchronous XP awarding.
package worker

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/okian/ascent/internal/domain/model"
	"github.com/okian/ascent/pkg/logger"
	"github.com/okian/ascent/pkg/metrics"
)

// Default worker configuration constants.
const (
	defaultWorkerMultiplier = 20 // multiplier for runtime.NumCPU()
	metricsUpdateInterval   = 5 * time.Second
	workerShutdownTimeout   = 5 * time.Second
	poolShutdownTimeout     = 30 * time.Second
)

// Event abstracts what workers read off the queue.
// Using the model.ActivityEvent type for consistency.
type Event = model.ActivityEvent

// Awarder applies an activity event to a user's progression state.
type Awarder interface {
	AwardXP(ctx context.Context, ev model.ActivityEvent) (*model.XPAward, error)
}

// Queue defines how workers receive events.
type Queue interface {
	Dequeue(ctx context.Context) <-chan Event
}

// Worker processes events and applies XP awards using the provided interfaces.
type Worker interface {
	// Run starts the worker loop until ctx is canceled.
	Run(ctx context.Context)

	// Shutdown gracefully stops the worker.
	// It will process any remaining events before stopping.
	Shutdown(ctx context.Context) error
}

// InMemoryWorker implements Worker for processing events.
type InMemoryWorker struct {
	queue   Queue
	awarder Awarder
	name    string

	// Shutdown control
	shutdown     chan struct{}
	shutdownOnce sync.Once
	done         chan struct{}

	// Logging
	logger logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(queue Queue, awarder Awarder, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:    queue,
		awarder:  awarder,
		name:     "worker", // default name
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
		logger:   logger.Default().Named("worker"), // will be updated by options
	}

	for _, opt := range opts {
		opt(w)
	}

	// Set up logger with worker name if not already set
	if w.name != "worker" {
		w.logger = w.logger.Named(w.name)
	}

	return w
}

// Run starts the worker loop.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer func() {
		close(w.done)
	}()

	eventChan := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case event, ok := <-eventChan:
			if !ok {
				// Channel closed, worker should stop
				return
			}

			if err := w.processEvent(ctx, event); err != nil {
				w.logger.Error(ctx, "error processing event", logger.Error(err))
			}
		}
	}
}

// signalShutdown closes the shutdown channel exactly once.
func (w *InMemoryWorker) signalShutdown() {
	w.shutdownOnce.Do(func() { close(w.shutdown) })
}

// Shutdown gracefully stops the worker.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	w.signalShutdown()

	// Wait for worker to finish or context to timeout
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// processEvent handles a single event.
func (w *InMemoryWorker) processEvent(ctx context.Context, event Event) error {
	// Track overall processing latency
	start := time.Now()
	defer func() {
		latency := time.Since(start).Milliseconds()
		metrics.RecordWorkerProcessingLatency(float64(latency))
	}()

	// Track award latency separately from queue overhead
	awardStart := time.Now()
	award, err := w.awarder.AwardXP(ctx, event)
	awardLatency := time.Since(awardStart).Milliseconds()

	metrics.RecordAwardLatency(float64(awardLatency))

	if err != nil {
		metrics.RecordAwardError()
		metrics.RecordWorkerError()
		metrics.RecordErrorByComponent("worker", "award_error")
		metrics.RecordErrorByType("award_error", "high")
		w.logger.Error(ctx, "award failed for event",
			logger.String("eventID", event.EventID),
			logger.Error(err),
		)
		return fmt.Errorf("failed to award event %s: %w", event.EventID, err)
	}

	metrics.RecordAwardProcessed()

	w.logger.Debug(ctx, "event awarded",
		logger.String("eventID", event.EventID),
		logger.String("userID", event.UserID),
		logger.String("action", event.Action),
		logger.Int64("finalXP", award.FinalXP),
	)

	return nil
}

// Pool manages multiple workers.
type Pool struct {
	workers []*InMemoryWorker
	queue   Queue
	awarder Awarder

	// Shutdown control
	shutdown     chan struct{}
	shutdownOnce sync.Once

	// Logging
	logger logger.Logger
}

// NewPool creates a new worker pool.
func NewPool(workerCount int, queue Queue, awarder Awarder) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU() * defaultWorkerMultiplier
	}

	pool := &Pool{
		workers:  make([]*InMemoryWorker, workerCount),
		queue:    queue,
		awarder:  awarder,
		shutdown: make(chan struct{}),
		logger:   logger.Default().Named("worker-pool"),
	}

	for i := 0; i < workerCount; i++ {
		pool.workers[i] = NewInMemoryWorker(
			queue,
			awarder,
			WithName("worker-"+strconv.Itoa(i)),
		)
	}

	metrics.UpdateWorkerCount(workerCount)

	return pool
}

// Start starts all workers in the pool.
func (p *Pool) Start(ctx context.Context) {
	for _, worker := range p.workers {
		go worker.Run(ctx)
	}

	// Start metrics updater
	go p.startMetricsUpdater(ctx)
}

// startMetricsUpdater starts a background goroutine that refreshes the
// worker gauge until the pool shuts down.
func (p *Pool) startMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(metricsUpdateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.shutdown:
			return
		case <-ticker.C:
			metrics.UpdateWorkerCount(len(p.workers))
		}
	}
}

// signalShutdown closes the pool-level shutdown channel exactly once, so
// Stop and Shutdown can both run.
func (p *Pool) signalShutdown() {
	p.shutdownOnce.Do(func() { close(p.shutdown) })
}

// Stop gracefully stops all workers.
func (p *Pool) Stop() {
	// Signal shutdown to all workers
	p.signalShutdown()
	for _, worker := range p.workers {
		worker.signalShutdown()
	}

	// Wait for all workers to finish
	for _, worker := range p.workers {
		select {
		case <-worker.done:
			// Worker finished
		case <-time.After(workerShutdownTimeout):
			// Worker timeout
		}
	}
}

// Shutdown gracefully shuts down the entire worker pool.
func (p *Pool) Shutdown(ctx context.Context) error {
	// First close the queue to stop new events
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	// Signal shutdown to all workers
	p.signalShutdown()
	for _, worker := range p.workers {
		worker.signalShutdown()
	}

	// Wait for all workers to finish or context to timeout
	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	for i, worker := range p.workers {
		select {
		case <-worker.done:
		case <-shutdownCtx.Done():
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
		}
	}

	return nil
}
