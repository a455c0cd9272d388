// Package worker runs the scheduler: it promotes due jobs into a ready
// queue, executes them on a fixed pool of goroutines and rescans orders
// whose payment retry is due.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cuongbtq/schedulex/internal/domain"
	"github.com/cuongbtq/schedulex/internal/events"
	"github.com/cuongbtq/schedulex/internal/storage"
)

// ErrAlreadyStarted is returned when Start is called twice
var ErrAlreadyStarted = errors.New("worker already started")

// PaymentProcessor is the payment workflow as seen by the scheduler
type PaymentProcessor interface {
	PaymentRetrier
	ProcessDueRetries(ctx context.Context, limit int) (int, error)
}

// RecurrenceScheduler creates the next run of a completed recurring job
type RecurrenceScheduler interface {
	NextOccurrence(ctx context.Context, completed *domain.Job) (*domain.Job, error)
}

// Config holds worker configuration
type Config struct {
	Logger    *slog.Logger
	Store     storage.JobStore
	Jobs      RecurrenceScheduler
	Payments  PaymentProcessor
	Publisher events.Publisher

	// Executor runs jobs that are not payment retries. Defaults to a DelayExecutor.
	Executor Executor

	Concurrency          int
	PollInterval         time.Duration
	PaymentRetryInterval time.Duration
	PollBatchSize        int
	GenericJobDuration   time.Duration
	JobTimeout           time.Duration
	StaleJobThreshold    time.Duration
}

// Worker represents the scheduler process
type Worker struct {
	logger    *slog.Logger
	store     storage.JobStore
	jobs      RecurrenceScheduler
	payments  PaymentProcessor
	publisher events.Publisher
	queue     *ReadyQueue

	paymentExecutor Executor
	defaultExecutor Executor

	concurrency          int
	pollInterval         time.Duration
	paymentRetryInterval time.Duration
	pollBatchSize        int
	jobTimeout           time.Duration
	staleJobThreshold    time.Duration
	nowFunc              func() time.Time

	startOnce sync.Once
	stopOnce  sync.Once
	stopChan  chan struct{}
	done      chan struct{}
}

// NewWorker creates a new worker instance
func NewWorker(cfg *Config) *Worker {
	w := &Worker{
		logger:               cfg.Logger,
		store:                cfg.Store,
		jobs:                 cfg.Jobs,
		payments:             cfg.Payments,
		publisher:            cfg.Publisher,
		queue:                NewReadyQueue(),
		defaultExecutor:      cfg.Executor,
		concurrency:          cfg.Concurrency,
		pollInterval:         cfg.PollInterval,
		paymentRetryInterval: cfg.PaymentRetryInterval,
		pollBatchSize:        cfg.PollBatchSize,
		jobTimeout:           cfg.JobTimeout,
		staleJobThreshold:    cfg.StaleJobThreshold,
		nowFunc:              time.Now,
		stopChan:             make(chan struct{}),
		done:                 make(chan struct{}),
	}

	if w.concurrency <= 0 {
		w.concurrency = 10
	}
	if w.pollInterval <= 0 {
		w.pollInterval = 5 * time.Second
	}
	if w.paymentRetryInterval <= 0 {
		w.paymentRetryInterval = 30 * time.Second
	}
	if w.pollBatchSize <= 0 {
		w.pollBatchSize = 500
	}
	if w.publisher == nil {
		w.publisher = events.Nop{}
	}
	if w.defaultExecutor == nil {
		duration := cfg.GenericJobDuration
		if duration <= 0 {
			duration = 2 * time.Second
		}
		w.defaultExecutor = DelayExecutor{Duration: duration}
	}
	if w.payments != nil {
		w.paymentExecutor = NewPaymentRetryExecutor(w.payments, w.logger)
	}

	return w
}

// Queue exposes the ready queue
func (w *Worker) Queue() *ReadyQueue {
	return w.queue
}

// Start runs the poll loop, the payment scan loop, the stale job reaper and
// the worker pool until ctx is canceled or Stop is called. A worker can be
// started once.
func (w *Worker) Start(ctx context.Context) error {
	started := false
	w.startOnce.Do(func() { started = true })
	if !started {
		return ErrAlreadyStarted
	}
	defer close(w.done)

	w.logger.Info("Starting worker",
		slog.Int("concurrency", w.concurrency),
		slog.Duration("poll_interval", w.pollInterval),
		slog.Duration("payment_retry_interval", w.paymentRetryInterval),
		slog.Duration("job_timeout", w.jobTimeout),
	)

	if w.staleJobThreshold > 0 {
		w.resetStaleJobs(ctx)
	}

	g, gctx := errgroup.WithContext(ctx)

	// Close the queue on shutdown so blocked workers return
	g.Go(func() error {
		select {
		case <-gctx.Done():
		case <-w.stopChan:
		}
		w.queue.Close()
		return nil
	})

	g.Go(func() error {
		w.pollLoop(gctx)
		return nil
	})

	if w.payments != nil {
		g.Go(func() error {
			w.paymentScanLoop(gctx)
			return nil
		})
	}

	if w.staleJobThreshold > 0 {
		g.Go(func() error {
			w.reaperLoop(gctx)
			return nil
		})
	}

	w.spawnWorkerPool(gctx, g)

	if err := g.Wait(); err != nil {
		return fmt.Errorf("worker stopped with error: %w", err)
	}

	w.logger.Info("Worker stopped")
	return nil
}

// Stop signals every loop to finish and waits for in-flight jobs until ctx expires
func (w *Worker) Stop(ctx context.Context) error {
	w.logger.Info("Stopping worker...")
	w.stopOnce.Do(func() { close(w.stopChan) })

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("worker did not stop in time: %w", ctx.Err())
	}
}
