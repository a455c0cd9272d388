package worker

import (
	"context"
	"log/slog"
	"time"
)

// pollLoop pushes due PENDING jobs into the ready queue every poll interval
func (w *Worker) pollLoop(ctx context.Context) {
	w.logger.Info("Poller started", slog.Duration("interval", w.pollInterval))

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	w.pollDueJobs(ctx)
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Poller stopped - context canceled")
			return
		case <-w.stopChan:
			w.logger.Info("Poller stopped")
			return
		case <-ticker.C:
			w.pollDueJobs(ctx)
		}
	}
}

// pollDueJobs returns how many jobs were newly queued
func (w *Worker) pollDueJobs(ctx context.Context) int {
	jobs, err := w.store.ListDueJobs(ctx, w.nowFunc(), w.pollBatchSize)
	if err != nil {
		if ctx.Err() == nil {
			w.logger.Error("Failed to poll due jobs", slog.Any("error", err))
		}
		return 0
	}

	pushed := 0
	for _, job := range jobs {
		if w.queue.Push(job) {
			pushed++
		}
	}

	if pushed > 0 {
		w.logger.Debug("Due jobs queued",
			slog.Int("queued", pushed),
			slog.Int("due", len(jobs)),
			slog.Int("queue_length", w.queue.Len()),
		)
	}
	return pushed
}

// paymentScanLoop re-attempts orders whose payment retry is due. It backs up
// the payment retry jobs.
func (w *Worker) paymentScanLoop(ctx context.Context) {
	w.logger.Info("Payment retry scan started", slog.Duration("interval", w.paymentRetryInterval))

	ticker := time.NewTicker(w.paymentRetryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Payment retry scan stopped - context canceled")
			return
		case <-w.stopChan:
			w.logger.Info("Payment retry scan stopped")
			return
		case <-ticker.C:
			w.scanPayments(ctx)
		}
	}
}

func (w *Worker) scanPayments(ctx context.Context) {
	attempted, err := w.payments.ProcessDueRetries(ctx, w.pollBatchSize)
	if err != nil {
		if ctx.Err() == nil {
			w.logger.Error("Payment retry scan failed", slog.Any("error", err))
		}
		return
	}
	if attempted > 0 {
		w.logger.Info("Payment retries attempted", slog.Int("count", attempted))
	}
}

// reaperLoop periodically returns jobs stuck in RUNNING to PENDING
func (w *Worker) reaperLoop(ctx context.Context) {
	ticker := time.NewTicker(w.staleJobThreshold)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopChan:
			return
		case <-ticker.C:
			w.resetStaleJobs(ctx)
		}
	}
}

func (w *Worker) resetStaleJobs(ctx context.Context) {
	now := w.nowFunc()
	cutoff := now.Add(-w.staleJobThreshold)

	n, err := w.store.ResetStaleJobs(ctx, cutoff, now)
	if err != nil {
		if ctx.Err() == nil {
			w.logger.Error("Failed to reset stale jobs", slog.Any("error", err))
		}
		return
	}
	if n > 0 {
		w.logger.Warn("Stale running jobs reset to PENDING",
			slog.Int64("count", n),
			slog.Time("cutoff", cutoff),
		)
	}
}
