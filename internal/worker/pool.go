package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// spawnWorkerPool spawns N worker goroutines based on concurrency configuration
func (w *Worker) spawnWorkerPool(ctx context.Context, g *errgroup.Group) {
	w.logger.Info("Spawning worker pool",
		slog.Int("concurrency", w.concurrency),
	)

	for i := 0; i < w.concurrency; i++ {
		workerNum := i
		g.Go(func() error {
			w.workerLoop(ctx, workerNum)
			return nil
		})
	}

	w.logger.Info("Worker pool spawned successfully",
		slog.Int("worker_count", w.concurrency),
	)
}

// workerLoop pops ready jobs and processes them one at a time. Popping is
// the only place a worker waits.
func (w *Worker) workerLoop(ctx context.Context, workerNum int) {
	workerName := fmt.Sprintf("worker-%d", workerNum)
	w.logger.Debug("Worker goroutine started",
		slog.String("worker_name", workerName),
	)

	for {
		job, err := w.queue.Pop(ctx)
		if err != nil {
			if errors.Is(err, ErrQueueClosed) {
				w.logger.Debug("Worker goroutine stopping - queue closed",
					slog.String("worker_name", workerName),
				)
			} else {
				w.logger.Debug("Worker goroutine stopping - context canceled",
					slog.String("worker_name", workerName),
				)
			}
			return
		}

		w.logger.Debug("Worker received job",
			slog.String("worker_name", workerName),
			slog.String("job_id", job.JobID),
			slog.Int("priority", job.Priority),
		)

		w.processJob(ctx, job.JobID)
	}
}
