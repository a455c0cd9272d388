package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/schedulex/internal/domain"
	"github.com/cuongbtq/schedulex/internal/events"
	"github.com/cuongbtq/schedulex/internal/job"
	"github.com/cuongbtq/schedulex/internal/payment"
	"github.com/cuongbtq/schedulex/internal/storage"
	"github.com/cuongbtq/schedulex/internal/storage/memory"
)

const testPollInterval = 20 * time.Millisecond

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startWorker runs w in the background and stops it when the test ends
func startWorker(t *testing.T, w *Worker) {
	t.Helper()

	errCh := make(chan error, 1)
	go func() { errCh <- w.Start(context.Background()) }()

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		require.NoError(t, w.Stop(ctx))
		require.NoError(t, <-errCh)
	})
}

func createJob(t *testing.T, svc *job.Service, j *domain.Job) *domain.Job {
	t.Helper()
	created, err := svc.Schedule(context.Background(), j)
	require.NoError(t, err)
	return created
}

func hasStatus(store storage.JobStore, id string, want domain.JobStatus) bool {
	j, err := store.GetJob(context.Background(), id)
	return err == nil && j.Status == want
}

type fakePayments struct {
	mu    sync.Mutex
	calls []string
	err   error
	scans atomic.Int32
}

func (f *fakePayments) RetryPayment(_ context.Context, orderID string) (*domain.Order, error) {
	f.mu.Lock()
	f.calls = append(f.calls, orderID)
	err := f.err
	f.mu.Unlock()

	if err != nil {
		return nil, err
	}
	return &domain.Order{OrderID: orderID, PaymentStatus: domain.PaymentStatusSuccess}, nil
}

func (f *fakePayments) ProcessDueRetries(context.Context, int) (int, error) {
	f.scans.Add(1)
	return 0, nil
}

func (f *fakePayments) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func TestWorker_DueJobRunsToCompletion(t *testing.T) {
	store := memory.New()
	svc := job.NewService(store, discardLogger(), 3)
	recorder := &events.Recorder{}

	var statusDuringRun atomic.Value
	w := NewWorker(&Config{
		Logger:       discardLogger(),
		Store:        store,
		Jobs:         svc,
		Publisher:    recorder,
		Concurrency:  2,
		PollInterval: testPollInterval,
		Executor: ExecutorFunc(func(ctx context.Context, j *domain.Job) error {
			current, err := store.GetJob(ctx, j.JobID)
			if err != nil {
				return err
			}
			statusDuringRun.Store(current.Status)
			return nil
		}),
	})

	past := time.Now().Add(-time.Minute)
	created := createJob(t, svc, &domain.Job{Name: "report", ScheduledTime: past})

	startWorker(t, w)

	require.Eventually(t, func() bool {
		return hasStatus(store, created.JobID, domain.JobStatusCompleted)
	}, 2*time.Second, 5*time.Millisecond)

	assert.Equal(t, domain.JobStatusRunning, statusDuringRun.Load())

	done, err := store.GetJob(context.Background(), created.JobID)
	require.NoError(t, err)
	require.NotNil(t, done.LastExecutionTime)
	assert.Equal(t, 0, done.RetryCount)

	require.Eventually(t, func() bool {
		return len(recorder.Types()) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []events.Type{events.JobCompleted}, recorder.Types())
}

func TestWorker_FutureJobWaits(t *testing.T) {
	store := memory.New()
	svc := job.NewService(store, discardLogger(), 3)

	var runs atomic.Int32
	w := NewWorker(&Config{
		Logger:       discardLogger(),
		Store:        store,
		PollInterval: testPollInterval,
		Executor: ExecutorFunc(func(context.Context, *domain.Job) error {
			runs.Add(1)
			return nil
		}),
	})

	created := createJob(t, svc, &domain.Job{Name: "later", ScheduledTime: time.Now().Add(time.Hour)})
	startWorker(t, w)

	time.Sleep(5 * testPollInterval)
	assert.Equal(t, int32(0), runs.Load())
	assert.True(t, hasStatus(store, created.JobID, domain.JobStatusPending))
}

func TestWorker_FailingJobRetriesThenFails(t *testing.T) {
	store := memory.New()
	svc := job.NewService(store, discardLogger(), 3)
	recorder := &events.Recorder{}

	var runs atomic.Int32
	w := NewWorker(&Config{
		Logger:       discardLogger(),
		Store:        store,
		Publisher:    recorder,
		PollInterval: testPollInterval,
		Executor: ExecutorFunc(func(context.Context, *domain.Job) error {
			runs.Add(1)
			return errors.New("downstream unavailable")
		}),
	})

	created := createJob(t, svc, &domain.Job{Name: "flaky", MaxRetries: 2})
	startWorker(t, w)

	require.Eventually(t, func() bool {
		return hasStatus(store, created.JobID, domain.JobStatusFailed)
	}, 2*time.Second, 5*time.Millisecond)

	failed, err := store.GetJob(context.Background(), created.JobID)
	require.NoError(t, err)
	assert.Equal(t, 2, failed.RetryCount)
	assert.Equal(t, "downstream unavailable", failed.LastError)
	assert.True(t, failed.ScheduledTime.Equal(created.ScheduledTime))

	// FAILED is terminal: the job is never picked up again
	time.Sleep(5 * testPollInterval)
	assert.Equal(t, int32(3), runs.Load())
	assert.Equal(t, []events.Type{events.JobRetrying, events.JobRetrying, events.JobFailed}, recorder.Types())
}

func TestWorker_PanicIsContained(t *testing.T) {
	store := memory.New()
	svc := job.NewService(store, discardLogger(), 3)

	w := NewWorker(&Config{
		Logger:       discardLogger(),
		Store:        store,
		Concurrency:  1,
		PollInterval: testPollInterval,
		Executor: ExecutorFunc(func(_ context.Context, j *domain.Job) error {
			if j.Name == "explodes" {
				panic("nil map write")
			}
			return nil
		}),
	})

	bad := createJob(t, svc, &domain.Job{Name: "explodes", MaxRetries: 0, Priority: 10})
	good := createJob(t, svc, &domain.Job{Name: "fine"})
	startWorker(t, w)

	require.Eventually(t, func() bool {
		return hasStatus(store, bad.JobID, domain.JobStatusFailed) &&
			hasStatus(store, good.JobID, domain.JobStatusCompleted)
	}, 2*time.Second, 5*time.Millisecond)

	failed, err := store.GetJob(context.Background(), bad.JobID)
	require.NoError(t, err)
	assert.Contains(t, failed.LastError, "panic in job explodes")
}

func TestWorker_JobsExecuteExactlyOnce(t *testing.T) {
	store := memory.New()
	svc := job.NewService(store, discardLogger(), 3)

	var mu sync.Mutex
	runs := make(map[string]int)
	w := NewWorker(&Config{
		Logger:       discardLogger(),
		Store:        store,
		Concurrency:  4,
		PollInterval: 2 * time.Millisecond,
		Executor: ExecutorFunc(func(_ context.Context, j *domain.Job) error {
			time.Sleep(3 * time.Millisecond)
			mu.Lock()
			runs[j.JobID]++
			mu.Unlock()
			return nil
		}),
	})

	const total = 40
	for i := 0; i < total; i++ {
		createJob(t, svc, &domain.Job{Name: fmt.Sprintf("job-%d", i), Priority: i % 3})
	}
	startWorker(t, w)

	require.Eventually(t, func() bool {
		counts, err := store.CountJobsByStatus(context.Background())
		return err == nil && counts[domain.JobStatusCompleted] == total
	}, 5*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, runs, total)
	for id, n := range runs {
		assert.Equal(t, 1, n, "job %s ran %d times", id, n)
	}
}

func TestWorker_PaymentRetryJobCallsWorkflow(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus domain.JobStatus
	}{
		{"attempt made", nil, domain.JobStatusCompleted},
		{"order no longer due", domain.ErrRetryNotDue, domain.JobStatusCompleted},
		{"order already settled", domain.ErrOrderNotRetryable, domain.JobStatusCompleted},
		{"store failure", errors.New("connection reset"), domain.JobStatusFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := memory.New()
			svc := job.NewService(store, discardLogger(), 3)
			payments := &fakePayments{err: tt.err}

			w := NewWorker(&Config{
				Logger:               discardLogger(),
				Store:                store,
				Payments:             payments,
				PollInterval:         testPollInterval,
				PaymentRetryInterval: time.Hour,
			})

			created := createJob(t, svc, &domain.Job{
				Name:       domain.PaymentRetryJobName("ORD_1"),
				Payload:    "ORD_1",
				Priority:   8,
				MaxRetries: 1,
			})
			startWorker(t, w)

			require.Eventually(t, func() bool {
				return hasStatus(store, created.JobID, tt.wantStatus)
			}, 2*time.Second, 5*time.Millisecond)

			calls := payments.Calls()
			require.NotEmpty(t, calls)
			assert.Equal(t, "ORD_1", calls[0])
		})
	}
}

func TestWorker_PaymentScanRunsPeriodically(t *testing.T) {
	payments := &fakePayments{}
	w := NewWorker(&Config{
		Logger:               discardLogger(),
		Store:                memory.New(),
		Payments:             payments,
		PollInterval:         time.Hour,
		PaymentRetryInterval: 10 * time.Millisecond,
	})
	startWorker(t, w)

	require.Eventually(t, func() bool {
		return payments.scans.Load() >= 3
	}, 2*time.Second, 5*time.Millisecond)
}

func TestWorker_RecurringJobSchedulesNextOccurrence(t *testing.T) {
	store := memory.New()
	svc := job.NewService(store, discardLogger(), 3)

	w := NewWorker(&Config{
		Logger:       discardLogger(),
		Store:        store,
		Jobs:         svc,
		PollInterval: testPollInterval,
		Executor:     ExecutorFunc(func(context.Context, *domain.Job) error { return nil }),
	})

	first := createJob(t, svc, &domain.Job{
		Name:           "hourly sync",
		Type:           domain.JobTypeRecurring,
		CronExpression: "@every 1h",
		ScheduledTime:  time.Now().Add(-time.Second),
	})
	startWorker(t, w)

	require.Eventually(t, func() bool {
		return hasStatus(store, first.JobID, domain.JobStatusCompleted)
	}, 2*time.Second, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		jobs, err := store.ListJobs(context.Background(), storage.JobFilter{Status: domain.JobStatusPending, PageSize: 10})
		return err == nil && len(jobs) == 1
	}, time.Second, 5*time.Millisecond)

	jobs, err := store.ListJobs(context.Background(), storage.JobFilter{Status: domain.JobStatusPending, PageSize: 10})
	require.NoError(t, err)
	next := jobs[0]
	assert.NotEqual(t, first.JobID, next.JobID)
	assert.Equal(t, "hourly sync", next.Name)
	assert.Equal(t, domain.JobTypeRecurring, next.Type)
	assert.WithinDuration(t, time.Now().Add(time.Hour), next.ScheduledTime, 5*time.Second)
}

func TestWorker_ResetsStaleRunningJobsAtStartup(t *testing.T) {
	store := memory.New()
	svc := job.NewService(store, discardLogger(), 3)

	stuck := createJob(t, svc, &domain.Job{Name: "orphaned"})
	_, err := store.ClaimJob(context.Background(), stuck.JobID, time.Now().Add(-time.Hour))
	require.NoError(t, err)

	w := NewWorker(&Config{
		Logger:            discardLogger(),
		Store:             store,
		PollInterval:      testPollInterval,
		StaleJobThreshold: 10 * time.Minute,
		Executor:          ExecutorFunc(func(context.Context, *domain.Job) error { return nil }),
	})
	startWorker(t, w)

	require.Eventually(t, func() bool {
		return hasStatus(store, stuck.JobID, domain.JobStatusCompleted)
	}, 2*time.Second, 5*time.Millisecond)
}

func TestWorker_StartTwice(t *testing.T) {
	w := NewWorker(&Config{
		Logger:       discardLogger(),
		Store:        memory.New(),
		PollInterval: time.Hour,
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, w.Start(ctx))
	assert.ErrorIs(t, w.Start(context.Background()), ErrAlreadyStarted)
}

func TestWorker_StopsOnContextCancel(t *testing.T) {
	w := NewWorker(&Config{
		Logger:       discardLogger(),
		Store:        memory.New(),
		PollInterval: time.Hour,
	})

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- w.Start(ctx) }()

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop after context cancel")
	}
}

// Full path: a declined order schedules a retry job, the poller promotes it,
// a worker runs it and the second attempt settles the order.
func TestWorker_PaymentRetryEndToEnd(t *testing.T) {
	store := memory.New()
	logger := discardLogger()
	svc := job.NewService(store, logger, 3)
	gateway := payment.NewScriptedGateway(
		payment.Outcome{Reason: "Insufficient funds in account"},
		payment.Outcome{Approve: true},
	)
	workflow := payment.NewWorkflow(store, svc, gateway, nil, logger, payment.Config{
		Policy: &payment.ScheduleRetryPolicy{Default: 30 * time.Millisecond},
	})

	order, err := workflow.CreateOrder(context.Background(), payment.CreateOrderInput{OrderID: "ORD_E2E", Amount: 100})
	require.NoError(t, err)
	require.Equal(t, domain.PaymentStatusFailed, order.PaymentStatus)
	require.Equal(t, 1, order.RetryCount)

	retryJobs, err := store.ListJobs(context.Background(), storage.JobFilter{PageSize: 10})
	require.NoError(t, err)
	require.Len(t, retryJobs, 1)
	assert.True(t, retryJobs[0].ScheduledTime.Equal(*order.NextRetryTime))
	assert.Equal(t, 8, retryJobs[0].Priority)

	w := NewWorker(&Config{
		Logger:               logger,
		Store:                store,
		Jobs:                 svc,
		Payments:             workflow,
		PollInterval:         testPollInterval,
		PaymentRetryInterval: time.Hour,
	})
	startWorker(t, w)

	require.Eventually(t, func() bool {
		o, err := store.GetOrder(context.Background(), "ORD_E2E")
		return err == nil && o.PaymentStatus == domain.PaymentStatusSuccess
	}, 2*time.Second, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		return hasStatus(store, retryJobs[0].JobID, domain.JobStatusCompleted)
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, []int{1, 2}, gateway.Calls())
}
