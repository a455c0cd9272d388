package bootstrap

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/schedulex/internal/config"
	"github.com/cuongbtq/schedulex/internal/domain"
	"github.com/cuongbtq/schedulex/internal/events"
	"github.com/cuongbtq/schedulex/internal/job"
	"github.com/cuongbtq/schedulex/internal/payment"
)

func TestNew_MemoryDriver(t *testing.T) {
	appLogger, err := NewLogger(&config.LoggingConfig{
		Level:  "error",
		Format: "json",
		Output: filepath.Join(t.TempDir(), "bootstrap.log"),
	})
	require.NoError(t, err)
	defer appLogger.Close()

	cfg := &config.Config{
		Database: config.DatabaseConfig{Driver: config.DriverMemory},
		Scheduler: config.SchedulerConfig{
			DefaultMaxRetries: 2,
		},
		Payment: config.PaymentConfig{
			Gateway:          config.GatewaySimulated,
			SuccessRate:      1,
			RetrySuccessRate: 1,
			OrderMaxRetries:  3,
			RetryJobPriority: 8,
		},
	}

	infra, err := New(context.Background(), cfg, appLogger)
	require.NoError(t, err)
	defer infra.Close()

	assert.IsType(t, &events.LogPublisher{}, infra.Publisher)

	ctx := context.Background()
	order, err := infra.Workflow.CreateOrder(ctx, payment.CreateOrderInput{CustomerID: "c1", Amount: 15})
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusSuccess, order.PaymentStatus)

	created, err := infra.Jobs.Create(ctx, job.CreateInput{Name: "nightly"})
	require.NoError(t, err)
	assert.Equal(t, 2, created.MaxRetries)

	stored, err := infra.Store.GetJob(ctx, created.JobID)
	require.NoError(t, err)
	assert.Equal(t, "nightly", stored.Name)

	require.NoError(t, infra.Close())
}

func TestInfra_NewWorkerSharesTheStore(t *testing.T) {
	appLogger, err := NewLogger(&config.LoggingConfig{
		Level:  "error",
		Format: "json",
		Output: filepath.Join(t.TempDir(), "scheduler.log"),
	})
	require.NoError(t, err)
	defer appLogger.Close()

	cfg := &config.Config{
		Database: config.DatabaseConfig{Driver: config.DriverMemory},
		Scheduler: config.SchedulerConfig{
			Concurrency:          2,
			PollInterval:         10 * time.Millisecond,
			PaymentRetryInterval: 50 * time.Millisecond,
			PollBatchSize:        10,
			DefaultMaxRetries:    1,
			GenericJobDuration:   time.Millisecond,
			JobTimeout:           time.Second,
		},
		Payment: config.PaymentConfig{
			Gateway:         config.GatewaySimulated,
			SuccessRate:     1,
			OrderMaxRetries: 3,
		},
	}

	infra, err := New(context.Background(), cfg, appLogger)
	require.NoError(t, err)
	defer infra.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Produced through the same services the API handlers use
	created, err := infra.Jobs.Create(ctx, job.CreateInput{Name: "report"})
	require.NoError(t, err)

	scheduler := infra.NewWorker(&cfg.Scheduler)
	go func() { _ = scheduler.Start(ctx) }()

	assert.Eventually(t, func() bool {
		stored, err := infra.Store.GetJob(ctx, created.JobID)
		return err == nil && stored.Status == domain.JobStatusCompleted
	}, 2*time.Second, 10*time.Millisecond)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), time.Second)
	defer stopCancel()
	require.NoError(t, scheduler.Stop(stopCtx))
}

func TestNewGateway(t *testing.T) {
	gw, err := NewGateway(&config.PaymentConfig{Gateway: config.GatewaySimulated})
	require.NoError(t, err)
	assert.IsType(t, &payment.SimulatedGateway{}, gw)

	_, err = NewGateway(&config.PaymentConfig{Gateway: "stripe"})
	assert.ErrorContains(t, err, "unsupported payment gateway")
}

func TestInfra_HealthCheck(t *testing.T) {
	infra := &Infra{}
	require.NoError(t, infra.HealthCheck(context.Background()))

	infra.checks = append(infra.checks, func(context.Context) error { return errors.New("rabbitmq connection is closed") })
	assert.EqualError(t, infra.HealthCheck(context.Background()), "rabbitmq connection is closed")
}

func TestInfra_CloseRunsInReverse(t *testing.T) {
	var order []string
	infra := &Infra{closers: []func() error{
		func() error { order = append(order, "db"); return nil },
		func() error { order = append(order, "rabbit"); return errors.New("already closed") },
	}}

	err := infra.Close()
	assert.EqualError(t, err, "already closed")
	assert.Equal(t, []string{"rabbit", "db"}, order)

	// Second close is a no-op
	require.NoError(t, infra.Close())
}
