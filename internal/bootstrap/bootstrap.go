// Package bootstrap builds the infrastructure both services share from the
// loaded configuration.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/schedulex/internal/config"
	"github.com/cuongbtq/schedulex/internal/events"
	"github.com/cuongbtq/schedulex/internal/job"
	"github.com/cuongbtq/schedulex/internal/payment"
	"github.com/cuongbtq/schedulex/internal/storage"
	"github.com/cuongbtq/schedulex/internal/storage/memory"
	"github.com/cuongbtq/schedulex/internal/storage/postgres"
	"github.com/cuongbtq/schedulex/internal/worker"
	"github.com/cuongbtq/schedulex/shared/logger"
	"github.com/cuongbtq/schedulex/shared/postgresql"
	"github.com/cuongbtq/schedulex/shared/rabbitmq"
)

// Infra holds the store, event publisher and services wired from config
type Infra struct {
	Logger    *logger.Logger
	Store     storage.Store
	Publisher events.Publisher
	Jobs      *job.Service
	Workflow  *payment.Workflow

	closers []func() error
	checks  []func(ctx context.Context) error
}

// New connects to the configured backends and builds the services. The
// returned Infra must be closed by the caller.
func New(ctx context.Context, cfg *config.Config, appLogger *logger.Logger) (*Infra, error) {
	infra := &Infra{Logger: appLogger}
	log := appLogger.Logger

	store, err := infra.initStore(ctx, &cfg.Database, log)
	if err != nil {
		infra.Close()
		return nil, err
	}
	infra.Store = store

	publisher, err := infra.initPublisher(&cfg.RabbitMQ, log)
	if err != nil {
		infra.Close()
		return nil, err
	}
	infra.Publisher = publisher

	gateway, err := NewGateway(&cfg.Payment)
	if err != nil {
		infra.Close()
		return nil, err
	}

	infra.Jobs = job.NewService(store, log.With(slog.String("component", "jobs")), cfg.Scheduler.DefaultMaxRetries)
	infra.Workflow = payment.NewWorkflow(
		store,
		infra.Jobs,
		gateway,
		publisher,
		log.With(slog.String("component", "payments")),
		payment.Config{
			OrderMaxRetries:  cfg.Payment.OrderMaxRetries,
			RetryJobPriority: cfg.Payment.RetryJobPriority,
			SaveAttempts:     cfg.Payment.SaveAttempts,
			SaveRetryDelay:   cfg.Payment.SaveRetryDelay,
		},
	)

	return infra, nil
}

// NewWorker builds the scheduler over the shared store and services
func (i *Infra) NewWorker(cfg *config.SchedulerConfig) *worker.Worker {
	return worker.NewWorker(&worker.Config{
		Logger:               i.Logger.Logger.With(slog.String("component", "scheduler")),
		Store:                i.Store,
		Jobs:                 i.Jobs,
		Payments:             i.Workflow,
		Publisher:            i.Publisher,
		Concurrency:          cfg.Concurrency,
		PollInterval:         cfg.PollInterval,
		PaymentRetryInterval: cfg.PaymentRetryInterval,
		PollBatchSize:        cfg.PollBatchSize,
		GenericJobDuration:   cfg.GenericJobDuration,
		JobTimeout:           cfg.JobTimeout,
		StaleJobThreshold:    cfg.StaleJobThreshold,
	})
}

// HealthCheck reports the first unhealthy backend
func (i *Infra) HealthCheck(ctx context.Context) error {
	for _, check := range i.checks {
		if err := check(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Close releases connections in reverse order of creation
func (i *Infra) Close() error {
	var errs []error
	for k := len(i.closers) - 1; k >= 0; k-- {
		if err := i.closers[k](); err != nil {
			errs = append(errs, err)
		}
	}
	i.closers = nil
	return errors.Join(errs...)
}

func (i *Infra) initStore(ctx context.Context, cfg *config.DatabaseConfig, log *slog.Logger) (storage.Store, error) {
	if cfg.Driver == config.DriverMemory {
		log.Warn("Using in-memory store, data is lost on restart")
		store := memory.New()
		i.closers = append(i.closers, store.Close)
		return store, nil
	}

	dbClient, err := postgresql.NewClient(&postgresql.Config{
		Host:            cfg.Host,
		Port:            cfg.Port,
		User:            cfg.User,
		Password:        cfg.Password,
		Database:        cfg.Database,
		SSLMode:         cfg.SSLMode,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.ConnMaxIdleTime,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	i.closers = append(i.closers, dbClient.Close)
	i.checks = append(i.checks, dbClient.HealthCheck)

	store := postgres.NewStorage(dbClient.GetDB(), log)
	if cfg.AutoMigrate {
		if err := store.Migrate(ctx); err != nil {
			return nil, err
		}
	}

	return store, nil
}

func (i *Infra) initPublisher(cfg *config.RabbitMQConfig, log *slog.Logger) (events.Publisher, error) {
	if !cfg.Enabled {
		log.Info("RabbitMQ disabled, events are written to the log")
		return events.NewLogPublisher(log), nil
	}

	client, err := rabbitmq.NewClient(&rabbitmq.Config{
		Host:               cfg.Host,
		Port:               cfg.Port,
		User:               cfg.User,
		Password:           cfg.Password,
		VHost:              cfg.VHost,
		ExchangeName:       cfg.Exchange.Name,
		ExchangeType:       cfg.Exchange.Type,
		ExchangeDurable:    cfg.Exchange.Durable,
		ExchangeAutoDelete: cfg.Exchange.AutoDelete,
		QueueName:          cfg.Queue.Name,
		QueueDurable:       cfg.Queue.Durable,
		QueueAutoDelete:    cfg.Queue.AutoDelete,
		QueueExclusive:     cfg.Queue.Exclusive,
		BindingKey:         cfg.Queue.BindingKey,
		RetryAttempts:      cfg.Connection.RetryAttempts,
		RetryInterval:      cfg.Connection.RetryInterval,
		Heartbeat:          cfg.Connection.Heartbeat,
		ConnectionTimeout:  cfg.Connection.ConnectionTimeout,
		PublishRetries:     cfg.Publish.RetryAttempts,
		PublishRetryDelay:  cfg.Publish.RetryInterval,
		PublishBackoffMult: cfg.Publish.BackoffMultiplier,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize RabbitMQ: %w", err)
	}
	i.closers = append(i.closers, client.Close)
	i.checks = append(i.checks, func(context.Context) error {
		if !client.IsConnected() {
			return errors.New("rabbitmq connection is closed")
		}
		return nil
	})

	return events.NewRabbitPublisher(client, log), nil
}

// NewGateway builds the configured payment gateway
func NewGateway(cfg *config.PaymentConfig) (payment.Gateway, error) {
	switch cfg.Gateway {
	case config.GatewaySimulated:
		return payment.NewSimulatedGateway(payment.SimulatedConfig{
			Latency:          cfg.Latency,
			SuccessRate:      cfg.SuccessRate,
			RetrySuccessRate: cfg.RetrySuccessRate,
			FailFirstAttempt: cfg.FailFirstAttempt,
		}), nil
	default:
		return nil, fmt.Errorf("unsupported payment gateway: %q", cfg.Gateway)
	}
}

// NewLogger builds the application logger from the logging section
func NewLogger(cfg *config.LoggingConfig) (*logger.Logger, error) {
	return logger.New(&logger.Config{
		Level:        cfg.Level,
		Format:       cfg.Format,
		Output:       cfg.Output,
		EnableSource: cfg.EnableCaller,
		TimeFormat:   cfg.TimeFormat,
	})
}
