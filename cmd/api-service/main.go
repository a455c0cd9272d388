package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/cuongbtq/schedulex/internal/api/handler"
	"github.com/cuongbtq/schedulex/internal/api/router"
	"github.com/cuongbtq/schedulex/internal/api/validation"
	"github.com/cuongbtq/schedulex/internal/bootstrap"
	"github.com/cuongbtq/schedulex/internal/config"
	"github.com/cuongbtq/schedulex/internal/worker"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	// Parse command-line flags
	defaultConfigPath := os.Getenv("API_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/api-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateAPIConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// Initialize logger
	appLogger, err := bootstrap.NewLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	appLogger.Info("Starting API service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Store, event publisher, job service and payment workflow
	infra, err := bootstrap.New(ctx, cfg, appLogger)
	if err != nil {
		return err
	}
	defer infra.Close()

	r := initRouter(cfg.App.Environment, infra)

	// Create HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	appLogger.Info("Starting HTTP server",
		slog.String("address", addr),
		slog.Duration("read_timeout", cfg.Server.ReadTimeout),
		slog.Duration("write_timeout", cfg.Server.WriteTimeout),
	)

	// The in-memory store is invisible to a separate worker process
	var scheduler *worker.Worker
	if cfg.EmbeddedScheduler() {
		scheduler = infra.NewWorker(&cfg.Scheduler)
		go func() {
			if err := scheduler.Start(ctx); err != nil {
				appLogger.Error("In-process scheduler stopped", slog.Any("error", err))
			}
		}()
		appLogger.Info("Running scheduler in-process",
			slog.String("database_driver", cfg.Database.Driver),
		)
	}

	serverErr := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Wait for interrupt signal or a listener failure
	select {
	case <-ctx.Done():
		appLogger.Info("Shutting down server...")
	case err := <-serverErr:
		return fmt.Errorf("server failed: %w", err)
	}

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("Server forced to shutdown",
			slog.Any("error", err),
		)
		return err
	}

	if scheduler != nil {
		schedulerCtx, cancelScheduler := context.WithTimeout(context.Background(), cfg.Scheduler.ShutdownTimeout)
		defer cancelScheduler()

		if err := scheduler.Stop(schedulerCtx); err != nil {
			appLogger.Warn("Scheduler shutdown timeout exceeded", slog.Any("error", err))
		}
	}

	appLogger.Info("Server shutdown complete")
	return nil
}

// initRouter initializes the Gin router with all routes and middleware
func initRouter(environment string, infra *bootstrap.Infra) *gin.Engine {
	// Set Gin mode based on environment
	if environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	return router.SetupRouter(&handler.Dependencies{
		Logger:    infra.Logger.Logger,
		Jobs:      infra.Jobs,
		Orders:    infra.Workflow,
		Validator: validation.New(),
		Health:    infra.HealthCheck,
	})
}
