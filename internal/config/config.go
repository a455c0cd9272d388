package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// MinPort is the minimum valid port number
	MinPort = 1
	// MaxPort is the maximum valid port number
	MaxPort = 65535
)

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"

	GatewaySimulated = "simulated"
)

// Config represents the complete application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	RabbitMQ  RabbitMQConfig  `yaml:"rabbitmq"`
	Logging   LoggingConfig   `yaml:"logging"`
	App       AppConfig       `yaml:"app"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Payment   PaymentConfig   `yaml:"payment"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig holds store configuration. Driver "memory" keeps everything
// in process and ignores the connection settings.
type DatabaseConfig struct {
	Driver          string        `yaml:"driver"`
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	SSLMode         string        `yaml:"sslmode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
	AutoMigrate     bool          `yaml:"auto_migrate"`
}

// RabbitMQConfig holds the event broker settings. When disabled, events are
// written to the log instead.
type RabbitMQConfig struct {
	Enabled    bool             `yaml:"enabled"`
	Host       string           `yaml:"host"`
	Port       int              `yaml:"port"`
	User       string           `yaml:"user"`
	Password   string           `yaml:"password"`
	VHost      string           `yaml:"vhost"`
	Exchange   ExchangeConfig   `yaml:"exchange"`
	Queue      QueueConfig      `yaml:"queue"`
	Connection ConnectionConfig `yaml:"connection"`
	Publish    PublishConfig    `yaml:"publish"`
}

// ExchangeConfig holds RabbitMQ exchange configuration
type ExchangeConfig struct {
	Name       string `yaml:"name"`
	Type       string `yaml:"type"`
	Durable    bool   `yaml:"durable"`
	AutoDelete bool   `yaml:"auto_delete"`
}

// QueueConfig optionally declares a queue bound to the exchange so events
// are retained before any consumer exists
type QueueConfig struct {
	Name       string `yaml:"name"`
	BindingKey string `yaml:"binding_key"`
	Durable    bool   `yaml:"durable"`
	AutoDelete bool   `yaml:"auto_delete"`
	Exclusive  bool   `yaml:"exclusive"`
}

// ConnectionConfig holds RabbitMQ connection settings
type ConnectionConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	Heartbeat         time.Duration `yaml:"heartbeat"`
	ConnectionTimeout time.Duration `yaml:"connection_timeout"`
}

// PublishConfig holds RabbitMQ publish retry settings
type PublishConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level        string `yaml:"level"`
	Format       string `yaml:"format"`
	Output       string `yaml:"output"`
	TimeFormat   string `yaml:"time_format"`
	EnableCaller bool   `yaml:"enable_caller"`
}

// AppConfig holds application metadata
type AppConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
}

// SchedulerConfig holds the poller and worker pool settings
type SchedulerConfig struct {
	Concurrency          int           `yaml:"concurrency"`
	PollInterval         time.Duration `yaml:"poll_interval"`
	PaymentRetryInterval time.Duration `yaml:"payment_retry_interval"`
	PollBatchSize        int           `yaml:"poll_batch_size"`
	DefaultMaxRetries    int           `yaml:"default_max_retries"`
	GenericJobDuration   time.Duration `yaml:"generic_job_duration"`
	JobTimeout           time.Duration `yaml:"job_timeout"`
	StaleJobThreshold    time.Duration `yaml:"stale_job_threshold"`
	ShutdownTimeout      time.Duration `yaml:"shutdown_timeout"`
}

// PaymentConfig holds the gateway and order retry settings
type PaymentConfig struct {
	Gateway          string        `yaml:"gateway"`
	SuccessRate      float64       `yaml:"success_rate"`
	RetrySuccessRate float64       `yaml:"retry_success_rate"`
	FailFirstAttempt bool          `yaml:"fail_first_attempt"`
	Latency          time.Duration `yaml:"latency"`
	OrderMaxRetries  int           `yaml:"order_max_retries"`
	RetryJobPriority int           `yaml:"retry_job_priority"`
	SaveAttempts     int           `yaml:"save_attempts"`
	SaveRetryDelay   time.Duration `yaml:"save_retry_delay"`
}

// Load reads and parses the configuration file, then fills unset values
// with defaults
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.applyDefaults()
	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Database.Driver == "" {
		c.Database.Driver = DriverPostgres
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}

	if c.RabbitMQ.Exchange.Type == "" {
		c.RabbitMQ.Exchange.Type = "topic"
	}
	if c.RabbitMQ.Queue.Name != "" && c.RabbitMQ.Queue.BindingKey == "" {
		c.RabbitMQ.Queue.BindingKey = "#"
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "console"
	}
	if c.Logging.Output == "" {
		c.Logging.Output = "stdout"
	}
	if c.Logging.TimeFormat == "" {
		c.Logging.TimeFormat = time.RFC3339
	}

	if c.Server.ShutdownTimeout <= 0 {
		c.Server.ShutdownTimeout = 30 * time.Second
	}

	s := &c.Scheduler
	if s.Concurrency == 0 {
		s.Concurrency = 10
	}
	if s.PollInterval == 0 {
		s.PollInterval = 5 * time.Second
	}
	if s.PaymentRetryInterval == 0 {
		s.PaymentRetryInterval = 30 * time.Second
	}
	if s.PollBatchSize == 0 {
		s.PollBatchSize = 500
	}
	if s.DefaultMaxRetries == 0 {
		s.DefaultMaxRetries = 3
	}
	if s.GenericJobDuration == 0 {
		s.GenericJobDuration = 2 * time.Second
	}
	if s.JobTimeout == 0 {
		s.JobTimeout = 5 * time.Minute
	}
	if s.ShutdownTimeout == 0 {
		s.ShutdownTimeout = 30 * time.Second
	}

	p := &c.Payment
	if p.Gateway == "" {
		p.Gateway = GatewaySimulated
	}
	if p.Latency == 0 {
		p.Latency = 2 * time.Second
	}
	if p.OrderMaxRetries == 0 {
		p.OrderMaxRetries = 3
	}
	if p.RetryJobPriority == 0 {
		p.RetryJobPriority = 8
	}
	if p.SaveAttempts == 0 {
		p.SaveAttempts = 3
	}
	if p.SaveRetryDelay == 0 {
		p.SaveRetryDelay = 200 * time.Millisecond
	}
}

// Validate checks the settings shared by both services
func (c *Config) Validate() error {
	if err := c.validateDatabase(); err != nil {
		return err
	}
	if err := c.validateRabbitMQ(); err != nil {
		return err
	}
	return c.validatePayment()
}

// ValidateAPIConfig checks the settings the API service needs
func (c *Config) ValidateAPIConfig() error {
	if c.Server.Port < MinPort || c.Server.Port > MaxPort {
		return fmt.Errorf("invalid server port: %d (must be between %d and %d)", c.Server.Port, MinPort, MaxPort)
	}

	if err := c.Validate(); err != nil {
		return err
	}

	if c.Scheduler.DefaultMaxRetries < 0 {
		return fmt.Errorf("scheduler default_max_retries must not be negative")
	}

	if c.EmbeddedScheduler() {
		return c.validateScheduler()
	}

	return nil
}

// ValidateWorkerConfig checks the settings the worker service needs
func (c *Config) ValidateWorkerConfig() error {
	if err := c.Validate(); err != nil {
		return err
	}

	// A separate process cannot see the API's in-memory store
	if c.Database.Driver == DriverMemory {
		return fmt.Errorf("database driver %q is not supported by the worker service; run the api service, which schedules in-process", DriverMemory)
	}

	return c.validateScheduler()
}

// EmbeddedScheduler reports whether the API service must run the scheduler
// itself. The in-memory store is private to one process.
func (c *Config) EmbeddedScheduler() bool {
	return c.Database.Driver == DriverMemory
}

func (c *Config) validateScheduler() error {
	s := c.Scheduler
	if s.Concurrency <= 0 {
		return fmt.Errorf("scheduler concurrency must be greater than 0")
	}

	if s.PollInterval <= 0 {
		return fmt.Errorf("scheduler poll_interval must be greater than 0")
	}

	if s.PaymentRetryInterval <= 0 {
		return fmt.Errorf("scheduler payment_retry_interval must be greater than 0")
	}

	if s.PollBatchSize <= 0 {
		return fmt.Errorf("scheduler poll_batch_size must be greater than 0")
	}

	if s.JobTimeout <= 0 {
		return fmt.Errorf("scheduler job_timeout must be greater than 0")
	}

	if s.ShutdownTimeout <= 0 {
		return fmt.Errorf("scheduler shutdown_timeout must be greater than 0")
	}

	// A stale threshold at or below the job timeout would reset jobs that are still running
	if s.StaleJobThreshold < 0 || (s.StaleJobThreshold > 0 && s.StaleJobThreshold <= s.JobTimeout) {
		return fmt.Errorf("scheduler stale_job_threshold must be 0 or greater than job_timeout (%s)", s.JobTimeout)
	}

	return nil
}

func (c *Config) validateDatabase() error {
	switch c.Database.Driver {
	case DriverMemory:
		return nil
	case DriverPostgres:
	default:
		return fmt.Errorf("unsupported database driver: %q", c.Database.Driver)
	}

	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}

	if c.Database.Port < MinPort || c.Database.Port > MaxPort {
		return fmt.Errorf("invalid database port: %d (must be between %d and %d)", c.Database.Port, MinPort, MaxPort)
	}

	if c.Database.Database == "" {
		return fmt.Errorf("database name is required")
	}

	return nil
}

func (c *Config) validateRabbitMQ() error {
	if !c.RabbitMQ.Enabled {
		return nil
	}

	if c.RabbitMQ.Host == "" {
		return fmt.Errorf("rabbitmq host is required")
	}

	if c.RabbitMQ.Port < MinPort || c.RabbitMQ.Port > MaxPort {
		return fmt.Errorf("invalid rabbitmq port: %d (must be between %d and %d)", c.RabbitMQ.Port, MinPort, MaxPort)
	}

	if c.RabbitMQ.Exchange.Name == "" {
		return fmt.Errorf("rabbitmq exchange name is required")
	}

	return nil
}

func (c *Config) validatePayment() error {
	p := c.Payment
	if p.Gateway != GatewaySimulated {
		return fmt.Errorf("unsupported payment gateway: %q", p.Gateway)
	}

	if p.SuccessRate < 0 || p.SuccessRate > 1 {
		return fmt.Errorf("payment success_rate must be between 0 and 1")
	}

	if p.RetrySuccessRate < 0 || p.RetrySuccessRate > 1 {
		return fmt.Errorf("payment retry_success_rate must be between 0 and 1")
	}

	if p.OrderMaxRetries <= 0 {
		return fmt.Errorf("payment order_max_retries must be greater than 0")
	}

	if p.SaveAttempts < 0 || p.SaveRetryDelay < 0 {
		return fmt.Errorf("payment save_attempts and save_retry_delay must not be negative")
	}

	return nil
}
