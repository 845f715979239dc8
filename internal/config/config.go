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

// Provider selection values
const (
	ProviderSimulated = "simulated"
	ProviderVeo       = "veo"
)

// Storage backend values
const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
)

// Duration is a time.Duration that unmarshals from YAML strings like "30s".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the plain time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config represents the complete application configuration
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Database     DatabaseConfig     `yaml:"database"`
	RabbitMQ     RabbitMQConfig     `yaml:"rabbitmq"`
	Logging      LoggingConfig      `yaml:"logging"`
	App          AppConfig          `yaml:"app"`
	Worker       WorkerConfig       `yaml:"worker"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int      `yaml:"port"`
	ReadTimeout     Duration `yaml:"read_timeout"`
	WriteTimeout    Duration `yaml:"write_timeout"`
	IdleTimeout     Duration `yaml:"idle_timeout"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig holds PostgreSQL connection configuration
type DatabaseConfig struct {
	Host            string   `yaml:"host"`
	Port            int      `yaml:"port"`
	User            string   `yaml:"user"`
	Password        string   `yaml:"password"`
	Database        string   `yaml:"database"`
	SSLMode         string   `yaml:"sslmode"`
	MaxOpenConns    int      `yaml:"max_open_conns"`
	MaxIdleConns    int      `yaml:"max_idle_conns"`
	ConnMaxLifetime Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime Duration `yaml:"conn_max_idle_time"`
}

// RabbitMQConfig holds RabbitMQ connection and exchange/queue configuration.
// When Enabled is false the dispatcher always executes jobs inline.
type RabbitMQConfig struct {
	Enabled    bool             `yaml:"enabled"`
	Host       string           `yaml:"host"`
	Port       int              `yaml:"port"`
	User       string           `yaml:"user"`
	Password   string           `yaml:"password"`
	VHost      string           `yaml:"vhost"`
	Exchange   ExchangeConfig   `yaml:"exchange"`
	Queue      QueueConfig      `yaml:"queue"`
	RoutingKey string           `yaml:"routing_key"`
	Connection ConnectionConfig `yaml:"connection"`
	Publish    PublishConfig    `yaml:"publish"`
	Consumer   ConsumerConfig   `yaml:"consumer"`
}

// ExchangeConfig holds RabbitMQ exchange configuration
type ExchangeConfig struct {
	Name       string `yaml:"name"`
	Type       string `yaml:"type"`
	Durable    bool   `yaml:"durable"`
	AutoDelete bool   `yaml:"auto_delete"`
}

// QueueConfig holds RabbitMQ queue configuration
type QueueConfig struct {
	Name       string `yaml:"name"`
	Durable    bool   `yaml:"durable"`
	AutoDelete bool   `yaml:"auto_delete"`
	Exclusive  bool   `yaml:"exclusive"`
}

// ConnectionConfig holds RabbitMQ connection settings
type ConnectionConfig struct {
	RetryAttempts     int      `yaml:"retry_attempts"`
	RetryInterval     Duration `yaml:"retry_interval"`
	Heartbeat         Duration `yaml:"heartbeat"`
	ConnectionTimeout Duration `yaml:"connection_timeout"`
}

// PublishConfig holds RabbitMQ publish retry settings
type PublishConfig struct {
	RetryAttempts     int      `yaml:"retry_attempts"`
	RetryInterval     Duration `yaml:"retry_interval"`
	BackoffMultiplier float64  `yaml:"backoff_multiplier"`
}

// ConsumerConfig holds RabbitMQ consumer settings
type ConsumerConfig struct {
	PrefetchCount int  `yaml:"prefetch_count"`
	AutoAck       bool `yaml:"auto_ack"`
	Exclusive     bool `yaml:"exclusive"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level        string `yaml:"level"`
	Format       string `yaml:"format"`
	Output       string `yaml:"output"`
	EnableCaller bool   `yaml:"enable_caller"`
}

// AppConfig holds application metadata
type AppConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
}

// WorkerConfig holds worker service configuration
type WorkerConfig struct {
	Concurrency     int      `yaml:"concurrency"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`
}

// OrchestratorConfig holds the video-generation core configuration,
// validated at startup and immutable for the process lifetime.
type OrchestratorConfig struct {
	Provider  string          `yaml:"provider"` // simulated | veo
	Storage   string          `yaml:"storage"`  // memory | postgres
	Veo       VeoConfig       `yaml:"veo"`
	Simulated SimulatedConfig `yaml:"simulated"`
	Credits   CreditsConfig   `yaml:"credits"`
	Poller    PollerConfig    `yaml:"poller"`
}

// VeoConfig holds remote provider settings. The API token is read from the
// VEO_API_TOKEN environment variable, not the config file.
type VeoConfig struct {
	BaseURL        string   `yaml:"base_url"`
	ProjectID      string   `yaml:"project_id"`
	Location       string   `yaml:"location"`
	StorageURI     string   `yaml:"storage_uri"`
	RequestTimeout Duration `yaml:"request_timeout"`
}

// SimulatedConfig holds nominal processing times for the simulated provider
type SimulatedConfig struct {
	FreeSeconds    int `yaml:"free_seconds"`
	PremiumSeconds int `yaml:"premium_seconds"`
}

// CreditsConfig holds per-quality credit costs. InitialBalance seeds the
// in-memory ledger in dev mode and is ignored with the postgres backend.
type CreditsConfig struct {
	FreeCost       int `yaml:"free_cost"`
	PremiumCost    int `yaml:"premium_cost"`
	InitialBalance int `yaml:"initial_balance"`
}

// PollerConfig holds status-poller tuning
type PollerConfig struct {
	Interval    Duration `yaml:"interval"`
	JobTimeout  Duration `yaml:"job_timeout"`
	Concurrency int      `yaml:"concurrency"`
}

// Load reads and parses the configuration file
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return &config, nil
}

// ValidateAPIConfig checks the configuration the API service depends on
func (c *Config) ValidateAPIConfig() error {
	if c.Server.Port < MinPort || c.Server.Port > MaxPort {
		return fmt.Errorf("invalid server port: %d (must be between %d and %d)", c.Server.Port, MinPort, MaxPort)
	}

	if err := c.validateOrchestrator(); err != nil {
		return err
	}

	if c.Orchestrator.Storage == StoragePostgres {
		if err := c.validateDatabase(); err != nil {
			return err
		}
	}

	if c.RabbitMQ.Enabled {
		if c.Orchestrator.Storage == StorageMemory {
			return fmt.Errorf("rabbitmq requires the postgres storage backend: the in-memory store is not shared with workers")
		}
		if err := c.validateRabbitMQ(); err != nil {
			return err
		}
	}

	return nil
}

// ValidateWorkerConfig checks the configuration the worker service depends on
func (c *Config) ValidateWorkerConfig() error {
	if c.Worker.Concurrency <= 0 {
		return fmt.Errorf("worker concurrency must be greater than 0")
	}

	if !c.RabbitMQ.Enabled {
		return fmt.Errorf("worker service requires rabbitmq to be enabled")
	}

	if c.Orchestrator.Storage != StoragePostgres {
		return fmt.Errorf("worker service requires the postgres storage backend, got %q", c.Orchestrator.Storage)
	}

	if err := c.validateOrchestrator(); err != nil {
		return err
	}

	if err := c.validateDatabase(); err != nil {
		return err
	}

	return c.validateRabbitMQ()
}

func (c *Config) validateOrchestrator() error {
	o := &c.Orchestrator

	switch o.Provider {
	case ProviderSimulated:
		if o.Simulated.FreeSeconds <= 0 || o.Simulated.PremiumSeconds <= 0 {
			return fmt.Errorf("simulated provider nominal durations must be greater than 0")
		}
	case ProviderVeo:
		if o.Veo.BaseURL == "" {
			return fmt.Errorf("veo base_url is required")
		}
		if o.Veo.ProjectID == "" {
			return fmt.Errorf("veo project_id is required")
		}
		if o.Veo.Location == "" {
			return fmt.Errorf("veo location is required")
		}
	default:
		return fmt.Errorf("unknown provider %q (must be %q or %q)", o.Provider, ProviderSimulated, ProviderVeo)
	}

	if o.Storage != StorageMemory && o.Storage != StoragePostgres {
		return fmt.Errorf("unknown storage backend %q (must be %q or %q)", o.Storage, StorageMemory, StoragePostgres)
	}

	if o.Credits.FreeCost <= 0 || o.Credits.PremiumCost <= 0 {
		return fmt.Errorf("credit costs must be greater than 0")
	}

	if o.Poller.Interval.Std() <= 0 {
		return fmt.Errorf("poller interval must be greater than 0")
	}

	if o.Poller.JobTimeout.Std() <= 0 {
		return fmt.Errorf("poller job_timeout must be greater than 0")
	}

	return nil
}

func (c *Config) validateDatabase() error {
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
	if c.RabbitMQ.Host == "" {
		return fmt.Errorf("rabbitmq host is required")
	}

	if c.RabbitMQ.Port < MinPort || c.RabbitMQ.Port > MaxPort {
		return fmt.Errorf("invalid rabbitmq port: %d (must be between %d and %d)", c.RabbitMQ.Port, MinPort, MaxPort)
	}

	if c.RabbitMQ.Exchange.Name == "" {
		return fmt.Errorf("rabbitmq exchange name is required")
	}

	if c.RabbitMQ.Queue.Name == "" {
		return fmt.Errorf("rabbitmq queue name is required")
	}

	return nil
}
