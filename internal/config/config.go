// Package config provides configuration structures and validation for the
// wallet ledger service. It handles environment-based configuration for all
// major components including the HTTP server, database connections, the
// circuit breaker, retry policy, and operational parameters.
package config

import (
	"errors"
	"strings"
	"time"
)

// Config holds the complete application configuration with settings for all
// components. Each field represents a major subsystem's configuration and is
// validated during application startup.
type Config struct {
	Application  ApplicationConfig
	Logging      LoggingConfig
	Server       ServerConfig
	Postgres     PostgresConfig
	MongoDB      MongoDBConfig
	Redis        RedisConfig
	Kafka        KafkaConfig
	Retry        RetryConfig
	Breaker      BreakerConfig
	Compensation CompensationConfig
	Booking      BookingConfig
	Governance   GovernanceConfig
	WorkerPool   WorkerPoolConfig
}

// ApplicationConfig contains general application configuration
type ApplicationConfig struct {
	Env  string
	Name string
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level string
}

// ServerConfig contains HTTP server configuration settings
type ServerConfig struct {
	Port            int           // Port to listen on
	ShutdownTimeout time.Duration // Grace period for server shutdown
	ReadTimeout     time.Duration // Maximum duration for reading entire request
	WriteTimeout    time.Duration // Maximum duration for writing response
	IdleTimeout     time.Duration // Maximum duration to wait for next request
}

// PostgresConfig contains PostgreSQL configuration
type PostgresConfig struct {
	URL             string        // Database connection string
	MaxConns        int32         // Maximum number of open connections
	MinConns        int32         // Maximum number of idle connections
	ConnMaxLifetime time.Duration // Maximum lifetime of a connection
	ConnMaxIdleTime time.Duration // Maximum idle time of a connection
	MigrationsPath  string        // Path to migration files
}

// MongoDBConfig contains MongoDB configuration for the audit event store
type MongoDBConfig struct {
	URI             string
	Database        string
	Timeout         time.Duration
	MaxPoolSize     uint64
	MinPoolSize     uint64
	MaxConnIdleTime time.Duration
}

// RedisConfig contains Redis configuration for shared circuit breaker state
type RedisConfig struct {
	URL            string
	CommandTimeout time.Duration
}

// KafkaConfig contains Kafka configuration for the ledger event stream
type KafkaConfig struct {
	Brokers           string
	LedgerEventTopic  string
	DLQTopic          string // Empty disables dead-letter streaming
	NumPartitions     int // Number of partitions for topics
	ReplicationFactor int // Replication factor for topics
	MaxWait           time.Duration
}

// RetryConfig controls the lock-contention retry wrapper
type RetryConfig struct {
	MaxRetries int             // Additional attempts after the first
	Backoff    []time.Duration // Delay before each retry, in order
}

// BreakerConfig controls the per-provider circuit breaker
type BreakerConfig struct {
	Enabled          bool          // Kill switch: false passes every call through
	FailureThreshold int           // Consecutive failures before opening
	SuccessThreshold int           // Half-open successes before closing
	Cooldown         time.Duration // Time the breaker stays open
	StateTTL         time.Duration // Shared-state expiry; stale state reverts to closed
}

// CompensationConfig controls the compensation queue drain worker
type CompensationConfig struct {
	PollingInterval time.Duration
	BatchSize       int
	MaxAttempts     int           // Attempts before an entry is dead-lettered
	ExpireAfter     time.Duration // Pending entries older than this are expired
}

// BookingConfig controls how shipment charges are estimated before the
// provider reports the final cost
type BookingConfig struct {
	EstimateBufferPercent int   // Surcharge over the quote, in percent
	PlatformFee           int64 // Flat platform fee in cents, added per booking
	// Providers maps carrier names to their API base URLs. Bookings naming
	// a carrier outside this map are rejected.
	Providers map[string]string
}

// GovernanceConfig contains credit policy bypass configuration
type GovernanceConfig struct {
	// RoleBypassEnabled allows privileged roles to skip the balance
	// sufficiency check. Defaults to disabled: absent configuration means
	// no bypass.
	RoleBypassEnabled bool
}

// WorkerPoolConfig contains audit dispatcher worker pool configuration
type WorkerPoolConfig struct {
	Size int // Maximum number of workers in the pool
}

// validate performs comprehensive validation of all configuration values,
// ensuring they meet minimum requirements and logical constraints
func (c *Config) validate() error {
	var validationErrors []string

	// Validate Server config
	if c.Server.Port <= 0 {
		validationErrors = append(validationErrors, "SERVER_PORT must be greater than 0")
	}
	if c.Server.ShutdownTimeout <= 0 {
		validationErrors = append(validationErrors, "SERVER_SHUTDOWN_TIMEOUT must be greater than 0")
	}
	if c.Server.ReadTimeout <= 0 {
		validationErrors = append(validationErrors, "SERVER_READ_TIMEOUT must be greater than 0")
	}
	if c.Server.WriteTimeout <= 0 {
		validationErrors = append(validationErrors, "SERVER_WRITE_TIMEOUT must be greater than 0")
	}
	if c.Server.IdleTimeout <= 0 {
		validationErrors = append(validationErrors, "SERVER_IDLE_TIMEOUT must be greater than 0")
	}

	// Validate PostgreSQL config
	if c.Postgres.URL == "" {
		validationErrors = append(validationErrors, "POSTGRES_URL is required")
	}
	if c.Postgres.MaxConns <= 0 {
		validationErrors = append(validationErrors, "POSTGRES_MAX_CONNS must be greater than 0")
	}
	if c.Postgres.MinConns <= 0 {
		validationErrors = append(validationErrors, "POSTGRES_MIN_CONNS must be greater than 0")
	}
	if c.Postgres.ConnMaxLifetime <= 0 {
		validationErrors = append(validationErrors, "POSTGRES_MAX_CONN_LIFETIME must be greater than 0")
	}
	if c.Postgres.ConnMaxIdleTime <= 0 {
		validationErrors = append(validationErrors, "POSTGRES_MAX_CONN_IDLE_TIME must be greater than 0")
	}

	// Validate MongoDB config
	if c.MongoDB.URI == "" {
		validationErrors = append(validationErrors, "MONGO_URI is required")
	}
	if c.MongoDB.Database == "" {
		validationErrors = append(validationErrors, "MONGO_DATABASE is required")
	}
	if c.MongoDB.Timeout <= 0 {
		validationErrors = append(validationErrors, "MONGO_TIMEOUT must be greater than 0")
	}
	if c.MongoDB.MaxPoolSize <= 0 {
		validationErrors = append(validationErrors, "MONGO_MAX_POOL_SIZE must be greater than 0")
	}
	if c.MongoDB.MinPoolSize <= 0 {
		validationErrors = append(validationErrors, "MONGO_MIN_POOL_SIZE must be greater than 0")
	}
	if c.MongoDB.MaxConnIdleTime <= 0 {
		validationErrors = append(validationErrors, "MONGO_MAX_CONN_IDLE_TIME must be greater than 0")
	}

	// Validate Redis config
	if c.Redis.URL == "" {
		validationErrors = append(validationErrors, "REDIS_URL is required")
	}
	if c.Redis.CommandTimeout <= 0 {
		validationErrors = append(validationErrors, "REDIS_COMMAND_TIMEOUT must be greater than 0")
	}

	// Validate Kafka config
	if len(c.Kafka.Brokers) == 0 {
		validationErrors = append(validationErrors, "KAFKA_BROKERS is required")
	}
	if c.Kafka.LedgerEventTopic == "" {
		validationErrors = append(validationErrors, "KAFKA_LEDGER_EVENT_TOPIC is required")
	}
	if c.Kafka.MaxWait <= 0 {
		validationErrors = append(validationErrors, "KAFKA_MAX_WAIT must be greater than 0")
	}

	// Validate Retry config
	if c.Retry.MaxRetries < 0 {
		validationErrors = append(validationErrors, "RETRY_MAX_RETRIES must not be negative")
	}
	if len(c.Retry.Backoff) < c.Retry.MaxRetries {
		validationErrors = append(validationErrors, "RETRY_BACKOFF must provide a delay for every retry")
	}

	// Validate Breaker config
	if c.Breaker.FailureThreshold <= 0 {
		validationErrors = append(validationErrors, "BREAKER_FAILURE_THRESHOLD must be greater than 0")
	}
	if c.Breaker.SuccessThreshold <= 0 {
		validationErrors = append(validationErrors, "BREAKER_SUCCESS_THRESHOLD must be greater than 0")
	}
	if c.Breaker.Cooldown <= 0 {
		validationErrors = append(validationErrors, "BREAKER_COOLDOWN must be greater than 0")
	}
	if c.Breaker.StateTTL <= 0 {
		validationErrors = append(validationErrors, "BREAKER_STATE_TTL must be greater than 0")
	}

	// Validate Compensation config
	if c.Compensation.PollingInterval <= 0 {
		validationErrors = append(validationErrors, "COMPENSATION_POLLING_INTERVAL must be greater than 0")
	}
	if c.Compensation.BatchSize <= 0 {
		validationErrors = append(validationErrors, "COMPENSATION_BATCH_SIZE must be greater than 0")
	}
	if c.Compensation.MaxAttempts <= 0 {
		validationErrors = append(validationErrors, "COMPENSATION_MAX_ATTEMPTS must be greater than 0")
	}
	if c.Compensation.ExpireAfter <= 0 {
		validationErrors = append(validationErrors, "COMPENSATION_EXPIRE_AFTER must be greater than 0")
	}

	// Validate Booking config
	if c.Booking.EstimateBufferPercent < 0 {
		validationErrors = append(validationErrors, "BOOKING_ESTIMATE_BUFFER_PERCENT must not be negative")
	}
	if c.Booking.PlatformFee < 0 {
		validationErrors = append(validationErrors, "BOOKING_PLATFORM_FEE must not be negative")
	}

	// Validate WorkerPool config
	if c.WorkerPool.Size <= 0 {
		validationErrors = append(validationErrors, "WORKER_POOL_SIZE must be greater than 0")
	}

	if len(validationErrors) > 0 {
		return errors.New(strings.Join(validationErrors, ", "))
	}

	return nil
}
