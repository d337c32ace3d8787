package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Database configuration
	Database DatabaseConfig

	// JWT configuration
	JWT JWTConfig

	// Rate limiting configuration
	RateLimit RateLimitConfig

	// WebSocket configuration
	WebSocket WebSocketConfig

	// Logging configuration
	Logging LoggingConfig

	// Application metadata
	App AppConfig

	// Message broker configuration
	Broker BrokerConfig

	// Cache configuration
	Cache CacheConfig

	// Connection health monitor timings
	Health HealthConfig

	// Session error recovery settings
	Recovery RecoveryConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	URL            string
	MaxConns       int
	AutoMigrate    bool
	MigrationsPath string
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	Secret         string
	AccessTokenTTL time.Duration
	Issuer         string
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	Enabled           bool
	RequestsPerSecond float64
	BurstSize         int
}

// WebSocketConfig holds WebSocket configuration
type WebSocketConfig struct {
	AllowedOrigins  []string
	ReadBufferSize  int
	WriteBufferSize int
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, text
}

// AppConfig holds application metadata
type AppConfig struct {
	Name        string
	Version     string
	Environment string
	// InstanceID distinguishes replicas, e.g. in Kafka consumer groups.
	InstanceID string
}

// Broker drivers.
const (
	BrokerRedis  = "redis"
	BrokerKafka  = "kafka"
	BrokerMemory = "memory"
)

// BrokerConfig selects and configures the pub/sub transport
type BrokerConfig struct {
	Driver           string // redis, kafka, memory
	ChannelPrefix    string
	RedisAddr        string
	RedisPassword    string
	RedisDB          int
	KafkaBrokers     []string
	KafkaGroupPrefix string
	MemoryBuffer     int
	// PublishTimeout bounds a single broker publish.
	PublishTimeout time.Duration
}

// CacheConfig holds the local and shared cache settings
type CacheConfig struct {
	Capacity     int
	Shards       int
	TTL          time.Duration
	RedisEnabled bool
	RedisAddr    string
	RedisPrefix  string
}

// HealthConfig holds the connection health monitor timings
type HealthConfig struct {
	SweepInterval     time.Duration
	BroadcastInterval time.Duration
	StaleThreshold    time.Duration
}

// RecoveryConfig holds the session error recovery settings
type RecoveryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Retention   time.Duration
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (for local development)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	redisAddr := getEnvOrDefault("REDIS_ADDR", "localhost:6379")
	hostname, _ := os.Hostname()

	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnvOrDefault("SERVER_PORT", ":8080"),
			ReadTimeout:     getDurationOrDefault("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getDurationOrDefault("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:     getDurationOrDefault("SERVER_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getDurationOrDefault("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			URL:            os.Getenv("DATABASE_URL"),
			MaxConns:       getIntOrDefault("DB_MAX_CONNS", 25),
			AutoMigrate:    getBoolOrDefault("DB_AUTO_MIGRATE", false),
			MigrationsPath: getEnvOrDefault("DB_MIGRATIONS_PATH", "migrations"),
		},
		JWT: JWTConfig{
			Secret:         os.Getenv("JWT_SECRET"),
			AccessTokenTTL: getDurationOrDefault("JWT_ACCESS_TOKEN_TTL", 1*time.Hour),
			Issuer:         getEnvOrDefault("JWT_ISSUER", "backoffice"),
		},
		RateLimit: RateLimitConfig{
			Enabled:           getBoolOrDefault("RATE_LIMIT_ENABLED", true),
			RequestsPerSecond: getFloatOrDefault("RATE_LIMIT_RPS", 10),
			BurstSize:         getIntOrDefault("RATE_LIMIT_BURST", 20),
		},
		WebSocket: WebSocketConfig{
			AllowedOrigins:  getStringSliceOrDefault("WS_ALLOWED_ORIGINS", []string{}),
			ReadBufferSize:  getIntOrDefault("WS_READ_BUFFER_SIZE", 1024),
			WriteBufferSize: getIntOrDefault("WS_WRITE_BUFFER_SIZE", 1024),
		},
		Logging: LoggingConfig{
			Level:  getEnvOrDefault("LOG_LEVEL", "info"),
			Format: getEnvOrDefault("LOG_FORMAT", "json"),
		},
		App: AppConfig{
			Name:        getEnvOrDefault("APP_NAME", "backoffice-realtime"),
			Version:     getEnvOrDefault("APP_VERSION", "dev"),
			Environment: getEnvOrDefault("APP_ENV", "development"),
			InstanceID:  getEnvOrDefault("APP_INSTANCE_ID", hostname),
		},
		Broker: BrokerConfig{
			Driver:           strings.ToLower(getEnvOrDefault("BROKER_DRIVER", BrokerRedis)),
			ChannelPrefix:    getEnvOrDefault("BROKER_CHANNEL_PREFIX", "backoffice"),
			RedisAddr:        redisAddr,
			RedisPassword:    os.Getenv("REDIS_PASSWORD"),
			RedisDB:          getIntOrDefault("REDIS_DB", 0),
			KafkaBrokers:     getStringSliceOrDefault("KAFKA_BROKERS", []string{"localhost:9092"}),
			KafkaGroupPrefix: getEnvOrDefault("KAFKA_GROUP_PREFIX", "backoffice-realtime"),
			MemoryBuffer:     getIntOrDefault("BROKER_MEMORY_BUFFER", 256),
			PublishTimeout:   getDurationOrDefault("BROKER_PUBLISH_TIMEOUT", 2*time.Second),
		},
		Cache: CacheConfig{
			Capacity:     getIntOrDefault("CACHE_CAPACITY", 10000),
			Shards:       getIntOrDefault("CACHE_SHARDS", 64),
			TTL:          getDurationOrDefault("CACHE_TTL", 5*time.Minute),
			RedisEnabled: getBoolOrDefault("CACHE_REDIS_ENABLED", false),
			RedisAddr:    getEnvOrDefault("CACHE_REDIS_ADDR", redisAddr),
			RedisPrefix:  getEnvOrDefault("CACHE_REDIS_PREFIX", "bo:"),
		},
		Health: HealthConfig{
			SweepInterval:     getDurationOrDefault("HEALTH_SWEEP_INTERVAL", 30*time.Second),
			BroadcastInterval: getDurationOrDefault("HEALTH_BROADCAST_INTERVAL", 60*time.Second),
			StaleThreshold:    getDurationOrDefault("HEALTH_STALE_THRESHOLD", 2*time.Minute),
		},
		Recovery: RecoveryConfig{
			MaxAttempts: getIntOrDefault("RECOVERY_MAX_ATTEMPTS", 5),
			BaseDelay:   getDurationOrDefault("RECOVERY_BASE_DELAY", time.Second),
			MaxDelay:    getDurationOrDefault("RECOVERY_MAX_DELAY", 30*time.Second),
			Retention:   getDurationOrDefault("RECOVERY_RETENTION", time.Hour),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	var errs []string

	// Required fields
	if c.Database.URL == "" {
		errs = append(errs, "DATABASE_URL is required")
	}

	if c.JWT.Secret == "" {
		errs = append(errs, "JWT_SECRET is required")
	}

	// Security validations
	if c.App.Environment == "production" {
		if len(c.JWT.Secret) < 32 {
			errs = append(errs, "JWT_SECRET must be at least 32 characters in production")
		}

		if len(c.WebSocket.AllowedOrigins) == 0 {
			errs = append(errs, "WS_ALLOWED_ORIGINS must be set in production")
		}
	}

	// Logical validations
	switch c.Broker.Driver {
	case BrokerRedis, BrokerMemory:
	case BrokerKafka:
		if len(c.Broker.KafkaBrokers) == 0 {
			errs = append(errs, "KAFKA_BROKERS is required when BROKER_DRIVER=kafka")
		}
	default:
		errs = append(errs, fmt.Sprintf("BROKER_DRIVER must be one of redis, kafka, memory (got %q)", c.Broker.Driver))
	}

	if c.Broker.PublishTimeout <= 0 {
		errs = append(errs, "BROKER_PUBLISH_TIMEOUT must be positive")
	}

	if c.Cache.Capacity <= 0 || c.Cache.Shards <= 0 || c.Cache.TTL <= 0 {
		errs = append(errs, "CACHE_CAPACITY, CACHE_SHARDS and CACHE_TTL must be positive")
	}

	if c.Health.SweepInterval <= 0 || c.Health.BroadcastInterval <= 0 || c.Health.StaleThreshold <= 0 {
		errs = append(errs, "HEALTH_* intervals must be positive")
	}

	if c.Recovery.MaxAttempts <= 0 {
		errs = append(errs, "RECOVERY_MAX_ATTEMPTS must be positive")
	}
	if c.Recovery.BaseDelay <= 0 || c.Recovery.MaxDelay < c.Recovery.BaseDelay {
		errs = append(errs, "RECOVERY_BASE_DELAY must be positive and not above RECOVERY_MAX_DELAY")
	}

	if len(errs) > 0 {
		return errors.New("configuration errors:\n  - " + strings.Join(errs, "\n  - "))
	}

	return nil
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

// Helper functions

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getStringSliceOrDefault(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		result := make([]string, 0, len(parts))
		for _, part := range parts {
			trimmed := strings.TrimSpace(part)
			if trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return defaultValue
}

// String returns a redacted string representation of the config (safe for logging)
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Server: %s, DB: %s, JWT: [REDACTED], Broker: %s, RateLimit: %v, Environment: %s}",
		c.Server.Port,
		redactURL(c.Database.URL),
		c.Broker.Driver,
		c.RateLimit.Enabled,
		c.App.Environment,
	)
}

// redactURL redacts sensitive parts of a database URL
func redactURL(url string) string {
	if url == "" {
		return ""
	}
	// Very basic redaction - in production you'd want something more robust
	if idx := strings.Index(url, "@"); idx > 0 {
		return "[REDACTED]" + url[idx:]
	}
	return "[REDACTED]"
}
