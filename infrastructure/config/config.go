package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Store drivers accepted by STORE_DRIVER
const (
	StoreDynamoDB = "dynamodb"
	StoreSQLite   = "sqlite"
	StoreMemory   = "memory"
)

// DevelopmentJWTSecret signs tokens outside production when JWT_SECRET is unset
const DevelopmentJWTSecret = "particle-universe-development"

// Config holds all process configuration. Simulation tuning lives in
// domain/config and is loaded separately.
type Config struct {
	// Server configuration
	ServerAddress   string
	Environment     string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration

	// AWS configuration
	AWSRegion        string
	TableName        string
	ConnectionsTable string
	EventBusName     string

	// Storage
	StoreDriver string
	SQLitePath  string

	// Simulation
	SimulationConfigFile string
	TickInterval         time.Duration // 0 disables the in-process scheduler
	LockTTL              time.Duration
	CacheTTL             time.Duration

	// WebSocket configuration
	WebSocketEndpoint string

	// Logging
	LogLevel string

	// Authentication
	JWTSecret string
	JWTIssuer string

	// TrustGatewayAuth accepts the API Gateway JWT authorizer's claims
	// instead of validating the bearer token again
	TrustGatewayAuth bool

	// Feature flags
	EnableMetrics         bool
	EnableTracing         bool
	EnableEventPublishing bool
	EnableRateLimit       bool
	EnableCORS            bool
	RateLimitPerMinute    int
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		ServerAddress:   getEnv("SERVER_ADDRESS", ":8080"),
		Environment:     getEnv("ENVIRONMENT", "development"),
		ReadTimeout:     getEnvDuration("READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("WRITE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 30*time.Second),

		AWSRegion:        getEnv("AWS_REGION", "us-west-2"),
		TableName:        getEnv("TABLE_NAME", "particle-universe"),
		ConnectionsTable: getEnv("CONNECTIONS_TABLE", "particle-universe-connections"),
		EventBusName:     getEnv("EVENT_BUS_NAME", "particle-universe-events"),

		StoreDriver: getEnv("STORE_DRIVER", StoreDynamoDB),
		SQLitePath:  getEnv("SQLITE_PATH", "particle-universe.db"),

		SimulationConfigFile: getEnv("SIMULATION_CONFIG_FILE", ""),
		TickInterval:         getEnvDuration("TICK_INTERVAL", 0),
		LockTTL:              getEnvDuration("TICK_LOCK_TTL", 5*time.Minute),
		CacheTTL:             getEnvDuration("CACHE_TTL", 5*time.Minute),

		WebSocketEndpoint: getEnv("WEBSOCKET_ENDPOINT", ""),

		JWTSecret: getEnv("JWT_SECRET", ""),
		JWTIssuer: getEnv("JWT_ISSUER", "particle-universe"),

		TrustGatewayAuth: getEnvBool("TRUST_GATEWAY_AUTH", os.Getenv("AWS_LAMBDA_FUNCTION_NAME") != ""),

		LogLevel:              getEnv("LOG_LEVEL", "info"),
		EnableMetrics:         getEnvBool("ENABLE_METRICS", false),
		EnableTracing:         getEnvBool("ENABLE_TRACING", false),
		EnableEventPublishing: getEnvBool("ENABLE_EVENT_PUBLISHING", true),
		EnableRateLimit:       getEnvBool("ENABLE_RATE_LIMIT", false),
		EnableCORS:            getEnvBool("ENABLE_CORS", true),
		RateLimitPerMinute:    getEnvInt("RATE_LIMIT_PER_MINUTE", 120),
	}

	if cfg.JWTSecret == "" && !cfg.IsProduction() {
		cfg.JWTSecret = DevelopmentJWTSecret
	}

	// Validate required configuration
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if all required configuration is present
func (c *Config) Validate() error {
	switch c.StoreDriver {
	case StoreDynamoDB:
		if c.TableName == "" {
			return fmt.Errorf("TABLE_NAME is required for the dynamodb store")
		}
	case StoreSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required for the sqlite store")
		}
	case StoreMemory:
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}

	if c.TickInterval < 0 {
		return fmt.Errorf("TICK_INTERVAL cannot be negative")
	}

	if c.Environment == "production" {
		if c.JWTSecret == "" {
			return fmt.Errorf("JWT_SECRET is required in production")
		}
		if c.EnableEventPublishing && c.EventBusName == "" {
			return fmt.Errorf("EVENT_BUS_NAME is required")
		}
	}

	return nil
}

// IsDevelopment checks if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction checks if running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool gets a boolean environment variable with a default value
func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value == "true" || value == "1" || value == "yes"
}

// getEnvInt gets an integer environment variable with a default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go duration syntax ("90s", "5m")
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
