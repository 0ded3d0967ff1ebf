package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	DBName       string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  time.Duration
}

// RedisConfig holds redis configuration
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
}

// NATSConfig holds NATS connection configuration
type NATSConfig struct {
	URL           string
	ClientID      string
	MaxReconnects int
	ReconnectWait time.Duration
}

// RelayConfig holds websocket relay configuration
type RelayConfig struct {
	Addr       string
	Path       string
	JWTSecret  string
	SendBuffer int
}

// PipelineConfig holds worker tuning for the dispatcher and generator.
type PipelineConfig struct {
	// FailOpen keeps the observed best-effort behavior: dispatcher handler
	// errors are logged and the delivery acknowledged. When false the
	// delivery is negatively acknowledged so the queue redelivers it.
	FailOpen     bool
	MaxAttempts  int
	RetryBackoff time.Duration
}

// LoadDatabaseConfig loads database configuration from environment variables
func LoadDatabaseConfig(prefix string) (*DatabaseConfig, error) {
	cfg := &DatabaseConfig{
		Host:         getEnv(prefix+"DB_HOST", "postgres"),
		User:         getEnv(prefix+"DB_USER", "postgres"),
		Password:     getEnv(prefix+"DB_PASSWORD", "postgres"),
		DBName:       getEnv(prefix+"DB_NAME", "qval_db"),
		SSLMode:      getEnv(prefix+"DB_SSLMODE", "disable"),
		MaxOpenConns: getEnvAsInt(prefix+"DB_MAX_OPEN_CONNS", 25),
		MaxIdleConns: getEnvAsInt(prefix+"DB_MAX_IDLE_CONNS", 5),
		MaxLifetime:  getEnvAsDuration(prefix+"DB_MAX_LIFETIME", 5*time.Minute),
	}

	var err error
	cfg.Port, err = strconv.Atoi(getEnv(prefix+"DB_PORT", "5432"))
	if err != nil {
		return nil, fmt.Errorf("invalid database port: %w", err)
	}

	if cfg.DBName == "" {
		return nil, fmt.Errorf("database name is required (set %sDB_NAME)", prefix)
	}

	return cfg, nil
}

// LoadRedisConfig loads redis configuration from environment variables
func LoadRedisConfig() *RedisConfig {
	return &RedisConfig{
		Addr:     getEnv("REDIS_URL", "redis:6379"),
		Password: getEnv("REDIS_PASSWORD", ""),
		DB:       getEnvAsInt("REDIS_DB", 0),
		PoolSize: getEnvAsInt("REDIS_POOL_SIZE", 10),
	}
}

// LoadNATSConfig loads NATS configuration from environment variables
func LoadNATSConfig() *NATSConfig {
	return &NATSConfig{
		URL:           getEnv("NATS_URL", "nats://nats:4222"),
		ClientID:      getEnv("NATS_CLIENT_ID", "qval-pipeline"),
		MaxReconnects: getEnvAsInt("NATS_MAX_RECONNECTS", 10),
		ReconnectWait: getEnvAsDuration("NATS_RECONNECT_WAIT", 2*time.Second),
	}
}

// LoadRelayConfig loads websocket relay configuration from environment variables
func LoadRelayConfig() *RelayConfig {
	return &RelayConfig{
		Addr:       getEnv("RELAY_ADDR", ":8081"),
		Path:       getEnv("RELAY_PATH", "/events"),
		JWTSecret:  getEnv("RELAY_JWT_SECRET", ""),
		SendBuffer: getEnvAsInt("RELAY_SEND_BUFFER", 64),
	}
}

// LoadPipelineConfig loads worker tuning from environment variables
func LoadPipelineConfig() *PipelineConfig {
	cfg := &PipelineConfig{
		FailOpen:     getEnvAsBool("PIPELINE_FAIL_OPEN", true),
		MaxAttempts:  getEnvAsInt("PIPELINE_MAX_ATTEMPTS", 3),
		RetryBackoff: getEnvAsDuration("PIPELINE_RETRY_BACKOFF", time.Second),
	}
	// An attempt budget below one would mean no delivery at all.
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	return cfg
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvAsInt gets an environment variable as int or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsBool gets an environment variable as bool or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration gets an environment variable as duration or returns a default value
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
