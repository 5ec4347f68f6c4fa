// Package config provides configuration management for the contact ranker application.
// It loads configuration from environment variables and .env files.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Sources   SourcesConfig
	Backfill  BackfillConfig
	Scoring   ScoringConfig
	Hashing   HashingConfig
	RateLimit RateLimitConfig
	Logging   LoggingConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port string
	Host string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Postgres PostgresConfig
	Redis    RedisConfig
}

// PostgresConfig holds Postgres configuration
type PostgresConfig struct {
	Host           string
	Port           string
	Database       string
	User           string
	Password       string
	MaxConnections int
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host           string
	Port           string
	Password       string
	DB             int
	MaxConnections int
}

// SourcesConfig holds provider gateway configuration
type SourcesConfig struct {
	GatewayBaseURL string
	RequestTimeout time.Duration
	FetchRPS       float64
	FetchBurst     int
}

// BackfillConfig holds backfill pipeline configuration
type BackfillConfig struct {
	Enabled               bool
	QueueName             string
	EmailLookbackDays     int
	ExtendedLookbackDays  int
	CalendarLookaheadDays int
	MinContactThreshold   int
	MaxRetries            int
	PollTimeout           time.Duration
	RecentCompletionSkip  time.Duration
}

// ScoringConfig holds scoring engine configuration
type ScoringConfig struct {
	DefaultLimit int
	MaxLimit     int
	MaxSelection int
}

// HashingConfig holds contact hashing configuration
type HashingConfig struct {
	Secret string
}

// RateLimitConfig holds API rate limiting configuration
type RateLimitConfig struct {
	ReadRPS  int
	WriteRPS int
	Burst    int
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// LoadConfig loads configuration from .env file and environment variables
func LoadConfig() (*Config, error) {
	// Load .env file (optional in production)
	if err := godotenv.Load(); err != nil {
		// .env file is optional - environment variables can be set directly
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	config := &Config{
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "8080"),
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
		},
		Database: DatabaseConfig{
			Postgres: PostgresConfig{
				Host:           getEnv("POSTGRES_HOST", "localhost"),
				Port:           getEnv("POSTGRES_PORT", "5432"),
				Database:       getEnv("POSTGRES_DB", "contact_ranker"),
				User:           getEnv("POSTGRES_USER", "ranker"),
				Password:       getEnv("POSTGRES_PASSWORD", ""),
				MaxConnections: getEnvAsInt("POSTGRES_MAX_CONNECTIONS", 50),
			},
			Redis: RedisConfig{
				Host:           getEnv("REDIS_HOST", "localhost"),
				Port:           getEnv("REDIS_PORT", "6379"),
				Password:       getEnv("REDIS_PASSWORD", ""),
				DB:             getEnvAsInt("REDIS_DB", 0),
				MaxConnections: getEnvAsInt("REDIS_MAX_CONNECTIONS", 20),
			},
		},
		Sources: SourcesConfig{
			GatewayBaseURL: getEnv("SOURCE_GATEWAY_URL", "http://localhost:8090"),
			RequestTimeout: getEnvAsDuration("SOURCE_REQUEST_TIMEOUT", 30*time.Second),
			FetchRPS:       getEnvAsFloat("SOURCE_FETCH_RPS", 5),
			FetchBurst:     getEnvAsInt("SOURCE_FETCH_BURST", 5),
		},
		Backfill: BackfillConfig{
			Enabled:               getEnvAsBool("BACKFILL_ENABLED", true),
			QueueName:             getEnv("BACKFILL_QUEUE_NAME", "vip:backfill:jobs"),
			EmailLookbackDays:     getEnvAsInt("BACKFILL_EMAIL_LOOKBACK_DAYS", 30),
			ExtendedLookbackDays:  getEnvAsInt("BACKFILL_EXTENDED_LOOKBACK_DAYS", 90),
			CalendarLookaheadDays: getEnvAsInt("BACKFILL_CALENDAR_LOOKAHEAD_DAYS", 2),
			MinContactThreshold:   getEnvAsInt("BACKFILL_MIN_CONTACT_THRESHOLD", 15),
			MaxRetries:            getEnvAsInt("BACKFILL_MAX_RETRIES", 3),
			PollTimeout:           getEnvAsDuration("BACKFILL_POLL_TIMEOUT", 5*time.Second),
			RecentCompletionSkip:  getEnvAsDuration("BACKFILL_RECENT_COMPLETION_SKIP", 24*time.Hour),
		},
		Scoring: ScoringConfig{
			DefaultLimit: getEnvAsInt("SCORING_DEFAULT_LIMIT", 50),
			MaxLimit:     getEnvAsInt("SCORING_MAX_LIMIT", 100),
			MaxSelection: getEnvAsInt("SCORING_MAX_SELECTION", 20),
		},
		Hashing: HashingConfig{
			Secret: getEnv("HASHING_SECRET", ""),
		},
		RateLimit: RateLimitConfig{
			ReadRPS:  getEnvAsInt("RATE_LIMIT_READ_RPS", 60),
			WriteRPS: getEnvAsInt("RATE_LIMIT_WRITE_RPS", 30),
			Burst:    getEnvAsInt("RATE_LIMIT_BURST", 10),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	return config, nil
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as an integer with a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsFloat gets an environment variable as a float with a default value
func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsBool gets an environment variable as a boolean with a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration gets an environment variable as a duration with a default value
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
