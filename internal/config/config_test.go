package config

import (
	"os"
	"testing"
	"time"
)

func TestLoadConfig(t *testing.T) {
	// Set some test environment variables
	if err := os.Setenv("SERVER_PORT", "9090"); err != nil {
		t.Fatalf("Failed to set SERVER_PORT: %v", err)
	}
	if err := os.Setenv("POSTGRES_HOST", "testhost"); err != nil {
		t.Fatalf("Failed to set POSTGRES_HOST: %v", err)
	}
	if err := os.Setenv("BACKFILL_POLL_TIMEOUT", "30s"); err != nil {
		t.Fatalf("Failed to set BACKFILL_POLL_TIMEOUT: %v", err)
	}
	defer func() {
		_ = os.Unsetenv("SERVER_PORT")
		_ = os.Unsetenv("POSTGRES_HOST")
		_ = os.Unsetenv("BACKFILL_POLL_TIMEOUT")
	}()

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Server.Port != "9090" {
		t.Errorf("Server.Port = %v, want %v", cfg.Server.Port, "9090")
	}

	if cfg.Database.Postgres.Host != "testhost" {
		t.Errorf("Database.Postgres.Host = %v, want %v", cfg.Database.Postgres.Host, "testhost")
	}

	if cfg.Backfill.PollTimeout != 30*time.Second {
		t.Errorf("Backfill.PollTimeout = %v, want %v", cfg.Backfill.PollTimeout, 30*time.Second)
	}
}

func TestLoadConfig_BackfillDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Backfill.EmailLookbackDays != 30 {
		t.Errorf("Backfill.EmailLookbackDays = %v, want %v", cfg.Backfill.EmailLookbackDays, 30)
	}
	if cfg.Backfill.ExtendedLookbackDays != 90 {
		t.Errorf("Backfill.ExtendedLookbackDays = %v, want %v", cfg.Backfill.ExtendedLookbackDays, 90)
	}
	if cfg.Backfill.CalendarLookaheadDays != 2 {
		t.Errorf("Backfill.CalendarLookaheadDays = %v, want %v", cfg.Backfill.CalendarLookaheadDays, 2)
	}
	if cfg.Backfill.MinContactThreshold != 15 {
		t.Errorf("Backfill.MinContactThreshold = %v, want %v", cfg.Backfill.MinContactThreshold, 15)
	}
	if cfg.Backfill.MaxRetries != 3 {
		t.Errorf("Backfill.MaxRetries = %v, want %v", cfg.Backfill.MaxRetries, 3)
	}
	if cfg.Backfill.RecentCompletionSkip != 24*time.Hour {
		t.Errorf("Backfill.RecentCompletionSkip = %v, want %v", cfg.Backfill.RecentCompletionSkip, 24*time.Hour)
	}
	if cfg.Scoring.DefaultLimit != 50 {
		t.Errorf("Scoring.DefaultLimit = %v, want %v", cfg.Scoring.DefaultLimit, 50)
	}
	if cfg.Scoring.MaxLimit != 100 {
		t.Errorf("Scoring.MaxLimit = %v, want %v", cfg.Scoring.MaxLimit, 100)
	}
	if cfg.Scoring.MaxSelection != 20 {
		t.Errorf("Scoring.MaxSelection = %v, want %v", cfg.Scoring.MaxSelection, 20)
	}
}

func TestGetEnv(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		defaultValue string
		envValue     string
		want         string
	}{
		{
			name:         "returns environment variable when set",
			key:          "TEST_KEY",
			defaultValue: "default",
			envValue:     "custom",
			want:         "custom",
		},
		{
			name:         "returns default when environment variable not set",
			key:          "NONEXISTENT_KEY",
			defaultValue: "default",
			envValue:     "",
			want:         "default",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				if err := os.Setenv(tt.key, tt.envValue); err != nil {
					t.Fatalf("Failed to set env var: %v", err)
				}
				defer func() {
					_ = os.Unsetenv(tt.key)
				}()
			}

			got := getEnv(tt.key, tt.defaultValue)
			if got != tt.want {
				t.Errorf("getEnv() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetEnvAsInt(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		defaultValue int
		envValue     string
		want         int
	}{
		{
			name:         "returns integer when valid",
			key:          "TEST_INT",
			defaultValue: 100,
			envValue:     "200",
			want:         200,
		},
		{
			name:         "returns default when invalid",
			key:          "TEST_INT_INVALID",
			defaultValue: 100,
			envValue:     "invalid",
			want:         100,
		},
		{
			name:         "returns default when not set",
			key:          "TEST_INT_NOTSET",
			defaultValue: 100,
			envValue:     "",
			want:         100,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				if err := os.Setenv(tt.key, tt.envValue); err != nil {
					t.Fatalf("Failed to set env var: %v", err)
				}
				defer func() {
					_ = os.Unsetenv(tt.key)
				}()
			}

			got := getEnvAsInt(tt.key, tt.defaultValue)
			if got != tt.want {
				t.Errorf("getEnvAsInt() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetEnvAsFloat(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		defaultValue float64
		envValue     string
		want         float64
	}{
		{
			name:         "returns float when valid",
			key:          "TEST_FLOAT",
			defaultValue: 1.5,
			envValue:     "2.5",
			want:         2.5,
		},
		{
			name:         "returns default when invalid",
			key:          "TEST_FLOAT_INVALID",
			defaultValue: 1.5,
			envValue:     "invalid",
			want:         1.5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				if err := os.Setenv(tt.key, tt.envValue); err != nil {
					t.Fatalf("Failed to set env var: %v", err)
				}
				defer func() {
					_ = os.Unsetenv(tt.key)
				}()
			}

			got := getEnvAsFloat(tt.key, tt.defaultValue)
			if got != tt.want {
				t.Errorf("getEnvAsFloat() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetEnvAsDuration(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		defaultValue time.Duration
		envValue     string
		want         time.Duration
	}{
		{
			name:         "returns duration when valid",
			key:          "TEST_DURATION",
			defaultValue: 10 * time.Second,
			envValue:     "30s",
			want:         30 * time.Second,
		},
		{
			name:         "returns default when invalid",
			key:          "TEST_DURATION_INVALID",
			defaultValue: 10 * time.Second,
			envValue:     "invalid",
			want:         10 * time.Second,
		},
		{
			name:         "returns default when not set",
			key:          "TEST_DURATION_NOTSET",
			defaultValue: 10 * time.Second,
			envValue:     "",
			want:         10 * time.Second,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				if err := os.Setenv(tt.key, tt.envValue); err != nil {
					t.Fatalf("Failed to set env var: %v", err)
				}
				defer func() {
					_ = os.Unsetenv(tt.key)
				}()
			}

			got := getEnvAsDuration(tt.key, tt.defaultValue)
			if got != tt.want {
				t.Errorf("getEnvAsDuration() = %v, want %v", got, tt.want)
			}
		})
	}
}
