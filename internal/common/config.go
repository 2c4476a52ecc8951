package common

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	Database  DatabaseConfig
	Server    ServerConfig
	LLM       LLMConfig
	Edgar     EdgarConfig
	Scheduler SchedulerConfig
	Worker    WorkerConfig
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	DSN              string
	MaxConns         int32
	MinConns         int32
	MaxConnLifetime  time.Duration
	MaxConnIdleTime  time.Duration
	DialTimeout      time.Duration
	StatementTimeout time.Duration
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	HTTPAddr string
}

// LLMConfig holds LLM-related configuration
type LLMConfig struct {
	Model       string
	APIKey      string
	BaseURL     string
	Temperature float32
	Timeout     time.Duration
}

// EdgarConfig holds SEC EDGAR client configuration.
// SEC requires a descriptive User-Agent with a contact address.
type EdgarConfig struct {
	BaseURL   string
	UserAgent string
	Timeout   time.Duration
}

// SchedulerConfig holds the EDGAR poll loop configuration
type SchedulerConfig struct {
	PollInterval time.Duration
	EnabledForms []string
	LookbackDays int
}

// WorkerConfig holds the queue consumer configuration
type WorkerConfig struct {
	PollInterval   time.Duration
	StaleThreshold time.Duration
	MaxAttempts    int
	ReapEvery      int // reap_stale runs once per this many polls
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			DSN:              getEnv("DB_URL", ""),
			MaxConns:         getEnvAsInt32("DB_MAX_CONNS", 20),
			MinConns:         getEnvAsInt32("DB_MIN_CONNS", 5),
			MaxConnLifetime:  getEnvAsDuration("DB_MAX_CONN_LIFETIME", 30*time.Minute),
			MaxConnIdleTime:  getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 5*time.Minute),
			DialTimeout:      getEnvAsDuration("DB_DIAL_TIMEOUT", 3*time.Second),
			StatementTimeout: getEnvAsDuration("DB_STATEMENT_TIMEOUT", 0),
		},
		Server: ServerConfig{
			HTTPAddr: getEnv("HTTP_ADDR", ":8080"),
		},
		LLM: LLMConfig{
			Model:       getEnv("OPENAI_MODEL", "gpt-4o-mini"),
			APIKey:      getEnv("OPENAI_API_KEY", ""),
			BaseURL:     getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
			Temperature: getEnvAsFloat32("OPENAI_TEMPERATURE", 0.2),
			Timeout:     getEnvAsDuration("OPENAI_TIMEOUT", 45*time.Second),
		},
		Edgar: EdgarConfig{
			BaseURL:   getEnv("EDGAR_BASE_URL", "https://data.sec.gov"),
			UserAgent: getEnv("EDGAR_USER_AGENT", ""),
			Timeout:   getEnvAsDuration("EDGAR_TIMEOUT", 30*time.Second),
		},
		Scheduler: SchedulerConfig{
			PollInterval: getEnvAsSeconds("SCHEDULER_POLL_INTERVAL", 21600*time.Second),
			EnabledForms: getEnvAsList("SCHEDULER_ENABLED_FORMS", []string{"10-K", "10-Q"}),
			LookbackDays: getEnvAsInt("SCHEDULER_FILING_LOOKBACK_DAYS", 30),
		},
		Worker: WorkerConfig{
			PollInterval:   getEnvAsSeconds("WORKER_POLL_INTERVAL", 2*time.Second),
			StaleThreshold: getEnvAsSeconds("WORKER_STALE_THRESHOLD", 600*time.Second),
			MaxAttempts:    getEnvAsInt("WORKER_MAX_ATTEMPTS", 3),
			ReapEvery:      getEnvAsInt("WORKER_REAP_EVERY", 30),
		},
	}
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt32(key string, defaultValue int32) int32 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(intVal)
		}
	}
	return defaultValue
}

func getEnvAsFloat32(key string, defaultValue float32) float32 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 32); err == nil {
			return float32(floatVal)
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getEnvAsSeconds parses a bare number of seconds (fractions allowed), the
// unit the scheduler/worker variables are documented in.
func getEnvAsSeconds(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if secs, err := strconv.ParseFloat(value, 64); err == nil && secs > 0 {
			return time.Duration(secs * float64(time.Second))
		}
	}
	return defaultValue
}

// getEnvAsList parses a comma-separated list, trimming whitespace.
func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

// ValidateConfig validates the loaded configuration
func (c *Config) Validate() error {
	if c.Database.DSN == "" {
		return NewAppError("CONFIG_ERROR", "DB_URL is required", ErrInvalidInput)
	}
	if c.Server.HTTPAddr == "" {
		return NewAppError("CONFIG_ERROR", "HTTP_ADDR is required", ErrInvalidInput)
	}
	if c.Scheduler.LookbackDays <= 0 {
		return NewAppError("CONFIG_ERROR", "SCHEDULER_FILING_LOOKBACK_DAYS must be positive", ErrInvalidInput)
	}
	if c.Worker.MaxAttempts <= 0 {
		return NewAppError("CONFIG_ERROR", "WORKER_MAX_ATTEMPTS must be positive", ErrInvalidInput)
	}
	return nil
}

// ValidateLLM checks the variables only the worker process needs.
func (c *Config) ValidateLLM() error {
	if c.LLM.APIKey == "" {
		return NewAppError("CONFIG_ERROR", "OPENAI_API_KEY is required", ErrInvalidInput)
	}
	return nil
}

// ValidateEdgar checks the variables only the scheduler and worker need.
func (c *Config) ValidateEdgar() error {
	if c.Edgar.UserAgent == "" {
		return NewAppError("CONFIG_ERROR", "EDGAR_USER_AGENT is required (SEC fair-access policy)", ErrInvalidInput)
	}
	return nil
}
