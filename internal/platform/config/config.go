package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is centralized process configuration.
// Keep infra values here and pass typed config into builders.
type Config struct {
	ServiceName string
	HTTPPort    string
	PostgresDSN string
	RedisURL    string
	LogLevel    string

	EmailAPIKey     string
	EmailFrom       string
	EmailAPIBaseURL string
	AppBaseURL      string

	WorkerName        string
	PollInterval      time.Duration
	HeartbeatInterval time.Duration
	HeartbeatFresh    time.Duration
	SweepInterval     time.Duration
	LeaseTimeout      time.Duration
	HandlerTimeout    time.Duration
	BridgeBatchSize   int
	JobBatchSize      int
	Concurrency       int
	MaxAttempts       int
	RetryBaseDelay    time.Duration
	RetryMaxDelay     time.Duration

	MigrateOnStart bool
}

// Load reads the process environment. A .env file in the working directory is
// applied first when present; real environment values win.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	service := os.Getenv("SERVICE_NAME")
	if service == "" {
		service = "taskpipe"
	}

	port := os.Getenv("HTTP_PORT")
	if port == "" {
		port = "8080"
	}

	workerName := strings.TrimSpace(os.Getenv("WORKER_NAME"))
	if workerName == "" {
		workerName = "queue_worker"
	}

	env := &envReader{}
	cfg := Config{
		ServiceName: service,
		HTTPPort:    port,
		PostgresDSN: strings.TrimSpace(os.Getenv("POSTGRES_DSN")),
		RedisURL:    strings.TrimSpace(os.Getenv("REDIS_URL")),
		LogLevel:    envString("LOG_LEVEL", "info"),

		EmailAPIKey:     strings.TrimSpace(os.Getenv("EMAIL_API_KEY")),
		EmailFrom:       strings.TrimSpace(os.Getenv("EMAIL_FROM")),
		EmailAPIBaseURL: envString("EMAIL_API_BASE_URL", "https://api.resend.com"),
		AppBaseURL:      envString("APP_BASE_URL", "http://localhost:3000"),

		WorkerName:        workerName,
		PollInterval:      env.duration("POLL_INTERVAL", 2*time.Second),
		HeartbeatInterval: env.duration("HEARTBEAT_INTERVAL", 15*time.Second),
		HeartbeatFresh:    env.duration("HEARTBEAT_FRESHNESS", 60*time.Second),
		SweepInterval:     env.duration("SWEEP_INTERVAL", time.Minute),
		LeaseTimeout:      env.duration("LEASE_TIMEOUT", 5*time.Minute),
		HandlerTimeout:    env.duration("HANDLER_TIMEOUT", 60*time.Second),
		BridgeBatchSize:   env.integer("BRIDGE_BATCH_SIZE", 50),
		JobBatchSize:      env.integer("BATCH_SIZE", 10),
		Concurrency:       env.integer("WORKER_CONCURRENCY", 1),
		MaxAttempts:       env.integer("MAX_ATTEMPTS", 5),
		RetryBaseDelay:    env.duration("RETRY_BASE_DELAY", 10*time.Second),
		RetryMaxDelay:     env.duration("RETRY_MAX_DELAY", 0),

		MigrateOnStart: env.boolean("MIGRATE_ON_START", false),
	}
	if len(env.invalid) > 0 {
		return Config{}, fmt.Errorf("invalid configuration: %s", strings.Join(env.invalid, ", "))
	}
	if err := cfg.validateRuntime(); err != nil {
		return Config{}, err
	}
	if cfg.LeaseTimeout <= cfg.HandlerTimeout {
		return Config{}, fmt.Errorf("LEASE_TIMEOUT (%s) must exceed HANDLER_TIMEOUT (%s)", cfg.LeaseTimeout, cfg.HandlerTimeout)
	}
	if cfg.Concurrency < 1 {
		return Config{}, errors.New("WORKER_CONCURRENCY must be at least 1")
	}
	if cfg.MaxAttempts < 1 {
		return Config{}, errors.New("MAX_ATTEMPTS must be at least 1")
	}
	return cfg, nil
}

// validateRuntime rejects values the worker loops cannot run with; a zero
// ticker interval panics.
func (c Config) validateRuntime() error {
	positive := []struct {
		name  string
		value time.Duration
	}{
		{"POLL_INTERVAL", c.PollInterval},
		{"HEARTBEAT_INTERVAL", c.HeartbeatInterval},
		{"HEARTBEAT_FRESHNESS", c.HeartbeatFresh},
		{"SWEEP_INTERVAL", c.SweepInterval},
		{"LEASE_TIMEOUT", c.LeaseTimeout},
		{"HANDLER_TIMEOUT", c.HandlerTimeout},
	}
	var invalid []string
	for _, setting := range positive {
		if setting.value <= 0 {
			invalid = append(invalid, setting.name)
		}
	}
	if c.BridgeBatchSize < 1 {
		invalid = append(invalid, "BRIDGE_BATCH_SIZE")
	}
	if c.JobBatchSize < 1 {
		invalid = append(invalid, "BATCH_SIZE")
	}
	if len(invalid) > 0 {
		return fmt.Errorf("must be positive: %s", strings.Join(invalid, ", "))
	}
	return nil
}

// ValidateWorker reports every setting the worker cannot start without.
func (c Config) ValidateWorker() error {
	var missing []string
	if c.PostgresDSN == "" {
		missing = append(missing, "POSTGRES_DSN")
	}
	if c.RedisURL == "" {
		missing = append(missing, "REDIS_URL")
	}
	if c.EmailAPIKey == "" {
		missing = append(missing, "EMAIL_API_KEY")
	}
	if c.EmailFrom == "" {
		missing = append(missing, "EMAIL_FROM")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	return nil
}

// ValidateAPI reports every setting the ops API cannot start without.
func (c Config) ValidateAPI() error {
	if c.PostgresDSN == "" {
		return errors.New("missing required configuration: POSTGRES_DSN")
	}
	return nil
}

func envString(name string, fallback string) string {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback
	}
	return raw
}

// envReader parses typed settings and records every malformed one.
type envReader struct {
	invalid []string
}

func (r *envReader) integer(name string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		r.invalid = append(r.invalid, name)
		return fallback
	}
	return value
}

func (r *envReader) duration(name string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback
	}
	value, err := time.ParseDuration(raw)
	if err != nil || value < 0 {
		r.invalid = append(r.invalid, name)
		return fallback
	}
	return value
}

func (r *envReader) boolean(name string, fallback bool) bool {
	raw := strings.TrimSpace(strings.ToLower(os.Getenv(name)))
	if raw == "" {
		return fallback
	}
	switch raw {
	case "1", "true", "t", "yes", "y", "on":
		return true
	case "0", "false", "f", "no", "n", "off":
		return false
	default:
		r.invalid = append(r.invalid, name)
		return fallback
	}
}
