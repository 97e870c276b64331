package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App          AppConfig
	Postgres     PostgresConfig
	Redis        RedisConfig
	Logger       LoggerConfig
	Auth         AuthConfig
	Notification NotificationConfig
	Zendesk      ZendeskConfig
	Reactive     ReactiveConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// PostgresConfig holds DB connection values. An empty DSN disables merge history.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig defines authentication parameters.
type AuthConfig struct {
	JWTSecret             string
	AccessTokenTTLMinutes int
}

// NotificationConfig holds outbound notification endpoints.
type NotificationConfig struct {
	WebhookURL string
}

// ZendeskConfig holds help desk API credentials.
type ZendeskConfig struct {
	Subdomain       string
	Email           string
	Token           string
	BaseURLOverride string
	TimeoutSeconds  int
}

// StateBackend selects where coordination state lives.
type StateBackend string

const (
	StateBackendMemory StateBackend = "memory"
	StateBackendRedis  StateBackend = "redis"
)

// ReactiveConfig tunes the reactive engine's policy windows.
type ReactiveConfig struct {
	StateBackend            StateBackend
	GracePeriodSeconds      int
	LockStaleMinutes        int
	SendWindowMinutes       int
	ProactiveWindowMinutes  int
	SaturationLimit         int
	RetentionHours          int
	MergeTimeoutSeconds     int
	JanitorSchedule         string
	DedupeWindowMinutes     int
	DuplicateSubjectMinutes int
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	backend := StateBackend(strings.ToLower(getEnv("REACTIVE_STATE_BACKEND", string(StateBackendMemory))))
	if backend != StateBackendMemory && backend != StateBackendRedis {
		return nil, fmt.Errorf("invalid REACTIVE_STATE_BACKEND %q", backend)
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "reactive-engine"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			JWTSecret:             getEnv("AUTH_JWT_SECRET", "dev-secret"),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60),
		},
		Notification: NotificationConfig{
			WebhookURL: getEnv("NOTIFY_WEBHOOK_URL", ""),
		},
		Zendesk: ZendeskConfig{
			Subdomain:       os.Getenv("ZENDESK_SUBDOMAIN"),
			Email:           os.Getenv("ZENDESK_EMAIL"),
			Token:           os.Getenv("ZENDESK_TOKEN"),
			BaseURLOverride: os.Getenv("ZENDESK_BASE_URL"),
			TimeoutSeconds:  getEnvAsInt("ZENDESK_TIMEOUT_SECONDS", 15),
		},
		Reactive: ReactiveConfig{
			StateBackend:            backend,
			GracePeriodSeconds:      getEnvAsInt("REACTIVE_GRACE_PERIOD_SECONDS", 120),
			LockStaleMinutes:        getEnvAsInt("REACTIVE_LOCK_STALE_MINUTES", 30),
			SendWindowMinutes:       getEnvAsInt("REACTIVE_SEND_WINDOW_MINUTES", 15),
			ProactiveWindowMinutes:  getEnvAsInt("REACTIVE_PROACTIVE_WINDOW_MINUTES", 30),
			SaturationLimit:         getEnvAsInt("REACTIVE_SATURATION_LIMIT", 5),
			RetentionHours:          getEnvAsInt("REACTIVE_RETENTION_HOURS", 24),
			MergeTimeoutSeconds:     getEnvAsInt("REACTIVE_MERGE_TIMEOUT_SECONDS", 60),
			JanitorSchedule:         getEnv("REACTIVE_JANITOR_SCHEDULE", "@every 5m"),
			DedupeWindowMinutes:     getEnvAsInt("REACTIVE_DEDUPE_WINDOW_MINUTES", 10),
			DuplicateSubjectMinutes: getEnvAsInt("REACTIVE_DUPLICATE_SUBJECT_MINUTES", 10),
		},
	}

	return cfg, nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// BaseURL returns the API root, preferring the explicit override.
func (z ZendeskConfig) BaseURL() string {
	if z.BaseURLOverride != "" {
		return z.BaseURLOverride
	}
	if z.Subdomain == "" {
		return ""
	}
	return fmt.Sprintf("https://%s.zendesk.com/api/v2", z.Subdomain)
}

// Enabled reports whether enough credentials are present to call Zendesk.
func (z ZendeskConfig) Enabled() bool {
	return z.BaseURL() != "" && z.Token != ""
}

// Timeout returns the per-request timeout.
func (z ZendeskConfig) Timeout() time.Duration {
	if z.TimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(z.TimeoutSeconds) * time.Second
}

func (r ReactiveConfig) GracePeriod() time.Duration {
	return durationOr(r.GracePeriodSeconds, time.Second, 120*time.Second)
}

func (r ReactiveConfig) LockStale() time.Duration {
	return durationOr(r.LockStaleMinutes, time.Minute, 30*time.Minute)
}

func (r ReactiveConfig) SendWindow() time.Duration {
	return durationOr(r.SendWindowMinutes, time.Minute, 15*time.Minute)
}

func (r ReactiveConfig) ProactiveWindow() time.Duration {
	return durationOr(r.ProactiveWindowMinutes, time.Minute, 30*time.Minute)
}

func (r ReactiveConfig) Retention() time.Duration {
	return durationOr(r.RetentionHours, time.Hour, 24*time.Hour)
}

func (r ReactiveConfig) MergeTimeout() time.Duration {
	return durationOr(r.MergeTimeoutSeconds, time.Second, 60*time.Second)
}

func (r ReactiveConfig) DedupeWindow() time.Duration {
	return durationOr(r.DedupeWindowMinutes, time.Minute, 10*time.Minute)
}

func (r ReactiveConfig) DuplicateSubjectWindow() time.Duration {
	return durationOr(r.DuplicateSubjectMinutes, time.Minute, 10*time.Minute)
}

func durationOr(value int, unit, fallback time.Duration) time.Duration {
	if value <= 0 {
		return fallback
	}
	return time.Duration(value) * unit
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}
