package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type DB struct {
	User string
	Pass string
	Host string
	Port string
	Name string
}

type NSQ struct {
	NsqdTCPAddr string // e.g. nsqd:4150
	DLQTopic    string // dead letter topic for exhausted deliveries
	PublishDLQ  bool   // whether exhausted deliveries are published at all
}

type Delivery struct {
	DefaultMaxRetries     int           // per-endpoint default when unset at create time
	DefaultTimeoutSeconds int           // per-endpoint default when unset at create time
	UserAgent             string        // User-Agent header on outbound webhooks
	MaxResponseBytes      int64         // cap on stored response bodies
	TestTimeout           time.Duration // timeout for the test-endpoint diagnostic
}

type Retry struct {
	PollSchedule    string // cron spec for the due-delivery sweep
	CleanupSchedule string // cron spec for the retention sweep
	RetentionDays   int    // rows older than this are removed by cleanup
	BatchSize       int    // max due deliveries claimed per sweep
	Concurrency     int    // parallel retries per sweep
	HTTPPort        string // retry-worker health/metrics port
}

type Auth struct {
	AdminSecret string // HS256 secret for admin API tokens
	Environment string // development | staging | production
}

type Config struct {
	AppName  string
	HTTPPort string // :8080
	DB       DB
	NSQ      NSQ
	Delivery Delivery
	Retry    Retry
	Auth     Auth
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getenvInt64(key string, def int64) int64 {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			return i
		}
	}
	return def
}

func getenvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getenvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func FromEnv() Config {
	return Config{
		AppName:  getenv("APP_NAME", "webhookd"),
		HTTPPort: getenv("HTTP_PORT", ":8080"),
		DB: DB{
			User: getenv("DB_USER", "postgres"),
			Pass: getenv("DB_PASS", "postgres"),
			Host: getenv("DB_HOST", "postgres"),
			Port: getenv("DB_PORT", "5432"),
			Name: getenv("DB_NAME", "webhookd"),
		},
		NSQ: NSQ{
			NsqdTCPAddr: getenv("NSQD_TCP_ADDR", "nsqd:4150"),
			DLQTopic:    getenv("NSQ_DLQ_TOPIC", "webhook_deliveries_dlq"),
			PublishDLQ:  getenvBool("PUBLISH_DLQ_TOPIC", false),
		},
		Delivery: Delivery{
			DefaultMaxRetries:     getenvInt("DELIVERY_DEFAULT_MAX_RETRIES", 3),
			DefaultTimeoutSeconds: getenvInt("DELIVERY_DEFAULT_TIMEOUT_SECONDS", 30),
			UserAgent:             getenv("DELIVERY_USER_AGENT", "vendwell-webhookd/1.0"),
			MaxResponseBytes:      getenvInt64("DELIVERY_MAX_RESPONSE_BYTES", 4096),
			TestTimeout:           getenvDuration("DELIVERY_TEST_TIMEOUT", 10*time.Second),
		},
		Retry: Retry{
			PollSchedule:    getenv("RETRY_POLL_SCHEDULE", "* * * * *"),
			CleanupSchedule: getenv("CLEANUP_SCHEDULE", "30 3 * * *"),
			RetentionDays:   getenvInt("RETENTION_DAYS", 30),
			BatchSize:       getenvInt("RETRY_BATCH_SIZE", 100),
			Concurrency:     getenvInt("RETRY_CONCURRENCY", 10),
			HTTPPort:        ":" + getenv("RETRY_WORKER_HTTP_PORT", "8083"),
		},
		Auth: Auth{
			AdminSecret: getenv("ADMIN_API_SECRET", ""),
			Environment: getenv("ENVIRONMENT", "development"),
		},
	}
}

// Validate enforces fail-fast startup checks. Outside development there is
// no fallback secret: a missing ADMIN_API_SECRET refuses to start rather
// than silently defaulting to a known value.
func (c Config) Validate() error {
	env := strings.ToLower(c.Auth.Environment)
	switch env {
	case "development", "staging", "production":
	default:
		return fmt.Errorf("unknown ENVIRONMENT %q", c.Auth.Environment)
	}
	if env != "development" && c.Auth.AdminSecret == "" {
		return fmt.Errorf("ADMIN_API_SECRET is required when ENVIRONMENT=%s", env)
	}
	if c.Delivery.DefaultMaxRetries < 1 {
		return fmt.Errorf("DELIVERY_DEFAULT_MAX_RETRIES must be >= 1, got %d", c.Delivery.DefaultMaxRetries)
	}
	if c.Delivery.DefaultTimeoutSeconds < 1 {
		return fmt.Errorf("DELIVERY_DEFAULT_TIMEOUT_SECONDS must be >= 1, got %d", c.Delivery.DefaultTimeoutSeconds)
	}
	if c.Retry.RetentionDays < 1 {
		return fmt.Errorf("RETENTION_DAYS must be >= 1, got %d", c.Retry.RetentionDays)
	}
	return nil
}

func (c Config) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		c.DB.User, c.DB.Pass, c.DB.Host, c.DB.Port, c.DB.Name)
}
