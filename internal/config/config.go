package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Data backends.
const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// Queue backends.
const (
	QueueFile   = "file"
	QueueSQLite = "sqlite"
	QueueMemory = "memory"
)

type Config struct {
	// HTTP Server
	Port string

	// Remote store
	DataBackend    string
	SQLiteDBPath   string
	PostgresDSN    string
	GatewayTimeout time.Duration

	// Offline queue
	QueueBackend string
	QueueFile    string

	// Session
	UserID string

	// Sync
	SyncInterval  time.Duration
	SyncBackoff   bool
	ProbeInterval time.Duration

	// Cache
	CacheTTL        time.Duration
	CacheMaxEntries int

	// AMQP (optional for the server, required by the worker)
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Google Sheets
	GoogleSpreadsheetID string
	GoogleSheetName     string

	// Rate limiting per client IP
	RateLimit  int
	RateWindow time.Duration

	LogLevel string
}

func Load() *Config {
	return &Config{
		Port: getEnv("PORT", "8081"),

		DataBackend:    getEnv("DATA_BACKEND", BackendMemory),
		SQLiteDBPath:   getEnv("SQLITE_DB_PATH", "./data/faturas.db"),
		PostgresDSN:    getEnv("POSTGRES_DSN", ""),
		GatewayTimeout: getEnvDuration("GATEWAY_TIMEOUT", 10*time.Second),

		QueueBackend: getEnv("QUEUE_BACKEND", QueueFile),
		QueueFile:    getEnv("QUEUE_FILE", "./data/queue.json"),

		UserID: getEnv("USER_ID", ""),

		SyncInterval:  getEnvDuration("SYNC_INTERVAL", 30*time.Second),
		SyncBackoff:   getEnvBool("SYNC_BACKOFF", false),
		ProbeInterval: getEnvDuration("PROBE_INTERVAL", 10*time.Second),

		CacheTTL:        getEnvDuration("CACHE_TTL", 5*time.Minute),
		CacheMaxEntries: getEnvInt("CACHE_MAX_ENTRIES", 64),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "faturas"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "invoices_changed"),

		GoogleSpreadsheetID: getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleSheetName:     getEnv("GOOGLE_SHEET_NAME", "Faturas"),

		RateLimit:  getEnvInt("RATE_LIMIT", 120),
		RateWindow: getEnvDuration("RATE_WINDOW", time.Minute),

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	// Validate port
	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	validBackends := []string{BackendMemory, BackendSQLite, BackendPostgres}
	if !slices.Contains(validBackends, c.DataBackend) {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}

	validQueues := []string{QueueFile, QueueSQLite, QueueMemory}
	if !slices.Contains(validQueues, c.QueueBackend) {
		errors = append(errors, fmt.Sprintf("invalid queue backend '%s': must be one of %v", c.QueueBackend, validQueues))
	}

	if c.DataBackend == BackendSQLite || c.QueueBackend == QueueSQLite {
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when SQLite is used")
		} else if msg := ensureDir(c.SQLiteDBPath, "SQLite database"); msg != "" {
			errors = append(errors, msg)
		}
	}

	if c.DataBackend == BackendPostgres {
		if c.PostgresDSN == "" {
			errors = append(errors, "POSTGRES_DSN is required when using postgres backend")
		} else if u, err := url.Parse(c.PostgresDSN); err != nil || (u.Scheme != "postgres" && u.Scheme != "postgresql") {
			errors = append(errors, "invalid POSTGRES_DSN: must be a postgres:// URL")
		}
	}

	if c.QueueBackend == QueueFile {
		if c.QueueFile == "" {
			errors = append(errors, "queue file path cannot be empty when using file queue")
		} else if msg := ensureDir(c.QueueFile, "queue file"); msg != "" {
			errors = append(errors, msg)
		}
	}

	// Validate AMQP URL if provided
	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if c.SyncInterval < time.Second {
		errors = append(errors, fmt.Sprintf("invalid sync interval %v: must be at least 1 second", c.SyncInterval))
	} else if c.SyncInterval > 24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid sync interval %v: must be at most 24 hours", c.SyncInterval))
	}
	if c.ProbeInterval < time.Second {
		errors = append(errors, fmt.Sprintf("invalid probe interval %v: must be at least 1 second", c.ProbeInterval))
	}
	if c.GatewayTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("invalid gateway timeout %v: must be positive", c.GatewayTimeout))
	}
	if c.CacheMaxEntries < 1 {
		errors = append(errors, fmt.Sprintf("invalid cache size %d: must be at least 1", c.CacheMaxEntries))
	}
	if c.RateLimit < 1 {
		errors = append(errors, fmt.Sprintf("invalid rate limit %d: must be at least 1", c.RateLimit))
	}

	// Return combined errors
	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

// ValidateWorker checks the settings the export worker cannot run without.
func (c *Config) ValidateWorker() error {
	var errors []string
	if c.AMQPURL == "" {
		errors = append(errors, "AMQP_URL is required for the worker")
	}
	if c.GoogleSpreadsheetID == "" {
		errors = append(errors, "GOOGLE_SPREADSHEET_ID is required for the worker")
	}
	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}
	return nil
}

// ensureDir creates the parent directory of path when missing.
func ensureDir(path, what string) string {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return ""
	}
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Sprintf("cannot create %s directory '%s': %v", what, dir, err)
		}
	}
	return ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
