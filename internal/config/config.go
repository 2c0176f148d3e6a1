// Package config handles application configuration and environment loading.
package config

import (
	"bufio"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
)

// DBConfig describes one database connection. Driver selects the engine:
// "postgres" (pgx stdlib), "sqlite3", or "duckdb". File-based engines use
// Path; server engines use Host/Port/Name/User/Password.
type DBConfig struct {
	Driver   string
	Host     string
	Port     int
	Name     string
	User     string
	Password string
	Schema   string // namespace for server engines, ignored by file engines
	Path     string // database file for sqlite3/duckdb
}

// DSN builds the driver-specific connection string.
func (d *DBConfig) DSN() string {
	switch d.Driver {
	case "postgres":
		u := url.URL{
			Scheme: "postgres",
			User:   url.UserPassword(d.User, d.Password),
			Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
			Path:   "/" + d.Name,
		}
		q := url.Values{}
		if d.Schema != "" {
			q.Set("search_path", d.Schema)
		}
		u.RawQuery = q.Encode()
		return u.String()
	case "sqlite3":
		params := url.Values{}
		params.Set("_journal_mode", "WAL")
		params.Set("_busy_timeout", "5000")
		params.Set("_foreign_keys", "on")
		return d.Path + "?" + params.Encode()
	default: // duckdb
		return d.Path
	}
}

// Validate checks that the descriptor is usable.
func (d *DBConfig) Validate(prefix string) error {
	switch d.Driver {
	case "postgres":
		if d.Host == "" || d.Name == "" || d.User == "" {
			return fmt.Errorf("%s_HOST, %s_NAME and %s_USER are required for postgres", prefix, prefix, prefix)
		}
	case "sqlite3", "duckdb":
		// empty Path is a valid in-memory database for both engines
	default:
		return fmt.Errorf("%s_DRIVER %q: must be postgres, sqlite3 or duckdb", prefix, d.Driver)
	}
	return nil
}

// Config holds the configuration for the sync manager server and CLI.
type Config struct {
	Source DBConfig // database "A", read side
	Target DBConfig // database "B", warehouse side

	ListenAddr string // HTTP listen address (default ":8080")
	LogLevel   string // debug, info, warn, error (default "info")
	Env        string // "development" (default) or "production"

	SyncWorkers   int // concurrent job executors (default 4)
	SyncQueueSize int // pending job queue capacity (default 64)
	BatchSize     int // extraction/load batch size (default 500)

	// Optional cron schedule for automatic syncs.
	Schedule     string
	ScheduleType string // sync type submitted by the schedule (default "both")

	// Rate limiting
	RateLimitRPS   float64 // sustained requests per second (default 100)
	RateLimitBurst int     // burst capacity (default 200)

	// CORS
	CORSAllowedOrigins []string // default: ["*"]

	// Warnings collects non-fatal warnings generated during config loading.
	// They are logged by the caller after the logger is initialised.
	Warnings []string
}

// SlogLevel maps the LogLevel string to an slog.Level.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// IsProduction returns true when running in production mode.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// LoadFromEnv loads configuration from environment variables.
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		Source:       loadDBEnv("DB_A"),
		Target:       loadDBEnv("DB_B"),
		ListenAddr:   os.Getenv("LISTEN_ADDR"),
		LogLevel:     os.Getenv("LOG_LEVEL"),
		Env:          os.Getenv("ENV"),
		Schedule:     os.Getenv("SYNC_SCHEDULE"),
		ScheduleType: os.Getenv("SYNC_SCHEDULE_TYPE"),
	}

	cfg.SyncWorkers = intEnv("SYNC_WORKERS", 4)
	cfg.SyncQueueSize = intEnv("SYNC_QUEUE_SIZE", 64)
	cfg.BatchSize = intEnv("SYNC_BATCH_SIZE", 500)

	if v := os.Getenv("RATE_LIMIT_RPS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.RateLimitRPS = f
		}
	}
	cfg.RateLimitBurst = intEnv("RATE_LIMIT_BURST", 0)

	if v := os.Getenv("CORS_ALLOWED_ORIGINS"); v != "" {
		origins := strings.Split(v, ",")
		for i := range origins {
			origins[i] = strings.TrimSpace(origins[i])
		}
		cfg.CORSAllowedOrigins = origins
	}

	// Defaults
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.ScheduleType == "" {
		cfg.ScheduleType = "both"
	}
	if cfg.RateLimitRPS == 0 {
		cfg.RateLimitRPS = 100
	}
	if cfg.RateLimitBurst == 0 {
		cfg.RateLimitBurst = 200
	}
	if len(cfg.CORSAllowedOrigins) == 0 {
		cfg.CORSAllowedOrigins = []string{"*"}
	}

	if err := cfg.Source.Validate("DB_A"); err != nil {
		return nil, err
	}
	if err := cfg.Target.Validate("DB_B"); err != nil {
		return nil, err
	}

	if cfg.Source.Driver == "sqlite3" && cfg.Source.Path == "" {
		cfg.Warnings = append(cfg.Warnings, "DB_A_PATH not set — source sqlite runs in memory")
	}

	// Production mode: insecure defaults are fatal errors.
	if cfg.IsProduction() {
		if len(cfg.CORSAllowedOrigins) == 1 && cfg.CORSAllowedOrigins[0] == "*" {
			return nil, fmt.Errorf("CORS wildcard (*) is not allowed in production (ENV=production)")
		}
		if cfg.Source.Driver == "postgres" && cfg.Source.Password == "" {
			return nil, fmt.Errorf("DB_A_PASSWORD must be set in production (ENV=production)")
		}
	}

	return cfg, nil
}

// loadDBEnv reads one DB descriptor from <prefix>_* variables.
// Defaults mirror the historical deployment: postgres on 5432, public schema.
func loadDBEnv(prefix string) DBConfig {
	d := DBConfig{
		Driver:   os.Getenv(prefix + "_DRIVER"),
		Host:     os.Getenv(prefix + "_HOST"),
		Name:     os.Getenv(prefix + "_NAME"),
		User:     os.Getenv(prefix + "_USER"),
		Password: os.Getenv(prefix + "_PASSWORD"),
		Schema:   os.Getenv(prefix + "_SCHEMA"),
		Path:     os.Getenv(prefix + "_PATH"),
	}
	d.Port = intEnv(prefix+"_PORT", 5432)
	if d.Driver == "" {
		d.Driver = "postgres"
	}
	if d.Schema == "" {
		d.Schema = "public"
	}
	return d
}

func intEnv(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

// LoadDotEnv reads a .env file and sets any variables not already in the
// environment. Lines must be KEY=VALUE; comments (#) and blanks are skipped.
func LoadDotEnv(path string) error {
	f, err := os.Open(path) //nolint:gosec // path is caller-controlled
	if err != nil {
		if os.IsNotExist(err) {
			return nil // .env not found is not an error
		}
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close() //nolint:errcheck

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = stripQuotes(strings.TrimSpace(value))
		// Env vars take precedence over the file.
		if os.Getenv(key) == "" {
			if err := os.Setenv(key, value); err != nil {
				return fmt.Errorf("setenv %s: %w", key, err)
			}
		}
	}
	return scanner.Err()
}

// stripQuotes removes surrounding double or single quotes from a value.
func stripQuotes(s string) string {
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}
