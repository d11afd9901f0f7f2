// Package config provides application configuration management with support for environment variables, command-line flags, and .env files.
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Storage backends.
const (
	BackendSQLite = "sqlite"
	BackendBadger = "badger"
)

// Config holds the application configuration.
type Config struct {
	App      AppConfig
	Logger   LoggerConfig
	Storage  StorageConfig
	Server   ServerConfig
	Sessions SessionsConfig
	Sweeper  SweeperConfig
	Calendar CalendarConfig
	Catalog  CatalogConfig
}

// AppConfig holds application-level configuration.
type AppConfig struct {
	Environment string
}

// LoggerConfig holds logging configuration.
type LoggerConfig struct {
	Level string
}

// StorageConfig selects and locates the session store.
type StorageConfig struct {
	DataPath string // Directory holding the database (default: ~/ReadTime/data)
	Backend  string // sqlite or badger (default: sqlite)
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Port           string        // Server port (default: 8080)
	ReadTimeout    time.Duration // HTTP read timeout (default: 15s)
	WriteTimeout   time.Duration // HTTP write timeout (default: 15s)
	IdleTimeout    time.Duration // HTTP idle timeout (default: 60s)
	CORSOrigins    []string      // Allowed origins (default: *)
	RateLimitRPS   float64       // Per-client requests per second, 0 disables (default: 20)
	RateLimitBurst int           // Per-client burst (default: 40)
	// TrustProxyHeaders takes the client IP from X-Forwarded-For/X-Real-IP.
	// Only enable behind a proxy that overwrites them (default: false).
	TrustProxyHeaders bool
}

// SessionsConfig bounds session bookkeeping.
type SessionsConfig struct {
	// MaxElapsed caps client-reported elapsed time (default: 24h).
	MaxElapsed time.Duration
	// RetentionMax is how many sessions are kept per user+book (default: 10).
	RetentionMax int
}

// SweeperConfig controls the reconciliation sweep of open sessions.
type SweeperConfig struct {
	Enabled  bool          // default: true
	Interval time.Duration // default: 60s
	// MinAge skips sessions younger than this. Zero closes every open session.
	MinAge time.Duration
}

// CalendarConfig holds calendar view configuration.
type CalendarConfig struct {
	Timezone string
	// Location is resolved from Timezone during load.
	Location *time.Location
}

// CatalogConfig configures user and book lookup.
type CatalogConfig struct {
	URL        string        // Remote catalog base URL (optional)
	File       string        // Local YAML catalog (optional, watched for changes)
	Permissive bool          // Accept unknown ids when no catalog resolves them
	CacheTTL   time.Duration // Remote lookup cache lifetime (default: 5m)
	CacheSize  int           // Remote lookup cache entries (default: 1024)
	RPS        float64       // Remote request rate (default: 10)
	Timeout    time.Duration // Remote request timeout (default: 5s)
}

// LoadConfig loads configuration from os.Args. See Load.
func LoadConfig() (*Config, error) {
	return Load(os.Args[1:])
}

// Load loads configuration from multiple sources with precedence:
// 1. Command-line flags (highest priority).
// 2. Environment variables.
// 3. .env file.
// 4. Default values (lowest priority).
func Load(args []string) (*Config, error) {
	fs := flag.NewFlagSet("readtime", flag.ContinueOnError)
	f := RegisterFlags(fs)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return f.Build()
}

// Flags holds raw flag values. Empty strings mean "not set".
type Flags struct {
	env, logLevel, envFile             *string
	dataPath, backend                  *string
	port, readTimeout, writeTimeout    *string
	idleTimeout, corsOrigins           *string
	rateLimitRPS, rateLimitBurst       *string
	trustProxyHeaders                  *string
	maxElapsed, retentionMax           *string
	sweepEnabled, sweepInterval        *string
	sweepMinAge, timezone              *string
	catalogURL, catalogFile            *string
	catalogPermissive, catalogCacheTTL *string
	catalogRPS                         *string
}

// RegisterFlags defines the configuration flags on fs.
// The CLI registers them on its own flag set; the server uses Load.
func RegisterFlags(fs *flag.FlagSet) *Flags {
	return &Flags{
		env:      fs.String("env", "", "Environment (development, staging, production)"),
		logLevel: fs.String("log-level", "", "Log level (debug, info, warn, error)"),
		envFile:  fs.String("env-file", ".env", "Path to .env file"),

		dataPath: fs.String("data-path", "", "Directory for the session database"),
		backend:  fs.String("store-backend", "", "Session store backend (sqlite, badger)"),

		port:              fs.String("port", "", "Server port (default: 8080)"),
		readTimeout:       fs.String("read-timeout", "", "HTTP read timeout (default: 15s)"),
		writeTimeout:      fs.String("write-timeout", "", "HTTP write timeout (default: 15s)"),
		idleTimeout:       fs.String("idle-timeout", "", "HTTP idle timeout (default: 60s)"),
		corsOrigins:       fs.String("cors-origins", "", "Comma-separated allowed CORS origins"),
		rateLimitRPS:      fs.String("rate-limit-rps", "", "Per-client request rate (default: 20)"),
		rateLimitBurst:    fs.String("rate-limit-burst", "", "Per-client burst (default: 40)"),
		trustProxyHeaders: fs.String("trust-proxy-headers", "", "Take client IPs from proxy headers (default: false)"),

		maxElapsed:   fs.String("session-max-elapsed", "", "Maximum elapsed time per session (default: 24h)"),
		retentionMax: fs.String("retention-max-sessions", "", "Sessions kept per user and book (default: 10)"),

		sweepEnabled:  fs.String("sweep-enabled", "", "Run the periodic sweep (default: true)"),
		sweepInterval: fs.String("sweep-interval", "", "Sweep interval (default: 60s)"),
		sweepMinAge:   fs.String("sweep-min-age", "", "Only sweep sessions older than this (default: 0)"),

		timezone: fs.String("calendar-timezone", "", "IANA timezone for calendar days (default: UTC)"),

		catalogURL:        fs.String("catalog-url", "", "Remote catalog base URL"),
		catalogFile:       fs.String("catalog-file", "", "Local YAML catalog file"),
		catalogPermissive: fs.String("catalog-permissive", "", "Accept ids no catalog knows about"),
		catalogCacheTTL:   fs.String("catalog-cache-ttl", "", "Remote catalog cache TTL (default: 5m)"),
		catalogRPS:        fs.String("catalog-rps", "", "Remote catalog request rate (default: 10)"),
	}
}

// Build resolves the parsed flags against the environment and defaults.
func (f *Flags) Build() (*Config, error) {
	// Load .env file if it exists. godotenv never overrides variables
	// already present in the environment.
	if err := godotenv.Load(*f.envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load env file %s: %w", *f.envFile, err)
	}

	p := &parser{}
	cfg := &Config{
		App: AppConfig{
			Environment: getConfigValue(*f.env, "ENV", "development"),
		},
		Logger: LoggerConfig{
			Level: getConfigValue(*f.logLevel, "LOG_LEVEL", "info"),
		},
		Storage: StorageConfig{
			DataPath: getConfigValue(*f.dataPath, "DATA_PATH", ""),
			Backend:  strings.ToLower(getConfigValue(*f.backend, "STORE_BACKEND", BackendSQLite)),
		},
		Server: ServerConfig{
			Port:              getConfigValue(*f.port, "SERVER_PORT", "8080"),
			ReadTimeout:       p.duration(*f.readTimeout, "SERVER_READ_TIMEOUT", "15s"),
			WriteTimeout:      p.duration(*f.writeTimeout, "SERVER_WRITE_TIMEOUT", "15s"),
			IdleTimeout:       p.duration(*f.idleTimeout, "SERVER_IDLE_TIMEOUT", "60s"),
			CORSOrigins:       splitList(getConfigValue(*f.corsOrigins, "CORS_ORIGINS", "*")),
			RateLimitRPS:      p.float(*f.rateLimitRPS, "RATE_LIMIT_RPS", 20),
			RateLimitBurst:    p.int(*f.rateLimitBurst, "RATE_LIMIT_BURST", 40),
			TrustProxyHeaders: getBoolConfigValue(*f.trustProxyHeaders, "TRUST_PROXY_HEADERS", false),
		},
		Sessions: SessionsConfig{
			MaxElapsed:   p.duration(*f.maxElapsed, "SESSION_MAX_ELAPSED", "24h"),
			RetentionMax: p.int(*f.retentionMax, "RETENTION_MAX_SESSIONS", 10),
		},
		Sweeper: SweeperConfig{
			Enabled:  getBoolConfigValue(*f.sweepEnabled, "SWEEP_ENABLED", true),
			Interval: p.duration(*f.sweepInterval, "SWEEP_INTERVAL", "60s"),
			MinAge:   p.duration(*f.sweepMinAge, "SWEEP_MIN_AGE", "0s"),
		},
		Calendar: CalendarConfig{
			Timezone: getConfigValue(*f.timezone, "CALENDAR_TIMEZONE", "UTC"),
		},
		Catalog: CatalogConfig{
			URL:        getConfigValue(*f.catalogURL, "CATALOG_URL", ""),
			File:       getConfigValue(*f.catalogFile, "CATALOG_FILE", ""),
			Permissive: getBoolConfigValue(*f.catalogPermissive, "CATALOG_PERMISSIVE", false),
			CacheTTL:   p.duration(*f.catalogCacheTTL, "CATALOG_CACHE_TTL", "5m"),
			CacheSize:  p.int("", "CATALOG_CACHE_SIZE", 1024),
			RPS:        p.float(*f.catalogRPS, "CATALOG_RPS", 10),
			Timeout:    p.duration("", "CATALOG_TIMEOUT", "5s"),
		},
	}
	if p.err != nil {
		return nil, p.err
	}

	loc, err := time.LoadLocation(cfg.Calendar.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid calendar timezone %q: %w", cfg.Calendar.Timezone, err)
	}
	cfg.Calendar.Location = loc

	if err := cfg.expandDataPath(); err != nil {
		return nil, fmt.Errorf("invalid data path: %w", err)
	}
	if cfg.Catalog.File != "" {
		expanded, err := expandPath(cfg.Catalog.File, "")
		if err != nil {
			return nil, fmt.Errorf("invalid catalog file: %w", err)
		}
		cfg.Catalog.File = expanded
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required config values are present and valid.
func (c *Config) Validate() error {
	validEnvs := map[string]bool{
		"development": true,
		"staging":     true,
		"production":  true,
	}
	if !validEnvs[c.App.Environment] {
		return fmt.Errorf("invalid environment: %s (must be development, staging, or production)", c.App.Environment)
	}

	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[strings.ToLower(c.Logger.Level)] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logger.Level)
	}

	if c.Storage.Backend != BackendSQLite && c.Storage.Backend != BackendBadger {
		return fmt.Errorf("invalid store backend: %s (must be sqlite or badger)", c.Storage.Backend)
	}
	if c.Storage.DataPath == "" {
		return errors.New("data path cannot be empty after expansion")
	}

	if c.Sessions.MaxElapsed <= 0 {
		return errors.New("SESSION_MAX_ELAPSED must be positive")
	}
	if c.Sessions.RetentionMax < 1 {
		return errors.New("RETENTION_MAX_SESSIONS must be at least 1")
	}

	if c.Sweeper.Enabled && c.Sweeper.Interval <= 0 {
		return errors.New("SWEEP_INTERVAL must be positive when the sweeper is enabled")
	}
	if c.Sweeper.MinAge < 0 {
		return errors.New("SWEEP_MIN_AGE cannot be negative")
	}

	if c.Server.RateLimitRPS < 0 || c.Server.RateLimitBurst < 0 {
		return errors.New("rate limit values cannot be negative")
	}
	if c.Catalog.RPS <= 0 {
		return errors.New("CATALOG_RPS must be positive")
	}

	return nil
}

// DatabasePath returns the database location for the configured backend.
// SQLite uses a file, Badger a directory.
func (c *Config) DatabasePath() string {
	if c.Storage.Backend == BackendBadger {
		return filepath.Join(c.Storage.DataPath, "badger")
	}
	return filepath.Join(c.Storage.DataPath, "readtime.db")
}

// expandPath expands ~ and makes the path absolute.
// If path is empty and defaultPath is provided, uses the default.
func expandPath(path, defaultPath string) (string, error) {
	if path == "" {
		return defaultPath, nil
	}

	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(homeDir, path[2:])
	}

	if !filepath.IsAbs(path) {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return "", fmt.Errorf("failed to get absolute path: %w", err)
		}
		path = absPath
	}

	return filepath.Clean(path), nil
}

func (c *Config) expandDataPath() error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}
	expanded, err := expandPath(c.Storage.DataPath, filepath.Join(homeDir, "ReadTime", "data"))
	if err != nil {
		return err
	}
	c.Storage.DataPath = expanded
	return nil
}

// getConfigValue returns the first non-empty value from flag, env var, or default.
func getConfigValue(flagValue, envKey, defaultValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if envValue := os.Getenv(envKey); envValue != "" {
		return envValue
	}
	return defaultValue
}

// getBoolConfigValue returns a bool from flag, env var, or default.
// Accepts: "true", "1", "yes" (case-insensitive) as true; anything else is false.
func getBoolConfigValue(flagValue, envKey string, defaultValue bool) bool {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue
	}
	strValue = strings.ToLower(strValue)
	return strValue == "true" || strValue == "1" || strValue == "yes"
}

// parser collects the first parse failure so Build can report it once.
type parser struct {
	err error
}

func (p *parser) fail(key, value string, err error) {
	if p.err == nil {
		p.err = fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
}

func (p *parser) duration(flagValue, envKey, defaultValue string) time.Duration {
	s := getConfigValue(flagValue, envKey, defaultValue)
	d, err := time.ParseDuration(s)
	if err != nil {
		p.fail(envKey, s, err)
	}
	return d
}

func (p *parser) int(flagValue, envKey string, defaultValue int) int {
	s := getConfigValue(flagValue, envKey, "")
	if s == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		p.fail(envKey, s, err)
	}
	return n
}

func (p *parser) float(flagValue, envKey string, defaultValue float64) float64 {
	s := getConfigValue(flagValue, envKey, "")
	if s == "" {
		return defaultValue
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		p.fail(envKey, s, err)
	}
	return v
}

func splitList(s string) []string {
	var out []string
	for part := range strings.SplitSeq(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
