// Package config reads process configuration from the environment. A .env
// file in the working directory is loaded first when present.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates application configuration values.
type Config struct {
	HTTP     HTTPConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Auth     AuthConfig
	Mail     MailConfig
	Policy   PolicyConfig
	Jobs     JobsConfig
	Logging  LoggingConfig
	// Store selects the persistence backend: postgres or memory.
	Store  string
	AppURL string
}

type HTTPConfig struct {
	Port            int
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
	// RateLimit is requests per second per client IP on /advances.
	RateLimit float64
}

// DatabaseConfig holds either a full URL or the individual DB_* parts.
type DatabaseConfig struct {
	URL      string
	User     string
	Password string
	Host     string
	Port     string
	Name     string
}

// DSN returns URL when set, otherwise builds one from the parts.
func (d DatabaseConfig) DSN() string {
	if d.URL != "" {
		return d.URL
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s", d.User, d.Password, d.Host, d.Port, d.Name)
}

type RedisConfig struct {
	Addr string
}

type AuthConfig struct {
	JWTSecret string
	TokenTTL  time.Duration
}

type MailConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
	ReplyTo  string

	// PlunkAPIKey switches delivery to the Plunk HTTP API instead of SMTP.
	PlunkAPIKey string
	PlunkURL    string
}

// Enabled reports whether every SMTP setting needed to send is present.
func (m MailConfig) Enabled() bool {
	return m.Host != "" && m.Port != "" && m.Username != "" && m.Password != "" && m.From != ""
}

type PolicyConfig struct {
	// Path to a YAML policy file; empty uses the built-in default.
	Path string
}

type JobsConfig struct {
	// SweepSpec is the cron schedule of the pending-timeout sweep.
	SweepSpec string
}

// LoggingConfig controls structured logging settings.
type LoggingConfig struct {
	Level         string
	Format        string // text|json
	IncludeCaller bool
}

const (
	defaultPort            = 8080
	defaultShutdownTimeout = 10 * time.Second
	defaultTokenTTL        = 72 * time.Hour
	defaultSweepSpec       = "@every 5m"
	defaultRateLimit       = 20
)

// Load reads configuration from environment variables, applying defaults.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		HTTP: HTTPConfig{
			ShutdownTimeout: defaultShutdownTimeout,
			AllowedOrigins:  splitCSV(os.Getenv("SERVER_ALLOWED_ORIGINS")),
		},
		Database: DatabaseConfig{
			URL:      os.Getenv("DATABASE_URL"),
			User:     os.Getenv("DB_USER"),
			Password: os.Getenv("DB_PASSWORD"),
			Host:     valueOrDefault("DB_HOST", "localhost"),
			Port:     valueOrDefault("DB_PORT", "5432"),
			Name:     os.Getenv("DB_NAME"),
		},
		Redis: RedisConfig{Addr: redisAddr()},
		Auth: AuthConfig{
			JWTSecret: os.Getenv("JWT_SECRET"),
			TokenTTL:  defaultTokenTTL,
		},
		Mail: MailConfig{
			Host:     os.Getenv("SMTP_HOST"),
			Port:     os.Getenv("SMTP_PORT"),
			Username: os.Getenv("SMTP_USERNAME"),
			Password: os.Getenv("SMTP_PASSWORD"),
			From:     os.Getenv("SMTP_FROM"),
			ReplyTo:  os.Getenv("MAIL_REPLY_TO"),

			PlunkAPIKey: os.Getenv("PLUNK_API_KEY"),
			PlunkURL:    valueOrDefault("PLUNK_API_URL", "https://api.useplunk.com/v1/send"),
		},
		Policy: PolicyConfig{Path: os.Getenv("POLICY_FILE")},
		Jobs:   JobsConfig{SweepSpec: valueOrDefault("SWEEP_SCHEDULE", defaultSweepSpec)},
		Logging: LoggingConfig{
			Level:         valueOrDefault("LOG_LEVEL", "info"),
			Format:        valueOrDefault("LOG_FORMAT", "text"),
			IncludeCaller: parseBoolWithDefault("LOG_INCLUDE_CALLER", false),
		},
		Store:  strings.ToLower(valueOrDefault("STORE", "postgres")),
		AppURL: strings.TrimRight(valueOrDefault("APP_URL", "http://localhost:3000"), "/"),
	}

	port, err := parsePort("PORT", defaultPort)
	if err != nil {
		return Config{}, err
	}
	cfg.HTTP.Port = port

	if cfg.HTTP.ShutdownTimeout, err = parseDuration("SERVER_SHUTDOWN_TIMEOUT", defaultShutdownTimeout); err != nil {
		return Config{}, err
	}
	if cfg.Auth.TokenTTL, err = parseDuration("JWT_TTL", defaultTokenTTL); err != nil {
		return Config{}, err
	}
	if v := os.Getenv("RATE_LIMIT_RPS"); v != "" {
		rps, err := strconv.ParseFloat(v, 64)
		if err != nil || rps < 0 {
			return Config{}, fmt.Errorf("invalid RATE_LIMIT_RPS value %q", v)
		}
		cfg.HTTP.RateLimit = rps
	} else {
		cfg.HTTP.RateLimit = defaultRateLimit
	}

	if cfg.Store != "postgres" && cfg.Store != "memory" {
		return Config{}, fmt.Errorf("invalid STORE value %q: want postgres or memory", cfg.Store)
	}
	if cfg.Auth.JWTSecret == "" {
		return Config{}, fmt.Errorf("JWT_SECRET is required")
	}
	return cfg, nil
}

// redisAddr follows REDIS_ADDR, then REDIS_HOST/REDIS_PORT, then localhost.
func redisAddr() string {
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		return addr
	}
	if host := os.Getenv("REDIS_HOST"); host != "" {
		return host + ":" + valueOrDefault("REDIS_PORT", "6379")
	}
	return "127.0.0.1:6379"
}

func valueOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parseBoolWithDefault(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		val, err := strconv.ParseBool(v)
		if err != nil {
			return fallback
		}
		return val
	}
	return fallback
}

func parseDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func parsePort(key string, fallback int) (int, error) {
	if v := os.Getenv(key); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s value %q: %w", key, v, err)
		}
		if port <= 0 || port > 65535 {
			return 0, fmt.Errorf("port %d is out of range", port)
		}
		return port, nil
	}
	return fallback, nil
}

func splitCSV(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
