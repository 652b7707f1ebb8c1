// Package config loads server settings from the environment.
//
// A .env file in the working directory is loaded first when present;
// variables already set in the environment win over the file.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Storage backends.
const (
	StoreSQLite = "sqlite"
	StoreMongo  = "mongo"
)

type Config struct {
	Port int

	// Store selects the backend: StoreSQLite or StoreMongo.
	Store             string
	DBPath            string
	MongoURI          string
	MongoTransactions bool

	JWTSecret    string
	TokenTTL     time.Duration
	CookieSecure bool
	AdminEmails  []string

	GitHubClientID     string
	GitHubClientSecret string
	GitHubCallbackURL  string

	CORSOrigins []string
	// AuthRateLimit is the number of /auth requests allowed per IP per minute.
	AuthRateLimit int
	// ReconcileInterval is how often totals are recomputed. Zero disables it.
	ReconcileInterval time.Duration
	LogLevel          slog.Level
}

// GitHubEnabled reports whether GitHub sign-in is configured.
func (c Config) GitHubEnabled() bool {
	return c.GitHubClientID != "" && c.GitHubClientSecret != ""
}

// Load reads .env (if present) and the environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("config: loading .env: %w", err)
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from a lookup function, applying defaults and
// validating the result.
func FromEnv(getenv func(string) string) (Config, error) {
	cfg := Config{
		Port:          8080,
		Store:         StoreSQLite,
		DBPath:        "data/matchday.db",
		MongoURI:      "mongodb://localhost:27017/matchday",
		TokenTTL:      24 * time.Hour,
		AuthRateLimit: 20,
		LogLevel:      slog.LevelInfo,
	}

	var errs []error
	get := func(key string) (string, bool) {
		v := strings.TrimSpace(getenv(key))
		return v, v != ""
	}

	if v, ok := get("PORT"); ok {
		port, err := strconv.Atoi(v)
		if err != nil || port <= 0 || port > 65535 {
			errs = append(errs, fmt.Errorf("PORT: invalid port %q", v))
		}
		cfg.Port = port
	}
	if v, ok := get("STORE"); ok {
		cfg.Store = strings.ToLower(v)
	}
	if cfg.Store != StoreSQLite && cfg.Store != StoreMongo {
		errs = append(errs, fmt.Errorf("STORE: must be %q or %q, got %q", StoreSQLite, StoreMongo, cfg.Store))
	}
	if v, ok := get("DB_PATH"); ok {
		cfg.DBPath = v
	}
	if v, ok := get("MONGODB_URI"); ok {
		cfg.MongoURI = v
	}
	if v, ok := get("MONGODB_TRANSACTIONS"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("MONGODB_TRANSACTIONS: %w", err))
		}
		cfg.MongoTransactions = b
	}

	cfg.JWTSecret, _ = get("JWT_SECRET")
	if len(cfg.JWTSecret) < 16 {
		errs = append(errs, errors.New("JWT_SECRET: must be set to at least 16 characters"))
	}
	if v, ok := get("TOKEN_TTL"); ok {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			errs = append(errs, fmt.Errorf("TOKEN_TTL: invalid duration %q", v))
		}
		cfg.TokenTTL = d
	}
	if v, ok := get("COOKIE_SECURE"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("COOKIE_SECURE: %w", err))
		}
		cfg.CookieSecure = b
	}

	if v, ok := get("ADMIN_EMAILS"); ok {
		cfg.AdminEmails = splitList(v)
	}

	cfg.GitHubClientID, _ = get("GITHUB_CLIENT_ID")
	cfg.GitHubClientSecret, _ = get("GITHUB_CLIENT_SECRET")
	cfg.GitHubCallbackURL, _ = get("GITHUB_CALLBACK_URL")
	if cfg.GitHubCallbackURL == "" {
		cfg.GitHubCallbackURL = fmt.Sprintf("http://localhost:%d/auth/github/callback", cfg.Port)
	}

	if v, ok := get("CORS_ORIGINS"); ok {
		cfg.CORSOrigins = splitList(v)
	}
	if v, ok := get("AUTH_RATE_LIMIT"); ok {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			errs = append(errs, fmt.Errorf("AUTH_RATE_LIMIT: must be a positive integer, got %q", v))
		}
		cfg.AuthRateLimit = n
	}
	if v, ok := get("RECONCILE_INTERVAL"); ok {
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			errs = append(errs, fmt.Errorf("RECONCILE_INTERVAL: invalid duration %q", v))
		}
		cfg.ReconcileInterval = d
	}
	if v, ok := get("LOG_LEVEL"); ok {
		if err := cfg.LogLevel.UnmarshalText([]byte(v)); err != nil {
			errs = append(errs, fmt.Errorf("LOG_LEVEL: %w", err))
		}
	}

	if err := errors.Join(errs...); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
