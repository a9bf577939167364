// Package config loads prokit settings from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ListenAddr string
	Store      string // "postgres" or "memory"

	DatabaseURL  string
	DBSchema     string
	RedisURL     string
	KafkaBrokers []string
	KafkaTopic   string

	JWKSURL     string
	JWTIssuer   string
	JWTAudience string
	AdminEmails []string

	LogLevel  string
	LogFormat string

	ReconcileSchedule string
	DecisionCacheTTL  time.Duration
}

// Load reads envFile (if present) into the process environment without
// overriding existing variables, then builds a Config.
func Load(envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", envFile, err)
		}
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from a lookup function.
func FromEnv(getenv func(string) string) (Config, error) {
	get := func(k, def string) string {
		if v := strings.TrimSpace(getenv(k)); v != "" {
			return v
		}
		return def
	}
	c := Config{
		ListenAddr:        get("LISTEN_ADDR", ":8080"),
		DatabaseURL:       get("DATABASE_URL", ""),
		DBSchema:          get("DB_SCHEMA", "public"),
		RedisURL:          get("REDIS_URL", ""),
		KafkaBrokers:      splitList(getenv("KAFKA_BROKERS")),
		KafkaTopic:        get("KAFKA_TOPIC", "entitlement.grants"),
		JWKSURL:           get("JWKS_URL", ""),
		JWTIssuer:         get("JWT_ISSUER", ""),
		JWTAudience:       get("JWT_AUDIENCE", ""),
		AdminEmails:       splitList(getenv("ADMIN_EMAILS")),
		LogLevel:          get("LOG_LEVEL", "info"),
		LogFormat:         get("LOG_FORMAT", "text"),
		ReconcileSchedule: get("RECONCILE_SCHEDULE", "@hourly"),
	}
	c.Store = get("STORE", "")
	if c.Store == "" {
		c.Store = "memory"
		if c.DatabaseURL != "" {
			c.Store = "postgres"
		}
	}
	ttl, err := time.ParseDuration(get("DECISION_CACHE_TTL", "10m"))
	if err != nil {
		return Config{}, fmt.Errorf("DECISION_CACHE_TTL: %w", err)
	}
	c.DecisionCacheTTL = ttl
	return c, c.Validate()
}

func (c Config) Validate() error {
	switch c.Store {
	case "memory":
	case "postgres":
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL required for postgres store")
		}
	default:
		return fmt.Errorf("unknown STORE %q", c.Store)
	}
	if c.DecisionCacheTTL < 0 {
		return errors.New("DECISION_CACHE_TTL must not be negative")
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
