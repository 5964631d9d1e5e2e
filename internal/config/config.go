// Package config loads spotfi-cloud's environment-derived settings: broker
// credentials, store DSNs, Redis and RADIUS addresses, and the captive portal's
// redirect/guard thresholds (SPEC_FULL.md §6). Grounded on the teacher's
// internal/auth/jwt.go NewJWTServiceFromEnv idiom: required values are read
// with a clear error on absence, optional values fall back to a documented
// default, durations are parsed with time.ParseDuration rather than a
// hand-rolled unit suffix scheme.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds every environment-derived setting the cloud control plane
// needs to start. Fields are grouped by the subsystem that consumes them.
type Config struct {
	// HTTPAddr is the address the public echo server listens on.
	HTTPAddr string

	// StoreDSN is the Relational Store (Postgres) connection string.
	StoreDSN string

	// MigrationsDir holds the golang-migrate SQL files applied at startup.
	MigrationsDir string

	// RedisAddr is host:port of the key/value store backing the portal's
	// login rate limiter and the broker's presence cache.
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// BrokerURL is the MQTT broker endpoint, e.g. "tcp://broker:1883".
	BrokerURL      string
	BrokerUsername string
	BrokerPassword string

	// RadiusAddr is host:port of the RADIUS authentication service the
	// portal delegates Access-Requests to.
	RadiusAddr string

	// DefaultRedirectURL is where a captive-portal login lands when the
	// client supplied no userurl.
	DefaultRedirectURL string

	// AllowedRedirectDomains restricts ValidateRedirectURL's host check;
	// empty means any http/https host passes the remaining guards.
	AllowedRedirectDomains []string

	// AllowIPv6 permits IPv6 addresses through router-IP and NAS-IP
	// validation; disabled by default since the fleet is IPv4-only at
	// most deployed sites.
	AllowIPv6 bool

	// QSEPollFallbackEnabled turns on the disconnect-queue's periodic
	// poll as a safety net alongside LISTEN/NOTIFY (SPEC_FULL.md §9).
	QSEPollFallbackEnabled bool
	QSEPollInterval        time.Duration

	// DisconnectWorkerConcurrency and ReconcilerConcurrency bound the
	// number of in-flight broker RPCs each worker issues at once.
	DisconnectWorkerConcurrency int
	ReconcilerConcurrency       int
}

// defaults holds every value FromEnv falls back to when its environment
// variable is unset. Required settings (store DSN, broker URL) have no
// entry here and are validated explicitly.
var defaults = Config{
	HTTPAddr:                    ":8080",
	MigrationsDir:               "migrations",
	RedisAddr:                   "localhost:6379",
	RedisDB:                     0,
	RadiusAddr:                  "localhost:1812",
	DefaultRedirectURL:          "https://spotfi.example/welcome",
	AllowIPv6:                   false,
	QSEPollFallbackEnabled:      false,
	QSEPollInterval:             10 * time.Second,
	DisconnectWorkerConcurrency: 20,
	ReconcilerConcurrency:       5,
}

// FromEnv builds a Config from the process environment, applying defaults
// for everything optional and returning an error naming the first missing
// required variable.
func FromEnv() (*Config, error) {
	cfg := defaults

	cfg.HTTPAddr = stringOrDefault("SPOTFI_HTTP_ADDR", cfg.HTTPAddr)

	storeDSN := os.Getenv("SPOTFI_STORE_DSN")
	if storeDSN == "" {
		return nil, fmt.Errorf("SPOTFI_STORE_DSN is required")
	}
	cfg.StoreDSN = storeDSN
	cfg.MigrationsDir = stringOrDefault("SPOTFI_MIGRATIONS_DIR", cfg.MigrationsDir)

	cfg.RedisAddr = stringOrDefault("SPOTFI_REDIS_ADDR", cfg.RedisAddr)
	cfg.RedisPassword = os.Getenv("SPOTFI_REDIS_PASSWORD")
	if v := os.Getenv("SPOTFI_REDIS_DB"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("parse SPOTFI_REDIS_DB: %w", err)
		}
		cfg.RedisDB = n
	}

	brokerURL := os.Getenv("SPOTFI_BROKER_URL")
	if brokerURL == "" {
		return nil, fmt.Errorf("SPOTFI_BROKER_URL is required")
	}
	cfg.BrokerURL = brokerURL
	cfg.BrokerUsername = os.Getenv("SPOTFI_BROKER_USERNAME")
	cfg.BrokerPassword = os.Getenv("SPOTFI_BROKER_PASSWORD")

	cfg.RadiusAddr = stringOrDefault("SPOTFI_RADIUS_ADDR", cfg.RadiusAddr)

	cfg.DefaultRedirectURL = stringOrDefault("SPOTFI_DEFAULT_REDIRECT_URL", cfg.DefaultRedirectURL)
	if v := os.Getenv("SPOTFI_ALLOWED_REDIRECT_DOMAINS"); v != "" {
		cfg.AllowedRedirectDomains = splitAndTrim(v)
	}

	if v := os.Getenv("SPOTFI_ALLOW_IPV6"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("parse SPOTFI_ALLOW_IPV6: %w", err)
		}
		cfg.AllowIPv6 = b
	}

	if v := os.Getenv("SPOTFI_QSE_POLL_FALLBACK_ENABLED"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("parse SPOTFI_QSE_POLL_FALLBACK_ENABLED: %w", err)
		}
		cfg.QSEPollFallbackEnabled = b
	}
	if v := os.Getenv("SPOTFI_QSE_POLL_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("parse SPOTFI_QSE_POLL_INTERVAL: %w", err)
		}
		cfg.QSEPollInterval = d
	}

	if v := os.Getenv("SPOTFI_DISCONNECT_WORKER_CONCURRENCY"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("parse SPOTFI_DISCONNECT_WORKER_CONCURRENCY: %w", err)
		}
		cfg.DisconnectWorkerConcurrency = n
	}
	if v := os.Getenv("SPOTFI_RECONCILER_CONCURRENCY"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("parse SPOTFI_RECONCILER_CONCURRENCY: %w", err)
		}
		cfg.ReconcilerConcurrency = n
	}

	return &cfg, nil
}

func stringOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func splitAndTrim(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
