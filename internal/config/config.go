// Package config loads pricing-engine settings from the environment.
package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// ErrInvalidConfig wraps every validation failure from Load.
var ErrInvalidConfig = errors.New("invalid config")

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv    string
	Port      string
	LogFormat string
	LogLevel  string

	// Rate feed. RatesFile wins when set; otherwise DatabaseURL is the source.
	RatesFile           string
	DatabaseURL         string
	RedisURL            string
	RatesCacheTTL       time.Duration
	RatesReloadChannel  string
	RatesReloadSchedule string

	// Comparison fan-out.
	UnderwriterTimeout time.Duration
	MaxParallel        int

	KafkaBrokers    []string
	KafkaQuoteTopic string

	CORSAllowedOrigins []string
}

// Load reads configuration from environment variables and an optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	var errs []error
	duration := func(key, fallback string) time.Duration {
		d, err := time.ParseDuration(valueOrDefault(k.String(key), fallback))
		if err != nil {
			errs = append(errs, fmt.Errorf("%w: %s: %v", ErrInvalidConfig, key, err))
		}
		return d
	}

	cfg := &Config{
		AppEnv:              valueOrDefault(k.String("APP_ENV"), "development"),
		Port:                valueOrDefault(k.String("PORT"), "8080"),
		LogFormat:           valueOrDefault(k.String("LOG_FORMAT"), "json"),
		LogLevel:            valueOrDefault(k.String("LOG_LEVEL"), "info"),
		RatesFile:           strings.TrimSpace(k.String("RATES_FILE")),
		DatabaseURL:         strings.TrimSpace(k.String("DATABASE_URL")),
		RedisURL:            strings.TrimSpace(k.String("REDIS_URL")),
		RatesCacheTTL:       duration("RATES_CACHE_TTL", "5m"),
		RatesReloadChannel:  valueOrDefault(k.String("RATES_RELOAD_CHANNEL"), "pricing:rates:reload"),
		RatesReloadSchedule: strings.TrimSpace(k.String("RATES_RELOAD_SCHEDULE")),
		UnderwriterTimeout:  duration("QUOTE_UNDERWRITER_TIMEOUT", "2s"),
		KafkaBrokers:        splitAndTrim(k.String("KAFKA_BROKERS")),
		KafkaQuoteTopic:     valueOrDefault(k.String("KAFKA_QUOTE_TOPIC"), "pricing.quotes"),
		CORSAllowedOrigins:  splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),
	}

	parallel, err := strconv.Atoi(valueOrDefault(k.String("QUOTE_MAX_PARALLEL"), "0"))
	if err != nil || parallel < 0 {
		errs = append(errs, fmt.Errorf("%w: QUOTE_MAX_PARALLEL must be a non-negative integer", ErrInvalidConfig))
	}
	cfg.MaxParallel = parallel

	if cfg.RatesFile == "" && cfg.DatabaseURL == "" {
		errs = append(errs, fmt.Errorf("%w: one of RATES_FILE or DATABASE_URL is required", ErrInvalidConfig))
	}
	if cfg.UnderwriterTimeout < 0 {
		errs = append(errs, fmt.Errorf("%w: QUOTE_UNDERWRITER_TIMEOUT must not be negative", ErrInvalidConfig))
	}
	if cfg.UnderwriterTimeout == 0 && !cfg.IsTest() {
		errs = append(errs, fmt.Errorf("%w: QUOTE_UNDERWRITER_TIMEOUT may only be 0 when APP_ENV=test", ErrInvalidConfig))
	}

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return cfg, nil
}

// IsTest reports whether the process runs in the test environment.
func (c *Config) IsTest() bool {
	return strings.EqualFold(c.AppEnv, "test")
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}
