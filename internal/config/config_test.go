package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setEnv(t *testing.T, env map[string]string) {
	t.Helper()
	for _, key := range []string{
		"APP_ENV", "PORT", "LOG_FORMAT", "LOG_LEVEL", "RATES_FILE", "DATABASE_URL", "REDIS_URL",
		"RATES_CACHE_TTL", "RATES_RELOAD_CHANNEL", "RATES_RELOAD_SCHEDULE",
		"QUOTE_UNDERWRITER_TIMEOUT", "QUOTE_MAX_PARALLEL", "KAFKA_BROKERS", "KAFKA_QUOTE_TOPIC",
		"CORS_ALLOWED_ORIGINS",
	} {
		t.Setenv(key, env[key])
	}
}

func TestLoad_Defaults(t *testing.T) {
	setEnv(t, map[string]string{"RATES_FILE": "configs/rates.yaml"})

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "development", cfg.AppEnv)
	assert.Equal(t, ":8080", cfg.HTTPAddr())
	assert.Equal(t, 2*time.Second, cfg.UnderwriterTimeout)
	assert.Equal(t, 5*time.Minute, cfg.RatesCacheTTL)
	assert.Equal(t, 0, cfg.MaxParallel)
	assert.Equal(t, "pricing:rates:reload", cfg.RatesReloadChannel)
	assert.Empty(t, cfg.KafkaBrokers)
}

func TestLoad_Overrides(t *testing.T) {
	setEnv(t, map[string]string{
		"DATABASE_URL":              "postgres://localhost/pricing",
		"PORT":                      ":9090",
		"QUOTE_UNDERWRITER_TIMEOUT": "750ms",
		"QUOTE_MAX_PARALLEL":        "8",
		"KAFKA_BROKERS":             "kafka-1:9092, kafka-2:9092,",
		"CORS_ALLOWED_ORIGINS":      "https://app.patabima.co.ke",
	})

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.HTTPAddr())
	assert.Equal(t, 750*time.Millisecond, cfg.UnderwriterTimeout)
	assert.Equal(t, 8, cfg.MaxParallel)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, []string{"https://app.patabima.co.ke"}, cfg.CORSAllowedOrigins)
}

func TestLoad_ZeroTimeoutOnlyInTest(t *testing.T) {
	setEnv(t, map[string]string{"RATES_FILE": "rates.yaml", "QUOTE_UNDERWRITER_TIMEOUT": "0s"})
	_, err := Load()
	assert.ErrorIs(t, err, ErrInvalidConfig)

	setEnv(t, map[string]string{"RATES_FILE": "rates.yaml", "QUOTE_UNDERWRITER_TIMEOUT": "0s", "APP_ENV": "test"})
	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.IsTest())
	assert.Zero(t, cfg.UnderwriterTimeout)
}

func TestLoad_Invalid(t *testing.T) {
	tests := map[string]map[string]string{
		"no rate source":    {},
		"bad timeout":       {"RATES_FILE": "rates.yaml", "QUOTE_UNDERWRITER_TIMEOUT": "soon"},
		"negative timeout":  {"RATES_FILE": "rates.yaml", "QUOTE_UNDERWRITER_TIMEOUT": "-1s"},
		"bad parallel":      {"RATES_FILE": "rates.yaml", "QUOTE_MAX_PARALLEL": "many"},
		"negative parallel": {"RATES_FILE": "rates.yaml", "QUOTE_MAX_PARALLEL": "-2"},
		"bad cache ttl":     {"RATES_FILE": "rates.yaml", "RATES_CACHE_TTL": "forever"},
	}
	for name, env := range tests {
		t.Run(name, func(t *testing.T) {
			setEnv(t, env)
			_, err := Load()
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}
