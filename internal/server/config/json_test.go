package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempJSON(t *testing.T, dir, name string, data map[string]any) string {
	t.Helper()
	if dir == "" {
		dir = t.TempDir()
	}
	if name == "" {
		name = "cfg.json"
	}
	path := filepath.Join(dir, name)
	b, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, b, 0o600))
	return path
}

func Test_parseJson(t *testing.T) {
	path := writeTempJSON(t, "", "", map[string]any{
		"endpoint_addr_http":             "www.example:9000",
		"store_backend":                  "postgres",
		"database_dsn":                   "postgres://x",
		"secret_key":                     "my_secret_key",
		"access_token_validity_duration": "5m",
		"signature_test_mode":            false,
		"provider_timeout":               "3s",
		"reconcile_concurrency":          2,
		"rate_limit_per_minute":          50,
		"strict_validation":              true,
		"s3_bucket":                      "signed",
		"events_queue_url":               "https://sqs.local/q",
	})

	t.Run("loads from json", func(t *testing.T) {
		cfg := &Config{}
		cfg.LoadDefaults()
		parseJson(cfg, []string{"-config", path})

		assert.Equal(t, "www.example:9000", cfg.EndpointAddrHTTP)
		assert.Equal(t, StorePostgres, cfg.StoreBackend)
		assert.Equal(t, "postgres://x", cfg.DatabaseDSN)
		assert.Equal(t, "my_secret_key", cfg.SecretKey)
		assert.Equal(t, 5*time.Minute, cfg.AccessTokenValidityDuration)
		assert.False(t, cfg.SignatureTestMode)
		assert.Equal(t, 3*time.Second, cfg.ProviderTimeout)
		assert.Equal(t, 2, cfg.ReconcileConcurrency)
		assert.Equal(t, 50, cfg.RateLimitPerMinute)
		assert.True(t, cfg.StrictValidation)
		assert.Equal(t, "signed", cfg.S3Bucket)
		assert.Equal(t, "https://sqs.local/q", cfg.EventsQueueURL)
	})

	t.Run("absent keys keep defaults", func(t *testing.T) {
		cfg := &Config{}
		cfg.LoadDefaults()
		parseJson(cfg, []string{"-c", path})

		assert.Equal(t, "media-release-users", cfg.DynamoTable)
		assert.Equal(t, 60*time.Second, cfg.RequestTimeout)
		assert.Equal(t, "info", cfg.LogLevel)
	})

	t.Run("no config flag → no changes", func(t *testing.T) {
		cfg := &Config{EndpointAddrHTTP: "defaults:1234", SecretKey: "key"}
		parseJson(cfg, nil)

		assert.Equal(t, "defaults:1234", cfg.EndpointAddrHTTP)
		assert.Equal(t, "key", cfg.SecretKey)
	})

	t.Run("missing file panics", func(t *testing.T) {
		cfg := &Config{}
		assert.Panics(t, func() { parseJson(cfg, []string{"-c", filepath.Join(t.TempDir(), "nope.json")}) })
	})

	t.Run("invalid json panics", func(t *testing.T) {
		bad := filepath.Join(t.TempDir(), "bad.json")
		require.NoError(t, os.WriteFile(bad, []byte("{"), 0o600))
		cfg := &Config{}
		assert.Panics(t, func() { parseJson(cfg, []string{"-c", bad}) })
	})
}
