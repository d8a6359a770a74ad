package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/checkout-router/internal/domain"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
  host: "0.0.0.0"
  allowed_origins: ["https://offers.example.com"]

checkout:
  return_mode: rich
  scrape_checkout: true

platforms:
  clickbank:
    secret: "cb-secret"
    scrape_checkout: false
  digistore24:
    secret: "ipn-pass"
    return_mode: legacy

feeds:
  tracking_rules: "https://feeds.example.com/rules.csv"
  offer_defaults: "s3://feeds/offer-defaults.csv"
  offer_defaults_refresh_seconds: 60

storage:
  document_bucket: "postbacks"
  journal_table: "postback-events"

postbacks:
  dedupe_ttl_hours: 24
  async: true
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, []string{"https://offers.example.com"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, 15*time.Second, cfg.Server.ShutdownTimeout())

	cb := cfg.Platform(domain.PlatformClickBank)
	assert.Equal(t, "cb-secret", cb.Secret)
	assert.Equal(t, "rich", cb.ReturnMode)
	require.NotNil(t, cb.ScrapeCheckout)
	assert.False(t, *cb.ScrapeCheckout)

	ds := cfg.Platform(domain.PlatformDigistore24)
	assert.Equal(t, "legacy", ds.ReturnMode)
	assert.True(t, *ds.ScrapeCheckout)

	assert.Equal(t, 10*time.Minute, cfg.Feeds.TrackingRulesRefresh())
	assert.Equal(t, time.Minute, cfg.Feeds.OfferDefaultsRefresh())

	assert.True(t, cfg.Storage.Enabled())
	assert.Equal(t, "us-east-1", cfg.Storage.AWSRegion)
	assert.Equal(t, "postbacks", cfg.Storage.DocumentPrefix)
	assert.Equal(t, 365*24*time.Hour, cfg.Storage.JournalTTL())

	assert.Equal(t, 24*time.Hour, cfg.Postbacks.DedupeTTL())
	assert.Equal(t, 10*time.Second, cfg.Postbacks.SinkTimeout())
	assert.True(t, cfg.Postbacks.Async)
	assert.False(t, cfg.Analytics.Enabled())
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "{}\n"))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "localhost", cfg.Server.Host)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "legacy", cfg.Checkout.ReturnMode)
	assert.False(t, cfg.Storage.Enabled())
	assert.Equal(t, 72*time.Hour, cfg.Postbacks.DedupeTTL())
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "server: [not, a, map"))
	assert.Error(t, err)
}

func TestLoadFromEnv(t *testing.T) {
	path := writeConfig(t, "platforms:\n  clickbank:\n    secret: from-file\n")

	t.Setenv("CLICKBANK_SECRET_KEY", "from-env")
	t.Setenv("DIGISTORE24_IPN_PASSPHRASE", "ipn")
	t.Setenv("SCRAPE_CHECKOUT", "true")
	t.Setenv("OFFER_DEFAULTS_URL", "/etc/router/defaults.csv")
	t.Setenv("OFFER_DEFAULTS_REFRESH_SECONDS", "30")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("PORT", "7070")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example.com, https://b.example.com,")
	t.Setenv("GA4_MEASUREMENT_ID", "G-TEST")
	t.Setenv("GA4_API_SECRET", "sekret")

	cfg, err := LoadFromEnv(path)
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Platforms.ClickBank.Secret)
	assert.Equal(t, "ipn", cfg.Platforms.Digistore24.Secret)
	assert.True(t, cfg.Checkout.ScrapeCheckout)
	assert.Equal(t, "/etc/router/defaults.csv", cfg.Feeds.OfferDefaults)
	assert.Equal(t, 30*time.Second, cfg.Feeds.OfferDefaultsRefresh())
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.Server.AllowedOrigins)
	assert.True(t, cfg.Analytics.Enabled())
}

func TestLoadFromEnv_NoFile(t *testing.T) {
	t.Setenv("PORT", "not-a-number")
	cfg, err := LoadFromEnv(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestGetAWSProfile(t *testing.T) {
	c := StorageConfig{AWSProfile: "dev"}
	t.Setenv("ECS_CONTAINER_METADATA_URI", "")
	t.Setenv("AWS_EXECUTION_ENV", "")
	t.Setenv("AWS_PROFILE_OVERRIDE", "")
	assert.Equal(t, "dev", c.GetAWSProfile())

	t.Setenv("AWS_PROFILE_OVERRIDE", "iam")
	assert.Equal(t, "", c.GetAWSProfile())

	t.Setenv("AWS_PROFILE_OVERRIDE", "prod")
	assert.Equal(t, "prod", c.GetAWSProfile())
}
