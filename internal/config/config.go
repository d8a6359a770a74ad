package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/ignite/checkout-router/internal/domain"
)

// Config holds all configuration for the router.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
	Checkout  CheckoutConfig  `yaml:"checkout"`
	Platforms PlatformsConfig `yaml:"platforms"`
	Feeds     FeedsConfig     `yaml:"feeds"`
	Storage   StorageConfig   `yaml:"storage"`
	Analytics AnalyticsConfig `yaml:"analytics"`
	Redis     RedisConfig     `yaml:"redis"`
	Postbacks PostbackConfig  `yaml:"postbacks"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int      `yaml:"port"`
	Host            string   `yaml:"host"`
	AllowedOrigins  []string `yaml:"allowed_origins"`
	ShutdownSeconds int      `yaml:"shutdown_seconds"`
}

// GetHost returns the listen host; containers always listen on all interfaces.
func (c ServerConfig) GetHost() string {
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return "0.0.0.0"
	}
	if host := os.Getenv("SERVER_HOST"); host != "" {
		return host
	}
	return c.Host
}

// ShutdownTimeout bounds graceful shutdown.
func (c ServerConfig) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownSeconds) * time.Second
}

// LogConfig controls the JSON logger.
type LogConfig struct {
	Level     string `yaml:"level"`
	RedactPII *bool  `yaml:"redact_pii"`
}

// CheckoutConfig holds the process-wide checkout defaults.
type CheckoutConfig struct {
	// ReturnMode is "legacy" or "rich".
	ReturnMode     string `yaml:"return_mode"`
	ScrapeCheckout bool   `yaml:"scrape_checkout"`
}

// PlatformConfig holds one platform's webhook secret and checkout overrides.
type PlatformConfig struct {
	// Secret is the ClickBank secret key or the Digistore24 IPN passphrase.
	Secret         string `yaml:"secret"`
	ReturnMode     string `yaml:"return_mode"`
	ScrapeCheckout *bool  `yaml:"scrape_checkout"`
}

// PlatformsConfig holds per-platform settings.
type PlatformsConfig struct {
	ClickBank   PlatformConfig `yaml:"clickbank"`
	Digistore24 PlatformConfig `yaml:"digistore24"`
}

// Platform returns p's settings with the checkout defaults filled in.
func (c *Config) Platform(p domain.Platform) PlatformConfig {
	var pc PlatformConfig
	switch p {
	case domain.PlatformClickBank:
		pc = c.Platforms.ClickBank
	case domain.PlatformDigistore24:
		pc = c.Platforms.Digistore24
	}
	if pc.ReturnMode == "" {
		pc.ReturnMode = c.Checkout.ReturnMode
	}
	if pc.ScrapeCheckout == nil {
		scrape := c.Checkout.ScrapeCheckout
		pc.ScrapeCheckout = &scrape
	}
	return pc
}

// FeedsConfig locates the tracking-rule and offer-defaults feeds. A locator
// is an http(s) URL, an s3://bucket/key URI or a local path; empty disables it.
type FeedsConfig struct {
	TrackingRules               string `yaml:"tracking_rules"`
	OfferDefaults               string `yaml:"offer_defaults"`
	TrackingRulesRefreshSeconds int    `yaml:"tracking_rules_refresh_seconds"`
	OfferDefaultsRefreshSeconds int    `yaml:"offer_defaults_refresh_seconds"`
}

// TrackingRulesRefresh is the minimum time between rule feed fetches.
func (c FeedsConfig) TrackingRulesRefresh() time.Duration {
	return time.Duration(c.TrackingRulesRefreshSeconds) * time.Second
}

// OfferDefaultsRefresh is the minimum time between defaults feed fetches.
func (c FeedsConfig) OfferDefaultsRefresh() time.Duration {
	return time.Duration(c.OfferDefaultsRefreshSeconds) * time.Second
}

// StorageConfig holds the AWS postback sinks.
type StorageConfig struct {
	AWSRegion      string `yaml:"aws_region"`
	AWSProfile     string `yaml:"aws_profile"` // Empty string uses default credential chain (IAM role on ECS)
	DocumentBucket string `yaml:"document_bucket"`
	DocumentPrefix string `yaml:"document_prefix"`
	JournalTable   string `yaml:"journal_table"`
	JournalTTLDays int    `yaml:"journal_ttl_days"`
	QueueURL       string `yaml:"queue_url"`
}

// GetAWSProfile returns the AWS profile, with environment variable override
func (c StorageConfig) GetAWSProfile() string {
	if envProfile := os.Getenv("AWS_PROFILE_OVERRIDE"); envProfile != "" {
		if envProfile == "none" || envProfile == "iam" {
			return ""
		}
		return envProfile
	}
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return ""
	}
	return c.AWSProfile
}

// Enabled reports whether any AWS-backed sink is configured.
func (c StorageConfig) Enabled() bool {
	return c.DocumentBucket != "" || c.JournalTable != "" || c.QueueURL != ""
}

// JournalTTL is how long journal items live before DynamoDB expires them.
func (c StorageConfig) JournalTTL() time.Duration {
	return time.Duration(c.JournalTTLDays) * 24 * time.Hour
}

// AnalyticsConfig holds GA4 Measurement Protocol credentials.
type AnalyticsConfig struct {
	MeasurementID string `yaml:"measurement_id"`
	APISecret     string `yaml:"api_secret"`
	Endpoint      string `yaml:"endpoint"`
}

// Enabled reports whether the analytics sink has credentials.
func (c AnalyticsConfig) Enabled() bool {
	return c.MeasurementID != "" && c.APISecret != ""
}

// RedisConfig locates the dedupe Redis. Empty Addr falls back to in-process dedupe.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// PostbackConfig controls postback delivery.
type PostbackConfig struct {
	DedupeTTLHours     int `yaml:"dedupe_ttl_hours"`
	SinkTimeoutSeconds int `yaml:"sink_timeout_seconds"`
	// Async queues accepted postbacks on SQS and delivers them from a consumer.
	Async bool `yaml:"async"`
}

// DedupeTTL is how long a delivered postback blocks replays.
func (c PostbackConfig) DedupeTTL() time.Duration {
	return time.Duration(c.DedupeTTLHours) * time.Hour
}

// SinkTimeout bounds each sink delivery.
func (c PostbackConfig) SinkTimeout() time.Duration {
	return time.Duration(c.SinkTimeoutSeconds) * time.Second
}

// Load reads a YAML config file and applies defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// Default returns a config with only defaults, for running without a file.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.Host == "" {
		c.Server.Host = "localhost"
	}
	if c.Server.ShutdownSeconds == 0 {
		c.Server.ShutdownSeconds = 15
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Checkout.ReturnMode == "" {
		c.Checkout.ReturnMode = string(domain.ReturnLegacy)
	}
	if c.Feeds.TrackingRulesRefreshSeconds == 0 {
		c.Feeds.TrackingRulesRefreshSeconds = 600
	}
	if c.Feeds.OfferDefaultsRefreshSeconds == 0 {
		c.Feeds.OfferDefaultsRefreshSeconds = 600
	}
	if c.Storage.AWSRegion == "" {
		c.Storage.AWSRegion = "us-east-1"
	}
	if c.Storage.DocumentPrefix == "" {
		c.Storage.DocumentPrefix = "postbacks"
	}
	if c.Storage.JournalTTLDays == 0 {
		c.Storage.JournalTTLDays = 365
	}
	if c.Postbacks.DedupeTTLHours == 0 {
		c.Postbacks.DedupeTTLHours = 72
	}
	if c.Postbacks.SinkTimeoutSeconds == 0 {
		c.Postbacks.SinkTimeoutSeconds = 10
	}
}

// LoadFromEnv loads .env (if present), the YAML file at path (if it
// exists) and then environment overrides. Secrets normally only come
// from the environment.
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			loaded, err := Load(path)
			if err != nil {
				return nil, err
			}
			cfg = loaded
		}
	}

	envString("CLICKBANK_SECRET_KEY", &cfg.Platforms.ClickBank.Secret)
	envString("DIGISTORE24_IPN_PASSPHRASE", &cfg.Platforms.Digistore24.Secret)
	envString("CHECKOUT_RETURN_MODE", &cfg.Checkout.ReturnMode)
	envBool("SCRAPE_CHECKOUT", &cfg.Checkout.ScrapeCheckout)

	envString("TRACKING_RULES_URL", &cfg.Feeds.TrackingRules)
	envString("OFFER_DEFAULTS_URL", &cfg.Feeds.OfferDefaults)
	envInt("TRACKING_RULES_REFRESH_SECONDS", &cfg.Feeds.TrackingRulesRefreshSeconds)
	envInt("OFFER_DEFAULTS_REFRESH_SECONDS", &cfg.Feeds.OfferDefaultsRefreshSeconds)

	envString("AWS_REGION", &cfg.Storage.AWSRegion)
	envString("POSTBACK_BUCKET", &cfg.Storage.DocumentBucket)
	envString("POSTBACK_TABLE", &cfg.Storage.JournalTable)
	envString("POSTBACK_QUEUE_URL", &cfg.Storage.QueueURL)

	envString("GA4_MEASUREMENT_ID", &cfg.Analytics.MeasurementID)
	envString("GA4_API_SECRET", &cfg.Analytics.APISecret)

	envString("REDIS_ADDR", &cfg.Redis.Addr)
	envString("REDIS_PASSWORD", &cfg.Redis.Password)

	envString("LOG_LEVEL", &cfg.Log.Level)
	envInt("PORT", &cfg.Server.Port)
	if v := os.Getenv("CORS_ALLOWED_ORIGINS"); v != "" {
		cfg.Server.AllowedOrigins = splitList(v)
	}

	return cfg, nil
}

func envString(key string, dst *string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	if v, err := strconv.Atoi(strings.TrimSpace(os.Getenv(key))); err == nil && v > 0 {
		*dst = v
	}
}

func envBool(key string, dst *bool) {
	if v, err := strconv.ParseBool(strings.TrimSpace(os.Getenv(key))); err == nil {
		*dst = v
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
