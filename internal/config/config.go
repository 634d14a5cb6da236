package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

// =============================================================================
// hook0 Go backend - configuration with environment overrides
// =============================================================================

type Config struct {
	API         APIConfig         `yaml:"api"`
	Database    DatabaseConfig    `yaml:"database"`
	Delivery    DeliveryConfig    `yaml:"delivery"`
	Queue       QueueConfig       `yaml:"queue"`
	Relay       RelayConfig       `yaml:"relay"`
	Security    SecurityConfig    `yaml:"security"`
	RateLimit   RateLimitConfig   `yaml:"rate_limit"`
	Housekeep   HousekeepConfig   `yaml:"housekeeping"`
	Observ      ObservConfig      `yaml:"observability"`
	Redis       RedisConfig       `yaml:"redis"`
	ObjectStore ObjectStoreConfig `yaml:"object_store"`
}

type APIConfig struct {
	Port             string   `yaml:"port"`
	Env              string   `yaml:"env"`
	ReadTimeoutSec   int      `yaml:"read_timeout_sec"`
	WriteTimeoutSec  int      `yaml:"write_timeout_sec"`
	IdleTimeoutSec   int      `yaml:"idle_timeout_sec"`
	ShutdownTimeout  int      `yaml:"shutdown_timeout_sec"`
	CORSAllowOrigins []string `yaml:"cors_allow_origins"`
	AllowedContentTypes []string `yaml:"allowed_content_types"`
}

// DatabaseConfig describes the system-of-record Postgres connection.
type DatabaseConfig struct {
	URL             string `yaml:"url"`
	MaxOpenConns    int    `yaml:"max_open_conns"`
	MaxIdleConns    int    `yaml:"max_idle_conns"`
}

// DeliveryConfig governs C8's HTTP callout behaviour and C6's retry schedule.
type DeliveryConfig struct {
	ConnectTimeoutSec  int     `yaml:"connect_timeout_sec"`
	TotalTimeoutSec    int     `yaml:"total_timeout_sec"`
	MaxResponseBody    int64   `yaml:"max_response_body_bytes"`
	UserAgent          string  `yaml:"user_agent"`
	MaxRetries         int     `yaml:"max_retries"`
	RetryBaseSec       float64 `yaml:"retry_base_sec"`
	RetryFactor        float64 `yaml:"retry_factor"`
	RetryCapSec        float64 `yaml:"retry_cap_sec"`
	RetryJitterPct     float64 `yaml:"retry_jitter_pct"`
	PollingSleepMillis int     `yaml:"polling_sleep_ms"`
	WorkerCount        int     `yaml:"worker_count"`
	ObjectStoreThreshold int64 `yaml:"object_store_threshold_bytes"`
	SignatureToleranceSec int64 `yaml:"signature_tolerance_sec"`
}

// QueueConfig selects and configures the C7 dispatch queue transport.
type QueueConfig struct {
	PubSubProjectID string `yaml:"pubsub_project_id"`
	PubSubTopicID   string `yaml:"pubsub_topic_id"`
	PubSubEnabled   bool   `yaml:"pubsub_enabled"`

	CloudTasksProjectID  string `yaml:"cloud_tasks_project_id"`
	CloudTasksLocationID string `yaml:"cloud_tasks_location_id"`
	CloudTasksQueueID    string `yaml:"cloud_tasks_queue_id"`
	CloudTasksEnabled    bool   `yaml:"cloud_tasks_enabled"`

	// SubscriptionID is the Pub/Sub pull subscription the delivery worker
	// consumes from.
	SubscriptionID string `yaml:"subscription_id"`
	// WorkerIntakeURL is the delivery worker's HTTP intake endpoint, used
	// only when CloudTasksEnabled routes dispatch messages as direct-HTTP
	// tasks instead of through a broker subscription.
	WorkerIntakeURL string `yaml:"worker_intake_url"`
}

// RelayConfig configures C11/C12.
type RelayConfig struct {
	Port                  string `yaml:"port"`
	PublicBaseURL         string `yaml:"public_base_url"`
	MaxPayloadSize        int64  `yaml:"max_payload_size_bytes"`
	MaxResponseBodySize   int64  `yaml:"max_response_body_size_bytes"`
	MaxWebhooksPerToken   int    `yaml:"max_webhooks_per_token"`
	MaxTotalConnections   int    `yaml:"max_total_connections"`
	MaxConnectionsPerIP   int    `yaml:"max_connections_per_ip"`
	WebhookTTLMinutes     int    `yaml:"webhook_ttl_minutes"`
	SessionTimeoutMinutes int    `yaml:"session_timeout_minutes"`
	IdleTimeoutMinutes    int    `yaml:"idle_timeout_minutes"`
	ResponseDeadlineSec   int    `yaml:"response_deadline_sec"`
	HandshakeTimeoutSec   int    `yaml:"handshake_timeout_sec"`
	MaxInvalidTokenTries  int    `yaml:"max_invalid_token_attempts"`
	InvalidTokenBlockMin  int    `yaml:"invalid_token_block_minutes"`
}

// SecurityConfig holds the master encryption key and related secrets.
type SecurityConfig struct {
	EncryptionKeyB64 string `yaml:"encryption_key_base64"`
}

// RateLimitConfig configures C13's three sliding-window limiters.
type RateLimitConfig struct {
	PerIPPerMinute    int `yaml:"per_ip_per_minute"`
	PerTokenPerMinute int `yaml:"per_token_per_minute"`
	GlobalPerMinute   int `yaml:"global_per_minute"`
	CleanupIntervalSec int `yaml:"cleanup_interval_sec"`
}

// HousekeepConfig configures C10's retention loops.
type HousekeepConfig struct {
	StartupGraceSec int  `yaml:"startup_grace_sec"`
	PeriodSec       int  `yaml:"period_sec"`
	GraceDays       int  `yaml:"grace_days"`
	DryRun          bool `yaml:"dry_run"`
	EventRetentionDays int `yaml:"event_retention_days"`
}

// ObservConfig configures C14.
type ObservConfig struct {
	MetricsAddr string `yaml:"metrics_addr"`
}

// ObjectStoreConfig selects the C9 offload backend: GCS when a bucket is
// set, otherwise a local directory (used in local-dev and tests).
type ObjectStoreConfig struct {
	GCSBucket string `yaml:"gcs_bucket"`
	LocalDir  string `yaml:"local_dir"`
}

// RedisConfig backs the distributed rate limiter and OAuth2 token cache.
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// =============================================================================
// Singleton pattern with environment overrides
// =============================================================================

var (
	instance *Config
	once     sync.Once
)

// Get returns the singleton config instance, loading it on first use.
func Get() *Config {
	once.Do(func() {
		_ = godotenv.Load()
		cfg, err := LoadConfig(getEnv("CONFIG_PATH", "config.yaml"))
		if err != nil {
			slog.Warn("config: failed to load config file, using defaults", "error", err)
		}
		if cfg == nil {
			cfg = &Config{}
		}
		cfg.applyEnvOverrides()
		instance = cfg
	})
	return instance
}

// LoadConfig loads config from a YAML file.
func LoadConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnvOverrides() {
	c.API.Port = getEnv("PORT", c.API.Port)
	c.API.Env = getEnv("HOOK0_ENV", c.API.Env)
	if v := getEnv("CORS_ALLOW_ORIGINS", ""); v != "" {
		c.API.CORSAllowOrigins = splitCSV(v)
	}

	c.Database.URL = getEnv("DATABASE_URL", c.Database.URL)

	c.Security.EncryptionKeyB64 = getEnv("HOOK0_ENCRYPTION_KEY", c.Security.EncryptionKeyB64)

	if v := getEnv("GCP_PROJECT_ID", ""); v != "" {
		c.Queue.PubSubProjectID = v
		c.Queue.CloudTasksProjectID = v
	}
	c.Queue.PubSubTopicID = getEnv("PUBSUB_TOPIC_ID", c.Queue.PubSubTopicID)
	c.Queue.PubSubEnabled = getEnvBool("PUBSUB_ENABLED", c.Queue.PubSubEnabled)
	c.Queue.CloudTasksEnabled = getEnvBool("CLOUD_TASKS_ENABLED", c.Queue.CloudTasksEnabled)
	c.Queue.CloudTasksLocationID = getEnv("CLOUD_TASKS_LOCATION", c.Queue.CloudTasksLocationID)
	c.Queue.CloudTasksQueueID = getEnv("CLOUD_TASKS_QUEUE", c.Queue.CloudTasksQueueID)
	c.Queue.SubscriptionID = getEnv("PUBSUB_SUBSCRIPTION_ID", c.Queue.SubscriptionID)
	c.Queue.WorkerIntakeURL = getEnv("WORKER_INTAKE_URL", c.Queue.WorkerIntakeURL)

	if v := getEnvInt("DELIVERY_WORKER_COUNT", 0); v > 0 {
		c.Delivery.WorkerCount = v
	}
	if v := getEnvInt("DELIVERY_MAX_RETRIES", 0); v > 0 {
		c.Delivery.MaxRetries = v
	}

	c.Relay.PublicBaseURL = getEnv("RELAY_PUBLIC_BASE_URL", c.Relay.PublicBaseURL)
	c.Relay.Port = getEnv("RELAY_PORT", c.Relay.Port)

	c.Redis.Enabled = getEnvBool("REDIS_ENABLED", c.Redis.Enabled)
	c.Redis.Addr = getEnv("REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = getEnv("REDIS_PASSWORD", c.Redis.Password)

	c.applyDefaults()
}

func (c *Config) applyDefaults() {
	if c.API.Port == "" {
		c.API.Port = "8080"
	}
	if c.API.ReadTimeoutSec == 0 {
		c.API.ReadTimeoutSec = 15
	}
	if c.API.WriteTimeoutSec == 0 {
		c.API.WriteTimeoutSec = 15
	}
	if c.API.IdleTimeoutSec == 0 {
		c.API.IdleTimeoutSec = 60
	}
	if c.API.ShutdownTimeout == 0 {
		c.API.ShutdownTimeout = 30
	}
	if len(c.API.CORSAllowOrigins) == 0 {
		c.API.CORSAllowOrigins = []string{"*"}
	}
	if len(c.API.AllowedContentTypes) == 0 {
		c.API.AllowedContentTypes = []string{"application/json", "text/plain", "application/octet-stream"}
	}

	if c.Database.MaxOpenConns == 0 {
		c.Database.MaxOpenConns = 20
	}
	if c.Database.MaxIdleConns == 0 {
		c.Database.MaxIdleConns = 5
	}

	if c.Delivery.ConnectTimeoutSec == 0 {
		c.Delivery.ConnectTimeoutSec = 5
	}
	if c.Delivery.TotalTimeoutSec == 0 {
		c.Delivery.TotalTimeoutSec = 15
	}
	if c.Delivery.MaxResponseBody == 0 {
		c.Delivery.MaxResponseBody = 10 * 1024 * 1024
	}
	if c.Delivery.UserAgent == "" {
		c.Delivery.UserAgent = "hook0-output-worker/1.0"
	}
	if c.Delivery.MaxRetries == 0 {
		c.Delivery.MaxRetries = 5
	}
	if c.Delivery.RetryBaseSec == 0 {
		c.Delivery.RetryBaseSec = 1
	}
	if c.Delivery.RetryFactor == 0 {
		c.Delivery.RetryFactor = 2
	}
	if c.Delivery.RetryCapSec == 0 {
		c.Delivery.RetryCapSec = 300
	}
	if c.Delivery.RetryJitterPct == 0 {
		c.Delivery.RetryJitterPct = 0.2
	}
	if c.Delivery.PollingSleepMillis == 0 {
		c.Delivery.PollingSleepMillis = 1000
	}
	if c.Delivery.WorkerCount == 0 {
		c.Delivery.WorkerCount = 4
	}
	if c.Delivery.ObjectStoreThreshold == 0 {
		c.Delivery.ObjectStoreThreshold = 64 * 1024
	}
	if c.Delivery.SignatureToleranceSec == 0 {
		c.Delivery.SignatureToleranceSec = 300
	}

	if c.ObjectStore.LocalDir == "" && c.ObjectStore.GCSBucket == "" {
		c.ObjectStore.LocalDir = "/tmp/hook0-objectstore"
	}

	if c.Queue.PubSubTopicID == "" {
		c.Queue.PubSubTopicID = "hook0-dispatch"
	}
	if c.Queue.CloudTasksLocationID == "" {
		c.Queue.CloudTasksLocationID = "us-central1"
	}
	if c.Queue.CloudTasksQueueID == "" {
		c.Queue.CloudTasksQueueID = "hook0-webhooks"
	}
	if c.Queue.SubscriptionID == "" {
		c.Queue.SubscriptionID = "hook0-dispatch-worker"
	}
	if c.Queue.WorkerIntakeURL == "" {
		c.Queue.WorkerIntakeURL = "http://localhost:8081/intake"
	}

	if c.Relay.Port == "" {
		c.Relay.Port = "8090"
	}
	if c.Relay.MaxPayloadSize == 0 {
		c.Relay.MaxPayloadSize = 10 * 1024 * 1024
	}
	if c.Relay.MaxResponseBodySize == 0 {
		c.Relay.MaxResponseBodySize = 10 * 1024 * 1024
	}
	if c.Relay.MaxWebhooksPerToken == 0 {
		c.Relay.MaxWebhooksPerToken = 1000
	}
	if c.Relay.MaxTotalConnections == 0 {
		c.Relay.MaxTotalConnections = 10000
	}
	if c.Relay.MaxConnectionsPerIP == 0 {
		c.Relay.MaxConnectionsPerIP = 10
	}
	if c.Relay.WebhookTTLMinutes == 0 {
		c.Relay.WebhookTTLMinutes = 24 * 60
	}
	if c.Relay.SessionTimeoutMinutes == 0 {
		c.Relay.SessionTimeoutMinutes = 24 * 60
	}
	if c.Relay.IdleTimeoutMinutes == 0 {
		c.Relay.IdleTimeoutMinutes = 60
	}
	if c.Relay.ResponseDeadlineSec == 0 {
		c.Relay.ResponseDeadlineSec = 30
	}
	if c.Relay.HandshakeTimeoutSec == 0 {
		c.Relay.HandshakeTimeoutSec = 30
	}
	if c.Relay.MaxInvalidTokenTries == 0 {
		c.Relay.MaxInvalidTokenTries = 10
	}
	if c.Relay.InvalidTokenBlockMin == 0 {
		c.Relay.InvalidTokenBlockMin = 5
	}

	if c.RateLimit.PerIPPerMinute == 0 {
		c.RateLimit.PerIPPerMinute = 100
	}
	if c.RateLimit.PerTokenPerMinute == 0 {
		c.RateLimit.PerTokenPerMinute = 50
	}
	if c.RateLimit.GlobalPerMinute == 0 {
		c.RateLimit.GlobalPerMinute = 10000
	}
	if c.RateLimit.CleanupIntervalSec == 0 {
		c.RateLimit.CleanupIntervalSec = 300
	}

	if c.Housekeep.StartupGraceSec == 0 {
		c.Housekeep.StartupGraceSec = 30
	}
	if c.Housekeep.PeriodSec == 0 {
		c.Housekeep.PeriodSec = 3600
	}
	if c.Housekeep.GraceDays == 0 {
		c.Housekeep.GraceDays = 7
	}
	if c.Housekeep.EventRetentionDays == 0 {
		c.Housekeep.EventRetentionDays = 90
	}

	if c.Observ.MetricsAddr == "" {
		c.Observ.MetricsAddr = ":9090"
	}
}

// =============================================================================
// Helpers
// =============================================================================

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		return val == "true" || val == "1"
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func splitCSV(s string) []string {
	parts := make([]string, 0)
	for _, p := range strings.Split(s, ",") {
		trimmed := strings.TrimSpace(p)
		if trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return parts
}

func (c *Config) IsProduction() bool {
	return c.API.Env == "production"
}

func (c *Config) GetPort() string {
	if c.API.Port == "" {
		return "8080"
	}
	return c.API.Port
}
