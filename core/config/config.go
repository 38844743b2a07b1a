package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// TelegramConfig holds Telegram bot related settings.
type TelegramConfig struct {
	Token   string `yaml:"token" envconfig:"BOT_TOKEN"`
	AdminID int64  `yaml:"admin_id" envconfig:"TELEGRAM_ADMIN_ID"`
	// RunMode selects "longpoll" (default) or "webhook".
	RunMode string `yaml:"run_mode" envconfig:"TELEGRAM_RUN_MODE"`
	// LongPollTimeoutSeconds defines long polling timeout; 0 -> default
	LongPollTimeoutSeconds int `yaml:"longpoll_timeout_seconds" envconfig:"TELEGRAM_LONGPOLL_TIMEOUT_SECONDS"`
}

// WebhookConfig declares webhook listener settings for webhook run mode.
type WebhookConfig struct {
	Listen string `yaml:"listen" envconfig:"WEBHOOK_LISTEN"`
	Port   int    `yaml:"port" envconfig:"WEBHOOK_PORT"`
	URL    string `yaml:"url" envconfig:"WEBHOOK_URL"`
}

// RateLimitConfig throttles per-user update processing.
type RateLimitConfig struct {
	IntervalMS     int      `yaml:"interval_ms" envconfig:"RATE_LIMIT_INTERVAL_MS"`
	ExcludeUpdates []string `yaml:"exclude_updates" envconfig:"RATE_LIMIT_EXCLUDE_UPDATES"`
}

// LoggingConfig defines logging related configuration.
type LoggingConfig struct {
	Level       string `yaml:"level"`
	Format      string `yaml:"format"`
	KeysOrder   string `yaml:"keys_order"`
	DebugSample string `yaml:"debug_sample"`
	Dir         string `yaml:"dir"`
	BotFile     string `yaml:"bot_file"`
	// Profile indicates environment profile such as "debug" or "prod".
	Profile string `yaml:"profile"`
}

// LedgerConfig describes the external transaction-creation service.
type LedgerConfig struct {
	BaseURL string `yaml:"base_url" envconfig:"LEDGER_BASE_URL"`
	// APIKey authorizes writes. Empty key is not fatal: the app degrades
	// to a read-only "service not configured" mode.
	APIKey string `yaml:"api_key" envconfig:"LEDGER_API_KEY"`
	// HostSecret signs the host-identity token attached to every request.
	HostSecret string `yaml:"host_secret" envconfig:"LEDGER_HOST_SECRET"`
	// SettlementCurrency is the ledger's base currency; foreign amounts are
	// converted into it before submission.
	SettlementCurrency string `yaml:"settlement_currency" envconfig:"LEDGER_SETTLEMENT_CURRENCY"`
	// VerifyWrites re-queries a created transaction by its external id.
	VerifyWrites   *bool `yaml:"verify_writes" envconfig:"LEDGER_VERIFY_WRITES"`
	VerifyAttempts int   `yaml:"verify_attempts" envconfig:"LEDGER_VERIFY_ATTEMPTS"`
	VerifyDelayMS  int   `yaml:"verify_delay_ms" envconfig:"LEDGER_VERIFY_DELAY_MS"`
}

// CatalogConfig describes the accounts/categories/usage read API.
type CatalogConfig struct {
	BaseURL string `yaml:"base_url" envconfig:"CATALOG_BASE_URL"`
	APIKey  string `yaml:"api_key" envconfig:"CATALOG_API_KEY"`
}

// CacheConfig carries per-domain TTLs for the two-tier cache and selects
// the durable tier backend.
type CacheConfig struct {
	// Backend is one of "memory", "file", "postgres", "redis".
	Backend string `yaml:"backend" envconfig:"CACHE_BACKEND"`
	// Path locates the file backend store.
	Path string `yaml:"path" envconfig:"CACHE_PATH"`

	AccountsTTLSeconds   int `yaml:"accounts_ttl_seconds" envconfig:"CACHE_ACCOUNTS_TTL_SECONDS"`
	CategoriesTTLSeconds int `yaml:"categories_ttl_seconds" envconfig:"CACHE_CATEGORIES_TTL_SECONDS"`
	RatesTTLSeconds      int `yaml:"rates_ttl_seconds" envconfig:"CACHE_RATES_TTL_SECONDS"`
	BalancesTTLSeconds   int `yaml:"balances_ttl_seconds" envconfig:"CACHE_BALANCES_TTL_SECONDS"`
}

const (
	// CacheMemory keeps cache entries in process memory only.
	CacheMemory = "memory"
	// CacheFile mirrors cache entries into a local JSON file.
	CacheFile = "file"
	// CachePostgres mirrors cache entries into the database.
	CachePostgres = "postgres"
	// CacheRedis mirrors cache entries into redis.
	CacheRedis = "redis"
)

// RedisConfig is the optional redis durable cache tier.
type RedisConfig struct {
	Addr     string `yaml:"addr" envconfig:"REDIS_ADDR"`
	Password string `yaml:"password" envconfig:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" envconfig:"REDIS_DB"`
}

// SnapshotConfig selects where flow snapshots are persisted.
type SnapshotConfig struct {
	// Backend is one of "file", "postgres", "off".
	Backend string `yaml:"backend" envconfig:"SNAPSHOT_BACKEND"`
	Path    string `yaml:"path" envconfig:"SNAPSHOT_PATH"`
}

const (
	// RunModeLongpoll runs the bot on Telegram long polling.
	RunModeLongpoll = "longpoll"
	// RunModeWebhook runs the bot behind a webhook listener.
	RunModeWebhook = "webhook"
)

const (
	// SnapshotFile persists flow snapshots into a local JSON file.
	SnapshotFile = "file"
	// SnapshotPostgres persists flow snapshots into the database.
	SnapshotPostgres = "postgres"
	// SnapshotOff disables flow persistence entirely.
	SnapshotOff = "off"
)

// Config aggregates the application configuration.
type Config struct {
	Telegram  TelegramConfig  `yaml:"telegram"`
	Webhook   WebhookConfig   `yaml:"webhook"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Logging   LoggingConfig   `yaml:"logging"`
	Database  DatabaseConfig  `yaml:"database"`
	Ledger    LedgerConfig    `yaml:"ledger"`
	Catalog   CatalogConfig   `yaml:"catalog"`
	Cache     CacheConfig     `yaml:"cache"`
	Redis     RedisConfig     `yaml:"redis"`
	Snapshot  SnapshotConfig  `yaml:"snapshot"`
}

// DatabaseConfig holds postgres connection settings. The database is
// optional: it backs the postgres cache and snapshot tiers.
type DatabaseConfig struct {
	Host           string `yaml:"host" envconfig:"DB_HOST"`
	Port           string `yaml:"port" envconfig:"DB_PORT"`
	User           string `yaml:"user" envconfig:"DB_USER"`
	Password       string `yaml:"password" envconfig:"DB_PASSWORD"`
	Name           string `yaml:"name" envconfig:"DB_NAME"`
	SSLMode        string `yaml:"sslmode" envconfig:"DB_SSLMODE"`
	MaxConnections int    `yaml:"max_connections" envconfig:"DB_MAX_CONNECTIONS"`
}

// DatabaseEnabled reports whether a postgres connection is configured.
func (c *Config) DatabaseEnabled() bool {
	return c != nil && strings.TrimSpace(c.Database.Host) != ""
}

// Load reads configuration from a YAML file and environment variables.
func Load(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env: %w", err)
	}

	if err := Normalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Normalize performs basic validation of required configuration fields and adjusts defaults.
func Normalize(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}

	if cfg.Telegram.Token == "" {
		return fmt.Errorf("telegram token is required")
	}
	if cfg.Telegram.LongPollTimeoutSeconds < 0 {
		return fmt.Errorf("telegram.longpoll_timeout_seconds must be >= 0")
	}
	runMode := strings.ToLower(strings.TrimSpace(cfg.Telegram.RunMode))
	if runMode == "" {
		runMode = RunModeLongpoll
	}
	if runMode != RunModeLongpoll && runMode != RunModeWebhook {
		return fmt.Errorf("invalid telegram.run_mode %q; allowed: longpoll, webhook", cfg.Telegram.RunMode)
	}
	cfg.Telegram.RunMode = runMode
	if runMode == RunModeWebhook && strings.TrimSpace(cfg.Webhook.URL) == "" {
		return fmt.Errorf("webhook.url is required in webhook mode")
	}

	if strings.TrimSpace(cfg.Ledger.BaseURL) == "" {
		return fmt.Errorf("ledger.base_url is required")
	}
	cfg.Ledger.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.Ledger.BaseURL), "/")
	if strings.TrimSpace(cfg.Catalog.BaseURL) == "" {
		// The catalog usually lives behind the same host as the ledger.
		cfg.Catalog.BaseURL = cfg.Ledger.BaseURL
	}
	cfg.Catalog.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.Catalog.BaseURL), "/")

	if strings.TrimSpace(cfg.Ledger.SettlementCurrency) == "" {
		cfg.Ledger.SettlementCurrency = "EUR"
	}
	cfg.Ledger.SettlementCurrency = strings.ToUpper(strings.TrimSpace(cfg.Ledger.SettlementCurrency))

	if cfg.Ledger.VerifyAttempts <= 0 {
		cfg.Ledger.VerifyAttempts = 3
	}
	if cfg.Ledger.VerifyDelayMS <= 0 {
		cfg.Ledger.VerifyDelayMS = 500
	}

	if cfg.Cache.AccountsTTLSeconds <= 0 {
		cfg.Cache.AccountsTTLSeconds = 60
	}
	if cfg.Cache.CategoriesTTLSeconds <= 0 {
		cfg.Cache.CategoriesTTLSeconds = 60
	}
	if cfg.Cache.RatesTTLSeconds <= 0 {
		cfg.Cache.RatesTTLSeconds = 3600
	}
	if cfg.Cache.BalancesTTLSeconds <= 0 {
		cfg.Cache.BalancesTTLSeconds = 300
	}

	cacheBackend := strings.ToLower(strings.TrimSpace(cfg.Cache.Backend))
	if cacheBackend == "" {
		cacheBackend = CacheMemory
	}
	switch cacheBackend {
	case CacheMemory, CachePostgres, CacheRedis:
	case CacheFile:
		if strings.TrimSpace(cfg.Cache.Path) == "" {
			cfg.Cache.Path = "data/cache.json"
		}
	default:
		return fmt.Errorf("invalid cache.backend %q; allowed: memory, file, postgres, redis", cfg.Cache.Backend)
	}
	cfg.Cache.Backend = cacheBackend

	backend := strings.ToLower(strings.TrimSpace(cfg.Snapshot.Backend))
	if backend == "" {
		backend = SnapshotFile
	}
	switch backend {
	case SnapshotFile:
		if strings.TrimSpace(cfg.Snapshot.Path) == "" {
			cfg.Snapshot.Path = "data/flow_snapshot.json"
		}
	case SnapshotPostgres, SnapshotOff:
	default:
		return fmt.Errorf("invalid snapshot.backend %q; allowed: file, postgres, off", cfg.Snapshot.Backend)
	}
	cfg.Snapshot.Backend = backend

	return nil
}

// LedgerConfigured reports whether write access to the ledger is available.
func (c *Config) LedgerConfigured() bool {
	return c != nil && strings.TrimSpace(c.Ledger.APIKey) != ""
}

// VerifyWritesEnabled resolves the verify flag with its default (on).
func (c *LedgerConfig) VerifyWritesEnabled() bool {
	if c == nil || c.VerifyWrites == nil {
		return true
	}
	return *c.VerifyWrites
}

// VerifyDelay returns the configured inter-attempt delay as a duration.
func (c *LedgerConfig) VerifyDelay() time.Duration {
	return time.Duration(c.VerifyDelayMS) * time.Millisecond
}
