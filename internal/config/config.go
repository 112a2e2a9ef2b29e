package config

import (
	"time"

	"github.com/spf13/viper"
)

type DispatchMode string

const (
	DispatchInProcess DispatchMode = "inprocess" // goroutine pool inside the server (default)
	DispatchQueue     DispatchMode = "queue"     // durable backlite task queue
)

type (
	Config struct {
		HTTP
		Global
		Shopify
		Database
		Mirror
		Sync
		Cache
		Tasks
		Schedule
		Log
		Metrics
	}

	HTTP struct {
		Port int32
		Host string
	}
	Global struct {
		ShutdownTimeoutInSeconds int
	}
	Shopify struct {
		ShopDomain     string
		AccessToken    string
		APIVersion     string
		Endpoint       string // overrides the URL derived from ShopDomain/APIVersion
		RequestTimeout time.Duration
		RetryBaseDelay time.Duration
		MaxRetryDelay  time.Duration
	}
	Database struct {
		Path string
	}
	Mirror struct {
		Path string
	}
	Sync struct {
		MaxConcurrent    int           // concurrent sync loops across resource types
		WriteConcurrency int           // per-batch normalized write fan-out
		PageDelay        time.Duration // pause between pages for upstream rate limits
		EstimatedTotal   int           // coarse upper bound used for progress
		Dispatch         DispatchMode
	}
	Cache struct {
		DefaultTTL    time.Duration
		SweepInterval time.Duration
		CountTTL      time.Duration // upstream count query results
	}
	Tasks struct {
		Workers         int
		ReleaseAfter    time.Duration
		CleanupInterval time.Duration

		EventRetentionDays int // batch events older than this are purged
	}
	Schedule struct {
		Enabled      bool
		Orders       string // Cron format: "*/30 * * * *" = every 30 minutes
		Products     string // Cron format: "0 */6 * * *" = every 6 hours
		EventCleanup string // Cron format: "0 3 * * *" = daily at 03:00
	}
	Log struct {
		Level      string
		Format     string
		File       string
		MaxSizeMB  int
		MaxBackups int
		MaxAgeDays int
	}
	Metrics struct {
		Enabled bool
	}
)

func NewConfig() *Config {
	v := viper.New()
	v.AutomaticEnv()

	// Optional config file (any format viper understands); env vars still win.
	if file := v.GetString("CONFIG_FILE"); file != "" {
		v.SetConfigFile(file)
		_ = v.ReadInConfig()
	}

	v.SetDefault("port", 8190)
	v.SetDefault("host", "0.0.0.0")
	v.SetDefault("shutdown_timeout_in_seconds", 10)

	v.SetDefault("shopify_shop_domain", "")
	v.SetDefault("shopify_access_token", "")
	v.SetDefault("shopify_api_version", DefaultShopifyAPIVersion)
	v.SetDefault("shopify_endpoint", "")
	v.SetDefault("shopify_request_timeout", "30s")
	v.SetDefault("shopify_retry_base_delay", "1s")
	v.SetDefault("shopify_max_retry_delay", "30s")

	v.SetDefault("database_path", DefaultDatabasePath)
	v.SetDefault("mirror_database_path", DefaultMirrorDatabasePath)

	// Sync loop defaults
	v.SetDefault("sync_max_concurrent", 2)
	v.SetDefault("sync_write_concurrency", 8)
	v.SetDefault("sync_page_delay", "500ms")
	v.SetDefault("sync_estimated_total", 1000)
	v.SetDefault("sync_dispatch", string(DispatchInProcess))

	// Cache defaults
	v.SetDefault("cache_default_ttl", "30s")
	v.SetDefault("cache_sweep_interval", "1m")
	v.SetDefault("cache_count_ttl", "5m")

	// Task queue defaults
	v.SetDefault("task_workers", 2)
	v.SetDefault("task_release_after", "3h")
	v.SetDefault("task_cleanup_interval", "1h")
	v.SetDefault("event_retention_days", 30)

	v.SetDefault("schedule_enabled", false)
	v.SetDefault("schedule_orders", "*/30 * * * *")
	v.SetDefault("schedule_products", "0 */6 * * *")
	v.SetDefault("schedule_event_cleanup", "0 3 * * *")

	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")
	v.SetDefault("log_file", "")
	v.SetDefault("log_max_size_mb", 100)
	v.SetDefault("log_max_backups", 3)
	v.SetDefault("log_max_age_days", 14)

	v.SetDefault("metrics_enabled", true)

	return &Config{
		HTTP: HTTP{
			Port: v.GetInt32("PORT"),
			Host: v.GetString("HOST"),
		},
		Global: Global{
			ShutdownTimeoutInSeconds: v.GetInt("SHUTDOWN_TIMEOUT_IN_SECONDS"),
		},
		Shopify: Shopify{
			ShopDomain:     v.GetString("SHOPIFY_SHOP_DOMAIN"),
			AccessToken:    v.GetString("SHOPIFY_ACCESS_TOKEN"),
			APIVersion:     v.GetString("SHOPIFY_API_VERSION"),
			Endpoint:       v.GetString("SHOPIFY_ENDPOINT"),
			RequestTimeout: v.GetDuration("SHOPIFY_REQUEST_TIMEOUT"),
			RetryBaseDelay: v.GetDuration("SHOPIFY_RETRY_BASE_DELAY"),
			MaxRetryDelay:  v.GetDuration("SHOPIFY_MAX_RETRY_DELAY"),
		},
		Database: Database{
			Path: v.GetString("DATABASE_PATH"),
		},
		Mirror: Mirror{
			Path: v.GetString("MIRROR_DATABASE_PATH"),
		},
		Sync: Sync{
			MaxConcurrent:    v.GetInt("SYNC_MAX_CONCURRENT"),
			WriteConcurrency: v.GetInt("SYNC_WRITE_CONCURRENCY"),
			PageDelay:        v.GetDuration("SYNC_PAGE_DELAY"),
			EstimatedTotal:   v.GetInt("SYNC_ESTIMATED_TOTAL"),
			Dispatch:         DispatchMode(v.GetString("SYNC_DISPATCH")),
		},
		Cache: Cache{
			DefaultTTL:    v.GetDuration("CACHE_DEFAULT_TTL"),
			SweepInterval: v.GetDuration("CACHE_SWEEP_INTERVAL"),
			CountTTL:      v.GetDuration("CACHE_COUNT_TTL"),
		},
		Tasks: Tasks{
			Workers:         v.GetInt("TASK_WORKERS"),
			ReleaseAfter:    v.GetDuration("TASK_RELEASE_AFTER"),
			CleanupInterval: v.GetDuration("TASK_CLEANUP_INTERVAL"),

			EventRetentionDays: v.GetInt("EVENT_RETENTION_DAYS"),
		},
		Schedule: Schedule{
			Enabled:      v.GetBool("SCHEDULE_ENABLED"),
			Orders:       v.GetString("SCHEDULE_ORDERS"),
			Products:     v.GetString("SCHEDULE_PRODUCTS"),
			EventCleanup: v.GetString("SCHEDULE_EVENT_CLEANUP"),
		},
		Log: Log{
			Level:      v.GetString("LOG_LEVEL"),
			Format:     v.GetString("LOG_FORMAT"),
			File:       v.GetString("LOG_FILE"),
			MaxSizeMB:  v.GetInt("LOG_MAX_SIZE_MB"),
			MaxBackups: v.GetInt("LOG_MAX_BACKUPS"),
			MaxAgeDays: v.GetInt("LOG_MAX_AGE_DAYS"),
		},
		Metrics: Metrics{
			Enabled: v.GetBool("METRICS_ENABLED"),
		},
	}
}
