package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is used when SLOTBOOK_CONFIG is not set.
const DefaultPath = "configs/config.yaml"

type Config struct {
	Server struct {
		Address           string `yaml:"address"`
		ReadTimeoutSecs   int    `yaml:"read_timeout_seconds"`
		WriteTimeoutSecs  int    `yaml:"write_timeout_seconds"`
		ShutdownTimeoutMS int    `yaml:"shutdown_timeout_ms"`
		RateLimitPerSec   int    `yaml:"rate_limit_per_second"`
		RateLimitBurst    int    `yaml:"rate_limit_burst"`
	} `yaml:"server"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"` // console | json
	} `yaml:"log"`

	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`

	Backup BackupConfig `yaml:"backup"`

	Redis struct {
		Address  string `yaml:"address"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`

	Cache struct {
		Enabled    bool `yaml:"enabled"`
		TTLSeconds int  `yaml:"ttl_seconds"`
	} `yaml:"cache"`

	Lock struct {
		Backend       string `yaml:"backend"` // memory | redis
		TTLSeconds    int    `yaml:"ttl_seconds"`
		WaitTimeoutMS int    `yaml:"wait_timeout_ms"`
	} `yaml:"lock"`

	Catalog struct {
		Path                string `yaml:"path"`
		WatchIntervalSecond int    `yaml:"watch_interval_seconds"`
	} `yaml:"catalog"`

	Chat struct {
		Enabled        bool   `yaml:"enabled"`
		BaseURL        string `yaml:"base_url"`
		APIKey         string `yaml:"api_key"`
		TimeoutSeconds int    `yaml:"timeout_seconds"`
	} `yaml:"chat"`

	Monitoring struct {
		HealthCheckPort   int  `yaml:"health_check_port"`
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
		PrometheusPort    int  `yaml:"prometheus_port"`
	} `yaml:"monitoring"`

	Booking struct {
		MaxAdvanceDays       int    `yaml:"max_advance_days"`
		AutoConfirm          bool   `yaml:"auto_confirm"`
		MaxRetries           int    `yaml:"max_retries"`
		RetryBaseDelayMS     int    `yaml:"retry_base_delay_ms"`
		DefaultTimezone      string `yaml:"default_timezone"`
		DefaultRangeDays     int    `yaml:"default_range_days"`
		MaxRangeDays         int    `yaml:"max_range_days"`
		SweepIntervalSeconds int    `yaml:"sweep_interval_seconds"`
		SweepBatchSize       int    `yaml:"sweep_batch_size"`
	} `yaml:"booking"`
}

// BackupConfig controls periodic database snapshots.
type BackupConfig struct {
	Enabled       bool   `yaml:"enabled"`
	IntervalHours int    `yaml:"interval_hours"`
	StoragePath   string `yaml:"path"`
	RetentionDays int    `yaml:"retention_days"`
}

// PathFromEnv returns the config path taken from SLOTBOOK_CONFIG.
func PathFromEnv() string {
	if p := os.Getenv("SLOTBOOK_CONFIG"); p != "" {
		return p
	}
	return DefaultPath
}

func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	// Support ${ENV_VAR} placeholders in YAML config.
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()

	if err = cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	if err = os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
	if c.Database.Path == "" {
		c.Database.Path = "data/slotbook.db"
	}
	if c.Backup.StoragePath == "" {
		c.Backup.StoragePath = "data/backups"
	}
	if c.Lock.Backend == "" {
		c.Lock.Backend = "memory"
	}
	if c.Catalog.Path == "" {
		c.Catalog.Path = "configs/catalog.yaml"
	}
	if c.Booking.DefaultTimezone == "" {
		c.Booking.DefaultTimezone = "Europe/Moscow"
	}
}

// Validate checks values that cannot be defaulted.
func (c *Config) Validate() error {
	switch c.Lock.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("lock.backend: unknown backend %q", c.Lock.Backend)
	}
	if c.Lock.Backend == "redis" && c.Redis.Address == "" {
		return fmt.Errorf("lock.backend redis requires redis.address")
	}
	if c.Cache.Enabled && c.Redis.Address == "" {
		return fmt.Errorf("cache.enabled requires redis.address")
	}
	if c.Chat.Enabled && c.Chat.BaseURL == "" {
		return fmt.Errorf("chat.enabled requires chat.base_url")
	}
	if _, err := time.LoadLocation(c.Booking.DefaultTimezone); err != nil {
		return fmt.Errorf("booking.default_timezone: %w", err)
	}
	if c.Booking.MaxRetries < 0 {
		return fmt.Errorf("booking.max_retries cannot be negative")
	}
	return nil
}

func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Booking.DefaultTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (c *Config) BookingMaxAdvance() time.Duration {
	if c.Booking.MaxAdvanceDays <= 0 {
		return 30 * 24 * time.Hour
	}
	return time.Duration(c.Booking.MaxAdvanceDays) * 24 * time.Hour
}

func (c *Config) RetryBaseDelay() time.Duration {
	if c.Booking.RetryBaseDelayMS <= 0 {
		return 20 * time.Millisecond
	}
	return time.Duration(c.Booking.RetryBaseDelayMS) * time.Millisecond
}

func (c *Config) MaxRetries() int {
	if c.Booking.MaxRetries == 0 {
		return 3
	}
	return c.Booking.MaxRetries
}

func (c *Config) DefaultRangeDays() int {
	if c.Booking.DefaultRangeDays <= 0 {
		return 30
	}
	return c.Booking.DefaultRangeDays
}

func (c *Config) MaxRangeDays() int {
	if c.Booking.MaxRangeDays <= 0 {
		return 90
	}
	return c.Booking.MaxRangeDays
}

func (c *Config) SweepInterval() time.Duration {
	if c.Booking.SweepIntervalSeconds <= 0 {
		return time.Minute
	}
	return time.Duration(c.Booking.SweepIntervalSeconds) * time.Second
}

func (c *Config) CacheTTL() time.Duration {
	if c.Cache.TTLSeconds <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(c.Cache.TTLSeconds) * time.Second
}

func (c *Config) LockTTL() time.Duration {
	if c.Lock.TTLSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.Lock.TTLSeconds) * time.Second
}

func (c *Config) LockWaitTimeout() time.Duration {
	if c.Lock.WaitTimeoutMS <= 0 {
		return 3 * time.Second
	}
	return time.Duration(c.Lock.WaitTimeoutMS) * time.Millisecond
}

func (c *Config) ChatTimeout() time.Duration {
	if c.Chat.TimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.Chat.TimeoutSeconds) * time.Second
}

func (c *Config) CatalogWatchInterval() time.Duration {
	if c.Catalog.WatchIntervalSecond <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.Catalog.WatchIntervalSecond) * time.Second
}

func (c *Config) ShutdownTimeout() time.Duration {
	if c.Server.ShutdownTimeoutMS <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.Server.ShutdownTimeoutMS) * time.Millisecond
}

func (b BackupConfig) Interval() time.Duration {
	if b.IntervalHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(b.IntervalHours) * time.Hour
}

func (c *Config) SweepBatchSize() int {
	if c.Booking.SweepBatchSize <= 0 {
		return 100
	}
	return c.Booking.SweepBatchSize
}
