package config

import (
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port               int     `yaml:"port"`
		APIKey             string  `yaml:"api_key"`
		RateLimitPerSecond float64 `yaml:"rate_limit_per_second"`
		RateLimitBurst     int     `yaml:"rate_limit_burst"`
	} `yaml:"server"`

	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`

	Redis struct {
		Address         string `yaml:"address"`
		Password        string `yaml:"password"`
		DB              int    `yaml:"db"`
		CacheTTLSeconds int    `yaml:"cache_ttl_seconds"`
	} `yaml:"redis"`

	Booking struct {
		SlotStepMinutes int `yaml:"slot_step_minutes"`
		MaxRangeDays    int `yaml:"max_range_days"`
		LockTTLMinutes  int `yaml:"lock_ttl_minutes"`
	} `yaml:"booking"`

	Backup struct {
		Enabled       bool   `yaml:"enabled"`
		StoragePath   string `yaml:"storage_path"`
		IntervalHours int    `yaml:"interval_hours"`
		RetentionDays int    `yaml:"retention_days"`
	} `yaml:"backup"`

	Monitoring struct {
		HealthCheckPort   int  `yaml:"health_check_port"`
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
		PrometheusPort    int  `yaml:"prometheus_port"`
	} `yaml:"monitoring"`

	// Timezone is the default zone for projecting sitewide break wall-clock
	// times when a break does not name its own.
	Timezone string `yaml:"timezone"`
}

func Load(path string) (*Config, error) {
	if path == "" {
		path = "configs/config.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Support ${ENV_VAR} placeholders in YAML config.
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "data/clinicbook.db"
	}
	if cfg.Timezone == "" {
		cfg.Timezone = "UTC"
	}

	if err = os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// BackupInterval is the time between database backups; defaults to 24h.
func (c *Config) BackupInterval() time.Duration {
	if c.Backup.IntervalHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(c.Backup.IntervalHours) * time.Hour
}

// MaxRangeDays caps heatmap requests; defaults to 90 days.
func (c *Config) MaxRangeDays() int {
	if c.Booking.MaxRangeDays <= 0 {
		return 90
	}
	return c.Booking.MaxRangeDays
}

// LockTTL is how long a checkout holds a slot; defaults to 10 minutes.
func (c *Config) LockTTL() time.Duration {
	if c.Booking.LockTTLMinutes <= 0 {
		return 10 * time.Minute
	}
	return time.Duration(c.Booking.LockTTLMinutes) * time.Minute
}

// CacheTTL is the Redis entry lifetime; zero disables the Redis cache.
func (c *Config) CacheTTL() time.Duration {
	if c.Redis.CacheTTLSeconds <= 0 {
		return 0
	}
	return time.Duration(c.Redis.CacheTTLSeconds) * time.Second
}
