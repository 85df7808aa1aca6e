package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"
	_ "time/tzdata" // schedule timezones without host zoneinfo

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultPath is used when TELECARE_CONFIG_PATH is unset.
const DefaultPath = "configs/config.yaml"

type Config struct {
	Server struct {
		Port             int      `yaml:"port"`
		APIKeys          []string `yaml:"api_keys"`
		RateLimitRPS     float64  `yaml:"rate_limit_rps"`
		RateLimitBurst   int      `yaml:"rate_limit_burst"`
		ReadTimeoutSecs  int      `yaml:"read_timeout_seconds"`
		WriteTimeoutSecs int      `yaml:"write_timeout_seconds"`
	} `yaml:"server"`

	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`

	Backup BackupConfig `yaml:"backup"`

	Redis struct {
		Address  string `yaml:"address"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`

	Schedule struct {
		Timezone string `yaml:"timezone"`
	} `yaml:"schedule"`

	Reconcile struct {
		SweepIntervalSeconds int  `yaml:"sweep_interval_seconds"`
		LockTTLSeconds       int  `yaml:"lock_ttl_seconds"`
		Disabled             bool `yaml:"disabled"`
	} `yaml:"reconcile"`

	Telegram struct {
		BotToken        string  `yaml:"bot_token"`
		Debug           bool    `yaml:"debug"`
		RateLimitPerSec float64 `yaml:"rate_limit_per_sec"`
	} `yaml:"telegram"`

	Monitoring struct {
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
		PrometheusPort    int  `yaml:"prometheus_port"`
	} `yaml:"monitoring"`

	Logging struct {
		Level   string `yaml:"level"`
		Console bool   `yaml:"console"`
	} `yaml:"logging"`

	Audit struct {
		Enabled       bool `yaml:"enabled"`
		ExportOnStart bool `yaml:"export_on_start"`
	} `yaml:"audit"`

	Admins []AdminConfig `yaml:"admins"`
}

// AdminConfig is a statically configured admin identity.
type AdminConfig struct {
	ID     string `yaml:"id"`
	Name   string `yaml:"name"`
	ChatID int64  `yaml:"chat_id"`
}

// BackupConfig controls the periodic sqlite snapshot.
type BackupConfig struct {
	Enabled       bool   `yaml:"enabled"`
	IntervalHours int    `yaml:"interval_hours"`
	StoragePath   string `yaml:"storage_path"`
	RetentionDays int    `yaml:"retention_days"`
}

// Load reads the yaml config at path. A .env file next to the working
// directory is loaded first so ${ENV_VAR} placeholders can reference it.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
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

	if cfg.Database.Path == "" {
		cfg.Database.Path = "data/telecare.db"
	}
	if cfg.Backup.StoragePath == "" {
		cfg.Backup.StoragePath = "data/backups"
	}

	if err = os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		return nil, err
	}

	if _, err := cfg.Location(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Location returns the timezone session templates are anchored in.
func (c *Config) Location() (*time.Location, error) {
	if c.Schedule.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(c.Schedule.Timezone)
}

func (c *Config) SweepInterval() time.Duration {
	if c.Reconcile.SweepIntervalSeconds <= 0 {
		return time.Minute
	}
	return time.Duration(c.Reconcile.SweepIntervalSeconds) * time.Second
}

func (c *Config) LockTTL() time.Duration {
	if c.Reconcile.LockTTLSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.Reconcile.LockTTLSeconds) * time.Second
}

func (c *Config) ServerPort() int {
	if c.Server.Port == 0 {
		return 8080
	}
	return c.Server.Port
}

func (c *Config) ReadTimeout() time.Duration {
	if c.Server.ReadTimeoutSecs <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.Server.ReadTimeoutSecs) * time.Second
}

func (c *Config) WriteTimeout() time.Duration {
	if c.Server.WriteTimeoutSecs <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.Server.WriteTimeoutSecs) * time.Second
}

// RateLimit returns requests per second and burst for each API client.
func (c *Config) RateLimit() (float64, int) {
	rps, burst := c.Server.RateLimitRPS, c.Server.RateLimitBurst
	if rps <= 0 {
		rps = 20
	}
	if burst <= 0 {
		burst = 40
	}
	return rps, burst
}

func (c *Config) NotifyRate() float64 {
	if c.Telegram.RateLimitPerSec <= 0 {
		return 25
	}
	return c.Telegram.RateLimitPerSec
}

func (c *Config) BackupInterval() time.Duration {
	if c.Backup.IntervalHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(c.Backup.IntervalHours) * time.Hour
}
