package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	_ "time/tzdata" // zone database for minimal containers

	"salonbot/internal/access"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

const (
	BackendSheets = "sheets"
	BackendSQLite = "sqlite"
)

type Config struct {
	Telegram struct {
		BotToken       string  `yaml:"bot_token"`
		Debug          bool    `yaml:"debug"`
		MessagesPerSec float64 `yaml:"messages_per_sec"`
		DigestEnabled  bool    `yaml:"digest_enabled"`
		DigestHour     int     `yaml:"digest_hour"`
	} `yaml:"telegram"`

	Storage struct {
		Backend string `yaml:"backend"`
	} `yaml:"storage"`

	Google struct {
		CredentialsFile     string `yaml:"credentials_file"`
		SpreadsheetID       string `yaml:"spreadsheet_id"`
		RequestsPerMinute   int    `yaml:"requests_per_minute"`
		ReferenceTTLSeconds int    `yaml:"reference_ttl_seconds"`
	} `yaml:"google"`

	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`

	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Address  string `yaml:"address"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		Prefix   string `yaml:"prefix"`
	} `yaml:"redis"`

	Cache struct {
		TTLMinutes int `yaml:"ttl_minutes"`
	} `yaml:"cache"`

	Booking struct {
		MaxPerDay       int    `yaml:"max_per_day"`
		SlotStepMinutes int    `yaml:"slot_step_minutes"`
		Timezone        string `yaml:"timezone"`
	} `yaml:"booking"`

	Sweeper struct {
		IntervalMinutes int `yaml:"interval_minutes"`
	} `yaml:"sweeper"`

	API struct {
		Enabled   bool     `yaml:"enabled"`
		Port      int      `yaml:"port"`
		Keys      []string `yaml:"keys"`
		AdminKeys []string `yaml:"admin_keys"`
	} `yaml:"api"`

	Monitoring struct {
		HealthCheckPort   int  `yaml:"health_check_port"`
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
		PrometheusPort    int  `yaml:"prometheus_port"`
		GRPCHealthPort    int  `yaml:"grpc_health_port"`
	} `yaml:"monitoring"`

	Logging struct {
		Level   string `yaml:"level"`
		Console bool   `yaml:"console"`
	} `yaml:"logging"`

	Managers []access.Manager `yaml:"managers"`
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
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	cfg.Storage.Backend = strings.ToLower(strings.TrimSpace(cfg.Storage.Backend))
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = BackendSQLite
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "data/salonbot.db"
	}
	if cfg.Redis.Prefix == "" {
		cfg.Redis.Prefix = "salonbot:"
	}
	if cfg.API.Port == 0 {
		cfg.API.Port = 8080
	}
	if cfg.Monitoring.HealthCheckPort == 0 {
		cfg.Monitoring.HealthCheckPort = 8081
	}
	if cfg.Monitoring.PrometheusPort == 0 {
		cfg.Monitoring.PrometheusPort = 9090
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.Storage.Backend == BackendSQLite {
		if err = os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
			return nil, err
		}
	}

	return &cfg, nil
}

// Validate checks cross-field requirements.
func (c *Config) Validate() error {
	var errs []error
	switch c.Storage.Backend {
	case BackendSheets:
		if c.Google.CredentialsFile == "" || c.Google.SpreadsheetID == "" {
			errs = append(errs, errors.New("google.credentials_file and google.spreadsheet_id are required for the sheets backend"))
		}
	case BackendSQLite:
	default:
		errs = append(errs, fmt.Errorf("unknown storage.backend %q", c.Storage.Backend))
	}
	if c.API.Enabled && len(c.API.Keys) == 0 {
		errs = append(errs, errors.New("api.keys must not be empty when the api is enabled"))
	}
	if c.Redis.Enabled && c.Redis.Address == "" {
		errs = append(errs, errors.New("redis.address is required when redis is enabled"))
	}
	if _, err := c.Location(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (c *Config) CacheTTL() time.Duration {
	if c.Cache.TTLMinutes <= 0 {
		return 30 * time.Minute
	}
	return time.Duration(c.Cache.TTLMinutes) * time.Minute
}

func (c *Config) SlotStep() time.Duration {
	if c.Booking.SlotStepMinutes <= 0 {
		return 15 * time.Minute
	}
	return time.Duration(c.Booking.SlotStepMinutes) * time.Minute
}

func (c *Config) MaxPerDay() int {
	if c.Booking.MaxPerDay <= 0 {
		return 3
	}
	return c.Booking.MaxPerDay
}

func (c *Config) SweepInterval() time.Duration {
	if c.Sweeper.IntervalMinutes <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(c.Sweeper.IntervalMinutes) * time.Minute
}

func (c *Config) ReferenceTTL() time.Duration {
	if c.Google.ReferenceTTLSeconds <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(c.Google.ReferenceTTLSeconds) * time.Second
}

// DigestHour is the salon-time hour of the managers' daily digest.
func (c *Config) DigestHour() int {
	if c.Telegram.DigestHour <= 0 || c.Telegram.DigestHour > 23 {
		return 20
	}
	return c.Telegram.DigestHour
}

// Location resolves booking.timezone; empty means Europe/Moscow.
func (c *Config) Location() (*time.Location, error) {
	tz := c.Booking.Timezone
	if tz == "" {
		tz = "Europe/Moscow"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("booking.timezone: %w", err)
	}
	return loc, nil
}

// LogLevel parses logging.level, defaulting to info.
func (c *Config) LogLevel() zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(c.Logging.Level))
	if err != nil || c.Logging.Level == "" {
		return zerolog.InfoLevel
	}
	return lvl
}
