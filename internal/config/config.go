package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"

	"posync/internal/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App        AppConfig        `yaml:"app"`
	Logging    LoggingConfig    `yaml:"logging"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Remote     RemoteConfig     `yaml:"remote"`
	Sync       SyncConfig       `yaml:"sync"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	API        APIConfig        `yaml:"api"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
	TTL      int    `yaml:"ttl_seconds"`
}

// RemoteConfig describes the REST backend the sync core replays against.
type RemoteConfig struct {
	BaseURL        string  `yaml:"base_url"`
	TimeoutSeconds int     `yaml:"timeout_seconds"`
	ProbePath      string  `yaml:"probe_path"`
	ProbeInterval  int     `yaml:"probe_interval_seconds"`
	RateLimitRPS   float64 `yaml:"rate_limit_rps"`
	RateLimitBurst int     `yaml:"rate_limit_burst"`
}

type SyncConfig struct {
	IntervalSeconds int `yaml:"interval_seconds"`
	RetryLimit      int `yaml:"retry_limit"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
}

type APIConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

func Load(configPath string) (*Config, error) {
	// .env is optional; environment may already be set by the supervisor.
	if err := godotenv.Load(".env"); err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return errors.New("database path is required")
	}

	if c.Remote.BaseURL == "" {
		return errors.New("remote base_url is required")
	}
	if _, err := url.ParseRequestURI(c.Remote.BaseURL); err != nil {
		return fmt.Errorf("remote base_url is invalid: %w", err)
	}

	if c.Sync.RetryLimit < 0 {
		return errors.New("sync retry_limit must not be negative")
	}

	return nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "posync"
	}
	if c.Sync.IntervalSeconds == 0 {
		c.Sync.IntervalSeconds = models.DefaultSyncIntervalSeconds
	}
	if c.Sync.RetryLimit == 0 {
		c.Sync.RetryLimit = models.DefaultRetryLimit
	}
	if c.Remote.TimeoutSeconds == 0 {
		c.Remote.TimeoutSeconds = models.DefaultRemoteTimeout
	}
	if c.Remote.ProbeInterval == 0 {
		c.Remote.ProbeInterval = models.DefaultProbeInterval
	}
	if c.Remote.ProbePath == "" {
		c.Remote.ProbePath = "/healthz"
	}
	if c.Redis.TTL == 0 {
		c.Redis.TTL = models.DefaultRedisTTL
	}
	if c.API.Enabled && c.API.Port == 0 {
		c.API.Port = 8080
	}
}
