package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config defines server configuration.
type Config struct {
	Server ServerConfig `yaml:"server"`
	DB     DBConfig     `yaml:"db"`
	Flush  FlushConfig  `yaml:"flush"`
	Log    LogConfig    `yaml:"log"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type DBConfig struct {
	Path string `yaml:"path"`
}

// FlushConfig controls the periodic persistence of checked-out projects.
type FlushConfig struct {
	Interval time.Duration `yaml:"-"`
}

// UnmarshalYAML accepts the interval as a duration string like "30s".
func (f *FlushConfig) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		Interval string `yaml:"interval"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	if raw.Interval != "" {
		d, err := time.ParseDuration(raw.Interval)
		if err != nil {
			return fmt.Errorf("invalid flush interval: %w", err)
		}
		f.Interval = d
	}
	return nil
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// Load reads configuration from an optional YAML file and environment variables.
func Load() (Config, error) {
	cfg := Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		DB: DBConfig{
			Path: "ensemble.db",
		},
		Flush: FlushConfig{
			Interval: 5 * time.Minute,
		},
		Log: LogConfig{
			Level: "info",
		},
	}

	if path := os.Getenv("ENSEMBLE_CONFIG_PATH"); path != "" {
		if err := loadFromFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	if host := os.Getenv("ENSEMBLE_SERVER_HOST"); host != "" {
		cfg.Server.Host = host
	}
	if portStr := os.Getenv("ENSEMBLE_SERVER_PORT"); portStr != "" {
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return Config{}, fmt.Errorf("invalid ENSEMBLE_SERVER_PORT: %w", err)
		}
		cfg.Server.Port = port
	}
	if dbPath := os.Getenv("ENSEMBLE_DB_PATH"); dbPath != "" {
		cfg.DB.Path = dbPath
	}
	if interval := os.Getenv("ENSEMBLE_FLUSH_INTERVAL"); interval != "" {
		d, err := time.ParseDuration(interval)
		if err != nil {
			return Config{}, fmt.Errorf("invalid ENSEMBLE_FLUSH_INTERVAL: %w", err)
		}
		cfg.Flush.Interval = d
	}
	if level := os.Getenv("ENSEMBLE_LOG_LEVEL"); level != "" {
		cfg.Log.Level = level
	}

	if cfg.Flush.Interval <= 0 {
		return Config{}, fmt.Errorf("flush interval must be positive, got %s", cfg.Flush.Interval)
	}

	return cfg, nil
}

func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}
