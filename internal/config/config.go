// Package config loads client configuration from an optional YAML file with
// environment-variable overrides.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config is the full client configuration.
type Config struct {
	Server ServerConfig `yaml:"server"`
	Log    LogConfig    `yaml:"log"`
}

// ServerConfig tunes the duplex channel.
type ServerConfig struct {
	URL          string        `yaml:"url" env:"LOTERIA_SERVER_URL"`
	DialTimeout  time.Duration `yaml:"dial_timeout" env:"LOTERIA_DIAL_TIMEOUT"`
	WriteTimeout time.Duration `yaml:"write_timeout" env:"LOTERIA_WRITE_TIMEOUT"`
	PingInterval time.Duration `yaml:"ping_interval" env:"LOTERIA_PING_INTERVAL"`
}

// LogConfig tunes zerolog output.
type LogConfig struct {
	Level  string `yaml:"level" env:"LOTERIA_LOG_LEVEL"`
	Pretty bool   `yaml:"pretty" env:"LOTERIA_LOG_PRETTY"`
}

// Default returns the configuration used when no file or env is present.
func Default() Config {
	return Config{
		Server: ServerConfig{
			URL:          "ws://localhost:8080/ws",
			DialTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			PingInterval: 30 * time.Second,
		},
		Log: LogConfig{Level: "info", Pretty: true},
	}
}

// Load reads path (if non-empty and present) over the defaults, then applies
// environment overrides on top.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// Optional file; defaults + env carry the day.
		case err != nil:
			return cfg, fmt.Errorf("read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config file: %w", err)
			}
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse env config: %w", err)
	}
	return cfg, nil
}
