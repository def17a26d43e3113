package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v10"
)

type Config struct {
	Server    ServerConfig    `toml:"server"`
	Redis     RedisConfig     `toml:"redis"`
	Network   NetworkConfig   `toml:"network"`
	Logging   LoggingConfig   `toml:"logging"`
	RateLimit RateLimitConfig `toml:"rate_limit"`
}

type ServerConfig struct {
	Name      string `toml:"name"`
	Env       string `toml:"env" env:"WEIQIGO_ENV"` // "development" or "production"
	Port      int    `toml:"port" env:"PORT"`
	StartTime int64  // set at boot, not from config
}

type RedisConfig struct {
	// URL takes precedence over host/port/password when set.
	URL      string `toml:"url" env:"REDIS_URL"`
	Host     string `toml:"host" env:"REDIS_HOST"`
	Port     int    `toml:"port" env:"REDIS_PORT"`
	Password string `toml:"password" env:"REDIS_PASSWORD"`
	DB       int    `toml:"db" env:"REDIS_DB"`
}

type NetworkConfig struct {
	OutQueueSize int           `toml:"out_queue_size"`
	WriteTimeout time.Duration `toml:"write_timeout"`
	ReadTimeout  time.Duration `toml:"read_timeout"`
}

type LoggingConfig struct {
	Level  string `toml:"level" env:"LOG_LEVEL"`
	Format string `toml:"format"` // "json" or "console"
}

type RateLimitConfig struct {
	Enabled           bool `toml:"enabled"`
	CommandsPerSecond int  `toml:"commands_per_second"`
}

// Load reads the TOML file at path (skipped when path is empty or missing),
// then overlays environment variables on top.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		} else if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	cfg.Server.StartTime = time.Now().Unix()
	return cfg, nil
}

// BindAddress is the HTTP listen address derived from the configured port.
func (c *Config) BindAddress() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}

// RedisAddr returns the host:port form used when no URL is configured.
func (c *RedisConfig) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Name: "weiqigo",
			Env:  "development",
			Port: 8080,
		},
		Redis: RedisConfig{
			Host: "localhost",
			Port: 6379,
		},
		Network: NetworkConfig{
			OutQueueSize: 256,
			WriteTimeout: 10 * time.Second,
			ReadTimeout:  60 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		RateLimit: RateLimitConfig{
			Enabled:           true,
			CommandsPerSecond: 10,
		},
	}
}
