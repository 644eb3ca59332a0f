// Package config defines the pokefetch configuration and loads it from
// YAML and/or environment variables with a predictable priority.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config is the root configuration.
// Source priority:
//  1. explicit path passed to MustLoad/Load;
//  2. CONFIG_PATH environment variable;
//  3. ./local.yaml in the working directory;
//  4. environment variables only.
type Config struct {
	Env     string        `yaml:"env" env:"ENV" env-default:"local"`
	API     APIConfig     `yaml:"api"`
	Fetch   FetchConfig   `yaml:"fetch"`
	Output  OutputConfig  `yaml:"output"`
	Log     LogConfig     `yaml:"log"`
	Redis   RedisConfig   `yaml:"redis"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// APIConfig points at the upstream REST API.
type APIConfig struct {
	BaseURL          string        `yaml:"base_url" env:"API_BASE_URL" env-default:"https://pokeapi.co/api/v2/pokemon"`
	UserAgent        string        `yaml:"user_agent" env:"API_USER_AGENT" env-default:"pokefetch/0.1.0"`
	RequestTimeout   time.Duration `yaml:"request_timeout" env:"API_REQUEST_TIMEOUT" env-default:"30s"`
	PreflightTimeout time.Duration `yaml:"preflight_timeout" env:"API_PREFLIGHT_TIMEOUT" env-default:"5s"`
}

// FetchConfig controls the batch and the retry loop.
type FetchConfig struct {
	// Items to fetch. Via ENV ITEMS, comma-separated.
	Items          []string      `yaml:"items" env:"ITEMS" env-separator:","`
	MaxAttempts    int           `yaml:"max_attempts" env:"MAX_ATTEMPTS" env-default:"3"`
	RetryDelay     time.Duration `yaml:"retry_delay" env:"RETRY_DELAY" env-default:"1s"`
	MaxDelay       time.Duration `yaml:"max_delay" env:"MAX_DELAY" env-default:"30s"`
	MaxConcurrency int           `yaml:"max_concurrency" env:"MAX_CONCURRENCY" env-default:"3"`
}

// OutputConfig controls where payloads land.
type OutputConfig struct {
	Dir string `yaml:"dir" env:"OUTPUT_DIR" env-default:"./data"`
}

// LogConfig controls the zerolog setup.
type LogConfig struct {
	Level  string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
	Pretty bool   `yaml:"pretty" env:"LOG_PRETTY" env-default:"true"`
	// File receives a persistent copy of the run log; empty disables it.
	File string `yaml:"file" env:"LOG_FILE"`
}

// RedisConfig enables the optional payload cache. An empty address
// disables caching entirely.
type RedisConfig struct {
	Addr     string `yaml:"addr" env:"REDIS_ADDR"`
	Password string `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
}

// MetricsConfig enables the optional metrics endpoint. An empty address
// disables the HTTP server.
type MetricsConfig struct {
	Addr string `yaml:"addr" env:"METRICS_ADDR"`
}

// MustLoad wraps Load and panics on error.
func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load loads the configuration by priority:
// 1) explicit path; 2) CONFIG_PATH; 3) ./local.yaml; 4) ENV only.
func Load(path string) (*Config, error) {
	var cfg Config

	tryRead := func(p string) (*Config, error) {
		if _, err := os.Stat(p); err != nil {
			return nil, fmt.Errorf("config file does not exist: %s", p)
		}
		if err := cleanenv.ReadConfig(p, &cfg); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := cfg.validate(); err != nil {
			return nil, err
		}
		return &cfg, nil
	}

	if path != "" {
		return tryRead(path)
	}

	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		return tryRead(envPath)
	}

	if _, err := os.Stat("local.yaml"); err == nil {
		return tryRead("local.yaml")
	}

	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("config not found: provide a path, CONFIG_PATH, local.yaml or env vars: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.API.BaseURL == "" {
		return fmt.Errorf("api.base_url is required")
	}
	if len(c.Fetch.Items) == 0 {
		return fmt.Errorf("fetch.items must contain at least one work item")
	}
	if c.Fetch.MaxAttempts < 1 {
		return fmt.Errorf("fetch.max_attempts must be >= 1")
	}
	if c.Fetch.RetryDelay <= 0 {
		return fmt.Errorf("fetch.retry_delay must be > 0")
	}
	if c.Fetch.MaxConcurrency < 1 {
		return fmt.Errorf("fetch.max_concurrency must be >= 1")
	}
	if c.Output.Dir == "" {
		return fmt.Errorf("output.dir is required")
	}
	return nil
}
