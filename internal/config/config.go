// Package config reads service settings from the environment, optionally
// seeded by a YAML file named in CONFIG_FILE. Environment values win.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

var ErrInvalidConfig = errors.New("invalid config")

const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

type Config struct {
	Port           string        `yaml:"port"`
	DatabaseURL    string        `yaml:"database_url"`
	Store          string        `yaml:"store"`
	APITokens      []string      `yaml:"api_tokens"`
	KafkaBrokers   string        `yaml:"kafka_brokers"`
	KafkaTopic     string        `yaml:"kafka_topic"`
	OTelEndpoint   string        `yaml:"otel_endpoint"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	Migrate        bool          `yaml:"migrate"`
	TxMaxAttempts  int           `yaml:"tx_max_attempts"`
	Debug          bool          `yaml:"debug"`
}

func defaults() Config {
	return Config{
		Port:           "8080",
		Store:          StorePostgres,
		KafkaTopic:     "shop.orders",
		RequestTimeout: 2500 * time.Millisecond,
		TxMaxAttempts:  5,
	}
}

// Load builds the config from defaults, then CONFIG_FILE, then the environment.
func Load() (Config, error) {
	return load(os.Getenv)
}

func load(env func(string) string) (Config, error) {
	c := defaults()

	if path := strings.TrimSpace(env("CONFIG_FILE")); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &c); err != nil {
			return Config{}, fmt.Errorf("%w: parse %s: %w", ErrInvalidConfig, path, err)
		}
	}

	get := func(k string) (string, bool) {
		v := strings.TrimSpace(env(k))
		return v, v != ""
	}

	if v, ok := get("PORT"); ok {
		c.Port = v
	}
	if v, ok := get("DATABASE_URL"); ok {
		c.DatabaseURL = v
	}
	if v, ok := get("STORE"); ok {
		c.Store = strings.ToLower(v)
	}
	if v, ok := get("API_TOKENS"); ok {
		c.APITokens = splitCSV(v)
	}
	if v, ok := get("KAFKA_BROKERS"); ok {
		c.KafkaBrokers = v
	}
	if v, ok := get("KAFKA_TOPIC"); ok {
		c.KafkaTopic = v
	}
	if v, ok := get("OTEL_ENDPOINT"); ok {
		c.OTelEndpoint = v
	}
	if v, ok := get("REQUEST_TIMEOUT_MS"); ok {
		ms, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("%w: REQUEST_TIMEOUT_MS: %w", ErrInvalidConfig, err)
		}
		c.RequestTimeout = time.Duration(ms) * time.Millisecond
	}
	if v, ok := get("MIGRATE"); ok {
		c.Migrate = truthy(v)
	}
	if v, ok := get("DEBUG"); ok {
		c.Debug = truthy(v)
	}
	if v, ok := get("TX_MAX_ATTEMPTS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("%w: TX_MAX_ATTEMPTS: %w", ErrInvalidConfig, err)
		}
		c.TxMaxAttempts = n
	}

	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c Config) Validate() error {
	switch {
	case c.Port == "":
		return fmt.Errorf("%w: PORT is required", ErrInvalidConfig)
	case c.Store != StorePostgres && c.Store != StoreMemory:
		return fmt.Errorf("%w: STORE must be %q or %q, got %q", ErrInvalidConfig, StorePostgres, StoreMemory, c.Store)
	case c.Store == StorePostgres && c.DatabaseURL == "":
		return fmt.Errorf("%w: DATABASE_URL is required", ErrInvalidConfig)
	case c.RequestTimeout <= 0:
		return fmt.Errorf("%w: request timeout must be positive", ErrInvalidConfig)
	case c.TxMaxAttempts < 1:
		return fmt.Errorf("%w: TX_MAX_ATTEMPTS must be >= 1", ErrInvalidConfig)
	}
	return nil
}

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func truthy(v string) bool {
	v = strings.ToLower(v)
	return v == "1" || v == "true" || v == "yes"
}
