package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"sessionkeeper/internal/core"
	"strings"
	"time"
)

var (
	ErrConfigFileNotFound = errors.New("config file not found")
	ErrInvalidConfig      = errors.New("invalid configuration")
)

// Storage drivers
const (
	StorageMemory = "memory"
	StorageSQLite = "sqlite"
	StorageRedis  = "redis"
)

// Event drivers
const (
	EventsGoChannel = "gochannel"
	EventsRedis     = "redis"
)

// Config represents the client configuration
type Config struct {
	Backend BackendConfig `json:"backend"`
	Storage StorageConfig `json:"storage"`
	Session SessionConfig `json:"session"`
	Events  EventsConfig  `json:"events"`
	Logging LoggingConfig `json:"logging"`
}

// BackendConfig contains the API server settings
type BackendConfig struct {
	BaseURL string   `json:"base_url"`
	Timeout Duration `json:"timeout"`
}

// StorageConfig selects where the credential is persisted
type StorageConfig struct {
	Driver    string `json:"driver"` // "memory", "sqlite" or "redis"
	Path      string `json:"path"`
	RedisURL  string `json:"redis_url"`
	KeyPrefix string `json:"key_prefix"`
}

// SessionConfig contains the token policy
type SessionConfig struct {
	TokenLifetime   Duration `json:"token_lifetime"`
	RefreshLeadTime Duration `json:"refresh_lead_time"`
	LoginPath       string   `json:"login_path"`
}

// EventsConfig contains cross-instance broadcast settings
type EventsConfig struct {
	Enabled  bool   `json:"enabled"`
	Driver   string `json:"driver"` // "gochannel" or "redis"
	RedisURL string `json:"redis_url"`
}

// LoggingConfig contains logger settings
type LoggingConfig struct {
	Format string `json:"format"` // "json" or "text"
	Level  string `json:"level"`
}

// Duration is a time.Duration written as a Go duration string in JSON
type Duration time.Duration

// UnmarshalJSON accepts "15m" style strings
func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("duration must be a string: %w", err)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// MarshalJSON writes the duration as a string
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// Policy returns the token policy described by the session section
func (c *Config) Policy() core.Policy {
	return core.Policy{
		TokenLifetime:   time.Duration(c.Session.TokenLifetime),
		RefreshLeadTime: time.Duration(c.Session.RefreshLeadTime),
	}
}

// Validate validates the configuration and fills in defaults
func (c *Config) Validate() error {
	if c.Backend.BaseURL == "" {
		return fmt.Errorf("%w: backend base URL is required", ErrInvalidConfig)
	}
	if u, err := url.Parse(c.Backend.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%w: backend base URL must be absolute", ErrInvalidConfig)
	}
	if c.Backend.Timeout == 0 {
		c.Backend.Timeout = Duration(30 * time.Second)
	}

	if c.Storage.Driver == "" {
		c.Storage.Driver = StorageMemory
	}
	switch c.Storage.Driver {
	case StorageMemory:
	case StorageSQLite:
		if c.Storage.Path == "" {
			return fmt.Errorf("%w: storage path is required for sqlite", ErrInvalidConfig)
		}
	case StorageRedis:
		if c.Storage.RedisURL == "" {
			return fmt.Errorf("%w: storage redis URL is required for redis", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown storage driver %q", ErrInvalidConfig, c.Storage.Driver)
	}

	if c.Session.TokenLifetime == 0 {
		c.Session.TokenLifetime = Duration(core.DefaultTokenLifetime)
	}
	if c.Session.RefreshLeadTime == 0 {
		c.Session.RefreshLeadTime = Duration(core.DefaultRefreshLeadTime)
	}
	if err := c.Policy().Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if c.Session.LoginPath == "" {
		c.Session.LoginPath = "/login"
	}

	if c.Events.Enabled {
		if c.Events.Driver == "" {
			c.Events.Driver = EventsGoChannel
		}
		switch c.Events.Driver {
		case EventsGoChannel:
		case EventsRedis:
			if c.Events.RedisURL == "" {
				c.Events.RedisURL = c.Storage.RedisURL
			}
			if c.Events.RedisURL == "" {
				return fmt.Errorf("%w: events redis URL is required for redis", ErrInvalidConfig)
			}
		default:
			return fmt.Errorf("%w: unknown events driver %q", ErrInvalidConfig, c.Events.Driver)
		}
	}

	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	if c.Logging.Format != "text" && c.Logging.Format != "json" {
		return fmt.Errorf("%w: logging format must be json or text", ErrInvalidConfig)
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}

	return nil
}

// Load loads configuration from a JSON file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrConfigFileNotFound, path)
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// LoadFromEnv loads configuration from SESSIONKEEPER_* environment variables
func LoadFromEnv() (*Config, error) {
	config := &Config{
		Backend: BackendConfig{
			BaseURL: getEnv("SESSIONKEEPER_BACKEND_URL", "http://localhost:8080"),
			Timeout: Duration(getEnvDuration("SESSIONKEEPER_BACKEND_TIMEOUT", 30*time.Second)),
		},
		Storage: StorageConfig{
			Driver:    getEnv("SESSIONKEEPER_STORAGE_DRIVER", StorageMemory),
			Path:      getEnv("SESSIONKEEPER_STORAGE_PATH", "./sessionkeeper.db"),
			RedisURL:  getEnv("SESSIONKEEPER_REDIS_URL", ""),
			KeyPrefix: getEnv("SESSIONKEEPER_KEY_PREFIX", ""),
		},
		Session: SessionConfig{
			TokenLifetime:   Duration(getEnvDuration("SESSIONKEEPER_TOKEN_LIFETIME", core.DefaultTokenLifetime)),
			RefreshLeadTime: Duration(getEnvDuration("SESSIONKEEPER_REFRESH_LEAD_TIME", core.DefaultRefreshLeadTime)),
			LoginPath:       getEnv("SESSIONKEEPER_LOGIN_PATH", "/login"),
		},
		Events: EventsConfig{
			Enabled:  getEnvBool("SESSIONKEEPER_EVENTS_ENABLED", false),
			Driver:   getEnv("SESSIONKEEPER_EVENTS_DRIVER", EventsGoChannel),
			RedisURL: getEnv("SESSIONKEEPER_EVENTS_REDIS_URL", ""),
		},
		Logging: LoggingConfig{
			Format: getEnv("SESSIONKEEPER_LOG_FORMAT", "text"),
			Level:  getEnv("SESSIONKEEPER_LOG_LEVEL", "info"),
		},
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var intVal int
		if _, err := fmt.Sscanf(value, "%d", &intVal); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		value = strings.ToLower(value)
		return value == "true" || value == "1"
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
