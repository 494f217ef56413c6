package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// StubConfig represents the development auth server configuration
type StubConfig struct {
	Server  ServerConfig   `json:"server"`
	Auth    StubAuthConfig `json:"auth"`
	Logging LoggingConfig  `json:"logging"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// StubAuthConfig contains token and session settings
type StubAuthConfig struct {
	JWTSecret       string   `json:"jwt_secret"`
	AccessTokenTTL  Duration `json:"access_token_ttl"`
	SessionTTL      Duration `json:"session_ttl"`
	SecureCookies   bool     `json:"secure_cookies"`
	BcryptCost      int      `json:"bcrypt_cost"`
	CleanupInterval Duration `json:"cleanup_interval"`
}

// LoadStubConfig loads the auth server configuration from a file
func LoadStubConfig(path string) (*StubConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrConfigFileNotFound, path)
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg StubConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// LoadStubConfigFromEnv loads the auth server configuration from
// SESSIONKEEPER_STUB_* environment variables
func LoadStubConfigFromEnv() (*StubConfig, error) {
	cfg := &StubConfig{
		Server: ServerConfig{
			Host: getEnv("SESSIONKEEPER_STUB_HOST", "127.0.0.1"),
			Port: getEnvInt("SESSIONKEEPER_STUB_PORT", 8080),
		},
		Auth: StubAuthConfig{
			JWTSecret:       getEnv("SESSIONKEEPER_STUB_JWT_SECRET", ""),
			AccessTokenTTL:  Duration(getEnvDuration("SESSIONKEEPER_STUB_ACCESS_TOKEN_TTL", 15*time.Minute)),
			SessionTTL:      Duration(getEnvDuration("SESSIONKEEPER_STUB_SESSION_TTL", 7*24*time.Hour)),
			SecureCookies:   getEnvBool("SESSIONKEEPER_STUB_SECURE_COOKIES", false),
			BcryptCost:      getEnvInt("SESSIONKEEPER_STUB_BCRYPT_COST", 0),
			CleanupInterval: Duration(getEnvDuration("SESSIONKEEPER_STUB_CLEANUP_INTERVAL", time.Hour)),
		},
		Logging: LoggingConfig{
			Format: getEnv("SESSIONKEEPER_LOG_FORMAT", "text"),
			Level:  getEnv("SESSIONKEEPER_LOG_LEVEL", "info"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *StubConfig) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: invalid server port", ErrInvalidConfig)
	}

	if len(c.Auth.JWTSecret) < 16 {
		return fmt.Errorf("%w: auth.jwt_secret must be at least 16 bytes", ErrInvalidConfig)
	}

	if c.Auth.BcryptCost != 0 && (c.Auth.BcryptCost < 4 || c.Auth.BcryptCost > 31) {
		return fmt.Errorf("%w: auth.bcrypt_cost must be between 4 and 31", ErrInvalidConfig)
	}

	// Set defaults if not specified
	if c.Server.Host == "" {
		c.Server.Host = "127.0.0.1"
	}
	if c.Auth.AccessTokenTTL == 0 {
		c.Auth.AccessTokenTTL = Duration(15 * time.Minute)
	}
	if c.Auth.SessionTTL == 0 {
		c.Auth.SessionTTL = Duration(7 * 24 * time.Hour)
	}
	if c.Auth.CleanupInterval == 0 {
		c.Auth.CleanupInterval = Duration(time.Hour)
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}

	return nil
}
