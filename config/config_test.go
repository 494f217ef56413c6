package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{
			name: "valid config",
			config: Config{
				Backend: BackendConfig{BaseURL: "http://localhost:8080"},
			},
			wantErr: false,
		},
		{
			name:    "missing base URL",
			config:  Config{},
			wantErr: true,
		},
		{
			name: "relative base URL",
			config: Config{
				Backend: BackendConfig{BaseURL: "/api"},
			},
			wantErr: true,
		},
		{
			name: "sqlite without path",
			config: Config{
				Backend: BackendConfig{BaseURL: "http://localhost:8080"},
				Storage: StorageConfig{Driver: StorageSQLite},
			},
			wantErr: true,
		},
		{
			name: "redis without URL",
			config: Config{
				Backend: BackendConfig{BaseURL: "http://localhost:8080"},
				Storage: StorageConfig{Driver: StorageRedis},
			},
			wantErr: true,
		},
		{
			name: "unknown storage driver",
			config: Config{
				Backend: BackendConfig{BaseURL: "http://localhost:8080"},
				Storage: StorageConfig{Driver: "etcd"},
			},
			wantErr: true,
		},
		{
			name: "lead time not below lifetime",
			config: Config{
				Backend: BackendConfig{BaseURL: "http://localhost:8080"},
				Session: SessionConfig{
					TokenLifetime:   Duration(time.Minute),
					RefreshLeadTime: Duration(time.Minute),
				},
			},
			wantErr: true,
		},
		{
			name: "redis events without any redis URL",
			config: Config{
				Backend: BackendConfig{BaseURL: "http://localhost:8080"},
				Events:  EventsConfig{Enabled: true, Driver: EventsRedis},
			},
			wantErr: true,
		},
		{
			name: "disabled events are not checked",
			config: Config{
				Backend: BackendConfig{BaseURL: "http://localhost:8080"},
				Events:  EventsConfig{Driver: "kafka"},
			},
			wantErr: false,
		},
		{
			name: "invalid log format",
			config: Config{
				Backend: BackendConfig{BaseURL: "http://localhost:8080"},
				Logging: LoggingConfig{Format: "xml"},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidConfig)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfig_ValidateDefaults(t *testing.T) {
	config := Config{Backend: BackendConfig{BaseURL: "http://localhost:8080"}}
	require.NoError(t, config.Validate())

	assert.Equal(t, StorageMemory, config.Storage.Driver)
	assert.Equal(t, 15*time.Minute, config.Policy().TokenLifetime)
	assert.Equal(t, 60*time.Second, config.Policy().RefreshLeadTime)
	assert.Equal(t, "/login", config.Session.LoginPath)
	assert.Equal(t, Duration(30*time.Second), config.Backend.Timeout)
	assert.Equal(t, "text", config.Logging.Format)
	assert.Equal(t, "info", config.Logging.Level)
}

func TestConfig_EventsRedisFallsBackToStorageURL(t *testing.T) {
	config := Config{
		Backend: BackendConfig{BaseURL: "http://localhost:8080"},
		Storage: StorageConfig{Driver: StorageRedis, RedisURL: "redis://localhost:6379/0"},
		Events:  EventsConfig{Enabled: true, Driver: EventsRedis},
	}
	require.NoError(t, config.Validate())
	assert.Equal(t, "redis://localhost:6379/0", config.Events.RedisURL)
}

func TestLoad(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.json")

	validConfig := `{
		"backend": {
			"base_url": "https://api.example.com",
			"timeout": "10s"
		},
		"storage": {
			"driver": "sqlite",
			"path": "/var/lib/sessionkeeper/session.db"
		},
		"session": {
			"token_lifetime": "30m",
			"refresh_lead_time": "2m",
			"login_path": "/signin"
		},
		"events": {
			"enabled": true
		},
		"logging": {
			"format": "json",
			"level": "debug"
		}
	}`

	err := os.WriteFile(configPath, []byte(validConfig), 0644)
	require.NoError(t, err)

	config, err := Load(configPath)
	require.NoError(t, err)
	assert.Equal(t, "https://api.example.com", config.Backend.BaseURL)
	assert.Equal(t, Duration(10*time.Second), config.Backend.Timeout)
	assert.Equal(t, StorageSQLite, config.Storage.Driver)
	assert.Equal(t, "/var/lib/sessionkeeper/session.db", config.Storage.Path)
	assert.Equal(t, 30*time.Minute, config.Policy().TokenLifetime)
	assert.Equal(t, 2*time.Minute, config.Policy().RefreshLeadTime)
	assert.Equal(t, "/signin", config.Session.LoginPath)
	assert.Equal(t, EventsGoChannel, config.Events.Driver)
	assert.Equal(t, "json", config.Logging.Format)

	// Test loading non-existent file
	_, err = Load("/nonexistent/config.json")
	assert.ErrorIs(t, err, ErrConfigFileNotFound)

	// Test loading invalid JSON
	invalidPath := filepath.Join(tmpDir, "invalid.json")
	err = os.WriteFile(invalidPath, []byte("invalid json"), 0644)
	require.NoError(t, err)

	_, err = Load(invalidPath)
	assert.Error(t, err)

	// Test loading a malformed duration
	badDuration := filepath.Join(tmpDir, "duration.json")
	err = os.WriteFile(badDuration, []byte(`{"backend":{"base_url":"http://x","timeout":"soon"}}`), 0644)
	require.NoError(t, err)

	_, err = Load(badDuration)
	assert.Error(t, err)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("SESSIONKEEPER_BACKEND_URL", "http://10.0.0.5:9000")
	t.Setenv("SESSIONKEEPER_STORAGE_DRIVER", "redis")
	t.Setenv("SESSIONKEEPER_REDIS_URL", "redis://cache:6379/1")
	t.Setenv("SESSIONKEEPER_KEY_PREFIX", "tab1:")
	t.Setenv("SESSIONKEEPER_TOKEN_LIFETIME", "5m")
	t.Setenv("SESSIONKEEPER_REFRESH_LEAD_TIME", "30s")
	t.Setenv("SESSIONKEEPER_EVENTS_ENABLED", "TRUE")
	t.Setenv("SESSIONKEEPER_EVENTS_DRIVER", "redis")

	config, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, "http://10.0.0.5:9000", config.Backend.BaseURL)
	assert.Equal(t, StorageRedis, config.Storage.Driver)
	assert.Equal(t, "tab1:", config.Storage.KeyPrefix)
	assert.Equal(t, 5*time.Minute, config.Policy().TokenLifetime)
	assert.Equal(t, 30*time.Second, config.Policy().RefreshLeadTime)
	assert.True(t, config.Events.Enabled)
	assert.Equal(t, "redis://cache:6379/1", config.Events.RedisURL)
}

func TestStubConfig_Validate(t *testing.T) {
	valid := StubConfig{
		Server: ServerConfig{Port: 8080},
		Auth:   StubAuthConfig{JWTSecret: "0123456789abcdef"},
	}
	require.NoError(t, valid.Validate())
	assert.Equal(t, "127.0.0.1", valid.Server.Host)
	assert.Equal(t, Duration(15*time.Minute), valid.Auth.AccessTokenTTL)
	assert.Equal(t, Duration(7*24*time.Hour), valid.Auth.SessionTTL)

	tests := []struct {
		name   string
		config StubConfig
	}{
		{"invalid port", StubConfig{Server: ServerConfig{Port: 0}, Auth: StubAuthConfig{JWTSecret: "0123456789abcdef"}}},
		{"short secret", StubConfig{Server: ServerConfig{Port: 8080}, Auth: StubAuthConfig{JWTSecret: "short"}}},
		{"bcrypt cost", StubConfig{Server: ServerConfig{Port: 8080}, Auth: StubAuthConfig{JWTSecret: "0123456789abcdef", BcryptCost: 2}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.config.Validate(), ErrInvalidConfig)
		})
	}
}

func TestLoadStubConfigFromEnv(t *testing.T) {
	t.Setenv("SESSIONKEEPER_STUB_PORT", "9191")
	t.Setenv("SESSIONKEEPER_STUB_JWT_SECRET", "a-long-enough-secret")
	t.Setenv("SESSIONKEEPER_STUB_ACCESS_TOKEN_TTL", "1m")

	cfg, err := LoadStubConfigFromEnv()
	require.NoError(t, err)
	assert.Equal(t, 9191, cfg.Server.Port)
	assert.Equal(t, Duration(time.Minute), cfg.Auth.AccessTokenTTL)
}
