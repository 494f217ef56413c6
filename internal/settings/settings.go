// Package settings persists user interface preferences next to the
// credential, and resolves them into concrete presentation values.
package settings

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sessionkeeper/internal/storage"
)

// Key is the storage key of the settings blob
const Key = "app.settings"

// Display modes
const (
	DisplaySystem = "system"
	DisplayLight  = "light"
	DisplayDark   = "dark"
)

// Settings are the user interface preferences
type Settings struct {
	NotificationsEnabled bool   `json:"notificationsEnabled"`
	NotificationEmail    string `json:"notificationEmail"`
	DisplayMode          string `json:"displayMode"`
	TextSize             string `json:"textSize"`
	DefaultPage          string `json:"defaultPage"`
	AutoOpenLastProject  bool   `json:"autoOpenLastProject"`
}

// Defaults returns the settings used when nothing is stored
func Defaults() Settings {
	return Settings{
		NotificationsEnabled: false,
		NotificationEmail:    "",
		DisplayMode:          DisplaySystem,
		TextSize:             "medium",
		DefaultPage:          "projects",
		AutoOpenLastProject:  true,
	}
}

// Store reads and writes settings in a key/value medium
type Store struct {
	kv     storage.KeyValue
	logger *slog.Logger
}

// NewStore creates a settings store on top of kv
func NewStore(kv storage.KeyValue, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		kv:     kv,
		logger: logger.With("component", "settings"),
	}
}

// Load returns the stored settings merged over the defaults. Fields absent
// from the stored blob keep their default; an unreadable blob yields the
// defaults.
func (s *Store) Load(ctx context.Context) Settings {
	settings := Defaults()

	raw, ok, err := s.kv.Get(ctx, Key)
	if err != nil {
		s.logger.Warn("Failed to load settings", "error", err)
		return settings
	}
	if !ok || raw == "" {
		return settings
	}

	if err := json.Unmarshal([]byte(raw), &settings); err != nil {
		s.logger.Warn("Failed to parse settings", "error", err)
		return Defaults()
	}
	return settings
}

// Save overwrites the stored settings
func (s *Store) Save(ctx context.Context, settings Settings) error {
	raw, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}
	if err := s.kv.SetMany(ctx, map[string]string{Key: string(raw)}); err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}
	return nil
}

// Applied is what the presentation layer renders with
type Applied struct {
	Theme    string // light or dark
	FontSize string // CSS length
}

var fontSizes = map[string]string{
	"small":  "14px",
	"medium": "16px",
	"large":  "18px",
}

// Resolve turns settings into presentation values. prefersDark is the
// platform preference consulted for the system display mode.
func Resolve(settings Settings, prefersDark bool) Applied {
	theme := settings.DisplayMode
	if theme == DisplaySystem {
		theme = DisplayLight
		if prefersDark {
			theme = DisplayDark
		}
	}

	size, ok := fontSizes[settings.TextSize]
	if !ok {
		size = fontSizes["medium"]
	}
	return Applied{Theme: theme, FontSize: size}
}
