package settings

import (
	"context"
	"log/slog"
	"os"
	"sessionkeeper/internal/storage/memory"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestStore_LoadDefaults(t *testing.T) {
	store := NewStore(memory.New(), testLogger())
	assert.Equal(t, Defaults(), store.Load(context.Background()))
}

func TestStore_SaveAndLoad(t *testing.T) {
	ctx := context.Background()
	store := NewStore(memory.New(), testLogger())

	want := Settings{
		NotificationsEnabled: true,
		NotificationEmail:    "ops@example.com",
		DisplayMode:          DisplayDark,
		TextSize:             "large",
		DefaultPage:          "dashboard",
		AutoOpenLastProject:  false,
	}
	require.NoError(t, store.Save(ctx, want))

	assert.Equal(t, want, store.Load(ctx))
}

func TestStore_LoadMergesOverDefaults(t *testing.T) {
	ctx := context.Background()
	kv := memory.New()
	require.NoError(t, kv.SetMany(ctx, map[string]string{Key: `{"textSize":"small"}`}))

	got := NewStore(kv, testLogger()).Load(ctx)

	want := Defaults()
	want.TextSize = "small"
	assert.Equal(t, want, got)
}

func TestStore_LoadMalformedFallsBackToDefaults(t *testing.T) {
	ctx := context.Background()
	kv := memory.New()
	require.NoError(t, kv.SetMany(ctx, map[string]string{Key: `{"textSize":`}))

	assert.Equal(t, Defaults(), NewStore(kv, testLogger()).Load(ctx))
}

func TestStore_LoadClosedStoreFallsBackToDefaults(t *testing.T) {
	kv := memory.New()
	require.NoError(t, kv.Close())

	assert.Equal(t, Defaults(), NewStore(kv, testLogger()).Load(context.Background()))
}

func TestResolve(t *testing.T) {
	tests := []struct {
		name        string
		mode        string
		size        string
		prefersDark bool
		want        Applied
	}{
		{"system prefers dark", DisplaySystem, "medium", true, Applied{Theme: "dark", FontSize: "16px"}},
		{"system prefers light", DisplaySystem, "small", false, Applied{Theme: "light", FontSize: "14px"}},
		{"explicit light ignores preference", DisplayLight, "large", true, Applied{Theme: "light", FontSize: "18px"}},
		{"unknown size", DisplayDark, "huge", false, Applied{Theme: "dark", FontSize: "16px"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Defaults()
			s.DisplayMode = tt.mode
			s.TextSize = tt.size
			assert.Equal(t, tt.want, Resolve(s, tt.prefersDark))
		})
	}
}
