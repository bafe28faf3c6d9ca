package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad_RequiresDatabaseURL(t *testing.T) {
	_, err := Load()
	require.Error(t, err)
}

func TestLoad_BindsClosedEnvVarSet(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/surplus")
	t.Setenv("EVENT_BUS_NAME", "surplus-events")
	t.Setenv("GEOCODER_BASE_URL", "https://nominatim.example.com")
	t.Setenv("GEOCODER_TIMEOUT_MS", "5000")
	t.Setenv("BEDROCK_SUMMARY_ENABLED", "true")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "postgres://localhost/surplus", cfg.DatabaseURL)
	require.Equal(t, "surplus-events", cfg.EventBus.Name)
	require.Equal(t, "https://nominatim.example.com", cfg.Geocoder.BaseURL)
	require.Equal(t, 5*time.Second, cfg.Geocoder.Timeout)
	require.True(t, cfg.AISummary.BedrockEnabled)
}

func TestLoad_AppliesDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/surplus")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "mock", cfg.AISummary.Provider)
	require.False(t, cfg.AISummary.BedrockEnabled)
	require.Equal(t, "replay", cfg.Replay.Mode)
	require.False(t, cfg.Replay.DryRun)
	require.Equal(t, 3*time.Second, cfg.Geocoder.Timeout)
}

func TestLoad_ParsesReplayTimestamps(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/surplus")
	t.Setenv("FROM_TS", "2026-01-01T00:00:00Z")
	t.Setenv("TO_TS", "1767225600")

	cfg, err := Load()
	require.NoError(t, err)
	require.NotNil(t, cfg.Replay.From)
	require.Equal(t, 2026, cfg.Replay.From.Year())
	require.NotNil(t, cfg.Replay.To)
}

func TestParseTimestamp_RejectsGarbage(t *testing.T) {
	_, err := parseTimestamp("not-a-timestamp")
	require.Error(t, err)
}
