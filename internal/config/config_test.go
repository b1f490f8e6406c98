package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	require.Equal(t, "claude", cfg.Binary)
	require.Equal(t, 120, cfg.TimeoutSeconds)
	require.True(t, cfg.AutoTimeout)
	require.Equal(t, 32, cfg.QueueMax)
	require.Equal(t, 24, cfg.OrphanRetentionHours)
	require.Equal(t, 100, cfg.Marker.ScanWindow)
	require.Equal(t, 500, cfg.Marker.MaxBlockLines)
	require.Equal(t, "---", cfg.Marker.Separator)

	require.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "empty binary",
			mutate:  func(c *Config) { c.Binary = "" },
			wantErr: "binary",
		},
		{
			name:    "zero timeout",
			mutate:  func(c *Config) { c.TimeoutSeconds = 0 },
			wantErr: "timeout_seconds",
		},
		{
			name:    "negative queue",
			mutate:  func(c *Config) { c.QueueMax = -1 },
			wantErr: "queue_max",
		},
		{
			name:    "zero retention",
			mutate:  func(c *Config) { c.OrphanRetentionHours = 0 },
			wantErr: "orphan_retention_hours",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestDurationConversions(t *testing.T) {
	cfg := Defaults()
	cfg.TimeoutSeconds = 90
	cfg.OrphanRetentionHours = 6

	require.Equal(t, 90*time.Second, cfg.Timeout())
	require.Equal(t, 6*time.Hour, cfg.OrphanRetention())
}

func TestInvoke_CarriesConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Model = "sonnet"
	cfg.WorkDir = "/tmp/docs"
	cfg.SkipPermissions = true
	cfg.ExtraArgs = []string{"--verbose"}
	cfg.TimeoutSeconds = 30
	cfg.AutoTimeout = false

	inv := cfg.Invoke()
	require.Equal(t, "claude", inv.Binary)
	require.Equal(t, "sonnet", inv.Model)
	require.Equal(t, "/tmp/docs", inv.WorkDir)
	require.True(t, inv.SkipPermissions)
	require.Equal(t, []string{"--verbose"}, inv.ExtraArgs)
	require.Equal(t, 30*time.Second, inv.Timeout)
	require.False(t, inv.AutoTimeout)
}
