// Created by WINK Streaming (https://www.wink.co)
package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.toml"))
	require.NoError(t, err)
	require.Equal(t, ":8554", cfg.Server.ListenAddr)
	require.Equal(t, 20.0, cfg.RTP.FrameRate)
	require.Equal(t, 1000, cfg.Limits.MaxConcurrentSessions)
}

func TestLoadEmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
}

func TestLoadOverlaysFileOntoDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	contents := `
[server]
listen_addr = ":9000"
video_dir = "/videos"

[rtp]
frame_rate = 25.0
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ":9000", cfg.Server.ListenAddr)
	require.Equal(t, "/videos", cfg.Server.VideoDir)
	require.InDelta(t, 25.0, cfg.RTP.FrameRate, 0.0001)
	// Fields absent from the file keep their defaults.
	require.Equal(t, 500, cfg.RTP.ReceiverTimeoutMs)
}

func TestZerologLevelFallsBackToInfoOnBadValue(t *testing.T) {
	cfg := Default()
	cfg.Logging.Level = "not-a-level"
	require.Equal(t, "info", cfg.ZerologLevel().String())
}
