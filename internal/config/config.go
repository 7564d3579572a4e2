// Created by WINK Streaming (https://www.wink.co)
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/rs/zerolog"
)

// Config is the top-level application configuration of the server
// binary, loaded from an optional TOML file with built-in defaults for
// everything it omits.
type Config struct {
	Server  ServerConfig  `toml:"server"`
	RTP     RTPConfig     `toml:"rtp"`
	Logging LoggingConfig `toml:"logging"`
	Limits  LimitConfig   `toml:"limits"`
}

// ServerConfig holds the RTSP server's listening and media settings.
type ServerConfig struct {
	ListenAddr string `toml:"listen_addr"`
	VideoDir   string `toml:"video_dir"`
	Playlist   bool   `toml:"playlist"`
}

// RTPConfig holds RTP sender/receiver tuning.
type RTPConfig struct {
	FrameRate         float64 `toml:"frame_rate"`
	ReceiverTimeoutMs int     `toml:"receiver_timeout_ms"`
}

// LoggingConfig controls zerolog's output.
type LoggingConfig struct {
	Level  string `toml:"level"`
	Pretty bool   `toml:"pretty"`
}

// LimitConfig holds resource limits for the acceptor.
type LimitConfig struct {
	MaxConcurrentSessions int `toml:"max_concurrent_sessions"`
}

// Default returns the built-in configuration used when no file is
// present or a file omits a section.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr: ":8554",
			VideoDir:   ".",
			Playlist:   true,
		},
		RTP: RTPConfig{
			FrameRate:         20.0,
			ReceiverTimeoutMs: 500,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Pretty: false,
		},
		Limits: LimitConfig{
			MaxConcurrentSessions: 1000,
		},
	}
}

// Load reads configPath if it exists and overlays it onto Default();
// a missing file is not an error and the defaults are used as-is.
func Load(configPath string) (*Config, error) {
	cfg := Default()

	if configPath == "" {
		return cfg, nil
	}

	if _, err := os.Stat(configPath); err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("config: stat %s: %w", configPath, err)
	}

	if _, err := toml.DecodeFile(configPath, cfg); err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", configPath, err)
	}

	return cfg, nil
}

// ZerologLevel parses Logging.Level, falling back to InfoLevel on an
// unrecognized string rather than failing startup over a typo.
func (c *Config) ZerologLevel() zerolog.Level {
	lvl, err := zerolog.ParseLevel(c.Logging.Level)
	if err != nil {
		return zerolog.InfoLevel
	}
	return lvl
}
