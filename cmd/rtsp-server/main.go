// Created by WINK Streaming (https://www.wink.co)
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/wink-streaming/mjpeg-rtsp/internal/config"
	"github.com/wink-streaming/mjpeg-rtsp/internal/rtsp"
)

func main() {
	fs := flag.NewFlagSet("rtsp-server", flag.ExitOnError)
	configPath := fs.String("config", "", "path to a TOML config file (optional)")
	listenAddr := fs.String("listen", "", "override server.listen_addr, e.g. :8554")
	videoDir := fs.String("video-dir", "", "override server.video_dir")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options] <listen_port>\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "RTSP/RTP MJPEG streaming server.\n\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(os.Args[1:]); err != nil {
		os.Exit(1)
	}
	if fs.NArg() < 1 && *listenAddr == "" && *configPath == "" {
		fs.Usage()
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "rtsp-server: %v\n", err)
		os.Exit(1)
	}
	if *listenAddr != "" {
		cfg.Server.ListenAddr = *listenAddr
	} else if fs.NArg() >= 1 {
		cfg.Server.ListenAddr = ":" + fs.Arg(0)
	}
	if *videoDir != "" {
		cfg.Server.VideoDir = *videoDir
	}

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(cfg.ZerologLevel()).
		With().Timestamp().Logger()

	var playlist *rtsp.Playlist
	if cfg.Server.Playlist {
		pl, err := rtsp.LoadPlaylist(cfg.Server.VideoDir)
		if err != nil {
			log.Warn().Err(err).Msg("failed to enumerate playlist directory, NEXT/PREVIOUS disabled")
		} else {
			playlist = pl
			log.Info().Int("entries", pl.Len()).Msg("playlist loaded")
		}
	}

	acceptor := rtsp.NewAcceptor(rtsp.AcceptorConfig{
		ListenAddr:    cfg.Server.ListenAddr,
		VideoDir:      cfg.Server.VideoDir,
		Playlist:      playlist,
		MaxConcurrent: cfg.Limits.MaxConcurrentSessions,
	}, log)

	errCh := make(chan error, 1)
	go func() { errCh <- acceptor.Run() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		log.Error().Err(err).Msg("acceptor stopped")
		os.Exit(1)
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
	}
}
