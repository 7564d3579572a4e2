// Created by WINK Streaming (https://www.wink.co)
package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/wink-streaming/mjpeg-rtsp/internal/rtp"
	"github.com/wink-streaming/mjpeg-rtsp/internal/rtsp"
)

func main() {
	fs := flag.NewFlagSet("rtsp-client", flag.ExitOnError)
	statsPath := fs.String("stats", "", "write a CSV of (seconds_since_start, payload_bytes) per received frame")
	verbose := fs.Bool("verbose", false, "debug-level logging")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options] <server_addr> <server_port> <rtp_port> <filename>\n\n", os.Args[0])
		fs.PrintDefaults()
	}

	if err := fs.Parse(os.Args[1:]); err != nil {
		os.Exit(1)
	}
	if fs.NArg() < 4 {
		fs.Usage()
		os.Exit(1)
	}

	serverAddr := fs.Arg(0)
	serverPort := fs.Arg(1)
	rtpPort, err := strconv.Atoi(fs.Arg(2))
	if err != nil {
		fmt.Fprintf(os.Stderr, "rtsp-client: invalid rtp_port %q: %v\n", fs.Arg(2), err)
		os.Exit(1)
	}
	filename := fs.Arg(3)

	level := zerolog.InfoLevel
	if *verbose {
		level = zerolog.DebugLevel
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().Timestamp().Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, serverAddr+":"+serverPort, filename, rtpPort, *statsPath, log); err != nil {
		log.Error().Err(err).Msg("client run failed")
		os.Exit(1)
	}
}

func run(ctx context.Context, addr, filename string, rtpPort int, statsPath string, log zerolog.Logger) error {
	client, err := rtsp.Dial(addr, log)
	if err != nil {
		return err
	}
	defer client.Close()

	recv, err := rtp.NewReceiver(rtpPort, rtp.DefaultReadTimeout)
	if err != nil {
		return fmt.Errorf("bind RTP receiver: %w", err)
	}
	defer recv.Close()

	sdp, err := client.Describe(filename)
	if err != nil {
		return fmt.Errorf("DESCRIBE: %w", err)
	}
	duration := rtsp.ParseDurationFromSDP(sdp)
	log.Info().Float64("duration_seconds", duration).Msg("described stream")

	if err := client.Setup(filename, recv.LocalPort()); err != nil {
		return fmt.Errorf("SETUP: %w", err)
	}
	if err := client.Play(false, 0); err != nil {
		return fmt.Errorf("PLAY: %w", err)
	}
	log.Info().Msg("playing")

	var statsWriter *csv.Writer
	if statsPath != "" {
		f, err := os.Create(statsPath)
		if err != nil {
			return fmt.Errorf("create stats file: %w", err)
		}
		defer f.Close()
		statsWriter = csv.NewWriter(f)
		defer statsWriter.Flush()
		if err := statsWriter.Write([]string{"seconds_since_start", "payload_bytes"}); err != nil {
			return err
		}
	}

	start := time.Now()
	frames := 0
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("interrupted, tearing down")
			_ = client.Pause()
			return client.Teardown()
		default:
		}

		payload, ok, err := recv.Read()
		if err != nil {
			return fmt.Errorf("read RTP: %w", err)
		}
		if !ok {
			continue
		}

		frames++
		if statsWriter != nil {
			elapsed := time.Since(start).Seconds()
			if err := statsWriter.Write([]string{
				strconv.FormatFloat(elapsed, 'f', 6, 64),
				strconv.Itoa(len(payload)),
			}); err != nil {
				return err
			}
		}
	}
}
