// Created by WINK Streaming (https://www.wink.co)
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/wink-streaming/mjpeg-rtsp/internal/loadtest"
)

func main() {
	fs := flag.NewFlagSet("mjpeg-loadtest", flag.ExitOnError)
	addr := fs.String("addr", "127.0.0.1:8554", "RTSP server address")
	filename := fs.String("file", "", "video filename to request (required)")
	clients := fs.Int("clients", 100, "number of simulated clients to ramp up to")
	rate := fs.Float64("rate", 20.0, "connections per second during ramp-up")
	duration := fs.Duration("duration", 30*time.Second, "how long each simulated client stays connected")
	statsInterval := fs.Duration("stats-interval", 2*time.Second, "how often to print a stats line")
	badClients := fs.Bool("chaos", false, "mix in misbehaving clients")
	badClientRatio := fs.Float64("chaos-ratio", 0.1, "fraction of spawned clients that misbehave, 0.0-1.0")
	simulate := fs.Bool("simulate", false, "run a fluctuating real-world traffic pattern instead of a fixed ramp")
	variance := fs.Float64("variance", 0.4, "traffic variance for -simulate, 0.0-1.0")
	metricsAddr := fs.String("metrics-addr", "", "if set, serve Prometheus metrics on this address, e.g. :9100")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s -file <name> [options]\n\n", os.Args[0])
		fs.PrintDefaults()
	}

	if err := fs.Parse(os.Args[1:]); err != nil {
		os.Exit(1)
	}
	if *filename == "" {
		fs.Usage()
		os.Exit(1)
	}

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(zerolog.InfoLevel).With().Timestamp().Logger()

	metrics := loadtest.NewMetrics()
	if *metricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", metrics.Handler())
			log.Info().Str("addr", *metricsAddr).Msg("serving prometheus metrics")
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil {
				log.Error().Err(err).Msg("metrics server stopped")
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *simulate {
		sim := loadtest.NewSimulator(loadtest.SimulatorConfig{
			Addr:           *addr,
			Filename:       *filename,
			AvgConnections: *clients,
			Variance:       *variance,
			Duration:       *duration,
		}, metrics, log)

		if err := sim.Run(ctx); err != nil {
			log.Error().Err(err).Msg("simulation failed")
			os.Exit(1)
		}
		return
	}

	runner := loadtest.NewRunner(loadtest.Config{
		Addr:              *addr,
		Filename:          *filename,
		Clients:           *clients,
		Duration:          *duration,
		Rate:              *rate,
		StatsInterval:     *statsInterval,
		IncludeBadClients: *badClients,
		BadClientRatio:    *badClientRatio,
	}, metrics, log)

	ticker := time.NewTicker(*statsInterval)
	defer ticker.Stop()
	tickDone := make(chan struct{})
	go func() {
		for {
			select {
			case <-ticker.C:
				runner.PrintStats()
			case <-tickDone:
				return
			}
		}
	}()

	err := runner.Run(ctx)
	close(tickDone)
	runner.PrintStats()
	if err != nil {
		log.Error().Err(err).Msg("load test failed")
		os.Exit(1)
	}
}
