// Created by WINK Streaming (https://www.wink.co)
package loadtest

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// SimulatorConfig configures a realistic diurnal-style traffic
// pattern: connection count oscillates around AvgConnections with
// the given Variance instead of ramping straight to a fixed target.
type SimulatorConfig struct {
	Addr           string
	Filename       string
	AvgConnections int
	Variance       float64 // 0.0-1.0
	Duration       time.Duration
}

// Simulator drives a fluctuating connection count against the server
// rather than the Runner's fixed ramp-to-N, useful for soak-testing
// the acceptor's semaphore and session cleanup under sustained,
// varying load. Each simulated viewer is a single-client Runner so
// connection handling lives in one place.
type Simulator struct {
	config  SimulatorConfig
	metrics *Metrics
	log     zerolog.Logger

	targetConnects atomic.Int64
	activeConnects atomic.Int64
	wg             sync.WaitGroup
}

// NewSimulator builds a Simulator. metrics may be nil.
func NewSimulator(config SimulatorConfig, metrics *Metrics, log zerolog.Logger) *Simulator {
	return &Simulator{config: config, metrics: metrics, log: log}
}

// Run oscillates the target connection count every 10 seconds and
// keeps a pool of connections near that target until ctx is done.
func (s *Simulator) Run(ctx context.Context) error {
	s.targetConnects.Store(int64(s.config.AvgConnections))
	s.log.Info().Int("avg", s.config.AvgConnections).Float64("variance", s.config.Variance).Msg("starting real-world simulation")

	s.wg.Add(2)
	go s.generateLoadPattern(ctx)
	go s.manageConnections(ctx)

	<-ctx.Done()
	s.wg.Wait()
	return nil
}

func (s *Simulator) generateLoadPattern(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	startedAt := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			elapsed := time.Since(startedAt).Seconds()
			// A slow sinusoid (period ~2 minutes) plus jitter gives a
			// believable ebb and flow without a full time-of-day model.
			phase := math.Sin(2 * math.Pi * elapsed / 120)
			jitter := (rand.Float64()*2 - 1) * s.config.Variance
			factor := 1 + s.config.Variance*phase*0.5 + jitter*0.2
			if factor < 0.1 {
				factor = 0.1
			}
			target := int64(float64(s.config.AvgConnections) * factor)
			s.targetConnects.Store(target)
			s.log.Debug().Int64("target", target).Msg("adjusted simulated load target")
		}
	}
}

func (s *Simulator) manageConnections(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			target := s.targetConnects.Load()
			active := s.activeConnects.Load()
			if active < target {
				s.spawnOne(ctx)
			}
		}
	}
}

func (s *Simulator) spawnOne(ctx context.Context) {
	s.activeConnects.Add(1)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.activeConnects.Add(-1)

		runner := NewRunner(Config{
			Addr:     s.config.Addr,
			Filename: s.config.Filename,
			Clients:  1,
			Rate:     1,
			Duration: s.config.Duration,
		}, s.metrics, s.log)

		runCtx, cancel := context.WithTimeout(ctx, s.config.Duration)
		defer cancel()
		_ = runner.Run(runCtx)
	}()
}
