// Created by WINK Streaming (https://www.wink.co)
package loadtest

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/wink-streaming/mjpeg-rtsp/internal/rtp"
	"github.com/wink-streaming/mjpeg-rtsp/internal/rtsp"
)

// Config holds load-test configuration: how many simulated clients to
// drive against one server, at what connection rate, and whether to
// mix in chaos clients.
type Config struct {
	Addr              string
	Filename          string
	Clients           int
	Duration          time.Duration
	Rate              float64 // connections per second
	StatsInterval     time.Duration
	IncludeBadClients bool
	BadClientRatio    float64 // 0.0-1.0
}

// Runner orchestrates a load test: it ramps up simulated clients
// against the RTSP server at the configured rate, optionally mixing
// in chaos clients, and aggregates RTP delivery statistics plus
// connection latency percentiles.
type Runner struct {
	config     Config
	aggregator *rtp.Aggregator
	log        zerolog.Logger
	metrics    *Metrics

	activeConnects atomic.Int64
	totalConnects  atomic.Int64
	totalFailures  atomic.Int64
	connectLatency atomic.Int64
	connectCount   atomic.Int64
	badClients     atomic.Int64
	badClientTypes sync.Map

	latencies   []float64
	latenciesMu sync.Mutex
	minLatency  atomic.Int64
	maxLatency  atomic.Int64

	limiter   *rate.Limiter
	semaphore chan struct{}
	wg        sync.WaitGroup
}

// NewRunner builds a Runner. metrics may be nil to disable Prometheus
// export.
func NewRunner(config Config, metrics *Metrics, log zerolog.Logger) *Runner {
	burst := 10
	if config.Rate > 100 {
		burst = int(config.Rate / 10)
	}
	if burst > 100 {
		burst = 100
	}

	maxConcurrent := config.Clients
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}

	r := &Runner{
		config:     config,
		aggregator: rtp.NewAggregator(),
		log:        log,
		metrics:    metrics,
		limiter:    rate.NewLimiter(rate.Limit(config.Rate), burst),
		semaphore:  make(chan struct{}, maxConcurrent),
		latencies:  make([]float64, 0, 1000),
	}
	r.minLatency.Store(99999999)
	r.maxLatency.Store(0)
	return r
}

// Run ramps up connections until config.Clients have been spawned,
// then waits for all of them to finish.
func (r *Runner) Run(ctx context.Context) error {
	r.log.Info().Int("clients", r.config.Clients).Float64("rate", r.config.Rate).Msg("starting load test")

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	r.wg.Add(1)
	go r.spawnConnections(runCtx)

	finished := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
	case <-runCtx.Done():
		r.wg.Wait()
	}
	return nil
}

func (r *Runner) spawnConnections(ctx context.Context) {
	defer r.wg.Done()

	spawned := 0
	for spawned < r.config.Clients {
		if ctx.Err() != nil {
			return
		}
		if err := r.limiter.Wait(ctx); err != nil {
			return
		}

		select {
		case r.semaphore <- struct{}{}:
		case <-ctx.Done():
			return
		}

		r.wg.Add(1)
		if r.config.IncludeBadClients && rand.Float64() < r.config.BadClientRatio {
			go r.runBadClient(ctx)
		} else {
			go r.runConnection(ctx)
		}

		spawned++
		if spawned%100 == 0 {
			r.log.Info().Int("spawned", spawned).Msg("ramping up load test clients")
		}
	}

	r.log.Info().Int("spawned", spawned).Msg("finished spawning load test clients")
}

func (r *Runner) runConnection(ctx context.Context) {
	defer r.wg.Done()
	defer func() { <-r.semaphore }()

	start := time.Now()
	client, err := rtsp.Dial(r.config.Addr, r.log)
	if err != nil {
		r.totalFailures.Add(1)
		if r.metrics != nil {
			r.metrics.ConnectFailures.Inc()
		}
		return
	}
	defer client.Close()

	recv, err := rtp.NewReceiver(0, rtp.DefaultReadTimeout)
	if err != nil {
		r.totalFailures.Add(1)
		return
	}
	defer recv.Close()

	if err := client.Setup(r.config.Filename, recv.LocalPort()); err != nil {
		r.totalFailures.Add(1)
		return
	}
	if err := client.Play(false, 0); err != nil {
		r.totalFailures.Add(1)
		return
	}

	r.recordConnectLatency(time.Since(start))
	r.totalConnects.Add(1)
	r.activeConnects.Add(1)
	defer r.activeConnects.Add(-1)

	tracker := rtp.NewSeqTracker()
	runCtx, cancel := context.WithTimeout(ctx, r.config.Duration)
	defer cancel()

	for runCtx.Err() == nil {
		seq, payload, ok, err := recv.ReadPacket()
		if err != nil {
			break
		}
		if !ok {
			continue
		}
		r.aggregator.AddPackets(1)
		r.aggregator.AddBytes(uint64(len(payload)))
		r.aggregator.AddLoss(tracker.Push(seq))
		if r.metrics != nil {
			r.metrics.PacketsReceived.Inc()
			r.metrics.BytesReceived.Add(float64(len(payload)))
		}
	}

	_ = client.Pause()
	_ = client.Teardown()
}

func (r *Runner) runBadClient(ctx context.Context) {
	defer r.wg.Done()
	defer func() { <-r.semaphore }()

	bad := rtsp.NewBadClient(r.config.Addr, r.config.Filename)
	r.badClients.Add(1)
	r.activeConnects.Add(1)
	defer r.activeConnects.Add(-1)

	typeName := bad.GetTypeName()
	if count, ok := r.badClientTypes.Load(typeName); ok {
		r.badClientTypes.Store(typeName, count.(int64)+1)
	} else {
		r.badClientTypes.Store(typeName, int64(1))
	}
	if r.metrics != nil {
		r.metrics.BadClientsSpawned.Inc()
	}

	runCtx, cancel := context.WithTimeout(ctx, r.config.Duration)
	defer cancel()
	_ = bad.Run(runCtx)
}

func (r *Runner) recordConnectLatency(d time.Duration) {
	ms := d.Milliseconds()
	r.connectLatency.Add(ms)
	r.connectCount.Add(1)

	for {
		oldMin := r.minLatency.Load()
		if ms >= oldMin || r.minLatency.CompareAndSwap(oldMin, ms) {
			break
		}
	}
	for {
		oldMax := r.maxLatency.Load()
		if ms <= oldMax || r.maxLatency.CompareAndSwap(oldMax, ms) {
			break
		}
	}

	r.latenciesMu.Lock()
	if len(r.latencies) < 10000 {
		r.latencies = append(r.latencies, float64(ms))
	}
	r.latenciesMu.Unlock()

	if r.metrics != nil {
		r.metrics.ConnectLatencyMs.Observe(float64(ms))
	}
}

// Stats is a point-in-time snapshot of load-test progress.
type Stats struct {
	ActiveConnects int64
	TotalConnects  int64
	TotalFailures  int64
	AvgConnectTime float64
	MinConnectTime float64
	MaxConnectTime float64
	P95ConnectTime float64
	RTPPackets     uint64
	RTPLoss        uint64
	RTPBytes       uint64
	BadClients     int64
	BadClientTypes map[string]int64
}

// GetStats returns a Stats snapshot.
func (r *Runner) GetStats() Stats {
	snap := r.aggregator.Snapshot()

	var avgConnect float64
	if count := r.connectCount.Load(); count > 0 {
		avgConnect = float64(r.connectLatency.Load()) / float64(count)
	}

	r.latenciesMu.Lock()
	var p95 float64
	if len(r.latencies) > 0 {
		p95 = percentile(r.latencies, 95)
	}
	r.latenciesMu.Unlock()

	minLat := float64(r.minLatency.Load())
	if minLat == 99999999 {
		minLat = 0
	}

	badClientTypes := make(map[string]int64)
	r.badClientTypes.Range(func(key, value interface{}) bool {
		badClientTypes[key.(string)] = value.(int64)
		return true
	})

	return Stats{
		ActiveConnects: r.activeConnects.Load(),
		TotalConnects:  r.totalConnects.Load(),
		TotalFailures:  r.totalFailures.Load(),
		AvgConnectTime: avgConnect,
		MinConnectTime: minLat,
		MaxConnectTime: float64(r.maxLatency.Load()),
		P95ConnectTime: p95,
		RTPPackets:     snap.Packets,
		RTPLoss:        snap.Lost,
		RTPBytes:       snap.Bytes,
		BadClients:     r.badClients.Load(),
		BadClientTypes: badClientTypes,
	}
}

// PrintStats writes a one-line human-readable summary to stdout.
func (r *Runner) PrintStats() {
	s := r.GetStats()
	lossRate := 0.0
	if s.RTPPackets > 0 {
		lossRate = float64(s.RTPLoss) * 100.0 / float64(s.RTPPackets+s.RTPLoss)
	}
	fmt.Printf("active=%d total=%d failed=%d avg_connect=%.1fms p95_connect=%.1fms packets=%d loss=%.2f%%\n",
		s.ActiveConnects, s.TotalConnects, s.TotalFailures, s.AvgConnectTime, s.P95ConnectTime, s.RTPPackets, lossRate)
}

func percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	idx := (p / 100) * float64(len(sorted)-1)
	lower := int(idx)
	upper := lower + 1
	if upper >= len(sorted) {
		return sorted[lower]
	}
	frac := idx - float64(lower)
	return sorted[lower]*(1-frac) + sorted[upper]*frac
}
