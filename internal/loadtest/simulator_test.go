// Created by WINK Streaming (https://www.wink.co)
package loadtest

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestSimulatorRunsWithoutPanicking(t *testing.T) {
	dir := t.TempDir()
	writeMJPEGFile(t, dir, "movie.mjpeg", 4, 8)
	addr := startTestServer(t, dir)

	sim := NewSimulator(SimulatorConfig{
		Addr:           addr,
		Filename:       "movie.mjpeg",
		AvgConnections: 2,
		Variance:       0.3,
		Duration:       100 * time.Millisecond,
	}, nil, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 600*time.Millisecond)
	defer cancel()
	require.NoError(t, sim.Run(ctx))
}
