// Created by WINK Streaming (https://www.wink.co)
package loadtest

import (
	"context"
	"encoding/binary"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/wink-streaming/mjpeg-rtsp/internal/rtsp"
)

func writeMJPEGFile(t *testing.T, dir, name string, frameCount, frameSize int) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	payload := make([]byte, frameSize)
	for i := 0; i < frameCount; i++ {
		var prefix [5]byte
		var buf [8]byte
		binary.BigEndian.PutUint64(buf[:], uint64(len(payload)))
		copy(prefix[:], buf[3:])
		_, err := f.Write(prefix[:])
		require.NoError(t, err)
		_, err = f.Write(payload)
		require.NoError(t, err)
	}
	return path
}

func startTestServer(t *testing.T, dir string) string {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	acceptor := rtsp.NewAcceptor(rtsp.AcceptorConfig{ListenAddr: addr, VideoDir: dir, MaxConcurrent: 100}, zerolog.Nop())
	go acceptor.Run()
	time.Sleep(50 * time.Millisecond)
	return addr
}

func TestRunnerDrivesSuccessfulConnections(t *testing.T) {
	dir := t.TempDir()
	writeMJPEGFile(t, dir, "movie.mjpeg", 10, 16)
	addr := startTestServer(t, dir)

	runner := NewRunner(Config{
		Addr:     addr,
		Filename: "movie.mjpeg",
		Clients:  3,
		Rate:     50,
		Duration: 300 * time.Millisecond,
	}, nil, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, runner.Run(ctx))

	stats := runner.GetStats()
	require.Equal(t, int64(3), stats.TotalConnects)
	require.Equal(t, int64(0), stats.TotalFailures)
}

func TestRunnerCountsConnectFailuresAgainstDeadServer(t *testing.T) {
	runner := NewRunner(Config{
		Addr:     "127.0.0.1:1", // nothing listens here
		Filename: "movie.mjpeg",
		Clients:  2,
		Rate:     50,
		Duration: 100 * time.Millisecond,
	}, nil, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, runner.Run(ctx))

	stats := runner.GetStats()
	require.Equal(t, int64(2), stats.TotalFailures)
}

func TestRunnerWithBadClientsDoesNotCrashServer(t *testing.T) {
	dir := t.TempDir()
	writeMJPEGFile(t, dir, "movie.mjpeg", 5, 8)
	addr := startTestServer(t, dir)

	runner := NewRunner(Config{
		Addr:              addr,
		Filename:          "movie.mjpeg",
		Clients:           4,
		Rate:              50,
		Duration:          200 * time.Millisecond,
		IncludeBadClients: true,
		BadClientRatio:    1.0,
	}, nil, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, runner.Run(ctx))

	stats := runner.GetStats()
	require.Equal(t, int64(4), stats.BadClients)
}

func TestPercentileOfSortedValues(t *testing.T) {
	values := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	require.InDelta(t, 10.0, percentile(values, 100), 0.001)
	require.InDelta(t, 1.0, percentile(values, 0), 0.001)
}
