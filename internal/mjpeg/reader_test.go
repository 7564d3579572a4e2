// Created by WINK Streaming (https://www.wink.co)
package mjpeg

import (
	"encoding/binary"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeContainer(t *testing.T, frames [][]byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "movie.mjpeg")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	for _, payload := range frames {
		var buf [8]byte
		binary.BigEndian.PutUint64(buf[:], uint64(len(payload)))
		_, err := f.Write(buf[8-LengthPrefixSize:])
		require.NoError(t, err)
		_, err = f.Write(payload)
		require.NoError(t, err)
	}
	return path
}

func sampleFrames(n int) [][]byte {
	frames := make([][]byte, n)
	for i := range frames {
		frames[i] = []byte{byte(i), byte(i + 1), byte(i + 2)}
	}
	return frames
}

func TestOpenMissingFile(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "nope.mjpeg"), DefaultFrameRate)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestReadNextSequence(t *testing.T) {
	frames := sampleFrames(5)
	path := writeContainer(t, frames)

	r, err := Open(path, DefaultFrameRate)
	require.NoError(t, err)
	defer r.Close()

	require.Equal(t, 5, r.FrameCount())
	require.Equal(t, -1, r.FrameIndex())

	for i, want := range frames {
		got, idx, err := r.ReadNext()
		require.NoError(t, err)
		require.Equal(t, i, idx)
		require.Equal(t, want, got)
		require.Equal(t, i, r.FrameIndex())
	}

	_, _, err = r.ReadNext()
	require.ErrorIs(t, err, io.EOF)
}

func TestDuration(t *testing.T) {
	path := writeContainer(t, sampleFrames(40))
	r, err := Open(path, 20)
	require.NoError(t, err)
	defer r.Close()

	require.Equal(t, 2.0, r.Duration())
}

func TestSeekTimeDeliversExpectedIndex(t *testing.T) {
	path := writeContainer(t, sampleFrames(200))
	r, err := Open(path, 20)
	require.NoError(t, err)
	defer r.Close()

	r.SeekTime(4.0)
	_, idx, err := r.ReadNext()
	require.NoError(t, err)
	require.Equal(t, 80, idx)
}

func TestSeekTimePastEndReturnsEOF(t *testing.T) {
	path := writeContainer(t, sampleFrames(10))
	r, err := Open(path, 20)
	require.NoError(t, err)
	defer r.Close()

	r.SeekTime(100)
	_, _, err = r.ReadNext()
	require.ErrorIs(t, err, io.EOF)
}

func TestTruncatedFrameEndsStream(t *testing.T) {
	path := filepath.Join(t.TempDir(), "truncated.mjpeg")
	f, err := os.Create(path)
	require.NoError(t, err)
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], 10)
	f.Write(buf[8-LengthPrefixSize:])
	f.Write([]byte{1, 2, 3}) // shorter than declared 10 bytes
	f.Close()

	r, err := Open(path, DefaultFrameRate)
	require.NoError(t, err)
	defer r.Close()

	require.Equal(t, 0, r.FrameCount())
	_, _, err = r.ReadNext()
	require.ErrorIs(t, err, io.EOF)
}

func TestFullReplayMatchesNaiveParse(t *testing.T) {
	frames := sampleFrames(30)
	path := writeContainer(t, frames)

	r, err := Open(path, DefaultFrameRate)
	require.NoError(t, err)
	defer r.Close()

	var got [][]byte
	for {
		payload, _, err := r.ReadNext()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		cp := make([]byte, len(payload))
		copy(cp, payload)
		got = append(got, cp)
	}
	require.Equal(t, frames, got)
}
