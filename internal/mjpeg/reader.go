// Created by WINK Streaming (https://www.wink.co)
// Package mjpeg implements a random-access reader over the
// length-prefixed MJPEG container format used by this project: a
// concatenation of records of a 5-byte big-endian frame length followed
// by that many bytes of raw JPEG payload.
package mjpeg

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
)

// LengthPrefixSize is the width, in bytes, of each frame's length
// prefix. The value is a big-endian unsigned integer holding the
// payload size.
const LengthPrefixSize = 5

// DefaultFrameRate is the fixed frame rate carried as container
// metadata; the format itself has no per-frame timestamps.
const DefaultFrameRate = 20.0

// ErrNotFound is returned by Open when the backing file does not exist.
var ErrNotFound = errors.New("mjpeg: file not found")

type frameSlot struct {
	offset int64
	size   uint32
}

// Reader provides random-access reads over one MJPEG container file.
// A Reader is not safe for concurrent use by multiple goroutines other
// than the synchronization it does internally; callers that need to
// swap readers concurrently with reads (see rtp.Sender.SwapStream)
// should serialize access themselves, as the RTSP server worker does.
type Reader struct {
	mu        sync.Mutex
	file      *os.File
	frameRate float64
	frames    []frameSlot
	next      int // index of the next frame ReadNext will deliver
	last      int // index of the last frame actually delivered, -1 if none
}

// Open opens path and scans it once to build a frame index. frameRate
// must be the fixed rate at which frames were captured; the container
// has no per-frame timestamps of its own.
func Open(path string, frameRate float64) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, err
	}

	frames, err := scan(f)
	if err != nil {
		f.Close()
		return nil, err
	}

	return &Reader{
		file:      f,
		frameRate: frameRate,
		frames:    frames,
		next:      0,
		last:      -1,
	}, nil
}

// scan reads every length-prefix in the file, recording each frame's
// payload offset and size, and leaves the file positioned at the start.
// A truncated trailing record (a partial length prefix or a payload
// shorter than declared) ends the scan early rather than erroring.
func scan(f *os.File) ([]frameSlot, error) {
	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	fileSize := info.Size()

	var frames []frameSlot
	var header [LengthPrefixSize]byte
	var offset int64

	for {
		n, err := io.ReadFull(f, header[:])
		if n == 0 && (err == io.EOF || err == nil) {
			break
		}
		if err != nil {
			// Partial length prefix: truncated file, end of stream.
			break
		}
		size := decodeLength(header)
		payloadOffset := offset + LengthPrefixSize
		if payloadOffset+int64(size) > fileSize {
			// Declared payload runs past EOF: truncated file.
			break
		}
		if _, err := f.Seek(int64(size), io.SeekCurrent); err != nil {
			break
		}
		frames = append(frames, frameSlot{offset: payloadOffset, size: size})
		offset = payloadOffset + int64(size)
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	return frames, nil
}

func decodeLength(b [LengthPrefixSize]byte) uint32 {
	var buf [8]byte
	copy(buf[8-LengthPrefixSize:], b[:])
	return uint32(binary.BigEndian.Uint64(buf[:]))
}

// FrameCount returns the number of frames found during Open's scan.
func (r *Reader) FrameCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.frames)
}

// Duration returns frameCount / frameRate, in seconds.
func (r *Reader) Duration() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return float64(len(r.frames)) / r.frameRate
}

// FrameRate returns the fixed frame rate this reader was opened with.
func (r *Reader) FrameRate() float64 {
	return r.frameRate
}

// FrameIndex returns the index of the last frame delivered by
// ReadNext, or -1 if none has been delivered yet (or a seek has moved
// the cursor without a subsequent read). It matches the index ReadNext
// returned for that frame, which rtp.Sender uses as the RTP sequence
// number.
func (r *Reader) FrameIndex() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

// ReadNext returns the next frame's payload and its index, advancing
// the cursor by one. It returns io.EOF once the cursor has passed the
// last frame.
func (r *Reader) ReadNext() ([]byte, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.next >= len(r.frames) {
		return nil, -1, io.EOF
	}

	slot := r.frames[r.next]
	payload := make([]byte, slot.size)
	if _, err := r.file.ReadAt(payload, slot.offset); err != nil {
		return nil, -1, io.EOF
	}

	index := r.next
	r.last = index
	r.next++
	return payload, index, nil
}

// SeekTime sets the cursor so that the next ReadNext call delivers the
// frame at round(t * frameRate). If t exceeds the stream's duration,
// the cursor is set past the last frame so the next ReadNext returns
// io.EOF.
func (r *Reader) SeekTime(t float64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := int(t*r.frameRate + 0.5)
	if idx > len(r.frames) {
		idx = len(r.frames)
	}
	if idx < 0 {
		idx = 0
	}
	r.next = idx
	r.last = -1
}

// Close releases the underlying file handle.
func (r *Reader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.file.Close()
}
