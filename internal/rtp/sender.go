// Created by WINK Streaming (https://www.wink.co)
package rtp

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// FrameReader is the subset of mjpeg.Reader the sender depends on.
// Declared locally so internal/rtp has no import-time dependency on
// internal/mjpeg; the RTSP server worker is the only code that needs
// to know both concrete types.
type FrameReader interface {
	ReadNext() (payload []byte, index int, err error)
	FrameRate() float64
}

// Sender pumps frames from a FrameReader to one UDP peer at the
// reader's frame rate. It starts suspended; the playing flag is a
// one-shot gate checked at each iteration boundary, and a buffered
// wake channel lets Play and Close rouse a parked loop so it never
// busy-spins while paused.
type Sender struct {
	conn net.PacketConn
	peer net.Addr
	log  zerolog.Logger

	mu     sync.Mutex
	reader FrameReader

	playing atomic.Bool
	wake    chan struct{}
	stopped atomic.Bool
	done    chan struct{}
}

// NewSender creates a Sender bound to peer over a fresh UDP socket,
// reading frames from reader. The caller must call Run (typically in
// its own goroutine) to start the pump loop, and Play to let it
// transmit.
func NewSender(peer *net.UDPAddr, reader FrameReader, log zerolog.Logger) (*Sender, error) {
	conn, err := net.ListenUDP("udp", nil)
	if err != nil {
		return nil, err
	}

	s := &Sender{
		conn:   conn,
		peer:   peer,
		reader: reader,
		log:    log,
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	return s, nil
}

// Run executes the pump loop until Close is called. It is meant to be
// started in its own goroutine, one per active session.
func (s *Sender) Run() {
	defer close(s.done)

	for {
		if s.stopped.Load() {
			return
		}

		if !s.playing.Load() {
			// Park until Play or Close; recheck both flags on wake so a
			// stale wake token costs one spin, not a stray frame.
			<-s.wake
			continue
		}

		reader := s.currentReader()
		payload, index, err := reader.ReadNext()
		if err != nil {
			// End of stream: stay "running" but idle, no implicit
			// pause. Seeking or a playlist swap resumes traffic.
			time.Sleep(time.Duration(float64(time.Second) / reader.FrameRate()))
			continue
		}

		packet := Packetize(payload, uint16(index))
		if _, err := s.conn.WriteTo(packet, s.peer); err != nil {
			// UDP send errors are logged and tolerated; they never
			// terminate the sender.
			s.log.Warn().Err(err).Msg("rtp: send failed")
		}

		time.Sleep(time.Duration(float64(time.Second) / reader.FrameRate()))
	}
}

// Play resumes transmission.
func (s *Sender) Play() {
	s.playing.Store(true)
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Pause suspends transmission; the run loop will park at its next
// iteration boundary.
func (s *Sender) Pause() {
	s.playing.Store(false)
}

// SwapStream atomically replaces the reader the sender pulls frames
// from. Sequence numbers come from the reader's own frame index, so
// swapping resets them. Callers must only swap while the sender is
// paused (the RTSP server enforces this by only accepting
// NEXT/PREVIOUS in the READY state).
func (s *Sender) SwapStream(reader FrameReader) {
	s.mu.Lock()
	s.reader = reader
	s.mu.Unlock()
}

func (s *Sender) currentReader() FrameReader {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reader
}

// Close stops the run loop and releases the UDP socket. It blocks
// until the run loop has observed the stop and exited.
func (s *Sender) Close() error {
	if s.stopped.CompareAndSwap(false, true) {
		// Wake the loop if it's parked.
		select {
		case s.wake <- struct{}{}:
		default:
		}
		<-s.done
	}
	return s.conn.Close()
}
