// Created by WINK Streaming (https://www.wink.co)
package rtsp

import (
	"fmt"
	"net"

	"github.com/rs/zerolog"
)

// AcceptorConfig configures the listening loop.
type AcceptorConfig struct {
	ListenAddr    string
	VideoDir      string
	Playlist      *Playlist
	MaxConcurrent int // 0 means unbounded
}

// Acceptor is the server's single listening task: it accepts
// connections and hands each to a newly spawned Session, capping
// concurrency with a semaphore when configured.
type Acceptor struct {
	cfg       AcceptorConfig
	log       zerolog.Logger
	semaphore chan struct{}
}

// NewAcceptor builds an Acceptor from cfg.
func NewAcceptor(cfg AcceptorConfig, log zerolog.Logger) *Acceptor {
	a := &Acceptor{cfg: cfg, log: log}
	if cfg.MaxConcurrent > 0 {
		a.semaphore = make(chan struct{}, cfg.MaxConcurrent)
	}
	return a
}

// Run listens on cfg.ListenAddr and serves connections until the
// listener is closed or accept fails permanently.
func (a *Acceptor) Run() error {
	ln, err := net.Listen("tcp", a.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("rtsp: listen %s: %w", a.cfg.ListenAddr, err)
	}
	defer ln.Close()

	a.log.Info().Str("addr", a.cfg.ListenAddr).Msg("accepting RTSP connections")

	for {
		conn, err := ln.Accept()
		if err != nil {
			return fmt.Errorf("rtsp: accept: %w", err)
		}

		if a.semaphore != nil {
			a.semaphore <- struct{}{}
		}

		a.log.Info().Str("client", conn.RemoteAddr().String()).Msg("accepted new connection")
		session := NewSession(conn, a.cfg.VideoDir, a.cfg.Playlist, a.log)

		go func() {
			if a.semaphore != nil {
				defer func() { <-a.semaphore }()
			}
			if err := session.Serve(); err != nil {
				a.log.Warn().Err(err).Msg("session ended with error")
			}
		}()
	}
}
