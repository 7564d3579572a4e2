// Created by WINK Streaming (https://www.wink.co)
package rtsp

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/wink-streaming/mjpeg-rtsp/internal/mjpeg"
	"github.com/wink-streaming/mjpeg-rtsp/internal/rtp"
)

// ServerState mirrors the server-side control state from the data
// model: INIT, READY, PLAYING. The client-side SWITCH state has no
// server-side counterpart; the server simply stays in READY across
// a NEXT/PREVIOUS round-trip.
type ServerState int

const (
	ServerInit ServerState = iota
	ServerReady
	ServerPlaying
)

func (s ServerState) String() string {
	switch s {
	case ServerInit:
		return "INIT"
	case ServerReady:
		return "READY"
	case ServerPlaying:
		return "PLAYING"
	default:
		return "UNKNOWN"
	}
}

// Session is the server-side per-connection state described in the
// data model: at most one per TCP connection, created on accept,
// identified on first successful SETUP, destroyed on TEARDOWN or
// disconnect. The worker goroutine is the only writer to session
// state; only the RTP sender runs concurrently with it.
type Session struct {
	conn       net.Conn
	reader     *bufio.Reader
	log        zerolog.Logger
	clientAddr string
	videoDir   string
	playlist   *Playlist

	state         ServerState
	sessionID     string
	cseq          int
	playlistIndex int
	currentFile   string
	videoStream   *mjpeg.Reader
	sender        *rtp.Sender
	rtpClientPort int
}

// NewSession wraps an accepted connection. videoDir is used both to
// resolve SETUP/DESCRIBE filenames and, if playlist is non-nil, as
// the source for NEXT/PREVIOUS cycling.
func NewSession(conn net.Conn, videoDir string, playlist *Playlist, log zerolog.Logger) *Session {
	return &Session{
		conn:       conn,
		reader:     bufio.NewReader(conn),
		log:        log,
		clientAddr: conn.RemoteAddr().String(),
		videoDir:   videoDir,
		playlist:   playlist,
		state:      ServerInit,
	}
}

// Serve processes requests from the connection until the client
// disconnects or a protocol error occurs, then releases the session's
// resources. It never returns an error for an ordinary client
// disconnect.
func (s *Session) Serve() error {
	defer s.cleanup()

	for {
		req, err := ReadRequest(s.reader)
		if err != nil {
			if errors.Is(err, io.EOF) {
				s.log.Info().Str("client", s.clientAddr).Msg("client disconnected")
				return nil
			}
			s.log.Warn().Err(err).Str("client", s.clientAddr).Msg("malformed request, closing connection")
			return fmt.Errorf("rtsp: read request: %w", err)
		}

		s.cseq = req.CSeq
		s.dispatch(req)
	}
}

func (s *Session) dispatch(req *Request) {
	s.log.Info().Str("method", req.Method).Str("uri", req.URI).Int("cseq", req.CSeq).Msg("request received")

	switch strings.ToUpper(req.Method) {
	case "DESCRIBE":
		s.handleDescribe(req)
	case "SETUP":
		s.handleSetup(req)
	case "PLAY":
		s.handlePlay(req)
	case "PAUSE":
		s.handlePause(req)
	case "TEARDOWN":
		s.handleTeardown(req)
	case "NEXT":
		s.handleSwitch(req, +1)
	case "PREVIOUS":
		s.handleSwitch(req, -1)
	default:
		s.reply(statusInvalidMethod, nil, nil)
	}
}

func (s *Session) handleDescribe(req *Request) {
	path := s.resolvePath(req.URI)
	probe, err := mjpeg.Open(path, mjpeg.DefaultFrameRate)
	if err != nil {
		s.reply(statusFileNotFound, nil, nil)
		return
	}
	defer probe.Close()

	body := BuildSDP(clientIP(s.clientAddr), probe.FrameRate(), probe.Duration())
	s.reply(statusOK, map[string]string{"Content-Type": "application/sdp"}, body)
}

func (s *Session) handleSetup(req *Request) {
	if s.state == ServerPlaying {
		s.reply(statusInvalidMethod, nil, nil)
		return
	}

	transport, _ := req.Header("Transport")
	port, ok := parseClientPort(transport)
	if !ok {
		s.reply(statusInvalidMethod, nil, nil)
		return
	}

	path := s.resolvePath(req.URI)
	stream, err := mjpeg.Open(path, mjpeg.DefaultFrameRate)
	if err != nil {
		s.reply(statusFileNotFound, nil, nil)
		return
	}

	if s.videoStream != nil {
		s.videoStream.Close()
	}
	s.videoStream = stream
	s.currentFile = req.URI
	s.rtpClientPort = port
	if s.playlist != nil {
		s.playlistIndex = s.playlist.IndexOf(baseName(req.URI))
	}

	if s.sender == nil {
		host, _, _ := net.SplitHostPort(s.clientAddr)
		peer := &net.UDPAddr{IP: net.ParseIP(host), Port: port}
		sender, err := rtp.NewSender(peer, s.videoStream, s.log)
		if err != nil {
			s.log.Warn().Err(err).Msg("failed to bind RTP sender socket")
			s.reply(statusConnError, nil, nil)
			return
		}
		s.sender = sender
		go s.sender.Run()
	} else {
		s.sender.SwapStream(s.videoStream)
	}

	if s.sessionID == "" {
		s.sessionID = fmt.Sprintf("%06d", rand.Intn(900000)+100000)
	}

	s.reply(statusOK, nil, nil)
	s.state = ServerReady
}

func (s *Session) handlePlay(req *Request) {
	if s.state == ServerInit {
		s.reply(statusInvalidMethod, nil, nil)
		return
	}

	if rangeHeader, ok := req.Header("Range"); ok {
		begin, _, err := ParseNPTRange(rangeHeader)
		if err == nil {
			s.videoStream.SeekTime(begin)
		}
	}

	s.sender.Play()
	s.reply(statusOK, nil, nil)
	s.state = ServerPlaying
}

func (s *Session) handlePause(req *Request) {
	if s.state == ServerInit {
		s.reply(statusInvalidMethod, nil, nil)
		return
	}
	if s.state == ServerReady {
		s.reply(statusOK, nil, nil)
		return
	}

	s.sender.Pause()
	s.reply(statusOK, nil, nil)
	s.state = ServerReady
}

func (s *Session) handleTeardown(req *Request) {
	s.closeResources()
	s.sessionID = ""
	s.reply(statusOK, nil, nil)
	s.state = ServerInit
}

// handleSwitch implements NEXT (dir=+1) and PREVIOUS (dir=-1). Valid
// only in READY, matching "the client pauses first" in the transition
// table; the server never sees a PLAYING NEXT/PREVIOUS.
func (s *Session) handleSwitch(req *Request, dir int) {
	if s.state != ServerReady || s.playlist == nil || s.playlist.Len() == 0 {
		s.reply(statusInvalidMethod, nil, nil)
		return
	}

	var newIndex int
	var newName string
	if dir > 0 {
		newIndex, newName = s.playlist.Next(s.playlistIndex)
	} else {
		newIndex, newName = s.playlist.Previous(s.playlistIndex)
	}

	stream, err := mjpeg.Open(s.playlist.Path(newName), mjpeg.DefaultFrameRate)
	if err != nil {
		s.reply(statusFileNotFound, nil, nil)
		return
	}

	if s.videoStream != nil {
		s.videoStream.Close()
	}
	s.videoStream = stream
	s.playlistIndex = newIndex
	s.currentFile = newName
	s.sender.SwapStream(stream)

	s.reply(statusOK, map[string]string{"New-Filename": newName}, nil)
}

func (s *Session) reply(status statusLine, extraHeaders map[string]string, body []byte) {
	resp := &Response{
		StatusCode: status.code,
		Reason:     status.reason,
		CSeq:       s.cseq,
		Session:    s.sessionID,
		Headers:    extraHeaders,
		Body:       body,
	}
	if _, err := s.conn.Write(SerializeResponse(resp)); err != nil {
		s.log.Warn().Err(err).Msg("failed to write response")
	}
}

func (s *Session) closeResources() {
	if s.sender != nil {
		s.sender.Close()
		s.sender = nil
	}
	if s.videoStream != nil {
		s.videoStream.Close()
		s.videoStream = nil
	}
}

func (s *Session) cleanup() {
	s.closeResources()
	s.conn.Close()
}

func (s *Session) resolvePath(uri string) string {
	name := baseName(uri)
	if s.videoDir == "" {
		return name
	}
	return filepath.Join(s.videoDir, name)
}

type statusLine struct {
	code   int
	reason string
}

var (
	statusOK            = statusLine{200, "OK"}
	statusFileNotFound  = statusLine{404, "Not Found"}
	statusConnError     = statusLine{500, "Connection Error"}
	statusInvalidMethod = statusLine{455, "Method Not Valid In This State"}
)

// parseClientPort extracts the client_port value from a header like
// "RTP/UDP; client_port= 5004".
func parseClientPort(transport string) (int, bool) {
	idx := strings.Index(transport, "client_port=")
	if idx < 0 {
		return 0, false
	}
	rest := strings.TrimSpace(transport[idx+len("client_port="):])
	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return 0, false
	}
	port, err := strconv.Atoi(fields[0])
	if err != nil {
		return 0, false
	}
	return port, true
}

func clientIP(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}

// baseName strips any directory portion from a request URI; this
// implementation's URIs are bare filenames, but a stray leading path
// component is tolerated rather than rejected.
func baseName(uri string) string {
	if idx := strings.LastIndexByte(uri, '/'); idx >= 0 {
		return uri[idx+1:]
	}
	return uri
}
