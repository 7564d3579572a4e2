// Created by WINK Streaming (https://www.wink.co)
package rtsp

import (
	"bufio"
	"fmt"
	"net"
	"time"

	"github.com/rs/zerolog"
)

// ClientState is the client-side session state per the transition
// table in the component design: INIT -> READY -> PLAYING, with a
// transient SWITCH state entered and left within a single NEXT or
// PREVIOUS call.
type ClientState int

const (
	StateInit ClientState = iota
	StateReady
	StatePlaying
	StateSwitch
)

func (s ClientState) String() string {
	switch s {
	case StateInit:
		return "INIT"
	case StateReady:
		return "READY"
	case StatePlaying:
		return "PLAYING"
	case StateSwitch:
		return "SWITCH"
	default:
		return "UNKNOWN"
	}
}

// Client drives the DESCRIBE/SETUP/PLAY/PAUSE/TEARDOWN/NEXT/PREVIOUS
// vocabulary over a single TCP connection, enforcing the transition
// table and the CSeq/Session verification discipline before any state
// is mutated.
type Client struct {
	conn   net.Conn
	reader *bufio.Reader
	log    zerolog.Logger
	addr   string

	state     ClientState
	cseq      int
	sessionID string
	filename  string
}

// Dial opens the RTSP control connection to addr (host:port).
func Dial(addr string, log zerolog.Logger) (*Client, error) {
	conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("rtsp: dial %s: %w", addr, err)
	}
	return &Client{
		conn:   conn,
		reader: bufio.NewReader(conn),
		log:    log,
		addr:   addr,
		state:  StateInit,
		cseq:   0,
	}, nil
}

// State reports the client's current state.
func (c *Client) State() ClientState { return c.state }

// Close shuts down the underlying TCP connection without sending
// TEARDOWN; callers that want a clean handshake should call Teardown
// first.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Describe issues DESCRIBE for filename. Valid from any state; it does
// not change the session state machine. Returns the raw SDP body.
func (c *Client) Describe(filename string) ([]byte, error) {
	resp, err := c.roundTrip("DESCRIBE", filename, nil)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != 200 {
		return nil, fmt.Errorf("rtsp: DESCRIBE failed: %d %s", resp.StatusCode, resp.Reason)
	}
	return resp.Body, nil
}

// Setup issues SETUP for filename, requesting RTP delivery to
// rtpPort. Valid only from INIT; transitions to READY on success.
func (c *Client) Setup(filename string, rtpPort int) error {
	if c.state != StateInit {
		return fmt.Errorf("%w: SETUP in state %s", ErrInvalidMethodForState, c.state)
	}

	headers := map[string]string{
		"Transport": fmt.Sprintf("RTP/UDP; client_port= %d", rtpPort),
		"Accept":    "application/sdp",
	}
	resp, err := c.roundTrip("SETUP", filename, headers)
	if err != nil {
		return err
	}
	if resp.StatusCode != 200 {
		return fmt.Errorf("rtsp: SETUP failed: %d %s", resp.StatusCode, resp.Reason)
	}

	c.filename = filename
	c.sessionID = resp.Session
	c.state = StateReady
	return nil
}

// Play issues PLAY, optionally seeking to beginSeconds first when
// seek is true. Valid from READY or PLAYING; transitions to PLAYING.
func (c *Client) Play(seek bool, beginSeconds float64) error {
	if c.state != StateReady && c.state != StatePlaying {
		return fmt.Errorf("%w: PLAY in state %s", ErrInvalidMethodForState, c.state)
	}

	var headers map[string]string
	if seek {
		headers = map[string]string{"Range": FormatNPTRange(beginSeconds)}
	}

	resp, err := c.roundTrip("PLAY", c.filename, headers)
	if err != nil {
		return err
	}
	if resp.StatusCode != 200 {
		return fmt.Errorf("rtsp: PLAY failed: %d %s", resp.StatusCode, resp.Reason)
	}

	c.state = StatePlaying
	return nil
}

// Pause issues PAUSE. Valid from PLAYING; a no-op (but still valid)
// from READY; fails in INIT.
func (c *Client) Pause() error {
	if c.state == StateInit {
		return fmt.Errorf("%w: PAUSE in state %s", ErrInvalidMethodForState, c.state)
	}
	if c.state == StateReady {
		return nil
	}

	resp, err := c.roundTrip("PAUSE", c.filename, nil)
	if err != nil {
		return err
	}
	if resp.StatusCode != 200 {
		return fmt.Errorf("rtsp: PAUSE failed: %d %s", resp.StatusCode, resp.Reason)
	}

	c.state = StateReady
	return nil
}

// Teardown issues TEARDOWN. Always returns the session to INIT
// locally, even if the request fails to send; a dead peer must not
// prevent local cleanup.
func (c *Client) Teardown() error {
	if c.state == StateInit {
		return nil
	}

	_, err := c.roundTrip("TEARDOWN", c.filename, nil)
	c.sessionID = ""
	c.state = StateInit
	if err != nil {
		c.log.Warn().Err(err).Msg("teardown request failed, session reset locally anyway")
		return nil
	}
	return nil
}

// Next advances to the next playlist entry; Previous moves back one.
// Both are valid only from READY or PLAYING: a client that is
// PLAYING is paused first (matching the transition table's "if
// PLAYING, first emit PAUSE"), then the switch round-trip runs with
// the client parked in the transient SWITCH state, then the client
// settles back in READY. The server's New-Filename header names the
// file now active.
func (c *Client) Next() (newFilename string, err error) {
	return c.switchPlaylist("NEXT")
}

func (c *Client) Previous() (newFilename string, err error) {
	return c.switchPlaylist("PREVIOUS")
}

func (c *Client) switchPlaylist(method string) (string, error) {
	if c.state != StateReady && c.state != StatePlaying {
		return "", fmt.Errorf("%w: %s in state %s", ErrInvalidMethodForState, method, c.state)
	}

	if c.state == StatePlaying {
		if err := c.Pause(); err != nil {
			return "", err
		}
	}

	c.state = StateSwitch
	resp, err := c.roundTrip(method, c.filename, nil)
	if err != nil {
		c.state = StateReady
		return "", err
	}
	if resp.StatusCode != 200 {
		c.state = StateReady
		return "", fmt.Errorf("rtsp: %s failed: %d %s", method, resp.StatusCode, resp.Reason)
	}

	newName, ok := resp.Header("New-Filename")
	if ok && newName != "" {
		c.filename = newName
	}
	c.state = StateReady
	return c.filename, nil
}

// roundTrip sends one request and reads exactly one response,
// enforcing strict alternation on the connection and verifying
// CSeq/Session before returning success.
func (c *Client) roundTrip(method, uri string, headers map[string]string) (*Response, error) {
	c.cseq++
	req := &Request{
		Method: method,
		URI:    uri,
		CSeq:   c.cseq,
	}
	req.Headers = map[string]string{}
	for k, v := range headers {
		req.Headers[k] = v
	}
	if c.sessionID != "" {
		req.Headers["Session"] = c.sessionID
	}

	if _, err := c.conn.Write(SerializeRequest(req)); err != nil {
		return nil, fmt.Errorf("rtsp: send %s: %w", method, err)
	}

	resp, err := ReadResponse(c.reader)
	if err != nil {
		return nil, fmt.Errorf("rtsp: read response to %s: %w", method, err)
	}

	if resp.CSeq != c.cseq {
		return nil, fmt.Errorf("%w: got %d want %d", ErrSequenceMismatch, resp.CSeq, c.cseq)
	}
	if c.sessionID != "" && resp.Session != c.sessionID {
		return nil, fmt.Errorf("%w: got %q want %q", ErrSessionMismatch, resp.Session, c.sessionID)
	}

	return resp, nil
}
