// Created by WINK Streaming (https://www.wink.co)
package rtsp

import (
	"bufio"
	"net"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// fakeServer is a minimal scripted RTSP peer for exercising the client
// state machine without a real server worker.
type fakeServer struct {
	conn   net.Conn
	reader *bufio.Reader
}

func newFakeServerPair(t *testing.T) (*Client, *fakeServer) {
	serverConn, clientConn := net.Pipe()

	c := &Client{
		conn:   clientConn,
		reader: bufio.NewReader(clientConn),
		log:    zerolog.Nop(),
		state:  StateInit,
	}
	return c, &fakeServer{conn: serverConn, reader: bufio.NewReader(serverConn)}
}

func (fs *fakeServer) recvRequest(t *testing.T) *Request {
	req, err := ReadRequest(fs.reader)
	require.NoError(t, err)
	return req
}

func (fs *fakeServer) reply(t *testing.T, resp *Response) {
	_, err := fs.conn.Write(SerializeResponse(resp))
	require.NoError(t, err)
}

func TestClientSetupTransitionsToReady(t *testing.T) {
	c, fs := newFakeServerPair(t)
	defer c.Close()
	defer fs.conn.Close()

	done := make(chan error, 1)
	go func() { done <- c.Setup("movie.mjpeg", 5004) }()

	req := fs.recvRequest(t)
	require.Equal(t, "SETUP", req.Method)
	fs.reply(t, &Response{StatusCode: 200, Reason: "OK", CSeq: req.CSeq, Session: "123456"})

	require.NoError(t, <-done)
	require.Equal(t, StateReady, c.State())
}

func TestClientPlayRejectedFromInit(t *testing.T) {
	c, fs := newFakeServerPair(t)
	defer c.Close()
	defer fs.conn.Close()

	err := c.Play(false, 0)
	require.ErrorIs(t, err, ErrInvalidMethodForState)
}

func TestClientSequenceMismatchRejected(t *testing.T) {
	c, fs := newFakeServerPair(t)
	defer c.Close()
	defer fs.conn.Close()

	done := make(chan error, 1)
	go func() { done <- c.Setup("movie.mjpeg", 5004) }()

	req := fs.recvRequest(t)
	fs.reply(t, &Response{StatusCode: 200, Reason: "OK", CSeq: req.CSeq + 1, Session: "1"})

	err := <-done
	require.ErrorIs(t, err, ErrSequenceMismatch)
	require.Equal(t, StateInit, c.State())
}

func TestClientNextPausesFirstWhenPlaying(t *testing.T) {
	c, fs := newFakeServerPair(t)
	defer c.Close()
	defer fs.conn.Close()

	c.state = StatePlaying
	c.filename = "b.mjpeg"
	c.sessionID = "999"
	c.cseq = 3

	done := make(chan struct {
		name string
		err  error
	}, 1)
	go func() {
		name, err := c.Next()
		done <- struct {
			name string
			err  error
		}{name, err}
	}()

	pauseReq := fs.recvRequest(t)
	require.Equal(t, "PAUSE", pauseReq.Method)
	fs.reply(t, &Response{StatusCode: 200, Reason: "OK", CSeq: pauseReq.CSeq, Session: "999"})

	nextReq := fs.recvRequest(t)
	require.Equal(t, "NEXT", nextReq.Method)
	fs.reply(t, &Response{
		StatusCode: 200, Reason: "OK", CSeq: nextReq.CSeq, Session: "999",
		Headers: map[string]string{"New-Filename": "c.mjpeg"},
	})

	result := <-done
	require.NoError(t, result.err)
	require.Equal(t, "c.mjpeg", result.name)
	require.Equal(t, StateReady, c.State())
}

func TestClientTeardownResetsLocallyEvenOnSendFailure(t *testing.T) {
	c, fs := newFakeServerPair(t)
	fs.conn.Close()
	c.state = StateReady
	c.sessionID = "1"

	err := c.Teardown()
	require.NoError(t, err)
	require.Equal(t, StateInit, c.State())
}
