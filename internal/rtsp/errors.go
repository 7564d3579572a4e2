// Created by WINK Streaming (https://www.wink.co)
package rtsp

import "errors"

// Sentinel errors for protocol-level conditions. Call sites wrap them
// with context via fmt.Errorf("%w: ...").
var (
	// ErrInvalidMethodForState is returned by the client when a method
	// is invoked in a state the transition table forbids, before any
	// bytes are sent.
	ErrInvalidMethodForState = errors.New("rtsp: method not valid in current state")

	// ErrSequenceMismatch is returned when a response's CSeq doesn't
	// match the just-sent request.
	ErrSequenceMismatch = errors.New("rtsp: response CSeq does not match request")

	// ErrSessionMismatch is returned when a response's Session header
	// doesn't match the stored session id.
	ErrSessionMismatch = errors.New("rtsp: response Session does not match client session")

	// ErrFileNotFound mirrors the server's 404 response.
	ErrFileNotFound = errors.New("rtsp: file not found")

	// ErrMalformed is returned by the codec when a request or response
	// cannot be parsed.
	ErrMalformed = errors.New("rtsp: malformed message")
)
