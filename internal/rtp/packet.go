// Created by WINK Streaming (https://www.wink.co)
// Package rtp implements the fixed, minimal RTP subset this project
// uses to carry MJPEG frames: packetization/parsing (this file), a
// pausable UDP sender (sender.go), a UDP receiver with a read timeout
// (receiver.go), and sequence/loss accounting (seq.go).
package rtp

import (
	"encoding/binary"
	"time"
)

// HeaderSize is the fixed RTP header length this project emits: no
// padding, no extension, no CSRC entries, and no RTCP.
const HeaderSize = 12

// PayloadTypeMJPEG is the fixed RTP payload type used for every packet
// this project sends; codec negotiation beyond this constant is out of
// scope.
const PayloadTypeMJPEG = 26

const (
	versionAndFlags = 0x80 // V=2, P=0, X=0, CC=0
	ssrc            = 0
)

// Packetize builds a 12-byte RTP header followed by payload, per the
// on-wire layout:
//
//	byte 0:    0x80 (V=2, P=0, X=0, CC=0)
//	byte 1:    marker(0) | PayloadTypeMJPEG
//	bytes 2-3: seqnum, big-endian
//	bytes 4-7: low 32 bits of a monotonic millisecond timestamp, big-endian
//	bytes 8-11: SSRC, fixed 0
//	bytes 12+: payload
//
// The timestamp is taken from a monotonic clock rather than the 90kHz
// video clock RFC 2435 specifies; this is a deliberate deviation kept
// for compatibility with this project's receiver (see spec's
// conformance notes).
func Packetize(payload []byte, seqnum uint16) []byte {
	packet := make([]byte, HeaderSize+len(payload))

	packet[0] = versionAndFlags
	packet[1] = PayloadTypeMJPEG
	binary.BigEndian.PutUint16(packet[2:4], seqnum)
	binary.BigEndian.PutUint32(packet[4:8], monotonicMillis())
	binary.BigEndian.PutUint32(packet[8:12], ssrc)
	copy(packet[HeaderSize:], payload)

	return packet
}

// ParsePacket strips the 12-byte header from packet and returns the
// sequence number and payload. It returns ok=false if packet is
// shorter than the fixed header.
func ParsePacket(packet []byte) (seqnum uint16, payload []byte, ok bool) {
	if len(packet) < HeaderSize {
		return 0, nil, false
	}
	seqnum = binary.BigEndian.Uint16(packet[2:4])
	payload = packet[HeaderSize:]
	return seqnum, payload, true
}

var monotonicEpoch = time.Now()

// monotonicMillis returns the low 32 bits of milliseconds elapsed
// since process start, sourced from Go's monotonic clock reading
// (time.Since always uses the monotonic component when available).
func monotonicMillis() uint32 {
	return uint32(time.Since(monotonicEpoch).Milliseconds())
}
