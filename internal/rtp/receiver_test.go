// Created by WINK Streaming (https://www.wink.co)
package rtp

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestReceiverReadTimeout(t *testing.T) {
	recv, err := NewReceiver(0, 50*time.Millisecond)
	require.NoError(t, err)
	defer recv.Close()

	start := time.Now()
	payload, ok, err := recv.Read()
	require.NoError(t, err)
	require.False(t, ok)
	require.Nil(t, payload)
	require.True(t, time.Since(start) >= 40*time.Millisecond)
}

func TestReceiverReadsPacketPayload(t *testing.T) {
	recv, err := NewReceiver(0, 500*time.Millisecond)
	require.NoError(t, err)
	defer recv.Close()

	conn, err := net.DialUDP("udp", nil, &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: recv.LocalPort()})
	require.NoError(t, err)
	defer conn.Close()

	packet := Packetize([]byte("hello"), 7)
	_, err = conn.Write(packet)
	require.NoError(t, err)

	payload, ok, err := recv.Read()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("hello"), payload)
}

func TestReceiverReadPacketYieldsSequenceNumber(t *testing.T) {
	recv, err := NewReceiver(0, 500*time.Millisecond)
	require.NoError(t, err)
	defer recv.Close()

	conn, err := net.DialUDP("udp", nil, &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: recv.LocalPort()})
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write(Packetize([]byte("frame"), 80))
	require.NoError(t, err)

	seq, payload, ok, err := recv.ReadPacket()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint16(80), seq)
	require.Equal(t, []byte("frame"), payload)
}
