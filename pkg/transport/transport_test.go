// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package transport

import (
	"bufio"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamSendReceiveRoundTrip(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		line, err := bufio.NewReader(conn).ReadString('\n')
		if err != nil {
			return
		}
		conn.Write([]byte("250 " + line))
	}()

	s := NewStream(ln.Addr().String())
	require.NoError(t, s.Connect())
	defer s.Shutdown()

	require.NoError(t, s.Send([]byte("HELO a.example\r\n")))
	resp, err := s.Receive()
	require.NoError(t, err)
	assert.Equal(t, "250 HELO a.example\r\n", string(resp))
}

func TestStreamReceiveTimesOutWithNilNil(t *testing.T) {
	if testing.Short() {
		t.Skip("waits out the full 5-second read timeout")
	}
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	connCh := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			connCh <- conn
		}
	}()

	s := NewStream(ln.Addr().String())
	require.NoError(t, s.Connect())
	defer s.Shutdown()

	// The server accepts the connection but never writes a response, so
	// Receive must block for the full ReadTimeout and then report it as a
	// (nil, nil) empty response rather than an error.
	conn := <-connCh
	defer conn.Close()

	resp, err := s.Receive()
	assert.NoError(t, err)
	assert.Empty(t, resp)
}

func TestDatagramSendReceiveRoundTrip(t *testing.T) {
	serverConn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	defer serverConn.Close()

	go func() {
		buf := make([]byte, 1024)
		n, addr, err := serverConn.ReadFromUDP(buf)
		if err != nil {
			return
		}
		serverConn.WriteToUDP(append([]byte("ack:"), buf[:n]...), addr)
	}()

	d := NewDatagram(serverConn.LocalAddr().String())
	require.NoError(t, d.Connect())
	defer d.Shutdown()

	require.NoError(t, d.Send([]byte("ping")))
	resp, err := d.Receive()
	require.NoError(t, err)
	assert.Equal(t, "ack:ping", string(resp))
}
