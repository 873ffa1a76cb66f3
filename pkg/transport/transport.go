// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package transport is the thin byte-shuttling layer the fuzzer core talks
// to: connect, send, receive-with-timeout, shutdown, in both a
// connection-oriented (stream) and a datagram form, per spec.md §6.
package transport

import (
	"bufio"
	"fmt"
	"net"
	"time"
)

// ReadTimeout is the fixed 5-second receive timeout spec.md §4.3/§6 require.
const ReadTimeout = 5 * time.Second

// datagramSize is the maximum UDP datagram spec.md §6 reads in one call.
const datagramSize = 1024

// Transport is the uniform contract every execution step drives a sequence
// through. Each sequence execution opens and owns a fresh instance.
type Transport interface {
	Connect() error
	Send(data []byte) error
	// Receive blocks for up to ReadTimeout; a timeout returns a nil error
	// and an empty slice, matching spec.md §4.3's "record an empty
	// response" contract rather than surfacing a distinct timeout error.
	Receive() ([]byte, error)
	Shutdown() error
}

// Stream is a TCP transport. Reads are line-terminated: up to and including
// the next '\n', or until the read timeout elapses.
type Stream struct {
	addr string
	conn net.Conn
	r    *bufio.Reader
}

// NewStream returns an unconnected stream transport for host:port.
func NewStream(addr string) *Stream { return &Stream{addr: addr} }

func (s *Stream) Connect() error {
	conn, err := net.Dial("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("tcp connect to %s: %w", s.addr, err)
	}
	s.conn = conn
	s.r = bufio.NewReader(conn)
	return nil
}

func (s *Stream) Send(data []byte) error {
	_, err := s.conn.Write(data)
	return err
}

func (s *Stream) Receive() ([]byte, error) {
	s.conn.SetReadDeadline(time.Now().Add(ReadTimeout))
	line, err := s.r.ReadBytes('\n')
	if err != nil {
		var netErr net.Error
		if ok := asNetError(err, &netErr); ok && netErr.Timeout() {
			return nil, nil
		}
		if len(line) > 0 {
			return line, nil
		}
		return nil, nil
	}
	return line, nil
}

func (s *Stream) Shutdown() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

func asNetError(err error, target *net.Error) bool {
	if ne, ok := err.(net.Error); ok {
		*target = ne
		return true
	}
	return false
}

// Datagram is a UDP transport. Each Receive reads one datagram of up to
// 1024 bytes.
type Datagram struct {
	addr string
	conn net.Conn
}

// NewDatagram returns an unconnected datagram transport for host:port.
func NewDatagram(addr string) *Datagram { return &Datagram{addr: addr} }

func (d *Datagram) Connect() error {
	conn, err := net.Dial("udp", d.addr)
	if err != nil {
		return fmt.Errorf("udp connect to %s: %w", d.addr, err)
	}
	d.conn = conn
	return nil
}

func (d *Datagram) Send(data []byte) error {
	_, err := d.conn.Write(data)
	return err
}

func (d *Datagram) Receive() ([]byte, error) {
	d.conn.SetReadDeadline(time.Now().Add(ReadTimeout))
	buf := make([]byte, datagramSize)
	n, err := d.conn.Read(buf)
	if err != nil {
		var netErr net.Error
		if ok := asNetError(err, &netErr); ok && netErr.Timeout() {
			return nil, nil
		}
		return nil, nil
	}
	return buf[:n], nil
}

// Shutdown closes the local UDP socket. UDP has no connection to tear down,
// so nothing is sent to the peer.
func (d *Datagram) Shutdown() error {
	if d.conn != nil {
		return d.conn.Close()
	}
	return nil
}
