// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package capture isolates packet-capture decoding behind a small interface
// so that the fuzzer core never links against a packet-decoding library
// directly. Protocol adapters call into this package from their
// ParseCapture implementation.
package capture

import (
	"bytes"
	"fmt"
	"io"
	"net"
	"os"
	"sort"
	"strconv"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/google/gopacket/reassembly"
	"github.com/ulikunitz/xz"
	"golang.org/x/sync/errgroup"
)

// Payload is one reassembled chunk of application-layer bytes addressed to
// the configured server socket, tagged with the transport session it
// belongs to so the adapter can group payloads back into sequences.
type Payload struct {
	SessionID string
	Data      []byte
}

// ReadSessions parses a pcap or pcapng file (transparently decompressing a
// trailing .xz suffix) and returns one Payload per TCP session, holding the
// reassembled bytes whose destination matches serverSocket ("host:port") in
// stream order. Payloads are ordered by SessionID. UDP capture is not
// supported by this helper; adapters targeting datagram protocols are
// expected to read session framing directly from their own fixtures.
func ReadSessions(path, serverSocket string) ([]Payload, error) {
	host, portStr, err := net.SplitHostPort(serverSocket)
	if err != nil {
		return nil, fmt.Errorf("invalid server socket %q: %w", serverSocket, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("invalid server port %q: %w", portStr, err)
	}

	r, err := openCaptureReader(path)
	if err != nil {
		return nil, fmt.Errorf("opening capture %q: %w", path, err)
	}
	defer r.Close()

	assembler, factory := newAssembler(host, port)
	src := gopacket.NewPacketSource(r, r.LinkType())
	src.NoCopy = true
	for packet := range src.Packets() {
		netLayer := packet.NetworkLayer()
		tcpLayer := packet.Layer(layers.LayerTypeTCP)
		if netLayer == nil || tcpLayer == nil {
			// Malformed/unsupported packet: skipped, ingestion continues.
			continue
		}
		tcp, _ := tcpLayer.(*layers.TCP)
		assembler.AssembleWithTimestamp(netLayer.NetworkFlow(), tcp, packet.Metadata().Timestamp)
	}
	assembler.FlushAll()
	return factory.sorted(), nil
}

// pcapReader abstracts over pcapgo's two file formats.
type pcapReader interface {
	gopacket.PacketDataSource
	LinkType() layers.LinkType
	Close() error
}

type readerCloser struct {
	gopacket.PacketDataSource
	linkType layers.LinkType
	closer   io.Closer
}

func (r *readerCloser) LinkType() layers.LinkType { return r.linkType }
func (r *readerCloser) Close() error              { return r.closer.Close() }

func openCaptureReader(path string) (pcapReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	var raw io.Reader = f
	if len(path) > 3 && path[len(path)-3:] == ".xz" {
		xr, err := xz.NewReader(f)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("xz decompress: %w", err)
		}
		raw = xr
	}

	magic := make([]byte, 4)
	if _, err := io.ReadFull(raw, magic); err != nil {
		f.Close()
		return nil, fmt.Errorf("reading capture header: %w", err)
	}
	raw = io.MultiReader(bytes.NewReader(magic), raw)
	if bytes.Equal(magic, []byte{0x0a, 0x0d, 0x0d, 0x0a}) {
		ngr, err := pcapgo.NewNgReader(raw, pcapgo.DefaultNgReaderOptions)
		if err != nil {
			f.Close()
			return nil, err
		}
		return &readerCloser{PacketDataSource: ngr, linkType: ngr.LinkType(), closer: f}, nil
	}
	r, err := pcapgo.NewReader(raw)
	if err != nil {
		f.Close()
		return nil, err
	}
	return &readerCloser{PacketDataSource: r, linkType: r.LinkType(), closer: f}, nil
}

// streamFactory assembles TCP streams and keeps only the bytes flowing
// toward host:port, keyed by the 4-tuple so concurrent sessions in one
// capture stay distinct.
type streamFactory struct {
	host string
	port int

	mu       chan struct{} // binary semaphore guarding sessions
	sessions map[string]*bytes.Buffer
	order    []string
}

func newAssembler(host string, port int) (*reassembly.Assembler, *streamFactory) {
	factory := &streamFactory{
		host:     host,
		port:     port,
		mu:       make(chan struct{}, 1),
		sessions: map[string]*bytes.Buffer{},
	}
	pool := reassembly.NewStreamPool(factory)
	return reassembly.NewAssembler(pool), factory
}

func (f *streamFactory) New(net, transport gopacket.Flow, tcp *layers.TCP, _ reassembly.AssemblerContext) reassembly.Stream {
	return &tcpStream{factory: f, net: net, transport: transport}
}

func (f *streamFactory) record(sessionID string, data []byte) {
	f.mu <- struct{}{}
	defer func() { <-f.mu }()
	buf, ok := f.sessions[sessionID]
	if !ok {
		buf = &bytes.Buffer{}
		f.sessions[sessionID] = buf
		f.order = append(f.order, sessionID)
	}
	buf.Write(data)
}

func (f *streamFactory) sorted() []Payload {
	f.mu <- struct{}{}
	defer func() { <-f.mu }()
	ids := append([]string(nil), f.order...)
	sort.Strings(ids)
	out := make([]Payload, 0, len(ids))
	for _, id := range ids {
		out = append(out, Payload{SessionID: id, Data: f.sessions[id].Bytes()})
	}
	return out
}

// tcpStream implements reassembly.Stream for one TCP connection, dropping
// everything except the direction addressed at the configured server.
type tcpStream struct {
	factory   *streamFactory
	net       gopacket.Flow
	transport gopacket.Flow
}

func (s *tcpStream) Accept(tcp *layers.TCP, _ gopacket.CaptureInfo, dir reassembly.TCPFlowDirection,
	_ reassembly.Sequence, _ *bool, _ reassembly.AssemblerContext) bool {
	return true
}

func (s *tcpStream) ReassembledSG(sg reassembly.ScatterGather, _ reassembly.AssemblerContext) {
	length, _ := sg.Lengths()
	if length == 0 {
		return
	}
	data := sg.Fetch(length)
	dir, _, _, _ := sg.Info()
	dstIP, dstPort := s.net.Dst(), s.transport.Dst()
	if dir == reassembly.TCPDirServerToClient {
		dstIP, dstPort = s.net.Src(), s.transport.Src()
	}
	if dstIP.String() != s.factory.host || dstPort.String() != strconv.Itoa(s.factory.port) {
		return
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	s.factory.record(s.net.String()+"/"+s.transport.String(), cp)
}

func (s *tcpStream) ReassemblyComplete(_ reassembly.AssemblerContext) bool { return true }

// ReadSessionsConcurrent parses multiple independent capture files in
// parallel, returning each file's sessions at the index of its path. Every
// file is parsed to completion; if any of them fails, the first error is
// returned and no results are.
func ReadSessionsConcurrent(paths []string, serverSocket string) ([][]Payload, error) {
	results := make([][]Payload, len(paths))
	var g errgroup.Group
	for i, p := range paths {
		i, p := i, p
		g.Go(func() error {
			sessions, err := ReadSessions(p, serverSocket)
			if err != nil {
				return fmt.Errorf("%s: %w", p, err)
			}
			results[i] = sessions
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
