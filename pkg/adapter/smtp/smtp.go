// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package smtp is the reference protocol adapter: a text-based mail
// submission protocol subset (HELO/EHLO, MAIL FROM, RCPT TO, DATA, RSET,
// QUIT, NOOP), pinning down the adapter contract the way a mail-like
// protocol was used to do in the original prototype this system is modeled
// on.
package smtp

import (
	"bytes"
	"fmt"
	"math/rand"
	"strconv"
	"strings"

	"github.com/google/statefuzz/pkg/capture"
	"github.com/google/statefuzz/pkg/message"
)

// MessageKind enumerates the recognized SMTP-like commands, plus UNKNOWN,
// the tolerant fallback kind build_message uses for anything it can't
// classify.
type MessageKind int

const (
	HELO MessageKind = iota
	EHLO
	MAILFROM
	RCPTTO
	DATA
	DATABODY
	RSET
	QUIT
	NOOP
	UNKNOWN
)

func (k MessageKind) command() string {
	switch k {
	case HELO:
		return "HELO"
	case EHLO:
		return "EHLO"
	case MAILFROM:
		return "MAIL FROM"
	case RCPTTO:
		return "RCPT TO"
	case DATA:
		return "DATA"
	case RSET:
		return "RSET"
	case QUIT:
		return "QUIT"
	case NOOP:
		return "NOOP"
	default:
		return "NOOP"
	}
}

var commandKinds = []MessageKind{HELO, EHLO, MAILFROM, RCPTTO, DATA, RSET, QUIT, NOOP}

// SectionKey names the decomposed parts of an SMTP-like message.
type SectionKey int

const (
	Command SectionKey = iota
	Domain
	EmailAddress
	PlainText
	Parameter // the ESMTP SIZE= extension parameter on MAIL FROM
)

// SectionValue is a small sum type: either a string payload or a scalar
// length-ish field, matching spec.md's "scale a length field" mutation.
type SectionValue struct {
	Str string
	Int int
	// IsInt distinguishes the two payload kinds; Go has no tagged-union
	// literal, so this flag plays that role.
	IsInt bool
}

func strVal(s string) SectionValue  { return SectionValue{Str: s} }
func intVal(n int) SectionValue     { return SectionValue{Int: n, IsInt: true} }

// ServerState is the adapter's abstract server state: response code plus
// text. Equality is code-only by default, matching an SMTP client's usual
// interpretation that "250 OK" and "250 Queued" are the same outcome.
type ServerState struct {
	Code int
	Text string
}

// Equal implements the adapter-defined equality spec.md requires: two
// states are equal iff the adapter says so.
func (s ServerState) Equal(o ServerState) bool {
	return s.Code == o.Code
}

const unknownCode = 0

// Unknown is the canonical fallback state for malformed/unparsed responses.
var Unknown = ServerState{Code: unknownCode, Text: "unknown"}

// Adapter is the reference SMTP-subset protocol adapter.
type Adapter struct {
	domains  []string
	mailbox  []string
}

// New returns an adapter pre-seeded with a small pool of plausible domains
// and mailbox names for random_message to draw from.
func New() *Adapter {
	return &Adapter{
		domains: []string{"a.example", "mail.example", "b.example"},
		mailbox: []string{"alice@a.example", "bob@b.example", "carol@mail.example"},
	}
}

type Message = message.Message[MessageKind, SectionKey, SectionValue]
type Sequence = message.MessageSequence[MessageKind, SectionKey, SectionValue]

// RandomMessage synthesizes a uniform-random, protocol-valid command.
func (a *Adapter) RandomMessage(rnd *rand.Rand) *Message {
	kind := commandKinds[rnd.Intn(len(commandKinds))]
	return a.build(kind, a.randomArgument(rnd, kind))
}

func (a *Adapter) randomArgument(rnd *rand.Rand, kind MessageKind) string {
	switch kind {
	case HELO, EHLO:
		return a.domains[rnd.Intn(len(a.domains))]
	case MAILFROM, RCPTTO:
		return a.mailbox[rnd.Intn(len(a.mailbox))]
	case DATA:
		return ""
	default:
		return ""
	}
}

// build renders a command+argument pair into wire bytes and a consistent
// section map, the shared tail of random/build/mutate.
func (a *Adapter) build(kind MessageKind, arg string) *Message {
	var data []byte
	sections := map[SectionKey]SectionValue{Command: strVal(kind.command())}
	switch kind {
	case HELO, EHLO:
		data = []byte(fmt.Sprintf("%s %s\r\n", kind.command(), arg))
		sections[Domain] = strVal(arg)
	case MAILFROM:
		size := 1000 + len(arg)*100
		data = []byte(fmt.Sprintf("MAIL FROM:<%s> SIZE=%d\r\n", arg, size))
		sections[EmailAddress] = strVal(arg)
		sections[Parameter] = intVal(size)
	case RCPTTO:
		data = []byte(fmt.Sprintf("RCPT TO:<%s>\r\n", arg))
		sections[EmailAddress] = strVal(arg)
	case DATA:
		data = []byte("DATA\r\n")
	case RSET:
		data = []byte("RSET\r\n")
	case QUIT:
		data = []byte("QUIT\r\n")
	default:
		data = []byte("NOOP\r\n")
	}
	return message.New(data, kind, sections)
}

// BuildMessage tolerantly parses raw bytes: it never fails. Unrecognized or
// truncated input becomes UNKNOWN with the raw text stashed under
// PlainText, per spec.md §4.1's required fallback.
func (a *Adapter) BuildMessage(data []byte) *Message {
	line := strings.TrimRight(string(data), "\r\n")
	upper := strings.ToUpper(line)
	switch {
	case strings.HasPrefix(upper, "HELO "):
		return a.build(HELO, strings.TrimSpace(line[5:]))
	case strings.HasPrefix(upper, "EHLO "):
		return a.build(EHLO, strings.TrimSpace(line[5:]))
	case strings.HasPrefix(upper, "MAIL FROM:"):
		return a.build(MAILFROM, extractAddress(line[len("MAIL FROM:"):]))
	case strings.HasPrefix(upper, "RCPT TO:"):
		return a.build(RCPTTO, extractAddress(line[len("RCPT TO:"):]))
	case upper == "DATA":
		return a.build(DATA, "")
	case upper == "RSET":
		return a.build(RSET, "")
	case upper == "QUIT":
		return a.build(QUIT, "")
	case upper == "NOOP":
		return a.build(NOOP, "")
	default:
		return message.New(append([]byte(nil), data...), UNKNOWN, map[SectionKey]SectionValue{
			Command:   strVal("UNKNOWN"),
			PlainText: strVal(line),
		})
	}
}

func extractAddress(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "<")
	if i := strings.IndexByte(s, '>'); i >= 0 {
		s = s[:i]
	}
	return s
}

// MutateMessage picks uniformly between byte-level and section-level
// mutation, per spec.md §4.1.
func (a *Adapter) MutateMessage(rnd *rand.Rand, m *Message) *Message {
	if rnd.Intn(2) == 0 {
		return a.mutateBytes(rnd, m)
	}
	return a.mutateSection(rnd, m)
}

func (a *Adapter) mutateBytes(rnd *rand.Rand, m *Message) *Message {
	data := append([]byte(nil), m.Data...)
	if len(data) == 0 {
		data = []byte{'\r', '\n'}
	}
	switch rnd.Intn(4) {
	case 0: // substitute
		data[rnd.Intn(len(data))] = byte(rnd.Intn(256))
	case 1: // insert
		idx := rnd.Intn(len(data) + 1)
		b := byte(rnd.Intn(256))
		data = append(data[:idx], append([]byte{b}, data[idx:]...)...)
	case 2: // delete
		if len(data) > 1 {
			idx := rnd.Intn(len(data))
			data = append(data[:idx], data[idx+1:]...)
		}
	case 3: // swap
		if len(data) > 1 {
			i, j := rnd.Intn(len(data)), rnd.Intn(len(data))
			data[i], data[j] = data[j], data[i]
		}
	}
	return a.BuildMessage(data)
}

func (a *Adapter) mutateSection(rnd *rand.Rand, m *Message) *Message {
	switch rnd.Intn(2) {
	case 0:
		// Replace the command with a different legal command, keeping the
		// argument shape if the new kind still takes one.
		newKind := commandKinds[rnd.Intn(len(commandKinds))]
		for newKind == m.Kind {
			newKind = commandKinds[rnd.Intn(len(commandKinds))]
		}
		arg := ""
		if v, ok := m.Sections[Domain]; ok {
			arg = v.Str
		} else if v, ok := m.Sections[EmailAddress]; ok {
			arg = v.Str
		}
		if arg == "" {
			arg = a.randomArgument(rnd, newKind)
		}
		return a.build(newKind, arg)
	default:
		// Flip a section value: scale a length-ish field, or replace a
		// character in a string field with a non-ASCII byte.
		m2 := m.Clone()
		for k, v := range m2.Sections {
			if k == Command {
				// The command tag drives reserialize's dispatch and
				// build_message's classification; flipping characters in
				// it would desync Kind from Data instead of just mutating
				// a field value.
				continue
			}
			if v.IsInt {
				scale := 2 + rnd.Intn(9)
				v.Int *= scale
				m2.Sections[k] = v
				continue
			}
			if v.Str == "" {
				continue
			}
			runes := []byte(v.Str)
			idx := rnd.Intn(len(runes))
			runes[idx] = byte(0x80 + rnd.Intn(0x80))
			v.Str = string(runes)
			m2.Sections[k] = v
		}
		return a.reserialize(m2)
	}
}

// reserialize rebuilds wire bytes by concatenating section bytes in the
// protocol's required order, the section-level mutation/crossover tail.
func (a *Adapter) reserialize(m *Message) *Message {
	cmd := "NOOP"
	if v, ok := m.Sections[Command]; ok {
		cmd = v.Str
	}
	switch cmd {
	case "HELO", "EHLO":
		arg := m.Sections[Domain].Str
		m.Data = []byte(fmt.Sprintf("%s %s\r\n", cmd, arg))
	case "MAIL FROM":
		size := m.Sections[Parameter].Int
		m.Data = []byte(fmt.Sprintf("MAIL FROM:<%s> SIZE=%d\r\n", m.Sections[EmailAddress].Str, size))
	case "RCPT TO":
		m.Data = []byte(fmt.Sprintf("RCPT TO:<%s>\r\n", m.Sections[EmailAddress].Str))
	default:
		m.Data = []byte(cmd + "\r\n")
	}
	return m
}

// CrossoverMessages picks uniformly between byte-level two-point crossover
// and section-key swap, per spec.md §4.1.
func (a *Adapter) CrossoverMessages(rnd *rand.Rand, x, y *Message) (*Message, *Message) {
	if rnd.Intn(2) == 0 {
		return a.crossoverBytes(rnd, x, y)
	}
	return a.crossoverSections(rnd, x, y)
}

func (a *Adapter) crossoverBytes(rnd *rand.Rand, x, y *Message) (*Message, *Message) {
	shorter := len(x.Data)
	if len(y.Data) < shorter {
		shorter = len(y.Data)
	}
	if shorter < 2 {
		return a.BuildMessage(x.Data), a.BuildMessage(y.Data)
	}
	p1 := rnd.Intn(shorter)
	p2 := p1 + rnd.Intn(shorter-p1)
	xd := append([]byte(nil), x.Data...)
	yd := append([]byte(nil), y.Data...)
	for i := p1; i <= p2; i++ {
		xd[i], yd[i] = yd[i], xd[i]
	}
	return a.BuildMessage(xd), a.BuildMessage(yd)
}

func (a *Adapter) crossoverSections(rnd *rand.Rand, x, y *Message) (*Message, *Message) {
	if x.Kind != y.Kind {
		return x.Clone(), y.Clone()
	}
	x2, y2 := x.Clone(), y.Clone()
	for key := range x2.Sections {
		if _, ok := y2.Sections[key]; !ok {
			continue
		}
		if rnd.Intn(2) == 0 {
			x2.Sections[key], y2.Sections[key] = y2.Sections[key], x2.Sections[key]
		}
	}
	return a.reserialize(x2), a.reserialize(y2)
}

// ParseResponse is total: well-formed "NNN text" lines map to their code;
// anything else maps to the canonical Unknown state. Text is deliberately
// left blank for recognized codes: ServerState is used directly as a
// comparable map key throughout pkg/statemodel, so leaving Text out of
// every non-Unknown state is what makes two "250 OK" and "250 Queued"
// responses compare equal -- the code-only equality spec.md calls for.
func (a *Adapter) ParseResponse(resp []byte) ServerState {
	line := strings.TrimRight(string(resp), "\r\n")
	if len(line) < 3 {
		return Unknown
	}
	code, err := strconv.Atoi(line[:3])
	if err != nil {
		return Unknown
	}
	return ServerState{Code: code}
}

// ParseCapture reads a capture file via pkg/capture and groups the
// resulting payloads into sequences, starting a new sequence at every
// occurrence of MAIL FROM, per spec.md §4.1's example grouping policy.
func (a *Adapter) ParseCapture(path, serverSocket string) ([]*Sequence, error) {
	payloads, err := capture.ReadSessions(path, serverSocket)
	if err != nil {
		return nil, err
	}
	var sequences []*Sequence
	var cur *Sequence
	for _, p := range payloads {
		for _, line := range bytes.Split(p.Data, []byte("\n")) {
			if len(bytes.TrimSpace(line)) == 0 {
				continue
			}
			m := a.BuildMessage(append(line, '\n'))
			if m.Kind == MAILFROM || cur == nil {
				cur = message.NewSequence[MessageKind, SectionKey, SectionValue]()
				sequences = append(sequences, cur)
			}
			cur.Messages = append(cur.Messages, m)
			cur.FixTimings()
		}
	}
	return sequences, nil
}
