// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package adapter declares the protocol adapter contract: the single point
// where the generic corpus-evolution core meets one concrete application
// protocol. pkg/adapter/smtp is the reference implementation.
package adapter

import (
	"math/rand"

	"github.com/google/statefuzz/pkg/message"
)

// Adapter is polymorphic over four associated types -- MessageKind,
// SectionKey, SectionValue, ServerState -- and supplies every
// protocol-specific operation the core needs: synthesis, tolerant parsing,
// mutation, crossover, response interpretation, and capture ingestion.
//
// Implementers are expected to be value types (or thin pointer wrappers)
// carrying no mutable state of their own; all mutable state lives in the
// Client. Go interfaces plus one struct per protocol, not an inheritance
// hierarchy, is the intended shape -- tagged variants are fine when the
// protocol's kind set is fixed at compile time.
type Adapter[K comparable, SK comparable, SV comparable, S comparable] interface {
	// RandomMessage synthesizes a uniform-random, protocol-valid message.
	RandomMessage(rnd *rand.Rand) *message.Message[K, SK, SV]

	// BuildMessage is a total, tolerant parse: it never fails. Malformed or
	// truncated input is padded/truncated and classified under a
	// best-effort fallback kind.
	BuildMessage(data []byte) *message.Message[K, SK, SV]

	// MutateMessage returns a mutated message, internally choosing between
	// a byte-level and a section-level strategy.
	MutateMessage(rnd *rand.Rand, m *message.Message[K, SK, SV]) *message.Message[K, SK, SV]

	// CrossoverMessages returns two offspring, internally choosing between
	// byte-level two-point crossover and section-key swap.
	CrossoverMessages(rnd *rand.Rand, a, b *message.Message[K, SK, SV]) (
		*message.Message[K, SK, SV], *message.Message[K, SK, SV])

	// ParseResponse is total: malformed responses map to a canonical
	// fallback state rather than an error.
	ParseResponse(resp []byte) S

	// ParseCapture reads a capture file and groups payloads addressed to
	// serverSocket into seed sequences. The grouping policy is
	// protocol-specific.
	ParseCapture(path, serverSocket string) ([]*message.MessageSequence[K, SK, SV], error)
}
