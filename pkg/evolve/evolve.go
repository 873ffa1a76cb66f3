// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package evolve implements the sequence-level mutation and crossover
// operators of spec.md §4.2, on top of an adapter's message-level
// operators and the shared message pool.
package evolve

import (
	"math/rand"

	"github.com/google/statefuzz/pkg/adapter"
	"github.com/google/statefuzz/pkg/message"
	"github.com/google/statefuzz/pkg/pool"
)

// RandomSequence builds a sequence of L adapter-random messages with L-1
// inter-message delays drawn uniformly in [1.0, 2.0).
func RandomSequence[K comparable, SK comparable, SV comparable, S comparable](
	rnd *rand.Rand, a adapter.Adapter[K, SK, SV, S], length int) *message.MessageSequence[K, SK, SV] {
	seq := message.NewSequence[K, SK, SV]()
	for i := 0; i < length; i++ {
		seq.Messages = append(seq.Messages, a.RandomMessage(rnd))
	}
	for i := 0; i < length-1; i++ {
		seq.Timings = append(seq.Timings, 1.0+rnd.Float64())
	}
	return seq
}

type seqOp int

const (
	opDelete seqOp = iota
	opInsert
	opShuffle
	opSubstitute
	opRetime
	numSeqOps
)

// MutateSequence chooses uniformly one of the five sequence-level operators,
// then independently walks the (possibly now-changed) messages and
// replaces each with its adapter-mutated form with probability
// messageMutationRate.
func MutateSequence[K comparable, SK comparable, SV comparable, S comparable](
	rnd *rand.Rand, a adapter.Adapter[K, SK, SV, S], seq *message.MessageSequence[K, SK, SV],
	p *pool.Pool[K, SK, SV], messageMutationRate float64) {
	switch seqOp(rnd.Intn(int(numSeqOps))) {
	case opDelete:
		deleteMessage(rnd, seq)
	case opInsert:
		insertMessage(rnd, a, seq, p)
	case opShuffle:
		shuffleMessages(rnd, seq)
	case opSubstitute:
		substituteMessage(rnd, a, seq, p)
	case opRetime:
		retime(rnd, seq)
	}
	for i, m := range seq.Messages {
		if rnd.Float64() < messageMutationRate {
			seq.Messages[i] = a.MutateMessage(rnd, m)
		}
	}
}

func deleteMessage[K comparable, SK comparable, SV comparable](rnd *rand.Rand, seq *message.MessageSequence[K, SK, SV]) {
	if len(seq.Messages) == 0 {
		return
	}
	idx := rnd.Intn(len(seq.Messages))
	seq.Messages = append(seq.Messages[:idx], seq.Messages[idx+1:]...)
	seq.FixTimings()
}

func pickMessage[K comparable, SK comparable, SV comparable, S comparable](
	rnd *rand.Rand, a adapter.Adapter[K, SK, SV, S], p *pool.Pool[K, SK, SV]) *message.Message[K, SK, SV] {
	if rnd.Intn(2) == 0 {
		return a.RandomMessage(rnd)
	}
	if m, ok := p.Random(rnd); ok {
		return m.Clone()
	}
	return a.RandomMessage(rnd)
}

func insertMessage[K comparable, SK comparable, SV comparable, S comparable](
	rnd *rand.Rand, a adapter.Adapter[K, SK, SV, S], seq *message.MessageSequence[K, SK, SV], p *pool.Pool[K, SK, SV]) {
	m := pickMessage(rnd, a, p)
	idx := rnd.Intn(len(seq.Messages) + 1)
	seq.Messages = append(seq.Messages[:idx], append([]*message.Message[K, SK, SV]{m}, seq.Messages[idx:]...)...)
	seq.FixTimings()
}

func shuffleMessages[K comparable, SK comparable, SV comparable](rnd *rand.Rand, seq *message.MessageSequence[K, SK, SV]) {
	rnd.Shuffle(len(seq.Messages), func(i, j int) {
		seq.Messages[i], seq.Messages[j] = seq.Messages[j], seq.Messages[i]
	})
}

func substituteMessage[K comparable, SK comparable, SV comparable, S comparable](
	rnd *rand.Rand, a adapter.Adapter[K, SK, SV, S], seq *message.MessageSequence[K, SK, SV], p *pool.Pool[K, SK, SV]) {
	if len(seq.Messages) == 0 {
		return
	}
	idx := rnd.Intn(len(seq.Messages))
	seq.Messages[idx] = pickMessage(rnd, a, p)
}

// minDelay is the floor retime clamps to, fixing the potential-negative-
// delay bug spec.md §9 flags in the original's retime operator.
const minDelay = 0.1

func retime[K comparable, SK comparable, SV comparable](rnd *rand.Rand, seq *message.MessageSequence[K, SK, SV]) {
	if len(seq.Timings) == 0 {
		return
	}
	idx := rnd.Intn(len(seq.Timings))
	lo := -seq.Timings[idx] + minDelay
	offset := lo + rnd.Float64()*(1.0-lo)
	seq.Timings[idx] += offset
	if seq.Timings[idx] < minDelay {
		seq.Timings[idx] = minDelay
	}
}

// CrossoverSequence performs the two-point, length-aligned sequence
// crossover of spec.md §4.2, returning two offspring with fitness reset.
func CrossoverSequence[K comparable, SK comparable, SV comparable, S comparable](
	rnd *rand.Rand, a adapter.Adapter[K, SK, SV, S],
	p1seq, p2seq *message.MessageSequence[K, SK, SV], messageCrossoverRate float64) (
	*message.MessageSequence[K, SK, SV], *message.MessageSequence[K, SK, SV]) {
	small, big := p1seq, p2seq
	if len(big.Messages) < len(small.Messages) {
		small, big = big, small
	}
	s := small.Clone()
	b := big.Clone()

	n := len(s.Messages)
	if n == 0 {
		s.Fitness, b.Fitness = 0, 0
		return s, b
	}
	p1 := rnd.Intn(n)
	p2 := p1 + rnd.Intn(n-p1)

	for i := p1; i <= p2; i++ {
		s.Messages[i], b.Messages[i] = b.Messages[i], s.Messages[i]
		if rnd.Float64() < messageCrossoverRate {
			s.Messages[i], b.Messages[i] = a.CrossoverMessages(rnd, s.Messages[i], b.Messages[i])
		}
	}
	for i := p1; i < p2 && i < len(s.Timings) && i < len(b.Timings); i++ {
		mean := (s.Timings[i] + b.Timings[i]) / 2
		s.Timings[i], b.Timings[i] = mean, mean
	}
	s.Fitness, b.Fitness = 0, 0
	return s, b
}
