// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package statemodel accumulates the directed multigraph of observed server
// state transitions and derives the rarity statistics fitness depends on.
package statemodel

import (
	"fmt"
	"strings"

	"github.com/google/statefuzz/pkg/message"
)

// StateTransition is one observed (source, triggering message, target)
// edge.
type StateTransition[K comparable, SK comparable, SV comparable, S comparable] struct {
	Source  S
	Message *message.Message[K, SK, SV]
	Target  S
}

// Model is the accumulated directed multigraph, keyed by source state. It
// grows monotonically and is never pruned: syzkaller's own corpus/signal
// similarly never forgets what it has observed.
type Model[K comparable, SK comparable, SV comparable, S comparable] struct {
	transitions map[S][]*StateTransition[K, SK, SV, S]
	targetCount map[S]int
	total       int

	// observed is every state parse_response has ever yielded, independent
	// of whether it ended up as a transition endpoint. A single-message
	// sequence has no previous state and so emits zero transitions (spec.md
	// §4.4), but its one response still witnesses a state that the
	// coverage term's denominator (NumStates) must count -- see spec.md §8
	// E1, which requires coverage=1.0 for exactly that case.
	observed map[S]bool
}

// New returns an empty state model.
func New[K comparable, SK comparable, SV comparable, S comparable]() *Model[K, SK, SV, S] {
	return &Model[K, SK, SV, S]{
		transitions: map[S][]*StateTransition[K, SK, SV, S]{},
		targetCount: map[S]int{},
		observed:    map[S]bool{},
	}
}

// Observe records that parse_response yielded s, whether or not a
// transition into or out of s was ever recorded.
func (m *Model[K, SK, SV, S]) Observe(s S) {
	m.observed[s] = true
}

// Add records a transition unless an exact (source, target, message-equal)
// triple is already present, maintaining invariant 2: no duplicate triples.
func (m *Model[K, SK, SV, S]) Add(t *StateTransition[K, SK, SV, S]) {
	m.observed[t.Source] = true
	m.observed[t.Target] = true
	for _, existing := range m.transitions[t.Source] {
		if existing.Target == t.Target && existing.Message.Equal(t.Message) {
			return
		}
	}
	m.transitions[t.Source] = append(m.transitions[t.Source], t)
	m.targetCount[t.Target]++
	m.total++
}

// States returns every state ever witnessed, either as a parsed response, a
// transition source, or a transition target.
func (m *Model[K, SK, SV, S]) States() []S {
	out := make([]S, 0, len(m.observed))
	for s := range m.observed {
		out = append(out, s)
	}
	return out
}

// NumStates is the unique-state count the fitness coverage term divides by.
func (m *Model[K, SK, SV, S]) NumStates() int {
	return len(m.States())
}

// Rarity returns the set of states whose share of all recorded target
// occurrences is strictly below threshold, recomputed fresh from the
// current transition set every call (spec.md §4.4: "recomputed every
// generation after the state-model update").
func (m *Model[K, SK, SV, S]) Rarity(threshold float64) map[S]bool {
	rare := map[S]bool{}
	if m.total == 0 {
		return rare
	}
	for s, count := range m.targetCount {
		share := float64(count) / float64(m.total)
		if share < threshold {
			rare[s] = true
		}
	}
	return rare
}

// Transitions returns every stored transition in an unspecified order --
// callers needing a stable order (tests, DOT emission) should sort the
// result themselves.
func (m *Model[K, SK, SV, S]) Transitions() []*StateTransition[K, SK, SV, S] {
	var all []*StateTransition[K, SK, SV, S]
	for _, ts := range m.transitions {
		all = append(all, ts...)
	}
	return all
}

// DOT renders the model as a directed-graph DSL description matching
// spec.md §6: pairs with both a forward and a reverse transition collapse
// to one bidirectional edge.
func (m *Model[K, SK, SV, S]) DOT(label func(S) string) string {
	type pairKey struct{ a, b string }
	forward := map[pairKey]bool{}
	for src, ts := range m.transitions {
		a := label(src)
		for _, t := range ts {
			forward[pairKey{a, label(t.Target)}] = true
		}
	}
	var b strings.Builder
	b.WriteString("digraph state_graph {\n")
	seenPair := map[pairKey]bool{}
	for k := range forward {
		if seenPair[k] || seenPair[pairKey{k.b, k.a}] {
			continue
		}
		seenPair[k] = true
		if forward[pairKey{k.b, k.a}] {
			fmt.Fprintf(&b, "  %q -> %q [dir=\"both\"];\n", k.a, k.b)
			seenPair[pairKey{k.b, k.a}] = true
		} else {
			fmt.Fprintf(&b, "  %q -> %q;\n", k.a, k.b)
		}
	}
	b.WriteString("}\n")
	return b.String()
}
