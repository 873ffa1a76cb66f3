// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package pool implements the bounded MessagePool: a cache of recently used
// messages that sequence mutation draws from, modeled on the bounded,
// randomly-evicting progSelector in the teacher's pkg/corpus/selection.go,
// simplified to uniform eviction since the pool carries no per-entry
// signal weighting.
package pool

import (
	"math/rand"

	"github.com/google/statefuzz/pkg/message"
)

// Pool is a flat, capacity-bounded collection of messages. A zero-capacity
// pool is permitted and simply never accepts an entry.
type Pool[K comparable, SK comparable, SV comparable] struct {
	capacity int
	items    []*message.Message[K, SK, SV]
}

// New returns an empty pool with the given capacity.
func New[K comparable, SK comparable, SV comparable](capacity int) *Pool[K, SK, SV] {
	return &Pool[K, SK, SV]{capacity: capacity}
}

// Add appends m, evicting a uniformly random existing entry first if the
// pool is already at capacity. A size-zero pool short-circuits without
// adding anything.
func (p *Pool[K, SK, SV]) Add(rnd *rand.Rand, m *message.Message[K, SK, SV]) {
	if p.capacity <= 0 {
		return
	}
	if len(p.items) >= p.capacity {
		idx := rnd.Intn(len(p.items))
		p.items[idx] = m
		return
	}
	p.items = append(p.items, m)
}

// Random returns a uniformly random entry and true, or nil, false if the
// pool is empty -- callers are expected to fall back to adapter-random
// synthesis in that case (spec.md §4.2's insert/substitute operators).
func (p *Pool[K, SK, SV]) Random(rnd *rand.Rand) (*message.Message[K, SK, SV], bool) {
	if len(p.items) == 0 {
		return nil, false
	}
	return p.items[rnd.Intn(len(p.items))], true
}

// Len reports the current number of entries.
func (p *Pool[K, SK, SV]) Len() int { return len(p.items) }
