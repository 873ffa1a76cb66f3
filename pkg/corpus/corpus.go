// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package corpus holds the fuzzer's current population of message
// sequences and implements tournament selection over it, per spec.md §4.6.
package corpus

import (
	"math/rand"

	"github.com/google/statefuzz/pkg/message"
)

// Corpus is the current population. Members are pointers so that in-place
// mutation (as spec.md §4.7 step 9 requires) is visible without the caller
// re-inserting them.
type Corpus[K comparable, SK comparable, SV comparable] struct {
	Members []*message.MessageSequence[K, SK, SV]
}

// New returns an empty corpus.
func New[K comparable, SK comparable, SV comparable]() *Corpus[K, SK, SV] {
	return &Corpus[K, SK, SV]{}
}

// Len reports the corpus size.
func (c *Corpus[K, SK, SV]) Len() int { return len(c.Members) }

// TournamentSelect runs len(Members) independent tournaments of size
// k = round(selectionPressure * len(Members)), clamped to >= 1 (the fixed
// truncation-to-zero bug noted in spec.md §9), and returns the resulting
// mating pool. Each tournament is a random permutation of corpus indices
// truncated to k; the winner is the highest-fitness member, ties broken by
// position in the truncated list.
func TournamentSelect[K comparable, SK comparable, SV comparable](
	rnd *rand.Rand, c *Corpus[K, SK, SV], selectionPressure float64) []*message.MessageSequence[K, SK, SV] {
	n := len(c.Members)
	if n == 0 {
		return nil
	}
	k := int(selectionPressure*float64(n) + 0.5)
	if k < 1 {
		k = 1
	}
	if k > n {
		k = n
	}
	pool := make([]*message.MessageSequence[K, SK, SV], 0, n)
	for i := 0; i < n; i++ {
		perm := rnd.Perm(n)[:k]
		best := perm[0]
		for _, idx := range perm[1:] {
			if c.Members[idx].Fitness > c.Members[best].Fitness {
				best = idx
			}
		}
		pool = append(pool, c.Members[best])
	}
	return pool
}

// Fitness summarizes a generation's corpus fitness as (min, mean, max),
// recomputed directly from the members (invariant 5).
type Fitness struct {
	Min, Mean, Max float64
}

// Summarize computes (min, mean, max) fitness over the corpus. An empty
// corpus reports all-zero, the documented neutral value.
func (c *Corpus[K, SK, SV]) Summarize() Fitness {
	if len(c.Members) == 0 {
		return Fitness{}
	}
	sum := 0.0
	f := Fitness{Min: c.Members[0].Fitness, Max: c.Members[0].Fitness}
	for _, m := range c.Members {
		if m.Fitness < f.Min {
			f.Min = m.Fitness
		}
		if m.Fitness > f.Max {
			f.Max = m.Fitness
		}
		sum += m.Fitness
	}
	f.Mean = sum / float64(len(c.Members))
	return f
}
