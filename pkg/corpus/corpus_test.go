// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package corpus

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/google/statefuzz/pkg/message"
)

func seqWithFitness(f float64) *message.MessageSequence[int, int, int] {
	s := message.NewSequence[int, int, int]()
	s.Fitness = f
	return s
}

func TestTournamentSelectPreservesCorpusSize(t *testing.T) {
	c := New[int, int, int]()
	for i := 0; i < 7; i++ {
		c.Members = append(c.Members, seqWithFitness(float64(i)))
	}
	rnd := rand.New(rand.NewSource(1))

	pool := TournamentSelect(rnd, c, 0.3)
	assert.Len(t, pool, 7, "invariant 4: selection preserves corpus size")
}

func TestTournamentSelectClampsSizeToOne(t *testing.T) {
	c := New[int, int, int]()
	for i := 0; i < 20; i++ {
		c.Members = append(c.Members, seqWithFitness(float64(i)))
	}
	rnd := rand.New(rand.NewSource(1))

	// A tiny selection pressure would round/truncate to 0; spec.md §9's
	// fix clamps the tournament size to >= 1 rather than selecting nothing.
	pool := TournamentSelect(rnd, c, 0.001)
	assert.Len(t, pool, 20)
}

func TestTournamentSelectEmptyCorpus(t *testing.T) {
	c := New[int, int, int]()
	rnd := rand.New(rand.NewSource(1))
	assert.Nil(t, TournamentSelect(rnd, c, 0.5))
}

func TestSummarizeRecomputedFromMembers(t *testing.T) {
	c := New[int, int, int]()
	c.Members = []*message.MessageSequence[int, int, int]{
		seqWithFitness(1), seqWithFitness(5), seqWithFitness(3),
	}
	f := c.Summarize()
	assert.Equal(t, Fitness{Min: 1, Mean: 3, Max: 5}, f)
}

func TestSummarizeEmptyCorpus(t *testing.T) {
	c := New[int, int, int]()
	assert.Equal(t, Fitness{}, c.Summarize())
}

func TestTopKOrdersByFitnessDescending(t *testing.T) {
	c := New[int, int, int]()
	for _, f := range []float64{3, 1, 5, 2, 4} {
		c.Members = append(c.Members, seqWithFitness(f))
	}
	top := c.TopK(3)
	require.Len(t, top, 3)
	assert.Equal(t, []float64{5, 4, 3}, []float64{top[0].Fitness, top[1].Fitness, top[2].Fitness})
}

func TestTopKBoundedByCorpusSize(t *testing.T) {
	c := New[int, int, int]()
	c.Members = []*message.MessageSequence[int, int, int]{seqWithFitness(1)}
	assert.Len(t, c.TopK(10), 1)
	assert.Nil(t, c.TopK(0))
}
