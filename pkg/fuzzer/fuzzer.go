// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package fuzzer owns the generation loop: execute, trace, infer, score,
// select, recombine, mutate, per spec.md §4.7. It is the Client the
// hyperparameter tuner treats as an opaque evaluate()-returning oracle.
package fuzzer

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/google/statefuzz/pkg/adapter"
	"github.com/google/statefuzz/pkg/corpus"
	"github.com/google/statefuzz/pkg/evolve"
	"github.com/google/statefuzz/pkg/log"
	"github.com/google/statefuzz/pkg/message"
	"github.com/google/statefuzz/pkg/pool"
	"github.com/google/statefuzz/pkg/stats"
	"github.com/google/statefuzz/pkg/statemodel"
	"github.com/google/statefuzz/pkg/transport"
)

// fatalf logs and wraps a fatal error, the only kind that aborts Run
// (spec.md §7: transport connect failure). logf is the non-fatal
// counterpart used for every other recognized error in the taxonomy.
func fatalf(format string, args ...interface{}) error {
	err := fmt.Errorf(format, args...)
	log.Logf(0, "fatal: %v", err)
	return err
}

func logf(level int, format string, args ...interface{}) {
	log.Logf(level, format, args...)
}

// interaction is one (sent message, received response) pair, spec.md's
// "interaction history" entry.
type interaction[K comparable, SK comparable, SV comparable] struct {
	Message  *message.Message[K, SK, SV]
	Response []byte
}

// Client owns the corpus, message pool, state model, adapter instance, and
// transport factory for one target. All mutable state lives here; there is
// no global mutable state anywhere in the core (spec.md §9).
type Client[K comparable, SK comparable, SV comparable, S comparable] struct {
	Config       Config
	Adapter      adapter.Adapter[K, SK, SV, S]
	Corpus       *corpus.Corpus[K, SK, SV]
	Pool         *pool.Pool[K, SK, SV]
	Model        *statemodel.Model[K, SK, SV, S]
	NewTransport func() transport.Transport
	Stats        *stats.Run

	// RunID identifies this campaign in logs, distinct from any generation
	// or particle index, the way syz-cluster mints a session.ID per run.
	RunID string

	rnd        *rand.Rand
	fitnessLog []corpus.Fitness
}

// New returns a Client ready to run a campaign against one target. rnd is
// the single seeded generator every stochastic choice in the run draws
// from, so that runs are reproducible given the same seed (spec.md §9).
func New[K comparable, SK comparable, SV comparable, S comparable](
	cfg Config, a adapter.Adapter[K, SK, SV, S], newTransport func() transport.Transport, rnd *rand.Rand) *Client[K, SK, SV, S] {
	return &Client[K, SK, SV, S]{
		Config:       cfg,
		Adapter:      a,
		Corpus:       corpus.New[K, SK, SV](),
		Pool:         pool.New[K, SK, SV](cfg.MessagePoolSize),
		Model:        statemodel.New[K, SK, SV, S](),
		NewTransport: newTransport,
		Stats:        stats.NewRun(),
		RunID:        uuid.New().String(),
		rnd:          rnd,
	}
}

// FitnessLog returns the (min, mean, max) fitness recorded for every
// generation run so far, in generation order.
func (c *Client[K, SK, SV, S]) FitnessLog() []corpus.Fitness { return c.fitnessLog }

// Run executes Config.Generations generations in sequence. A transport
// connect failure is fatal and aborts the run immediately, matching
// spec.md §7; every other error is logged and the run continues.
func (c *Client[K, SK, SV, S]) Run() error {
	logf(0, "run %s: %d generations", c.RunID, c.Config.Generations)
	for gen := 0; gen < c.Config.Generations; gen++ {
		logf(0, "GENERATION %d", gen)
		if err := c.generation(gen); err != nil {
			return fmt.Errorf("generation %d: %w", gen, err)
		}
	}
	return nil
}

func (c *Client[K, SK, SV, S]) generation(gen int) error {
	if c.Corpus.Len() == 0 {
		c.reseed()
	}

	histories := make([][]interaction[K, SK, SV], len(c.Corpus.Members))
	for i, seq := range c.Corpus.Members {
		h, err := c.executeSequence(seq)
		if err != nil {
			return err
		}
		histories[i] = h
		c.updatePool(seq)
	}

	for _, h := range histories {
		c.processTrace(h)
	}
	rare := c.Model.Rarity(c.Config.StateRarityThreshold)

	for i, seq := range c.Corpus.Members {
		seq.Fitness = c.fitness(histories[i], rare)
		c.Stats.Fitness.Add(seq.Fitness)
	}

	summary := c.Corpus.Summarize()
	c.fitnessLog = append(c.fitnessLog, summary)
	logf(1, "generation %d: min=%.3f mean=%.3f max=%.3f", gen, summary.Min, summary.Mean, summary.Max)

	matingPool := corpus.TournamentSelect(c.rnd, c.Corpus, c.Config.SelectionPressure)
	c.Corpus.Members = cloneAll(matingPool)

	c.crossoverGeneration()
	c.mutateGeneration()
	return nil
}

// reseed repopulates an empty corpus with 2-9 random sequences of random
// length 1-9, per spec.md §4.7 step 1 / §8 property E3.
func (c *Client[K, SK, SV, S]) reseed() {
	n := 2 + c.rnd.Intn(8)
	for i := 0; i < n; i++ {
		length := 1 + c.rnd.Intn(9)
		seq := evolve.RandomSequence[K, SK, SV, S](c.rnd, c.Adapter, length)
		c.Corpus.Members = append(c.Corpus.Members, seq)
	}
}

// executeSequence runs spec.md §4.3: open a fresh transport, send every
// message in order, read its response with a 5-second timeout, sleep the
// inter-message delay, then close the transport.
func (c *Client[K, SK, SV, S]) executeSequence(seq *message.MessageSequence[K, SK, SV]) (
	[]interaction[K, SK, SV], error) {
	tr := c.NewTransport()
	if err := tr.Connect(); err != nil {
		return nil, fatalf("transport connect failed: %w", err)
	}
	defer func() {
		if err := tr.Shutdown(); err != nil {
			logf(1, "transport shutdown: %v", err)
		}
	}()

	history := make([]interaction[K, SK, SV], 0, len(seq.Messages))
	for i, m := range seq.Messages {
		clone := m.Clone()
		if err := tr.Send(clone.Data); err != nil {
			logf(1, "send failed: %v", err)
			clone.ResponseTime = transport.ReadTimeout.Seconds()
			history = append(history, interaction[K, SK, SV]{Message: clone})
		} else {
			start := time.Now()
			resp, err := tr.Receive()
			elapsed := time.Since(start).Seconds()
			if err != nil || len(resp) == 0 {
				clone.ResponseTime = transport.ReadTimeout.Seconds()
			} else {
				clone.ResponseTime = elapsed
			}
			c.Stats.ResponseTimes.Add(clone.ResponseTime)
			logf(2, "response: %s", log.Truncate(resp, 64, 64))
			history = append(history, interaction[K, SK, SV]{Message: clone, Response: resp})
		}
		if i < len(seq.Timings) {
			time.Sleep(time.Duration(seq.Timings[i] * float64(time.Second)))
		}
	}
	return history, nil
}

// updatePool implements spec.md §4.3's message-pool update: with
// probability PoolUpdateRate, sample one message from the just-executed
// sequence and add it to the pool.
func (c *Client[K, SK, SV, S]) updatePool(seq *message.MessageSequence[K, SK, SV]) {
	if len(seq.Messages) == 0 || c.rnd.Float64() >= c.Config.PoolUpdateRate {
		return
	}
	m := seq.Messages[c.rnd.Intn(len(seq.Messages))]
	c.Pool.Add(c.rnd, m.Clone())
}

// processTrace implements spec.md §4.4: scan one interaction history in
// order, emitting a StateTransition per step after the first, and updating
// the state model with dedup.
func (c *Client[K, SK, SV, S]) processTrace(history []interaction[K, SK, SV]) {
	var previous *S
	for _, step := range history {
		target := c.Adapter.ParseResponse(step.Response)
		c.Model.Observe(target)
		if previous != nil {
			c.Model.Add(&statemodel.StateTransition[K, SK, SV, S]{
				Source:  *previous,
				Message: step.Message,
				Target:  target,
			})
		}
		t := target
		previous = &t
	}
}

// fitness implements spec.md §4.5's four-term weighted formula. Division
// by zero in any term returns 0 for that term.
func (c *Client[K, SK, SV, S]) fitness(history []interaction[K, SK, SV], rare map[S]bool) float64 {
	if len(history) == 0 {
		return 0
	}
	distinct := map[S]bool{}
	responseSum := 0.0
	rareCount := 0
	for _, step := range history {
		s := c.Adapter.ParseResponse(step.Response)
		distinct[s] = true
		rt := step.Message.ResponseTime
		if rt > transport.ReadTimeout.Seconds() {
			rt = transport.ReadTimeout.Seconds()
		}
		responseSum += rt / transport.ReadTimeout.Seconds()
		if rare[s] {
			rareCount++
		}
	}
	u := len(distinct)

	coverage := 0.0
	if numStates := c.Model.NumStates(); numStates > 0 {
		coverage = float64(u) / float64(numStates)
	}
	roc := float64(u) / float64(max(1, len(history)))
	responseAvg := responseSum / float64(len(history))
	rarity := float64(rareCount) / float64(len(history))

	return c.Config.StateCoverageWeight*coverage +
		c.Config.ResponseTimeWeight*responseAvg +
		c.Config.StateROCWeight*roc +
		c.Config.StateRarityWeight*rarity
}

// crossoverGeneration implements spec.md §4.7 step 8: for every unordered
// pair (i, j) with i < j, with probability SequenceCrossoverRate replace
// both with their two offspring.
func (c *Client[K, SK, SV, S]) crossoverGeneration() {
	members := c.Corpus.Members
	for i := 0; i < len(members); i++ {
		for j := i + 1; j < len(members); j++ {
			if c.rnd.Float64() >= c.Config.SequenceCrossoverRate {
				continue
			}
			a, b := evolve.CrossoverSequence[K, SK, SV, S](
				c.rnd, c.Adapter, members[i], members[j], c.Config.MessageCrossoverRate)
			members[i], members[j] = a, b
		}
	}
}

// mutateGeneration implements spec.md §4.7 step 9.
func (c *Client[K, SK, SV, S]) mutateGeneration() {
	for _, seq := range c.Corpus.Members {
		if c.rnd.Float64() < c.Config.SequenceMutationRate {
			evolve.MutateSequence[K, SK, SV, S](c.rnd, c.Adapter, seq, c.Pool, c.Config.MessageMutationRate)
		}
	}
}

func cloneAll[K comparable, SK comparable, SV comparable](seqs []*message.MessageSequence[K, SK, SV]) []*message.MessageSequence[K, SK, SV] {
	out := make([]*message.MessageSequence[K, SK, SV], len(seqs))
	for i, s := range seqs {
		out[i] = s.Clone()
	}
	return out
}

// Evaluate implements spec.md §4.8: fit a linear-least-squares slope to
// (generation index, mean fitness) and return it. The tuner's oracle calls
// this right after Run.
func (c *Client[K, SK, SV, S]) Evaluate() float64 {
	n := len(c.fitnessLog)
	if n < 2 {
		return 0
	}
	var sumX, sumY, sumXY, sumXX float64
	for i, f := range c.fitnessLog {
		x := float64(i)
		y := f.Mean
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}
	nf := float64(n)
	denom := nf*sumXX - sumX*sumX
	if denom == 0 {
		return 0
	}
	return (nf*sumXY - sumX*sumY) / denom
}
