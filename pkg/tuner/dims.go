// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package tuner

import "github.com/google/statefuzz/pkg/fuzzer"

// dim is one free (perturbable) FuzzConfig dimension: a getter/setter pair
// plus the upper bound its value clamps to (lower bound is always 0).
// generations and message_pool_size are intentionally absent here -- they
// are the two dimensions spec.md §4.9 freezes to their configured values.
type dim struct {
	name string
	get  func(fuzzer.Config) float64
	set  func(*fuzzer.Config, float64)
	max  float64
}

var freeDims = []dim{
	{"selection_pressure", func(c fuzzer.Config) float64 { return c.SelectionPressure },
		func(c *fuzzer.Config, v float64) { c.SelectionPressure = v }, 1},
	{"sequence_mutation_rate", func(c fuzzer.Config) float64 { return c.SequenceMutationRate },
		func(c *fuzzer.Config, v float64) { c.SequenceMutationRate = v }, 1},
	{"sequence_crossover_rate", func(c fuzzer.Config) float64 { return c.SequenceCrossoverRate },
		func(c *fuzzer.Config, v float64) { c.SequenceCrossoverRate = v }, 1},
	{"message_mutation_rate", func(c fuzzer.Config) float64 { return c.MessageMutationRate },
		func(c *fuzzer.Config, v float64) { c.MessageMutationRate = v }, 1},
	{"message_crossover_rate", func(c fuzzer.Config) float64 { return c.MessageCrossoverRate },
		func(c *fuzzer.Config, v float64) { c.MessageCrossoverRate = v }, 1},
	{"pool_update_rate", func(c fuzzer.Config) float64 { return c.PoolUpdateRate },
		func(c *fuzzer.Config, v float64) { c.PoolUpdateRate = v }, 1},
	{"state_rarity_threshold", func(c fuzzer.Config) float64 { return c.StateRarityThreshold },
		func(c *fuzzer.Config, v float64) { c.StateRarityThreshold = v }, 0.5},
	{"state_coverage_weight", func(c fuzzer.Config) float64 { return c.StateCoverageWeight },
		func(c *fuzzer.Config, v float64) { c.StateCoverageWeight = v }, 1},
	{"response_time_weight", func(c fuzzer.Config) float64 { return c.ResponseTimeWeight },
		func(c *fuzzer.Config, v float64) { c.ResponseTimeWeight = v }, 1},
	{"state_roc_weight", func(c fuzzer.Config) float64 { return c.StateROCWeight },
		func(c *fuzzer.Config, v float64) { c.StateROCWeight = v }, 1},
	{"state_rarity_weight", func(c fuzzer.Config) float64 { return c.StateRarityWeight },
		func(c *fuzzer.Config, v float64) { c.StateRarityWeight = v }, 1},
}

// toVector reads every free dimension out of cfg.
func toVector(cfg fuzzer.Config) []float64 {
	v := make([]float64, len(freeDims))
	for i, d := range freeDims {
		v[i] = d.get(cfg)
	}
	return v
}

// fromVector writes every free dimension into a copy of base, leaving the
// two frozen dimensions (Generations, MessagePoolSize) untouched.
func fromVector(base fuzzer.Config, v []float64) fuzzer.Config {
	cfg := base
	for i, d := range freeDims {
		d.set(&cfg, v[i])
	}
	return cfg
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
