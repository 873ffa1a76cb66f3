// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package fuzzer

// Config is FuzzConfig: the 13-tuple of knobs spec.md §6 recognizes.
// cmd/statefuzz-fuzz loads it from YAML via gopkg.in/yaml.v3, with no
// per-field flag overrides; cmd/statefuzz-tune sets only Generations and
// MessagePoolSize from its flags.
type Config struct {
	Generations           int     `yaml:"generations"`
	SelectionPressure     float64 `yaml:"selection_pressure"`
	SequenceMutationRate  float64 `yaml:"sequence_mutation_rate"`
	SequenceCrossoverRate float64 `yaml:"sequence_crossover_rate"`
	MessageMutationRate   float64 `yaml:"message_mutation_rate"`
	MessageCrossoverRate  float64 `yaml:"message_crossover_rate"`
	MessagePoolSize       int     `yaml:"message_pool_size"`
	PoolUpdateRate        float64 `yaml:"pool_update_rate"`
	StateRarityThreshold  float64 `yaml:"state_rarity_threshold"`
	StateCoverageWeight   float64 `yaml:"state_coverage_weight"`
	ResponseTimeWeight    float64 `yaml:"response_time_weight"`
	StateROCWeight        float64 `yaml:"state_roc_weight"`
	StateRarityWeight     float64 `yaml:"state_rarity_weight"`
}

// Default returns a reasonable starting configuration for a first run or as
// the tuner's PSO seed position.
func Default() Config {
	return Config{
		Generations:           20,
		SelectionPressure:     0.3,
		SequenceMutationRate:  0.2,
		SequenceCrossoverRate: 0.2,
		MessageMutationRate:   0.1,
		MessageCrossoverRate:  0.5,
		MessagePoolSize:       64,
		PoolUpdateRate:        0.3,
		StateRarityThreshold:  0.1,
		StateCoverageWeight:   1.0,
		ResponseTimeWeight:    0.5,
		StateROCWeight:        1.0,
		StateRarityWeight:     0.5,
	}
}
