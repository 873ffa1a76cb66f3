// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package tuner

import (
	"math/rand"

	"github.com/google/statefuzz/pkg/fuzzer"
)

// Params bundles both phases' settings plus the seed FuzzConfig supplying
// the two dimensions the tuner never perturbs (Generations, MessagePoolSize).
type Params struct {
	Seed     fuzzer.Config
	PSO      PSOParams
	Bayesian BayesianParams
}

// Tune runs Phase A (particle swarm) then Phase B (Bayesian refinement) and
// returns the final tuned FuzzConfig, per spec.md §4.9.
func Tune(rnd *rand.Rand, p Params, oracle Oracle) (fuzzer.Config, error) {
	afterPSO, err := PSO(rnd, p.Seed, p.PSO, oracle)
	if err != nil {
		return fuzzer.Config{}, err
	}
	return Bayesian(rnd, afterPSO, p.Bayesian, oracle)
}

// DefaultParams returns PSO/Bayesian knobs in the range the original
// prototype used, seeded from the supplied FuzzConfig.
func DefaultParams(seed fuzzer.Config) Params {
	return Params{
		Seed: seed,
		PSO: PSOParams{
			SwarmSize:      10,
			Iterations:     20,
			InertiaStart:   0.9,
			C1:             1.5,
			C2:             1.5,
			VMax:           0.5,
			Regularization: 0.01,
		},
		Bayesian: BayesianParams{
			SwarmSize:        10,
			OuterIterations:  20,
			InnerGenerations: seed.Generations,
			Iterations:       20,
		},
	}
}
