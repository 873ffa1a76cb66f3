// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package tuner

import (
	"math"
	"math/rand"

	"github.com/google/statefuzz/pkg/fuzzer"
	"github.com/google/statefuzz/pkg/log"
)

const (
	smoothingAlpha = 0.65
	minSlope       = -5.0
	maxSlope       = 5.0
	minVariance    = 0.01
	maxVariance    = 1.0
)

// BayesianParams are the Phase B knobs; SwarmSize and OuterIterations only
// feed the initial-variance formula, mirroring the original prototype.
type BayesianParams struct {
	SwarmSize       int
	OuterIterations int
	InnerGenerations int
	Iterations      int
}

// Bayesian runs spec.md §4.9 Phase B starting from the PSO global best.
// Each free dimension keeps its own variance, widened or narrowed each
// iteration by how far the observed fitness missed the smoothed prediction.
func Bayesian(rnd *rand.Rand, start fuzzer.Config, p BayesianParams, oracle Oracle) (fuzzer.Config, error) {
	ndims := len(freeDims)
	position := toVector(start)
	variance := make([]float64, ndims)
	initVar := (1/float64(p.SwarmSize) + 1/float64(p.OuterIterations) + 1/float64(p.InnerGenerations)) / 3
	for d := range variance {
		variance[d] = clamp(initVar, minVariance, maxVariance)
	}

	var predicted float64
	havePrediction := false
	bestFit := math.Inf(-1)

	for iter := 0; iter < p.Iterations; iter++ {
		candidate := make([]float64, ndims)
		for d := 0; d < ndims; d++ {
			// spec.md §4.9 Phase B step 1 samples with std = variance
			// directly, not sqrt(variance): the stored quantity is already
			// the standard deviation fed to the Gaussian draw.
			sample := position[d] + rnd.NormFloat64()*variance[d]
			candidate[d] = clamp(sample, 0, freeDims[d].max)
		}

		cfg := fromVector(start, candidate)
		raw, err := oracle(cfg)
		if err != nil {
			return fuzzer.Config{}, err
		}

		if !havePrediction {
			predicted = raw
			havePrediction = true
		}
		miss := raw - predicted
		predicted = smoothingAlpha*raw + (1-smoothingAlpha)*predicted

		for d := range variance {
			noise := (rnd.Float64()*2 - 1) * 0.025
			v := math.Abs(miss)/(maxSlope-minSlope) + noise
			variance[d] = clamp(v, minVariance, maxVariance)
		}

		if raw > bestFit {
			bestFit = raw
			position = candidate
		}
		log.Logf(0, "bayesian iteration %d: raw=%.4f predicted=%.4f variance[0]=%.4f", iter, raw, predicted, variance[0])
	}

	return fromVector(start, position), nil
}
