// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package tuner is the hyperparameter tuner: particle-swarm exploration
// (this file) followed by Gaussian-neighborhood Bayesian refinement
// (bayesian.go). It treats a fuzzer.Client run as an opaque
// evaluate()-returning oracle and never inspects the run's internals.
package tuner

import (
	"math"
	"math/rand"

	"github.com/google/uuid"

	"github.com/google/statefuzz/pkg/fuzzer"
	"github.com/google/statefuzz/pkg/log"
)

// Oracle runs one full fuzz campaign with cfg and returns the evaluate()
// scalar of spec.md §4.8 -- the slope of mean fitness over generations.
type Oracle func(cfg fuzzer.Config) (float64, error)

// PSOParams are the tunable knobs of the particle-swarm phase itself (not
// to be confused with the FuzzConfig dimensions being searched over).
type PSOParams struct {
	SwarmSize      int
	Iterations     int
	InertiaStart   float64
	C1, C2         float64
	VMax           float64
	Regularization float64
}

type particle struct {
	id       string
	position []float64
	velocity []float64
	pbest    []float64
	pbestFit float64
}

// PSO runs spec.md §4.9 Phase A and returns the swarm's global-best
// FuzzConfig. seed supplies the two frozen dimensions (Generations,
// MessagePoolSize) and the initial free-dimension values for particle 0.
func PSO(rnd *rand.Rand, seed fuzzer.Config, p PSOParams, oracle Oracle) (fuzzer.Config, error) {
	swarm := make([]*particle, p.SwarmSize)
	ndims := len(freeDims)
	for i := range swarm {
		pos := make([]float64, ndims)
		vel := make([]float64, ndims)
		for d := range pos {
			if i == 0 {
				pos[d] = clamp(toVector(seed)[d], 0, freeDims[d].max)
			} else {
				pos[d] = rnd.Float64() * freeDims[d].max
			}
			vel[d] = (rnd.Float64()*2 - 1) * p.VMax
		}
		swarm[i] = &particle{
			id: uuid.New().String(), position: pos, velocity: vel,
			pbest: append([]float64(nil), pos...), pbestFit: math.Inf(-1),
		}
	}

	var gbest []float64
	gbestFit := math.Inf(-1)

	for iter := 0; iter < p.Iterations; iter++ {
		w := p.InertiaStart - (p.InertiaStart-0.2*p.InertiaStart)*float64(iter)/float64(max(1, p.Iterations-1))
		for _, particle := range swarm {
			cfg := fromVector(seed, particle.position)
			raw, err := oracle(cfg)
			if err != nil {
				return fuzzer.Config{}, err
			}
			fitness := raw - p.Regularization*l2Norm(particle.position)

			// "observe -> maybe-update pbest -> then compute velocity
			// using the updated pbest" (spec.md §9), not the reverse.
			if fitness > particle.pbestFit {
				particle.pbestFit = fitness
				particle.pbest = append([]float64(nil), particle.position...)
				log.Logf(1, "particle %s: new personal best fitness=%.4f", particle.id, fitness)
			}
			if particle.pbestFit > gbestFit {
				gbestFit = particle.pbestFit
				gbest = append([]float64(nil), particle.pbest...)
			}

			for d := 0; d < ndims; d++ {
				r1, r2 := rnd.Float64(), rnd.Float64()
				v := w*particle.velocity[d] +
					p.C1*r1*(particle.pbest[d]-particle.position[d]) +
					p.C2*r2*(gbest[d]-particle.position[d])
				if math.Abs(v) < 1e-9 {
					v = rnd.Float64()*2 - 1
				}
				// Symmetric clamp, not the asymmetric [0,1] clamp the
				// original prototype used -- see spec.md §9 / DESIGN.md.
				v = clamp(v, -p.VMax, p.VMax)
				particle.velocity[d] = v

				x := particle.position[d] + v
				particle.position[d] = clamp(x, 0, freeDims[d].max)
			}
		}
		log.Logf(0, "pso iteration %d: gbest fitness=%.4f", iter, gbestFit)
	}

	if gbest == nil {
		gbest = toVector(seed)
	}
	return fromVector(seed, gbest), nil
}

func l2Norm(v []float64) float64 {
	sum := 0.0
	for _, x := range v {
		sum += x * x
	}
	return sum
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
