// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Command statefuzz-tune searches for a high-performing FuzzConfig against a
// single network target using particle-swarm exploration followed by
// Bayesian refinement, then prints the tuned configuration as YAML.
package main

import (
	"flag"
	"math/rand"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/google/statefuzz/pkg/adapter/smtp"
	"github.com/google/statefuzz/pkg/fuzzer"
	"github.com/google/statefuzz/pkg/log"
	"github.com/google/statefuzz/pkg/transport"
	"github.com/google/statefuzz/pkg/tuner"
)

var (
	flagTarget      = flag.String("target", "127.0.0.1:25", "host:port of the target SMTP server")
	flagSeed        = flag.Int64("seed", 1, "PRNG seed")
	flagGenerations = flag.Int("generations", 10, "generations per inner fuzz run the oracle evaluates")
	flagPoolSize    = flag.Int("message_pool_size", 64, "frozen message-pool-size dimension")
	flagSwarm       = flag.Int("swarm_size", 10, "PSO swarm size / Bayesian variance-init parameter")
	flagPSOIters    = flag.Int("pso_iterations", 20, "PSO iterations")
	flagBayesIters  = flag.Int("bayesian_iterations", 20, "Bayesian refinement iterations")
	flagOut         = flag.String("out", "", "output path for the tuned config YAML (default: stdout)")
	flagVerbosity   = flag.Int("v", 0, "log verbosity")
)

func main() {
	flag.Parse()
	log.SetVerbosity(*flagVerbosity)

	seed := fuzzer.Default()
	seed.Generations = *flagGenerations
	seed.MessagePoolSize = *flagPoolSize

	rnd := rand.New(rand.NewSource(*flagSeed))
	params := tuner.DefaultParams(seed)
	params.PSO.SwarmSize = *flagSwarm
	params.PSO.Iterations = *flagPSOIters
	params.Bayesian.SwarmSize = *flagSwarm
	params.Bayesian.OuterIterations = *flagPSOIters
	params.Bayesian.InnerGenerations = *flagGenerations
	params.Bayesian.Iterations = *flagBayesIters

	oracle := func(cfg fuzzer.Config) (float64, error) {
		a := smtp.New()
		newTransport := func() transport.Transport {
			return transport.NewStream(*flagTarget)
		}
		client := fuzzer.New[smtp.MessageKind, smtp.SectionKey, smtp.SectionValue, smtp.ServerState](
			cfg, a, newTransport, rnd)
		if err := client.Run(); err != nil {
			return 0, err
		}
		return client.Evaluate(), nil
	}

	tuned, err := tuner.Tune(rnd, params, oracle)
	if err != nil {
		log.Fatalf("tuning failed: %v", err)
	}

	data, err := yaml.Marshal(tuned)
	if err != nil {
		log.Fatalf("marshaling tuned config: %v", err)
	}
	if *flagOut == "" {
		os.Stdout.Write(data)
		return
	}
	if err := os.WriteFile(*flagOut, data, 0o644); err != nil {
		log.Fatalf("writing tuned config: %v", err)
	}
}
