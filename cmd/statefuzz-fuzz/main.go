// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Command statefuzz-fuzz runs one stateful evolutionary fuzzing campaign
// against a single network target and writes a fitness-over-generations CSV
// plus a Graphviz dump of the inferred state model.
package main

import (
	"flag"
	"math/rand"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/google/statefuzz/pkg/adapter/smtp"
	"github.com/google/statefuzz/pkg/fuzzer"
	"github.com/google/statefuzz/pkg/log"
	"github.com/google/statefuzz/pkg/report"
	"github.com/google/statefuzz/pkg/transport"
)

var (
	flagTarget    = flag.String("target", "127.0.0.1:25", "host:port of the target SMTP server")
	flagConfig    = flag.String("config", "", "path to a FuzzConfig YAML file (optional, defaults built in)")
	flagSeed      = flag.Int64("seed", 1, "PRNG seed")
	flagFitness   = flag.String("fitness_csv", "fitness.csv", "output path for the generation fitness log")
	flagStateDOT  = flag.String("state_dot", "states.dot", "output path for the inferred state-model graph")
	flagVerbosity = flag.Int("v", 0, "log verbosity")
)

func main() {
	flag.Parse()
	log.SetVerbosity(*flagVerbosity)

	cfg := fuzzer.Default()
	if *flagConfig != "" {
		data, err := os.ReadFile(*flagConfig)
		if err != nil {
			log.Fatalf("reading config: %v", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			log.Fatalf("parsing config: %v", err)
		}
	}

	a := smtp.New()
	newTransport := func() transport.Transport {
		return transport.NewStream(*flagTarget)
	}
	rnd := rand.New(rand.NewSource(*flagSeed))
	client := fuzzer.New[smtp.MessageKind, smtp.SectionKey, smtp.SectionValue, smtp.ServerState](
		cfg, a, newTransport, rnd)

	start := time.Now()
	if err := client.Run(); err != nil {
		log.Fatalf("run failed: %v", err)
	}
	log.Logf(0, "campaign %s finished in %s, slope=%.4f", client.RunID, time.Since(start), client.Evaluate())
	for i, seq := range client.Corpus.TopK(5) {
		log.Logf(0, "top %d: fitness=%.4f len=%d", i+1, seq.Fitness, len(seq.Messages))
	}

	writer := report.NewFitnessWriter()
	for gen, f := range client.FitnessLog() {
		writer.Record(gen, f)
	}
	if err := writer.WriteFile(*flagFitness); err != nil {
		log.Fatalf("writing fitness csv: %v", err)
	}
	if err := writer.WriteArchive(*flagFitness + ".xz"); err != nil {
		log.Fatalf("archiving fitness csv: %v", err)
	}

	dot := client.Model.DOT(func(s smtp.ServerState) string {
		if s == smtp.Unknown {
			return "unknown"
		}
		return strconv.Itoa(s.Code)
	})
	if err := report.WriteDOT(*flagStateDOT, dot); err != nil {
		log.Fatalf("writing state dot: %v", err)
	}
}
