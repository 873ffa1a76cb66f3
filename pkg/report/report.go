// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package report writes the two files a fuzz campaign persists: the
// per-generation fitness CSV and the final state-graph DOT file.
package report

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"

	"github.com/ulikunitz/xz"

	"github.com/google/statefuzz/pkg/corpus"
)

// FitnessWriter accumulates one row per generation and flushes them in
// order at the end of a run, matching the teacher's own stdlib-csv use in
// tools/syz-bugstats/subsystems.go rather than a third-party CSV library.
type FitnessWriter struct {
	rows [][]string
}

// NewFitnessWriter returns a writer with the required header row already
// queued.
func NewFitnessWriter() *FitnessWriter {
	return &FitnessWriter{rows: [][]string{{"generation", "min_fitness", "average_fitness", "max_fitness"}}}
}

// Record appends one generation's (min, mean, max) fitness summary.
func (w *FitnessWriter) Record(generation int, f corpus.Fitness) {
	w.rows = append(w.rows, []string{
		fmt.Sprintf("%d", generation),
		fmt.Sprintf("%v", f.Min),
		fmt.Sprintf("%v", f.Mean),
		fmt.Sprintf("%v", f.Max),
	})
}

// WriteFile writes every queued row to path, in order.
func (w *FitnessWriter) WriteFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating fitness CSV %q: %w", path, err)
	}
	defer f.Close()
	cw := csv.NewWriter(f)
	if err := cw.WriteAll(w.rows); err != nil {
		return fmt.Errorf("writing fitness CSV %q: %w", path, err)
	}
	return nil
}

// Rows exposes the queued rows for tests (property 5, E5) without going
// through a file round-trip.
func (w *FitnessWriter) Rows() [][]string { return w.rows }

// WriteArchive writes the same rows xz-compressed, for long-running
// campaigns whose per-generation log is kept around as a compact archive
// alongside the plain CSV.
func (w *FitnessWriter) WriteArchive(path string) error {
	var buf bytes.Buffer
	cw := csv.NewWriter(&buf)
	if err := cw.WriteAll(w.rows); err != nil {
		return fmt.Errorf("encoding fitness CSV for archive: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating archive %q: %w", path, err)
	}
	defer f.Close()

	xw, err := xz.NewWriter(f)
	if err != nil {
		return fmt.Errorf("xz writer for %q: %w", path, err)
	}
	if _, err := xw.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("xz-compressing %q: %w", path, err)
	}
	return xw.Close()
}

// WriteDOT writes a precomputed DOT description to path.
func WriteDOT(path, dot string) error {
	if err := os.WriteFile(path, []byte(dot), 0o644); err != nil {
		return fmt.Errorf("writing state graph %q: %w", path, err)
	}
	return nil
}
