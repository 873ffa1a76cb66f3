// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package stats tracks streaming distributions of per-message response
// times and per-generation fitness using a numerical histogram, so a run's
// shape can be inspected without retaining every raw sample.
package stats

import "github.com/VividCortex/gohistogram"

// bins controls the histogram's resolution; 32 is enough to distinguish
// meaningful response-time buckets within the 0-5s window without costing
// much memory over a long-running campaign.
const bins = 32

// Histogram wraps a numerical (non-weighted) streaming histogram.
type Histogram struct {
	h *gohistogram.NumericHistogram
}

// NewHistogram returns an empty histogram.
func NewHistogram() *Histogram {
	return &Histogram{h: gohistogram.NewHistogram(bins)}
}

// Add records one sample.
func (h *Histogram) Add(v float64) { h.h.Add(v) }

// Mean returns the running mean of all recorded samples.
func (h *Histogram) Mean() float64 { return h.h.Mean() }

// Variance returns the running variance of all recorded samples.
func (h *Histogram) Variance() float64 { return h.h.Variance() }

// Quantile returns the estimated value at the given quantile in [0, 1].
func (h *Histogram) Quantile(q float64) float64 { return h.h.Quantile(q) }

func (h *Histogram) String() string { return h.h.String() }

// Run bundles the two histograms a fuzz campaign fills in as it runs
// (fuzzer.Client.Stats). Nothing in this package prints or persists them.
type Run struct {
	ResponseTimes *Histogram
	Fitness       *Histogram
}

// NewRun returns a Run with both histograms freshly initialized.
func NewRun() *Run {
	return &Run{ResponseTimes: NewHistogram(), Fitness: NewHistogram()}
}
