// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package stats

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHistogramTracksMean(t *testing.T) {
	h := NewHistogram()
	for _, v := range []float64{1, 2, 3, 4, 5} {
		h.Add(v)
	}
	assert.InDelta(t, 3.0, h.Mean(), 0.5)
}

func TestNewRunInitializesBothHistograms(t *testing.T) {
	r := NewRun()
	require := assert.New(t)
	require.NotNil(r.ResponseTimes)
	require.NotNil(r.Fitness)

	r.ResponseTimes.Add(1.5)
	r.Fitness.Add(0.8)
	require.InDelta(1.5, r.ResponseTimes.Mean(), 0.01)
	require.InDelta(0.8, r.Fitness.Mean(), 0.01)
}
