// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package pool

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/google/statefuzz/pkg/message"
)

func TestZeroCapacityPoolNeverAccepts(t *testing.T) {
	p := New[int, int, int](0)
	rnd := rand.New(rand.NewSource(1))
	p.Add(rnd, message.New([]byte("x"), 0, nil))
	assert.Equal(t, 0, p.Len())

	_, ok := p.Random(rnd)
	assert.False(t, ok)
}

func TestPoolEvictsRandomlyAtCapacity(t *testing.T) {
	p := New[int, int, int](2)
	rnd := rand.New(rand.NewSource(1))

	p.Add(rnd, message.New([]byte("a"), 0, nil))
	p.Add(rnd, message.New([]byte("b"), 0, nil))
	assert.Equal(t, 2, p.Len())

	p.Add(rnd, message.New([]byte("c"), 0, nil))
	assert.Equal(t, 2, p.Len(), "capacity is never exceeded")
}

func TestPoolRandomOnEmpty(t *testing.T) {
	p := New[int, int, int](4)
	_, ok := p.Random(rand.New(rand.NewSource(1)))
	assert.False(t, ok)
}
