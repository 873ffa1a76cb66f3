// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package smtp

import (
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildMessageIsIdempotentOnRandomMessages(t *testing.T) {
	a := New()
	rnd := rand.New(rand.NewSource(42))
	for i := 0; i < 50; i++ {
		m := a.RandomMessage(rnd)
		rebuilt := a.BuildMessage(m.Data)
		assert.Equal(t, m.Kind, rebuilt.Kind)
		assert.Equal(t, m.Data, rebuilt.Data)
	}
}

func TestBuildMessageTolerantOfGarbage(t *testing.T) {
	a := New()
	for _, data := range [][]byte{nil, {}, {0xff, 0x00, 0x01}, []byte("not a real command at all")} {
		m := a.BuildMessage(data)
		require.NotNil(t, m)
		assert.Equal(t, UNKNOWN, m.Kind)
	}
}

func TestBuildMessageIdempotentOnItsOwnOutput(t *testing.T) {
	a := New()
	m := a.BuildMessage([]byte("this is garbage\r\n"))
	rebuilt := a.BuildMessage(m.Data)
	assert.Equal(t, m.Kind, rebuilt.Kind)
	assert.Equal(t, m.Data, rebuilt.Data)
}

func TestCrossoverMessagesIdenticalParentsYieldClones(t *testing.T) {
	a := New()
	rnd := rand.New(rand.NewSource(1))
	for i := 0; i < 50; i++ {
		m := a.RandomMessage(rnd)
		x, y := a.CrossoverMessages(rnd, m.Clone(), m.Clone())
		if diff := cmp.Diff(m.Data, x.Data); diff != "" {
			t.Errorf("offspring x diverged from identical parents: %s", diff)
		}
		assert.Equal(t, m.Kind, x.Kind)
		assert.Equal(t, m.Kind, y.Kind)
	}
}

func TestCrossoverSectionsRequiresSameKind(t *testing.T) {
	a := New()
	rnd := rand.New(rand.NewSource(2))
	x := a.build(HELO, "a.example")
	y := a.build(QUIT, "")

	x2, y2 := a.crossoverSections(rnd, x, y)
	assert.Equal(t, x.Kind, x2.Kind, "mismatched kinds return parents unchanged")
	assert.Equal(t, y.Kind, y2.Kind)
}

func TestParseResponseCodeOnlyEquality(t *testing.T) {
	a := New()
	s1 := a.ParseResponse([]byte("250 OK\r\n"))
	s2 := a.ParseResponse([]byte("250 Queued\r\n"))
	assert.Equal(t, s1, s2, "two responses sharing a code are the same server state")
	assert.True(t, s1.Equal(s2))

	assert.Equal(t, Unknown, a.ParseResponse([]byte("x")))
	assert.Equal(t, Unknown, a.ParseResponse(nil))
}

func TestParseResponseRecognizesFixtureCodes(t *testing.T) {
	a := New()
	for _, resp := range []string{"250 OK\r\n", "354 Start input\r\n", "221 Bye\r\n", "500 unknown\r\n"} {
		s := a.ParseResponse([]byte(resp))
		assert.NotEqual(t, Unknown, s)
	}
}

func TestMutateMessageKeepsDataSectionsConsistent(t *testing.T) {
	a := New()
	rnd := rand.New(rand.NewSource(4))
	for i := 0; i < 100; i++ {
		m := a.RandomMessage(rnd)
		mutated := a.MutateMessage(rnd, m)
		rebuilt := a.BuildMessage(mutated.Data)
		assert.Equal(t, rebuilt.Kind, mutated.Kind, "mutated message stays internally consistent")
	}
}
