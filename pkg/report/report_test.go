// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package report

import (
	"bytes"
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ulikunitz/xz"

	"github.com/google/statefuzz/pkg/corpus"
)

func TestFitnessWriterRecordsRowsInOrder(t *testing.T) {
	w := NewFitnessWriter()
	w.Record(0, corpus.Fitness{Min: 0, Mean: 0.5, Max: 1})
	w.Record(1, corpus.Fitness{Min: 0.1, Mean: 0.6, Max: 1.2})

	rows := w.Rows()
	require.Len(t, rows, 3, "header plus two generations")
	assert.Equal(t, []string{"generation", "min_fitness", "average_fitness", "max_fitness"}, rows[0])
	assert.Equal(t, "0", rows[1][0])
	assert.Equal(t, "1", rows[2][0])
}

func TestWriteFileRoundTrips(t *testing.T) {
	w := NewFitnessWriter()
	w.Record(0, corpus.Fitness{Min: 1, Mean: 2, Max: 3})

	path := filepath.Join(t.TempDir(), "fitness.csv")
	require.NoError(t, w.WriteFile(path))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, w.Rows(), rows)
}

func TestWriteArchiveRoundTripsThroughXZ(t *testing.T) {
	w := NewFitnessWriter()
	w.Record(0, corpus.Fitness{Min: 1, Mean: 2, Max: 3})
	w.Record(1, corpus.Fitness{Min: 1.5, Mean: 2.5, Max: 3.5})

	path := filepath.Join(t.TempDir(), "fitness.csv.xz")
	require.NoError(t, w.WriteArchive(path))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	xr, err := xz.NewReader(f)
	require.NoError(t, err)
	decompressed, err := io.ReadAll(xr)
	require.NoError(t, err)

	rows, err := csv.NewReader(bytes.NewReader(decompressed)).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, w.Rows(), rows)
}

func TestWriteDOTWritesExactContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "states.dot")
	dot := "digraph state_graph {\n  \"a\" -> \"b\";\n}\n"
	require.NoError(t, WriteDOT(path, dot))

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, dot, string(got))
}
