// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package log is the leveled logger used throughout statefuzz, matching the
// Logf/Fatalf calling convention used across the fuzzer core.
package log

import (
	"fmt"
	"os"
	"sync/atomic"
	"time"
)

var verbosity atomic.Int32

// SetVerbosity sets the level threshold at or below which Logf calls are
// printed.
func SetVerbosity(v int) {
	verbosity.Store(int32(v))
}

// Logf prints msg if level is at or below the configured verbosity.
func Logf(level int, msg string, args ...interface{}) {
	if int32(level) > verbosity.Load() {
		return
	}
	fmt.Fprintf(os.Stderr, "%v %v\n", time.Now().Format("15:04:05.000"), fmt.Sprintf(msg, args...))
}

// Fatalf prints msg unconditionally and terminates the process.
func Fatalf(msg string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "STATEFUZZ FATAL: %v\n", fmt.Sprintf(msg, args...))
	os.Exit(1)
}
