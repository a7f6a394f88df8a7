// Copyright 2022 The Accumulate Authors
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file or at
// https://opensource.org/licenses/MIT.

package logging

import (
	"io"
	"log/slog"
	"strings"
	"testing"
)

// TestLogger writes each line to the test log.
type TestLogger struct {
	Test testing.TB
}

var _ io.Writer = (*TestLogger)(nil)

func (l *TestLogger) Write(b []byte) (int, error) {
	l.Test.Log(strings.TrimSuffix(string(b), "\n"))
	return len(b), nil
}

// NewTestLogger returns a debug level logger that writes to the test log.
func NewTestLogger(t testing.TB) *slog.Logger {
	h, err := NewSlogHandler(SlogConfig{DefaultLevel: slog.LevelDebug}, ConsoleSlogWriter(&TestLogger{Test: t}, false))
	if err != nil {
		t.Fatal(err)
	}
	return slog.New(h)
}
