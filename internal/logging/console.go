// Copyright 2024 The Accumulate Authors
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file or at
// https://opensource.org/licenses/MIT.

package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gitlab.com/accumulatenetwork/sigreq/pkg/errors"
)

// Log formats.
const (
	FormatPlain = "plain"
	FormatText  = "text"
	FormatJSON  = "json"
)

// ConsoleSlogWriter renders the JSON lines written by the handler in a human
// readable form.
func ConsoleSlogWriter(w io.Writer, color bool) io.Writer {
	return zerolog.ConsoleWriter{
		Out:        w,
		NoColor:    !color,
		TimeFormat: time.RFC3339,
	}
}

// NewLogger builds a logger from a level specification and a format.
func NewLogger(levels, format string, w io.Writer) (*slog.Logger, error) {
	cfg, err := ParseLevels(levels)
	if err != nil {
		return nil, err
	}

	switch strings.ToLower(format) {
	case "", FormatPlain, FormatText:
		color := false
		if f, ok := w.(*os.File); ok {
			color = isTerminal(f)
		}
		w = ConsoleSlogWriter(w, color)
	case FormatJSON:
	default:
		return nil, errors.BadRequest.WithFormat("unsupported log format %q", format)
	}

	h, err := NewSlogHandler(cfg, w)
	if err != nil {
		return nil, err
	}
	return slog.New(h), nil
}

func isTerminal(f *os.File) bool {
	st, err := f.Stat()
	return err == nil && st.Mode()&os.ModeCharDevice != 0
}
