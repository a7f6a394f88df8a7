// Copyright 2025 The Accumulate Authors
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file or at
// https://opensource.org/licenses/MIT.

package badger

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dgraph-io/badger"
)

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger Badger and the store's GC loop write to.
// Defaults to the default logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// badgerLogger adapts a slog logger to Badger's printf-style interface.
// Badger reports routine compaction and replay progress at info, which is
// logged as debug.
type badgerLogger struct {
	logger *slog.Logger
}

var _ badger.Logger = badgerLogger{}

func (l badgerLogger) log(level slog.Level, format string, args []any) {
	ctx := context.Background()
	if !l.logger.Enabled(ctx, level) {
		return
	}
	msg := strings.TrimRight(fmt.Sprintf(format, args...), "\n")
	l.logger.Log(ctx, level, msg)
}

func (l badgerLogger) Errorf(format string, args ...any) {
	l.log(slog.LevelError, format, args)
}

func (l badgerLogger) Warningf(format string, args ...any) {
	l.log(slog.LevelWarn, format, args)
}

func (l badgerLogger) Infof(format string, args ...any) {
	l.log(slog.LevelDebug, format, args)
}

func (l badgerLogger) Debugf(format string, args ...any) {
	l.log(slog.LevelDebug-4, format, args)
}
