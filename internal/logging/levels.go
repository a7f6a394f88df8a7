// Copyright 2022 The Accumulate Authors
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file or at
// https://opensource.org/licenses/MIT.

package logging

import (
	"log/slog"
	"math"
	"strings"

	"github.com/rs/zerolog"
	"gitlab.com/accumulatenetwork/sigreq/pkg/errors"
)

// LevelDisabled is above every level that is ever logged.
const LevelDisabled = slog.Level(math.MaxInt32)

// ParseLevels parses a level specification such as "error;keycache=debug".
// An entry without a module, or with module "*", sets the default level.
// The default defaults to info.
func ParseLevels(s string) (SlogConfig, error) {
	cfg := SlogConfig{
		DefaultLevel: slog.LevelInfo,
		ModuleLevels: map[string]slog.Level{},
	}

	entries := strings.FieldsFunc(s, func(r rune) bool { return r == ';' || r == ',' })
	for _, entry := range entries {
		module, level, ok := strings.Cut(strings.TrimSpace(entry), "=")
		if !ok {
			module, level = "", module
		}

		l, err := ParseLevel(level)
		if err != nil {
			return SlogConfig{}, err
		}

		if module == "" || module == "*" {
			cfg.DefaultLevel = l
		} else {
			cfg.ModuleLevels[module] = l
		}
	}
	return cfg, nil
}

// ParseLevel parses a single level name using zerolog's level names.
func ParseLevel(s string) (slog.Level, error) {
	zl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(s)))
	if err != nil {
		return 0, errors.BadRequest.WithFormat("invalid log level %q: %w", s, err)
	}

	switch zl {
	case zerolog.TraceLevel:
		return slog.LevelDebug - 4, nil
	case zerolog.DebugLevel:
		return slog.LevelDebug, nil
	case zerolog.InfoLevel, zerolog.NoLevel:
		return slog.LevelInfo, nil
	case zerolog.WarnLevel:
		return slog.LevelWarn, nil
	case zerolog.ErrorLevel:
		return slog.LevelError, nil
	case zerolog.FatalLevel, zerolog.PanicLevel:
		return slog.LevelError + 4, nil
	default:
		return LevelDisabled, nil
	}
}
