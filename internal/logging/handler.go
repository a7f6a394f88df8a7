// Copyright 2024 The Accumulate Authors
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file or at
// https://opensource.org/licenses/MIT.

package logging

import (
	"context"
	"io"
	"log/slog"
	"time"

	"gitlab.com/accumulatenetwork/sigreq/pkg/errors"
)

const (
	messageKey = "message"
	moduleKey  = "module"
)

// SlogConfig sets the default level and per-module overrides.
type SlogConfig struct {
	DefaultLevel slog.Level
	ModuleLevels map[string]slog.Level
}

// NewSlogHandler returns a handler that writes JSON lines to w, filtered by
// module. Wrap w with ConsoleSlogWriter for human-readable output.
func NewSlogHandler(cfg SlogConfig, w io.Writer) (slog.Handler, error) {
	if w == nil {
		return nil, errors.BadRequest.With("missing log writer")
	}

	lowest := cfg.DefaultLevel
	for _, l := range cfg.ModuleLevels {
		if l < lowest {
			lowest = l
		}
	}

	h := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:       lowest,
		ReplaceAttr: replaceAttr,
	})
	return &logHandler{
		handler:      h,
		defaultLevel: cfg.DefaultLevel,
		lowestLevel:  lowest,
		modules:      cfg.ModuleLevels,
	}, nil
}

func replaceAttr(groups []string, a slog.Attr) slog.Attr {
	if len(groups) > 0 {
		return a
	}
	switch a.Key {
	case slog.MessageKey:
		// The message is added as an attribute by logHandler
		return slog.Attr{}
	case slog.TimeKey:
		if a.Value.Kind() == slog.KindTime {
			return slog.String(slog.TimeKey, a.Value.Time().Format(time.RFC3339))
		}
	}
	return a
}

type logHandler struct {
	handler      slog.Handler
	defaultLevel slog.Level
	lowestLevel  slog.Level
	modules      map[string]slog.Level
	module       string
}

func (h *logHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.lowestLevel
}

func (h *logHandler) Handle(ctx context.Context, r slog.Record) error {
	module := h.module
	if module == "" {
		r.Attrs(func(a slog.Attr) bool {
			if a.Key != moduleKey {
				return true
			}
			module = a.Value.String()
			return false
		})
	}
	if r.Level < h.levelFor(module) {
		return nil
	}

	s := slog.NewRecord(r.Time, r.Level, "", r.PC)
	s.AddAttrs(slog.String(messageKey, r.Message))
	s.AddAttrs(Attrs(ctx)...)
	r.Attrs(func(a slog.Attr) bool {
		s.AddAttrs(a)
		return true
	})
	return h.handler.Handle(ctx, s)
}

func (h *logHandler) levelFor(module string) slog.Level {
	if l, ok := h.modules[module]; ok {
		return l
	}
	return h.defaultLevel
}

func (h *logHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	g := *h
	g.handler = h.handler.WithAttrs(attrs)
	for _, a := range attrs {
		if a.Key == moduleKey {
			g.module = a.Value.String()
		}
	}
	return &g
}

func (h *logHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	g := *h
	g.handler = h.handler.WithGroup(name)
	return &g
}
