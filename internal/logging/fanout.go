package logging

import (
	"context"
	"errors"
	"log/slog"
	"slices"
)

// ContextProvider returns attributes evaluated when a record is handled,
// such as the active session and frame.
type ContextProvider func() []slog.Attr

// FanoutHandler sends each record to every sink that accepts its level,
// after appending the attributes from an optional ContextProvider.
type FanoutHandler struct {
	sinks []slog.Handler
	stamp ContextProvider
}

// NewFanoutHandler builds a handler over the non-nil sinks. stamp may be nil.
func NewFanoutHandler(stamp ContextProvider, sinks ...slog.Handler) *FanoutHandler {
	h := &FanoutHandler{stamp: stamp}
	for _, s := range sinks {
		if s != nil {
			h.sinks = append(h.sinks, s)
		}
	}
	return h
}

func (h *FanoutHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return slices.ContainsFunc(h.sinks, func(s slog.Handler) bool {
		return s.Enabled(ctx, level)
	})
}

// Handle keeps going when a sink fails and returns the joined errors.
func (h *FanoutHandler) Handle(ctx context.Context, r slog.Record) error {
	if h.stamp != nil {
		r.AddAttrs(h.stamp()...)
	}
	var err error
	for _, s := range h.sinks {
		if s.Enabled(ctx, r.Level) {
			err = errors.Join(err, s.Handle(ctx, r.Clone()))
		}
	}
	return err
}

func (h *FanoutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return h.derive(func(s slog.Handler) slog.Handler { return s.WithAttrs(attrs) })
}

func (h *FanoutHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return h.derive(func(s slog.Handler) slog.Handler { return s.WithGroup(name) })
}

func (h *FanoutHandler) derive(f func(slog.Handler) slog.Handler) *FanoutHandler {
	out := &FanoutHandler{stamp: h.stamp, sinks: make([]slog.Handler, len(h.sinks))}
	for i, s := range h.sinks {
		out.sinks[i] = f(s)
	}
	return out
}
