package logging

import (
	"context"
	"log/slog"
)

// ComponentKey is the attribute that selects a component's level.
const ComponentKey = "component"

// componentHandler filters records by the level of the component named in
// the logger's attributes.
type componentHandler struct {
	inner     slog.Handler
	spec      Spec
	component string
}

func (h *componentHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= h.spec.LevelFor(h.component).Slog() && h.inner.Enabled(ctx, level)
}

func (h *componentHandler) Handle(ctx context.Context, r slog.Record) error {
	if r.Level < h.spec.LevelFor(h.component).Slog() {
		return nil
	}
	return h.inner.Handle(ctx, r)
}

func (h *componentHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := &componentHandler{inner: h.inner.WithAttrs(attrs), spec: h.spec, component: h.component}
	for _, a := range attrs {
		if a.Key == ComponentKey {
			next.component = a.Value.String()
		}
	}
	return next
}

func (h *componentHandler) WithGroup(name string) slog.Handler {
	return &componentHandler{inner: h.inner.WithGroup(name), spec: h.spec, component: h.component}
}
