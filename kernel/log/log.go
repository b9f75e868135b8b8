// Package log provides structured logging for code that runs after the
// early boot sequence has handed off to a real output device. It is a
// slog.Handler wrapping whatever Sink kernel/kfmt/early currently writes to,
// so a single SetOutput call on the console/serial device serves both the
// allocation-free early Printf path and this package's structured records.
package log

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"runtime"
	"strings"
	"sync"

	"github.com/nexuskernel/nexus/kernel/kfmt/early"
)

// Level controls which records reach the underlying writer; callers may
// lower or raise it at runtime (e.g. verbose logging while debugging a
// driver bring-up).
var Level = &slog.LevelVar{}

// Default returns a logger backed by kernel/kfmt/early's currently
// registered output sink. Call it after early.SetOutput so records actually
// reach a device instead of the discard sink.
func Default() *slog.Logger {
	return slog.New(NewHandler(early.Output()))
}

// Handler formats slog.Record values as labeled key/value blocks and writes
// them to out, serializing concurrent writers with mu.
type Handler struct {
	mu    *sync.Mutex
	out   io.Writer
	level slog.Leveler
	group string
	attrs []slog.Attr
}

// NewHandler builds a Handler writing to out at the package Level.
func NewHandler(out io.Writer) *Handler {
	return &Handler{
		mu:    new(sync.Mutex),
		out:   out,
		level: Level,
	}
}

// Enabled reports whether level meets the handler's configured threshold.
func (h *Handler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

// Handle formats rec as a block of "%10s : value" lines (one per field,
// source location included when available) and writes it to out under mu.
func (h *Handler) Handle(_ context.Context, rec slog.Record) error {
	buf := bytes.NewBuffer(make([]byte, 0, 512))

	if !rec.Time.IsZero() {
		fmt.Fprintf(buf, "%10s : %s\n", "TIME", rec.Time.Format("15:04:05.000000000"))
	}
	fmt.Fprintf(buf, "%10s : %s\n", "LEVEL", rec.Level.String())

	if rec.PC != 0 {
		frames := runtime.CallersFrames([]uintptr{rec.PC})
		f, _ := frames.Next()
		_, file := path.Split(f.File)
		fmt.Fprintf(buf, "%10s : %s:%d\n", "SOURCE", file, f.Line)
	}

	fmt.Fprintf(buf, "%10s : %s\n", "MESSAGE", rec.Message)

	for _, a := range h.attrs {
		h.writeAttr(buf, a)
	}
	rec.Attrs(func(a slog.Attr) bool {
		h.writeAttr(buf, a)
		return true
	})
	fmt.Fprintln(buf)

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.out.Write(buf.Bytes())
	return err
}

// writeAttr flattens a (possibly grouped) attribute into buf, prefixing its
// key with the handler's current group (if any).
func (h *Handler) writeAttr(buf *bytes.Buffer, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}

	key := strings.ToUpper(a.Key)
	if h.group != "" {
		key = strings.ToUpper(h.group) + "." + key
	}

	if a.Value.Kind() == slog.KindGroup {
		for _, ga := range a.Value.Group() {
			h.writeAttr(buf, ga)
		}
		return
	}

	fmt.Fprintf(buf, "%10s : %v\n", key, a.Value.Any())
}

// WithGroup returns a handler that prefixes every subsequent attribute's key
// with name.
func (h *Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.group = name
	return &clone
}

// WithAttrs returns a handler that always emits attrs in addition to
// whatever a given call to Handle supplies.
func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.attrs = make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	clone.attrs = append(clone.attrs, h.attrs...)
	clone.attrs = append(clone.attrs, attrs...)
	return &clone
}
