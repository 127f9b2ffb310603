package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

// lineHandler writes human-oriented records:
//
//	2026-01-02T15:04:05Z INFO creation [f-1]: uploaded asset url=https://...
//
// The component and file id move into the line prefix; every other attribute
// follows the message as key=value, last write wins for repeated keys.
type lineHandler struct {
	out    *lockedWriter
	level  slog.Leveler
	source bool
	prefix string
	fields []field
}

type field struct {
	key   string
	value slog.Value
}

type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (lw *lockedWriter) write(p []byte) error {
	lw.mu.Lock()
	defer lw.mu.Unlock()
	_, err := lw.w.Write(p)
	return err
}

func newLineHandler(w io.Writer, level slog.Leveler, source bool) *lineHandler {
	return &lineHandler{out: &lockedWriter{w: w}, level: level, source: source}
}

func (h *lineHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *lineHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.fields = collect(append([]field(nil), h.fields...), h.prefix, attrs)
	return &next
}

func (h *lineHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	next.prefix = h.prefix + name + "."
	return &next
}

func (h *lineHandler) Handle(_ context.Context, r slog.Record) error {
	fields := append([]field(nil), h.fields...)
	r.Attrs(func(a slog.Attr) bool {
		fields = collect(fields, h.prefix, []slog.Attr{a})
		return true
	})

	var component, fileID string
	rest := make([]field, 0, len(fields))
	seen := make(map[string]int, len(fields))
	for _, f := range fields {
		switch {
		case f.key == FieldComponent && component == "":
			component = plain(f.value)
		case f.key == FieldFileID && fileID == "":
			fileID = plain(f.value)
		case f.key == FieldComponent || f.key == FieldFileID:
		default:
			if i, ok := seen[f.key]; ok {
				rest[i] = f
				continue
			}
			seen[f.key] = len(rest)
			rest = append(rest, f)
		}
	}

	ts := r.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	var b strings.Builder
	b.WriteString(ts.UTC().Format(time.RFC3339))
	b.WriteString(" " + levelName(r.Level) + " ")
	switch {
	case component != "" && fileID != "":
		fmt.Fprintf(&b, "%s [%s]: ", component, fileID)
	case component != "":
		b.WriteString(component + ": ")
	case fileID != "":
		fmt.Fprintf(&b, "[%s]: ", fileID)
	}
	msg := strings.TrimSpace(r.Message)
	if msg == "" {
		msg = "(no message)"
	}
	b.WriteString(msg)
	if h.source {
		if src := r.Source(); src != nil && src.File != "" {
			fmt.Fprintf(&b, " [%s:%d]", filepath.Base(src.File), src.Line)
		}
	}
	for _, f := range rest {
		b.WriteString(" " + f.key + "=" + quoted(f.value))
	}
	b.WriteByte('\n')
	return h.out.write([]byte(b.String()))
}

// collect appends attrs to dst with group names folded into dotted keys.
func collect(dst []field, prefix string, attrs []slog.Attr) []field {
	for _, a := range attrs {
		v := a.Value.Resolve()
		if v.Kind() == slog.KindGroup {
			inner := prefix
			if a.Key != "" {
				inner = prefix + a.Key + "."
			}
			dst = collect(dst, inner, v.Group())
			continue
		}
		if a.Key == "" {
			continue
		}
		dst = append(dst, field{key: prefix + a.Key, value: v})
	}
	return dst
}

func plain(v slog.Value) string {
	switch v.Kind() {
	case slog.KindString:
		return v.String()
	case slog.KindTime:
		return v.Time().UTC().Format(time.RFC3339)
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			return err.Error()
		}
	}
	return v.String()
}

func quoted(v slog.Value) string {
	s := plain(v)
	if s == "" || strings.ContainsAny(s, " \t\r\n=\"") {
		return strconv.Quote(s)
	}
	return s
}

func levelName(l slog.Level) string {
	switch {
	case l >= slog.LevelError:
		return "ERROR"
	case l >= slog.LevelWarn:
		return "WARN"
	case l >= slog.LevelInfo:
		return "INFO"
	}
	return "DEBUG"
}
