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
	"unicode/utf8"
)

// consoleHandler writes one human readable line per record:
//
//	2026-01-02T15:04:05Z INFO activity: [0123456789ab] job started status=Computing
//
// The component and agreement are lifted out of the attributes into the
// line prefix; everything else follows as key=value pairs.
type consoleHandler struct {
	w      *syncWriter
	level  slog.Leveler
	source bool
	// group is the dotted prefix for attrs added after WithGroup.
	group string
	// bound holds WithAttrs attrs, flattened once.
	bound     []field
	component string
	agreement string
}

type field struct {
	key string
	val slog.Value
}

type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) write(p []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.w.Write(p)
	return err
}

func newPrettyHandler(w io.Writer, level slog.Leveler, source bool) slog.Handler {
	return &consoleHandler{w: &syncWriter{w: w}, level: level, source: source}
}

func (h *consoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *consoleHandler) Handle(_ context.Context, r slog.Record) error {
	line := *h
	fields := append([]field(nil), h.bound...)
	r.Attrs(func(a slog.Attr) bool {
		fields = line.collect(fields, h.group, a)
		return true
	})

	ts := r.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	buf := make([]byte, 0, 160)
	buf = ts.UTC().AppendFormat(buf, time.RFC3339)
	buf = append(buf, ' ')
	buf = append(buf, levelLabel(r.Level)...)
	buf = append(buf, ' ')
	if line.component != "" {
		buf = append(buf, line.component...)
		buf = append(buf, ": "...)
	}
	if line.agreement != "" {
		buf = append(buf, '[')
		buf = append(buf, ShortID(line.agreement)...)
		buf = append(buf, "] "...)
	}
	if msg := strings.TrimSpace(r.Message); msg != "" {
		buf = append(buf, msg...)
	} else {
		buf = append(buf, "(no message)"...)
	}
	if h.source && r.PC != 0 {
		if src := r.Source(); src != nil {
			buf = fmt.Appendf(buf, " [%s:%d]", filepath.Base(src.File), src.Line)
		}
	}
	for _, f := range fields {
		buf = append(buf, ' ')
		buf = append(buf, f.key...)
		buf = append(buf, '=')
		buf = appendValue(buf, f.val)
	}
	buf = append(buf, '\n')
	return h.w.write(buf)
}

func (h *consoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.bound = append([]field(nil), h.bound...)
	for _, a := range attrs {
		next.bound = next.collect(next.bound, h.group, a)
	}
	return &next
}

func (h *consoleHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	next.group = joinKey(h.group, name)
	return &next
}

// collect appends a to dst, expanding groups, and lifts the first component
// and agreement it sees into the line prefix.
func (h *consoleHandler) collect(dst []field, group string, a slog.Attr) []field {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return dst
	}
	if a.Value.Kind() == slog.KindGroup {
		inner := group
		if a.Key != "" {
			inner = joinKey(group, a.Key)
		}
		for _, ga := range a.Value.Group() {
			dst = h.collect(dst, inner, ga)
		}
		return dst
	}
	if group == "" {
		switch {
		case a.Key == FieldComponent && h.component == "":
			h.component = attrString(a.Value)
			return dst
		case a.Key == FieldAgreementID && h.agreement == "":
			h.agreement = attrString(a.Value)
			return dst
		}
	}
	return append(dst, field{key: joinKey(group, a.Key), val: a.Value})
}

func joinKey(group, key string) string {
	if group == "" {
		return key
	}
	return group + "." + key
}

// ShortID trims long hex identifiers for console display.
func ShortID(id string) string {
	id = strings.TrimSpace(id)
	if len(id) <= 12 {
		return id
	}
	return id[:12]
}

// attrString renders v without quoting, for lifted fields and the stream hub.
func attrString(v slog.Value) string {
	v = v.Resolve()
	switch v.Kind() {
	case slog.KindString:
		return v.String()
	case slog.KindTime:
		return v.Time().UTC().Format(time.RFC3339)
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			return err.Error()
		}
		return fmt.Sprint(v.Any())
	}
	return v.String()
}

func appendValue(buf []byte, v slog.Value) []byte {
	switch v.Kind() {
	case slog.KindBool:
		return strconv.AppendBool(buf, v.Bool())
	case slog.KindInt64:
		return strconv.AppendInt(buf, v.Int64(), 10)
	case slog.KindUint64:
		return strconv.AppendUint(buf, v.Uint64(), 10)
	case slog.KindFloat64:
		return strconv.AppendFloat(buf, v.Float64(), 'f', -1, 64)
	case slog.KindDuration:
		return append(buf, v.Duration().String()...)
	}
	s := attrString(v)
	if bare(s) {
		return append(buf, s...)
	}
	return strconv.AppendQuote(buf, s)
}

// bare reports whether s can be printed without quotes.
func bare(s string) bool {
	if s == "" || !utf8.ValidString(s) {
		return false
	}
	return !strings.ContainsFunc(s, func(r rune) bool { return r <= ' ' || r == '=' || r == '"' })
}

func levelLabel(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "ERROR"
	case level >= slog.LevelWarn:
		return "WARN"
	case level >= slog.LevelInfo:
		return "INFO"
	}
	return "DEBUG"
}
