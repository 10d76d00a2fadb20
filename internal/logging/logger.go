package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Options describes logger construction parameters.
type Options struct {
	Level  string
	Format string // "console" (default) or "json"
	// OutputPaths and ErrorOutputPaths accept "stdout", "stderr" or file
	// paths. Duplicates across both lists are opened once.
	OutputPaths      []string
	ErrorOutputPaths []string
	Development      bool
	// Stream receives a copy of every record for the log tail API.
	Stream *StreamHub
	// SessionID is stamped on every record when non-empty.
	SessionID string
}

// New builds a logger from opts. Source locations are included at debug
// level or in development mode.
func New(opts Options) (*slog.Logger, error) {
	level := new(slog.LevelVar)
	level.Set(parseLevel(opts.Level))
	withSource := opts.Development || level.Level() <= slog.LevelDebug

	build, err := formatFor(opts.Format)
	if err != nil {
		return nil, err
	}

	outputs := opts.OutputPaths
	if len(outputs) == 0 {
		outputs = []string{"stdout"}
	}
	errOutputs := opts.ErrorOutputPaths
	if len(errOutputs) == 0 {
		errOutputs = []string{"stderr"}
	}
	w, err := openSinks(append(append([]string(nil), outputs...), errOutputs...))
	if err != nil {
		return nil, err
	}

	handler := build(w, level, withSource)
	handler = newStreamHandler(handler, opts.Stream)
	if id := strings.TrimSpace(opts.SessionID); id != "" {
		handler = withStamp(handler, slog.String(FieldSessionID, id))
	}
	return slog.New(handler), nil
}

type handlerBuilder func(w io.Writer, level *slog.LevelVar, withSource bool) slog.Handler

func formatFor(format string) (handlerBuilder, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "console":
		return func(w io.Writer, level *slog.LevelVar, withSource bool) slog.Handler {
			return newPrettyHandler(w, level, withSource)
		}, nil
	case "json":
		return func(w io.Writer, level *slog.LevelVar, withSource bool) slog.Handler {
			return slog.NewJSONHandler(w, &slog.HandlerOptions{
				Level:       level,
				AddSource:   withSource,
				ReplaceAttr: compactJSON,
			})
		}, nil
	}
	return nil, fmt.Errorf("log format: unsupported value %q", format)
}

// compactJSON keeps JSON lines short: "ts" in RFC3339 UTC, lowercase levels
// and file:line sources. The offline log reader depends on these keys.
func compactJSON(_ []string, attr slog.Attr) slog.Attr {
	switch attr.Key {
	case slog.TimeKey:
		attr.Key = "ts"
		if attr.Value.Kind() == slog.KindTime {
			attr.Value = slog.StringValue(attr.Value.Time().UTC().Format(time.RFC3339))
		}
	case slog.LevelKey:
		attr.Value = slog.StringValue(strings.ToLower(attr.Value.String()))
	case slog.SourceKey:
		if src, ok := attr.Value.Any().(*slog.Source); ok && src != nil {
			attr.Value = slog.StringValue(fmt.Sprintf("%s:%d", filepath.Base(src.File), src.Line))
		}
	}
	return attr
}

func parseLevel(level string) slog.Level {
	var parsed slog.Level
	switch l := strings.ToLower(strings.TrimSpace(level)); l {
	case "warning":
		return slog.LevelWarn
	case "":
		return slog.LevelInfo
	default:
		if err := parsed.UnmarshalText([]byte(l)); err != nil {
			return slog.LevelInfo
		}
	}
	return parsed
}

func openSinks(paths []string) (io.Writer, error) {
	opened := make(map[string]bool)
	var writers []io.Writer
	for _, raw := range paths {
		path := strings.TrimSpace(raw)
		if path == "" || opened[path] {
			continue
		}
		opened[path] = true
		w, err := openSink(path)
		if err != nil {
			return nil, err
		}
		writers = append(writers, w)
	}
	switch len(writers) {
	case 0:
		return os.Stdout, nil
	case 1:
		return writers[0], nil
	}
	return io.MultiWriter(writers...), nil
}

func openSink(path string) (io.Writer, error) {
	switch path {
	case "stdout":
		return os.Stdout, nil
	case "stderr":
		return os.Stderr, nil
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create log dir %s: %w", dir, err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o664)
	if err != nil {
		return nil, fmt.Errorf("open log file %s: %w", path, err)
	}
	return f, nil
}
