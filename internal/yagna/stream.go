package yagna

import (
	"bufio"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"

	"golemfacade/internal/logging"
	"golemfacade/internal/services"
)

const dataPrefix = "data:"

// MessageReader splits a server-push stream into messages. Contiguous lines
// starting with "data:" form one message; a blank line or the end of the
// stream terminates it. Other lines are logged and dropped.
type MessageReader struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
	logger  *slog.Logger
	done    bool
}

// NewMessageReader wraps body. Closing the reader closes body.
func NewMessageReader(body io.ReadCloser, logger *slog.Logger) *MessageReader {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	if logger == nil {
		logger = logging.NewNop()
	}
	return &MessageReader{body: body, scanner: scanner, logger: logger}
}

// Next returns the payload of the next non-empty message. It returns io.EOF
// once the stream ends cleanly and any read error otherwise.
func (r *MessageReader) Next() (string, error) {
	for {
		if r.done {
			return "", io.EOF
		}
		msg, err := r.readMessage()
		if err != nil {
			return "", err
		}
		if msg != "" {
			return msg, nil
		}
	}
}

func (r *MessageReader) readMessage() (string, error) {
	var b strings.Builder
	for r.scanner.Scan() {
		line := strings.TrimRight(r.scanner.Text(), "\r")
		if line == "" {
			return b.String(), nil
		}
		if !strings.HasPrefix(line, dataPrefix) {
			r.logger.Error("unable to deserialize stream line",
				logging.String("line", line),
				logging.String(logging.FieldEventType, "stream_unexpected_line"),
			)
			continue
		}
		b.WriteString(strings.TrimLeft(line[len(dataPrefix):], " \t"))
	}
	r.done = true
	if err := r.scanner.Err(); err != nil {
		return "", err
	}
	return b.String(), nil
}

// NextEvent decodes the next message as a TrackingEvent. Malformed payloads
// are returned as ErrDecode so callers can skip them and keep reading.
func (r *MessageReader) NextEvent() (TrackingEvent, error) {
	msg, err := r.Next()
	if err != nil {
		return TrackingEvent{}, err
	}
	var event TrackingEvent
	if err := json.Unmarshal([]byte(msg), &event); err != nil {
		return TrackingEvent{}, services.Wrap(services.ErrDecode, "yagna-api", "decode monitor message", "", err)
	}
	return event, nil
}

// Close releases the underlying stream. It may be called concurrently with
// Next to unblock a pending read.
func (r *MessageReader) Close() error {
	return r.body.Close()
}

// IsStreamEnd reports whether err marks a cleanly closed stream.
func IsStreamEnd(err error) bool {
	return errors.Is(err, io.EOF)
}
