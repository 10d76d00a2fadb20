package logs

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"golemfacade/internal/api"
	"golemfacade/internal/logging"
)

// Filter restricts which entries are returned. Empty fields match anything.
type Filter struct {
	Component string
	Agreement string
}

func (f Filter) match(evt api.LogEvent) bool {
	if c := strings.TrimSpace(f.Component); c != "" && !strings.EqualFold(c, evt.Component) {
		return false
	}
	if a := strings.TrimSpace(f.Agreement); a != "" && a != evt.AgreementID {
		return false
	}
	return true
}

// ReadOptions selects a window of the log file. A negative Offset returns the
// last Limit matching entries; otherwise reading starts at Offset bytes.
type ReadOptions struct {
	Offset int64
	Limit  int
	Follow bool
	Wait   time.Duration
	Filter Filter
}

// ReadResult carries decoded entries and the byte offset to resume from.
type ReadResult struct {
	Events []api.LogEvent
	Offset int64
}

// Read decodes entries from the log file at path. A missing file yields an
// empty result. With Follow it waits up to Wait for new matching entries.
func Read(ctx context.Context, path string, opts ReadOptions) (ReadResult, error) {
	result := ReadResult{Offset: opts.Offset}

	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			result.Offset = 0
			return result, nil
		}
		return result, fmt.Errorf("stat log file: %w", err)
	}
	if info.IsDir() {
		return result, fmt.Errorf("log path %q is a directory", path)
	}
	if opts.Wait < 0 {
		opts.Wait = 0
	}

	offset := opts.Offset
	if offset < 0 {
		events, end, err := lastEntries(path, opts.Limit, opts.Filter)
		if err != nil {
			return result, err
		}
		if len(events) > 0 || !opts.Follow {
			return ReadResult{Events: events, Offset: end}, nil
		}
		offset = end
	} else if offset > info.Size() {
		// The file was truncated or replaced by a new run.
		offset = 0
	}

	deadline := time.Now().Add(opts.Wait)
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()
	for {
		events, end, err := entriesFrom(path, offset, opts.Filter)
		if err != nil {
			return ReadResult{Offset: offset}, err
		}
		if len(events) > 0 || !opts.Follow || !time.Now().Before(deadline) {
			return ReadResult{Events: events, Offset: end}, nil
		}
		offset = end
		select {
		case <-ctx.Done():
			return ReadResult{Offset: offset}, ctx.Err()
		case <-ticker.C:
		}
	}
}

// lastEntries keeps a ring of the newest limit matching entries.
func lastEntries(path string, limit int, filter Filter) ([]api.LogEvent, int64, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	if limit <= 0 {
		end, err := file.Seek(0, io.SeekEnd)
		if err != nil {
			return nil, 0, fmt.Errorf("seek log file: %w", err)
		}
		return nil, end, nil
	}

	ring := make([]api.LogEvent, limit)
	count, idx := 0, 0
	end, err := scan(file, func(evt api.LogEvent) {
		if !filter.match(evt) {
			return
		}
		ring[idx] = evt
		idx = (idx + 1) % limit
		if count < limit {
			count++
		}
	})
	if err != nil {
		return nil, 0, err
	}

	events := make([]api.LogEvent, count)
	if count == limit {
		for i := range count {
			events[i] = ring[(idx+i)%limit]
		}
	} else {
		copy(events, ring[:count])
	}
	return events, end, nil
}

func entriesFrom(path string, offset int64, filter Filter) ([]api.LogEvent, int64, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, 0, nil
		}
		return nil, 0, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return nil, 0, fmt.Errorf("seek log file: %w", err)
	}
	var events []api.LogEvent
	read, err := scan(file, func(evt api.LogEvent) {
		if filter.match(evt) {
			events = append(events, evt)
		}
	})
	if err != nil {
		return nil, 0, err
	}
	return events, offset + read, nil
}

// scan decodes complete lines from r and returns the number of bytes
// consumed. A trailing line without a newline is left for the next read so a
// line being written is never split.
func scan(r io.Reader, fn func(api.LogEvent)) (int64, error) {
	reader := bufio.NewReaderSize(r, 64*1024)
	var consumed int64
	for {
		line, err := reader.ReadString('\n')
		if err == io.EOF {
			return consumed, nil
		}
		if err != nil {
			return consumed, fmt.Errorf("read log file: %w", err)
		}
		consumed += int64(len(line))
		line = strings.TrimRight(line, "\r\n")
		if strings.TrimSpace(line) == "" {
			continue
		}
		fn(Decode(line))
	}
}

// Decode turns one log line into an event. Lines that are not JSON objects
// become a bare message.
func Decode(line string) api.LogEvent {
	var raw map[string]any
	if err := json.Unmarshal([]byte(line), &raw); err != nil || raw == nil {
		return api.LogEvent{Message: line}
	}

	evt := api.LogEvent{}
	take := func(key string) string {
		v, ok := raw[key]
		if !ok {
			return ""
		}
		delete(raw, key)
		if s, ok := v.(string); ok {
			return s
		}
		return fmt.Sprint(v)
	}
	evt.Time = take("ts")
	evt.Level = take("level")
	evt.Message = take("msg")
	evt.Component = take(logging.FieldComponent)
	evt.AgreementID = take(logging.FieldAgreementID)
	evt.Daemon = take(logging.FieldDaemon)
	evt.EventType = take(logging.FieldEventType)
	if len(raw) > 0 {
		evt.Fields = make(map[string]string, len(raw))
		for key, value := range raw {
			switch v := value.(type) {
			case string:
				evt.Fields[key] = v
			default:
				encoded, err := json.Marshal(v)
				if err != nil {
					evt.Fields[key] = fmt.Sprint(v)
					continue
				}
				evt.Fields[key] = string(encoded)
			}
		}
	}
	return evt
}
