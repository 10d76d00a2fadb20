package logs_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"golemfacade/internal/logs"
)

const sampleLog = `{"ts":"2025-03-01T10:00:00Z","level":"info","msg":"yagna ready","component":"yagna","daemon":"yagna"}
{"ts":"2025-03-01T10:00:05Z","level":"info","msg":"activity created","component":"activity","agreement_id":"AGR-1","activity_id":"ACT-1"}
plain text line
{"ts":"2025-03-01T10:00:09Z","level":"warn","msg":"invoice retry","component":"invoice","agreement_id":"AGR-1","attempt":2}
`

func writeLog(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "golemfacade.log")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}
	return path
}

func TestReadLastEntries(t *testing.T) {
	path := writeLog(t, sampleLog)

	result, err := logs.Read(context.Background(), path, logs.ReadOptions{Offset: -1, Limit: 2})
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(result.Events) != 2 {
		t.Fatalf("expected 2 events, got %#v", result.Events)
	}
	if result.Events[0].Message != "plain text line" || result.Events[1].Message != "invoice retry" {
		t.Fatalf("unexpected events %#v", result.Events)
	}
	if result.Offset != int64(len(sampleLog)) {
		t.Fatalf("expected offset at end of file, got %d", result.Offset)
	}
}

func TestReadFiltersBeforeLimiting(t *testing.T) {
	path := writeLog(t, sampleLog)

	result, err := logs.Read(context.Background(), path, logs.ReadOptions{
		Offset: -1,
		Limit:  5,
		Filter: logs.Filter{Agreement: "AGR-1"},
	})
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(result.Events) != 2 {
		t.Fatalf("expected 2 agreement events, got %#v", result.Events)
	}
	retry := result.Events[1]
	if retry.Component != "invoice" || retry.Level != "warn" || retry.Fields["attempt"] != "2" {
		t.Fatalf("unexpected decoded event %#v", retry)
	}
	if _, ok := retry.Fields["agreement_id"]; ok {
		t.Fatal("agreement_id should be lifted out of Fields")
	}

	byComponent, err := logs.Read(context.Background(), path, logs.ReadOptions{
		Offset: -1,
		Limit:  5,
		Filter: logs.Filter{Component: "YAGNA"},
	})
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(byComponent.Events) != 1 || byComponent.Events[0].Daemon != "yagna" {
		t.Fatalf("unexpected component filter result %#v", byComponent.Events)
	}
}

func TestReadMissingFile(t *testing.T) {
	result, err := logs.Read(context.Background(), filepath.Join(t.TempDir(), "absent.log"), logs.ReadOptions{Offset: -1, Limit: 10})
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(result.Events) != 0 || result.Offset != 0 {
		t.Fatalf("expected empty result, got %#v", result)
	}
}

func TestReadLeavesPartialLine(t *testing.T) {
	path := writeLog(t, "{\"msg\":\"done\"}\n{\"msg\":\"half")

	result, err := logs.Read(context.Background(), path, logs.ReadOptions{Offset: 0})
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(result.Events) != 1 || result.Events[0].Message != "done" {
		t.Fatalf("unexpected events %#v", result.Events)
	}
	if result.Offset != int64(len("{\"msg\":\"done\"}\n")) {
		t.Fatalf("expected offset after first line, got %d", result.Offset)
	}
}

func TestReadFollowWaitsForNewEntries(t *testing.T) {
	path := writeLog(t, "{\"msg\":\"start\"}\n")

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	initial, err := logs.Read(ctx, path, logs.ReadOptions{Offset: -1, Limit: 1})
	if err != nil {
		t.Fatalf("initial read: %v", err)
	}
	if len(initial.Events) != 1 {
		t.Fatalf("expected initial entry, got %#v", initial.Events)
	}

	done := make(chan struct{})
	go func(offset int64) {
		defer close(done)
		res, err := logs.Read(ctx, path, logs.ReadOptions{Offset: offset, Follow: true, Wait: 5 * time.Second})
		if err != nil {
			t.Errorf("follow read: %v", err)
			return
		}
		if len(res.Events) != 1 || res.Events[0].Message != "later" {
			t.Errorf("unexpected follow entries: %#v", res.Events)
		}
	}(initial.Offset)

	time.Sleep(200 * time.Millisecond)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open append: %v", err)
	}
	if _, err := f.WriteString("{\"msg\":\"later\"}\n"); err != nil {
		t.Fatalf("append log: %v", err)
	}
	_ = f.Close()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("follow read did not return")
	}
}

func TestDecodePlainLine(t *testing.T) {
	evt := logs.Decode("2025/03/01 yagna exited")
	if evt.Message != "2025/03/01 yagna exited" || evt.Level != "" {
		t.Fatalf("unexpected decode %#v", evt)
	}
}
