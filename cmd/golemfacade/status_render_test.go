package main

import (
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"golemfacade/internal/api"
)

func TestRenderStatusLineNoColor(t *testing.T) {
	got := renderStatusLine("Golem", statusError, "Not running", false)
	want := fmt.Sprintf("%s%-*s %s", statusIndent, statusLabelWidth, "Golem:", "[ERROR] Not running")
	if got != want {
		t.Fatalf("renderStatusLine mismatch\n got: %q\nwant: %q", got, want)
	}
}

func TestRenderStatusLineWithColor(t *testing.T) {
	got := renderStatusLine("Golem", statusOK, "Ready", true)
	if !strings.HasPrefix(got, ansiGreen) {
		t.Fatalf("expected green prefix, got %q", got)
	}
	if !strings.HasSuffix(got, ansiReset) {
		t.Fatalf("expected reset suffix, got %q", got)
	}
}

func TestDependencyLines(t *testing.T) {
	deps := []api.DependencyStatus{
		{Name: "yagna", Available: false, Severity: "error"},
		{Name: "ya-provider", Available: true, Command: "ya-provider"},
		{Name: "ntfy", Available: false, Optional: true, Detail: "not configured", Severity: "warn"},
	}
	summary := api.DependencySummary{Severity: "error", Detail: "1 required dependency missing"}
	lines := dependencyLines(deps, summary, false)
	if len(lines) != 4 {
		t.Fatalf("expected 4 lines, got %d", len(lines))
	}
	if !strings.Contains(lines[0], "Summary:") || !strings.Contains(lines[0], "[ERROR] 1 required dependency missing") {
		t.Fatalf("expected summary line first, got %q", lines[0])
	}
	if !strings.Contains(lines[1], "[ERROR] not available") {
		t.Fatalf("expected error detail in second line, got %q", lines[1])
	}
	if !strings.Contains(lines[2], "[OK] Ready (command: ya-provider)") {
		t.Fatalf("expected ready detail in third line, got %q", lines[2])
	}
	if !strings.Contains(lines[3], "[WARN] not configured") {
		t.Fatalf("expected warn detail in fourth line, got %q", lines[3])
	}
}

func TestShouldColorizeNonFile(t *testing.T) {
	if shouldColorize(io.Discard) {
		t.Fatalf("expected non-file writer to disable color")
	}
}

func TestTitleLabel(t *testing.T) {
	cases := map[string]string{
		"downloading_model": "Downloading Model",
		"finished":          "Finished",
		"":                  "-",
	}
	for in, want := range cases {
		if got := titleLabel(in); got != want {
			t.Fatalf("titleLabel(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestJobCountRowsSkipsZeroAndSorts(t *testing.T) {
	rows := jobCountRows(map[string]int{"finished": 3, "computing": 1, "interrupted": 0})
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %v", rows)
	}
	if rows[0][0] != "Computing" || rows[1][0] != "Finished" || rows[1][1] != "3" {
		t.Fatalf("unexpected rows %v", rows)
	}
}

func TestParseSince(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		in   string
		want time.Time
	}{
		{"", time.Time{}},
		{"all", time.Time{}},
		{"24h", now.Add(-24 * time.Hour)},
		{"7d", now.AddDate(0, 0, -7)},
		{"2025-03-01T00:00:00Z", time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)},
	}
	for _, tc := range tests {
		got, err := parseSince(tc.in, now)
		if err != nil {
			t.Fatalf("parseSince(%q): %v", tc.in, err)
		}
		if !got.Equal(tc.want) {
			t.Fatalf("parseSince(%q) = %s, want %s", tc.in, got, tc.want)
		}
	}
	for _, bad := range []string{"yesterday", "-1h"} {
		if _, err := parseSince(bad, now); err == nil {
			t.Fatalf("expected parseSince(%q) to fail", bad)
		}
	}
}

func TestShortID(t *testing.T) {
	if got := shortID("short"); got != "short" {
		t.Fatalf("shortID changed a short id: %q", got)
	}
	if got := shortID(testAgreementID); got != "3f1c9a2b…345678" {
		t.Fatalf("shortID = %q", got)
	}
}

func TestFormatLogEventSortsFields(t *testing.T) {
	line := formatLogEvent(api.LogEvent{
		Level:     "warn",
		Message:   "invoice retry",
		Component: "invoice",
		Fields:    map[string]string{"zeta": "1", "alpha": "2"},
	})
	if !strings.HasPrefix(line, "WARN  [invoice] invoice retry") {
		t.Fatalf("unexpected prefix %q", line)
	}
	if !strings.HasSuffix(line, " alpha=2 zeta=1") {
		t.Fatalf("expected sorted fields, got %q", line)
	}
}

func TestRenderTableAlignsColumns(t *testing.T) {
	out := renderTable([]tableColumn{{header: "Status"}, {header: "Count", align: alignRight}}, [][]string{{"Finished", "12"}})
	requireContains(t, out, "STATUS")
	requireContains(t, out, "Finished")
	if !strings.HasSuffix(out, "\n") {
		t.Fatalf("expected trailing newline, got %q", out)
	}
}
