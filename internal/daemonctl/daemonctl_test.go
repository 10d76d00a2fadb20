package daemonctl_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"golemfacade/internal/api"
	"golemfacade/internal/daemonctl"
	"golemfacade/internal/jobs"
	"golemfacade/internal/testsupport"
)

func TestBuildDependencySummary(t *testing.T) {
	tests := []struct {
		name     string
		deps     []api.DependencyStatus
		severity string
		detail   string
	}{
		{name: "none", severity: "info", detail: "No dependency checks configured"},
		{
			name:     "all available",
			deps:     []api.DependencyStatus{{Name: "yagna", Available: true}, {Name: "ya-provider", Available: true}},
			severity: "ok",
			detail:   "2/2 available",
		},
		{
			name:     "optional missing",
			deps:     []api.DependencyStatus{{Name: "yagna", Available: true}, {Name: "exe-units", Optional: true}},
			severity: "warn",
			detail:   "1/2 available (missing: 0 required, 1 optional)",
		},
		{
			name:     "required missing",
			deps:     []api.DependencyStatus{{Name: "yagna"}, {Name: "exe-units", Optional: true}},
			severity: "error",
			detail:   "0/2 available (missing: 1 required, 1 optional)",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := daemonctl.BuildDependencySummary(tt.deps)
			if got.Severity != tt.severity || got.Detail != tt.detail {
				t.Fatalf("summary = %+v, want severity %q detail %q", got, tt.severity, tt.detail)
			}
		})
	}
}

func TestBuildSystemChecksReflectsGolemState(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}

	lines := daemonctl.BuildSystemChecks(context.Background(), cfg, true, api.GolemStatus{
		Status:    "error",
		LastError: "ya-provider exited with code 1",
	})
	byLabel := make(map[string]api.StatusLine, len(lines))
	for _, line := range lines {
		byLabel[line.Label] = line
	}
	if byLabel["Daemon"].Severity != "ok" {
		t.Fatalf("daemon line = %+v", byLabel["Daemon"])
	}
	golem := byLabel["Golem"]
	if golem.Severity != "error" || !strings.Contains(golem.Detail, "exited with code 1") {
		t.Fatalf("golem line = %+v", golem)
	}
	if byLabel["Data Dir"].Severity != "ok" || byLabel["Log Dir"].Severity != "ok" {
		t.Fatalf("directory lines = %+v / %+v", byLabel["Data Dir"], byLabel["Log Dir"])
	}
	if _, ok := byLabel["Yagna API"]; ok {
		t.Fatal("yagna API should only be probed when golem is ready")
	}
}

func TestBuildStatusSnapshotOffline(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenJournal(t, cfg)
	for _, id := range []string{"A", "B"} {
		testsupport.SaveJob(t, store, jobs.Job{
			ID:        id,
			Status:    jobs.StatusFinished,
			Usage:     jobs.NewUsage(),
			Timestamp: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
			UpdatedAt: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		})
	}

	socket := filepath.Join(cfg.Paths.LogDir, "missing.sock")
	snapshot, err := daemonctl.BuildStatusSnapshot(context.Background(), socket, cfg)
	if err != nil {
		t.Fatalf("BuildStatusSnapshot: %v", err)
	}
	if snapshot.Reachable || snapshot.Running {
		t.Fatal("expected offline snapshot")
	}
	if snapshot.JobCounts[string(jobs.StatusFinished)] != 2 {
		t.Fatalf("job counts = %+v", snapshot.JobCounts)
	}
	if len(snapshot.Dependencies) < 2 {
		t.Fatalf("expected binary dependency checks, got %+v", snapshot.Dependencies)
	}
	for _, dep := range snapshot.Dependencies {
		if dep.Severity == "" {
			t.Fatalf("dependency %s has no severity", dep.Name)
		}
	}
}

func TestStopAndTerminateWithoutDaemon(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	socket := filepath.Join(t.TempDir(), "none.sock")
	if _, err := daemonctl.StopAndTerminate(socket, cfg, time.Second); !errors.Is(err, daemonctl.ErrDaemonNotRunning) {
		t.Fatalf("expected ErrDaemonNotRunning, got %v", err)
	}
}

func TestForceKillRefusesSelf(t *testing.T) {
	dir := t.TempDir()
	pidPath := filepath.Join(dir, "golemfacade.pid")
	if err := os.WriteFile(pidPath, []byte("0\n"), 0o644); err != nil {
		t.Fatalf("write pid: %v", err)
	}
	if _, err := daemonctl.ForceKill(pidPath, "", os.Getpid()); err == nil {
		t.Fatal("expected refusal to kill the current process")
	}
	if _, err := daemonctl.ForceKill(filepath.Join(dir, "missing.pid"), "", 0); err == nil {
		t.Fatal("expected error without any pid")
	}
}

func TestLaunchArgs(t *testing.T) {
	got := daemonctl.LaunchOptions{
		SocketPath:  " /run/gf.sock ",
		ConfigPath:  "/etc/gf.toml",
		NoAutoStart: true,
	}.Args()
	want := []string{"daemon", "--socket", "/run/gf.sock", "--config", "/etc/gf.toml", "--no-autostart"}
	if !slices.Equal(got, want) {
		t.Fatalf("Args() = %v, want %v", got, want)
	}
	if got := (daemonctl.LaunchOptions{Diagnostic: true}).Args(); !slices.Equal(got, []string{"daemon", "--diagnostic"}) {
		t.Fatalf("diagnostic Args() = %v", got)
	}
}
