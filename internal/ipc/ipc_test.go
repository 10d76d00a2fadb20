package ipc_test

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"golemfacade/internal/daemon"
	"golemfacade/internal/golem"
	"golemfacade/internal/ipc"
	"golemfacade/internal/jobs"
	"golemfacade/internal/logging"
	"golemfacade/internal/testsupport"
)

func startServer(t *testing.T, shutdown func()) *ipc.Client {
	t.Helper()

	cfg := testsupport.NewConfig(t)
	cfg.Paths.APIBind = ""
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	store := testsupport.MustOpenJournal(t, cfg)
	testsupport.SaveJob(t, store, jobs.Job{
		ID:        "AGR-1",
		Status:    jobs.StatusFinished,
		Usage:     jobs.NewUsage(),
		Timestamp: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC),
		UpdatedAt: time.Date(2025, 3, 1, 11, 0, 0, 0, time.UTC),
	})

	hub := logging.NewStreamHub(32)
	hub.Publish(logging.LogEvent{Message: "provider ready", Component: "provider"})
	hub.Publish(logging.LogEvent{Message: "activity created", Component: "activity", AgreementID: "AGR-1"})

	logger := logging.NewNop()
	g := golem.New(cfg, golem.Deps{Logger: logger})
	d, err := daemon.New(cfg, g, logger, daemon.Options{Journal: store, LogHub: hub, Shutdown: shutdown})
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() {
		d.Stop()
	})

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if err := d.Start(ctx); err != nil {
		t.Fatalf("daemon start: %v", err)
	}

	socket := filepath.Join(cfg.Paths.LogDir, "golemfacade.sock")
	srv, err := ipc.NewServer(ctx, socket, d, logger)
	if err != nil {
		if strings.Contains(err.Error(), "operation not permitted") || strings.Contains(err.Error(), "invalid argument") {
			t.Skipf("skipping IPC server test: %v", err)
		}
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()
	t.Cleanup(srv.Close)

	client, err := ipc.Dial(socket)
	if err != nil {
		t.Fatalf("ipc.Dial: %v", err)
	}
	t.Cleanup(func() {
		client.Close()
	})
	return client
}

func TestIPCServerClient(t *testing.T) {
	client := startServer(t, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	status, err := client.Status(ctx)
	if err != nil {
		t.Fatalf("Status RPC failed: %v", err)
	}
	if !status.Running {
		t.Fatal("expected daemon running")
	}
	if status.Golem.Status != string(golem.StatusOff) {
		t.Fatalf("expected golem off, got %q", status.Golem.Status)
	}
	if status.JobCounts[string(jobs.StatusFinished)] != 1 {
		t.Fatalf("unexpected job counts %+v", status.JobCounts)
	}

	list, err := client.ListJobs(ctx, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("ListJobs RPC failed: %v", err)
	}
	if len(list.Jobs) != 1 || list.Jobs[0].ID != "AGR-1" {
		t.Fatalf("unexpected jobs %+v", list.Jobs)
	}
	later, err := client.ListJobs(ctx, time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC))
	if err != nil || len(later.Jobs) != 0 {
		t.Fatalf("expected no jobs after april, got %+v err=%v", later, err)
	}

	desc, err := client.DescribeJob(ctx, "AGR-1")
	if err != nil || !desc.Found || desc.Job.Status != string(jobs.StatusFinished) {
		t.Fatalf("DescribeJob = %+v, %v", desc, err)
	}
	current, err := client.DescribeJob(ctx, "")
	if err != nil || current.Found {
		t.Fatalf("expected no current job, got %+v err=%v", current, err)
	}

	stop, err := client.StopGolem(ctx)
	if err != nil {
		t.Fatalf("Stop RPC failed: %v", err)
	}
	if !stop.Ok || stop.Golem.Status != string(golem.StatusOff) {
		t.Fatalf("unexpected stop response %+v", stop)
	}

	logs, err := client.LogTail(ctx, ipc.LogTailRequest{Component: "activity"})
	if err != nil {
		t.Fatalf("LogTail RPC failed: %v", err)
	}
	if len(logs.Events) != 1 || logs.Events[0].AgreementID != "AGR-1" {
		t.Fatalf("unexpected log events %+v", logs.Events)
	}

	followed, err := client.LogTail(ctx, ipc.LogTailRequest{Since: logs.Next, Follow: true, WaitMillis: 50})
	if err != nil {
		t.Fatalf("LogTail follow failed: %v", err)
	}
	if len(followed.Events) != 0 || followed.Next != logs.Next {
		t.Fatalf("expected empty follow result at %d, got %+v", logs.Next, followed)
	}

	shutdown, err := client.Shutdown(ctx)
	if err != nil {
		t.Fatalf("Shutdown RPC failed: %v", err)
	}
	if shutdown.Accepted {
		t.Fatal("shutdown should be refused without a handler")
	}
}

func TestIPCShutdownInvokesHandler(t *testing.T) {
	called := make(chan struct{})
	client := startServer(t, func() { close(called) })
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp, err := client.Shutdown(ctx)
	if err != nil {
		t.Fatalf("Shutdown RPC failed: %v", err)
	}
	if !resp.Accepted {
		t.Fatal("expected shutdown to be accepted")
	}
	select {
	case <-called:
	case <-time.After(2 * time.Second):
		t.Fatal("shutdown handler not invoked")
	}
}
