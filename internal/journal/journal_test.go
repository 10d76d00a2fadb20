package journal_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"golemfacade/internal/golem"
	"golemfacade/internal/jobs"
	"golemfacade/internal/journal"
	"golemfacade/internal/logging"
	"golemfacade/internal/testsupport"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func sampleJob(id string, status jobs.Status, updated time.Time) jobs.Job {
	usage := jobs.NewUsage()
	usage.GPU = decimal.NewFromInt(10)
	return jobs.Job{
		ID:          id,
		RequestorID: "0xreq",
		Price: jobs.Price{
			Start:    decimal.NewFromInt(1),
			GPU:      decimal.RequireFromString("0.5"),
			Duration: decimal.Zero,
			Requests: decimal.Zero,
		},
		Status:    status,
		Usage:     usage,
		Timestamp: t0,
		UpdatedAt: updated,
	}
}

func TestSaveAndListJobs(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenJournal(t, cfg)
	ctx := context.Background()

	testsupport.SaveJob(t, store, sampleJob("A1", jobs.StatusComputing, t0))
	testsupport.SaveJob(t, store, sampleJob("A2", jobs.StatusFinished, t0.Add(time.Hour)))

	updated := sampleJob("A1", jobs.StatusFinished, t0.Add(2*time.Hour))
	updated.PaymentStatus = jobs.PaymentSettled
	testsupport.SaveJob(t, store, updated)

	job, err := store.Job(ctx, "A1")
	if err != nil {
		t.Fatalf("Job: %v", err)
	}
	if job == nil || job.Status != jobs.StatusFinished || job.PaymentStatus != jobs.PaymentSettled {
		t.Fatalf("unexpected job %+v", job)
	}
	if got := job.CurrentReward().String(); got != "6" {
		t.Fatalf("reward = %s, want 6", got)
	}

	all, err := store.ListJobs(ctx, time.Time{})
	if err != nil {
		t.Fatalf("ListJobs: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("jobs = %+v", all)
	}

	recent, err := store.ListJobs(ctx, t0.Add(90*time.Minute))
	if err != nil {
		t.Fatalf("ListJobs since: %v", err)
	}
	if len(recent) != 1 || recent[0].ID != "A1" {
		t.Fatalf("recent = %+v", recent)
	}

	missing, err := store.Job(ctx, "nope")
	if err != nil || missing != nil {
		t.Fatalf("missing job = %+v, %v", missing, err)
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats[jobs.StatusFinished] != 2 {
		t.Fatalf("stats = %v", stats)
	}
}

func TestReopenKeepsDataAndRejectsEmptyID(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store, err := journal.Open(cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := store.SaveJob(context.Background(), jobs.Job{}, ""); err == nil {
		t.Fatal("expected error for job without id")
	}
	testsupport.SaveJob(t, store, sampleJob("A1", jobs.StatusIdle, t0))
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened := testsupport.MustOpenJournal(t, cfg)
	if reopened.Path() != cfg.JournalPath() {
		t.Fatalf("path = %q", reopened.Path())
	}
	job, err := reopened.Job(context.Background(), "A1")
	if err != nil || job == nil {
		t.Fatalf("job after reopen = %+v, %v", job, err)
	}
}

func TestUncleanShutdownDetection(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenJournal(t, cfg)
	ctx := context.Background()

	unclean, err := store.UncleanShutdown(ctx)
	if err != nil || unclean {
		t.Fatalf("empty journal unclean=%v err=%v", unclean, err)
	}

	if err := store.BeginSession(ctx, "s1", t0); err != nil {
		t.Fatalf("BeginSession: %v", err)
	}
	if err := store.EndSession(ctx, "s1", t0.Add(time.Hour), "off"); err != nil {
		t.Fatalf("EndSession: %v", err)
	}
	if unclean, _ := store.UncleanShutdown(ctx); unclean {
		t.Fatal("clean stop reported as unclean")
	}

	if err := store.BeginSession(ctx, "s2", t0.Add(2*time.Hour)); err != nil {
		t.Fatalf("BeginSession: %v", err)
	}
	if unclean, _ := store.UncleanShutdown(ctx); !unclean {
		t.Fatal("open session not reported as unclean")
	}
	last, err := store.LastSession(ctx)
	if err != nil || last == nil || last.ID != "s2" || !last.Open() {
		t.Fatalf("last session = %+v, %v", last, err)
	}

	if err := store.EndSession(ctx, "s2", t0.Add(3*time.Hour), "error"); err != nil {
		t.Fatalf("EndSession: %v", err)
	}
	if unclean, _ := store.UncleanShutdown(ctx); !unclean {
		t.Fatal("session ending in error not reported as unclean")
	}
}

func TestRecorderTracksSessionsAndJobs(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenJournal(t, cfg)
	rec := journal.NewRecorder(store, logging.NewNop())
	ctx := context.Background()

	job := sampleJob("A1", jobs.StatusComputing, t0)
	updates := []golem.Update{
		{Kind: golem.UpdateStatus, At: t0, Status: golem.StatusStarting, SessionID: "s1"},
		{Kind: golem.UpdateStatus, At: t0, Status: golem.StatusReady, SessionID: "s1"},
		{Kind: golem.UpdateJob, At: t0, Job: &job, JobChange: jobs.ChangeCreated},
		// resume restart replaces s1 with s2 without passing through Off
		{Kind: golem.UpdateStatus, At: t0.Add(time.Minute), Status: golem.StatusStopping, SessionID: "s1"},
		{Kind: golem.UpdateStatus, At: t0.Add(time.Minute), Status: golem.StatusStarting, SessionID: "s2"},
		{Kind: golem.UpdateStatus, At: t0.Add(2 * time.Minute), Status: golem.StatusOff, SessionID: "s2"},
		{Kind: golem.UpdateEvent, At: t0, Event: &golem.Event{Kind: golem.EventOrphanTerminated, AgreementID: "A1"}},
	}
	for _, u := range updates {
		if err := rec.Record(ctx, u); err != nil {
			t.Fatalf("Record %s: %v", u.Kind, err)
		}
	}

	stored, err := store.Job(ctx, "A1")
	if err != nil || stored == nil || stored.Status != jobs.StatusComputing {
		t.Fatalf("stored job = %+v, %v", stored, err)
	}
	last, err := store.LastSession(ctx)
	if err != nil || last == nil || last.ID != "s2" || last.FinalStatus != "off" {
		t.Fatalf("last session = %+v, %v", last, err)
	}
	if unclean, _ := store.UncleanShutdown(ctx); unclean {
		t.Fatal("clean run reported as unclean")
	}
}

func TestRecorderRunDrainsQueue(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenJournal(t, cfg)
	rec := journal.NewRecorder(store, logging.NewNop())

	job := sampleJob("A9", jobs.StatusIdle, t0)
	rec.Observe(golem.Update{Kind: golem.UpdateJob, Job: &job})
	rec.Observe(golem.Update{Kind: golem.UpdateCurrentJob, Job: &job})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	done := make(chan struct{})
	go func() {
		rec.Run(ctx)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}

	stored, err := store.Job(context.Background(), "A9")
	if err != nil || stored == nil {
		t.Fatalf("queued job not written: %+v, %v", stored, err)
	}
}

func TestOpenRejectsOtherSchemaVersion(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenJournal(t, cfg)
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	db, err := sql.Open("sqlite", cfg.JournalPath())
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	if _, err := db.Exec("PRAGMA user_version = 9"); err != nil {
		t.Fatalf("set user_version: %v", err)
	}
	_ = db.Close()

	if _, err := journal.Open(cfg); !errors.Is(err, journal.ErrSchemaMismatch) {
		t.Fatalf("expected ErrSchemaMismatch, got %v", err)
	}
}
