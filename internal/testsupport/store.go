package testsupport

import (
	"context"
	"testing"

	"golemfacade/internal/config"
	"golemfacade/internal/jobs"
	"golemfacade/internal/journal"
)

// MustOpenJournal opens a journal.Store for tests and registers cleanup.
func MustOpenJournal(t testing.TB, cfg *config.Config) *journal.Store {
	t.Helper()

	store, err := journal.Open(cfg)
	if err != nil {
		t.Fatalf("journal.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// SaveJob stores job in the journal, failing the test on error.
func SaveJob(t testing.TB, store *journal.Store, job jobs.Job) {
	t.Helper()

	if err := store.SaveJob(context.Background(), job, ""); err != nil {
		t.Fatalf("store.SaveJob: %v", err)
	}
}
