package invoice_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"golemfacade/internal/clock"
	"golemfacade/internal/invoice"
	"golemfacade/internal/jobs"
	"golemfacade/internal/logging"
	"golemfacade/internal/testsupport"
	"golemfacade/internal/yagna"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

// paymentAPI serves invoice events from a script. Once the script is
// exhausted, polls block like an idle long poll.
type paymentAPI struct {
	mu       sync.Mutex
	script   []func(w http.ResponseWriter)
	invoices map[string]string
	payments string
	polls    chan string
}

func newPaymentAPI(t *testing.T) (*paymentAPI, *yagna.Client) {
	t.Helper()
	api := &paymentAPI{invoices: map[string]string{}, payments: "[]", polls: make(chan string, 16)}
	server := httptest.NewServer(http.HandlerFunc(api.serve))
	t.Cleanup(server.Close)
	return api, yagna.NewClient(server.URL, logging.NewNop(), yagna.WithAppKey("key"))
}

func (a *paymentAPI) serve(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/payment-api/v1/invoiceEvents":
		a.polls <- r.URL.Query().Get("afterTimestamp")
		a.mu.Lock()
		var step func(http.ResponseWriter)
		if len(a.script) > 0 {
			step = a.script[0]
			a.script = a.script[1:]
		}
		a.mu.Unlock()
		if step == nil {
			<-r.Context().Done()
			return
		}
		step(w)
	case r.URL.Path == "/payment-api/v1/payments":
		a.mu.Lock()
		defer a.mu.Unlock()
		_, _ = io.WriteString(w, a.payments)
	case strings.HasPrefix(r.URL.Path, "/payment-api/v1/invoices/"):
		id := strings.TrimPrefix(r.URL.Path, "/payment-api/v1/invoices/")
		a.mu.Lock()
		body, ok := a.invoices[id]
		a.mu.Unlock()
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = io.WriteString(w, body)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (a *paymentAPI) respond(events ...yagna.InvoiceEvent) func(http.ResponseWriter) {
	return func(w http.ResponseWriter) {
		_ = json.NewEncoder(w).Encode(events)
	}
}

func (a *paymentAPI) setInvoice(id, agreementID string, status yagna.InvoiceStatus) {
	payload, _ := json.Marshal(map[string]any{
		"invoiceId":   id,
		"agreementId": agreementID,
		"amount":      "8",
		"status":      status,
		"timestamp":   t0,
	})
	a.mu.Lock()
	a.invoices[id] = string(payload)
	a.mu.Unlock()
}

func (a *paymentAPI) awaitPoll(t *testing.T) string {
	t.Helper()
	select {
	case since := <-a.polls:
		return since
	case <-time.After(5 * time.Second):
		t.Fatal("no invoice events poll")
		return ""
	}
}

type fixture struct {
	api      *paymentAPI
	clock    *clock.FakeClock
	registry *jobs.Registry
	changes  chan jobs.Change
}

// newFixture tracks agreement A1, lets setup script the API and then starts
// the loop.
func newFixture(t *testing.T, setup func(api *paymentAPI)) *fixture {
	t.Helper()
	return newLoggedFixture(t, logging.NewNop(), setup)
}

func newLoggedFixture(t *testing.T, logger *slog.Logger, setup func(api *paymentAPI)) *fixture {
	t.Helper()
	api, client := newPaymentAPI(t)
	setup(api)
	clk := clock.NewFake(t0)
	registry := jobs.NewRegistry(logging.NewNop(), clk)
	changes := make(chan jobs.Change, 64)
	registry.Subscribe(func(c jobs.Change) { changes <- c })
	agreement := testsupport.NewAgreement("A1", "0xrequestor", testsupport.AgreementPrice{GPU: 2, Duration: 3, Start: 1})
	if _, err := registry.GetOrCreateJob(agreement); err != nil {
		t.Fatalf("GetOrCreateJob: %v", err)
	}

	loop := invoice.NewLoop(client, registry, clk, logger)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- loop.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		if err := <-done; !errors.Is(err, context.Canceled) {
			t.Errorf("Run returned %v", err)
		}
	})
	return &fixture{api: api, clock: clk, registry: registry, changes: changes}
}

func (f *fixture) awaitPaymentStatus(t *testing.T, want jobs.PaymentStatus) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case c := <-f.changes:
			if c.Kind == jobs.ChangePaymentStatus && c.Job.PaymentStatus == want {
				return
			}
		case <-deadline:
			job, _ := f.registry.Get("A1")
			t.Fatalf("payment status %q never observed, have %q", want, job.PaymentStatus)
		}
	}
}

func TestLoopAppliesStatusAndAdvancesWatermark(t *testing.T) {
	f := newFixture(t, func(api *paymentAPI) {
		api.setInvoice("inv-1", "A1", yagna.InvoiceAccepted)
		api.setInvoice("inv-other", "B9", yagna.InvoiceSettled)
		api.setInvoice("inv-2", "A1", yagna.InvoiceSettled)
		api.payments = `[
			{"paymentId":"p-1","amount":"1","timestamp":"2025-03-01T12:00:07Z","agreementPayments":[{"agreementId":"A1","amount":"1"}]},
			{"paymentId":"p-2","amount":"4","timestamp":"2025-03-01T12:00:07Z","agreementPayments":[{"agreementId":"B9","amount":"4"}]}
		]`
		api.script = []func(http.ResponseWriter){
			api.respond(
				yagna.InvoiceEvent{InvoiceID: "inv-1", EventDate: t0.Add(5 * time.Second), EventType: "InvoiceAcceptedEvent"},
				yagna.InvoiceEvent{InvoiceID: "inv-other", EventDate: t0.Add(3 * time.Second), EventType: "InvoiceSettledEvent"},
			),
			api.respond(
				yagna.InvoiceEvent{InvoiceID: "inv-2", EventDate: t0.Add(8 * time.Second), EventType: "InvoiceSettledEvent"},
			),
		}
	})

	if since := f.api.awaitPoll(t); since != "0001-01-01T00:00:00.0000000Z" {
		t.Fatalf("initial watermark = %q", since)
	}
	f.awaitPaymentStatus(t, jobs.PaymentAccepted)

	if since := f.api.awaitPoll(t); since != yagna.FormatTimestamp(t0.Add(5*time.Second)) {
		t.Fatalf("second watermark = %q", since)
	}
	f.awaitPaymentStatus(t, jobs.PaymentSettled)

	if since := f.api.awaitPoll(t); since != yagna.FormatTimestamp(t0.Add(8*time.Second)) {
		t.Fatalf("third watermark = %q", since)
	}
	job, _ := f.registry.Get("A1")
	if len(job.Payments) != 1 || job.Payments[0].ID != "p-1" || job.Payments[0].Amount.String() != "1" {
		t.Fatalf("payments = %+v", job.Payments)
	}
	if f.registry.Contains("B9") {
		t.Fatal("invoice for untracked agreement created a job")
	}
}

func TestLoopBacksOffWithoutAdvancing(t *testing.T) {
	f := newFixture(t, func(api *paymentAPI) {
		api.script = []func(http.ResponseWriter){
			func(w http.ResponseWriter) { w.WriteHeader(http.StatusInternalServerError) },
			func(w http.ResponseWriter) { _, _ = io.WriteString(w, "{broken") },
		}
	})
	zero := "0001-01-01T00:00:00.0000000Z"

	if since := f.api.awaitPoll(t); since != zero {
		t.Fatalf("watermark = %q", since)
	}
	f.clock.WaitForTimers(1)
	f.clock.Advance(invoice.DefaultHTTPRetry - time.Millisecond)
	if f.clock.PendingCount() != 1 {
		t.Fatal("retried before the http backoff elapsed")
	}
	f.clock.Advance(time.Millisecond)

	if since := f.api.awaitPoll(t); since != zero {
		t.Fatalf("watermark moved after failure: %q", since)
	}
	f.clock.WaitForTimers(1)
	f.clock.Advance(invoice.DefaultErrorRetry - time.Second)
	if f.clock.PendingCount() != 1 {
		t.Fatal("retried before the error backoff elapsed")
	}
	f.clock.Advance(time.Second)

	if since := f.api.awaitPoll(t); since != zero {
		t.Fatalf("watermark moved after decode failure: %q", since)
	}
}

// recorder keeps every log record the loop emits.
type recorder struct {
	mu      *sync.Mutex
	records *[]slog.Record
}

func newRecorder() recorder {
	return recorder{mu: new(sync.Mutex), records: new([]slog.Record)}
}

func (r recorder) Enabled(context.Context, slog.Level) bool { return true }

func (r recorder) Handle(_ context.Context, rec slog.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	*r.records = append(*r.records, rec.Clone())
	return nil
}

func (r recorder) WithAttrs([]slog.Attr) slog.Handler { return r }
func (r recorder) WithGroup(string) slog.Handler      { return r }

// find returns the first record with msg.
func (r recorder) find(msg string) (slog.Record, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range *r.records {
		if rec.Message == msg {
			return rec, true
		}
	}
	return slog.Record{}, false
}

func TestLoopReportsUntrackedInvoiceAtInfo(t *testing.T) {
	rec := newRecorder()
	f := newLoggedFixture(t, slog.New(rec), func(api *paymentAPI) {
		api.setInvoice("inv-other", "B9", yagna.InvoiceSettled)
		api.script = []func(http.ResponseWriter){
			api.respond(yagna.InvoiceEvent{InvoiceID: "inv-other", EventDate: t0.Add(3 * time.Second), EventType: "InvoiceSettledEvent"}),
		}
	})

	f.api.awaitPoll(t)
	if since := f.api.awaitPoll(t); since != yagna.FormatTimestamp(t0.Add(3*time.Second)) {
		t.Fatalf("watermark = %q", since)
	}

	entry, ok := rec.find("invoice for untracked agreement dropped")
	if !ok {
		t.Fatal("dropped invoice was not logged")
	}
	if entry.Level != slog.LevelInfo {
		t.Fatalf("level = %s, want INFO", entry.Level)
	}
	var agreement string
	entry.Attrs(func(a slog.Attr) bool {
		if a.Key == logging.FieldAgreementID {
			agreement = a.Value.String()
		}
		return true
	})
	if agreement != "B9" {
		t.Fatalf("agreement attr = %q", agreement)
	}
	if f.registry.Contains("B9") {
		t.Fatal("invoice for untracked agreement created a job")
	}
}
