package notifications_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"golemfacade/internal/clock"
	"golemfacade/internal/config"
	"golemfacade/internal/golem"
	"golemfacade/internal/jobs"
	"golemfacade/internal/logging"
	"golemfacade/internal/notifications"
)

type captured struct {
	title    string
	tags     string
	priority string
	body     string
}

func newNtfyServer(t *testing.T) (*httptest.Server, func() []captured) {
	t.Helper()
	var (
		mu   sync.Mutex
		msgs []captured
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method: %s", r.Method)
		}
		body, err := io.ReadAll(r.Body)
		if err != nil {
			t.Errorf("read body: %v", err)
		}
		mu.Lock()
		msgs = append(msgs, captured{
			title:    r.Header.Get("Title"),
			tags:     r.Header.Get("Tags"),
			priority: r.Header.Get("Priority"),
			body:     string(body),
		})
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)
	return server, func() []captured {
		mu.Lock()
		defer mu.Unlock()
		return append([]captured(nil), msgs...)
	}
}

func TestNewServiceReturnsNoopWhenTopicMissing(t *testing.T) {
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = ""
	svc := notifications.NewService(&cfg)
	if err := svc.Publish(context.Background(), notifications.EventGolemError, notifications.Payload{"message": "x"}); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
}

func TestNtfyServiceFormatsPayloads(t *testing.T) {
	tests := []struct {
		name           string
		event          notifications.Event
		payload        notifications.Payload
		expectTitle    string
		expectMessage  string
		expectTags     string
		expectPriority string
	}{
		{
			name:           "golem error",
			event:          notifications.EventGolemError,
			payload:        notifications.Payload{"message": "provider exited unexpectedly", "error": "exit code 1"},
			expectTitle:    "Golem - Error",
			expectMessage:  "❌ provider exited unexpectedly: exit code 1",
			expectTags:     "golem,error,alert",
			expectPriority: "high",
		},
		{
			name:          "job finished",
			event:         notifications.EventJobFinished,
			payload:       notifications.Payload{"agreement": "A1", "reward": "1.5"},
			expectTitle:   "Golem - Job Finished",
			expectMessage: "✅ Job finished: A1\nReward: 1.5 GLM",
			expectTags:    "golem,job,finished",
		},
		{
			name:          "payment settled",
			event:         notifications.EventPaymentSettled,
			payload:       notifications.Payload{"agreement": "A2"},
			expectTitle:   "Golem - Payment Settled",
			expectMessage: "💰 Payment settled: A2",
			expectTags:    "golem,payment,settled",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			server, messages := newNtfyServer(t)
			cfg := config.Default()
			cfg.Notifications.NtfyTopic = server.URL
			cfg.Notifications.RequestTimeout = 5

			svc := notifications.NewService(&cfg)
			if err := svc.Publish(context.Background(), tc.event, tc.payload); err != nil {
				t.Fatalf("notification returned error: %v", err)
			}
			got := messages()
			if len(got) != 1 {
				t.Fatalf("expected one message, got %d", len(got))
			}
			if got[0].title != tc.expectTitle {
				t.Fatalf("expected title %q, got %q", tc.expectTitle, got[0].title)
			}
			if got[0].body != tc.expectMessage {
				t.Fatalf("expected message %q, got %q", tc.expectMessage, got[0].body)
			}
			if got[0].tags != tc.expectTags {
				t.Fatalf("expected tags %q, got %q", tc.expectTags, got[0].tags)
			}
			if got[0].priority != tc.expectPriority {
				t.Fatalf("expected priority %q, got %q", tc.expectPriority, got[0].priority)
			}
		})
	}
}

func TestNtfyServiceHonoursDisabledKinds(t *testing.T) {
	server, messages := newNtfyServer(t)
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL
	cfg.Notifications.JobFinished = false

	svc := notifications.NewService(&cfg)
	if err := svc.Publish(context.Background(), notifications.EventJobFinished, notifications.Payload{"agreement": "A1"}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if got := messages(); len(got) != 0 {
		t.Fatalf("disabled kind was sent: %+v", got)
	}
}

func TestNtfyServiceReportsHTTPErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "topic closed", http.StatusForbidden)
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL
	svc := notifications.NewService(&cfg)
	if err := svc.Publish(context.Background(), notifications.EventTest, nil); err == nil {
		t.Fatal("expected error for 403 response")
	}
}

type recordingService struct {
	mu     sync.Mutex
	events []notifications.Event
	seen   chan struct{}
}

func (r *recordingService) Publish(_ context.Context, event notifications.Event, _ notifications.Payload) error {
	r.mu.Lock()
	r.events = append(r.events, event)
	r.mu.Unlock()
	r.seen <- struct{}{}
	return nil
}

func TestForwarderTranslatesAndDeduplicates(t *testing.T) {
	svc := &recordingService{seen: make(chan struct{}, 16)}
	clk := clock.NewFake(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	fwd := notifications.NewForwarder(svc, 10*time.Minute, clk, logging.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go fwd.Run(ctx)

	finished := jobs.Job{ID: "A1", Status: jobs.StatusFinished, Usage: jobs.NewUsage()}
	finished.Price.GPU = decimal.NewFromInt(1)
	settled := finished
	settled.PaymentStatus = jobs.PaymentSettled
	crash := golem.Event{Severity: golem.SeverityError, Kind: golem.EventDaemonExited, Message: "ya-provider exited"}
	info := golem.Event{Severity: golem.SeverityInfo, Kind: golem.EventStarted, Message: "started"}

	updates := []golem.Update{
		{Kind: golem.UpdateEvent, Event: &info},
		{Kind: golem.UpdateEvent, Event: &crash},
		{Kind: golem.UpdateEvent, Event: &crash},
		{Kind: golem.UpdateJob, Job: &finished, JobChange: jobs.ChangeUsage},
		{Kind: golem.UpdateJob, Job: &finished, JobChange: jobs.ChangeStatus},
		{Kind: golem.UpdateJob, Job: &settled, JobChange: jobs.ChangePaymentStatus},
	}
	for _, u := range updates {
		fwd.Observe(u)
	}

	for i := 0; i < 3; i++ {
		select {
		case <-svc.seen:
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for notification %d", i+1)
		}
	}
	select {
	case <-svc.seen:
		t.Fatal("duplicate error notification was sent")
	case <-time.After(50 * time.Millisecond):
	}

	svc.mu.Lock()
	defer svc.mu.Unlock()
	want := []notifications.Event{
		notifications.EventGolemError,
		notifications.EventJobFinished,
		notifications.EventPaymentSettled,
	}
	if len(svc.events) != len(want) {
		t.Fatalf("events = %v", svc.events)
	}
	for i := range want {
		if svc.events[i] != want[i] {
			t.Fatalf("events = %v, want %v", svc.events, want)
		}
	}
}
