package yagna_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"golemfacade/internal/logging"
	"golemfacade/internal/services"
	"golemfacade/internal/yagna"
)

func TestMessageReaderFraming(t *testing.T) {
	stream := strings.Join([]string{
		"data: {\"activities\":",
		"data:   []}",
		"",
		"",
		": keep-alive comment",
		"data:{\"activities\":[{\"id\":\"act-1\",\"agreementId\":\"A1\",\"state\":[\"Ready\",null],\"usage\":{\"golem.usage.gpu-sec\":2}}]}",
		"",
		"data: trailing",
	}, "\n")
	reader := yagna.NewMessageReader(io.NopCloser(strings.NewReader(stream)), logging.NewNop())

	first, err := reader.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if first != `{"activities":[]}` {
		t.Fatalf("first message = %q", first)
	}

	event, err := reader.NextEvent()
	if err != nil {
		t.Fatalf("NextEvent: %v", err)
	}
	if len(event.Activities) != 1 {
		t.Fatalf("activities = %+v", event.Activities)
	}
	record := event.Activities[0]
	if record.AgreementID != "A1" || record.State.Current != yagna.StateReady {
		t.Fatalf("record = %+v", record)
	}
	if got := record.Usage[yagna.CounterGPUSec]; got.String() != "2" {
		t.Fatalf("gpu usage = %s", got)
	}

	last, err := reader.Next()
	if err != nil || last != "trailing" {
		t.Fatalf("message at EOF = %q, %v", last, err)
	}
	if _, err := reader.Next(); !yagna.IsStreamEnd(err) {
		t.Fatalf("expected EOF, got %v", err)
	}
}

func TestMessageReaderDecodeErrorIsRecoverable(t *testing.T) {
	stream := "data: {broken\n\ndata: {\"activities\":[]}\n\n"
	reader := yagna.NewMessageReader(io.NopCloser(strings.NewReader(stream)), logging.NewNop())

	if _, err := reader.NextEvent(); !errors.Is(err, services.ErrDecode) {
		t.Fatalf("expected decode error, got %v", err)
	}
	event, err := reader.NextEvent()
	if err != nil {
		t.Fatalf("NextEvent after bad message: %v", err)
	}
	if len(event.Activities) != 0 {
		t.Fatalf("unexpected activities %+v", event.Activities)
	}
}

func TestOpenMonitorStreamsMessages(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/activity-api/v1/_monitor" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		flusher, _ := w.(http.Flusher)
		_, _ = io.WriteString(w, "data: {\"activities\":[]}\n\n")
		if flusher != nil {
			flusher.Flush()
		}
	})

	reader, err := client.OpenMonitor(context.Background())
	if err != nil {
		t.Fatalf("OpenMonitor: %v", err)
	}
	defer reader.Close()
	event, err := reader.NextEvent()
	if err != nil {
		t.Fatalf("NextEvent: %v", err)
	}
	if len(event.Activities) != 0 {
		t.Fatalf("unexpected activities %+v", event.Activities)
	}
	if _, err := reader.Next(); !yagna.IsStreamEnd(err) {
		t.Fatalf("expected end of stream, got %v", err)
	}
}
