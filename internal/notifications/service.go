package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golemfacade/internal/config"
)

const userAgent = "golemfacade/0.1.0"

// Event names a notification kind.
type Event string

const (
	EventGolemError     Event = "golem_error"
	EventJobFinished    Event = "job_finished"
	EventPaymentSettled Event = "payment_settled"
	EventTest           Event = "test"
)

// Payload carries the values a notification message is built from.
type Payload map[string]string

// Service publishes notifications.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
		enabled: map[Event]bool{
			EventGolemError:     cfg.Notifications.Errors,
			EventJobFinished:    cfg.Notifications.JobFinished,
			EventPaymentSettled: cfg.Notifications.PaymentSettled,
			EventTest:           true,
		},
	}
}

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
	enabled  map[Event]bool
}

func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	if !n.enabled[event] {
		return nil
	}
	msg, ok := format(event, payload)
	if !ok {
		return nil
	}
	return n.send(ctx, msg)
}

func format(event Event, payload Payload) (message, bool) {
	get := func(key string) string { return strings.TrimSpace(payload[key]) }
	switch event {
	case EventGolemError:
		var b strings.Builder
		b.WriteString("❌ ")
		if msg := get("message"); msg != "" {
			b.WriteString(msg)
		} else {
			b.WriteString("Golem failed")
		}
		if errText := get("error"); errText != "" {
			b.WriteString(": ")
			b.WriteString(errText)
		}
		return message{
			title:    "Golem - Error",
			body:     b.String(),
			tags:     []string{"golem", "error", "alert"},
			priority: "high",
		}, true
	case EventJobFinished:
		body := fmt.Sprintf("✅ Job finished: %s", get("agreement"))
		if reward := get("reward"); reward != "" {
			body = fmt.Sprintf("%s\nReward: %s GLM", body, reward)
		}
		return message{
			title: "Golem - Job Finished",
			body:  body,
			tags:  []string{"golem", "job", "finished"},
		}, true
	case EventPaymentSettled:
		body := fmt.Sprintf("💰 Payment settled: %s", get("agreement"))
		if reward := get("reward"); reward != "" {
			body = fmt.Sprintf("%s\nAmount: %s GLM", body, reward)
		}
		return message{
			title: "Golem - Payment Settled",
			body:  body,
			tags:  []string{"golem", "payment", "settled"},
		}, true
	case EventTest:
		return message{
			title:    "Golem - Test",
			body:     "🧪 Notification system test",
			tags:     []string{"golem", "test"},
			priority: "low",
		}, true
	}
	return message{}, false
}

func (n *ntfyService) send(ctx context.Context, data message) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
