package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/kknaks/study-timelapse/internal/config"
)

const userAgent = "study-timelapse/0.1"

// Event names a notification kind.
type Event string

const (
	EventSessionCompleted Event = "session_completed"
	EventSessionFailed    Event = "session_failed"
	EventSessionCancelled Event = "session_cancelled"
	EventTest             Event = "test"
)

// Payload carries the values an event message is built from.
type Payload map[string]string

// Service publishes notifications.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds an ntfy-backed notifier, or a no-op one when
// notifications.ntfy_topic is empty.
func NewService(cfg *config.Config) Service {
	if cfg == nil || strings.TrimSpace(cfg.Notifications.NtfyTopic) == "" {
		return noopService{}
	}
	return &ntfyService{
		endpoint:       cfg.Notifications.NtfyTopic,
		client:         &http.Client{Timeout: cfg.NotificationTimeout()},
		notifyFailures: cfg.Notifications.NotifyFailures,
	}
}

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint       string
	client         *http.Client
	notifyFailures bool
}

func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	msg, ok := n.format(event, payload)
	if !ok {
		return nil
	}
	return n.send(ctx, msg)
}

func (n *ntfyService) format(event Event, payload Payload) (message, bool) {
	get := func(key string) string { return strings.TrimSpace(payload[key]) }
	switch event {
	case EventSessionCompleted:
		body := fmt.Sprintf("🎬 Timelapse ready: %s of study in %s", orUnknown(get("recorded")), orUnknown(get("length")))
		if url := get("downloadURL"); url != "" {
			body += "\nDownload: " + url
		} else if path := get("artifact"); path != "" {
			body += "\nFile: " + path
		}
		return message{
			title: "Study Timelapse - Ready",
			body:  body,
			tags:  []string{"timelapse", "session", "completed"},
		}, true
	case EventSessionFailed:
		if !n.notifyFailures {
			return message{}, false
		}
		var b strings.Builder
		b.WriteString("❌ Session failed")
		if step := get("step"); step != "" {
			b.WriteString(" during ")
			b.WriteString(step)
		}
		b.WriteString(": ")
		b.WriteString(orUnknown(get("error")))
		return message{
			title:    "Study Timelapse - Failed",
			body:     b.String(),
			tags:     []string{"timelapse", "error", "alert"},
			priority: "high",
		}, true
	case EventTest:
		return message{
			title:    "Study Timelapse - Test",
			body:     "🧪 Notification system test",
			tags:     []string{"timelapse", "test"},
			priority: "low",
		}, true
	default:
		return message{}, false
	}
}

func orUnknown(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}

func (n *ntfyService) send(ctx context.Context, msg message) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(msg.body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if msg.title != "" {
		req.Header.Set("Title", msg.title)
	}
	if len(msg.tags) > 0 {
		req.Header.Set("Tags", strings.Join(msg.tags, ","))
	}
	if msg.priority != "" && msg.priority != "default" {
		req.Header.Set("Priority", msg.priority)
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
