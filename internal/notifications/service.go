package notifications

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"captionminer/internal/config"
	"captionminer/internal/host"
)

const userAgent = "captionminer/0.1.0"

// Event names a notification.
type Event string

const (
	EventCardCreated        Event = "card_created"
	EventCardQueued         Event = "card_queued"
	EventSubmissionFailed   Event = "submission_failed"
	EventStorageInvalidated Event = "storage_invalidated"
	EventQueueSynced        Event = "queue_synced"
	EventTestNotification   Event = "test"
)

const (
	invalidatedMessage       = "Storage unavailable. Please restart captionminer and refresh the page to continue."
	defaultSubmitErrorDetail = "unknown error"
)

// Payload carries event fields. Known keys: mode, target, error, synced,
// remaining.
type Payload map[string]any

func (p Payload) text(key string) string {
	if p == nil {
		return ""
	}
	switch v := p[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case fmt.Stringer:
		return strings.TrimSpace(v.String())
	case error:
		return strings.TrimSpace(v.Error())
	case nil:
		return ""
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

// Service publishes events.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// Message is a formatted notification.
type Message struct {
	Title    string
	Body     string
	Tags     []string
	Priority string
	Kind     host.ToastKind
}

// Format renders an event. The boolean is false for unknown events.
func Format(event Event, payload Payload) (Message, bool) {
	mode := strings.ToUpper(payload.text("mode"))
	if mode == "" {
		mode = "CARD"
	}
	target := payload.text("target")
	switch event {
	case EventCardCreated:
		return Message{
			Title: "captionminer - Card Created",
			Body:  fmt.Sprintf("%s card created: %s", mode, target),
			Tags:  []string{"captionminer", "card", "created"},
			Kind:  host.ToastSuccess,
		}, true
	case EventCardQueued:
		return Message{
			Title: "captionminer - Saved Offline",
			Body:  fmt.Sprintf("%s card saved offline: %s", mode, target),
			Tags:  []string{"captionminer", "card", "offline"},
			Kind:  host.ToastInfo,
		}, true
	case EventSubmissionFailed:
		detail := payload.text("error")
		if detail == "" {
			detail = defaultSubmitErrorDetail
		}
		return Message{
			Title:    "captionminer - Error",
			Body:     fmt.Sprintf("Failed to create card: %s", detail),
			Tags:     []string{"captionminer", "error", "alert"},
			Priority: "high",
			Kind:     host.ToastError,
		}, true
	case EventStorageInvalidated:
		return Message{
			Title:    "captionminer - Storage Unavailable",
			Body:     invalidatedMessage,
			Tags:     []string{"captionminer", "error", "storage"},
			Priority: "high",
			Kind:     host.ToastError,
		}, true
	case EventQueueSynced:
		return Message{
			Title: "captionminer - Queue Synced",
			Body:  fmt.Sprintf("Synced %s offline card(s), %s remaining", orZero(payload.text("synced")), orZero(payload.text("remaining"))),
			Tags:  []string{"captionminer", "queue", "synced"},
			Kind:  host.ToastInfo,
		}, true
	case EventTestNotification:
		return Message{
			Title:    "captionminer - Test",
			Body:     "Notification system test",
			Tags:     []string{"captionminer", "test"},
			Priority: "low",
			Kind:     host.ToastInfo,
		}, true
	default:
		return Message{}, false
	}
}

func orZero(value string) string {
	if value == "" {
		return "0"
	}
	return value
}

// NewService builds the ntfy notifier when a topic is configured, and a
// no-op otherwise.
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
		cfg:      cfg.Notifications,
	}
}

type ntfyService struct {
	endpoint string
	client   *http.Client
	cfg      config.Notifications
}

func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	if !n.enabled(event) {
		return nil
	}
	msg, ok := Format(event, payload)
	if !ok {
		return nil
	}
	return n.send(ctx, msg)
}

func (n *ntfyService) enabled(event Event) bool {
	switch event {
	case EventCardCreated:
		return n.cfg.CardCreated
	case EventCardQueued, EventQueueSynced:
		return n.cfg.CardQueued
	case EventSubmissionFailed, EventStorageInvalidated:
		return n.cfg.Errors
	case EventTestNotification:
		return true
	default:
		return false
	}
}

func (n *ntfyService) send(ctx context.Context, msg Message) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(msg.Body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if msg.Title != "" {
		req.Header.Set("Title", msg.Title)
	}
	if len(msg.Tags) > 0 {
		req.Header.Set("Tags", strings.Join(msg.Tags, ","))
	}
	if msg.Priority != "" && msg.Priority != "default" {
		req.Header.Set("Priority", msg.Priority)
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

// NewToastService shows events as page toasts.
func NewToastService(toaster host.Toaster) Service {
	if toaster == nil {
		return noopService{}
	}
	return toastService{toaster: toaster}
}

type toastService struct {
	toaster host.Toaster
}

func (t toastService) Publish(_ context.Context, event Event, payload Payload) error {
	msg, ok := Format(event, payload)
	if !ok || event == EventTestNotification {
		return nil
	}
	return t.toaster.Toast(msg.Kind, msg.Body)
}

// Multi publishes to every service and joins their errors.
func Multi(services ...Service) Service {
	filtered := make([]Service, 0, len(services))
	for _, svc := range services {
		if svc == nil {
			continue
		}
		if _, ok := svc.(noopService); ok {
			continue
		}
		filtered = append(filtered, svc)
	}
	switch len(filtered) {
	case 0:
		return noopService{}
	case 1:
		return filtered[0]
	default:
		return multiService(filtered)
	}
}

type multiService []Service

func (m multiService) Publish(ctx context.Context, event Event, payload Payload) error {
	var errs []error
	for _, svc := range m {
		if err := svc.Publish(ctx, event, payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Noop returns a Service that drops every event.
func Noop() Service { return noopService{} }

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
