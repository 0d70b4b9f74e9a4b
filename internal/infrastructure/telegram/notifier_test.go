package telegram

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"MediaRadar/internal/domain"
)

func TestPublishDigest(t *testing.T) {
	t.Parallel()

	var (
		gotPath string
		got     sendMessageRequest
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	n := NewNotifier("token", "42").WithAPIBase(server.URL)
	if err := n.PublishDigest(context.Background(), "hello"); err != nil {
		t.Fatalf("PublishDigest: %v", err)
	}
	if gotPath != "/bottoken/sendMessage" || got.Text != "hello" || got.ChatID != "42" || got.ParseMode != "Markdown" {
		t.Fatalf("unexpected request: %s %+v", gotPath, got)
	}
}

func TestPublishDigestRetriesServerErrors(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	n := NewNotifier("token", "42").WithAPIBase(server.URL)
	if err := n.PublishDigest(context.Background(), "hello"); err != nil {
		t.Fatalf("PublishDigest: %v", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("calls = %d, want 2", calls.Load())
	}
}

func TestPublishDigestClientErrorIsFinal(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"ok":false,"description":"Bad Request: chat not found"}`))
	}))
	defer server.Close()

	err := NewNotifier("token", "42").WithAPIBase(server.URL).PublishDigest(context.Background(), "hello")
	if err == nil || !strings.Contains(err.Error(), "chat not found") {
		t.Fatalf("err = %v, want chat not found", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("client errors must not be retried, calls = %d", calls.Load())
	}
}

func TestPublishDigestMisconfigured(t *testing.T) {
	t.Parallel()

	if err := NewNotifier("", "").PublishDigest(context.Background(), "x"); err == nil {
		t.Fatalf("expected error")
	}
}

func TestFormatEvent(t *testing.T) {
	t.Parallel()

	readiness := FormatEvent(domain.Event{
		Type:       domain.EventReadinessChanged,
		CampaignID: "spring_launch",
		Payload: domain.ReadinessChange{
			Previous: domain.ReadinessNotReady,
			Current:  domain.ReadinessReady,
		},
	})
	if !strings.Contains(readiness, `spring\_launch`) || !strings.Contains(readiness, "NOT_READY -> READY") {
		t.Fatalf("unexpected readiness message: %q", readiness)
	}

	rematch := FormatEvent(domain.Event{
		Type:       domain.EventRematchCompleted,
		CampaignID: "c-1",
		Payload:    domain.RematchReport{Scanned: 5, Upserted: 2, Failed: 1},
	})
	if !strings.Contains(rematch, "5 scanned, 2 matched, 1 failed") {
		t.Fatalf("unexpected rematch message: %q", rematch)
	}

	if msg := FormatEvent(domain.Event{Type: domain.EventRematchCompleted, Payload: domain.RematchReport{Superseded: true}}); msg != "" {
		t.Fatalf("superseded sweeps should stay quiet: %q", msg)
	}
	if msg := FormatEvent(domain.Event{Type: domain.EventOpportunityCreated, Payload: domain.MediaOpportunity{}}); msg != "" {
		t.Fatalf("unexpected message: %q", msg)
	}
}

type captureNotifier struct{ messages []string }

func (c *captureNotifier) PublishDigest(_ context.Context, digest string) error {
	c.messages = append(c.messages, digest)
	return nil
}

func TestEventHandler(t *testing.T) {
	t.Parallel()

	sink := &captureNotifier{}
	handle := EventHandler(sink)
	_ = handle(context.Background(), domain.Event{Type: domain.EventOpportunityCreated, Payload: domain.MediaOpportunity{}})
	_ = handle(context.Background(), domain.Event{Type: domain.EventReadinessChanged, CampaignID: "c", Payload: domain.ReadinessChange{Current: domain.ReadinessBlocked}})
	if len(sink.messages) != 1 || !strings.Contains(sink.messages[0], "is BLOCKED") {
		t.Fatalf("unexpected messages: %v", sink.messages)
	}
}
