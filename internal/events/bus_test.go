package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"MediaRadar/internal/domain"
)

type collector struct {
	mu     sync.Mutex
	events []domain.Event
}

func (c *collector) handle(_ context.Context, e domain.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
	return nil
}

func (c *collector) snapshot() []domain.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.Event(nil), c.events...)
}

func TestBusFansOutToAllSubscribers(t *testing.T) {
	t.Parallel()

	bus := NewBus(nil, Options{})
	var first, second collector
	bus.Subscribe("first", first.handle)
	bus.Subscribe("second", second.handle)

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if err := bus.Publish(ctx, domain.Event{Type: domain.EventOpportunityCreated, CampaignID: "c-1"}); err != nil {
			t.Fatalf("Publish: %v", err)
		}
	}
	if err := bus.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if got := len(first.snapshot()); got != 5 {
		t.Fatalf("first got %d events, want 5", got)
	}
	events := second.snapshot()
	if len(events) != 5 {
		t.Fatalf("second got %d events, want 5", len(events))
	}
	if events[0].ID == "" || events[0].OccurredAt.IsZero() {
		t.Fatalf("events should be stamped: %+v", events[0])
	}
}

func TestBusRedeliversOnHandlerError(t *testing.T) {
	t.Parallel()

	bus := NewBus(nil, Options{MaxAttempts: 3, RetryDelay: time.Millisecond})
	var (
		mu    sync.Mutex
		calls int
	)
	bus.Subscribe("flaky", func(context.Context, domain.Event) error {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if calls < 2 {
			return errors.New("temporarily down")
		}
		return nil
	})

	if err := bus.Publish(context.Background(), domain.Event{Type: domain.EventReadinessChanged}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	_ = bus.Close()

	if calls != 2 {
		t.Fatalf("calls = %d, want 2", calls)
	}
}

func TestBusSubscribeTypesAndClose(t *testing.T) {
	t.Parallel()

	bus := NewBus(nil, Options{})
	var only collector
	bus.SubscribeTypes("readiness", only.handle, domain.EventReadinessChanged)

	ctx := context.Background()
	_ = bus.Publish(ctx, domain.Event{Type: domain.EventOpportunityCreated})
	_ = bus.Publish(ctx, domain.Event{Type: domain.EventReadinessChanged})
	_ = bus.Close()

	if got := only.snapshot(); len(got) != 1 || got[0].Type != domain.EventReadinessChanged {
		t.Fatalf("filtered events = %+v", got)
	}
	if err := bus.Publish(ctx, domain.Event{}); !errors.Is(err, ErrClosed) {
		t.Fatalf("publish after close err = %v", err)
	}
}

func TestDedupeSuppressesDuplicates(t *testing.T) {
	t.Parallel()

	var sink collector
	handler := Dedupe(2, sink.handle)
	at := time.Date(2025, time.November, 8, 0, 0, 0, 0, time.UTC)
	change := domain.Event{
		ID:         "e-1",
		Type:       domain.EventReadinessChanged,
		CampaignID: "c-1",
		OccurredAt: at,
		Payload:    domain.ReadinessChange{Current: domain.ReadinessReady},
	}
	redelivered := change
	redelivered.ID = "e-2"

	ctx := context.Background()
	_ = handler(ctx, change)
	_ = handler(ctx, redelivered)
	if got := len(sink.snapshot()); got != 1 {
		t.Fatalf("got %d events, want 1", got)
	}

	_ = handler(ctx, domain.Event{ID: "x", Type: domain.EventOpportunityCreated})
	_ = handler(ctx, domain.Event{ID: "y", Type: domain.EventOpportunityCreated})
	_ = handler(ctx, change)
	if got := len(sink.snapshot()); got != 4 {
		t.Fatalf("evicted key should be accepted again, got %d events", got)
	}
}

func TestBusCloseReleasesBlockedPublishers(t *testing.T) {
	t.Parallel()

	bus := NewBus(nil, Options{Buffer: 1})
	started := make(chan struct{})
	release := make(chan struct{})
	var (
		once      sync.Once
		delivered collector
	)
	bus.Subscribe("slow", func(ctx context.Context, e domain.Event) error {
		once.Do(func() {
			close(started)
			<-release
		})
		return delivered.handle(ctx, e)
	})

	ctx := context.Background()
	if err := bus.Publish(ctx, domain.Event{Type: domain.EventOpportunityCreated}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	<-started
	if err := bus.Publish(ctx, domain.Event{Type: domain.EventOpportunityCreated}); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	blocked := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			blocked <- bus.Publish(ctx, domain.Event{Type: domain.EventOpportunityCreated})
		}()
	}
	time.Sleep(20 * time.Millisecond)

	closed := make(chan error, 1)
	go func() { closed <- bus.Close() }()
	time.Sleep(20 * time.Millisecond)
	close(release)

	select {
	case err := <-closed:
		if err != nil {
			t.Fatalf("Close: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Close did not return with publishers blocked on a full queue")
	}

	for i := 0; i < 2; i++ {
		select {
		case err := <-blocked:
			if err != nil && !errors.Is(err, ErrClosed) {
				t.Fatalf("blocked publisher: %v", err)
			}
		case <-time.After(time.Second):
			t.Fatalf("blocked publisher never returned")
		}
	}
	if got := len(delivered.snapshot()); got < 2 {
		t.Fatalf("queued events should drain before Close returns, got %d", got)
	}
}
