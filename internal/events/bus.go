package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"MediaRadar/internal/domain"
	"MediaRadar/internal/ports"
)

// ErrClosed is returned by Publish after Close.
var ErrClosed = errors.New("event bus closed")

// Handler consumes one event. Returning an error asks for redelivery, so
// handlers must tolerate duplicates (see Dedupe).
type Handler func(ctx context.Context, event domain.Event) error

// Options tunes the bus.
type Options struct {
	Buffer      int
	MaxAttempts int
	RetryDelay  time.Duration
	Clock       ports.Clock
}

type subscriber struct {
	name    string
	handler Handler
}

// Bus fans published events out to in-process subscribers from a single
// dispatcher goroutine with at-least-once delivery.
type Bus struct {
	logger      *slog.Logger
	clock       ports.Clock
	maxAttempts int
	retryDelay  time.Duration

	queue   chan domain.Event
	done    chan struct{}
	closing chan struct{}

	// mu guards closed and the in-flight count; it is never held across a
	// channel send.
	mu       sync.Mutex
	closed   bool
	inflight sync.WaitGroup

	subsMu sync.RWMutex
	subs   []subscriber
}

var _ ports.EventSink = (*Bus)(nil)

// NewBus starts the dispatcher.
func NewBus(logger *slog.Logger, opts Options) *Bus {
	if opts.Buffer <= 0 {
		opts.Buffer = 256
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 50 * time.Millisecond
	}
	b := &Bus{
		logger:      logger,
		clock:       opts.Clock,
		maxAttempts: opts.MaxAttempts,
		retryDelay:  opts.RetryDelay,
		queue:       make(chan domain.Event, opts.Buffer),
		done:        make(chan struct{}),
		closing:     make(chan struct{}),
	}
	go b.dispatch()
	return b
}

// Subscribe registers a named handler for every event type.
func (b *Bus) Subscribe(name string, handler Handler) {
	b.subsMu.Lock()
	defer b.subsMu.Unlock()
	b.subs = append(b.subs, subscriber{name: name, handler: handler})
}

// SubscribeTypes registers a handler that only sees the listed types.
func (b *Bus) SubscribeTypes(name string, handler Handler, types ...domain.EventType) {
	wanted := make(map[domain.EventType]struct{}, len(types))
	for _, t := range types {
		wanted[t] = struct{}{}
	}
	b.Subscribe(name, func(ctx context.Context, event domain.Event) error {
		if _, ok := wanted[event.Type]; !ok {
			return nil
		}
		return handler(ctx, event)
	})
}

// Publish stamps the event and queues it. It blocks while the buffer is full
// and gives up with ErrClosed once Close has started.
func (b *Bus) Publish(ctx context.Context, event domain.Event) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = b.now()
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrClosed
	}
	b.inflight.Add(1)
	b.mu.Unlock()
	defer b.inflight.Done()

	select {
	case b.queue <- event:
		return nil
	case <-b.closing:
		return ErrClosed
	case <-ctx.Done():
		return fmt.Errorf("publish %s: %w", event.Type, ctx.Err())
	}
}

// Close stops accepting events, releases blocked publishers and waits until
// the events already queued are delivered.
func (b *Bus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	close(b.closing)
	b.mu.Unlock()

	b.inflight.Wait()
	close(b.queue)
	<-b.done
	return nil
}

func (b *Bus) dispatch() {
	defer close(b.done)
	for event := range b.queue {
		b.subsMu.RLock()
		subs := append([]subscriber(nil), b.subs...)
		b.subsMu.RUnlock()

		for _, sub := range subs {
			b.deliver(sub, event)
		}
	}
}

func (b *Bus) deliver(sub subscriber, event domain.Event) {
	ctx := context.Background()
	for attempt := 1; attempt <= b.maxAttempts; attempt++ {
		err := b.invoke(ctx, sub, event)
		if err == nil {
			return
		}
		if attempt == b.maxAttempts {
			b.warn("event dropped", "subscriber", sub.name, "type", event.Type, "event_id", event.ID, "error", err)
			return
		}
		b.debug("event redelivery", "subscriber", sub.name, "type", event.Type, "attempt", attempt, "error", err)
		time.Sleep(b.retryDelay)
	}
}

func (b *Bus) invoke(ctx context.Context, sub subscriber, event domain.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return sub.handler(ctx, event)
}

func (b *Bus) now() time.Time {
	if b.clock != nil {
		return b.clock.Now()
	}
	return time.Now().UTC()
}

func (b *Bus) debug(msg string, args ...interface{}) {
	if b.logger != nil {
		b.logger.Debug(msg, args...)
	}
}

func (b *Bus) warn(msg string, args ...interface{}) {
	if b.logger != nil {
		b.logger.Warn(msg, args...)
	}
}
