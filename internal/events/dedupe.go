package events

import (
	"context"
	"fmt"
	"sync"
	"time"

	"MediaRadar/internal/domain"
)

// Key identifies an event for duplicate suppression. Readiness changes are
// keyed by campaign, new status and timestamp; everything else by event ID.
func Key(event domain.Event) string {
	if event.Type == domain.EventReadinessChanged {
		if change, ok := event.Payload.(domain.ReadinessChange); ok {
			return fmt.Sprintf("%s|%s|%s|%s", event.Type, event.CampaignID, change.Current, event.OccurredAt.Format(time.RFC3339Nano))
		}
	}
	return string(event.Type) + "|" + event.ID
}

// Dedupe wraps a handler so redelivered events are applied once. It remembers
// the last size keys.
func Dedupe(size int, next Handler) Handler {
	if size <= 0 {
		size = 1024
	}
	var (
		mu    sync.Mutex
		seen  = make(map[string]struct{}, size)
		order = make([]string, 0, size)
	)
	return func(ctx context.Context, event domain.Event) error {
		key := Key(event)

		mu.Lock()
		if _, dup := seen[key]; dup {
			mu.Unlock()
			return nil
		}
		mu.Unlock()

		if err := next(ctx, event); err != nil {
			return err
		}

		mu.Lock()
		defer mu.Unlock()
		if _, dup := seen[key]; dup {
			return nil
		}
		seen[key] = struct{}{}
		order = append(order, key)
		if len(order) > size {
			delete(seen, order[0])
			order = order[1:]
		}
		return nil
	}
}
