package telegram

import (
	"context"
	"fmt"
	"strings"

	"MediaRadar/internal/domain"
	"MediaRadar/internal/ports"
)

// EventHandler turns core events into chat messages. Events without a
// message are ignored.
func EventHandler(n ports.Notifier) func(ctx context.Context, event domain.Event) error {
	return func(ctx context.Context, event domain.Event) error {
		msg := FormatEvent(event)
		if msg == "" {
			return nil
		}
		return n.PublishDigest(ctx, msg)
	}
}

// FormatEvent renders readiness changes and finished rematches.
func FormatEvent(event domain.Event) string {
	switch payload := event.Payload.(type) {
	case domain.ReadinessChange:
		var b strings.Builder
		if payload.Previous == "" {
			fmt.Fprintf(&b, "*Campaign %s* is %s\n", escape(event.CampaignID), payload.Current)
		} else {
			fmt.Fprintf(&b, "*Campaign %s*: %s -> %s\n", escape(event.CampaignID), payload.Previous, payload.Current)
		}
		for _, blocker := range payload.Result.Blockers {
			fmt.Fprintf(&b, "- blocker: %s\n", escape(blocker))
		}
		for _, critical := range payload.Result.Recommendations.Critical {
			fmt.Fprintf(&b, "- %s\n", escape(critical))
		}
		return strings.TrimRight(b.String(), "\n")
	case domain.RematchReport:
		if payload.Superseded {
			return ""
		}
		msg := fmt.Sprintf("*Campaign %s* rematch done: %d scanned, %d matched",
			escape(event.CampaignID), payload.Scanned, payload.Upserted)
		if payload.Failed > 0 {
			msg += fmt.Sprintf(", %d failed", payload.Failed)
		}
		if payload.Error != "" {
			msg += "\nerror: " + escape(payload.Error)
		}
		return msg
	default:
		return ""
	}
}

var markdownEscaper = strings.NewReplacer("_", `\_`, "*", `\*`, "`", "\\`", "[", `\[`)

func escape(s string) string {
	return markdownEscaper.Replace(s)
}
