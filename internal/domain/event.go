package domain

import "time"

// EventType names the notifications emitted by the core.
type EventType string

const (
	EventOpportunityCreated      EventType = "opportunity-created"
	EventOpportunityTransitioned EventType = "opportunity-transitioned"
	EventReadinessChanged        EventType = "readiness-changed"
	EventRematchCompleted        EventType = "rematch-completed"
)

// Event carries a payload snapshot for external listeners.
type Event struct {
	ID             string    `json:"id"`
	Type           EventType `json:"type"`
	CampaignID     string    `json:"campaign_id"`
	OrganizationID string    `json:"organization_id"`
	OccurredAt     time.Time `json:"occurred_at"`
	Payload        any       `json:"payload"`
}

// ReadinessChange is the payload of EventReadinessChanged.
type ReadinessChange struct {
	Previous ReadinessStatus `json:"previous"`
	Current  ReadinessStatus `json:"current"`
	Result   ReadinessResult `json:"result"`
}

// TransitionChange is the payload of EventOpportunityTransitioned.
type TransitionChange struct {
	From        OpportunityStatus `json:"from"`
	To          OpportunityStatus `json:"to"`
	Opportunity MediaOpportunity  `json:"opportunity"`
	Correction  bool              `json:"correction,omitempty"`
}

// RematchReport is the payload of EventRematchCompleted.
type RematchReport struct {
	Generation int64  `json:"generation"`
	Scanned    int    `json:"scanned"`
	Upserted   int    `json:"upserted"`
	Failed     int    `json:"failed"`
	Superseded bool   `json:"superseded"`
	Error      string `json:"error,omitempty"`
}
