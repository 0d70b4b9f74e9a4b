// Package lifecycle holds the review state machine of media opportunities.
// It is a pure transition table: persistence and races are the caller's job.
package lifecycle

import (
	"fmt"
	"strings"
	"time"

	"MediaRadar/internal/domain"
)

// Action is a reviewer (or policy) intent on an opportunity.
type Action string

const (
	ActionReview  Action = "review"
	ActionAdd     Action = "add"
	ActionDismiss Action = "dismiss"
)

var targets = map[Action]domain.OpportunityStatus{
	ActionReview:  domain.StatusReviewed,
	ActionAdd:     domain.StatusAddedToCampaign,
	ActionDismiss: domain.StatusDismissed,
}

var allowed = map[domain.OpportunityStatus][]domain.OpportunityStatus{
	domain.StatusNew:             {domain.StatusReviewed, domain.StatusAddedToCampaign, domain.StatusDismissed},
	domain.StatusReviewed:        {domain.StatusAddedToCampaign, domain.StatusDismissed},
	domain.StatusAddedToCampaign: nil,
	domain.StatusDismissed:       nil,
}

// ParseAction accepts the external action names.
func ParseAction(s string) (Action, error) {
	a := Action(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := targets[a]; !ok {
		return "", fmt.Errorf("%w: unknown action %q", domain.ErrInvalidTransition, s)
	}
	return a, nil
}

// Target returns the status an action leads to.
func Target(a Action) (domain.OpportunityStatus, error) {
	to, ok := targets[a]
	if !ok {
		return "", fmt.Errorf("%w: unknown action %q", domain.ErrInvalidTransition, a)
	}
	return to, nil
}

// CanTransition reports whether from -> to is in the table.
func CanTransition(from, to domain.OpportunityStatus) bool {
	for _, next := range allowed[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition validates from -> to and returns the stamped copy. The input
// record is never modified.
func Transition(opp domain.MediaOpportunity, to domain.OpportunityStatus, now time.Time) (domain.MediaOpportunity, error) {
	if !CanTransition(opp.Status, to) {
		return opp, fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, opp.Status, to)
	}
	next := opp
	next.Status = to
	next.UpdatedAt = now
	return next, nil
}

// Apply runs the transition an action stands for.
func Apply(opp domain.MediaOpportunity, a Action, now time.Time) (domain.MediaOpportunity, error) {
	to, err := Target(a)
	if err != nil {
		return opp, err
	}
	return Transition(opp, to, now)
}

// MarkReviewed moves NEW to REVIEWED.
func MarkReviewed(opp domain.MediaOpportunity, now time.Time) (domain.MediaOpportunity, error) {
	return Transition(opp, domain.StatusReviewed, now)
}

// AddToCampaign approves the match.
func AddToCampaign(opp domain.MediaOpportunity, now time.Time) (domain.MediaOpportunity, error) {
	return Transition(opp, domain.StatusAddedToCampaign, now)
}

// Dismiss rejects the match.
func Dismiss(opp domain.MediaOpportunity, now time.Time) (domain.MediaOpportunity, error) {
	return Transition(opp, domain.StatusDismissed, now)
}

// Correct is the administrative escape hatch: it may leave a terminal state
// but still refuses unknown statuses and no-op moves.
func Correct(opp domain.MediaOpportunity, to domain.OpportunityStatus, now time.Time) (domain.MediaOpportunity, error) {
	if !to.Valid() || to == opp.Status {
		return opp, fmt.Errorf("%w: correction %s -> %s", domain.ErrInvalidTransition, opp.Status, to)
	}
	next := opp
	next.Status = to
	next.UpdatedAt = now
	return next, nil
}
