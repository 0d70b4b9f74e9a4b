package lifecycle

import (
	"errors"
	"testing"
	"time"

	"MediaRadar/internal/domain"
)

var (
	created = time.Date(2025, time.November, 1, 9, 0, 0, 0, time.UTC)
	later   = created.Add(time.Hour)
)

func TestTransitionTable(t *testing.T) {
	t.Parallel()

	statuses := []domain.OpportunityStatus{
		domain.StatusNew,
		domain.StatusReviewed,
		domain.StatusAddedToCampaign,
		domain.StatusDismissed,
	}
	want := map[domain.OpportunityStatus]map[domain.OpportunityStatus]bool{
		domain.StatusNew: {
			domain.StatusReviewed:        true,
			domain.StatusAddedToCampaign: true,
			domain.StatusDismissed:       true,
		},
		domain.StatusReviewed: {
			domain.StatusAddedToCampaign: true,
			domain.StatusDismissed:       true,
		},
	}

	for _, from := range statuses {
		for _, to := range statuses {
			opp := domain.MediaOpportunity{ID: "o-1", Status: from, UpdatedAt: created}
			got, err := Transition(opp, to, later)
			if want[from][to] {
				if err != nil {
					t.Errorf("%s -> %s: unexpected error %v", from, to, err)
					continue
				}
				if got.Status != to || !got.UpdatedAt.Equal(later) {
					t.Errorf("%s -> %s: got %s at %v", from, to, got.Status, got.UpdatedAt)
				}
				continue
			}
			if !errors.Is(err, domain.ErrInvalidTransition) {
				t.Errorf("%s -> %s: err = %v, want ErrInvalidTransition", from, to, err)
			}
			if got.Status != from || !got.UpdatedAt.Equal(created) {
				t.Errorf("%s -> %s: record changed on failure", from, to)
			}
		}
	}
}

func TestTerminalStatesAreAbsorbing(t *testing.T) {
	t.Parallel()

	for _, terminal := range []domain.OpportunityStatus{domain.StatusAddedToCampaign, domain.StatusDismissed} {
		opp := domain.MediaOpportunity{Status: terminal}
		for _, a := range []Action{ActionReview, ActionAdd, ActionDismiss} {
			if _, err := Apply(opp, a, later); !errors.Is(err, domain.ErrInvalidTransition) {
				t.Errorf("%s via %s: err = %v", terminal, a, err)
			}
		}
	}
}

func TestApplyHelpers(t *testing.T) {
	t.Parallel()

	opp := domain.MediaOpportunity{Status: domain.StatusNew}
	reviewed, err := MarkReviewed(opp, later)
	if err != nil {
		t.Fatalf("MarkReviewed: %v", err)
	}
	added, err := AddToCampaign(reviewed, later)
	if err != nil {
		t.Fatalf("AddToCampaign: %v", err)
	}
	if added.Status != domain.StatusAddedToCampaign {
		t.Fatalf("status = %s", added.Status)
	}
	if _, err := Dismiss(added, later); err == nil {
		t.Fatalf("dismissing an added match should fail")
	}
	if opp.Status != domain.StatusNew {
		t.Fatalf("input record mutated")
	}
}

func TestParseAction(t *testing.T) {
	t.Parallel()

	if a, err := ParseAction(" Add "); err != nil || a != ActionAdd {
		t.Fatalf("ParseAction = %s, %v", a, err)
	}
	if _, err := ParseAction("archive"); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("unknown action err = %v", err)
	}
}

func TestCorrect(t *testing.T) {
	t.Parallel()

	opp := domain.MediaOpportunity{Status: domain.StatusDismissed}
	got, err := Correct(opp, domain.StatusReviewed, later)
	if err != nil {
		t.Fatalf("Correct: %v", err)
	}
	if got.Status != domain.StatusReviewed {
		t.Fatalf("status = %s", got.Status)
	}
	if _, err := Correct(opp, domain.StatusDismissed, later); err == nil {
		t.Fatalf("no-op correction should fail")
	}
	if _, err := Correct(opp, "ARCHIVED", later); err == nil {
		t.Fatalf("unknown status should fail")
	}
}
