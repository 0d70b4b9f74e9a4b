package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"MediaRadar/internal/approval"
	"MediaRadar/internal/clock"
	"MediaRadar/internal/domain"
	"MediaRadar/internal/infrastructure/storage/memory"
	"MediaRadar/internal/metrics"
	"MediaRadar/internal/opportunity"
	"MediaRadar/internal/readiness"
	"MediaRadar/internal/scoring"
	"MediaRadar/internal/usecase"
)

var now = time.Date(2025, time.November, 8, 12, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T, opts Options) (*Server, *usecase.Service) {
	t.Helper()

	repo := memory.New()
	fixed := clock.NewFixed(now)
	scorer, err := scoring.NewScorer(scoring.Config{}, scoring.NewTierTable(map[string]domain.Tier{"techwire": domain.TierA}))
	if err != nil {
		t.Fatalf("NewScorer: %v", err)
	}
	opps, err := opportunity.NewService(opportunity.Deps{Store: repo, Scorer: scorer, Clock: fixed})
	if err != nil {
		t.Fatalf("opportunity.NewService: %v", err)
	}
	ready, err := readiness.NewEngine(readiness.Deps{Repository: repo, Matcher: opps, Clock: fixed})
	if err != nil {
		t.Fatalf("readiness.NewEngine: %v", err)
	}
	approvals, err := approval.NewEngine(approval.Deps{Store: repo, Approver: opps, Readiness: ready})
	if err != nil {
		t.Fatalf("approval.NewEngine: %v", err)
	}
	svc, err := usecase.NewService(usecase.ServiceDeps{Repository: repo, Opportunities: opps, Readiness: ready, Approval: approvals, Clock: fixed})
	if err != nil {
		t.Fatalf("usecase.NewService: %v", err)
	}
	if opts.DefaultPolicy == (domain.ApprovalPolicy{}) {
		opts.DefaultPolicy = domain.ApprovalPolicy{MinScore: 0.5, MinTier: domain.TierB, MaxCount: 10}
	}
	return NewServer(svc, opts, nil), svc
}

func do(t *testing.T, s *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestHandleHealth(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t, Options{Version: "test"})
	rec := do(t, s, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp HealthResponse
	decode(t, rec, &resp)
	if resp.Status != "ok" || resp.Version != "test" {
		t.Fatalf("unexpected health: %+v", resp)
	}
}

func TestCampaignFlow(t *testing.T) {
	t.Parallel()

	s, svc := newTestServer(t, Options{})
	base := "/api/v1/organizations/org-1"

	rec := do(t, s, http.MethodPost, base+"/campaigns", domain.Campaign{Name: "Launch", Status: domain.CampaignActive})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create campaign: %d %s", rec.Code, rec.Body)
	}
	var campaign domain.Campaign
	decode(t, rec, &campaign)
	if campaign.OrganizationID != "org-1" || campaign.ID == "" {
		t.Fatalf("unexpected campaign: %+v", campaign)
	}
	cbase := base + "/campaigns/" + campaign.ID

	rec = do(t, s, http.MethodPut, cbase+"/criteria", CriteriaRequest{Keywords: []string{"AI", "funding"}, FreshnessWindow: "48h"})
	if rec.Code != http.StatusOK {
		t.Fatalf("criteria: %d %s", rec.Code, rec.Body)
	}
	var gen CriteriaResponse
	decode(t, rec, &gen)
	if gen.Generation != 1 {
		t.Fatalf("generation = %d", gen.Generation)
	}

	rec = do(t, s, http.MethodPut, cbase+"/criteria", CriteriaRequest{Keywords: []string{"AI"}, FreshnessWindow: "two days"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad duration: %d", rec.Code)
	}

	rec = do(t, s, http.MethodPost, cbase+"/opportunities", domain.NewsItem{
		ID:          "n-1",
		Title:       "Startup raises AI funding round",
		Source:      "techwire",
		PublishedAt: now.Add(-2 * time.Hour),
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("score: %d %s", rec.Code, rec.Body)
	}
	var scored ScoreResponse
	decode(t, rec, &scored)
	if !scored.Matched || scored.Opportunity == nil || len(scored.MatchReasons) == 0 {
		t.Fatalf("unexpected score: %+v", scored)
	}
	oppPath := base + "/opportunities/" + scored.Opportunity.ID

	rec = do(t, s, http.MethodPost, cbase+"/opportunities", domain.NewsItem{ID: "n-2", Title: "Bakery news"})
	if rec.Code != http.StatusOK {
		t.Fatalf("non-match: %d", rec.Code)
	}

	rec = do(t, s, http.MethodGet, cbase+"/can-execute", nil)
	var check domain.ExecutionCheck
	decode(t, rec, &check)
	if check.CanExecute {
		t.Fatalf("nothing approved yet")
	}

	rec = do(t, s, http.MethodPost, cbase+"/auto-approve", ApprovalRequest{DryRun: true})
	var dry domain.ApprovalResult
	decode(t, rec, &dry)
	if !dry.DryRun || dry.Approved != 1 {
		t.Fatalf("dry run: %+v", dry)
	}

	rec = do(t, s, http.MethodPost, oppPath+"/transitions", TransitionRequest{Action: "add"})
	if rec.Code != http.StatusOK {
		t.Fatalf("transition: %d %s", rec.Code, rec.Body)
	}
	rec = do(t, s, http.MethodPost, oppPath+"/transitions", TransitionRequest{Action: "dismiss"})
	if rec.Code != http.StatusConflict {
		t.Fatalf("terminal transition: %d", rec.Code)
	}

	rec = do(t, s, http.MethodGet, cbase+"/readiness", nil)
	var result domain.ReadinessResult
	decode(t, rec, &result)
	if result.Status != domain.ReadinessReady {
		t.Fatalf("readiness = %s blockers=%v", result.Status, result.Blockers)
	}

	rec = do(t, s, http.MethodGet, cbase+"/summary", nil)
	var summary domain.TargetingSummary
	decode(t, rec, &summary)
	if summary.Counts.Total != 1 || !summary.CriteriaComplete {
		t.Fatalf("summary: %+v", summary)
	}

	rec = do(t, s, http.MethodGet, base+"/readiness?status=active", nil)
	var report readiness.MonitorReport
	decode(t, rec, &report)
	if len(report.Campaigns) != 1 || report.Failed != 0 {
		t.Fatalf("monitor: %+v", report)
	}

	rec = do(t, s, http.MethodPost, oppPath+"/corrections", CorrectionRequest{Status: domain.StatusReviewed})
	if rec.Code != http.StatusOK {
		t.Fatalf("correction: %d %s", rec.Code, rec.Body)
	}

	rec = do(t, s, http.MethodGet, cbase+"/opportunities?status=REVIEWED", nil)
	var opps []domain.MediaOpportunity
	decode(t, rec, &opps)
	if len(opps) != 1 {
		t.Fatalf("filtered opportunities: %d", len(opps))
	}
	svc.Wait()
}

func TestNotFound(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t, Options{})
	for _, path := range []string{
		"/api/v1/organizations/org-1/campaigns/ghost/readiness",
		"/api/v1/organizations/org-1/campaigns/ghost",
		"/api/v1/organizations/org-1/opportunities/ghost",
	} {
		rec := do(t, s, http.MethodGet, path, nil)
		if rec.Code != http.StatusNotFound {
			t.Errorf("%s: status = %d", path, rec.Code)
		}
	}
}

func TestAuthMiddleware(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t, Options{APIKey: "secret"})

	rec := do(t, s, http.MethodGet, "/api/v1/organizations/org-1/campaigns", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status without key = %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/organizations/org-1/campaigns", nil)
	req.Header.Set("Authorization", "Bearer secret")
	ok := httptest.NewRecorder()
	s.Handler().ServeHTTP(ok, req)
	if ok.Code != http.StatusOK {
		t.Fatalf("status with key = %d", ok.Code)
	}

	if rec := do(t, s, http.MethodGet, "/health", nil); rec.Code != http.StatusOK {
		t.Fatalf("health must stay open, got %d", rec.Code)
	}
}

func TestMetricsMiddlewareWired(t *testing.T) {
	t.Parallel()

	m := metrics.New()
	s, _ := newTestServer(t, Options{Metrics: m})
	do(t, s, http.MethodGet, "/api/v1/organizations/org-1/campaigns/ghost/summary", nil)

	got := testutil.ToFloat64(m.APIRequestsTotal.WithLabelValues("GET", "/api/v1/organizations/{org}/campaigns/{campaign}/summary", "404"))
	if got != 1 {
		t.Fatalf("requests = %v", got)
	}
}

func TestStatusFor(t *testing.T) {
	t.Parallel()

	cases := map[error]int{
		fmt.Errorf("x: %w", domain.ErrInvalidCriteria):       http.StatusBadRequest,
		fmt.Errorf("x: %w", domain.ErrNotFound):              http.StatusNotFound,
		fmt.Errorf("x: %w", domain.ErrInvalidTransition):     http.StatusConflict,
		fmt.Errorf("x: %w", domain.ErrStaleGeneration):       http.StatusConflict,
		fmt.Errorf("x: %w", domain.ErrRepositoryUnavailable): http.StatusServiceUnavailable,
		errors.New("boom"):                                   http.StatusInternalServerError,
		context.DeadlineExceeded:                             http.StatusInternalServerError,
	}
	for err, want := range cases {
		if got := statusFor(err); got != want {
			t.Errorf("statusFor(%v) = %d, want %d", err, got, want)
		}
	}
}
