package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"MediaRadar/internal/domain"
	"MediaRadar/internal/opportunity"
)

// ErrorResponse is the error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthResponse is the response for GET /health
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	Uptime  string `json:"uptime"`
}

// CriteriaRequest is the body of PUT .../criteria. FreshnessWindow uses Go
// duration syntax ("48h").
type CriteriaRequest struct {
	Keywords        []string      `json:"keywords"`
	Topics          []string      `json:"topics"`
	OutletTiers     []domain.Tier `json:"outlet_tiers"`
	Regions         []string      `json:"regions"`
	MinRelevance    float64       `json:"min_relevance"`
	FreshnessWindow string        `json:"freshness_window"`
	TriggerRematch  bool          `json:"trigger_rematch"`
}

// CriteriaResponse reports the stored generation.
type CriteriaResponse struct {
	Generation     int64 `json:"generation"`
	RematchStarted bool  `json:"rematch_started"`
}

// ScoreResponse is the response for POST .../opportunities
type ScoreResponse struct {
	Matched      bool                     `json:"matched"`
	Created      bool                     `json:"created"`
	Relevance    float64                  `json:"relevance"`
	Visibility   float64                  `json:"visibility"`
	Freshness    float64                  `json:"freshness"`
	Score        float64                  `json:"opportunity_score"`
	MatchReasons []string                 `json:"match_reasons"`
	Opportunity  *domain.MediaOpportunity `json:"opportunity,omitempty"`
}

// TransitionRequest is the body of POST .../transitions
type TransitionRequest struct {
	Action string `json:"action"`
}

// CorrectionRequest is the body of POST .../corrections
type CorrectionRequest struct {
	Status domain.OpportunityStatus `json:"status"`
}

// ApprovalRequest overrides the configured default policy field by field.
type ApprovalRequest struct {
	MinScore *float64     `json:"min_score"`
	MinTier  *domain.Tier `json:"min_tier"`
	MaxCount *int         `json:"max_count"`
	DryRun   bool         `json:"dry_run"`
}

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, http.StatusOK, HealthResponse{
		Status:  "ok",
		Version: s.opts.Version,
		Uptime:  time.Since(s.startTime).Round(time.Second).String(),
	})
}

func (s *Server) handleListCampaigns(w http.ResponseWriter, r *http.Request) {
	campaigns, err := s.radar.ListCampaigns(r.Context(), chi.URLParam(r, "org"))
	if err != nil {
		s.sendDomainError(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, nonNilSlice(campaigns))
}

// handleSaveCampaign serves both create (POST) and update (PUT).
func (s *Server) handleSaveCampaign(w http.ResponseWriter, r *http.Request) {
	var campaign domain.Campaign
	if err := json.NewDecoder(r.Body).Decode(&campaign); err != nil {
		s.sendError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	campaign.OrganizationID = chi.URLParam(r, "org")
	status := http.StatusCreated
	if id := chi.URLParam(r, "campaign"); id != "" {
		campaign.ID = id
		status = http.StatusOK
	}

	saved, err := s.radar.SaveCampaign(r.Context(), campaign)
	if err != nil {
		s.sendDomainError(w, err)
		return
	}
	s.sendJSON(w, status, saved)
}

func (s *Server) handleGetCampaign(w http.ResponseWriter, r *http.Request) {
	campaign, err := s.radar.GetCampaign(r.Context(), chi.URLParam(r, "org"), chi.URLParam(r, "campaign"))
	if err != nil {
		s.sendDomainError(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, campaign)
}

func (s *Server) handleUpdateCriteria(w http.ResponseWriter, r *http.Request) {
	var req CriteriaRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	criteria := domain.TargetingCriteria{
		Keywords:     req.Keywords,
		Topics:       req.Topics,
		OutletTiers:  req.OutletTiers,
		Regions:      req.Regions,
		MinRelevance: req.MinRelevance,
	}
	if req.FreshnessWindow != "" {
		window, err := time.ParseDuration(req.FreshnessWindow)
		if err != nil {
			s.sendError(w, http.StatusBadRequest, "freshness_window must be a duration such as 48h")
			return
		}
		criteria.FreshnessWindow = window
	}

	gen, err := s.radar.UpdateTargetingCriteria(r.Context(), chi.URLParam(r, "org"), chi.URLParam(r, "campaign"), criteria, req.TriggerRematch)
	if err != nil {
		s.sendDomainError(w, err)
		return
	}
	status := http.StatusOK
	if req.TriggerRematch {
		status = http.StatusAccepted
	}
	s.sendJSON(w, status, CriteriaResponse{Generation: gen, RematchStarted: req.TriggerRematch})
}

func (s *Server) handleListOpportunities(w http.ResponseWriter, r *http.Request) {
	opps, err := s.radar.ListOpportunities(r.Context(), chi.URLParam(r, "org"), chi.URLParam(r, "campaign"))
	if err != nil {
		s.sendDomainError(w, err)
		return
	}
	if status := r.URL.Query().Get("status"); status != "" {
		filtered := opps[:0]
		for _, o := range opps {
			if strings.EqualFold(string(o.Status), status) {
				filtered = append(filtered, o)
			}
		}
		opps = filtered
	}
	s.sendJSON(w, http.StatusOK, nonNilSlice(opps))
}

// handleScore handles POST .../opportunities with a news item body.
func (s *Server) handleScore(w http.ResponseWriter, r *http.Request) {
	var item domain.NewsItem
	if err := json.NewDecoder(r.Body).Decode(&item); err != nil {
		s.sendError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	out, err := s.radar.ScoreAndUpsertOpportunity(r.Context(), item, chi.URLParam(r, "org"), chi.URLParam(r, "campaign"))
	if err != nil {
		s.sendDomainError(w, err)
		return
	}

	status := http.StatusOK
	if out.Created {
		status = http.StatusCreated
	}
	s.sendJSON(w, status, toScoreResponse(out))
}

func toScoreResponse(out opportunity.Outcome) ScoreResponse {
	resp := ScoreResponse{
		Matched:      out.Matched,
		Created:      out.Created,
		Relevance:    out.Score.Relevance,
		Visibility:   out.Score.Visibility,
		Freshness:    out.Score.Freshness,
		Score:        out.Score.OpportunityScore,
		MatchReasons: nonNilSlice(out.Score.MatchReasons),
	}
	if out.Matched {
		opp := out.Opportunity
		resp.Opportunity = &opp
	}
	return resp
}

func (s *Server) handleGetOpportunity(w http.ResponseWriter, r *http.Request) {
	opp, err := s.radar.GetOpportunity(r.Context(), chi.URLParam(r, "org"), chi.URLParam(r, "id"))
	if err != nil {
		s.sendDomainError(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, opp)
}

func (s *Server) handleTransition(w http.ResponseWriter, r *http.Request) {
	var req TransitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Action == "" {
		s.sendError(w, http.StatusBadRequest, "action is required")
		return
	}

	opp, err := s.radar.TransitionOpportunity(r.Context(), chi.URLParam(r, "org"), chi.URLParam(r, "id"), req.Action)
	if err != nil {
		s.sendDomainError(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, opp)
}

func (s *Server) handleCorrection(w http.ResponseWriter, r *http.Request) {
	var req CorrectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Status == "" {
		s.sendError(w, http.StatusBadRequest, "status is required")
		return
	}

	opp, err := s.radar.CorrectOpportunity(r.Context(), chi.URLParam(r, "org"), chi.URLParam(r, "id"), req.Status)
	if err != nil {
		s.sendDomainError(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, opp)
}

func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	result, err := s.radar.CalculateReadiness(r.Context(), chi.URLParam(r, "org"), chi.URLParam(r, "campaign"))
	if err != nil {
		s.sendDomainError(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, result)
}

func (s *Server) handleCanExecute(w http.ResponseWriter, r *http.Request) {
	check, err := s.radar.CanExecuteCampaign(r.Context(), chi.URLParam(r, "org"), chi.URLParam(r, "campaign"))
	if err != nil {
		s.sendDomainError(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, check)
}

func (s *Server) handleRecommendations(w http.ResponseWriter, r *http.Request) {
	recs, err := s.radar.GetRecommendations(r.Context(), chi.URLParam(r, "org"), chi.URLParam(r, "campaign"))
	if err != nil {
		s.sendDomainError(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, recs)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := s.radar.GetTargetingSummary(r.Context(), chi.URLParam(r, "org"), chi.URLParam(r, "campaign"))
	if err != nil {
		s.sendDomainError(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, summary)
}

// handleMonitor handles GET /organizations/{org}/readiness?status=active,executing
func (s *Server) handleMonitor(w http.ResponseWriter, r *http.Request) {
	var statuses []domain.CampaignStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			if part = strings.TrimSpace(part); part != "" {
				statuses = append(statuses, domain.CampaignStatus(strings.ToLower(part)))
			}
		}
	}

	report, err := s.radar.MonitorCampaignsReadiness(r.Context(), chi.URLParam(r, "org"), statuses...)
	if err != nil {
		s.sendDomainError(w, err)
		return
	}
	if report.Failed > 0 {
		w.Header().Set("X-Partial-Failures", strconv.Itoa(report.Failed))
	}
	s.sendJSON(w, http.StatusOK, report)
}

func (s *Server) handleAutoApprove(w http.ResponseWriter, r *http.Request) {
	var req ApprovalRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.sendError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	policy := s.opts.DefaultPolicy
	if req.MinScore != nil {
		policy.MinScore = *req.MinScore
	}
	if req.MinTier != nil {
		policy.MinTier = *req.MinTier
	}
	if req.MaxCount != nil {
		policy.MaxCount = *req.MaxCount
	}
	policy.DryRun = req.DryRun

	result, err := s.radar.AutoApproveMatches(r.Context(), chi.URLParam(r, "org"), chi.URLParam(r, "campaign"), policy)
	if err != nil {
		s.sendDomainError(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, result)
}

// statusFor maps domain sentinels to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidCriteria):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidTransition), errors.Is(err, domain.ErrStaleGeneration):
		return http.StatusConflict
	case errors.Is(err, domain.ErrRepositoryUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) sendDomainError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "error", err)
		msg = "internal error"
	}
	s.sendError(w, status, msg)
}

func (s *Server) sendJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

func (s *Server) sendError(w http.ResponseWriter, status int, message string) {
	s.sendJSON(w, status, ErrorResponse{Error: message})
}

func nonNilSlice[T any](values []T) []T {
	if values == nil {
		return []T{}
	}
	return values
}

