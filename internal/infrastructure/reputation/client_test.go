package reputation

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"MediaRadar/internal/domain"
	"MediaRadar/internal/scoring"
)

func TestFetchTiers(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		if r.URL.Path != "/tiers" || r.Header.Get("Authorization") != "Bearer secret" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(`{"sources":[{"source":"techwire","tier":"A"},{"source":"daily","tier":"b"},{"source":"odd","tier":"Z"}]}`))
	}))
	defer server.Close()

	c := NewClient(server.URL+"/", "secret")
	tiers, err := c.FetchTiers(context.Background())
	if err != nil {
		t.Fatalf("FetchTiers: %v", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected one retry, got %d calls", calls.Load())
	}
	if len(tiers) != 2 || tiers["techwire"] != domain.TierA || tiers["daily"] != domain.TierB {
		t.Fatalf("unexpected tiers: %v", tiers)
	}
}

func TestFetchTiersClientErrorIsNotRetried(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	if _, err := NewClient(server.URL, "").FetchTiers(context.Background()); err == nil {
		t.Fatalf("expected error")
	}
	if calls.Load() != 1 {
		t.Fatalf("4xx should not be retried, got %d calls", calls.Load())
	}
}

type stubSource struct {
	tiers map[string]domain.Tier
	err   error
}

func (s stubSource) FetchTiers(context.Context) (map[string]domain.Tier, error) {
	return s.tiers, s.err
}

func TestRefresherStaticEntriesWin(t *testing.T) {
	t.Parallel()

	table := scoring.NewTierTable(map[string]domain.Tier{"techwire": domain.TierA})
	static := map[string]domain.Tier{"techwire": domain.TierA}
	r := NewRefresher(stubSource{tiers: map[string]domain.Tier{"techwire": domain.TierC, "daily": domain.TierB}}, table, static, 0, nil)

	if err := r.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if tier, _ := table.Lookup(domain.NewsItem{Source: "techwire"}); tier != domain.TierA {
		t.Fatalf("static tier should win, got %s", tier)
	}
	if tier, ok := table.Lookup(domain.NewsItem{Source: "daily"}); !ok || tier != domain.TierB {
		t.Fatalf("remote tier missing: %s/%v", tier, ok)
	}

	failing := NewRefresher(stubSource{err: errors.New("down")}, table, nil, 0, nil)
	if err := failing.Refresh(context.Background()); err == nil {
		t.Fatalf("expected error")
	}
	if table.Len() != 2 {
		t.Fatalf("failed refresh must keep the table, len = %d", table.Len())
	}
}
