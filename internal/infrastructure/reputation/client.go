// Package reputation fetches outlet tiers from an external reputation service.
package reputation

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	"MediaRadar/internal/domain"
	"MediaRadar/internal/ports"
)

// Client talks to the reputation service.
type Client struct {
	endpoint string
	apiKey   string
	http     *http.Client
	maxTries uint
}

var _ ports.TierSource = (*Client)(nil)

// NewClient creates a reusable HTTP client.
func NewClient(endpoint, apiKey string) *Client {
	return &Client{
		endpoint: strings.TrimRight(endpoint, "/"),
		apiKey:   apiKey,
		http:     &http.Client{Timeout: 15 * time.Second},
		maxTries: 3,
	}
}

type tiersResponse struct {
	Sources []struct {
		Source string `json:"source"`
		Tier   string `json:"tier"`
	} `json:"sources"`
}

// FetchTiers returns the source -> tier mapping. Unknown tiers are skipped.
// Server errors are retried; client errors are not.
func (c *Client) FetchTiers(ctx context.Context) (map[string]domain.Tier, error) {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = 100 * time.Millisecond

	payload, err := backoff.Retry(ctx, func() (tiersResponse, error) {
		return c.get(ctx, "/tiers")
	},
		backoff.WithBackOff(exp),
		backoff.WithMaxTries(c.maxTries),
	)
	if err != nil {
		return nil, fmt.Errorf("fetch tiers: %w", err)
	}

	out := make(map[string]domain.Tier, len(payload.Sources))
	for _, s := range payload.Sources {
		tier, ok := domain.ParseTier(s.Tier)
		if !ok || strings.TrimSpace(s.Source) == "" {
			continue
		}
		out[s.Source] = tier
	}
	return out, nil
}

func (c *Client) get(ctx context.Context, path string) (tiersResponse, error) {
	var payload tiersResponse

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+path, nil)
	if err != nil {
		return payload, backoff.Permanent(fmt.Errorf("new request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return payload, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= http.StatusInternalServerError:
		return payload, fmt.Errorf("unexpected status %s", resp.Status)
	case resp.StatusCode != http.StatusOK:
		return payload, backoff.Permanent(fmt.Errorf("unexpected status %s", resp.Status))
	}

	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return payload, backoff.Permanent(fmt.Errorf("decode response: %w", err))
	}
	return payload, nil
}
