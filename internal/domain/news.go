package domain

import "time"

// NewsItem is an immutable entry delivered by the feed collaborators.
type NewsItem struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	URL         string    `json:"url"`
	Source      string    `json:"source"`
	PublishedAt time.Time `json:"published_at"`
	Category    string    `json:"category"`
	Keywords    []string  `json:"keywords"`
	Region      string    `json:"region,omitempty"`
}
