package parser

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"

	"MediaRadar/internal/domain"
	"MediaRadar/internal/scanner"
)

const (
	arxivBaseURL    = "https://arxiv.org"
	defaultPageSize = 200
	userAgent       = "MediaRadar/1.0"
)

var dateExpr = regexp.MustCompile(`\d{1,2} [A-Za-z]{3} \d{4}`)

// Selectors locate news entries on a listing page. Options with the same
// names on a site override them per request.
type Selectors struct {
	Item     string
	ID       string
	Link     string
	Title    string
	Summary  string
	Date     string
	Keywords string
	// DateLayout parses the first date found in the Date element.
	DateLayout string
	// Sibling means detail fields live in the element right after Item
	// (definition-list listings such as arxiv).
	Sibling bool
}

// DefaultSelectors fit a plain <article> based news listing.
func DefaultSelectors() Selectors {
	return Selectors{
		Item:       "article",
		Link:       "a[href]",
		Title:      "h2, h3",
		Summary:    "p",
		Date:       "time",
		Keywords:   ".tag",
		DateLayout: time.RFC3339,
	}
}

// ArxivSelectors fit arxiv.org category listings.
func ArxivSelectors() Selectors {
	return Selectors{
		Item:       "dl > dt",
		ID:         `a[href*="/abs/"]`,
		Link:       `a[href*="/abs/"]`,
		Title:      ".list-title",
		Summary:    "p.mathjax",
		Date:       ".list-date, .list-dateline",
		DateLayout: "2 Jan 2006",
		Sibling:    true,
	}
}

// ListingScanner crawls listing pages and extracts the items published on the
// requested day. Listings are expected newest first.
type ListingScanner struct {
	name      string
	baseURL   string
	client    *http.Client
	pageSize  int
	selectors Selectors
	logger    *slog.Logger
}

// NewListingScanner wires an HTTP client; pageSize defaults to 200.
func NewListingScanner(name string, client *http.Client, selectors Selectors, logger *slog.Logger) *ListingScanner {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	return &ListingScanner{
		name:      name,
		client:    client,
		pageSize:  defaultPageSize,
		selectors: selectors,
		logger:    logger,
	}
}

// NewArxivScanner returns the listing strategy preconfigured for arxiv.
func NewArxivScanner(client *http.Client, logger *slog.Logger) *ListingScanner {
	s := NewListingScanner("arxiv", client, ArxivSelectors(), logger)
	s.baseURL = arxivBaseURL
	return s
}

// Name identifies the strategy inside the registry.
func (s *ListingScanner) Name() string {
	return s.name
}

// Scan walks through each category URL and returns the items of the requested day.
func (s *ListingScanner) Scan(ctx context.Context, req scanner.Request) ([]domain.NewsItem, error) {
	if len(req.Categories) == 0 {
		return nil, fmt.Errorf("no categories provided for site %s", req.SiteName)
	}

	sel := s.resolveSelectors(req)
	pageSize := s.pageSize
	if v, err := strconv.Atoi(req.Option("page_size", "")); err == nil && v > 0 {
		pageSize = v
	}

	targetDay := req.Day.UTC().Truncate(24 * time.Hour)
	results := make([]domain.NewsItem, 0)
	seen := map[string]struct{}{}

	for _, cat := range req.Categories {
		skip := 0
		for {
			pageURL, err := buildPageURL(cat.URL, skip, pageSize)
			if err != nil {
				return nil, fmt.Errorf("category %s: %w", cat.Name, err)
			}

			doc, err := s.fetchDocument(ctx, pageURL)
			if err != nil {
				return nil, fmt.Errorf("category %s: %w", cat.Name, err)
			}

			base := req.Option("base_url", s.baseURL)
			if base == "" {
				base = pageURL
			}
			items, more := s.extract(doc, sel, pageSize, targetDay, base, cat.Name)
			for _, item := range items {
				if _, ok := seen[item.ID]; ok {
					continue
				}
				seen[item.ID] = struct{}{}
				results = append(results, item)
			}

			if !more {
				break
			}
			skip += pageSize
		}
	}

	s.debug("listing scanned", "site", req.SiteName, "items", len(results))
	return results, nil
}

func (s *ListingScanner) resolveSelectors(req scanner.Request) Selectors {
	sel := s.selectors
	sel.Item = req.Option("item", sel.Item)
	sel.ID = req.Option("id", sel.ID)
	sel.Link = req.Option("link", sel.Link)
	sel.Title = req.Option("title", sel.Title)
	sel.Summary = req.Option("summary", sel.Summary)
	sel.Date = req.Option("date", sel.Date)
	sel.Keywords = req.Option("keywords", sel.Keywords)
	sel.DateLayout = req.Option("date_layout", sel.DateLayout)
	return sel
}

func (s *ListingScanner) fetchDocument(ctx context.Context, pageURL string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request document: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s returned %s", s.name, resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	return doc, nil
}

// extract returns the page items of targetDay and whether the next page may
// still hold some.
func (s *ListingScanner) extract(doc *goquery.Document, sel Selectors, pageSize int, targetDay time.Time, base, category string) ([]domain.NewsItem, bool) {
	var (
		collected []domain.NewsItem
		more      = true
		processed int
	)

	doc.Find(sel.Item).EachWithBreak(func(_ int, entry *goquery.Selection) bool {
		processed++
		item, ok := parseEntry(entry, sel, base, category)
		if !ok {
			return true
		}

		if item.PublishedAt.IsZero() {
			collected = append(collected, item)
			return true
		}
		day := item.PublishedAt.UTC().Truncate(24 * time.Hour)
		if day.Equal(targetDay) {
			collected = append(collected, item)
		}
		if day.Before(targetDay) {
			more = false
			return false
		}
		return true
	})

	if processed < pageSize {
		more = false
	}
	return collected, more
}

func parseEntry(entry *goquery.Selection, sel Selectors, base, category string) (domain.NewsItem, bool) {
	scope := entry
	if sel.Sibling {
		scope = entry.AddSelection(entry.Next())
	}
	find := func(query string) *goquery.Selection {
		if query == "" {
			return scope.Slice(0, 0)
		}
		return scope.Find(query).First()
	}

	link := ""
	if href, ok := find(sel.Link).Attr("href"); ok {
		link = resolveURL(base, href)
	}

	title := stripLabel(find(sel.Title).Text(), "Title:")
	if title == "" {
		return domain.NewsItem{}, false
	}

	id := strings.TrimSpace(find(sel.ID).Text())
	if id == "" {
		id = link
	}
	if id == "" {
		id = uuid.NewSHA1(uuid.NameSpaceURL, []byte(category+"|"+title)).String()
	}

	var keywords []string
	if sel.Keywords != "" {
		scope.Find(sel.Keywords).Each(func(_ int, k *goquery.Selection) {
			if text := strings.TrimSpace(k.Text()); text != "" {
				keywords = append(keywords, text)
			}
		})
	}

	return domain.NewsItem{
		ID:          id,
		Title:       title,
		Description: stripLabel(find(sel.Summary).Text(), "Abstract:"),
		URL:         link,
		PublishedAt: parseDate(find(sel.Date), sel.DateLayout),
		Category:    category,
		Keywords:    keywords,
	}, true
}

func parseDate(node *goquery.Selection, layout string) time.Time {
	candidates := []string{}
	if v, ok := node.Attr("datetime"); ok {
		candidates = append(candidates, strings.TrimSpace(v))
	}
	text := strings.TrimSpace(node.Text())
	candidates = append(candidates, text)
	if m := dateExpr.FindString(text); m != "" {
		candidates = append(candidates, m)
	}

	for _, c := range candidates {
		for _, l := range []string{layout, time.RFC3339, "2 Jan 2006", "2006-01-02"} {
			if l == "" || c == "" {
				continue
			}
			if parsed, err := time.Parse(l, c); err == nil {
				return parsed.UTC()
			}
		}
	}
	return time.Time{}
}

func stripLabel(text, label string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, label)
	return strings.Join(strings.Fields(text), " ")
}

func resolveURL(base, href string) string {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return href
	}
	if ref.IsAbs() {
		return ref.String()
	}
	b, err := url.Parse(base)
	if err != nil {
		return href
	}
	return b.ResolveReference(ref).String()
}

func buildPageURL(base string, skip, pageSize int) (string, error) {
	parsed, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid category url %s: %w", base, err)
	}

	query := parsed.Query()
	query.Set("skip", strconv.Itoa(skip))
	query.Set("show", strconv.Itoa(pageSize))
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}

func (s *ListingScanner) debug(msg string, args ...interface{}) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}
