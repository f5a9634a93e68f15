// Package domain provides the core data model shared by the frontier,
// fetcher, parser, and duplicate detector.
package domain

import "time"

// Priority orders URLTasks within a host's queue. Higher values are
// dispatched first.
type Priority int

// Priority levels, low to high.
const (
	PriorityLow Priority = iota + 1
	PriorityNormal
	PriorityHigh
	PriorityCritical
)

// String renders the priority name for logging.
func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	case PriorityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// URLTask is a unit of crawl work queued against a single host.
type URLTask struct {
	URL        string    `json:"url"`
	Host       string    `json:"host"`
	Priority   Priority  `json:"priority"`
	Depth      int       `json:"depth"`
	ParentURL  string    `json:"parent_url,omitempty"`
	RetryCount int       `json:"retry_count"`
	AddedAt    time.Time `json:"added_at"`

	// ETag and LastModified are populated from a prior attempt's FetchResult
	// when a task is retried via Frontier.MarkFailed, so the retry fetch can
	// send conditional-GET headers instead of re-downloading an unchanged
	// body.
	ETag         string `json:"etag,omitempty"`
	LastModified string `json:"last_modified,omitempty"`
}

// FetchResult is the outcome of a single Fetcher.Fetch call.
type FetchResult struct {
	URL          string
	FinalURL     string
	StatusCode   int
	Body         string
	Headers      map[string]string
	ContentType  string
	Encoding     string
	ETag         string
	LastModified string
	Error        error
	FetchTime    time.Duration
	NotModified  bool
}

// SchemaOrgEntity is one structured-data item extracted from a page,
// whether sourced from JSON-LD or microdata.
type SchemaOrgEntity struct {
	Type       string         `json:"type"`
	Properties map[string]any `json:"properties"`
}

// ParsedContent is the structured result of parsing a fetched page.
type ParsedContent struct {
	URL          string              `json:"url"`
	CanonicalURL string              `json:"canonical_url,omitempty"`
	Title        string              `json:"title"`
	Description  string              `json:"description,omitempty"`
	Keywords     []string            `json:"keywords,omitempty"`
	Author       string              `json:"author,omitempty"`
	Language     string              `json:"language,omitempty"`
	Content      string              `json:"content"`
	Headings     map[string][]string `json:"headings"`
	Links        []string            `json:"links"`
	Images       []string            `json:"images"`
	SchemaOrg    []SchemaOrgEntity   `json:"schema_org,omitempty"`
	WordCount    int                 `json:"word_count"`
	ParentURL    string              `json:"parent_url,omitempty"`
	Depth        int                 `json:"depth"`
	FetchedAt    time.Time           `json:"fetched_at"`
}

// NewParsedContent returns a ParsedContent with headings pre-seeded for
// h1 through h6, matching the original parser's defaults.
func NewParsedContent(url string) *ParsedContent {
	return &ParsedContent{
		URL: url,
		Headings: map[string][]string{
			"h1": {}, "h2": {}, "h3": {}, "h4": {}, "h5": {}, "h6": {},
		},
		Links:  []string{},
		Images: []string{},
	}
}

// ContentHash bundles the four duplicate-detection hashes for a page.
type ContentHash struct {
	URLHash     string    `json:"url_hash"`
	ContentHash string    `json:"content_hash,omitempty"`
	TitleHash   string    `json:"title_hash,omitempty"`
	FuzzyHash   string    `json:"fuzzy_hash,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}
