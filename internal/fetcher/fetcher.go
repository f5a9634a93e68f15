package fetcher

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/example/webcrawler/internal/domain"
	"github.com/example/webcrawler/internal/logger"
)

// allowedContentTypes is the set of MIME types the fetcher will read bodies
// for. Anything else is reported with an error and no body.
var allowedContentTypes = map[string]bool{
	"text/html":             true,
	"text/plain":            true,
	"text/xml":              true,
	"application/xml":       true,
	"application/xhtml+xml": true,
	"application/json":      true,
	"application/ld+json":   true,
}

// Stats accumulates counters across all Fetch calls made by a Fetcher.
type Stats struct {
	TotalRequests        int64
	SuccessfulRequests   int64
	FailedRequests       int64
	RobotsBlocked        int64
	TotalBytesDownloaded int64
}

// Fetcher performs bounded-concurrency, robots-aware HTTP fetches.
type Fetcher struct {
	cfg    Config
	client *http.Client
	robots *RobotsChecker
	sem    chan struct{}
	log    logger.Interface

	mu    sync.Mutex
	stats Stats
}

// New builds a Fetcher from cfg, wiring a shared http.Client whose
// Transport pools connections within the configured concurrency budget and caches
// DNS lookups for DefaultDNSCacheTTL.
func New(cfg Config, log logger.Interface) *Fetcher {
	cfg = cfg.WithDefaults()

	dns := newDNSCache(DefaultDNSCacheTTL)
	transport := &http.Transport{
		DialContext:         dns.DialContext,
		MaxIdleConns:        cfg.MaxConcurrentRequests * 2,
		MaxConnsPerHost:     DefaultConnPerHost,
		MaxIdleConnsPerHost: DefaultConnPerHost,
		IdleConnTimeout:     90 * time.Second,
	}

	client := &http.Client{
		Transport:     transport,
		Timeout:       cfg.RequestTimeout,
		CheckRedirect: RedirectPolicy(cfg.MaxRedirects),
	}

	if log == nil {
		log = logger.NewNoOp()
	}

	return &Fetcher{
		cfg:    cfg,
		client: client,
		robots: NewRobotsChecker(client, cfg.UserAgent, cfg.RobotsCacheTTL),
		sem:    make(chan struct{}, cfg.MaxConcurrentRequests),
		log:    log,
	}
}

// Close releases idle connections held by the underlying transport.
func (f *Fetcher) Close() {
	f.client.CloseIdleConnections()
}

// Stats returns a snapshot of the fetcher's accumulated counters.
func (f *Fetcher) Stats() Stats {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stats
}

// CrawlDelay returns the Crawl-delay directive cached from rawURL's host
// robots.txt, or 0 if none was set or robots.txt hasn't been fetched yet.
// Callers use this to raise the Frontier's per-host politeness delay above
// the configured floor when a site asks for more room.
func (f *Fetcher) CrawlDelay(rawURL string) time.Duration {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return 0
	}
	return f.robots.CrawlDelay(parsed.Host)
}

// Fetch retrieves task.URL, honoring robots.txt, the configured content-type
// allow-list, and the 10 MiB response cap. It never returns a nil result:
// failures are reported through FetchResult.Error with StatusCode left at
// whatever the transport observed (0 on a pure network failure).
func (f *Fetcher) Fetch(ctx context.Context, task domain.URLTask) *domain.FetchResult {
	select {
	case f.sem <- struct{}{}:
	case <-ctx.Done():
		return &domain.FetchResult{URL: task.URL, Error: ctx.Err()}
	}
	defer func() { <-f.sem }()

	start := time.Now()
	f.incTotal()

	if f.cfg.RespectRobotsTxt {
		allowed, err := f.robots.IsAllowed(ctx, task.URL)
		if err == nil && !allowed {
			f.incRobotsBlocked()
			f.incFailed()
			return &domain.FetchResult{
				URL:        task.URL,
				StatusCode: http.StatusForbidden,
				Error:      fmt.Errorf("blocked by robots.txt"),
				FetchTime:  time.Since(start),
			}
		}
	}

	result := f.doFetch(ctx, task)
	result.FetchTime = time.Since(start)

	if result.Error != nil {
		f.incFailed()
	} else {
		f.incSuccess()
		f.addBytes(int64(len(result.Body)))
	}

	return result
}

func (f *Fetcher) doFetch(ctx context.Context, task domain.URLTask) *domain.FetchResult {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, task.URL, http.NoBody)
	if err != nil {
		return &domain.FetchResult{URL: task.URL, Error: fmt.Errorf("building request: %w", err)}
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	if task.ETag != "" {
		req.Header.Set("If-None-Match", task.ETag)
	}
	if task.LastModified != "" {
		req.Header.Set("If-Modified-Since", task.LastModified)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return &domain.FetchResult{URL: task.URL, Error: fmt.Errorf("fetching: %w", err)}
	}
	defer resp.Body.Close()

	result := &domain.FetchResult{
		URL:          task.URL,
		FinalURL:     resp.Request.URL.String(),
		StatusCode:   resp.StatusCode,
		Headers:      flattenHeader(resp.Header),
		ContentType:  resp.Header.Get("Content-Type"),
		ETag:         resp.Header.Get("ETag"),
		LastModified: resp.Header.Get("Last-Modified"),
	}

	if resp.StatusCode == http.StatusNotModified {
		result.NotModified = true
		return result
	}

	mediaType := strings.ToLower(strings.TrimSpace(strings.SplitN(result.ContentType, ";", 2)[0]))
	if mediaType != "" && !allowedContentTypes[mediaType] {
		result.Error = fmt.Errorf("non-text content type: %s", mediaType)
		return result
	}

	if resp.ContentLength > DefaultMaxResponseBytes {
		result.Error = fmt.Errorf("content length %d exceeds max %d", resp.ContentLength, DefaultMaxResponseBytes)
		return result
	}

	body, truncated, err := readCapped(resp.Body, DefaultMaxResponseBytes)
	if err != nil {
		result.Error = fmt.Errorf("reading body: %w", err)
		return result
	}
	if truncated {
		f.log.Warn("response body exceeds max size, discarding", "url", task.URL, "max_bytes", DefaultMaxResponseBytes)
		result.Error = fmt.Errorf("content exceeds max size %d", DefaultMaxResponseBytes)
		return result
	}

	text := decodeBody(body, result.ContentType)
	result.Body = text
	result.Encoding = detectedEncodingName(result.ContentType, body)

	return result
}

// readCapped reads r in DefaultReadChunkBytes chunks, aborting as soon as
// the cumulative size exceeds maxBytes. On abort it returns a nil buffer
// and truncated=true; the partial body is discarded, never surfaced.
func readCapped(r io.Reader, maxBytes int64) ([]byte, bool, error) {
	var buf []byte
	chunk := make([]byte, DefaultReadChunkBytes)

	for {
		n, err := r.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
			if int64(len(buf)) > maxBytes {
				return nil, true, nil
			}
		}
		if err == io.EOF {
			return buf, false, nil
		}
		if err != nil {
			return buf, false, err
		}
	}
}

func flattenHeader(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k := range h {
		out[k] = h.Get(k)
	}
	return out
}

func detectedEncodingName(contentType string, body []byte) string {
	_, name, _ := charsetDetermine(body, contentType)
	return name
}

func (f *Fetcher) incTotal() {
	f.mu.Lock()
	f.stats.TotalRequests++
	f.mu.Unlock()
}

func (f *Fetcher) incSuccess() {
	f.mu.Lock()
	f.stats.SuccessfulRequests++
	f.mu.Unlock()
}

func (f *Fetcher) incFailed() {
	f.mu.Lock()
	f.stats.FailedRequests++
	f.mu.Unlock()
}

func (f *Fetcher) incRobotsBlocked() {
	f.mu.Lock()
	f.stats.RobotsBlocked++
	f.mu.Unlock()
}

func (f *Fetcher) addBytes(n int64) {
	f.mu.Lock()
	f.stats.TotalBytesDownloaded += n
	f.mu.Unlock()
}
