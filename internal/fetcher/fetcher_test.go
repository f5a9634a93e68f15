package fetcher

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/webcrawler/internal/domain"
	"github.com/example/webcrawler/internal/logger"
)

func newTestFetcher(t *testing.T, respectRobots bool) *Fetcher {
	t.Helper()
	cfg := Config{
		MaxConcurrentRequests: 4,
		UserAgent:             "TestCrawler/1.0",
		RespectRobotsTxt:      respectRobots,
	}
	return New(cfg, logger.NewNoOp())
}

func TestFetch_SuccessfulHTML(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("ETag", `"abc123"`)
		_, _ = w.Write([]byte("<html><body><h1>Hello</h1></body></html>"))
	}))
	defer srv.Close()

	f := newTestFetcher(t, true)
	result := f.Fetch(t.Context(), domain.URLTask{URL: srv.URL})

	require.NoError(t, result.Error)
	assert.Equal(t, http.StatusOK, result.StatusCode)
	assert.Contains(t, result.Body, "Hello")
	assert.Equal(t, `"abc123"`, result.ETag)

	stats := f.Stats()
	assert.Equal(t, int64(1), stats.SuccessfulRequests)
	assert.Equal(t, int64(0), stats.FailedRequests)
}

func TestFetch_RejectsDisallowedByRobots(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			_, _ = w.Write([]byte("User-agent: *\nDisallow: /private\n"))
			return
		}
		_, _ = w.Write([]byte("should not be reached"))
	}))
	defer srv.Close()

	f := newTestFetcher(t, true)
	result := f.Fetch(t.Context(), domain.URLTask{URL: srv.URL + "/private/page"})

	require.Error(t, result.Error)
	assert.Equal(t, http.StatusForbidden, result.StatusCode)

	stats := f.Stats()
	assert.Equal(t, int64(1), stats.RobotsBlocked)
	assert.Equal(t, int64(1), stats.FailedRequests)
}

func TestFetch_RejectsNonTextContentType(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte{0x89, 0x50, 0x4e, 0x47})
	}))
	defer srv.Close()

	f := newTestFetcher(t, false)
	result := f.Fetch(t.Context(), domain.URLTask{URL: srv.URL + "/image.png"})

	require.Error(t, result.Error)
	assert.Contains(t, result.Error.Error(), "non-text content type")
	assert.Empty(t, result.Body)
}

func TestFetch_NotModifiedOnConditionalGet(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if r.Header.Get("If-None-Match") == `"xyz"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		_, _ = w.Write([]byte("<html>fresh</html>"))
	}))
	defer srv.Close()

	f := newTestFetcher(t, false)
	result := f.Fetch(t.Context(), domain.URLTask{URL: srv.URL, ETag: `"xyz"`})

	require.NoError(t, result.Error)
	assert.True(t, result.NotModified)
	assert.Equal(t, http.StatusNotModified, result.StatusCode)
}

func TestReadCapped_DiscardsOversizeBody(t *testing.T) {
	t.Parallel()

	body, truncated, err := readCapped(strings.NewReader(strings.Repeat("x", 100)), 64)
	require.NoError(t, err)
	assert.True(t, truncated)
	assert.Nil(t, body, "oversize bodies must be discarded, not returned")
}

func TestReadCapped_KeepsBodyAtCap(t *testing.T) {
	t.Parallel()

	body, truncated, err := readCapped(strings.NewReader(strings.Repeat("x", 64)), 64)
	require.NoError(t, err)
	assert.False(t, truncated)
	assert.Len(t, body, 64)
}

func TestFetch_NetworkErrorReported(t *testing.T) {
	f := newTestFetcher(t, false)
	result := f.Fetch(t.Context(), domain.URLTask{URL: "http://127.0.0.1:0"})

	require.Error(t, result.Error)
	stats := f.Stats()
	assert.Equal(t, int64(1), stats.FailedRequests)
}

func TestFetch_ConcurrencyBounded(t *testing.T) {
	var mu sync.Mutex
	active, maxActive := 0, 0
	release := make(chan struct{})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		mu.Lock()
		active++
		if active > maxActive {
			maxActive = active
		}
		mu.Unlock()

		<-release

		mu.Lock()
		active--
		mu.Unlock()
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	cfg := Config{MaxConcurrentRequests: 2, UserAgent: "TestCrawler/1.0"}
	f := New(cfg, logger.NewNoOp())

	done := make(chan struct{}, 4)
	for i := 0; i < 4; i++ {
		go func() {
			f.Fetch(t.Context(), domain.URLTask{URL: srv.URL})
			done <- struct{}{}
		}()
	}

	time.Sleep(100 * time.Millisecond)
	close(release)
	for i := 0; i < 4; i++ {
		<-done
	}

	mu.Lock()
	defer mu.Unlock()
	assert.LessOrEqual(t, maxActive, 2)
}
