package scheduler_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/webcrawler/internal/contentstore/filestore"
	"github.com/example/webcrawler/internal/dedup"
	"github.com/example/webcrawler/internal/domain"
	"github.com/example/webcrawler/internal/fetcher"
	"github.com/example/webcrawler/internal/frontier"
	"github.com/example/webcrawler/internal/logger"
	"github.com/example/webcrawler/internal/parser"
	"github.com/example/webcrawler/internal/scheduler"
)

// memStore is a minimal in-memory coordinator.Store for scheduler tests.
type memStore struct {
	mu    sync.Mutex
	sets  map[string]map[string]struct{}
	lists map[string][]string
}

func newMemStore() *memStore {
	return &memStore{
		sets:  make(map[string]map[string]struct{}),
		lists: make(map[string][]string),
	}
}

func (m *memStore) SAdd(_ context.Context, key, member string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sets[key] == nil {
		m.sets[key] = make(map[string]struct{})
	}
	_, exists := m.sets[key][member]
	m.sets[key][member] = struct{}{}
	return !exists, nil
}

func (m *memStore) SIsMember(_ context.Context, key, member string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.sets[key][member]
	return ok, nil
}

func (m *memStore) SMembers(_ context.Context, key string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.sets[key]))
	for k := range m.sets[key] {
		out = append(out, k)
	}
	return out, nil
}

func (m *memStore) LPushBack(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lists[key] = append(m.lists[key], value)
	return nil
}

func (m *memStore) LRemoveFirstMatch(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.lists[key]
	for i, v := range list {
		if v == value {
			m.lists[key] = append(list[:i], list[i+1:]...)
			break
		}
	}
	return nil
}

func (m *memStore) LRange(_ context.Context, key string, _, _ int64) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.lists[key]...), nil
}

func (m *memStore) LDelete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.lists, key)
	return nil
}

func (m *memStore) Ping(context.Context) error { return nil }
func (m *memStore) Close() error               { return nil }

func TestScheduler_CrawlsSeedAndStoresContent(t *testing.T) {
	var pageHits int
	var mu sync.Mutex

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		mu.Lock()
		pageHits++
		mu.Unlock()
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><head><title>Home</title></head><body><main><p>Hello world, this is some unique test content for the crawl.</p></main></body></html>`))
	}))
	defer srv.Close()

	dataDir := t.TempDir()
	log := logger.NewNoOp()

	store := newMemStore()
	fr := frontier.New(store, 0, log)
	fe := fetcher.New(fetcher.Config{MaxConcurrentRequests: 2, UserAgent: "TestCrawler/1.0"}, log)
	pa := parser.New(parser.Options{})
	cs := filestore.New(dataDir)
	dd := dedup.New(store, log)

	host, err := frontier.ExtractHost(srv.URL)
	require.NoError(t, err)

	seeds := []*domain.URLTask{{URL: srv.URL, Host: host}}

	cfg := scheduler.Config{
		RetryAttempts:         1,
		MaxConcurrentRequests: 2,
		Limits:                scheduler.Limits{MaxPages: 1, MaxDuration: 5 * time.Second, MaxDepth: 1},
	}

	sched := scheduler.New(store, fr, fe, pa, cs, dd, log, cfg, seeds)
	require.NoError(t, sched.Initialize(t.Context()))

	ctx, cancel := context.WithTimeout(t.Context(), 3*time.Second)
	defer cancel()

	require.NoError(t, sched.Run(ctx))

	stats := sched.Stats()
	assert.GreaterOrEqual(t, stats.PagesCrawled, int64(1))
	assert.GreaterOrEqual(t, stats.PagesStored, int64(1))

	exists, err := cs.Exists(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.True(t, exists)
}
