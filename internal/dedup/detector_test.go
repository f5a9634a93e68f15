package dedup_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/webcrawler/internal/dedup"
	"github.com/example/webcrawler/internal/domain"
	"github.com/example/webcrawler/internal/logger"
)

// memStore is a minimal in-memory coordinator.Store for dedup tests.
type memStore struct {
	mu   sync.Mutex
	sets map[string]map[string]struct{}
}

func newMemStore() *memStore {
	return &memStore{sets: make(map[string]map[string]struct{})}
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

func (m *memStore) LPushBack(context.Context, string, string) error            { return nil }
func (m *memStore) LRemoveFirstMatch(context.Context, string, string) error    { return nil }
func (m *memStore) LRange(context.Context, string, int64, int64) ([]string, error) {
	return nil, nil
}
func (m *memStore) LDelete(context.Context, string) error { return nil }
func (m *memStore) Ping(context.Context) error            { return nil }
func (m *memStore) Close() error                          { return nil }

func TestDetector_AddThenCheckAllDup(t *testing.T) {
	t.Parallel()

	d := dedup.New(newMemStore(), logger.NewNoOp())
	ctx := context.Background()

	parsed := &domain.ParsedContent{
		URL:     "https://example.com/page?utm_source=x",
		Title:   "A Test Title",
		Content: "Some fairly unique article body content about golang testing patterns here.",
	}

	require.NoError(t, d.Initialize(ctx))

	before := d.Check(ctx, parsed)
	assert.False(t, before.URLDup)
	assert.False(t, before.ContentDup)

	require.NoError(t, d.Add(ctx, parsed))

	after := d.Check(ctx, parsed)
	assert.True(t, after.URLDup)
	assert.True(t, after.ContentDup)
	assert.True(t, after.TitleDup)
	assert.True(t, after.FuzzyDup)
}

func TestDetector_URLDuplicateIgnoresTrackingParams(t *testing.T) {
	t.Parallel()

	d := dedup.New(newMemStore(), logger.NewNoOp())
	ctx := context.Background()

	first := &domain.ParsedContent{URL: "https://d.example/page?utm_campaign=a&id=1", Content: "same body"}
	second := &domain.ParsedContent{URL: "https://d.example/page?id=1&utm_source=b", Content: "different body text"}

	require.NoError(t, d.Add(ctx, first))
	flags := d.Check(ctx, second)

	assert.True(t, flags.URLDup)
	assert.False(t, flags.ContentDup)
}

func TestDetector_EmptyHashNeverMatches(t *testing.T) {
	t.Parallel()

	d := dedup.New(newMemStore(), logger.NewNoOp())
	ctx := context.Background()

	empty := &domain.ParsedContent{URL: "https://e.example/1"}
	require.NoError(t, d.Add(ctx, empty))

	flags := d.Check(ctx, &domain.ParsedContent{URL: "https://e.example/2"})
	assert.False(t, flags.ContentDup)
	assert.False(t, flags.TitleDup)
	assert.False(t, flags.FuzzyDup)
}

func TestIsDuplicate_StrictExcludesFuzzy(t *testing.T) {
	t.Parallel()

	fuzzyOnly := dedup.Flags{FuzzyDup: true}
	assert.False(t, dedup.IsDuplicate(fuzzyOnly, true))
	assert.True(t, dedup.IsDuplicate(fuzzyOnly, false))
}
