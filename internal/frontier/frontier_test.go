package frontier_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/webcrawler/internal/domain"
	"github.com/example/webcrawler/internal/frontier"
	"github.com/example/webcrawler/internal/logger"
)

// memStore is a minimal in-memory coordinator.Store for frontier tests.
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
	items := m.lists[key]
	for i, v := range items {
		if v == value {
			m.lists[key] = append(items[:i], items[i+1:]...)
			return nil
		}
	}
	return nil
}

func (m *memStore) LRange(_ context.Context, key string, _, _ int64) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.lists[key]))
	copy(out, m.lists[key])
	return out, nil
}

func (m *memStore) LDelete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.lists, key)
	return nil
}

func (m *memStore) Ping(context.Context) error { return nil }
func (m *memStore) Close() error               { return nil }

func newTask(rawURL, host string, priority domain.Priority) *domain.URLTask {
	return &domain.URLTask{URL: rawURL, Host: host, Priority: priority, AddedAt: time.Now()}
}

func TestFrontier_MarkProcessedBlocksReAdd(t *testing.T) {
	t.Parallel()

	f := frontier.New(newMemStore(), 0, logger.NewNoOp())
	ctx := context.Background()

	const target = "https://a.example/page"
	f.MarkProcessed(ctx, target)

	added := f.Add(ctx, newTask(target, "a.example", domain.PriorityNormal))
	assert.False(t, added, "Add must refuse a URL already in the processed set")
}

func TestFrontier_NextRespectsPolitenessDelay(t *testing.T) {
	t.Parallel()

	const delay = 50 * time.Millisecond
	f := frontier.New(newMemStore(), delay, logger.NewNoOp())
	ctx := context.Background()

	f.Add(ctx, newTask("https://a.example/1", "a.example", domain.PriorityNormal))
	f.Add(ctx, newTask("https://a.example/2", "a.example", domain.PriorityNormal))

	first := f.Next(ctx)
	require.NotNil(t, first)
	assert.Equal(t, "https://a.example/1", first.URL)

	// Immediately after, the host is not yet ready: its cooldown has not elapsed.
	assert.Nil(t, f.Next(ctx))

	time.Sleep(delay + 10*time.Millisecond)

	second := f.Next(ctx)
	require.NotNil(t, second)
	assert.Equal(t, "https://a.example/2", second.URL)
}

func TestFrontier_NextPrefersGlobalMaxPriority(t *testing.T) {
	t.Parallel()

	f := frontier.New(newMemStore(), 0, logger.NewNoOp())
	ctx := context.Background()

	f.Add(ctx, newTask("https://a.example/low", "a.example", domain.PriorityLow))
	f.Add(ctx, newTask("https://b.example/critical", "b.example", domain.PriorityCritical))
	f.Add(ctx, newTask("https://c.example/normal", "c.example", domain.PriorityNormal))

	task := f.Next(ctx)
	require.NotNil(t, task)
	assert.Equal(t, "https://b.example/critical", task.URL)
}

func TestFrontier_NextTieBreaksOnLongestIdleHost(t *testing.T) {
	t.Parallel()

	f := frontier.New(newMemStore(), 0, logger.NewNoOp())
	ctx := context.Background()

	// Dispatch from host A first so its lastAccess is set, then let host B
	// sit idle longer before both have an equal-priority task ready.
	f.Add(ctx, newTask("https://a.example/1", "a.example", domain.PriorityNormal))
	require.NotNil(t, f.Next(ctx))

	time.Sleep(20 * time.Millisecond)

	f.Add(ctx, newTask("https://a.example/2", "a.example", domain.PriorityNormal))
	f.Add(ctx, newTask("https://b.example/1", "b.example", domain.PriorityNormal))

	// Host B has never been accessed (idle = "forever"); host A was accessed
	// 20ms ago. B should win the tie-break as the longer-idle host.
	task := f.Next(ctx)
	require.NotNil(t, task)
	assert.Equal(t, "https://b.example/1", task.URL)
}

func TestFrontier_MarkFailedRetriesThenExhausts(t *testing.T) {
	t.Parallel()

	f := frontier.New(newMemStore(), 0, logger.NewNoOp())
	ctx := context.Background()

	task := newTask("https://a.example/flaky", "a.example", domain.PriorityHigh)

	retried := f.MarkFailed(ctx, task, 1)
	assert.True(t, retried)
	assert.Equal(t, 1, task.RetryCount)
	assert.Equal(t, domain.PriorityLow, task.Priority)

	// Re-add should have happened: Next() returns the demoted task.
	again := f.Next(ctx)
	require.NotNil(t, again)
	assert.Equal(t, "https://a.example/flaky", again.URL)

	// Second failure exhausts the single retry: marked processed instead.
	exhausted := f.MarkFailed(ctx, again, 1)
	assert.False(t, exhausted)

	added := f.Add(ctx, newTask("https://a.example/flaky", "a.example", domain.PriorityNormal))
	assert.False(t, added, "exhausted task's URL must be in the processed set")
}

func TestFrontier_IsEmptyAndStats(t *testing.T) {
	t.Parallel()

	f := frontier.New(newMemStore(), 0, logger.NewNoOp())
	ctx := context.Background()

	assert.True(t, f.IsEmpty())

	f.Add(ctx, newTask("https://a.example/1", "a.example", domain.PriorityNormal))
	assert.False(t, f.IsEmpty())

	stats := f.Stats()
	assert.Equal(t, 1, stats["queue_size"])
}

func TestFrontier_CleanupDropsEmptyHostQueues(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	f := frontier.New(store, 0, logger.NewNoOp())
	ctx := context.Background()

	f.Add(ctx, newTask("https://a.example/only", "a.example", domain.PriorityNormal))
	require.NotNil(t, f.Next(ctx))

	f.Cleanup(ctx)

	stats := f.Stats()
	assert.Equal(t, 0, stats["hosts_tracked"])
	assert.Equal(t, 0, stats["queue_size"])
}

func TestFrontier_InitializeReconcilesFromDurableStore(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	ctx := context.Background()

	seed := frontier.New(store, 0, logger.NewNoOp())
	seed.Add(ctx, newTask("https://a.example/persisted", "a.example", domain.PriorityNormal))

	restarted := frontier.New(store, 0, logger.NewNoOp())
	require.NoError(t, restarted.Initialize(ctx))

	assert.False(t, restarted.IsEmpty())
	task := restarted.Next(ctx)
	require.NotNil(t, task)
	assert.Equal(t, "https://a.example/persisted", task.URL)
}
