package frontier

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/example/webcrawler/internal/coordinator"
	"github.com/example/webcrawler/internal/domain"
	"github.com/example/webcrawler/internal/logger"
)

// Durable key layout used in the coordinator store.
const (
	processedKey  = "crawler:processed_urls"
	knownHostsKey = "crawler:url_frontier"
)

func domainKey(host string) string {
	return "crawler:domain:" + host
}

// Frontier hands out crawl work one host at a time, enforcing a minimum
// delay between consecutive fetches to the same host and preferring
// higher-priority tasks. The in-memory queues and last-access map are
// authoritative for the running process; the coordinator store mirrors
// them for durability and restart reconciliation.
type Frontier struct {
	mu              sync.Mutex
	store           coordinator.Store
	politenessDelay time.Duration
	log             logger.Interface

	queues     map[string][]*domain.URLTask
	lastAccess map[string]time.Time
	processed  map[string]struct{}
	hostDelay  map[string]time.Duration
}

// New constructs a Frontier backed by store, with the given minimum delay
// between fetches to the same host.
func New(store coordinator.Store, politenessDelay time.Duration, log logger.Interface) *Frontier {
	return &Frontier{
		store:           store,
		politenessDelay: politenessDelay,
		log:             log,
		queues:          make(map[string][]*domain.URLTask),
		lastAccess:      make(map[string]time.Time),
		processed:       make(map[string]struct{}),
		hostDelay:       make(map[string]time.Duration),
	}
}

// SetHostDelay raises the minimum delay between fetches to host above the
// globally configured politenessDelay, e.g. when a site's robots.txt
// specifies a longer Crawl-delay. A value at or below the global delay is
// a no-op: this only ever widens a host's cooldown, never narrows it.
func (f *Frontier) SetHostDelay(host string, delay time.Duration) {
	if delay <= f.politenessDelay {
		return
	}
	f.mu.Lock()
	f.hostDelay[host] = delay
	f.mu.Unlock()
}

// delayFor returns the effective politeness delay for host. Callers must
// hold f.mu.
func (f *Frontier) delayFor(host string) time.Duration {
	if d, ok := f.hostDelay[host]; ok {
		return d
	}
	return f.politenessDelay
}

// Initialize loads the processed set and all known host queues from the
// durable store into memory, reconciling after a restart.
func (f *Frontier) Initialize(ctx context.Context) error {
	processed, err := f.store.SMembers(ctx, processedKey)
	if err != nil {
		return fmt.Errorf("loading processed set: %w", err)
	}

	hosts, err := f.store.SMembers(ctx, knownHostsKey)
	if err != nil {
		return fmt.Errorf("loading known hosts: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	for _, url := range processed {
		f.processed[url] = struct{}{}
	}

	for _, host := range hosts {
		items, rangeErr := f.store.LRange(ctx, domainKey(host), 0, -1)
		if rangeErr != nil {
			f.log.Warn("failed to load host queue", "host", host, "error", rangeErr)
			continue
		}
		for _, item := range items {
			var task domain.URLTask
			if unmarshalErr := json.Unmarshal([]byte(item), &task); unmarshalErr != nil {
				f.log.Warn("failed to decode queued task", "host", host, "error", unmarshalErr)
				continue
			}
			taskCopy := task
			f.queues[host] = append(f.queues[host], &taskCopy)
		}
	}

	return nil
}

// Add appends task to its host's queue, unless task.URL is already in the
// processed set. Returns whether it was added.
func (f *Frontier) Add(ctx context.Context, task *domain.URLTask) bool {
	f.mu.Lock()
	if _, done := f.processed[task.URL]; done {
		f.mu.Unlock()
		return false
	}

	firstForHost := len(f.queues[task.Host]) == 0
	f.queues[task.Host] = append(f.queues[task.Host], task)
	f.mu.Unlock()

	if firstForHost {
		if _, err := f.store.SAdd(ctx, knownHostsKey, task.Host); err != nil {
			f.log.Warn("failed to register host in durable frontier", "host", task.Host, "error", err)
		}
	}

	payload, err := json.Marshal(task)
	if err != nil {
		f.log.Warn("failed to serialize task for durable frontier", "url", task.URL, "error", err)
		return true
	}
	if err := f.store.LPushBack(ctx, domainKey(task.Host), string(payload)); err != nil {
		f.log.Warn("failed to persist task", "url", task.URL, "error", err)
	}

	return true
}

// AddMany adds each task via Add and returns how many were actually added.
func (f *Frontier) AddMany(ctx context.Context, tasks []*domain.URLTask) int {
	added := 0
	for _, task := range tasks {
		if f.Add(ctx, task) {
			added++
		}
	}
	return added
}

// Next returns the highest-priority ready task across hosts, or nil if no
// host is currently ready. A host is ready when its queue is non-empty and
// at least its delay (politenessDelay, or a longer one set via SetHostDelay)
// has elapsed since its last dispatched task. Among
// ready hosts, the one with the globally highest task priority is chosen;
// ties are broken by the longest-idle host. Within the chosen host's queue,
// the first task (by insertion order) carrying the max priority is removed.
func (f *Frontier) Next(ctx context.Context) *domain.URLTask {
	now := time.Now()

	f.mu.Lock()
	var (
		bestHost     string
		bestPriority domain.Priority
		bestIdle     time.Duration
		found        bool
	)

	for host, queue := range f.queues {
		if len(queue) == 0 {
			continue
		}
		idle := now.Sub(f.lastAccess[host])
		if !f.lastAccess[host].IsZero() && idle < f.delayFor(host) {
			continue
		}

		var hostMaxPriority domain.Priority
		for _, task := range queue {
			if task.Priority > hostMaxPriority {
				hostMaxPriority = task.Priority
			}
		}

		if !found || hostMaxPriority > bestPriority || (hostMaxPriority == bestPriority && idle > bestIdle) {
			found = true
			bestHost = host
			bestPriority = hostMaxPriority
			bestIdle = idle
		}
	}

	if !found {
		f.mu.Unlock()
		return nil
	}

	queue := f.queues[bestHost]
	bestIdx := -1
	var bestTaskPriority domain.Priority
	for i, task := range queue {
		if task.Priority > bestTaskPriority {
			bestTaskPriority = task.Priority
			bestIdx = i
		}
	}

	task := queue[bestIdx]
	f.queues[bestHost] = append(queue[:bestIdx:bestIdx], queue[bestIdx+1:]...)
	f.lastAccess[bestHost] = now
	f.mu.Unlock()

	payload, err := json.Marshal(task)
	if err == nil {
		if err := f.store.LRemoveFirstMatch(ctx, domainKey(bestHost), string(payload)); err != nil {
			f.log.Warn("failed to remove dispatched task from durable frontier", "url", task.URL, "error", err)
		}
	}

	return task
}

// MarkProcessed adds url to the processed set, in memory and durably.
func (f *Frontier) MarkProcessed(ctx context.Context, url string) {
	f.mu.Lock()
	f.processed[url] = struct{}{}
	f.mu.Unlock()

	if _, err := f.store.SAdd(ctx, processedKey, url); err != nil {
		f.log.Warn("failed to persist processed url", "url", url, "error", err)
	}
}

// MarkFailed retries task if it has not exhausted maxRetries, demoting its
// priority to LOW and re-adding it; otherwise it is marked processed to
// prevent endless retries. Returns whether a retry was scheduled.
func (f *Frontier) MarkFailed(ctx context.Context, task *domain.URLTask, maxRetries int) bool {
	if task.RetryCount < maxRetries {
		task.RetryCount++
		task.Priority = domain.PriorityLow
		f.Add(ctx, task)
		return true
	}
	f.MarkProcessed(ctx, task.URL)
	return false
}

// Stats reports queue depths and processed-set size for monitoring.
func (f *Frontier) Stats() map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()

	queueSize := 0
	for _, queue := range f.queues {
		queueSize += len(queue)
	}

	return map[string]any{
		"hosts_tracked":   len(f.queues),
		"queue_size":      queueSize,
		"processed_count": len(f.processed),
	}
}

// IsEmpty reports whether every host queue is empty.
func (f *Frontier) IsEmpty() bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, queue := range f.queues {
		if len(queue) > 0 {
			return false
		}
	}
	return true
}

// Cleanup drops empty host queues from memory and purges their durable
// lists, so stats and restarts aren't burdened by stale hosts.
func (f *Frontier) Cleanup(ctx context.Context) {
	f.mu.Lock()
	emptyHosts := make([]string, 0)
	for host, queue := range f.queues {
		if len(queue) == 0 {
			emptyHosts = append(emptyHosts, host)
		}
	}
	for _, host := range emptyHosts {
		delete(f.queues, host)
	}
	f.mu.Unlock()

	for _, host := range emptyHosts {
		if err := f.store.LDelete(ctx, domainKey(host)); err != nil {
			f.log.Warn("failed to purge durable host queue", "host", host, "error", err)
		}
	}
}
