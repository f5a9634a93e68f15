// Package scheduler owns the crawl lifecycle: it starts a worker pool that
// drives the frontier → fetcher → parser → duplicate-detector → content
// store pipeline, tracks progress, enforces operator-set limits, and shuts
// down cleanly on cancellation.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/example/webcrawler/internal/contentstore"
	"github.com/example/webcrawler/internal/coordinator"
	"github.com/example/webcrawler/internal/dedup"
	"github.com/example/webcrawler/internal/domain"
	"github.com/example/webcrawler/internal/fetcher"
	"github.com/example/webcrawler/internal/frontier"
	"github.com/example/webcrawler/internal/logger"
	"github.com/example/webcrawler/internal/metrics"
	"github.com/example/webcrawler/internal/parser"
)

// emptyFrontierBackoff is how long a worker sleeps after finding no ready
// task before checking again.
const emptyFrontierBackoff = time.Second

// errorBackoff is how long a worker sleeps after an unexpected step error
// before resuming its loop.
const errorBackoff = time.Second

// statsReportInterval is how often the stats-reporter goroutine logs.
const statsReportInterval = 30 * time.Second

// maxWorkers caps the worker pool regardless of configured concurrency.
const maxWorkers = 10

// Limits bounds a single crawl run. Zero means unlimited for that field.
type Limits struct {
	MaxPages    int
	MaxDuration time.Duration
	MaxDepth    int
}

// Config configures Scheduler behavior not already owned by its
// collaborators.
type Config struct {
	RetryAttempts         int
	StrictDedup           bool
	MaxConcurrentRequests int
	Limits                Limits
	// RunID correlates this run's log lines, e.g. across multiple crawler
	// processes sharing one coordinator store. Optional.
	RunID string
}

// Stats is a snapshot of cumulative crawl progress, exposed for monitoring
// and the periodic stats-reporter log line.
type Stats struct {
	PagesCrawled      int64
	PagesStored       int64
	DuplicatesSkipped int64
	Errors            int64
	TotalBytes        int64
	AvgResponseTime   time.Duration
	ActiveWorkers     int
	Elapsed           time.Duration
}

// Scheduler orchestrates the worker pool over one crawl run.
type Scheduler struct {
	store    coordinator.Store
	frontier *frontier.Frontier
	fetch    *fetcher.Fetcher
	parse    *parser.Parser
	content  contentstore.Store
	dup      *dedup.Detector
	log      logger.Interface
	cfg      Config
	metrics  *metrics.Metrics

	seeds []*domain.URLTask

	mu          sync.Mutex
	stats       Stats
	respCount   int64
	respTotal   time.Duration
	startedAt   time.Time
	activeCount int
}

// New wires a Scheduler over its already-constructed collaborators. Seeds
// are the initial URLTasks enqueued if the frontier is empty at Run.
func New(
	store coordinator.Store,
	fr *frontier.Frontier,
	fe *fetcher.Fetcher,
	pa *parser.Parser,
	cs contentstore.Store,
	dd *dedup.Detector,
	log logger.Interface,
	cfg Config,
	seeds []*domain.URLTask,
) *Scheduler {
	return &Scheduler{
		store:    store,
		frontier: fr,
		fetch:    fe,
		parse:    pa,
		content:  cs,
		dup:      dd,
		log:      log,
		cfg:      cfg,
		seeds:    seeds,
	}
}

// Initialize loads durable state into the frontier, prepares the content
// store, and loads the duplicate detector's hash sets, in that order.
func (s *Scheduler) Initialize(ctx context.Context) error {
	if err := s.frontier.Initialize(ctx); err != nil {
		return err
	}
	if err := s.content.Initialize(ctx); err != nil {
		return err
	}
	if err := s.dup.Initialize(ctx); err != nil {
		return err
	}
	return nil
}

// Run seeds the frontier if empty, launches the worker pool and the
// stats-reporter, and blocks until ctx is canceled or the limits are
// reached. It closes the content store before returning; the coordinator
// store stays open so the caller can release its run lease through it.
func (s *Scheduler) Run(ctx context.Context) error {
	s.startedAt = time.Now()

	if s.frontier.IsEmpty() {
		for _, seed := range s.seeds {
			seed.Priority = domain.PriorityHigh
			seed.Depth = 0
			s.frontier.Add(ctx, seed)
		}
	}

	workerCount := s.workerCount()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(workerCount)
	for i := 0; i < workerCount; i++ {
		go func(id int) {
			defer wg.Done()
			s.workerLoop(runCtx, id, cancel)
		}(i)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		s.statsReporter(runCtx)
	}()

	wg.Wait()

	return s.shutdown()
}

// workerCount returns min(max_concurrent_requests, maxWorkers).
func (s *Scheduler) workerCount() int {
	n := s.cfg.MaxConcurrentRequests
	if n <= 0 || n > maxWorkers {
		return maxWorkers
	}
	return n
}

func (s *Scheduler) shutdown() error {
	s.fetch.Close()
	if err := s.content.Close(); err != nil {
		s.log.Warn("error closing content store", "error", err)
	}
	return nil
}

func (s *Scheduler) statsReporter(ctx context.Context) {
	ticker := time.NewTicker(statsReportInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.frontier.Cleanup(ctx)
			snap := s.Stats()
			if s.metrics != nil {
				s.metrics.ActiveWorkers.Set(float64(snap.ActiveWorkers))
				if fstats := s.frontier.Stats(); fstats["queue_size"] != nil {
					if qs, ok := fstats["queue_size"].(int); ok {
						s.metrics.QueueSize.Set(float64(qs))
					}
				}
			}
			s.log.Info("crawl progress",
				"run_id", s.cfg.RunID,
				"pages_crawled", snap.PagesCrawled,
				"pages_stored", snap.PagesStored,
				"duplicates_skipped", snap.DuplicatesSkipped,
				"errors", snap.Errors,
				"total_bytes", snap.TotalBytes,
				"avg_response_time", snap.AvgResponseTime,
				"active_workers", snap.ActiveWorkers,
				"elapsed", snap.Elapsed,
			)
		}
	}
}

// SetMetrics attaches Prometheus instrumentation. Optional: a Scheduler
// with no metrics attached simply skips recording.
func (s *Scheduler) SetMetrics(m *metrics.Metrics) {
	s.metrics = m
}

// Stats returns a snapshot of cumulative crawl progress.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.stats
	snap.ActiveWorkers = s.activeCount
	if !s.startedAt.IsZero() {
		snap.Elapsed = time.Since(s.startedAt)
	}
	if s.respCount > 0 {
		snap.AvgResponseTime = s.respTotal / time.Duration(s.respCount)
	}
	return snap
}
