package scheduler

import (
	"context"
	"time"

	"github.com/example/webcrawler/internal/dedup"
	"github.com/example/webcrawler/internal/domain"
	"github.com/example/webcrawler/internal/frontier"
)

// workerLoop repeatedly pulls a task from the frontier and drives it
// through fetch, parse, dedup, and store. It returns when ctx is canceled,
// or when it observes a configured limit has been reached — in which case
// it calls stop to unblock its siblings too.
func (s *Scheduler) workerLoop(ctx context.Context, id int, stop context.CancelFunc) {
	s.mu.Lock()
	s.activeCount++
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.activeCount--
		s.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if s.limitReached() {
			stop()
			return
		}

		task := s.frontier.Next(ctx)
		if task == nil {
			if !sleepOrDone(ctx, emptyFrontierBackoff) {
				return
			}
			continue
		}

		if s.cfg.Limits.MaxDepth > 0 && task.Depth > s.cfg.Limits.MaxDepth {
			s.frontier.MarkProcessed(ctx, task.URL)
			continue
		}

		if !s.processTask(ctx, task) {
			if !sleepOrDone(ctx, errorBackoff) {
				return
			}
		}
	}
}

// processTask runs one task through the pipeline, reporting false if an
// unexpected error occurred (the caller backs off before retrying).
func (s *Scheduler) processTask(ctx context.Context, task *domain.URLTask) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("unexpected error processing task", "url", task.URL, "panic", r)
			s.frontier.MarkFailed(ctx, task, s.cfg.RetryAttempts)
			s.bumpErrors()
			ok = false
		}
	}()

	result := s.fetch.Fetch(ctx, *task)
	s.bumpCrawled(result.FetchTime)

	if delay := s.fetch.CrawlDelay(task.URL); delay > 0 {
		s.frontier.SetHostDelay(task.Host, delay)
	}

	// A 304 on a conditional retry means the body we failed to process last
	// time is unchanged; there is nothing new to fetch.
	if result.NotModified {
		s.frontier.MarkProcessed(ctx, task.URL)
		return true
	}

	if result.Error != nil || result.Body == "" {
		if result.ETag != "" {
			task.ETag = result.ETag
		}
		if result.LastModified != "" {
			task.LastModified = result.LastModified
		}
		s.frontier.MarkFailed(ctx, task, s.cfg.RetryAttempts)
		s.bumpErrors()
		return true
	}

	s.bumpBytes(int64(len(result.Body)))

	parsed := s.parse.Parse(task.URL, result.Body)
	parsed.ParentURL = task.ParentURL
	parsed.Depth = task.Depth
	parsed.FetchedAt = time.Now()

	flags := s.dup.Check(ctx, parsed)
	if dedup.IsDuplicate(flags, s.cfg.StrictDedup) {
		s.bumpDuplicates()
		s.frontier.MarkProcessed(ctx, task.URL)
		return true
	}

	if err := s.content.Store(ctx, parsed); err != nil {
		s.log.Warn("failed to store content", "url", task.URL, "error", err)
		s.bumpErrors()
	} else {
		s.bumpStored()
		if err := s.dup.Add(ctx, parsed); err != nil {
			s.log.Warn("failed to record duplicate hashes", "url", task.URL, "error", err)
		}
	}

	s.enqueueLinks(ctx, task, parsed.Links)
	s.frontier.MarkProcessed(ctx, task.URL)

	return true
}

func (s *Scheduler) enqueueLinks(ctx context.Context, task *domain.URLTask, links []string) {
	if s.cfg.Limits.MaxDepth > 0 && task.Depth+1 > s.cfg.Limits.MaxDepth {
		return
	}
	for _, link := range links {
		host, err := frontier.ExtractHost(link)
		if err != nil {
			continue
		}
		s.frontier.Add(ctx, &domain.URLTask{
			URL:       link,
			Host:      host,
			Priority:  domain.PriorityNormal,
			Depth:     task.Depth + 1,
			ParentURL: task.URL,
			AddedAt:   time.Now(),
		})
	}
}

func (s *Scheduler) limitReached() bool {
	s.mu.Lock()
	pages := s.stats.PagesCrawled
	started := s.startedAt
	s.mu.Unlock()

	if s.cfg.Limits.MaxPages > 0 && pages >= int64(s.cfg.Limits.MaxPages) {
		return true
	}
	if s.cfg.Limits.MaxDuration > 0 && !started.IsZero() && time.Since(started) >= s.cfg.Limits.MaxDuration {
		return true
	}
	return false
}

// sleepOrDone waits for d or ctx cancellation, reporting false if canceled.
func sleepOrDone(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (s *Scheduler) bumpCrawled(fetchTime time.Duration) {
	s.mu.Lock()
	s.stats.PagesCrawled++
	s.respCount++
	s.respTotal += fetchTime
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.URLsCrawled.Inc()
		s.metrics.ResponseTime.Observe(fetchTime.Seconds())
	}
}

func (s *Scheduler) bumpStored() {
	s.mu.Lock()
	s.stats.PagesStored++
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.PagesStored.Inc()
	}
}

func (s *Scheduler) bumpErrors() {
	s.mu.Lock()
	s.stats.Errors++
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.RecordError("worker")
	}
}

func (s *Scheduler) bumpDuplicates() {
	s.mu.Lock()
	s.stats.DuplicatesSkipped++
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.DuplicatesSkipped.Inc()
	}
}

func (s *Scheduler) bumpBytes(n int64) {
	s.mu.Lock()
	s.stats.TotalBytes += n
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.BytesDownloaded.Add(float64(n))
	}
}
