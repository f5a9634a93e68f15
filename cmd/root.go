// Package cmd implements the command-line interface for the crawler.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	es "github.com/elastic/go-elasticsearch/v8"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/example/webcrawler/internal/config"
	"github.com/example/webcrawler/internal/contentstore"
	"github.com/example/webcrawler/internal/contentstore/esstore"
	"github.com/example/webcrawler/internal/contentstore/filestore"
	"github.com/example/webcrawler/internal/coordinator"
	"github.com/example/webcrawler/internal/dedup"
	"github.com/example/webcrawler/internal/domain"
	"github.com/example/webcrawler/internal/fetcher"
	"github.com/example/webcrawler/internal/frontier"
	"github.com/example/webcrawler/internal/logger"
	"github.com/example/webcrawler/internal/metrics"
	"github.com/example/webcrawler/internal/parser"
	"github.com/example/webcrawler/internal/scheduler"
)

// buildVersion is overridden at link time via -ldflags; unset in dev builds.
var buildVersion = "dev"

var (
	cfgFile     string
	maxPages    int
	maxDuration int
	dryRun      bool
)

var rootCmd = &cobra.Command{
	Use:   "crawler",
	Short: "A polite, distributed web crawler",
	Long: `crawler fetches web pages from a set of seed URLs, extracts outbound
links, deduplicates content across URL, exact-content, and near-duplicate
dimensions, and persists structured results while honoring per-host rate
limits and robots.txt directives.`,
	SilenceUsage: true,
	RunE:         runCrawl,
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func init() {
	rootCmd.Flags().StringVar(&cfgFile, "config", "config.yaml", "path to the YAML configuration file")
	rootCmd.Flags().IntVar(&maxPages, "max-pages", 0, "maximum number of pages to crawl (0 keeps unbounded)")
	rootCmd.Flags().IntVar(&maxDuration, "max-duration", 0, "override the crawl duration limit, in seconds (0 keeps unbounded)")
	rootCmd.Flags().BoolVar(&dryRun, "dry-run", false,
		"verify the coordinator store, content store, and a single seed fetch, then exit without crawling")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the crawler version",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Println("crawler version " + buildVersion)
		},
	})
}

func runCrawl(cmd *cobra.Command, _ []string) error {
	// Load optional .env overrides before config.Load reads environment
	// variables; a missing file is not an error.
	_ = godotenv.Load()

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logOutputs := []string{"stdout"}
	if cfg.Logging.File != "" {
		logOutputs = append(logOutputs, cfg.Logging.File)
	}
	log, err := logger.New(&logger.Config{
		Level:       logger.Level(cfg.Logging.Level),
		Encoding:    cfg.Logging.Format,
		OutputPaths: logOutputs,
	})
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}

	store, err := coordinator.NewRedisStore(coordinator.RedisConfig{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		return fmt.Errorf("connecting to coordinator store: %w", err)
	}
	defer store.Close()

	content, err := newContentStore(cfg)
	if err != nil {
		return fmt.Errorf("constructing content store: %w", err)
	}

	runLock := coordinator.NewRunLock(store.Client(), coordinator.DefaultRunLockTTL)
	if !dryRun {
		lockCtx, lockCancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := runLock.Acquire(lockCtx)
		lockCancel()
		if err != nil {
			content.Close()
			return fmt.Errorf("acquiring run lock: %w", err)
		}
		defer func() {
			releaseCtx, releaseCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer releaseCancel()
			if releaseErr := runLock.Release(releaseCtx); releaseErr != nil {
				log.Warn("failed to release run lock", "error", releaseErr)
			}
		}()

		// Keep the lease alive for the duration of the crawl; the TTL only
		// bounds how long a crashed holder blocks the next process.
		heartbeatCtx, stopHeartbeat := context.WithCancel(context.Background())
		defer stopHeartbeat()
		go runLock.Heartbeat(heartbeatCtx, log)
	}

	fr := frontier.New(store, cfg.Crawler.PolitenessDelayDuration(), log)
	fe := fetcher.New(fetcher.Config{
		MaxConcurrentRequests: cfg.Crawler.MaxConcurrentRequests,
		RequestTimeout:        cfg.Crawler.RequestTimeoutDuration(),
		UserAgent:             cfg.Crawler.UserAgent,
		RespectRobotsTxt:      cfg.Crawler.RespectRobotsTxt,
	}, log)
	pa := parser.New(parser.Options{
		AllowedDomains: cfg.Crawler.AllowedDomains,
		BlockedDomains: cfg.Crawler.BlockedDomains,
	})
	dd := dedup.New(store, log)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	if dryRun {
		return runDryRun(ctx, cfg, store, content, fe, log)
	}

	seeds := buildSeeds(cfg.Crawler.SeedURLs, log)

	limits := scheduler.Limits{
		MaxDepth: cfg.Crawler.MaxDepth,
	}
	if maxPages > 0 {
		limits.MaxPages = maxPages
	}
	if maxDuration > 0 {
		limits.MaxDuration = time.Duration(maxDuration) * time.Second
	}

	sched := scheduler.New(store, fr, fe, pa, content, dd, log, scheduler.Config{
		RetryAttempts:         cfg.Crawler.RetryAttempts,
		StrictDedup:           false,
		MaxConcurrentRequests: cfg.Crawler.MaxConcurrentRequests,
		Limits:                limits,
		RunID:                 runLock.Token(),
	}, seeds)

	if cfg.Monitoring.MetricsEnabled {
		m := metrics.New(nil)
		sched.SetMetrics(m)
		serveMetrics(cfg.Monitoring.PrometheusPort, log)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Info("shutdown signal received, stopping workers", "signal", sig.String())
		cancel()
	}()
	defer signal.Stop(sigCh)

	if err := sched.Initialize(runCtx); err != nil {
		return fmt.Errorf("initializing crawl state: %w", err)
	}

	return sched.Run(runCtx)
}

// runDryRun exercises the coordinator store, content store, and a single
// fetch of the first seed URL without enqueueing any work, per the
// --dry-run contract.
func runDryRun(
	ctx context.Context,
	cfg *config.Config,
	store coordinator.Store,
	content contentstore.Store,
	fe *fetcher.Fetcher,
	log logger.Interface,
) error {
	defer content.Close()

	if err := store.Ping(ctx); err != nil {
		return fmt.Errorf("dry-run: coordinator store unreachable: %w", err)
	}
	log.Info("dry-run: coordinator store reachable")

	if err := content.Initialize(ctx); err != nil {
		return fmt.Errorf("dry-run: content store initialization failed: %w", err)
	}
	log.Info("dry-run: content store initialized")

	if len(cfg.Crawler.SeedURLs) == 0 {
		log.Info("dry-run: no seed URLs configured, skipping fetch check")
		return nil
	}

	seedURL := cfg.Crawler.SeedURLs[0]
	host, err := frontier.ExtractHost(seedURL)
	if err != nil {
		return fmt.Errorf("dry-run: invalid seed URL %q: %w", seedURL, err)
	}

	result := fe.Fetch(ctx, domain.URLTask{URL: seedURL, Host: host})
	if result.Error != nil {
		return fmt.Errorf("dry-run: fetch of %q failed: %w", seedURL, result.Error)
	}

	log.Info("dry-run: fetch succeeded",
		"url", seedURL,
		"status_code", result.StatusCode,
		"bytes", len(result.Body),
	)
	return nil
}

// buildSeeds converts configured seed URLs into URLTasks, skipping any
// that fail to parse rather than aborting the whole crawl.
func buildSeeds(seedURLs []string, log logger.Interface) []*domain.URLTask {
	seeds := make([]*domain.URLTask, 0, len(seedURLs))
	for _, raw := range seedURLs {
		host, err := frontier.ExtractHost(raw)
		if err != nil {
			log.Warn("skipping invalid seed URL", "url", raw, "error", err)
			continue
		}
		seeds = append(seeds, &domain.URLTask{
			URL:      raw,
			Host:     host,
			Priority: domain.PriorityHigh,
			Depth:    0,
			AddedAt:  time.Now(),
		})
	}
	return seeds
}

// newContentStore selects and constructs the configured Content Store
// backend: "file" for the local filesystem, "cassandra" for the
// wide-column backend (substituted here by Elasticsearch; see DESIGN.md).
func newContentStore(cfg *config.Config) (contentstore.Store, error) {
	switch cfg.Database.Type {
	case "file":
		return filestore.New(cfg.Database.File.DataDirectory), nil
	case "cassandra":
		addresses := make([]string, len(cfg.Database.Cassandra.Hosts))
		for i, host := range cfg.Database.Cassandra.Hosts {
			addresses[i] = fmt.Sprintf("http://%s:%d", host, cfg.Database.Cassandra.Port)
		}
		client, err := es.NewClient(es.Config{Addresses: addresses})
		if err != nil {
			return nil, fmt.Errorf("constructing elasticsearch client: %w", err)
		}
		return esstore.New(client, cfg.Database.Cassandra.Keyspace), nil
	default:
		return nil, fmt.Errorf("unknown database.type %q", cfg.Database.Type)
	}
}

func serveMetrics(port int, log logger.Interface) {
	addr := fmt.Sprintf(":%d", port)
	go func() {
		if err := metricsListenAndServe(addr); err != nil {
			log.Warn("metrics server stopped", "addr", addr, "error", err)
		}
	}()
}
