package fetcher

import "time"

// Default configuration values.
const (
	DefaultMaxConcurrentRequests = 10
	DefaultRequestTimeout        = 30 * time.Second
	DefaultUserAgent             = "PoliteCrawler/1.0"
	DefaultRobotsCacheTTL        = time.Hour
	DefaultMaxResponseBytes      = 10 * 1024 * 1024 // 10 MiB
	DefaultReadChunkBytes        = 8 * 1024         // 8 KiB
	DefaultConnPerHost           = 10
	DefaultDNSCacheTTL           = 300 * time.Second
	DefaultRobotsTimeout         = 10 * time.Second
)

// Config configures a Fetcher.
type Config struct {
	MaxConcurrentRequests int
	RequestTimeout        time.Duration
	UserAgent             string
	RespectRobotsTxt      bool
	RobotsCacheTTL        time.Duration
	MaxRedirects          int
}

// WithDefaults returns a copy of c with zero-value fields filled in.
func (c Config) WithDefaults() Config {
	if c.MaxConcurrentRequests <= 0 {
		c.MaxConcurrentRequests = DefaultMaxConcurrentRequests
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
	if c.UserAgent == "" {
		c.UserAgent = DefaultUserAgent
	}
	if c.RobotsCacheTTL <= 0 {
		c.RobotsCacheTTL = DefaultRobotsCacheTTL
	}
	return c
}
