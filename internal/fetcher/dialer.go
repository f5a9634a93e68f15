package fetcher

import (
	"context"
	"net"
	"sync"
	"time"
)

// dnsCache wraps the standard resolver with a small TTL cache so repeated
// fetches against the same host skip the lookup.
type dnsCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]dnsCacheEntry
	dialer  *net.Dialer
}

type dnsCacheEntry struct {
	addrs   []string
	expires time.Time
}

func newDNSCache(ttl time.Duration) *dnsCache {
	return &dnsCache{
		ttl:     ttl,
		entries: make(map[string]dnsCacheEntry),
		dialer:  &net.Dialer{Timeout: 10 * time.Second},
	}
}

// DialContext resolves addr's host through the cache and dials the first
// resolved address, falling back to the uncached dialer when addr cannot be
// split or the lookup fails. A failed dial to the resolved address is
// returned as is.
func (c *dnsCache) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return c.dialer.DialContext(ctx, network, addr)
	}

	ips, err := c.lookup(ctx, host)
	if err != nil || len(ips) == 0 {
		return c.dialer.DialContext(ctx, network, addr)
	}

	return c.dialer.DialContext(ctx, network, net.JoinHostPort(ips[0], port))
}

func (c *dnsCache) lookup(ctx context.Context, host string) ([]string, error) {
	c.mu.Lock()
	if entry, ok := c.entries[host]; ok && time.Now().Before(entry.expires) {
		c.mu.Unlock()
		return entry.addrs, nil
	}
	c.mu.Unlock()

	addrs, err := net.DefaultResolver.LookupHost(ctx, host)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.entries[host] = dnsCacheEntry{addrs: addrs, expires: time.Now().Add(c.ttl)}
	c.mu.Unlock()

	return addrs, nil
}
