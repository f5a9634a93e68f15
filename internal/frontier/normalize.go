// Package frontier maintains per-host priority queues of pending crawl
// work, mirrored into the coordinator store for durability.
package frontier

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

var (
	errEmptyHostInput      = errors.New("extract host: empty input")
	errMissingSchemeOrHost = errors.New("extract host: missing scheme or host")
)

// ExtractHost returns the lowercased hostname (without port) of a URL.
// This is the host a URLTask is queued under.
func ExtractHost(rawURL string) (string, error) {
	if rawURL == "" {
		return "", errEmptyHostInput
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("extract host: %w", err)
	}

	if parsed.Scheme == "" || parsed.Host == "" {
		return "", errMissingSchemeOrHost
	}

	return strings.ToLower(parsed.Hostname()), nil
}
