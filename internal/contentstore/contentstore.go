// Package contentstore defines the Content Store capability interface the
// scheduler persists ParsedContent records through, with file and
// Elasticsearch-backed implementations selected by configuration.
package contentstore

import (
	"context"

	"github.com/example/webcrawler/internal/domain"
)

// Stats reports cumulative content-store activity.
type Stats struct {
	PagesStored int64
	Errors      int64
}

// Store is the capability contract for persisting and retrieving
// ParsedContent by URL. Implementations: filestore (flat-file JSON) and
// esstore (Elasticsearch, substituting a wide-column backend).
type Store interface {
	// Initialize prepares the backend (directories, indices) for use.
	Initialize(ctx context.Context) error
	// Store persists content, keyed by its URL.
	Store(ctx context.Context, content *domain.ParsedContent) error
	// Get retrieves the ParsedContent previously stored for url, if any.
	Get(ctx context.Context, url string) (*domain.ParsedContent, bool, error)
	// Exists reports whether url has a stored record, without fetching it.
	Exists(ctx context.Context, url string) (bool, error)
	// Stats reports cumulative store activity.
	Stats(ctx context.Context) (Stats, error)
	// Close releases any underlying resources.
	Close() error
}
