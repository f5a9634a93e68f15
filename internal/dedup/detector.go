package dedup

import (
	"context"
	"fmt"
	"sync"

	"github.com/example/webcrawler/internal/coordinator"
	"github.com/example/webcrawler/internal/domain"
	"github.com/example/webcrawler/internal/logger"
)

// Durable key layout used in the coordinator store.
const (
	urlHashesKey     = "crawler:duplicates:urls"
	contentHashesKey = "crawler:duplicates:content"
	titleHashesKey   = "crawler:duplicates:titles"
	fuzzyHashesKey   = "crawler:duplicates:fuzzy"
)

// Flags reports, per hashing strategy, whether a ParsedContent matches
// something already seen. An empty-string hash never matches.
type Flags struct {
	URLDup     bool
	ContentDup bool
	TitleDup   bool
	FuzzyDup   bool
}

// Detector holds the four hash sets used to recognize duplicate content
// across URL, exact-content, title, and fuzzy-feature dimensions. The
// coordinator store provides durability; the in-memory sets serve the
// hot path.
type Detector struct {
	mu    sync.Mutex
	store coordinator.Store
	log   logger.Interface

	urlHashes     map[string]struct{}
	contentHashes map[string]struct{}
	titleHashes   map[string]struct{}
	fuzzyHashes   map[string]struct{}
}

// New constructs a Detector backed by store.
func New(store coordinator.Store, log logger.Interface) *Detector {
	return &Detector{
		store:         store,
		log:           log,
		urlHashes:     make(map[string]struct{}),
		contentHashes: make(map[string]struct{}),
		titleHashes:   make(map[string]struct{}),
		fuzzyHashes:   make(map[string]struct{}),
	}
}

// Initialize loads all four hash sets from the durable store into memory.
func (d *Detector) Initialize(ctx context.Context) error {
	loaders := []struct {
		key    string
		target map[string]struct{}
	}{
		{urlHashesKey, d.urlHashes},
		{contentHashesKey, d.contentHashes},
		{titleHashesKey, d.titleHashes},
		{fuzzyHashesKey, d.fuzzyHashes},
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	for _, l := range loaders {
		members, err := d.store.SMembers(ctx, l.key)
		if err != nil {
			return fmt.Errorf("loading %s: %w", l.key, err)
		}
		for _, m := range members {
			l.target[m] = struct{}{}
		}
	}

	return nil
}

// Check computes the four hashes for parsed and reports which ones are
// already present. It performs no mutation.
func (d *Detector) Check(_ context.Context, parsed *domain.ParsedContent) Flags {
	uHash := hashURL(parsed.URL)
	cHash := hashContent(parsed.Content)
	tHash := hashTitle(parsed.Title)
	fHash := fuzzyHash(parsed.Content, parsed.Title)

	d.mu.Lock()
	defer d.mu.Unlock()

	_, urlDup := d.urlHashes[uHash]
	contentDup := cHash != ""
	if contentDup {
		_, contentDup = d.contentHashes[cHash]
	}
	titleDup := tHash != ""
	if titleDup {
		_, titleDup = d.titleHashes[tHash]
	}
	fuzzyDup := fHash != ""
	if fuzzyDup {
		_, fuzzyDup = d.fuzzyHashes[fHash]
	}

	return Flags{URLDup: urlDup, ContentDup: contentDup, TitleDup: titleDup, FuzzyDup: fuzzyDup}
}

// IsDuplicate applies the worker's skip policy: in strict mode only URL
// and exact-content duplicates block; otherwise fuzzy duplicates do too.
// Title duplicates are tracked but never directly block.
func IsDuplicate(flags Flags, strict bool) bool {
	if strict {
		return flags.URLDup || flags.ContentDup
	}
	return flags.URLDup || flags.ContentDup || flags.FuzzyDup
}

// Add inserts every non-empty hash derived from parsed into both the
// in-memory mirrors and the durable sets. Idempotent.
func (d *Detector) Add(ctx context.Context, parsed *domain.ParsedContent) error {
	uHash := hashURL(parsed.URL)
	cHash := hashContent(parsed.Content)
	tHash := hashTitle(parsed.Title)
	fHash := fuzzyHash(parsed.Content, parsed.Title)

	d.mu.Lock()
	d.urlHashes[uHash] = struct{}{}
	if cHash != "" {
		d.contentHashes[cHash] = struct{}{}
	}
	if tHash != "" {
		d.titleHashes[tHash] = struct{}{}
	}
	if fHash != "" {
		d.fuzzyHashes[fHash] = struct{}{}
	}
	d.mu.Unlock()

	for key, hash := range map[string]string{
		urlHashesKey:     uHash,
		contentHashesKey: cHash,
		titleHashesKey:   tHash,
		fuzzyHashesKey:   fHash,
	} {
		if hash == "" {
			continue
		}
		if _, err := d.store.SAdd(ctx, key, hash); err != nil {
			d.log.Warn("failed to persist duplicate hash", "key", key, "error", err)
		}
	}

	return nil
}
