// Package filestore implements the Content Store capability interface over
// the local filesystem, sharded by hash prefix.
package filestore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/example/webcrawler/internal/contentstore"
	"github.com/example/webcrawler/internal/domain"
)

const storageVersion = "1.0"

// record is the on-disk representation: ParsedContent plus storage
// metadata.
type record struct {
	domain.ParsedContent
	StoredAt       time.Time `json:"stored_at"`
	StorageVersion string    `json:"storage_version"`
}

// Store persists ParsedContent as one JSON file per URL, sharded by the
// first two characters of sha256(url), with a flat url->path index.
type Store struct {
	dataDir string

	mu    sync.Mutex
	index map[string]string // url -> relative file path
	stats contentstore.Stats
}

// New constructs a filestore rooted at dataDir.
func New(dataDir string) *Store {
	return &Store{dataDir: dataDir, index: make(map[string]string)}
}

// Initialize creates the content/ and index/ directories and loads any
// existing url index.
func (s *Store) Initialize(_ context.Context) error {
	if err := os.MkdirAll(filepath.Join(s.dataDir, "content"), 0o755); err != nil {
		return fmt.Errorf("creating content directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Join(s.dataDir, "index"), 0o755); err != nil {
		return fmt.Errorf("creating index directory: %w", err)
	}

	indexPath := s.indexPath()
	data, err := os.ReadFile(indexPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading url index: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := json.Unmarshal(data, &s.index); err != nil {
		return fmt.Errorf("decoding url index: %w", err)
	}
	s.stats.PagesStored = int64(len(s.index))

	return nil
}

// Store writes content to <data_dir>/content/<first2>/<sha256(url)>.json
// and updates the URL index.
func (s *Store) Store(_ context.Context, content *domain.ParsedContent) error {
	digest := urlDigest(content.URL)
	relPath := filepath.Join("content", digest[:2], digest+".json")
	fullPath := filepath.Join(s.dataDir, relPath)

	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		s.bumpErrors()
		return fmt.Errorf("creating shard directory: %w", err)
	}

	rec := record{
		ParsedContent:  *content,
		StoredAt:       time.Now().UTC(),
		StorageVersion: storageVersion,
	}

	payload, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		s.bumpErrors()
		return fmt.Errorf("marshaling content record: %w", err)
	}

	if err := os.WriteFile(fullPath, payload, 0o644); err != nil {
		s.bumpErrors()
		return fmt.Errorf("writing content file: %w", err)
	}

	s.mu.Lock()
	s.index[content.URL] = relPath
	s.stats.PagesStored = int64(len(s.index))
	indexErr := s.writeIndexLocked()
	s.mu.Unlock()

	if indexErr != nil {
		return fmt.Errorf("updating url index: %w", indexErr)
	}

	return nil
}

// Get reads back the ParsedContent stored for url, if any.
func (s *Store) Get(_ context.Context, url string) (*domain.ParsedContent, bool, error) {
	s.mu.Lock()
	relPath, ok := s.index[url]
	s.mu.Unlock()
	if !ok {
		return nil, false, nil
	}

	data, err := os.ReadFile(filepath.Join(s.dataDir, relPath))
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("reading content file: %w", err)
	}

	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, false, fmt.Errorf("decoding content record: %w", err)
	}

	return &rec.ParsedContent, true, nil
}

// Exists reports whether url has a stored record.
func (s *Store) Exists(_ context.Context, url string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.index[url]
	return ok, nil
}

// Stats reports cumulative store activity.
func (s *Store) Stats(_ context.Context) (contentstore.Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats, nil
}

// Close is a no-op for the file backend; nothing to release.
func (s *Store) Close() error {
	return nil
}

func (s *Store) bumpErrors() {
	s.mu.Lock()
	s.stats.Errors++
	s.mu.Unlock()
}

// writeIndexLocked serializes the url index to disk. Callers must hold mu.
func (s *Store) writeIndexLocked() error {
	payload, err := json.MarshalIndent(s.index, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling url index: %w", err)
	}
	if err := os.WriteFile(s.indexPath(), payload, 0o644); err != nil {
		return fmt.Errorf("writing url index: %w", err)
	}
	return nil
}

func (s *Store) indexPath() string {
	return filepath.Join(s.dataDir, "index", "url_index.json")
}

func urlDigest(url string) string {
	sum := sha256.Sum256([]byte(url))
	return hex.EncodeToString(sum[:])
}
