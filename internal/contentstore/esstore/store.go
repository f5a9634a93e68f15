// Package esstore implements the Content Store capability interface over
// Elasticsearch, standing in for a wide-column (Cassandra) backend; see
// DESIGN.md for the rationale.
package esstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	es "github.com/elastic/go-elasticsearch/v8"

	"github.com/example/webcrawler/internal/contentstore"
	"github.com/example/webcrawler/internal/domain"
)

const defaultIndexName = "crawled_content"

// document is the Elasticsearch-indexed representation of a ParsedContent.
type document struct {
	domain.ParsedContent
	URLHash  string    `json:"url_hash"`
	StoredAt time.Time `json:"stored_at"`
}

// Store persists ParsedContent as Elasticsearch documents keyed by
// sha256(url), mirroring a "table crawled_content keyed by
// url_hash" wide-column schema.
type Store struct {
	client *es.Client
	index  string
}

// New constructs an esstore over an already-connected client.
func New(client *es.Client, index string) *Store {
	if index == "" {
		index = defaultIndexName
	}
	return &Store{client: client, index: index}
}

// Initialize verifies connectivity; Elasticsearch creates indices
// implicitly on first write, so no mapping setup is required here.
func (s *Store) Initialize(ctx context.Context) error {
	res, err := s.client.Ping(s.client.Ping.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("pinging elasticsearch: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("elasticsearch ping error: %s", res.String())
	}
	return nil
}

// Store indexes content, keyed by the hex sha256 digest of its URL.
func (s *Store) Store(ctx context.Context, content *domain.ParsedContent) error {
	hash := urlHash(content.URL)
	doc := document{ParsedContent: *content, URLHash: hash, StoredAt: time.Now().UTC()}

	payload, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshaling content document: %w", err)
	}

	res, err := s.client.Index(
		s.index,
		bytes.NewReader(payload),
		s.client.Index.WithContext(ctx),
		s.client.Index.WithDocumentID(hash),
	)
	if err != nil {
		return fmt.Errorf("indexing content: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("elasticsearch index error: %s", res.String())
	}

	return nil
}

// Get retrieves the document previously stored for url, if any.
func (s *Store) Get(ctx context.Context, url string) (*domain.ParsedContent, bool, error) {
	res, err := s.client.Get(s.index, urlHash(url), s.client.Get.WithContext(ctx))
	if err != nil {
		return nil, false, fmt.Errorf("getting content: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode == 404 {
		return nil, false, nil
	}
	if res.IsError() {
		return nil, false, fmt.Errorf("elasticsearch get error: %s", res.String())
	}

	var hit struct {
		Source document `json:"_source"`
	}
	if err := json.NewDecoder(res.Body).Decode(&hit); err != nil {
		return nil, false, fmt.Errorf("decoding get response: %w", err)
	}

	return &hit.Source.ParsedContent, true, nil
}

// Exists reports whether url has a stored document.
func (s *Store) Exists(ctx context.Context, url string) (bool, error) {
	res, err := s.client.Exists(s.index, urlHash(url), s.client.Exists.WithContext(ctx))
	if err != nil {
		return false, fmt.Errorf("checking existence: %w", err)
	}
	defer res.Body.Close()
	return res.StatusCode == 200, nil
}

// Stats reports the document count in the content index.
func (s *Store) Stats(ctx context.Context) (contentstore.Stats, error) {
	res, err := s.client.Count(
		s.client.Count.WithContext(ctx),
		s.client.Count.WithIndex(s.index),
	)
	if err != nil {
		return contentstore.Stats{}, fmt.Errorf("counting documents: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		// Index not yet created (no writes have happened): zero stats, not an error.
		return contentstore.Stats{}, nil
	}

	var body struct {
		Count int64 `json:"count"`
	}
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return contentstore.Stats{}, fmt.Errorf("decoding count response: %w", err)
	}

	return contentstore.Stats{PagesStored: body.Count}, nil
}

// Close is a no-op: the es.Client has no persistent connection to release.
func (s *Store) Close() error {
	return nil
}

func urlHash(url string) string {
	sum := sha256.Sum256([]byte(url))
	return hex.EncodeToString(sum[:])
}
