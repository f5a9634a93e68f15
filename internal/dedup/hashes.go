// Package dedup implements the four-strategy duplicate detector:
// normalized-URL, exact-content, title, and fuzzy-feature hashing, backed
// by the coordinator store with an in-process mirror for hot-path lookups.
package dedup

import (
	"crypto/md5" //nolint:gosec // dedup fingerprinting, not security-sensitive
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/url"
	"sort"
	"strings"
)

// trackingParams is the set of query-parameter names stripped prior to
// URL-hash computation.
var trackingParams = map[string]struct{}{
	"utm_source": {}, "utm_medium": {}, "utm_campaign": {}, "utm_term": {}, "utm_content": {},
	"fbclid": {}, "gclid": {}, "ref": {}, "source": {}, "campaign": {},
}

// stopwords is the fixed English function-word set used to pick
// "significant words" for the fuzzy hash. Changing it would invalidate
// every stored fuzzy hash, so it is not configurable.
var stopwords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "and": {}, "or": {}, "but": {}, "in": {}, "on": {}, "at": {},
	"to": {}, "for": {}, "of": {}, "with": {}, "by": {}, "from": {}, "up": {}, "about": {},
	"into": {}, "through": {}, "during": {}, "before": {}, "after": {}, "above": {}, "below": {},
	"is": {}, "are": {}, "was": {}, "were": {}, "be": {}, "been": {}, "being": {}, "have": {},
	"has": {}, "had": {}, "do": {}, "does": {}, "did": {}, "will": {}, "would": {}, "could": {},
	"should": {}, "may": {}, "might": {}, "must": {}, "can": {}, "this": {}, "that": {},
	"these": {}, "those": {}, "i": {}, "you": {}, "he": {}, "she": {}, "it": {}, "we": {}, "they": {},
}

// normalizeURLForDedup lowercases the URL, removes the fragment, strips
// tracking parameters, sorts the remaining query parameters, and trims a
// trailing slash unless the path is "/". Idempotent by construction: a
// second pass over its own output reproduces the same string.
func normalizeURLForDedup(rawURL string) string {
	parsed, err := url.Parse(strings.ToLower(rawURL))
	if err != nil {
		return strings.ToLower(rawURL)
	}

	query := parsed.Query()
	for key := range query {
		if _, tracked := trackingParams[key]; tracked {
			query.Del(key)
		}
	}

	keys := make([]string, 0, len(query))
	for k := range query {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	values := url.Values{}
	for _, k := range keys {
		sort.Strings(query[k])
		for _, v := range query[k] {
			values.Add(k, v)
		}
	}

	path := parsed.Path
	if len(path) > 1 && strings.HasSuffix(path, "/") {
		path = strings.TrimSuffix(path, "/")
	}

	parsed.Path = path
	parsed.RawQuery = values.Encode()
	parsed.Fragment = ""
	parsed.RawFragment = ""

	return parsed.String()
}

// hashURL returns the SHA-256 hex digest of the dedup-normalized URL.
func hashURL(rawURL string) string {
	return sha256Hex(normalizeURLForDedup(rawURL))
}

// hashContent returns the SHA-256 hex digest of content with whitespace
// collapsed to single spaces and lowercased, or "" for empty content.
func hashContent(content string) string {
	if content == "" {
		return ""
	}
	normalized := strings.Join(strings.Fields(strings.ToLower(content)), " ")
	return sha256Hex(normalized)
}

// hashTitle returns the MD5 hex digest of the lowercased, whitespace-
// collapsed title, or "" for an empty title.
func hashTitle(title string) string {
	if title == "" {
		return ""
	}
	normalized := strings.Join(strings.Fields(strings.ToLower(title)), " ")
	return md5Hex(normalized)
}

// fuzzyFeatures is the JSON-serialized feature vector hashed for
// near-duplicate detection.
type fuzzyFeatures struct {
	WordCountBucket     int      `json:"word_count_bucket"`
	CharCountBucket     int      `json:"char_count_bucket"`
	TitleWordCount      int      `json:"title_word_count"`
	SignificantWordCount int     `json:"significant_word_count"`
	TopWords            []string `json:"top_words"`
}

// fuzzyHash returns the MD5 hex digest of a JSON-serialized feature
// vector derived from content and title, or "" if content is empty.
func fuzzyHash(content, title string) string {
	if content == "" {
		return ""
	}

	lower := strings.ToLower(content)
	words := strings.Fields(lower)

	var significant []string
	for _, w := range words {
		if len(w) > 3 {
			if _, stop := stopwords[w]; !stop {
				significant = append(significant, w)
			}
		}
	}

	features := fuzzyFeatures{
		WordCountBucket:      len(words) / 100,
		CharCountBucket:      len(content) / 1000,
		TitleWordCount:       len(strings.Fields(title)),
		SignificantWordCount: len(significant),
		TopWords:             topWords(significant, 10),
	}

	payload, err := json.Marshal(features)
	if err != nil {
		return ""
	}
	return md5Hex(string(payload))
}

// topWords returns up to n words ordered by descending frequency, ties
// broken by first occurrence in words.
func topWords(words []string, n int) []string {
	freq := make(map[string]int)
	firstSeen := make(map[string]int)
	for i, w := range words {
		if _, ok := firstSeen[w]; !ok {
			firstSeen[w] = i
		}
		freq[w]++
	}

	unique := make([]string, 0, len(freq))
	for w := range freq {
		unique = append(unique, w)
	}

	sort.Slice(unique, func(i, j int) bool {
		if freq[unique[i]] != freq[unique[j]] {
			return freq[unique[i]] > freq[unique[j]]
		}
		return firstSeen[unique[i]] < firstSeen[unique[j]]
	})

	if len(unique) > n {
		unique = unique[:n]
	}
	return unique
}

func sha256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

func md5Hex(s string) string { //nolint:gosec // dedup fingerprinting, not security-sensitive
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}
