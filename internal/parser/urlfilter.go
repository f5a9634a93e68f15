package parser

import (
	"net/url"
	"strings"
)

// blockedExtensions is the blacklist of non-content file extensions, per
// the parser's URL validity filter.
var blockedExtensions = []string{
	".jpg", ".jpeg", ".png", ".gif", ".bmp", ".svg", ".webp",
	".pdf", ".doc", ".docx", ".xls", ".xlsx", ".ppt", ".pptx",
	".zip", ".rar", ".tar", ".gz", ".exe", ".dmg", ".iso",
	".mp3", ".mp4", ".avi", ".mov", ".wmv", ".flv",
	".css", ".js", ".ico", ".woff", ".woff2", ".ttf", ".eot",
}

// normalizeLinkURL lowercases the host and drops the fragment, preserving
// path, params, and query exactly as given. Query-parameter reordering is
// deliberately NOT done here; that level of normalization is the duplicate
// detector's job (see internal/dedup), not the parser's.
func normalizeLinkURL(u *url.URL) *url.URL {
	normalized := *u
	normalized.Host = strings.ToLower(u.Host)
	normalized.Fragment = ""
	normalized.RawFragment = ""
	return &normalized
}

// isValidURL applies the scheme/host/extension/allow-block filter to a
// normalized link or image URL before it is kept.
func (p *Parser) isValidURL(u *url.URL) bool {
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	if u.Host == "" {
		return false
	}

	path := strings.ToLower(u.Path)
	for _, ext := range blockedExtensions {
		if strings.HasSuffix(path, ext) {
			return false
		}
	}

	host := strings.ToLower(u.Host)

	for _, blocked := range p.opts.BlockedDomains {
		if blocked != "" && strings.Contains(host, strings.ToLower(blocked)) {
			return false
		}
	}

	if len(p.opts.AllowedDomains) > 0 {
		allowed := false
		for _, allow := range p.opts.AllowedDomains {
			if allow != "" && strings.Contains(host, strings.ToLower(allow)) {
				allowed = true
				break
			}
		}
		if !allowed {
			return false
		}
	}

	return true
}
