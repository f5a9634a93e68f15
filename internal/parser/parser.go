// Package parser converts fetched HTML into structured ParsedContent:
// title, main text, metadata, headings, links, images, and schema.org
// data, plus the link validity filtering applied before discovered URLs
// are handed to the frontier.
package parser

import (
	"encoding/json"
	"net/url"
	"regexp"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/example/webcrawler/internal/domain"
)

var (
	whitespacePattern = regexp.MustCompile(`\s+`)
	emailPattern      = regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)
)

// headingLevels is the ordered set of heading tags collected into
// ParsedContent.Headings.
var headingLevels = []string{"h1", "h2", "h3", "h4", "h5", "h6"}

// mainContentSelectors is the priority order used to locate the main
// content region, first match wins.
var mainContentSelectors = []string{
	"main", "article", `[role="main"]`, ".content", ".main-content", "#content", "#main",
}

// unwantedInMainContent is stripped from the selected main content region
// before its text is extracted.
const unwantedInMainContent = "nav, footer, aside, .sidebar, .navigation, .menu"

// Options configures link/image filtering.
type Options struct {
	// AllowedDomains, if non-empty, requires a link's host to contain one
	// of these substrings to be kept.
	AllowedDomains []string
	// BlockedDomains rejects a link whose host contains any of these
	// substrings.
	BlockedDomains []string
}

// Parser extracts structured content from fetched HTML.
type Parser struct {
	opts Options
}

// New constructs a Parser with the given link-filtering options.
func New(opts Options) *Parser {
	return &Parser{opts: opts}
}

// Parse converts html fetched from pageURL into a ParsedContent. Parse
// never returns an error: malformed HTML is parsed leniently, and when the
// document cannot be read or pageURL does not parse it returns a
// ParsedContent with only the URL set, matching the scheduler's "parse
// error is not fatal" contract.
func (p *Parser) Parse(pageURL, htmlBody string) *domain.ParsedContent {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlBody))
	if err != nil {
		return domain.NewParsedContent(pageURL)
	}

	base, err := url.Parse(pageURL)
	if err != nil {
		return domain.NewParsedContent(pageURL)
	}

	// JSON-LD lives in <script> elements, so collect schema.org data before
	// scripts are stripped.
	schemaOrg := extractSchemaOrg(doc)

	if len(doc.Nodes) > 0 {
		stripComments(doc.Nodes[0])
	}
	doc.Find("script, style, noscript").Remove()

	content := domain.NewParsedContent(pageURL)

	content.Title = cleanText(doc.Find("title").First().Text())
	content.Description = extractMetaContent(doc, `meta[name="description"]`, `meta[property="og:description"]`)
	content.Author = extractMetaContent(doc, `meta[name="author"]`, `meta[property="article:author"]`)
	content.Keywords = splitKeywords(extractMetaContent(doc, `meta[name="keywords"]`))
	content.Language = extractLanguage(doc)
	content.CanonicalURL = extractCanonical(doc, base)
	content.Headings = extractHeadings(doc)
	content.Content = extractMainContent(doc)
	content.Links = p.extractLinks(doc, base)
	content.Images = p.extractImages(doc, base)
	content.SchemaOrg = schemaOrg

	if content.Content != "" {
		content.WordCount = len(strings.Fields(content.Content))
	}

	return content
}

// stripComments removes every html.CommentNode from the tree rooted at n.
func stripComments(n *html.Node) {
	var next *html.Node
	for c := n.FirstChild; c != nil; c = next {
		next = c.NextSibling
		if c.Type == html.CommentNode {
			n.RemoveChild(c)
			continue
		}
		stripComments(c)
	}
}

// extractMetaContent returns the trimmed "content" attribute of the first
// selector (in order) that matches and carries one.
func extractMetaContent(doc *goquery.Document, selectors ...string) string {
	for _, sel := range selectors {
		if val, ok := doc.Find(sel).First().Attr("content"); ok {
			if trimmed := strings.TrimSpace(val); trimmed != "" {
				return cleanText(trimmed)
			}
		}
	}
	return ""
}

func splitKeywords(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	keywords := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			keywords = append(keywords, trimmed)
		}
	}
	return keywords
}

func extractLanguage(doc *goquery.Document) string {
	htmlTag := doc.Find("html").First()
	if lang, ok := htmlTag.Attr("lang"); ok && lang != "" {
		return lang
	}
	if lang, ok := htmlTag.Attr("xml:lang"); ok && lang != "" {
		return lang
	}
	return ""
}

func extractCanonical(doc *goquery.Document, base *url.URL) string {
	href, ok := doc.Find(`link[rel="canonical"]`).First().Attr("href")
	if !ok || strings.TrimSpace(href) == "" {
		return ""
	}
	resolved, err := resolveURL(base, href)
	if err != nil {
		return ""
	}
	return resolved.String()
}

func extractHeadings(doc *goquery.Document) map[string][]string {
	headings := make(map[string][]string, len(headingLevels))
	for _, level := range headingLevels {
		var texts []string
		doc.Find(level).Each(func(_ int, s *goquery.Selection) {
			if text := cleanText(s.Text()); text != "" {
				texts = append(texts, text)
			}
		})
		headings[level] = texts
	}
	return headings
}

func extractMainContent(doc *goquery.Document) string {
	var region *goquery.Selection
	for _, selector := range mainContentSelectors {
		candidate := doc.Find(selector).First()
		if candidate.Length() > 0 {
			region = candidate
			break
		}
	}
	if region == nil {
		region = doc.Find("body").First()
	}
	if region == nil || region.Length() == 0 {
		region = doc.Selection
	}

	region.Find(unwantedInMainContent).Remove()

	return cleanText(selectionText(region))
}

// selectionText concatenates every text node under sel, separated by a
// space so adjacent block elements don't run their words together.
func selectionText(sel *goquery.Selection) string {
	var sb strings.Builder
	for _, n := range sel.Nodes {
		collectText(n, &sb)
	}
	return sb.String()
}

func collectText(n *html.Node, sb *strings.Builder) {
	if n.Type == html.TextNode {
		sb.WriteString(n.Data)
		sb.WriteString(" ")
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, sb)
	}
}

func (p *Parser) extractLinks(doc *goquery.Document, base *url.URL) []string {
	seen := make(map[string]struct{})
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "#") {
			return
		}
		resolved, err := resolveURL(base, href)
		if err != nil {
			return
		}
		normalized := normalizeLinkURL(resolved)
		if p.isValidURL(normalized) {
			seen[normalized.String()] = struct{}{}
		}
	})
	return sortedKeys(seen)
}

func (p *Parser) extractImages(doc *goquery.Document, base *url.URL) []string {
	seen := make(map[string]struct{})
	doc.Find("img[src]").Each(func(_ int, s *goquery.Selection) {
		src, _ := s.Attr("src")
		src = strings.TrimSpace(src)
		if src == "" {
			return
		}
		resolved, err := resolveURL(base, src)
		if err != nil {
			return
		}
		normalized := normalizeLinkURL(resolved)
		if p.isValidURL(normalized) {
			seen[normalized.String()] = struct{}{}
		}
	})
	return sortedKeys(seen)
}

func resolveURL(base *url.URL, ref string) (*url.URL, error) {
	parsedRef, err := url.Parse(ref)
	if err != nil {
		return nil, err
	}
	return base.ResolveReference(parsedRef), nil
}

func sortedKeys(set map[string]struct{}) []string {
	if len(set) == 0 {
		return []string{}
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func extractSchemaOrg(doc *goquery.Document) []domain.SchemaOrgEntity {
	var entities []domain.SchemaOrgEntity

	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, s *goquery.Selection) {
		var raw any
		if err := json.Unmarshal([]byte(s.Text()), &raw); err != nil {
			return
		}
		entities = append(entities, jsonLDEntities(raw)...)
	})

	doc.Find("[itemtype]").Each(func(_ int, s *goquery.Selection) {
		itemtype, _ := s.Attr("itemtype")
		parts := strings.Split(itemtype, "/")
		typeName := parts[len(parts)-1]
		if typeName == "" {
			return
		}

		properties := make(map[string]any)
		s.Find("[itemprop]").Each(func(_ int, prop *goquery.Selection) {
			name, _ := prop.Attr("itemprop")
			if name == "" {
				return
			}
			value, ok := prop.Attr("content")
			if !ok || strings.TrimSpace(value) == "" {
				value = strings.TrimSpace(prop.Text())
			}
			if value != "" {
				properties[name] = value
			}
		})

		if len(properties) > 0 {
			entities = append(entities, domain.SchemaOrgEntity{Type: typeName, Properties: properties})
		}
	})

	return entities
}

// jsonLDEntities flattens a parsed JSON-LD payload, which may be a single
// object or a top-level array of objects, into SchemaOrgEntity values.
func jsonLDEntities(raw any) []domain.SchemaOrgEntity {
	switch v := raw.(type) {
	case map[string]any:
		typeName, _ := v["@type"].(string)
		if typeName == "" {
			typeName = "Unknown"
		}
		return []domain.SchemaOrgEntity{{Type: typeName, Properties: v}}
	case []any:
		var out []domain.SchemaOrgEntity
		for _, item := range v {
			obj, ok := item.(map[string]any)
			if !ok {
				continue
			}
			typeName, _ := obj["@type"].(string)
			if typeName == "" {
				typeName = "Unknown"
			}
			out = append(out, domain.SchemaOrgEntity{Type: typeName, Properties: obj})
		}
		return out
	default:
		return nil
	}
}

// cleanText collapses whitespace and masks email-like tokens so stored
// content carries no raw addresses.
func cleanText(text string) string {
	if text == "" {
		return ""
	}
	collapsed := whitespacePattern.ReplaceAllString(strings.TrimSpace(text), " ")
	return emailPattern.ReplaceAllString(collapsed, "[EMAIL]")
}
