package parser_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/webcrawler/internal/parser"
)

const testPageURL = "https://example.com/article/1"

const fullArticleHTML = `<!DOCTYPE html>
<html lang="en">
<head>
  <title>Breaking News: Test Article</title>
  <meta name="description" content="A test article description.">
  <meta name="keywords" content="news, test, golang">
  <meta name="author" content="Jane Doe">
  <link rel="canonical" href="/article/1">
  <script type="application/ld+json">{"@type":"NewsArticle","headline":"Breaking News"}</script>
</head>
<body>
  <nav>Navigation links</nav>
  <article>
    <h1>Breaking News: Test Article</h1>
    <h2>A subheading</h2>
    <p>This is the article body text for testing purposes. Contact us at press@example.com.</p>
    <a href="/page2">next</a>
    <a href="https://other.example/page?b=2&a=1#frag">other</a>
    <a href="#top">skip me</a>
    <a href="/file.pdf">skip pdf</a>
    <img src="/images/pic.jpg">
  </article>
  <footer>Footer content</footer>
</body>
</html>`

func TestParse_FullArticle(t *testing.T) {
	t.Parallel()

	p := parser.New(parser.Options{})
	content := p.Parse(testPageURL, fullArticleHTML)

	assert.Equal(t, "Breaking News: Test Article", content.Title)
	assert.Equal(t, "A test article description.", content.Description)
	assert.Equal(t, "Jane Doe", content.Author)
	assert.Equal(t, []string{"news", "test", "golang"}, content.Keywords)
	assert.Equal(t, "en", content.Language)
	assert.Equal(t, "https://example.com/article/1", content.CanonicalURL)
	assert.Contains(t, content.Content, "article body text")
	assert.NotContains(t, content.Content, "Navigation links")
	assert.NotContains(t, content.Content, "Footer content")
	assert.Contains(t, content.Content, "[EMAIL]")
	assert.NotContains(t, content.Content, "press@example.com")
	assert.Equal(t, []string{"Breaking News: Test Article"}, content.Headings["h1"])
	assert.Equal(t, []string{"A subheading"}, content.Headings["h2"])
	assert.Greater(t, content.WordCount, 0)

	require.Len(t, content.Links, 2)
	assert.Contains(t, content.Links, "https://example.com/page2")
	assert.Contains(t, content.Links, "https://other.example/page?b=2&a=1")
	// Images pass through the same validity filter as links, whose
	// extension blacklist drops the .jpg source.
	assert.NotContains(t, content.Images, "https://example.com/images/pic.jpg")

	require.Len(t, content.SchemaOrg, 1)
	assert.Equal(t, "NewsArticle", content.SchemaOrg[0].Type)
}

func TestParse_IdempotentLinkSet(t *testing.T) {
	t.Parallel()

	p := parser.New(parser.Options{})
	first := p.Parse(testPageURL, fullArticleHTML)
	second := p.Parse(testPageURL, fullArticleHTML)

	assert.Equal(t, first.Links, second.Links)
	assert.Equal(t, first.Images, second.Images)
	assert.Equal(t, first.Headings, second.Headings)
}

func TestParse_EmptyHTMLReturnsURLOnly(t *testing.T) {
	t.Parallel()

	p := parser.New(parser.Options{})
	content := p.Parse(testPageURL, "")

	assert.Equal(t, testPageURL, content.URL)
	assert.Empty(t, content.Title)
	assert.Empty(t, content.Links)
}

func TestParse_AllowBlockDomainFilter(t *testing.T) {
	t.Parallel()

	html := `<html><body><a href="https://allowed.example/a">a</a><a href="https://blocked.example/b">b</a></body></html>`

	p := parser.New(parser.Options{
		AllowedDomains: []string{"allowed.example", "example.com"},
		BlockedDomains: []string{"blocked.example"},
	})
	content := p.Parse("https://example.com/", html)

	assert.Contains(t, content.Links, "https://allowed.example/a")
	assert.NotContains(t, content.Links, "https://blocked.example/b")
}

func TestParse_MainContentFallbackOrder(t *testing.T) {
	t.Parallel()

	html := `<html><body>
		<div id="main">main region text</div>
		<main>actual main text</main>
	</body></html>`

	p := parser.New(parser.Options{})
	content := p.Parse(testPageURL, html)

	assert.Contains(t, content.Content, "actual main text")
}
