// Package sanitize strips dangerous tag families from caller-supplied HTML
// and derives a plain-text alternative for outgoing messages.
//
// This is a blunt denylist, not a full sanitizer: only <script> and
// <iframe> blocks are removed. It makes no promise about other injection
// vectors; the relay only accepts mail from holders of the API key.
package sanitize

import (
	"regexp"
	"strings"
)

var (
	scriptPattern = regexp.MustCompile(`(?is)<script\b.*?</script>`)
	iframePattern = regexp.MustCompile(`(?is)<iframe\b.*?</iframe>`)

	tagPattern        = regexp.MustCompile(`<[^>]*>`)
	whitespacePattern = regexp.MustCompile(`\s+`)
)

// entityReplacer decodes the four entities the plain-text fallback cares
// about. &amp; goes last so freshly decoded ampersands are not re-expanded.
var entityReplacer = strings.NewReplacer(
	"&nbsp;", " ",
	"&lt;", "<",
	"&gt;", ">",
	"&amp;", "&",
)

// HTML removes <script>...</script> and <iframe>...</iframe> blocks,
// case-insensitively and non-greedily, across the whole body. Applying it
// to already-clean HTML returns the input unchanged.
func HTML(html string) string {
	html = scriptPattern.ReplaceAllString(html, "")
	html = iframePattern.ReplaceAllString(html, "")
	return html
}

// PlainText derives a text alternative from an HTML body: all tags are
// stripped, the common entities decoded, runs of whitespace collapsed to a
// single space, and the result trimmed.
func PlainText(html string) string {
	text := tagPattern.ReplaceAllString(html, "")
	text = entityReplacer.Replace(text)
	text = whitespacePattern.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}
