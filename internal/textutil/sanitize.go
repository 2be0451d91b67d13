// Package textutil cleans user supplied text and renders plan notes.
package textutil

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

var spaceRe = regexp.MustCompile(`[ \t\f\v]+`)

var blankLinesRe = regexp.MustCompile(`\n{3,}`)

// markupRe matches what a browser would treat as markup: tags, comments,
// doctype-like declarations and character references.
var markupRe = regexp.MustCompile(`<!--[\s\S]*?-->|<[a-zA-Z/!][^<>]*>|&(?:#[0-9]+|#[xX][0-9a-fA-F]+|[a-zA-Z][a-zA-Z0-9]*);`)

// StripHTML returns the visible text of s. Markup is parsed as an HTML
// fragment and only text nodes are kept; script and style bodies are dropped.
// A '<' or '&' that does not start markup is kept as typed.
func StripHTML(s string) string {
	spans := markupRe.FindAllStringIndex(s, -1)
	if len(spans) == 0 {
		return s
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(escapeLiterals(s, spans)))
	if err != nil {
		return s
	}
	doc.Find("script, style, noscript, template").Remove()
	return doc.Text()
}

var literalEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;")

// escapeLiterals escapes '<' and '&' outside the markup spans so the parser
// reads them back as text.
func escapeLiterals(s string, spans [][]int) string {
	var b strings.Builder
	b.Grow(len(s) + 16)
	prev := 0
	for _, sp := range spans {
		b.WriteString(literalEscaper.Replace(s[prev:sp[0]]))
		b.WriteString(s[sp[0]:sp[1]])
		prev = sp[1]
	}
	b.WriteString(literalEscaper.Replace(s[prev:]))
	return b.String()
}

// Condense trims s and collapses runs of horizontal whitespace. Paragraph
// breaks survive but more than one blank line is folded.
func Condense(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(spaceRe.ReplaceAllString(line, " "))
	}
	s = strings.Join(lines, "\n")
	return strings.TrimSpace(blankLinesRe.ReplaceAllString(s, "\n\n"))
}

// NormalizeMarkdown prepares Markdown for storage. Line endings become "\n"
// and blank edges are trimmed; indentation and inner blank lines are kept
// because they carry meaning.
func NormalizeMarkdown(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = strings.TrimRight(s, " \t\n")
	for {
		i := strings.IndexByte(s, '\n')
		if i < 0 || strings.TrimSpace(s[:i]) != "" {
			return s
		}
		s = s[i+1:]
	}
}

// CleanText strips markup and condenses whitespace.
func CleanText(s string) string {
	return Condense(StripHTML(s))
}

// Length counts characters, not bytes.
func Length(s string) int {
	return utf8.RuneCountInString(s)
}

// Truncate shortens s to at most n characters. When text is cut the last
// kept character is an ellipsis.
func Truncate(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:n-1])) + "…"
}

// Capitalize upper-cases the first character of s.
func Capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if size == 0 || r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}
