// Package extract pulls the readable text of a page so a model can judge it
// without the markup.
package extract

import (
	"bytes"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

// Document is the readable part of a page.
type Document struct {
	Title string
	Text  string
}

var boilerplate = "script, style, noscript, template, svg, iframe, nav, footer, aside, form"

var blockTags = map[string]bool{
	"p": true, "h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"li": true, "dt": true, "dd": true, "blockquote": true, "figcaption": true, "td": true, "th": true,
}

// FromHTML returns the page title and the text of its main content. It
// prefers <main>, then <article>, then <body>, and drops navigation, footers
// and cookie banners.
func FromHTML(body []byte) Document {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return Document{}
	}
	out := Document{Title: collapse(doc.Find("head title").First().Text())}

	doc.Find(boilerplate).Remove()
	doc.Find("[id], [class], [role], [aria-label]").Each(func(_ int, s *goquery.Selection) {
		if isConsentBanner(s) {
			s.Remove()
		}
	})

	root := doc.Find("main").First()
	if root.Length() == 0 {
		root = doc.Find("article").First()
	}
	if root.Length() == 0 {
		root = doc.Find("body").First()
	}

	var lines []string
	var inline strings.Builder
	flush := func() {
		if s := collapse(inline.String()); s != "" {
			lines = append(lines, s)
		}
		inline.Reset()
	}
	var walk func(*goquery.Selection)
	walk = func(sel *goquery.Selection) {
		sel.Contents().Each(func(_ int, c *goquery.Selection) {
			if goquery.NodeName(c) == "#text" {
				inline.WriteString(c.Text())
				inline.WriteByte(' ')
				return
			}
			block := blockTags[goquery.NodeName(c)]
			if block {
				flush()
			}
			walk(c)
			if block || goquery.NodeName(c) == "br" {
				flush()
			}
		})
	}
	walk(root)
	flush()
	out.Text = strings.Join(lines, "\n")
	return out
}

func isConsentBanner(s *goquery.Selection) bool {
	for _, attr := range []string{"id", "class", "role", "aria-label"} {
		v, ok := s.Attr(attr)
		if !ok {
			continue
		}
		v = strings.ToLower(v)
		if strings.Contains(v, "cookie") || strings.Contains(v, "consent") || strings.Contains(v, "gdpr") {
			return true
		}
	}
	return false
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Excerpt shortens text to at most max bytes, cutting at a word boundary
// and marking the cut with an ellipsis. It never splits a rune.
func Excerpt(text string, max int) string {
	text = strings.TrimSpace(text)
	if max <= 0 || len(text) <= max {
		return text
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	if i := strings.LastIndexAny(text[:cut], " \n"); i > max/2 {
		cut = i
	}
	return strings.TrimSpace(text[:cut]) + "…"
}
