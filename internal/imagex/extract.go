package imagex

import (
	"bytes"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

var cssURLRe = regexp.MustCompile(`url\(\s*['"]?([^'")]+?)['"]?\s*\)`)

// Extract runs every DOM strategy over the page and returns canonical image
// URLs in discovery order. Strategies run in a fixed sequence and feed one
// pool: <img>, inline background styles, <source>, then anchors that link
// straight to an image file (lightbox galleries).
func Extract(body []byte, pageURL string) ([]string, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("parse page url: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	if href, ok := doc.Find("base[href]").First().Attr("href"); ok {
		if b, err := base.Parse(href); err == nil {
			base = b
		}
	}

	var raw []string
	doc.Find("img").Each(func(_ int, s *goquery.Selection) {
		if v := PickImgSource(func(k string) string { return s.AttrOr(k, "") }); v != "" {
			raw = append(raw, v)
		}
	})
	doc.Find("[style]").Each(func(_ int, s *goquery.Selection) {
		raw = append(raw, StyleURLs(s.AttrOr("style", ""))...)
	})
	doc.Find("source").Each(func(_ int, s *goquery.Selection) {
		if v := LastSrcset(s.AttrOr("srcset", "")); v != "" {
			raw = append(raw, v)
			return
		}
		if v := strings.TrimSpace(s.AttrOr("src", "")); v != "" {
			raw = append(raw, v)
		}
	})
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href := s.AttrOr("href", "")
		if hasImageExt(href) {
			raw = append(raw, href)
		}
	})
	return Canonicalize(raw, base), nil
}

// StyleURLs returns url(...) payloads of background declarations.
func StyleURLs(style string) []string {
	lower := strings.ToLower(style)
	if !strings.Contains(lower, "background-image") && !strings.Contains(lower, "background:") && !strings.Contains(lower, "background :") {
		return nil
	}
	var out []string
	for _, m := range cssURLRe.FindAllStringSubmatch(style, -1) {
		out = append(out, strings.TrimSpace(m[1]))
	}
	return out
}

func hasImageExt(href string) bool {
	u, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return false
	}
	p := strings.ToLower(u.Path)
	for ext := range imageExts {
		if strings.HasSuffix(p, ext) {
			return true
		}
	}
	return false
}

// CountUnique estimates how many distinct photos a page holds without
// building a DOM: a single tokenizer pass over <img> tags with the same
// canonicalization and dedupe as Extract. It is the cheap signal used while
// ranking many pages.
func CountUnique(body []byte, pageURL string) int {
	base, err := url.Parse(pageURL)
	if err != nil {
		return 0
	}
	z := html.NewTokenizer(bytes.NewReader(body))
	var raw []string
	for {
		switch z.Next() {
		case html.ErrorToken:
			return len(Canonicalize(raw, base))
		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := z.TagName()
			if string(name) != "img" || !hasAttr {
				continue
			}
			attrs := map[string]string{}
			for {
				k, v, more := z.TagAttr()
				attrs[string(k)] = string(v)
				if !more {
					break
				}
			}
			if v := PickImgSource(func(k string) string { return attrs[k] }); v != "" {
				raw = append(raw, v)
			}
		}
	}
}
