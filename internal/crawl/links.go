package crawl

import (
	"bytes"
	"net/url"
	"path"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Link is an outbound anchor found on a page.
type Link struct {
	URL  string
	Text string
}

// nonHTML lists extensions of resources that never hold a gallery page.
var nonHTML = map[string]bool{
	".pdf": true, ".doc": true, ".docx": true, ".xls": true, ".xlsx": true, ".ppt": true, ".pptx": true,
	".zip": true, ".rar": true, ".gz": true, ".7z": true,
	".mp3": true, ".mp4": true, ".wav": true, ".avi": true, ".mov": true, ".webm": true, ".ogg": true,
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".webp": true, ".svg": true,
	".xml": true, ".json": true, ".rss": true, ".ics": true, ".css": true, ".js": true,
}

// scanPage reads the <title> and every <a href> of body in one tokenizer
// pass. Hrefs are resolved against pageURL (or a <base href>).
func scanPage(body []byte, pageURL string) (string, []Link) {
	base, _ := url.Parse(pageURL)
	z := html.NewTokenizer(bytes.NewReader(body))
	var (
		title   strings.Builder
		inTitle bool
		links   []Link
		current *Link
		text    strings.Builder
	)
	flush := func() {
		if current != nil {
			current.Text = strings.Join(strings.Fields(text.String()), " ")
			links = append(links, *current)
			current = nil
			text.Reset()
		}
	}
	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			flush()
			return strings.TrimSpace(title.String()), links
		case html.TextToken:
			if inTitle {
				title.Write(z.Text())
			} else if current != nil {
				text.Write(z.Text())
				text.WriteByte(' ')
			}
		case html.StartTagToken, html.SelfClosingTagToken:
			t := z.Token()
			switch t.DataAtom {
			case atom.Title:
				inTitle = tt == html.StartTagToken
			case atom.Base:
				if href := attr(t, "href"); href != "" && base != nil {
					if b, err := base.Parse(href); err == nil {
						base = b
					}
				}
			case atom.A:
				flush()
				href := attr(t, "href")
				if href == "" || base == nil {
					continue
				}
				if abs, ok := resolveLink(base, href); ok {
					current = &Link{URL: abs}
					if tt == html.SelfClosingTagToken {
						flush()
					}
				}
			case atom.Img:
				// alt text of linked images names the target page
				if current != nil {
					text.WriteString(attr(t, "alt"))
					text.WriteByte(' ')
				}
			}
		case html.EndTagToken:
			switch z.Token().DataAtom {
			case atom.Title:
				inTitle = false
			case atom.A:
				flush()
			}
		}
	}
}

func attr(t html.Token, key string) string {
	for _, a := range t.Attr {
		if a.Key == key {
			return strings.TrimSpace(a.Val)
		}
	}
	return ""
}

// resolveLink rejects fragment-only, script and mail links, then resolves.
func resolveLink(base *url.URL, href string) (string, bool) {
	lower := strings.ToLower(href)
	if strings.HasPrefix(href, "#") || strings.HasPrefix(lower, "javascript:") ||
		strings.HasPrefix(lower, "mailto:") || strings.HasPrefix(lower, "tel:") {
		return "", false
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	u := base.ResolveReference(ref)
	u.Fragment = ""
	return u.String(), true
}

// eligible reports whether link stays on host and may be an HTML page.
func eligible(link string, host string) bool {
	u, err := url.Parse(link)
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	if !strings.EqualFold(u.Host, host) {
		return false
	}
	return !nonHTML[strings.ToLower(path.Ext(u.Path))]
}
