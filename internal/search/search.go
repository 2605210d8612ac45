// Package search looks up the official website of a place that the place
// directories returned without one.
package search

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"github.com/hyperifyio/placescout/internal/topic"
)

// Result is one web search hit.
type Result struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
	Source  string `json:"-"`
}

// Provider is a web search backend.
type Provider interface {
	Search(ctx context.Context, query string, limit int) ([]Result, error)
	Name() string
}

// DomainPolicy filters hits by host. Denylist wins over Allowlist; an empty
// Allowlist allows every host.
type DomainPolicy struct {
	Allowlist []string
	Denylist  []string
}

// DirectoryHosts are review sites, maps and social networks that list a
// place without being its website.
var DirectoryHosts = []string{
	"facebook.com", "instagram.com", "tripadvisor.", "google.", "yelp.", "booking.com",
	"wikipedia.org", "foursquare.com", "zomato.com", "restaurantguru.com", "tiktok.com",
	"youtube.com", "x.com", "twitter.com", "linkedin.com", "openstreetmap.org",
}

// DefaultPolicy denies DirectoryHosts.
func DefaultPolicy() DomainPolicy { return DomainPolicy{Denylist: DirectoryHosts} }

// Allows reports whether host passes the policy. Entries match the host
// itself, any subdomain, or, when ending in ".", any top-level domain.
func (p DomainPolicy) Allows(host string) bool {
	host = strings.TrimPrefix(strings.ToLower(host), "www.")
	for _, d := range p.Denylist {
		if hostMatches(host, d) {
			return false
		}
	}
	if len(p.Allowlist) == 0 {
		return true
	}
	for _, a := range p.Allowlist {
		if hostMatches(host, a) {
			return true
		}
	}
	return false
}

func hostMatches(host, entry string) bool {
	entry = strings.ToLower(strings.TrimSpace(entry))
	if entry == "" {
		return false
	}
	if strings.HasSuffix(entry, ".") {
		return strings.HasPrefix(host, entry) || strings.Contains(host, "."+entry)
	}
	return host == entry || strings.HasSuffix(host, "."+entry)
}

// ErrNoWebsite is returned when no hit looks like the place's own site.
var ErrNoWebsite = errors.New("no website found")

// FindWebsite searches for "name city" and returns the site root of the
// best allowed hit. Hits whose host contains a word of the name rank first;
// otherwise the first allowed hit is used.
func FindWebsite(ctx context.Context, p Provider, policy DomainPolicy, name, city string) (string, error) {
	query := strings.TrimSpace(name + " " + city)
	if query == "" {
		return "", ErrNoWebsite
	}
	hits, err := p.Search(ctx, query, 10)
	if err != nil {
		return "", err
	}
	words := nameWords(name)
	fallback := ""
	for _, h := range hits {
		u, err := url.Parse(h.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			continue
		}
		if !policy.Allows(u.Hostname()) {
			continue
		}
		root := u.Scheme + "://" + u.Host + "/"
		host := topic.Fold(u.Hostname())
		for _, w := range words {
			if strings.Contains(host, w) {
				return root, nil
			}
		}
		if fallback == "" {
			fallback = root
		}
	}
	if fallback == "" {
		return "", ErrNoWebsite
	}
	return fallback, nil
}

// nameWords returns the folded words of a place name long enough to be
// distinctive in a host name.
func nameWords(name string) []string {
	var out []string
	for _, w := range strings.FieldsFunc(topic.Fold(name), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	}) {
		if len(w) >= 4 {
			out = append(out, w)
		}
	}
	return out
}
