// Package imagex finds photographs on a single HTML page. Raw URLs from
// several DOM strategies are made absolute, filtered against a blocklist and
// deduplicated by base identity: the URL with size suffixes and the format
// extension removed, so that photo-800x600.jpg, photo_thumbnail.jpg and
// photo-scaled.webp count as one image.
package imagex

import (
	"net/url"
	"path"
	"regexp"
	"strings"
)

var (
	sizeSuffixRe = regexp.MustCompile(`(?i)([-_]\d{2,5}x\d{2,5}(px)?|[-_](thumb|thumbnail|small|scaled|medium)|@\d(\.\d)?x)$`)
	srcsetSepRe  = regexp.MustCompile(`,\s+`)
)

var imageExts = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".webp": true, ".gif": true, ".avif": true,
}

// extensionless URLs on these paths/hosts still serve images
var imagePathHints = []string{
	"/images/", "/image/", "/img/", "/photos/", "/media/", "wp-content/uploads",
	"cloudinary.com", "imgix.net", "googleusercontent.com", "format=jpg", "format=webp", "fm=jpg", "fm=webp",
}

// blocklist is matched against host and path only; query strings on CDN
// images routinely carry campaign parameters.
var blocklist = []string{
	"logo", "icon", "favicon", "sprite", "spacer", "banner", "pixel.gif", "blank.gif",
	"placeholder", "loader", "loading.gif", "emoji", "gravatar",
	"facebook.com/tr", "google-analytics", "googletagmanager", "doubleclick", "analytics",
	"tracking", "/ads/", "badge",
}

// spacerRe matches a 1x1 size token, not the digits inside 1921x1080.
var spacerRe = regexp.MustCompile(`[-_/]1x1[._-]`)

// Absolute converts a raw attribute value to an absolute http(s) URL.
// Protocol-relative URLs get https. Data URIs and script URLs are rejected.
func Absolute(raw string, base *url.URL) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.HasPrefix(raw, "#") {
		return "", false
	}
	lower := strings.ToLower(raw)
	if strings.HasPrefix(lower, "data:") || strings.HasPrefix(lower, "javascript:") || strings.HasPrefix(lower, "blob:") {
		return "", false
	}
	if strings.HasPrefix(raw, "//") {
		raw = "https:" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", false
	}
	if !u.IsAbs() {
		if base == nil {
			return "", false
		}
		u = base.ResolveReference(u)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", false
	}
	if u.Host == "" {
		return "", false
	}
	u.Fragment = ""
	return u.String(), true
}

// CanonicalName strips size suffixes from a file name, keeping its extension:
// "photo-800x600.jpg" becomes "photo.jpg".
func CanonicalName(name string) string {
	ext := path.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for {
		next := sizeSuffixRe.ReplaceAllString(stem, "")
		if next == stem || next == "" {
			break
		}
		stem = next
	}
	return stem + strings.ToLower(ext)
}

// BaseIdentity is the deduplication key of an absolute image URL: lower-cased
// host, directory and canonical file stem, without query or extension.
func BaseIdentity(abs string) string {
	u, err := url.Parse(abs)
	if err != nil {
		return strings.ToLower(abs)
	}
	dir, file := path.Split(u.Path)
	canon := CanonicalName(file)
	canon = strings.TrimSuffix(canon, path.Ext(canon))
	return strings.ToLower(u.Host + dir + canon)
}

// IsBlocked reports whether the URL looks like chrome, tracking or ads.
func IsBlocked(abs string) bool {
	lower := strings.ToLower(abs)
	if u, err := url.Parse(abs); err == nil {
		lower = strings.ToLower(u.Host + u.Path)
	}
	if spacerRe.MatchString(lower) {
		return true
	}
	for _, b := range blocklist {
		if strings.Contains(lower, b) {
			return true
		}
	}
	return false
}

// IsLikelyImage accepts known raster extensions, and extensionless URLs on
// paths or CDNs that usually serve images. SVG is treated as vector chrome.
func IsLikelyImage(abs string) bool {
	u, err := url.Parse(abs)
	if err != nil {
		return false
	}
	ext := strings.ToLower(path.Ext(u.Path))
	if imageExts[ext] {
		return true
	}
	if ext != "" && ext != ".php" && ext != ".aspx" && ext != ".ashx" {
		return false
	}
	lower := strings.ToLower(abs)
	for _, h := range imagePathHints {
		if strings.Contains(lower, h) {
			return true
		}
	}
	return false
}

// LastSrcset returns the URL of the last (largest) candidate of a srcset.
func LastSrcset(srcset string) string {
	srcset = strings.TrimSpace(srcset)
	if srcset == "" {
		return ""
	}
	parts := srcsetSepRe.Split(srcset, -1)
	last := strings.TrimSpace(parts[len(parts)-1])
	if fields := strings.Fields(last); len(fields) > 0 {
		return fields[0]
	}
	return ""
}

// lazyAttrs are read, in order, when src is missing or a placeholder.
var lazyAttrs = []string{"data-src", "data-lazy-src", "data-original"}

// PickImgSource chooses one raw URL for an <img>: src, then the lazy-load
// attributes, then the last srcset candidate.
func PickImgSource(attr func(string) string) string {
	if src := strings.TrimSpace(attr("src")); src != "" && !isPlaceholder(src) {
		return src
	}
	for _, a := range lazyAttrs {
		if v := strings.TrimSpace(attr(a)); v != "" {
			return v
		}
	}
	if v := LastSrcset(attr("srcset")); v != "" {
		return v
	}
	return LastSrcset(attr("data-srcset"))
}

func isPlaceholder(src string) bool {
	lower := strings.ToLower(src)
	return strings.HasPrefix(lower, "data:") || strings.Contains(lower, "placeholder") || strings.Contains(lower, "blank.gif")
}

// Canonicalize turns raw URLs into the final image list: absolute, not
// blocked, likely an image, and first-seen per base identity. Discovery order
// is preserved.
func Canonicalize(raw []string, base *url.URL) []string {
	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		abs, ok := Absolute(r, base)
		if !ok || IsBlocked(abs) || !IsLikelyImage(abs) {
			continue
		}
		id := BaseIdentity(abs)
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, abs)
	}
	return out
}
