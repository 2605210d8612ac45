package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/hyperifyio/placescout/internal/metrics"
)

// PageEntry is the metadata saved next to a cached page body. ETag and
// LastModified allow conditional revalidation on the next crawl of the site.
type PageEntry struct {
	URL          string    `json:"url"`
	ContentType  string    `json:"content_type"`
	ETag         string    `json:"etag,omitempty"`
	LastModified string    `json:"last_modified,omitempty"`
	SavedAt      time.Time `json:"saved_at"`
}

// HTTPCache stores fetched pages on disk as <sha256(url)>.meta.json and
// <sha256(url)>.body under Dir. There is no eviction beyond PurgeByAge.
type HTTPCache struct {
	Dir string
}

func (c *HTTPCache) ensureDir() error {
	if c == nil || c.Dir == "" {
		return errors.New("cache dir not configured")
	}
	return os.MkdirAll(c.Dir, 0o755)
}

func digest(s string) string {
	h := sha256.Sum256([]byte(s))
	return hex.EncodeToString(h[:])
}

func (c *HTTPCache) paths(url string) (meta, body string) {
	k := digest(url)
	return filepath.Join(c.Dir, k+metaSuffix), filepath.Join(c.Dir, k+bodySuffix)
}

const (
	metaSuffix = ".meta.json"
	bodySuffix = ".body"
)

// Lookup returns the saved entry and body for url. A miss is reported with
// ok=false and a nil error.
func (c *HTTPCache) Lookup(_ context.Context, url string) (entry *PageEntry, body []byte, ok bool, err error) {
	if err := c.ensureDir(); err != nil {
		return nil, nil, false, err
	}
	metaPath, bodyPath := c.paths(url)
	raw, err := os.ReadFile(metaPath)
	if err != nil {
		metrics.CacheLookups.WithLabelValues("http", "miss").Inc()
		return nil, nil, false, nil
	}
	var e PageEntry
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, nil, false, fmt.Errorf("decode meta: %w", err)
	}
	body, err = os.ReadFile(bodyPath)
	if err != nil {
		metrics.CacheLookups.WithLabelValues("http", "miss").Inc()
		return nil, nil, false, nil
	}
	metrics.CacheLookups.WithLabelValues("http", "hit").Inc()
	return &e, body, true, nil
}

// Save writes body first and then swaps in the metadata atomically so a
// reader never sees metadata without its body.
func (c *HTTPCache) Save(_ context.Context, e PageEntry, body []byte) error {
	if err := c.ensureDir(); err != nil {
		return err
	}
	metaPath, bodyPath := c.paths(e.URL)
	if err := os.WriteFile(bodyPath, body, 0o644); err != nil {
		return fmt.Errorf("write body: %w", err)
	}
	if e.SavedAt.IsZero() {
		e.SavedAt = time.Now().UTC()
	}
	raw, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode meta: %w", err)
	}
	tmp := metaPath + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("write meta: %w", err)
	}
	return os.Rename(tmp, metaPath)
}
