package cache

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/hyperifyio/placescout/internal/metrics"
)

// Reply is one memoized model answer.
type Reply struct {
	Text    string    `json:"text"`
	SavedAt time.Time `json:"saved_at"`
}

// LLMCache memoizes model replies keyed by model name and full prompt. The
// relevance scorer, image ranker, request parser and weather summaries all go
// through it, so a second pass over the same site does not ask the same
// questions again. A nil *LLMCache is valid and always misses.
type LLMCache struct {
	Dir string
	// MaxAge expires replies on read. Zero keeps them until purged.
	MaxAge time.Duration
	// StrictPerms enforces 0700 on the directory and 0600 on entries.
	StrictPerms bool
}

// KeyFrom builds a cache key from model and prompt text.
func KeyFrom(model string, prompt string) string {
	return digest(model + "\n\n" + prompt)
}

func (c *LLMCache) pathFor(key string) string {
	return filepath.Join(c.Dir, key+replySuffix)
}

// Get returns the cached reply for key. Misses, expired entries and
// unreadable files are all reported as ok=false.
func (c *LLMCache) Get(_ context.Context, key string) (string, bool) {
	if c == nil || c.Dir == "" {
		return "", false
	}
	raw, err := os.ReadFile(c.pathFor(key))
	if err != nil {
		metrics.CacheLookups.WithLabelValues("llm", "miss").Inc()
		return "", false
	}
	var r Reply
	if err := json.Unmarshal(raw, &r); err != nil {
		metrics.CacheLookups.WithLabelValues("llm", "miss").Inc()
		return "", false
	}
	if c.MaxAge > 0 && time.Since(r.SavedAt) > c.MaxAge {
		metrics.CacheLookups.WithLabelValues("llm", "expired").Inc()
		return "", false
	}
	metrics.CacheLookups.WithLabelValues("llm", "hit").Inc()
	return r.Text, true
}

// Put stores reply under key. It is a no-op on a nil cache.
func (c *LLMCache) Put(_ context.Context, key string, reply string) error {
	if c == nil || c.Dir == "" {
		return nil
	}
	if err := c.ensureDir(); err != nil {
		return err
	}
	raw, err := json.Marshal(Reply{Text: reply, SavedAt: time.Now().UTC()})
	if err != nil {
		return err
	}
	mode := os.FileMode(0o644)
	if c.StrictPerms {
		mode = 0o600
	}
	p := c.pathFor(key)
	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, raw, mode); err != nil {
		return err
	}
	return os.Rename(tmp, p)
}

func (c *LLMCache) ensureDir() error {
	if c.Dir == "" {
		return errors.New("cache dir not configured")
	}
	perm := os.FileMode(0o755)
	if c.StrictPerms {
		perm = 0o700
	}
	if err := os.MkdirAll(c.Dir, perm); err != nil {
		return err
	}
	if c.StrictPerms {
		return os.Chmod(c.Dir, 0o700)
	}
	return nil
}
