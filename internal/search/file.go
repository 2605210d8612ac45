package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/hyperifyio/placescout/internal/topic"
)

// FileProvider answers from a local JSON array of results, for offline runs
// and tests. The file is read once. Hits are ranked by how many query words
// their title, URL and snippet contain; a hit must contain at least half of
// them.
type FileProvider struct {
	Path string

	once sync.Once
	hits []Result
	err  error
}

func (f *FileProvider) Name() string { return "file" }

func (f *FileProvider) load() ([]Result, error) {
	f.once.Do(func() {
		if strings.TrimSpace(f.Path) == "" {
			f.err = errors.New("file provider path is empty")
			return
		}
		b, err := os.ReadFile(f.Path)
		if err != nil {
			f.err = err
			return
		}
		if err := json.Unmarshal(b, &f.hits); err != nil {
			f.err = fmt.Errorf("decode %s: %w", f.Path, err)
		}
	})
	return f.hits, f.err
}

func (f *FileProvider) Search(_ context.Context, query string, limit int) ([]Result, error) {
	all, err := f.load()
	if err != nil {
		return nil, err
	}
	words := strings.Fields(topic.Fold(query))
	need := (len(words) + 1) / 2
	type scored struct {
		r     Result
		count int
	}
	var matched []scored
	for _, r := range all {
		if r.URL == "" {
			continue
		}
		hay := topic.Fold(r.Title + " " + r.URL + " " + r.Snippet)
		n := 0
		for _, w := range words {
			if strings.Contains(hay, w) {
				n++
			}
		}
		if n < need || n == 0 {
			continue
		}
		r.Source = f.Name()
		matched = append(matched, scored{r, n})
	}
	sort.SliceStable(matched, func(i, j int) bool { return matched[i].count > matched[j].count })
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	out := make([]Result, len(matched))
	for i, m := range matched {
		out[i] = m.r
	}
	return out, nil
}
