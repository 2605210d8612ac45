package crawl

import (
	"container/heap"
	"net/url"
	"strings"
)

// Entry is one frontier item awaiting a visit.
type Entry struct {
	URL      string
	Priority float64
	// Title of the page the link was found on.
	Title string
	// Anchor is the link's visible text.
	Anchor string

	seq int
}

// Frontier is a max-priority queue. Equal priorities pop in insertion order
// so a crawl over the same site is reproducible.
type Frontier struct {
	h   entryHeap
	seq int
}

// Push adds e.
func (f *Frontier) Push(e Entry) {
	e.seq = f.seq
	f.seq++
	heap.Push(&f.h, e)
}

// Pop removes and returns the highest-priority entry.
func (f *Frontier) Pop() (Entry, bool) {
	if len(f.h) == 0 {
		return Entry{}, false
	}
	return heap.Pop(&f.h).(Entry), true
}

// Len reports the number of queued entries.
func (f *Frontier) Len() int { return len(f.h) }

type entryHeap []Entry

func (h entryHeap) Len() int { return len(h) }
func (h entryHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority > h[j].Priority
	}
	return h[i].seq < h[j].seq
}
func (h entryHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *entryHeap) Push(x any)   { *h = append(*h, x.(Entry)) }
func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	*h = old[:n-1]
	return e
}

// NormalizeURL is the identity key for "already seen": the fragment is
// dropped, scheme and host are lower-cased and a trailing slash removed.
func NormalizeURL(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return strings.TrimRight(strings.TrimSpace(raw), "/")
	}
	u.Fragment = ""
	u.RawFragment = ""
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	return strings.TrimRight(u.String(), "/")
}
