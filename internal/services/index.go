package services

import "sync"

// PageCountIndex maps a staged file to its page count. It is safe for
// concurrent use and never overwrites an entry once written.
type PageCountIndex struct {
	mu     sync.Mutex
	counts map[string]int
	order  []string
}

// NewPageCountIndex returns an empty index.
func NewPageCountIndex() *PageCountIndex {
	return &PageCountIndex{counts: make(map[string]int)}
}

// Add records n pages for path. It returns false, leaving the index
// untouched, if path already has an entry.
func (x *PageCountIndex) Add(path string, n int) bool {
	x.mu.Lock()
	defer x.mu.Unlock()
	if _, ok := x.counts[path]; ok {
		return false
	}
	x.counts[path] = n
	x.order = append(x.order, path)
	return true
}

// Get returns the page count recorded for path.
func (x *PageCountIndex) Get(path string) (int, bool) {
	x.mu.Lock()
	defer x.mu.Unlock()
	n, ok := x.counts[path]
	return n, ok
}

func (x *PageCountIndex) Len() int {
	x.mu.Lock()
	defer x.mu.Unlock()
	return len(x.counts)
}

// IndexEntry is one path and its page count.
type IndexEntry struct {
	Path      string
	PageCount int
}

// Entries returns a snapshot of the index in insertion order.
func (x *PageCountIndex) Entries() []IndexEntry {
	x.mu.Lock()
	defer x.mu.Unlock()
	out := make([]IndexEntry, 0, len(x.order))
	for _, p := range x.order {
		out = append(out, IndexEntry{Path: p, PageCount: x.counts[p]})
	}
	return out
}

// Total is the sum of all recorded page counts.
func (x *PageCountIndex) Total() int {
	x.mu.Lock()
	defer x.mu.Unlock()
	total := 0
	for _, n := range x.counts {
		total += n
	}
	return total
}
