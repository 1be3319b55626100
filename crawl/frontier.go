package crawl

// Frontier is a bounded breadth-first queue that admits each URL once.
type Frontier struct {
	items []string
	seen  map[string]bool
	next  int
	limit int
}

// NewFrontier creates a Frontier admitting at most limit URLs.
func NewFrontier(limit int) *Frontier {
	return &Frontier{seen: make(map[string]bool), limit: limit}
}

// Add enqueues url unless it was seen before or the limit is reached.
// It reports whether url was admitted.
func (f *Frontier) Add(url string) bool {
	if f.seen[url] || len(f.items) >= f.limit {
		return false
	}
	f.seen[url] = true
	f.items = append(f.items, url)
	return true
}

// HasNext reports whether unvisited URLs remain.
func (f *Frontier) HasNext() bool {
	return f.next < len(f.items)
}

// Next returns the next URL in admission order.
func (f *Frontier) Next() string {
	url := f.items[f.next]
	f.next++
	return url
}

// Len is the number of admitted URLs.
func (f *Frontier) Len() int {
	return len(f.items)
}
