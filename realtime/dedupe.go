package realtime

import "sync"

// Deduper remembers the last limit event ids so listeners can drop repeats.
type Deduper struct {
	mu    sync.Mutex
	limit int
	seen  map[string]struct{}
	ring  []string
	next  int
}

func NewDeduper(limit int) *Deduper {
	if limit <= 0 {
		limit = 256
	}
	return &Deduper{
		limit: limit,
		seen:  make(map[string]struct{}, limit),
		ring:  make([]string, limit),
	}
}

// Seen reports whether id was already recorded, recording it otherwise.
// Empty ids are never treated as duplicates.
func (d *Deduper) Seen(id string) bool {
	if id == "" {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.seen[id]; ok {
		return true
	}
	if evicted := d.ring[d.next]; evicted != "" {
		delete(d.seen, evicted)
	}
	d.ring[d.next] = id
	d.next = (d.next + 1) % d.limit
	d.seen[id] = struct{}{}
	return false
}
