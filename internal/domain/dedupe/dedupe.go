// Package dedupe tracks submission ids so that a finished session or a
// retried request is scored at most once.
package dedupe

import (
	"context"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Deduper records seen submission IDs to ensure at-most-once processing.
type Deduper interface {
	// SeenAndRecord atomically checks if id was seen and records it if not.
	// Returns true if id was already seen, false if it was newly recorded.
	SeenAndRecord(ctx context.Context, id string) bool

	// Unrecord forgets id so that it can be retried, for example after the
	// queue rejected the submission.
	Unrecord(ctx context.Context, id string)

	Size() int64
}

// lruDeduper keeps the most recently recorded ids in a bounded LRU cache.
// Unbounded mode falls back to a plain set.
type lruDeduper struct {
	maxSize int

	cache *lru.Cache[string, struct{}]

	mu  sync.Mutex
	set map[string]struct{}
}

// NewInMemoryDeduper creates a deduper. The default keeps the 50000 most
// recent ids.
func NewInMemoryDeduper(opts ...Option) Deduper {
	d := &lruDeduper{maxSize: 50000}
	for _, opt := range opts {
		opt(d)
	}

	if d.maxSize > 0 {
		// only fails for a non-positive size
		d.cache, _ = lru.New[string, struct{}](d.maxSize)
	} else {
		d.set = make(map[string]struct{})
	}
	return d
}

// SeenAndRecord implements Deduper.
func (d *lruDeduper) SeenAndRecord(_ context.Context, id string) bool {
	if d.cache != nil {
		seen, _ := d.cache.ContainsOrAdd(id, struct{}{})
		return seen
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.set[id]; ok {
		return true
	}
	d.set[id] = struct{}{}
	return false
}

// Unrecord implements Deduper.
func (d *lruDeduper) Unrecord(_ context.Context, id string) {
	if d.cache != nil {
		d.cache.Remove(id)
		return
	}

	d.mu.Lock()
	delete(d.set, id)
	d.mu.Unlock()
}

// Size returns the number of ids currently tracked.
func (d *lruDeduper) Size() int64 {
	if d.cache != nil {
		return int64(d.cache.Len())
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	return int64(len(d.set))
}
