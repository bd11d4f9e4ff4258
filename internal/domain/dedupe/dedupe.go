// Package dedupe remembers vote event ids so redelivered webhooks are
// recognised and skipped.
package dedupe

import (
	"container/list"
	"context"
	"sync"
)

const defaultMaxSize = 50000

// Deduper records seen event ids.
type Deduper interface {
	// SeenAndRecord reports whether id was already recorded and records it
	// if not. The check and the insert happen atomically.
	SeenAndRecord(ctx context.Context, id string) bool

	// Unrecord forgets id so a delivery that failed downstream can be retried.
	Unrecord(ctx context.Context, id string)

	Size() int64
}

// window is a Deduper that keeps the most recent maxSize ids and evicts the
// oldest first. maxSize <= 0 keeps every id.
type window struct {
	mu      sync.Mutex
	seen    map[string]*list.Element
	order   *list.List // front is oldest
	maxSize int
}

// NewInMemoryDeduper returns an in-process Deduper.
func NewInMemoryDeduper(opts ...Option) Deduper {
	d := &window{maxSize: defaultMaxSize}
	for _, opt := range opts {
		opt(d)
	}
	d.seen = make(map[string]*list.Element)
	d.order = list.New()
	return d
}

func (d *window) SeenAndRecord(_ context.Context, id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.seen[id]; ok {
		return true
	}
	if d.maxSize > 0 && len(d.seen) >= d.maxSize {
		if oldest := d.order.Front(); oldest != nil {
			delete(d.seen, oldest.Value.(string))
			d.order.Remove(oldest)
		}
	}
	d.seen[id] = d.order.PushBack(id)
	return false
}

func (d *window) Unrecord(_ context.Context, id string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if el, ok := d.seen[id]; ok {
		d.order.Remove(el)
		delete(d.seen, id)
	}
}

func (d *window) Size() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return int64(len(d.seen))
}
