package debounce

import (
	"sync"
	"time"
)

// Batcher accumulates items during a quiet period and hands them to fn as
// one batch once no new item has arrived for the configured delay. Items
// keep their arrival order.
type Batcher struct {
	mu    sync.Mutex
	items []string
	d     *Debouncer
	fn    func([]string)

	// deliverMu keeps batches in arrival order when fn blocks and the
	// timer fires again in the meantime.
	deliverMu sync.Mutex
}

func NewBatcher(delay time.Duration, fn func([]string)) *Batcher {
	b := &Batcher{fn: fn}
	b.d = New(delay, b.flush)
	return b
}

func (b *Batcher) Add(item string) {
	b.mu.Lock()
	b.items = append(b.items, item)
	b.mu.Unlock()
	b.d.Trigger()
}

func (b *Batcher) flush() {
	b.deliverMu.Lock()
	defer b.deliverMu.Unlock()
	b.mu.Lock()
	items := b.items
	b.items = nil
	b.mu.Unlock()
	if len(items) == 0 {
		return
	}
	b.fn(items)
}

func (b *Batcher) Stop() {
	b.d.Stop()
}
