// Package reorder accepts transformed blocks out of order and releases them
// to a writer in strict ascending id. The fast path is a write plus a few
// drain lookups, never a heap; the pending set is a map keyed by block id.
package reorder

import (
	"io"
	"sync"
)

// Buffer delivers blocks to an io.Writer in strict ascending id order,
// buffering ones that arrive early.
type Buffer struct {
	mu      sync.Mutex
	pending map[uint64][]byte
	next    uint64
}

// New creates a reorder buffer expecting ids starting at 0.
func New() *Buffer {
	return &Buffer{pending: make(map[uint64][]byte)}
}

// Deliver accepts a transformed block. If its id is the next expected one,
// it (and any now-contiguous successors already pending) are written to w
// immediately, in order. Otherwise the block is stashed until its turn
// comes. Deliver serializes access to w itself, so the writer is never
// touched by two goroutines at once.
func (b *Buffer) Deliver(id uint64, data []byte, w io.Writer) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if id != b.next {
		b.pending[id] = data
		return nil
	}

	if _, err := w.Write(data); err != nil {
		return err
	}
	b.next++

	for {
		found, ok := b.pending[b.next]
		if !ok {
			break
		}
		if _, err := w.Write(found); err != nil {
			return err
		}
		delete(b.pending, b.next)
		b.next++
	}

	return nil
}

// Pending reports how many blocks are currently buffered awaiting their
// predecessor. Used by tests to assert quiescence.
func (b *Buffer) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// Next reports the next id this buffer expects to write.
func (b *Buffer) Next() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.next
}
