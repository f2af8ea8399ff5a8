// Package bus provides a broadcast fan-out for sample windows: every
// subscriber receives every published window. Slow subscribers lose their
// oldest buffered window rather than blocking the publisher.
package bus

import (
	"sync"

	"github.com/glowmesh/fusion-engine/internal/models"
)

const defaultBuffer = 256

// Bus broadcasts sample windows to all subscribers.
type Bus struct {
	mu     sync.RWMutex
	subs   map[int]chan models.SampleWindow
	nextID int
	buffer int
	closed bool
}

// New builds a bus with the given per-subscriber buffer size.
func New(buffer int) *Bus {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	return &Bus{
		subs:   make(map[int]chan models.SampleWindow),
		buffer: buffer,
	}
}

// Subscribe registers a new consumer. The returned cancel func removes the
// subscription and closes its channel.
func (b *Bus) Subscribe() (<-chan models.SampleWindow, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		ch := make(chan models.SampleWindow)
		close(ch)
		return ch, func() {}
	}

	id := b.nextID
	b.nextID++
	ch := make(chan models.SampleWindow, b.buffer)
	b.subs[id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

// Publish delivers the window to every subscriber. When a subscriber's
// buffer is full its oldest window is dropped to make room.
func (b *Bus) Publish(w models.SampleWindow) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}
	for _, ch := range b.subs {
		select {
		case ch <- w:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- w:
			default:
			}
		}
	}
}

// Subscribers reports the current subscription count.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close shuts the bus down and closes all subscriber channels.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
