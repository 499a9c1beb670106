package job

import (
	"context"
	"sync"
)

// Gate is a binary open/closed barrier. Wait returns immediately while the
// gate is open and blocks while it is closed.
type Gate struct {
	mu     sync.Mutex
	open   chan struct{}
	closed bool
}

// NewGate returns an open gate
func NewGate() *Gate {
	ch := make(chan struct{})
	close(ch)
	return &Gate{open: ch}
}

// Close suspends future waiters; closing a closed gate is a no-op
func (g *Gate) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return
	}
	g.open = make(chan struct{})
	g.closed = true
}

// Open releases all waiters; opening an open gate is a no-op
func (g *Gate) Open() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.closed {
		return
	}
	close(g.open)
	g.closed = false
}

// IsOpen reports the gate state
func (g *Gate) IsOpen() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return !g.closed
}

// Wait blocks until the gate is open or ctx is done
func (g *Gate) Wait(ctx context.Context) error {
	g.mu.Lock()
	ch := g.open
	g.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
