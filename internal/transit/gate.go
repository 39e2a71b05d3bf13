package transit

import (
	"context"
	"sync"
)

// refreshGate serializes one kind of refresh. TryAcquire is the only way to
// start one, so "is a refresh running" is state owned here rather than a
// process-wide flag, and waiters block on the in-flight refresh's done
// channel instead of spinning on a boolean.
type refreshGate struct {
	mu      sync.Mutex
	running bool
	done    chan struct{}
}

// tryAcquire attempts to move Idle -> Refreshing. It returns false when a
// refresh of this kind is already in flight.
func (g *refreshGate) tryAcquire() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.running {
		return false
	}
	g.running = true
	g.done = make(chan struct{})
	return true
}

// release moves Refreshing -> Idle and wakes every waiter.
func (g *refreshGate) release() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.running = false
	close(g.done)
	g.done = nil
}

// isRunning reports whether a refresh of this kind is in flight.
func (g *refreshGate) isRunning() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.running
}

// wait blocks until no refresh of this kind is in flight or the context is
// cancelled. It loops because another refresh may start between wakeup and
// re-check.
func (g *refreshGate) wait(ctx context.Context) error {
	for {
		g.mu.Lock()
		if !g.running {
			g.mu.Unlock()
			return nil
		}
		done := g.done
		g.mu.Unlock()

		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
