// Package barrier tracks in-flight asynchronous release operations keyed by
// a lease identifier, so that a caller about to reacquire the same lease can
// wait for the previous release to settle instead of racing it.
//
// The barrier reduces races; it is not a lock. Waiters must treat a timeout
// as "proceed anyway".
package barrier

import (
	"context"
	"sync"
	"time"
)

// Registry holds pending release operations. Safe for concurrent use.
type Registry struct {
	mu      sync.Mutex
	pending map[string]chan struct{}
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		pending: make(map[string]chan struct{}),
	}
}

// Track runs op in a new goroutine, registering it under key until it
// returns. Whether op succeeds or fails, the entry is removed and all
// waiters are released. A second Track for the same key replaces the entry;
// waiters on the replaced entry are released when the old op settles.
func (r *Registry) Track(key string, op func()) {
	ch := make(chan struct{})

	r.mu.Lock()
	r.pending[key] = ch
	r.mu.Unlock()

	go func() {
		defer func() {
			close(ch)
			r.mu.Lock()
			if cur, ok := r.pending[key]; ok && cur == ch {
				delete(r.pending, key)
			}
			r.mu.Unlock()
		}()
		op()
	}()
}

// Wait blocks until the operation tracked under key settles, the timeout
// elapses, or ctx is cancelled. It returns true if the release settled (or
// none was in flight), false on timeout or cancellation.
func (r *Registry) Wait(ctx context.Context, key string, timeout time.Duration) bool {
	r.mu.Lock()
	ch, ok := r.pending[key]
	r.mu.Unlock()

	if !ok {
		return true
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ch:
		return true
	case <-timer.C:
		return false
	case <-ctx.Done():
		return false
	}
}

// Pending returns the number of tracked releases, for observability and tests.
func (r *Registry) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}
