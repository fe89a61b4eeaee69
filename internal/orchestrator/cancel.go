package orchestrator

import (
	"context"
	"sync"
)

// CancelRegistry tracks in-flight delegated calls by id so a caller can
// terminate one explicitly.
type CancelRegistry struct {
	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

func NewCancelRegistry() *CancelRegistry {
	return &CancelRegistry{cancels: make(map[string]context.CancelFunc)}
}

// Track derives a cancellable context for the call identified by id. The
// returned release must be called when the call finishes.
func (r *CancelRegistry) Track(ctx context.Context, id string) (context.Context, func()) {
	callCtx, cancel := context.WithCancel(ctx)
	r.mu.Lock()
	r.cancels[id] = cancel
	r.mu.Unlock()

	release := func() {
		r.mu.Lock()
		delete(r.cancels, id)
		r.mu.Unlock()
		cancel()
	}
	return callCtx, release
}

// Cancel terminates the call with the given id. Returns false when no such
// call is in flight.
func (r *CancelRegistry) Cancel(id string) bool {
	r.mu.Lock()
	cancel, ok := r.cancels[id]
	delete(r.cancels, id)
	r.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}
