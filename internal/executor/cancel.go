package executor

import "sync"

// CancelRegistry tracks cooperative cancellation flags per execution id.
// A running job polls its flag between chunks/retries/step dispatches; it
// never relies on context cancellation propagation (spec §5, §9 — contexts
// carry correlation only, per correlation.go's Dispatch).
type CancelRegistry struct {
	mu    sync.Mutex
	flags map[string]*bool
}

func NewCancelRegistry() *CancelRegistry {
	return &CancelRegistry{flags: make(map[string]*bool)}
}

// Signal returns the CancelSignal a JobRunner polls for executionID,
// registering a fresh flag if none exists yet.
func (r *CancelRegistry) Signal(executionID string) CancelSignal {
	r.mu.Lock()
	defer r.mu.Unlock()
	flag, ok := r.flags[executionID]
	if !ok {
		v := false
		flag = &v
		r.flags[executionID] = flag
	}
	return func() bool {
		r.mu.Lock()
		defer r.mu.Unlock()
		return *flag
	}
}

// Request flips the flag for executionID, creating it if the job hasn't
// registered one yet (a cancel racing job launch still takes effect).
func (r *CancelRegistry) Request(executionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	flag, ok := r.flags[executionID]
	if !ok {
		v := true
		r.flags[executionID] = &v
		return
	}
	*flag = true
}

// Forget releases the flag for a completed execution.
func (r *CancelRegistry) Forget(executionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.flags, executionID)
}
