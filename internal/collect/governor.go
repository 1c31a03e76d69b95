package collect

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/semaphore"
)

// Governor bounds the number of in-flight remote calls across every worker
// tier with one process-wide counting semaphore. The budget is fixed
// independently of pool sizes; waiters are served roughly in arrival order
// and starvation under sustained load is an accepted limitation.
type Governor struct {
	sem    *semaphore.Weighted
	budget int64

	mu          sync.Mutex
	inFlight    int64
	maxInFlight int64

	// onChange, when set, observes the in-flight count after every
	// acquire and release.
	onChange func(inFlight int64)
}

// NewGovernor creates a governor with the given slot budget.
func NewGovernor(budget int) (*Governor, error) {
	if budget <= 0 {
		return nil, fmt.Errorf("governor budget must be > 0, got %d", budget)
	}
	return &Governor{
		sem:    semaphore.NewWeighted(int64(budget)),
		budget: int64(budget),
	}, nil
}

// SetObserver installs a callback observing the in-flight count. Must be
// called before the governor is shared across tasks.
func (g *Governor) SetObserver(onChange func(inFlight int64)) {
	g.onChange = onChange
}

// Acquire blocks until a slot frees or the context is done.
func (g *Governor) Acquire(ctx context.Context) error {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("acquire remote call slot: %w", err)
	}

	g.mu.Lock()
	g.inFlight++
	if g.inFlight > g.maxInFlight {
		g.maxInFlight = g.inFlight
	}
	inFlight := g.inFlight
	g.mu.Unlock()

	if g.onChange != nil {
		g.onChange(inFlight)
	}
	return nil
}

// Release frees one slot. Callers guarantee Release on every exit path.
func (g *Governor) Release() {
	g.mu.Lock()
	g.inFlight--
	inFlight := g.inFlight
	g.mu.Unlock()

	g.sem.Release(1)
	if g.onChange != nil {
		g.onChange(inFlight)
	}
}

// Budget returns the slot budget.
func (g *Governor) Budget() int64 {
	return g.budget
}

// InFlight returns the current in-flight count.
func (g *Governor) InFlight() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.inFlight
}

// MaxInFlight returns the highest in-flight count observed so far.
func (g *Governor) MaxInFlight() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.maxInFlight
}
