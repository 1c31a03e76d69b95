package collect

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestNewGovernorRejectsNonPositiveBudget(t *testing.T) {
	t.Parallel()

	for _, budget := range []int{0, -1} {
		if _, err := NewGovernor(budget); err == nil {
			t.Fatalf("NewGovernor(%d) error = nil, want error", budget)
		}
	}
}

func TestGovernorBoundsInFlightUnderLoad(t *testing.T) {
	t.Parallel()

	const budget = 5
	const workers = 40

	gov, err := NewGovernor(budget)
	if err != nil {
		t.Fatalf("NewGovernor(%d) error = %v, want nil", budget, err)
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				if err := gov.Acquire(context.Background()); err != nil {
					t.Errorf("Acquire() error = %v, want nil", err)
					return
				}
				// Hold the slot long enough for contention to show up.
				time.Sleep(100 * time.Microsecond)
				gov.Release()
			}
		}()
	}
	wg.Wait()

	if got := gov.MaxInFlight(); got > budget {
		t.Fatalf("MaxInFlight() = %d, want <= %d", got, budget)
	}
	if got := gov.InFlight(); got != 0 {
		t.Fatalf("InFlight() after drain = %d, want 0", got)
	}
}

func TestGovernorAcquireHonorsCancelledContext(t *testing.T) {
	t.Parallel()

	gov, err := NewGovernor(1)
	if err != nil {
		t.Fatalf("NewGovernor(1) error = %v, want nil", err)
	}
	if err := gov.Acquire(context.Background()); err != nil {
		t.Fatalf("first Acquire() error = %v, want nil", err)
	}
	defer gov.Release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := gov.Acquire(ctx); err == nil {
		t.Fatal("Acquire() with cancelled context = nil error, want error")
	}
}

func TestGovernorObserverSeesAcquireAndRelease(t *testing.T) {
	t.Parallel()

	gov, err := NewGovernor(2)
	if err != nil {
		t.Fatalf("NewGovernor(2) error = %v, want nil", err)
	}

	var last atomic.Int64
	var calls atomic.Int64
	gov.SetObserver(func(inFlight int64) {
		last.Store(inFlight)
		calls.Add(1)
	})

	if err := gov.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire() error = %v, want nil", err)
	}
	if got := last.Load(); got != 1 {
		t.Fatalf("observer saw in-flight = %d after acquire, want 1", got)
	}

	gov.Release()
	if got := last.Load(); got != 0 {
		t.Fatalf("observer saw in-flight = %d after release, want 0", got)
	}
	if got := calls.Load(); got != 2 {
		t.Fatalf("observer calls = %d, want 2", got)
	}
}
