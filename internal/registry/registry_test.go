package registry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sensiblebit/certtrust/internal/transport"
)

func TestRegistry_NextIsMonotonic(t *testing.T) {
	// WHY: Request ids correlate replies; two requests must never share one.
	t.Parallel()
	r := New()
	prev := r.Next()
	for range 100 {
		id := r.Next()
		if id <= prev {
			t.Fatalf("Next() = %d after %d", id, prev)
		}
		prev = id
	}
}

func TestRegistry_DeliverBeforeAwait(t *testing.T) {
	// WHY: The coordinator may answer before the evaluator starts waiting;
	// registering first must keep that answer.
	t.Parallel()
	r := New()
	id := r.Next()
	r.Register(id)
	r.Deliver(transport.Decision{RequestID: id, Trusted: true})

	trusted, err := r.Await(context.Background(), id, time.Second)
	if err != nil {
		t.Fatalf("Await: %v", err)
	}
	if !trusted {
		t.Error("got false, want true")
	}
	if r.Pending() != 0 {
		t.Errorf("Pending() = %d after Await, want 0", r.Pending())
	}
}

func TestRegistry_DeliverUnregisteredIsDropped(t *testing.T) {
	// WHY: A reply that arrives after its waiter timed out must not linger
	// and leak memory.
	t.Parallel()
	r := New()
	r.Deliver(transport.Decision{RequestID: 42, Trusted: true})
	if _, err := r.Await(context.Background(), 42, time.Millisecond); !errors.Is(err, ErrNotRegistered) {
		t.Errorf("Await error = %v, want ErrNotRegistered", err)
	}
	if len(r.answers) != 0 {
		t.Errorf("answers holds %d entries, want 0", len(r.answers))
	}
}

func TestRegistry_Timeout(t *testing.T) {
	// WHY: A coordinator that never answers must not block the caller past
	// the configured timeout.
	t.Parallel()
	r := New()
	id := r.Next()
	r.Register(id)

	start := time.Now()
	_, err := r.Await(context.Background(), id, 50*time.Millisecond)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("Await error = %v, want ErrTimeout", err)
	}
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Errorf("returned after %v, before the timeout", elapsed)
	}
	if r.Pending() != 0 {
		t.Error("registration not removed after timeout")
	}

	r.Deliver(transport.Decision{RequestID: id, Trusted: true})
	if len(r.answers) != 0 {
		t.Error("late decision was kept")
	}
}

func TestRegistry_ContextCancel(t *testing.T) {
	// WHY: Callers cancelling their context must be released promptly.
	t.Parallel()
	r := New()
	id := r.Next()
	r.Register(id)
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	_, err := r.Await(ctx, id, time.Minute)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Await error = %v, want context.Canceled", err)
	}
}

func TestRegistry_WaitersOnlySeeOwnDecision(t *testing.T) {
	// WHY: Every delivery wakes every waiter; each must keep waiting until
	// its own id is answered and get its own verdict.
	t.Parallel()
	r := New()
	const n = 20
	ids := make([]uint64, n)
	for i := range ids {
		ids[i] = r.Next()
		r.Register(ids[i])
	}

	results := make([]bool, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := range ids {
		wg.Go(func() {
			results[i], errs[i] = r.Await(context.Background(), ids[i], 5*time.Second)
		})
	}

	for i := n - 1; i >= 0; i-- {
		r.Deliver(transport.Decision{RequestID: ids[i], Trusted: i%2 == 0})
	}
	wg.Wait()

	for i := range ids {
		if errs[i] != nil {
			t.Errorf("waiter %d: %v", i, errs[i])
			continue
		}
		if want := i%2 == 0; results[i] != want {
			t.Errorf("waiter %d got %v, want %v", i, results[i], want)
		}
	}
}

func TestRegistry_Cancel(t *testing.T) {
	// WHY: A request that failed to send must not stay registered.
	t.Parallel()
	r := New()
	id := r.Next()
	r.Register(id)
	r.Cancel(id)
	if r.Pending() != 0 {
		t.Errorf("Pending() = %d after Cancel, want 0", r.Pending())
	}
}
