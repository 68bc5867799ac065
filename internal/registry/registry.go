// Package registry matches decisions arriving from the coordinator with the
// evaluator calls blocked waiting for them.
//
// All waiters share one condition variable. Every delivery wakes every
// waiter, and each waiter re-checks whether its own request id was answered.
package registry

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sensiblebit/certtrust/internal/transport"
)

var (
	// ErrTimeout is returned by Await when no decision arrives in time.
	ErrTimeout = errors.New("timed out waiting for decision")
	// ErrNotRegistered is returned by Await for an id that was never
	// registered or has already been awaited.
	ErrNotRegistered = errors.New("request id not registered")
)

// Registry hands out request ids and parks callers until the decision for
// their id is delivered. The zero value is not usable; call New.
type Registry struct {
	mu      sync.Mutex
	cond    *sync.Cond
	next    uint64
	waiting map[uint64]struct{}
	answers map[uint64]bool
}

// New creates an empty Registry.
func New() *Registry {
	r := &Registry{
		waiting: make(map[uint64]struct{}),
		answers: make(map[uint64]bool),
	}
	r.cond = sync.NewCond(&r.mu)
	return r
}

// Next returns a fresh request id. Ids start at 1 and increase for the life
// of the registry.
func (r *Registry) Next() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.next++
	return r.next
}

// Register records that a caller will Await id. It must be called before the
// request is sent so that a decision arriving first is kept.
func (r *Registry) Register(id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.waiting[id] = struct{}{}
}

// Deliver stores a decision and wakes all waiters. Decisions for ids nobody
// is waiting on are dropped.
func (r *Registry) Deliver(d transport.Decision) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.waiting[d.RequestID]; !ok {
		return
	}
	r.answers[d.RequestID] = d.Trusted
	r.cond.Broadcast()
}

// Await blocks until the decision for id is delivered, timeout elapses, or
// ctx is done. A timeout of zero or less waits on ctx alone. The
// registration is removed on return whatever the outcome.
func (r *Registry) Await(ctx context.Context, id uint64, timeout time.Duration) (bool, error) {
	wake := func() {
		r.mu.Lock()
		r.cond.Broadcast()
		r.mu.Unlock()
	}
	stop := context.AfterFunc(ctx, wake)
	defer stop()

	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
		timer := time.AfterFunc(timeout, wake)
		defer timer.Stop()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.waiting[id]; !ok {
		return false, ErrNotRegistered
	}
	defer r.forgetLocked(id)

	for {
		if trusted, ok := r.answers[id]; ok {
			return trusted, nil
		}
		if err := ctx.Err(); err != nil {
			return false, err
		}
		if !deadline.IsZero() && !time.Now().Before(deadline) {
			return false, ErrTimeout
		}
		r.cond.Wait()
	}
}

// Cancel removes the registration for id without waiting. It is used when
// the request could not be sent.
func (r *Registry) Cancel(id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.forgetLocked(id)
}

// Pending returns the number of registered ids not yet awaited to
// completion.
func (r *Registry) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.waiting)
}

func (r *Registry) forgetLocked(id uint64) {
	delete(r.waiting, id)
	delete(r.answers, id)
}
