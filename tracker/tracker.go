// Package tracker keeps the set of in-flight registrations of a run
// so that a driver can wait for work its callers never awaited.
package tracker

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Handle represents one in-flight registration. It settles exactly once.
type Handle struct {
	name string
	done chan struct{}
	once sync.Once

	mu       sync.Mutex
	settled  bool
	err      error
	onSettle []func()
}

// NewHandle creates an unsettled handle
func NewHandle(name string) *Handle {
	return &Handle{
		name: name,
		done: make(chan struct{}),
	}
}

// Name returns the label given at creation
func (h *Handle) Name() string {
	return h.name
}

// Done returns a channel closed once the handle settled
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Err returns the settlement error. It is only meaningful after Done is closed.
func (h *Handle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

// Settle marks the handle as finished. Only the first call has an effect.
func (h *Handle) Settle(err error) {
	h.once.Do(func() {
		h.mu.Lock()
		h.settled = true
		h.err = err
		callbacks := h.onSettle
		h.onSettle = nil
		h.mu.Unlock()

		for _, fn := range callbacks {
			fn()
		}
		close(h.done)
	})
}

// Wait blocks until the handle settles or ctx is done
func (h *Handle) Wait(ctx context.Context) error {
	select {
	case <-h.done:
		return h.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// onSettled registers fn to run when the handle settles, or runs it now if it already has
func (h *Handle) onSettled(fn func()) {
	h.mu.Lock()
	if h.settled {
		h.mu.Unlock()
		fn()
		return
	}
	h.onSettle = append(h.onSettle, fn)
	h.mu.Unlock()
}

// Tracker holds the pending set of a run
type Tracker struct {
	mu      sync.Mutex
	pending map[*Handle]struct{}
}

// New creates an empty tracker
func New() *Tracker {
	return &Tracker{
		pending: make(map[*Handle]struct{}),
	}
}

// Add inserts h into the pending set. h leaves the set when it settles,
// whether or not anyone waits on it.
func (t *Tracker) Add(h *Handle) {
	t.mu.Lock()
	t.pending[h] = struct{}{}
	t.mu.Unlock()

	h.onSettled(func() {
		t.mu.Lock()
		delete(t.pending, h)
		t.mu.Unlock()
	})
}

// Pending returns the number of unsettled handles
func (t *Tracker) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}

func (t *Tracker) snapshot() []*Handle {
	t.mu.Lock()
	defer t.mu.Unlock()
	handles := make([]*Handle, 0, len(t.pending))
	for h := range t.pending {
		handles = append(handles, h)
	}
	return handles
}

// WaitForAll blocks until every handle pending at call time has settled.
// Handles added afterwards are not waited for. Settlement errors are not
// returned; only a cancelled ctx aborts the wait.
func (t *Tracker) WaitForAll(ctx context.Context) error {
	handles := t.snapshot()
	if len(handles) == 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, h := range handles {
		g.Go(func() error {
			select {
			case <-h.Done():
				return nil
			case <-gctx.Done():
				return gctx.Err()
			}
		})
	}
	return g.Wait()
}

// Join returns a handle that settles once every handle pending now has settled
func (t *Tracker) Join(ctx context.Context) *Handle {
	joined := NewHandle("join")
	go func() {
		joined.Settle(t.WaitForAll(ctx))
	}()
	return joined
}

// Drain waits until the pending set is empty, including handles added
// while earlier ones were being waited on.
func (t *Tracker) Drain(ctx context.Context) error {
	for {
		if t.Pending() == 0 {
			return nil
		}
		if err := t.WaitForAll(ctx); err != nil {
			return err
		}
	}
}

// Reset forgets every pending handle without settling it
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pending = make(map[*Handle]struct{})
}
