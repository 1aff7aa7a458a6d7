package lfsema

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/gammazero/deque"

	"github.com/llxisdsh/lfsema/internal/opt"
)

// MaxCapacity is the largest capacity a Semaphore can be created with.
const MaxCapacity = math.MaxUint32

var (
	// ErrWouldBlock is returned by TryAcquire when the request cannot be
	// granted without waiting.
	ErrWouldBlock = errors.New("lfsema: acquire would block")
	// ErrWouldDeadlock is returned when a request exceeds the capacity of
	// the semaphore and therefore can never be granted.
	ErrWouldDeadlock = errors.New("lfsema: request exceeds capacity")
)

// Semaphore is a lock-free weighted semaphore.
//
// Capacity is granted to callers in units. Requests that cannot be satisfied
// immediately wait in strict arrival order: once anyone waits, new requests,
// including TryAcquire, queue behind them, so a large request is never starved
// by a stream of small ones.
//
// All coordination goes through one 64-bit atomic word packing the available
// capacity, a mode, and the top of a stack of newly arrived waiters. Whoever
// moves the mode to locked becomes the only drainer: it reverses arrivals
// into a FIFO queue and grants from its head. No mutex is taken and no
// goroutine is spawned by the semaphore itself.
//
// The zero value has no capacity; use New.
type Semaphore struct {
	_        noCopy
	state    stateWord
	capacity uint32
	// front is touched only by the party holding the drain role; the
	// state word CAS that hands the role over orders those accesses.
	front deque.Deque[uint32]
	nodes arena
}

// Config holds construction options for a Semaphore.
type Config struct {
	// prealloc is the number of waiter nodes created up front, so the
	// first waiters do not allocate.
	prealloc int
}

// WithPrealloc creates n waiter nodes when the semaphore is built. Nodes are
// recycled, so n bounds allocation only for the first burst of waiters.
func WithPrealloc(n int) func(*Config) {
	return func(c *Config) {
		c.prealloc = n
	}
}

// New creates a Semaphore with the given capacity, all of it available.
// It panics if capacity is zero.
func New(capacity uint32, options ...func(*Config)) *Semaphore {
	if capacity == 0 {
		panic("lfsema: zero capacity")
	}
	var cfg Config
	for _, o := range options {
		o(&cfg)
	}
	s := &Semaphore{capacity: capacity}
	s.state.w.Store(uint64(makeState(capacity, modeOpen, 0)))
	s.nodes.reserve(cfg.prealloc)
	return s
}

// Capacity returns the total capacity of the semaphore.
func (s *Semaphore) Capacity() uint32 {
	return s.capacity
}

// Available returns a snapshot of the capacity not currently granted.
func (s *Semaphore) Available() uint32 {
	return s.state.load().avail()
}

// Waiting reports whether requests are queued or a drain is in progress.
// While it is true TryAcquire fails regardless of Available.
func (s *Semaphore) Waiting() bool {
	return s.state.load().mode() != modeOpen
}

// String returns a human-readable representation of the semaphore's state,
// in the form "Semaphore(available/capacity, mode)".
func (s *Semaphore) String() string {
	st := s.state.load()
	return fmt.Sprintf("Semaphore(%d/%d, %v)", st.avail(), s.capacity, st.mode())
}

// TryAcquire acquires n units without waiting. It returns ErrWouldBlock if
// the capacity is not available right now or other requests are queued, and
// ErrWouldDeadlock if n exceeds the capacity.
func (s *Semaphore) TryAcquire(n uint32) (Guard, error) {
	if n > s.capacity {
		return Guard{}, ErrWouldDeadlock
	}
	if n == 0 || s.tryAcquire(n) {
		return Guard{s: s, n: n}, nil
	}
	return Guard{}, ErrWouldBlock
}

// Acquire acquires n units, parking the calling goroutine until they are
// granted or ctx is done. On cancellation it returns ctx.Err() and the
// semaphore is left as if Acquire had never been called; a grant that raced
// the cancellation is released again.
//
// If ctx is already done, Acquire may still succeed without waiting.
func (s *Semaphore) Acquire(ctx context.Context, n uint32) (Guard, error) {
	if n > s.capacity {
		return Guard{}, ErrWouldDeadlock
	}
	if n == 0 || s.tryAcquire(n) {
		return Guard{s: s, n: n}, nil
	}

	p := Pending{s: s, n: n}
	done := ctx.Done()
	if done == nil {
		// Never cancelled: park on the runtime semaphore.
		h := &semaHandle{}
		for {
			if g, ok := p.Poll(h); ok {
				return g, nil
			}
			h.sema.Acquire()
		}
	}

	h := make(chanHandle, 1)
	for {
		if g, ok := p.Poll(h); ok {
			return g, nil
		}
		select {
		case <-h:
		case <-done:
			p.Cancel()
			return Guard{}, ctx.Err()
		}
	}
}

// Release returns n units to the semaphore and grants queued requests that
// now fit. Releasing more than is held panics.
func (s *Semaphore) Release(n uint32) {
	if n == 0 {
		return
	}
	old, _ := s.state.update(func(old state) (state, bool) {
		avail := uint64(old.avail()) + uint64(n)
		if avail > uint64(s.capacity) {
			panic("lfsema: released more than held")
		}
		m := old.mode()
		switch m {
		case modeQueued:
			m = modeLocked
		case modeLocked:
			m = modeLockedDirty
		}
		return makeState(uint32(avail), m, old.back()), true
	})
	if old.mode() == modeQueued {
		s.drain()
	}
}

// tryAcquire is the fast path: one successful CAS, only while nothing is
// queued.
func (s *Semaphore) tryAcquire(n uint32) bool {
	_, ok := s.state.update(func(old state) (state, bool) {
		if old.mode() != modeOpen || n > old.avail() {
			return old, false
		}
		return old.withAvail(old.avail() - n), true
	})
	return ok
}

// enqueue publishes a waiter for n units with continuation h. If capacity
// turns out to be available before the push lands, it is taken instead and
// enqueue reports granted.
func (s *Semaphore) enqueue(n uint32, h Handle) (w uint32, granted bool) {
	w = s.nodes.alloc()
	node := s.nodes.at(w)
	node.n = n
	node.slot.Store(sleeping(h))

	old, _ := s.state.update(func(old state) (state, bool) {
		m := old.mode()
		if m == modeOpen && n <= old.avail() {
			return old.withAvail(old.avail() - n), true
		}
		node.next = old.back()
		switch m {
		case modeOpen:
			m = modeQueued
		case modeLocked:
			m = modeLockedDirty
		}
		return makeState(old.avail(), m, w), true
	})
	if old.mode() == modeOpen && n <= old.avail() {
		s.nodes.release(w)
		return 0, true
	}
	return w, false
}

// kick makes sure a drain runs after the current state: it either takes the
// drain role itself or marks the running drain dirty.
func (s *Semaphore) kick() {
	old, ok := s.state.update(func(old state) (state, bool) {
		switch old.mode() {
		case modeOpen, modeQueued:
			return old.withMode(modeLocked), true
		case modeLocked:
			return old.withMode(modeLockedDirty), true
		}
		return old, false
	})
	if ok && !old.mode().locked() {
		s.drain()
	}
}

// drain runs with the drain role held (mode locked) and grants queued
// waiters in arrival order until the head does not fit or nothing is left.
// It gives the role up with the same CAS that moves the mode to open or
// queued.
func (s *Semaphore) drain() {
	for {
		old := s.state.load()
		if old.mode() == modeLockedDirty {
			s.state.cas(old, old.withMode(modeLocked))
			continue
		}

		if s.front.Len() == 0 {
			if back := old.back(); back != 0 {
				if !s.state.cas(old, old.withBack(0)) {
					continue
				}
				// The stack runs newest to oldest; pushing each at the
				// front leaves the oldest first.
				for i := back; i != 0; i = s.nodes.at(i).next {
					s.front.PushFront(i)
				}
				continue
			}
			if s.state.cas(old, old.withMode(modeOpen)) {
				return
			}
			continue
		}

		i := s.front.Front()
		node := s.nodes.at(i)
		if node.slot.Load() == cancelled {
			s.front.PopFront()
			s.nodes.release(i)
			continue
		}
		n := node.n
		if n > old.avail() {
			if s.state.cas(old, old.withMode(modeQueued)) {
				return
			}
			continue
		}
		if !s.state.cas(old, old.withAvail(old.avail()-n)) {
			continue
		}
		s.front.PopFront()
		s.grant(i, n)
	}
}

// grant hands n units, already taken from the state word, to waiter i.
func (s *Semaphore) grant(i, n uint32) {
	prev := s.nodes.at(i).slot.Swap(waking)
	switch prev.kind {
	case slotSleeping:
		if prev.h != nil {
			prev.h.Resume()
		}
	case slotCancelled:
		// Lost to Cancel, which left the node to us.
		s.nodes.release(i)
		s.state.update(func(old state) (state, bool) {
			return old.withAvail(old.avail() + n), true
		})
	default:
		panic("lfsema: waiter granted twice")
	}
}

// semaHandle parks a goroutine whose wait can never be cancelled.
type semaHandle struct {
	sema opt.Sema
}

func (h *semaHandle) Resume() {
	h.sema.Release()
}

// chanHandle wakes a goroutine selecting on it alongside ctx.Done().
type chanHandle chan struct{}

func (h chanHandle) Resume() {
	select {
	case h <- struct{}{}:
	default:
	}
}
