package lfsema

import "context"

// Group is a set of semaphores of equal capacity, one per key. It bounds
// concurrency per tenant, host, or any other key.
//
// Features:
//   - Any number of keys: a key's semaphore is created on first acquire.
//   - Auto-cleanup: the semaphore is dropped once every Guard obtained under
//     its key has been released and nobody waits on it. A later acquire
//     starts from a fresh one with all of its capacity, which is
//     indistinguishable from the old one.
//   - One semaphore per key: while anyone holds or waits for units under a
//     key, every caller for that key uses the same semaphore.
//
// Usage:
//
//	hosts := NewGroup[string](4)
//	g, err := hosts.Acquire(ctx, "example.com", 1)
//	if err != nil {
//		return err
//	}
//	defer g.Release()
//
// Implementation Note:
// Entries are reference counted under their bucket lock: a count is taken
// before acquiring and dropped by Guard.Release or a failed acquire. A
// forgotten Guard keeps its reference, so the leaked units stay leaked.
//
// The zero value is not usable; use NewGroup.
type Group[K comparable] struct {
	_        noCopy
	capacity uint32
	options  []func(*Config)
	m        *keyTable[K, *groupEntry[K]]
}

type groupEntry[K comparable] struct {
	g   *Group[K]
	key K
	s   *Semaphore
	// guarded by the bucket lock
	ref int32
}

// NewGroup creates a Group whose semaphores each have the given capacity and
// are built with options.
func NewGroup[K comparable](capacity uint32, options ...func(*Config)) *Group[K] {
	if capacity == 0 {
		panic("lfsema: zero capacity")
	}
	return &Group[K]{
		capacity: capacity,
		options:  options,
		m:        newKeyTable[K, *groupEntry[K]](),
	}
}

// TryAcquire acquires n units under key without waiting. It fails like
// [Semaphore.TryAcquire].
func (g *Group[K]) TryAcquire(key K, n uint32) (Guard, error) {
	e := g.ref(key)
	gd, err := e.s.TryAcquire(n)
	if err != nil {
		e.unref()
		return Guard{}, err
	}
	gd.ref = e
	return gd, nil
}

// Acquire acquires n units under key, waiting until they are granted or ctx
// is done. It fails like [Semaphore.Acquire].
func (g *Group[K]) Acquire(ctx context.Context, key K, n uint32) (Guard, error) {
	e := g.ref(key)
	gd, err := e.s.Acquire(ctx, n)
	if err != nil {
		e.unref()
		return Guard{}, err
	}
	gd.ref = e
	return gd, nil
}

// Len returns the number of keys that currently have a semaphore.
func (g *Group[K]) Len() int {
	return g.m.len()
}

// Range calls f with each key that has a semaphore and the capacity
// available under it, until f returns false. The view is not a snapshot.
func (g *Group[K]) Range(f func(key K, available uint32) bool) {
	g.m.rangeAll(func(key K, e *groupEntry[K]) bool {
		return f(key, e.s.Available())
	})
}

// ref returns key's entry with its count raised, creating it if needed.
func (g *Group[K]) ref(key K) *groupEntry[K] {
	return g.m.compute(key, func(e *groupEntry[K], loaded bool) (*groupEntry[K], computeOp) {
		if !loaded {
			e = &groupEntry[K]{g: g, key: key, s: New(g.capacity, g.options...)}
		}
		e.ref++
		return e, updateOp
	})
}

// unref drops one reference and removes the entry with the last one.
func (e *groupEntry[K]) unref() {
	e.g.m.compute(e.key, func(cur *groupEntry[K], loaded bool) (*groupEntry[K], computeOp) {
		if cur != e {
			panic("lfsema: group entry released after removal")
		}
		e.ref--
		if e.ref == 0 {
			return nil, deleteOp
		}
		return e, cancelOp
	})
}
