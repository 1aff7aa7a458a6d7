package lfsema

import (
	"math/bits"
	"sync/atomic"

	"github.com/llxisdsh/lfsema/internal/opt"
)

// MaxWaiters is the maximum number of waiter nodes a Semaphore can have
// allocated at once. Node indices share the state word with the available
// capacity and the mode bits.
const MaxWaiters = 1<<backBits - 1

// ============================================================================
// Continuation Slot
// ============================================================================

type slotKind uint8

const (
	slotSleeping slotKind = iota + 1
	slotWaking
	slotCancelled
)

// slot is an immutable continuation value. A waiter's slot pointer is
// swapped between values, never mutated in place.
type slot struct {
	kind slotKind
	h    Handle
}

var (
	waking    = &slot{kind: slotWaking}
	cancelled = &slot{kind: slotCancelled}
)

func sleeping(h Handle) *slot {
	return &slot{kind: slotSleeping, h: h}
}

// waiter is one queued request.
//
// n and next are plain fields: n is written before the node is published on
// the pending stack, next before each push attempt, and both are only read by
// the drainer after the CAS that publishes the node.
type waiter struct {
	slot     atomic.Pointer[slot]
	n        uint32
	next     uint32
	nextFree atomic.Uint32
}

// ============================================================================
// Arena
// ============================================================================

const (
	chunkShift = 5
	chunkLen   = 1 << chunkShift
	// numChunks covers indices 1..MaxWaiters with chunks of
	// chunkLen, 2*chunkLen, 4*chunkLen, ...
	numChunks = backBits - chunkShift + 1
)

// arena owns the waiter nodes of one Semaphore and hands them out by 1-based
// index, so the pending stack can be linked through integers that fit in the
// state word. Chunks are never moved or freed; an index stays valid for the
// lifetime of the Semaphore.
type arena struct {
	chunks [numChunks]atomic.Pointer[[]waiter]
	// last index handed out from fresh memory
	top atomic.Uint32
	// free-list head: tag<<32 | index. The tag is bumped on every push and
	// pop so a stale head cannot be installed after an ABA round trip.
	free opt.Word_
}

// locate maps index i to its chunk and offset.
func locate(i uint32) (chunk int, off uint32) {
	p := i + chunkLen - 1
	chunk = bits.Len32(p) - chunkShift - 1
	off = p - 1<<(chunk+chunkShift)
	return chunk, off
}

func (a *arena) at(i uint32) *waiter {
	c, off := locate(i)
	return &(*a.chunks[c].Load())[off]
}

func (a *arena) grow(i uint32) {
	c, _ := locate(i)
	if a.chunks[c].Load() != nil {
		return
	}
	nodes := make([]waiter, chunkLen<<c)
	// Losers drop their chunk; everyone then reads the winner's.
	a.chunks[c].CompareAndSwap(nil, &nodes)
}

// alloc pops a free node, or carves a fresh one out of the arena.
func (a *arena) alloc() uint32 {
	for {
		old := a.free.Load()
		i := uint32(old)
		if i == 0 {
			break
		}
		next := a.at(i).nextFree.Load()
		if a.free.CompareAndSwap(old, nextTag(old)|uint64(next)) {
			return i
		}
	}
	i := a.top.Add(1)
	if i == 0 || i > MaxWaiters {
		panic("lfsema: too many waiters")
	}
	a.grow(i)
	return i
}

// release clears the node's continuation and pushes it on the free list.
// The caller must be the node's only owner: it is linked nowhere.
func (a *arena) release(i uint32) {
	w := a.at(i)
	w.slot.Store(nil)
	for {
		old := a.free.Load()
		w.nextFree.Store(uint32(old))
		if a.free.CompareAndSwap(old, nextTag(old)|uint64(i)) {
			return
		}
	}
}

// reserve makes sure at least n nodes exist, leaving them on the free list
// with index 1 on top.
func (a *arena) reserve(n int) {
	if n <= 0 {
		return
	}
	n = min(n, MaxWaiters)
	idx := make([]uint32, 0, n)
	for range n {
		idx = append(idx, a.alloc())
	}
	for j := len(idx) - 1; j >= 0; j-- {
		a.release(idx[j])
	}
}

//go:nosplit
func nextTag(head uint64) uint64 {
	return (head>>32 + 1) << 32
}
