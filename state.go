package lfsema

import (
	"fmt"

	"github.com/llxisdsh/lfsema/internal/opt"
)

// ============================================================================
// State Word
// ============================================================================

// mode is the coordination mode of a Semaphore.
//
//	modeOpen        → modeQueued       [a waiter is pushed]
//	modeQueued      → modeLocked       [Release or Cancel takes the drain role]
//	modeLocked      → modeLockedDirty  [Release or push while a drain runs]
//	modeLockedDirty → modeLocked       [drainer absorbs the new work]
//	modeLocked      → modeOpen         [drain found nothing queued]
//	modeLocked      → modeQueued       [drain stopped at an unsatisfiable head]
type mode uint8

const (
	// modeOpen: nothing queued, the fast path may take capacity.
	modeOpen mode = iota
	// modeQueued: waiters exist and nobody is draining.
	modeQueued
	// modeLocked: exactly one party is draining.
	modeLocked
	// modeLockedDirty: a drain is running and more work arrived meanwhile.
	modeLockedDirty
)

// locked reports whether a drainer owns the queue.
func (m mode) locked() bool {
	return m >= modeLocked
}

func (m mode) String() string {
	switch m {
	case modeOpen:
		return "open"
	case modeQueued:
		return "queued"
	case modeLocked:
		return "locked"
	case modeLockedDirty:
		return "locked-dirty"
	}
	return fmt.Sprintf("mode(%d)", uint8(m))
}

// Bit layout of state, low to high:
//
//	[0, 32)  available capacity
//	[32, 34) mode
//	[34, 64) index of the most recently pushed waiter, 0 if none
const (
	availBits = 32
	modeBits  = 2
	backBits  = 64 - availBits - modeBits

	modeShift = availBits
	backShift = availBits + modeBits

	availMask = 1<<availBits - 1
	modeMask  = 1<<modeBits - 1
)

// state is one snapshot of the state word.
type state uint64

func makeState(avail uint32, m mode, back uint32) state {
	return state(uint64(avail) | uint64(m)<<modeShift | uint64(back)<<backShift)
}

func (s state) avail() uint32 {
	return uint32(s & availMask)
}

func (s state) mode() mode {
	return mode(s>>modeShift) & modeMask
}

func (s state) back() uint32 {
	return uint32(s >> backShift)
}

func (s state) withAvail(avail uint32) state {
	return makeState(avail, s.mode(), s.back())
}

func (s state) withMode(m mode) state {
	return makeState(s.avail(), m, s.back())
}

func (s state) withBack(back uint32) state {
	return makeState(s.avail(), s.mode(), back)
}

func (s state) String() string {
	return fmt.Sprintf("{avail:%d mode:%v back:%d}", s.avail(), s.mode(), s.back())
}

// stateWord is the single CAS-able word every Semaphore operation goes
// through.
type stateWord struct {
	w opt.Word_
}

func (w *stateWord) load() state {
	return state(w.w.Load())
}

func (w *stateWord) cas(old, next state) bool {
	return w.w.CompareAndSwap(uint64(old), uint64(next))
}

// update reads the word, asks f for the next value and installs it with a
// CAS, retrying until the CAS succeeds or f declines by returning false.
// It returns the value f was last applied to and whether it was replaced.
func (w *stateWord) update(f func(old state) (next state, ok bool)) (state, bool) {
	for {
		old := w.load()
		next, ok := f(old)
		if !ok {
			return old, false
		}
		if w.cas(old, next) {
			return old, true
		}
	}
}
