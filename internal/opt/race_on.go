//go:build race

package opt

import (
	"sync"
)

const Race_ = true

// Sema is a counting semaphore visible to the race detector.
// The runtime semaphore used in !race mode carries no happens-before edges
// the detector can see, so race builds fall back to a mutex and condition.
type Sema struct {
	mu   sync.Mutex
	cond *sync.Cond
	n    uint32
}

func (s *Sema) Acquire() {
	s.mu.Lock()
	if s.cond == nil {
		s.cond = sync.NewCond(&s.mu)
	}
	for s.n == 0 {
		s.cond.Wait()
	}
	s.n--
	s.mu.Unlock()
}

func (s *Sema) Release() {
	s.mu.Lock()
	s.n++
	if s.cond != nil {
		s.cond.Signal()
	}
	s.mu.Unlock()
}
