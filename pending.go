package lfsema

// Handle resumes a suspended acquisition. Resume may be called from any
// goroutine, at most once per suspension, and while the semaphore's drain is
// in progress: it must not block.
type Handle interface {
	Resume()
}

// HandleFunc adapts an ordinary function to a Handle.
type HandleFunc func()

// Resume calls f.
func (f HandleFunc) Resume() {
	f()
}

type phase uint8

const (
	phaseEnter phase = iota
	phaseWaiting
	phaseDone
)

// Pending is an acquisition that may have to wait for capacity. It is the
// suspension point for schedulers that drive acquisitions themselves instead
// of parking a goroutine in [Semaphore.Acquire].
//
// A Pending moves through three phases:
//
//	enter   → done     [first Poll took capacity on the fast path]
//	enter   → waiting  [first Poll queued a waiter]
//	waiting → done     [Poll observed a grant, or Cancel]
//
// A Pending is not safe for concurrent use: one driver polls or cancels it.
// The semaphore itself may call the stored Handle from any goroutine.
type Pending struct {
	s     *Semaphore
	n     uint32
	phase phase
	w     uint32
}

// Begin starts an acquisition of n units. Nothing is taken or queued until
// the first Poll. It returns ErrWouldDeadlock if n exceeds the capacity.
func (s *Semaphore) Begin(n uint32) (*Pending, error) {
	if n > s.capacity {
		return nil, ErrWouldDeadlock
	}
	return &Pending{s: s, n: n}, nil
}

// Poll advances the acquisition. It returns the Guard and true once the
// capacity has been granted. Otherwise it records h, which the semaphore
// resumes when the request is granted, and returns false; the caller should
// poll again after that resumption. A wake-up that finds the request not yet
// granted is harmless: the new h replaces the previous one.
//
// Calling Poll after it has returned true, or after Cancel, panics.
func (p *Pending) Poll(h Handle) (Guard, bool) {
	switch p.phase {
	case phaseEnter:
		if p.n == 0 || p.s.tryAcquire(p.n) {
			p.phase = phaseDone
			return Guard{s: p.s, n: p.n}, true
		}
		w, granted := p.s.enqueue(p.n, h)
		if granted {
			p.phase = phaseDone
			return Guard{s: p.s, n: p.n}, true
		}
		p.w = w
		p.phase = phaseWaiting
		return Guard{}, false

	case phaseWaiting:
		node := p.s.nodes.at(p.w)
		for {
			cur := node.slot.Load()
			switch cur.kind {
			case slotWaking:
				p.s.nodes.release(p.w)
				p.w = 0
				p.phase = phaseDone
				return Guard{s: p.s, n: p.n}, true
			case slotCancelled:
				panic("lfsema: Poll of a cancelled waiter")
			}
			if node.slot.CompareAndSwap(cur, sleeping(h)) {
				return Guard{}, false
			}
		}
	}
	panic("lfsema: Poll of a completed acquisition")
}

// Cancel abandons the acquisition. If capacity was granted concurrently but
// not yet observed by Poll, it is released again, so cancelling is always
// equivalent to never having asked, or to acquiring and releasing at once.
//
// Cancel after completion is a no-op; a Guard already returned by Poll stays
// valid.
func (p *Pending) Cancel() {
	switch p.phase {
	case phaseEnter:
		p.phase = phaseDone
		return
	case phaseDone:
		return
	}

	w := p.w
	p.w = 0
	p.phase = phaseDone

	prev := p.s.nodes.at(w).slot.Swap(cancelled)
	switch prev.kind {
	case slotWaking:
		// The drainer already unlinked the node and took the capacity.
		p.s.nodes.release(w)
		p.s.Release(p.n)
	case slotSleeping:
		// Still linked; make sure a drain runs to unlink and free it.
		p.s.kick()
	default:
		panic("lfsema: waiter cancelled twice")
	}
}

// Done reports whether the acquisition has completed, by grant or Cancel.
func (p *Pending) Done() bool {
	return p.phase == phaseDone
}

// Amount returns the number of units requested.
func (p *Pending) Amount() uint32 {
	return p.n
}
