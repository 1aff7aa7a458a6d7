// Package lfsema provides a lock-free weighted semaphore.
//
// A [Semaphore] grants units of a fixed capacity to competing callers.
// Requests that cannot be granted immediately wait in strict arrival order
// and are granted as capacity is released. The hot path is a single
// compare-and-swap on one 64-bit word; waiting never takes a mutex.
//
// # Waiting
//
// There are two ways to wait for capacity.
//
// [Semaphore.Acquire] parks the calling goroutine until the request is
// granted or its context is done:
//
//	s := lfsema.New(10)
//	g, err := s.Acquire(ctx, 3)
//	if err != nil {
//		return err
//	}
//	defer g.Release()
//
// [Semaphore.Begin] returns a [Pending] acquisition for callers that run
// their own scheduler, event loop, or state machine. Poll it with a [Handle];
// when it cannot be granted yet, the semaphore calls Handle.Resume from
// whichever goroutine releases the capacity, and the owner polls again:
//
//	p, err := s.Begin(3)
//	if err != nil {
//		return err
//	}
//	if g, ok := p.Poll(task); ok {
//		// granted without waiting
//	}
//	// ... task.Resume() is called later; poll again from the task.
//
// Abandoning a Pending with Cancel is always safe: a grant that raced the
// cancellation is returned to the semaphore.
//
// Timeouts are not built in. Race Acquire against a deadline with
// context.WithTimeout, or cancel a Pending from a timer.
//
// # Fairness
//
// Grants are FIFO by arrival. While any request waits, TryAcquire fails even
// if enough capacity is available, so small requests cannot overtake a large
// one at the head of the queue.
//
// # Errors
//
// Requests larger than the capacity fail with [ErrWouldDeadlock] and are
// never queued. [Semaphore.TryAcquire] fails with [ErrWouldBlock] when it
// would have to wait. Releasing more than was acquired panics.
//
// # Keyed semaphores
//
// [Group] keeps one semaphore per key, for per-tenant or per-host limits.
// A key's semaphore lives as long as some Guard or waiter refers to it.
package lfsema
