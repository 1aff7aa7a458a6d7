package lfsema

// Guard is a permit for units granted by a Semaphore. Release returns them;
// the usual pattern is
//
//	g, err := s.Acquire(ctx, n)
//	if err != nil {
//		return err
//	}
//	defer g.Release()
//
// A Guard must not be copied after use: each copy would release the same
// units.
type Guard struct {
	s *Semaphore
	n uint32
	// set for guards handed out by a Group
	ref interface{ unref() }
}

// Release returns the guarded units to the semaphore. Calling it again, or on
// a zero or forgotten Guard, does nothing.
func (g *Guard) Release() {
	if g.s == nil {
		return
	}
	s, n, ref := g.s, g.n, g.ref
	g.s, g.n, g.ref = nil, 0, nil
	s.Release(n)
	if ref != nil {
		ref.unref()
	}
}

// Forget gives up the guarded units without returning them; they stay
// granted for the lifetime of the semaphore. It returns the number of units
// leaked. A Group keeps the semaphore of a forgotten Guard for good.
func (g *Guard) Forget() uint32 {
	n := g.n
	g.s, g.n, g.ref = nil, 0, nil
	return n
}

// Amount returns the number of units the guard holds.
func (g *Guard) Amount() uint32 {
	return g.n
}

// Held reports whether the guard still holds its units.
func (g *Guard) Held() bool {
	return g.s != nil
}
