package lfsema

import (
	"math"
	"testing"
)

func TestState_Packing(t *testing.T) {
	cases := []struct {
		avail uint32
		m     mode
		back  uint32
	}{
		{0, modeOpen, 0},
		{1, modeQueued, 1},
		{math.MaxUint32, modeLockedDirty, MaxWaiters},
		{12345, modeLocked, 1 << 20},
		{math.MaxUint32, modeOpen, 0},
		{0, modeLockedDirty, MaxWaiters},
	}
	for _, c := range cases {
		s := makeState(c.avail, c.m, c.back)
		if s.avail() != c.avail || s.mode() != c.m || s.back() != c.back {
			t.Fatalf("makeState(%d, %v, %d) = %v", c.avail, c.m, c.back, s)
		}
	}
}

func TestState_With(t *testing.T) {
	s := makeState(7, modeQueued, 42)

	if got := s.withAvail(math.MaxUint32); got.avail() != math.MaxUint32 || got.mode() != modeQueued || got.back() != 42 {
		t.Fatalf("withAvail: %v", got)
	}
	if got := s.withMode(modeLockedDirty); got.avail() != 7 || got.mode() != modeLockedDirty || got.back() != 42 {
		t.Fatalf("withMode: %v", got)
	}
	if got := s.withBack(0); got.avail() != 7 || got.mode() != modeQueued || got.back() != 0 {
		t.Fatalf("withBack: %v", got)
	}
}

func TestState_Update(t *testing.T) {
	var w stateWord
	w.w.Store(uint64(makeState(5, modeOpen, 0)))

	old, ok := w.update(func(old state) (state, bool) {
		return old.withAvail(old.avail() - 2), true
	})
	if !ok || old.avail() != 5 || w.load().avail() != 3 {
		t.Fatalf("update: ok=%v old=%v now=%v", ok, old, w.load())
	}

	old, ok = w.update(func(old state) (state, bool) {
		return old, false
	})
	if ok || old.avail() != 3 {
		t.Fatalf("declined update: ok=%v old=%v", ok, old)
	}
}

func TestMode_Locked(t *testing.T) {
	for m, want := range map[mode]bool{
		modeOpen:        false,
		modeQueued:      false,
		modeLocked:      true,
		modeLockedDirty: true,
	} {
		if m.locked() != want {
			t.Fatalf("%v.locked() = %v", m, m.locked())
		}
	}
}
