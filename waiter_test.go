package lfsema

import (
	"sync"
	"testing"
)

func TestLocate_Boundaries(t *testing.T) {
	cases := []struct {
		i     uint32
		chunk int
		off   uint32
	}{
		{1, 0, 0},
		{chunkLen, 0, chunkLen - 1},
		{chunkLen + 1, 1, 0},
		{3 * chunkLen, 1, 2*chunkLen - 1},
		{3*chunkLen + 1, 2, 0},
		{MaxWaiters, numChunks - 1, MaxWaiters + chunkLen - 1 - chunkLen<<(numChunks-1)},
	}
	for _, c := range cases {
		chunk, off := locate(c.i)
		if chunk != c.chunk || off != c.off {
			t.Fatalf("locate(%d) = (%d, %d), want (%d, %d)", c.i, chunk, off, c.chunk, c.off)
		}
	}
}

func TestLocate_Dense(t *testing.T) {
	// Every index maps to a distinct slot inside its chunk.
	prevChunk, prevOff := 0, uint32(0)
	for i := uint32(1); i < 10*chunkLen; i++ {
		chunk, off := locate(i)
		if off >= chunkLen<<chunk {
			t.Fatalf("locate(%d) offset %d out of chunk %d", i, off, chunk)
		}
		if i > 1 {
			if chunk == prevChunk && off != prevOff+1 {
				t.Fatalf("locate(%d) = (%d, %d) after (%d, %d)", i, chunk, off, prevChunk, prevOff)
			}
			if chunk != prevChunk && (chunk != prevChunk+1 || off != 0) {
				t.Fatalf("locate(%d) = (%d, %d) after (%d, %d)", i, chunk, off, prevChunk, prevOff)
			}
		}
		prevChunk, prevOff = chunk, off
	}
}

func TestArena_LIFOReuse(t *testing.T) {
	var a arena
	i1 := a.alloc()
	i2 := a.alloc()
	if i1 != 1 || i2 != 2 {
		t.Fatalf("fresh indices = %d, %d", i1, i2)
	}

	a.release(i1)
	a.release(i2)
	if got := a.alloc(); got != i2 {
		t.Fatalf("alloc after release = %d, want %d", got, i2)
	}
	if got := a.alloc(); got != i1 {
		t.Fatalf("alloc after release = %d, want %d", got, i1)
	}
	if got := a.alloc(); got != 3 {
		t.Fatalf("alloc of fresh node = %d, want 3", got)
	}
}

func TestArena_TagAdvances(t *testing.T) {
	var a arena
	i := a.alloc()
	a.release(i)
	head := a.free.Load()
	_ = a.alloc()
	a.release(i)
	again := a.free.Load()
	if uint32(head) != uint32(again) {
		t.Fatalf("index changed: %d vs %d", uint32(head), uint32(again))
	}
	if head == again {
		t.Fatal("free-list head reinstalled with the same tag")
	}
}

func TestArena_ReleaseClearsSlot(t *testing.T) {
	var a arena
	i := a.alloc()
	a.at(i).slot.Store(waking)
	a.release(i)
	if a.at(i).slot.Load() != nil {
		t.Fatal("slot not cleared on release")
	}
}

func TestArena_Reserve(t *testing.T) {
	var a arena
	a.reserve(100)
	if got := a.top.Load(); got != 100 {
		t.Fatalf("top = %d, want 100", got)
	}
	for want := uint32(1); want <= 100; want++ {
		if got := a.alloc(); got != want {
			t.Fatalf("alloc = %d, want %d", got, want)
		}
	}
	if got := a.alloc(); got != 101 {
		t.Fatalf("alloc past reserve = %d, want 101", got)
	}
}

func TestArena_Concurrent(t *testing.T) {
	var a arena
	const goroutines = 8
	const rounds = 2000

	var mu sync.Mutex
	owned := make(map[uint32]bool)

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for range goroutines {
		go func() {
			defer wg.Done()
			held := make([]uint32, 0, 4)
			for r := range rounds {
				i := a.alloc()
				mu.Lock()
				if owned[i] {
					mu.Unlock()
					t.Errorf("index %d handed out twice", i)
					return
				}
				owned[i] = true
				mu.Unlock()
				held = append(held, i)
				if r%3 == 0 || len(held) == cap(held) {
					for _, j := range held {
						mu.Lock()
						delete(owned, j)
						mu.Unlock()
						a.release(j)
					}
					held = held[:0]
				}
			}
			for _, j := range held {
				mu.Lock()
				delete(owned, j)
				mu.Unlock()
				a.release(j)
			}
		}()
	}
	wg.Wait()

	// Everything was returned, so the arena never grew past the peak.
	if top := a.top.Load(); top > goroutines*4 {
		t.Fatalf("arena grew to %d nodes", top)
	}
}

func TestArena_TooManyWaitersPanics(t *testing.T) {
	var a arena
	a.top.Store(MaxWaiters)
	defer func() {
		if r := recover(); r != "lfsema: too many waiters" {
			t.Fatalf("recover() = %v", r)
		}
		if got := a.top.Load(); got != MaxWaiters+1 {
			t.Fatalf("top = %d", got)
		}
	}()
	a.alloc()
}
