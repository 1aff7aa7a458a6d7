package lfsema

import (
	"hash/maphash"
	"runtime"
	"sync/atomic"
	"unsafe"

	"github.com/llxisdsh/lfsema/internal/opt"
)

// keyTable is a concurrent hash table with one spin lock per bucket. Every
// access, reads included, runs under the bucket lock, so a compute callback
// observes and replaces a key's value atomically.
//
// The bucket array is sized once, from GOMAXPROCS, and never resized: chains
// stay short as long as entries are removed when no longer referenced.
type keyTable[K comparable, V any] struct {
	_       noCopy
	seed    maphash.Seed
	buckets []tableBucket[K, V]
	mask    uint64
	size    atomic.Int64
}

type tableBucket[K comparable, V any] struct {
	// meta holds the lock bit; the chain is only touched with it set.
	meta atomic.Uint32
	head *tableEntry[K, V]
	_    [(opt.CacheLineSize_ - 2*unsafe.Sizeof(uintptr(0))%opt.CacheLineSize_) % opt.CacheLineSize_]byte
}

type tableEntry[K comparable, V any] struct {
	key   K
	value V
	next  *tableEntry[K, V]
}

type computeOp uint8

const (
	cancelOp computeOp = iota
	updateOp
	deleteOp
)

const (
	opLocked        = 1
	bucketsPerCPU   = 4
	minTableBuckets = 16
)

func newKeyTable[K comparable, V any]() *keyTable[K, V] {
	n := nextPowOf2(max(minTableBuckets, bucketsPerCPU*runtime.GOMAXPROCS(0)))
	return &keyTable[K, V]{
		seed:    maphash.MakeSeed(),
		buckets: make([]tableBucket[K, V], n),
		mask:    uint64(n - 1),
	}
}

func (t *keyTable[K, V]) bucket(key K) *tableBucket[K, V] {
	return &t.buckets[maphash.Comparable(t.seed, key)&t.mask]
}

// compute calls fn with key's current value, under the bucket lock. fn
// returns the value to store and whether to keep it (updateOp), drop the
// key (deleteOp), or leave the table alone (cancelOp). compute returns the
// value fn returned.
//
// fn must not call back into the table.
func (t *keyTable[K, V]) compute(
	key K,
	fn func(value V, loaded bool) (V, computeOp),
) V {
	b := t.bucket(key)
	b.lock()
	defer b.unlock()

	var prev *tableEntry[K, V]
	e := b.head
	for ; e != nil; prev, e = e, e.next {
		if e.key == key {
			break
		}
	}

	var cur V
	if e != nil {
		cur = e.value
	}
	next, op := fn(cur, e != nil)
	switch op {
	case updateOp:
		if e != nil {
			e.value = next
		} else {
			b.head = &tableEntry[K, V]{key: key, value: next, next: b.head}
			t.size.Add(1)
		}
	case deleteOp:
		if e == nil {
			break
		}
		if prev == nil {
			b.head = e.next
		} else {
			prev.next = e.next
		}
		t.size.Add(-1)
	}
	return next
}

// rangeAll calls yield for each entry until it returns false. Each bucket is
// copied out under its lock and yielded after unlocking, so yield may use
// the table; entries changed meanwhile may or may not be seen.
func (t *keyTable[K, V]) rangeAll(yield func(key K, value V) bool) {
	var batch []tableEntry[K, V]
	for i := range t.buckets {
		b := &t.buckets[i]
		batch = batch[:0]
		b.lock()
		for e := b.head; e != nil; e = e.next {
			batch = append(batch, tableEntry[K, V]{key: e.key, value: e.value})
		}
		b.unlock()
		for _, e := range batch {
			if !yield(e.key, e.value) {
				return
			}
		}
	}
}

// len returns the number of keys.
func (t *keyTable[K, V]) len() int {
	return int(t.size.Load())
}

func (b *tableBucket[K, V]) lock() {
	if b.meta.CompareAndSwap(0, opLocked) {
		return
	}
	var spins int
	for !b.meta.CompareAndSwap(0, opLocked) {
		delay(&spins)
	}
}

func (b *tableBucket[K, V]) unlock() {
	b.meta.Store(0)
}
