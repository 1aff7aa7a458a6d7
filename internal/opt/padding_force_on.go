//go:build lfsema_enable_padding

package opt

import (
	"sync/atomic"
	"unsafe"
)

// Word_ is a 64-bit atomic word that owns its cache line.
// Padding is force-enabled via the lfsema_enable_padding build tag.
// Use: go build -tags=lfsema_enable_padding
type Word_ struct {
	atomic.Uint64
	_ [(CacheLineSize_ - unsafe.Sizeof(uint64(0))%CacheLineSize_) % CacheLineSize_]byte
}
