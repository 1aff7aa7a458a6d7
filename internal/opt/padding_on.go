//go:build !(amd64 || 386 || arm || mips || mipsle || wasm) && !lfsema_disable_padding && !lfsema_enable_padding

package opt

import (
	"sync/atomic"
	"unsafe"
)

// Word_ is a 64-bit atomic word that owns its cache line.
// Padding is automatically enabled for architectures that are NOT:
// - amd64 (x86_64): Hardware optimizations often make padding less critical
// - 32-bit architectures (386, arm, mips, mipsle, wasm): Smaller cache lines/memory constraints
//
// Enabled for: arm64, s390x, ppc64, ppc64le, riscv64, loong64, mips64, mips64le, etc.
type Word_ struct {
	atomic.Uint64
	_ [(CacheLineSize_ - unsafe.Sizeof(uint64(0))%CacheLineSize_) % CacheLineSize_]byte
}
