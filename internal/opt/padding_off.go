//go:build (amd64 || 386 || arm || mips || mipsle || wasm) && !lfsema_disable_padding && !lfsema_enable_padding

package opt

import (
	"sync/atomic"
)

// Word_ is a 64-bit atomic word.
// Padding is disabled by default for:
// - amd64
// - 32-bit architectures (386, arm, mips, mipsle, wasm)
type Word_ struct {
	atomic.Uint64
}
