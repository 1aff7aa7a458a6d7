//go:build lfsema_disable_padding && !lfsema_enable_padding

package opt

import (
	"sync/atomic"
)

// Word_ is a 64-bit atomic word.
// Padding is force-disabled via the lfsema_disable_padding build tag.
// Use: go build -tags=lfsema_disable_padding
type Word_ struct {
	atomic.Uint64
}
