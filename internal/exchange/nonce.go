package exchange

import (
	"sync"
	"time"
)

// Nonce issues the strictly increasing microsecond timestamps the exchange
// uses as its per-account replay guard. Two signed calls in the same
// microsecond would collide and get one of them rejected, so Next bumps
// past the previous value instead of trusting the wall clock alone. The
// streaming and REST signers share one instance: the nonce sequence is per
// account, not per transport.
type Nonce struct {
	mu   sync.Mutex
	last int64
}

// Next returns the next nonce.
func (n *Nonce) Next() int64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	now := time.Now().UnixMicro()
	if now <= n.last {
		now = n.last + 1
	}
	n.last = now
	return now
}
