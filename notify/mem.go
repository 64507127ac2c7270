package notify

import (
	"errors"
	"sync/atomic"
)

var errUnsupported = errors.New("notifier backend not supported on this platform")

// MemNotifier is a Notifier backed by a one-slot channel. A second Signal
// before the matching Wait is absorbed, which is the binary semaphore
// contract. It also tracks how many goroutines are inside Wait.
type MemNotifier struct {
	ch         chan struct{}
	waiting    atomic.Int32
	maxWaiting atomic.Int32
	waits      atomic.Uint64
}

// NewMemNotifier creates a channel-backed notifier.
func NewMemNotifier() *MemNotifier {
	return &MemNotifier{ch: make(chan struct{}, 1)}
}

func (n *MemNotifier) Signal() {
	select {
	case n.ch <- struct{}{}:
	default:
	}
}

func (n *MemNotifier) Wait() {
	w := n.waiting.Add(1)
	for {
		m := n.maxWaiting.Load()
		if w <= m || n.maxWaiting.CompareAndSwap(m, w) {
			break
		}
	}
	<-n.ch
	n.waiting.Add(-1)
	n.waits.Add(1)
}

func (n *MemNotifier) Close() error {
	return nil
}

func (n *MemNotifier) Backend() Backend {
	return BackendChannel
}

// Waiting returns the number of goroutines currently blocked in Wait.
func (n *MemNotifier) Waiting() int {
	return int(n.waiting.Load())
}

// MaxWaiting returns the highest number of concurrent waiters ever observed.
func (n *MemNotifier) MaxWaiting() int {
	return int(n.maxWaiting.Load())
}

// Waits returns how many Wait calls have completed.
func (n *MemNotifier) Waits() uint64 {
	return n.waits.Load()
}
