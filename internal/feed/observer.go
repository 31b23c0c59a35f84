package feed

import "sync"

// notifier delivers reconciled state to one subscriber. cancel blocks until
// any in-flight delivery finishes, so after it returns the callback is never
// invoked again. Cancelling twice is a no-op.
type notifier[T any] struct {
	mu        sync.Mutex
	cancelled bool
	fn        func(T)
}

// hold claims the delivery slot and returns a func that performs one
// notification and releases it. Claiming while the registry lock is held
// keeps the first delivery ordered ahead of any notification racing with
// registration.
func (n *notifier[T]) hold() func(T) {
	n.mu.Lock()
	return func(v T) {
		defer n.mu.Unlock()
		if n.cancelled {
			return
		}
		n.fn(v)
	}
}

func (n *notifier[T]) notify(v T) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.cancelled {
		return
	}
	n.fn(v)
}

func (n *notifier[T]) cancel() {
	n.mu.Lock()
	n.cancelled = true
	n.mu.Unlock()
}
