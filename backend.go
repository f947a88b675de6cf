package mainloop

import "sync"

// backend captures what differs between the two loop profiles: how the
// registries are guarded, and whether registrars must be able to interrupt
// the blocking wait. The dispatcher and the registry layer are shared.
type backend interface {
	lock()
	unlock()
	// threadSafe reports whether registrars may be called from goroutines
	// other than the owner, and therefore must wake a blocked loop.
	threadSafe() bool
}

// singleBackend is the single-goroutine profile: registry access needs no
// guard because registrars, removers and callbacks all run on the owning
// goroutine. The wake channel still exists on the loop itself, it is only
// ever written by Quit and the signal forwarder.
type singleBackend struct{}

func (*singleBackend) lock() {}

func (*singleBackend) unlock() {}

func (*singleBackend) threadSafe() bool { return false }

// threadedBackend guards the registries with a single mutex, held for
// insertion, marking, cleanup, snapshot steal and fold-back, and never
// across user callbacks.
type threadedBackend struct {
	mu sync.Mutex
}

func (b *threadedBackend) lock() { b.mu.Lock() }

func (b *threadedBackend) unlock() { b.mu.Unlock() }

func (*threadedBackend) threadSafe() bool { return true }
