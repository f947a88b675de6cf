package mainloop

import "sync/atomic"

// IdleFunc is the callback invoked when the loop has no higher-priority
// work. Returning true keeps the idler scheduled; returning false removes
// it.
type IdleFunc func() bool

// Idler statuses. Stored atomically so removers on auxiliary goroutines
// cannot race the dispatch walk.
const (
	idlerReady uint32 = iota
	// idlerReadyNextIteration marks an idler created while an idler
	// dispatch was in progress; it is promoted to ready exactly once, at
	// the end of that dispatch, and can only fire in a later iteration.
	idlerReadyNextIteration
	idlerDeleted
)

// Idler is an opaque handle for a registered idler.
type Idler struct {
	fn     IdleFunc
	status atomic.Uint32
}

type idlerRegistry struct {
	entries    []*Idler
	processing bool
	pending    int
}

// active reports whether any entry can still fire. Used by the wait
// computation: any live idler forces a zero wait.
func (r *idlerRegistry) active() bool {
	return len(r.entries) > r.pending
}

func (r *idlerRegistry) cleanup() {
	if r.pending == 0 {
		return
	}
	kept := r.entries[:0]
	for _, e := range r.entries {
		if e.status.Load() != idlerDeleted {
			kept = append(kept, e)
		}
	}
	for i := len(kept); i < len(r.entries); i++ {
		r.entries[i] = nil
	}
	r.entries = kept
	r.pending = 0
}

// AddIdler schedules fn to run whenever an iteration reaches the idler
// phase. Idlers are strictly lower priority than timeouts and fd watchers.
// An idler added from an idler callback never fires in the iteration that
// created it.
func (l *Loop) AddIdler(fn IdleFunc) (*Idler, error) {
	if fn == nil {
		return nil, ErrNilCallback
	}
	if err := l.usable(); err != nil {
		return nil, err
	}
	e := &Idler{fn: fn}
	l.backend.lock()
	if l.idlers.processing {
		e.status.Store(idlerReadyNextIteration)
	}
	l.idlers.entries = append(l.idlers.entries, e)
	l.backend.unlock()
	l.wakeFromRegistrar()
	return e, nil
}

// RemoveIdler marks e for removal. A second call reports ErrAlreadyRemoved.
func (l *Loop) RemoveIdler(e *Idler) error {
	l.backend.lock()
	defer l.backend.unlock()
	if !l.markIdlerDeleted(e) {
		return ErrAlreadyRemoved
	}
	l.idlers.pending++
	if !l.idlers.processing {
		l.idlers.cleanup()
	}
	return nil
}

// markIdlerDeleted transitions e to deleted, reporting whether this caller
// won the transition.
func (l *Loop) markIdlerDeleted(e *Idler) bool {
	for {
		s := e.status.Load()
		if s == idlerDeleted {
			return false
		}
		if e.status.CompareAndSwap(s, idlerDeleted) {
			return true
		}
	}
}

// idlerProcess dispatches every ready idler, nesting a timeout dispatch
// after each invocation so overdue timers interleave with idle work.
// Entries created during the walk (status readyNextIteration) are promoted
// at fold-back and considered on the next iteration.
func (l *Loop) idlerProcess() {
	l.backend.lock()
	if l.idlers.processing || len(l.idlers.entries) == 0 {
		l.backend.unlock()
		return
	}
	l.idlers.processing = true
	proc := l.idlers.entries
	l.idlers.entries = nil
	l.backend.unlock()

	for _, e := range proc {
		if !l.running.Load() {
			break
		}
		switch e.status.Load() {
		case idlerDeleted:
			continue
		case idlerReadyNextIteration:
			e.status.CompareAndSwap(idlerReadyNextIteration, idlerReady)
			continue
		case idlerReady:
			// The callback may have removed itself; only mark on a
			// drop return if the entry is still live.
			if !l.safeIdle(e) && e.status.CompareAndSwap(idlerReady, idlerDeleted) {
				l.backend.lock()
				l.idlers.pending++
				l.backend.unlock()
			}
		}
		l.timeoutProcess()
	}

	l.backend.lock()
	for _, e := range l.idlers.entries {
		e.status.CompareAndSwap(idlerReadyNextIteration, idlerReady)
	}
	l.idlers.entries = append(proc, l.idlers.entries...)
	l.idlers.processing = false
	l.idlers.cleanup()
	l.backend.unlock()
}

func (l *Loop) safeIdle(e *Idler) (keep bool) {
	defer l.recoverCallback("idler")
	return e.fn()
}
