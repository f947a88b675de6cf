package mainloop

import (
	"sync/atomic"
	"time"
)

// Source folds a foreign event producer (a protocol stack, a co-routine
// scheduler) into the loop. Dispatch is the only mandatory operation; the
// remaining operations of the classical pollable-source protocol are
// expressed as optional capability interfaces, probed once at registration:
//
//   - [SourcePreparer]: runs before the blocking wait; a true return latches
//     the source ready and forces a zero wait.
//   - [SourceTimeouter]: contributes an upper bound on the blocking wait.
//   - [SourceChecker]: runs after the blocking wait; a true return (or a
//     latched prepare) triggers Dispatch.
//   - [SourceDisposer]: runs when the source is removed or the loop shuts
//     down.
//
// A source that owns descriptors registers them as separate fd watchers and
// cooperates through Check.
type Source interface {
	Dispatch()
}

// SourcePreparer is an optional Source capability, run before the blocking
// wait.
type SourcePreparer interface {
	Prepare() (ready bool)
}

// SourceChecker is an optional Source capability, run after the blocking
// wait.
type SourceChecker interface {
	Check() (ready bool)
}

// SourceTimeouter is an optional Source capability. NextTimeout reports the
// longest the loop may block; ok false means the source imposes no bound.
type SourceTimeouter interface {
	NextTimeout() (d time.Duration, ok bool)
}

// SourceDisposer is an optional Source capability, run exactly once when the
// entry is destroyed.
type SourceDisposer interface {
	Dispose()
}

// SourceHandle is an opaque handle for a registered source.
type SourceHandle struct {
	src      Source
	prepare  SourcePreparer
	check    SourceChecker
	timeout  SourceTimeouter
	dispose  SourceDisposer
	ready    bool // loop goroutine only
	// removeMe is CAS-marked; see Timeout.removeMe.
	removeMe atomic.Bool
}

// Source returns the registered source value.
func (h *SourceHandle) Source() Source {
	return h.src
}

type sourceRegistry struct {
	entries    []*SourceHandle
	processing bool
	pending    int
}

// cleanup unlinks marked entries and returns them so the caller can run
// Dispose outside the registry lock. Must not be called while processing.
func (r *sourceRegistry) cleanup() (doomed []*SourceHandle) {
	if r.pending == 0 {
		return nil
	}
	kept := r.entries[:0]
	for _, h := range r.entries {
		if h.removeMe.Load() {
			doomed = append(doomed, h)
			continue
		}
		kept = append(kept, h)
	}
	for i := len(kept); i < len(r.entries); i++ {
		r.entries[i] = nil
	}
	r.entries = kept
	r.pending = 0
	return doomed
}

// AddSource registers src with the loop. The capability interfaces are
// probed here, once.
func (l *Loop) AddSource(src Source) (*SourceHandle, error) {
	if src == nil {
		return nil, ErrNilCallback
	}
	if err := l.usable(); err != nil {
		return nil, err
	}
	h := &SourceHandle{src: src}
	h.prepare, _ = src.(SourcePreparer)
	h.check, _ = src.(SourceChecker)
	h.timeout, _ = src.(SourceTimeouter)
	h.dispose, _ = src.(SourceDisposer)
	l.backend.lock()
	l.sources.entries = append(l.sources.entries, h)
	l.backend.unlock()
	l.wakeFromRegistrar()
	return h, nil
}

// RemoveSource marks h for removal; Dispose runs during cleanup. A second
// call reports ErrAlreadyRemoved.
func (l *Loop) RemoveSource(h *SourceHandle) error {
	l.backend.lock()
	if !h.removeMe.CompareAndSwap(false, true) {
		l.backend.unlock()
		return ErrAlreadyRemoved
	}
	l.sources.pending++
	var doomed []*SourceHandle
	if !l.sources.processing {
		doomed = l.sources.cleanup()
	}
	l.backend.unlock()
	for _, d := range doomed {
		l.disposeSource(d)
	}
	return nil
}

// sourcePrepare is iteration phase 1: latch each source's readiness and
// report whether any source is already ready (forcing a zero wait).
func (l *Loop) sourcePrepare() (anyReady bool) {
	l.backend.lock()
	if l.sources.processing || len(l.sources.entries) == 0 {
		l.backend.unlock()
		return false
	}
	l.sources.processing = true
	proc := l.sources.entries
	l.sources.entries = nil
	l.backend.unlock()

	for _, h := range proc {
		if !l.running.Load() {
			break
		}
		if h.removeMe.Load() || h.prepare == nil {
			continue
		}
		h.ready = l.safePrepare(h)
		anyReady = anyReady || h.ready
	}

	l.backend.lock()
	l.sources.entries = append(proc, l.sources.entries...)
	l.sources.processing = false
	doomed := l.sources.cleanup()
	l.backend.unlock()
	for _, d := range doomed {
		l.disposeSource(d)
	}
	return anyReady
}

// timeouters returns the live entries carrying a NextTimeout capability.
// Called with the registry lock held; the caller walks the snapshot
// unlocked.
func (r *sourceRegistry) timeouters() []*SourceHandle {
	var out []*SourceHandle
	for _, h := range r.entries {
		if !h.removeMe.Load() && h.timeout != nil {
			out = append(out, h)
		}
	}
	return out
}

// sourceNextTimeout folds the snapshotted sources' wait bounds into (d, ok).
// NextTimeout runs without the registry lock, so the callback may call
// registrars and removers like any other source callback.
func (l *Loop) sourceNextTimeout(handles []*SourceHandle) (time.Duration, bool) {
	var (
		best time.Duration
		ok   bool
	)
	for _, h := range handles {
		if h.removeMe.Load() {
			continue
		}
		if d, bound := l.safeNextTimeout(h); bound {
			if d < 0 {
				d = 0
			}
			if !ok || d < best {
				best, ok = d, true
			}
		}
	}
	return best, ok
}

// sourceDispatch is iteration phase 9: combine the latched prepare result
// with Check, dispatch ready sources, and clear the latch.
func (l *Loop) sourceDispatch() {
	l.backend.lock()
	if l.sources.processing || len(l.sources.entries) == 0 {
		l.backend.unlock()
		return
	}
	l.sources.processing = true
	proc := l.sources.entries
	l.sources.entries = nil
	l.backend.unlock()

	for _, h := range proc {
		if !l.running.Load() {
			break
		}
		if h.removeMe.Load() {
			continue
		}
		// Check always runs, even when Prepare already latched ready:
		// sources may rely on its side effects.
		ready := h.ready
		if h.check != nil {
			if l.safeCheck(h) {
				ready = true
			}
		}
		if ready {
			h.ready = false
			l.safeDispatch(h)
		}
	}

	l.backend.lock()
	l.sources.entries = append(proc, l.sources.entries...)
	l.sources.processing = false
	doomed := l.sources.cleanup()
	l.backend.unlock()
	for _, d := range doomed {
		l.disposeSource(d)
	}
}

func (l *Loop) disposeSource(h *SourceHandle) {
	if h.dispose == nil {
		return
	}
	defer l.recoverCallback("source dispose")
	h.dispose.Dispose()
}

func (l *Loop) safePrepare(h *SourceHandle) (ready bool) {
	defer l.recoverCallback("source prepare")
	return h.prepare.Prepare()
}

// A panicking NextTimeout is treated as imposing no bound.
func (l *Loop) safeNextTimeout(h *SourceHandle) (d time.Duration, ok bool) {
	defer l.recoverCallback("source next timeout")
	return h.timeout.NextTimeout()
}

func (l *Loop) safeCheck(h *SourceHandle) (ready bool) {
	defer l.recoverCallback("source check")
	return h.check.Check()
}

func (l *Loop) safeDispatch(h *SourceHandle) {
	defer l.recoverCallback("source dispatch")
	h.src.Dispatch()
}
