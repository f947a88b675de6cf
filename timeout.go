package mainloop

import (
	"sort"
	"sync/atomic"
	"time"
)

// TimeoutFunc is the callback invoked when a timeout expires. Returning true
// re-arms the timeout for another period; returning false removes it.
type TimeoutFunc func() bool

// Timeout is an opaque handle for a scheduled timeout. Handles become
// dangling once removed; they must not be reused after RemoveTimeout
// returns nil or after the loop shuts down.
type Timeout struct {
	expire time.Time
	period time.Duration
	fn     TimeoutFunc
	// removeMe is CAS-marked so removers on auxiliary goroutines cannot
	// race the dispatch walk. The winner of the transition owns the
	// pending-deletion accounting.
	removeMe atomic.Bool
}

// timeoutRegistry keeps entries sorted ascending by expire. Entries with
// equal expiries keep insertion order (new entries land after existing
// equals), which is the fire-order tie-break.
type timeoutRegistry struct {
	entries    []*Timeout
	processing bool
	pending    int
}

// insertSorted inserts t before the first entry with a strictly later
// expiry.
func insertSorted(entries []*Timeout, t *Timeout) []*Timeout {
	i := sort.Search(len(entries), func(i int) bool {
		return entries[i].expire.After(t.expire)
	})
	entries = append(entries, nil)
	copy(entries[i+1:], entries[i:])
	entries[i] = t
	return entries
}

// mergeSorted merges two expire-sorted slices. Entries from a win ties, so
// entries added during a dispatch phase (in b) sort after pre-existing
// entries with the same expiry.
func mergeSorted(a, b []*Timeout) []*Timeout {
	if len(b) == 0 {
		return a
	}
	if len(a) == 0 {
		return b
	}
	out := make([]*Timeout, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		if b[j].expire.Before(a[i].expire) {
			out = append(out, b[j])
			j++
		} else {
			out = append(out, a[i])
			i++
		}
	}
	out = append(out, a[i:]...)
	out = append(out, b[j:]...)
	return out
}

// earliest returns the first entry not marked for removal, or nil.
func (r *timeoutRegistry) earliest() *Timeout {
	for _, t := range r.entries {
		if !t.removeMe.Load() {
			return t
		}
	}
	return nil
}

// cleanup removes every marked entry. Must not be called while processing.
func (r *timeoutRegistry) cleanup() {
	if r.pending == 0 {
		return
	}
	kept := r.entries[:0]
	for _, t := range r.entries {
		if !t.removeMe.Load() {
			kept = append(kept, t)
		}
	}
	for i := len(kept); i < len(r.entries); i++ {
		r.entries[i] = nil
	}
	r.entries = kept
	r.pending = 0
}

// AddTimeout schedules fn to run once period has elapsed. The callback runs
// on the loop goroutine; returning true re-arms it for another period from
// the moment it fired (drift is not corrected), returning false drops it.
//
// A non-positive period fires on the first timeout dispatch after
// registration.
func (l *Loop) AddTimeout(period time.Duration, fn TimeoutFunc) (*Timeout, error) {
	if fn == nil {
		return nil, ErrNilCallback
	}
	if err := l.usable(); err != nil {
		return nil, err
	}
	if period < 0 {
		period = 0
	}
	t := &Timeout{
		expire: monotonicNow().Add(period),
		period: period,
		fn:     fn,
	}
	l.backend.lock()
	l.timeouts.entries = insertSorted(l.timeouts.entries, t)
	l.backend.unlock()
	l.wakeFromRegistrar()
	return t, nil
}

// RemoveTimeout marks t for removal. The entry is unlinked immediately when
// no timeout dispatch is in progress, otherwise after the current phase
// unwinds. A second call reports ErrAlreadyRemoved.
func (l *Loop) RemoveTimeout(t *Timeout) error {
	l.backend.lock()
	defer l.backend.unlock()
	if !t.removeMe.CompareAndSwap(false, true) {
		return ErrAlreadyRemoved
	}
	l.timeouts.pending++
	if !l.timeouts.processing {
		l.timeouts.cleanup()
	}
	return nil
}

// timeoutProcess dispatches every timeout whose expiry is not after now.
// It is invoked as iteration phase 4, and nested after each fd, idler and
// child-watch callback; the processing guard makes the nested calls no-ops
// while a dispatch is already walking the registry.
func (l *Loop) timeoutProcess() {
	l.backend.lock()
	if l.timeouts.processing || len(l.timeouts.entries) == 0 {
		l.backend.unlock()
		return
	}
	l.timeouts.processing = true
	proc := l.timeouts.entries
	l.timeouts.entries = nil
	l.backend.unlock()

	now := monotonicNow()
	for i := 0; i < len(proc); i++ {
		if !l.running.Load() {
			break
		}
		t := proc[i]
		if t.removeMe.Load() {
			continue
		}
		if t.expire.After(now) {
			break
		}
		keep := l.safeTimeout(t)
		if t.removeMe.Load() {
			// Removed itself (or was removed by another callback)
			// during dispatch; never re-arm.
			continue
		}
		if keep {
			now = monotonicNow()
			t.expire = now.Add(t.period)
			copy(proc[i:], proc[i+1:])
			proc = insertSorted(proc[:len(proc)-1], t)
			i--
		} else if t.removeMe.CompareAndSwap(false, true) {
			l.backend.lock()
			l.timeouts.pending++
			l.backend.unlock()
		}
	}

	l.backend.lock()
	l.timeouts.entries = mergeSorted(proc, l.timeouts.entries)
	l.timeouts.processing = false
	l.timeouts.cleanup()
	l.backend.unlock()
}

// safeTimeout runs a timeout callback with panic recovery. A panicking
// callback is logged and treated as if it returned false.
func (l *Loop) safeTimeout(t *Timeout) (keep bool) {
	defer l.recoverCallback("timeout")
	return t.fn()
}
