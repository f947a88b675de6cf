//go:build linux || darwin

package mainloop

import (
	"sync/atomic"

	"golang.org/x/sys/unix"
)

// ChildFunc is the callback invoked once when a watched child process exits.
type ChildFunc func(pid int, status unix.WaitStatus)

// ChildWatcher is an opaque handle for a registered child watcher. A child
// watcher fires at most once and always removes itself after firing.
type ChildWatcher struct {
	pid int
	fn  ChildFunc
	// removeMe is CAS-marked; see Timeout.removeMe.
	removeMe atomic.Bool
}

type childRegistry struct {
	entries    []*ChildWatcher
	processing bool
	pending    int
}

func (r *childRegistry) cleanup() {
	if r.pending == 0 {
		return
	}
	kept := r.entries[:0]
	for _, w := range r.entries {
		if !w.removeMe.Load() {
			kept = append(kept, w)
		}
	}
	for i := len(kept); i < len(r.entries); i++ {
		r.entries[i] = nil
	}
	r.entries = kept
	r.pending = 0
}

// AddChildWatch invokes fn once pid exits. The loop reaps its own children:
// the watched process must not be waited on elsewhere (in particular, not
// through os/exec's Wait). Requires signal handling, which is on by default
// and disabled by WithSignalHandling(false).
//
// A watch added after the child already exited still fires, as long as the
// exit was reaped by this loop.
func (l *Loop) AddChildWatch(pid int, fn ChildFunc) (*ChildWatcher, error) {
	if fn == nil {
		return nil, ErrNilCallback
	}
	if pid <= 0 {
		return nil, ErrInvalidPID
	}
	if err := l.usable(); err != nil {
		return nil, err
	}
	w := &ChildWatcher{pid: pid, fn: fn}
	l.backend.lock()
	l.children.entries = append(l.children.entries, w)
	l.backend.unlock()
	l.wakeFromRegistrar()
	return w, nil
}

// RemoveChildWatch marks w for removal. A second call (including after the
// watcher fired and dropped itself) reports ErrAlreadyRemoved.
func (l *Loop) RemoveChildWatch(w *ChildWatcher) error {
	l.backend.lock()
	defer l.backend.unlock()
	if !w.removeMe.CompareAndSwap(false, true) {
		return ErrAlreadyRemoved
	}
	l.children.pending++
	if !l.children.processing {
		l.children.cleanup()
	}
	return nil
}

// childProcess is iteration phase 7: fire every watcher whose pid has a
// recorded exit status, self-dropping each after invocation, with a timeout
// dispatch nested after each callback.
func (l *Loop) childProcess() {
	if l.signals == nil || len(l.signals.exited) == 0 {
		return
	}
	l.backend.lock()
	if l.children.processing || len(l.children.entries) == 0 {
		l.backend.unlock()
		return
	}
	l.children.processing = true
	proc := l.children.entries
	l.children.entries = nil
	l.backend.unlock()

	for _, w := range proc {
		if !l.running.Load() {
			break
		}
		if w.removeMe.Load() {
			continue
		}
		status, ok := l.signals.exited[w.pid]
		if !ok {
			continue
		}
		l.safeChild(w, status)
		if w.removeMe.CompareAndSwap(false, true) {
			l.backend.lock()
			l.children.pending++
			l.backend.unlock()
		}
		l.timeoutProcess()
	}

	l.backend.lock()
	l.children.entries = append(proc, l.children.entries...)
	l.children.processing = false
	l.children.cleanup()
	// Recorded statuses are dropped once no watcher remains for the pid.
	for pid := range l.signals.exited {
		if !l.watchedPID(pid) {
			delete(l.signals.exited, pid)
		}
	}
	l.backend.unlock()
}

// watchedPID reports whether any live watcher references pid. Called with
// the registry lock held.
func (l *Loop) watchedPID(pid int) bool {
	for _, w := range l.children.entries {
		if !w.removeMe.Load() && w.pid == pid {
			return true
		}
	}
	return false
}

func (l *Loop) safeChild(w *ChildWatcher, status unix.WaitStatus) {
	defer l.recoverCallback("child watch")
	w.fn(w.pid, status)
}

// AddChildWatch registers a child watcher with the default loop.
func AddChildWatch(pid int, fn ChildFunc) (*ChildWatcher, error) {
	l, err := getDefault()
	if err != nil {
		return nil, err
	}
	return l.AddChildWatch(pid, fn)
}

// RemoveChildWatch removes a child watcher from the default loop.
func RemoveChildWatch(w *ChildWatcher) error {
	l, err := getDefault()
	if err != nil {
		return err
	}
	return l.RemoveChildWatch(w)
}
