package mainloop

import (
	"sync/atomic"

	"golang.org/x/sys/unix"
)

// FDFlags is the set of fd conditions a watcher is interested in, and the
// set of active conditions reported to its callback.
type FDFlags uint16

const (
	// FDIn indicates the descriptor is readable.
	FDIn FDFlags = 1 << iota
	// FDOut indicates the descriptor is writable.
	FDOut
	// FDPri indicates urgent out-of-band data.
	FDPri
	// FDErr indicates an error condition. Always reported; requesting it is
	// allowed but has no effect on the wait mask.
	FDErr
	// FDHup indicates the peer hung up. Always reported.
	FDHup
	// FDNval indicates the descriptor is not open. Always reported; the
	// watcher is additionally dropped from the poll array.
	FDNval

	fdFlagsAll = FDIn | FDOut | FDPri | FDErr | FDHup | FDNval
)

// FDFunc is the callback invoked when a watched descriptor has active
// conditions. Returning true keeps the watcher; returning false removes it.
type FDFunc func(fd int, active FDFlags) bool

// FDWatcher is an opaque handle for a registered fd watcher.
type FDWatcher struct {
	fd      int
	flags   FDFlags // guarded by the registry lock
	fn      FDFunc
	invalid bool // loop goroutine only
	// removeMe is CAS-marked; see Timeout.removeMe.
	removeMe atomic.Bool
}

type fdRegistry struct {
	entries    []*FDWatcher
	processing bool
	pending    int
}

func (r *fdRegistry) cleanup() {
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

func flagsToPoll(flags FDFlags) int16 {
	var ev int16
	if flags&FDIn != 0 {
		ev |= unix.POLLIN
	}
	if flags&FDOut != 0 {
		ev |= unix.POLLOUT
	}
	if flags&FDPri != 0 {
		ev |= unix.POLLPRI
	}
	return ev
}

func pollToFlags(ev int16) FDFlags {
	var flags FDFlags
	if ev&unix.POLLIN != 0 {
		flags |= FDIn
	}
	if ev&unix.POLLOUT != 0 {
		flags |= FDOut
	}
	if ev&unix.POLLPRI != 0 {
		flags |= FDPri
	}
	if ev&unix.POLLERR != 0 {
		flags |= FDErr
	}
	if ev&unix.POLLHUP != 0 {
		flags |= FDHup
	}
	if ev&unix.POLLNVAL != 0 {
		flags |= FDNval
	}
	return flags
}

// AddFD registers fd for the conditions in flags. The callback runs on the
// loop goroutine with the subset of conditions active when the blocking wait
// returned. Error, hangup and invalid conditions are reported regardless of
// the requested flags.
//
// Unregister (or drop) the watcher before closing the descriptor; a closed
// fd left registered is reported once as invalid and then ignored.
func (l *Loop) AddFD(fd int, flags FDFlags, fn FDFunc) (*FDWatcher, error) {
	if fn == nil {
		return nil, ErrNilCallback
	}
	if fd < 0 {
		return nil, ErrInvalidFD
	}
	if flags&^fdFlagsAll != 0 {
		return nil, ErrInvalidFlags
	}
	if err := l.usable(); err != nil {
		return nil, err
	}
	w := &FDWatcher{fd: fd, flags: flags, fn: fn}
	l.backend.lock()
	l.fds.entries = append(l.fds.entries, w)
	l.pollDirty = true
	l.backend.unlock()
	l.wakeFromRegistrar()
	return w, nil
}

// RemoveFD marks w for removal and dirties the poll array. A second call
// reports ErrAlreadyRemoved.
func (l *Loop) RemoveFD(w *FDWatcher) error {
	l.backend.lock()
	defer l.backend.unlock()
	if !w.removeMe.CompareAndSwap(false, true) {
		return ErrAlreadyRemoved
	}
	l.fds.pending++
	l.pollDirty = true
	if !l.fds.processing {
		l.fds.cleanup()
	}
	return nil
}

// SetFDFlags replaces the interest set of w. Setting the current flags is a
// no-op; a genuine change dirties the poll array.
func (l *Loop) SetFDFlags(w *FDWatcher, flags FDFlags) error {
	if flags&^fdFlagsAll != 0 {
		return ErrInvalidFlags
	}
	l.backend.lock()
	defer l.backend.unlock()
	if w.removeMe.Load() {
		return ErrAlreadyRemoved
	}
	if w.flags != flags {
		w.flags = flags
		l.pollDirty = true
	}
	return nil
}

// GetFDFlags returns the current interest set of w.
func (l *Loop) GetFDFlags(w *FDWatcher) (FDFlags, error) {
	l.backend.lock()
	defer l.backend.unlock()
	if w.removeMe.Load() {
		return 0, ErrAlreadyRemoved
	}
	return w.flags, nil
}

// rebuildPollArray mirrors the live watcher set into the flat poll array.
// Called with the registry lock held, only when pollDirty.
func (l *Loop) rebuildPollArray() {
	l.pollFDs = l.pollFDs[:0]
	l.pollOwners = l.pollOwners[:0]
	for _, w := range l.fds.entries {
		if w.removeMe.Load() || w.invalid {
			continue
		}
		l.pollFDs = append(l.pollFDs, unix.PollFd{
			Fd:     int32(w.fd),
			Events: flagsToPoll(w.flags),
		})
		l.pollOwners = append(l.pollOwners, w)
	}
	l.pollFDs = append(l.pollFDs, unix.PollFd{
		Fd:     int32(l.wakeup.readFD()),
		Events: unix.POLLIN,
	})
	l.pollOwners = append(l.pollOwners, nil)
	l.pollDirty = false
}

// fdProcess dispatches the results of the blocking wait. The poll result is
// run against the snapshot taken when the array was built: a watcher removed
// by an earlier callback in the same batch is skipped, but later entries of
// the batch still fire. A timeout dispatch is nested after each invocation.
func (l *Loop) fdProcess(n int) {
	if n <= 0 {
		return
	}
	l.backend.lock()
	if l.fds.processing {
		l.backend.unlock()
		return
	}
	l.fds.processing = true
	l.backend.unlock()

	for i := range l.pollFDs {
		if !l.running.Load() {
			break
		}
		revents := l.pollFDs[i].Revents
		if revents == 0 {
			continue
		}
		l.pollFDs[i].Revents = 0
		w := l.pollOwners[i]
		if w == nil {
			// Internal wake channel watcher.
			l.wakeup.drain(l)
			continue
		}
		if w.removeMe.Load() {
			continue
		}
		active := pollToFlags(revents)
		if active&FDNval != 0 {
			w.invalid = true
			l.backend.lock()
			l.pollDirty = true
			l.backend.unlock()
			l.log.Warning().Int("fd", w.fd).Log("fd watcher on closed descriptor")
		}
		if !l.safeFD(w, active) && w.removeMe.CompareAndSwap(false, true) {
			l.backend.lock()
			l.fds.pending++
			l.pollDirty = true
			l.backend.unlock()
		}
		l.timeoutProcess()
	}

	l.backend.lock()
	l.fds.processing = false
	l.fds.cleanup()
	l.backend.unlock()
}

func (l *Loop) safeFD(w *FDWatcher, active FDFlags) (keep bool) {
	defer l.recoverCallback("fd")
	return w.fn(w.fd, active)
}
