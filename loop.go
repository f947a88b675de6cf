package mainloop

import (
	"runtime"
	"sync/atomic"
	"time"

	"github.com/joeycumines/logiface"
	"github.com/petermattis/goid"
	"golang.org/x/sys/unix"
)

// Loop is a cooperative single-threaded scheduler. All callbacks run on the
// goroutine that calls Run; see the package documentation for the dispatch
// phase order.
type Loop struct {
	// Prevent copying
	_ [0]func()

	backend backend

	// State machine, readable from any goroutine.
	state loopState

	// running is the cooperative quit flag: phases check it per entry and
	// unwind when it drops.
	running atomic.Bool

	// Registries
	timeouts timeoutRegistry
	idlers   idlerRegistry
	fds      fdRegistry
	children childRegistry
	sources  sourceRegistry

	// Flat mirror of the live fd watcher set, plus the internal wake
	// watcher. Rebuilt lazily when pollDirty. Loop goroutine only, except
	// for the pollDirty flag which is guarded by the registry lock.
	pollFDs    []unix.PollFd
	pollOwners []*FDWatcher
	pollDirty  bool

	wakeup  *wakeChannel
	signals *signalState

	hijackRefs    uint16
	hijackAdapter HijackAdapter

	log *logiface.Logger[logiface.Event]

	// Goroutine identity: the creator owns Run; the id of the goroutine
	// currently inside Run steers registrar wake decisions.
	ownerGID int64
	runGID   atomic.Int64
}

// New creates a loop for single-goroutine use: registrars and removers must
// be called from the owning goroutine (the one calling New and Run),
// typically from within callbacks.
func New(opts ...LoopOption) (*Loop, error) {
	return newLoop(&singleBackend{}, opts)
}

// NewThreaded creates a loop whose registrar and remover methods are safe to
// call from any goroutine. Calls from auxiliary goroutines wake a blocked
// loop through the wake channel so the next wait is recomputed.
func NewThreaded(opts ...LoopOption) (*Loop, error) {
	return newLoop(&threadedBackend{}, opts)
}

func newLoop(b backend, opts []LoopOption) (*Loop, error) {
	cfg, err := resolveLoopOptions(opts)
	if err != nil {
		return nil, err
	}

	l := &Loop{
		backend:       b,
		log:           cfg.logger,
		hijackAdapter: cfg.hijackAdapter,
		ownerGID:      goid.Get(),
		pollDirty:     true,
	}

	l.wakeup, err = newWakeChannel()
	if err != nil {
		return nil, err
	}

	if cfg.signalHandling {
		l.startSignalWatch()
	}

	return l, nil
}

// usable gates registrars after shutdown.
func (l *Loop) usable() error {
	if l.state.Load() == StateShutdown {
		return ErrShutdown
	}
	return nil
}

// Run dispatches iterations until Quit is observed. It must be called on the
// goroutine that created the loop, which is pinned to its OS thread for the
// duration. Run may be called again after it returns.
func (l *Loop) Run() error {
	if goid.Get() != l.ownerGID {
		return ErrWrongThread
	}
	if !l.state.TryTransition(StateIdle, StateRunning) {
		if l.state.Load() == StateShutdown {
			return ErrShutdown
		}
		return ErrAlreadyRunning
	}

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	l.runGID.Store(goid.Get())
	defer l.runGID.Store(0)

	l.running.Store(true)
	for l.running.Load() {
		l.iterate()
	}

	// Either transition may be live depending on where Quit landed.
	if !l.state.TryTransition(StateRunning, StateIdle) {
		l.state.TryTransition(StateSleeping, StateIdle)
	}
	return nil
}

// Quit requests that Run return. Safe from any goroutine and from signal
// forwarding; in-flight phases observe the change at their next per-entry
// check and exit cleanly.
func (l *Loop) Quit() {
	l.running.Store(false)
	l.wakeup.notify(l)
}

// Shutdown releases everything the loop owns: it stops signal forwarding,
// destroys all remaining entries (running Dispose for sources), and closes
// the wake channel. The loop must not be running. Shutdown is idempotent;
// every subsequent operation reports ErrShutdown.
func (l *Loop) Shutdown() {
	prev := l.state.Load()
	if prev == StateShutdown {
		return
	}
	l.state.Store(StateShutdown)
	l.running.Store(false)

	l.stopSignalWatch()

	l.backend.lock()
	doomed := make([]*SourceHandle, 0, len(l.sources.entries))
	for _, h := range l.sources.entries {
		if h.removeMe.CompareAndSwap(false, true) {
			doomed = append(doomed, h)
		}
	}
	l.sources.entries = nil
	l.sources.pending = 0
	l.timeouts.entries = nil
	l.timeouts.pending = 0
	l.idlers.entries = nil
	l.idlers.pending = 0
	l.fds.entries = nil
	l.fds.pending = 0
	l.children.entries = nil
	l.children.pending = 0
	l.pollFDs = nil
	l.pollOwners = nil
	l.backend.unlock()

	for _, h := range doomed {
		l.disposeSource(h)
	}

	l.wakeup.close()
}

// State returns the current loop state.
func (l *Loop) State() LoopState {
	return l.state.Load()
}

// iterate runs one full pass of the dispatch phases.
func (l *Loop) iterate() {
	anyReady := l.sourcePrepare()

	wait, infinite := l.computeWait(anyReady)

	n := l.block(wait, infinite)

	l.timeoutProcess()

	if l.running.Load() {
		l.fdProcess(n)
	}
	if l.running.Load() {
		l.signalProcess()
	}
	if l.running.Load() {
		l.childProcess()
	}
	if l.running.Load() {
		l.idlerProcess()
	}
	if l.running.Load() {
		l.sourceDispatch()
	}
}

// computeWait selects the next wakeup: zero when an idler or a prepared
// source is ready, otherwise the earliest of the pending timeouts and the
// sources' reported bounds, otherwise infinite. The sources' NextTimeout
// callbacks run after the registry lock is released.
func (l *Loop) computeWait(anyReady bool) (time.Duration, bool) {
	l.backend.lock()
	if anyReady || l.idlers.active() {
		l.backend.unlock()
		return 0, false
	}

	var (
		wait     time.Duration
		infinite = true
	)
	if t := l.timeouts.earliest(); t != nil {
		wait = remainingUntil(t.expire, monotonicNow())
		infinite = false
	}
	timeouters := l.sources.timeouters()
	l.backend.unlock()

	if d, ok := l.sourceNextTimeout(timeouters); ok && (infinite || d < wait) {
		wait = d
		infinite = false
	}
	return wait, infinite
}

// block is iteration phase 3: suspend on the platform primitive, observing
// the fd interest flags, until a timer deadline, fd event, signal or wake
// token. Returns the number of fds with active conditions.
func (l *Loop) block(wait time.Duration, infinite bool) int {
	l.backend.lock()
	if l.pollDirty {
		l.rebuildPollArray()
	}
	fds := l.pollFDs
	l.backend.unlock()

	if !l.running.Load() {
		return 0
	}

	if !l.state.TryTransition(StateRunning, StateSleeping) {
		return 0
	}
	n, err := pollWait(fds, wait, infinite)
	l.state.TryTransition(StateSleeping, StateRunning)

	if err != nil {
		// Registry state is intact; skip fd dispatch this iteration.
		l.log.Err().Err(err).Log("blocking wait failed")
		return 0
	}
	return n
}

// wakeFromRegistrar nudges a blocked loop after a registry mutation, when
// the mutation did not come from the loop goroutine itself. The single
// goroutine profile makes this a no-op.
func (l *Loop) wakeFromRegistrar() {
	if !l.backend.threadSafe() {
		return
	}
	if goid.Get() == l.runGID.Load() {
		return
	}
	l.wakeup.notify(l)
}

// recoverCallback is the deferred panic barrier around user callbacks: the
// dispatcher never propagates from them, it logs and carries on.
func (l *Loop) recoverCallback(kind string) {
	if r := recover(); r != nil {
		l.log.Err().Str("kind", kind).Any("panic", r).Log("callback panicked")
	}
}
