package mainloop

import (
	"sync"
	"time"
)

// The process-wide default loop. Embedded programs typically drive a single
// loop for their whole lifetime; these wrappers save them from threading a
// *Loop through every component. Init chooses the threaded profile so
// auxiliary goroutines may enqueue work.
var defaultLoop struct {
	mu   sync.Mutex
	loop *Loop
}

// Init initialises the process-wide default loop. A second call before
// Shutdown reports ErrAlreadyInited.
func Init(opts ...LoopOption) error {
	defaultLoop.mu.Lock()
	defer defaultLoop.mu.Unlock()
	if defaultLoop.loop != nil {
		return ErrAlreadyInited
	}
	l, err := NewThreaded(opts...)
	if err != nil {
		return err
	}
	defaultLoop.loop = l
	return nil
}

// Shutdown tears down the default loop. A later Init builds a fresh one.
func Shutdown() {
	defaultLoop.mu.Lock()
	l := defaultLoop.loop
	defaultLoop.loop = nil
	defaultLoop.mu.Unlock()
	if l != nil {
		l.Shutdown()
	}
}

func getDefault() (*Loop, error) {
	defaultLoop.mu.Lock()
	defer defaultLoop.mu.Unlock()
	if defaultLoop.loop == nil {
		return nil, ErrNotInited
	}
	return defaultLoop.loop, nil
}

// Run runs the default loop. Must be called on the goroutine that called
// Init.
func Run() error {
	l, err := getDefault()
	if err != nil {
		return err
	}
	return l.Run()
}

// Quit requests that the default loop's Run return.
func Quit() error {
	l, err := getDefault()
	if err != nil {
		return err
	}
	l.Quit()
	return nil
}

// AddTimeout registers a timeout with the default loop.
func AddTimeout(period time.Duration, fn TimeoutFunc) (*Timeout, error) {
	l, err := getDefault()
	if err != nil {
		return nil, err
	}
	return l.AddTimeout(period, fn)
}

// RemoveTimeout removes a timeout from the default loop.
func RemoveTimeout(t *Timeout) error {
	l, err := getDefault()
	if err != nil {
		return err
	}
	return l.RemoveTimeout(t)
}

// AddIdler registers an idler with the default loop.
func AddIdler(fn IdleFunc) (*Idler, error) {
	l, err := getDefault()
	if err != nil {
		return nil, err
	}
	return l.AddIdler(fn)
}

// RemoveIdler removes an idler from the default loop.
func RemoveIdler(e *Idler) error {
	l, err := getDefault()
	if err != nil {
		return err
	}
	return l.RemoveIdler(e)
}

// AddFD registers an fd watcher with the default loop.
func AddFD(fd int, flags FDFlags, fn FDFunc) (*FDWatcher, error) {
	l, err := getDefault()
	if err != nil {
		return nil, err
	}
	return l.AddFD(fd, flags, fn)
}

// RemoveFD removes an fd watcher from the default loop.
func RemoveFD(w *FDWatcher) error {
	l, err := getDefault()
	if err != nil {
		return err
	}
	return l.RemoveFD(w)
}

// SetFDFlags replaces the interest set of a default-loop fd watcher.
func SetFDFlags(w *FDWatcher, flags FDFlags) error {
	l, err := getDefault()
	if err != nil {
		return err
	}
	return l.SetFDFlags(w, flags)
}

// GetFDFlags returns the interest set of a default-loop fd watcher.
func GetFDFlags(w *FDWatcher) (FDFlags, error) {
	l, err := getDefault()
	if err != nil {
		return 0, err
	}
	return l.GetFDFlags(w)
}

// AddSource registers a source with the default loop.
func AddSource(src Source) (*SourceHandle, error) {
	l, err := getDefault()
	if err != nil {
		return nil, err
	}
	return l.AddSource(src)
}

// RemoveSource removes a source from the default loop.
func RemoveSource(h *SourceHandle) error {
	l, err := getDefault()
	if err != nil {
		return err
	}
	return l.RemoveSource(h)
}
