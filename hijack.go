package mainloop

import "math"

// HijackAdapter integrates the loop into a foreign event system, for
// embedding wrappers (language bindings, UI toolkits) that want to adopt
// the loop rather than call Run themselves. Install runs on the 0→1
// refcount transition, Release on the 1→0 transition.
type HijackAdapter interface {
	Install(l *Loop) error
	Release(l *Loop)
}

// HijackRef increments the hijack refcount, installing the configured
// adapter on the first reference. The count saturating at its uint16 range
// reports ErrRefOverflow; an adapter Install failure is propagated with the
// count unchanged.
func (l *Loop) HijackRef() error {
	if err := l.usable(); err != nil {
		return err
	}
	l.backend.lock()
	defer l.backend.unlock()
	if l.hijackRefs == math.MaxUint16 {
		return ErrRefOverflow
	}
	if l.hijackRefs == 0 && l.hijackAdapter != nil {
		if err := l.hijackAdapter.Install(l); err != nil {
			return err
		}
	}
	l.hijackRefs++
	return nil
}

// HijackUnref decrements the hijack refcount, releasing the adapter when it
// reaches zero. Unreferencing at zero reports ErrRefOverflow.
func (l *Loop) HijackUnref() error {
	if err := l.usable(); err != nil {
		return err
	}
	l.backend.lock()
	defer l.backend.unlock()
	if l.hijackRefs == 0 {
		return ErrRefOverflow
	}
	l.hijackRefs--
	if l.hijackRefs == 0 && l.hijackAdapter != nil {
		l.hijackAdapter.Release(l)
	}
	return nil
}
