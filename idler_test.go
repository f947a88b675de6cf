package mainloop

import (
	"errors"
	"testing"
	"time"
)

func TestAddIdlerValidation(t *testing.T) {
	l, err := New(WithSignalHandling(false))
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	defer l.Shutdown()

	if _, err := l.AddIdler(nil); !errors.Is(err, ErrNilCallback) {
		t.Errorf("AddIdler(nil) = %v, want ErrNilCallback", err)
	}
}

func TestRemoveIdlerTwice(t *testing.T) {
	l, err := New(WithSignalHandling(false))
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	defer l.Shutdown()

	id, err := l.AddIdler(func() bool { return true })
	if err != nil {
		t.Fatalf("AddIdler failed: %v", err)
	}
	if err := l.RemoveIdler(id); err != nil {
		t.Fatalf("first RemoveIdler = %v, want nil", err)
	}
	if err := l.RemoveIdler(id); !errors.Is(err, ErrAlreadyRemoved) {
		t.Errorf("second RemoveIdler = %v, want ErrAlreadyRemoved", err)
	}
}

// TestIdlerSelfDropRunsOnce verifies an idler returning the drop value is
// removed after a single invocation.
func TestIdlerSelfDropRunsOnce(t *testing.T) {
	l, err := New(WithSignalHandling(false))
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	defer l.Shutdown()

	var runs int
	if _, err := l.AddIdler(func() bool {
		runs++
		return false
	}); err != nil {
		t.Fatalf("AddIdler failed: %v", err)
	}
	if _, err := l.AddTimeout(30*time.Millisecond, func() bool {
		l.Quit()
		return false
	}); err != nil {
		t.Fatalf("AddTimeout failed: %v", err)
	}

	if err := l.Run(); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if runs != 1 {
		t.Errorf("idler ran %d times, want 1", runs)
	}
}

// TestIdlerAddedDuringDispatchDefers verifies an idler registered from an
// idler callback only fires in a later iteration, never in the dispatch
// that created it.
func TestIdlerAddedDuringDispatchDefers(t *testing.T) {
	l, err := New(WithSignalHandling(false))
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	defer l.Shutdown()

	var order []string
	if _, err := l.AddIdler(func() bool {
		order = append(order, "outer")
		if _, err := l.AddIdler(func() bool {
			order = append(order, "inner")
			l.Quit()
			return false
		}); err != nil {
			t.Errorf("nested AddIdler failed: %v", err)
		}
		return false
	}); err != nil {
		t.Fatalf("AddIdler failed: %v", err)
	}

	if err := l.Run(); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(order) != 2 || order[0] != "outer" || order[1] != "inner" {
		t.Errorf("run order = %v, want [outer inner]", order)
	}
}

// TestIdlerRemovedDuringDispatchSkipped verifies a callback removing a later
// idler of the same batch prevents it from firing.
func TestIdlerRemovedDuringDispatchSkipped(t *testing.T) {
	l, err := New(WithSignalHandling(false))
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	defer l.Shutdown()

	var victimRan bool
	var victim *Idler
	if _, err := l.AddIdler(func() bool {
		if err := l.RemoveIdler(victim); err != nil {
			t.Errorf("RemoveIdler failed: %v", err)
		}
		return false
	}); err != nil {
		t.Fatalf("AddIdler failed: %v", err)
	}
	victim, err = l.AddIdler(func() bool {
		victimRan = true
		return false
	})
	if err != nil {
		t.Fatalf("AddIdler failed: %v", err)
	}
	if _, err := l.AddTimeout(30*time.Millisecond, func() bool {
		l.Quit()
		return false
	}); err != nil {
		t.Fatalf("AddTimeout failed: %v", err)
	}

	if err := l.Run(); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if victimRan {
		t.Error("removed idler ran anyway")
	}
}

// TestIdlerKeepsLoopBusy verifies a live idler forces zero-wait iterations
// rather than blocking.
func TestIdlerKeepsLoopBusy(t *testing.T) {
	l, err := New(WithSignalHandling(false))
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	defer l.Shutdown()

	var runs int
	if _, err := l.AddIdler(func() bool {
		runs++
		if runs >= 100 {
			l.Quit()
			return false
		}
		return true
	}); err != nil {
		t.Fatalf("AddIdler failed: %v", err)
	}

	start := time.Now()
	if err := l.Run(); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if runs < 100 {
		t.Errorf("idler ran %d times, want 100", runs)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("100 idle iterations took %v, the loop is blocking between them", elapsed)
	}
}
