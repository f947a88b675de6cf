package mainloop

import (
	"errors"
	"testing"
	"time"
)

func TestInsertSortedTieBreak(t *testing.T) {
	now := monotonicNow()
	t1 := &Timeout{expire: now}
	t2 := &Timeout{expire: now}
	t3 := &Timeout{expire: now.Add(time.Millisecond)}
	t0 := &Timeout{expire: now.Add(-time.Millisecond)}

	var entries []*Timeout
	entries = insertSorted(entries, t1)
	entries = insertSorted(entries, t3)
	entries = insertSorted(entries, t2)
	entries = insertSorted(entries, t0)

	want := []*Timeout{t0, t1, t2, t3}
	if len(entries) != len(want) {
		t.Fatalf("got %d entries, want %d", len(entries), len(want))
	}
	for i := range want {
		if entries[i] != want[i] {
			t.Errorf("entries[%d] wrong: equal expiries must keep insertion order", i)
		}
	}
}

func TestMergeSortedStability(t *testing.T) {
	now := monotonicNow()
	a1 := &Timeout{expire: now}
	a2 := &Timeout{expire: now.Add(2 * time.Millisecond)}
	b1 := &Timeout{expire: now} // same expiry as a1, added later
	b2 := &Timeout{expire: now.Add(time.Millisecond)}

	merged := mergeSorted([]*Timeout{a1, a2}, []*Timeout{b1, b2})
	want := []*Timeout{a1, b1, b2, a2}
	if len(merged) != len(want) {
		t.Fatalf("got %d entries, want %d", len(merged), len(want))
	}
	for i := range want {
		if merged[i] != want[i] {
			t.Errorf("merged[%d] wrong: pre-existing entries must win expiry ties", i)
		}
	}
}

func TestAddTimeoutValidation(t *testing.T) {
	l, err := New(WithSignalHandling(false))
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	defer l.Shutdown()

	if _, err := l.AddTimeout(time.Millisecond, nil); !errors.Is(err, ErrNilCallback) {
		t.Errorf("AddTimeout(nil) = %v, want ErrNilCallback", err)
	}
}

// TestNegativePeriodFiresImmediately verifies a non-positive period is
// clamped to zero and fires on the first dispatch.
func TestNegativePeriodFiresImmediately(t *testing.T) {
	l, err := New(WithSignalHandling(false))
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	defer l.Shutdown()

	start := time.Now()
	var elapsed time.Duration
	if _, err := l.AddTimeout(-time.Second, func() bool {
		elapsed = time.Since(start)
		l.Quit()
		return false
	}); err != nil {
		t.Fatalf("AddTimeout failed: %v", err)
	}
	if err := l.Run(); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if elapsed > 50*time.Millisecond {
		t.Errorf("negative-period timeout fired after %v, want immediately", elapsed)
	}
}

func TestRemoveTimeoutTwice(t *testing.T) {
	l, err := New(WithSignalHandling(false))
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	defer l.Shutdown()

	tm, err := l.AddTimeout(time.Hour, func() bool { return false })
	if err != nil {
		t.Fatalf("AddTimeout failed: %v", err)
	}
	if err := l.RemoveTimeout(tm); err != nil {
		t.Fatalf("first RemoveTimeout = %v, want nil", err)
	}
	if err := l.RemoveTimeout(tm); !errors.Is(err, ErrAlreadyRemoved) {
		t.Errorf("second RemoveTimeout = %v, want ErrAlreadyRemoved", err)
	}
}

// TestSelfRemovalBeatsKeepReturn verifies a callback that removes its own
// timeout is not re-armed even if it returns the keep value.
func TestSelfRemovalBeatsKeepReturn(t *testing.T) {
	l, err := New(WithSignalHandling(false))
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	defer l.Shutdown()

	var (
		fires int
		h     *Timeout
	)
	h, err = l.AddTimeout(10*time.Millisecond, func() bool {
		fires++
		if err := l.RemoveTimeout(h); err != nil {
			t.Errorf("self RemoveTimeout failed: %v", err)
		}
		return true
	})
	if err != nil {
		t.Fatalf("AddTimeout failed: %v", err)
	}
	if _, err := l.AddTimeout(60*time.Millisecond, func() bool {
		l.Quit()
		return false
	}); err != nil {
		t.Fatalf("AddTimeout failed: %v", err)
	}

	if err := l.Run(); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if fires != 1 {
		t.Errorf("self-removed timeout fired %d times, want 1", fires)
	}
}

// TestTimeoutAddedFromCallback verifies a timeout registered inside a
// timeout callback fires in a later dispatch, after the current walk.
func TestTimeoutAddedFromCallback(t *testing.T) {
	l, err := New(WithSignalHandling(false))
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	defer l.Shutdown()

	var order []int
	if _, err := l.AddTimeout(5*time.Millisecond, func() bool {
		order = append(order, 1)
		if _, err := l.AddTimeout(0, func() bool {
			order = append(order, 2)
			l.Quit()
			return false
		}); err != nil {
			t.Errorf("nested AddTimeout failed: %v", err)
		}
		return false
	}); err != nil {
		t.Fatalf("AddTimeout failed: %v", err)
	}

	if err := l.Run(); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(order) != 2 || order[0] != 1 || order[1] != 2 {
		t.Errorf("fire order = %v, want [1 2]", order)
	}
}

// TestRemoveOtherTimeoutDuringDispatch verifies a callback removing a later
// entry of the same batch prevents that entry from firing.
func TestRemoveOtherTimeoutDuringDispatch(t *testing.T) {
	l, err := New(WithSignalHandling(false))
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	defer l.Shutdown()

	var victimFired bool
	victim, err := l.AddTimeout(time.Millisecond, func() bool {
		victimFired = true
		return false
	})
	if err != nil {
		t.Fatalf("AddTimeout failed: %v", err)
	}
	// Same expiry ordering: inserted first, so the remover must fire first.
	var removed bool
	if _, err := l.AddTimeout(0, func() bool {
		if err := l.RemoveTimeout(victim); err != nil {
			t.Errorf("RemoveTimeout failed: %v", err)
		}
		removed = true
		return false
	}); err != nil {
		t.Fatalf("AddTimeout failed: %v", err)
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
	if !removed {
		t.Fatal("removing callback never ran")
	}
	if victimFired {
		t.Error("removed timeout fired anyway")
	}
}
