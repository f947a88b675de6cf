package mainloop

import (
	"testing"
	"time"
)

func TestRemainingUntilClampsToZero(t *testing.T) {
	now := monotonicNow()
	if d := remainingUntil(now.Add(-time.Second), now); d != 0 {
		t.Errorf("past expiry = %v, want 0", d)
	}
	if d := remainingUntil(now, now); d != 0 {
		t.Errorf("exact expiry = %v, want 0", d)
	}
	if d := remainingUntil(now.Add(time.Second), now); d != time.Second {
		t.Errorf("future expiry = %v, want 1s", d)
	}
}

func TestMonotonicNowNonDecreasing(t *testing.T) {
	a := monotonicNow()
	b := monotonicNow()
	if b.Before(a) {
		t.Errorf("clock went backwards: %v then %v", a, b)
	}
}
