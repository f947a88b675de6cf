//go:build darwin

package mainloop

import (
	"time"

	"golang.org/x/sys/unix"
)

// pollWait suspends on poll for up to timeout; infinite blocks until an fd
// event, signal or wake token arrives. Sub-millisecond timeouts round up to
// one millisecond so a pending timer is not spun on. EINTR is reported as a
// benign zero result.
func pollWait(fds []unix.PollFd, timeout time.Duration, infinite bool) (int, error) {
	ms := -1
	if !infinite {
		ms = int(timeout.Milliseconds())
		if ms == 0 && timeout > 0 {
			ms = 1
		}
	}
	n, err := unix.Poll(fds, ms)
	if err == unix.EINTR {
		return 0, nil
	}
	return n, err
}
