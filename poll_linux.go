//go:build linux

package mainloop

import (
	"time"

	"golang.org/x/sys/unix"
)

// pollWait suspends on ppoll for up to timeout; infinite blocks until an fd
// event, signal or wake token arrives. EINTR is reported as a benign zero
// result.
func pollWait(fds []unix.PollFd, timeout time.Duration, infinite bool) (int, error) {
	var ts *unix.Timespec
	if !infinite {
		t := unix.NsecToTimespec(timeout.Nanoseconds())
		ts = &t
	}
	n, err := unix.Ppoll(fds, ts, nil)
	if err == unix.EINTR {
		return 0, nil
	}
	return n, err
}
