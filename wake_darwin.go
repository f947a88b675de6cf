//go:build darwin

package mainloop

import (
	"syscall"
)

// createWakeFd creates a self-pipe for wake-up notifications (Darwin).
// Returns the read end and the write end of the pipe, both non-blocking and
// close-on-exec.
func createWakeFd() (int, int, error) {
	var fds [2]int
	if err := syscall.Pipe(fds[:]); err != nil {
		return 0, 0, err
	}

	cleanup := func() {
		syscall.Close(fds[0])
		syscall.Close(fds[1])
	}

	syscall.CloseOnExec(fds[0])
	syscall.CloseOnExec(fds[1])

	if err := syscall.SetNonblock(fds[0], true); err != nil {
		cleanup()
		return 0, 0, err
	}
	if err := syscall.SetNonblock(fds[1], true); err != nil {
		cleanup()
		return 0, 0, err
	}

	return fds[0], fds[1], nil
}
