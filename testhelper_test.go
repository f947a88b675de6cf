package mainloop

import (
	"testing"

	"golang.org/x/sys/unix"
)

// makePipe returns the read and write ends of a pipe, closed via t.Cleanup.
func makePipe(t *testing.T) (r, w int) {
	t.Helper()
	var fds [2]int
	if err := unix.Pipe(fds[:]); err != nil {
		t.Fatalf("pipe: %v", err)
	}
	t.Cleanup(func() {
		_ = unix.Close(fds[0])
		_ = unix.Close(fds[1])
	})
	return fds[0], fds[1]
}
