package mainloop

import (
	"sync/atomic"

	"golang.org/x/sys/unix"
)

// wakeChannel lets auxiliary goroutines (and the signal forwarder) nudge the
// loop out of its blocking wait. The read end participates in the poll array
// as an internal watcher; notify is single-shot between drains, so at most
// one token is in flight regardless of how many goroutines call it.
type wakeChannel struct {
	readFd       int
	writeFd      int
	haveNotified atomic.Uint32
}

func newWakeChannel() (*wakeChannel, error) {
	rfd, wfd, err := createWakeFd()
	if err != nil {
		return nil, err
	}
	return &wakeChannel{readFd: rfd, writeFd: wfd}, nil
}

func (w *wakeChannel) readFD() int {
	return w.readFd
}

// notify wakes the loop. Safe from any goroutine. Only the 0→1 transition
// of haveNotified writes a token.
func (w *wakeChannel) notify(l *Loop) {
	if !w.haveNotified.CompareAndSwap(0, 1) {
		return
	}
	// Eventfd requires an 8 byte counter increment; the pipe variant just
	// sees it as an opaque token.
	buf := [8]byte{1}
	if _, err := unix.Write(w.writeFd, buf[:]); err != nil {
		// Expected while the channel is being torn down (EBADF, EPIPE);
		// reset so a later notify can retry.
		w.haveNotified.Store(0)
		l.log.Debug().Err(err).Log("wake channel write failed")
	}
}

// drain consumes pending tokens, then re-arms notify. The flag stays set
// for the whole read, so no token can be written while the channel is being
// emptied; clearing it only afterwards cannot strand a wakeup. An EINTR or
// failed read leaves at most one stale token, costing a spurious wakeup.
func (w *wakeChannel) drain(l *Loop) {
	var buf [8]byte
	for {
		_, err := unix.Read(w.readFd, buf[:])
		if err == nil {
			continue
		}
		if err != unix.EAGAIN && err != unix.EWOULDBLOCK && err != unix.EINTR {
			l.log.Warning().Err(err).Log("wake channel read failed")
		}
		break
	}
	w.haveNotified.Store(0)
}

func (w *wakeChannel) close() {
	_ = unix.Close(w.readFd)
	if w.writeFd != w.readFd {
		_ = unix.Close(w.writeFd)
	}
}
