//go:build linux || darwin

package mainloop

import (
	"os"
	"os/signal"
	"sync"

	"github.com/eapache/queue"
	"golang.org/x/sys/unix"
)

// signalQueueCap bounds the pending-signal FIFO. The forwarder drops and
// logs anything beyond it rather than blocking.
const signalQueueCap = 64

// signalState implements the store-in-forwarder / process-in-loop split:
// a dedicated goroutine moves signals from the runtime's delivery channel
// into a bounded FIFO and nudges the wake channel; the SIGNALS phase drains
// the FIFO on the loop goroutine, where quitting and child reaping are safe.
type signalState struct {
	ch        chan os.Signal
	pendingMu sync.Mutex
	pending   *queue.Queue

	// exited maps reaped child pids to their wait status. Loop goroutine
	// only.
	exited map[int]unix.WaitStatus

	done chan struct{}
}

// startSignalWatch installs the signal relays. The previous dispositions are
// restored by stopSignalWatch via signal.Stop.
func (l *Loop) startSignalWatch() {
	s := &signalState{
		ch:      make(chan os.Signal, signalQueueCap),
		pending: queue.New(),
		exited:  make(map[int]unix.WaitStatus),
		done:    make(chan struct{}),
	}
	l.signals = s
	signal.Notify(s.ch, unix.SIGINT, unix.SIGTERM, unix.SIGQUIT, unix.SIGCHLD)
	go l.forwardSignals(s)
}

func (l *Loop) stopSignalWatch() {
	s := l.signals
	if s == nil {
		return
	}
	signal.Stop(s.ch)
	close(s.ch)
	<-s.done
	l.signals = nil
}

// forwardSignals runs until the delivery channel closes.
func (l *Loop) forwardSignals(s *signalState) {
	defer close(s.done)
	for sig := range s.ch {
		s.pendingMu.Lock()
		if s.pending.Length() >= signalQueueCap {
			s.pendingMu.Unlock()
			l.log.Warning().Stringer("signal", sig.(unix.Signal)).Log("signal queue full, dropping")
			continue
		}
		s.pending.Add(sig)
		s.pendingMu.Unlock()
		l.wakeup.notify(l)
	}
}

// signalProcess is iteration phase 6: drain the pending FIFO as a batch.
// SIGINT, SIGTERM and SIGQUIT quit the loop; SIGCHLD reaps zombies and
// records their exit statuses for the child-watch phase.
func (l *Loop) signalProcess() {
	s := l.signals
	if s == nil {
		return
	}
	s.pendingMu.Lock()
	batch := make([]os.Signal, 0, s.pending.Length())
	for s.pending.Length() > 0 {
		batch = append(batch, s.pending.Remove().(os.Signal))
	}
	s.pendingMu.Unlock()

	for _, sig := range batch {
		switch sig {
		case unix.SIGINT, unix.SIGTERM, unix.SIGQUIT:
			l.log.Info().Stringer("signal", sig.(unix.Signal)).Log("termination signal, quitting")
			l.Quit()
		case unix.SIGCHLD:
			l.reapChildren(s)
		}
	}
}

// reapChildren collects every exited child without blocking. Statuses are
// recorded even for pids that have no watcher yet; a watch registered later
// observes the stored exit.
func (l *Loop) reapChildren(s *signalState) {
	for {
		var status unix.WaitStatus
		pid, err := unix.Wait4(-1, &status, unix.WNOHANG, nil)
		if err == unix.EINTR {
			continue
		}
		if err != nil || pid <= 0 {
			return
		}
		if status.Exited() || status.Signaled() {
			s.exited[pid] = status
		}
	}
}
