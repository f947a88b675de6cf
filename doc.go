// Package mainloop provides a single-threaded cooperative scheduler that
// multiplexes timeouts, idlers, file-descriptor watchers, user-defined
// pollable sources, and (on POSIX) child-process watchers.
//
// # Architecture
//
// The loop is built around a [Loop] core that walks a fixed sequence of
// dispatch phases per iteration: source prepare, wait computation, a blocking
// poll, timeout dispatch, fd dispatch, signal draining, child-watch dispatch,
// idler dispatch, and source check/dispatch. Timeout processing is nested
// after every fd, idler and child callback so that long chains of lower
// priority work cannot starve overdue timers.
//
// Each kind of schedulable work lives in its own registry. Deletion is always
// deferred: callbacks may remove any entry, including themselves, and the
// entry is unlinked only after the phase that marked it has unwound.
//
// # Platform Support
//
// The blocking wait is implemented with platform-native primitives:
//   - Linux: ppoll, with an eventfd wake channel
//   - Darwin/BSD: poll, with a pipe wake channel
//
// # Thread Safety
//
// Two profiles are available. [New] builds a loop whose registrars must be
// called from the owning goroutine. [NewThreaded] builds a loop whose
// registrar and remover methods are safe to call from any goroutine; calls
// from auxiliary goroutines nudge a blocked loop awake through the wake
// channel. In both profiles all callbacks run on the goroutine that called
// [Loop.Run], which is pinned to its OS thread.
//
// # Usage
//
//	loop, err := mainloop.New()
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer loop.Shutdown()
//
//	loop.AddTimeout(100*time.Millisecond, func() bool {
//		fmt.Println("tick")
//		loop.Quit()
//		return false
//	})
//
//	if err := loop.Run(); err != nil {
//		log.Fatal(err)
//	}
//
// A process-wide default loop is available through the package-level [Init],
// [Run], [Quit] and [Shutdown] functions and their registrar counterparts.
package mainloop
