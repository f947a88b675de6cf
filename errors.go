package mainloop

import "errors"

// Standard errors.
var (
	// ErrAlreadyRunning is returned when Run is called on a loop that is
	// already running.
	ErrAlreadyRunning = errors.New("mainloop: loop is already running")

	// ErrWrongThread is returned when Run is called from a goroutine other
	// than the one that created the loop.
	ErrWrongThread = errors.New("mainloop: run must be called from the owning goroutine")

	// ErrShutdown is returned when operations are attempted on a loop that
	// has been shut down.
	ErrShutdown = errors.New("mainloop: loop has been shut down")

	// ErrAlreadyRemoved is returned when a handle is removed twice. The
	// remover is idempotent in the sense that the registry shrinks at most
	// once; the second call reports this error.
	ErrAlreadyRemoved = errors.New("mainloop: entry already removed")

	// ErrInvalidFlags is returned when AddFD or SetFDFlags is given flag
	// bits outside the allowed set.
	ErrInvalidFlags = errors.New("mainloop: invalid fd flags")

	// ErrInvalidFD is returned when AddFD is given a negative descriptor.
	ErrInvalidFD = errors.New("mainloop: invalid file descriptor")

	// ErrNilCallback is returned by registrars given a nil callback, and by
	// AddSource when the source is nil.
	ErrNilCallback = errors.New("mainloop: nil callback")

	// ErrInvalidPID is returned when AddChildWatch is given a non-positive
	// process id.
	ErrInvalidPID = errors.New("mainloop: invalid pid")

	// ErrAlreadyInited is returned by Init when the process-wide default
	// loop has already been initialised.
	ErrAlreadyInited = errors.New("mainloop: default loop already initialised")

	// ErrNotInited is returned by default-loop operations before Init.
	ErrNotInited = errors.New("mainloop: default loop not initialised")

	// ErrRefOverflow is returned by HijackRef when the refcount would exceed
	// its uint16 range, and by HijackUnref when the refcount is zero.
	ErrRefOverflow = errors.New("mainloop: hijack refcount out of range")
)
