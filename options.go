package mainloop

import (
	"github.com/joeycumines/logiface"
)

// loopOptions holds configuration options for Loop creation.
type loopOptions struct {
	logger         *logiface.Logger[logiface.Event]
	hijackAdapter  HijackAdapter
	signalHandling bool
}

// LoopOption configures a Loop instance.
type LoopOption interface {
	applyLoop(*loopOptions) error
}

// loopOptionImpl implements LoopOption.
type loopOptionImpl struct {
	applyLoopFunc func(*loopOptions) error
}

func (l *loopOptionImpl) applyLoop(opts *loopOptions) error {
	return l.applyLoopFunc(opts)
}

// WithLogger attaches a structured logger to the loop. A nil logger (the
// default) disables logging.
func WithLogger(logger *logiface.Logger[logiface.Event]) LoopOption {
	return &loopOptionImpl{func(opts *loopOptions) error {
		opts.logger = logger
		return nil
	}}
}

// WithSignalHandling controls whether the loop relays SIGINT, SIGTERM,
// SIGQUIT (quitting the loop) and SIGCHLD (reaping children for child
// watchers). Enabled by default; disable it when the embedding process owns
// signal handling, at the cost of AddChildWatch never firing.
func WithSignalHandling(enabled bool) LoopOption {
	return &loopOptionImpl{func(opts *loopOptions) error {
		opts.signalHandling = enabled
		return nil
	}}
}

// WithHijackAdapter sets the integration installed by the first HijackRef
// and released by the last HijackUnref.
func WithHijackAdapter(adapter HijackAdapter) LoopOption {
	return &loopOptionImpl{func(opts *loopOptions) error {
		opts.hijackAdapter = adapter
		return nil
	}}
}

// resolveLoopOptions applies LoopOption instances to loopOptions.
func resolveLoopOptions(opts []LoopOption) (*loopOptions, error) {
	cfg := &loopOptions{
		signalHandling: true, // default
	}
	for _, opt := range opts {
		if opt == nil {
			continue // Skip nil options gracefully
		}
		if err := opt.applyLoop(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}
