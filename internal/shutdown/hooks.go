package shutdown

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// DefaultTimeout bounds the total time spent running hooks.
const DefaultTimeout = 5 * time.Second

type hook struct {
	name string
	fn   func(context.Context) error
}

// Hooks collects cleanup work to be done before the process exits: flushing
// telemetry, closing caches. Hooks run in reverse order of registration, so
// resources are released before the things they depend on.
type Hooks struct {
	hooks   []hook
	timeout time.Duration
}

// New returns an empty set of hooks that will be given at most timeout to
// complete. A zero timeout uses DefaultTimeout.
func New(timeout time.Duration) *Hooks {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Hooks{timeout: timeout}
}

// AddContext registers a hook that receives the shutdown context. Nil hooks
// are ignored with a warning.
func (h *Hooks) AddContext(name string, fn func(context.Context) error) {
	if fn == nil {
		log.Warn().Str("hook", name).Msg("attempted to add nil shutdown hook; ignoring")
		return
	}

	log.Debug().Str("hook", name).Msg("adding shutdown hook")
	h.hooks = append(h.hooks, hook{name: name, fn: fn})
}

// Add registers a hook that does not need the shutdown context.
func (h *Hooks) Add(name string, fn func() error) {
	if fn == nil {
		log.Warn().Str("hook", name).Msg("attempted to add nil shutdown hook; ignoring")
		return
	}

	h.AddContext(name, func(context.Context) error { return fn() })
}

// AddClose registers any resource with a Close() method.
func (h *Hooks) AddClose(name string, closer interface{ Close() }) {
	if closer == nil {
		log.Warn().Str("hook", name).Msg("attempted to add nil shutdown hook; ignoring")
		return
	}

	h.AddContext(name, func(context.Context) error { closer.Close(); return nil })
}

// Execute runs every hook, most recently added first, and returns the
// combined failures. A failing hook does not stop the others.
func (h *Hooks) Execute(ctx context.Context) error {
	timeout := h.timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	l := log.Ctx(ctx)

	var errs []error
	for i := len(h.hooks) - 1; i >= 0; i-- {
		hk := h.hooks[i]
		hookLog := l.With().Str("hook", hk.name).Logger()

		hookLog.Debug().Msg("shutdown started")
		if err := hk.fn(ctx); err != nil {
			hookLog.Warn().Err(err).Msg("shutdown failed")
			errs = append(errs, fmt.Errorf("%s: %w", hk.name, err))
		} else {
			hookLog.Debug().Msg("shutdown complete")
		}
	}

	return errors.Join(errs...)
}

// Len reports the number of registered hooks.
func (h *Hooks) Len() int {
	return len(h.hooks)
}
