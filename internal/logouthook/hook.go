// Package logouthook lets the transport layer force a logout without
// importing the session store. The store registers its Logout once at
// startup; anything that detects an unrecoverable authorization failure
// calls Trigger.
package logouthook

import (
	"context"
	"sync/atomic"
)

type Func func(ctx context.Context)

type Hook struct {
	fn atomic.Pointer[Func]
}

func New() *Hook {
	return &Hook{}
}

// Register replaces the current handler. Passing nil unregisters.
func (h *Hook) Register(fn Func) {
	if fn == nil {
		h.fn.Store(nil)
		return
	}
	h.fn.Store(&fn)
}

// Trigger invokes the registered handler and reports whether one was set.
// Calling it before registration is a no-op.
func (h *Hook) Trigger(ctx context.Context) bool {
	fn := h.fn.Load()
	if fn == nil {
		return false
	}
	(*fn)(ctx)
	return true
}

// Default is the process-wide slot.
var Default = New()

func Register(fn Func) { Default.Register(fn) }

func Trigger(ctx context.Context) bool { return Default.Trigger(ctx) }
