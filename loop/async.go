package loop

import (
	"errors"
	"sync/atomic"
)

// ErrNilCallback indicates a handle was created without a callback.
var ErrNilCallback = errors.New("loop: nil callback")

// AsyncHandle is a cross-thread coalescing wakeup primitive, the loop-side
// half of a producer→consumer notification. Send may be called from any
// goroutine and never blocks; the registered callback runs on the loop
// goroutine. Multiple Sends before the callback has run collapse into a
// single invocation.
type AsyncHandle struct {
	loop *Loop
	cb   func()

	pending atomic.Bool
	closing atomic.Bool
}

// NewAsync registers a wakeup handle with the given callback.
func NewAsync(l *Loop, cb func()) (*AsyncHandle, error) {
	if cb == nil {
		return nil, ErrNilCallback
	}
	return &AsyncHandle{loop: l, cb: cb}, nil
}

// Send signals the handle. Safe from any goroutine; never blocks. Signals
// arriving while a previous one is still pending are coalesced. Signalling a
// closing handle is a no-op.
func (h *AsyncHandle) Send() {
	if h.closing.Load() {
		return
	}
	if !h.pending.CompareAndSwap(false, true) {
		return
	}

	h.loop.Submit(func() {
		// Clear before invoking so a Send issued from inside the callback
		// (or racing with it) schedules a fresh wake.
		h.pending.Store(false)

		if h.closing.Load() {
			return
		}
		h.cb()
	})
}

// AsyncClose requests asynchronous close of the handle. The completion
// callback, if non-nil, runs on the loop goroutine after any wakeup already
// in flight. Only the first call has any effect.
func (h *AsyncHandle) AsyncClose(cb func()) {
	if !h.closing.CompareAndSwap(false, true) {
		return
	}
	h.loop.Submit(func() {
		if cb != nil {
			cb()
		}
	})
}

// IsClosing reports whether AsyncClose has been requested.
func (h *AsyncHandle) IsClosing() bool {
	return h.closing.Load()
}
