// Package loop provides the event-loop abstraction consumed by the egress
// sender: a single-threaded callback loop plus the two handle types built on
// it.
//
// # Threading model
//
// One goroutine calls Loop.Run and becomes the loop goroutine. Every handle
// callback — wakeup callbacks, send completions, close completions — executes
// there, serialized. Producers interact with the loop only through the
// non-blocking, cross-thread entry points: Loop.Submit, AsyncHandle.Send and
// the TrySendto fast-path helper.
//
// # Handles
//
//   - AsyncHandle: a coalescing cross-thread wakeup. Any number of Send calls
//     before the callback runs produce a single callback invocation.
//
//   - UDPHandle: a raw-descriptor UDP socket. Bind performs the IPv6-only
//     bind with dual-stack fallback, optional broadcast, and the getsockname
//     readback; AsyncSend and AsyncClose complete via callbacks on the loop
//     goroutine.
//
// Both handle types close asynchronously: AsyncClose schedules the teardown
// on the loop and reports completion through its callback, after any work
// already submitted.
//
// The raw socket layer uses golang.org/x/sys/unix and is only available on
// unix platforms; elsewhere the operations fail with ErrUnsupportedPlatform.
package loop
