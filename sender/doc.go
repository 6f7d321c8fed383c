// Package sender implements the asynchronous UDP egress endpoint of the
// netio pipeline.
//
// A UDPSenderPort accepts outbound packets from arbitrary producer
// goroutines and delivers them over a UDP socket owned by a single-threaded
// event loop. Producers never block on network I/O: a packet is either sent
// immediately through the optional non-blocking fast path, or pushed onto a
// wait-free queue and drained by the loop goroutine.
//
// # Write path
//
// Write increments the pending count and, when this packet is the only one
// in flight and the fast path is enabled, attempts one non-blocking sendto
// on the producer's goroutine. The pending==0 gate keeps the fast path from
// overtaking packets already queued, preserving per-producer submission
// order. On fallback the packet is queued and the loop woken through a
// coalescing signal.
//
// # Close protocol
//
// AsyncClose marks the port stopped and, once no packets are pending, closes
// the socket handle and the wakeup handle asynchronously. The registered
// CloseHandler fires exactly once, on the loop goroutine, after both handles
// have reported closed. Release is the destructor analog: it asserts the
// port is inert and panics on leaked handles or unresolved packets.
//
// # Error model
//
// Operational failures (bind or option errors during Open, a failed send)
// are logged and contained: Open returns an error, a failed send drops that
// one packet. Contract violations (nil packet, Write after close, double
// AsyncClose, Release while open) indicate caller bugs and panic.
package sender
