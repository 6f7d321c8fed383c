// Package packet defines the outbound datagram entity shared between
// producers and the egress event loop, together with the wait-free
// submission queue that carries packets between them.
//
// A Packet couples an immutable payload with its destination address and an
// atomic reference count. Producers construct packets with New, hand them to
// a sender port, and may keep using their own reference afterwards; the
// sender takes and releases an extra reference for the duration of the
// asynchronous send.
//
// Queue is an intrusive multi-producer single-consumer FIFO. Its TryPop may
// spuriously report empty while a concurrent Push is mid-flight; this is a
// documented part of the queue contract and is compensated by the wakeup
// signal every producer sends after a Push. See the Queue type for details.
package packet
