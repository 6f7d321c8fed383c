package packet

import "sync/atomic"

// Queue is an intrusive multi-producer single-consumer FIFO of packets.
//
// Push is wait-free and safe from any number of goroutines. TryPop must only
// be called from a single consumer goroutine.
//
// Queue contract: TryPop may spuriously return nil while the queue is
// non-empty, if a concurrent Push has swapped the head but not yet linked its
// packet. This is tolerated by design — every Push must be followed by a
// wakeup signal to the consumer, so the consumer is guaranteed to be invoked
// again and observe the packet on a later TryPop. Callers that omit the
// signal will lose packets.
//
// The queue links through the packets' embedded next slot, so a packet must
// not be enqueued again before it has been popped.
type Queue struct {
	head atomic.Pointer[Packet] // producer end, last pushed
	tail *Packet                // consumer end, owned by the consumer
	stub Packet
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	q := &Queue{}
	q.head.Store(&q.stub)
	q.tail = &q.stub
	return q
}

// Push appends a packet. Wait-free; safe from any goroutine.
func (q *Queue) Push(p *Packet) {
	if p == nil {
		panic("packet: nil packet pushed to queue")
	}
	q.push(p)
}

func (q *Queue) push(p *Packet) {
	p.next.Store(nil)
	prev := q.head.Swap(p)
	// A TryPop between the swap above and the store below observes the
	// spurious-empty condition described in the Queue contract.
	prev.next.Store(p)
}

// TryPop removes and returns the oldest packet, or nil if the queue is empty
// or a concurrent Push is mid-flight (see the Queue contract). Single
// consumer only.
func (q *Queue) TryPop() *Packet {
	tail := q.tail
	next := tail.next.Load()

	if tail == &q.stub {
		if next == nil {
			return nil
		}
		q.stub.next.Store(nil)
		q.tail = next
		tail = next
		next = tail.next.Load()
	}

	if next != nil {
		q.tail = next
		tail.next.Store(nil)
		return tail
	}

	if q.head.Load() != tail {
		// Push in progress: head already swapped, link not yet visible.
		return nil
	}

	// Single linked packet left. Re-insert the stub behind it so the last
	// packet can be detached without racing a concurrent Push.
	q.push(&q.stub)

	next = tail.next.Load()
	if next == nil {
		return nil
	}
	q.tail = next
	tail.next.Store(nil)
	return tail
}
