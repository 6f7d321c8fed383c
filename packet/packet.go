package packet

import (
	"errors"
	"fmt"
	"net"
	"sync/atomic"

	"github.com/opd-ai/netio/limits"
)

// ErrNoDestination indicates a packet was constructed without a destination
// address.
var ErrNoDestination = errors.New("packet has no destination address")

// Packet is one outbound UDP datagram: an immutable payload plus the
// destination it should be delivered to.
//
// A Packet carries an explicit atomic reference count so ownership can be
// shared between the producer that created it, the submission queue, and the
// in-flight send completion. While a send is outstanding the sender holds
// exactly one extra reference beyond the caller's own; that reference is
// released exactly once, in the completion callback. The count exists for
// lifetime accounting and leak detection, not for memory management — the
// garbage collector remains the safety net.
//
// The embedded next link is the packet's send-request slot: it lets the
// submission queue chain packets without allocating per-enqueue nodes. It is
// owned by the queue while the packet is enqueued.
type Packet struct {
	data []byte
	dest *net.UDPAddr

	refs atomic.Int32
	next atomic.Pointer[Packet]
}

// New creates an outbound packet with the given payload and destination.
// The payload is validated against limits.MaxDatagramPayload and must not be
// mutated after the call. The returned packet starts with a reference count
// of one, owned by the caller.
func New(data []byte, dest *net.UDPAddr) (*Packet, error) {
	if err := limits.ValidatePayload(data); err != nil {
		return nil, fmt.Errorf("packet: %w", err)
	}
	if dest == nil || dest.IP == nil {
		return nil, ErrNoDestination
	}

	p := &Packet{data: data, dest: dest}
	p.refs.Store(1)
	return p, nil
}

// Data returns the immutable payload bytes.
func (p *Packet) Data() []byte { return p.data }

// Dest returns the destination address.
func (p *Packet) Dest() *net.UDPAddr { return p.dest }

// Incref takes an additional reference on the packet.
func (p *Packet) Incref() {
	p.refs.Add(1)
}

// Decref releases one reference. Releasing more references than were taken
// is a lifetime accounting bug in the caller and panics.
func (p *Packet) Decref() {
	if n := p.refs.Add(-1); n < 0 {
		panic("packet: reference count dropped below zero")
	}
}

// RefCount returns the current reference count. Intended for assertions and
// diagnostics; the value may be stale by the time the caller observes it.
func (p *Packet) RefCount() int32 {
	return p.refs.Load()
}
