package sender

import (
	"fmt"
	"net"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/opd-ai/netio/loop"
	"github.com/opd-ai/netio/packet"
)

// UDPSenderPort delivers outbound packets over a UDP socket through a
// single-threaded event loop, without ever blocking a producer on network
// I/O.
//
// Producers call Write concurrently; each packet is either sent immediately
// on the producer's goroutine via the non-blocking fast path, or appended to
// a wait-free queue and drained by the loop goroutine. AsyncClose tears the
// port down in two phases: the socket handle and the wakeup handle each
// close asynchronously, and the close handler fires once both are done.
//
// Lifecycle: NewUDPSenderPort → Open → Write* → AsyncClose → handler →
// Release. Using the port outside this lifecycle is a caller bug and panics.
type UDPSenderPort struct {
	cfg  Config
	loop *loop.Loop

	writeSem *loop.AsyncHandle
	handle   *loop.UDPHandle

	queue *packet.Queue

	// pending counts packets accepted by Write but not yet resolved
	// (fast-sent or completion-called). sentTotal and sentBlocking are the
	// monotonic send counters; non-blocking sends are the difference.
	pending      atomic.Int32
	sentTotal    atomic.Uint64
	sentBlocking atomic.Uint64

	stopped atomic.Bool
	closed  bool

	writeSemInitialized bool
	handleInitialized   bool

	fd    int
	local *net.UDPAddr

	closeHandler CloseHandler
	limiter      *rate.Limiter

	// nbSend is the raw non-blocking send helper; swapped in tests.
	nbSend func(fd int, data []byte, dst *net.UDPAddr) bool
}

// NewUDPSenderPort creates an unopened port. The loop must already be
// running (or be started before Open is called).
func NewUDPSenderPort(cfg Config, l *loop.Loop) *UDPSenderPort {
	if l == nil {
		panic("udp sender: nil loop")
	}

	p := &UDPSenderPort{
		cfg:     cfg,
		loop:    l,
		queue:   packet.NewQueue(),
		fd:      -1,
		limiter: rate.NewLimiter(rate.Every(cfg.statsInterval()), 1),
		nbSend:  loop.TrySendto,
	}
	p.stopped.Store(true) // Write is rejected until Open succeeds
	return p
}

// LocalAddr returns the bound local address. Before a successful Open it
// returns the configured bind address.
func (p *UDPSenderPort) LocalAddr() *net.UDPAddr {
	if p.local != nil {
		return p.local
	}
	return p.cfg.BindAddr
}

// Open acquires the wakeup handle and the UDP socket, binds, applies the
// socket options, and reads back the resolved local address. On failure the
// specific failing step is logged and an error returned; the caller may
// retry or proceed to AsyncClose. Handles acquired before the failing step
// remain initialized and are torn down by the close protocol.
func (p *UDPSenderPort) Open() error {
	if p.cfg.BindAddr == nil || p.cfg.BindAddr.IP == nil {
		logrus.WithFields(logrus.Fields{
			"function": "UDPSenderPort.Open",
		}).Error("No bind address configured")
		return fmt.Errorf("udp sender: no bind address configured")
	}

	sem, err := loop.NewAsync(p.loop, p.drainQueue)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "UDPSenderPort.Open",
			"error":    err.Error(),
		}).Error("Failed to initialize wakeup handle")
		return fmt.Errorf("udp sender: wakeup handle init: %w", err)
	}
	p.writeSem = sem
	p.writeSemInitialized = true

	p.handle = loop.NewUDP(p.loop)
	p.handleInitialized = true

	if err := p.handle.Bind(p.cfg.BindAddr); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "UDPSenderPort.Open",
			"address":  p.cfg.BindAddr.String(),
			"error":    err.Error(),
		}).Error("Failed to bind UDP socket")
		return fmt.Errorf("udp sender: %w", err)
	}

	if p.cfg.BroadcastEnabled {
		logrus.WithFields(logrus.Fields{
			"function": "UDPSenderPort.Open",
			"address":  p.cfg.BindAddr.String(),
		}).Debug("Setting broadcast flag")

		if err := p.handle.SetBroadcast(true); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "UDPSenderPort.Open",
				"address":  p.cfg.BindAddr.String(),
				"error":    err.Error(),
			}).Error("Failed to enable broadcast")
			return fmt.Errorf("udp sender: set broadcast: %w", err)
		}
	}

	local := p.handle.LocalAddr()
	if local == nil {
		logrus.WithFields(logrus.Fields{
			"function": "UDPSenderPort.Open",
		}).Error("No local address after bind")
		return fmt.Errorf("udp sender: no local address after bind")
	}
	if !sameFamily(local, p.cfg.BindAddr) {
		logrus.WithFields(logrus.Fields{
			"function": "UDPSenderPort.Open",
			"expected": p.cfg.BindAddr.String(),
			"got":      local.String(),
		}).Error("Resolved address family mismatch")
		return fmt.Errorf("udp sender: resolved address family mismatch: got %s expected family of %s",
			local, p.cfg.BindAddr)
	}
	p.local = local

	fd, err := p.handle.Fd()
	if err != nil {
		// The handle is bound at this point, so a missing descriptor is a
		// loop-layer bug, not an operational failure.
		panic(fmt.Sprintf("udp sender: fd of bound handle: %v", err))
	}
	p.fd = fd

	logrus.WithFields(logrus.Fields{
		"function": "UDPSenderPort.Open",
		"address":  local.String(),
	}).Info("Opened port")

	p.stopped.Store(false)
	return nil
}

// Write submits one packet for delivery. Fire-and-forget: the packet is
// either sent immediately via the non-blocking fast path or queued for the
// loop goroutine, and Write never blocks on network I/O. Safe from any
// number of producer goroutines.
//
// Passing a nil or invalid packet, or writing after AsyncClose, is a caller
// contract violation and panics.
func (p *UDPSenderPort) Write(pp *packet.Packet) {
	if pp == nil {
		panic("udp sender: unexpected nil packet")
	}
	if pp.Dest() == nil || pp.Dest().IP == nil {
		panic("udp sender: unexpected packet without destination")
	}
	if len(pp.Data()) == 0 {
		panic("udp sender: unexpected packet without data")
	}
	if p.stopped.Load() {
		panic("udp sender: attempt to use stopped sender")
	}

	p.write(pp)
	p.reportStats()
}

func (p *UDPSenderPort) write(pp *packet.Packet) {
	hadPending := p.pending.Add(1) > 1

	// The fast path is only legal when this packet is the sole one in
	// flight, otherwise it could overtake packets already queued.
	if !hadPending && p.tryNonblockingSend(pp) {
		p.pending.Add(-1)
		return
	}

	p.queue.Push(pp)
	p.writeSem.Send()
}

// AsyncClose requests asynchronous close of the port. Returns false if the
// port is already fully closed and no notification will follow; otherwise
// the handler is invoked exactly once, on the loop goroutine, after all
// pending packets have resolved and both handles have closed.
//
// Must be called from the loop goroutine, at most once, and not concurrently
// with Write.
func (p *UDPSenderPort) AsyncClose(handler CloseHandler) bool {
	if handler == nil {
		panic("udp sender: nil close handler")
	}
	if p.closeHandler != nil {
		panic("udp sender: can't call AsyncClose() twice")
	}

	p.closeHandler = handler
	p.stopped.Store(true)

	if p.fullyClosed() {
		return false
	}

	if p.pending.Load() == 0 {
		p.startClosing()
	}
	return true
}

// Release asserts the port is inert. It is the destructor analog: call it
// after the close handler has fired (or instead of AsyncClose for a port
// that was never opened). Releasing a port with live handles or unresolved
// packets is a caller bug and panics.
func (p *UDPSenderPort) Release() {
	if p.handleInitialized || p.writeSemInitialized {
		panic("udp sender: sender was not fully closed before release")
	}
	if p.pending.Load() != 0 {
		panic("udp sender: packets weren't fully sent before release")
	}
}

// Stats returns the monotonic send counters: total packets sent and the
// subset sent via the non-blocking fast path.
func (p *UDPSenderPort) Stats() (sent, sentNonBlocking uint64) {
	sent = p.sentTotal.Load()
	return sent, sent - p.sentBlocking.Load()
}

// drainQueue is the wakeup callback. It runs on the loop goroutine and
// drains the submission queue, issuing one asynchronous send per packet.
//
// TryPop may spuriously report empty while a producer's Push is mid-flight;
// that producer's wakeup signal re-invokes this callback, so no packet is
// lost. A per-packet issue failure drops that packet and keeps draining.
func (p *UDPSenderPort) drainQueue() {
	for pp := p.queue.TryPop(); pp != nil; pp = p.queue.TryPop() {
		num := p.sentTotal.Add(1)
		p.sentBlocking.Add(1)

		logrus.WithFields(logrus.Fields{
			"function": "UDPSenderPort.drainQueue",
			"num":      num,
			"src":      p.LocalAddr().String(),
			"dst":      pp.Dest().String(),
			"size":     len(pp.Data()),
		}).Trace("Sending packet")

		pp := pp
		err := p.handle.AsyncSend(pp.Data(), pp.Dest(), func(status error) {
			p.sendDone(pp, status)
		})
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "UDPSenderPort.drainQueue",
				"dst":      pp.Dest().String(),
				"size":     len(pp.Data()),
				"error":    err.Error(),
			}).Error("Failed to issue send, packet dropped")
			continue
		}

		// Extra reference for the in-flight send, released in sendDone.
		pp.Incref()
	}
}

// sendDone is the send completion callback, invoked on the loop goroutine.
func (p *UDPSenderPort) sendDone(pp *packet.Packet, status error) {
	// Release the in-flight reference taken in drainQueue.
	pp.Decref()

	if status != nil {
		logrus.WithFields(logrus.Fields{
			"function": "UDPSenderPort.sendDone",
			"src":      p.LocalAddr().String(),
			"dst":      pp.Dest().String(),
			"size":     len(pp.Data()),
			"error":    status.Error(),
		}).Error("Can't send packet")
	}

	if p.pending.Add(-1) == 0 && p.stopped.Load() {
		p.startClosing()
	}
}

// tryNonblockingSend attempts the configured fast path on the producer's
// goroutine. Any failure falls back to the queued path.
func (p *UDPSenderPort) tryNonblockingSend(pp *packet.Packet) bool {
	if !p.cfg.NonBlockingEnabled {
		return false
	}

	if !p.nbSend(p.fd, pp.Data(), pp.Dest()) {
		return false
	}

	num := p.sentTotal.Add(1)
	logrus.WithFields(logrus.Fields{
		"function": "UDPSenderPort.tryNonblockingSend",
		"num":      num,
		"src":      p.LocalAddr().String(),
		"dst":      pp.Dest().String(),
		"size":     len(pp.Data()),
	}).Trace("Sent packet non-blocking")

	return true
}

// fullyClosed reports whether the close protocol has nothing left to do.
func (p *UDPSenderPort) fullyClosed() bool {
	if !p.handleInitialized && !p.writeSemInitialized {
		return true
	}
	return p.closed
}

// startClosing begins the two-phase close: each handle still initialized and
// not already closing is asked to close asynchronously. The port becomes
// closed when both completions have arrived.
func (p *UDPSenderPort) startClosing() {
	if p.fullyClosed() {
		return
	}

	if p.handleInitialized && !p.handle.IsClosing() {
		logrus.WithFields(logrus.Fields{
			"function": "UDPSenderPort.startClosing",
			"address":  p.LocalAddr().String(),
		}).Info("Closing port")

		p.handle.AsyncClose(p.handleClosed)
	}

	if p.writeSemInitialized && !p.writeSem.IsClosing() {
		p.writeSem.AsyncClose(p.writeSemClosed)
	}
}

func (p *UDPSenderPort) handleClosed() {
	p.handleInitialized = false
	p.finishClosing()
}

func (p *UDPSenderPort) writeSemClosed() {
	p.writeSemInitialized = false
	p.finishClosing()
}

// finishClosing is the shared close completion. It runs once per closed
// handle; the port is closed only when both handles have reported.
func (p *UDPSenderPort) finishClosing() {
	if p.handleInitialized || p.writeSemInitialized {
		return
	}

	if p.closeHandler == nil {
		panic("udp sender: close completed without close handler")
	}

	logrus.WithFields(logrus.Fields{
		"function": "UDPSenderPort.finishClosing",
		"address":  p.LocalAddr().String(),
	}).Info("Closed port")

	p.closed = true
	p.closeHandler.HandleClosed(p)
}

// reportStats logs the blocking/non-blocking send ratio, rate limited to the
// configured interval.
func (p *UDPSenderPort) reportStats() {
	if !p.limiter.Allow() {
		return
	}

	sent := p.sentTotal.Load()
	nb := sent - p.sentBlocking.Load()

	// Historical display formula kept as-is; the counters are the
	// authoritative values.
	var ratio float64
	if nb != 0 {
		ratio = float64(sent) / float64(nb)
	}

	logrus.WithFields(logrus.Fields{
		"function": "UDPSenderPort.reportStats",
		"total":    sent,
		"nb":       nb,
		"nb_ratio": fmt.Sprintf("%.5f", ratio),
	}).Debug("Send statistics")
}

func sameFamily(a, b *net.UDPAddr) bool {
	return (a.IP.To4() != nil) == (b.IP.To4() != nil)
}
