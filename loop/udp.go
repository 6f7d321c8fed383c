package loop

import (
	"errors"
	"fmt"
	"net"
	"sync/atomic"
)

var (
	// ErrNotBound indicates an operation that requires a bound socket was
	// attempted on an unbound handle.
	ErrNotBound = errors.New("loop: udp handle not bound")

	// ErrHandleClosing indicates an operation was attempted on a handle
	// whose asynchronous close has already been requested.
	ErrHandleClosing = errors.New("loop: udp handle is closing")
)

// SendCallback is invoked on the loop goroutine when an asynchronous send
// completes. A non-nil error is the completion status of the send.
type SendCallback func(err error)

// UDPHandle is an event-loop UDP socket handle. The socket is created and
// bound synchronously by Bind; sends and the close are asynchronous and
// complete on the loop goroutine.
//
// All methods except IsClosing must be called from the loop goroutine or
// before the handle is shared with it.
type UDPHandle struct {
	loop *Loop

	fd    int
	bound bool
	local *net.UDPAddr

	closing atomic.Bool
}

// NewUDP creates an unbound UDP handle attached to the loop.
func NewUDP(l *Loop) *UDPHandle {
	return &UDPHandle{loop: l, fd: -1}
}

// Bind creates the socket and binds it to addr. For IPv6 addresses an
// IPv6-only bind is attempted first; if the option is unsupported or invalid
// the bind falls back to a plain (dual-stack) bind. The resolved local
// address is read back with getsockname and is available via LocalAddr.
func (h *UDPHandle) Bind(addr *net.UDPAddr) error {
	if h.bound {
		return errors.New("loop: udp handle already bound")
	}
	if addr == nil {
		return errors.New("loop: nil bind address")
	}

	ipv6 := addr.IP.To4() == nil && addr.IP.To16() != nil

	fd, err := sysSocket(ipv6)
	if err != nil {
		return fmt.Errorf("socket: %w", err)
	}

	if ipv6 {
		// Mirror the IPv6-only-first bind: prefer an IPV6_V6ONLY bind,
		// fall back to the default mode where the option is rejected.
		err = sysSetV6Only(fd, true)
		if err == nil {
			err = sysBind(fd, addr)
		}
		if err != nil && isBindFallbackErr(err) {
			_ = sysSetV6Only(fd, false)
			err = sysBind(fd, addr)
		}
	} else {
		err = sysBind(fd, addr)
	}
	if err != nil {
		_ = sysClose(fd)
		return fmt.Errorf("bind %s: %w", addr, err)
	}

	local, err := sysLocalAddr(fd)
	if err != nil {
		_ = sysClose(fd)
		return fmt.Errorf("getsockname: %w", err)
	}

	h.fd = fd
	h.bound = true
	h.local = local
	return nil
}

// SetBroadcast enables or disables SO_BROADCAST on the bound socket.
func (h *UDPHandle) SetBroadcast(on bool) error {
	if !h.bound {
		return ErrNotBound
	}
	return sysSetBroadcast(h.fd, on)
}

// LocalAddr returns the resolved local address read back at bind time, or
// nil if the handle is not bound.
func (h *UDPHandle) LocalAddr() *net.UDPAddr {
	return h.local
}

// Fd returns the raw socket descriptor for non-blocking fast-path use.
func (h *UDPHandle) Fd() (int, error) {
	if !h.bound {
		return -1, ErrNotBound
	}
	return h.fd, nil
}

// AsyncSend issues an asynchronous send of one datagram to dst. The
// completion callback runs on the loop goroutine with the send status. A
// non-nil return means the send could not be issued at all and cb will never
// be invoked.
func (h *UDPHandle) AsyncSend(data []byte, dst *net.UDPAddr, cb SendCallback) error {
	if cb == nil {
		return ErrNilCallback
	}
	if !h.bound {
		return ErrNotBound
	}
	if h.closing.Load() {
		return ErrHandleClosing
	}

	h.loop.Submit(func() {
		cb(sysSendto(h.fd, data, dst))
	})
	return nil
}

// AsyncClose requests asynchronous close of the socket. The completion
// callback, if non-nil, runs on the loop goroutine after sends already
// issued have completed. Only the first call has any effect.
func (h *UDPHandle) AsyncClose(cb func()) {
	if !h.closing.CompareAndSwap(false, true) {
		return
	}
	h.loop.Submit(func() {
		if h.bound {
			_ = sysClose(h.fd)
			h.bound = false
			h.fd = -1
		}
		if cb != nil {
			cb()
		}
	})
}

// IsClosing reports whether AsyncClose has been requested.
func (h *UDPHandle) IsClosing() bool {
	return h.closing.Load()
}

// TrySendto attempts one immediate non-blocking transmission of data to dst
// over the given descriptor. Returns true only if the whole datagram was
// accepted by the kernel without blocking; any error, including would-block,
// yields false. Safe from any goroutine.
func TrySendto(fd int, data []byte, dst *net.UDPAddr) bool {
	return sysTrySendto(fd, data, dst)
}
