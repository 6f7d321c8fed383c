//go:build unix
// +build unix

package sender

import (
	"net"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/netio/loop"
	"github.com/opd-ai/netio/packet"
)

func startLoop(t *testing.T) *loop.Loop {
	t.Helper()
	l := loop.New()
	go l.Run()
	t.Cleanup(l.Stop)
	return l
}

func loopbackConfig() Config {
	return Config{
		BindAddr: &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0},
	}
}

func openPort(t *testing.T, l *loop.Loop, cfg Config) *UDPSenderPort {
	t.Helper()
	p := NewUDPSenderPort(cfg, l)
	require.NoError(t, p.Open())
	return p
}

func newReceiver(t *testing.T) (*net.UDPConn, *net.UDPAddr) {
	t.Helper()
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn, conn.LocalAddr().(*net.UDPAddr)
}

func recvOne(t *testing.T, conn *net.UDPConn) []byte {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	buf := make([]byte, 2048)
	n, _, err := conn.ReadFromUDP(buf)
	require.NoError(t, err)
	return buf[:n]
}

// closePort drives AsyncClose from the loop goroutine (per the AsyncClose
// contract) and waits for the close handler.
func closePort(t *testing.T, l *loop.Loop, p *UDPSenderPort) {
	t.Helper()
	closed := make(chan struct{})
	l.Submit(func() {
		p.AsyncClose(CloseHandlerFunc(func(*UDPSenderPort) { close(closed) }))
	})
	select {
	case <-closed:
	case <-time.After(5 * time.Second):
		t.Fatal("close handler did not fire")
	}
	p.Release()
}

// TestOpenResolvesEphemeralPort verifies Open binds and reads back the
// resolved local address.
func TestOpenResolvesEphemeralPort(t *testing.T) {
	l := startLoop(t)
	p := openPort(t, l, loopbackConfig())

	local := p.LocalAddr()
	require.NotNil(t, local)
	assert.True(t, local.IP.Equal(net.IPv4(127, 0, 0, 1)))
	assert.NotZero(t, local.Port)

	closePort(t, l, p)
}

// TestOpenWithBroadcast verifies the broadcast option is applied at open.
func TestOpenWithBroadcast(t *testing.T) {
	l := startLoop(t)

	cfg := loopbackConfig()
	cfg.BroadcastEnabled = true
	p := openPort(t, l, cfg)
	closePort(t, l, p)
}

// TestOpenWithoutBindAddr verifies the configuration is validated.
func TestOpenWithoutBindAddr(t *testing.T) {
	l := startLoop(t)
	p := NewUDPSenderPort(Config{}, l)
	assert.Error(t, p.Open())
	p.Release()
}

// TestQueuedPathScenario covers the spec scenario: three packets with the
// fast path disabled must all travel the queued path, arrive in submission
// order, and the close handler must fire only after all three completions.
func TestQueuedPathScenario(t *testing.T) {
	l := startLoop(t)
	recv, dst := newReceiver(t)
	p := openPort(t, l, loopbackConfig())

	payloads := [][]byte{
		[]byte("first"),
		[]byte("second"),
		[]byte("third"),
	}
	packets := make([]*packet.Packet, 0, len(payloads))
	for _, data := range payloads {
		pp, err := packet.New(data, dst)
		require.NoError(t, err)
		packets = append(packets, pp)
		p.Write(pp)
	}

	for i, want := range payloads {
		assert.Equal(t, want, recvOne(t, recv), "packet %d out of order", i)
	}

	closePort(t, l, p)

	sent, nb := p.Stats()
	assert.Equal(t, uint64(3), sent)
	assert.Zero(t, nb, "fast path is disabled")

	// The in-flight references must all have been released.
	for _, pp := range packets {
		assert.Equal(t, int32(1), pp.RefCount())
	}
}

// TestFastPathScenario covers the spec scenario: with the fast path enabled
// and no packet pending, a write resolves on the producer goroutine without
// touching the queue or the loop.
func TestFastPathScenario(t *testing.T) {
	l := startLoop(t)
	recv, dst := newReceiver(t)

	cfg := loopbackConfig()
	cfg.NonBlockingEnabled = true
	p := openPort(t, l, cfg)

	pp, err := packet.New([]byte("fast"), dst)
	require.NoError(t, err)
	p.Write(pp)

	assert.Equal(t, []byte("fast"), recvOne(t, recv))

	sent, nb := p.Stats()
	assert.Equal(t, uint64(1), sent)
	assert.Equal(t, uint64(1), nb)

	// Resolved on the producer goroutine: no extra reference was ever taken.
	assert.Equal(t, int32(1), pp.RefCount())

	closePort(t, l, p)
}

// TestFastPathFallback verifies a failed fast-path attempt falls back to the
// queued path with no caller-visible difference.
func TestFastPathFallback(t *testing.T) {
	l := startLoop(t)
	recv, dst := newReceiver(t)

	cfg := loopbackConfig()
	cfg.NonBlockingEnabled = true
	p := openPort(t, l, cfg)

	attempts := 0
	p.nbSend = func(fd int, data []byte, dst *net.UDPAddr) bool {
		attempts++
		return false
	}

	pp, err := packet.New([]byte("fallback"), dst)
	require.NoError(t, err)
	p.Write(pp)

	assert.Equal(t, []byte("fallback"), recvOne(t, recv))
	assert.Equal(t, 1, attempts)

	sent, nb := p.Stats()
	assert.Equal(t, uint64(1), sent)
	assert.Zero(t, nb)

	closePort(t, l, p)
}

// TestFastPathGatedOnPending verifies the fast path is only attempted while
// no other packet is in flight.
func TestFastPathGatedOnPending(t *testing.T) {
	l := startLoop(t)
	_, dst := newReceiver(t)

	cfg := loopbackConfig()
	cfg.NonBlockingEnabled = true
	p := openPort(t, l, cfg)

	attempts := 0
	p.nbSend = func(fd int, data []byte, dst *net.UDPAddr) bool {
		attempts++
		return false // force the queued path so the packet stays pending
	}

	// Hold the loop so the first packet cannot resolve before the second
	// write happens.
	gate := make(chan struct{})
	l.Submit(func() { <-gate })

	first, err := packet.New([]byte("a"), dst)
	require.NoError(t, err)
	p.Write(first) // sole in-flight packet: fast path attempted

	second, err := packet.New([]byte("b"), dst)
	require.NoError(t, err)
	p.Write(second) // already pending: fast path must be skipped

	close(gate)

	assert.Equal(t, 1, attempts, "fast path attempted despite pending packet")

	closePort(t, l, p)
}

// TestInFlightReference verifies the extra reference is held exactly while
// the asynchronous send is outstanding.
func TestInFlightReference(t *testing.T) {
	l := startLoop(t)
	_, dst := newReceiver(t)
	p := openPort(t, l, loopbackConfig())

	gate := make(chan struct{})
	l.Submit(func() { <-gate })

	pp, err := packet.New([]byte("tracked"), dst)
	require.NoError(t, err)
	p.Write(pp)

	// Loop task order after the gate opens: drain (takes the extra
	// reference, schedules the send), then this probe, then the send and
	// its completion.
	refDuringFlight := make(chan int32, 1)
	l.Submit(func() { refDuringFlight <- pp.RefCount() })
	close(gate)

	select {
	case got := <-refDuringFlight:
		assert.Equal(t, int32(2), got, "extra reference not held while in flight")
	case <-time.After(5 * time.Second):
		t.Fatal("loop did not drain")
	}

	closePort(t, l, p)
	assert.Equal(t, int32(1), pp.RefCount())
}

// TestCloseDeferredUntilPendingResolved verifies AsyncClose with packets
// pending defers the close protocol until the last completion.
func TestCloseDeferredUntilPendingResolved(t *testing.T) {
	l := startLoop(t)
	recv, dst := newReceiver(t)
	p := openPort(t, l, loopbackConfig())

	gate := make(chan struct{})
	l.Submit(func() { <-gate })

	pp, err := packet.New([]byte("pending"), dst)
	require.NoError(t, err)
	p.Write(pp)

	// Loop task order after the gate opens: drain (issues the send), then
	// AsyncClose (sees the packet still pending and must defer), then the
	// send completion (which starts the close protocol).
	accepted := make(chan bool, 1)
	closed := make(chan struct{})
	l.Submit(func() {
		accepted <- p.AsyncClose(CloseHandlerFunc(func(*UDPSenderPort) { close(closed) }))
	})
	close(gate)

	select {
	case ok := <-accepted:
		assert.True(t, ok)
	case <-time.After(5 * time.Second):
		t.Fatal("AsyncClose did not run")
	}

	select {
	case <-closed:
	case <-time.After(5 * time.Second):
		t.Fatal("close handler did not fire after last completion")
	}

	assert.Equal(t, []byte("pending"), recvOne(t, recv))
	p.Release()
}

// TestAsyncCloseUnopened verifies closing a never-opened port reports
// already-closed and invokes no handler.
func TestAsyncCloseUnopened(t *testing.T) {
	l := startLoop(t)
	p := NewUDPSenderPort(loopbackConfig(), l)

	invoked := false
	ok := p.AsyncClose(CloseHandlerFunc(func(*UDPSenderPort) { invoked = true }))
	assert.False(t, ok)
	assert.False(t, invoked)

	p.Release()
}

// TestContractViolations verifies the fatal caller-bug paths.
func TestContractViolations(t *testing.T) {
	l := startLoop(t)
	_, dst := newReceiver(t)

	t.Run("nil packet", func(t *testing.T) {
		p := openPort(t, l, loopbackConfig())
		require.Panics(t, func() { p.Write(nil) })
		closePort(t, l, p)
	})

	t.Run("write before open", func(t *testing.T) {
		p := NewUDPSenderPort(loopbackConfig(), l)
		pp, err := packet.New([]byte{1}, dst)
		require.NoError(t, err)
		require.Panics(t, func() { p.Write(pp) })
	})

	t.Run("write after close", func(t *testing.T) {
		p := openPort(t, l, loopbackConfig())
		closePort(t, l, p)

		pp, err := packet.New([]byte{1}, dst)
		require.NoError(t, err)
		require.Panics(t, func() { p.Write(pp) })
	})

	t.Run("double close", func(t *testing.T) {
		p := openPort(t, l, loopbackConfig())
		closePort(t, l, p)
		require.Panics(t, func() {
			p.AsyncClose(CloseHandlerFunc(func(*UDPSenderPort) {}))
		})
	})

	t.Run("release while open", func(t *testing.T) {
		p := openPort(t, l, loopbackConfig())
		require.Panics(t, func() { p.Release() })
		closePort(t, l, p)
	})

	t.Run("nil close handler", func(t *testing.T) {
		p := openPort(t, l, loopbackConfig())
		require.Panics(t, func() { p.AsyncClose(nil) })
		closePort(t, l, p)
	})
}

// TestManyWritesSingleProducer verifies the N-writes property: every write
// resolves, and close waits for all of them.
func TestManyWritesSingleProducer(t *testing.T) {
	l := startLoop(t)
	recv, dst := newReceiver(t)
	p := openPort(t, l, loopbackConfig())

	const n = 50
	for i := 0; i < n; i++ {
		pp, err := packet.New([]byte{byte(i)}, dst)
		require.NoError(t, err)
		p.Write(pp)
	}

	for i := 0; i < n; i++ {
		got := recvOne(t, recv)
		assert.Equal(t, byte(i), got[0], "submission order violated at %d", i)
	}

	closePort(t, l, p)

	sent, _ := p.Stats()
	assert.Equal(t, uint64(n), sent)
}

// TestStatsRateLimited verifies the periodic report honors the injected
// interval instead of logging on every write.
func TestStatsRateLimited(t *testing.T) {
	hook := logtest.NewGlobal()
	defer hook.Reset()
	prevLevel := logrus.GetLevel()
	logrus.SetLevel(logrus.DebugLevel)
	defer logrus.SetLevel(prevLevel)

	l := startLoop(t)
	_, dst := newReceiver(t)

	cfg := loopbackConfig()
	cfg.StatsInterval = time.Hour
	p := openPort(t, l, cfg)

	for i := 0; i < 10; i++ {
		pp, err := packet.New([]byte{byte(i)}, dst)
		require.NoError(t, err)
		p.Write(pp)
	}

	reports := 0
	for _, e := range hook.AllEntries() {
		if e.Message == "Send statistics" {
			reports++
		}
	}
	assert.Equal(t, 1, reports, "stats must be reported once per interval")

	closePort(t, l, p)
}
