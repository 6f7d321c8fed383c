package sender

import (
	"net"
	"time"
)

// StatsLogInterval is the default interval between periodic send statistics
// reports.
const StatsLogInterval = 20 * time.Second

// Config holds the immutable configuration of a UDP sender port. All fields
// are fixed once the port is constructed.
type Config struct {
	// BindAddr is the local address the socket binds to. An ephemeral port
	// (port 0) is resolved during Open and visible via LocalAddr.
	BindAddr *net.UDPAddr

	// BroadcastEnabled turns on SO_BROADCAST after binding.
	BroadcastEnabled bool

	// NonBlockingEnabled allows Write to attempt a direct non-blocking send
	// on the producer's goroutine, bypassing the queue and the loop, when no
	// other packet is in flight.
	NonBlockingEnabled bool

	// StatsInterval is the minimum time between periodic statistics log
	// lines. Zero means StatsLogInterval.
	StatsInterval time.Duration
}

func (c Config) statsInterval() time.Duration {
	if c.StatsInterval <= 0 {
		return StatsLogInterval
	}
	return c.StatsInterval
}
