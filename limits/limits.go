// Package limits provides centralized datagram size limits for the netio
// egress layer. This ensures consistent validation across different components
// of the system.
package limits

import (
	"errors"
	"fmt"
)

const (
	// MaxDatagramPayload is the largest UDP payload that fits in a single
	// IPv4 datagram (65535 minus the 20-byte IP header and 8-byte UDP header).
	MaxDatagramPayload = 65507

	// MaxSafePayload is the conservative payload bound for fragmentation-free
	// delivery over common 1500-byte MTU paths, after IP/UDP headers and
	// tunnel allowance. Callers streaming real-time media should stay within
	// this bound.
	MaxSafePayload = 1372
)

var (
	// ErrPayloadEmpty indicates an empty payload was provided
	ErrPayloadEmpty = errors.New("empty payload")

	// ErrPayloadTooLarge indicates payload exceeds the maximum datagram size
	ErrPayloadTooLarge = errors.New("payload too large")
)

// ValidatePayloadSize validates a payload against the specified maximum size.
// Returns an error with context including the actual and maximum sizes.
func ValidatePayloadSize(payload []byte, maxSize int) error {
	if len(payload) == 0 {
		return ErrPayloadEmpty
	}
	if len(payload) > maxSize {
		return fmt.Errorf("%w: size %d exceeds limit %d", ErrPayloadTooLarge, len(payload), maxSize)
	}
	return nil
}

// ValidatePayload validates an outbound payload against MaxDatagramPayload.
// Returns an error with context if the payload is empty or exceeds the limit.
func ValidatePayload(payload []byte) error {
	return ValidatePayloadSize(payload, MaxDatagramPayload)
}
