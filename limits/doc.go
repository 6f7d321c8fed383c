// Package limits provides centralized datagram size constants and validation
// functions for the netio egress layer.
//
// # Size Hierarchy
//
// The package defines two bounds that apply at different points of the
// outbound pipeline:
//
//   - MaxSafePayload (1372 bytes): The conservative bound for
//     fragmentation-free delivery over common 1500-byte MTU paths. Real-time
//     media producers should size their packets against this limit.
//
//   - MaxDatagramPayload (65507 bytes): The hard UDP/IPv4 limit. Payloads
//     beyond this size cannot be carried in a single datagram at all and are
//     rejected at packet construction time.
//
// # Validation Functions
//
// Each validation function checks for empty payloads and size limit
// violations:
//
//	err := limits.ValidatePayload(data)
//	if err != nil {
//	    // Handle validation error (ErrPayloadEmpty or ErrPayloadTooLarge)
//	}
//
// For custom size limits, use the generic ValidatePayloadSize function:
//
//	err := limits.ValidatePayloadSize(data, limits.MaxSafePayload)
//
// Errors wrap the ErrPayloadEmpty and ErrPayloadTooLarge sentinels so callers
// can classify failures with errors.Is.
package limits
