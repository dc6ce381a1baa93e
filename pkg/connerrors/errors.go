// Package connerrors declares the typed error taxonomy from spec.md §7.
// Each kind is a distinct struct implementing error so callers can
// dispatch on kind with errors.As instead of matching strings.
package connerrors

import (
	"fmt"
	"time"
)

// SignalInIllegalState is returned when a lifecycle command arrives
// while the client is in an incompatible state (spec.md §4.3, "any ->
// unhandled signal" row).
type SignalInIllegalState struct {
	Operation string // lower-cased state name
	Timeout   time.Duration
}

func (e *SignalInIllegalState) Error() string {
	return fmt.Sprintf("signal not supported in state %q (retry within %s)", e.Operation, e.Timeout)
}

// ConnectionFailed is a transport-level failure establishing or
// maintaining a connection. HostPort is "" when the failure wasn't a
// pre-check failure (e.g. a protocol-level doConnect failure).
type ConnectionFailed struct {
	HostPort    string
	Description string
	Cause       error
}

func (e *ConnectionFailed) Error() string {
	if e.HostPort != "" {
		return fmt.Sprintf("connection failed to %s: %s", e.HostPort, e.Description)
	}
	return fmt.Sprintf("connection failed: %s", e.Description)
}

func (e *ConnectionFailed) Unwrap() error { return e.Cause }

// ConnectionUnavailable is reported when TestConnection times out or
// the transport reports unreachability.
type ConnectionUnavailable struct {
	Description string
	Cause       error
}

func (e *ConnectionUnavailable) Error() string {
	return fmt.Sprintf("connection unavailable: %s", e.Description)
}

func (e *ConnectionUnavailable) Unwrap() error { return e.Cause }

// MessageSendingFailed is a publish-time failure: queue overflow,
// unknown status code, body size exceeded, or stream termination.
type MessageSendingFailed struct {
	Reason string
	Cause  error
}

func (e *MessageSendingFailed) Error() string {
	return fmt.Sprintf("message sending failed: %s", e.Reason)
}

func (e *MessageSendingFailed) Unwrap() error { return e.Cause }

// MapperConfigurationError wraps a mapper initialization failure. It is
// treated as transient by the client (spec.md §4.6).
type MapperConfigurationError struct {
	Cause error
}

func (e *MapperConfigurationError) Error() string {
	return fmt.Sprintf("mapper configuration error: %v", e.Cause)
}

func (e *MapperConfigurationError) Unwrap() error { return e.Cause }

// AcknowledgementLabelNotUnique is surfaced only by the
// subscription/declaration plane, noted for completeness per spec.md §7
// — nothing in this module's publisher core raises it.
type AcknowledgementLabelNotUnique struct {
	Label string
}

func (e *AcknowledgementLabelNotUnique) Error() string {
	return fmt.Sprintf("acknowledgement label %q is not unique across the cluster", e.Label)
}
