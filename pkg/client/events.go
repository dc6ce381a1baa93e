package client

import (
	"github.com/illmade-knight/go-connectivity/pkg/connection"
	"github.com/illmade-knight/go-connectivity/pkg/metrics"
)

// ReplySink is how the client addresses a reply back to whoever issued
// a command, per spec.md §6. Implementations might post to a channel,
// an RPC stream, or (in tests) record into a slice.
type ReplySink interface {
	Send(reply any)
}

// noopReplySink discards replies. Used for internally self-sent events
// that don't originate from an addressable caller, so a stray
// SignalInIllegalState reply to a stale self-sent command has somewhere
// harmless to go (spec.md's "not self, not dead-letter" guard on who
// receives that reply).
type noopReplySink struct{}

func (noopReplySink) Send(any) {}

// --- Inbound commands (spec.md §6) ---

type CreateConnection struct {
	Connection connection.Connection
	Headers    connection.Headers
	Origin     ReplySink
}

type ModifyConnection struct {
	Connection connection.Connection
	Headers    connection.Headers
	Origin     ReplySink
}

type OpenConnection struct {
	Headers connection.Headers
	Origin  ReplySink
}

type CloseConnection struct {
	Headers connection.Headers
	Origin  ReplySink
}

type DeleteConnection struct {
	Headers connection.Headers
	Origin  ReplySink
}

type TestConnection struct {
	Connection connection.Connection
	Headers    connection.Headers
	Origin     ReplySink
}

type RetrieveConnectionMetrics struct {
	Headers connection.Headers
	Origin  ReplySink
}

// --- Inbound internal events (spec.md §6) ---

type ClientConnected struct{}

type ClientDisconnected struct{}

type ConnectionFailure struct {
	Origin      ReplySink
	Cause       error
	Description string
}

// testOutcome is the internal event combining doTestConnection and
// testMapper per spec.md §4.3's "Test command" paragraph.
type testOutcome struct {
	transportErr error
	mapperErr    error
}

// stateTimeoutEvent carries the generation the timer was armed with, so
// a timer that fires after the state it was guarding was already left
// is ignored as stale (spec.md §4.3, "cancels on any matching event").
type stateTimeoutEvent struct {
	generation uint64
}

type initTimeoutEvent struct{}

// --- Outbound replies to command origin (spec.md §6) ---

type Success struct {
	State State
}

type Failure struct {
	Err error
}

type RetrieveConnectionMetricsResponse struct {
	ConnectionID string
	Sources      metrics.SourceMetrics
	Targets      metrics.TargetMetrics
	Headers      connection.Headers
}
