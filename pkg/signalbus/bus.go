// Package signalbus gives the "internal signal bus" named in spec.md
// §1/§6 a concrete transport (SPEC_FULL.md §4.7). The signal data model
// itself stays out of scope: Bus moves already-encoded bytes between a
// client's mapper runtime and the rest of the cluster.
package signalbus

import (
	"context"
)

// InboundSignal is one message received off the bus for a connection,
// addressed to that connection's BaseClient.
type InboundSignal struct {
	ConnectionID string
	Payload      []byte
	Attributes   map[string]string
}

// Bus is the transport contract a BaseClient's publisher(s)/mapper
// runtime use to dispatch decoded signals onward and to receive
// commands/events/acks routed to this connection.
type Bus interface {
	// Publish sends signal (already encoded by a Mapper) onto the bus,
	// tagged with connectionID and any transport attributes.
	Publish(ctx context.Context, connectionID string, signal []byte, attrs map[string]string) error
	// Subscribe returns the channel of InboundSignal values addressed to
	// connectionID. The channel is closed when the subscription ends.
	Subscribe(ctx context.Context, connectionID string) (<-chan InboundSignal, error)
	// Close releases the underlying transport resources.
	Close() error
}
