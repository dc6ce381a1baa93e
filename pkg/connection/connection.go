// Package connection defines the immutable configuration record for a
// single connectivity binding and the small address-declaration types
// that hang off it (Source, Target).
package connection

import "strconv"

// DesiredStatus is the operator-declared target status of a Connection.
type DesiredStatus string

const (
	// DesiredStatusOpen means the connection should be established and
	// kept open.
	DesiredStatusOpen DesiredStatus = "OPEN"
	// DesiredStatusClosed means the connection should be disconnected
	// and left closed.
	DesiredStatusClosed DesiredStatus = "CLOSED"
)

// Endpoint is the host:port the transport dials for its reachability
// pre-check and for the protocol-level connect.
type Endpoint struct {
	Host string
	Port int
}

// HostPort renders the endpoint the way pre-check failure messages quote
// it, e.g. "svc:80".
func (e Endpoint) HostPort() string {
	return e.Host + ":" + strconv.Itoa(e.Port)
}

// Source declares one inbound address a Connection consumes from.
type Source struct {
	Address              string
	AuthorizationContext []string
	ConsumerCount        int
	Filters              []string
}

// Target declares one outbound address a Connection publishes to.
type Target struct {
	Address               string
	Topics                []string
	AuthorizationContext  []string
	// AutoAckLabel, if non-empty, is the acknowledgement label this
	// target expects back instead of the diagnostic sentinel.
	AutoAckLabel string
}

// MappingContext optionally configures a MessageMapper for this
// connection. Its contents are opaque to the core (see pkg/mapper).
type MappingContext struct {
	MapperID string
	Options  map[string]string
}

// Connection is the immutable configuration of a connectivity binding.
// It is never mutated in place: a ModifyConnection command is handled
// as a wholesale replacement (delete + create).
type Connection struct {
	ID                string
	Endpoint          Endpoint
	DesiredStatus     DesiredStatus
	Sources           []Source
	Targets           []Target
	MappingContext    *MappingContext
	ProcessorPoolSize int
}

// Validate applies the minimal structural invariants the core relies
// on; it does not duplicate authorization/schema validation owned by
// external collaborators.
func (c Connection) Validate() error {
	if c.ID == "" {
		return errConnIDRequired
	}
	if c.ProcessorPoolSize < 1 {
		return errPoolSizeInvalid
	}
	return nil
}
