package client

import (
	"time"

	"github.com/illmade-knight/go-connectivity/pkg/connection"
)

// ObservedStatus is the last-observed connectivity status, distinct
// from the operator-declared DesiredStatus (spec.md §3).
type ObservedStatus string

const (
	ObservedUnknown ObservedStatus = "UNKNOWN"
	ObservedOpen    ObservedStatus = "OPEN"
	ObservedClosed  ObservedStatus = "CLOSED"
	ObservedFailed  ObservedStatus = "FAILED"
)

// StatusDetails is free text plus the timestamp it was recorded at.
type StatusDetails struct {
	Text      string
	Timestamp time.Time
}

// Data is the state-machine payload (ClientData in spec.md §3). It is
// always replaced as a whole on a transition, never mutated in place.
type Data struct {
	ConnectionID       string
	Connection         connection.Connection
	ObservedStatus     ObservedStatus
	DesiredStatus      connection.DesiredStatus
	StatusDetails      StatusDetails
	InStatusSince      time.Time
	Origin             ReplySink
	LastCommandHeaders connection.Headers
}

// withStatus returns a copy of d with the observed status, details and
// InStatusSince advanced, the way every transition replaces ClientData
// wholesale rather than mutating fields in place.
func (d Data) withStatus(status ObservedStatus, detail string, now time.Time) Data {
	next := d
	next.ObservedStatus = status
	next.StatusDetails = StatusDetails{Text: detail, Timestamp: now}
	next.InStatusSince = now
	return next
}
