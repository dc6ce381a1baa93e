// Package metrics implements the process-wide MetricsRegistry described
// in spec.md §4.2: a concurrency-safe, get-or-create map of
// slidingwindow.Counter keyed by (connectionId, metric, direction,
// address).
package metrics

import (
	"sync"
	"time"

	"github.com/illmade-knight/go-connectivity/pkg/slidingwindow"
)

// Metric names one of the five (metric x direction) combinations the
// pipeline records at its traversal boundaries.
type Metric string

const (
	MetricConsumed  Metric = "CONSUMED"
	MetricMapped    Metric = "MAPPED"
	MetricFiltered  Metric = "FILTERED"
	MetricDropped   Metric = "DROPPED"
	MetricPublished Metric = "PUBLISHED"
)

// Direction is the traversal direction a counter was recorded on.
type Direction string

const (
	DirectionInbound  Direction = "INBOUND"
	DirectionOutbound Direction = "OUTBOUND"
)

// ResponsesAddress is the reserved address sentinel for response/ack
// traffic that isn't attributable to a configured Source/Target
// address. It must never collide with a user-configured address.
const ResponsesAddress = "_responses"

// Key identifies one sliding-window counter.
type Key struct {
	ConnectionID string
	Metric       Metric
	Direction    Direction
	Address      string
}

// AddressStatus mirrors the per-address status fields carried by
// AddressMetric.
type AddressStatus string

const (
	AddressStatusUnknown AddressStatus = "UNKNOWN"
	AddressStatusOpen    AddressStatus = "OPEN"
	AddressStatusClosed  AddressStatus = "CLOSED"
	AddressStatusFailed  AddressStatus = "FAILED"
)

// AddressMetric is the derived per-address aggregate spec.md §3
// describes: current status plus one Measurement pair (success,
// failure) per configured window.
type AddressMetric struct {
	Address             string
	Status              AddressStatus
	StatusDetails       string
	InStatusSince       time.Time
	SuccessMeasurements []slidingwindow.Measurement
	FailureMeasurements []slidingwindow.Measurement
}

// SourceMetrics and TargetMetrics are address->AddressMetric maps, one
// entry per address seen for the connection in that direction.
type SourceMetrics map[string]AddressMetric
type TargetMetrics map[string]AddressMetric

// Registry is the process-wide metrics store. Its zero value is not
// usable; construct with New. Operations never fail (spec.md §4.2).
type Registry struct {
	mu       sync.Mutex
	counters map[Key]*slidingwindow.Counter
	windows  []time.Duration
	// statuses holds the last known AddressMetric status fields per
	// (connectionId, direction, address), since a Counter only tracks
	// counts, not status.
	statuses map[statusKey]addressStatusState
}

type statusKey struct {
	ConnectionID string
	Direction    Direction
	Address      string
}

type addressStatusState struct {
	status        AddressStatus
	statusDetails string
	inStatusSince time.Time
}

// New creates an empty Registry. windows configures every Counter
// created by this registry; nil uses slidingwindow.DefaultWindows.
func New(windows []time.Duration) *Registry {
	return &Registry{
		counters: make(map[Key]*slidingwindow.Counter),
		windows:  windows,
		statuses: make(map[statusKey]addressStatusState),
	}
}

// Counter returns the get-or-create Counter for the given key. Safe for
// concurrent use; the atomic get-or-create is a short critical section
// (map lookup + possible insert), never blocking a Counter's own hot
// increment path.
func (r *Registry) Counter(connectionID string, metric Metric, direction Direction, address string) *slidingwindow.Counter {
	key := Key{ConnectionID: connectionID, Metric: metric, Direction: direction, Address: address}

	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.counters[key]; ok {
		return c
	}
	c := slidingwindow.New(r.windows, 0)
	r.counters[key] = c
	return c
}

// SetAddressStatus records the current status fields for an address,
// used by aggregateSources/aggregateTargets to populate AddressMetric.
func (r *Registry) SetAddressStatus(connectionID string, direction Direction, address string, status AddressStatus, details string, since time.Time) {
	key := statusKey{ConnectionID: connectionID, Direction: direction, Address: address}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses[key] = addressStatusState{status: status, statusDetails: details, inStatusSince: since}
}

// AggregateSources groups all INBOUND counters for connectionID by
// address into SourceMetrics.
func (r *Registry) AggregateSources(connectionID string) SourceMetrics {
	return r.aggregate(connectionID, DirectionInbound)
}

// AggregateTargets groups all OUTBOUND counters for connectionID by
// address into TargetMetrics.
func (r *Registry) AggregateTargets(connectionID string) TargetMetrics {
	return r.aggregate(connectionID, DirectionOutbound)
}

// windowTotal accumulates one bucket's worth of counts across every
// metric-kind counter an address has, for a single window.
type windowTotal struct {
	windowStart time.Time
	success     int64
	failure     int64
}

func (r *Registry) aggregate(connectionID string, direction Direction) map[string]AddressMetric {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string]AddressMetric)
	totals := make(map[string]map[time.Duration]windowTotal)
	for key, counter := range r.counters {
		if key.ConnectionID != connectionID || key.Direction != direction {
			continue
		}
		if _, ok := out[key.Address]; !ok {
			st := r.statuses[statusKey{ConnectionID: connectionID, Direction: direction, Address: key.Address}]
			am := AddressMetric{
				Address:       key.Address,
				Status:        st.status,
				StatusDetails: st.statusDetails,
				InStatusSince: st.inStatusSince,
			}
			if am.Status == "" {
				am.Status = AddressStatusUnknown
			}
			out[key.Address] = am
			totals[key.Address] = make(map[time.Duration]windowTotal)
		}
		byWindow := totals[key.Address]
		for _, m := range counter.Measurements() {
			t := byWindow[m.Window]
			t.windowStart = m.WindowStart
			t.success += m.SuccessCount
			t.failure += m.FailureCount
			byWindow[m.Window] = t
		}
	}

	windows := r.windows
	if len(windows) == 0 {
		windows = slidingwindow.DefaultWindows
	}
	for address, am := range out {
		for _, window := range windows {
			t, ok := totals[address][window]
			if !ok {
				continue
			}
			am.SuccessMeasurements = append(am.SuccessMeasurements, slidingwindow.Measurement{
				Window: window, WindowStart: t.windowStart, SuccessCount: t.success,
			})
			am.FailureMeasurements = append(am.FailureMeasurements, slidingwindow.Measurement{
				Window: window, WindowStart: t.windowStart, FailureCount: t.failure,
			})
		}
		out[address] = am
	}
	return out
}

// StripForConnection removes all counters and status entries for a
// deleted connection.
func (r *Registry) StripForConnection(connectionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key := range r.counters {
		if key.ConnectionID == connectionID {
			delete(r.counters, key)
		}
	}
	for key := range r.statuses {
		if key.ConnectionID == connectionID {
			delete(r.statuses, key)
		}
	}
}

// --- Convenience accessors for the five (metric x direction)
// combinations transports actually hit. ---

func (r *Registry) Consumed(connectionID string, direction Direction, address string) *slidingwindow.Counter {
	return r.Counter(connectionID, MetricConsumed, direction, address)
}

func (r *Registry) Mapped(connectionID string, direction Direction, address string) *slidingwindow.Counter {
	return r.Counter(connectionID, MetricMapped, direction, address)
}

func (r *Registry) Filtered(connectionID string, direction Direction, address string) *slidingwindow.Counter {
	return r.Counter(connectionID, MetricFiltered, direction, address)
}

func (r *Registry) Dropped(connectionID string, direction Direction, address string) *slidingwindow.Counter {
	return r.Counter(connectionID, MetricDropped, direction, address)
}

func (r *Registry) Published(connectionID string, direction Direction, address string) *slidingwindow.Counter {
	return r.Counter(connectionID, MetricPublished, direction, address)
}
