package client

import (
	"context"

	"github.com/illmade-knight/go-connectivity/pkg/connection"
	"github.com/illmade-knight/go-connectivity/pkg/metrics"
)

// Transport is the capability interface BaseClient is polymorphic over
// (spec.md §9, "Polymorphic transports"): the five protocol-specific
// hooks {doConnect, doDisconnect, doTestConnection, getSourceMetrics,
// getTargetMetrics}. A concrete transport (e.g. HTTP-push, MQTT) is
// injected at client construction rather than subclassed.
type Transport interface {
	// DoConnect establishes the protocol-level connection. It may block;
	// BaseClient always calls it from a worker goroutine, never from the
	// event loop itself (spec.md §5).
	DoConnect(ctx context.Context, conn connection.Connection) error
	// DoDisconnect tears the connection down.
	DoDisconnect(ctx context.Context, conn connection.Connection) error
	// DoTestConnection performs a connectivity-only check, independent
	// of mapper initialization (spec.md §4.3's "Test command").
	DoTestConnection(ctx context.Context, conn connection.Connection) error
	// SourceMetrics and TargetMetrics report the derived per-address
	// aggregates for RetrieveConnectionMetrics.
	SourceMetrics(conn connection.Connection) metrics.SourceMetrics
	TargetMetrics(conn connection.Connection) metrics.TargetMetrics
}

// RegistryMetricsView is an embeddable helper giving any Transport
// implementation SourceMetrics/TargetMetrics for free, backed by the
// shared MetricsRegistry (spec.md §4.2's aggregateSources/aggregateTargets).
// Concrete transports (pkg/httppush, pkg/mqttsource) embed this instead
// of re-implementing aggregation.
type RegistryMetricsView struct {
	Registry *metrics.Registry
}

func (v RegistryMetricsView) SourceMetrics(conn connection.Connection) metrics.SourceMetrics {
	return v.Registry.AggregateSources(conn.ID)
}

func (v RegistryMetricsView) TargetMetrics(conn connection.Connection) metrics.TargetMetrics {
	return v.Registry.AggregateTargets(conn.ID)
}
