package metrics_test

import (
	"testing"
	"time"

	"github.com/illmade-knight/go-connectivity/pkg/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_CounterIsGetOrCreate(t *testing.T) {
	r := metrics.New([]time.Duration{time.Minute})

	c1 := r.Counter("conn-1", metrics.MetricPublished, metrics.DirectionOutbound, "/ack")
	c2 := r.Counter("conn-1", metrics.MetricPublished, metrics.DirectionOutbound, "/ack")
	assert.Same(t, c1, c2, "same key must return the same counter instance")

	c3 := r.Counter("conn-1", metrics.MetricPublished, metrics.DirectionOutbound, "/other")
	assert.NotSame(t, c1, c3)
}

func TestRegistry_AggregateTargets(t *testing.T) {
	r := metrics.New([]time.Duration{time.Minute})

	r.Published("conn-1", metrics.DirectionOutbound, "/ack").Increment(true)
	r.Published("conn-1", metrics.DirectionOutbound, "/ack").Increment(true)
	r.Dropped("conn-1", metrics.DirectionOutbound, "/ack").Increment(false)

	tm := r.AggregateTargets("conn-1")
	require.Contains(t, tm, "/ack")
	am := tm["/ack"]
	assert.Equal(t, "/ack", am.Address)
	require.Len(t, am.SuccessMeasurements, 1)
	assert.Equal(t, int64(2), am.SuccessMeasurements[0].SuccessCount)
}

func TestRegistry_NoTraffic_EmptySourcesAndTargets(t *testing.T) {
	// Before any traffic, a target that
	// has never been touched reports no entries at all (a connection
	// with zero observed addresses reports empty aggregates, not
	// zero-valued placeholder entries it never saw).
	r := metrics.New([]time.Duration{time.Minute})

	sm := r.AggregateSources("conn-1")
	tm := r.AggregateTargets("conn-1")
	assert.Empty(t, sm)
	assert.Empty(t, tm)
}

func TestRegistry_StripForConnectionRemovesEverything(t *testing.T) {
	r := metrics.New([]time.Duration{time.Minute})
	r.Published("conn-1", metrics.DirectionOutbound, "/ack").Increment(true)
	r.Consumed("conn-2", metrics.DirectionInbound, "/src").Increment(true)

	r.StripForConnection("conn-1")

	assert.Empty(t, r.AggregateTargets("conn-1"))
	assert.NotEmpty(t, r.AggregateSources("conn-2"))
}

func TestRegistry_ResponsesSentinelIsJustAnAddress(t *testing.T) {
	r := metrics.New([]time.Duration{time.Minute})
	r.Consumed("conn-1", metrics.DirectionOutbound, metrics.ResponsesAddress).Increment(false)

	tm := r.AggregateTargets("conn-1")
	require.Contains(t, tm, metrics.ResponsesAddress)
}

func TestRegistry_AddressStatus(t *testing.T) {
	r := metrics.New([]time.Duration{time.Minute})
	since := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	r.Published("conn-1", metrics.DirectionOutbound, "/ack").Increment(true)
	r.SetAddressStatus("conn-1", metrics.DirectionOutbound, "/ack", metrics.AddressStatusOpen, "", since)

	tm := r.AggregateTargets("conn-1")
	assert.Equal(t, metrics.AddressStatusOpen, tm["/ack"].Status)
	assert.Equal(t, since, tm["/ack"].InStatusSince)
}
