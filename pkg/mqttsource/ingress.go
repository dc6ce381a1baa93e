package mqttsource

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/illmade-knight/go-connectivity/pkg/mapper"
	"github.com/illmade-knight/go-connectivity/pkg/metrics"
)

// Dispatch receives the signals a Mapper produced from one inbound
// message. A typical Dispatch forwards them onto a signal bus
// (pkg/signalbus) or a command router.
type Dispatch func(ctx context.Context, signals []mapper.Signal)

// Ingress couples a Consumer to a Mapper and the MetricsRegistry,
// recording CONSUMED/MAPPED/FILTERED/DROPPED the way pkg/publisher's
// Pipeline records PUBLISHED/DROPPED on the outbound side (spec.md §4.2).
type Ingress struct {
	consumer     *Consumer
	mapperInst   mapper.Mapper
	registry     *metrics.Registry
	connectionID string
	dispatch     Dispatch
	logger       zerolog.Logger

	wg sync.WaitGroup
}

// NewIngress builds an Ingress around an already-constructed Consumer.
func NewIngress(consumer *Consumer, m mapper.Mapper, registry *metrics.Registry, connectionID string, dispatch Dispatch, logger zerolog.Logger) *Ingress {
	return &Ingress{
		consumer:     consumer,
		mapperInst:   m,
		registry:     registry,
		connectionID: connectionID,
		dispatch:     dispatch,
		logger:       logger.With().Str("component", "mqttsource.Ingress").Logger(),
	}
}

// Start connects the underlying Consumer and launches the
// consume-map-dispatch loop.
func (ing *Ingress) Start(ctx context.Context) error {
	if err := ing.consumer.Start(ctx); err != nil {
		return err
	}
	ing.wg.Add(1)
	go ing.loop(ctx)
	return nil
}

// Stop disconnects the Consumer and waits for the loop to drain.
func (ing *Ingress) Stop(ctx context.Context) error {
	err := ing.consumer.Stop(ctx)
	ing.wg.Wait()
	return err
}

func (ing *Ingress) loop(ctx context.Context) {
	defer ing.wg.Done()
	address := ing.consumer.source.Address
	for external := range ing.consumer.Messages() {
		ing.countIf(metrics.MetricConsumed, address)

		signals, err := ing.mapperInst.Map(ctx, external)
		if err != nil {
			ing.logger.Error().Err(err).Msg("Mapper failed to map inbound message.")
			ing.countIf(metrics.MetricDropped, address)
			continue
		}
		if len(signals) == 0 {
			ing.countIf(metrics.MetricFiltered, address)
			continue
		}
		ing.countIf(metrics.MetricMapped, address)
		ing.dispatch(ctx, signals)
	}
}

func (ing *Ingress) countIf(metric metrics.Metric, address string) {
	if ing.registry == nil {
		return
	}
	ing.registry.Counter(ing.connectionID, metric, metrics.DirectionInbound, address).Increment(true)
}
