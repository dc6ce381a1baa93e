package publisher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/illmade-knight/go-connectivity/pkg/connection"
	"github.com/illmade-knight/go-connectivity/pkg/mapper"
	"github.com/illmade-knight/go-connectivity/pkg/metrics"
)

// FlowFactory builds the protocol-specific Flow for one Target, e.g.
// pkg/httppush.NewHttpPushFlow for an HTTP-push target.
type FlowFactory func(target connection.Target) (Flow, error)

// Manager owns one Pipeline per Target and satisfies
// pkg/client.PublisherManager, letting BaseClient start and stop the
// whole pool as a unit on CONNECTED/DISCONNECTING transitions.
type Manager struct {
	flowFactory    FlowFactory
	registry       *metrics.Registry
	maxQueueSize   int
	publishTimeout time.Duration
	logger         zerolog.Logger

	mu        sync.Mutex
	pipelines map[string]*Pipeline
}

// ManagerConfig configures a Manager.
type ManagerConfig struct {
	FlowFactory    FlowFactory
	Registry       *metrics.Registry
	MaxQueueSize   int
	PublishTimeout time.Duration
	Logger         zerolog.Logger
}

// NewManager constructs a Manager. It holds no Target state until
// Start is called.
func NewManager(cfg ManagerConfig) *Manager {
	return &Manager{
		flowFactory:    cfg.FlowFactory,
		registry:       cfg.Registry,
		maxQueueSize:   cfg.MaxQueueSize,
		publishTimeout: cfg.PublishTimeout,
		logger:         cfg.Logger.With().Str("component", "publisher.Manager").Logger(),
		pipelines:      make(map[string]*Pipeline),
	}
}

// Start builds and starts one Pipeline per Target in conn, wired to m
// for outbound/inbound mapping.
func (mgr *Manager) Start(ctx context.Context, conn connection.Connection, m mapper.Mapper) error {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()

	for _, target := range conn.Targets {
		flow, err := mgr.flowFactory(target)
		if err != nil {
			mgr.stopAllLocked(ctx)
			return fmt.Errorf("building flow for target %q: %w", target.Address, err)
		}
		pipeline := New(Config{
			Target:         target,
			Flow:           flow,
			Mapper:         m,
			Registry:       mgr.registry,
			ConnectionID:   conn.ID,
			MaxQueueSize:   mgr.maxQueueSize,
			PublishTimeout: mgr.publishTimeout,
			Logger:         mgr.logger,
		})
		pipeline.Start(ctx)
		mgr.pipelines[target.Address] = pipeline
	}
	return nil
}

// Stop drains and stops every pipeline, bounded by ctx.
func (mgr *Manager) Stop(ctx context.Context) {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()
	mgr.stopAllLocked(ctx)
}

func (mgr *Manager) stopAllLocked(ctx context.Context) {
	var wg sync.WaitGroup
	for address, pipeline := range mgr.pipelines {
		wg.Add(1)
		go func(p *Pipeline) {
			defer wg.Done()
			p.Stop(ctx)
		}(pipeline)
		delete(mgr.pipelines, address)
	}
	wg.Wait()
}

// Submit routes pc to the Pipeline for targetAddress, if one is
// running. Callers that don't yet know whether the connection is up
// should check the returned bool.
func (mgr *Manager) Submit(targetAddress string, pc PublishContext) bool {
	mgr.mu.Lock()
	pipeline, ok := mgr.pipelines[targetAddress]
	mgr.mu.Unlock()
	if !ok {
		return false
	}
	pipeline.Submit(pc)
	return true
}
