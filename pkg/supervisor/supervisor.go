// Package supervisor owns the spawn/restart/shutdown lifecycle of one
// client.BaseClient per connection.Connection, per spec.md §2's
// "Supervisor glue" row and SPEC_FULL.md §4.9.
package supervisor

import (
	"context"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/illmade-knight/go-connectivity/pkg/client"
	"github.com/illmade-knight/go-connectivity/pkg/connection"
	"github.com/illmade-knight/go-connectivity/pkg/httppush"
	"github.com/illmade-knight/go-connectivity/pkg/mapper"
	"github.com/illmade-knight/go-connectivity/pkg/metrics"
	"github.com/illmade-knight/go-connectivity/pkg/mqttsource"
	"github.com/illmade-knight/go-connectivity/pkg/publisher"
	"github.com/illmade-knight/go-connectivity/pkg/signalbus"
)

// DefaultRestartBackoffMin/Max bound the exponential backoff applied
// between restart attempts after a client's run loop exits while its
// connection is still tracked. A ConnectionFailure moves the client to
// DISCONNECTED without ending its run loop, so it does not trigger a
// restart.
const (
	DefaultRestartBackoffMin = 500 * time.Millisecond
	DefaultRestartBackoffMax = 60 * time.Second
)

// Config wires the collaborators every spawned BaseClient shares.
type Config struct {
	Registry          *metrics.Registry
	Bus               signalbus.Bus
	MapperFactory     mapper.Factory
	MQTTConfig        mqttsource.Config
	HTTPPushConfig    httppush.FlowConfig
	HTTPClient        *http.Client
	ReachabilityCache client.ReachabilityCache
	InstanceSuffix    string
	Logger            zerolog.Logger
}

// managedClient tracks one connection's running BaseClient and the
// goroutine driving it, so Supervisor can cancel and respawn it.
type managedClient struct {
	mu         sync.Mutex
	base       *client.BaseClient
	cancel     context.CancelFunc
	generation int
	lastConn   connection.Connection
}

// Supervisor spawns one client.BaseClient per connection.Connection,
// restarting it with capped exponential backoff when its run loop
// exits unexpectedly, and exposes the admin surfaces from
// SPEC_FULL.md §4.9.
type Supervisor struct {
	cfg    Config
	logger zerolog.Logger

	mu      sync.Mutex
	clients map[string]*managedClient
	wg      sync.WaitGroup

	rootCtx context.Context
}

// New constructs a Supervisor with no running clients. rootCtx scopes
// every spawned BaseClient's run loop: cancelling it (or calling
// Shutdown) tears every managed client down, independent of the
// lifetime of whatever request-scoped context a given Dispatch call
// happens to carry.
func New(rootCtx context.Context, cfg Config) *Supervisor {
	if cfg.ReachabilityCache == nil {
		cfg.ReachabilityCache = client.NewInMemoryReachabilityCache()
	}
	return &Supervisor{
		cfg:     cfg,
		logger:  cfg.Logger.With().Str("component", "Supervisor").Logger(),
		clients: make(map[string]*managedClient),
		rootCtx: rootCtx,
	}
}

// ConnectionIDs lists every connection the supervisor currently tracks.
func (s *Supervisor) ConnectionIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.clients))
	for id := range s.clients {
		ids = append(ids, id)
	}
	return ids
}

// State reports a tracked connection's current lifecycle state.
func (s *Supervisor) State(connectionID string) (client.State, bool) {
	s.mu.Lock()
	mc, ok := s.clients[connectionID]
	s.mu.Unlock()
	if !ok {
		return "", false
	}
	mc.mu.Lock()
	base := mc.base
	mc.mu.Unlock()
	if base == nil {
		return "", false
	}
	return base.State(), true
}

// Dispatch routes evt to the BaseClient for connectionID, spawning one
// first if connectionID is not yet tracked, whatever the command.
func (s *Supervisor) Dispatch(_ context.Context, connectionID string, evt any) {
	mc := s.managedClientFor(connectionID)

	mc.mu.Lock()
	switch e := evt.(type) {
	case client.CreateConnection:
		mc.lastConn = e.Connection
	case client.ModifyConnection:
		mc.lastConn = e.Connection
	}
	base := mc.base
	mc.mu.Unlock()

	base.Send(evt)
}

func (s *Supervisor) managedClientFor(connectionID string) *managedClient {
	s.mu.Lock()
	defer s.mu.Unlock()
	if mc, ok := s.clients[connectionID]; ok {
		return mc
	}
	mc := &managedClient{}
	s.clients[connectionID] = mc
	s.spawnLocked(connectionID, mc)
	return mc
}

// spawnLocked builds a fresh BaseClient for connectionID and launches
// its Run loop under a restart-supervising goroutine. Callers must hold
// s.mu (or, for the very first spawn, have already inserted mc under
// s.mu so a concurrent Dispatch can't double-spawn).
func (s *Supervisor) spawnLocked(connectionID string, mc *managedClient) {
	ctx, cancel := context.WithCancel(s.rootCtx)

	registry := s.cfg.Registry
	transport := NewConnectionTransport(s.cfg.MQTTConfig, s.cfg.MapperFactory, registry, s.cfg.Bus, s.logger)
	flowFactory := httppush.NewFlowFactory(s.cfg.HTTPPushConfig, s.cfg.HTTPClient, s.logger)
	pubManager := publisher.NewManager(publisher.ManagerConfig{
		FlowFactory: flowFactory,
		Registry:    registry,
		Logger:      s.logger,
	})

	base := client.NewBaseClient(connectionID, client.Config{
		Transport:         transport,
		MapperFactory:     s.cfg.MapperFactory,
		Publishers:        pubManager,
		Registry:          registry,
		ReachabilityCache: s.cfg.ReachabilityCache,
		InstanceSuffix:    s.cfg.InstanceSuffix,
		Logger:            s.logger,
	})

	mc.mu.Lock()
	mc.base = base
	mc.cancel = cancel
	mc.generation++
	generation := mc.generation
	lastConn := mc.lastConn
	mc.mu.Unlock()

	s.wg.Add(1)
	go s.superviseRun(connectionID, mc, generation, ctx, base)

	// A respawn after a crashed generation starts from a blank
	// BaseClient; replay the last known connection definition so it
	// re-establishes toward the same desired state instead of sitting
	// in StateUnknown until an external caller happens to retry.
	if generation > 1 && lastConn.ID != "" {
		base.Send(client.CreateConnection{Connection: lastConn, Origin: noopReplySink{}})
	}
}

// noopReplySink discards replies from internally replayed commands
// that have no external caller waiting on them.
type noopReplySink struct{}

func (noopReplySink) Send(any) {}

// superviseRun drives base.Run and respawns a fresh client with capped
// exponential backoff if the run loop exits while the connection is
// still meant to be tracked (i.e. nobody called Remove).
func (s *Supervisor) superviseRun(connectionID string, mc *managedClient, generation int, ctx context.Context, base *client.BaseClient) {
	defer s.wg.Done()
	base.Run(ctx)

	s.mu.Lock()
	stillTracked := s.clients[connectionID] == mc
	s.mu.Unlock()
	if !stillTracked || s.rootCtx.Err() != nil {
		return
	}

	mc.mu.Lock()
	isCurrent := mc.generation == generation
	mc.mu.Unlock()
	if !isCurrent {
		// A newer generation already replaced this one (e.g. explicit
		// Restart); nothing to do.
		return
	}

	backoff := restartBackoff(generation)
	s.logger.Warn().Str("connection_id", connectionID).Dur("backoff", backoff).Msg("Client run loop exited; respawning after backoff.")
	select {
	case <-time.After(backoff):
	case <-s.rootCtx.Done():
		return
	}

	s.mu.Lock()
	stillTracked = s.clients[connectionID] == mc
	if stillTracked {
		s.spawnLocked(connectionID, mc)
	}
	s.mu.Unlock()
}

// restartBackoff is capped exponential backoff with jitter, bounded by
// DefaultRestartBackoffMin/Max.
func restartBackoff(generation int) time.Duration {
	backoff := DefaultRestartBackoffMin
	for i := 1; i < generation && backoff < DefaultRestartBackoffMax; i++ {
		backoff *= 2
	}
	if backoff > DefaultRestartBackoffMax {
		backoff = DefaultRestartBackoffMax
	}
	jitter := time.Duration(rand.Int63n(int64(backoff) / 4))
	return backoff + jitter
}

// Remove stops and forgets connectionID, e.g. after a DeleteConnection
// has been acknowledged.
func (s *Supervisor) Remove(connectionID string) {
	s.mu.Lock()
	mc, ok := s.clients[connectionID]
	if ok {
		delete(s.clients, connectionID)
	}
	s.mu.Unlock()
	if !ok {
		return
	}
	mc.mu.Lock()
	cancel := mc.cancel
	mc.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if s.cfg.Registry != nil {
		s.cfg.Registry.StripForConnection(connectionID)
	}
}

// Shutdown cancels every managed client and waits up to ctx's deadline.
func (s *Supervisor) Shutdown(ctx context.Context) {
	s.mu.Lock()
	cancels := make([]context.CancelFunc, 0, len(s.clients))
	for id, mc := range s.clients {
		mc.mu.Lock()
		if mc.cancel != nil {
			cancels = append(cancels, mc.cancel)
		}
		mc.mu.Unlock()
		delete(s.clients, id)
	}
	s.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.logger.Warn().Msg("Timed out waiting for managed clients to stop.")
	}
}
