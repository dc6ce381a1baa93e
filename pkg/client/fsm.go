package client

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/illmade-knight/go-connectivity/pkg/connection"
	"github.com/illmade-knight/go-connectivity/pkg/connerrors"
	"github.com/illmade-knight/go-connectivity/pkg/mapper"
	"github.com/illmade-knight/go-connectivity/pkg/metrics"
)

// DefaultStateTimeout bounds how long CONNECTING/DISCONNECTING/TESTING
// may run before the client gives up: a CONNECTING or DISCONNECTING
// timeout reports ConnectionFailed, a TESTING timeout reports
// ConnectionUnavailable (spec.md §4.3).
const DefaultStateTimeout = 10 * time.Second

// DefaultInitTimeout bounds the safety-net nudge after CreateConnection
// with a desired status of OPEN: if the immediate self-sent
// OpenConnection was somehow lost (e.g. the supervisor reseeded a
// client mid-restart), the nudge fires once more.
const DefaultInitTimeout = 30 * time.Second

// PublisherManager is the capability BaseClient uses to start and stop
// the pool of Target publishers once CONNECTED, kept as an interface
// here so pkg/client does not import pkg/publisher directly (spec.md
// §4.3's "owns publisher + mapper children as resources, not
// state-machine-replaceable data").
type PublisherManager interface {
	// Start spins up one pipeline per Target and begins draining them.
	Start(ctx context.Context, conn connection.Connection, m mapper.Mapper) error
	// Stop drains in-flight publishes and tears pipelines down. It
	// blocks until drained or ctx is done.
	Stop(ctx context.Context)
}

// Config wires the collaborators a BaseClient needs. Transport and
// MapperFactory are required; everything else has a usable default or
// may be left nil.
type Config struct {
	Transport         Transport
	MapperFactory     mapper.Factory
	Publishers        PublisherManager
	Registry          *metrics.Registry
	ReachabilityCache ReachabilityCache
	Auditor           TransitionAuditor
	InstanceSuffix    string
	StateTimeout      time.Duration
	InitTimeout       time.Duration
	Logger            zerolog.Logger
}

// BaseClient is the single-threaded per-connection lifecycle state
// machine (spec.md §3, §4.3). One BaseClient exists per Connection;
// pkg/supervisor owns the map of connectionId -> *BaseClient.
type BaseClient struct {
	connectionID string
	cfg          Config
	logger       zerolog.Logger

	inbox chan any

	mapperInst mapper.Mapper

	generation    uint64
	stateTimer    *time.Timer
	initTimer     *time.Timer
	pendingModify *connection.Connection // set while draining for a ModifyConnection

	mu            sync.RWMutex
	data          Data
	snapshotState State
}

// NewBaseClient constructs a client in StateUnknown with empty Data.
func NewBaseClient(connectionID string, cfg Config) *BaseClient {
	if cfg.StateTimeout <= 0 {
		cfg.StateTimeout = DefaultStateTimeout
	}
	if cfg.InitTimeout <= 0 {
		cfg.InitTimeout = DefaultInitTimeout
	}
	return &BaseClient{
		connectionID: connectionID,
		cfg:          cfg,
		logger:       cfg.Logger.With().Str("component", "BaseClient").Str("connection_id", connectionID).Logger(),
		inbox:        make(chan any, 32),
		data: Data{
			ConnectionID:   connectionID,
			ObservedStatus: ObservedUnknown,
		},
	}
}

// Send enqueues evt for processing by the event loop. It never blocks
// the caller: if the inbox is momentarily full, the send is retried
// from a background goroutine.
func (c *BaseClient) Send(evt any) {
	select {
	case c.inbox <- evt:
	default:
		go func() { c.inbox <- evt }()
	}
}

// self enqueues an internally generated event whose reply (if any)
// should be discarded rather than routed to a real caller.
func (c *BaseClient) self(evt any) {
	c.Send(evt)
}

// State reports the current lifecycle state without blocking the event
// loop, read from the last published snapshot.
func (c *BaseClient) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshotState
}

// Snapshot returns a copy of the current Data.
func (c *BaseClient) Snapshot() Data {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.data
}

// Run drives the event loop until ctx is cancelled. Exactly one
// goroutine must call Run for a given BaseClient.
func (c *BaseClient) Run(ctx context.Context) {
	state := StateUnknown
	c.publish(state)
	for {
		select {
		case <-ctx.Done():
			c.stopTimers()
			return
		case evt := <-c.inbox:
			state = c.handle(ctx, state, evt)
			c.publish(state)
		}
	}
}

func (c *BaseClient) publish(state State) {
	c.mu.Lock()
	c.snapshotState = state
	c.mu.Unlock()
}

// handle dispatches evt against the current state and returns the next
// state, per the transition table in spec.md §4.3.
func (c *BaseClient) handle(ctx context.Context, state State, evt any) State {
	// RetrieveConnectionMetrics is answerable in every state.
	if cmd, ok := evt.(RetrieveConnectionMetrics); ok {
		c.replyMetrics(cmd)
		return state
	}

	switch state {
	case StateUnknown, StateDisconnected:
		return c.handleIdle(ctx, state, evt)
	case StateConnecting:
		return c.handleConnecting(ctx, evt)
	case StateConnected:
		return c.handleConnected(ctx, evt)
	case StateDisconnecting:
		return c.handleDisconnecting(ctx, evt)
	case StateTesting:
		return c.handleTesting(ctx, evt)
	default:
		return state
	}
}

// --- UNKNOWN / DISCONNECTED (both "no active connection") ---

func (c *BaseClient) handleIdle(ctx context.Context, state State, evt any) State {
	switch e := evt.(type) {
	case CreateConnection:
		return c.create(state, e.Connection, e.Headers, e.Origin)
	case ModifyConnection:
		// Nothing to drain while idle; a modify is a create.
		return c.create(state, e.Connection, e.Headers, e.Origin)
	case OpenConnection:
		if c.data.Connection.ID == "" {
			c.illegalState(state, e.Origin)
			return state
		}
		return c.open(ctx, e.Headers, e.Origin)
	case DeleteConnection:
		c.clear()
		e.Origin.Send(Success{State: StateDisconnected})
		return StateDisconnected
	case TestConnection:
		return c.test(ctx, e.Connection, e.Headers, e.Origin)
	case initTimeoutEvent:
		if state == StateUnknown && c.data.Connection.ID != "" && c.data.DesiredStatus == connection.DesiredStatusOpen {
			c.self(OpenConnection{Headers: c.data.LastCommandHeaders, Origin: noopReplySink{}})
		}
		return state
	default:
		c.illegalState(state, originOf(evt))
		return state
	}
}

func (c *BaseClient) create(state State, conn connection.Connection, headers connection.Headers, origin ReplySink) State {
	if err := conn.Validate(); err != nil {
		origin.Send(Failure{Err: err})
		return state
	}
	c.data = Data{
		ConnectionID:       conn.ID,
		Connection:         conn,
		ObservedStatus:     ObservedUnknown,
		DesiredStatus:      conn.DesiredStatus,
		InStatusSince:      timeNow(),
		Origin:             origin,
		LastCommandHeaders: headers,
	}
	origin.Send(Success{State: StateUnknown})

	if conn.DesiredStatus == connection.DesiredStatusOpen {
		c.self(OpenConnection{Headers: headers, Origin: noopReplySink{}})
		c.armInitTimer()
	}
	return StateUnknown
}

func (c *BaseClient) open(ctx context.Context, headers connection.Headers, origin ReplySink) State {
	c.stopInitTimer()
	conn := c.data.Connection
	if _, selfSent := origin.(noopReplySink); !selfSent {
		c.data.Origin = origin
	}
	c.data.LastCommandHeaders = headers
	c.armStateTimer()
	c.audit(StateUnknown, StateConnecting, headers)

	go func() {
		if err := precheck(ctx, conn.Endpoint.HostPort(), c.cfg.ReachabilityCache); err != nil {
			c.self(ConnectionFailure{Origin: origin, Cause: err, Description: "pre-check failed"})
			return
		}
		m, err := c.buildMapper(ctx, conn)
		if err != nil {
			c.self(ConnectionFailure{Origin: origin, Cause: err, Description: "mapper initialization failed"})
			return
		}
		if err := c.cfg.Transport.DoConnect(ctx, conn); err != nil {
			c.self(ConnectionFailure{Origin: origin, Cause: err, Description: "transport connect failed"})
			return
		}
		c.mapperInst = m
		c.self(ClientConnected{})
	}()
	return StateConnecting
}

// --- CONNECTING ---

func (c *BaseClient) handleConnecting(ctx context.Context, evt any) State {
	switch e := evt.(type) {
	case ClientConnected:
		c.stopTimers()
		if c.cfg.Publishers != nil {
			if err := c.cfg.Publishers.Start(ctx, c.data.Connection, c.mapperInst); err != nil {
				c.data = c.data.withStatus(ObservedFailed, err.Error(), timeNow())
				c.reply(Failure{Err: err})
				c.audit(StateConnecting, StateDisconnected, c.data.LastCommandHeaders)
				return StateDisconnected
			}
		}
		c.data = c.data.withStatus(ObservedOpen, "connected", timeNow())
		c.reply(Success{State: StateConnected})
		c.audit(StateConnecting, StateConnected, c.data.LastCommandHeaders)
		return StateConnected
	case ConnectionFailure:
		c.stopTimers()
		c.data = c.data.withStatus(ObservedFailed, e.Description, timeNow())
		c.reply(Failure{Err: e.Cause})
		c.audit(StateConnecting, StateDisconnected, c.data.LastCommandHeaders)
		return StateDisconnected
	case stateTimeoutEvent:
		if e.generation != c.generation {
			return StateConnecting
		}
		c.data = c.data.withStatus(ObservedFailed, "connect timed out", timeNow())
		c.reply(Failure{Err: &connerrors.ConnectionFailed{HostPort: c.data.Connection.Endpoint.HostPort(), Description: "timed out while connecting"}})
		c.audit(StateConnecting, StateDisconnected, c.data.LastCommandHeaders)
		return StateDisconnected
	default:
		c.illegalState(StateConnecting, originOf(evt))
		return StateConnecting
	}
}

// --- CONNECTED ---

func (c *BaseClient) handleConnected(ctx context.Context, evt any) State {
	switch e := evt.(type) {
	case OpenConnection:
		// Idempotent: already open, acknowledge without re-dialing.
		e.Origin.Send(Success{State: StateConnected})
		return StateConnected
	case CloseConnection:
		return c.close(ctx, e.Headers, e.Origin, nil)
	case DeleteConnection:
		return c.close(ctx, e.Headers, e.Origin, &deletePending{})
	case ModifyConnection:
		next := e.Connection
		return c.close(ctx, e.Headers, e.Origin, &modifyPending{Connection: next})
	case TestConnection:
		c.illegalState(StateConnected, e.Origin)
		return StateConnected
	case ConnectionFailure:
		c.data = c.data.withStatus(ObservedFailed, e.Description, timeNow())
		if c.cfg.Publishers != nil {
			c.cfg.Publishers.Stop(ctx)
		}
		c.audit(StateConnected, StateDisconnected, c.data.LastCommandHeaders)
		return StateDisconnected
	default:
		c.illegalState(StateConnected, originOf(evt))
		return StateConnected
	}
}

// --- DISCONNECTING ---

type deletePending struct{}
type modifyPending struct{ Connection connection.Connection }

func (c *BaseClient) close(ctx context.Context, headers connection.Headers, origin ReplySink, pending any) State {
	conn := c.data.Connection
	c.data.Origin = origin
	c.data.LastCommandHeaders = headers
	c.armStateTimer()
	c.audit(StateConnected, StateDisconnecting, headers)

	if c.cfg.Publishers != nil {
		c.cfg.Publishers.Stop(ctx)
	}

	switch p := pending.(type) {
	case *modifyPending:
		mod := p.Connection
		c.pendingModify = &mod
	case *deletePending:
		c.pendingModify = nil
	}

	go func() {
		_ = c.cfg.Transport.DoDisconnect(ctx, conn)
		c.self(ClientDisconnected{})
	}()
	return StateDisconnecting
}

func (c *BaseClient) handleDisconnecting(ctx context.Context, evt any) State {
	switch e := evt.(type) {
	case ClientDisconnected:
		c.stopTimers()
		c.data = c.data.withStatus(ObservedClosed, "disconnected", timeNow())

		if c.pendingModify != nil {
			next := *c.pendingModify
			c.pendingModify = nil
			return c.create(StateDisconnected, next, c.data.LastCommandHeaders, c.data.Origin)
		}

		c.reply(Success{State: StateDisconnected})
		c.audit(StateDisconnecting, StateDisconnected, c.data.LastCommandHeaders)
		return StateDisconnected
	case stateTimeoutEvent:
		if e.generation != c.generation {
			return StateDisconnecting
		}
		c.data = c.data.withStatus(ObservedFailed, "disconnect timed out", timeNow())
		c.reply(Failure{Err: &connerrors.ConnectionFailed{HostPort: c.data.Connection.Endpoint.HostPort(), Description: "timed out while disconnecting"}})
		c.audit(StateDisconnecting, StateDisconnected, c.data.LastCommandHeaders)
		c.pendingModify = nil
		return StateDisconnected
	default:
		c.illegalState(StateDisconnecting, originOf(evt))
		return StateDisconnecting
	}
}

// --- TESTING ---

func (c *BaseClient) test(ctx context.Context, conn connection.Connection, headers connection.Headers, origin ReplySink) State {
	if err := conn.Validate(); err != nil {
		origin.Send(Failure{Err: err})
		return StateUnknown
	}
	c.data.Connection = conn
	c.data.Origin = origin
	c.data.LastCommandHeaders = headers
	c.armStateTimer()
	c.audit(StateUnknown, StateTesting, headers)

	go func() {
		var outcome testOutcome
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			outcome.transportErr = c.cfg.Transport.DoTestConnection(ctx, conn)
		}()
		go func() {
			defer wg.Done()
			if conn.MappingContext != nil {
				_, outcome.mapperErr = c.cfg.MapperFactory(ctx, conn.ID, conn.MappingContext)
			}
		}()
		wg.Wait()
		c.self(outcome)
	}()
	return StateTesting
}

func (c *BaseClient) handleTesting(ctx context.Context, evt any) State {
	switch e := evt.(type) {
	case testOutcome:
		c.stopTimers()
		if e.transportErr != nil {
			c.reply(Failure{Err: e.transportErr})
		} else if e.mapperErr != nil {
			c.reply(Failure{Err: &connerrors.MapperConfigurationError{Cause: e.mapperErr}})
		} else {
			c.reply(Success{State: StateDisconnected})
		}
		c.audit(StateTesting, StateDisconnected, c.data.LastCommandHeaders)
		return StateDisconnected
	case stateTimeoutEvent:
		if e.generation != c.generation {
			return StateTesting
		}
		c.reply(Failure{Err: &connerrors.ConnectionUnavailable{Description: "test timed out"}})
		c.audit(StateTesting, StateDisconnected, c.data.LastCommandHeaders)
		return StateDisconnected
	default:
		c.illegalState(StateTesting, originOf(evt))
		return StateTesting
	}
}

// --- helpers ---

func (c *BaseClient) buildMapper(ctx context.Context, conn connection.Connection) (mapper.Mapper, error) {
	if c.cfg.MapperFactory == nil || conn.MappingContext == nil {
		return nil, nil
	}
	m, err := c.cfg.MapperFactory(ctx, conn.ID, conn.MappingContext)
	if err != nil {
		return nil, &connerrors.MapperConfigurationError{Cause: err}
	}
	return m, nil
}

func (c *BaseClient) reply(r any) {
	if c.data.Origin != nil {
		c.data.Origin.Send(r)
	}
}

func (c *BaseClient) replyMetrics(cmd RetrieveConnectionMetrics) {
	var sources metrics.SourceMetrics
	var targets metrics.TargetMetrics
	if c.cfg.Registry != nil {
		sources = c.cfg.Registry.AggregateSources(c.connectionID)
		targets = c.cfg.Registry.AggregateTargets(c.connectionID)
	}
	cmd.Origin.Send(RetrieveConnectionMetricsResponse{
		ConnectionID: c.connectionID,
		Sources:      sources,
		Targets:      targets,
		Headers:      cmd.Headers,
	})
}

func (c *BaseClient) illegalState(state State, origin ReplySink) {
	if origin == nil {
		origin = noopReplySink{}
	}
	origin.Send(Failure{Err: &connerrors.SignalInIllegalState{
		Operation: state.Lower(),
		Timeout:   c.cfg.StateTimeout,
	}})
}

func (c *BaseClient) clear() {
	c.stopTimers()
	c.pendingModify = nil
	c.data = Data{ConnectionID: c.connectionID, ObservedStatus: ObservedUnknown}
}

func (c *BaseClient) armStateTimer() {
	c.stopStateTimer()
	c.generation++
	gen := c.generation
	c.stateTimer = time.AfterFunc(c.cfg.StateTimeout, func() {
		c.self(stateTimeoutEvent{generation: gen})
	})
}

func (c *BaseClient) armInitTimer() {
	c.stopInitTimer()
	c.initTimer = time.AfterFunc(c.cfg.InitTimeout, func() {
		c.self(initTimeoutEvent{})
	})
}

func (c *BaseClient) stopStateTimer() {
	if c.stateTimer != nil {
		c.stateTimer.Stop()
		c.stateTimer = nil
	}
}

func (c *BaseClient) stopInitTimer() {
	if c.initTimer != nil {
		c.initTimer.Stop()
		c.initTimer = nil
	}
}

func (c *BaseClient) stopTimers() {
	c.stopStateTimer()
	c.stopInitTimer()
}

func (c *BaseClient) audit(from, to State, headers connection.Headers) {
	c.logger.Info().Str("from", string(from)).Str("to", string(to)).
		Str("correlation_id", headers.CorrelationID()).Msg("Connection state transition.")
	if c.cfg.Auditor == nil {
		return
	}
	entry := TransitionAuditEntry{
		ConnectionID:  c.connectionID,
		From:          from,
		To:            to,
		CorrelationID: headers.CorrelationID(),
		Timestamp:     timeNow(),
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = c.cfg.Auditor.Record(ctx, entry)
	}()
}

// originOf extracts the ReplySink from a command-shaped event so an
// unhandled signal can still be answered, or nil for internal events
// that carry none.
func originOf(evt any) ReplySink {
	switch e := evt.(type) {
	case CreateConnection:
		return e.Origin
	case ModifyConnection:
		return e.Origin
	case OpenConnection:
		return e.Origin
	case CloseConnection:
		return e.Origin
	case DeleteConnection:
		return e.Origin
	case TestConnection:
		return e.Origin
	case ConnectionFailure:
		return e.Origin
	default:
		return nil
	}
}

func timeNow() time.Time { return time.Now() }
