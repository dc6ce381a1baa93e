// Package publisher implements the protocol-agnostic publishing
// pipeline a connected client runs per Target: a bounded queue with
// drop-newest backpressure draining into a Flow that performs the
// actual protocol-level send (spec.md §4.4, §4.5).
package publisher

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/illmade-knight/go-connectivity/pkg/connerrors"
	"github.com/illmade-knight/go-connectivity/pkg/connection"
	"github.com/illmade-knight/go-connectivity/pkg/mapper"
	"github.com/illmade-knight/go-connectivity/pkg/metrics"
)

// DefaultMaxQueueSize bounds a Pipeline's input queue (spec.md §4.4).
const DefaultMaxQueueSize = 200

// DefaultPublishTimeout bounds a single Flow.Publish call.
const DefaultPublishTimeout = 10 * time.Second

// Request is what a Pipeline hands its Flow for one outbound item: the
// mapped wire message plus the facets a protocol specialization needs
// to build an acknowledgement or matching command-response itself
// (spec.md §4.5's publish API: autoAckTarget, maxTotalMessageSize,
// ackSizeQuota).
type Request struct {
	ExternalMessage     mapper.ExternalMessage
	SignalInfo          mapper.SignalInfo
	AutoAckLabel        string
	MaxTotalMessageSize int64
	AckSizeQuota        int64
}

// Flow is the protocol-specific send a Pipeline drains into. HTTP-push
// (pkg/httppush) and any future protocol specialization implement this;
// Pipeline itself knows nothing about wire formats.
type Flow interface {
	// Publish sends req.ExternalMessage and returns the resulting
	// signals (typically one Acknowledgement, plus a matching
	// command-response when req.SignalInfo.IsMessageCommand). A Flow
	// whose protocol acknowledges asynchronously (e.g. matching a reply
	// by correlation id on a shared stream) is still expected to present
	// a synchronous Publish by resolving internally before returning.
	Publish(ctx context.Context, req Request) ([]mapper.Signal, error)
}

// ResultFuture is completed exactly once, by whichever worker actually
// processes (or drops) the PublishContext it was issued with.
type ResultFuture struct {
	done   chan struct{}
	once   sync.Once
	result PublishResult
}

// PublishResult is what a ResultFuture resolves to.
type PublishResult struct {
	ResponseSignals []mapper.Signal
	Err             error
}

// NewResultFuture constructs an incomplete future.
func NewResultFuture() *ResultFuture {
	return &ResultFuture{done: make(chan struct{})}
}

// Complete resolves the future. Only the first call has any effect, so
// a future is safe to complete from more than one code path racing to
// report an outcome (e.g. a drop at enqueue time vs. a worker result).
func (f *ResultFuture) Complete(result PublishResult) {
	f.once.Do(func() {
		f.result = result
		close(f.done)
	})
}

// Wait blocks until the future resolves or ctx is done.
func (f *ResultFuture) Wait(ctx context.Context) (PublishResult, error) {
	select {
	case <-f.done:
		return f.result, nil
	case <-ctx.Done():
		return PublishResult{}, ctx.Err()
	}
}

// PublishContext is one unit of work submitted to a Pipeline: the
// outbound signal plus the future its eventual outcome resolves.
// AutoAckLabel, MaxTotalMessageSize and AckSizeQuota mirror the
// publish() parameters from spec.md §4.4.
type PublishContext struct {
	Signal              mapper.Signal
	Headers             connection.Headers
	CorrelationID       string
	AutoAckLabel        string
	MaxTotalMessageSize int64
	AckSizeQuota        int64
	Future              *ResultFuture
}

// Config configures one Pipeline instance, one per Target.
type Config struct {
	Target         connection.Target
	Flow           Flow
	Mapper         mapper.Mapper
	Registry       *metrics.Registry
	ConnectionID   string
	MaxQueueSize   int
	PublishTimeout time.Duration
	Logger         zerolog.Logger
}

// Pipeline is the bounded-queue-plus-worker shape: Submit enqueues
// without blocking the caller, dropping the newest item when the queue
// is full rather than applying backpressure upstream (spec.md §4.4).
type Pipeline struct {
	cfg    Config
	queue  chan PublishContext
	wg     sync.WaitGroup
	logger zerolog.Logger
}

// New constructs a Pipeline but does not start its worker; call Start.
func New(cfg Config) *Pipeline {
	if cfg.MaxQueueSize <= 0 {
		cfg.MaxQueueSize = DefaultMaxQueueSize
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = DefaultPublishTimeout
	}
	return &Pipeline{
		cfg:    cfg,
		queue:  make(chan PublishContext, cfg.MaxQueueSize),
		logger: cfg.Logger.With().Str("component", "Pipeline").Str("target", cfg.Target.Address).Logger(),
	}
}

// Start launches the single worker draining the queue. ctx scopes the
// worker's lifetime; callers still call Stop for an orderly drain.
func (p *Pipeline) Start(ctx context.Context) {
	p.wg.Add(1)
	go p.worker(ctx)
}

// Stop closes the queue and waits for the worker to drain whatever was
// already enqueued, bounded by ctx.
func (p *Pipeline) Stop(ctx context.Context) {
	close(p.queue)
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		p.logger.Warn().Msg("Timed out waiting for publisher pipeline to drain.")
	}
}

// Submit enqueues pc for publishing. If the queue is full, pc is
// dropped immediately (drop-newest) rather than blocking the submitting
// goroutine, and the dropped-metric counter is incremented.
func (p *Pipeline) Submit(pc PublishContext) {
	if pc.CorrelationID == "" {
		pc.CorrelationID = pc.Headers.CorrelationID()
	}
	select {
	case p.queue <- pc:
	default:
		p.recordDrop()
		pc.Future.Complete(PublishResult{Err: &connerrors.MessageSendingFailed{
			Reason: "too many in-flight requests",
		}})
	}
}

func (p *Pipeline) worker(ctx context.Context) {
	defer p.wg.Done()
	for pc := range p.queue {
		p.process(ctx, pc)
	}
}

func (p *Pipeline) process(ctx context.Context, pc PublishContext) {
	publishCtx, cancel := context.WithTimeout(ctx, p.cfg.PublishTimeout)
	defer cancel()

	outbound, err := p.cfg.Mapper.MapOutbound(publishCtx, pc.Signal)
	if err != nil {
		p.recordDrop()
		pc.Future.Complete(PublishResult{Err: err})
		return
	}
	if pc.CorrelationID == "" {
		pc.CorrelationID = newCorrelationID()
	}
	if outbound.Headers.CorrelationID() == "" {
		headers := make(connection.Headers, len(outbound.Headers)+1)
		for k, v := range outbound.Headers {
			headers[k] = v
		}
		headers[connection.CorrelationIDHeader] = pc.CorrelationID
		outbound.Headers = headers
	}

	var signalInfo mapper.SignalInfo
	if pc.Signal != nil {
		signalInfo = pc.Signal.SignalInfo()
	}
	signals, err := p.cfg.Flow.Publish(publishCtx, Request{
		ExternalMessage:     outbound,
		SignalInfo:          signalInfo,
		AutoAckLabel:        pc.AutoAckLabel,
		MaxTotalMessageSize: pc.MaxTotalMessageSize,
		AckSizeQuota:        pc.AckSizeQuota,
	})
	if err != nil {
		p.recordDrop()
		pc.Future.Complete(PublishResult{Err: err})
		return
	}
	p.recordPublished()
	pc.Future.Complete(PublishResult{ResponseSignals: signals})
}

func (p *Pipeline) recordDrop() {
	if p.cfg.Registry == nil {
		return
	}
	address := p.cfg.Target.Address
	if address == "" {
		address = metrics.ResponsesAddress
	}
	p.cfg.Registry.Dropped(p.cfg.ConnectionID, metrics.DirectionOutbound, address).Increment(false)
}

func (p *Pipeline) recordPublished() {
	if p.cfg.Registry == nil {
		return
	}
	p.cfg.Registry.Published(p.cfg.ConnectionID, metrics.DirectionOutbound, p.cfg.Target.Address).Increment(true)
}

// newCorrelationID supplies the correlation id for a PublishContext
// that reaches process without one.
func newCorrelationID() string {
	return uuid.NewString()
}
