package signalbus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"
)

// PubsubBusConfig configures a PubsubBus. PublishTopicID is the topic
// every connection's outbound signals are published to; InboundPrefix
// names the subscription a connection's InboundSignal channel is read
// from as InboundPrefix+connectionID, the way the teacher's
// GooglePubsubConsumer is handed one subscription per caller.
type PubsubBusConfig struct {
	ProjectID       string
	CredentialsFile string
	PublishTopicID  string
	InboundPrefix   string
	// ClientOptions lets tests inject a connection to an in-process
	// pstest server instead of dialing real Pub/Sub, mirroring the
	// teacher's messagepipeline test setup.
	ClientOptions []option.ClientOption
}

// PubsubBus is the cloud.google.com/go/pubsub-backed Bus
// implementation, grounded on the teacher's GoogleSimplePublisher
// (publish-and-log-async idiom) and GooglePubsubConsumer (subscription
// receive-loop idiom).
type PubsubBus struct {
	client        *pubsub.Client
	publishTopic  *pubsub.Topic
	inboundPrefix string
	logger        zerolog.Logger

	mu   sync.Mutex
	subs map[string]context.CancelFunc
	wg   sync.WaitGroup
}

// NewPubsubBus connects to Pub/Sub and verifies the publish topic
// exists before returning, exactly as
// messagepipeline.NewGoogleSimplePublisher does.
func NewPubsubBus(ctx context.Context, cfg PubsubBusConfig, logger zerolog.Logger) (*PubsubBus, error) {
	opts := append([]option.ClientOption{}, cfg.ClientOptions...)
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	client, err := pubsub.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("signalbus: creating pubsub client: %w", err)
	}

	topic := client.Topic(cfg.PublishTopicID)
	exists, err := topic.Exists(ctx)
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("signalbus: checking topic %s: %w", cfg.PublishTopicID, err)
	}
	if !exists {
		_ = client.Close()
		return nil, fmt.Errorf("signalbus: topic %s does not exist", cfg.PublishTopicID)
	}

	return &PubsubBus{
		client:        client,
		publishTopic:  topic,
		inboundPrefix: cfg.InboundPrefix,
		logger:        logger.With().Str("component", "PubsubBus").Logger(),
		subs:          make(map[string]context.CancelFunc),
	}, nil
}

// Publish mirrors GoogleSimplePublisher.Publish: queue and return
// immediately, logging the eventual publish outcome asynchronously so
// a slow broker never blocks a Pipeline worker.
func (b *PubsubBus) Publish(ctx context.Context, connectionID string, signal []byte, attrs map[string]string) error {
	attributes := make(map[string]string, len(attrs)+1)
	for k, v := range attrs {
		attributes[k] = v
	}
	attributes["connection_id"] = connectionID

	result := b.publishTopic.Publish(ctx, &pubsub.Message{Data: signal, Attributes: attributes})
	go func() {
		getCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if _, err := result.Get(getCtx); err != nil {
			b.logger.Error().Err(err).Str("connection_id", connectionID).Msg("Failed to publish signal.")
		}
	}()
	return nil
}

// Subscribe starts a Receive loop on the subscription named
// InboundPrefix+connectionID, grounded on GooglePubsubConsumer.Start's
// receive-into-channel shape.
func (b *PubsubBus) Subscribe(ctx context.Context, connectionID string) (<-chan InboundSignal, error) {
	subID := b.inboundPrefix + connectionID
	sub := b.client.Subscription(subID)

	existsCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()
	exists, err := sub.Exists(existsCtx)
	if err != nil || !exists {
		return nil, fmt.Errorf("signalbus: subscription %s does not exist: %w", subID, err)
	}

	out := make(chan InboundSignal, 64)
	receiveCtx, receiveCancel := context.WithCancel(ctx)

	b.mu.Lock()
	b.subs[connectionID] = receiveCancel
	b.mu.Unlock()

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		defer close(out)
		err := sub.Receive(receiveCtx, func(_ context.Context, msg *pubsub.Message) {
			payload := make([]byte, len(msg.Data))
			copy(payload, msg.Data)
			select {
			case out <- InboundSignal{ConnectionID: connectionID, Payload: payload, Attributes: msg.Attributes}:
				msg.Ack()
			case <-receiveCtx.Done():
				msg.Nack()
			}
		})
		if err != nil && receiveCtx.Err() == nil {
			b.logger.Error().Err(err).Str("connection_id", connectionID).Msg("Pub/Sub receive loop exited with error.")
		}
	}()
	return out, nil
}

// Unsubscribe stops the receive loop for connectionID, if one is
// running. Not part of the Bus interface proper (callers rarely need
// to unsubscribe independently of Close), but exposed so
// pkg/supervisor can tear a single connection's subscription down on
// DeleteConnection without closing the whole bus.
func (b *PubsubBus) Unsubscribe(connectionID string) {
	b.mu.Lock()
	cancel, ok := b.subs[connectionID]
	delete(b.subs, connectionID)
	b.mu.Unlock()
	if ok {
		cancel()
	}
}

// Close stops every active subscription and the publish topic, then
// closes the underlying client.
func (b *PubsubBus) Close() error {
	b.mu.Lock()
	for id, cancel := range b.subs {
		cancel()
		delete(b.subs, id)
	}
	b.mu.Unlock()
	b.wg.Wait()
	b.publishTopic.Stop()
	return b.client.Close()
}
