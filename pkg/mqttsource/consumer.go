package mqttsource

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/illmade-knight/go-connectivity/pkg/connection"
	"github.com/illmade-knight/go-connectivity/pkg/mapper"
)

// Consumer subscribes to one Source's address and emits
// mapper.ExternalMessage onto Messages(), the Source-side counterpart
// to pkg/httppush's outbound Flow.
type Consumer struct {
	pahoClient mqtt.Client
	logger     zerolog.Logger
	cfg        Config
	source     connection.Source
	outputChan chan mapper.ExternalMessage
	doneChan   chan struct{}
	stopOnce   sync.Once
}

// NewConsumer constructs a Consumer; it does not connect until Start.
func NewConsumer(cfg Config, source connection.Source, logger zerolog.Logger) (*Consumer, error) {
	if cfg.BrokerURL == "" {
		return nil, fmt.Errorf("mqttsource: broker URL is required")
	}
	if source.Address == "" {
		return nil, fmt.Errorf("mqttsource: source address (topic) is required")
	}
	return &Consumer{
		logger:     logger.With().Str("component", "mqttsource.Consumer").Str("source", source.Address).Logger(),
		cfg:        cfg,
		source:     source,
		outputChan: make(chan mapper.ExternalMessage, 1000),
		doneChan:   make(chan struct{}),
	}, nil
}

// Messages returns the channel Consumer delivers inbound messages on.
func (c *Consumer) Messages() <-chan mapper.ExternalMessage {
	return c.outputChan
}

// Start connects to the broker and subscribes to the Source's topic.
// A failed initial connection is logged, not fatal. AutoReconnect only
// re-dials after an established connection is lost, so a failed
// initial connect is not retried.
func (c *Consumer) Start(ctx context.Context) error {
	opts, err := c.buildOptions(ctx)
	if err != nil {
		return err
	}
	c.pahoClient = mqtt.NewClient(opts)

	c.logger.Info().Str("broker", c.cfg.BrokerURL).Msg("Connecting to MQTT broker.")
	if token := c.pahoClient.Connect(); token.WaitTimeout(c.cfg.ConnectTimeout) && token.Error() != nil {
		c.logger.Error().Err(token.Error()).Msg("Initial MQTT connect failed.")
	}

	go func() {
		<-ctx.Done()
		_ = c.Stop(context.Background())
	}()
	return nil
}

// Stop disconnects and closes Messages(). Safe to call more than once.
func (c *Consumer) Stop(context.Context) error {
	c.stopOnce.Do(func() {
		if c.pahoClient != nil && c.pahoClient.IsConnected() {
			if token := c.pahoClient.Unsubscribe(c.source.Address); token.WaitTimeout(2*time.Second) && token.Error() != nil {
				c.logger.Warn().Err(token.Error()).Msg("Failed to unsubscribe from MQTT topic.")
			}
			c.pahoClient.Disconnect(500)
		}
		close(c.outputChan)
		close(c.doneChan)
	})
	return nil
}

// Done is closed once Stop has fully run.
func (c *Consumer) Done() <-chan struct{} {
	return c.doneChan
}

// HandlerForTest exposes the internal Paho message handler so tests
// can simulate an inbound publish without a live broker.
func (c *Consumer) HandlerForTest(ctx context.Context) mqtt.MessageHandler {
	return c.handleIncoming(ctx)
}

func (c *Consumer) buildOptions(ctx context.Context) (*mqtt.ClientOptions, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(c.cfg.BrokerURL)
	opts.SetClientID(uniqueClientID(c.cfg.ClientIDPrefix))
	opts.SetUsername(c.cfg.Username)
	opts.SetPassword(c.cfg.Password)
	opts.SetKeepAlive(c.cfg.KeepAlive)
	opts.SetConnectTimeout(c.cfg.ConnectTimeout)
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(c.cfg.ReconnectWaitMax)
	opts.SetOrderMatters(false)
	opts.SetDefaultPublishHandler(c.handleIncoming(ctx))

	qos := c.cfg.QoS
	opts.SetOnConnectHandler(func(client mqtt.Client) {
		c.logger.Info().Str("broker", c.cfg.BrokerURL).Msg("Connected to MQTT broker.")
		token := client.Subscribe(c.source.Address, qos, nil)
		go func() {
			if token.WaitTimeout(5*time.Second) && token.Error() != nil {
				c.logger.Error().Err(token.Error()).Msg("Failed to subscribe to MQTT topic.")
			}
		}()
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		c.logger.Error().Err(err).Msg("Lost MQTT connection.")
	})

	if !c.cfg.AllowPublicBroker && c.cfg.Username == "" {
		c.logger.Warn().Msg("Connecting to MQTT broker without credentials; set AllowPublicBroker to silence this warning.")
	}

	if isTLSBroker(c.cfg.BrokerURL) {
		tlsConfig, err := newTLSConfig(c.cfg)
		if err != nil {
			return nil, fmt.Errorf("mqttsource: building tls config: %w", err)
		}
		opts.SetTLSConfig(tlsConfig)
	}
	return opts, nil
}

func (c *Consumer) handleIncoming(ctx context.Context) mqtt.MessageHandler {
	return func(_ mqtt.Client, msg mqtt.Message) {
		payload := make([]byte, len(msg.Payload()))
		copy(payload, msg.Payload())

		headers := connection.Headers{"mqtt_topic": msg.Topic()}
		external := mapper.NewBytesMessage(headers, payload)

		select {
		case c.outputChan <- external:
		case <-ctx.Done():
			c.logger.Warn().Str("topic", msg.Topic()).Msg("Shutting down, dropping inbound MQTT message.")
		}
	}
}

func newTLSConfig(cfg Config) (*tls.Config, error) {
	tlsConfig := &tls.Config{InsecureSkipVerify: cfg.InsecureSkipVerify}
	if cfg.CACertFile != "" {
		caCert, err := os.ReadFile(cfg.CACertFile)
		if err != nil {
			return nil, fmt.Errorf("reading CA cert file %s: %w", cfg.CACertFile, err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("appending CA cert from %s", cfg.CACertFile)
		}
		tlsConfig.RootCAs = pool
	}
	if cfg.ClientCertFile != "" && cfg.ClientKeyFile != "" {
		cert, err := tls.LoadX509KeyPair(cfg.ClientCertFile, cfg.ClientKeyFile)
		if err != nil {
			return nil, fmt.Errorf("loading client cert/key pair: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}
	return tlsConfig, nil
}
