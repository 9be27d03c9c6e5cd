package mqttconverter

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/illmade-knight/go-mqttinflux/pkg/messagepipeline"
	"github.com/rs/zerolog"
)

// MqttConsumer implements messagepipeline.MessageConsumer for an MQTT broker.
//
// Paho invokes the message handler from a single goroutine in arrival order.
// The handler blocks until a pipeline worker takes the message, so a slow
// pipeline backs messages up inside the MQTT client instead of queueing them
// here.
type MqttConsumer struct {
	pahoClient mqtt.Client
	logger     zerolog.Logger
	mqttCfg    *MQTTClientConfig

	outputChan chan messagepipeline.Message
	doneChan   chan struct{}
	stopping   chan struct{}
	sendMu     sync.RWMutex
	stopOnce   sync.Once
}

// NewMqttConsumer creates a new MqttConsumer. It does not connect until Start is called.
func NewMqttConsumer(cfg *MQTTClientConfig, logger zerolog.Logger) (*MqttConsumer, error) {
	return NewMqttConsumerWithClient(nil, cfg, logger)
}

// NewMqttConsumerWithClient creates an MqttConsumer around an existing client.
// A nil client is built from cfg on Start. A supplied client must already be
// configured to call the consumer's handlers.
func NewMqttConsumerWithClient(client mqtt.Client, cfg *MQTTClientConfig, logger zerolog.Logger) (*MqttConsumer, error) {
	if cfg == nil || cfg.BrokerURL == "" {
		return nil, fmt.Errorf("MQTT broker URL is required")
	}
	if len(cfg.Topics) == 0 {
		return nil, fmt.Errorf("at least one MQTT topic is required")
	}
	if cfg.QoS > 2 {
		return nil, fmt.Errorf("invalid MQTT QoS %d", cfg.QoS)
	}
	return &MqttConsumer{
		pahoClient: client,
		logger:     logger.With().Str("component", "MqttConsumer").Logger(),
		mqttCfg:    cfg,
		outputChan: make(chan messagepipeline.Message),
		doneChan:   make(chan struct{}),
		stopping:   make(chan struct{}),
	}, nil
}

// Messages returns the channel received messages are delivered on.
func (c *MqttConsumer) Messages() <-chan messagepipeline.Message {
	return c.outputChan
}

// Start connects to the broker. Failing to connect the first time is an
// error; once connected, lost sessions are re-established by the client and
// resubscribed on every reconnect.
func (c *MqttConsumer) Start(ctx context.Context) error {
	if c.pahoClient == nil {
		c.pahoClient = mqtt.NewClient(c.createMqttOptions(ctx))
	}

	c.logger.Info().Str("broker", c.mqttCfg.BrokerURL).Msg("Attempting to connect to MQTT broker...")
	token := c.pahoClient.Connect()
	if !token.WaitTimeout(c.connectTimeout()) {
		return fmt.Errorf("timed out connecting to MQTT broker %s", c.mqttCfg.BrokerURL)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to connect to MQTT broker %s: %w", c.mqttCfg.BrokerURL, err)
	}
	c.logger.Info().Msg("Initial connection to MQTT broker successful.")

	go func() {
		select {
		case <-ctx.Done():
			c.logger.Info().Msg("Shutdown signal received, ensuring consumer is stopped.")
			_ = c.Stop(context.Background())
		case <-c.doneChan:
		}
	}()

	return nil
}

// Stop disconnects from the broker and closes the Messages channel.
func (c *MqttConsumer) Stop(ctx context.Context) error {
	c.stopOnce.Do(func() {
		c.logger.Info().Msg("Stopping MqttConsumer...")
		close(c.stopping)

		if c.pahoClient != nil && c.pahoClient.IsConnected() {
			if token := c.pahoClient.Unsubscribe(c.mqttCfg.Topics...); token.WaitTimeout(2*time.Second) && token.Error() != nil {
				c.logger.Warn().Err(token.Error()).Strs("topics", c.mqttCfg.Topics).Msg("Failed to unsubscribe from MQTT topics.")
			}
			c.pahoClient.Disconnect(500)
			c.logger.Info().Msg("Paho MQTT client disconnected.")
		}

		// Wait for any handler still trying to deliver before closing.
		c.sendMu.Lock()
		close(c.outputChan)
		c.sendMu.Unlock()

		close(c.doneChan)
		c.logger.Info().Msg("MqttConsumer stopped.")
	})
	return nil
}

// Done returns a channel that is closed when the consumer has fully stopped.
func (c *MqttConsumer) Done() <-chan struct{} {
	return c.doneChan
}

// IsConnected reports whether the broker session is currently up.
func (c *MqttConsumer) IsConnected() bool {
	return c.pahoClient != nil && c.pahoClient.IsConnected()
}

// GetMessageHandlerForTest returns the internal message handler for unit testing.
func (c *MqttConsumer) GetMessageHandlerForTest(ctx context.Context) mqtt.MessageHandler {
	return c.handleIncomingMessage(ctx)
}

// GetConnectHandlerForTest returns the internal on-connect handler for unit testing.
func (c *MqttConsumer) GetConnectHandlerForTest() mqtt.OnConnectHandler {
	return c.handleConnect
}

// handleConnect subscribes to every configured topic. It runs on each
// (re)connect; subscribing again to the same filters is harmless.
func (c *MqttConsumer) handleConnect(client mqtt.Client) {
	c.logger.Info().Str("broker", c.mqttCfg.BrokerURL).Msg("Paho client connected to MQTT broker.")

	filters := make(map[string]byte, len(c.mqttCfg.Topics))
	for _, topic := range c.mqttCfg.Topics {
		filters[topic] = c.mqttCfg.QoS
	}
	token := client.SubscribeMultiple(filters, nil)
	// Waiting inside the connect handler would block the client's router.
	go func() {
		if token.WaitTimeout(5*time.Second) && token.Error() != nil {
			c.logger.Error().Err(token.Error()).Strs("topics", c.mqttCfg.Topics).Msg("Failed to subscribe to MQTT topics.")
			return
		}
		c.logger.Info().Strs("topics", c.mqttCfg.Topics).Msg("Subscribed to MQTT topics.")
	}()
}

func (c *MqttConsumer) handleIncomingMessage(ctx context.Context) mqtt.MessageHandler {
	return func(_ mqtt.Client, msg mqtt.Message) {
		c.logger.Debug().Str("topic", msg.Topic()).Msg("Received MQTT message")
		payloadCopy := make([]byte, len(msg.Payload()))
		copy(payloadCopy, msg.Payload())

		consumedMsg := messagepipeline.Message{
			MessageData: messagepipeline.MessageData{
				ID:          strconv.Itoa(int(msg.MessageID())),
				Payload:     payloadCopy,
				PublishTime: time.Now().UTC(),
			},
			Attributes: map[string]string{messagepipeline.TopicAttribute: msg.Topic()},
			// MQTT acknowledgement happens at the protocol level once this
			// handler returns; the pipeline has nothing left to do.
			Ack:  func() {},
			Nack: func() {},
		}

		c.sendMu.RLock()
		defer c.sendMu.RUnlock()
		select {
		case <-c.stopping:
			c.logger.Warn().Str("topic", msg.Topic()).Msg("Consumer is stopping, dropping MQTT message.")
			return
		default:
		}
		select {
		case c.outputChan <- consumedMsg:
		case <-c.stopping:
			c.logger.Warn().Str("topic", msg.Topic()).Msg("Consumer is stopping, dropping MQTT message.")
		case <-ctx.Done():
			c.logger.Warn().Str("topic", msg.Topic()).Msg("Consumer is shutting down, dropping MQTT message.")
		}
	}
}

func (c *MqttConsumer) connectTimeout() time.Duration {
	if c.mqttCfg.ConnectTimeout > 0 {
		return c.mqttCfg.ConnectTimeout
	}
	return 10 * time.Second
}

func (c *MqttConsumer) clientID() string {
	if !c.mqttCfg.UniqueClientID {
		return c.mqttCfg.ClientID
	}
	return fmt.Sprintf("%s-%s", c.mqttCfg.ClientID, uuid.NewString()[:8])
}

// createMqttOptions assembles the Paho client options from the config.
func (c *MqttConsumer) createMqttOptions(ctx context.Context) *mqtt.ClientOptions {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(c.mqttCfg.BrokerURL)
	opts.SetClientID(c.clientID())
	opts.SetUsername(c.mqttCfg.Username)
	opts.SetPassword(c.mqttCfg.Password)
	opts.SetKeepAlive(c.mqttCfg.KeepAlive)
	opts.SetConnectTimeout(c.connectTimeout())
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(c.mqttCfg.ReconnectWaitMax)
	opts.SetOrderMatters(true)
	opts.SetDefaultPublishHandler(c.handleIncomingMessage(ctx))
	opts.SetOnConnectHandler(c.handleConnect)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		c.logger.Error().Err(err).Msg("Paho client lost MQTT connection.")
	})
	opts.SetReconnectingHandler(func(_ mqtt.Client, _ *mqtt.ClientOptions) {
		c.logger.Info().Msg("Paho client reconnecting to MQTT broker...")
	})

	if strings.HasPrefix(strings.ToLower(c.mqttCfg.BrokerURL), "tls://") ||
		strings.HasPrefix(strings.ToLower(c.mqttCfg.BrokerURL), "ssl://") {
		tlsConfig, err := newTLSConfig(c.mqttCfg)
		if err != nil {
			c.logger.Error().Err(err).Msg("Failed to create TLS config, proceeding without it.")
		} else {
			opts.SetTLSConfig(tlsConfig)
			c.logger.Info().Msg("TLS configured for MQTT client.")
		}
	}
	return opts
}

// newTLSConfig is a helper to create a tls.Config.
func newTLSConfig(cfg *MQTTClientConfig) (*tls.Config, error) {
	tlsConfig := &tls.Config{InsecureSkipVerify: cfg.InsecureSkipVerify}
	if cfg.CACertFile != "" {
		caCert, err := os.ReadFile(cfg.CACertFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA cert file %s: %w", cfg.CACertFile, err)
		}
		caCertPool := x509.NewCertPool()
		if !caCertPool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("failed to append CA cert from %s", cfg.CACertFile)
		}
		tlsConfig.RootCAs = caCertPool
	}
	if cfg.ClientCertFile != "" && cfg.ClientKeyFile != "" {
		cert, err := tls.LoadX509KeyPair(cfg.ClientCertFile, cfg.ClientKeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load client certificate/key pair: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}
	return tlsConfig, nil
}
