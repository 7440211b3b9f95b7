// Package mqttpub publishes telemetry messages to an MQTT broker using the
// Eclipse Paho v2 autopaho connection manager, which owns reconnection and
// session state so the sampling loop never has to.
package mqttpub

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"

	"github.com/cengaverrover/bno055-telemetry/internal/telemetry"
)

const (
	keepAlive         = 20 // seconds
	connectionTimeout = 10 * time.Second
	disconnectTimeout = 2 * time.Second

	// publishTimeout bounds how long a publish waits for the broker, so an
	// outage slows the sampling loop instead of stalling it.
	publishTimeout = time.Second
)

// Config describes the broker connection and the topic telemetry goes to.
type Config struct {
	BrokerURL string `yaml:"brokerUrl"`
	ClientID  string `yaml:"clientId"`
	Topic     string `yaml:"topic"`
	QoS       byte   `yaml:"qos"`
}

// WithLogger sets the logger for connection lifecycle events.
func WithLogger(logger *slog.Logger) func(*Publisher) {
	return func(p *Publisher) {
		p.logger = logger.With(slog.String("component", "mqtt"))
	}
}

// WithConnectTimeout sets how long New waits for the initial broker
// connection before proceeding without one.
func WithConnectTimeout(timeout time.Duration) func(*Publisher) {
	return func(p *Publisher) {
		p.connectTimeout = timeout
	}
}

// Publisher is an MQTT-backed telemetry sink. Messages are JSON-encoded and
// published with the configured QoS (0 by default).
type Publisher struct {
	conn   *autopaho.ConnectionManager
	topic  string
	qos    byte
	logger *slog.Logger

	connectTimeout time.Duration
}

// New starts the broker connection and waits briefly for it to come up. An
// unreachable broker is not fatal: autopaho keeps retrying in the background
// and publishing resumes once the connection is established.
func New(ctx context.Context, config Config, options ...func(*Publisher)) (*Publisher, error) {
	brokerURL, err := url.Parse(config.BrokerURL)
	if err != nil {
		return nil, fmt.Errorf("parsing broker URL: %w", err)
	}

	p := Publisher{
		topic:          config.Topic,
		qos:            config.QoS,
		logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
		connectTimeout: connectionTimeout,
	}

	for _, option := range options {
		option(&p)
	}

	clientConfig := autopaho.ClientConfig{
		ServerUrls: []*url.URL{brokerURL},
		KeepAlive:  keepAlive,
		OnConnectionUp: func(_ *autopaho.ConnectionManager, _ *paho.Connack) {
			p.logger.Info("connected to broker", slog.String("broker", brokerURL.Redacted()))
		},
		OnConnectError: func(err error) {
			p.logger.Warn(fmt.Sprintf("broker connection error: %s", err.Error()))
		},
		ClientConfig: paho.ClientConfig{
			ClientID: config.ClientID,
			OnClientError: func(err error) {
				p.logger.Warn(fmt.Sprintf("client error: %s", err.Error()))
			},
		},
	}

	conn, err := autopaho.NewConnection(ctx, clientConfig)
	if err != nil {
		return nil, fmt.Errorf("creating broker connection: %w", err)
	}

	connectCtx, cancel := context.WithTimeout(ctx, p.connectTimeout)
	defer cancel()

	if err = conn.AwaitConnection(connectCtx); err != nil {
		if ctx.Err() != nil {
			_ = conn.Disconnect(context.Background())
			return nil, fmt.Errorf("awaiting broker connection: %w", err)
		}
		p.logger.Warn(fmt.Sprintf("broker is not reachable, continuing without a connection: %s", err.Error()))
	}

	p.conn = conn
	return &p, nil
}

// Publish JSON-encodes the message and hands it to the connection manager.
// The message is fully serialized before this method returns, so the caller
// may reuse it. The wait for a down broker is bounded by publishTimeout.
func (p *Publisher) Publish(ctx context.Context, m *telemetry.Message) error {
	payload, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encoding telemetry message: %w", err)
	}

	publishCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	if _, err = p.conn.Publish(publishCtx, &paho.Publish{
		Topic:   p.topic,
		QoS:     p.qos,
		Payload: payload,
	}); err != nil {
		return fmt.Errorf("publishing to %s: %w", p.topic, err)
	}
	return nil
}

// Close disconnects from the broker, allowing in-flight packets a short
// grace period.
func (p *Publisher) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), disconnectTimeout)
	defer cancel()

	return p.conn.Disconnect(ctx)
}

var _ telemetry.Publisher = (*Publisher)(nil)
