// Package mqttpub publishes presence snapshots to an MQTT broker as retained
// JSON, so late subscribers see the current presence immediately.
package mqttpub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"
	"github.com/srg/venuesense/presence"
)

const (
	defaultConnectTimeout    = 10 * time.Second
	defaultPublishTimeout    = 5 * time.Second
	defaultDisconnectQuiesce = 250 // milliseconds
	defaultKeepAlive         = 60 * time.Second
	maxQoS                   = 2
)

var (
	ErrNotConnected     = errors.New("mqtt: client not connected")
	ErrConnectionFailed = errors.New("mqtt: connection failed")
	ErrPublishFailed    = errors.New("mqtt: publish failed")
	ErrInvalidQoS       = errors.New("mqtt: invalid QoS level (must be 0, 1, or 2)")
	ErrInvalidTopic     = errors.New("mqtt: topic cannot be empty")
)

// Config is the broker connection and topic layout
type Config struct {
	Broker   string
	ClientID string
	Topic    string
	QoS      byte
	Username string
	Password string
}

// Message is the published payload
type Message struct {
	presence.Presence
	Near        bool      `json:"near"`
	PublishedAt time.Time `json:"published_at"`
}

// Publisher writes presence snapshots to a retained topic.
type Publisher struct {
	client        pahomqtt.Client
	topic         string
	qos           byte
	nearThreshold float64
	logger        *logrus.Logger
	now           func() time.Time
}

// StatusTopic returns the availability topic for a presence topic
func StatusTopic(topic string) string {
	return topic + "/status"
}

// Connect dials the broker and returns a ready publisher. The broker marks
// the publisher offline through a last-will message if the process dies.
func Connect(cfg Config, nearThreshold float64, logger *logrus.Logger) (*Publisher, error) {
	if cfg.Topic == "" {
		return nil, ErrInvalidTopic
	}
	if cfg.QoS > maxQoS {
		return nil, ErrInvalidQoS
	}

	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(defaultConnectTimeout)
	opts.SetKeepAlive(defaultKeepAlive)
	opts.SetWill(StatusTopic(cfg.Topic), "offline", cfg.QoS, true)

	client := pahomqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(defaultConnectTimeout) {
		return nil, fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, defaultConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	p := New(client, cfg.Topic, cfg.QoS, nearThreshold, logger)
	if err := p.publish(StatusTopic(cfg.Topic), []byte("online")); err != nil {
		p.logger.WithError(err).Warn("Failed to publish online status")
	}
	p.logger.WithFields(logrus.Fields{
		"broker": cfg.Broker,
		"topic":  cfg.Topic,
	}).Info("Connected to MQTT broker")
	return p, nil
}

// New wraps an existing paho client
func New(client pahomqtt.Client, topic string, qos byte, nearThreshold float64, logger *logrus.Logger) *Publisher {
	if logger == nil {
		logger = logrus.New()
	}
	return &Publisher{
		client:        client,
		topic:         topic,
		qos:           qos,
		nearThreshold: nearThreshold,
		logger:        logger,
		now:           time.Now,
	}
}

// Publish sends one snapshot as a retained message
func (p *Publisher) Publish(pres presence.Presence) error {
	payload, err := json.Marshal(Message{
		Presence:    pres,
		Near:        pres.IsNear(p.nearThreshold),
		PublishedAt: p.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("%w: encoding presence: %w", ErrPublishFailed, err)
	}
	return p.publish(p.topic, payload)
}

func (p *Publisher) publish(topic string, payload []byte) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if !p.client.IsConnected() {
		return ErrNotConnected
	}

	token := p.client.Publish(topic, p.qos, true, payload)
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrPublishFailed, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}
	return nil
}

// Run publishes every snapshot from sub until ctx is done or sub is closed.
// Publish failures are logged and do not stop the loop.
func (p *Publisher) Run(ctx context.Context, sub *presence.Subscription) {
	for {
		select {
		case <-ctx.Done():
			return
		case pres, ok := <-sub.C():
			if !ok {
				return
			}
			if err := p.Publish(pres); err != nil {
				p.logger.WithError(err).Warn("Failed to publish presence")
			}
		}
	}
}

// Close marks the publisher offline and disconnects
func (p *Publisher) Close() {
	if p.client.IsConnected() {
		if err := p.publish(StatusTopic(p.topic), []byte("offline")); err != nil {
			p.logger.WithError(err).Debug("Failed to publish offline status")
		}
	}
	p.client.Disconnect(defaultDisconnectQuiesce)
}
