package channel

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"os"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	corechannel "github.com/shareprinto/dispatcher/core/channel"
	"github.com/shareprinto/dispatcher/infra/logger"
)

// Config defines the connection parameters for the Paho MQTT channel.
type Config struct {
	Broker      string `json:"broker"`
	ClientID    string `json:"client_id"`
	Username    string `json:"username"`
	Password    string `json:"password"`
	TopicPrefix string `json:"topic_prefix"`
	QoS         byte   `json:"qos"`
	UseTLS      bool   `json:"use_tls"`
	ClientCert  string `json:"client_cert"`
	ClientKey   string `json:"client_key"`
	CABundle    string `json:"ca_bundle"`
	LWTTopic    string `json:"lwt_topic"`
	LWTPayload  string `json:"lwt_payload"`
	MaxRetries  int    `json:"max_retries"`
	BackoffMS   int    `json:"backoff_ms"`

	TLSConfig *tls.Config `json:"-"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.TopicPrefix == "" {
		c.TopicPrefix = "shareprinto/farmers"
	}
	if c.ClientID == "" {
		c.ClientID = "shareprinto-dispatcher"
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 2
	}
	if c.BackoffMS <= 0 {
		c.BackoffMS = 250
	}
}

// pahoClient is the subset of the Paho client used here, mockable in tests.
type pahoClient interface {
	IsConnected() bool
	Connect() paho.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
}

var newMQTTClient = func(opts *paho.ClientOptions) pahoClient {
	return paho.NewClient(opts)
}

// MQTTChannel delivers offers over per-farmer MQTT topics. The farmer's
// client subscribes to <prefix>/<farmerID>/offers; accept/decline travels
// back over HTTP, not over the broker.
type MQTTChannel struct {
	cli        pahoClient
	prefix     string
	qos        byte
	maxRetries int
	backoff    time.Duration
	logger     logger.Logger
}

// NewMQTTChannel connects to the broker and returns the channel.
func NewMQTTChannel(cfg Config) (*MQTTChannel, error) {
	cfg.SetDefaults()
	opts, err := NewClientOptions(cfg)
	if err != nil {
		return nil, err
	}
	log := logger.New("mqtt_channel")
	opts.OnConnect = func(paho.Client) {
		log.Infof("MQTT connected")
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		log.Errorf("connection lost: %v", err)
	}
	opts.OnReconnecting = func(_ paho.Client, _ *paho.ClientOptions) {
		log.Warnf("reconnecting to MQTT broker")
	}
	c := newMQTTClient(opts)
	if token := c.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	return &MQTTChannel{
		cli:        c,
		prefix:     cfg.TopicPrefix,
		qos:        cfg.QoS,
		maxRetries: cfg.MaxRetries,
		backoff:    time.Duration(cfg.BackoffMS) * time.Millisecond,
		logger:     log,
	}, nil
}

// NewClientOptions builds mqtt client options from Config.
func NewClientOptions(cfg Config) (*paho.ClientOptions, error) {
	opts := paho.NewClientOptions().AddBroker(cfg.Broker).SetClientID(cfg.ClientID)
	opts.AutoReconnect = true
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	if cfg.UseTLS {
		tlsCfg, err := cfg.LoadTLSConfig()
		if err != nil {
			return nil, err
		}
		opts.SetTLSConfig(tlsCfg)
	}
	if cfg.LWTTopic != "" {
		opts.SetWill(cfg.LWTTopic, cfg.LWTPayload, cfg.QoS, false)
	}
	return opts, nil
}

// LoadTLSConfig loads the TLS configuration from the file paths in the config.
func (c Config) LoadTLSConfig() (*tls.Config, error) {
	if c.TLSConfig != nil {
		return c.TLSConfig, nil
	}
	if c.ClientCert == "" || c.ClientKey == "" || c.CABundle == "" {
		return nil, fmt.Errorf("tls config requires client_cert, client_key and ca_bundle")
	}
	cert, err := tls.LoadX509KeyPair(c.ClientCert, c.ClientKey)
	if err != nil {
		return nil, fmt.Errorf("load cert: %w", err)
	}
	ca, err := os.ReadFile(c.CABundle)
	if err != nil {
		return nil, fmt.Errorf("read ca bundle: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(ca) {
		return nil, fmt.Errorf("invalid ca bundle")
	}
	return &tls.Config{Certificates: []tls.Certificate{cert}, RootCAs: pool}, nil
}

// Topic returns the offers topic for the farmer.
func (m *MQTTChannel) Topic(farmerID string) string {
	return fmt.Sprintf("%s/%s/offers", m.prefix, farmerID)
}

// Push publishes the offer payload to the farmer's topic. Publish failures
// are retried with backoff and finally reported as a delivery failure.
func (m *MQTTChannel) Push(ctx context.Context, farmerID string, payload corechannel.OfferPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	topic := m.Topic(farmerID)
	backoff := m.backoff
	var last error
	for attempt := 0; attempt <= m.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return fmt.Errorf("%w: %v", corechannel.ErrDeliveryFailed, ctx.Err())
			}
			backoff *= 2
		}
		token := m.cli.Publish(topic, m.qos, false, body)
		if token.Wait() && token.Error() != nil {
			last = token.Error()
			m.logger.Warnf("publish to %s failed: %v", topic, last)
			continue
		}
		return nil
	}
	return fmt.Errorf("%w: %v", corechannel.ErrDeliveryFailed, last)
}

// Close disconnects from the broker.
func (m *MQTTChannel) Close() {
	m.cli.Disconnect(250)
}
