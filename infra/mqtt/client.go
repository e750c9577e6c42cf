package mqtt

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/fleetcore/dispatchd/core/model"
	"github.com/fleetcore/dispatchd/infra/logger"
)

// Config defines the connection parameters for the Paho MQTT client
// carrying the dispatch core's wire traffic.
type Config struct {
	Broker     string          `json:"broker"`
	ClientID   string          `json:"client_id"`
	Username   string          `json:"username"`
	Password   string          `json:"password"`
	UseTLS     bool            `json:"use_tls"`
	ClientCert string          `json:"client_cert"`
	ClientKey  string          `json:"client_key"`
	CABundle   string          `json:"ca_bundle"`
	QoS        map[string]byte `json:"qos"`
	LWTTopic   string          `json:"lwt_topic"`
	LWTPayload string          `json:"lwt_payload"`
	LWTQoS     byte            `json:"lwt_qos"`
	LWTRetain  bool            `json:"lwt_retain"`
	MaxRetries int             `json:"max_retries"`
	BackoffMS  int             `json:"backoff_ms"`
	TLSConfig  *tls.Config     `json:"-"`
}

// Handlers carries the callbacks invoked on each incoming wire message. A
// nil handler means the client does not subscribe to that topic. Handlers
// run on the Paho receive goroutine; callers touching dispatcher or fleet
// state must re-enter their own executor from inside the callback.
type Handlers struct {
	OnBidNotice       func(model.BidNotice)
	OnDispatchRequest func(model.DispatchRequest)
	OnProposal        func(model.BidProposal)
	OnAck             func(model.DispatchAck)
	OnStatus          func(model.TaskStatus)
}

type pahoClient interface {
	IsConnected() bool
	Connect() paho.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token
}

// Client is the Paho-backed transport implementing every publisher
// interface the dispatch core depends on (auction.Broadcaster,
// dispatcher.FleetRouter, dispatcher.ActiveTasksPublisher,
// fleet.ProposalPublisher, fleet.AckPublisher, fleet.StatusPublisher).
type Client struct {
	cli   pahoClient
	qos   map[string]byte
	log   logger.Logger
	fleet string

	maxRetries int
	backoff    time.Duration

	mu sync.Mutex
}

var newMQTTClient = func(opts *paho.ClientOptions) pahoClient {
	return paho.NewClient(opts)
}

// NewClient connects to the broker and subscribes according to handlers.
// fleetName scopes the dispatch-request subscription to a single fleet's
// topic; pass "" on the dispatcher side, where no dispatch requests are
// received.
func NewClient(cfg Config, fleetName string, handlers Handlers) (*Client, error) {
	opts, err := NewClientOptions(cfg)
	if err != nil {
		return nil, err
	}

	log := logger.New("mqtt_client")
	c := &Client{
		qos:        cfg.QoS,
		log:        log,
		fleet:      fleetName,
		maxRetries: cfg.MaxRetries,
		backoff:    time.Duration(cfg.BackoffMS) * time.Millisecond,
	}
	if c.maxRetries <= 0 {
		c.maxRetries = 3
	}
	if c.backoff <= 0 {
		c.backoff = 100 * time.Millisecond
	}

	opts.OnConnect = func(pc paho.Client) {
		log.Infof("mqtt connected")
		c.subscribeAll(pc, handlers)
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		log.Errorf("mqtt connection lost: %v", err)
	}
	opts.OnReconnecting = func(_ paho.Client, _ *paho.ClientOptions) {
		log.Warnf("mqtt reconnecting")
	}

	cli := newMQTTClient(opts)
	if token := cli.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	c.cli = cli
	return c, nil
}

func (c *Client) subscribeAll(pc paho.Client, h Handlers) {
	sub := func(topic string, qosKey string, handler func([]byte)) {
		qos := c.qosFor(qosKey)
		if token := pc.Subscribe(topic, qos, func(_ paho.Client, m paho.Message) { handler(m.Payload()) }); token.Wait() && token.Error() != nil {
			c.log.Errorf("subscribe %s failed: %v", topic, token.Error())
		}
	}

	if h.OnBidNotice != nil {
		sub(TopicBidNotice, "bid_notice", func(b []byte) {
			var n model.BidNotice
			if err := json.Unmarshal(b, &n); err != nil {
				c.log.Errorf("decode bid notice: %v", err)
				return
			}
			h.OnBidNotice(n)
		})
	}
	if h.OnDispatchRequest != nil && c.fleet != "" {
		sub(TopicDispatchRequest(c.fleet), "dispatch_request", func(b []byte) {
			var r model.DispatchRequest
			if err := json.Unmarshal(b, &r); err != nil {
				c.log.Errorf("decode dispatch request: %v", err)
				return
			}
			h.OnDispatchRequest(r)
		})
	}
	if h.OnProposal != nil {
		sub(TopicProposal, "proposal", func(b []byte) {
			var p model.BidProposal
			if err := json.Unmarshal(b, &p); err != nil {
				c.log.Errorf("decode proposal: %v", err)
				return
			}
			h.OnProposal(p)
		})
	}
	if h.OnAck != nil {
		sub(topicAckWildcard, "ack", func(b []byte) {
			var a model.DispatchAck
			if err := json.Unmarshal(b, &a); err != nil {
				c.log.Errorf("decode ack: %v", err)
				return
			}
			h.OnAck(a)
		})
	}
	if h.OnStatus != nil {
		sub(TopicStatus, "status", func(b []byte) {
			var s model.TaskStatus
			if err := json.Unmarshal(b, &s); err != nil {
				c.log.Errorf("decode status: %v", err)
				return
			}
			h.OnStatus(s)
		})
	}
}

func (c *Client) qosFor(key string) byte {
	if q, ok := c.qos[key]; ok {
		return q
	}
	return 0
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
		opts.SetWill(cfg.LWTTopic, cfg.LWTPayload, cfg.LWTQoS, cfg.LWTRetain)
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
	caBytes, err := os.ReadFile(c.CABundle)
	if err != nil {
		return nil, fmt.Errorf("read ca: %w", err)
	}
	pool := x509.NewCertPool()
	pool.AppendCertsFromPEM(caBytes)
	return &tls.Config{Certificates: []tls.Certificate{cert}, RootCAs: pool, MinVersion: tls.VersionTLS12}, nil
}

func (c *Client) publish(topic, qosKey string, retained bool, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	qos := c.qosFor(qosKey)

	c.mu.Lock()
	cli := c.cli
	c.mu.Unlock()

	var publishErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		token := cli.Publish(topic, qos, retained, payload)
		token.Wait()
		publishErr = token.Error()
		if publishErr == nil {
			return nil
		}
		c.log.Errorf("publish attempt %d to %s failed: %v", attempt+1, topic, publishErr)
		time.Sleep(c.backoff * time.Duration(1<<attempt))
	}
	return publishErr
}

// BroadcastBidNotice implements auction.Broadcaster.
func (c *Client) BroadcastBidNotice(n model.BidNotice) error {
	return c.publish(TopicBidNotice, "bid_notice", false, n)
}

// SendDispatchRequest implements dispatcher.FleetRouter.
func (c *Client) SendDispatchRequest(r model.DispatchRequest) error {
	return c.publish(TopicDispatchRequest(r.FleetName), "dispatch_request", false, r)
}

// PublishProposal implements fleet.ProposalPublisher.
func (c *Client) PublishProposal(p model.BidProposal) error {
	return c.publish(TopicProposal, "proposal", false, p)
}

// PublishAck implements fleet.AckPublisher.
func (c *Client) PublishAck(a model.DispatchAck) error {
	return c.publish(TopicAck(a.FleetName), "ack", false, a)
}

// PublishStatus implements fleet.StatusPublisher.
func (c *Client) PublishStatus(s model.TaskStatus) error {
	return c.publish(TopicStatus, "status", false, s)
}

// PublishActiveTasks implements dispatcher.ActiveTasksPublisher. The
// snapshot is retained so a subscriber connecting mid-session sees the
// current active set immediately.
func (c *Client) PublishActiveTasks(tasks []model.TaskSummary) error {
	return c.publish(TopicActiveTasks, "active_tasks", true, tasks)
}

// Disconnect gracefully closes the MQTT connection.
func (c *Client) Disconnect() {
	c.mu.Lock()
	cli := c.cli
	c.mu.Unlock()
	if cli != nil && cli.IsConnected() {
		cli.Disconnect(250)
	}
}
