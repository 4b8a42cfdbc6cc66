package mqtt

import (
	"log"
	"os"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/AaronLay10/ARTutor/internal/events"
)

const (
	defaultBroker = "tcp://localhost:1883"
	opTimeout     = 10 * time.Second
)

// Publisher sends a payload to a topic at QoS 1.
type Publisher interface {
	Publish(topic string, retained bool, payload []byte) error
}

// Subscriber registers a handler for a topic.
type Subscriber interface {
	Subscribe(topic string, handler paho.MessageHandler) error
}

// Client wraps the Paho MQTT client for the AR tutor bridge.
type Client struct {
	client paho.Client
	broker string
	mu     sync.Mutex

	hookMu sync.Mutex
	hooks  []func()
}

// BrokerURL returns the broker URL from ARTUTOR_MQTT_URL, then configured, then the default.
func BrokerURL(configured string) string {
	if url := os.Getenv("ARTUTOR_MQTT_URL"); url != "" {
		return url
	}
	if configured != "" {
		return configured
	}
	return defaultBroker
}

// NewClient creates a new MQTT client but does not connect. The broker
// marks statusTopic offline if the connection drops.
func NewClient(broker, clientID, statusTopic string) *Client {
	c := &Client{broker: BrokerURL(broker)}

	opts := paho.NewClientOptions().
		AddBroker(c.broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetKeepAlive(30 * time.Second).
		SetOnConnectHandler(func(paho.Client) {
			events.Emit("info", "transport.connected", "", map[string]interface{}{"broker": c.broker})
			c.runOnConnect()
		}).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			events.Emit("warn", "transport.disconnected", err.Error(), map[string]interface{}{"broker": c.broker})
		})
	if statusTopic != "" {
		opts.SetWill(statusTopic, `{"state":"offline"}`, 1, true)
	}

	c.client = paho.NewClient(opts)
	return c
}

// OnConnect registers fn to run after every (re)connect.
func (c *Client) OnConnect(fn func()) {
	c.hookMu.Lock()
	defer c.hookMu.Unlock()
	c.hooks = append(c.hooks, fn)
}

func (c *Client) runOnConnect() {
	c.hookMu.Lock()
	hooks := append([]func(){}, c.hooks...)
	c.hookMu.Unlock()
	for _, fn := range hooks {
		fn()
	}
}

// Broker returns the resolved broker URL.
func (c *Client) Broker() string {
	return c.broker
}

// Connect attempts to connect to the broker.
// Returns an error if connection fails, but does not block indefinitely.
func (c *Client) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	token := c.client.Connect()
	if !token.WaitTimeout(opTimeout) {
		return &ConnectTimeoutError{}
	}
	return token.Error()
}

// Subscribe subscribes to a topic with the given handler.
func (c *Client) Subscribe(topic string, handler paho.MessageHandler) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	token := c.client.Subscribe(topic, 1, handler)
	if !token.WaitTimeout(opTimeout) {
		return &SubscribeTimeoutError{Topic: topic}
	}
	return token.Error()
}

// Publish sends payload to topic at QoS 1.
func (c *Client) Publish(topic string, retained bool, payload []byte) error {
	token := c.client.Publish(topic, 1, retained, payload)
	if !token.WaitTimeout(opTimeout) {
		return &PublishTimeoutError{Topic: topic}
	}
	return token.Error()
}

// Disconnect cleanly disconnects from the broker.
func (c *Client) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.client.Disconnect(1000)
}

// IsConnected returns true if the client is connected.
func (c *Client) IsConnected() bool {
	return c.client.IsConnected()
}

// ConnectTimeoutError indicates connection timed out.
type ConnectTimeoutError struct{}

func (e *ConnectTimeoutError) Error() string {
	return "mqtt connect timeout"
}

// SubscribeTimeoutError indicates subscription timed out.
type SubscribeTimeoutError struct {
	Topic string
}

func (e *SubscribeTimeoutError) Error() string {
	return "mqtt subscribe timeout: " + e.Topic
}

// PublishTimeoutError indicates a publish was not acknowledged in time.
type PublishTimeoutError struct {
	Topic string
}

func (e *PublishTimeoutError) Error() string {
	return "mqtt publish timeout: " + e.Topic
}

// Start subscribes the surface report topics on every connect and makes
// the first connection attempt, logging errors but not crashing. Returns
// true if connected; otherwise the client keeps retrying in the background.
func (c *Client) Start(s *Surface) bool {
	c.OnConnect(func() {
		if err := s.Subscribe(c); err != nil {
			log.Printf("mqtt: failed to subscribe report topics: %v", err)
		}
	})

	if err := c.Connect(); err != nil {
		log.Printf("mqtt: failed to connect to %s: %v", c.broker, err)
		return false
	}

	log.Printf("mqtt: connected to %s, scene topic %s", c.broker, s.topics.Scene)
	return true
}
