package edgefabric

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/spotfi/spotfi-cloud/internal/connection"
	"github.com/spotfi/spotfi-cloud/internal/database"
	"github.com/spotfi/spotfi-cloud/internal/events"
)

// Config configures the broker connection.
type Config struct {
	// BrokerURL is the MQTT broker address, e.g. "tls://broker.spotfi.internal:8883".
	BrokerURL string

	// Username/Password authenticate this cloud instance to the broker.
	Username string
	Password string

	// ClientIDPrefix is combined with a generated instance id to form the
	// MQTT client id, so multiple cloud replicas never collide.
	ClientIDPrefix string

	KeepAlive         time.Duration
	ConnectTimeout    time.Duration
	CircuitBreaker    connection.CircuitBreakerConfig
	RPCRequestTimeout time.Duration
	MaxOutstandingRPC int
}

// DefaultConfig returns sane defaults: 15s RPC timeout and 64 outstanding
// requests per router, per spec.md §4.1.
func DefaultConfig(brokerURL string) Config {
	return Config{
		BrokerURL:         brokerURL,
		ClientIDPrefix:    "spotfi-cloud",
		KeepAlive:         30 * time.Second,
		ConnectTimeout:    10 * time.Second,
		CircuitBreaker:    connection.DefaultCircuitBreakerConfig(),
		RPCRequestTimeout: 15 * time.Second,
		MaxOutstandingRPC: 64,
	}
}

// Broker is the single shared MQTT connection to the fleet broker. Unlike
// internal/connection's per-router Manager/ConnectionPool, Edge Fabric has
// exactly one physical connection multiplexing every router's topics, so
// there is one circuit breaker (named "broker") rather than one per router.
type Broker struct {
	cfg          Config
	instanceID   string
	client       mqtt.Client
	cb           *connection.CircuitBreaker
	eventBus     events.EventBus
	logger       *zap.Logger
	capabilities *database.Manager

	mu       sync.Mutex
	entropy  *rand.Rand
	rpc      *correlationMap
	presence *PresenceTracker
	xtunnel  *XTunnelHub
}

// New creates a Broker and configures its MQTT client without connecting;
// Start dials the broker, and onConnect subscribes once connected.
func New(cfg Config, eventBus events.EventBus, logger *zap.Logger) *Broker {
	instanceID := uuid.NewString()
	b := &Broker{
		cfg:        cfg,
		instanceID: instanceID,
		eventBus:   eventBus,
		logger:     logger.Named("edgefabric"),
		rpc:        newCorrelationMap(),
		entropy:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	b.cb = connection.NewCircuitBreaker("broker", cfg.CircuitBreaker,
		connection.WithOnStateChange(b.onCircuitBreakerStateChange))
	b.presence = newPresenceTracker(eventBus, logger)
	b.xtunnel = newXTunnelHub(b, logger)

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.BrokerURL)
	opts.SetClientID(fmt.Sprintf("%s-%s", cfg.ClientIDPrefix, instanceID))
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetCleanSession(false)
	opts.SetKeepAlive(cfg.KeepAlive)
	opts.SetConnectTimeout(cfg.ConnectTimeout)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetOrderMatters(false)
	opts.SetOnConnectHandler(b.onConnect)
	opts.SetConnectionLostHandler(b.onConnectionLost)
	opts.SetReconnectingHandler(func(mqtt.Client, *mqtt.ClientOptions) {
		b.logger.Warn("broker reconnecting")
	})

	b.client = mqtt.NewClient(opts)
	return b
}

// SetCapabilityStore attaches the router protocol/capability cache so Call
// can skip methods already known to be unsupported by a router's firmware
// instead of waiting out a full RPC timeout on every call.
func (b *Broker) SetCapabilityStore(m *database.Manager) {
	b.capabilities = m
}

// Start connects to the broker; onConnect then subscribes to the fleet-wide
// wildcard topics (status, metrics, RPC responses, x-tunnel output).
func (b *Broker) Start(ctx context.Context) error {
	token := b.client.Connect()
	if !token.WaitTimeout(b.cfg.ConnectTimeout) {
		return fmt.Errorf("connecting to broker: timed out after %s", b.cfg.ConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("connecting to broker: %w", err)
	}
	return nil
}

func (b *Broker) onConnect(c mqtt.Client) {
	b.logger.Info("connected to broker", zap.String("instanceID", b.instanceID))

	subs := map[string]byte{
		StatusWildcard():      1,
		MetricsWildcard():     0,
		RPCResponseWildcard(): 0,
		XTunnelOutWildcard():  0,
	}
	token := c.SubscribeMultiple(subs, b.onMessage)
	token.Wait()
	if err := token.Error(); err != nil {
		b.logger.Error("subscribe failed", zap.Error(err))
	}
}

func (b *Broker) onConnectionLost(_ mqtt.Client, err error) {
	b.logger.Warn("broker connection lost", zap.Error(err))
}

func (b *Broker) onMessage(_ mqtt.Client, msg mqtt.Message) {
	topic := msg.Topic()
	routerID := ParseRouterID(topic)
	if routerID == "" {
		return
	}

	switch ParseKind(topic) {
	case TopicKindStatus:
		b.presence.handleStatus(routerID, msg.Payload())
	case TopicKindMetrics:
		b.presence.handleHeartbeat(routerID)
	case TopicKindRPCResponse:
		b.rpc.deliver(routerID, msg.Payload())
	case TopicKindXTunnelOut:
		b.xtunnel.handleOut(routerID, msg.Payload())
	}
}

func (b *Broker) onCircuitBreakerStateChange(_ string, from, to gobreaker.State) {
	b.logger.Info("broker circuit breaker state changed",
		zap.String("from", from.String()), zap.String("to", to.String()))
}

// Publish sends a raw payload to topic at the given QoS through the circuit
// breaker. Per spec.md §4.1's topic table, cloud-originated topics
// (rpc/request, x/in) are QoS 0 — fire-and-forget, so a slow or offline
// router never head-of-line-blocks the publisher (spec.md §5).
func (b *Broker) Publish(ctx context.Context, topic string, payload []byte, qos byte) error {
	_, err := b.cb.ExecuteWithContext(ctx, func(ctx context.Context) (any, error) {
		token := b.client.Publish(topic, qos, false, payload)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-token.Done():
			return nil, token.Error()
		}
	})
	return err
}

// nextRequestID returns a new "${instanceId}-${ulid}" RPC correlation id.
func (b *Broker) nextRequestID() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return correlationID(b.instanceID, b.entropy)
}

// IsConnected reports whether the underlying MQTT client is connected.
func (b *Broker) IsConnected() bool { return b.client.IsConnectionOpen() }

// Close disconnects from the broker.
func (b *Broker) Close() {
	b.client.Disconnect(250)
}
