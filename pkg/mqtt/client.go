package mqtt

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"

	"github.com/autopeer-io/flightpeer/pkg/log"
	mqtttopic "github.com/autopeer-io/flightpeer/pkg/mqtt/topic"
)

const (
	reconnectDelay = 3 * time.Second
	sharedPrefix   = "$share/"
)

var errNotStarted = errors.New("mqtt client not started")

type subscription struct {
	qos     byte
	handler MessageHandler
}

type client struct {
	cfg *ClientConfig
	cm  *autopaho.ConnectionManager

	// ctx is handed to handlers; it ends when the client stops.
	ctx       context.Context
	connected atomic.Bool

	mu   sync.RWMutex
	subs map[string]subscription
	onUp []ConnectionHandler
}

// NewClient validates cfg and returns a client ready to Start.
func NewClient(cfg *ClientConfig) (Client, error) {
	if cfg == nil {
		return nil, errors.New("mqtt config is required")
	}

	setDefaultConfig(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid mqtt config: %w", err)
	}

	return &client{
		cfg:  cfg,
		ctx:  context.Background(),
		subs: make(map[string]subscription),
	}, nil
}

func (c *client) Start(ctx context.Context) error {
	brokerURL, _ := url.Parse(c.cfg.BrokerURL)

	cfg := autopaho.ClientConfig{
		ServerUrls:                    []*url.URL{brokerURL},
		KeepAlive:                     c.cfg.KeepAlive,
		CleanStartOnInitialConnection: c.cfg.CleanStart,
		SessionExpiryInterval:         c.cfg.SessionExpiry,
		ReconnectBackoff:              autopaho.NewConstantBackoff(reconnectDelay),
		ConnectTimeout:                c.cfg.ConnectTimeout,
		ConnectUsername:               c.cfg.Username,
		ConnectPassword:               []byte(c.cfg.Password),
		TlsCfg: &tls.Config{
			InsecureSkipVerify: c.cfg.InsecureSkipVerify,
		},
		WillMessage: c.cfg.will(),
		ClientConfig: paho.ClientConfig{
			ClientID:           c.cfg.ClientID,
			OnClientError:      c.onClientError,
			OnServerDisconnect: c.onServerDisconnect,
			OnPublishReceived: []func(paho.PublishReceived) (bool, error){
				c.route,
			},
		},
		OnConnectionUp: c.onConnectionUp,
		OnConnectError: c.onConnectError,
	}

	log.Info("Connecting to MQTT broker", "broker", c.cfg.BrokerURL, "clientID", c.cfg.ClientID)
	c.ctx = ctx

	cm, err := autopaho.NewConnection(ctx, cfg)
	if err != nil {
		return err
	}
	c.cm = cm
	return nil
}

func (c *client) Disconnect(ctx context.Context) {
	if c.cm == nil {
		return
	}
	_ = c.cm.Disconnect(ctx)
	c.connected.Store(false)
	log.Info("MQTT client disconnected")
}

func (c *client) Publish(ctx context.Context, topic string, qos int, retain bool, payload []byte) error {
	if c.cm == nil {
		return errNotStarted
	}

	_, err := c.cm.Publish(ctx, &paho.Publish{
		Topic:   topic,
		QoS:     byte(qos),
		Retain:  retain,
		Payload: payload,
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

func (c *client) Subscribe(ctx context.Context, filter string, qos int, handler MessageHandler) error {
	if c.cm == nil {
		return errNotStarted
	}

	// Recorded before the packet goes out so a reconnect restores it either way.
	c.mu.Lock()
	c.subs[filter] = subscription{qos: byte(qos), handler: handler}
	c.mu.Unlock()

	_, err := c.cm.Subscribe(ctx, &paho.Subscribe{
		Subscriptions: []paho.SubscribeOptions{{Topic: filter, QoS: byte(qos)}},
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", filter, err)
	}

	log.Info("Subscribed", "filter", filter)
	return nil
}

func (c *client) Unsubscribe(ctx context.Context, filter string) error {
	if c.cm == nil {
		return errNotStarted
	}

	c.mu.Lock()
	delete(c.subs, filter)
	c.mu.Unlock()

	_, err := c.cm.Unsubscribe(ctx, &paho.Unsubscribe{Topics: []string{filter}})
	return err
}

func (c *client) AwaitConnection(ctx context.Context) error {
	if c.cm == nil {
		return errNotStarted
	}
	return c.cm.AwaitConnection(ctx)
}

func (c *client) IsConnected() bool {
	return c.connected.Load()
}

func (c *client) OnConnectionUp(fn ConnectionHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onUp = append(c.onUp, fn)
}

// resubscription lists every recorded filter in one packet, or nil when
// there is none.
func (c *client) resubscription() *paho.Subscribe {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.subs) == 0 {
		return nil
	}

	filters := make([]string, 0, len(c.subs))
	for f := range c.subs {
		filters = append(filters, f)
	}
	slices.Sort(filters)

	packet := &paho.Subscribe{}
	for _, f := range filters {
		packet.Subscriptions = append(packet.Subscriptions, paho.SubscribeOptions{Topic: f, QoS: c.subs[f].qos})
	}
	return packet
}

func (c *client) onConnectionUp(cm *autopaho.ConnectionManager, _ *paho.Connack) {
	log.Info("MQTT connection up")
	c.connected.Store(true)

	if packet := c.resubscription(); packet != nil {
		if _, err := cm.Subscribe(c.ctx, packet); err != nil {
			log.Error(err, "Failed to restore subscriptions", "count", len(packet.Subscriptions))
		}
	}

	c.mu.RLock()
	handlers := slices.Clone(c.onUp)
	c.mu.RUnlock()
	for _, fn := range handlers {
		go fn(c.ctx)
	}
}

func (c *client) onConnectError(err error) {
	c.connected.Store(false)
	log.Error(err, "MQTT connect failed, retrying", "after", reconnectDelay)
}

func (c *client) onClientError(err error) {
	c.connected.Store(false)
	log.Error(err, "MQTT client error")
}

func (c *client) onServerDisconnect(d *paho.Disconnect) {
	c.connected.Store(false)
	reason := ""
	if d.Properties != nil {
		reason = d.Properties.ReasonString
	}
	log.Warn("MQTT broker closed the connection", "code", d.ReasonCode, "reason", reason)
}

// route hands a received message to every handler whose filter matches.
func (c *client) route(p paho.PublishReceived) (bool, error) {
	topic := p.Packet.Topic

	c.mu.RLock()
	var handlers []MessageHandler
	for filter, sub := range c.subs {
		if topicsMatch(topicFilter(filter), topic) {
			handlers = append(handlers, sub.handler)
		}
	}
	c.mu.RUnlock()

	if len(handlers) == 0 {
		log.Debug("Dropping message on unhandled topic", "topic", topic)
	}
	for _, h := range handlers {
		go h(c.ctx, topic, p.Packet.Payload)
	}
	return true, nil
}

// topicsMatch reports whether topic matches filter, honouring the + and #
// wildcards.
func topicsMatch(filter, topic string) bool {
	if filter == topic {
		return true
	}
	if !strings.ContainsAny(filter, mqtttopic.Wildcard+mqtttopic.MultiWildcard) {
		return false
	}

	for {
		var fpart, tpart string
		var fmore, tmore bool
		fpart, filter, fmore = strings.Cut(filter, "/")
		if fpart == mqtttopic.MultiWildcard {
			return true
		}
		tpart, topic, tmore = strings.Cut(topic, "/")
		if fpart != mqtttopic.Wildcard && fpart != tpart {
			return false
		}
		if !fmore || !tmore {
			if fmore {
				return filter == mqtttopic.MultiWildcard
			}
			return fmore == tmore
		}
	}
}

// topicFilter strips the $share/<group>/ prefix of a shared subscription.
func topicFilter(filter string) string {
	rest, ok := strings.CutPrefix(filter, sharedPrefix)
	if !ok {
		return filter
	}
	if _, f, ok := strings.Cut(rest, "/"); ok {
		return f
	}
	return filter
}
