package mqtt

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/eclipse/paho.golang/paho"
)

const (
	defaultKeepAlive      = 60
	defaultConnectTimeout = 5 * time.Second
)

// ClientConfig configures a Client.
type ClientConfig struct {
	// BrokerURL such as tcp://host:1883, ssl://host:8883 or ws://host/mqtt.
	BrokerURL string
	ClientID  string
	Username  string
	Password  string

	// KeepAlive in seconds.
	KeepAlive uint16

	// SessionExpiry in seconds. Zero ends the session with the connection.
	SessionExpiry uint32

	ConnectTimeout time.Duration
	CleanStart     bool

	InsecureSkipVerify bool

	// The broker publishes the will when the client drops without a clean
	// disconnect. The agent uses it to clear its retained online flag.
	WillTopic   string
	WillPayload []byte
	WillQoS     byte
	WillRetain  bool
}

func setDefaultConfig(cfg *ClientConfig) {
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = defaultConnectTimeout
	}
	if cfg.KeepAlive == 0 {
		cfg.KeepAlive = defaultKeepAlive
	}
}

func (c *ClientConfig) Validate() error {
	if c.BrokerURL == "" {
		return errors.New("broker url is required")
	}
	u, err := url.Parse(c.BrokerURL)
	if err != nil {
		return err
	}
	if u.Host == "" {
		return fmt.Errorf("broker url %q has no host", c.BrokerURL)
	}
	if c.WillQoS > 2 {
		return fmt.Errorf("will qos must be 0, 1 or 2, got %d", c.WillQoS)
	}
	if c.WillTopic == "" && len(c.WillPayload) > 0 {
		return errors.New("will payload set without a will topic")
	}
	return nil
}

func (c *ClientConfig) will() *paho.WillMessage {
	if c.WillTopic == "" {
		return nil
	}
	return &paho.WillMessage{
		Topic:   c.WillTopic,
		Payload: c.WillPayload,
		QoS:     c.WillQoS,
		Retain:  c.WillRetain,
	}
}
