// Copyright © 2017 The Things Network
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

package mqtt

import (
	"crypto/tls"
	"errors"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/TheThingsNetwork/lora-field-gateway/backend"
	"github.com/TheThingsNetwork/lora-field-gateway/types"
	"github.com/apex/log"
	paho "github.com/eclipse/paho.mqtt.golang"
)

// PublishTimeout is the timeout before returning from publish without checking error
var PublishTimeout = 50 * time.Millisecond

// ConnectTimeout is the maximum time to wait for the broker to accept a connection
var ConnectTimeout = 10 * time.Second

// BufferSize indicates the maximum number of MQTT messages that should be buffered
var BufferSize = 10

// IgnoreRetained drops retained messages so that old commands are not executed again after a reconnect
var IgnoreRetained = true

// Default ports
var (
	DefaultPort    = "1883"
	DefaultTLSPort = "8883"
)

// ErrConnectTimeout is returned when the broker does not accept the connection in time
var ErrConnectTimeout = errors.New("mqtt: connection timed out")

// New returns a new MQTT
func New(ctx log.Interface) *MQTT {
	return &MQTT{
		ctx:      ctx.WithField("Connector", "MQTT"),
		messages: make(chan *types.InboundMessage, BufferSize),
	}
}

// MQTT side of the gateway
type MQTT struct {
	ctx      log.Interface
	messages chan *types.InboundMessage

	// TLSConfig is used for TLS connections; when nil the system roots are used
	TLSConfig *tls.Config

	mu       sync.RWMutex
	client   paho.Client
	clientID string
	lost     func(error)
}

// ServerURL returns the URL of the broker for the given config
func ServerURL(config backend.BrokerConfig) string {
	server := config.Server
	if strings.Contains(server, "://") {
		return server
	}
	if _, _, err := net.SplitHostPort(server); err != nil {
		if config.TLS {
			server = net.JoinHostPort(server, DefaultTLSPort)
		} else {
			server = net.JoinHostPort(server, DefaultPort)
		}
	}
	if config.TLS {
		return "ssl://" + server
	}
	return "tcp://" + server
}

// SetConnectionLostHandler implements backend.Broker
func (c *MQTT) SetConnectionLostHandler(handler func(err error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lost = handler
}

// Connect to MQTT
func (c *MQTT) Connect(config backend.BrokerConfig) error {
	ctx := c.ctx.WithField("Server", config.Server).WithField("ClientID", config.ClientID)

	mqttOpts := paho.NewClientOptions()
	mqttOpts.AddBroker(ServerURL(config))
	if config.TLS {
		tlsConfig := c.TLSConfig
		if tlsConfig == nil {
			tlsConfig = new(tls.Config)
		}
		mqttOpts.SetTLSConfig(tlsConfig)
	}
	mqttOpts.SetClientID(config.ClientID)
	mqttOpts.SetUsername(config.Username)
	mqttOpts.SetPassword(config.Password)
	mqttOpts.SetKeepAlive(30 * time.Second)
	mqttOpts.SetPingTimeout(10 * time.Second)
	mqttOpts.SetConnectTimeout(ConnectTimeout)
	mqttOpts.SetCleanSession(true)
	mqttOpts.SetAutoReconnect(false)
	mqttOpts.SetDefaultPublishHandler(func(_ paho.Client, msg paho.Message) {
		c.ctx.WithField("Topic", msg.Topic()).Warn("Received unhandled message on MQTT")
	})
	mqttOpts.SetConnectionLostHandler(func(client paho.Client, err error) {
		c.mu.Lock()
		if c.client == client {
			c.client = nil
		}
		lost := c.lost
		c.mu.Unlock()
		ctx.WithError(err).Warn("Disconnected")
		if lost != nil {
			lost(err)
		}
	})

	client := paho.NewClient(mqttOpts)
	token := client.Connect()
	if !token.WaitTimeout(ConnectTimeout) {
		client.Disconnect(0)
		return ErrConnectTimeout
	}
	if err := token.Error(); err != nil {
		return err
	}

	c.mu.Lock()
	previous := c.client
	c.client = client
	c.clientID = config.ClientID
	c.mu.Unlock()
	if previous != nil {
		previous.Disconnect(0)
	}

	ctx.Info("Connected")
	return nil
}

// Disconnect from MQTT
func (c *MQTT) Disconnect() error {
	c.mu.Lock()
	client := c.client
	c.client = nil
	c.mu.Unlock()
	if client != nil {
		client.Disconnect(100)
	}
	return nil
}

func (c *MQTT) getClient() paho.Client {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.client
}

// Publish a message
func (c *MQTT) Publish(message *types.OutboundMessage) error {
	client := c.getClient()
	if client == nil {
		return backend.ErrNotConnected
	}
	ctx := c.ctx.WithField("Topic", message.Topic)
	token := client.Publish(message.Topic, byte(message.QoS), message.Retain, message.Payload)
	if token.WaitTimeout(PublishTimeout) {
		if err := token.Error(); err != nil {
			return err
		}
		ctx.WithField("Size", len(message.Payload)).Debug("Published message")
		return nil
	}
	go func() {
		token.Wait()
		if err := token.Error(); err != nil {
			ctx.WithError(err).Warn("Could not publish message")
			return
		}
		ctx.WithField("Size", len(message.Payload)).Debug("Published message")
	}()
	return nil
}

// Subscribe to a topic filter
func (c *MQTT) Subscribe(topicFilter string, qos types.QoS) error {
	client := c.getClient()
	if client == nil {
		return backend.ErrNotConnected
	}
	token := client.Subscribe(topicFilter, byte(qos), c.handle)
	token.Wait()
	if err := token.Error(); err != nil {
		return err
	}
	c.ctx.WithField("Topic", topicFilter).WithField("QoS", qos).Debug("Subscribed")
	return nil
}

func (c *MQTT) handle(_ paho.Client, msg paho.Message) {
	ctx := c.ctx.WithField("Topic", msg.Topic())
	if msg.Retained() && IgnoreRetained {
		ctx.Debug("Ignore retained message")
		return
	}
	c.mu.RLock()
	clientID := c.clientID
	c.mu.RUnlock()
	message := &types.InboundMessage{
		ClientID: clientID,
		Topic:    msg.Topic(),
		Payload:  msg.Payload(),
		QoS:      types.QoS(msg.Qos()),
		Retain:   msg.Retained(),
	}
	select {
	case c.messages <- message:
		ctx.WithField("Size", len(message.Payload)).Debug("Received message")
	default:
		ctx.Warn("Could not handle message: buffer full")
	}
}

// Messages returns the channel of received messages
func (c *MQTT) Messages() <-chan *types.InboundMessage {
	return c.messages
}
