// Copyright © 2016 The Things Network
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

package amqp

import (
	"crypto/tls"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/TheThingsNetwork/lora-field-gateway/backend"
	"github.com/TheThingsNetwork/lora-field-gateway/types"
	"github.com/apex/log"
	"github.com/streadway/amqp"
)

// BufferSize indicates the maximum number of AMQP messages that should be buffered
var BufferSize = 10

// Default ports
var (
	DefaultPort    = "5672"
	DefaultTLSPort = "5671"
)

// Config contains configuration for AMQP that is not part of the broker config
type Config struct {
	VHost        string
	ExchangeName string
	QueuePrefix  string
	TLSConfig    *tls.Config
}

// New returns a new AMQP
func New(config Config, ctx log.Interface) *AMQP {
	if config.ExchangeName == "" {
		config.ExchangeName = "amq.topic"
	}
	if config.QueuePrefix == "" {
		config.QueuePrefix = "gateway"
	}
	return &AMQP{
		config:   config,
		ctx:      ctx.WithField("Connector", "AMQP"),
		messages: make(chan *types.InboundMessage, BufferSize),
	}
}

// AMQP side of the gateway
type AMQP struct {
	config   Config
	ctx      log.Interface
	messages chan *types.InboundMessage

	mu       sync.RWMutex
	conn     *amqp.Connection
	publish  *amqp.Channel
	clientID string
	lost     func(error)
}

// RoutingKey converts an MQTT topic (filter) to an AMQP routing key
func RoutingKey(topic string) string {
	parts := strings.Split(topic, "/")
	for i, part := range parts {
		if part == "+" {
			parts[i] = "*"
		}
	}
	return strings.Join(parts, ".")
}

// Topic converts an AMQP routing key to an MQTT topic
func Topic(routingKey string) string {
	return strings.Replace(routingKey, ".", "/", -1)
}

func (c Config) url(broker backend.BrokerConfig) (url string) {
	if broker.TLS {
		url += "amqps://"
	} else {
		url += "amqp://"
	}
	if broker.Username != "" {
		url += broker.Username
		if broker.Password != "" {
			url += ":" + broker.Password
		}
		url += "@"
	}
	url += broker.Server
	if !strings.Contains(broker.Server, ":") {
		if broker.TLS {
			url += ":" + DefaultTLSPort
		} else {
			url += ":" + DefaultPort
		}
	}
	if c.VHost != "" {
		url += "/" + c.VHost
	}
	return
}

// SetConnectionLostHandler implements backend.Broker
func (c *AMQP) SetConnectionLostHandler(handler func(err error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lost = handler
}

// Connect to AMQP
func (c *AMQP) Connect(broker backend.BrokerConfig) (err error) {
	ctx := c.ctx.WithField("Server", broker.Server).WithField("ClientID", broker.ClientID)

	var conn *amqp.Connection
	if broker.TLS {
		tlsConfig := c.config.TLSConfig
		if tlsConfig == nil {
			tlsConfig = new(tls.Config)
		}
		conn, err = amqp.DialTLS(c.config.url(broker), tlsConfig)
	} else {
		conn, err = amqp.Dial(c.config.url(broker))
	}
	if err != nil {
		return err
	}

	channel, err := c.setup(conn)
	if err != nil {
		conn.Close()
		return err
	}

	c.mu.Lock()
	previous := c.conn
	c.conn = conn
	c.publish = channel
	c.clientID = broker.ClientID
	c.mu.Unlock()
	if previous != nil {
		previous.Close()
	}

	closed := conn.NotifyClose(make(chan *amqp.Error, 1))
	go func() {
		amqpErr, hasErr := <-closed
		if !hasErr {
			return // Closed by Disconnect
		}
		c.mu.Lock()
		if c.conn == conn {
			c.conn, c.publish = nil, nil
		}
		lost := c.lost
		c.mu.Unlock()
		err := errors.New(amqpErr.Error())
		ctx.WithError(err).Warn("Connection closed")
		if lost != nil {
			lost(err)
		}
	}()

	ctx.Info("Connected")
	return nil
}

// setup makes sure the exchange exists and returns the channel for publishing
func (c *AMQP) setup(conn *amqp.Connection) (*amqp.Channel, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, err
	}
	if err := ch.ExchangeDeclarePassive(c.config.ExchangeName, "topic", true, false, false, false, nil); err != nil {
		c.ctx.WithError(err).Warnf("Exchange %s does not exist, trying to create...", c.config.ExchangeName)
		// A failed passive declare closes the channel
		ch, err = conn.Channel()
		if err != nil {
			return nil, err
		}
		if err := ch.ExchangeDeclare(c.config.ExchangeName, "topic", true, false, false, false, nil); err != nil {
			return nil, err
		}
	}
	return ch, nil
}

// Disconnect from AMQP
func (c *AMQP) Disconnect() error {
	c.mu.Lock()
	conn := c.conn
	c.conn, c.publish = nil, nil
	c.mu.Unlock()
	if conn == nil {
		return nil
	}
	return conn.Close()
}

// Publish a message to the exchange
func (c *AMQP) Publish(message *types.OutboundMessage) error {
	c.mu.RLock()
	channel := c.publish
	c.mu.RUnlock()
	if channel == nil {
		return backend.ErrNotConnected
	}
	routingKey := RoutingKey(message.Topic)
	deliveryMode := amqp.Transient
	if message.QoS > types.AtMostOnce {
		deliveryMode = amqp.Persistent
	}
	err := channel.Publish(c.config.ExchangeName, routingKey, false, false, amqp.Publishing{
		DeliveryMode: deliveryMode,
		Timestamp:    time.Now(),
		ContentType:  "application/json",
		Body:         message.Payload,
	})
	if err != nil {
		return err
	}
	c.ctx.WithField("RoutingKey", routingKey).WithField("Size", len(message.Payload)).Debug("Published message")
	return nil
}

// Subscribe to a topic filter
func (c *AMQP) Subscribe(topicFilter string, qos types.QoS) error {
	c.mu.RLock()
	conn, clientID := c.conn, c.clientID
	c.mu.RUnlock()
	if conn == nil {
		return backend.ErrNotConnected
	}
	channel, err := conn.Channel()
	if err != nil {
		return err
	}
	routingKey := RoutingKey(topicFilter)
	queueName := fmt.Sprintf("%s.%s.%s", c.config.QueuePrefix, clientID, routingKey)
	if _, err := channel.QueueDeclare(queueName, false, true, true, false, nil); err != nil {
		channel.Close()
		return err
	}
	if err := channel.QueueBind(queueName, routingKey, c.config.ExchangeName, false, nil); err != nil {
		channel.Close()
		return err
	}
	if err := channel.Qos(BufferSize, 0, false); err != nil {
		channel.Close()
		return err
	}
	autoAck := qos == types.AtMostOnce
	deliveries, err := channel.Consume(queueName, "", autoAck, true, false, false, nil)
	if err != nil {
		channel.Close()
		return err
	}
	ctx := c.ctx.WithField("RoutingKey", routingKey)
	go func() {
		for delivery := range deliveries {
			message := &types.InboundMessage{
				ClientID: clientID,
				Topic:    Topic(delivery.RoutingKey),
				Payload:  delivery.Body,
				QoS:      qos,
			}
			select {
			case c.messages <- message:
				ctx.WithField("Size", len(delivery.Body)).Debug("Received message")
			default:
				ctx.Warn("Could not handle message: buffer full")
			}
			if !autoAck {
				delivery.Ack(false)
			}
		}
		ctx.Debug("Subscription closed")
	}()
	ctx.Debug("Subscribed")
	return nil
}

// Messages returns the channel of received messages
func (c *AMQP) Messages() <-chan *types.InboundMessage {
	return c.messages
}
