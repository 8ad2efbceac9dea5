// Copyright © 2017 The Things Network
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

package dummy

import (
	"errors"
	"sync"

	"github.com/TheThingsNetwork/lora-field-gateway/backend"
	"github.com/TheThingsNetwork/lora-field-gateway/types"
	"github.com/apex/log"
)

// BufferSize indicates the maximum number of dummy messages that should be buffered
var BufferSize = 10

// ErrConnectionLost is passed to the connection lost handler by Lose
var ErrConnectionLost = errors.New("dummy: connection lost")

// Broker is a dummy broker backend that keeps everything in memory
type Broker struct {
	mu            sync.Mutex
	ctx           log.Interface
	connected     bool
	connects      []backend.BrokerConfig
	connectErr    error
	publishErr    error
	published     []*types.OutboundMessage
	subscriptions map[string]types.QoS
	messages      chan *types.InboundMessage
	lost          func(error)
}

// NewBroker returns a new dummy Broker
func NewBroker(ctx log.Interface) *Broker {
	return &Broker{
		ctx:           ctx.WithField("Connector", "Dummy"),
		subscriptions: make(map[string]types.QoS),
		messages:      make(chan *types.InboundMessage, BufferSize),
	}
}

// SetConnectError makes subsequent calls to Connect fail with err (or succeed if err is nil)
func (d *Broker) SetConnectError(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.connectErr = err
}

// SetPublishError makes subsequent calls to Publish fail with err (or succeed if err is nil)
func (d *Broker) SetPublishError(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.publishErr = err
}

// Connect implements backend.Broker
func (d *Broker) Connect(config backend.BrokerConfig) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.connects = append(d.connects, config)
	if d.connectErr != nil {
		d.ctx.WithError(d.connectErr).Debug("Could not connect")
		return d.connectErr
	}
	d.connected = true
	d.subscriptions = make(map[string]types.QoS)
	d.ctx.Debug("Connected")
	return nil
}

// Disconnect implements backend.Broker
func (d *Broker) Disconnect() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.connected = false
	d.ctx.Debug("Disconnected")
	return nil
}

// Connects returns the configs of all connection attempts
func (d *Broker) Connects() []backend.BrokerConfig {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]backend.BrokerConfig(nil), d.connects...)
}

// Connected returns true if the dummy broker is connected
func (d *Broker) Connected() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.connected
}

// SetConnectionLostHandler implements backend.Broker
func (d *Broker) SetConnectionLostHandler(handler func(err error)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lost = handler
}

// Lose the connection, as if the network failed
func (d *Broker) Lose() {
	d.mu.Lock()
	d.connected = false
	lost := d.lost
	d.mu.Unlock()
	d.ctx.Debug("Lost connection")
	if lost != nil {
		lost(ErrConnectionLost)
	}
}

// Publish implements backend.Broker
func (d *Broker) Publish(message *types.OutboundMessage) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.connected {
		return backend.ErrNotConnected
	}
	if d.publishErr != nil {
		return d.publishErr
	}
	d.published = append(d.published, message)
	d.ctx.WithField("Topic", message.Topic).Debug("Published message")
	return nil
}

// Published returns all published messages
func (d *Broker) Published() []*types.OutboundMessage {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*types.OutboundMessage(nil), d.published...)
}

// Subscribe implements backend.Broker
func (d *Broker) Subscribe(topicFilter string, qos types.QoS) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.connected {
		return backend.ErrNotConnected
	}
	d.subscriptions[topicFilter] = qos
	d.ctx.WithField("Topic", topicFilter).Debug("Subscribed")
	return nil
}

// Subscriptions returns the topic filters of the current session
func (d *Broker) Subscriptions() map[string]types.QoS {
	d.mu.Lock()
	defer d.mu.Unlock()
	subscriptions := make(map[string]types.QoS, len(d.subscriptions))
	for topic, qos := range d.subscriptions {
		subscriptions[topic] = qos
	}
	return subscriptions
}

// Deliver a message to the subscriber of the dummy broker
func (d *Broker) Deliver(message *types.InboundMessage) {
	select {
	case d.messages <- message:
		d.ctx.WithField("Topic", message.Topic).Debug("Delivered message")
	default:
		d.ctx.WithField("Topic", message.Topic).Debug("Did not deliver message [buffer full]")
	}
}

// Messages implements backend.Broker
func (d *Broker) Messages() <-chan *types.InboundMessage {
	return d.messages
}
