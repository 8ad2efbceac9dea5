// Copyright © 2017 The Things Network
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

package backend

import (
	"errors"

	"github.com/TheThingsNetwork/lora-field-gateway/types"
)

// BrokerConfig contains the settings used for a single broker connection
type BrokerConfig struct {
	Server   string
	ClientID string
	Username string
	Password string
	TLS      bool
}

// Broker backends talk to the publish/subscribe broker that is up the chain.
// Brokers do not reconnect by themselves; they report a lost connection to the
// handler set with SetConnectionLostHandler.
type Broker interface {
	Connect(config BrokerConfig) error
	Disconnect() error
	Publish(message *types.OutboundMessage) error
	Subscribe(topicFilter string, qos types.QoS) error
	Messages() <-chan *types.InboundMessage
	SetConnectionLostHandler(handler func(err error))
}

// Radio backends talk to the devices that are down the chain
type Radio interface {
	Connect() error
	Disconnect() error
	SubscribeReceive() (<-chan *types.RadioPacket, error)
	SubscribeTransmitComplete() (<-chan *types.TransmitComplete, error)
	Send(address []byte, payload []byte) error
}

// ErrNotConnected is returned by backends that are used before Connect
var ErrNotConnected = errors.New("backend: not connected")
