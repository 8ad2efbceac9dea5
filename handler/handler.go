// Copyright © 2017 The Things Network
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

// Package handler defines the contract between the gateway and the integrations
// that translate between radio packets and broker messages.
//
// Integrations register themselves by name in init(); the gateway selects one
// of them at startup:
//
//     import _ "github.com/TheThingsNetwork/lora-field-gateway/handler/azureiothub"
//
//     h, err := handler.New("azureiothub")
package handler

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/TheThingsNetwork/lora-field-gateway/types"
	"github.com/apex/log"
)

// Handler translates between radio packets and broker messages
type Handler interface {
	// Initialise is called once, before any events are delivered
	Initialise(ctx log.Interface, config Config, subscriber Subscriber) error
	OnRadioReceive(packet *types.RadioPacket) ([]*types.OutboundMessage, error)
	// OnBrokerMessage returns ErrUnhandledTopic for messages on unknown topics
	OnBrokerMessage(message *types.InboundMessage) ([]*types.TransmitRequest, error)
	OnRadioTransmitComplete(ack *types.TransmitComplete)
}

// Subscriber is used by handlers to subscribe to command topics
type Subscriber interface {
	Subscribe(topicFilter string, qos types.QoS) error
}

// Config for a handler
type Config struct {
	ClientID string
	Username string
	Settings map[string]string
}

// Setting returns the value of a handler setting, or def if the setting is not set
func (c Config) Setting(key, def string) string {
	if value, ok := c.Settings[key]; ok && value != "" {
		return value
	}
	return def
}

// Handler errors
var (
	ErrUnhandledTopic = errors.New("handler: topic not handled")
	ErrUnknownHandler = errors.New("handler: unknown handler")
	ErrNoClientID     = errors.New("handler: no client ID configured")
)

// Factory creates a new Handler
type Factory func() Handler

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register a handler factory by name
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, ok := registry[name]; ok {
		panic(fmt.Sprintf("handler: %s registered twice", name))
	}
	registry[name] = factory
}

// New returns a new Handler of the registered name
func New(name string) (Handler, error) {
	registryMu.RLock()
	factory, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownHandler, name)
	}
	return factory(), nil
}

// Names returns the names of the registered handlers
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
