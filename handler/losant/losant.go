// Copyright © 2017 The Things Network
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

// Package losant publishes readings as device state to Losant and sends device
// commands to devices.
//
// Commands should have a payload with the hex address of the device and the
// message to send:
//
//     {"name":"set","payload":{"address":"A102","message":"on"}}
package losant

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/TheThingsNetwork/lora-field-gateway/handler"
	"github.com/TheThingsNetwork/lora-field-gateway/translator"
	"github.com/TheThingsNetwork/lora-field-gateway/types"
	"github.com/apex/log"
)

// Topic formats
var (
	StateTopicFormat   = "losant/%s/state"
	CommandTopicFormat = "losant/%s/command"
)

// ErrInvalidCommand is returned for commands without address or message
var ErrInvalidCommand = errors.New("losant: command needs an address and a message")

func init() {
	handler.Register("losant", func() handler.Handler { return New() })
}

// Command sent by Losant
type Command struct {
	Name    string `json:"name"`
	Payload struct {
		Address string `json:"address"`
		Message string `json:"message"`
	} `json:"payload"`
}

// New returns a new Losant handler
func New() *Losant {
	t := translator.New("data")
	t.Numeric = true
	return &Losant{translator: t}
}

// Losant handler
type Losant struct {
	ctx          log.Interface
	translator   *translator.Translator
	stateTopic   string
	commandTopic string
}

// Initialise implements handler.Handler
func (l *Losant) Initialise(ctx log.Interface, config handler.Config, subscriber handler.Subscriber) error {
	if config.ClientID == "" {
		return handler.ErrNoClientID
	}
	l.ctx = ctx.WithField("Handler", "losant")
	l.stateTopic = fmt.Sprintf(StateTopicFormat, config.ClientID)
	l.commandTopic = fmt.Sprintf(CommandTopicFormat, config.ClientID)
	return subscriber.Subscribe(l.commandTopic, types.AtLeastOnce)
}

// OnRadioReceive implements handler.Handler
func (l *Losant) OnRadioReceive(packet *types.RadioPacket) ([]*types.OutboundMessage, error) {
	msg, err := l.translator.Translate(packet, l.stateTopic)
	if err != nil {
		return nil, err
	}
	return []*types.OutboundMessage{msg}, nil
}

// OnBrokerMessage implements handler.Handler
func (l *Losant) OnBrokerMessage(message *types.InboundMessage) ([]*types.TransmitRequest, error) {
	if message.Topic != l.commandTopic {
		return nil, handler.ErrUnhandledTopic
	}
	var command Command
	if err := json.Unmarshal(message.Payload, &command); err != nil {
		return nil, err
	}
	if command.Payload.Address == "" || command.Payload.Message == "" {
		return nil, ErrInvalidCommand
	}
	address, err := translator.ParseAddress(command.Payload.Address)
	if err != nil {
		return nil, err
	}
	l.ctx.WithField("Command", command.Name).WithField("DeviceAddress", types.FormatAddress(address)).Debug("Received command")
	return []*types.TransmitRequest{{Address: address, Payload: []byte(command.Payload.Message)}}, nil
}

// OnRadioTransmitComplete implements handler.Handler
func (l *Losant) OnRadioTransmitComplete(ack *types.TransmitComplete) {
	l.ctx.WithField("DeviceAddress", types.FormatAddress(ack.Address)).Debug("Sent command")
}
