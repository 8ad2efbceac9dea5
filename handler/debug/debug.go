// Copyright © 2017 The Things Network
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

// Package debug contains a handler that only logs events. It is a starting point
// for new integrations and can be used to check radio reception without a broker
// integration.
package debug

import (
	"github.com/TheThingsNetwork/lora-field-gateway/handler"
	"github.com/TheThingsNetwork/lora-field-gateway/translator"
	"github.com/TheThingsNetwork/lora-field-gateway/types"
	"github.com/apex/log"
)

func init() {
	handler.Register("debug", func() handler.Handler { return New() })
}

// New returns a handler that logs all traffic
func New() *Debug {
	return &Debug{}
}

// Debug handler
type Debug struct {
	ctx log.Interface
}

// Initialise implements handler.Handler
func (d *Debug) Initialise(ctx log.Interface, config handler.Config, _ handler.Subscriber) error {
	d.ctx = ctx.WithField("Handler", "debug")
	d.ctx.WithField("ClientID", config.ClientID).Info("Initialised")
	return nil
}

// OnRadioReceive implements handler.Handler
func (d *Debug) OnRadioReceive(packet *types.RadioPacket) ([]*types.OutboundMessage, error) {
	ctx := d.ctx.WithField("DeviceAddress", packet.AddressHex())
	readings, err := translator.Decode(packet)
	if err != nil {
		ctx.WithError(err).Info("Received packet")
		return nil, nil
	}
	for _, reading := range readings.List() {
		ctx.WithField("ID", reading.ID).WithField("Value", reading.Value).Info("Received reading")
	}
	return nil, nil
}

// OnBrokerMessage implements handler.Handler
func (d *Debug) OnBrokerMessage(message *types.InboundMessage) ([]*types.TransmitRequest, error) {
	return nil, handler.ErrUnhandledTopic
}

// OnRadioTransmitComplete implements handler.Handler
func (d *Debug) OnRadioTransmitComplete(ack *types.TransmitComplete) {
	d.ctx.WithField("DeviceAddress", types.FormatAddress(ack.Address)).Info("Transmit complete")
}
