// Copyright © 2017 The Things Network
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

package handler

import (
	"github.com/TheThingsNetwork/lora-field-gateway/types"
	"github.com/apex/log"
)

// Initialise initialises h. If that fails, the error is logged and a handler is
// returned that receives all events but never produces any messages.
func Initialise(ctx log.Interface, h Handler, config Config, subscriber Subscriber) Handler {
	if err := h.Initialise(ctx, config, subscriber); err != nil {
		ctx.WithError(err).Error("Could not initialise handler, ignoring all events")
		return &inert{ctx: ctx}
	}
	return h
}

type inert struct {
	ctx log.Interface
}

func (i *inert) Initialise(log.Interface, Config, Subscriber) error { return nil }

func (i *inert) OnRadioReceive(packet *types.RadioPacket) ([]*types.OutboundMessage, error) {
	i.ctx.WithField("DeviceAddress", packet.AddressHex()).Debug("Ignore packet: handler not initialised")
	return nil, nil
}

func (i *inert) OnBrokerMessage(message *types.InboundMessage) ([]*types.TransmitRequest, error) {
	i.ctx.WithField("Topic", message.Topic).Debug("Ignore message: handler not initialised")
	return nil, nil
}

func (i *inert) OnRadioTransmitComplete(*types.TransmitComplete) {}
