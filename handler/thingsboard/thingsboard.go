// Copyright © 2017 The Things Network
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

// Package thingsboard publishes readings as telemetry of a ThingsBoard device.
// The device access token is used as MQTT username.
package thingsboard

import (
	"github.com/TheThingsNetwork/lora-field-gateway/handler"
	"github.com/TheThingsNetwork/lora-field-gateway/translator"
	"github.com/TheThingsNetwork/lora-field-gateway/types"
	"github.com/apex/log"
)

// TelemetryTopic is the topic for device telemetry
var TelemetryTopic = "v1/devices/me/telemetry"

func init() {
	handler.Register("thingsboard", func() handler.Handler { return New() })
}

// New returns a new ThingsBoard handler
func New() *ThingsBoard {
	t := translator.New("")
	t.Numeric = true
	return &ThingsBoard{translator: t}
}

// ThingsBoard handler
type ThingsBoard struct {
	translator *translator.Translator
}

// Initialise implements handler.Handler
func (t *ThingsBoard) Initialise(log.Interface, handler.Config, handler.Subscriber) error {
	return nil
}

// OnRadioReceive implements handler.Handler
func (t *ThingsBoard) OnRadioReceive(packet *types.RadioPacket) ([]*types.OutboundMessage, error) {
	msg, err := t.translator.Translate(packet, TelemetryTopic)
	if err != nil {
		return nil, err
	}
	return []*types.OutboundMessage{msg}, nil
}

// OnBrokerMessage implements handler.Handler
func (t *ThingsBoard) OnBrokerMessage(*types.InboundMessage) ([]*types.TransmitRequest, error) {
	return nil, handler.ErrUnhandledTopic
}

// OnRadioTransmitComplete implements handler.Handler
func (t *ThingsBoard) OnRadioTransmitComplete(*types.TransmitComplete) {}
