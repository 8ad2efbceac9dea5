// Copyright © 2017 The Things Network
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

// Package azureiothub publishes readings as device-to-cloud messages to Azure IoT Hub
// and sends cloud-to-device messages to devices.
//
// Cloud-to-device messages need an "address" application property with the hex
// address of the device. The body of the message is sent as-is.
package azureiothub

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/TheThingsNetwork/lora-field-gateway/handler"
	"github.com/TheThingsNetwork/lora-field-gateway/translator"
	"github.com/TheThingsNetwork/lora-field-gateway/types"
	"github.com/apex/log"
)

// Topic formats
var (
	EventsTopicFormat      = "devices/%s/messages/events/"
	DeviceboundTopicFormat = "devices/%s/messages/devicebound/"
)

// AddressProperty is the application property that contains the device address
var AddressProperty = "address"

func init() {
	handler.Register("azureiothub", func() handler.Handler { return New() })
}

// New returns a new Azure IoT Hub handler
func New() *AzureIoTHub {
	return &AzureIoTHub{
		translator: translator.New("feeds"),
	}
}

// AzureIoTHub handler
type AzureIoTHub struct {
	ctx         log.Interface
	translator  *translator.Translator
	eventsTopic string
	deviceBound string
}

// Initialise implements handler.Handler
func (a *AzureIoTHub) Initialise(ctx log.Interface, config handler.Config, subscriber handler.Subscriber) error {
	if config.ClientID == "" {
		return handler.ErrNoClientID
	}
	a.ctx = ctx.WithField("Handler", "azureiothub")
	a.eventsTopic = fmt.Sprintf(EventsTopicFormat, config.ClientID)
	a.deviceBound = fmt.Sprintf(DeviceboundTopicFormat, config.ClientID)
	if err := subscriber.Subscribe(a.deviceBound+"#", types.AtLeastOnce); err != nil {
		return err
	}
	return nil
}

// OnRadioReceive implements handler.Handler
func (a *AzureIoTHub) OnRadioReceive(packet *types.RadioPacket) ([]*types.OutboundMessage, error) {
	msg, err := a.translator.Translate(packet, a.eventsTopic)
	if err != nil {
		return nil, err
	}
	return []*types.OutboundMessage{msg}, nil
}

// OnBrokerMessage implements handler.Handler
func (a *AzureIoTHub) OnBrokerMessage(message *types.InboundMessage) ([]*types.TransmitRequest, error) {
	if !strings.HasPrefix(message.Topic, a.deviceBound) {
		return nil, handler.ErrUnhandledTopic
	}
	properties, err := url.ParseQuery(strings.TrimPrefix(message.Topic, a.deviceBound))
	if err != nil {
		return nil, err
	}
	address, err := translator.ParseAddress(properties.Get(AddressProperty))
	if err != nil {
		return nil, err
	}
	return []*types.TransmitRequest{{Address: address, Payload: message.Payload}}, nil
}

// OnRadioTransmitComplete implements handler.Handler
func (a *AzureIoTHub) OnRadioTransmitComplete(ack *types.TransmitComplete) {
	a.ctx.WithField("DeviceAddress", types.FormatAddress(ack.Address)).Debug("Sent cloud-to-device message")
}
