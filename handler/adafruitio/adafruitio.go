// Copyright © 2017 The Things Network
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

// Package adafruitio publishes readings to an Adafruit IO group. Every reading
// becomes a feed in the group.
package adafruitio

import (
	"errors"
	"fmt"

	"github.com/TheThingsNetwork/lora-field-gateway/handler"
	"github.com/TheThingsNetwork/lora-field-gateway/translator"
	"github.com/TheThingsNetwork/lora-field-gateway/types"
	"github.com/apex/log"
)

// GroupTopicFormat is the topic for publishing multiple feeds to a group
var GroupTopicFormat = "%s/groups/%s/json"

// ErrNoUsername is returned when no Adafruit IO username is configured
var ErrNoUsername = errors.New("adafruitio: no username configured")

func init() {
	handler.Register("adafruitio", func() handler.Handler { return New() })
}

// New returns a new Adafruit IO handler
func New() *AdafruitIO {
	return &AdafruitIO{translator: translator.New("feeds")}
}

// AdafruitIO handler
type AdafruitIO struct {
	ctx        log.Interface
	translator *translator.Translator
	topic      string
}

// Initialise implements handler.Handler. The group defaults to the client ID.
func (a *AdafruitIO) Initialise(ctx log.Interface, config handler.Config, _ handler.Subscriber) error {
	if config.Username == "" {
		return ErrNoUsername
	}
	group := config.Setting("group", config.ClientID)
	if group == "" {
		return handler.ErrNoClientID
	}
	a.ctx = ctx.WithField("Handler", "adafruitio")
	a.topic = fmt.Sprintf(GroupTopicFormat, config.Username, group)
	return nil
}

// OnRadioReceive implements handler.Handler
func (a *AdafruitIO) OnRadioReceive(packet *types.RadioPacket) ([]*types.OutboundMessage, error) {
	msg, err := a.translator.Translate(packet, a.topic)
	if err != nil {
		return nil, err
	}
	return []*types.OutboundMessage{msg}, nil
}

// OnBrokerMessage implements handler.Handler
func (a *AdafruitIO) OnBrokerMessage(*types.InboundMessage) ([]*types.TransmitRequest, error) {
	return nil, handler.ErrUnhandledTopic
}

// OnRadioTransmitComplete implements handler.Handler
func (a *AdafruitIO) OnRadioTransmitComplete(*types.TransmitComplete) {}
