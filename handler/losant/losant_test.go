// Copyright © 2017 The Things Network
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

package losant

import (
	"testing"

	"github.com/TheThingsNetwork/lora-field-gateway/handler"
	"github.com/TheThingsNetwork/lora-field-gateway/translator"
	"github.com/TheThingsNetwork/lora-field-gateway/types"
	"github.com/apex/log"
	"github.com/apex/log/handlers/discard"
	. "github.com/smartystreets/goconvey/convey"
)

type subscriptions map[string]types.QoS

func (s subscriptions) Subscribe(topicFilter string, qos types.QoS) error {
	s[topicFilter] = qos
	return nil
}

func TestLosant(t *testing.T) {
	Convey("Given an initialised Losant handler", t, func() {
		ctx := &log.Logger{Handler: discard.Default, Level: log.DebugLevel}
		h := New()
		subs := subscriptions{}
		So(h.Initialise(ctx, handler.Config{ClientID: "5a1b"}, subs), ShouldBeNil)

		Convey("It should subscribe to commands", func() {
			So(subs, ShouldContainKey, "losant/5a1b/command")
		})

		Convey("When receiving a packet", func() {
			msgs, err := h.OnRadioReceive(&types.RadioPacket{
				Address: []byte{0xA1, 0x02},
				Payload: []byte("T1 21.5,H1 60"),
			})
			Convey("It should publish numeric device state", func() {
				So(err, ShouldBeNil)
				So(msgs, ShouldHaveLength, 1)
				So(msgs[0].Topic, ShouldEqual, "losant/5a1b/state")
				So(string(msgs[0].Payload), ShouldEqual, `{"data":{"a102t1":21.5,"a102h1":60}}`)
			})
		})

		Convey("When receiving a packet with a text value", func() {
			_, err := h.OnRadioReceive(&types.RadioPacket{
				Address: []byte{0xA1, 0x02},
				Payload: []byte("S1 open"),
			})
			Convey("There should be an error", func() {
				So(err, ShouldNotBeNil)
			})
		})

		Convey("When receiving a command", func() {
			reqs, err := h.OnBrokerMessage(&types.InboundMessage{
				Topic:   "losant/5a1b/command",
				Payload: []byte(`{"name":"set","payload":{"address":"A102","message":"on"}}`),
			})
			Convey("It should transmit the message to the device", func() {
				So(err, ShouldBeNil)
				So(reqs, ShouldHaveLength, 1)
				So(reqs[0].Address, ShouldResemble, []byte{0xA1, 0x02})
				So(string(reqs[0].Payload), ShouldEqual, "on")
			})
		})

		Convey("When receiving a command without message", func() {
			_, err := h.OnBrokerMessage(&types.InboundMessage{
				Topic:   "losant/5a1b/command",
				Payload: []byte(`{"name":"set","payload":{"address":"A102"}}`),
			})
			Convey("There should be an error", func() {
				So(err, ShouldEqual, ErrInvalidCommand)
			})
		})

		Convey("When receiving a command with an invalid address", func() {
			_, err := h.OnBrokerMessage(&types.InboundMessage{
				Topic:   "losant/5a1b/command",
				Payload: []byte(`{"name":"set","payload":{"address":"XYZ","message":"on"}}`),
			})
			Convey("There should be an error", func() {
				So(err, ShouldEqual, translator.ErrInvalidAddress)
			})
		})

		Convey("When receiving invalid JSON", func() {
			_, err := h.OnBrokerMessage(&types.InboundMessage{
				Topic:   "losant/5a1b/command",
				Payload: []byte(`{`),
			})
			Convey("There should be an error", func() {
				So(err, ShouldNotBeNil)
			})
		})

		Convey("When receiving a message on another topic", func() {
			_, err := h.OnBrokerMessage(&types.InboundMessage{Topic: "losant/other/command"})
			Convey("It should not be handled", func() {
				So(err, ShouldEqual, handler.ErrUnhandledTopic)
			})
		})
	})
}
