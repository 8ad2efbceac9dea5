// Copyright © 2017 The Things Network
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

package azureiothub

import (
	"bytes"
	"testing"

	"github.com/TheThingsNetwork/lora-field-gateway/handler"
	"github.com/TheThingsNetwork/lora-field-gateway/translator"
	"github.com/TheThingsNetwork/lora-field-gateway/types"
	"github.com/apex/log"
	"github.com/apex/log/handlers/text"
	. "github.com/smartystreets/goconvey/convey"
)

type subscriptions map[string]types.QoS

func (s subscriptions) Subscribe(topicFilter string, qos types.QoS) error {
	s[topicFilter] = qos
	return nil
}

func TestAzureIoTHub(t *testing.T) {
	Convey("Given a new Azure IoT Hub handler", t, func(c C) {
		var logs bytes.Buffer
		ctx := &log.Logger{
			Handler: text.New(&logs),
			Level:   log.DebugLevel,
		}
		defer func() {
			if logs.Len() > 0 {
				c.Printf("\n%s", logs.String())
			}
		}()

		h := New()
		subs := subscriptions{}

		Convey("When initialising without client ID", func() {
			err := h.Initialise(ctx, handler.Config{}, subs)
			Convey("There should be an error", func() {
				So(err, ShouldEqual, handler.ErrNoClientID)
			})
		})

		Convey("When initialising", func() {
			err := h.Initialise(ctx, handler.Config{ClientID: "gw1"}, subs)
			So(err, ShouldBeNil)

			Convey("It should subscribe to cloud-to-device messages", func() {
				So(subs, ShouldContainKey, "devices/gw1/messages/devicebound/#")
				So(subs["devices/gw1/messages/devicebound/#"], ShouldEqual, types.AtLeastOnce)
			})

			Convey("When receiving a packet", func() {
				msgs, err := h.OnRadioReceive(&types.RadioPacket{
					Address: []byte{0xA1, 0x02},
					Payload: []byte("T1 21.5,H1 60"),
				})
				Convey("It should publish a device-to-cloud message", func() {
					So(err, ShouldBeNil)
					So(msgs, ShouldHaveLength, 1)
					So(msgs[0].Topic, ShouldEqual, "devices/gw1/messages/events/")
					So(string(msgs[0].Payload), ShouldEqual, `{"feeds":{"a102t1":"21.5","a102h1":"60"}}`)
					So(msgs[0].QoS, ShouldEqual, types.AtLeastOnce)
				})
			})

			Convey("When receiving a malformed packet", func() {
				msgs, err := h.OnRadioReceive(&types.RadioPacket{
					Address: []byte{0xA1, 0x02},
					Payload: []byte("T1"),
				})
				Convey("There should be an error", func() {
					So(err, ShouldNotBeNil)
					So(msgs, ShouldBeEmpty)
				})
			})

			Convey("When receiving a cloud-to-device message", func() {
				reqs, err := h.OnBrokerMessage(&types.InboundMessage{
					Topic:   "devices/gw1/messages/devicebound/%24.to=%2Fdevices%2Fgw1&address=A1-02",
					Payload: []byte("on"),
				})
				Convey("It should transmit the body to the device", func() {
					So(err, ShouldBeNil)
					So(reqs, ShouldHaveLength, 1)
					So(reqs[0].Address, ShouldResemble, []byte{0xA1, 0x02})
					So(string(reqs[0].Payload), ShouldEqual, "on")
				})
			})

			Convey("When receiving a cloud-to-device message without address", func() {
				_, err := h.OnBrokerMessage(&types.InboundMessage{
					Topic:   "devices/gw1/messages/devicebound/%24.to=%2Fdevices%2Fgw1",
					Payload: []byte("on"),
				})
				Convey("There should be an error", func() {
					So(err, ShouldEqual, translator.ErrInvalidAddress)
				})
			})

			Convey("When receiving a message on another topic", func() {
				_, err := h.OnBrokerMessage(&types.InboundMessage{Topic: "devices/gw2/messages/devicebound/"})
				Convey("It should not be handled", func() {
					So(err, ShouldEqual, handler.ErrUnhandledTopic)
				})
			})
		})
	})
}
