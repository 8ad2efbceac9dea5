// Copyright © 2016 The Things Network
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

package dummy

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/TheThingsNetwork/lora-field-gateway/backend"
	"github.com/TheThingsNetwork/lora-field-gateway/types"
	"github.com/apex/log"
	"github.com/apex/log/handlers/text"
	. "github.com/smartystreets/goconvey/convey"
)

var (
	_ backend.Broker = &Broker{}
	_ backend.Radio  = &Radio{}
)

func TestBroker(t *testing.T) {
	Convey("Given a new Context", t, func(c C) {

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

		Convey("When creating a new dummy Broker", func() {
			dummy := NewBroker(ctx)

			Convey("When publishing before connecting", func() {
				err := dummy.Publish(&types.OutboundMessage{Topic: "test"})
				Convey("There should be a not connected error", func() {
					So(err, ShouldEqual, backend.ErrNotConnected)
				})
			})

			Convey("When the connection fails", func() {
				dummy.SetConnectError(errors.New("refused"))
				err := dummy.Connect(backend.BrokerConfig{ClientID: "gw"})
				Convey("There should be an error", func() {
					So(err, ShouldNotBeNil)
					So(dummy.Connected(), ShouldBeFalse)
					So(dummy.Connects(), ShouldHaveLength, 1)
				})
			})

			Convey("When calling Connect", func() {
				err := dummy.Connect(backend.BrokerConfig{ClientID: "gw"})
				Convey("There should be no error", func() {
					So(err, ShouldBeNil)
					So(dummy.Connected(), ShouldBeTrue)
				})

				Convey("When publishing a message", func() {
					err := dummy.Publish(&types.OutboundMessage{Topic: "test"})
					Convey("The message should be recorded", func() {
						So(err, ShouldBeNil)
						So(dummy.Published(), ShouldHaveLength, 1)
					})
				})

				Convey("When subscribing and delivering a message", func() {
					So(dummy.Subscribe("commands/#", types.AtLeastOnce), ShouldBeNil)
					dummy.Deliver(&types.InboundMessage{Topic: "commands/1"})
					Convey("The message should be in the channel", func() {
						So(dummy.Subscriptions(), ShouldContainKey, "commands/#")
						select {
						case <-time.After(time.Second):
							So("Timeout Exceeded", ShouldBeFalse)
						case msg := <-dummy.Messages():
							So(msg.Topic, ShouldEqual, "commands/1")
						}
					})
				})

				Convey("When losing the connection", func() {
					var cause error
					dummy.SetConnectionLostHandler(func(err error) { cause = err })
					dummy.Lose()
					Convey("The handler should be called", func() {
						So(cause, ShouldEqual, ErrConnectionLost)
						So(dummy.Connected(), ShouldBeFalse)
					})
				})
			})
		})
	})
}

func TestRadio(t *testing.T) {
	Convey("Given a new dummy Radio", t, func(c C) {
		var logs bytes.Buffer
		ctx := &log.Logger{
			Handler: text.New(&logs),
			Level:   log.DebugLevel,
		}
		radio := NewRadio(ctx)
		receive, _ := radio.SubscribeReceive()
		complete, _ := radio.SubscribeTransmitComplete()

		Convey("When receiving a packet", func() {
			radio.Receive(&types.RadioPacket{Address: []byte{0xA1}, Payload: []byte("T1 1")})
			Convey("The packet should be in the channel", func() {
				packet := <-receive
				So(packet.AddressHex(), ShouldEqual, "A1")
				So(packet.ReceivedAt.IsZero(), ShouldBeFalse)
			})
		})

		Convey("When sending a packet", func() {
			err := radio.Send([]byte{0xA1}, []byte("on"))
			Convey("There should be a transmit complete", func() {
				So(err, ShouldBeNil)
				So(radio.Sent(), ShouldHaveLength, 1)
				ack := <-complete
				So(ack.Length, ShouldEqual, 2)
			})
		})

		Convey("When sending fails", func() {
			radio.SetSendError(errors.New("busy"))
			err := radio.Send([]byte{0xA1}, []byte("on"))
			So(err, ShouldNotBeNil)
			So(radio.Sent(), ShouldBeEmpty)
		})
	})
}
