// Copyright © 2017 The Things Network
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

package adafruitio

import (
	"testing"

	"github.com/TheThingsNetwork/lora-field-gateway/handler"
	"github.com/TheThingsNetwork/lora-field-gateway/types"
	"github.com/apex/log"
	"github.com/apex/log/handlers/discard"
	. "github.com/smartystreets/goconvey/convey"
)

func TestAdafruitIO(t *testing.T) {
	Convey("Given a new Adafruit IO handler", t, func() {
		ctx := &log.Logger{Handler: discard.Default, Level: log.DebugLevel}
		h := New()
		packet := &types.RadioPacket{Address: []byte{0xA1, 0x02}, Payload: []byte("T1 21.5")}

		Convey("When initialising without username", func() {
			err := h.Initialise(ctx, handler.Config{ClientID: "garden"}, nil)
			Convey("There should be an error", func() {
				So(err, ShouldEqual, ErrNoUsername)
			})
		})

		Convey("When initialising without group", func() {
			So(h.Initialise(ctx, handler.Config{ClientID: "garden", Username: "alice"}, nil), ShouldBeNil)
			msgs, err := h.OnRadioReceive(packet)
			Convey("It should publish to the group of the client ID", func() {
				So(err, ShouldBeNil)
				So(msgs, ShouldHaveLength, 1)
				So(msgs[0].Topic, ShouldEqual, "alice/groups/garden/json")
				So(string(msgs[0].Payload), ShouldEqual, `{"feeds":{"a102t1":"21.5"}}`)
			})
		})

		Convey("When initialising with a group", func() {
			So(h.Initialise(ctx, handler.Config{
				ClientID: "garden",
				Username: "alice",
				Settings: map[string]string{"group": "greenhouse"},
			}, nil), ShouldBeNil)
			msgs, err := h.OnRadioReceive(packet)
			Convey("It should publish to that group", func() {
				So(err, ShouldBeNil)
				So(msgs[0].Topic, ShouldEqual, "alice/groups/greenhouse/json")
			})
			Convey("It should not handle broker messages", func() {
				_, err := h.OnBrokerMessage(&types.InboundMessage{Topic: "alice/feeds/x"})
				So(err, ShouldEqual, handler.ErrUnhandledTopic)
			})
		})
	})
}
