// Copyright © 2017 The Things Network
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

package debug

import (
	"bytes"
	"testing"

	"github.com/TheThingsNetwork/lora-field-gateway/handler"
	"github.com/TheThingsNetwork/lora-field-gateway/types"
	"github.com/apex/log"
	"github.com/apex/log/handlers/text"
	. "github.com/smartystreets/goconvey/convey"
)

func TestDebug(t *testing.T) {
	Convey("Given an initialised debug handler", t, func(c C) {
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
		So(h.Initialise(ctx, handler.Config{ClientID: "gw1"}, nil), ShouldBeNil)

		Convey("When receiving a packet", func() {
			msgs, err := h.OnRadioReceive(&types.RadioPacket{
				Address: []byte{0xA1, 0x02},
				Payload: []byte("T1 21.5"),
			})
			Convey("It should only log the readings", func() {
				So(err, ShouldBeNil)
				So(msgs, ShouldBeEmpty)
				So(logs.String(), ShouldContainSubstring, "a102t1")
			})
		})

		Convey("When receiving an undecodable packet", func() {
			msgs, err := h.OnRadioReceive(&types.RadioPacket{
				Address: []byte{0xA1, 0x02},
				Payload: []byte{0xff},
			})
			Convey("It should not return an error", func() {
				So(err, ShouldBeNil)
				So(msgs, ShouldBeEmpty)
			})
		})

		Convey("When a transmission completes", func() {
			h.OnRadioTransmitComplete(&types.TransmitComplete{Address: []byte{0xA1, 0x02}})
			Convey("It should be logged", func() {
				So(logs.String(), ShouldContainSubstring, "A102")
			})
		})
	})
}
