// Copyright © 2017 The Things Network
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

package deduplicate

import (
	"testing"
	"time"

	"github.com/TheThingsNetwork/lora-field-gateway/middleware"
	"github.com/TheThingsNetwork/lora-field-gateway/types"
	. "github.com/smartystreets/goconvey/convey"
)

func TestDeduplicate(t *testing.T) {
	Convey("Given a new Deduplicate", t, func(c C) {
		i := NewDeduplicate(time.Second)
		now := time.Now()

		up := &types.RadioPacket{Address: []byte{0xA1, 0x02}, Payload: []byte("T1 21.5"), ReceivedAt: now}
		upDup := &types.RadioPacket{Address: []byte{0xA1, 0x02}, Payload: []byte("T1 21.5"), ReceivedAt: now.Add(100 * time.Millisecond)}
		upLate := &types.RadioPacket{Address: []byte{0xA1, 0x02}, Payload: []byte("T1 21.5"), ReceivedAt: now.Add(2 * time.Second)}
		nextUp := &types.RadioPacket{Address: []byte{0xA1, 0x02}, Payload: []byte("T1 21.6"), ReceivedAt: now.Add(100 * time.Millisecond)}
		otherUp := &types.RadioPacket{Address: []byte{0xA1, 0x03}, Payload: []byte("T1 21.5"), ReceivedAt: now}

		Convey("When sending a RadioPacket", func() {
			err := i.HandleUplink(middleware.NewContext(), up)
			Convey("There should be no error", func() {
				So(err, ShouldBeNil)
			})
			Convey("When sending a duplicate of that RadioPacket", func() {
				err := i.HandleUplink(middleware.NewContext(), upDup)
				Convey("There should be an error", func() {
					So(err, ShouldEqual, ErrDuplicatePacket)
				})
			})
			Convey("When sending the same payload after the window", func() {
				err := i.HandleUplink(middleware.NewContext(), upLate)
				Convey("There should be no error", func() {
					So(err, ShouldBeNil)
				})
			})
			Convey("When sending another RadioPacket", func() {
				err := i.HandleUplink(middleware.NewContext(), nextUp)
				Convey("There should be no error", func() {
					So(err, ShouldBeNil)
				})
			})
			Convey("When another device sends the same payload", func() {
				err := i.HandleUplink(middleware.NewContext(), otherUp)
				Convey("There should be no error", func() {
					So(err, ShouldBeNil)
				})
			})
			Convey("When cleaning up", func() {
				i.Cleanup(now.Add(time.Minute))
				Convey("The packet should be forgotten", func() {
					So(i.lastPacket, ShouldBeEmpty)
				})
			})
		})
	})
}
