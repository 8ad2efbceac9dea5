// Copyright © 2017 The Things Network
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

package lorafilter

import (
	"errors"
	"testing"

	"github.com/TheThingsNetwork/lora-field-gateway/middleware"
	"github.com/TheThingsNetwork/lora-field-gateway/types"
	. "github.com/smartystreets/goconvey/convey"
)

func TestFilter(t *testing.T) {
	Convey("Given a new Filter", t, func(c C) {
		f := NewFilter(-110, -5)

		Convey("When sending a strong packet", func() {
			err := f.HandleUplink(middleware.NewContext(), &types.RadioPacket{PacketRSSI: -60, SNR: 9.5})
			Convey("There should be no error", func() {
				So(err, ShouldBeNil)
			})
		})

		Convey("When sending a packet at the thresholds", func() {
			err := f.HandleUplink(middleware.NewContext(), &types.RadioPacket{PacketRSSI: -110, SNR: -5})
			Convey("There should be no error", func() {
				So(err, ShouldBeNil)
			})
		})

		Convey("When sending a weak packet", func() {
			err := f.HandleUplink(middleware.NewContext(), &types.RadioPacket{PacketRSSI: -118, SNR: 2})
			Convey("There should be an error", func() {
				So(errors.Is(err, ErrWeakSignal), ShouldBeTrue)
			})
		})

		Convey("When sending a noisy packet", func() {
			err := f.HandleUplink(middleware.NewContext(), &types.RadioPacket{PacketRSSI: -90, SNR: -12.25})
			Convey("There should be an error", func() {
				So(errors.Is(err, ErrNoise), ShouldBeTrue)
			})
		})
	})

	Convey("Given a Filter with the default thresholds", t, func(c C) {
		f := NewFilter(DefaultMinRSSI, DefaultMinSNR)
		Convey("Any received packet should pass", func() {
			So(f.HandleUplink(middleware.NewContext(), &types.RadioPacket{PacketRSSI: -140, SNR: -20}), ShouldBeNil)
		})
	})
}
