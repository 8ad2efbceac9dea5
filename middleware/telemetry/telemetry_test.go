// Copyright © 2017 The Things Network
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

package telemetry

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/TheThingsNetwork/lora-field-gateway/middleware"
	"github.com/TheThingsNetwork/lora-field-gateway/types"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	. "github.com/smartystreets/goconvey/convey"
)

type memoryWriter struct {
	mu     sync.Mutex
	points []*write.Point
}

func (w *memoryWriter) WritePoint(point *write.Point) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.points = append(w.points, point)
}

func (w *memoryWriter) lines() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	lines := make([]string, 0, len(w.points))
	for _, point := range w.points {
		lines = append(lines, write.PointToLineProtocol(point, time.Second))
	}
	return lines
}

func TestTelemetry(t *testing.T) {
	Convey("Given a new Telemetry middleware", t, func(c C) {
		w := &memoryWriter{}
		tm := NewTelemetry(w)

		Convey("When receiving a packet with readings", func() {
			err := tm.HandleUplink(middleware.NewContext(), &types.RadioPacket{
				Address:    []byte{0xA1, 0x02},
				Payload:    []byte("T1 21.5,S1 open"),
				SNR:        9.5,
				PacketRSSI: -40,
				RSSI:       -90,
				ReceivedAt: time.Unix(1500000000, 0),
			})
			Convey("It should never drop the packet", func() {
				So(err, ShouldBeNil)
			})
			Convey("It should write the radio statistics and the numeric readings", func() {
				lines := w.lines()
				So(lines, ShouldHaveLength, 2)
				So(lines[0], ShouldStartWith, "radio_packet,device=A102 ")
				So(lines[0], ShouldContainSubstring, "snr=9.5")
				So(lines[0], ShouldContainSubstring, "payload_length=15i")
				So(strings.TrimSpace(lines[1]), ShouldEqual, "reading,device=A102,sensor=a102t1 value=21.5 1500000000")
			})
		})

		Convey("When receiving an undecodable packet", func() {
			err := tm.HandleUplink(middleware.NewContext(), &types.RadioPacket{
				Address: []byte{0xA1, 0x02},
				Payload: []byte{0xff},
			})
			Convey("It should only write the radio statistics", func() {
				So(err, ShouldBeNil)
				So(w.lines(), ShouldHaveLength, 1)
			})
		})
	})
}
