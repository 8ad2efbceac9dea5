// Copyright © 2017 The Things Network
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

package translator

import (
	"errors"
	"testing"

	"github.com/TheThingsNetwork/lora-field-gateway/types"
	. "github.com/smartystreets/goconvey/convey"
)

func TestDecode(t *testing.T) {
	Convey("Given a packet from A1 02", t, func() {
		packet := &types.RadioPacket{Address: []byte{0xA1, 0x02}}

		Convey("When decoding two readings", func() {
			packet.Payload = []byte("T1 21.5,H1 60")
			readings, err := Decode(packet)
			Convey("There should be no error", func() {
				So(err, ShouldBeNil)
			})
			Convey("The readings should be qualified with the lowercase address", func() {
				So(readings.List(), ShouldResemble, []Reading{
					{ID: "a102t1", Value: "21.5"},
					{ID: "a102h1", Value: "60"},
				})
			})
		})

		Convey("When decoding a payload with empty segments", func() {
			packet.Payload = []byte(",,T1  21.5 ,,H1 60,")
			readings, err := Decode(packet)
			Convey("The empty segments should be ignored", func() {
				So(err, ShouldBeNil)
				So(readings.Len(), ShouldEqual, 2)
			})
		})

		Convey("When decoding a payload with a repeated sensor", func() {
			packet.Payload = []byte("T1 1,H1 2,t1 3")
			readings, err := Decode(packet)
			Convey("The last value should win in the first position", func() {
				So(err, ShouldBeNil)
				So(readings.List(), ShouldResemble, []Reading{
					{ID: "a102t1", Value: "3"},
					{ID: "a102h1", Value: "2"},
				})
			})
		})

		Convey("When decoding invalid UTF-8", func() {
			packet.Payload = []byte{0xff, 0xfe, 0xfd}
			readings, err := Decode(packet)
			Convey("There should be a decode error", func() {
				So(err, ShouldEqual, ErrDecode)
				So(readings, ShouldBeNil)
			})
		})

		Convey("When decoding an empty payload", func() {
			packet.Payload = []byte(",, ,")
			_, err := Decode(packet)
			Convey("Then the whole packet should be rejected", func() {
				So(err, ShouldNotBeNil)
			})
		})

		Convey("When decoding only separators", func() {
			packet.Payload = []byte(",,,")
			_, err := Decode(packet)
			Convey("There should be an empty payload error", func() {
				So(err, ShouldEqual, ErrEmptyPayload)
			})
		})

		Convey("When one of the readings has no value", func() {
			packet.Payload = []byte("T1 21.5,H1")
			readings, err := Decode(packet)
			Convey("Then the whole packet should be rejected", func() {
				So(errors.Is(err, ErrMalformedReading), ShouldBeTrue)
				So(readings, ShouldBeNil)
			})
		})

		Convey("When one of the readings has too many parts", func() {
			packet.Payload = []byte("T1 21.5,H1 60 %")
			_, err := Decode(packet)
			Convey("Then the whole packet should be rejected", func() {
				So(errors.Is(err, ErrMalformedReading), ShouldBeTrue)
			})
		})
	})

	Convey("Given a packet from AB", t, func() {
		packet := &types.RadioPacket{Address: []byte{0xAB}, Payload: []byte("A 1,B 2")}
		readings, err := Decode(packet)
		So(err, ShouldBeNil)
		So(readings.List(), ShouldResemble, []Reading{
			{ID: "aba", Value: "1"},
			{ID: "abb", Value: "2"},
		})
	})
}

func TestTranslator(t *testing.T) {
	Convey("Given a packet from A1 02", t, func() {
		packet := &types.RadioPacket{Address: []byte{0xA1, 0x02}, Payload: []byte("T1 21.5,H1 60")}

		Convey("When translating with a feeds container", func() {
			msg, err := New("feeds").Translate(packet, "devices/gw/messages/events/")
			Convey("There should be no error", func() {
				So(err, ShouldBeNil)
			})
			Convey("The message should contain the readings in order", func() {
				So(string(msg.Payload), ShouldEqual, `{"feeds":{"a102t1":"21.5","a102h1":"60"}}`)
			})
			Convey("The message should be published at least once on the topic", func() {
				So(msg.Topic, ShouldEqual, "devices/gw/messages/events/")
				So(msg.QoS, ShouldEqual, types.AtLeastOnce)
				So(msg.Retain, ShouldBeFalse)
			})
		})

		Convey("When translating the same packet twice", func() {
			first, _ := New("feeds").Translate(packet, "t")
			second, _ := New("feeds").Translate(packet, "t")
			Convey("The payloads should be identical", func() {
				So(second.Payload, ShouldResemble, first.Payload)
			})
		})

		Convey("When translating with numeric values", func() {
			tr := New("data")
			tr.Numeric = true
			msg, err := tr.Translate(packet, "losant/gw/state")
			Convey("The values should be JSON numbers", func() {
				So(err, ShouldBeNil)
				So(string(msg.Payload), ShouldEqual, `{"data":{"a102t1":21.5,"a102h1":60}}`)
			})
		})

		Convey("When translating a non-numeric value with numeric values", func() {
			tr := New("data")
			tr.Numeric = true
			packet.Payload = []byte("T1 warm")
			msg, err := tr.Translate(packet, "t")
			Convey("There should be a malformed reading error", func() {
				So(errors.Is(err, ErrMalformedReading), ShouldBeTrue)
				So(msg, ShouldBeNil)
			})
		})

		Convey("When translating without container", func() {
			msg, err := (&Translator{}).Translate(packet, "t")
			Convey("The readings should be the top-level object", func() {
				So(err, ShouldBeNil)
				So(string(msg.Payload), ShouldEqual, `{"a102t1":"21.5","a102h1":"60"}`)
			})
		})
	})
}

func TestParseAddress(t *testing.T) {
	Convey("When parsing device addresses", t, func() {
		for _, s := range []string{"A102", "a102", "0xA102", "a1:02", " A1 02 "} {
			address, err := ParseAddress(s)
			So(err, ShouldBeNil)
			So(address, ShouldResemble, []byte{0xA1, 0x02})
		}
		_, err := ParseAddress("")
		So(err, ShouldEqual, ErrInvalidAddress)
		_, err = ParseAddress("xyz")
		So(err, ShouldEqual, ErrInvalidAddress)
	})
}
