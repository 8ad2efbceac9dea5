// Copyright © 2017 The Things Network
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

// Package translator converts delimited sensor text received over the radio into
// broker messages.
//
// A payload such as "T1 21.5,H1 60" holds comma-separated readings, each made of a
// sensor ID and a value separated by a space. Reading IDs are qualified with the hex
// address of the sending device, so the payload above sent by device A102 becomes
// {"feeds":{"a102t1":"21.5","a102h1":"60"}}.
package translator

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/TheThingsNetwork/lora-field-gateway/types"
)

// Translation errors
var (
	ErrDecode           = errors.New("translator: payload is not valid UTF-8")
	ErrEmptyPayload     = errors.New("translator: payload contains no readings")
	ErrMalformedReading = errors.New("translator: malformed reading")
)

// Separators used in radio payloads
var (
	ReadingSeparator = ","
	ValueSeparator   = " "
)

// Decode the payload of a packet into readings.
// All readings in the packet must be valid, otherwise no readings are returned.
func Decode(packet *types.RadioPacket) (*Readings, error) {
	if !utf8.Valid(packet.Payload) {
		return nil, ErrDecode
	}
	prefix := strings.ToLower(packet.AddressHex())
	readings := NewReadings()
	for _, token := range split(string(packet.Payload), ReadingSeparator) {
		parts := split(token, ValueSeparator)
		if len(parts) != 2 {
			return nil, fmt.Errorf("%w: %q", ErrMalformedReading, token)
		}
		readings.Set(prefix+strings.ToLower(parts[0]), parts[1])
	}
	if readings.Len() == 0 {
		return nil, ErrEmptyPayload
	}
	return readings, nil
}

func split(s, sep string) []string {
	var parts []string
	for _, part := range strings.Split(s, sep) {
		if part != "" {
			parts = append(parts, part)
		}
	}
	return parts
}

// Translator encodes readings into broker messages
type Translator struct {
	// Container is the name of the JSON field that wraps the readings. If empty, the
	// readings are the top-level object.
	Container string
	// Numeric values are encoded as JSON numbers instead of strings
	Numeric bool
	QoS     types.QoS
	Retain  bool
}

// New returns a Translator that wraps readings in the given container and publishes at least once
func New(container string) *Translator {
	return &Translator{
		Container: container,
		QoS:       types.AtLeastOnce,
	}
}

// Encode the readings as JSON, preserving their order
func (t *Translator) Encode(readings *Readings) ([]byte, error) {
	var buf bytes.Buffer
	if t.Container != "" {
		buf.WriteByte('{')
		if err := writeJSON(&buf, t.Container); err != nil {
			return nil, err
		}
		buf.WriteByte(':')
	}
	buf.WriteByte('{')
	for i, reading := range readings.List() {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeJSON(&buf, reading.ID); err != nil {
			return nil, err
		}
		buf.WriteByte(':')
		var value interface{} = reading.Value
		if t.Numeric {
			f, err := strconv.ParseFloat(reading.Value, 64)
			if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
				return nil, fmt.Errorf("%w: %s is not a number: %q", ErrMalformedReading, reading.ID, reading.Value)
			}
			value = f
		}
		if err := writeJSON(&buf, value); err != nil {
			return nil, err
		}
	}
	buf.WriteByte('}')
	if t.Container != "" {
		buf.WriteByte('}')
	}
	return buf.Bytes(), nil
}

func writeJSON(buf *bytes.Buffer, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	buf.Write(data)
	return nil
}

// Translate a packet into a message on the given topic
func (t *Translator) Translate(packet *types.RadioPacket, topic string) (*types.OutboundMessage, error) {
	readings, err := Decode(packet)
	if err != nil {
		return nil, err
	}
	payload, err := t.Encode(readings)
	if err != nil {
		return nil, err
	}
	return &types.OutboundMessage{
		Topic:   topic,
		Payload: payload,
		QoS:     t.QoS,
		Retain:  t.Retain,
	}, nil
}
