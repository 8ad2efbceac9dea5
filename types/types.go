// Copyright © 2017 The Things Network
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

package types

import (
	"encoding/hex"
	"strings"
	"time"
)

// RadioPacket is a packet received by the radio
type RadioPacket struct {
	Address    []byte
	Payload    []byte
	SNR        float64
	PacketRSSI int
	RSSI       int
	ReceivedAt time.Time
}

// AddressHex returns the source address as uppercase hex without separators
func (p *RadioPacket) AddressHex() string {
	return FormatAddress(p.Address)
}

// TransmitRequest asks the radio to send a payload to an address
type TransmitRequest struct {
	Address []byte
	Payload []byte
}

// AddressHex returns the destination address as uppercase hex without separators
func (r *TransmitRequest) AddressHex() string {
	return FormatAddress(r.Address)
}

// TransmitComplete is emitted by the radio after a transmission finished
type TransmitComplete struct {
	Address []byte
	Length  int
	SentAt  time.Time
}

// OutboundMessage is published to the broker
type OutboundMessage struct {
	Topic   string
	Payload []byte
	QoS     QoS
	Retain  bool
}

// InboundMessage is received from the broker
type InboundMessage struct {
	ClientID string
	Topic    string
	Payload  []byte
	QoS      QoS
	Retain   bool
}

// FormatAddress renders a device address as uppercase hex
func FormatAddress(address []byte) string {
	return strings.ToUpper(hex.EncodeToString(address))
}
