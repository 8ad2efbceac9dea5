// Copyright © 2017 The Things Network
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

package deduplicate

import (
	"bytes"
	"errors"
	"sync"
	"time"

	"github.com/TheThingsNetwork/lora-field-gateway/middleware"
	"github.com/TheThingsNetwork/lora-field-gateway/types"
	"github.com/TheThingsNetwork/go-utils/log"
)

// DefaultWindow is the default time in which a repeated packet is considered a duplicate
const DefaultWindow = 2 * time.Second

// NewDeduplicate returns a middleware that drops packets that a device sends more than once
// within the window, for example because the radio received a retransmission.
func NewDeduplicate(window time.Duration) *Deduplicate {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Deduplicate{
		log:        log.Get(),
		window:     window,
		lastPacket: make(map[string]*types.RadioPacket),
	}
}

// Deduplicate middleware
type Deduplicate struct {
	log        log.Interface
	window     time.Duration
	mu         sync.Mutex
	lastPacket map[string]*types.RadioPacket
}

// ErrDuplicatePacket is returned when a packet is received multiple times
var ErrDuplicatePacket = errors.New("deduplicate: already handled this packet")

// HandleUplink blocks duplicate packets
func (d *Deduplicate) HandleUplink(_ middleware.Context, packet *types.RadioPacket) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	address := packet.AddressHex()
	if lastPacket, ok := d.lastPacket[address]; ok {
		if bytes.Equal(packet.Payload, lastPacket.Payload) && // length check on slice is fast
			packet.ReceivedAt.Sub(lastPacket.ReceivedAt) < d.window {
			d.log.WithField("DeviceAddress", address).Debug("Dropping duplicate packet")
			return ErrDuplicatePacket
		}
	}
	d.lastPacket[address] = packet
	return nil
}

// Cleanup forgets packets older than the window
func (d *Deduplicate) Cleanup(now time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for address, packet := range d.lastPacket {
		if now.Sub(packet.ReceivedAt) >= d.window {
			delete(d.lastPacket, address)
		}
	}
}
