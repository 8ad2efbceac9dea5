// Copyright © 2017 The Things Network
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

package dummy

import (
	"sync"
	"time"

	"github.com/TheThingsNetwork/lora-field-gateway/types"
	"github.com/apex/log"
)

// Radio is a dummy radio backend that keeps everything in memory
type Radio struct {
	mu       sync.Mutex
	ctx      log.Interface
	receive  chan *types.RadioPacket
	complete chan *types.TransmitComplete
	sent     []*types.TransmitRequest
	sendErr  error
}

// NewRadio returns a new dummy Radio
func NewRadio(ctx log.Interface) *Radio {
	return &Radio{
		ctx:      ctx.WithField("Connector", "DummyRadio"),
		receive:  make(chan *types.RadioPacket, BufferSize),
		complete: make(chan *types.TransmitComplete, BufferSize),
	}
}

// Connect implements backend.Radio
func (d *Radio) Connect() error {
	d.ctx.Debug("Connected")
	return nil
}

// Disconnect implements backend.Radio
func (d *Radio) Disconnect() error {
	d.ctx.Debug("Disconnected")
	return nil
}

// SubscribeReceive implements backend.Radio
func (d *Radio) SubscribeReceive() (<-chan *types.RadioPacket, error) {
	return d.receive, nil
}

// SubscribeTransmitComplete implements backend.Radio
func (d *Radio) SubscribeTransmitComplete() (<-chan *types.TransmitComplete, error) {
	return d.complete, nil
}

// Receive a packet, as if it was sent by a device
func (d *Radio) Receive(packet *types.RadioPacket) {
	if packet.ReceivedAt.IsZero() {
		packet.ReceivedAt = time.Now()
	}
	select {
	case d.receive <- packet:
		d.ctx.WithField("DeviceAddress", packet.AddressHex()).Debug("Received packet")
	default:
		d.ctx.WithField("DeviceAddress", packet.AddressHex()).Debug("Did not receive packet [buffer full]")
	}
}

// SetSendError makes subsequent calls to Send fail with err (or succeed if err is nil)
func (d *Radio) SetSendError(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sendErr = err
}

// Send implements backend.Radio
func (d *Radio) Send(address []byte, payload []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.sendErr != nil {
		return d.sendErr
	}
	d.sent = append(d.sent, &types.TransmitRequest{Address: address, Payload: payload})
	select {
	case d.complete <- &types.TransmitComplete{Address: address, Length: len(payload), SentAt: time.Now()}:
	default:
		d.ctx.Debug("Did not publish transmit complete [buffer full]")
	}
	d.ctx.WithField("DeviceAddress", types.FormatAddress(address)).Debug("Sent packet")
	return nil
}

// Sent returns all sent transmit requests
func (d *Radio) Sent() []*types.TransmitRequest {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*types.TransmitRequest(nil), d.sent...)
}
