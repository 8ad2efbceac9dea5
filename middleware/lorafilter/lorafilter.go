// Copyright © 2017 The Things Network
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

package lorafilter

import (
	"errors"
	"fmt"

	"github.com/TheThingsNetwork/lora-field-gateway/middleware"
	"github.com/TheThingsNetwork/lora-field-gateway/types"
)

// Thresholds that disable the filter
const (
	DefaultMinRSSI = -200
	DefaultMinSNR  = -30.0
)

// Filter errors
var (
	ErrWeakSignal = errors.New("lorafilter: signal too weak")
	ErrNoise      = errors.New("lorafilter: signal-to-noise ratio too low")
)

// NewFilter returns a middleware that filters packets that were received with a weak signal.
// These packets are often corrupted on the air.
func NewFilter(minRSSI int, minSNR float64) *Filter {
	return &Filter{minRSSI: minRSSI, minSNR: minSNR}
}

// Filter middleware
type Filter struct {
	minRSSI int
	minSNR  float64
}

// HandleUplink blocks packets below the thresholds
func (f *Filter) HandleUplink(_ middleware.Context, packet *types.RadioPacket) error {
	if packet.PacketRSSI < f.minRSSI {
		return fmt.Errorf("%w: %d dBm is below %d dBm", ErrWeakSignal, packet.PacketRSSI, f.minRSSI)
	}
	if packet.SNR < f.minSNR {
		return fmt.Errorf("%w: %.1f dB is below %.1f dB", ErrNoise, packet.SNR, f.minSNR)
	}
	return nil
}
