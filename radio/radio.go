// Copyright © 2017 The Things Network
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

// Package radio contains the radio settings that are passed to radio backends.
package radio

import (
	"errors"

	"github.com/apex/log"
)

// Config contains the physical layer settings of the radio. The values are passed
// to the radio backend as-is; only the presence of required settings is checked.
type Config struct {
	Address         string
	Frequency       uint32 // Hz
	SpreadingFactor int
	Bandwidth       int // Hz
	CodingRate      int // denominator of 4/x
	Power           int // dBm
	SyncWord        byte
	PreambleLength  int
}

// DefaultConfig returns the settings that are used for options that are not configured
func DefaultConfig() Config {
	return Config{
		Frequency:       915000000,
		SpreadingFactor: 7,
		Bandwidth:       125000,
		CodingRate:      5,
		Power:           14,
		SyncWord:        0x12,
		PreambleLength:  8,
	}
}

// Config errors
var (
	ErrNoAddress   = errors.New("radio: no address configured")
	ErrNoFrequency = errors.New("radio: no frequency configured")
)

// Validate checks that the required settings are present
func (c Config) Validate() error {
	if c.Address == "" {
		return ErrNoAddress
	}
	if c.Frequency == 0 {
		return ErrNoFrequency
	}
	return nil
}

// Fields returns the settings as log fields
func (c Config) Fields() log.Fields {
	return log.Fields{
		"Address":         c.Address,
		"Frequency":       c.Frequency,
		"SpreadingFactor": c.SpreadingFactor,
		"Bandwidth":       c.Bandwidth,
		"CodingRate":      c.CodingRate,
		"Power":           c.Power,
		"SyncWord":        c.SyncWord,
		"PreambleLength":  c.PreambleLength,
	}
}
