// Copyright © 2017 The Things Network
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

package radio

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Bus that connects the radio to the host
type Bus string

// Supported buses
const (
	SPI  Bus = "spi"
	UART Bus = "uart"
)

// NotConnected is used for lines that are not wired on a board
const NotConnected = -1

// Profile describes how a radio board is wired to the host
type Profile struct {
	Name string
	Bus  Bus

	// SPI
	ChipSelect     int // hardware chip select (CE0 or CE1)
	ChipSelectLine int // GPIO used as chip select instead of the hardware line
	ResetLine      int
	InterruptLine  int

	// UART
	Port     string
	BaudRate int
}

// Profile errors
var (
	ErrUnknownProfile = errors.New("radio: unknown profile")
	ErrInvalidProfile = errors.New("radio: invalid profile")
)

func gpio(line int) bool {
	return line == NotConnected || (line >= 0 && line <= 27)
}

// Validate the wiring of the profile
func (p Profile) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("%w: no name", ErrInvalidProfile)
	}
	switch p.Bus {
	case SPI:
		if p.ChipSelect != 0 && p.ChipSelect != 1 {
			return fmt.Errorf("%w: %s: chip select must be 0 or 1", ErrInvalidProfile, p.Name)
		}
		if !gpio(p.ChipSelectLine) || !gpio(p.ResetLine) {
			return fmt.Errorf("%w: %s: invalid GPIO line", ErrInvalidProfile, p.Name)
		}
		if p.InterruptLine == NotConnected || !gpio(p.InterruptLine) {
			return fmt.Errorf("%w: %s: interrupt line is required", ErrInvalidProfile, p.Name)
		}
	case UART:
		if p.Port == "" || p.BaudRate <= 0 {
			return fmt.Errorf("%w: %s: port and baud rate are required", ErrInvalidProfile, p.Name)
		}
	default:
		return fmt.Errorf("%w: %s: unknown bus %q", ErrInvalidProfile, p.Name, p.Bus)
	}
	return nil
}

var (
	profilesMu sync.RWMutex
	profiles   = make(map[string]Profile)
)

// RegisterProfile adds a profile to the list of known profiles
func RegisterProfile(p Profile) error {
	if err := p.Validate(); err != nil {
		return err
	}
	profilesMu.Lock()
	defer profilesMu.Unlock()
	profiles[p.Name] = p
	return nil
}

// LookupProfile returns the profile with the given name
func LookupProfile(name string) (Profile, error) {
	profilesMu.RLock()
	defer profilesMu.RUnlock()
	p, ok := profiles[name]
	if !ok {
		return Profile{}, fmt.Errorf("%w: %q", ErrUnknownProfile, name)
	}
	return p, nil
}

// Profiles returns the names of the known profiles
func Profiles() []string {
	profilesMu.RLock()
	defer profilesMu.RUnlock()
	names := make([]string, 0, len(profiles))
	for name := range profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func init() {
	for _, p := range []Profile{
		{Name: "dragino", Bus: SPI, ChipSelect: 0, ChipSelectLine: 25, ResetLine: 17, InterruptLine: 4},
		{Name: "m2m", Bus: SPI, ChipSelect: 0, ChipSelectLine: 25, ResetLine: 17, InterruptLine: 4},
		{Name: "elecrow", Bus: SPI, ChipSelect: 1, ChipSelectLine: NotConnected, ResetLine: 22, InterruptLine: 25},
		{Name: "electronictricks", Bus: SPI, ChipSelect: 0, ChipSelectLine: NotConnected, ResetLine: 22, InterruptLine: 25},
		{Name: "uputronics-rpizero-cs0", Bus: SPI, ChipSelect: 0, ChipSelectLine: NotConnected, ResetLine: NotConnected, InterruptLine: 25},
		{Name: "uputronics-rpizero-cs1", Bus: SPI, ChipSelect: 1, ChipSelectLine: NotConnected, ResetLine: NotConnected, InterruptLine: 16},
		{Name: "uputronics-rpiplus-cs0", Bus: SPI, ChipSelect: 0, ChipSelectLine: NotConnected, ResetLine: NotConnected, InterruptLine: 25},
		{Name: "uputronics-rpiplus-cs1", Bus: SPI, ChipSelect: 1, ChipSelectLine: NotConnected, ResetLine: NotConnected, InterruptLine: 16},
		{Name: "adafruit-radio-bonnet", Bus: SPI, ChipSelect: 1, ChipSelectLine: NotConnected, ResetLine: 25, InterruptLine: 22},
		{Name: "rylr896", Bus: UART, Port: "/dev/serial0", BaudRate: 115200},
	} {
		if err := RegisterProfile(p); err != nil {
			panic(err)
		}
	}
}
