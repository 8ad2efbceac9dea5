// Copyright © 2017 The Things Network
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

// Package devices keeps track of the devices that the gateway has heard.
package devices

import (
	"sort"
	"sync"
	"time"

	"github.com/TheThingsNetwork/lora-field-gateway/middleware"
	"github.com/TheThingsNetwork/lora-field-gateway/types"
	"github.com/apex/log"
	"github.com/deckarep/golang-set"
)

// Device that was heard by the gateway
type Device struct {
	Address  string    `json:"address"`
	LastSeen time.Time `json:"last_seen"`
	SNR      float64   `json:"snr"`
	RSSI     int       `json:"rssi"`
	Packets  uint64    `json:"packets"`
}

// Registry of heard devices. It is an uplink middleware that never drops packets.
type Registry interface {
	middleware.Uplink
	List() []Device
}

// NewMemory returns a registry that keeps devices in memory
func NewMemory(ctx log.Interface) *Memory {
	return &Memory{
		ctx:       ctx.WithField("Component", "Devices"),
		addresses: mapset.NewSet(),
		devices:   make(map[string]*Device),
	}
}

// Memory registry. The addresses set decides which devices are known; devices
// only holds their statistics.
type Memory struct {
	ctx       log.Interface
	addresses mapset.Set

	mu      sync.Mutex
	devices map[string]*Device
}

// heard records the packet and returns true if the device was not heard before
func (m *Memory) heard(packet *types.RadioPacket) (Device, bool) {
	address := packet.AddressHex()
	m.mu.Lock()
	defer m.mu.Unlock()
	isNew := m.addresses.Add(address)
	device, ok := m.devices[address]
	if isNew || !ok {
		device = &Device{Address: address}
		m.devices[address] = device
	}
	device.LastSeen = packet.ReceivedAt
	if device.LastSeen.IsZero() {
		device.LastSeen = time.Now()
	}
	device.SNR = packet.SNR
	device.RSSI = packet.RSSI
	device.Packets++
	return *device, isNew
}

// HandleUplink records the device that sent the packet
func (m *Memory) HandleUplink(_ middleware.Context, packet *types.RadioPacket) error {
	if device, isNew := m.heard(packet); isNew {
		m.ctx.WithField("DeviceAddress", device.Address).Info("Heard new device")
	}
	return nil
}

// Contains returns true if the device with the address was heard
func (m *Memory) Contains(address string) bool {
	return m.addresses.Contains(address)
}

// Forget a device. The next packet from it is reported as a new device.
func (m *Memory) Forget(address string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.addresses.Remove(address)
	delete(m.devices, address)
}

// List the heard devices, sorted by address
func (m *Memory) List() []Device {
	m.mu.Lock()
	defer m.mu.Unlock()
	devices := make([]Device, 0, m.addresses.Cardinality())
	for address := range m.addresses.Iter() {
		if device, ok := m.devices[address.(string)]; ok {
			devices = append(devices, *device)
		}
	}
	sort.Slice(devices, func(i, j int) bool { return devices[i].Address < devices[j].Address })
	return devices
}
