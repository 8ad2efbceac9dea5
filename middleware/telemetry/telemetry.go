// Copyright © 2017 The Things Network
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

// Package telemetry records radio statistics and numeric readings of every received
// packet in InfluxDB. It never drops packets.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/TheThingsNetwork/lora-field-gateway/middleware"
	"github.com/TheThingsNetwork/lora-field-gateway/translator"
	"github.com/TheThingsNetwork/lora-field-gateway/types"
	"github.com/TheThingsNetwork/go-utils/log"
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurements
var (
	PacketMeasurement  = "radio_packet"
	ReadingMeasurement = "reading"
)

// PingTimeout is the maximum time to wait for InfluxDB at startup
var PingTimeout = 5 * time.Second

// ErrUnhealthy is returned when InfluxDB is not ready to accept writes
var ErrUnhealthy = errors.New("telemetry: influxdb is not healthy")

// Writer writes points. The InfluxDB WriteAPI is a Writer.
type Writer interface {
	WritePoint(point *write.Point)
}

// Config for the InfluxDB connection
type Config struct {
	URL    string
	Token  string
	Org    string
	Bucket string
}

// NewTelemetry returns a middleware that writes points to w
func NewTelemetry(w Writer) *Telemetry {
	return &Telemetry{
		log:    log.Get(),
		writer: w,
	}
}

// Connect to InfluxDB and return a middleware that writes to it. Writes are
// batched; Close flushes them.
func Connect(config Config) (*Telemetry, error) {
	client := influxdb2.NewClientWithOptions(config.URL, config.Token, influxdb2.DefaultOptions())
	ctx, cancel := context.WithTimeout(context.Background(), PingTimeout)
	defer cancel()
	healthy, err := client.Ping(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("telemetry: could not ping influxdb: %w", err)
	}
	if !healthy {
		client.Close()
		return nil, ErrUnhealthy
	}
	writeAPI := client.WriteAPI(config.Org, config.Bucket)
	t := NewTelemetry(writeAPI)
	go func() {
		for err := range writeAPI.Errors() {
			t.log.WithError(err).Warn("Could not write telemetry")
		}
	}()
	t.close = func() {
		writeAPI.Flush()
		client.Close()
	}
	return t, nil
}

// Telemetry middleware
type Telemetry struct {
	log    log.Interface
	writer Writer
	close  func()
}

// Close flushes pending points and closes the connection
func (t *Telemetry) Close() {
	if t.close != nil {
		t.close()
	}
}

// HandleUplink records the packet
func (t *Telemetry) HandleUplink(_ middleware.Context, packet *types.RadioPacket) error {
	address := packet.AddressHex()
	at := packet.ReceivedAt
	if at.IsZero() {
		at = time.Now()
	}
	t.writer.WritePoint(write.NewPoint(
		PacketMeasurement,
		map[string]string{"device": address},
		map[string]interface{}{
			"snr":            packet.SNR,
			"packet_rssi":    packet.PacketRSSI,
			"rssi":           packet.RSSI,
			"payload_length": len(packet.Payload),
		},
		at,
	))
	readings, err := translator.Decode(packet)
	if err != nil {
		return nil
	}
	for _, reading := range readings.List() {
		value, err := strconv.ParseFloat(reading.Value, 64)
		if err != nil {
			continue
		}
		t.writer.WritePoint(write.NewPoint(
			ReadingMeasurement,
			map[string]string{"device": address, "sensor": reading.ID},
			map[string]interface{}{"value": value},
			at,
		))
	}
	return nil
}
