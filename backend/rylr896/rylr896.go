// Copyright © 2017 The Things Network
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

// Package rylr896 talks to a REYAX RYLR896 LoRa module over a serial port.
//
// The module is configured and driven with AT commands. Every command is
// answered with "+OK" or "+ERR=<code>". Received packets are reported by the
// module as "+RCV=<address>,<length>,<data>,<rssi>,<snr>".
package rylr896

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/TheThingsNetwork/lora-field-gateway/radio"
	"github.com/TheThingsNetwork/lora-field-gateway/types"
	"github.com/apex/log"
	"go.bug.st/serial"
)

// BufferSize indicates the maximum number of radio events that should be buffered
var BufferSize = 10

// CommandTimeout is the maximum time to wait for the module to answer a command
var CommandTimeout = 2 * time.Second

// MaxPayloadSize is the largest payload the module can send
const MaxPayloadSize = 240

// DefaultPreamble is used when the configured preamble length is not supported by the module
const DefaultPreamble = 4

// Open opens the serial port. It can be replaced in tests.
var Open = func(port string, baudRate int) (io.ReadWriteCloser, error) {
	return serial.Open(port, &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
}

// Errors returned by the module driver
var (
	ErrCommand          = errors.New("rylr896: command failed")
	ErrTimeout          = errors.New("rylr896: command timed out")
	ErrClosed           = errors.New("rylr896: port closed")
	ErrInvalidAddress   = errors.New("rylr896: address must be one or two bytes")
	ErrInvalidBandwidth = errors.New("rylr896: unsupported bandwidth")
	ErrPayloadTooLarge  = errors.New("rylr896: payload too large")
)

var bandwidths = map[int]int{
	7800:   0,
	10400:  1,
	15600:  2,
	20800:  3,
	31250:  4,
	41700:  5,
	62500:  6,
	125000: 7,
	250000: 8,
	500000: 9,
}

// Config for the RYLR896
type Config struct {
	Port      string
	BaudRate  int
	NetworkID int
	Radio     radio.Config
}

// Commands returns the AT commands that configure the module
func (c Config) Commands() ([]string, error) {
	address, err := strconv.ParseUint(c.Radio.Address, 10, 16)
	if err != nil {
		return nil, fmt.Errorf("rylr896: invalid address %q: %w", c.Radio.Address, err)
	}
	bw, ok := bandwidths[c.Radio.Bandwidth]
	if !ok {
		return nil, fmt.Errorf("%w: %d Hz", ErrInvalidBandwidth, c.Radio.Bandwidth)
	}
	cr := c.Radio.CodingRate - 4
	if cr < 1 || cr > 4 {
		cr = 1
	}
	pp := c.Radio.PreambleLength
	if pp < 4 || pp > 7 {
		pp = DefaultPreamble
	}
	return []string{
		"AT",
		fmt.Sprintf("AT+ADDRESS=%d", address),
		fmt.Sprintf("AT+NETWORKID=%d", c.NetworkID),
		fmt.Sprintf("AT+BAND=%d", c.Radio.Frequency),
		fmt.Sprintf("AT+PARAMETER=%d,%d,%d,%d", c.Radio.SpreadingFactor, bw, cr, pp),
		fmt.Sprintf("AT+CRFOP=%d", c.Radio.Power),
	}, nil
}

// New returns a new RYLR896 backend
func New(config Config, ctx log.Interface) *RYLR896 {
	return &RYLR896{
		config:    config,
		ctx:       ctx.WithField("Connector", "RYLR896").WithField("Port", config.Port),
		receive:   make(chan *types.RadioPacket, BufferSize),
		complete:  make(chan *types.TransmitComplete, BufferSize),
		responses: make(chan string, 1),
	}
}

// RYLR896 radio backend
type RYLR896 struct {
	config    Config
	ctx       log.Interface
	receive   chan *types.RadioPacket
	complete  chan *types.TransmitComplete
	responses chan string

	mu    sync.Mutex
	port  io.ReadWriteCloser
	done  chan struct{}
	cmdMu sync.Mutex
}

// Connect opens the serial port and configures the module
func (r *RYLR896) Connect() error {
	commands, err := r.config.Commands()
	if err != nil {
		return err
	}
	port, err := Open(r.config.Port, r.config.BaudRate)
	if err != nil {
		return fmt.Errorf("rylr896: could not open %s: %w", r.config.Port, err)
	}
	done := make(chan struct{})
	r.mu.Lock()
	r.port = port
	r.done = done
	r.mu.Unlock()
	go r.read(port, done)

	for _, command := range commands {
		if err := r.command(command); err != nil {
			r.Disconnect()
			return err
		}
	}
	r.ctx.WithFields(r.config.Radio.Fields()).Info("Connected")
	return nil
}

// Disconnect closes the serial port
func (r *RYLR896) Disconnect() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.port == nil {
		return nil
	}
	err := r.port.Close()
	r.port = nil
	return err
}

// SubscribeReceive implements backend.Radio
func (r *RYLR896) SubscribeReceive() (<-chan *types.RadioPacket, error) {
	return r.receive, nil
}

// SubscribeTransmitComplete implements backend.Radio
func (r *RYLR896) SubscribeTransmitComplete() (<-chan *types.TransmitComplete, error) {
	return r.complete, nil
}

// Send a payload to a device
func (r *RYLR896) Send(address []byte, payload []byte) error {
	var to uint16
	switch len(address) {
	case 1:
		to = uint16(address[0])
	case 2:
		to = binary.BigEndian.Uint16(address)
	default:
		return ErrInvalidAddress
	}
	if len(payload) > MaxPayloadSize {
		return ErrPayloadTooLarge
	}
	if err := r.command(fmt.Sprintf("AT+SEND=%d,%d,%s", to, len(payload), payload)); err != nil {
		return err
	}
	ack := &types.TransmitComplete{Address: address, Length: len(payload), SentAt: time.Now()}
	select {
	case r.complete <- ack:
	default:
		r.ctx.Warn("Could not handle transmit complete: buffer full")
	}
	return nil
}

func (r *RYLR896) command(command string) error {
	r.cmdMu.Lock()
	defer r.cmdMu.Unlock()

	r.mu.Lock()
	port, done := r.port, r.done
	r.mu.Unlock()
	if port == nil {
		return ErrClosed
	}

	select {
	case <-r.responses: // discard unsolicited response
	default:
	}
	if _, err := io.WriteString(port, command+"\r\n"); err != nil {
		return err
	}
	select {
	case response := <-r.responses:
		if strings.HasPrefix(response, "+ERR") {
			return fmt.Errorf("%w: %s: %s", ErrCommand, command, response)
		}
		r.ctx.WithField("Command", command).Debug("Command accepted")
		return nil
	case <-done:
		return ErrClosed
	case <-time.After(CommandTimeout):
		return fmt.Errorf("%w: %s", ErrTimeout, command)
	}
}

func (r *RYLR896) read(port io.Reader, done chan struct{}) {
	defer close(done)
	scanner := bufio.NewScanner(port)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
		case strings.HasPrefix(line, "+RCV="):
			packet, err := ParseReceive(line)
			if err != nil {
				r.ctx.WithError(err).WithField("Line", line).Warn("Could not parse received packet")
				continue
			}
			select {
			case r.receive <- packet:
				r.ctx.WithField("DeviceAddress", packet.AddressHex()).Debug("Received packet")
			default:
				r.ctx.Warn("Could not handle received packet: buffer full")
			}
		case line == "+OK" || strings.HasPrefix(line, "+ERR"):
			select {
			case r.responses <- line:
			default:
				r.ctx.WithField("Response", line).Debug("Ignore unexpected response")
			}
		default:
			r.ctx.WithField("Line", line).Debug("Ignore line")
		}
	}
	if err := scanner.Err(); err != nil {
		r.ctx.WithError(err).Warn("Stopped reading")
	}
}

// ParseReceive parses a "+RCV=<address>,<length>,<data>,<rssi>,<snr>" line.
// The data may contain commas, so it is extracted using its length.
func ParseReceive(line string) (*types.RadioPacket, error) {
	fields := strings.SplitN(strings.TrimPrefix(line, "+RCV="), ",", 3)
	if len(fields) != 3 {
		return nil, errors.New("rylr896: missing fields")
	}
	address, err := strconv.ParseUint(fields[0], 10, 16)
	if err != nil {
		return nil, err
	}
	length, err := strconv.Atoi(fields[1])
	if err != nil {
		return nil, err
	}
	rest := fields[2]
	if length < 0 || len(rest) < length+1 || rest[length] != ',' {
		return nil, errors.New("rylr896: invalid data length")
	}
	payload := []byte(rest[:length])
	signal := strings.Split(rest[length+1:], ",")
	if len(signal) != 2 {
		return nil, errors.New("rylr896: missing signal fields")
	}
	rssi, err := strconv.Atoi(signal[0])
	if err != nil {
		return nil, err
	}
	snr, err := strconv.ParseFloat(signal[1], 64)
	if err != nil {
		return nil, err
	}
	addressBytes := make([]byte, 2)
	binary.BigEndian.PutUint16(addressBytes, uint16(address))
	return &types.RadioPacket{
		Address:    addressBytes,
		Payload:    payload,
		SNR:        snr,
		PacketRSSI: rssi,
		RSSI:       rssi,
		ReceivedAt: time.Now(),
	}, nil
}
