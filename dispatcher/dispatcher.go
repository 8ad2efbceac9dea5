// Copyright © 2016 The Things Network
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

package dispatcher

import (
	"encoding/hex"
	"errors"
	"sync"

	"github.com/TheThingsNetwork/lora-field-gateway/backend"
	"github.com/TheThingsNetwork/lora-field-gateway/handler"
	"github.com/TheThingsNetwork/lora-field-gateway/middleware"
	"github.com/TheThingsNetwork/lora-field-gateway/status/statusserver"
	"github.com/TheThingsNetwork/lora-field-gateway/translator"
	"github.com/TheThingsNetwork/lora-field-gateway/types"
	"github.com/apex/log"
)

// Workers is the default number of goroutines that handle the events of each source
var Workers = 4

// Broker is the broker side of the dispatcher
type Broker interface {
	Publish(message *types.OutboundMessage) error
	Messages() <-chan *types.InboundMessage
}

// Dispatcher routes events between the radio, the handler and the broker.
//
// - Packets from the radio go through the uplink middleware to the handler; the
//   resulting messages are published to the broker
// - Messages from the broker go to the handler; the resulting transmit requests go
//   through the downlink middleware to the radio
// - Transmit completions from the radio go to the handler
//
// Publishing and transmitting are best-effort: failures are logged and not retried.
// A panic in the handler is contained to the event that caused it.
type Dispatcher struct {
	ctx     log.Interface
	handler handler.Handler
	broker  Broker
	radio   backend.Radio

	// Workers is the number of goroutines that handle the events of each source
	Workers int

	mu         sync.RWMutex
	middleware middleware.Chain

	done     chan struct{}
	faults   chan error
	wg       sync.WaitGroup
	watchdog *watchdog
}

// New initializes a new Dispatcher
func New(ctx log.Interface, h handler.Handler, broker Broker, radio backend.Radio) *Dispatcher {
	return &Dispatcher{
		ctx:     ctx.WithField("Component", "Dispatcher"),
		handler: h,
		broker:  broker,
		radio:   radio,
		Workers: Workers,
		done:    make(chan struct{}),
		faults:  make(chan error),
	}
}

// SetMiddleware sets the middleware chain that packets and transmit requests go through
func (d *Dispatcher) SetMiddleware(chain middleware.Chain) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.middleware = chain
}

func (d *Dispatcher) chain() middleware.Chain {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.middleware
}

func packetFields(packet *types.RadioPacket) log.Fields {
	return log.Fields{
		"DeviceAddress": packet.AddressHex(),
		"PacketSNR":     packet.SNR,
		"PacketRSSI":    packet.PacketRSSI,
		"RSSI":          packet.RSSI,
		"PayloadLength": len(packet.Payload),
	}
}

func (d *Dispatcher) logFault(err error) {
	if fault, ok := err.(*Fault); ok {
		d.ctx.WithFields(fault.Fields).WithField("event", fault.Event).WithField("panic", fault.Value).WithField("stack", string(fault.Stack)).Error("Handler fault")
		return
	}
	d.ctx.WithError(err).Error("Handler fault")
}

// OnRadioReceive handles a packet from the radio. It always returns normally.
func (d *Dispatcher) OnRadioReceive(packet *types.RadioPacket) {
	if err := d.radioReceive(packet); err != nil {
		d.logFault(err)
	}
}

func (d *Dispatcher) radioReceive(packet *types.RadioPacket) error {
	packetsReceived.Inc()
	statusserver.Uplink()
	fields := packetFields(packet)
	ctx := d.ctx.WithFields(fields)
	if d.watchdog != nil && d.watchdog.Kick() {
		ctx.Info("Radio is receiving again")
	}

	var dropped error
	if fault := isolate("uplink middleware", fields, func() {
		dropped = d.chain().Execute(middleware.NewContext(), packet)
	}); fault != nil {
		return fault
	}
	if dropped != nil {
		ctx.WithError(dropped).Debug("Dropped packet")
		registerHandled(resultFiltered)
		return nil
	}

	var messages []*types.OutboundMessage
	var err error
	if fault := isolate("radio receive", fields, func() {
		messages, err = d.handler.OnRadioReceive(packet)
	}); fault != nil {
		return fault
	}
	if err != nil {
		if errors.Is(err, translator.ErrDecode) {
			ctx = ctx.WithField("Payload", hex.EncodeToString(packet.Payload))
		}
		ctx.WithError(err).Warn("Could not handle packet")
		registerHandled(resultError)
		return nil
	}

	for _, message := range messages {
		msgCtx := ctx.WithField("Topic", message.Topic)
		if err := d.broker.Publish(message); err != nil {
			publishFailures.Inc()
			statusserver.PublishFailure()
			msgCtx.WithError(err).Warn("Could not publish message")
			continue
		}
		statusserver.Published()
		msgCtx.Debug("Published message")
	}
	registerHandled(resultHandled)
	ctx.WithField("Messages", len(messages)).Info("Handled packet")
	return nil
}

// OnRadioTransmitComplete handles the completion of a transmission. It always returns normally.
func (d *Dispatcher) OnRadioTransmitComplete(ack *types.TransmitComplete) {
	if err := d.radioTransmitComplete(ack); err != nil {
		d.logFault(err)
	}
}

func (d *Dispatcher) radioTransmitComplete(ack *types.TransmitComplete) error {
	fields := log.Fields{
		"DeviceAddress": types.FormatAddress(ack.Address),
		"PayloadLength": ack.Length,
	}
	if fault := isolate("transmit complete", fields, func() {
		d.handler.OnRadioTransmitComplete(ack)
	}); fault != nil {
		return fault
	}
	d.ctx.WithFields(fields).Debug("Transmit complete")
	return nil
}

// OnBrokerMessage handles a message from the broker. It always returns normally.
func (d *Dispatcher) OnBrokerMessage(message *types.InboundMessage) {
	if err := d.brokerMessage(message); err != nil {
		d.logFault(err)
	}
}

func (d *Dispatcher) brokerMessage(message *types.InboundMessage) error {
	fields := log.Fields{
		"Topic":         message.Topic,
		"PayloadLength": len(message.Payload),
	}
	ctx := d.ctx.WithFields(fields)

	var requests []*types.TransmitRequest
	var err error
	if fault := isolate("broker message", fields, func() {
		requests, err = d.handler.OnBrokerMessage(message)
	}); fault != nil {
		return fault
	}
	if errors.Is(err, handler.ErrUnhandledTopic) {
		ctx.Debug("Topic not processed")
		registerHandled(resultUnhandled)
		return nil
	}
	if err != nil {
		ctx.WithError(err).Warn("Could not handle message")
		registerHandled(resultError)
		return nil
	}

	for _, req := range requests {
		reqCtx := ctx.WithField("DeviceAddress", req.AddressHex())
		var dropped error
		if fault := isolate("downlink middleware", log.Fields{"Topic": message.Topic, "DeviceAddress": req.AddressHex()}, func() {
			dropped = d.chain().Execute(middleware.NewContext(), req)
		}); fault != nil {
			d.logFault(fault)
			continue
		}
		if dropped != nil {
			reqCtx.WithError(dropped).Debug("Dropped transmit request")
			continue
		}
		if err := d.radio.Send(req.Address, req.Payload); err != nil {
			transmitFailures.Inc()
			reqCtx.WithError(err).Warn("Could not transmit")
			continue
		}
		statusserver.Downlink()
		reqCtx.Debug("Transmitted")
	}
	registerHandled(resultHandled)
	ctx.WithField("Transmissions", len(requests)).Info("Handled message")
	return nil
}

// Start handling the events of the radio and the broker
func (d *Dispatcher) Start() error {
	receive, err := d.radio.SubscribeReceive()
	if err != nil {
		return err
	}
	transmitComplete, err := d.radio.SubscribeTransmitComplete()
	if err != nil {
		return err
	}
	messages := d.broker.Messages()

	if SilenceTimeout > 0 {
		timeout := SilenceTimeout
		d.watchdog = newWatchdog(timeout, func() {
			d.ctx.WithField("Timeout", timeout).Warn("No packets received from radio")
		})
	}

	workers := d.Workers
	if workers < 1 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		d.wg.Add(3)
		go func() {
			defer d.wg.Done()
			for {
				select {
				case <-d.done:
					return
				case packet, ok := <-receive:
					if !ok {
						return
					}
					d.report(d.radioReceive(packet))
				}
			}
		}()
		go func() {
			defer d.wg.Done()
			for {
				select {
				case <-d.done:
					return
				case ack, ok := <-transmitComplete:
					if !ok {
						return
					}
					d.report(d.radioTransmitComplete(ack))
				}
			}
		}()
		go func() {
			defer d.wg.Done()
			for {
				select {
				case <-d.done:
					return
				case message, ok := <-messages:
					if !ok {
						return
					}
					d.report(d.brokerMessage(message))
				}
			}
		}()
	}

	go func() {
		for {
			select {
			case <-d.done:
				return
			case err := <-d.faults:
				d.logFault(err)
			}
		}
	}()

	d.ctx.WithField("Workers", workers).Info("Started")
	return nil
}

func (d *Dispatcher) report(err error) {
	if err == nil {
		return
	}
	select {
	case d.faults <- err:
	case <-d.done:
		d.logFault(err)
	}
}

// Stop handling events and wait for the workers to finish
func (d *Dispatcher) Stop() {
	select {
	case <-d.done:
		return
	default:
		close(d.done)
	}
	d.wg.Wait()
	if d.watchdog != nil {
		d.watchdog.Stop()
	}
	d.ctx.Info("Stopped")
}
