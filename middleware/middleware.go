// Copyright © 2017 The Things Network
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

// Package middleware filters and observes traffic between the radio and the handler.
// A middleware that returns an error from one of its Handle functions drops the packet
// or transmit request.
package middleware

import (
	"github.com/TheThingsNetwork/lora-field-gateway/types"
)

// Context for middleware
type Context interface {
	Set(k, v interface{})
	Get(k interface{}) interface{}
}

// NewContext returns a new middleware context
func NewContext() Context {
	return &context{
		data: make(map[interface{}]interface{}),
	}
}

type context struct {
	data map[interface{}]interface{}
}

func (c *context) Set(k, v interface{}) {
	c.data[k] = v
}

func (c *context) Get(k interface{}) interface{} {
	if v, ok := c.data[k]; ok {
		return v
	}
	return nil
}

// Chain of middleware
type Chain []interface{}

// Execute the chain
func (c Chain) Execute(ctx Context, msg interface{}) error {
	switch msg := msg.(type) {
	case *types.RadioPacket:
		return c.filterUplink().Execute(ctx, msg)
	case *types.TransmitRequest:
		return c.filterDownlink().Execute(ctx, msg)
	}
	return nil
}

// Uplink middleware handles packets received from the radio
type Uplink interface {
	HandleUplink(Context, *types.RadioPacket) error
}

type uplinkChain []Uplink

func (c uplinkChain) Execute(ctx Context, packet *types.RadioPacket) error {
	for _, middleware := range c {
		err := middleware.HandleUplink(ctx, packet)
		if err != nil {
			return err
		}
	}
	return nil
}

func (c Chain) filterUplink() (filtered uplinkChain) {
	for _, middleware := range c {
		if c, ok := middleware.(Uplink); ok {
			filtered = append(filtered, c)
		}
	}
	return
}

// Downlink middleware handles requests to transmit to devices
type Downlink interface {
	HandleDownlink(Context, *types.TransmitRequest) error
}

type downlinkChain []Downlink

func (c downlinkChain) Execute(ctx Context, req *types.TransmitRequest) error {
	for _, middleware := range c {
		err := middleware.HandleDownlink(ctx, req)
		if err != nil {
			return err
		}
	}
	return nil
}

func (c Chain) filterDownlink() (filtered downlinkChain) {
	for _, middleware := range c {
		if c, ok := middleware.(Downlink); ok {
			filtered = append(filtered, c)
		}
	}
	return
}
