// Copyright © 2017 The Things Network
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

package ratelimit

import (
	"errors"
	"fmt"
	"sync"
	"time"

	redis "gopkg.in/redis.v5"

	"github.com/TheThingsNetwork/lora-field-gateway/middleware"
	"github.com/TheThingsNetwork/lora-field-gateway/types"
	"github.com/TheThingsNetwork/go-utils/log"
	"github.com/TheThingsNetwork/go-utils/rate"
)

// Limits per minute
type Limits struct {
	Uplink   int
	Downlink int
}

// NewRateLimit returns a middleware that rate-limits packets and transmissions per device
func NewRateLimit(conf Limits) *RateLimit {
	return &RateLimit{
		log:     log.Get(),
		limits:  conf,
		devices: make(map[string]*limits),
	}
}

// NewRedisRateLimit returns a middleware that rate-limits packets and transmissions per device,
// sharing the counters in Redis.
func NewRedisRateLimit(client *redis.Client, conf Limits) *RateLimit {
	l := NewRateLimit(conf)
	l.client = client
	return l
}

// RateLimit packets and transmissions per device
type RateLimit struct {
	log    log.Interface
	limits Limits
	client *redis.Client

	mu      sync.Mutex
	devices map[string]*limits
}

func (l *RateLimit) newCounter(address, direction string) rate.Counter {
	if l.client != nil {
		return rate.NewRedisCounter(l.client, fmt.Sprintf("ratelimit:%s:%s", address, direction), time.Second, time.Minute)
	}
	return rate.NewCounter(time.Second, time.Minute)
}

func (l *RateLimit) newLimits(address string) *limits {
	limits := new(limits)
	if l.limits.Uplink != 0 {
		limits.uplink = rate.NewLimiter(l.newCounter(address, "uplink"), time.Minute, uint64(l.limits.Uplink))
	}
	if l.limits.Downlink != 0 {
		limits.downlink = rate.NewLimiter(l.newCounter(address, "downlink"), time.Minute, uint64(l.limits.Downlink))
	}
	return limits
}

type limits struct {
	uplink   rate.Limiter
	downlink rate.Limiter
}

func (l *RateLimit) get(address string) *limits {
	l.mu.Lock()
	defer l.mu.Unlock()
	if limits, ok := l.devices[address]; ok {
		return limits
	}
	limits := l.newLimits(address)
	l.devices[address] = limits
	return limits
}

// ErrRateLimited is returned if the rate limit has been reached
var ErrRateLimited = errors.New("rate limit reached")

func check(limiter rate.Limiter) error {
	if limiter == nil {
		return nil
	}
	limit, err := limiter.Limit()
	if err != nil {
		return err
	}
	if limit {
		return ErrRateLimited
	}
	return nil
}

// HandleUplink rate-limits packets from a device
func (l *RateLimit) HandleUplink(ctx middleware.Context, packet *types.RadioPacket) error {
	address := packet.AddressHex()
	err := check(l.get(address).uplink)
	if err == ErrRateLimited {
		l.log.WithField("DeviceAddress", address).Debug("Uplink rate limited")
	}
	return err
}

// HandleDownlink rate-limits transmissions to a device
func (l *RateLimit) HandleDownlink(ctx middleware.Context, req *types.TransmitRequest) error {
	address := req.AddressHex()
	err := check(l.get(address).downlink)
	if err == ErrRateLimited {
		l.log.WithField("DeviceAddress", address).Debug("Downlink rate limited")
	}
	return err
}
