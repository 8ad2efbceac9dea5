// Copyright © 2017 The Things Network
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

package devices

import (
	"strconv"
	"time"

	"github.com/TheThingsNetwork/lora-field-gateway/middleware"
	"github.com/TheThingsNetwork/lora-field-gateway/types"
	"github.com/apex/log"
	redis "gopkg.in/redis.v5"
)

// DefaultRedisKey is used as key when no key is given
var DefaultRedisKey = "devices"

// NewRedis returns a registry that persists heard devices in Redis. Devices that
// were stored by a previous run are loaded.
func NewRedis(ctx log.Interface, client *redis.Client, key string) (*Redis, error) {
	if key == "" {
		key = DefaultRedisKey
	}
	r := &Redis{
		Memory: NewMemory(ctx),
		client: client,
		key:    key,
	}
	if err := r.load(); err != nil {
		return nil, err
	}
	return r, nil
}

// Redis registry
type Redis struct {
	*Memory
	client *redis.Client
	key    string
}

func (r *Redis) lastSeenKey() string {
	return r.key + ":last_seen"
}

func (r *Redis) load() error {
	addresses, err := r.client.SMembers(r.key).Result()
	if err != nil {
		return err
	}
	lastSeen, err := r.client.HGetAll(r.lastSeenKey()).Result()
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, address := range addresses {
		r.addresses.Add(address)
		device := &Device{Address: address}
		if seen, err := strconv.ParseInt(lastSeen[address], 10, 64); err == nil {
			device.LastSeen = time.Unix(seen, 0)
		}
		r.devices[address] = device
	}
	r.ctx.WithField("Devices", len(addresses)).Debug("Loaded devices from Redis")
	return nil
}

// HandleUplink records the device that sent the packet
func (r *Redis) HandleUplink(_ middleware.Context, packet *types.RadioPacket) error {
	device, isNew := r.heard(packet)
	ctx := r.ctx.WithField("DeviceAddress", device.Address)
	if isNew {
		ctx.Info("Heard new device")
		if err := r.client.SAdd(r.key, device.Address).Err(); err != nil {
			ctx.WithError(err).Warn("Could not store device in Redis")
		}
	}
	if err := r.client.HSet(r.lastSeenKey(), device.Address, device.LastSeen.Unix()).Err(); err != nil {
		ctx.WithError(err).Warn("Could not store last seen time in Redis")
	}
	return nil
}

// Forget a device
func (r *Redis) Forget(address string) error {
	r.Memory.Forget(address)
	if err := r.client.SRem(r.key, address).Err(); err != nil {
		return err
	}
	return r.client.HDel(r.lastSeenKey(), address).Err()
}
