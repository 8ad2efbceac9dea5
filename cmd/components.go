// Copyright © 2017 The Things Network
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

package cmd

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/TheThingsNetwork/lora-field-gateway/auth"
	"github.com/TheThingsNetwork/lora-field-gateway/backend"
	"github.com/TheThingsNetwork/lora-field-gateway/backend/amqp"
	"github.com/TheThingsNetwork/lora-field-gateway/backend/dummy"
	"github.com/TheThingsNetwork/lora-field-gateway/backend/mqtt"
	"github.com/TheThingsNetwork/lora-field-gateway/backend/rylr896"
	"github.com/TheThingsNetwork/lora-field-gateway/devices"
	"github.com/TheThingsNetwork/lora-field-gateway/middleware"
	"github.com/TheThingsNetwork/lora-field-gateway/middleware/blacklist"
	"github.com/TheThingsNetwork/lora-field-gateway/middleware/deduplicate"
	"github.com/TheThingsNetwork/lora-field-gateway/middleware/lorafilter"
	"github.com/TheThingsNetwork/lora-field-gateway/middleware/ratelimit"
	"github.com/TheThingsNetwork/lora-field-gateway/middleware/telemetry"
	"github.com/TheThingsNetwork/lora-field-gateway/radio"
	redis "gopkg.in/redis.v5"
)

// ErrNoDriver is returned for radio profiles that have no driver
var ErrNoDriver = errors.New("no driver for radio bus")

func newBroker() (backend.Broker, error) {
	switch brokerType := config.GetString("broker-type"); brokerType {
	case "mqtt":
		return mqtt.New(ctx), nil
	case "amqp":
		return amqp.New(amqp.Config{
			VHost:        config.GetString("amqp-vhost"),
			ExchangeName: config.GetString("amqp-exchange"),
		}, ctx), nil
	case "dummy":
		return dummy.NewBroker(ctx), nil
	default:
		return nil, fmt.Errorf("unknown broker type %q", brokerType)
	}
}

func newCredentials() (auth.Provider, error) {
	switch method := config.GetString("auth"); method {
	case "static":
		return auth.NewStatic(config.GetString("username"), config.GetString("password")), nil
	case "azure-sas":
		hub := config.GetString("azure-hub")
		if hub == "" {
			hub = config.GetString("broker-server")
			if host, _, err := net.SplitHostPort(hub); err == nil {
				hub = host
			}
		}
		sas := auth.NewAzureSAS(hub, config.GetString("azure-key"))
		if ttl := config.GetDuration("azure-sas-ttl"); ttl > 0 {
			sas.TTL = ttl
		}
		return sas, nil
	default:
		return nil, fmt.Errorf("unknown auth method %q", method)
	}
}

func radioConfig() radio.Config {
	c := radio.DefaultConfig()
	c.Address = config.GetString("radio-address")
	if frequency := config.GetInt("frequency"); frequency > 0 {
		c.Frequency = uint32(frequency)
	}
	if sf := config.GetInt("sf"); sf > 0 {
		c.SpreadingFactor = sf
	}
	if bw := config.GetInt("bw"); bw > 0 {
		c.Bandwidth = bw
	}
	if cr := config.GetInt("cr"); cr > 0 {
		c.CodingRate = cr
	}
	if config.IsSet("power") {
		c.Power = config.GetInt("power")
	}
	if syncWord := config.GetInt("sync-word"); syncWord > 0 {
		c.SyncWord = byte(syncWord)
	}
	if preamble := config.GetInt("preamble"); preamble > 0 {
		c.PreambleLength = preamble
	}
	return c
}

func newRadio() (backend.Radio, error) {
	name := config.GetString("radio-profile")
	if name == "dummy" {
		return dummy.NewRadio(ctx), nil
	}
	profile, err := radio.LookupProfile(name)
	if err != nil {
		return nil, err
	}
	settings := radioConfig()
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	ctx.WithFields(settings.Fields()).WithField("Profile", profile.Name).Info("Radio settings")
	switch profile.Bus {
	case radio.UART:
		port := config.GetString("radio-port")
		if port == "" {
			port = profile.Port
		}
		baudRate := config.GetInt("radio-baud")
		if baudRate == 0 {
			baudRate = profile.BaudRate
		}
		return rylr896.New(rylr896.Config{
			Port:      port,
			BaudRate:  baudRate,
			NetworkID: config.GetInt("network-id"),
			Radio:     settings,
		}, ctx), nil
	default:
		return nil, fmt.Errorf("%w: %s (profile %s)", ErrNoDriver, profile.Bus, profile.Name)
	}
}

func newRedis() *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     config.GetString("redis-address"),
		Password: config.GetString("redis-password"),
		DB:       config.GetInt("redis-db"),
	})
}

// components that need to be closed on shutdown
type closers []func()

func (c closers) Close() {
	for i := len(c) - 1; i >= 0; i-- {
		c[i]()
	}
}

func newMiddleware(redisClient *redis.Client, done <-chan struct{}) (middleware.Chain, devices.Registry, closers) {
	var chain middleware.Chain
	var toClose closers

	if lists := config.GetStringSlice("blacklist"); len(lists) > 0 {
		ctx.WithField("Lists", lists).Info("Initializing blacklist")
		b, err := blacklist.NewBlacklist(lists...)
		if err != nil {
			ctx.WithError(err).Fatal("Could not initialize blacklist")
		}
		toClose = append(toClose, b.Close)
		if refresh := config.GetDuration("blacklist-refresh"); refresh > 0 {
			go every(refresh, done, func() { b.FetchRemotes() })
		}
		chain = append(chain, b)
	}

	minRSSI, minSNR := config.GetInt("min-rssi"), config.GetFloat64("min-snr")
	if minRSSI > lorafilter.DefaultMinRSSI || minSNR > lorafilter.DefaultMinSNR {
		ctx.WithField("MinRSSI", minRSSI).WithField("MinSNR", minSNR).Info("Initializing signal filter")
		chain = append(chain, lorafilter.NewFilter(minRSSI, minSNR))
	}

	if window := config.GetDuration("dedup-window"); window > 0 {
		ctx.WithField("Window", window).Info("Initializing deduplication")
		d := deduplicate.NewDeduplicate(window)
		go every(time.Minute, done, func() { d.Cleanup(time.Now()) })
		chain = append(chain, d)
	}

	limits := ratelimit.Limits{
		Uplink:   config.GetInt("ratelimit-uplink"),
		Downlink: config.GetInt("ratelimit-downlink"),
	}
	if limits.Uplink > 0 || limits.Downlink > 0 {
		ctx.WithField("Uplink", limits.Uplink).WithField("Downlink", limits.Downlink).Info("Initializing rate limits")
		if redisClient != nil {
			chain = append(chain, ratelimit.NewRedisRateLimit(redisClient, limits))
		} else {
			chain = append(chain, ratelimit.NewRateLimit(limits))
		}
	}

	var registry devices.Registry
	if redisClient != nil {
		ctx.Info("Initializing Redis device registry")
		r, err := devices.NewRedis(ctx, redisClient, config.GetString("redis-devices-key"))
		if err != nil {
			ctx.WithError(err).Fatal("Could not load devices from Redis")
		}
		registry = r
	} else {
		ctx.Info("Initializing Memory device registry")
		registry = devices.NewMemory(ctx)
	}
	chain = append(chain, registry)

	if url := config.GetString("influx-url"); url != "" {
		ctx.WithField("URL", url).Info("Initializing InfluxDB telemetry")
		t, err := telemetry.Connect(telemetry.Config{
			URL:    url,
			Token:  config.GetString("influx-token"),
			Org:    config.GetString("influx-org"),
			Bucket: config.GetString("influx-bucket"),
		})
		if err != nil {
			ctx.WithError(err).Warn("Could not connect to InfluxDB, continuing without telemetry")
		} else {
			toClose = append(toClose, t.Close)
			chain = append(chain, t)
		}
	}

	return chain, registry, toClose
}

func every(interval time.Duration, done <-chan struct{}, fn func()) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			fn()
		}
	}
}
