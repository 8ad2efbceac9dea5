// Copyright © 2017 The Things Network
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

// Package statusserver serves the status of the gateway over HTTP. /status returns
// a JSON document with traffic rates, session state and heard devices; /metrics
// exposes the Prometheus metrics.
package statusserver

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/TheThingsNetwork/lora-field-gateway/devices"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rcrowley/go-metrics"
)

var global = newStatusServer()

func newStatusServer() *statusServer {
	return &statusServer{
		startedAt:       time.Now(),
		uplink:          metrics.NewMeter(),
		downlink:        metrics.NewMeter(),
		published:       metrics.NewMeter(),
		publishFailures: metrics.NewCounter(),
	}
}

type statusServer struct {
	mu         sync.RWMutex
	accessKeys []string
	handler    string
	session    func() string
	devices    func() []devices.Device

	startedAt       time.Time
	uplink          metrics.Meter
	downlink        metrics.Meter
	published       metrics.Meter
	publishFailures metrics.Counter
}

// Rates per second, averaged over 1, 5 and 15 minutes
type Rates struct {
	Rate1  float64 `json:"rate1"`
	Rate5  float64 `json:"rate5"`
	Rate15 float64 `json:"rate15"`
	Count  int64   `json:"count"`
}

func rates(meter metrics.Meter) Rates {
	snapshot := meter.Snapshot()
	return Rates{
		Rate1:  snapshot.Rate1(),
		Rate5:  snapshot.Rate5(),
		Rate15: snapshot.Rate15(),
		Count:  snapshot.Count(),
	}
}

// Response of the status endpoint
type Response struct {
	StartedAt       time.Time        `json:"started_at"`
	Uptime          string           `json:"uptime"`
	Handler         string           `json:"handler,omitempty"`
	Session         string           `json:"session,omitempty"`
	Uplink          Rates            `json:"uplink"`
	Downlink        Rates            `json:"downlink"`
	Published       Rates            `json:"published"`
	PublishFailures int64            `json:"publish_failures"`
	Devices         []devices.Device `json:"devices,omitempty"`
}

func (s *statusServer) AddAccessKey(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accessKeys = append(s.accessKeys, key)
}

// AddAccessKey adds an access key for a client. Once a key is added, requests
// need an "Authorization: Key <key>" header.
func AddAccessKey(key string) {
	global.AddAccessKey(key)
}

func (s *statusServer) SetHandler(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = name
}

// SetHandler sets the name of the handler in the default status server
func SetHandler(name string) {
	global.SetHandler(name)
}

func (s *statusServer) SetSession(session func() string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session = session
}

// SetSession sets the function that returns the broker session state in the default status server
func SetSession(session func() string) {
	global.SetSession(session)
}

func (s *statusServer) SetDevices(list func() []devices.Device) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.devices = list
}

// SetDevices sets the function that lists heard devices in the default status server
func SetDevices(list func() []devices.Device) {
	global.SetDevices(list)
}

func (s *statusServer) Uplink() {
	s.uplink.Mark(1)
}

// Uplink registers a received packet in the default status server
func Uplink() {
	global.Uplink()
}

func (s *statusServer) Downlink() {
	s.downlink.Mark(1)
}

// Downlink registers a transmission in the default status server
func Downlink() {
	global.Downlink()
}

func (s *statusServer) Published() {
	s.published.Mark(1)
}

// Published registers a published message in the default status server
func Published() {
	global.Published()
}

func (s *statusServer) PublishFailure() {
	s.publishFailures.Inc(1)
}

// PublishFailure registers a message that could not be published in the default status server
func PublishFailure() {
	global.PublishFailure()
}

func (s *statusServer) getStatus() *Response {
	s.mu.RLock()
	defer s.mu.RUnlock()
	status := &Response{
		StartedAt:       s.startedAt,
		Uptime:          time.Since(s.startedAt).Round(time.Second).String(),
		Handler:         s.handler,
		Uplink:          rates(s.uplink),
		Downlink:        rates(s.downlink),
		Published:       rates(s.published),
		PublishFailures: s.publishFailures.Snapshot().Count(),
	}
	if s.session != nil {
		status.Session = s.session()
	}
	if s.devices != nil {
		status.Devices = s.devices()
	}
	return status
}

func (s *statusServer) authorized(r *http.Request) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.accessKeys) == 0 {
		return true
	}
	key := strings.TrimPrefix(r.Header.Get("Authorization"), "Key ")
	for _, allowed := range s.accessKeys {
		if key == allowed {
			return true
		}
	}
	return false
}

func (s *statusServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		http.Error(w, "Not authenticated", http.StatusUnauthorized)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.getStatus())
}

func (s *statusServer) Register(mux *http.ServeMux) {
	mux.Handle("/status", s)
	mux.Handle("/metrics", promhttp.Handler())
}

// Register the default status server
func Register(mux *http.ServeMux) {
	global.Register(mux)
}
