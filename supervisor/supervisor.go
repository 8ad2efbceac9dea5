// Copyright © 2017 The Things Network
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

// Package supervisor owns the broker session. It connects once at startup and,
// when the session is lost, keeps trying to reconnect at a fixed interval until
// it succeeds or the supervisor is stopped.
package supervisor

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/TheThingsNetwork/lora-field-gateway/auth"
	"github.com/TheThingsNetwork/lora-field-gateway/backend"
	"github.com/TheThingsNetwork/lora-field-gateway/types"
	"github.com/apex/log"
)

// ReconnectDelay is the time between reconnect attempts
var ReconnectDelay = 5 * time.Second

// Supervisor errors
var (
	ErrConnect      = errors.New("supervisor: could not connect to broker")
	ErrNotConnected = errors.New("supervisor: not connected to broker")
)

var errLostDuringAttempt = errors.New("supervisor: session lost while connecting")

// Supervisor of a broker session
type Supervisor struct {
	ctx    log.Interface
	broker backend.Broker

	// TLS connects to the broker over TLS
	TLS bool

	mu            sync.Mutex
	state         State
	server        string
	clientID      string
	credentials   auth.Provider
	subscriptions map[string]types.QoS

	// set while a reconnect attempt is in flight; a loss reported meanwhile
	// belongs to the new session
	attempting        bool
	lostDuringAttempt bool

	stopOnce sync.Once
	done     chan struct{}
	wg       sync.WaitGroup
}

// New returns a new Supervisor for the broker
func New(ctx log.Interface, broker backend.Broker) *Supervisor {
	s := &Supervisor{
		ctx:           ctx.WithField("Component", "Supervisor"),
		broker:        broker,
		subscriptions: make(map[string]types.QoS),
		done:          make(chan struct{}),
	}
	broker.SetConnectionLostHandler(s.OnSessionLost)
	return s
}

func (s *Supervisor) setState(state State) {
	if s.state != state {
		s.ctx.WithField("From", s.state).WithField("To", state).Debug("Session state changed")
	}
	s.state = state
	sessionState.Set(float64(state))
}

// State returns the current state of the session
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Supervisor) brokerConfig() (backend.BrokerConfig, error) {
	config := backend.BrokerConfig{
		Server:   s.server,
		ClientID: s.clientID,
		TLS:      s.TLS,
	}
	if s.credentials != nil {
		username, password, err := s.credentials.Credentials(s.clientID)
		if err != nil {
			return config, err
		}
		config.Username, config.Password = username, password
	}
	return config, nil
}

// Start connects to the server. A failure to connect is returned as an error
// wrapping ErrConnect and is not retried.
func (s *Supervisor) Start(server string, credentials auth.Provider, clientID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Disconnected {
		return fmt.Errorf("%w: session is %s", ErrConnect, s.state)
	}
	s.server, s.credentials, s.clientID = server, credentials, clientID
	s.setState(Connecting)

	ctx := s.ctx.WithField("Server", server).WithField("ClientID", clientID)
	config, err := s.brokerConfig()
	if err == nil {
		err = s.broker.Connect(config)
	}
	if err != nil {
		s.setState(Disconnected)
		ctx.WithError(err).Error("Could not connect to broker")
		return fmt.Errorf("%w: %v", ErrConnect, err)
	}
	s.setState(Connected)
	ctx.Info("Connected to broker")
	return nil
}

// Publish a message. Messages published while the session is not connected are
// not buffered; ErrNotConnected is returned instead.
func (s *Supervisor) Publish(message *types.OutboundMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Connected {
		return ErrNotConnected
	}
	return s.broker.Publish(message)
}

// Subscribe to a topic filter. The subscription is restored after every reconnect.
func (s *Supervisor) Subscribe(topicFilter string, qos types.QoS) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscriptions[topicFilter] = qos
	if s.state != Connected {
		return nil
	}
	return s.broker.Subscribe(topicFilter, qos)
}

// Messages returns the messages received on subscribed topics
func (s *Supervisor) Messages() <-chan *types.InboundMessage {
	return s.broker.Messages()
}

// OnSessionLost is called by the broker when the session is lost. It starts
// the reconnect loop, unless one is already running.
func (s *Supervisor) OnSessionLost(cause error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == ReconnectPending && s.attempting {
		s.lostDuringAttempt = true
		return
	}
	if s.state != Connected {
		return
	}
	s.ctx.WithError(cause).Warn("Lost connection to broker")
	s.setState(ReconnectPending)
	s.wg.Add(1)
	go s.reconnect()
}

func (s *Supervisor) reconnect() {
	defer s.wg.Done()
	ctx := s.ctx.WithField("Server", s.server)
	for attempt := 1; ; attempt++ {
		select {
		case <-s.done:
			return
		case <-time.After(ReconnectDelay):
		}

		reconnectAttempts.Inc()
		s.mu.Lock()
		s.attempting, s.lostDuringAttempt = true, false
		config, err := s.brokerConfig()
		s.mu.Unlock()
		if err == nil {
			err = s.broker.Connect(config)
		}

		s.mu.Lock()
		s.attempting = false
		if err == nil && s.lostDuringAttempt {
			err = errLostDuringAttempt
		}
		if err != nil {
			s.mu.Unlock()
			ctx.WithError(err).WithField("Attempt", attempt).Warn("Could not reconnect to broker")
			continue
		}
		select {
		case <-s.done:
			s.mu.Unlock()
			s.broker.Disconnect()
			return
		default:
		}
		s.setState(Connected)
		for topicFilter, qos := range s.subscriptions {
			if err := s.broker.Subscribe(topicFilter, qos); err != nil {
				ctx.WithError(err).WithField("Topic", topicFilter).Warn("Could not restore subscription")
			}
		}
		s.mu.Unlock()
		ctx.WithField("Attempt", attempt).Info("Reconnected to broker")
		return
	}
}

// Stop the supervisor and disconnect from the broker
func (s *Supervisor) Stop() {
	s.stopOnce.Do(func() {
		close(s.done)
	})
	s.wg.Wait()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Disconnected {
		return
	}
	s.setState(Disconnected)
	if err := s.broker.Disconnect(); err != nil {
		s.ctx.WithError(err).Warn("Could not disconnect from broker")
	}
}
