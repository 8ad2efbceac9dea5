// Copyright © 2016 The Things Network
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

package auth

import "errors"

// Provider returns the credentials that are used to connect to the broker.
// Credentials are requested before every connection attempt, so providers can
// return short-lived tokens.
type Provider interface {
	Credentials(clientID string) (username string, password string, err error)
}

// ErrNoKey is returned when a provider needs a key that was not configured
var ErrNoKey = errors.New("auth: no key configured")

// Static returns the same username and password for every connection
type Static struct {
	Username string
	Password string
}

// NewStatic returns a new static credentials provider
func NewStatic(username, password string) *Static {
	return &Static{Username: username, Password: password}
}

// Credentials implements the Provider interface
func (s *Static) Credentials(_ string) (string, string, error) {
	return s.Username, s.Password, nil
}
