// Copyright © 2017 The Things Network
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

package translator

import (
	"encoding/hex"
	"errors"
	"strings"
)

// ErrInvalidAddress is returned when a device address in a command can not be parsed
var ErrInvalidAddress = errors.New("translator: invalid device address")

var addressReplacer = strings.NewReplacer(":", "", "-", "", " ", "")

// ParseAddress parses a hex device address such as "A102", "0xA102" or "a1:02"
func ParseAddress(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(s), "0x"), "0X")
	s = addressReplacer.Replace(s)
	if s == "" {
		return nil, ErrInvalidAddress
	}
	address, err := hex.DecodeString(s)
	if err != nil {
		return nil, ErrInvalidAddress
	}
	return address, nil
}
