// Copyright © 2017 The Things Network
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

package supervisor

// State of the broker session
type State int

// Session states
const (
	Disconnected State = iota
	Connecting
	Connected
	ReconnectPending
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "Disconnected"
	case Connecting:
		return "Connecting"
	case Connected:
		return "Connected"
	case ReconnectPending:
		return "ReconnectPending"
	}
	return "Unknown"
}
