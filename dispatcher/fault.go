// Copyright © 2017 The Things Network
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

package dispatcher

import (
	"fmt"
	"runtime/debug"

	"github.com/apex/log"
)

// Fault is a panic in the handler or the middleware that was recovered while handling an event
type Fault struct {
	Event  string
	Fields log.Fields
	Value  interface{}
	Stack  []byte
}

func (f *Fault) Error() string {
	return fmt.Sprintf("dispatcher: panic on %s: %v", f.Event, f.Value)
}

// isolate runs fn and returns a Fault if it panics
func isolate(event string, fields log.Fields, fn func()) (err error) {
	defer func() {
		if value := recover(); value != nil {
			handlerFaults.Inc()
			registerHandled(resultFault)
			err = &Fault{Event: event, Fields: fields, Value: value, Stack: debug.Stack()}
		}
	}()
	fn()
	return nil
}
