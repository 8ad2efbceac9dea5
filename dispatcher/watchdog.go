// Copyright © 2017 The Things Network
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

package dispatcher

import (
	"sync"
	"time"
)

// SilenceTimeout is the time without received packets after which the radio is
// reported as silent. Zero disables the watchdog.
var SilenceTimeout = 15 * time.Minute

type watchdog struct {
	mu      sync.Mutex
	timer   *time.Timer
	expire  time.Duration
	expired bool
	stopped bool
}

func newWatchdog(expire time.Duration, callback func()) *watchdog {
	w := &watchdog{expire: expire}
	w.timer = time.AfterFunc(expire, func() {
		w.mu.Lock()
		w.expired = true
		w.mu.Unlock()
		callback()
	})
	return w
}

// Kick the watchdog. Returns true if it had expired. A stopped watchdog stays stopped.
func (w *watchdog) Kick() (wasExpired bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return false
	}
	w.timer.Stop()
	w.timer.Reset(w.expire)
	wasExpired, w.expired = w.expired, false
	return
}

func (w *watchdog) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stopped = true
	w.timer.Stop()
}
