// Copyright © 2017 The Things Network
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

package translator

// Reading is a single sensor value qualified with the address of the device that sent it
type Reading struct {
	ID    string
	Value string
}

// Readings is an ordered set of readings with unique IDs.
// Setting an existing ID overwrites the value but keeps the original position.
type Readings struct {
	ids    []string
	values map[string]string
}

// NewReadings returns an empty set of readings
func NewReadings() *Readings {
	return &Readings{values: make(map[string]string)}
}

// Set the value for an ID
func (r *Readings) Set(id, value string) {
	if _, ok := r.values[id]; !ok {
		r.ids = append(r.ids, id)
	}
	r.values[id] = value
}

// Get the value for an ID
func (r *Readings) Get(id string) (value string, ok bool) {
	value, ok = r.values[id]
	return
}

// Len returns the number of unique readings
func (r *Readings) Len() int {
	return len(r.ids)
}

// List returns the readings in insertion order
func (r *Readings) List() []Reading {
	list := make([]Reading, 0, len(r.ids))
	for _, id := range r.ids {
		list = append(list, Reading{ID: id, Value: r.values[id]})
	}
	return list
}
