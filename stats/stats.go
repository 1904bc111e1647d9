// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package stats tallies collective traffic. Each rank keeps its
// counters in a Map; snapshots of different ranks can be merged into
// group-wide totals.
package stats

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
)

// Values is a snapshot of a set of counters.
type Values map[string]int64

// Merge adds the counters in w to v.
func (v Values) Merge(w Values) {
	for k, n := range w {
		v[k] += n
	}
}

// String returns the counters sorted by name, e.g.,
// "broadcast:2 values.sent:16".
func (v Values) String() string {
	keys := make([]string, 0, len(v))
	for key := range v {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for i, key := range keys {
		keys[i] = fmt.Sprintf("%s:%d", key, v[key])
	}
	return strings.Join(keys, " ")
}

// A Map is a set of named counters.
type Map struct {
	mu     sync.Mutex
	values map[string]*Int
}

// NewMap returns an empty Map.
func NewMap() *Map {
	return &Map{values: make(map[string]*Int)}
}

// Int returns the named counter, creating it if needed.
func (m *Map) Int(name string) *Int {
	m.mu.Lock()
	defer m.mu.Unlock()
	v := m.values[name]
	if v == nil {
		v = new(Int)
		m.values[name] = v
	}
	return v
}

// Snapshot returns the current value of every counter in the map.
func (m *Map) Snapshot() Values {
	m.mu.Lock()
	defer m.mu.Unlock()
	vals := make(Values, len(m.values))
	for k, v := range m.values {
		vals[k] = v.Get()
	}
	return vals
}

// An Int is an atomic integer counter. The nil Int discards updates.
type Int struct {
	val int64
}

// Add increments the counter by delta.
func (v *Int) Add(delta int64) {
	if v == nil {
		return
	}
	atomic.AddInt64(&v.val, delta)
}

// Get returns the counter's current value.
func (v *Int) Get() int64 {
	if v == nil {
		return 0
	}
	return atomic.LoadInt64(&v.val)
}
