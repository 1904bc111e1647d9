// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package trace represents collective spans in the Chrome tracing
// format. Each rank is rendered as a Chrome "process"; spans are
// complete ("X") events.
package trace

import (
	"encoding/json"
	"io"
	"sort"
	"time"
)

// T is a trace file.
type T struct {
	Events []Event `json:"traceEvents"`
}

// Event is an event in the Chrome tracing format. The fields are
// mirrored exactly. For more details, see:
//	https://docs.google.com/document/d/1CvAClvFfyA5R-PhYUmn5OOQtYMH4h6I0nSsKchNAySU/preview
type Event struct {
	Pid  int                    `json:"pid"`
	Tid  int                    `json:"tid"`
	Ts   int64                  `json:"ts"`
	Ph   string                 `json:"ph"`
	Dur  int64                  `json:"dur,omitempty"`
	Name string                 `json:"name"`
	Cat  string                 `json:"cat,omitempty"`
	Args map[string]interface{} `json:"args"`
}

// Span returns a complete event for rank covering [start, end).
// Timestamps are wall-clock microseconds; they are comparable across
// ranks only as far as the ranks' clocks agree.
func Span(rank int, cat, name string, start, end time.Time, args map[string]interface{}) Event {
	return Event{
		Pid:  rank,
		Ts:   start.UnixNano() / 1e3,
		Ph:   "X",
		Dur:  int64(end.Sub(start) / time.Microsecond),
		Name: name,
		Cat:  cat,
		Args: args,
	}
}

// Add appends events to the trace.
func (t *T) Add(events ...Event) {
	t.Events = append(t.Events, events...)
}

// Sort orders events by rank and then by start time.
func (t *T) Sort() {
	sort.SliceStable(t.Events, func(i, j int) bool {
		if t.Events[i].Pid != t.Events[j].Pid {
			return t.Events[i].Pid < t.Events[j].Pid
		}
		return t.Events[i].Ts < t.Events[j].Ts
	})
}

func (t *T) Encode(w io.Writer) error {
	enc := json.NewEncoder(w)
	return enc.Encode(t)
}

func (t *T) Decode(r io.Reader) error {
	dec := json.NewDecoder(r)
	return dec.Decode(t)
}
