// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package spmd

import (
	"context"
	"fmt"
	"time"

	"github.com/grailbio/base/errors"
)

type timerState int

const (
	timerIdle timerState = iota
	timerRunning
	timerStopped
	timerReported
)

var timerStates = [...]string{"idle", "running", "stopped", "reported"}

func (s timerState) String() string { return timerStates[s] }

// A Timer measures the latency of an SPMD phase. All ranks start
// their timers after a common barrier, measure their local elapsed
// time, and the slowest rank's time is reported at the coordinator.
//
// Clocks are per process; only local differences are measured. The
// barrier aligns ranks at the same logical point, not the same
// instant.
type Timer struct {
	comm    *Comm
	state   timerState
	start   time.Time
	elapsed time.Duration
	now     func() time.Time
}

// NewTimer returns an idle timer for comm's rank.
func NewTimer(comm *Comm) *Timer {
	return &Timer{comm: comm, now: time.Now}
}

// StartTimer returns a running timer: the group has passed a barrier
// and the local clock has been sampled.
func StartTimer(ctx context.Context, comm *Comm) (*Timer, error) {
	t := NewTimer(comm)
	if err := t.Start(ctx); err != nil {
		return nil, err
	}
	return t, nil
}

// Start waits for every rank at a barrier and then samples the local
// clock.
func (t *Timer) Start(ctx context.Context) error {
	if err := t.transition("Start", timerIdle); err != nil {
		return err
	}
	if err := t.comm.Barrier(ctx); err != nil {
		return err
	}
	t.start = t.now()
	t.state = timerRunning
	return nil
}

// Stop samples the local clock and returns the local elapsed time.
func (t *Timer) Stop() (time.Duration, error) {
	if err := t.transition("Stop", timerRunning); err != nil {
		return 0, err
	}
	end := t.now()
	t.elapsed = end.Sub(t.start)
	t.state = timerStopped
	t.comm.Trace("timed", t.start, end)
	return t.elapsed, nil
}

// Elapsed returns the local elapsed time of a stopped timer.
func (t *Timer) Elapsed() time.Duration {
	return t.elapsed
}

// Report reduces the local elapsed times of all ranks with Max and
// returns the result at root: the effective latency of the phase,
// bounded by the slowest rank. Other ranks receive 0.
func (t *Timer) Report(ctx context.Context, root int) (time.Duration, error) {
	if err := t.transition("Report", timerStopped); err != nil {
		return 0, err
	}
	// Nanosecond counts are exact in a float64 up to 2^53ns (~104 days).
	max, err := t.comm.Reduce(ctx, float64(t.elapsed), Max, root)
	if err != nil {
		return 0, err
	}
	t.state = timerReported
	return time.Duration(max), nil
}

func (t *Timer) transition(op string, want timerState) error {
	if t.state != want {
		return errors.E(errors.Invalid, fmt.Sprintf("spmd.Timer.%s: timer is %s, want %s", op, t.state, want))
	}
	return nil
}
