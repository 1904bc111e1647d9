// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package exec implements the execution of SPMD programs: it launches
// a group of ranks, wires each rank's Comm to a shared collective
// transport, and collects the ranks' outputs.
package exec

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/status"
	"github.com/grailbio/spmd"
	"github.com/grailbio/spmd/internal/trace"
	"github.com/grailbio/spmd/stats"
)

// An executor launches the ranks of program runs.
type executor interface {
	// Name returns a human-friendly name for this executor.
	Name() string

	// Start starts the executor. It is called before any run is
	// submitted. It returns a function that tears down the executor.
	Start(*Session) (shutdown func())

	// Run runs inv on a new group of inv.Procs ranks and returns
	// each rank's result. Run reports per-rank progress to group,
	// which may be nil. If a rank fails, Run cancels the remaining
	// ranks and returns the first error, together with whatever
	// results were collected.
	Run(ctx context.Context, inv invocation, group *status.Group) ([]rankResult, error)

	// HandleDebug adds executor-specific debug handlers to the
	// provided mux.
	HandleDebug(handler *http.ServeMux)
}

// An invocation is a single run of a registered program.
type invocation struct {
	Index   uint64
	Program string
	Args    []string
	Procs   int
	// Timeout bounds the time a rank waits for its peers in a single
	// collective; zero waits indefinitely.
	Timeout time.Duration
}

func (inv invocation) String() string {
	return fmt.Sprintf("%s[%d]", inv.Program, inv.Index)
}

// rankResult is the outcome of a run on a single rank.
type rankResult struct {
	Out    []float64
	Stats  stats.Values
	Events []trace.Event
}

// runRank runs prog on the rank represented by comm, reporting its
// progress to task.
func runRank(ctx context.Context, inv invocation, prog *spmd.Program, comm *spmd.Comm, task *status.Task) (rankResult, error) {
	if task != nil {
		task.Print("running")
	}
	start := time.Now()
	out, err := prog.Run(ctx, comm, inv.Args)
	if task != nil {
		if err != nil {
			task.Printf("error: %v", err)
		} else {
			task.Printf("done in %s: %s", time.Since(start), comm.Stats())
		}
		task.Done()
	}
	res := rankResult{Out: out, Stats: comm.Stats(), Events: comm.Events()}
	if err != nil {
		log.Error.Printf("%s: %s: %v", inv, comm.Proc(), err)
		return res, errors.E(fmt.Sprintf("%s: %s", inv, comm.Proc()), err)
	}
	log.Debug.Printf("%s: %s: done", inv, comm.Proc())
	return res, nil
}

func startTask(group *status.Group, rank int) *status.Task {
	if group == nil {
		return nil
	}
	return group.Start(fmt.Sprintf("rank %d", rank))
}
