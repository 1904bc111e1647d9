// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package example

import (
	"context"
	"flag"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/spmd"
	"github.com/grailbio/spmd/kernel"
)

// TimingMax measures a deliberately imbalanced workload: rank r spins
// for (r+1)*iterations iterations. Every rank returns its local
// elapsed time in seconds; the coordinator also returns the maximum
// across ranks, the effective latency of the phase.
//
//	timing [-iterations n]
var TimingMax = spmd.Register("timing", timingMax)

func timingMax(ctx context.Context, comm *spmd.Comm, args []string) ([]float64, error) {
	fs := flag.NewFlagSet("timing", flag.ContinueOnError)
	iterations := fs.Int64("iterations", 10000000, "per-rank iteration unit of the workload")
	if err := parseFlags(fs, args, 0); err != nil {
		return nil, err
	}
	if *iterations < 0 {
		return nil, errors.E(errors.Invalid, "timing: -iterations must not be negative")
	}
	timer, err := spmd.StartTimer(ctx, comm)
	if err != nil {
		return nil, err
	}
	sink := kernel.Spin(int64(comm.Rank()+1) * *iterations)
	local, err := timer.Stop()
	if err != nil {
		return nil, err
	}
	// Per-rank output is unordered across ranks.
	log.Printf("%s: local elapsed time = %s (%g)", comm.Proc(), local, sink)
	slowest, err := timer.Report(ctx, Coordinator)
	if err != nil {
		return nil, err
	}
	if !comm.Proc().IsRoot(Coordinator) {
		return []float64{local.Seconds()}, nil
	}
	log.Printf("elapsed time (max across ranks): %s", slowest)
	return []float64{local.Seconds(), slowest.Seconds()}, nil
}
