// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package example

import (
	"context"
	"flag"
	"fmt"
	"strconv"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/spmd"
	"github.com/grailbio/spmd/kernel"
	"github.com/grailbio/spmd/shard"
)

// RangeSum computes 0 + 1 + ... + upper for its single argument
// upper. The coordinator broadcasts upper; rank r sums r, r+P, r+2P,
// ... up to and including upper; and the partial sums are reduced at
// the coordinator. The coordinator returns the total and the latency
// of the computation in seconds, bounded by the slowest rank.
var RangeSum = spmd.Register("rangesum", rangeSum)

func rangeSum(ctx context.Context, comm *spmd.Comm, args []string) ([]float64, error) {
	fs := flag.NewFlagSet("rangesum", flag.ContinueOnError)
	if err := parseFlags(fs, args, 1); err != nil {
		return nil, err
	}
	upper, err := strconv.Atoi(fs.Arg(0))
	if err != nil {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("rangesum: bad upper bound %q", fs.Arg(0)), err)
	}
	bound := []float64{float64(upper)}
	if err := comm.Broadcast(ctx, bound, Coordinator); err != nil {
		return nil, err
	}
	timer, err := spmd.StartTimer(ctx, comm)
	if err != nil {
		return nil, err
	}
	indices, err := shard.CyclicThrough(int(bound[0]), comm.Size(), comm.Rank())
	if err != nil {
		return nil, err
	}
	total, err := spmd.Total(ctx, comm, kernel.RangeSum(indices), spmd.Sum, Coordinator)
	if err != nil {
		return nil, err
	}
	if _, err := timer.Stop(); err != nil {
		return nil, err
	}
	elapsed, err := timer.Report(ctx, Coordinator)
	if err != nil {
		return nil, err
	}
	if !comm.Proc().IsRoot(Coordinator) {
		return nil, nil
	}
	log.Printf("sum of the first %d integers is %f; elapsed time (max across ranks): %s", upper, total, elapsed)
	return []float64{total, elapsed.Seconds()}, nil
}
