// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package example

import (
	"context"
	"flag"
	"time"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/spmd"
	"github.com/grailbio/spmd/dataio"
	"github.com/grailbio/spmd/kernel"
	"github.com/grailbio/spmd/shard"
)

// MatVec multiplies an N x N matrix by a vector of length N. Its
// arguments are the paths of the vector and the matrix:
//
//	matvec [-out path] [-threads n] vector matrix
//
// The coordinator loads both inputs and broadcasts the dimension and
// the vector. The matrix is scattered in contiguous blocks of rows,
// so the group size must divide N. Each rank multiplies its rows by
// the vector, and the products are gathered, in row order, at the
// coordinator, which returns them and writes them to -out if set.
var MatVec = spmd.Register("matvec", matVec)

func matVec(ctx context.Context, comm *spmd.Comm, args []string) ([]float64, error) {
	fs := flag.NewFlagSet("matvec", flag.ContinueOnError)
	out := fs.String("out", "", "path to which the coordinator writes the result vector")
	threads := fs.Int("threads", 1, "number of rows each rank computes concurrently")
	if err := parseFlags(fs, args, 2); err != nil {
		return nil, err
	}
	if *threads < 1 {
		return nil, errors.E(errors.Invalid, "matvec: -threads must be positive")
	}
	isRoot := comm.Proc().IsRoot(Coordinator)
	// The coordinator loads everything before the first collective, so
	// that partially loaded data is never distributed.
	var (
		vec, mat []float64
		dim      = make([]float64, 1)
	)
	if isRoot {
		var err error
		if vec, err = dataio.ReadVector(ctx, fs.Arg(0)); err != nil {
			return nil, err
		}
		if mat, err = dataio.ReadMatrix(ctx, fs.Arg(1), len(vec)); err != nil {
			return nil, err
		}
		dim[0] = float64(len(vec))
	}
	if err := comm.Broadcast(ctx, dim, Coordinator); err != nil {
		return nil, err
	}
	n := int(dim[0])
	if n == 0 {
		return nil, errors.E(errors.Invalid, "matvec: empty vector")
	}
	plan, err := shard.Contiguous(n, comm.Size())
	if err != nil {
		return nil, err
	}
	if !isRoot {
		vec = make([]float64, n)
	}
	if err := comm.Broadcast(ctx, vec, Coordinator); err != nil {
		return nil, err
	}
	rows, err := spmd.Distribute(ctx, comm, plan, n, mat, Coordinator)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	var partial []float64
	if *threads > 1 {
		partial, err = kernel.ParallelDotRows(ctx, *threads, n, rows, vec)
	} else {
		partial, err = kernel.DotRows(n)(rows, vec)
	}
	if err != nil {
		return nil, err
	}
	comm.Trace("dotrows", start, time.Now())
	log.Debug.Printf("matvec: %s: rows %s", comm.Proc(), plan.Shard(comm.Rank()))
	result, err := spmd.Assemble(ctx, comm, plan, 1, partial, Coordinator)
	if err != nil {
		return nil, err
	}
	if isRoot && *out != "" {
		if err := dataio.WriteVector(ctx, *out, result); err != nil {
			return nil, err
		}
	}
	return result, nil
}
