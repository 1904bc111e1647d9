// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package kernel provides local compute kernels: pure functions from
// a rank's local shard, plus inputs shared by every rank, to the
// rank's partial result. Kernels never communicate; everything they
// need must already have been broadcast or scattered to the rank.
// Kernels are swapped freely without touching the orchestration
// around them.
package kernel

import (
	"context"
	"fmt"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/limiter"
	"github.com/grailbio/spmd/shard"
	"golang.org/x/sync/errgroup"
)

// Func computes a partial result from a local block and shared
// inputs.
type Func func(local, shared []float64) ([]float64, error)

// DotRows returns a kernel that multiplies a block of rows, each of n
// values in row-major order, by the shared vector of length n. Output
// i is the dot product of row i and the vector, accumulated in column
// order.
func DotRows(n int) Func {
	return func(block, vec []float64) ([]float64, error) {
		if err := checkDot(n, block, vec); err != nil {
			return nil, err
		}
		out := make([]float64, len(block)/n)
		for i := range out {
			out[i] = dot(block[i*n:(i+1)*n], vec)
		}
		return out, nil
	}
}

// ParallelDotRows computes the same result as DotRows(n) over block
// and vec, evaluating up to procs rows concurrently. Each row is
// accumulated sequentially, so the result is bit-identical to
// DotRows.
func ParallelDotRows(ctx context.Context, procs, n int, block, vec []float64) ([]float64, error) {
	if procs < 1 {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("kernel.ParallelDotRows: procs %d < 1", procs))
	}
	if err := checkDot(n, block, vec); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var (
		out = make([]float64, len(block)/n)
		lim = limiter.New()
		g   errgroup.Group
		err error
	)
	lim.Release(procs)
	for i := range out {
		if err = lim.Acquire(ctx, 1); err != nil {
			break
		}
		i := i
		g.Go(func() error {
			defer lim.Release(1)
			out[i] = dot(block[i*n:(i+1)*n], vec)
			return nil
		})
	}
	if werr := g.Wait(); err == nil {
		err = werr
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

func checkDot(n int, block, vec []float64) error {
	switch {
	case n < 1:
		return errors.E(errors.Invalid, fmt.Sprintf("kernel: row length %d < 1", n))
	case len(vec) != n:
		return errors.E(errors.Invalid, fmt.Sprintf("kernel: vector has %d values, want %d", len(vec), n))
	case len(block)%n != 0:
		return errors.E(errors.Invalid, fmt.Sprintf("kernel: block of %d values is not a whole number of rows of %d", len(block), n))
	}
	return nil
}

func dot(row, vec []float64) float64 {
	var s float64
	for j := range row {
		s += row[j] * vec[j]
	}
	return s
}

// Identity returns a copy of its local block. It ignores shared
// inputs.
func Identity(local, _ []float64) ([]float64, error) {
	return append([]float64{}, local...), nil
}

// Sum returns the sum of its local block, accumulated in index order.
// It ignores shared inputs.
func Sum(local, _ []float64) ([]float64, error) {
	var s float64
	for _, v := range local {
		s += v
	}
	return []float64{s}, nil
}

// RangeSum returns the sum of the indices in x, accumulated in
// iteration order in float64.
func RangeSum(x shard.Indices) float64 {
	var s float64
	x.Each(func(i int) { s += float64(i) })
	return s
}

// Spin runs a busy loop of the provided number of iterations and
// returns its accumulator. It is a synthetic workload whose duration
// scales with iterations.
func Spin(iterations int64) float64 {
	var acc float64
	for i := int64(0); i < iterations; i++ {
		acc += float64(i) * 1e-7
	}
	return acc
}
