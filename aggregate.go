// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package spmd

import (
	"context"
	"fmt"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/spmd/shard"
)

// Distribute scatters global, held by root, according to plan. Each
// element of the plan spans width consecutive values of global (for
// example a row of a row-major matrix), so that global must hold
// plan.N*width values at the root. Distribute returns the calling
// rank's block of plan.BlockLen()*width values.
func Distribute(ctx context.Context, comm *Comm, plan shard.Plan, width int, global []float64, root int) ([]float64, error) {
	if err := checkPlan("Distribute", comm, plan, width); err != nil {
		return nil, err
	}
	if comm.Proc().IsRoot(root) && len(global) != plan.N*width {
		return nil, errors.E(errors.Invalid, fmt.Sprintf(
			"spmd.Distribute: root holds %d values, plan %s with width %d requires %d",
			len(global), plan, width, plan.N*width))
	}
	local := make([]float64, plan.BlockLen()*width)
	if err := comm.Scatter(ctx, global, local, root); err != nil {
		return nil, err
	}
	return local, nil
}

// Assemble gathers each rank's block of plan.BlockLen()*width values
// into a single array, ordered by global index, at root. Assemble
// returns the assembled array at the root and nil elsewhere.
func Assemble(ctx context.Context, comm *Comm, plan shard.Plan, width int, local []float64, root int) ([]float64, error) {
	if err := checkPlan("Assemble", comm, plan, width); err != nil {
		return nil, err
	}
	if want := plan.BlockLen() * width; len(local) != want {
		return nil, errors.E(errors.Invalid, fmt.Sprintf(
			"spmd.Assemble: %s holds %d values, plan %s with width %d requires %d",
			comm.Proc(), len(local), plan, width, want))
	}
	var global []float64
	if comm.Proc().IsRoot(root) {
		global = make([]float64, plan.N*width)
	}
	if err := comm.Gather(ctx, local, global, root); err != nil {
		return nil, err
	}
	return global, nil
}

// Total reduces one value per rank with op and returns the result at
// root. Other ranks receive 0.
func Total(ctx context.Context, comm *Comm, v float64, op Op, root int) (float64, error) {
	return comm.Reduce(ctx, v, op, root)
}

func checkPlan(op string, comm *Comm, plan shard.Plan, width int) error {
	if plan.P != comm.Size() {
		return errors.E(errors.Invalid, fmt.Sprintf(
			"spmd.%s: plan %s is for %d ranks, group has %d", op, plan, plan.P, comm.Size()))
	}
	if width < 1 {
		return errors.E(errors.Invalid, fmt.Sprintf("spmd.%s: width %d < 1", op, width))
	}
	return nil
}
