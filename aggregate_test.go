// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package spmd

import (
	"context"
	"fmt"
	"reflect"
	"testing"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/spmd/shard"
)

func TestDistributeAssemble(t *testing.T) {
	const (
		n     = 6
		width = 2
		size  = 3
	)
	plan, err := shard.Contiguous(n, size)
	if err != nil {
		t.Fatal(err)
	}
	global := make([]float64, n*width)
	for i := range global {
		global[i] = float64(i * i)
	}
	var assembled []float64
	mustGroup(t, size, func(ctx context.Context, comm *Comm) error {
		var in []float64
		if comm.Rank() == 1 {
			in = global
		}
		local, err := Distribute(ctx, comm, plan, width, in, 1)
		if err != nil {
			return err
		}
		s := plan.Shard(comm.Rank())
		if want := global[s.Offset*width : s.End()*width]; !reflect.DeepEqual(local, want) {
			return fmt.Errorf("got %v, want %v", local, want)
		}
		out, err := Assemble(ctx, comm, plan, width, local, 1)
		if err != nil {
			return err
		}
		if comm.Rank() == 1 {
			assembled = out
		} else if out != nil {
			return fmt.Errorf("non-root assembled %v", out)
		}
		return nil
	})
	if !reflect.DeepEqual(assembled, global) {
		t.Errorf("got %v, want %v", assembled, global)
	}
}

func TestDistributePlanMismatch(t *testing.T) {
	plan, err := shard.Contiguous(8, 4)
	if err != nil {
		t.Fatal(err)
	}
	proc, _ := NewProc(0, 2)
	comm := NewComm(proc, NewRendezvous(2))
	if _, err := Distribute(context.Background(), comm, plan, 1, make([]float64, 8), 0); !errors.Is(errors.Invalid, err) {
		t.Errorf("got %v, want invalid error", err)
	}
	plan, _ = shard.Contiguous(8, 2)
	if _, err := Distribute(context.Background(), comm, plan, 1, make([]float64, 7), 0); !errors.Is(errors.Invalid, err) {
		t.Errorf("got %v, want invalid error", err)
	}
	if _, err := Assemble(context.Background(), comm, plan, 1, make([]float64, 3), 0); !errors.Is(errors.Invalid, err) {
		t.Errorf("got %v, want invalid error", err)
	}
}

func TestTotal(t *testing.T) {
	var got float64
	mustGroup(t, 5, func(ctx context.Context, comm *Comm) error {
		v, err := Total(ctx, comm, float64(comm.Rank()+1), Sum, 0)
		if comm.Rank() == 0 {
			got = v
		}
		return err
	})
	if want := 15.0; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}
