// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package kernel

import (
	"context"
	"math"
	"reflect"
	"testing"

	fuzz "github.com/google/gofuzz"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/spmd/shard"
)

func TestDotRowsIdentity(t *testing.T) {
	const n = 4
	// Rows 2 and 3 of the 4x4 identity.
	block := []float64{
		0, 0, 1, 0,
		0, 0, 0, 1,
	}
	got, err := DotRows(n)(block, []float64{1, 2, 3, 4})
	if err != nil {
		t.Fatal(err)
	}
	if want := []float64{3, 4}; !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestDotRowsErrors(t *testing.T) {
	for _, c := range []struct {
		n          int
		block, vec []float64
	}{
		{0, nil, nil},
		{2, []float64{1, 2}, []float64{1}},
		{2, []float64{1, 2, 3}, []float64{1, 2}},
	} {
		if _, err := DotRows(c.n)(c.block, c.vec); !errors.Is(errors.Invalid, err) {
			t.Errorf("n=%d: got %v, want invalid error", c.n, err)
		}
	}
}

func TestParallelDotRows(t *testing.T) {
	const (
		n    = 13
		rows = 37
	)
	fz := fuzz.New()
	fz.NilChance(0)
	fz.NumElements(n, n)
	var vec []float64
	fz.Fuzz(&vec)
	fz.NumElements(n*rows, n*rows)
	var block []float64
	fz.Fuzz(&block)

	want, err := DotRows(n)(block, vec)
	if err != nil {
		t.Fatal(err)
	}
	for _, procs := range []int{1, 3, 64} {
		got, err := ParallelDotRows(context.Background(), procs, n, block, vec)
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != len(want) {
			t.Fatalf("got %d rows, want %d", len(got), len(want))
		}
		for i := range got {
			if math.Float64bits(got[i]) != math.Float64bits(want[i]) {
				t.Errorf("procs=%d row %d: got %v, want %v", procs, i, got[i], want[i])
			}
		}
	}
}

func TestParallelDotRowsCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	block := make([]float64, 100)
	vec := make([]float64, 10)
	if _, err := ParallelDotRows(ctx, 1, 10, block, vec); err == nil {
		t.Error("expected error")
	}
	if _, err := ParallelDotRows(context.Background(), 0, 10, block, vec); !errors.Is(errors.Invalid, err) {
		t.Errorf("got %v, want invalid error", err)
	}
}

func TestSumIdentity(t *testing.T) {
	local := []float64{1, 2, 3.5}
	got, err := Sum(local, nil)
	if err != nil {
		t.Fatal(err)
	}
	if want := []float64{6.5}; !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
	got, err = Identity(local, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, local) {
		t.Errorf("got %v, want %v", got, local)
	}
	got[0] = 100
	if local[0] != 1 {
		t.Error("identity aliases its input")
	}
}

func TestRangeSum(t *testing.T) {
	for _, c := range []struct {
		upper, p int
		want     float64
	}{
		{10, 4, 55},
		{0, 3, 0},
		{100, 1, 5050},
		{2, 8, 3},
	} {
		var total float64
		for rank := 0; rank < c.p; rank++ {
			x, err := shard.CyclicThrough(c.upper, c.p, rank)
			if err != nil {
				t.Fatal(err)
			}
			total += RangeSum(x)
		}
		if total != c.want {
			t.Errorf("upper=%d p=%d: got %v, want %v", c.upper, c.p, total, c.want)
		}
	}
}

func TestSpin(t *testing.T) {
	if got, want := Spin(0), 0.0; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := Spin(1000), Spin(1000); got != want || got <= 0 {
		t.Errorf("got %v, want %v", got, want)
	}
}
