// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package spmd

import (
	"testing"

	"github.com/grailbio/base/errors"
)

func TestOpFold(t *testing.T) {
	vals := []float64{3, -1, 7, 2}
	for _, c := range []struct {
		op   Op
		want float64
	}{
		{Sum, 11},
		{Max, 7},
		{Min, -1},
		{Prod, -42},
	} {
		if got := c.op.Fold(vals); got != c.want {
			t.Errorf("%s: got %v, want %v", c.op, got, c.want)
		}
	}
	if got, want := Max.Fold([]float64{5}), 5.0; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestOpString(t *testing.T) {
	if got, want := Prod.String(), "prod"; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := Op(12).String(), "Op(12)"; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestNewProc(t *testing.T) {
	p, err := NewProc(2, 4)
	if err != nil {
		t.Fatal(err)
	}
	if p.Rank() != 2 || p.Size() != 4 || !p.IsRoot(2) || p.IsRoot(0) {
		t.Errorf("bad proc %v", p)
	}
	if got, want := p.String(), "rank 2/4"; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	for _, c := range [][2]int{{0, 0}, {-1, 3}, {3, 3}} {
		if _, err := NewProc(c[0], c[1]); !errors.Is(errors.Invalid, err) {
			t.Errorf("NewProc(%d, %d): got %v, want invalid error", c[0], c[1], err)
		}
	}
}

func TestFingerprint(t *testing.T) {
	a := Fingerprint([]float64{1, 2, 3}, nil)
	if got := Fingerprint([]float64{1, 2, 3}, nil); got != a {
		t.Errorf("got %x, want %x", got, a)
	}
	if Fingerprint([]float64{1, 2, 4}, nil) == a {
		t.Error("fingerprint collision")
	}
	if Fingerprint([]float64{1, 2, 3}, []byte{0}) == a {
		t.Error("blob not fingerprinted")
	}
}
