// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package spmd

import "fmt"

// An Op is an associative, commutative reduction operator over
// float64 values.
type Op int

const (
	// Sum adds values.
	Sum Op = iota
	// Max selects the largest value.
	Max
	// Min selects the smallest value.
	Min
	// Prod multiplies values.
	Prod
)

func (op Op) String() string {
	switch op {
	case Sum:
		return "sum"
	case Max:
		return "max"
	case Min:
		return "min"
	case Prod:
		return "prod"
	default:
		return fmt.Sprintf("Op(%d)", int(op))
	}
}

func (op Op) valid() bool {
	return op >= Sum && op <= Prod
}

// Apply combines a and b.
func (op Op) Apply(a, b float64) float64 {
	switch op {
	case Sum:
		return a + b
	case Max:
		if b > a {
			return b
		}
		return a
	case Min:
		if b < a {
			return b
		}
		return a
	case Prod:
		return a * b
	}
	panic(op)
}

// Fold combines vals left to right: ((vals[0] op vals[1]) op vals[2])...
// The evaluation order is fixed so that floating point results are
// reproducible. Fold panics if vals is empty.
func (op Op) Fold(vals []float64) float64 {
	acc := vals[0]
	for _, v := range vals[1:] {
		acc = op.Apply(acc, v)
	}
	return acc
}
