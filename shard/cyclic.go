// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package shard

import (
	"fmt"

	"github.com/grailbio/base/errors"
)

// Indices is a finite arithmetic sequence of global indices
// {Start, Start+Step, Start+2*Step, ...} below Limit. Indices are
// values: iterating them does not consume them.
type Indices struct {
	Start, Step, Limit int
}

// Cyclic returns the indices below n owned by rank under a cyclic
// plan over p ranks: {rank, rank+p, rank+2p, ...} < n.
func Cyclic(n, p, rank int) (Indices, error) {
	if err := checkCyclic(p, rank); err != nil {
		return Indices{}, err
	}
	return Indices{Start: rank, Step: p, Limit: n}, nil
}

// CyclicThrough is like Cyclic, but the bound is inclusive: the
// returned indices are {rank, rank+p, ...} <= upper.
func CyclicThrough(upper, p, rank int) (Indices, error) {
	if err := checkCyclic(p, rank); err != nil {
		return Indices{}, err
	}
	return Indices{Start: rank, Step: p, Limit: upper + 1}, nil
}

func checkCyclic(p, rank int) error {
	if p < 1 {
		return errors.E(errors.Invalid, fmt.Sprintf("shard.Cyclic: group size %d < 1", p))
	}
	if rank < 0 || rank >= p {
		return errors.E(errors.Invalid, fmt.Sprintf("shard.Cyclic: rank %d outside [0, %d)", rank, p))
	}
	return nil
}

// Len returns the number of indices in the sequence.
func (x Indices) Len() int {
	if x.Start >= x.Limit {
		return 0
	}
	return (x.Limit - x.Start + x.Step - 1) / x.Step
}

// Each calls fn for each index, in increasing order.
func (x Indices) Each(fn func(i int)) {
	for i := x.Start; i < x.Limit; i += x.Step {
		fn(i)
	}
}

// Iter returns a fresh iterator over the indices.
func (x Indices) Iter() *Iter {
	return &Iter{x: x, next: x.Start}
}

func (x Indices) String() string {
	return fmt.Sprintf("{%d, %d, ...} < %d", x.Start, x.Start+x.Step, x.Limit)
}

// An Iter walks an Indices sequence.
type Iter struct {
	x    Indices
	next int
}

// Next returns the next index, or false when the sequence is
// exhausted.
func (it *Iter) Next() (int, bool) {
	if it.next >= it.x.Limit {
		return 0, false
	}
	i := it.next
	it.next += it.x.Step
	return i, true
}
