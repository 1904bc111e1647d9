// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package shard plans the partition of a logically global array of N
// elements across the P ranks of a group. Two plans are provided:
// contiguous blocks (Contiguous), which require N to be a multiple of
// P, and cyclic strides (Cyclic), which have no divisibility
// requirement.
package shard

import (
	"fmt"

	"github.com/grailbio/base/errors"
)

// A Shard is the contiguous range of global indices
// [Offset, Offset+Length) owned by one rank.
type Shard struct {
	Offset, Length int
}

// End returns the (exclusive) end of the shard's range.
func (s Shard) End() int { return s.Offset + s.Length }

// Contains tells whether global index i belongs to the shard.
func (s Shard) Contains(i int) bool { return i >= s.Offset && i < s.End() }

func (s Shard) String() string {
	return fmt.Sprintf("[%d, %d)", s.Offset, s.End())
}

// PartitionError is returned when a contiguous plan is requested for
// an element count that the group size does not divide. No remainder
// policy is applied: elements are never silently dropped or padded.
type PartitionError struct {
	N, P int
}

func (e *PartitionError) Error() string {
	return fmt.Sprintf("cannot partition %d elements into %d equal blocks (remainder %d)", e.N, e.P, e.N%e.P)
}

// IsPartitionError tells whether err is, or wraps, a *PartitionError.
func IsPartitionError(err error) bool {
	for err != nil {
		switch e := err.(type) {
		case *PartitionError:
			return true
		case *errors.Error:
			err = e.Err
		default:
			return false
		}
	}
	return false
}

// A Plan is a contiguous-block partition of N elements across P
// ranks. Rank r owns [r*(N/P), (r+1)*(N/P)).
type Plan struct {
	N, P int
}

// Contiguous returns the contiguous-block plan for n elements and p
// ranks. If p does not divide n, the returned error is an
// errors.Invalid error wrapping a *PartitionError.
func Contiguous(n, p int) (Plan, error) {
	switch {
	case n < 0:
		return Plan{}, errors.E(errors.Invalid, fmt.Sprintf("shard.Contiguous: negative element count %d", n))
	case p < 1:
		return Plan{}, errors.E(errors.Invalid, fmt.Sprintf("shard.Contiguous: group size %d < 1", p))
	case n%p != 0:
		return Plan{}, errors.E(errors.Invalid, "shard.Contiguous", &PartitionError{N: n, P: p})
	}
	return Plan{N: n, P: p}, nil
}

// BlockLen returns the number of elements owned by each rank.
func (p Plan) BlockLen() int {
	return p.N / p.P
}

// Shard returns the shard owned by rank.
func (p Plan) Shard(rank int) Shard {
	if rank < 0 || rank >= p.P {
		panic(fmt.Sprintf("shard.Plan.Shard: rank %d outside [0, %d)", rank, p.P))
	}
	n := p.BlockLen()
	return Shard{Offset: rank * n, Length: n}
}

// Shards returns every rank's shard, in rank order.
func (p Plan) Shards() []Shard {
	shards := make([]Shard, p.P)
	for r := range shards {
		shards[r] = p.Shard(r)
	}
	return shards
}

// Owner returns the rank that owns global index i.
func (p Plan) Owner(i int) int {
	if i < 0 || i >= p.N {
		panic(fmt.Sprintf("shard.Plan.Owner: index %d outside [0, %d)", i, p.N))
	}
	return i / p.BlockLen()
}

func (p Plan) String() string {
	return fmt.Sprintf("contiguous(%d/%d)", p.N, p.P)
}
