// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package spmd

import (
	"context"
	"fmt"

	"github.com/grailbio/base/errors"
)

// Kind names a collective operation.
type Kind int

const (
	// Barrier exchanges no data.
	Barrier Kind = iota
	// Broadcast copies root's buffer to every rank.
	Broadcast
	// Scatter distributes consecutive blocks of root's buffer, one per
	// rank, in rank order.
	Scatter
	// Gather concatenates every rank's block at root, in rank order.
	Gather
	// Reduce combines one value per rank at root.
	Reduce
)

func (k Kind) String() string {
	switch k {
	case Barrier:
		return "barrier"
	case Broadcast:
		return "broadcast"
	case Scatter:
		return "scatter"
	case Gather:
		return "gather"
	case Reduce:
		return "reduce"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// A Request is one rank's contribution to a collective round. Rounds
// are identified by their sequence number: the n'th collective issued
// by each rank has sequence number n.
type Request struct {
	Seq  uint64
	Kind Kind
	Rank int
	Size int
	Root int
	// Count is the per-rank element count of the collective. All ranks
	// must agree on it.
	Count int
	Op    Op
	// Values holds the rank's data: root's buffer for broadcast and
	// scatter, the rank's block for gather, a single value for reduce.
	Values []float64
	// Blob holds an opaque encoded value for value broadcasts.
	Blob []byte
	// Sum is the fingerprint of Values and Blob.
	Sum uint64
}

func (r *Request) String() string {
	return fmt.Sprintf("%s#%d(rank=%d root=%d count=%d)", r.Kind, r.Seq, r.Rank, r.Root, r.Count)
}

// seal computes the request's fingerprint.
func (r *Request) seal() {
	r.Sum = Fingerprint(r.Values, r.Blob)
}

func (r *Request) verify() error {
	if sum := Fingerprint(r.Values, r.Blob); sum != r.Sum {
		return errors.E(errors.Integrity,
			fmt.Sprintf("%s: computed fingerprint %x but expected %x", r, sum, r.Sum))
	}
	return nil
}

// agrees tells whether r and q describe the same collective call.
func (r *Request) agrees(q *Request) bool {
	return r.Kind == q.Kind && r.Root == q.Root && r.Count == q.Count && r.Op == q.Op
}

// A Reply is a rank's share of a completed collective round.
type Reply struct {
	Values []float64
	Blob   []byte
	Sum    uint64
}

func (r *Reply) seal() {
	r.Sum = Fingerprint(r.Values, r.Blob)
}

func (r *Reply) verify(req *Request) error {
	if sum := Fingerprint(r.Values, r.Blob); sum != r.Sum {
		return errors.E(errors.Integrity,
			fmt.Sprintf("reply to %s: computed fingerprint %x but expected %x", req, sum, r.Sum))
	}
	return nil
}

// An Exchanger carries collective rounds between the ranks of a
// group. Exchange blocks until every rank of the group has submitted
// its request for the round, and then returns the calling rank's
// reply. Exchangers must be safe for concurrent use by the ranks of a
// group.
type Exchanger interface {
	Exchange(ctx context.Context, req *Request) (*Reply, error)
}
