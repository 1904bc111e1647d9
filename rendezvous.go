// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package spmd

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/grailbio/base/errors"
)

// Rendezvous is an Exchanger that completes collective rounds in
// memory. It is the meeting point of a group: every rank submits its
// request for a round to the same Rendezvous, either directly (ranks
// running in the same process) or through an RPC transport.
//
// Rounds are completed once all ranks have arrived. Requests that
// disagree on the kind, root, count, or operator of a round fail the
// round on every rank. A request resubmitted by the same rank for the
// same round (e.g., a retried RPC) joins the original submission.
type Rendezvous struct {
	// Timeout bounds the time a rank waits for its peers in a single
	// round. When it expires, the waiting rank's Exchange returns an
	// error naming the ranks that have not arrived. A zero Timeout
	// waits until the caller's context is done.
	Timeout time.Duration

	size int

	mu     sync.Mutex
	rounds map[uint64]*round
}

// NewRendezvous returns a Rendezvous for a group of size ranks.
func NewRendezvous(size int) *Rendezvous {
	if size < 1 {
		panic("spmd.NewRendezvous: size < 1")
	}
	return &Rendezvous{size: size, rounds: make(map[uint64]*round)}
}

// Size returns the group size served by the rendezvous.
func (r *Rendezvous) Size() int { return r.size }

// Pending returns the number of rounds that have not been collected
// by all ranks.
func (r *Rendezvous) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rounds)
}

// Exchange implements Exchanger.
func (r *Rendezvous) Exchange(ctx context.Context, req *Request) (*Reply, error) {
	if err := r.check(req); err != nil {
		return nil, err
	}
	if err := req.verify(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	rd := r.rounds[req.Seq]
	if rd == nil {
		rd = newRound(req.Seq, r.size)
		r.rounds[req.Seq] = rd
	}
	if prev := rd.reqs[req.Rank]; prev == nil {
		rd.add(req)
	} else if prev.Sum != req.Sum || !prev.agrees(req) {
		r.mu.Unlock()
		return nil, errors.E(errors.Invalid,
			fmt.Sprintf("spmd: rank %d submitted round %d twice: %s, then %s", req.Rank, req.Seq, prev, req))
	}
	r.mu.Unlock()

	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}
	select {
	case <-rd.done:
	case <-ctx.Done():
		r.mu.Lock()
		missing := rd.missing()
		r.mu.Unlock()
		return nil, errors.E(ctx.Err(), fmt.Sprintf("spmd: %s: waiting for ranks %v", req, missing))
	}

	r.mu.Lock()
	if !rd.collected[req.Rank] {
		rd.collected[req.Rank] = true
		rd.ncollected++
	}
	if rd.ncollected == r.size {
		delete(r.rounds, req.Seq)
	}
	r.mu.Unlock()
	if rd.err != nil {
		return nil, rd.err
	}
	return rd.replies[req.Rank], nil
}

func (r *Rendezvous) check(req *Request) error {
	switch {
	case req.Size != r.size:
		return errors.E(errors.Invalid,
			fmt.Sprintf("spmd: %s: group size %d, rendezvous size %d", req, req.Size, r.size))
	case req.Rank < 0 || req.Rank >= r.size:
		return errors.E(errors.Invalid, fmt.Sprintf("spmd: %s: rank outside [0, %d)", req, r.size))
	case req.Root < 0 || req.Root >= r.size:
		return errors.E(errors.Invalid, errors.Fatal, fmt.Sprintf("spmd: %s: root outside [0, %d)", req, r.size))
	case req.Kind < Barrier || req.Kind > Reduce:
		return errors.E(errors.Invalid, fmt.Sprintf("spmd: %s: unknown collective", req))
	case req.Kind == Reduce && !req.Op.valid():
		return errors.E(errors.Invalid, fmt.Sprintf("spmd: %s: unknown operator %s", req, req.Op))
	}
	return nil
}

// A round is the state of one collective call across the group.
type round struct {
	seq        uint64
	reqs       []*Request
	arrived    int
	first      *Request
	replies    []*Reply
	err        error
	done       chan struct{}
	collected  []bool
	ncollected int
}

func newRound(seq uint64, size int) *round {
	return &round{
		seq:       seq,
		reqs:      make([]*Request, size),
		done:      make(chan struct{}),
		collected: make([]bool, size),
	}
}

// add admits req into the round, completing or failing the round as
// appropriate. It must be called with the rendezvous lock held.
func (rd *round) add(req *Request) {
	rd.reqs[req.Rank] = req
	rd.arrived++
	if rd.err != nil {
		return
	}
	if rd.first == nil {
		rd.first = req
	} else if !rd.first.agrees(req) {
		rd.fail(errors.E(errors.Invalid, fmt.Sprintf(
			"spmd: collective mismatch in round %d: rank %d issued %s, rank %d issued %s",
			rd.seq, rd.first.Rank, rd.first, req.Rank, req)))
		return
	}
	if rd.arrived < len(rd.reqs) {
		return
	}
	rd.replies, rd.err = complete(rd.reqs)
	close(rd.done)
}

func (rd *round) fail(err error) {
	rd.err = err
	close(rd.done)
}

func (rd *round) missing() []int {
	var ranks []int
	for rank, req := range rd.reqs {
		if req == nil {
			ranks = append(ranks, rank)
		}
	}
	return ranks
}

// complete computes the replies of a round in which every rank has
// submitted an agreeing request.
func complete(reqs []*Request) ([]*Reply, error) {
	var (
		size    = len(reqs)
		first   = reqs[0]
		count   = first.Count
		root    = reqs[first.Root]
		replies = make([]*Reply, size)
	)
	for i := range replies {
		replies[i] = new(Reply)
	}
	switch first.Kind {
	case Barrier:
	case Broadcast:
		if len(root.Values) != count {
			return nil, errors.E(errors.Invalid,
				fmt.Sprintf("spmd: %s: root sent %d values", root, len(root.Values)))
		}
		for _, reply := range replies {
			reply.Values = root.Values
			reply.Blob = root.Blob
		}
	case Scatter:
		if len(root.Values) != count*size {
			return nil, errors.E(errors.Invalid,
				fmt.Sprintf("spmd: %s: root sent %d values, want %d", root, len(root.Values), count*size))
		}
		for i, reply := range replies {
			reply.Values = root.Values[i*count : (i+1)*count]
		}
	case Gather:
		all := make([]float64, 0, count*size)
		for _, req := range reqs {
			if len(req.Values) != count {
				return nil, errors.E(errors.Invalid,
					fmt.Sprintf("spmd: %s: sent %d values", req, len(req.Values)))
			}
			all = append(all, req.Values...)
		}
		replies[first.Root].Values = all
	case Reduce:
		vals := make([]float64, size)
		for i, req := range reqs {
			if len(req.Values) != 1 {
				return nil, errors.E(errors.Invalid,
					fmt.Sprintf("spmd: %s: sent %d values", req, len(req.Values)))
			}
			vals[i] = req.Values[0]
		}
		replies[first.Root].Values = []float64{first.Op.Fold(vals)}
	}
	for _, reply := range replies {
		reply.seal()
	}
	return replies, nil
}
