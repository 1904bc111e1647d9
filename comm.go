// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package spmd

import (
	"bytes"
	"context"
	"encoding/gob"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/spmd/internal/trace"
	"github.com/grailbio/spmd/stats"
)

// Comm is a rank's handle on the collective transport of its group.
// Each collective returns once every rank of the group has issued the
// matching call. Send buffers are copied into the transport and
// results are copied into caller-owned receive buffers, so callers
// may reuse their buffers as soon as a call returns.
//
// A Comm is not safe for concurrent use: collectives must be issued
// in program order. Once a collective fails, the Comm is no longer in
// step with its peers; all subsequent calls return the same error.
type Comm struct {
	proc  Proc
	exch  Exchanger
	seq   uint64
	err   error
	stats *stats.Map

	mu     sync.Mutex
	events []trace.Event
}

// NewComm returns a Comm for proc whose collectives are carried by
// exch.
func NewComm(proc Proc, exch Exchanger) *Comm {
	return &Comm{proc: proc, exch: exch, stats: stats.NewMap()}
}

// Proc returns the process context of the calling rank.
func (c *Comm) Proc() Proc { return c.proc }

// Rank returns the calling rank.
func (c *Comm) Rank() int { return c.proc.rank }

// Size returns the group size.
func (c *Comm) Size() int { return c.proc.size }

// Stats returns a snapshot of the traffic counters of this rank.
func (c *Comm) Stats() stats.Values {
	return c.stats.Snapshot()
}

// Events returns the trace spans recorded by this rank.
func (c *Comm) Events() []trace.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]trace.Event(nil), c.events...)
}

// Trace records a span of program activity, e.g., a compute phase,
// alongside the collective spans of this rank.
func (c *Comm) Trace(name string, start, end time.Time) {
	c.mu.Lock()
	c.events = append(c.events, trace.Span(c.proc.rank, "compute", name, start, end, nil))
	c.mu.Unlock()
}

// Broadcast copies root's buf into buf on every other rank. All
// ranks must pass buffers of the same length.
func (c *Comm) Broadcast(ctx context.Context, buf []float64, root int) error {
	if err := c.proc.checkRoot("Broadcast", root); err != nil {
		return err
	}
	req := &Request{Kind: Broadcast, Root: root, Count: len(buf)}
	if c.proc.IsRoot(root) {
		req.Values = clone(buf)
	}
	reply, err := c.exchange(ctx, req)
	if err != nil {
		return err
	}
	if !c.proc.IsRoot(root) {
		copy(buf, reply.Values)
	}
	return nil
}

// BroadcastValue broadcasts the value pointed to by ptr at root to
// the values pointed to by ptr on every other rank. Values are
// gob-encoded, so that derived records (structs) are transferred
// field by field regardless of their memory layout.
func (c *Comm) BroadcastValue(ctx context.Context, ptr interface{}, root int) error {
	if err := c.proc.checkRoot("BroadcastValue", root); err != nil {
		return err
	}
	v := reflect.ValueOf(ptr)
	if v.Kind() != reflect.Ptr || v.IsNil() {
		return errors.E(errors.Invalid, fmt.Sprintf("spmd.BroadcastValue: %T is not a non-nil pointer", ptr))
	}
	req := &Request{Kind: Broadcast, Root: root}
	if c.proc.IsRoot(root) {
		var b bytes.Buffer
		if err := gob.NewEncoder(&b).Encode(ptr); err != nil {
			return errors.E(errors.Invalid, "spmd.BroadcastValue: encode", err)
		}
		req.Blob = b.Bytes()
	}
	reply, err := c.exchange(ctx, req)
	if err != nil {
		return err
	}
	if c.proc.IsRoot(root) {
		return nil
	}
	// Gob leaves fields that were zero at the root untouched.
	v.Elem().Set(reflect.Zero(v.Elem().Type()))
	if err := gob.NewDecoder(bytes.NewReader(reply.Blob)).Decode(ptr); err != nil {
		return errors.E(errors.Invalid, "spmd.BroadcastValue: decode", err)
	}
	return nil
}

// Scatter distributes root's send buffer in consecutive blocks of
// len(recv) values: rank r receives send[r*len(recv):(r+1)*len(recv)]
// into recv. At the root, len(send) must equal len(recv)*Size(); send
// is ignored elsewhere. All ranks must pass receive buffers of the same
// length.
func (c *Comm) Scatter(ctx context.Context, send, recv []float64, root int) error {
	if err := c.proc.checkRoot("Scatter", root); err != nil {
		return err
	}
	count := len(recv)
	req := &Request{Kind: Scatter, Root: root, Count: count}
	if c.proc.IsRoot(root) {
		if want := count * c.proc.size; len(send) != want {
			return errors.E(errors.Invalid, fmt.Sprintf(
				"spmd.Scatter: send buffer has %d values, want %d (%d per rank, %d ranks)",
				len(send), want, count, c.proc.size))
		}
		req.Values = clone(send)
	}
	reply, err := c.exchange(ctx, req)
	if err != nil {
		return err
	}
	copy(recv, reply.Values)
	return nil
}

// Gather concatenates every rank's send buffer, in rank order, into
// root's recv buffer. At the root, len(recv) must equal
// len(send)*Size(); recv is ignored elsewhere. All ranks must pass send
// buffers of the same length.
func (c *Comm) Gather(ctx context.Context, send, recv []float64, root int) error {
	if err := c.proc.checkRoot("Gather", root); err != nil {
		return err
	}
	count := len(send)
	if c.proc.IsRoot(root) {
		if want := count * c.proc.size; len(recv) != want {
			return errors.E(errors.Invalid, fmt.Sprintf(
				"spmd.Gather: receive buffer has %d values, want %d (%d per rank, %d ranks)",
				len(recv), want, count, c.proc.size))
		}
	}
	req := &Request{Kind: Gather, Root: root, Count: count, Values: clone(send)}
	reply, err := c.exchange(ctx, req)
	if err != nil {
		return err
	}
	if c.proc.IsRoot(root) {
		copy(recv, reply.Values)
	}
	return nil
}

// Reduce combines v from every rank with op, in rank order, and
// returns the result at root. Other ranks receive 0.
func (c *Comm) Reduce(ctx context.Context, v float64, op Op, root int) (float64, error) {
	if err := c.proc.checkRoot("Reduce", root); err != nil {
		return 0, err
	}
	if !op.valid() {
		return 0, errors.E(errors.Invalid, fmt.Sprintf("spmd.Reduce: unknown operator %s", op))
	}
	reply, err := c.exchange(ctx, &Request{Kind: Reduce, Root: root, Count: 1, Op: op, Values: []float64{v}})
	if err != nil {
		return 0, err
	}
	if !c.proc.IsRoot(root) {
		return 0, nil
	}
	return reply.Values[0], nil
}

// Barrier returns once every rank of the group has called it.
func (c *Comm) Barrier(ctx context.Context) error {
	_, err := c.exchange(ctx, &Request{Kind: Barrier})
	return err
}

func (c *Comm) exchange(ctx context.Context, req *Request) (*Reply, error) {
	if c.err != nil {
		return nil, c.err
	}
	req.Seq = c.seq
	c.seq++
	req.Rank, req.Size = c.proc.rank, c.proc.size
	req.seal()
	start := time.Now()
	reply, err := c.exch.Exchange(ctx, req)
	if err == nil {
		err = reply.verify(req)
	}
	c.record(req, reply, start, time.Now())
	if err != nil {
		c.err = err
		return nil, err
	}
	return reply, nil
}

func (c *Comm) record(req *Request, reply *Reply, start, end time.Time) {
	c.stats.Int(req.Kind.String()).Add(1)
	c.stats.Int("values.sent").Add(int64(len(req.Values)))
	if reply != nil {
		c.stats.Int("values.recv").Add(int64(len(reply.Values)))
	}
	c.mu.Lock()
	c.events = append(c.events, trace.Span(c.proc.rank, "collective", req.Kind.String(), start, end,
		map[string]interface{}{"seq": req.Seq, "root": req.Root, "count": req.Count}))
	c.mu.Unlock()
}

func clone(vals []float64) []float64 {
	if vals == nil {
		return nil
	}
	return append([]float64{}, vals...)
}
