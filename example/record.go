// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package example

import (
	"context"
	"flag"
	"fmt"
	"strconv"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/spmd"
)

// Record is a heterogeneous record broadcast as a single value.
type Record struct {
	I1     int
	D1, D2 float64
}

func (r Record) String() string {
	return fmt.Sprintf("%d %f %f", r.I1, r.D1, r.D2)
}

func parseRecord(args []string) (Record, error) {
	var (
		r   Record
		err error
	)
	if r.I1, err = strconv.Atoi(args[0]); err != nil {
		return r, errors.E(errors.Invalid, "record: i1", err)
	}
	if r.D1, err = strconv.ParseFloat(args[1], 64); err != nil {
		return r, errors.E(errors.Invalid, "record: d1", err)
	}
	if r.D2, err = strconv.ParseFloat(args[2], 64); err != nil {
		return r, errors.E(errors.Invalid, "record: d2", err)
	}
	return r, nil
}

// BcastRecord broadcasts the record i1 d1 d2, given by its three
// arguments, from the coordinator to every rank. Every rank returns
// the fields of the record it received.
var BcastRecord = spmd.Register("bcast", bcastRecord)

func bcastRecord(ctx context.Context, comm *spmd.Comm, args []string) ([]float64, error) {
	fs := flag.NewFlagSet("bcast", flag.ContinueOnError)
	if err := parseFlags(fs, args, 3); err != nil {
		return nil, err
	}
	var rec Record
	if comm.Proc().IsRoot(Coordinator) {
		var err error
		if rec, err = parseRecord(fs.Args()); err != nil {
			return nil, err
		}
	}
	if err := comm.BroadcastValue(ctx, &rec, Coordinator); err != nil {
		return nil, err
	}
	log.Printf("%s: data %s", comm.Proc(), rec)
	return []float64{float64(rec.I1), rec.D1, rec.D2}, nil
}
