// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package example contains SPMD programs that exercise the collective
// kernel end to end: a distributed matrix-vector product, a cyclic
// range sum, a load-imbalanced timing measurement, the broadcast of a
// record, and a scatter/gather round trip.
//
// Every program designates rank 0 as its coordinator. Only the
// coordinator's output is meaningful unless noted otherwise.
package example

import (
	"flag"
	"fmt"
	"io/ioutil"

	"github.com/grailbio/base/errors"
)

// Coordinator is the rank that loads inputs and receives results.
const Coordinator = 0

// parseFlags parses a program's arguments into fs. Every rank parses
// the same arguments, so usage errors fail all ranks before any
// collective is issued.
func parseFlags(fs *flag.FlagSet, args []string, nargs int) error {
	fs.SetOutput(ioutil.Discard)
	if err := fs.Parse(args); err != nil {
		return errors.E(errors.Invalid, fmt.Sprintf("%s: %v", fs.Name(), err))
	}
	if fs.NArg() != nargs {
		return errors.E(errors.Invalid, fmt.Sprintf("%s: got %d arguments, want %d", fs.Name(), fs.NArg(), nargs))
	}
	return nil
}
