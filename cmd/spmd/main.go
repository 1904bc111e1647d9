// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Command spmd runs the example SPMD programs as a group of ranks on
// the system selected by its flags.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/file/s3file"
	"github.com/grailbio/spmd"
	"github.com/grailbio/spmd/example"
	"github.com/grailbio/spmd/exec"
	"github.com/grailbio/spmd/spmdcmd"
)

func init() {
	file.RegisterImplementation("s3", func() file.Implementation {
		return s3file.NewImplementation(
			s3file.NewDefaultProvider(session.Options{}), s3file.Options{})
	})
}

var programs = map[string]*spmd.Program{
	"matvec":    example.MatVec,
	"rangesum":  example.RangeSum,
	"timing":    example.TimingMax,
	"bcast":     example.BcastRecord,
	"roundtrip": example.Roundtrip,
}

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `usage: spmd [flags] program args...

Command spmd runs an SPMD program as a group of -np ranks.

Available programs are:

	matvec [-out path] [-threads n] vector matrix
		Multiply the N x N matrix by the vector of length N. The group
		size must divide N.
	rangesum upper
		Sum the integers 1..upper, distributed cyclically.
	timing [-iterations n]
		Report the slowest rank of a load-imbalanced workload.
	bcast i d1 d2
		Broadcast a record from the coordinator to every rank.
	roundtrip [-count n] [-seed n]
		Scatter and gather a generated payload, verifying its fingerprint.

Flags:
`)
		flag.PrintDefaults()
		os.Exit(2)
	}
	spmdcmd.Main(func(sess *exec.Session, args []string) error {
		if len(args) == 0 {
			flag.Usage()
		}
		prog, ok := programs[args[0]]
		if !ok {
			return errors.E(errors.NotExist, fmt.Sprintf("unknown program %s", args[0]))
		}
		res, err := sess.Run(context.Background(), prog, args[1:]...)
		if err != nil {
			return err
		}
		fmt.Println(format(args[0], res))
		return nil
	})
}

// format renders the output of the named program.
func format(name string, res *exec.Result) string {
	out := res.Root()
	switch name {
	case "rangesum":
		return fmt.Sprintf("sum %.0f computed by %d ranks in %.6fs", out[0], res.Procs(), out[1])
	case "timing":
		return fmt.Sprintf("coordinator %.6fs, slowest rank %.6fs", out[0], out[1])
	case "bcast":
		lines := make([]string, res.Procs())
		for rank := range lines {
			o := res.Output(rank)
			lines[rank] = fmt.Sprintf("rank %d: I1=%.0f D1=%g D2=%g", rank, o[0], o[1], o[2])
		}
		return strings.Join(lines, "\n")
	case "roundtrip":
		return fmt.Sprintf("%.0f values round-tripped intact", out[0])
	default:
		strs := make([]string, len(out))
		for i, v := range out {
			strs[i] = fmt.Sprintf("%f", v)
		}
		return strings.Join(strs, " ")
	}
}
