// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Command spmdstress repeatedly runs SPMD programs on a configured
// session to exercise the collective transport at scale.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/must"
	"github.com/grailbio/spmd/example"
	"github.com/grailbio/spmd/exec"
	"github.com/grailbio/spmd/spmdconfig"
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `usage: spmdstress [-wait] [-rounds n] test-name

Command spmdstress runs SPMD programs repeatedly on the session
configured by $HOME/.spmd/config.

Available tests are:

	roundtrip
		Scatter and gather a large generated payload with a new seed
		every round.
	rangesum
		Compute cyclic range sums of doubling size and check them
		against the closed form.
`)
		flag.PrintDefaults()
		os.Exit(2)
	}
	var (
		wait   = flag.Bool("wait", false, "don't exit after completion")
		rounds = flag.Int("rounds", 10, "number of runs")
		count  = flag.Int("count", 1<<20, "values per rank in each roundtrip")
	)
	sess, shutdown := spmdconfig.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
	}
	var (
		ctx = context.Background()
		cmd = flag.Arg(0)
		err error
	)
	switch cmd {
	default:
		fmt.Fprintf(os.Stderr, "unknown test %s\n", cmd)
		flag.Usage()
	case "roundtrip":
		err = roundtrip(ctx, sess, *rounds, *count)
	case "rangesum":
		err = rangesum(ctx, sess, *rounds)
	}
	shutdown()
	if *wait {
		if err != nil {
			log.Printf("finished with error %v: waiting", err)
		} else {
			log.Print("done: waiting")
		}
		<-make(chan struct{})
	}
	must.Nil(err, cmd)
}

func roundtrip(ctx context.Context, sess *exec.Session, rounds, count int) error {
	for i := 0; i < rounds; i++ {
		res, err := sess.Run(ctx, example.Roundtrip,
			"-count", strconv.Itoa(count), "-seed", strconv.Itoa(i))
		if err != nil {
			return err
		}
		log.Printf("roundtrip %d: %.0f values: %v", i, res.Root()[0], res.Stats())
	}
	return nil
}

func rangesum(ctx context.Context, sess *exec.Session, rounds int) error {
	upper := 1000
	for i := 0; i < rounds; i++ {
		res, err := sess.Run(ctx, example.RangeSum, strconv.Itoa(upper))
		if err != nil {
			return err
		}
		if got, want := res.Root()[0], float64(upper)*float64(upper+1)/2; got != want {
			return errors.E(errors.Integrity, fmt.Sprintf("rangesum %d: got %v, want %v", upper, got, want))
		}
		log.Printf("rangesum %d: %.6fs", upper, res.Root()[1])
		upper *= 2
	}
	return nil
}
