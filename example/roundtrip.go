// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package example

import (
	"context"
	"flag"
	"fmt"

	fuzz "github.com/google/gofuzz"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/spmd"
	"github.com/grailbio/spmd/kernel"
	"github.com/grailbio/spmd/shard"
)

// Roundtrip scatters a generated payload of -count values per rank
// from the coordinator, applies the identity kernel on every rank,
// and gathers the blocks back. The coordinator verifies that the
// gathered payload is bit-identical to the one it scattered, and
// returns the payload's length.
//
//	roundtrip [-count n] [-seed n]
var Roundtrip = spmd.Register("roundtrip", roundtrip)

func roundtrip(ctx context.Context, comm *spmd.Comm, args []string) ([]float64, error) {
	fs := flag.NewFlagSet("roundtrip", flag.ContinueOnError)
	count := fs.Int("count", 1024, "number of values per rank")
	seed := fs.Int64("seed", 1, "seed of the generated payload")
	if err := parseFlags(fs, args, 0); err != nil {
		return nil, err
	}
	if *count < 0 {
		return nil, errors.E(errors.Invalid, "roundtrip: -count must not be negative")
	}
	plan, err := shard.Contiguous(*count*comm.Size(), comm.Size())
	if err != nil {
		return nil, err
	}
	isRoot := comm.Proc().IsRoot(Coordinator)
	var payload []float64
	if isRoot {
		payload = Payload(*seed, plan.N)
	}
	local, err := spmd.Distribute(ctx, comm, plan, 1, payload, Coordinator)
	if err != nil {
		return nil, err
	}
	if local, err = kernel.Identity(local, nil); err != nil {
		return nil, err
	}
	gathered, err := spmd.Assemble(ctx, comm, plan, 1, local, Coordinator)
	if err != nil || !isRoot {
		return nil, err
	}
	if got, want := spmd.Fingerprint(gathered, nil), spmd.Fingerprint(payload, nil); got != want {
		return nil, errors.E(errors.Integrity, fmt.Sprintf(
			"roundtrip: gathered payload has fingerprint %x, scattered %x", got, want))
	}
	return []float64{float64(len(gathered))}, nil
}

// Payload returns n pseudo-random values determined by seed.
func Payload(seed int64, n int) []float64 {
	var vals []float64
	fuzz.NewWithSeed(seed).NilChance(0).NumElements(n, n).Fuzz(&vals)
	return vals
}
