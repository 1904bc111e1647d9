// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

/*
	Package spmd implements a small substrate for single-program,
	multiple-data (SPMD) computations. A fixed group of ranks runs the
	same program; each rank partitions a dataset, exchanges data with
	its peers through collective operations (broadcast, scatter,
	gather, reduce, barrier), computes on its local shard, and the
	partial results are combined at a coordinator rank.

	A program is a function registered with Register:

		var Norm = spmd.Register("norm", func(ctx context.Context, comm *spmd.Comm, args []string) ([]float64, error) {
			...
		})

	Programs must be registered before exec.Start is called, in a
	deterministic order. This is satisfied when programs are global
	variables, as above. Some executors run every rank in a separate
	process (a copy of the binary); those processes locate programs by
	name.

	Collectives

	Every collective must be issued by every rank of the group, in the
	same order. Calls block until all ranks have reached the matching
	call. Collectives issued in a different order are detected when the
	kinds, roots, or counts disagree, and fail on every rank; a rank that
	never issues a collective leaves its peers blocked until their
	context is done.

	Reductions are evaluated in rank order (0, 1, ..., size-1) so that
	floating point results are reproducible for a given group size.

	Per-rank logging is best effort: output from different ranks is not
	ordered.
*/
package spmd
