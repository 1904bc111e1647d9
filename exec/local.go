// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package exec

import (
	"context"
	"net/http"

	"github.com/grailbio/base/status"
	"github.com/grailbio/spmd"
	"golang.org/x/sync/errgroup"
)

// localExecutor is an executor that runs each rank in-process in a
// separate goroutine. The ranks of a run share an in-memory
// rendezvous.
type localExecutor struct {
	sess *Session
}

func newLocalExecutor() *localExecutor {
	return &localExecutor{}
}

func (*localExecutor) Name() string {
	return "local"
}

func (l *localExecutor) Start(sess *Session) (shutdown func()) {
	l.sess = sess
	return
}

func (l *localExecutor) Run(ctx context.Context, inv invocation, group *status.Group) ([]rankResult, error) {
	prog, err := spmd.Lookup(inv.Program)
	if err != nil {
		return nil, err
	}
	rv := spmd.NewRendezvous(inv.Procs)
	rv.Timeout = inv.Timeout
	var (
		results = make([]rankResult, inv.Procs)
		g, gctx = errgroup.WithContext(ctx)
	)
	for rank := range results {
		proc, err := spmd.NewProc(rank, inv.Procs)
		if err != nil {
			return nil, err
		}
		comm := spmd.NewComm(proc, rv)
		task := startTask(group, rank)
		g.Go(func() (err error) {
			results[comm.Rank()], err = runRank(gctx, inv, prog, comm, task)
			return
		})
	}
	return results, g.Wait()
}

func (*localExecutor) HandleDebug(handler *http.ServeMux) {}
