// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package exec

import (
	"context"
	"encoding/gob"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/retry"
	"github.com/grailbio/base/status"
	"github.com/grailbio/bigmachine"
	"github.com/grailbio/spmd"
	"golang.org/x/sync/errgroup"
)

// BigmachineStatusGroup is the status group under which machine
// status is reported.
const BigmachineStatusGroup = "bigmachine"

// retryPolicy is the retry policy used for collective exchanges that
// fail with network errors.
var retryPolicy = retry.Backoff(time.Second, 5*time.Second, 1.5)

func init() {
	gob.Register(&rankService{})
}

// bigmachineExecutor is an executor that runs each rank on its own
// bigmachine machine. The collective rounds of a run are completed by
// a rendezvous hosted on rank 0's machine; every rank, rank 0
// included, reaches it through RPC.
//
// Machines are started on demand and reused across runs.
type bigmachineExecutor struct {
	system bigmachine.System
	params []bigmachine.Param

	sess   *Session
	b      *bigmachine.B
	status *status.Group

	mu       sync.Mutex
	machines []*bigmachine.Machine
}

func newBigmachineExecutor(system bigmachine.System, params ...bigmachine.Param) *bigmachineExecutor {
	return &bigmachineExecutor{system: system, params: params}
}

func (b *bigmachineExecutor) Name() string {
	return "bigmachine:" + b.system.Name()
}

// Start starts the bigmachine. Machines are allocated by the
// first run that needs them.
func (b *bigmachineExecutor) Start(sess *Session) (shutdown func()) {
	b.sess = sess
	b.b = bigmachine.Start(b.system)
	if status := sess.Status(); status != nil {
		b.status = status.Group(BigmachineStatusGroup)
	}
	return b.b.Shutdown
}

func (b *bigmachineExecutor) Run(ctx context.Context, inv invocation, group *status.Group) ([]rankResult, error) {
	if _, err := spmd.Lookup(inv.Program); err != nil {
		return nil, err
	}
	machines, err := b.allocate(ctx, inv.Procs)
	if err != nil {
		return nil, err
	}
	hub := machines[0]
	if err := hub.RetryCall(ctx, "Rank.Open", inv, nil); err != nil {
		return nil, err
	}
	defer func() {
		if err := hub.RetryCall(context.Background(), "Rank.Close", inv.Index, nil); err != nil {
			log.Error.Printf("%s: close rendezvous on %s: %v", inv, hub.Addr, err)
		}
	}()
	var (
		results = make([]rankResult, inv.Procs)
		g, gctx = errgroup.WithContext(ctx)
	)
	for rank, m := range machines {
		rank, m := rank, m
		task := startTask(group, rank)
		if task != nil {
			task.Title(fmt.Sprintf("rank %d on %s", rank, m.Addr))
		}
		g.Go(func() error {
			req := runRequest{Invocation: inv, Rank: rank, Hub: hub.Addr}
			// Runs are not idempotent; they are not retried.
			err := m.Call(gctx, "Rank.Run", req, &results[rank])
			if task != nil {
				if err != nil {
					task.Printf("error: %v", err)
				} else {
					task.Printf("done: %s", results[rank].Stats)
				}
				task.Done()
			}
			if err != nil {
				return errors.E(fmt.Sprintf("%s: rank %d on %s", inv, rank, m.Addr), err)
			}
			return nil
		})
	}
	return results, g.Wait()
}

// allocate returns n running machines, starting new ones as needed.
func (b *bigmachineExecutor) allocate(ctx context.Context, n int) ([]*bigmachine.Machine, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	live := b.machines[:0]
	for _, m := range b.machines {
		if m.Err() == nil {
			live = append(live, m)
		} else {
			log.Printf("dropping failed machine %s: %v", m.Addr, m.Err())
		}
	}
	b.machines = live
	if need := n - len(b.machines); need > 0 {
		started, err := startMachines(ctx, b.b, b.status, need, b.params...)
		if err != nil {
			return nil, err
		}
		b.machines = append(b.machines, started...)
	}
	return b.machines[:n], nil
}

func (b *bigmachineExecutor) HandleDebug(handler *http.ServeMux) {
	b.b.HandleDebug(handler)
}

// startMachines starts n machines on b, installing a rank service on
// each of them. It returns once all of them are in bigmachine.Running
// state and are verified to have registered the same programs as the
// driver. A group is only useful if every one of its ranks runs, so
// startMachines fails if any machine fails.
func startMachines(ctx context.Context, b *bigmachine.B, group *status.Group, n int, params ...bigmachine.Param) ([]*bigmachine.Machine, error) {
	params = append([]bigmachine.Param{bigmachine.Services{"Rank": &rankService{}}}, params...)
	machines, err := b.Start(ctx, n, params...)
	if err != nil {
		return nil, err
	}
	want := spmd.Locations()
	g, ctx := errgroup.WithContext(ctx)
	for _, m := range machines {
		m := m
		var task *status.Task
		if group != nil {
			task = group.Start()
			task.Print("waiting for machine to boot")
		}
		g.Go(func() error {
			<-m.Wait(bigmachine.Running)
			if err := m.Err(); err != nil {
				if task != nil {
					task.Printf("failed to start: %v", err)
					task.Done()
				}
				return errors.E(fmt.Sprintf("machine %s failed to start", m.Addr), err)
			}
			var got []string
			if err := m.RetryCall(ctx, "Rank.Programs", struct{}{}, &got); err != nil {
				return errors.E(fmt.Sprintf("machine %s: verify programs", m.Addr), err)
			}
			if diff := locationsDiff(want, got); len(diff) > 0 {
				for _, edit := range diff {
					log.Printf("[programsdiff] %s", edit)
				}
				return errors.E(errors.Invalid, errors.Fatal, fmt.Sprintf(
					"machine %s has different programs; check for local or non-deterministic program registration", m.Addr))
			}
			if task != nil {
				task.Title(m.Addr)
				task.Print("running")
			}
			log.Printf("machine %v is ready", m.Addr)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		for _, m := range machines {
			m.Cancel()
		}
		return nil, err
	}
	return machines, nil
}

// locationsDiff returns the program locations present in only one of
// a and b, prefixed with "-" or "+" respectively. Both must be sorted.
func locationsDiff(a, b []string) []string {
	var diff []string
	for len(a) > 0 || len(b) > 0 {
		switch {
		case len(b) == 0 || len(a) > 0 && a[0] < b[0]:
			diff = append(diff, "- "+a[0])
			a = a[1:]
		case len(a) == 0 || b[0] < a[0]:
			diff = append(diff, "+ "+b[0])
			b = b[1:]
		default:
			a, b = a[1:], b[1:]
		}
	}
	return diff
}

// runRequest is the argument of Rank.Run.
type runRequest struct {
	Invocation invocation
	Rank       int
	// Hub is the address of the machine that hosts the run's
	// rendezvous.
	Hub string
}

// exchangeRequest is the argument of Rank.Exchange.
type exchangeRequest struct {
	Index   uint64
	Request *spmd.Request
}

// rankService is the bigmachine service that runs ranks and, on the
// machine hosting rank 0, completes the collective rounds of a run.
type rankService struct {
	// Exported just satisfies gob's persnickety nature: we need at least
	// one exported field.
	Exported struct{}

	b *bigmachine.B

	mu   sync.Mutex
	hubs map[uint64]*spmd.Rendezvous
}

func (s *rankService) Init(b *bigmachine.B) error {
	s.b = b
	s.hubs = make(map[uint64]*spmd.Rendezvous)
	return nil
}

// Programs returns the locations of the programs registered in this
// machine's binary.
func (s *rankService) Programs(ctx context.Context, _ struct{}, locs *[]string) error {
	*locs = spmd.Locations()
	return nil
}

// Open creates the rendezvous of a run. Open is idempotent.
func (s *rankService) Open(ctx context.Context, inv invocation, _ *struct{}) error {
	if inv.Procs < 1 {
		return errors.E(errors.Invalid, fmt.Sprintf("%s: group size %d < 1", inv, inv.Procs))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hubs[inv.Index] == nil {
		rv := spmd.NewRendezvous(inv.Procs)
		rv.Timeout = inv.Timeout
		s.hubs[inv.Index] = rv
	}
	return nil
}

// Close discards the rendezvous of a run.
func (s *rankService) Close(ctx context.Context, index uint64, _ *struct{}) error {
	s.mu.Lock()
	delete(s.hubs, index)
	s.mu.Unlock()
	return nil
}

// Exchange submits a rank's request to the rendezvous of a run and
// returns the rank's reply once the round completes.
func (s *rankService) Exchange(ctx context.Context, req exchangeRequest, reply *spmd.Reply) error {
	s.mu.Lock()
	hub := s.hubs[req.Index]
	s.mu.Unlock()
	if hub == nil {
		return errors.E(errors.NotExist, fmt.Sprintf("run %d has no rendezvous on this machine", req.Index))
	}
	r, err := hub.Exchange(ctx, req.Request)
	if err != nil {
		return err
	}
	*reply = *r
	return nil
}

// Run runs a rank of a program. The rank's collectives are carried to
// the rendezvous at req.Hub.
func (s *rankService) Run(ctx context.Context, req runRequest, reply *rankResult) error {
	inv := req.Invocation
	prog, err := spmd.Lookup(inv.Program)
	if err != nil {
		return err
	}
	proc, err := spmd.NewProc(req.Rank, inv.Procs)
	if err != nil {
		return err
	}
	hub, err := s.b.Dial(ctx, req.Hub)
	if err != nil {
		return err
	}
	comm := spmd.NewComm(proc, &machineExchanger{machine: hub, index: inv.Index})
	*reply, err = runRank(ctx, inv, prog, comm, nil)
	return err
}

// machineExchanger is an spmd.Exchanger that carries collectives to
// a rendezvous on a remote machine. Exchanges that fail with network
// errors are resubmitted; the rendezvous treats a resubmitted request
// as joining its original submission.
type machineExchanger struct {
	machine *bigmachine.Machine
	index   uint64
}

func (x *machineExchanger) Exchange(ctx context.Context, req *spmd.Request) (*spmd.Reply, error) {
	for retries := 0; ; retries++ {
		var reply spmd.Reply
		err := x.machine.Call(ctx, "Rank.Exchange", exchangeRequest{x.index, req}, &reply)
		if err == nil {
			return &reply, nil
		}
		if !errors.Is(errors.Net, err) && !errors.IsTemporary(err) {
			return nil, err
		}
		log.Error.Printf("%s: exchange with %s: error (%d): %v", req, x.machine.Addr, retries, err)
		if err := retry.Wait(ctx, retryPolicy, retries); err != nil {
			return nil, err
		}
	}
}
