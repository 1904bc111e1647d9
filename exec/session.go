// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package exec

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/grailbio/base/eventlog"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/status"
	"github.com/grailbio/bigmachine"
	"github.com/grailbio/spmd"
	"github.com/grailbio/spmd/internal/trace"
	"github.com/grailbio/spmd/stats"
)

// Session represents an SPMD execution session. A session owns an
// executor, which launches the ranks of each program run, and is
// valid for the run of the binary. A session can run multiple
// programs, one group of ranks per run.
//
// Programs must be registered with spmd.Register before Start is
// called, and must be registered in a deterministic order. Some
// executors launch additional copies of the binary to host ranks;
// these copies look up programs by name.
//
//	var Hello = spmd.Register("hello", func(ctx context.Context, comm *spmd.Comm, args []string) ([]float64, error) {
//		return []float64{float64(comm.Rank())}, nil
//	})
//
//	func main() {
//		sess := exec.Start(exec.Procs(4))
//		defer sess.Shutdown()
//		res, err := sess.Run(ctx, Hello)
//		...
//	}
type Session struct {
	context.Context
	index     int32
	shutdown  func()
	procs     int
	timeout   time.Duration
	executor  executor
	status    *status.Status
	eventer   eventlog.Eventer
	tracePath string

	mu    sync.Mutex
	nrun  uint64
	trace trace.T
}

func newSession() *Session {
	return &Session{
		Context: context.Background(),
		index:   atomic.AddInt32(&nextSessionIndex, 1) - 1,
		eventer: eventlog.Nop{},
	}
}

// An Option represents a session configuration parameter value.
type Option func(s *Session)

// Local configures a session with the local in-binary executor: each
// rank runs in its own goroutine, and collectives are completed in
// memory.
var Local Option = func(s *Session) {
	s.executor = newLocalExecutor()
}

// Bigmachine configures a session using the bigmachine executor
// configured with the provided system: each rank runs on its own
// machine. If any params are provided, they are applied to each
// machine allocated by the session.
func Bigmachine(system bigmachine.System, params ...bigmachine.Param) Option {
	return func(s *Session) {
		s.executor = newBigmachineExecutor(system, params...)
	}
}

// Procs configures the number of ranks in the group of each run.
func Procs(n int) Option {
	if n <= 0 {
		panic("exec.Procs: n <= 0")
	}
	return func(s *Session) {
		s.procs = n
	}
}

// Timeout bounds the time a rank waits for its peers in a single
// collective. A rank that waits longer fails with an error naming the
// ranks that have not arrived. By default ranks wait indefinitely.
func Timeout(d time.Duration) Option {
	return func(s *Session) {
		s.timeout = d
	}
}

// Status configures the session with a status object to which
// run statuses are reported.
func Status(status *status.Status) Option {
	return func(s *Session) {
		s.status = status
	}
}

// Eventer configures the session with an Eventer that will be used to log
// session events (for analytics).
func Eventer(e eventlog.Eventer) Option {
	return func(s *Session) {
		s.eventer = e
	}
}

// TracePath configures the path to which a trace event file for the session
// will be written on shutdown.
func TracePath(path string) Option {
	return func(s *Session) {
		s.tracePath = path
	}
}

// nextSessionIndex is the index of the next session that will be started by
// Start.
var nextSessionIndex int32

// Start creates and starts a new SPMD session, configuring it
// according to the provided options. If no executor is configured,
// the session uses the local executor. If no group size is
// configured, groups consist of a single rank.
func Start(options ...Option) *Session {
	s := newSession()
	for _, opt := range options {
		opt(s)
	}
	if s.procs == 0 {
		s.procs = 1
	}
	if s.executor == nil {
		s.executor = newLocalExecutor()
	}
	s.start()
	return s
}

func (s *Session) start() {
	s.shutdown = s.executor.Start(s)
	s.eventer.Event("spmd:sessionStart",
		"command", command(),
		"executorType", s.executor.Name(),
		"procs", s.procs,
		"timeout", s.timeout.String())
}

// Run runs the program prog on every rank of a new group of Procs()
// ranks, passing each rank the same args. Run returns when every
// rank has returned. If any rank fails, the remaining ranks are
// canceled and Run returns the first error.
func (s *Session) Run(ctx context.Context, prog *spmd.Program, args ...string) (*Result, error) {
	inv := invocation{
		Index:   atomic.AddUint64(&s.nrun, 1) - 1,
		Program: prog.Name(),
		Args:    args,
		Procs:   s.procs,
		Timeout: s.timeout,
	}
	var group *status.Group
	if s.status != nil {
		group = s.status.Groupf("run %s [%d]", inv.Program, inv.Index)
	}
	s.eventer.Event("spmd:runStart",
		"program", inv.Program,
		"index", inv.Index,
		"procs", inv.Procs)
	start := time.Now()
	ranks, err := s.executor.Run(ctx, inv, group)
	s.eventer.Event("spmd:runEnd",
		"program", inv.Program,
		"index", inv.Index,
		"duration", time.Since(start).Seconds(),
		"success", err == nil)
	s.mu.Lock()
	for _, r := range ranks {
		s.trace.Add(r.Events...)
	}
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	res := &Result{inv: inv, outputs: make([][]float64, len(ranks)), stats: make([]stats.Values, len(ranks))}
	for rank, r := range ranks {
		res.outputs[rank] = r.Out
		res.stats[rank] = r.Stats
	}
	return res, nil
}

// Must is a version of Run that panics if the program fails.
func (s *Session) Must(ctx context.Context, prog *spmd.Program, args ...string) *Result {
	res, err := s.Run(ctx, prog, args...)
	if err != nil {
		log.Panicf("exec.Run: %v", err)
	}
	return res
}

// Procs returns the number of ranks of each run.
func (s *Session) Procs() int {
	return s.procs
}

// Shutdown tears down resources associated with this session.
// It should be called when the session is discarded.
func (s *Session) Shutdown() {
	if s.shutdown != nil {
		s.shutdown()
	}
	if s.tracePath != "" {
		s.mu.Lock()
		writeTraceFile(&s.trace, s.tracePath)
		s.mu.Unlock()
	}
}

// Status returns the session's status aggregator.
func (s *Session) Status() *status.Status {
	return s.status
}

// HandleDebug registers the session's diagnostic handlers with
// handler.
func (s *Session) HandleDebug(handler *http.ServeMux) {
	s.executor.HandleDebug(handler)
	handler.HandleFunc("/debug/trace", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Add("content-type", "application/json; charset=utf-8")
		s.mu.Lock()
		defer s.mu.Unlock()
		if err := marshalTrace(&s.trace, w); err != nil {
			log.Error.Printf("exec.Session: /debug/trace: marshal: %v", err)
		}
	})
}

// A Result is the output of a program run: the output of each rank,
// and each rank's traffic counters.
type Result struct {
	inv     invocation
	outputs [][]float64
	stats   []stats.Values
}

// Program returns the name of the program that produced the result.
func (r *Result) Program() string { return r.inv.Program }

// Procs returns the number of ranks that produced the result.
func (r *Result) Procs() int { return len(r.outputs) }

// Root returns the output of rank 0, the conventional coordinator.
func (r *Result) Root() []float64 { return r.outputs[0] }

// Output returns the output of the provided rank.
func (r *Result) Output(rank int) []float64 { return r.outputs[rank] }

// RankStats returns the traffic counters of the provided rank.
func (r *Result) RankStats(rank int) stats.Values { return r.stats[rank] }

// Stats returns the traffic counters of all ranks, summed.
func (r *Result) Stats() stats.Values {
	vals := make(stats.Values)
	for _, v := range r.stats {
		vals.Merge(v)
	}
	return vals
}

func (r *Result) String() string {
	return fmt.Sprintf("%s[%d] on %d ranks", r.inv.Program, r.inv.Index, len(r.outputs))
}

// command returns the command line of the current process, with each
// argument single-quoted for sh.
func command() string {
	quoted := make([]string, len(os.Args))
	for i, arg := range os.Args {
		quoted[i] = "'" + strings.Replace(arg, "'", `'\''`, -1) + "'"
	}
	return strings.Join(quoted, " ")
}
