// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package example

import (
	"context"
	"fmt"
	"io/ioutil"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/spmd"
	"github.com/grailbio/spmd/exec"
	"github.com/grailbio/spmd/shard"
	"github.com/grailbio/testutil"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
)

func run(t *testing.T, procs int, prog *spmd.Program, args ...string) *exec.Result {
	t.Helper()
	sess := exec.Start(exec.Local, exec.Procs(procs), exec.Timeout(time.Minute))
	defer sess.Shutdown()
	res, err := sess.Run(context.Background(), prog, args...)
	if err != nil {
		t.Fatal(err)
	}
	return res
}

// runComms runs prog directly on a group of comms, so that the
// comms' traffic can be inspected after the run.
func runComms(t *testing.T, procs int, prog *spmd.Program, args ...string) ([]*spmd.Comm, []error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	var (
		rv    = spmd.NewRendezvous(procs)
		comms = make([]*spmd.Comm, procs)
		errs  = make([]error, procs)
		wg    sync.WaitGroup
	)
	for rank := range comms {
		proc, err := spmd.NewProc(rank, procs)
		assert.NoError(t, err)
		comms[rank] = spmd.NewComm(proc, rv)
		wg.Add(1)
		go func(comm *spmd.Comm) {
			defer wg.Done()
			_, errs[comm.Rank()] = prog.Run(ctx, comm, args)
		}(comms[rank])
	}
	wg.Wait()
	return comms, errs
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	assert.NoError(t, ioutil.WriteFile(path, []byte(content), 0644))
	return path
}

func identity(n int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i == j {
				b.WriteString("1 ")
			} else {
				b.WriteString("0 ")
			}
		}
		b.WriteString("\n")
	}
	return b.String()
}

func TestMatVecIdentity(t *testing.T) {
	dir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	var (
		vec = writeFile(t, dir, "vec.txt", "1 2 3 4\n")
		mat = writeFile(t, dir, "mat.txt", identity(4))
		out = filepath.Join(dir, "Result.txt")
	)
	for _, threads := range []string{"1", "3"} {
		res := run(t, 2, MatVec, "-out", out, "-threads", threads, vec, mat)
		expect.EQ(t, res.Root(), []float64{1, 2, 3, 4})
		if res.Output(1) != nil {
			t.Errorf("rank 1: got %v, want nil", res.Output(1))
		}
		p, err := ioutil.ReadFile(out)
		assert.NoError(t, err)
		expect.EQ(t, string(p), "1.000000 2.000000 3.000000 4.000000 ")
	}
}

func TestMatVec(t *testing.T) {
	dir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	var (
		vec = writeFile(t, dir, "vec.txt", "1 -1 2")
		mat = writeFile(t, dir, "mat.txt", "1 2 3\n4 5 6\n7 8 9\n")
	)
	for _, procs := range []int{1, 3} {
		res := run(t, procs, MatVec, vec, mat)
		expect.EQ(t, res.Root(), []float64{5, 11, 17})
	}
}

func TestMatVecPartitionError(t *testing.T) {
	dir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	var (
		vec = writeFile(t, dir, "vec.txt", strings.Repeat("1 ", 10))
		mat = writeFile(t, dir, "mat.txt", identity(10))
	)
	comms, errs := runComms(t, 3, MatVec, vec, mat)
	for rank, err := range errs {
		if !shard.IsPartitionError(err) {
			t.Errorf("rank %d: got %v, want partition error", rank, err)
		}
		if !errors.Is(errors.Invalid, err) {
			t.Errorf("rank %d: got %v, want invalid error", rank, err)
		}
		// Only the dimension has been exchanged.
		stats := comms[rank].Stats()
		if got, want := stats["broadcast"], int64(1); got != want {
			t.Errorf("rank %d: got %v broadcasts, want %v", rank, got, want)
		}
		if got, want := stats["scatter"], int64(0); got != want {
			t.Errorf("rank %d: got %v scatters, want %v", rank, got, want)
		}
	}
}

func TestMatVecShortMatrix(t *testing.T) {
	dir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	var (
		vec = writeFile(t, dir, "vec.txt", "1 2")
		mat = writeFile(t, dir, "mat.txt", "1 0 0")
	)
	sess := exec.Start(exec.Local, exec.Procs(2))
	defer sess.Shutdown()
	_, err := sess.Run(context.Background(), MatVec, vec, mat)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "too few values") {
		t.Errorf("got %v, want a short matrix error", err)
	}
}

func TestRangeSum(t *testing.T) {
	for _, c := range []struct {
		upper string
		procs int
		want  float64
	}{
		{"10", 4, 55},
		{"0", 1, 0},
		{"0", 3, 0},
		{"0", 8, 0},
		{"1000", 7, 500500},
	} {
		res := run(t, c.procs, RangeSum, c.upper)
		root := res.Root()
		if got, want := root[0], c.want; got != want {
			t.Errorf("upper=%s procs=%d: got %v, want %v", c.upper, c.procs, got, want)
		}
		if root[1] < 0 {
			t.Errorf("negative elapsed time %v", root[1])
		}
	}
}

func TestRangeSumUsage(t *testing.T) {
	sess := exec.Start(exec.Local, exec.Procs(2))
	defer sess.Shutdown()
	for _, args := range [][]string{nil, {"ten"}, {"1", "2"}} {
		if _, err := sess.Run(context.Background(), RangeSum, args...); !errors.Is(errors.Invalid, err) {
			t.Errorf("%v: got %v, want invalid error", args, err)
		}
	}
}

func TestTimingMax(t *testing.T) {
	const procs = 4
	res := run(t, procs, TimingMax, "-iterations", "1000")
	var slowest float64
	for rank := 0; rank < procs; rank++ {
		if local := res.Output(rank)[0]; local > slowest {
			slowest = local
		}
	}
	if got, want := len(res.Root()), 2; got != want {
		t.Fatalf("got %v, want %v", got, want)
	}
	if got, want := res.Root()[1], slowest; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestBcastRecord(t *testing.T) {
	const procs = 3
	res := run(t, procs, BcastRecord, "7", "3.5", "-0.25")
	for rank := 0; rank < procs; rank++ {
		expect.EQ(t, res.Output(rank), []float64{7, 3.5, -0.25})
	}
}

func TestRoundtrip(t *testing.T) {
	for procs := 1; procs <= 4; procs++ {
		for _, count := range []int{0, 1, 100} {
			res := run(t, procs, Roundtrip, "-count", fmt.Sprint(count), "-seed", fmt.Sprint(procs))
			expect.EQ(t, res.Root(), []float64{float64(count * procs)})
		}
	}
}

func TestPayload(t *testing.T) {
	a, b := Payload(1, 10), Payload(1, 10)
	expect.EQ(t, a, b)
	expect.EQ(t, len(Payload(2, 0)), 0)
}
