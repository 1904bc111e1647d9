// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package spmd

import (
	"context"
	"strings"
	"testing"

	"github.com/grailbio/base/errors"
)

var (
	rankProgram = Register("spmd.test.rank", func(ctx context.Context, comm *Comm, args []string) ([]float64, error) {
		return []float64{float64(comm.Rank()), float64(len(args))}, nil
	})
	panicProgram = Register("spmd.test.panic", func(ctx context.Context, comm *Comm, args []string) ([]float64, error) {
		panic("boom")
	})
)

func TestLookup(t *testing.T) {
	p, err := Lookup("spmd.test.rank")
	if err != nil {
		t.Fatal(err)
	}
	if p != rankProgram {
		t.Errorf("got %v, want %v", p, rankProgram)
	}
	if _, err := Lookup("spmd.test.nonexistent"); !errors.Is(errors.NotExist, err) {
		t.Errorf("got %v, want not exist error", err)
	}
	var found bool
	for _, loc := range Locations() {
		if strings.HasPrefix(loc, "spmd.test.rank@") && strings.Contains(loc, "program_test.go") {
			found = true
		}
	}
	if !found {
		t.Errorf("spmd.test.rank missing from %v", Locations())
	}
}

func TestRegisterDuplicate(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic")
		}
	}()
	Register("spmd.test.rank", nil)
}

func TestProgramRun(t *testing.T) {
	proc, _ := NewProc(0, 1)
	comm := NewComm(proc, NewRendezvous(1))
	out, err := rankProgram.Run(context.Background(), comm, []string{"a", "b"})
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 2 || out[0] != 0 || out[1] != 2 {
		t.Errorf("got %v", out)
	}
	_, err = panicProgram.Run(context.Background(), comm, nil)
	if err == nil || !strings.Contains(err.Error(), "boom") {
		t.Errorf("got %v, want panic error", err)
	}
	if errors.Recover(err).Severity != errors.Fatal {
		t.Errorf("got %v, want fatal error", err)
	}
}
