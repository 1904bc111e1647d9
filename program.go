// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package spmd

import (
	"context"
	"fmt"
	"runtime"
	"runtime/debug"
	"sort"
	"sync"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
)

// Func is the body of an SPMD program. It is invoked once on every
// rank of the group with the same arguments, and returns the rank's
// output. By convention only the coordinator's output is meaningful.
type Func func(ctx context.Context, comm *Comm, args []string) ([]float64, error)

// A Program is a registered Func.
type Program struct {
	name     string
	location string
	fn       Func
}

var (
	mu       sync.Mutex
	programs = map[string]*Program{}
)

// Register registers fn as the program with the provided name.
// Register must be called before exec.Start, typically by
// initializing a package-level variable. Register panics if the name
// is taken.
func Register(name string, fn Func) *Program {
	if name == "" {
		panic("spmd.Register: empty program name")
	}
	location := "<unknown>"
	if _, file, line, ok := runtime.Caller(1); ok {
		location = fmt.Sprintf("%s:%d", file, line)
	}
	mu.Lock()
	defer mu.Unlock()
	if prev := programs[name]; prev != nil {
		log.Panicf("spmd.Register: program %s at %s already registered at %s", name, location, prev.location)
	}
	p := &Program{name: name, location: location, fn: fn}
	programs[name] = p
	return p
}

// Lookup returns the program registered with the provided name.
func Lookup(name string) (*Program, error) {
	mu.Lock()
	p := programs[name]
	mu.Unlock()
	if p == nil {
		return nil, errors.E(errors.NotExist, fmt.Sprintf("spmd: program %s is not registered", name))
	}
	return p, nil
}

// Locations returns the name and registration site of every
// registered program, sorted. Processes of the same binary that
// registered their programs deterministically return equal
// locations.
func Locations() []string {
	mu.Lock()
	locs := make([]string, 0, len(programs))
	for _, p := range programs {
		locs = append(locs, p.String())
	}
	mu.Unlock()
	sort.Strings(locs)
	return locs
}

// Name returns the program's registered name.
func (p *Program) Name() string { return p.name }

func (p *Program) String() string {
	return fmt.Sprintf("%s@%s", p.name, p.location)
}

// Run runs the program on the rank represented by comm. Panics in
// the program are recovered and returned as fatal errors.
func (p *Program) Run(ctx context.Context, comm *Comm, args []string) (out []float64, err error) {
	defer func() {
		if e := recover(); e != nil {
			err = errors.E(errors.Fatal,
				fmt.Errorf("program %s panicked on %s: %v\n%s", p.name, comm.Proc(), e, debug.Stack()))
		}
	}()
	return p.fn(ctx, comm, args)
}
