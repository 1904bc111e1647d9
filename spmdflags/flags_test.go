// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package spmdflags_test

import (
	"flag"
	"testing"
	"time"

	"github.com/grailbio/spmd/spmdflags"
)

func TestProvider(t *testing.T) {
	local := &spmdflags.Local{}
	if got, want := local.Name(), "local"; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	internal := &spmdflags.Internal{}
	if got, want := internal.Name(), "internal"; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	ec2 := &spmdflags.EC2{}
	if got, want := ec2.Name(), "ec2"; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if err := ec2.Set("x=y"); err == nil {
		t.Errorf("expected an error")
	}
	if err := ec2.Set("dataspace=x"); err == nil {
		t.Errorf("expected an error")
	}
	for _, opt := range []string{"dataspace=122", "rootsize=50", "instance=m5.xlarge", "ondemand"} {
		if err := ec2.Set(opt); err != nil {
			t.Errorf("%s: unexpected error: %v", opt, err)
		}
	}
	if got, want := ec2.System.Dataspace, uint(122); got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := ec2.System.Diskspace, uint(50); got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := ec2.System.InstanceType, "m5.xlarge"; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if !ec2.System.OnDemand {
		t.Error("expected on-demand instances")
	}
}

func TestFlags(t *testing.T) {
	tf := &spmdflags.Flags{}
	if err := tf.System.Set("local"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := tf.System.Set("local:an=option"); err == nil {
		t.Errorf("expected an error")
	}
	tf = &spmdflags.Flags{}
	if err := tf.System.Set("internal:an=option"); err == nil {
		t.Errorf("expected an error")
	}
	tf = &spmdflags.Flags{}
	if err := tf.System.Set("ec2:an=option"); err == nil {
		t.Errorf("expected an error")
	}
	if err := tf.System.Set("ec2:dataspace=200,rootsize=10"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if got, want := tf.System.String(), "ec2:dataspace=200,rootsize=10"; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestProfile(t *testing.T) {
	spmdflags.RegisterSystemProfile("spmdflags-test", "ec2:instance=c5.large")
	tf := &spmdflags.Flags{}
	if err := tf.System.Set("spmdflags-test:ondemand=true"); err != nil {
		t.Fatal(err)
	}
	ec2, ok := tf.System.Provider.(*spmdflags.EC2)
	if !ok {
		t.Fatalf("got %T, want *EC2", tf.System.Provider)
	}
	if got, want := ec2.System.InstanceType, "c5.large"; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if !ec2.System.OnDemand {
		t.Error("expected on-demand instances")
	}
}

func TestRegisterFlags(t *testing.T) {
	var (
		fs = flag.NewFlagSet("test", flag.ContinueOnError)
		tf spmdflags.Flags
	)
	spmdflags.RegisterFlags(fs, &tf, "spmd-")
	if err := fs.Parse([]string{"-spmd-np=6", "-spmd-timeout=2m", "-spmd-system=local"}); err != nil {
		t.Fatal(err)
	}
	if got, want := tf.Procs, 6; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := tf.Timeout, 2*time.Minute; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if !tf.System.Specified {
		t.Error("system not marked as specified")
	}
	options, err := tf.ExecOptions()
	if err != nil {
		t.Fatal(err)
	}
	// Status, system, group size and timeout.
	if got, want := len(options), 4; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	tf.Procs = -1
	if _, err := tf.ExecOptions(); err == nil {
		t.Error("expected an error")
	}
}
