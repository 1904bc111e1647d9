// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package spmdconfig creates an SPMD session from a shared
// configuration. It uses the configuration mechanism in package
// github.com/grailbio/base/config and reads a default profile from
// $HOME/.spmd/config. For example, the profile
//
//	param spmd (
//		procs = 8
//		timeout = "10m"
//		system = ec2system
//	)
//
// runs groups of eight ranks, one per EC2 instance.
package spmdconfig

import (
	"flag"
	"os"

	"github.com/grailbio/base/config"
	"github.com/grailbio/base/must"

	// Used to provide ec2system.System bigmachines.
	_ "github.com/grailbio/bigmachine/ec2system"
	"github.com/grailbio/spmd/exec"
)

// Path determines the location of the SPMD profile read by Parse.
var Path = os.ExpandEnv("$HOME/.spmd/config")

// Parse registers configuration flags and calls flag.Parse. It reads
// the SPMD configuration from Path and returns the session it
// configures, together with a function that shuts the session down.
// Parse panics if session creation fails.
func Parse() (sess *exec.Session, shutdown func()) {
	config.RegisterFlags("", Path)
	flag.Parse()
	must.Nil(config.ProcessFlags())
	config.Must("spmd", &sess)
	return sess, sess.Shutdown
}
