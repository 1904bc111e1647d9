// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package exec

import (
	"time"

	"github.com/grailbio/base/config"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/bigmachine"
)

func init() {
	config.Register("spmd", func(inst *config.Constructor) {
		sess := newSession()
		inst.IntVar(&sess.procs, "procs", 1, "number of ranks in the group of each run")
		var timeout string
		inst.StringVar(&timeout, "timeout", "", "maximum time a rank waits for its peers in a collective, e.g., 5m; empty waits indefinitely")
		var system bigmachine.System
		inst.InstanceVar(&system, "system", "", "the bigmachine system used to run ranks; ranks run in-process if empty")
		inst.StringVar(&sess.tracePath, "trace", "", "path to which a trace of the session is written on shutdown")
		inst.Doc = "spmd configures the SPMD runtime"
		inst.New = func() (interface{}, error) {
			if sess.procs < 1 {
				return nil, errors.E(errors.Invalid, "spmd: procs must be positive")
			}
			if timeout != "" {
				d, err := time.ParseDuration(timeout)
				if err != nil {
					return nil, errors.E(errors.Invalid, "spmd: timeout", err)
				}
				sess.timeout = d
			}
			if system != nil {
				sess.executor = newBigmachineExecutor(system)
			} else {
				sess.executor = newLocalExecutor()
			}
			sess.start()
			return sess, nil
		}
	})
}
