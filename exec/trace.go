// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package exec

import (
	"context"
	"io"

	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/spmd/internal/trace"
)

// marshalTrace writes t in the Chrome tracing format, which may be
// visualized using chrome://tracing. Each rank is rendered as a
// process; events are ordered by rank and then by time.
func marshalTrace(t *trace.T, w io.Writer) error {
	out := trace.T{Events: append([]trace.Event(nil), t.Events...)}
	out.Sort()
	return out.Encode(w)
}

// writeTraceFile writes t to path. Errors are logged, not returned:
// the trace is a diagnostic.
func writeTraceFile(t *trace.T, path string) {
	ctx := context.Background()
	f, err := file.Create(ctx, path)
	if err != nil {
		log.Error.Printf("error creating trace file at %q: %v", path, err)
		return
	}
	if err := marshalTrace(t, f.Writer(ctx)); err != nil {
		log.Error.Printf("error marshaling to trace file at %q: %v", path, err)
		f.Discard(ctx)
		return
	}
	if err := f.Close(ctx); err != nil {
		log.Error.Printf("error closing trace file at %q: %v", path, err)
	}
}
