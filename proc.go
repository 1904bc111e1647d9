// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package spmd

import (
	"fmt"

	"github.com/grailbio/base/errors"
)

// Proc identifies the calling rank within a fixed group. A Proc is
// established once, before any collective is issued, and does not
// change for the lifetime of the group.
type Proc struct {
	rank, size int
}

// NewProc returns the process context for rank in a group of size
// ranks.
func NewProc(rank, size int) (Proc, error) {
	if size < 1 {
		return Proc{}, errors.E(errors.Invalid, fmt.Sprintf("spmd.NewProc: group size %d < 1", size))
	}
	if rank < 0 || rank >= size {
		return Proc{}, errors.E(errors.Invalid, fmt.Sprintf("spmd.NewProc: rank %d outside [0, %d)", rank, size))
	}
	return Proc{rank, size}, nil
}

// Rank returns the rank of the calling process: 0 <= Rank() < Size().
func (p Proc) Rank() int { return p.rank }

// Size returns the number of ranks in the group.
func (p Proc) Size() int { return p.size }

// IsRoot tells whether this process is the provided root.
func (p Proc) IsRoot(root int) bool { return p.rank == root }

func (p Proc) String() string {
	return fmt.Sprintf("rank %d/%d", p.rank, p.size)
}

// checkRoot returns an error if root is not a rank of the group.
func (p Proc) checkRoot(op string, root int) error {
	if root < 0 || root >= p.size {
		return errors.E(errors.Invalid, errors.Fatal,
			fmt.Sprintf("spmd.%s: root %d outside [0, %d)", op, root, p.size))
	}
	return nil
}
