// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package spmd

import (
	"encoding/binary"
	"math"

	"github.com/spaolacci/murmur3"
)

// Fingerprint returns a 64-bit murmur3 digest of the IEEE 754 bit
// patterns of values followed by blob. Two payloads with the same
// fingerprint are, for all practical purposes, byte-for-byte equal.
func Fingerprint(values []float64, blob []byte) uint64 {
	h := murmur3.New64()
	var b [8]byte
	for _, v := range values {
		binary.LittleEndian.PutUint64(b[:], math.Float64bits(v))
		h.Write(b[:])
	}
	h.Write(blob)
	return h.Sum64()
}
