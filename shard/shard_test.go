// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package shard

import (
	"testing"

	"github.com/grailbio/base/errors"
)

func TestContiguousPartitions(t *testing.T) {
	for p := 1; p <= 8; p++ {
		for n := 0; n <= 64; n += p {
			plan, err := Contiguous(n, p)
			if err != nil {
				t.Fatalf("Contiguous(%d, %d): %v", n, p, err)
			}
			owned := make([]int, n)
			for r, s := range plan.Shards() {
				if got, want := s.Length, n/p; got != want {
					t.Errorf("n=%d p=%d rank %d: got length %v, want %v", n, p, r, got, want)
				}
				for i := s.Offset; i < s.End(); i++ {
					owned[i]++
					if got, want := plan.Owner(i), r; got != want {
						t.Errorf("n=%d p=%d: owner of %d: got %v, want %v", n, p, i, got, want)
					}
				}
			}
			for i, count := range owned {
				if count != 1 {
					t.Errorf("n=%d p=%d: index %d owned %d times", n, p, i, count)
				}
			}
		}
	}
}

func TestContiguousPartitionError(t *testing.T) {
	_, err := Contiguous(10, 3)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(errors.Invalid, err) {
		t.Errorf("expected invalid error, got %v", err)
	}
	if !IsPartitionError(err) {
		t.Errorf("expected partition error, got %v", err)
	}
	if _, err := Contiguous(10, 0); err == nil || IsPartitionError(err) {
		t.Errorf("unexpected error %v", err)
	}
	if _, err := Contiguous(-1, 1); err == nil || IsPartitionError(err) {
		t.Errorf("unexpected error %v", err)
	}
}

func TestCyclic(t *testing.T) {
	x, err := CyclicThrough(10, 4, 1)
	if err != nil {
		t.Fatal(err)
	}
	var got []int
	x.Each(func(i int) { got = append(got, i) })
	if want := []int{1, 5, 9}; !equal(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := x.Len(), 3; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	// Iterators are restartable.
	for k := 0; k < 2; k++ {
		var walked []int
		it := x.Iter()
		for i, ok := it.Next(); ok; i, ok = it.Next() {
			walked = append(walked, i)
		}
		if !equal(walked, got) {
			t.Errorf("got %v, want %v", walked, got)
		}
	}
	if _, err := Cyclic(10, 4, 4); err == nil {
		t.Error("expected error")
	}
	if _, err := Cyclic(10, 0, 0); err == nil {
		t.Error("expected error")
	}
}

func TestCyclicCovers(t *testing.T) {
	for p := 1; p <= 7; p++ {
		for n := 0; n < 40; n++ {
			seen := make([]int, n)
			total := 0
			for r := 0; r < p; r++ {
				x, err := Cyclic(n, p, r)
				if err != nil {
					t.Fatal(err)
				}
				total += x.Len()
				x.Each(func(i int) { seen[i]++ })
			}
			if total != n {
				t.Errorf("n=%d p=%d: got %d indices", n, p, total)
			}
			for i, count := range seen {
				if count != 1 {
					t.Errorf("n=%d p=%d: index %d seen %d times", n, p, i, count)
				}
			}
		}
	}
}

func TestCyclicEmpty(t *testing.T) {
	x, err := CyclicThrough(0, 3, 2)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := x.Len(), 0; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if _, ok := x.Iter().Next(); ok {
		t.Error("expected empty sequence")
	}
}

func equal(x, y []int) bool {
	if len(x) != len(y) {
		return false
	}
	for i := range x {
		if x[i] != y[i] {
			return false
		}
	}
	return true
}
