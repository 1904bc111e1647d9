// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package dataio loads vectors and matrices from, and writes result
// vectors to, text files. Values are decimal doubles separated by
// white space; matrices are stored in row-major order. Paths are
// resolved through github.com/grailbio/base/file, so that any
// registered file implementation (e.g., s3://) may be used.
package dataio

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
)

// CountError is returned when a file holds a different number of
// values than required.
type CountError struct {
	Path      string
	Want, Got int
}

func (e *CountError) Error() string {
	what := "too few"
	if e.Long() {
		what = "too many"
	}
	return fmt.Sprintf("%s: %s values: got %d, want %d", e.Path, what, e.Got, e.Want)
}

// Short tells whether the file held fewer values than required.
func (e *CountError) Short() bool { return e.Got < e.Want }

// Long tells whether the file held more values than required.
func (e *CountError) Long() bool { return e.Got > e.Want }

// AsCountError returns the *CountError that err is or wraps, if any.
func AsCountError(err error) (*CountError, bool) {
	for err != nil {
		switch e := err.(type) {
		case *CountError:
			return e, true
		case *errors.Error:
			err = e.Err
		default:
			return nil, false
		}
	}
	return nil, false
}

// Decode parses every white-space separated value in r.
func Decode(r io.Reader) ([]float64, error) {
	var (
		scan = bufio.NewScanner(r)
		vals []float64
	)
	scan.Split(bufio.ScanWords)
	for scan.Scan() {
		v, err := strconv.ParseFloat(scan.Text(), 64)
		if err != nil {
			return nil, errors.E(errors.Invalid, fmt.Sprintf("value %d", len(vals)), err)
		}
		vals = append(vals, v)
	}
	if err := scan.Err(); err != nil {
		return nil, err
	}
	return vals, nil
}

// Encode writes vals to w on a single line, each value formatted with
// six decimals and followed by a single space.
func Encode(w io.Writer, vals []float64) error {
	bw := bufio.NewWriter(w)
	for _, v := range vals {
		bw.WriteString(format(v))
		bw.WriteByte(' ')
	}
	return bw.Flush()
}

func format(v float64) string {
	switch {
	case math.IsNaN(v):
		return "nan"
	case math.IsInf(v, 1):
		return "inf"
	case math.IsInf(v, -1):
		return "-inf"
	}
	return strconv.FormatFloat(v, 'f', 6, 64)
}

func load(ctx context.Context, path string) (vals []float64, err error) {
	f, err := file.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := f.Close(ctx); cerr != nil && err == nil {
			err = cerr
		}
	}()
	vals, err = Decode(f.Reader(ctx))
	if err != nil {
		err = errors.E(fmt.Sprintf("dataio: %s", path), err)
	}
	return
}

// Count returns the number of values stored in the file at path.
func Count(ctx context.Context, path string) (int, error) {
	vals, err := load(ctx, path)
	return len(vals), err
}

// ReadVector reads every value stored in the file at path.
func ReadVector(ctx context.Context, path string) ([]float64, error) {
	return load(ctx, path)
}

// ReadMatrix reads an n x n matrix, stored in row-major order, from
// the file at path. Files holding fewer or more than n*n values are
// rejected with an errors.Invalid error wrapping a *CountError.
func ReadMatrix(ctx context.Context, path string, n int) ([]float64, error) {
	vals, err := load(ctx, path)
	if err != nil {
		return nil, err
	}
	if want := n * n; len(vals) != want {
		return nil, errors.E(errors.Invalid, "dataio.ReadMatrix", &CountError{Path: path, Want: want, Got: len(vals)})
	}
	return vals, nil
}

// WriteVector writes vals to the file at path, replacing any existing
// file. The file is committed only if every write succeeds.
func WriteVector(ctx context.Context, path string, vals []float64) error {
	f, err := file.Create(ctx, path)
	if err != nil {
		return err
	}
	if err := Encode(f.Writer(ctx), vals); err != nil {
		f.Discard(ctx)
		return errors.E(fmt.Sprintf("dataio.WriteVector: %s", path), err)
	}
	return f.Close(ctx)
}
