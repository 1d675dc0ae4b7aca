// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

// Package results keeps the records of a finished run so they can be saved and shown later.
package results

import (
	"encoding/gob"
	"errors"
	"io"
	"slices"
	"time"

	"github.com/matt-FFFFFF/dwqc/internal/job"
)

var (
	// ErrWriteGob is returned when writing the results to a binary format fails.
	ErrWriteGob = errors.New("failed to write binary results")
	// ErrReadGob is returned when a results file cannot be decoded.
	ErrReadGob = errors.New("failed to read binary results")
)

// Record is what is kept of one completed job.
type Record struct {
	JobID   string
	Command string
	Worker  string
	Status  int
	Runtime time.Duration
	Output  string
}

// FromResult converts a worker's result.
func FromResult(r job.Result) *Record {
	return &Record{
		JobID:   r.JobID,
		Command: r.Outcome.Body.Command,
		Worker:  r.Outcome.Worker,
		Status:  r.Outcome.Status,
		Runtime: time.Duration(r.Outcome.Runtime * float64(time.Second)),
		Output:  r.Output(),
	}
}

// Records is the ordered list of records of a run.
type Records []*Record

// HasError reports whether any command exited non-zero.
func (r Records) HasError() bool {
	return slices.ContainsFunc(r, func(rec *Record) bool { return rec.Status != 0 })
}

// Failed returns the number of commands that exited non-zero.
func (r Records) Failed() int {
	n := 0

	for _, rec := range r {
		if rec.Status != 0 {
			n++
		}
	}

	return n
}

// WriteBinary writes the records with encoding/gob.
func (r Records) WriteBinary(w io.Writer) error {
	enc := gob.NewEncoder(w)
	if err := enc.Encode(r); err != nil {
		return errors.Join(ErrWriteGob, err)
	}

	return nil
}

// ReadBinary reads records written by WriteBinary.
func ReadBinary(rd io.Reader) (Records, error) {
	var r Records

	dec := gob.NewDecoder(rd)
	if err := dec.Decode(&r); err != nil {
		return nil, errors.Join(ErrReadGob, err)
	}

	return r, nil
}
