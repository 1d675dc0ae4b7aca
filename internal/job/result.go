// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package job

import (
	"encoding/json"
	"errors"
	"fmt"
)

const (
	keyJobID   = "job_id"
	keyState   = "state"
	keyResult  = "result"
	keyStatus  = "status"
	keyRuntime = "runtime"
	keyWorker  = "worker"
	keyBody    = "body"
	keyOutput  = "output"
)

// Result is a worker's answer for one job.
type Result struct {
	JobID   string
	State   string
	Outcome Outcome
	Extra   map[string]json.RawMessage
}

// Outcome is the "result" member of a Result.
type Outcome struct {
	Status  int     // exit status of the command
	Runtime float64 // seconds
	Worker  string
	Body    CommandBody // echo of what was dispatched
	Extra   map[string]json.RawMessage
}

// DecodeResult parses a result payload fetched from an inbox.
// job_id, result and result.status are required; anything else may be missing.
func DecodeResult(data []byte) (Result, error) {
	var r Result
	if err := json.Unmarshal(data, &r); err != nil {
		if errors.Is(err, ErrMalformedPayload) {
			return Result{}, err
		}

		return Result{}, errors.Join(ErrMalformedPayload, err)
	}

	return r, nil
}

// EncodeResult serialises r. Workers and tests use it; the client only decodes.
func EncodeResult(r Result) ([]byte, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, errors.Join(ErrMalformedPayload, err)
	}

	return data, nil
}

// Failed reports whether the command exited non-zero.
func (r Result) Failed() bool {
	return r.Outcome.Status != 0
}

// Output returns the command output, or "" when it is absent or not a string.
func (r Result) Output() string {
	raw, ok := r.Outcome.Extra[keyOutput]
	if !ok {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}

	return s
}

// MarshalJSON implements json.Marshaler.
func (r Result) MarshalJSON() ([]byte, error) {
	fields := make(map[string]any, len(r.Extra)+3)
	for k, v := range r.Extra {
		fields[k] = v
	}

	fields[keyJobID] = r.JobID
	fields[keyState] = r.State
	fields[keyResult] = r.Outcome

	return json.Marshal(fields)
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *Result) UnmarshalJSON(data []byte) error {
	fields, err := splitObject(data)
	if err != nil {
		return err
	}

	var out Result

	if err := takeRequired(fields, keyJobID, &out.JobID); err != nil {
		return err
	}

	if out.JobID == "" {
		return fmt.Errorf("%w: empty %q", ErrMalformedPayload, keyJobID)
	}

	if _, err := takeOptional(fields, keyState, &out.State); err != nil {
		return err
	}

	if err := takeRequired(fields, keyResult, &out.Outcome); err != nil {
		return err
	}

	out.Extra = nonEmpty(fields)
	*r = out

	return nil
}

// MarshalJSON implements json.Marshaler.
func (o Outcome) MarshalJSON() ([]byte, error) {
	fields := make(map[string]any, len(o.Extra)+4)
	for k, v := range o.Extra {
		fields[k] = v
	}

	fields[keyStatus] = o.Status
	fields[keyRuntime] = o.Runtime
	fields[keyWorker] = o.Worker
	fields[keyBody] = o.Body

	return json.Marshal(fields)
}

// UnmarshalJSON implements json.Unmarshaler.
// The echoed body is optional so that a worker failing before it parsed the
// job can still report a status.
func (o *Outcome) UnmarshalJSON(data []byte) error {
	fields, err := splitObject(data)
	if err != nil {
		return err
	}

	var out Outcome

	if err := takeRequired(fields, keyStatus, &out.Status); err != nil {
		return err
	}

	if _, err := takeOptional(fields, keyRuntime, &out.Runtime); err != nil {
		return err
	}

	if _, err := takeOptional(fields, keyWorker, &out.Worker); err != nil {
		return err
	}

	if _, err := takeOptional(fields, keyBody, &out.Body); err != nil {
		return err
	}

	out.Extra = nonEmpty(fields)
	*o = out

	return nil
}
