// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package job

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
)

// ErrMalformedPayload is returned when a payload cannot be encoded or decoded.
var ErrMalformedPayload = errors.New("malformed payload")

const (
	keyRepo          = "repo"
	keyCommit        = "commit"
	keyCommand       = "command"
	keyControlQueues = "control_queues"
)

// CommandBody is the payload of one dispatched job.
// It is built once per command and never changed afterwards.
type CommandBody struct {
	Repo          string
	Commit        string
	Command       string
	ControlQueues []string                   // inboxes the worker answers into
	Extra         map[string]json.RawMessage // unknown fields, kept verbatim
}

// NewCommandBody returns the body for command, answered into the given inboxes.
func NewCommandBody(repo, commit, command string, inboxes ...string) CommandBody {
	return CommandBody{
		Repo:          repo,
		Commit:        commit,
		Command:       command,
		ControlQueues: slices.Clone(inboxes),
	}
}

// Encode serialises b to its wire format.
func Encode(b CommandBody) ([]byte, error) {
	data, err := json.Marshal(b)
	if err != nil {
		return nil, errors.Join(ErrMalformedPayload, err)
	}

	return data, nil
}

// MarshalJSON implements json.Marshaler. Extra fields are flattened into the object.
func (b CommandBody) MarshalJSON() ([]byte, error) {
	fields := make(map[string]any, len(b.Extra)+4)
	for k, v := range b.Extra {
		fields[k] = v
	}

	fields[keyRepo] = b.Repo
	fields[keyCommit] = b.Commit
	fields[keyCommand] = b.Command

	if len(b.ControlQueues) > 0 {
		fields[keyControlQueues] = b.ControlQueues
	}

	return json.Marshal(fields)
}

// UnmarshalJSON implements json.Unmarshaler.
// repo, commit and command are required.
func (b *CommandBody) UnmarshalJSON(data []byte) error {
	fields, err := splitObject(data)
	if err != nil {
		return err
	}

	var out CommandBody

	if err := takeRequired(fields, keyRepo, &out.Repo); err != nil {
		return err
	}

	if err := takeRequired(fields, keyCommit, &out.Commit); err != nil {
		return err
	}

	if err := takeRequired(fields, keyCommand, &out.Command); err != nil {
		return err
	}

	if _, err := takeOptional(fields, keyControlQueues, &out.ControlQueues); err != nil {
		return err
	}

	out.Extra = nonEmpty(fields)
	*b = out

	return nil
}

// splitObject decodes a JSON object into its raw members.
func splitObject(data []byte) (map[string]json.RawMessage, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, errors.Join(ErrMalformedPayload, err)
	}

	if fields == nil {
		return nil, fmt.Errorf("%w: expected an object, got null", ErrMalformedPayload)
	}

	return fields, nil
}

// takeRequired decodes and removes key from fields, failing when it is absent or null.
func takeRequired(fields map[string]json.RawMessage, key string, dst any) error {
	ok, err := takeOptional(fields, key, dst)
	if err != nil {
		return err
	}

	if !ok {
		return fmt.Errorf("%w: missing field %q", ErrMalformedPayload, key)
	}

	return nil
}

// takeOptional decodes and removes key from fields. It reports whether a non-null value was present.
func takeOptional(fields map[string]json.RawMessage, key string, dst any) (bool, error) {
	raw, ok := fields[key]
	if !ok {
		return false, nil
	}

	delete(fields, key)

	if string(raw) == "null" {
		return false, nil
	}

	if err := json.Unmarshal(raw, dst); err != nil {
		return false, fmt.Errorf("%w: field %q: %w", ErrMalformedPayload, key, err)
	}

	return true, nil
}

func nonEmpty(m map[string]json.RawMessage) map[string]json.RawMessage {
	if len(m) == 0 {
		return nil
	}

	return m
}
