// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package job

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncode(t *testing.T) {
	body := NewCommandBody("https://example.com/repo.git", "abc123", "make test", "control::1")

	data, err := Encode(body)
	require.NoError(t, err)

	assert.JSONEq(t, `{
		"repo": "https://example.com/repo.git",
		"commit": "abc123",
		"command": "make test",
		"control_queues": ["control::1"]
	}`, string(data))
}

func TestEncode_NoInbox(t *testing.T) {
	data, err := Encode(NewCommandBody("r", "c", "true"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"repo":"r","commit":"c","command":"true"}`, string(data))
}

func TestCommandBody_PreservesUnknownFields(t *testing.T) {
	in := `{"repo":"r","commit":"c","command":"ls","control_queues":["q"],"env":{"CI":"1"},"options":[1,2]}`

	var body CommandBody
	require.NoError(t, json.Unmarshal([]byte(in), &body))

	assert.Equal(t, "ls", body.Command)
	assert.Equal(t, []string{"q"}, body.ControlQueues)
	require.Contains(t, body.Extra, "env")
	require.Contains(t, body.Extra, "options")

	out, err := Encode(body)
	require.NoError(t, err)
	assert.JSONEq(t, in, string(out))
}

func TestCommandBody_MissingField(t *testing.T) {
	var body CommandBody

	err := json.Unmarshal([]byte(`{"repo":"r","commit":"c"}`), &body)
	require.ErrorIs(t, err, ErrMalformedPayload)
	assert.Contains(t, err.Error(), `"command"`)
}

const validResult = `{
	"job_id": "D-0001",
	"state": "done",
	"result": {
		"status": 0,
		"runtime": 1.5,
		"worker": "worker-1",
		"body": {"repo":"r","commit":"c","command":"echo a","control_queues":["control::1"]},
		"output": "a\n",
		"artifacts": ["log.txt"]
	},
	"queue": "test"
}`

func TestDecodeResult(t *testing.T) {
	res, err := DecodeResult([]byte(validResult))
	require.NoError(t, err)

	assert.Equal(t, "D-0001", res.JobID)
	assert.Equal(t, "done", res.State)
	assert.Equal(t, 0, res.Outcome.Status)
	assert.InDelta(t, 1.5, res.Outcome.Runtime, 1e-9)
	assert.Equal(t, "worker-1", res.Outcome.Worker)
	assert.Equal(t, "echo a", res.Outcome.Body.Command)
	assert.Equal(t, "a\n", res.Output())
	assert.False(t, res.Failed())
	assert.Contains(t, res.Outcome.Extra, "artifacts")
	assert.Contains(t, res.Extra, "queue")
}

func TestDecodeResult_RoundTripKeepsExtensions(t *testing.T) {
	res, err := DecodeResult([]byte(validResult))
	require.NoError(t, err)

	data, err := EncodeResult(res)
	require.NoError(t, err)
	assert.JSONEq(t, validResult, string(data))
}

func TestDecodeResult_Malformed(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{name: "not json", payload: `{"job_id":`},
		{name: "null", payload: `null`},
		{name: "array", payload: `[]`},
		{name: "missing job id", payload: `{"result":{"status":0}}`},
		{name: "empty job id", payload: `{"job_id":"","result":{"status":0}}`},
		{name: "missing result", payload: `{"job_id":"D-1"}`},
		{name: "null result", payload: `{"job_id":"D-1","result":null}`},
		{name: "missing status", payload: `{"job_id":"D-1","result":{"output":"x"}}`},
		{name: "status wrong type", payload: `{"job_id":"D-1","result":{"status":"0"}}`},
		{name: "runtime wrong type", payload: `{"job_id":"D-1","result":{"status":0,"runtime":"fast"}}`},
		{name: "body missing command", payload: `{"job_id":"D-1","result":{"status":0,"body":{"repo":"r","commit":"c"}}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := DecodeResult([]byte(tt.payload))
			require.ErrorIs(t, err, ErrMalformedPayload)
			assert.Equal(t, Result{}, res, "no partial data on failure")
		})
	}
}

func TestResult_Output(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    string
	}{
		{name: "text", payload: `{"job_id":"1","result":{"status":0,"output":"hi"}}`, want: "hi"},
		{name: "absent", payload: `{"job_id":"1","result":{"status":0}}`, want: ""},
		{name: "not text", payload: `{"job_id":"1","result":{"status":0,"output":42}}`, want: ""},
		{name: "null", payload: `{"job_id":"1","result":{"status":0,"output":null}}`, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := DecodeResult([]byte(tt.payload))
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Output())
		})
	}
}

func TestResult_Failed(t *testing.T) {
	res, err := DecodeResult([]byte(`{"job_id":"1","result":{"status":2}}`))
	require.NoError(t, err)
	assert.True(t, res.Failed())
}
