// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package dispatch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/matt-FFFFFF/dwqc/internal/broker"
	"github.com/matt-FFFFFF/dwqc/internal/broker/brokertest"
	"github.com/matt-FFFFFF/dwqc/internal/collect"
	"github.com/matt-FFFFFF/dwqc/internal/job"
	"github.com/matt-FFFFFF/dwqc/internal/progress"
	"github.com/matt-FFFFFF/dwqc/internal/source"
	"github.com/matt-FFFFFF/dwqc/internal/submit"
	"github.com/prashantv/gostub"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// shell answers "echo X" with "X\n" and status 0, "false" with status 1.
func shell(id string, body job.CommandBody) (job.Result, bool) {
	switch {
	case body.Command == "false":
		return brokertest.NewResult(id, 1, "", body), true
	case strings.HasPrefix(body.Command, "echo "):
		return brokertest.NewResult(id, 0, strings.TrimPrefix(body.Command, "echo ")+"\n", body), true
	default:
		return brokertest.NewResult(id, 0, "", body), true
	}
}

func options(srv *brokertest.Server, src source.Source, out io.Writer) Options {
	return Options{
		Dial:           srv.Dial,
		Source:         src,
		Queue:          "test",
		Repo:           "repo",
		Commit:         "abc123",
		Enqueue:        broker.EnqueueOptions{Timeout: submit.DefaultJobTimeout, TTL: submit.DefaultTTL},
		Tick:           10 * time.Millisecond,
		CollectorGrace: time.Second,
		Output:         out,
	}
}

func start(ctx context.Context, opts Options) <-chan Outcome {
	done := make(chan Outcome, 1)

	go func() {
		done <- Run(ctx, opts)
	}()

	return done
}

func wait(t *testing.T, done <-chan Outcome) Outcome {
	t.Helper()

	select {
	case o := <-done:
		return o
	case <-time.After(5 * time.Second):
		t.Fatal("run did not finish")
		return Outcome{}
	}
}

func lines(cmds ...string) source.Source {
	return source.Lines(strings.NewReader(strings.Join(cmds, "\n")))
}

func TestRun_AllSucceed(t *testing.T) {
	srv := brokertest.NewServer()
	srv.Worker = shell

	cmds := make([]string, 50)
	for i := range cmds {
		cmds[i] = fmt.Sprintf("echo out-%d", i)
	}

	var out bytes.Buffer

	o := Run(context.Background(), options(srv, lines(cmds...), &out))

	assert.Equal(t, StateDone, o.State)
	assert.Equal(t, 0, o.ExitCode())
	assert.Equal(t, 50, o.Total)
	assert.Equal(t, 50, o.Submitted)
	assert.Equal(t, 50, o.Completed)
	assert.Empty(t, o.Outstanding)
	assert.Len(t, o.Records, 50)
	assert.Zero(t, o.Anomalies)
	assert.Empty(t, srv.Deletes())

	assert.Equal(t, 50, strings.Count(out.String(), "\n"))

	for i := range cmds {
		assert.Contains(t, out.String(), fmt.Sprintf("out-%d\n", i))
	}

	for _, e := range srv.Enqueued() {
		var b job.CommandBody
		require.NoError(t, b.UnmarshalJSON(e.Body))
		assert.Equal(t, []string{o.Inbox}, b.ControlQueues)
		assert.Equal(t, "repo", b.Repo)
		assert.Equal(t, "abc123", b.Commit)
	}
}

func TestRun_EchoScenario(t *testing.T) {
	srv := brokertest.NewServer()
	srv.Worker = shell

	var out bytes.Buffer

	o := Run(context.Background(), options(srv, lines("echo a", "echo b"), &out))

	require.Equal(t, 0, o.ExitCode())
	assert.Contains(t, out.String(), "a\n")
	assert.Contains(t, out.String(), "b\n")
	assert.Len(t, out.String(), 4)
}

func TestRun_NonZeroStatus(t *testing.T) {
	srv := brokertest.NewServer()
	srv.Worker = shell

	o := Run(context.Background(), options(srv, lines("echo a", "false", "echo c"), nil))

	assert.Equal(t, StateDone, o.State)
	assert.Equal(t, 3, o.Completed)
	assert.True(t, o.Failed)
	assert.Equal(t, 1, o.ExitCode())
	assert.Equal(t, 1, o.Records.Failed())
}

func TestRun_EmptySource(t *testing.T) {
	srv := brokertest.NewServer()

	o := Run(context.Background(), options(srv, lines(), nil))

	assert.Equal(t, StateDone, o.State)
	assert.Equal(t, 0, o.ExitCode())
	assert.Zero(t, o.Total)
	assert.Empty(t, srv.Enqueued())
}

func TestRun_SingleCommand(t *testing.T) {
	srv := brokertest.NewServer()
	srv.Worker = shell

	var out bytes.Buffer

	o := Run(context.Background(), options(srv, source.Single("echo hello"), &out))

	assert.Equal(t, 0, o.ExitCode())
	assert.Equal(t, "hello\n", out.String())
}

func TestRun_UnknownResultDiscarded(t *testing.T) {
	stub := gostub.Stub(&NewInbox, func() string { return "control::fixed" })
	defer stub.Reset()

	srv := brokertest.NewServer()
	srv.Worker = shell

	_, err := srv.PushResult("control::fixed", brokertest.NewResult("D-stray", 0, "stray\n", job.CommandBody{}))
	require.NoError(t, err)

	var out bytes.Buffer

	o := Run(context.Background(), options(srv, lines("echo a", "echo b"), &out))

	assert.Equal(t, StateDone, o.State)
	assert.Equal(t, 0, o.ExitCode())
	assert.Equal(t, 2, o.Completed)
	assert.Equal(t, 1, o.Anomalies)
	assert.NotContains(t, out.String(), "stray")
}

func TestRun_AbortBeforeAnyAck(t *testing.T) {
	srv := brokertest.NewServer()

	pr, pw := io.Pipe()
	defer pw.Close() //nolint:errcheck

	terminate := make(chan struct{}, 1)
	terminate <- struct{}{}

	opts := options(srv, source.Lines(pr), nil)
	opts.Terminate = terminate

	o := wait(t, start(context.Background(), opts))

	assert.Equal(t, StateAborted, o.State)
	assert.Equal(t, 1, o.ExitCode())
	assert.Zero(t, o.Submitted)
	assert.Zero(t, o.Cleanup.Batches)
	assert.Empty(t, srv.Deletes())
	assert.Equal(t, submit.DefaultWorkers+1, srv.Dials())
}

func TestRun_AbortWithOutstanding(t *testing.T) {
	srv := brokertest.NewServer()

	terminate := make(chan struct{})
	opts := options(srv, lines("sleep 1", "sleep 2", "sleep 3"), nil)
	opts.Terminate = terminate

	done := start(context.Background(), opts)

	require.Eventually(t, func() bool { return len(srv.Enqueued()) == 3 }, time.Second, time.Millisecond)
	terminate <- struct{}{}

	o := wait(t, done)

	assert.Equal(t, StateAborted, o.State)
	assert.Equal(t, 1, o.ExitCode())
	require.Len(t, o.Outstanding, 3)

	var ids []string
	for _, e := range srv.Enqueued() {
		ids = append(ids, e.ID)
		assert.False(t, srv.Live(e.ID))
	}

	deletes := srv.Deletes()
	require.Len(t, deletes, 1)
	assert.ElementsMatch(t, ids, deletes[0])
	assert.Equal(t, 1, o.Cleanup.Batches)
	assert.Equal(t, 3, o.Cleanup.Deleted)
	require.NoError(t, o.CleanupErr)
}

func TestRun_AbortKeepsCompleted(t *testing.T) {
	srv := brokertest.NewServer()
	srv.Worker = func(id string, body job.CommandBody) (job.Result, bool) {
		if body.Command == "hang" {
			return job.Result{}, false
		}

		return shell(id, body)
	}

	terminate := make(chan struct{})
	opts := options(srv, lines("echo a", "hang"), nil)
	opts.Terminate = terminate

	rep := progress.NewChannelReporter(context.Background(), 64)
	opts.Reporter = rep

	done := start(context.Background(), opts)

	for ev := range rep.Events() {
		if ev.Type == progress.EventResult {
			break
		}
	}

	require.Eventually(t, func() bool { return len(srv.Enqueued()) == 2 }, time.Second, time.Millisecond)
	terminate <- struct{}{}

	o := wait(t, done)
	rep.Close()

	var hung string

	for _, e := range srv.Enqueued() {
		if strings.Contains(string(e.Body), `"hang"`) {
			hung = e.ID
		}
	}

	assert.Equal(t, 1, o.Completed)
	assert.Equal(t, []string{hung}, o.Outstanding)
	assert.Equal(t, [][]string{{hung}}, srv.Deletes())
}

func TestRun_EnqueueFailure(t *testing.T) {
	srv := brokertest.NewServer()
	srv.EnqueueErr = func(int) error { return broker.ErrUnavailable }

	o := wait(t, start(context.Background(), options(srv, source.Single("make"), nil)))

	assert.Equal(t, StateFailed, o.State)
	assert.Equal(t, 1, o.ExitCode())
	require.ErrorIs(t, o.Err, submit.ErrSubmit)
	require.ErrorIs(t, o.Err, broker.ErrUnavailable)
	assert.Zero(t, o.Completed)
	assert.Empty(t, srv.Deletes())
}

func TestRun_MalformedResult(t *testing.T) {
	stub := gostub.Stub(&NewInbox, func() string { return "control::bad" })
	defer stub.Reset()

	srv := brokertest.NewServer()
	srv.Push("control::bad", []byte(`{"job_id":"D-x"}`))

	pr, pw := io.Pipe()
	defer pw.Close() //nolint:errcheck

	o := wait(t, start(context.Background(), options(srv, source.Lines(pr), nil)))

	assert.Equal(t, StateFailed, o.State)
	require.ErrorIs(t, o.Err, collect.ErrCollect)
	require.ErrorIs(t, o.Err, job.ErrMalformedPayload)
}

type brokenSource struct{}

func (brokenSource) Next() (string, error) { return "", io.ErrUnexpectedEOF }

func TestRun_SourceFailure(t *testing.T) {
	srv := brokertest.NewServer()

	o := wait(t, start(context.Background(), options(srv, brokenSource{}, nil)))

	assert.Equal(t, StateFailed, o.State)
	require.ErrorIs(t, o.Err, source.ErrSource)
	assert.Equal(t, 1, o.ExitCode())
}

func TestRun_ContextCancelled(t *testing.T) {
	srv := brokertest.NewServer()

	pr, pw := io.Pipe()
	defer pw.Close() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	done := start(ctx, options(srv, source.Lines(pr), nil))

	cancel()

	o := wait(t, done)
	assert.Equal(t, StateAborted, o.State)
	assert.Equal(t, 1, o.ExitCode())
}

func TestRun_FetchTimeoutIsFatal(t *testing.T) {
	srv := brokertest.NewServer()

	opts := options(srv, source.Single("hang"), nil)
	opts.FetchTimeout = 10 * time.Millisecond

	o := wait(t, start(context.Background(), opts))

	assert.Equal(t, StateFailed, o.State)
	require.ErrorIs(t, o.Err, broker.ErrFetchTimeout)
	assert.Empty(t, srv.Deletes())
}

func TestRun_Events(t *testing.T) {
	srv := brokertest.NewServer()
	srv.Worker = shell

	rep := progress.NewChannelReporter(context.Background(), 64)
	opts := options(srv, lines("echo a", "false"), nil)
	opts.Reporter = rep

	o := Run(context.Background(), opts)
	rep.Close()

	var types []progress.EventType

	for ev := range rep.Events() {
		if ev.Type == progress.EventTick {
			continue
		}

		types = append(types, ev.Type)

		if ev.Type == progress.EventStarted {
			assert.Equal(t, o.Inbox, ev.Data.Inbox)
		}

		if ev.Type == progress.EventCollected {
			assert.Equal(t, progress.Counters{Submitted: 2, Completed: 2, Total: 2, Exhausted: true}, ev.Counters)
		}
	}

	require.NotEmpty(t, types)
	assert.Equal(t, progress.EventStarted, types[0])
	assert.Equal(t, progress.EventCollected, types[len(types)-1])
	assert.Contains(t, types, progress.EventExhausted)
	assert.Equal(t, 2, countOf(types, progress.EventResult))
}

func TestRun_MissingOptions(t *testing.T) {
	o := Run(context.Background(), Options{})

	assert.Equal(t, StateFailed, o.State)
	require.ErrorIs(t, o.Err, ErrNoDialer)
	require.ErrorIs(t, o.Err, ErrNoSource)
	assert.Equal(t, 1, o.ExitCode())
}

func TestNewInbox(t *testing.T) {
	a, b := NewInbox(), NewInbox()

	assert.True(t, strings.HasPrefix(a, "control::"))
	assert.NotEqual(t, a, b)
}

func countOf(types []progress.EventType, want progress.EventType) int {
	n := 0

	for _, t := range types {
		if t == want {
			n++
		}
	}

	return n
}
