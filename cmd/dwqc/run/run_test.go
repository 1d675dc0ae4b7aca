// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package run

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/matt-FFFFFF/dwqc/cmd/dwqc/cmdstate"
	"github.com/matt-FFFFFF/dwqc/internal/broker"
	"github.com/matt-FFFFFF/dwqc/internal/broker/brokertest"
	"github.com/matt-FFFFFF/dwqc/internal/ctxlog"
	"github.com/matt-FFFFFF/dwqc/internal/job"
	"github.com/matt-FFFFFF/dwqc/internal/results"
	"github.com/prashantv/gostub"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v3"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

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

// lockedBuffer is written by the logger and the status reporter at once.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.buf.String()
}

type harness struct {
	srv    *brokertest.Server
	fs     afero.Fs
	url    string
	stdout bytes.Buffer
	stderr lockedBuffer
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{
		srv: brokertest.NewServer(),
		fs:  afero.NewMemMapFs(),
	}
	h.srv.Worker = shell

	stubs := gostub.Stub(&cmdstate.DialerFactory, func(url string, _ time.Duration) broker.Dialer {
		h.url = url
		return h.srv.Dial
	})
	stubs.Stub(&cmdstate.FsFactory, func() afero.Fs { return h.fs })
	t.Cleanup(stubs.Reset)

	return h
}

// run executes the subcommand as a root command and returns its exit code.
func (h *harness) run(t *testing.T, stdin string, args ...string) int {
	t.Helper()

	cmd := New()
	cmd.Reader = strings.NewReader(stdin)
	cmd.Writer = &h.stdout
	cmd.ErrWriter = &h.stderr
	cmd.ExitErrHandler = func(context.Context, *cli.Command, error) {}

	ctx := ctxlog.New(context.Background(), ctxlog.NewPretty(&h.stderr))

	err := cmd.Run(ctx, append([]string{"run"}, args...))
	if err == nil {
		return 0
	}

	var ec cli.ExitCoder
	require.True(t, errors.As(err, &ec), "unexpected error: %v", err)

	return ec.ExitCode()
}

func TestRun_SingleCommand(t *testing.T) {
	h := newHarness(t)

	code := h.run(t, "", "-r", "repo", "-c", "abc123", "echo hello")

	assert.Equal(t, 0, code)
	assert.Equal(t, "hello\n", h.stdout.String())

	enq := h.srv.Enqueued()
	require.Len(t, enq, 1)
	assert.Equal(t, "test", enq[0].Queue)

	var body job.CommandBody
	require.NoError(t, body.UnmarshalJSON(enq[0].Body))
	assert.Equal(t, "repo", body.Repo)
	assert.Equal(t, "abc123", body.Commit)
	assert.Equal(t, "echo hello", body.Command)
}

func TestRun_LinesFromStdin(t *testing.T) {
	h := newHarness(t)

	code := h.run(t, "echo a\n\necho b\n", "--repo", "repo", "--commit", "abc123")

	assert.Equal(t, 0, code)
	assert.Contains(t, h.stdout.String(), "a\n")
	assert.Contains(t, h.stdout.String(), "b\n")
	assert.Len(t, h.srv.Enqueued(), 2)
}

func TestRun_StdinFlagIgnoresCommand(t *testing.T) {
	h := newHarness(t)

	code := h.run(t, "echo from-stdin\n", "-r", "repo", "-c", "abc123", "-s", "echo ignored")

	assert.Equal(t, 0, code)
	assert.Equal(t, "from-stdin\n", h.stdout.String())
}

func TestRun_FailedCommandExitsNonZero(t *testing.T) {
	h := newHarness(t)

	code := h.run(t, "echo a\nfalse\n", "-r", "repo", "-c", "abc123")

	assert.Equal(t, 1, code)
	assert.Equal(t, "a\n", h.stdout.String())
}

func TestRun_MissingRepoAndCommit(t *testing.T) {
	h := newHarness(t)

	code := h.run(t, "", "echo hello")

	assert.Equal(t, exitCodeBadConfig, code)
	assert.Zero(t, h.srv.Dials())
	assert.Contains(t, h.stderr.String(), "repository is required")
	assert.Contains(t, h.stderr.String(), "commit is required")
}

func TestRun_ConfigFileAndFlags(t *testing.T) {
	h := newHarness(t)

	cfg := "queue: builds\nurl: redis://disque:7711\nrepo: from-config\ncommit: abc123\n"
	require.NoError(t, afero.WriteFile(h.fs, "/etc/dwqc.yaml", []byte(cfg), 0o644))

	code := h.run(t, "", "--config", "/etc/dwqc.yaml", "-q", "override", "echo x")

	require.Equal(t, 0, code)
	assert.Equal(t, "redis://disque:7711", h.url)

	enq := h.srv.Enqueued()
	require.Len(t, enq, 1)
	assert.Equal(t, "override", enq[0].Queue)

	var body job.CommandBody
	require.NoError(t, body.UnmarshalJSON(enq[0].Body))
	assert.Equal(t, "from-config", body.Repo)
}

func TestRun_InvalidConfigFile(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, afero.WriteFile(h.fs, "/dwqc.yaml", []byte("workers: 3\n"), 0o644))

	code := h.run(t, "", "--config", "/dwqc.yaml", "-r", "repo", "-c", "abc", "echo x")

	assert.Equal(t, exitCodeBadConfig, code)
	assert.Zero(t, h.srv.Dials())
}

func TestRun_URLFlag(t *testing.T) {
	h := newHarness(t)

	code := h.run(t, "", "-u", "disque://queue.example:7711", "-r", "repo", "-c", "abc", "true")

	require.Equal(t, 0, code)
	assert.Equal(t, "disque://queue.example:7711", h.url)
}

func TestRun_CommandFile(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, afero.WriteFile(h.fs, "/cmds.txt", []byte("echo one\necho two\necho three\n"), 0o644))

	code := h.run(t, "", "-r", "repo", "-c", "abc", "-f", "/cmds.txt")

	assert.Equal(t, 0, code)
	assert.Len(t, h.srv.Enqueued(), 3)
	assert.Equal(t, 3, strings.Count(h.stdout.String(), "\n"))
}

func TestRun_WritesResults(t *testing.T) {
	h := newHarness(t)

	code := h.run(t, "echo a\nfalse\n", "-r", "repo", "-c", "abc", "--out", "/results.bin")
	require.Equal(t, 1, code)

	f, err := h.fs.Open("/results.bin")
	require.NoError(t, err)

	defer f.Close() // nolint:errcheck

	records, err := results.ReadBinary(f)
	require.NoError(t, err)
	assert.Len(t, records, 2)
	assert.Equal(t, 1, records.Failed())
}

func TestRun_VerbosePrintsStatus(t *testing.T) {
	tests := []struct {
		name  string
		flags []string
		level slog.Level
	}{
		{name: "single", flags: []string{"-v"}, level: slog.LevelInfo},
		{name: "combined", flags: []string{"-vv"}, level: slog.LevelDebug},
		{name: "repeated", flags: []string{"-v", "-v"}, level: slog.LevelDebug},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)

			level := ctxlog.LevelVar.Level()
			t.Cleanup(func() { ctxlog.LevelVar.Set(level) })
			ctxlog.LevelVar.Set(slog.LevelWarn)

			args := append(tt.flags, "-r", "repo", "-c", "abc", "echo hi")
			code := h.run(t, "", args...)

			assert.Equal(t, 0, code)
			assert.Equal(t, tt.level, ctxlog.LevelVar.Level())

			out := h.stdout.String()
			assert.Contains(t, out, "hi\n")
			assert.Contains(t, out, "run: control queue: control::")
			assert.Contains(t, out, "all results received")
			assert.NotContains(t, h.stderr.String(), "all results received")
		})
	}
}
