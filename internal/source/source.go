// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

// Package source yields the commands of a run.
//
// A Source hands out one command per call to Next and returns io.EOF once it has no more.
// Feed drains a Source into the submission queue and reports how many commands it produced.
package source

import (
	"bufio"
	"context"
	"errors"
	"io"
	"strings"

	"github.com/matt-FFFFFF/dwqc/internal/job"
)

// maxLineSize is the longest command line accepted from a stream.
const maxLineSize = 1 << 20

// ErrSource is returned when commands cannot be read.
var ErrSource = errors.New("command source")

// Source yields commands. Next returns io.EOF when there are no more.
type Source interface {
	Next() (string, error)
}

// Exhausted is reported once a Source has nothing more to give.
type Exhausted struct {
	// Total is the number of commands handed to the submission queue.
	Total int
	// Err is non-nil when reading stopped because of a failure rather than end of input.
	Err error
}

// Feed reads every command from src, builds its body and sends it on out.
// out is closed when Feed returns. Feed stops early when ctx is done.
func Feed(ctx context.Context, src Source, build func(command string) job.CommandBody, out chan<- job.CommandBody) Exhausted {
	defer close(out)

	total := 0

	for {
		if err := ctx.Err(); err != nil {
			return Exhausted{Total: total, Err: err}
		}

		cmd, err := src.Next()
		if errors.Is(err, io.EOF) {
			return Exhausted{Total: total}
		}

		if err != nil {
			return Exhausted{Total: total, Err: errors.Join(ErrSource, err)}
		}

		select {
		case out <- build(cmd):
			total++
		case <-ctx.Done():
			return Exhausted{Total: total, Err: ctx.Err()}
		}
	}
}

// single yields one command.
type single struct {
	cmd  string
	done bool
}

// Single returns a Source yielding cmd once.
func Single(cmd string) Source {
	return &single{cmd: cmd}
}

func (s *single) Next() (string, error) {
	if s.done {
		return "", io.EOF
	}

	s.done = true

	return s.cmd, nil
}

// lines yields one command per non-blank line.
type lines struct {
	sc *bufio.Scanner
}

// Lines returns a Source yielding each non-blank line of r.
// Trailing carriage returns are removed.
func Lines(r io.Reader) Source {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, bufio.MaxScanTokenSize), maxLineSize)

	return &lines{sc: sc}
}

func (l *lines) Next() (string, error) {
	for l.sc.Scan() {
		line := strings.TrimRight(l.sc.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}

		return line, nil
	}

	if err := l.sc.Err(); err != nil {
		return "", err
	}

	return "", io.EOF
}
