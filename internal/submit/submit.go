// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

// Package submit enqueues command bodies with a fixed pool of workers.
package submit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/matt-FFFFFF/dwqc/internal/broker"
	"github.com/matt-FFFFFF/dwqc/internal/ctxlog"
	"github.com/matt-FFFFFF/dwqc/internal/job"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultWorkers is the number of submitters when none is configured.
	DefaultWorkers = 4
	// DefaultJobTimeout is how long a worker may hold a job before it is redelivered.
	DefaultJobTimeout = 300 * time.Second
	// DefaultTTL is how long an unprocessed job stays in the broker.
	DefaultTTL = 24 * time.Hour
)

// ErrSubmit is returned when a command could not be enqueued.
var ErrSubmit = errors.New("submit")

// Pool enqueues command bodies on Queue.
// Each worker dials its own connection and keeps it for the life of the pool.
type Pool struct {
	Workers int
	Dial    broker.Dialer
	Queue   string
	Options broker.EnqueueOptions
}

// Run enqueues every body received on in until in is closed or ctx is done,
// sending each assigned job id on acks. acks is closed once every worker has exited,
// and the caller must keep receiving from it until then.
//
// The first failure stops the other workers and is returned wrapped in ErrSubmit.
// Cancellation of ctx is not a failure.
func (p *Pool) Run(ctx context.Context, in <-chan job.CommandBody, acks chan<- string) error {
	defer close(acks)

	workers := p.Workers
	if workers < 1 {
		workers = DefaultWorkers
	}

	g, gctx := errgroup.WithContext(ctx)

	for i := range workers {
		g.Go(func() error {
			return p.work(gctx, i, in, acks)
		})
	}

	return g.Wait()
}

func (p *Pool) work(ctx context.Context, n int, in <-chan job.CommandBody, acks chan<- string) error {
	logger := ctxlog.Logger(ctx).With("stage", "submit", "worker", n)

	conn, err := p.Dial(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}

		return fmt.Errorf("%w: connect: %w", ErrSubmit, err)
	}

	defer conn.Close() //nolint:errcheck

	for {
		var (
			body job.CommandBody
			ok   bool
		)

		select {
		case <-ctx.Done():
			return nil
		case body, ok = <-in:
			if !ok {
				return nil
			}
		}

		payload, err := job.Encode(body)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrSubmit, err)
		}

		id, err := conn.Enqueue(ctx, p.Queue, payload, p.Options)
		if err != nil {
			if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
				return nil
			}

			return fmt.Errorf("%w: enqueue %q: %w", ErrSubmit, body.Command, err)
		}

		logger.Debug("job enqueued", "id", id, "command", body.Command)

		// the job exists in the broker now, so its id must reach the coordinator even during shutdown
		acks <- id
	}
}
