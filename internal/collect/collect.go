// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

// Package collect fetches the results of a run from its inbox.
package collect

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/matt-FFFFFF/dwqc/internal/broker"
	"github.com/matt-FFFFFF/dwqc/internal/ctxlog"
	"github.com/matt-FFFFFF/dwqc/internal/job"
	"golang.org/x/sync/errgroup"
)

// DefaultBatch is the most results requested per fetch.
const DefaultBatch = 128

// ackTimeout bounds an acknowledgement sent after the run was cancelled.
const ackTimeout = 500 * time.Millisecond

// ErrCollect is returned when results can no longer be collected.
var ErrCollect = errors.New("collect")

// Collector reads results from Inbox.
type Collector struct {
	Workers int
	Dial    broker.Dialer
	Inbox   string
	// Batch is the most results requested per fetch.
	Batch int
	// Timeout bounds each fetch. Zero blocks until a result arrives.
	Timeout time.Duration
	// Retries is how many consecutive fetch timeouts are tolerated before giving up.
	Retries int
}

// Run forwards every decoded result on out until ctx is done.
// Each forwarded result job is acknowledged so the broker does not deliver it again.
//
// A fetch failure, too many timeouts or a malformed payload ends the run and is
// returned wrapped in ErrCollect. Cancellation of ctx is not a failure.
func (c *Collector) Run(ctx context.Context, out chan<- job.Result) error {
	workers := max(c.Workers, 1)

	g, gctx := errgroup.WithContext(ctx)

	for i := range workers {
		g.Go(func() error {
			return c.work(gctx, i, out)
		})
	}

	return g.Wait()
}

func (c *Collector) work(ctx context.Context, n int, out chan<- job.Result) error {
	logger := ctxlog.Logger(ctx).With("stage", "collect", "worker", n, "inbox", c.Inbox)

	conn, err := c.Dial(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}

		return fmt.Errorf("%w: connect: %w", ErrCollect, err)
	}

	defer conn.Close() //nolint:errcheck

	batch := c.Batch
	if batch < 1 {
		batch = DefaultBatch
	}

	misses := 0

	for {
		jobs, err := conn.Fetch(ctx, []string{c.Inbox}, batch, c.Timeout)

		switch {
		case err == nil:
			misses = 0
		case ctx.Err() != nil:
			return nil
		case errors.Is(err, broker.ErrFetchTimeout):
			misses++
			if misses > c.Retries {
				return fmt.Errorf("%w: no result within %s: %w", ErrCollect, c.Timeout, err)
			}

			logger.Warn("no result before fetch timeout, retrying", "attempt", misses, "retries", c.Retries)

			continue
		default:
			return fmt.Errorf("%w: fetch: %w", ErrCollect, err)
		}

		forwarded := make([]string, 0, len(jobs))

		for _, j := range jobs {
			res, err := job.DecodeResult(j.Body)
			if err != nil {
				return fmt.Errorf("%w: result job %s: %w", ErrCollect, j.ID, err)
			}

			select {
			case out <- res:
				forwarded = append(forwarded, j.ID)
			case <-ctx.Done():
				c.ack(ctx, conn, logger, forwarded)
				return nil
			}
		}

		c.ack(ctx, conn, logger, forwarded)
	}
}

// ack is best effort: an unacknowledged result is only delivered again.
// It outlives cancellation of ctx, which usually follows the last forwarded result.
func (c *Collector) ack(ctx context.Context, conn broker.Broker, logger *slog.Logger, ids []string) {
	if len(ids) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ackTimeout)
	defer cancel()

	if err := conn.Ack(ctx, ids...); err != nil {
		logger.Warn("failed to acknowledge result jobs", "count", len(ids), "error", err.Error())
	}
}
