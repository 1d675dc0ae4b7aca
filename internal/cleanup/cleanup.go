// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

// Package cleanup removes the jobs of an aborted run from the broker.
package cleanup

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/hashicorp/go-multierror"
	"github.com/matt-FFFFFF/dwqc/internal/broker"
	"github.com/matt-FFFFFF/dwqc/internal/ctxlog"
)

// DefaultBatchSize is the most ids deleted by one broker call.
const DefaultBatchSize = 4096

// ErrCleanup is returned when some outstanding jobs could not be deleted.
var ErrCleanup = errors.New("cleanup")

// Report describes a cleanup pass.
type Report struct {
	// Batches is the number of delete calls made, failed ones included.
	Batches int
	// Deleted is the number of jobs the broker reported as removed.
	Deleted int
	// Failed is the number of ids in batches that failed.
	Failed int
}

// Purge deletes ids in batches of at most batchSize using one new connection.
// A failed batch does not stop the following ones; all failures are returned together.
// Nothing is dialed when ids is empty.
func Purge(ctx context.Context, dial broker.Dialer, ids []string, batchSize int) (Report, error) {
	var rep Report

	if len(ids) == 0 {
		return rep, nil
	}

	if batchSize < 1 {
		batchSize = DefaultBatchSize
	}

	logger := ctxlog.Logger(ctx).With("stage", "cleanup")

	conn, err := dial(ctx)
	if err != nil {
		rep.Failed = len(ids)
		return rep, errors.Join(ErrCleanup, err)
	}

	defer conn.Close() //nolint:errcheck

	var merr *multierror.Error

	for batch := range slices.Chunk(ids, batchSize) {
		if err := ctx.Err(); err != nil {
			rep.Failed += len(ids) - rep.Batches*batchSize
			merr = multierror.Append(merr, err)

			break
		}

		rep.Batches++

		n, err := conn.DeleteJobs(ctx, batch...)
		if err != nil {
			rep.Failed += len(batch)
			merr = multierror.Append(merr, fmt.Errorf("batch %d (%d jobs): %w", rep.Batches, len(batch), err))

			continue
		}

		rep.Deleted += n

		logger.Debug("deleted batch", "batch", rep.Batches, "requested", len(batch), "deleted", n)
	}

	if err := merr.ErrorOrNil(); err != nil {
		return rep, errors.Join(ErrCleanup, err)
	}

	return rep, nil
}
