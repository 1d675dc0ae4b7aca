// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

// Package broker defines the contract between dwqc and the job queue it dispatches to.
//
// A Broker value is one connection. It is used by a single goroutine at a time;
// concurrency comes from dialing one connection per worker.
package broker

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrUnavailable is returned when the broker cannot be reached or the connection broke.
	ErrUnavailable = errors.New("broker unavailable")
	// ErrRejected is returned when the broker answered a request with an error.
	ErrRejected = errors.New("broker rejected request")
	// ErrFetchTimeout is returned by Fetch when no job arrived before the deadline.
	ErrFetchTimeout = errors.New("timeout fetching job")
)

// Job is a job read from a queue.
type Job struct {
	Queue string
	ID    string
	Body  []byte
}

// EnqueueOptions control the life of an enqueued job.
type EnqueueOptions struct {
	// Timeout is how long a worker may hold the job before it is redelivered.
	Timeout time.Duration
	// TTL is how long the broker keeps an unprocessed job before discarding it.
	TTL time.Duration
}

// Broker is a connection to the job queue.
type Broker interface {
	// Enqueue adds payload to queue and returns the job id assigned by the broker.
	Enqueue(ctx context.Context, queue string, payload []byte, opts EnqueueOptions) (string, error)
	// Fetch blocks until at least one job is available in any of queues, returning up to limit jobs.
	// A zero timeout waits until ctx is done.
	Fetch(ctx context.Context, queues []string, limit int, timeout time.Duration) ([]Job, error)
	// Ack acknowledges consumed jobs so they are not delivered again.
	Ack(ctx context.Context, ids ...string) error
	// DeleteJobs removes jobs by id and returns how many the broker found.
	DeleteJobs(ctx context.Context, ids ...string) (int, error)
	// ListQueues returns the names of all known queues, sorted.
	ListQueues(ctx context.Context) ([]string, error)
	// Close releases the connection.
	Close() error
}

// Dialer opens a new connection.
type Dialer func(ctx context.Context) (Broker, error)
