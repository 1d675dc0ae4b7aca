// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package brokertest

import (
	"context"
	"slices"
	"sync/atomic"
	"time"

	"github.com/matt-FFFFFF/dwqc/internal/broker"
)

var _ broker.Broker = (*Conn)(nil)

// Conn is one connection to a Server.
type Conn struct {
	srv    *Server
	closed atomic.Bool
}

// Enqueue implements broker.Broker.
func (c *Conn) Enqueue(ctx context.Context, queue string, payload []byte, opts broker.EnqueueOptions) (string, error) {
	if err := c.check(ctx); err != nil {
		return "", err
	}

	return c.srv.enqueue(queue, payload, opts)
}

// Fetch implements broker.Broker.
func (c *Conn) Fetch(ctx context.Context, queues []string, limit int, timeout time.Duration) ([]broker.Job, error) {
	if err := c.check(ctx); err != nil {
		return nil, err
	}

	return c.srv.fetch(ctx, queues, limit, timeout)
}

// Ack implements broker.Broker.
func (c *Conn) Ack(ctx context.Context, ids ...string) error {
	if err := c.check(ctx); err != nil {
		return err
	}

	c.srv.ack(ids)

	return nil
}

// DeleteJobs implements broker.Broker.
func (c *Conn) DeleteJobs(ctx context.Context, ids ...string) (int, error) {
	if err := c.check(ctx); err != nil {
		return 0, err
	}

	if len(ids) == 0 {
		return 0, nil
	}

	return c.srv.deleteJobs(slices.Clone(ids))
}

// ListQueues implements broker.Broker.
func (c *Conn) ListQueues(ctx context.Context) ([]string, error) {
	if err := c.check(ctx); err != nil {
		return nil, err
	}

	return c.srv.listQueues(), nil
}

// Close implements broker.Broker.
func (c *Conn) Close() error {
	c.closed.Store(true)
	return nil
}

func (c *Conn) check(ctx context.Context) error {
	if c.closed.Load() {
		return ErrClosed
	}

	return ctx.Err()
}
