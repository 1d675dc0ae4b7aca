// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

// Package disque implements broker.Broker on top of a Disque node, using the
// redigo RESP client.
package disque

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/gomodule/redigo/redis"
	"github.com/matt-FFFFFF/dwqc/internal/broker"
)

// DefaultURL is the address of a local Disque node.
const DefaultURL = "redis://localhost:7711"

const (
	schemeDisque = "disque://"
	schemeRedis  = "redis://"

	qscanCount = 128
)

var _ broker.Broker = (*Client)(nil)

// ErrUnexpectedReply is returned when a reply does not have the shape the command promises.
var ErrUnexpectedReply = errors.New("unexpected reply")

// Client is a single connection to a Disque node.
type Client struct {
	conn redis.Conn
}

// New wraps an established connection.
func New(conn redis.Conn) *Client {
	return &Client{conn: conn}
}

// Dial connects to the node at rawURL. disque:// is accepted as an alias of redis://.
func Dial(ctx context.Context, rawURL string, options ...redis.DialOption) (*Client, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if strings.HasPrefix(rawURL, schemeDisque) {
		rawURL = schemeRedis + strings.TrimPrefix(rawURL, schemeDisque)
	}

	conn, err := redis.DialURL(rawURL, options...)
	if err != nil {
		return nil, errors.Join(broker.ErrUnavailable, err)
	}

	return New(conn), nil
}

// NewDialer returns a broker.Dialer connecting to rawURL.
func NewDialer(rawURL string, connectTimeout time.Duration) broker.Dialer {
	return func(ctx context.Context) (broker.Broker, error) {
		return Dial(ctx, rawURL, redis.DialConnectTimeout(connectTimeout))
	}
}

// Enqueue implements broker.Broker with ADDJOB.
// opts.Timeout is used both as the replication timeout of the command and as the
// RETRY period after which an unacknowledged job is queued again.
func (c *Client) Enqueue(ctx context.Context, queue string, payload []byte, opts broker.EnqueueOptions) (string, error) {
	args := []any{queue, payload, opts.Timeout.Milliseconds()}

	if s := seconds(opts.Timeout); s > 0 {
		args = append(args, "RETRY", s)
	}

	if s := seconds(opts.TTL); s > 0 {
		args = append(args, "TTL", s)
	}

	id, err := redis.String(c.do(ctx, "ADDJOB", args...))
	if err != nil {
		return "", err
	}

	return id, nil
}

// Fetch implements broker.Broker with GETJOB. A nil reply means the timeout elapsed.
func (c *Client) Fetch(ctx context.Context, queues []string, limit int, timeout time.Duration) ([]broker.Job, error) {
	if len(queues) == 0 {
		return nil, fmt.Errorf("%w: no queues to fetch from", broker.ErrRejected)
	}

	if limit < 1 {
		limit = 1
	}

	args := []any{"TIMEOUT", timeout.Milliseconds(), "COUNT", limit, "FROM"}
	for _, q := range queues {
		args = append(args, q)
	}

	reply, err := c.do(ctx, "GETJOB", args...)
	if err != nil {
		return nil, err
	}

	if reply == nil {
		return nil, broker.ErrFetchTimeout
	}

	entries, err := redis.Values(reply, nil)
	if err != nil {
		return nil, errors.Join(ErrUnexpectedReply, err)
	}

	jobs := make([]broker.Job, 0, len(entries))

	for _, e := range entries {
		fields, err := redis.Values(e, nil)
		if err != nil || len(fields) < 3 {
			return nil, fmt.Errorf("%w: GETJOB entry %v", ErrUnexpectedReply, e)
		}

		queue, qerr := redis.String(fields[0], nil)
		id, ierr := redis.String(fields[1], nil)
		body, berr := redis.Bytes(fields[2], nil)

		if err := errors.Join(qerr, ierr, berr); err != nil {
			return nil, errors.Join(ErrUnexpectedReply, err)
		}

		jobs = append(jobs, broker.Job{Queue: queue, ID: id, Body: body})
	}

	if len(jobs) == 0 {
		return nil, broker.ErrFetchTimeout
	}

	return jobs, nil
}

// Ack implements broker.Broker with ACKJOB.
func (c *Client) Ack(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}

	_, err := c.do(ctx, "ACKJOB", stringArgs(ids)...)

	return err
}

// DeleteJobs implements broker.Broker with DELJOB.
func (c *Client) DeleteJobs(ctx context.Context, ids ...string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	n, err := redis.Int(c.do(ctx, "DELJOB", stringArgs(ids)...))
	if err != nil {
		return 0, err
	}

	return n, nil
}

// ListQueues implements broker.Broker by iterating QSCAN until the cursor returns to zero.
func (c *Client) ListQueues(ctx context.Context) ([]string, error) {
	var (
		cursor = "0"
		seen   = make(map[string]struct{})
	)

	for {
		reply, err := redis.Values(c.do(ctx, "QSCAN", cursor, "COUNT", qscanCount))
		if err != nil {
			return nil, err
		}

		if len(reply) != 2 {
			return nil, fmt.Errorf("%w: QSCAN returned %d elements", ErrUnexpectedReply, len(reply))
		}

		next, cerr := redis.String(reply[0], nil)
		names, nerr := redis.Strings(reply[1], nil)

		if err := errors.Join(cerr, nerr); err != nil {
			return nil, errors.Join(ErrUnexpectedReply, err)
		}

		for _, n := range names {
			seen[n] = struct{}{}
		}

		if next == "0" {
			break
		}

		cursor = next
	}

	queues := make([]string, 0, len(seen))
	for q := range seen {
		queues = append(queues, q)
	}

	slices.Sort(queues)

	return queues, nil
}

// Close implements broker.Broker.
func (c *Client) Close() error {
	return c.conn.Close()
}

// do runs cmd and maps failures onto the broker errors.
// Context errors are returned unchanged so callers can tell cancellation apart.
func (c *Client) do(ctx context.Context, cmd string, args ...any) (any, error) {
	reply, err := redis.DoContext(c.conn, ctx, cmd, args...)
	if err == nil {
		return reply, nil
	}

	var rerr redis.Error

	switch {
	case errors.As(err, &rerr):
		return nil, fmt.Errorf("%w: %s: %s", broker.ErrRejected, cmd, string(rerr))
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return nil, err
	default:
		return nil, fmt.Errorf("%w: %s: %w", broker.ErrUnavailable, cmd, err)
	}
}

func seconds(d time.Duration) int64 {
	return int64(d / time.Second)
}

func stringArgs(ss []string) []any {
	args := make([]any, len(ss))
	for i, s := range ss {
		args[i] = s
	}

	return args
}
