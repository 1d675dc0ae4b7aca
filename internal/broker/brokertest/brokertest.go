// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

// Package brokertest provides an in-memory broker.Broker for tests.
//
// A Server holds the queues. Every Dial returns a new connection to the same Server,
// so a test sees everything the pipeline did through one value.
package brokertest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/matt-FFFFFF/dwqc/internal/broker"
	"github.com/matt-FFFFFF/dwqc/internal/job"
)

// ErrClosed is returned by a connection used after Close.
var ErrClosed = errors.New("connection closed")

// Worker answers a dispatched job. Returning false leaves the job unanswered.
type Worker func(id string, body job.CommandBody) (job.Result, bool)

// Echo is a Worker that succeeds and reports the command as its output.
func Echo(id string, body job.CommandBody) (job.Result, bool) {
	return ExitWith(0)(id, body)
}

// ExitWith returns a Worker answering every job with status.
func ExitWith(status int) Worker {
	return func(id string, body job.CommandBody) (job.Result, bool) {
		return NewResult(id, status, body.Command, body), true
	}
}

// NewResult builds a finished result for id.
func NewResult(id string, status int, output string, body job.CommandBody) job.Result {
	out := fmt.Appendf(nil, "%q", output)

	return job.Result{
		JobID: id,
		State: "finished",
		Outcome: job.Outcome{
			Status:  status,
			Runtime: 0.01,
			Worker:  "brokertest",
			Body:    body,
			Extra:   map[string]json.RawMessage{"output": out},
		},
	}
}

// Enqueued records one Enqueue call.
type Enqueued struct {
	Queue string
	ID    string
	Body  []byte
	Opts  broker.EnqueueOptions
}

// Server is a set of in-memory queues shared by all connections dialed from it.
type Server struct {
	// Worker, when set, answers every enqueued job whose payload is a command body.
	Worker Worker
	// DialErr fails every Dial.
	DialErr error
	// EnqueueErr is called before the n-th Enqueue (1-based); a non-nil error fails it.
	EnqueueErr func(n int) error
	// DeleteErr is called before the n-th DeleteJobs call (1-based); a non-nil error fails it.
	DeleteErr func(n int) error

	mu       sync.Mutex
	queues   map[string][]broker.Job
	live     map[string]string // job id to queue
	known    map[string]struct{}
	notify   chan struct{}
	nextID   int
	dials    int
	enqueued []Enqueued
	acked    []string
	deletes  [][]string
}

// NewServer returns an empty Server.
func NewServer() *Server {
	return &Server{
		queues: make(map[string][]broker.Job),
		live:   make(map[string]string),
		known:  make(map[string]struct{}),
		notify: make(chan struct{}),
	}
}

// Dial opens a connection to s.
func (s *Server) Dial(_ context.Context) (broker.Broker, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.dials++

	if s.DialErr != nil {
		return nil, s.DialErr
	}

	return &Conn{srv: s}, nil
}

// Push places a raw job on queue, as a remote producer would.
func (s *Server) Push(queue string, body []byte) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.pushLocked(queue, body)
}

// PushResult encodes r and places it on inbox.
func (s *Server) PushResult(inbox string, r job.Result) (string, error) {
	data, err := job.EncodeResult(r)
	if err != nil {
		return "", err
	}

	return s.Push(inbox, data), nil
}

// Dials returns how many times Dial was called.
func (s *Server) Dials() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.dials
}

// Enqueued returns the Enqueue calls in order. Failed calls have an empty ID.
func (s *Server) Enqueued() []Enqueued {
	s.mu.Lock()
	defer s.mu.Unlock()

	return slices.Clone(s.enqueued)
}

// Acked returns the acknowledged ids in order.
func (s *Server) Acked() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return slices.Clone(s.acked)
}

// Deletes returns the id batches of every DeleteJobs call, including failed ones.
func (s *Server) Deletes() [][]string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([][]string, len(s.deletes))
	for i, d := range s.deletes {
		out[i] = slices.Clone(d)
	}

	return out
}

// Pending returns the jobs waiting on queue.
func (s *Server) Pending(queue string) []broker.Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	return slices.Clone(s.queues[queue])
}

// Live reports whether id was enqueued and neither acked nor deleted.
func (s *Server) Live(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.live[id]

	return ok
}

func (s *Server) pushLocked(queue string, body []byte) string {
	s.nextID++
	id := fmt.Sprintf("D-%06d", s.nextID)

	s.queues[queue] = append(s.queues[queue], broker.Job{Queue: queue, ID: id, Body: slices.Clone(body)})
	s.live[id] = queue
	s.known[queue] = struct{}{}

	close(s.notify)
	s.notify = make(chan struct{})

	return id
}

func (s *Server) enqueue(queue string, payload []byte, opts broker.EnqueueOptions) (string, error) {
	s.mu.Lock()

	n := len(s.enqueued) + 1
	if s.EnqueueErr != nil {
		if err := s.EnqueueErr(n); err != nil {
			s.enqueued = append(s.enqueued, Enqueued{Queue: queue})
			s.mu.Unlock()

			return "", err
		}
	}

	id := s.pushLocked(queue, payload)
	s.enqueued = append(s.enqueued, Enqueued{Queue: queue, ID: id, Body: slices.Clone(payload), Opts: opts})
	worker := s.Worker

	s.mu.Unlock()

	if worker == nil {
		return id, nil
	}

	body, err := decodeBody(payload)
	if err != nil {
		return id, nil //nolint:nilerr // not a command, nothing to answer
	}

	res, ok := worker(id, body)
	if !ok {
		return id, nil
	}

	for _, inbox := range body.ControlQueues {
		if _, err := s.PushResult(inbox, res); err != nil {
			return "", err
		}
	}

	return id, nil
}

func (s *Server) fetch(ctx context.Context, queues []string, limit int, timeout time.Duration) ([]broker.Job, error) {
	if len(queues) == 0 {
		return nil, fmt.Errorf("%w: no queues to fetch from", broker.ErrRejected)
	}

	if limit < 1 {
		limit = 1
	}

	var expired <-chan time.Time

	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()

		expired = t.C
	}

	for {
		s.mu.Lock()

		var jobs []broker.Job

		for _, q := range queues {
			take := min(limit-len(jobs), len(s.queues[q]))
			jobs = append(jobs, s.queues[q][:take]...)
			s.queues[q] = s.queues[q][take:]
		}

		wait := s.notify
		s.mu.Unlock()

		if len(jobs) > 0 {
			return jobs, nil
		}

		select {
		case <-wait:
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-expired:
			return nil, broker.ErrFetchTimeout
		}
	}
}

func (s *Server) ack(ids []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range ids {
		s.acked = append(s.acked, id)
		delete(s.live, id)
	}
}

func (s *Server) deleteJobs(ids []string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.deletes = append(s.deletes, slices.Clone(ids))

	if s.DeleteErr != nil {
		if err := s.DeleteErr(len(s.deletes)); err != nil {
			return 0, err
		}
	}

	n := 0

	for _, id := range ids {
		q, ok := s.live[id]
		if !ok {
			continue
		}

		n++

		delete(s.live, id)
		s.queues[q] = slices.DeleteFunc(s.queues[q], func(j broker.Job) bool { return j.ID == id })
	}

	return n, nil
}

func (s *Server) listQueues() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, 0, len(s.known))
	for q := range s.known {
		out = append(out, q)
	}

	slices.Sort(out)

	return out
}

func decodeBody(data []byte) (job.CommandBody, error) {
	var b job.CommandBody
	err := json.Unmarshal(data, &b)

	return b, err
}
