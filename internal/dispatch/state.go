// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package dispatch

import (
	"slices"

	"github.com/google/uuid"
	"github.com/matt-FFFFFF/dwqc/internal/job"
	"github.com/matt-FFFFFF/dwqc/internal/progress"
)

const inboxPrefix = "control::"

// NewInbox returns a result inbox name that no other run uses.
var NewInbox = func() string {
	return inboxPrefix + uuid.NewString()
}

// State is where a run is in its life.
type State int

const (
	// StateCollecting means the source may still produce commands.
	StateCollecting State = iota
	// StateDispatching means the source is exhausted and results are awaited.
	StateDispatching
	// StateDone means every command completed.
	StateDone
	// StateAborted means a termination request ended the run.
	StateAborted
	// StateFailed means a stage error ended the run.
	StateFailed
)

// String implements the Stringer interface for State.
func (s State) String() string {
	switch s {
	case StateCollecting:
		return "COLLECTING"
	case StateDispatching:
		return "DISPATCHING"
	case StateDone:
		return "DONE"
	case StateAborted:
		return "ABORTED"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// Running reports whether the coordinator loop continues in this state.
func (s State) Running() bool {
	return s == StateCollecting || s == StateDispatching
}

// verdict is what the coordinator decided about an incoming result.
type verdict int

const (
	verdictCompleted verdict = iota
	verdictParked
	verdictUnknown
	verdictDuplicate
)

// runState is owned by the coordinator goroutine. Nothing else reads or writes it.
type runState struct {
	state State

	outstanding map[string]struct{}
	// seen holds completed ids so a redelivered result is never counted twice.
	seen map[string]struct{}
	// early holds results that arrived before the ack of their job id.
	early map[string]job.Result
	// earlyLimit bounds early. A genuine early result belongs to a job whose id is still
	// buffered or being sent by a submitter, so there are never more than that many.
	earlyLimit int

	submitted int
	completed int
	total     int
	exhausted bool
	failed    bool
	aborted   bool
}

func newRunState(earlyLimit int) *runState {
	return &runState{
		outstanding: make(map[string]struct{}),
		seen:        make(map[string]struct{}),
		early:       make(map[string]job.Result),
		earlyLimit:  earlyLimit,
	}
}

// moreComing is true while the source may produce more or a produced command has no ack yet.
func (s *runState) moreComing() bool {
	return !s.exhausted || s.submitted < s.total
}

// complete reports whether the run has nothing left to wait for.
func (s *runState) complete() bool {
	return !s.moreComing() && len(s.outstanding) == 0
}

// exhaust records the end of the source.
func (s *runState) exhaust(total int) {
	s.exhausted = true
	s.total = total

	if s.state == StateCollecting {
		s.state = StateDispatching
	}
}

// ack records an assigned job id. If its result is already parked it is returned for completion.
func (s *runState) ack(id string) (job.Result, bool) {
	s.submitted++
	s.outstanding[id] = struct{}{}

	res, ok := s.early[id]
	if ok {
		delete(s.early, id)
	}

	return res, ok
}

// classify decides what to do with a result without changing the counters.
func (s *runState) classify(res job.Result) verdict {
	if _, ok := s.outstanding[res.JobID]; ok {
		return verdictCompleted
	}

	if _, ok := s.seen[res.JobID]; ok {
		return verdictDuplicate
	}

	if s.moreComing() && len(s.early) < s.earlyLimit {
		return verdictParked
	}

	return verdictUnknown
}

// park keeps a result until its ack arrives.
func (s *runState) park(res job.Result) {
	s.early[res.JobID] = res
}

// finish removes an outstanding id and counts its result.
func (s *runState) finish(res job.Result) {
	delete(s.outstanding, res.JobID)
	s.seen[res.JobID] = struct{}{}
	s.completed++

	if res.Failed() {
		s.failed = true
	}
}

// outstandingIDs returns the outstanding ids, sorted.
func (s *runState) outstandingIDs() []string {
	ids := make([]string, 0, len(s.outstanding))
	for id := range s.outstanding {
		ids = append(ids, id)
	}

	slices.Sort(ids)

	return ids
}

// strays returns the parked results that never matched an ack, sorted by id.
func (s *runState) strays() []string {
	ids := make([]string, 0, len(s.early))
	for id := range s.early {
		ids = append(ids, id)
	}

	slices.Sort(ids)

	return ids
}

func (s *runState) counters() progress.Counters {
	return progress.Counters{
		Submitted:   s.submitted,
		Completed:   s.completed,
		Outstanding: len(s.outstanding),
		Total:       s.total,
		Exhausted:   s.exhausted,
	}
}
