// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package progress

import (
	"time"
)

// Event is one step in the life of a run.
type Event struct {
	Type      EventType
	Timestamp time.Time
	Counters  Counters
	Data      EventData
}

// Counters is a snapshot of the coordinator's bookkeeping.
type Counters struct {
	Submitted   int  // job ids acknowledged by the broker
	Completed   int  // results received for outstanding jobs
	Outstanding int  // submitted and not yet completed
	Total       int  // commands produced, known once the source is exhausted
	Exhausted   bool // the source has no more commands
}

// EventType represents the type of progress event.
type EventType int

const (
	// EventStarted is sent once the result inbox is chosen.
	EventStarted EventType = iota
	// EventTick is sent periodically with the current counters.
	EventTick
	// EventExhausted is sent when the command source has produced everything.
	EventExhausted
	// EventResult is sent for every result of an outstanding job.
	EventResult
	// EventCollected is sent when every submitted job has completed.
	EventCollected
	// EventAborted is sent when a termination request ends the run.
	EventAborted
	// EventCancelling is sent before outstanding jobs are deleted.
	EventCancelling
	// EventFailed is sent when a stage error ends the run.
	EventFailed
)

// String implements the Stringer interface for EventType.
func (et EventType) String() string {
	switch et {
	case EventStarted:
		return "started"
	case EventTick:
		return "tick"
	case EventExhausted:
		return "exhausted"
	case EventResult:
		return "result"
	case EventCollected:
		return "collected"
	case EventAborted:
		return "aborted"
	case EventCancelling:
		return "cancelling"
	case EventFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Final reports whether no event follows this one, except EventCancelling after EventAborted.
func (et EventType) Final() bool {
	return et == EventCollected || et == EventAborted || et == EventFailed
}

// EventData contains type-specific information for progress events.
type EventData struct {
	// For EventStarted
	Inbox string

	// For EventResult
	JobID   string
	Command string
	Status  int

	// For EventFailed
	Error error
}

// Reporter is the interface for sending progress events.
type Reporter interface {
	// Report sends a progress event. Implementations must not block.
	Report(event Event)
	// Close signals that no more events will be sent.
	Close()
}

// Listener receives progress events.
type Listener interface {
	OnEvent(event Event)
}

// NullReporter is a no-op implementation of Reporter.
type NullReporter struct{}

// Report implements Reporter.
func (nr *NullReporter) Report(Event) {}

// Close implements Reporter.
func (nr *NullReporter) Close() {}

// NewNullReporter creates a new NullReporter.
func NewNullReporter() Reporter {
	return &NullReporter{}
}
