// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package progress

import (
	"fmt"
	"io"
	"sync"

	"github.com/matt-FFFFFF/dwqc/internal/color"
)

// TextReporter writes one status line per lifecycle event, prefixed with the program name.
// Ticks and results are not written.
type TextReporter struct {
	mu     sync.Mutex
	w      io.Writer
	prefix string
}

// NewTextReporter writes status lines to w.
func NewTextReporter(w io.Writer, prefix string) *TextReporter {
	return &TextReporter{w: w, prefix: prefix}
}

// Report implements Reporter.
func (tr *TextReporter) Report(event Event) {
	line := tr.line(event)
	if line == "" {
		return
	}

	tr.mu.Lock()
	defer tr.mu.Unlock()

	fmt.Fprintf(tr.w, "%s: %s\n", tr.prefix, line) //nolint:errcheck
}

// Close implements Reporter.
func (tr *TextReporter) Close() {}

func (tr *TextReporter) line(event Event) string {
	switch event.Type {
	case EventStarted:
		return "control queue: " + event.Data.Inbox
	case EventExhausted:
		return fmt.Sprintf("all jobs collected (%d)", event.Counters.Total)
	case EventCollected:
		return color.Colorize("all results received", color.FgGreen)
	case EventAborted:
		return color.Colorize("aborted.", color.FgYellow)
	case EventCancelling:
		return fmt.Sprintf("cancelling jobs... (%d outstanding)", event.Counters.Outstanding)
	case EventFailed:
		if event.Data.Error == nil {
			return color.Colorize("failed.", color.FgRed)
		}

		return color.Colorize("failed: "+event.Data.Error.Error(), color.FgRed)
	default:
		return ""
	}
}
