// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package results

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/matt-FFFFFF/dwqc/internal/color"
)

const runtimeRounding = 10 * time.Millisecond

// OutputOptions controls what is included in the output.
type OutputOptions struct {
	IncludeOutput      bool // Whether to include command output
	ShowSuccessDetails bool // Whether to show output of successful commands too
	ShowDetails        bool // Whether to include job id, worker and runtime
}

// DefaultOutputOptions returns a default set of output options.
func DefaultOutputOptions() *OutputOptions {
	return &OutputOptions{
		IncludeOutput: true,
	}
}

// WriteText writes one status line per record, then a summary line.
func (r Records) WriteText(w io.Writer, options *OutputOptions) error {
	if options == nil {
		options = DefaultOutputOptions()
	}

	for _, rec := range r {
		if err := writeRecord(w, rec, options); err != nil {
			return err
		}
	}

	summary := color.Colorize(fmt.Sprintf("%d commands, all succeeded", len(r)), color.FgGreen)
	if n := r.Failed(); n > 0 {
		summary = color.Colorize(fmt.Sprintf("%d commands, %d failed", len(r), n), color.Bold, color.FgRed)
	}

	_, err := fmt.Fprintln(w, summary)

	return err
}

func writeRecord(w io.Writer, rec *Record, options *OutputOptions) error {
	statusStr := color.Colorize("✓", color.FgGreen)
	labelPrefix := color.ControlString(color.Bold, color.FgGreen)

	if rec.Status != 0 {
		statusStr = color.Colorize("✗", color.FgRed)
		labelPrefix = color.ControlString(color.Bold, color.FgRed)
	}

	label := rec.Command
	if label == "" {
		label = "[unnamed]"
	}

	var sb strings.Builder

	fmt.Fprintf(&sb, "%s %s%s%s", statusStr, labelPrefix, label, color.ControlString(color.Reset))

	if rec.Status != 0 {
		fmt.Fprintf(&sb, " (exit code: %d)", rec.Status)
	}

	sb.WriteString("\n")

	if options.ShowDetails {
		fmt.Fprintf(&sb, "  %s job %s on %s in %s\n",
			color.Colorize("➜", color.FgCyan), rec.JobID, workerName(rec.Worker), rec.Runtime.Round(runtimeRounding))
	}

	showOutput := options.IncludeOutput && rec.Output != "" && (rec.Status != 0 || options.ShowSuccessDetails)
	if showOutput {
		sb.WriteString("  ➜ Output:\n")
		sb.WriteString(formatOutput(rec.Output, "     "))
	}

	_, err := io.WriteString(w, sb.String())

	return err
}

func workerName(w string) string {
	if w == "" {
		return "unknown worker"
	}

	return w
}

// formatOutput indents every non-empty line of output.
func formatOutput(output, indent string) string {
	sb := strings.Builder{}
	lines := strings.Split(strings.TrimRight(output, "\n"), "\n")
	sb.Grow(len(output) + len(lines)*len(indent))

	for _, line := range lines {
		if line == "" {
			sb.WriteString("\n")
			continue
		}

		sb.WriteString(indent)
		sb.WriteString(line)
		sb.WriteString("\n")
	}

	return sb.String()
}
