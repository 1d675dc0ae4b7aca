// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package tui

import (
	"io"
	"strings"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/matt-FFFFFF/dwqc/internal/progress"
)

// Runner owns the tea program showing a run.
type Runner struct {
	model    *Model
	program  *tea.Program
	reporter *Reporter
	writer   *lineWriter
	done     chan error
	once     sync.Once
}

// NewRunner creates the display. Requests to abort typed at the display are sent on terminate.
func NewRunner(terminate chan<- struct{}, opts ...tea.ProgramOption) *Runner {
	model := NewModel(terminate)
	program := tea.NewProgram(model, opts...)

	return &Runner{
		model:    model,
		program:  program,
		reporter: NewReporter(program),
		writer:   &lineWriter{println: printer(program)},
		done:     make(chan error, 1),
	}
}

// Start runs the program in the background.
func (r *Runner) Start() {
	go func() {
		_, err := r.program.Run()
		r.done <- err
	}()
}

// Reporter returns the progress reporter feeding the display.
func (r *Runner) Reporter() progress.Reporter {
	return r.reporter
}

// Writer returns the writer printing above the display.
// Complete lines are printed as they arrive; an unterminated tail is printed by Stop.
func (r *Runner) Writer() io.Writer {
	return r.writer
}

// Stop closes the reporter, quits the program and waits for it to restore the terminal.
func (r *Runner) Stop() error {
	var err error

	r.once.Do(func() {
		r.reporter.Close()
		r.writer.flush()
		r.program.Quit()
		err = <-r.done
	})

	return err
}

// Reporter implements progress.Reporter and forwards events to the display.
type Reporter struct {
	program *tea.Program
	closed  bool
	mutex   sync.RWMutex
}

// NewReporter creates a reporter sending to program.
func NewReporter(program *tea.Program) *Reporter {
	return &Reporter{program: program}
}

// Report implements progress.Reporter.
func (tr *Reporter) Report(event progress.Event) {
	tr.mutex.RLock()
	defer tr.mutex.RUnlock()

	if tr.closed || tr.program == nil {
		return
	}

	tr.program.Send(EventMsg{Event: event})
}

// Close implements progress.Reporter.
func (tr *Reporter) Close() {
	tr.mutex.Lock()
	defer tr.mutex.Unlock()

	tr.closed = true
}

// printer prints above the display. Sending does not block once the program has exited.
func printer(program *tea.Program) func(args ...any) {
	return func(args ...any) {
		program.Send(tea.Println(args...)())
	}
}

// lineWriter prints through the program so output lands above the display.
type lineWriter struct {
	println func(args ...any)
	mu      sync.Mutex
	partial strings.Builder
}

// Write prints every complete line of p. An unterminated tail is kept so that a
// result written in several pieces is not split across lines.
func (w *lineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.partial.Write(p)

	text := w.partial.String()

	cut := strings.LastIndexByte(text, '\n')
	if cut < 0 {
		return len(p), nil
	}

	w.println(text[:cut])
	w.partial.Reset()
	w.partial.WriteString(text[cut+1:])

	return len(p), nil
}

// flush prints the unterminated tail, if any.
func (w *lineWriter) flush() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.partial.Len() == 0 {
		return
	}

	w.println(w.partial.String())
	w.partial.Reset()
}
