// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package source

import (
	"errors"
	"io"
	"strings"

	"github.com/peterh/liner"
)

// DefaultPrompt is shown before each interactive command.
const DefaultPrompt = "dwqc> "

// lineEditor is the part of liner.State a Prompt uses.
type lineEditor interface {
	Prompt(prompt string) (string, error)
	AppendHistory(item string)
	Close() error
}

// Prompt reads commands typed at the terminal, with line editing and history.
// Entering quit or exit, or Ctrl+D, ends the input. Ctrl+C also ends it and calls onAbort.
type Prompt struct {
	line    lineEditor
	prompt  string
	onAbort func()
}

// Interactive takes over the terminal until Close is called.
// The terminal is in raw mode while a line is edited, so Ctrl+C raises no signal;
// onAbort, if not nil, is called instead.
func Interactive(prompt string, onAbort func()) *Prompt {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	return &Prompt{line: line, prompt: prompt, onAbort: onAbort}
}

// Next implements Source.
func (p *Prompt) Next() (string, error) {
	for {
		input, err := p.line.Prompt(p.prompt)
		if errors.Is(err, liner.ErrPromptAborted) {
			if p.onAbort != nil {
				p.onAbort()
			}

			return "", io.EOF
		}

		if errors.Is(err, io.EOF) {
			return "", io.EOF
		}

		if err != nil {
			return "", err
		}

		cmd, more := interpret(input)
		if !more {
			return "", io.EOF
		}

		if cmd == "" {
			continue
		}

		p.line.AppendHistory(cmd)

		return cmd, nil
	}
}

// Close restores the terminal.
func (p *Prompt) Close() error {
	return p.line.Close()
}

// interpret returns the command typed on one line and whether input continues.
func interpret(input string) (string, bool) {
	cmd := strings.TrimSpace(input)

	switch cmd {
	case "quit", "exit":
		return "", false
	default:
		return cmd, true
	}
}
