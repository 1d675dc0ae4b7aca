// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package tui

import (
	"fmt"
	"io"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type printed []string

func (p *printed) println(args ...any) {
	*p = append(*p, fmt.Sprint(args...))
}

func TestLineWriter_CompleteLines(t *testing.T) {
	var got printed

	w := &lineWriter{println: got.println}

	_, err := w.Write([]byte("one\ntwo\n"))
	require.NoError(t, err)
	_, err = w.Write([]byte("three\n"))
	require.NoError(t, err)

	assert.Equal(t, printed{"one\ntwo", "three"}, got)
}

func TestLineWriter_UnterminatedTailIsFlushed(t *testing.T) {
	var got printed

	w := &lineWriter{println: got.println}

	n, err := w.Write([]byte("a"))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Empty(t, got)

	w.flush()
	assert.Equal(t, printed{"a"}, got)

	w.flush()
	assert.Equal(t, printed{"a"}, got, "flush prints the tail once")
}

func TestLineWriter_TailJoinsNextWrite(t *testing.T) {
	var got printed

	w := &lineWriter{println: got.println}

	_, _ = w.Write([]byte("partial "))
	_, _ = w.Write([]byte("line\nrest"))
	w.flush()

	assert.Equal(t, printed{"partial line", "rest"}, got)
}

func TestRunner_WriteAfterStopDoesNotBlock(t *testing.T) {
	r := NewRunner(nil, tea.WithInput(nil), tea.WithOutput(io.Discard), tea.WithoutRenderer())
	r.Start()

	_, err := r.Writer().Write([]byte("no newline"))
	require.NoError(t, err)
	require.NoError(t, r.Stop())

	done := make(chan struct{})

	go func() {
		_, _ = r.Writer().Write([]byte("late\n"))
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("write after stop blocked")
	}
}
