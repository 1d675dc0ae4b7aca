// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

// Package signalbroker turns OS signals into run termination requests.
// By default it listens for SIGINT, SIGTERM, SIGQUIT and SIGPIPE.
//
// The first signal of a kind asks the running dispatch to abort and clean up;
// a second signal of the same kind cancels the process context, abandoning cleanup.
package signalbroker

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/matt-FFFFFF/dwqc/internal/ctxlog"
)

var termSignals = []os.Signal{
	os.Interrupt,
	syscall.SIGTERM,
	syscall.SIGQUIT,
	syscall.SIGPIPE,
}

// New creates a channel that receives the signals that should end a run.
func New(ctx context.Context, sigs ...os.Signal) chan os.Signal {
	ch := make(chan os.Signal, 1)

	if len(sigs) == 0 {
		sigs = termSignals
	}

	ctxlog.Debug(ctx, "signalbroker", "detail", "creating signal broker", "signals", sigs)
	signal.Notify(ch, sigs...)

	return ch
}

// Stop stops delivery to a channel created by New.
func Stop(ch chan os.Signal) {
	signal.Stop(ch)
}
