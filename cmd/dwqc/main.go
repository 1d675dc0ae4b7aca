// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

// Package main contains the dwqc command-line interface (CLI).
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/matt-FFFFFF/dwqc"
	"github.com/matt-FFFFFF/dwqc/cmd/dwqc/cmdstate"
	"github.com/matt-FFFFFF/dwqc/cmd/dwqc/config"
	"github.com/matt-FFFFFF/dwqc/cmd/dwqc/queues"
	"github.com/matt-FFFFFF/dwqc/cmd/dwqc/run"
	"github.com/matt-FFFFFF/dwqc/cmd/dwqc/show"
	"github.com/matt-FFFFFF/dwqc/internal/ctxlog"
	"github.com/matt-FFFFFF/dwqc/internal/signalbroker"
	"github.com/urfave/cli/v3"
)

// rootCmd is the root command for the CLI.
var rootCmd = &cli.Command{
	Commands: []*cli.Command{
		run.New(),
		queues.New(),
		show.New(),
		config.New(),
	},
	Writer:    os.Stdout,
	ErrWriter: os.Stderr,
	Name:      "dwqc",
	Description: `dwqc dispatches shell commands to a pool of workers through a Disque job queue.
Every job names a git repository and commit the worker checks out before running the command.
Results come back on a private queue and the output of each command is printed as it arrives.`,
	Usage:     "dwqc run -r https://example.com/repo.git -c HEAD 'make test'",
	Copyright: "Copyright (c) matt-FFFFFF 2025. All rights reserved.",
	Authors: []any{
		"Matt White (matt-FFFFFF)",
	},
	EnableShellCompletion: true,
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	ctx = ctxlog.New(ctx, ctxlog.DefaultLogger)
	defer cancel()

	sigCh := signalbroker.New(ctx)
	defer signalbroker.Stop(sigCh)

	terminate := make(chan struct{}, 1)
	ctx = cmdstate.WithTerminate(ctx, terminate)

	go signalbroker.Watch(ctx, sigCh, terminate, cancel)

	rootCmd.Version = fmt.Sprintf("%s (commit: %s)", dwqc.Version, dwqc.Commit)

	err := rootCmd.Run(ctx, os.Args) // Err is handled by cli framework

	if ctx.Err() != nil {
		ctxlog.Logger(ctx).Error("command terminated due to cancellation", "error", ctx.Err())
		os.Exit(1)
	}

	if err != nil {
		ctxlog.Logger(ctx).Error("command execution failed", "error", err)
		os.Exit(1)
	}
}
