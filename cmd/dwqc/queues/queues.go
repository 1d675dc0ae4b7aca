// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

// Package queues provides the queues subcommand, which lists the queues known to the broker.
package queues

import (
	"context"
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/matt-FFFFFF/dwqc/cmd/dwqc/cmdstate"
	"github.com/matt-FFFFFF/dwqc/internal/ctxlog"
	"github.com/urfave/cli/v3"
)

const (
	plainFlag  = "plain"
	cliExitStr = ""
)

var headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)

var cellStyle = lipgloss.NewStyle().Padding(0, 1)

// New returns the queues subcommand.
func New() *cli.Command {
	return &cli.Command{
		Name:   "queues",
		Usage:  "List the queues known to the broker",
		Before: cmdstate.Before,
		Action: actionFunc,

		// -vv is two -v
		UseShortOptionHandling: true,
		Flags: append(cmdstate.CommonFlags(),
			&cli.BoolFlag{
				Name:  plainFlag,
				Usage: "Print one queue name per line",
			},
		),
	}
}

func actionFunc(ctx context.Context, cmd *cli.Command) error {
	logger := ctxlog.Logger(ctx).With("command", cmd.Name)

	cfg, err := cmdstate.LoadConfig(cmd)
	if err != nil {
		logger.Error(err.Error())
		return cli.Exit(cliExitStr, 2)
	}

	conn, err := cmdstate.DialerFactory(cfg.URL, cfg.ConnectTimeout)(ctx)
	if err != nil {
		logger.Error("connecting to broker", "url", cfg.URL, "error", err)
		return cli.Exit(cliExitStr, 1)
	}
	defer conn.Close() // nolint:errcheck

	names, err := conn.ListQueues(ctx)
	if err != nil {
		logger.Error("listing queues", "error", err)
		return cli.Exit(cliExitStr, 1)
	}

	w := cmd.Root().Writer

	if cmd.Bool(plainFlag) {
		for _, n := range names {
			if _, err := fmt.Fprintln(w, n); err != nil {
				return err
			}
		}

		return nil
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("QUEUE").
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}

			return cellStyle
		})

	for _, n := range names {
		t.Row(n)
	}

	_, err = fmt.Fprintln(w, t.Render())

	return err
}
