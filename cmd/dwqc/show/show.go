// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

// Package show provides the show subcommand, which prints results saved by 'run --out'.
package show

import (
	"context"
	"errors"

	"github.com/matt-FFFFFF/dwqc/cmd/dwqc/cmdstate"
	"github.com/matt-FFFFFF/dwqc/internal/results"
	"github.com/urfave/cli/v3"
)

const (
	fileArg              = "file"
	successDetailsFlag   = "output-success-details"
	detailsFlag          = "details"
	noOutputFlag         = "no-output"
	failOnErrorFlag      = "fail-on-error"
	cliExitStr           = ""
	exitCodeFailedResult = 1
)

var (
	// ErrNoFile is returned when no file argument was given.
	ErrNoFile = errors.New("a results file is required")
	// ErrReadFile is returned when the file cannot be read.
	ErrReadFile = errors.New("failed to read file")
	// ErrWriteResults is returned when the results cannot be written to stdout.
	ErrWriteResults = errors.New("failed to write results to stdout")
)

// New returns the show subcommand.
func New() *cli.Command {
	return &cli.Command{
		Name:        "show",
		Usage:       "Show previously saved results",
		Description: "Show the results written by 'dwqc run --out FILE'.",
		ArgsUsage:   "FILE",
		Arguments: []cli.Argument{
			&cli.StringArg{
				Name: fileArg,
			},
		},
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  successDetailsFlag,
				Usage: "Include the output of commands that succeeded",
			},
			&cli.BoolFlag{
				Name:  detailsFlag,
				Usage: "Include the job id, worker and runtime of each command",
			},
			&cli.BoolFlag{
				Name:  noOutputFlag,
				Usage: "Do not print command output",
			},
			&cli.BoolFlag{
				Name:  failOnErrorFlag,
				Usage: "Exit non-zero when any command failed",
			},
		},
		Action: actionFunc,
	}
}

func actionFunc(_ context.Context, cmd *cli.Command) error {
	path := cmd.StringArg(fileArg)
	if path == "" {
		return ErrNoFile
	}

	file, err := cmdstate.FsFactory().Open(path)
	if err != nil {
		return errors.Join(ErrReadFile, err)
	}
	defer file.Close() // nolint:errcheck

	records, err := results.ReadBinary(file)
	if err != nil {
		return err
	}

	opts := results.DefaultOutputOptions()
	opts.IncludeOutput = !cmd.Bool(noOutputFlag)
	opts.ShowSuccessDetails = cmd.Bool(successDetailsFlag)
	opts.ShowDetails = cmd.Bool(detailsFlag)

	if err := records.WriteText(cmd.Root().Writer, opts); err != nil {
		return errors.Join(ErrWriteResults, err)
	}

	if cmd.Bool(failOnErrorFlag) && records.HasError() {
		return cli.Exit(cliExitStr, exitCodeFailedResult)
	}

	return nil
}
