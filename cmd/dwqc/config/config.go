// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

// Package config provides the config subcommand, which prints the effective configuration.
package config

import (
	"context"

	"github.com/matt-FFFFFF/dwqc/cmd/dwqc/cmdstate"
	"github.com/urfave/cli/v3"
)

// New returns the config subcommand.
func New() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Print the effective configuration as YAML",
		Description: `Prints the defaults overlaid with --config and the environment.
The output is a valid configuration file.`,
		Before: cmdstate.Before,

		// -vv is two -v
		UseShortOptionHandling: true,
		Flags:  cmdstate.CommonFlags(),
		Action: actionFunc,
	}
}

func actionFunc(_ context.Context, cmd *cli.Command) error {
	cfg, err := cmdstate.LoadConfig(cmd)
	if err != nil {
		return err
	}

	return cfg.WriteYAML(cmd.Root().Writer)
}
