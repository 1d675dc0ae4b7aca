// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

// Package cmdstate holds what the subcommands share: the broker dialer, the filesystem,
// the termination channel fed by the signal watchdog, and the common flags.
// The package-level functions are replaced in tests.
package cmdstate

import (
	"context"
	"time"

	"github.com/matt-FFFFFF/dwqc/internal/broker"
	"github.com/matt-FFFFFF/dwqc/internal/broker/disque"
	"github.com/matt-FFFFFF/dwqc/internal/config"
	"github.com/matt-FFFFFF/dwqc/internal/ctxlog"
	"github.com/spf13/afero"
	"github.com/urfave/cli/v3"
)

const (
	// ConfigFlag names the optional YAML configuration file.
	ConfigFlag = "config"
	// VerboseFlag may be repeated.
	VerboseFlag = "verbose"
	// LogFormatFlag selects pretty or json logs.
	LogFormatFlag = "log-format"
	// URLFlag is the broker address.
	URLFlag = "disque-url"

	logFormatJSON = "json"
)

// DialerFactory returns the dialer used for the broker at url.
var DialerFactory = func(url string, connectTimeout time.Duration) broker.Dialer {
	return disque.NewDialer(url, connectTimeout)
}

// FsFactory is a function that returns an afero filesystem.
var FsFactory = func() afero.Fs {
	return afero.NewOsFs()
}

type terminateKey struct{}

// WithTerminate returns a copy of ctx carrying the channel termination requests arrive on.
func WithTerminate(ctx context.Context, ch chan struct{}) context.Context {
	return context.WithValue(ctx, terminateKey{}, ch)
}

// Terminate returns the channel stored by WithTerminate, or a new one nobody sends on.
func Terminate(ctx context.Context) chan struct{} {
	ch, ok := ctx.Value(terminateKey{}).(chan struct{})
	if !ok || ch == nil {
		return make(chan struct{}, 1)
	}

	return ch
}

// CommonFlags returns new instances of the flags every subcommand accepts.
func CommonFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:      ConfigFlag,
			Usage:     "Read defaults from this YAML configuration file",
			Sources:   cli.EnvVars("DWQ_CONFIG"),
			TakesFile: true,
		},
		&cli.BoolFlag{
			Name:    VerboseFlag,
			Aliases: []string{"v"},
			Usage:   "Print status lines and info logs. Repeat for debug logs",
		},
		&cli.StringFlag{
			Name:  LogFormatFlag,
			Usage: "Log format, pretty or json",
			Value: "pretty",
		},
		&cli.StringFlag{
			Name:    URLFlag,
			Aliases: []string{"u"},
			Usage:   "Disque node to connect to",
			Sources: cli.EnvVars("DWQ_DISQUE_URL"),
		},
	}
}

// Before applies the common flags to the logger carried by ctx.
func Before(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	ctxlog.SetVerbosity(cmd.Count(VerboseFlag))

	if cmd.String(LogFormatFlag) == logFormatJSON {
		ctx = ctxlog.New(ctx, ctxlog.NewJSON(cmd.Root().ErrWriter))
	}

	return ctx, nil
}

// LoadConfig loads the configuration file named by the common flags and applies the broker URL flag.
func LoadConfig(cmd *cli.Command) (config.Config, error) {
	cfg, err := config.Load(FsFactory(), cmd.String(ConfigFlag))
	if err != nil {
		return config.Config{}, err
	}

	if cmd.IsSet(URLFlag) {
		cfg.URL = cmd.String(URLFlag)
	}

	return cfg, nil
}
