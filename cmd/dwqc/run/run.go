// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

// Package run provides the run subcommand, which dispatches commands to the job queue
// and prints their output as results arrive.
package run

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/matt-FFFFFF/dwqc/cmd/dwqc/cmdstate"
	"github.com/matt-FFFFFF/dwqc/internal/broker"
	"github.com/matt-FFFFFF/dwqc/internal/config"
	"github.com/matt-FFFFFF/dwqc/internal/ctxlog"
	"github.com/matt-FFFFFF/dwqc/internal/dispatch"
	"github.com/matt-FFFFFF/dwqc/internal/progress"
	"github.com/matt-FFFFFF/dwqc/internal/source"
	"github.com/matt-FFFFFF/dwqc/internal/tui"
	"github.com/urfave/cli/v3"
	"golang.org/x/term"
)

const (
	commandArg        = "command"
	queueFlag         = "queue"
	repoFlag          = "repo"
	commitFlag        = "commit"
	stdinFlag         = "stdin"
	fileFlag          = "file"
	progressFlag      = "progress"
	outFlag           = "out"
	submittersFlag    = "submitters"
	collectorsFlag    = "collectors"
	fetchTimeoutFlag  = "fetch-timeout"
	fetchRetriesFlag  = "fetch-retries"
	jobTimeoutFlag    = "job-timeout"
	cliExitStr        = ""
	exitCodeBadConfig = 2
)

var (
	// ErrNoRepo is returned when no repository was given.
	ErrNoRepo = errors.New("a repository is required, use --repo or DWQ_REPO")
	// ErrNoCommit is returned when no commit was given.
	ErrNoCommit = errors.New("a commit is required, use --commit or DWQ_COMMIT")
)

// isTerminal reports whether f is attached to a terminal. Replaced in tests.
var isTerminal = func(f any) bool {
	file, ok := f.(*os.File)

	return ok && term.IsTerminal(int(file.Fd()))
}

// New returns the run subcommand.
func New() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Run commands on the workers listening on a queue",
		Description: `Each command is enqueued as a job naming the repository and commit to check out.
The output of every command is printed as its result arrives.

COMMAND runs a single command. Without it, commands are read one per line from --file,
from standard input, or from an interactive prompt when standard input is a terminal.

At the prompt, quit, exit or Ctrl+D end the input and the run completes; Ctrl+C aborts it.

Interrupting once aborts the run and deletes the jobs that are still pending.
Interrupting twice exits immediately.`,
		ArgsUsage: "[COMMAND]",
		Arguments: []cli.Argument{
			&cli.StringArg{
				Name: commandArg,
			},
		},
		Before: cmdstate.Before,
		Action: actionFunc,

		// -vv is two -v
		UseShortOptionHandling: true,
		Flags: append(cmdstate.CommonFlags(),
			&cli.StringFlag{
				Name:    queueFlag,
				Aliases: []string{"q"},
				Usage:   "Queue to enqueue jobs on",
				Sources: cli.EnvVars("DWQ_QUEUE"),
			},
			&cli.StringFlag{
				Name:    repoFlag,
				Aliases: []string{"r"},
				Usage:   "Repository the workers check out",
				Sources: cli.EnvVars("DWQ_REPO"),
			},
			&cli.StringFlag{
				Name:    commitFlag,
				Aliases: []string{"c"},
				Usage:   "Commit the workers check out",
				Sources: cli.EnvVars("DWQ_COMMIT"),
			},
			&cli.BoolFlag{
				Name:    stdinFlag,
				Aliases: []string{"s"},
				Usage:   "Read commands from standard input even when COMMAND is given",
			},
			&cli.StringFlag{
				Name:      fileFlag,
				Aliases:   []string{"f"},
				Usage:     "Read commands from a file or go-getter URL",
				TakesFile: true,
			},
			&cli.BoolFlag{
				Name:    progressFlag,
				Aliases: []string{"P"},
				Usage:   "Show a progress display on standard error",
			},
			&cli.StringFlag{
				Name:      outFlag,
				Usage:     "Write the collected results to this file, for use with 'show'",
				TakesFile: true,
			},
			&cli.IntFlag{
				Name:  submittersFlag,
				Usage: "Number of connections enqueueing jobs",
			},
			&cli.IntFlag{
				Name:  collectorsFlag,
				Usage: "Number of connections fetching results",
			},
			&cli.DurationFlag{
				Name:  fetchTimeoutFlag,
				Usage: "How long a collector waits for results, 0 waits forever",
			},
			&cli.IntFlag{
				Name:  fetchRetriesFlag,
				Usage: "Consecutive fetch timeouts tolerated before the run fails",
			},
			&cli.DurationFlag{
				Name:  jobTimeoutFlag,
				Usage: "How long a worker may hold a job before it is queued again",
			},
		),
	}
}

func actionFunc(ctx context.Context, cmd *cli.Command) error {
	logger := ctxlog.Logger(ctx).With("command", cmd.Name)

	cfg, err := settings(cmd)
	if err != nil {
		logger.Error(err.Error())
		return cli.Exit(cliExitStr, exitCodeBadConfig)
	}

	terminate := cmdstate.Terminate(ctx)

	src, closeSrc, err := openSource(ctx, cmd, terminate)
	if err != nil {
		logger.Error(err.Error())
		return cli.Exit(cliExitStr, 1)
	}

	defer closeSrc()

	var (
		root      = cmd.Root()
		output    = root.Writer
		reporters []progress.Reporter
		logBuf    *bytes.Buffer
		runner    *tui.Runner
	)

	if cmd.Bool(progressFlag) {
		logBuf = &bytes.Buffer{}
		ctx = ctxlog.New(ctx, ctxlog.NewPretty(logBuf))
		runner = tui.NewRunner(terminate, tea.WithOutput(root.ErrWriter), tea.WithInputTTY())
		reporters = append(reporters, runner.Reporter())

		// output to the same terminal goes above the display
		if isTerminal(root.Writer) && isTerminal(root.ErrWriter) {
			output = runner.Writer()
		}
	}

	// status lines are printed with the command output
	if cmd.Count(cmdstate.VerboseFlag) > 0 {
		reporters = append(reporters, progress.NewTextReporter(output, root.Name))
	}

	if runner != nil {
		runner.Start()
	}

	outcome := dispatch.Run(ctx, dispatch.Options{
		Dial:           cmdstate.DialerFactory(cfg.URL, cfg.ConnectTimeout),
		Source:         src,
		Queue:          cfg.Queue,
		Repo:           cfg.Repo,
		Commit:         cfg.Commit,
		Submitters:     cfg.Submitters,
		Collectors:     cfg.Collectors,
		Buffer:         cfg.Buffer,
		Enqueue:        broker.EnqueueOptions{Timeout: cfg.JobTimeout, TTL: cfg.JobTTL},
		FetchBatch:     cfg.FetchBatch,
		FetchTimeout:   cfg.FetchTimeout,
		FetchRetries:   cfg.FetchRetries,
		DeleteBatch:    cfg.DeleteBatch,
		Tick:           cfg.TickInterval,
		CollectorGrace: cfg.CollectorGrace,
		Terminate:      terminate,
		Output:         output,
		Reporter:       progress.Tee(reporters...),
	})

	if runner != nil {
		if err := runner.Stop(); err != nil {
			logger.Warn("progress display failed", "error", err)
		}

		_, _ = logBuf.WriteTo(root.ErrWriter)
	}

	if path := cmd.String(outFlag); path != "" {
		if err := writeRecords(path, outcome); err != nil {
			logger.Error(err.Error())
			return cli.Exit(cliExitStr, 1)
		}
	}

	logOutcome(logger, outcome)

	if code := outcome.ExitCode(); code != 0 {
		return cli.Exit(cliExitStr, code)
	}

	return nil
}

// settings returns the configuration file overlaid with the flags that were set.
func settings(cmd *cli.Command) (config.Config, error) {
	cfg, err := cmdstate.LoadConfig(cmd)
	if err != nil {
		return config.Config{}, err
	}

	strs := map[string]*string{
		queueFlag:  &cfg.Queue,
		repoFlag:   &cfg.Repo,
		commitFlag: &cfg.Commit,
	}
	for name, dst := range strs {
		if cmd.IsSet(name) {
			*dst = cmd.String(name)
		}
	}

	ints := map[string]*int{
		submittersFlag:   &cfg.Submitters,
		collectorsFlag:   &cfg.Collectors,
		fetchRetriesFlag: &cfg.FetchRetries,
	}
	for name, dst := range ints {
		if cmd.IsSet(name) {
			*dst = int(cmd.Int(name))
		}
	}

	if cmd.IsSet(fetchTimeoutFlag) {
		cfg.FetchTimeout = cmd.Duration(fetchTimeoutFlag)
	}

	if cmd.IsSet(jobTimeoutFlag) {
		cfg.JobTimeout = cmd.Duration(jobTimeoutFlag)
	}

	var errs []error

	if cfg.Repo == "" {
		errs = append(errs, ErrNoRepo)
	}

	if cfg.Commit == "" {
		errs = append(errs, ErrNoCommit)
	}

	errs = append(errs, cfg.Validate())

	return cfg, errors.Join(errs...)
}

// openSource picks where commands come from. The returned func releases the source.
// Ctrl+C at the interactive prompt requests termination on terminate.
func openSource(ctx context.Context, cmd *cli.Command, terminate chan<- struct{}) (source.Source, func(), error) {
	noop := func() {}

	if command := cmd.StringArg(commandArg); command != "" && !cmd.Bool(stdinFlag) {
		return source.Single(command), noop, nil
	}

	if location := cmd.String(fileFlag); location != "" {
		src, err := source.Open(ctx, cmdstate.FsFactory(), location)
		return src, noop, err
	}

	stdin := cmd.Root().Reader
	if stdin == nil {
		stdin = os.Stdin
	}

	if isTerminal(stdin) {
		prompt := source.Interactive(source.DefaultPrompt, func() {
			select {
			case terminate <- struct{}{}:
			default:
			}
		})

		return prompt, func() { _ = prompt.Close() }, nil
	}

	return source.Lines(stdin), noop, nil
}

func writeRecords(path string, outcome dispatch.Outcome) error {
	f, err := cmdstate.FsFactory().Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}

	if err := outcome.Records.WriteBinary(f); err != nil {
		_ = f.Close()
		return err
	}

	return f.Close()
}

func logOutcome(logger *slog.Logger, o dispatch.Outcome) {
	args := []any{
		"state", o.State.String(),
		"submitted", o.Submitted,
		"completed", o.Completed,
		"failed", o.Records.Failed(),
		"anomalies", o.Anomalies,
	}

	if o.Err != nil {
		logger.Error(o.Err.Error(), args...)
	} else {
		logger.Info("run finished", args...)
	}

	if o.CleanupErr != nil {
		logger.Error("cleanup incomplete", "error", o.CleanupErr, "failed", o.Cleanup.Failed)
	}
}
