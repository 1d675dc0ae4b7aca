// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package dispatch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/matt-FFFFFF/dwqc/internal/broker"
	"github.com/matt-FFFFFF/dwqc/internal/cleanup"
	"github.com/matt-FFFFFF/dwqc/internal/collect"
	"github.com/matt-FFFFFF/dwqc/internal/ctxlog"
	"github.com/matt-FFFFFF/dwqc/internal/job"
	"github.com/matt-FFFFFF/dwqc/internal/progress"
	"github.com/matt-FFFFFF/dwqc/internal/results"
	"github.com/matt-FFFFFF/dwqc/internal/source"
	"github.com/matt-FFFFFF/dwqc/internal/submit"
)

const (
	defaultBuffer         = 1024
	defaultTick           = 500 * time.Millisecond
	defaultCollectorGrace = time.Second
	// one slot each for the source, the submitters and the collectors
	fatalSlots = 3
)

var (
	// ErrNoDialer is returned when Options has no Dial function.
	ErrNoDialer = errors.New("no broker dialer")
	// ErrNoSource is returned when Options has no Source.
	ErrNoSource = errors.New("no command source")
)

// Options describe one run.
type Options struct {
	// Dial opens broker connections. Every worker and the cleanup pass dial their own.
	Dial   broker.Dialer
	Source source.Source

	Queue  string
	Repo   string
	Commit string

	Submitters int
	Collectors int
	// Buffer is the capacity of the command, ack and result channels.
	Buffer int

	Enqueue      broker.EnqueueOptions
	FetchBatch   int
	FetchTimeout time.Duration
	FetchRetries int
	DeleteBatch  int

	// Tick is how often progress counters are reported.
	Tick time.Duration
	// CollectorGrace is how long collectors may take to stop before they are abandoned.
	CollectorGrace time.Duration

	// Terminate requests an abort. It may be nil.
	Terminate <-chan struct{}
	// Output receives the output of every completed command. Defaults to io.Discard.
	Output io.Writer
	// Reporter receives lifecycle events. Defaults to a NullReporter.
	Reporter progress.Reporter
}

func (o Options) withDefaults() Options {
	if o.Buffer < 1 {
		o.Buffer = defaultBuffer
	}

	if o.Tick <= 0 {
		o.Tick = defaultTick
	}

	if o.CollectorGrace <= 0 {
		o.CollectorGrace = defaultCollectorGrace
	}

	if o.Output == nil {
		o.Output = io.Discard
	}

	if o.Reporter == nil {
		o.Reporter = progress.NewNullReporter()
	}

	if o.DeleteBatch < 1 {
		o.DeleteBatch = cleanup.DefaultBatchSize
	}

	return o
}

// earlyLimit is how many ids can be in flight between the broker and the coordinator:
// the ack buffer plus one per submitter.
func earlyLimit(o Options) int {
	submitters := o.Submitters
	if submitters < 1 {
		submitters = submit.DefaultWorkers
	}

	return o.Buffer + submitters
}

func (o Options) check() []error {
	var errs []error

	if o.Dial == nil {
		errs = append(errs, ErrNoDialer)
	}

	if o.Source == nil {
		errs = append(errs, ErrNoSource)
	}

	return errs
}

// Outcome is the result of a run.
type Outcome struct {
	State State
	Inbox string
	// Failed is set once any completed command exited non-zero, or the run was aborted.
	Failed bool
	// Err is the stage error of a FAILED run.
	Err error

	Submitted int
	Completed int
	Total     int
	// Anomalies counts results that matched no submitted job, or were delivered twice.
	Anomalies int
	// Outstanding holds the ids still unanswered when the run ended, sorted.
	Outstanding []string

	Cleanup    cleanup.Report
	CleanupErr error

	Records results.Records
}

// ExitCode is 0 only when every command completed with status 0.
func (o Outcome) ExitCode() int {
	if o.State == StateDone && !o.Failed {
		return 0
	}

	return 1
}

// coordinator is the single goroutine that owns a runState.
type coordinator struct {
	opts    Options
	logger  *slog.Logger
	st      *runState
	inbox   string
	records results.Records
	anomaly int
	err     error

	cleanupReport cleanup.Report
	cleanupErr    error
}

// Run executes one invocation and blocks until it has ended.
// Cancelling ctx aborts the run and also abandons cleanup.
func Run(ctx context.Context, opts Options) Outcome {
	opts = opts.withDefaults()
	inbox := NewInbox()

	c := &coordinator{
		opts:   opts,
		logger: ctxlog.Logger(ctx).With("inbox", inbox),
		st:     newRunState(earlyLimit(opts)),
		inbox:  inbox,
	}

	if err := errors.Join(opts.check()...); err != nil {
		c.st.state = StateFailed
		c.err = err

		return c.outcome()
	}

	ctx = ctxlog.New(ctx, c.logger)
	c.report(progress.EventStarted, progress.EventData{Inbox: inbox})
	c.logger.Info("run started", "queue", opts.Queue)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		cmds      = make(chan job.CommandBody, opts.Buffer)
		acks      = make(chan string, opts.Buffer)
		resultsCh = make(chan job.Result, opts.Buffer)
		exhausted = make(chan source.Exhausted, 1)
		fatal     = make(chan error, fatalSlots)

		submitDone  = make(chan struct{})
		collectDone = make(chan struct{})
	)

	build := func(command string) job.CommandBody {
		return job.NewCommandBody(opts.Repo, opts.Commit, command, inbox)
	}

	// a source blocked on its input is never joined
	go func() {
		exhausted <- source.Feed(runCtx, opts.Source, build, cmds)
	}()

	pool := &submit.Pool{
		Workers: opts.Submitters,
		Dial:    opts.Dial,
		Queue:   opts.Queue,
		Options: opts.Enqueue,
	}

	go func() {
		defer close(submitDone)

		if err := pool.Run(runCtx, cmds, acks); err != nil {
			fatal <- err
		}
	}()

	collector := &collect.Collector{
		Workers: opts.Collectors,
		Dial:    opts.Dial,
		Inbox:   inbox,
		Batch:   opts.FetchBatch,
		Timeout: opts.FetchTimeout,
		Retries: opts.FetchRetries,
	}

	go func() {
		defer close(collectDone)

		if err := collector.Run(runCtx, resultsCh); err != nil {
			fatal <- err
		}
	}()

	c.loop(ctx, acks, resultsCh, exhausted, fatal)

	cancel()

	// every id sent from here on belongs to a job the broker accepted
	for id := range acks {
		c.onAck(id)
	}

	<-submitDone

	select {
	case <-collectDone:
	case <-time.After(opts.CollectorGrace):
		c.logger.Warn("collectors did not stop in time, abandoning them")
	}

	for _, id := range c.st.strays() {
		c.anomaly++
		c.logger.Warn("discarding result for unknown job", "id", id)
	}

	if c.st.state == StateAborted {
		c.purge(ctx)
	}

	return c.outcome()
}

func (c *coordinator) loop(ctx context.Context, acks <-chan string, resultsCh <-chan job.Result,
	exhausted <-chan source.Exhausted, fatal <-chan error,
) {
	ticker := time.NewTicker(c.opts.Tick)
	defer ticker.Stop()

	for c.st.state.Running() {
		if c.st.complete() {
			c.st.state = StateDone
			c.logger.Info("all results received", "completed", c.st.completed)
			c.report(progress.EventCollected, progress.EventData{})

			return
		}

		select {
		case ex := <-exhausted:
			exhausted = nil

			if ex.Err != nil {
				c.fail(ex.Err)
				return
			}

			c.st.exhaust(ex.Total)
			c.logger.Info("command source exhausted", "total", ex.Total)
			c.report(progress.EventExhausted, progress.EventData{})

		case <-ticker.C:
			c.report(progress.EventTick, progress.EventData{})

		case id, ok := <-acks:
			if !ok {
				acks = nil
				continue
			}

			c.onAck(id)

		case res := <-resultsCh:
			c.onResult(res)

		case err := <-fatal:
			c.fail(err)
			return

		case <-c.opts.Terminate:
			c.abort("termination requested")
			return

		case <-ctx.Done():
			c.abort("context cancelled")
			return
		}
	}
}

func (c *coordinator) onAck(id string) {
	res, parked := c.st.ack(id)
	c.logger.Debug("job acknowledged", "id", id)

	if parked {
		c.complete(res)
	}
}

func (c *coordinator) onResult(res job.Result) {
	switch c.st.classify(res) {
	case verdictCompleted:
		c.complete(res)
	case verdictParked:
		c.st.park(res)
		c.logger.Debug("result arrived before its job id, parking", "id", res.JobID)
	case verdictDuplicate:
		c.anomaly++
		c.logger.Warn("discarding duplicate result", "id", res.JobID)
	case verdictUnknown:
		c.anomaly++
		c.logger.Warn("discarding result for unknown job", "id", res.JobID)
	}
}

func (c *coordinator) complete(res job.Result) {
	c.st.finish(res)
	c.records = append(c.records, results.FromResult(res))

	if _, err := io.WriteString(c.opts.Output, res.Output()); err != nil {
		c.logger.Debug("failed to write command output", "id", res.JobID, "error", err.Error())
	}

	c.report(progress.EventResult, progress.EventData{
		JobID:   res.JobID,
		Command: res.Outcome.Body.Command,
		Status:  res.Outcome.Status,
	})
}

func (c *coordinator) fail(err error) {
	c.st.state = StateFailed
	c.err = err
	c.logger.Error("run failed", "error", err.Error())
	c.report(progress.EventFailed, progress.EventData{Error: err})
}

func (c *coordinator) abort(reason string) {
	c.st.state = StateAborted
	c.st.aborted = true
	c.logger.Warn("run aborted", "reason", reason, "outstanding", len(c.st.outstanding))
	c.report(progress.EventAborted, progress.EventData{})
}

func (c *coordinator) purge(ctx context.Context) {
	ids := c.st.outstandingIDs()
	if len(ids) == 0 {
		return
	}

	c.report(progress.EventCancelling, progress.EventData{})

	rep, err := cleanup.Purge(ctx, c.opts.Dial, ids, c.opts.DeleteBatch)
	c.cleanupReport = rep
	c.cleanupErr = err

	if err != nil {
		c.logger.Error("cleanup incomplete", "failed", rep.Failed, "error", err.Error())
		return
	}

	c.logger.Info("outstanding jobs deleted", "batches", rep.Batches, "deleted", rep.Deleted)
}

func (c *coordinator) report(t progress.EventType, data progress.EventData) {
	c.opts.Reporter.Report(progress.Event{
		Type:      t,
		Timestamp: time.Now(),
		Counters:  c.st.counters(),
		Data:      data,
	})
}

func (c *coordinator) outcome() Outcome {
	return Outcome{
		State:       c.st.state,
		Inbox:       c.inbox,
		Failed:      c.st.failed || c.st.aborted,
		Err:         c.err,
		Submitted:   c.st.submitted,
		Completed:   c.st.completed,
		Total:       c.st.total,
		Anomalies:   c.anomaly,
		Outstanding: c.st.outstandingIDs(),
		Cleanup:     c.cleanupReport,
		CleanupErr:  c.cleanupErr,
		Records:     c.records,
	}
}
