// Package batch drives the manifest through the job executor, keeping the
// checkpoint current so an interrupted batch resumes where it stopped.
package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/signalnine/covbatch/internal/aggregate"
	"github.com/signalnine/covbatch/internal/checkpoint"
	"github.com/signalnine/covbatch/internal/job"
	"github.com/signalnine/covbatch/internal/metrics"
	"github.com/signalnine/covbatch/internal/outcomestore"
	"github.com/signalnine/covbatch/internal/result"
)

type State string

const (
	Initializing State = "INITIALIZING"
	Running      State = "RUNNING"
	Completed    State = "COMPLETED"
	Interrupted  State = "INTERRUPTED"
	Fatal        State = "FATAL"
)

// ResumePolicy decides what happens to an existing checkpoint.
type ResumePolicy string

const (
	Resume  ResumePolicy = "resume"
	Restart ResumePolicy = "restart"
)

// FailedPolicy decides whether failed jobs below the resume index run again.
type FailedPolicy string

const (
	SkipFailed  FailedPolicy = "skip"
	RetryFailed FailedPolicy = "retry"
)

const DefaultFlushEvery = 10

// Executor runs one job. It must always return an Outcome.
type Executor interface {
	Execute(ctx context.Context, d job.Descriptor) *result.Outcome
}

// Progress is reported after every executed job.
type Progress struct {
	Index   int
	Total   int
	Retry   bool
	Outcome *result.Outcome
}

type Opts struct {
	Manifest   *job.Manifest
	Executor   Executor
	Checkpoint *checkpoint.Store
	// Outcomes, when set, receives every Outcome and supplies prior
	// outcomes for jobs below the resume index.
	Outcomes outcomestore.Store
	// ResultsDir receives the summary CSV and detail JSON. Empty skips them.
	ResultsDir      string
	Resume          ResumePolicy
	Failed          FailedPolicy
	FlushEvery      int
	Metrics         *metrics.Metrics
	MetricsTextfile string
	Logger          *slog.Logger
	OnJob           func(Progress)
	Now             func() time.Time
}

// Report is the result of one Run.
type Report struct {
	RunID string
	State State
	// Outcomes holds this run's outcomes in execution order.
	Outcomes []*result.Outcome
	// History holds stored outcomes for jobs not executed in this run.
	History    []*result.Outcome
	Checkpoint *checkpoint.State
	Elapsed    time.Duration
}

// All merges history and this run's outcomes, newest per key.
func (r *Report) All() []*result.Outcome {
	return aggregate.Merge(r.History, r.Outcomes)
}

type Runner struct {
	opts   Opts
	logger *slog.Logger
	now    func() time.Time
	state  State
}

func New(opts Opts) *Runner {
	if opts.FlushEvery <= 0 {
		opts.FlushEvery = DefaultFlushEvery
	}
	if opts.Resume == "" {
		opts.Resume = Resume
	}
	if opts.Failed == "" {
		opts.Failed = SkipFailed
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Runner{opts: opts, logger: logger, now: now, state: Initializing}
}

func (r *Runner) State() State { return r.state }

// Run executes the batch. Cancelling ctx stops the batch between jobs; the
// job in flight always finishes and is recorded. An error is returned only
// when the batch ends FATAL.
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	start := r.now()
	rep := &Report{RunID: uuid.NewString(), State: Initializing}

	st, err := r.loadState()
	if err != nil {
		return r.fatal(rep, err)
	}
	rep.Checkpoint = st

	jobs := r.opts.Manifest.Jobs
	total := len(jobs)
	if st.ResumeIndex > total {
		r.logger.Warn("resume index beyond manifest, clamping", "resume_index", st.ResumeIndex, "jobs", total)
		st.ResumeIndex = total
	}
	startIndex := st.ResumeIndex
	r.opts.Metrics.SetResumeIndex(startIndex)

	plan := r.plan(st, startIndex)
	rep.History = r.history(plan, startIndex)
	if startIndex > 0 {
		r.logger.Info("resuming batch", "resume_index", startIndex, "completed", len(st.Completed), "failed", len(st.Failed))
	}

	r.setState(rep, Running)
	var (
		executed    int
		busy        time.Duration
		interrupted bool
	)
	for pos, i := range plan {
		if ctx.Err() != nil {
			interrupted = true
			break
		}
		d := jobs[i]
		retry := i < startIndex
		if !retry && st.IsCompleted(d.Key()) {
			if prior := r.stored(d); prior != nil {
				rep.History = append(rep.History, prior)
				st.Advance(i + 1)
				continue
			}
		}

		jobStart := r.now()
		out := r.runJob(ctx, d)
		took := r.now().Sub(jobStart)
		busy += took
		executed++

		if out.Succeeded() {
			st.MarkCompleted(d.Key())
		} else {
			st.MarkFailed(d.Key())
		}
		if !retry {
			st.Advance(i + 1)
		}
		rep.Outcomes = append(rep.Outcomes, out)
		r.record(out, took)
		if r.opts.OnJob != nil {
			r.opts.OnJob(Progress{Index: i, Total: total, Retry: retry, Outcome: out})
		}

		if executed%r.opts.FlushEvery == 0 {
			if err := r.save(st); err != nil {
				return r.fatal(rep, err)
			}
			r.logETA(executed, busy, len(plan)-pos-1)
		}
	}

	if err := r.save(st); err != nil {
		return r.fatal(rep, err)
	}
	if interrupted {
		r.setState(rep, Interrupted)
		r.logger.Info("batch interrupted", "resume_index", st.ResumeIndex, "executed", executed)
	} else {
		r.setState(rep, Completed)
		r.logger.Info("batch completed", "executed", executed, "completed", len(st.Completed), "failed", len(st.Failed))
	}
	rep.Elapsed = r.now().Sub(start)

	if rep.State == Completed {
		if err := r.writeSummary(rep, total); err != nil {
			r.logger.Warn("writing summary", "error", err)
		}
	}
	if err := r.opts.Metrics.WriteTextfile(r.opts.MetricsTextfile); err != nil {
		r.logger.Warn("exporting metrics", "error", err)
	}
	return rep, nil
}

func (r *Runner) setState(rep *Report, s State) {
	r.state = s
	rep.State = s
}

func (r *Runner) fatal(rep *Report, err error) (*Report, error) {
	r.setState(rep, Fatal)
	r.logger.Error("batch failed", "error", err)
	return rep, err
}

func (r *Runner) loadState() (*checkpoint.State, error) {
	st, err := r.opts.Checkpoint.Load()
	switch {
	case errors.Is(err, checkpoint.ErrCorrupt) && r.opts.Resume == Restart:
		r.logger.Warn("discarding corrupt checkpoint", "path", r.opts.Checkpoint.Path(), "error", err)
		return checkpoint.New(), nil
	case err != nil:
		return nil, fmt.Errorf("loading checkpoint %s: %w", r.opts.Checkpoint.Path(), err)
	}
	if r.opts.Resume == Restart {
		st.Reset()
	}
	return st, nil
}

// plan lists manifest indices in execution order: retried failures below
// startIndex first, then everything from startIndex on.
func (r *Runner) plan(st *checkpoint.State, startIndex int) []int {
	jobs := r.opts.Manifest.Jobs
	var plan []int
	if r.opts.Failed == RetryFailed {
		for i := 0; i < startIndex; i++ {
			if st.IsFailed(jobs[i].Key()) {
				plan = append(plan, i)
			}
		}
	}
	for i := startIndex; i < len(jobs); i++ {
		plan = append(plan, i)
	}
	return plan
}

// history loads stored outcomes for jobs below startIndex that are not
// about to be retried.
func (r *Runner) history(plan []int, startIndex int) []*result.Outcome {
	if r.opts.Outcomes == nil || startIndex == 0 {
		return nil
	}
	retried := make(map[int]bool)
	for _, i := range plan {
		if i < startIndex {
			retried[i] = true
		}
	}
	var out []*result.Outcome
	for i, d := range r.opts.Manifest.Jobs[:startIndex] {
		if retried[i] {
			continue
		}
		if o := r.stored(d); o != nil {
			out = append(out, o)
		}
	}
	return out
}

// stored returns the indexed outcome for d, or nil when there is none.
func (r *Runner) stored(d job.Descriptor) *result.Outcome {
	if r.opts.Outcomes == nil {
		return nil
	}
	o, err := r.opts.Outcomes.Get(d)
	if err != nil {
		r.logger.Warn("loading prior outcome", "job", d.String(), "error", err)
		return nil
	}
	return o
}

func (r *Runner) runJob(ctx context.Context, d job.Descriptor) (out *result.Outcome) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("job panicked", "job", d.String(), "panic", p)
			out = result.Failed(d, result.InternalError, fmt.Sprintf("panic: %v", p), r.now())
		}
	}()
	// The job in flight runs to completion even if ctx is cancelled.
	out = r.opts.Executor.Execute(context.WithoutCancel(ctx), d)
	if out == nil {
		out = result.Failed(d, result.InternalError, "executor returned no outcome", r.now())
	}
	return out
}

func (r *Runner) record(out *result.Outcome, took time.Duration) {
	r.opts.Metrics.Observe(out, took)
	if r.opts.Outcomes != nil {
		if err := r.opts.Outcomes.Put(out); err != nil {
			r.logger.Warn("indexing outcome", "job", out.String(), "error", err)
		}
	}
	r.logger.Debug("job finished", "job", out.String(), "succeeded", out.Succeeded(), "kind", out.ErrorKind)
}

func (r *Runner) save(st *checkpoint.State) error {
	if err := r.opts.Checkpoint.Save(st); err != nil {
		return fmt.Errorf("saving checkpoint: %w", err)
	}
	r.opts.Metrics.CheckpointSaved()
	r.opts.Metrics.SetResumeIndex(st.ResumeIndex)
	return nil
}

func (r *Runner) logETA(executed int, busy time.Duration, left int) {
	mean := busy / time.Duration(executed)
	r.logger.Info("progress",
		"executed", executed,
		"remaining", left,
		"mean_job", mean.Round(time.Second).String(),
		"eta", (mean * time.Duration(left)).Round(time.Second).String())
}

func (r *Runner) writeSummary(rep *Report, total int) error {
	if r.opts.ResultsDir == "" {
		return nil
	}
	all := rep.All()
	sum := result.BatchSummary{
		RunID:          rep.RunID,
		TotalTests:     total,
		Analyzed:       len(all),
		ElapsedSeconds: rep.Elapsed.Seconds(),
		Timestamp:      r.now(),
	}
	for _, o := range all {
		if o.Succeeded() {
			sum.Successful++
		} else {
			sum.Failed++
		}
	}
	return result.WriteSummaryFiles(r.opts.ResultsDir, &result.Detail{Summary: sum, Results: all})
}
