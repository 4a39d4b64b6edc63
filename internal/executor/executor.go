// Package executor runs the per-job pipeline: locate the generated test,
// check out the buggy revision, place the test, compile, run it and measure
// coverage.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/signalnine/covbatch/internal/adapter"
	"github.com/signalnine/covbatch/internal/coverage"
	"github.com/signalnine/covbatch/internal/job"
	"github.com/signalnine/covbatch/internal/locate"
	"github.com/signalnine/covbatch/internal/result"
)

// Commands are shell templates for each toolchain stage. Placeholders:
// {home}, {project}, {bug}, {model}, {workspace}, {test}.
type Commands struct {
	Checkout    string
	ExportTests string
	Compile     string
	Test        string
	Coverage    string
}

var DefaultCommands = Commands{
	Checkout:    "cd {home} && ./framework/bin/defects4j checkout -p {project} -v {bug}b -w {workspace}",
	ExportTests: "cd {workspace} && {home}/framework/bin/defects4j export -p dir.src.tests",
	Compile:     "cd {workspace} && {home}/framework/bin/defects4j compile",
	Test:        "cd {workspace} && {home}/framework/bin/defects4j test -t {test}",
	Coverage:    "cd {workspace} && {home}/framework/bin/defects4j coverage -t {test}",
}

type Toolchain struct {
	// Home is the toolchain installation in the execution environment.
	Home string
	// WorkspaceBase is the execution-environment directory holding one
	// workspace per job key.
	WorkspaceBase string
	Commands      Commands
}

type Opts struct {
	Adapter    adapter.Adapter
	TestsDir   string
	ResultsDir string
	Toolchain  Toolchain
	Logger     *slog.Logger
	Now        func() time.Time

	// WriteMetadata writes metadata.json next to the coverage artifact.
	// Leave it off when the outcome index already stores per-key files.
	WriteMetadata bool
}

type Executor struct {
	adapter       adapter.Adapter
	testsDir      string
	resultsDir    string
	tc            Toolchain
	logger        *slog.Logger
	now           func() time.Time
	writeMetadata bool
}

func New(opts Opts) *Executor {
	tc := opts.Toolchain
	tc.Commands = withDefaults(tc.Commands)
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Executor{
		adapter:       opts.Adapter,
		testsDir:      opts.TestsDir,
		resultsDir:    opts.ResultsDir,
		tc:            tc,
		logger:        logger,
		now:           now,
		writeMetadata: opts.WriteMetadata,
	}
}

func withDefaults(c Commands) Commands {
	if c.Checkout == "" {
		c.Checkout = DefaultCommands.Checkout
	}
	if c.ExportTests == "" {
		c.ExportTests = DefaultCommands.ExportTests
	}
	if c.Compile == "" {
		c.Compile = DefaultCommands.Compile
	}
	if c.Test == "" {
		c.Test = DefaultCommands.Test
	}
	if c.Coverage == "" {
		c.Coverage = DefaultCommands.Coverage
	}
	return c
}

// Workspace is the execution-environment workspace for d.
func (e *Executor) Workspace(d job.Descriptor) string {
	return path.Join(e.tc.WorkspaceBase, fmt.Sprintf("%s_%s_%s", d.Project, d.BugID, d.Model))
}

// stageError stops the pipeline with the given kind.
type stageError struct {
	kind result.ErrorKind
	msg  string
}

func (s *stageError) Error() string { return s.msg }

// Execute runs the pipeline for d. It never returns nil and never panics on
// toolchain failures; every failure is recorded in the Outcome.
func (e *Executor) Execute(ctx context.Context, d job.Descriptor) *result.Outcome {
	start := e.now()
	out := &result.Outcome{Descriptor: d}
	// An artifact from an earlier attempt must not outlive a failed one.
	stale := filepath.Join(result.KeyDir(e.resultsDir, d), result.CoverageFileName)
	if err := os.Remove(stale); err != nil && !os.IsNotExist(err) {
		e.logger.Warn("removing stale coverage artifact", "job", d.String(), "error", err)
	}
	err := e.run(ctx, out)
	out.DurationS = e.now().Sub(start).Seconds()
	out.Timestamp = e.now()
	if err != nil {
		var se *stageError
		if errors.As(err, &se) {
			out.ErrorKind = se.kind
		} else {
			out.ErrorKind = result.InternalError
		}
		out.Error = err.Error()
		out.CoverageSucceeded = false
		if out.ErrorKind != result.CoverageUnavailable {
			out.Coverage = nil
		}
	}
	return out
}

func (e *Executor) run(ctx context.Context, out *result.Outcome) error {
	d := out.Descriptor
	log := e.logger.With("job", d.String())

	test, err := locate.Find(e.testsDir, d)
	if err != nil {
		return &stageError{result.TestNotFound, err.Error()}
	}
	out.TestClass = test.ClassName
	out.TestFile = filepath.Base(test.Path)
	log.Debug("located test", "file", test.Path, "class", test.QualifiedName())

	ws := e.Workspace(d)
	out.Workspace = ws
	vars := strings.NewReplacer(
		"{home}", e.tc.Home,
		"{project}", adapter.Quote(d.Project),
		"{bug}", adapter.Quote(d.BugID),
		"{model}", adapter.Quote(d.Model),
		"{workspace}", adapter.Quote(ws),
		"{test}", adapter.Quote(test.QualifiedName()),
	)

	// Checkout into a fresh workspace.
	if _, err := e.exec(ctx, "rm -rf "+adapter.Quote(ws), result.CheckoutFailed); err != nil {
		return err
	}
	if _, err := e.exec(ctx, vars.Replace(e.tc.Commands.Checkout), result.CheckoutFailed); err != nil {
		return err
	}
	out.CheckoutOK = true

	// Place the test in the declared test source root.
	res, err := e.exec(ctx, vars.Replace(e.tc.Commands.ExportTests), result.PlacementFailed)
	if err != nil {
		return err
	}
	testSrc := lastLine(res.Stdout)
	if testSrc == "" {
		return &stageError{result.PlacementFailed, "toolchain reported no test source directory"}
	}
	dest := path.Join(ws, testSrc, test.PackageDir())
	place := fmt.Sprintf("mkdir -p %s && cp %s %s/",
		adapter.Quote(dest), adapter.Quote(e.adapter.ExecPath(test.Path)), adapter.Quote(dest))
	if _, err := e.exec(ctx, place, result.PlacementFailed); err != nil {
		return err
	}

	if _, err := e.exec(ctx, vars.Replace(e.tc.Commands.Compile), result.CompileFailed); err != nil {
		return err
	}
	out.CompileOK = true

	// A failing test is a recorded outcome, not a pipeline error.
	testRes, err := e.adapter.Execute(ctx, vars.Replace(e.tc.Commands.Test))
	if err != nil {
		return fmt.Errorf("running test: %w", err)
	}
	out.TestPassed = testRes.OK()
	log.Debug("test finished", "exit", testRes.ExitStatus)

	return e.measureCoverage(ctx, out, vars, ws)
}

func (e *Executor) measureCoverage(ctx context.Context, out *result.Outcome, vars *strings.Replacer, ws string) error {
	covRes, err := e.adapter.Execute(ctx, vars.Replace(e.tc.Commands.Coverage))
	if err != nil {
		return fmt.Errorf("running coverage: %w", err)
	}

	resultDir := result.KeyDir(e.resultsDir, out.Descriptor)
	if err := os.MkdirAll(resultDir, 0o755); err != nil {
		return fmt.Errorf("creating result dir: %w", err)
	}
	localArtifact := filepath.Join(resultDir, result.CoverageFileName)
	copyCmd := fmt.Sprintf("cp %s %s/",
		adapter.Quote(path.Join(ws, result.CoverageFileName)), adapter.Quote(e.adapter.ExecPath(resultDir)))
	if _, err := e.adapter.Execute(ctx, copyCmd); err != nil {
		return fmt.Errorf("copying coverage artifact: %w", err)
	}

	if !covRes.OK() {
		out.ErrorKind = result.CoverageUnavailable
		out.Error = fmt.Sprintf("coverage exited %d", covRes.ExitStatus)
	} else if metrics, err := coverage.ParseFile(localArtifact); err != nil {
		out.ErrorKind = result.CoverageUnavailable
		out.Error = err.Error()
	} else {
		out.Coverage = metrics
		out.CoverageSucceeded = true
	}

	if !e.writeMetadata {
		return nil
	}
	if err := result.WriteOutcome(resultDir, out); err != nil {
		e.logger.Warn("writing outcome", "job", out.String(), "error", err)
	}
	return nil
}

// exec runs a stage command; a non-zero exit becomes a stageError of kind.
func (e *Executor) exec(ctx context.Context, command string, kind result.ErrorKind) (*adapter.Result, error) {
	res, err := e.adapter.Execute(ctx, command)
	if err != nil {
		return nil, fmt.Errorf("executing %q: %w", command, err)
	}
	if !res.OK() {
		return nil, &stageError{kind, fmt.Sprintf("exit %d: %s", res.ExitStatus, tail(res.Stdout+res.Stderr, 40))}
	}
	return res, nil
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}

func tail(s string, n int) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
