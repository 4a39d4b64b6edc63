package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/signalnine/covbatch/internal/batch"
	"github.com/signalnine/covbatch/internal/checkpoint"
	"github.com/signalnine/covbatch/internal/executor"
	"github.com/signalnine/covbatch/internal/job"
	"github.com/signalnine/covbatch/internal/metrics"
	"github.com/signalnine/covbatch/internal/outcomestore"
	"github.com/signalnine/covbatch/internal/report"
)

var (
	flagResume      bool
	flagRestart     bool
	flagRetryFailed bool
	flagFlushEvery  int
	flagManifest    string
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run (or resume) the coverage batch",
		RunE:  runBatch,
	}
	cmd.Flags().BoolVar(&flagResume, "resume", false, "resume from the checkpoint without asking")
	cmd.Flags().BoolVar(&flagRestart, "restart", false, "discard the checkpoint and start over")
	cmd.Flags().BoolVar(&flagRetryFailed, "retry-failed", false, "re-run failed jobs below the resume point")
	cmd.Flags().IntVar(&flagFlushEvery, "flush-every", 0, "override checkpoint flush interval")
	cmd.Flags().StringVar(&flagManifest, "manifest", "", "override manifest path")
	cmd.MarkFlagsMutuallyExclusive("resume", "restart")
	return cmd
}

func runBatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if flagManifest != "" {
		cfg.Manifest = flagManifest
	}
	if flagFlushEvery > 0 {
		cfg.Checkpoint.FlushEvery = flagFlushEvery
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}

	manifest, err := job.LoadManifest(cfg.Manifest)
	if err != nil {
		return err
	}
	if manifest.Duplicates > 0 {
		logger.Warn("dropped duplicate manifest entries", "count", manifest.Duplicates)
	}
	fmt.Printf("Manifest: %d jobs\n", manifest.Len())

	store := checkpoint.NewStore(cfg.Checkpoint.Path)
	policy, err := resumePolicy(store, manifest.Len())
	if err != nil {
		return err
	}

	ad, closeAdapter, err := newAdapter(cfg, logger)
	if err != nil {
		return err
	}
	defer closeAdapter()

	outcomes, err := outcomestore.Open(cfg.Results.Index, cfg.Results.Dir, logger)
	if err != nil {
		return err
	}
	defer outcomes.Close()

	exec := executor.New(executor.Opts{
		Adapter:    ad,
		TestsDir:   cfg.TestsDir,
		ResultsDir: cfg.Results.Dir,
		Toolchain: executor.Toolchain{
			Home:          cfg.Toolchain.Home,
			WorkspaceBase: cfg.Toolchain.WorkspaceBase,
			Commands:      executor.Commands(cfg.Toolchain.Commands),
		},
		Logger:        logger,
		WriteMetadata: !filesIndex(cfg.Results.Index),
	})

	failed := batch.SkipFailed
	if flagRetryFailed {
		failed = batch.RetryFailed
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runner := batch.New(batch.Opts{
		Manifest:        manifest,
		Executor:        exec,
		Checkpoint:      store,
		Outcomes:        outcomes,
		ResultsDir:      cfg.Results.Dir,
		Resume:          policy,
		Failed:          failed,
		FlushEvery:      cfg.Checkpoint.FlushEvery,
		Metrics:         metrics.New(),
		MetricsTextfile: cfg.Metrics.Textfile,
		Logger:          logger,
		OnJob: func(p batch.Progress) {
			fmt.Println(progressLine(p))
		},
	})
	rep, err := runner.Run(ctx)
	if err != nil {
		return err
	}

	if rep.State == batch.Interrupted {
		fmt.Printf("\nInterrupted at job %d of %d. Progress saved to %s; run again to resume.\n",
			rep.Checkpoint.ResumeIndex, manifest.Len(), store.Path())
		return nil
	}
	fmt.Printf("\nCompleted in %s. Results in %s\n", rep.Elapsed.Round(time.Second), cfg.Results.Dir)
	fmt.Println("\n--- Results ---")
	return report.Generate(rep.All(), nil, report.DefaultTopK, "table", os.Stdout)
}

// resumePolicy maps flags onto a policy, asking on a terminal when a
// checkpoint exists and neither flag was given.
func resumePolicy(store *checkpoint.Store, total int) (batch.ResumePolicy, error) {
	switch {
	case flagRestart:
		return batch.Restart, nil
	case flagResume:
		return batch.Resume, nil
	}
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return batch.Resume, nil
	}
	st, err := store.Load()
	if err != nil {
		// The runner reports the corrupt checkpoint.
		return batch.Resume, nil
	}
	if st.ResumeIndex == 0 && len(st.Completed)+len(st.Failed) == 0 {
		return batch.Resume, nil
	}
	return promptResume(os.Stdin, os.Stdout, st, total), nil
}

func promptResume(in io.Reader, out io.Writer, st *checkpoint.State, total int) batch.ResumePolicy {
	fmt.Fprintf(out, "Found progress: %d/%d jobs done (%d completed, %d failed).\n",
		st.ResumeIndex, total, len(st.Completed), len(st.Failed))
	fmt.Fprint(out, "Resume? [Y/n] ")
	line, _ := bufio.NewReader(in).ReadString('\n')
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "n", "no":
		return batch.Restart
	default:
		return batch.Resume
	}
}

// filesIndex reports whether the outcome index already keeps metadata.json
// per key, so the executor need not write it too.
func filesIndex(kind string) bool {
	return kind == "" || kind == outcomestore.KindFiles
}
