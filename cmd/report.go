package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/signalnine/covbatch/internal/aggregate"
	"github.com/signalnine/covbatch/internal/outcomestore"
	"github.com/signalnine/covbatch/internal/report"
)

var (
	flagFormat      string
	flagHistory     []string
	flagCompilation string
	flagTop         int
)

func newReportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Aggregate stored outcomes into a summary report",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg)
			if err != nil {
				return err
			}
			index, err := outcomestore.Open(cfg.Results.Index, cfg.Results.Dir, logger)
			if err != nil {
				return err
			}
			defer index.Close()

			outcomes, err := report.Gather(index, flagHistory)
			if err != nil {
				return err
			}

			records := aggregate.CompileRecords(outcomes)
			if flagCompilation != "" {
				records, err = aggregate.LoadCompileRecords(flagCompilation)
				if err != nil {
					return err
				}
			}
			compile := aggregate.AnalyzeCompilation(records)
			return report.Generate(outcomes, &compile, flagTop, flagFormat, os.Stdout)
		},
	}
	cmd.Flags().StringVar(&flagFormat, "format", "table", "output format (table, markdown, json)")
	cmd.Flags().StringSliceVar(&flagHistory, "history", nil, "prior coverage_summary.csv or detail JSON files to merge in")
	cmd.Flags().StringVar(&flagCompilation, "compilation", "", "external compilation results JSON for failure analysis")
	cmd.Flags().IntVar(&flagTop, "top", report.DefaultTopK, "size of the coverage ranking")
	return cmd
}
