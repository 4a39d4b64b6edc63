package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/signalnine/covbatch/internal/checkpoint"
	"github.com/signalnine/covbatch/internal/job"
)

var flagShowFailed bool

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show checkpoint progress",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			store := checkpoint.NewStore(cfg.Checkpoint.Path)
			st, err := store.Load()
			if err != nil {
				return err
			}

			total := "?"
			if m, err := job.LoadManifest(cfg.Manifest); err == nil {
				total = fmt.Sprint(m.Len())
			}
			fmt.Printf("Checkpoint: %s\n", store.Path())
			fmt.Printf("Resume index: %d/%s\n", st.ResumeIndex, total)
			fmt.Printf("Completed: %d\n", len(st.Completed))
			fmt.Printf("Failed: %d\n", len(st.Failed))
			if flagShowFailed {
				var keys []string
				for k := range st.Failed {
					keys = append(keys, string(k))
				}
				sort.Strings(keys)
				for _, k := range keys {
					fmt.Printf("  - %s\n", k)
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&flagShowFailed, "failed", false, "list failed job keys")
	return cmd
}
