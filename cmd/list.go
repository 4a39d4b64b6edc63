package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/signalnine/covbatch/internal/job"
)

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Show the manifest's job distribution",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			m, err := job.LoadManifest(cfg.Manifest)
			if err != nil {
				return err
			}
			fmt.Printf("Manifest %s: %d jobs", cfg.Manifest, m.Len())
			if m.Duplicates > 0 {
				fmt.Printf(" (%d duplicates dropped)", m.Duplicates)
			}
			fmt.Println()

			counts := m.CountByProject()
			projects := make([]string, 0, len(counts))
			for p := range counts {
				projects = append(projects, p)
			}
			sort.Strings(projects)
			for _, p := range projects {
				fmt.Printf("  - %s: %d\n", p, counts[p])
			}
			return nil
		},
	}
}
