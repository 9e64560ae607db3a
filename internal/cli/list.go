package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/peterkovacs/vanity/internal/store"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List all experiments",
	RunE:  runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	return withStore(func(s *store.SQLiteStore) error {
		experiments, err := s.ListExperiments(context.Background())
		if err != nil {
			return fmt.Errorf("failed to list experiments: %w", err)
		}

		if len(experiments) == 0 {
			fmt.Println("No experiments yet. Create one with 'vanity create'.")
			return nil
		}

		fmt.Println("NAME                  ALTERNATIVES  MODE      STATE      CREATED")
		fmt.Println(strings.Repeat("─", 72))
		for _, e := range experiments {
			mode := "uniform"
			if e.Weighted() {
				mode = "weighted"
			}
			state := "running"
			switch {
			case e.Completed:
				state = "completed"
			case !e.Enabled:
				state = "disabled"
			}

			name := e.Name
			if len(name) > 20 {
				name = name[:17] + "..."
			}
			fmt.Printf("%-20s  %-12d  %-8s  %-9s  %s\n",
				name, len(e.Alternatives), mode, state, e.CreatedAt.Format("2006-01-02"))
		}
		return nil
	})
}
