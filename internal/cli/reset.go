package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"

	"github.com/peterkovacs/vanity/internal/store"
)

func init() {
	rootCmd.AddCommand(newResetCmd())
}

func newResetCmd() *cobra.Command {
	var (
		destroy bool
		yes     bool
	)

	cmd := &cobra.Command{
		Use:   "reset <name>",
		Short: "Wipe an experiment's counters",
		Long: `Wipe all participants, conversions and assignments for an
experiment. The definition is kept unless --destroy is given.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				prompt := promptui.Prompt{
					Label:     fmt.Sprintf("Wipe all data for '%s'", args[0]),
					IsConfirm: true,
				}
				if _, err := prompt.Run(); err != nil {
					fmt.Println("Aborted.")
					return nil
				}
			}

			return withStore(func(s *store.SQLiteStore) error {
				counters, cleanup, err := counterStore(s)
				if err != nil {
					return err
				}
				defer cleanup()

				ctx := context.Background()
				exp, err := s.GetExperiment(ctx, args[0])
				if err != nil {
					if errors.Is(err, store.ErrNotFound) {
						return fmt.Errorf("experiment '%s' not found", args[0])
					}
					return fmt.Errorf("failed to get experiment: %w", err)
				}

				if err := counters.Destroy(ctx, exp.ID()); err != nil {
					return err
				}
				if destroy {
					if err := s.DeleteExperiment(ctx, exp.Name); err != nil {
						return err
					}
					fmt.Printf("Destroyed experiment '%s'.\n", exp.Name)
					return nil
				}
				fmt.Printf("Reset counters for experiment '%s'.\n", exp.Name)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&destroy, "destroy", false, "also delete the experiment definition")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip confirmation")

	return cmd
}
