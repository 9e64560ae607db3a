package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/peterkovacs/vanity/internal/store"
)

func init() {
	rootCmd.AddCommand(newWinnerCmd())
}

func newWinnerCmd() *cobra.Command {
	var alternativeIndex int

	cmd := &cobra.Command{
		Use:   "winner <name>",
		Short: "Complete an experiment with a fixed outcome",
		Long: `Complete an experiment and fix its outcome alternative.

From then on every assignment returns the outcome and scoring reports
it as the choice regardless of confidence.

Example:
  vanity winner hero --alternative 0`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
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

				if exp.Completed {
					return fmt.Errorf("experiment '%s' is already completed", exp.Name)
				}
				if err := exp.Complete(alternativeIndex); err != nil {
					return err
				}

				if err := s.SaveExperiment(ctx, exp); err != nil {
					return fmt.Errorf("failed to save experiment: %w", err)
				}
				if err := counters.SetOutcome(ctx, exp.ID(), alternativeIndex); err != nil {
					return err
				}
				if err := counters.SetCompletedAt(ctx, exp.ID(), time.Now()); err != nil {
					return err
				}
				if err := counters.SetEnabled(ctx, exp.ID(), false); err != nil {
					return err
				}

				chosen, _ := exp.AlternativeAt(alternativeIndex)
				fmt.Printf("Completed experiment '%s': outcome %s (%v)\n", exp.Name, chosen.Name(), chosen.Value)
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&alternativeIndex, "alternative", "a", -1, "winning alternative index (required)")
	cmd.MarkFlagRequired("alternative")

	return cmd
}
