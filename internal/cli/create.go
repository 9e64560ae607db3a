package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"

	"github.com/peterkovacs/vanity/internal/experiment"
	"github.com/peterkovacs/vanity/internal/store"
)

func init() {
	rootCmd.AddCommand(newCreateCmd())
}

func newCreateCmd() *cobra.Command {
	var (
		alternatives string
		weights      string
		defaultValue string
		metric       string
	)

	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Declare a new experiment",
		Long: `Declare an experiment with the given alternatives and save it.

Examples:
  vanity create "big button" --alternatives "red,green"
  vanity create pricing --alternatives "19,25,29" --weights "80,10,10"
  vanity create hero --alternatives "Ship Faster,Build Better" --default "Ship Faster"

With no --alternatives flag the alternatives are prompted interactively.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]

			values, err := parseAlternatives(alternatives)
			if err != nil {
				return err
			}

			exp := experiment.New(name, values...)
			if weights != "" {
				if exp.Weights, err = parseWeights(weights); err != nil {
					return err
				}
			}
			if metric != "" {
				exp.Metrics = []string{metric}
			}
			if defaultValue != "" {
				if err := exp.SetDefault(defaultValue); err != nil {
					return err
				}
			}

			warnings, err := exp.Save()
			if err != nil {
				return err
			}
			for _, w := range warnings {
				fmt.Printf("warning: %s\n", w.Message)
			}

			return withStore(func(s *store.SQLiteStore) error {
				ctx := context.Background()
				if err := s.SaveExperiment(ctx, exp); err != nil {
					return err
				}
				if err := s.SetCreatedAt(ctx, exp.ID(), exp.CreatedAt); err != nil {
					return err
				}
				if err := s.SetEnabled(ctx, exp.ID(), true); err != nil {
					return err
				}

				fmt.Printf("Created experiment '%s' with %d alternatives:\n", exp.Name, len(exp.Alternatives))
				for i := range exp.Alternatives {
					a := &exp.Alternatives[i]
					line := fmt.Sprintf("  %d: %s = %v", i, a.Name(), a.Value)
					if len(exp.Weights) > 0 {
						line += fmt.Sprintf(" (weight %g)", exp.Weights[i])
					}
					fmt.Println(line)
				}
				fmt.Printf("  Default: %s\n", exp.Default().Name())
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&alternatives, "alternatives", "a", "", "comma-separated alternative values")
	cmd.Flags().StringVarP(&weights, "weights", "w", "", "comma-separated selection weights (optional)")
	cmd.Flags().StringVar(&defaultValue, "default", "", "default alternative value (optional)")
	cmd.Flags().StringVar(&metric, "metric", "", "metric to track (optional, defaults to one named after the experiment)")

	return cmd
}

// parseAlternatives splits the flag value, or prompts for alternatives
// one by one when the flag was not given.
func parseAlternatives(flag string) ([]any, error) {
	if flag != "" {
		parts := strings.Split(flag, ",")
		values := make([]any, 0, len(parts))
		for _, p := range parts {
			values = append(values, strings.TrimSpace(p))
		}
		if len(values) < 2 {
			return nil, fmt.Errorf("need at least 2 alternatives. Example: --alternatives \"red,green\"")
		}
		return values, nil
	}

	var values []any
	for {
		prompt := promptui.Prompt{
			Label: fmt.Sprintf("Alternative %d (empty to finish)", len(values)),
		}
		value, err := prompt.Run()
		if err != nil {
			return nil, fmt.Errorf("prompt failed: %w", err)
		}
		if value == "" {
			if len(values) < 2 {
				return nil, fmt.Errorf("need at least 2 alternatives")
			}
			return values, nil
		}
		values = append(values, value)
	}
}

func parseWeights(flag string) ([]float64, error) {
	parts := strings.Split(flag, ",")
	weights := make([]float64, 0, len(parts))
	for _, p := range parts {
		w, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid weight %q: %w", p, err)
		}
		weights = append(weights, w)
	}
	return weights, nil
}
