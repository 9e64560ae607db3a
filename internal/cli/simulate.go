package cli

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/peterkovacs/vanity/internal/experiment"
	"github.com/peterkovacs/vanity/internal/store"
)

func init() {
	rootCmd.AddCommand(newSimulateCmd())
}

func newSimulateCmd() *cobra.Command {
	var (
		visitors int
		rates    string
		seed     int64
	)

	cmd := &cobra.Command{
		Use:   "simulate <name>",
		Short: "Drive synthetic traffic through an experiment",
		Long: `Mint random visitor identities, assign each one and record
participation, optionally converting at per-alternative rates. Useful
for trying out scoring before wiring up real traffic.

  vanity simulate hero -n 1000
  vanity simulate hero -n 1000 --rates "0.10,0.15"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var convertRates []float64
			if rates != "" {
				for _, p := range strings.Split(rates, ",") {
					r, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
					if err != nil || r < 0 || r > 1 {
						return fmt.Errorf("invalid conversion rate %q", p)
					}
					convertRates = append(convertRates, r)
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
				if convertRates != nil && len(convertRates) != len(exp.Alternatives) {
					return fmt.Errorf("got %d rates for %d alternatives", len(convertRates), len(exp.Alternatives))
				}

				rnd := rand.New(rand.NewSource(seed))
				engine := experiment.NewEngine(counters, experiment.WithDraw(rnd.Float64))

				assigned := make([]int, len(exp.Alternatives))
				converted := make([]int, len(exp.Alternatives))
				for v := 0; v < visitors; v++ {
					identity := uuid.NewString()
					index, err := engine.Participate(ctx, exp, identity)
					if err != nil {
						return err
					}
					assigned[index]++
					if convertRates != nil && rnd.Float64() < convertRates[index] {
						if _, err := engine.Convert(ctx, exp, identity); err != nil {
							return err
						}
						converted[index]++
					}
				}

				fmt.Printf("Simulated %d visitors through '%s':\n", visitors, exp.Name)
				for i := range exp.Alternatives {
					fmt.Printf("  %s: %d participants, %d converted\n",
						exp.Alternatives[i].Name(), assigned[i], converted[i])
				}
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&visitors, "visitors", "n", 100, "number of visitors to simulate")
	cmd.Flags().StringVar(&rates, "rates", "", "comma-separated conversion rate per alternative (optional)")
	cmd.Flags().Int64Var(&seed, "seed", 1, "random seed for draws and conversions")

	return cmd
}
