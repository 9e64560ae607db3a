package cli

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/spf13/cobra"

	"github.com/peterkovacs/vanity/internal/experiment"
	"github.com/peterkovacs/vanity/internal/stats"
	"github.com/peterkovacs/vanity/internal/store"
)

func init() {
	rootCmd.AddCommand(newResultsCmd())
}

func newResultsCmd() *cobra.Command {
	var (
		method    string
		threshold float64
		steps     int
	)

	cmd := &cobra.Command{
		Use:   "results <name>",
		Short: "Score an experiment and explain the result",
		Long: `Score an experiment from its recorded counts and print the
per-alternative statistics plus the conclusions.

  vanity results hero
  vanity results hero --method bayes_bandit
  vanity results hero --threshold 95`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var scorer stats.Scorer
			switch method {
			case "z_score":
				scorer = stats.ZScorer{}
			case "bayes_bandit":
				scorer = stats.BanditScorer{Steps: steps}
			default:
				return fmt.Errorf("unknown method %q (want z_score or bayes_bandit)", method)
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

				for i := range exp.Alternatives {
					exp.Alternatives[i].Load(ctx, counters)
				}
				var outcome *experiment.Alternative
				if exp.Completed && exp.Outcome != nil {
					outcome, _ = exp.AlternativeAt(*exp.Outcome)
				}

				score := scorer.Score(exp.Alternatives, outcome, threshold)
				printScore(exp, score)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&method, "method", "m", "z_score", "scoring method: z_score or bayes_bandit")
	cmd.Flags().Float64VarP(&threshold, "threshold", "t", stats.DefaultThreshold, "probability (percent) required to recommend a winner")
	cmd.Flags().IntVar(&steps, "steps", 0, "bandit integration steps (0 = default)")

	return cmd
}

func printScore(exp *experiment.Experiment, score stats.Score) {
	fmt.Printf("EXPERIMENT: %s\n", exp.Name)
	state := "running"
	switch {
	case exp.Completed:
		state = "completed"
	case !exp.Enabled:
		state = "disabled"
	}
	fmt.Printf("STATE: %s\n", state)
	fmt.Printf("METHOD: %s\n", score.Method)
	fmt.Printf("CREATED: %s\n", exp.CreatedAt.Format("2006-01-02"))
	fmt.Println()

	fmt.Println("ALTERNATIVE       PARTICIPANTS  CONVERTED  RATE     Z-SCORE  PROBABILITY")
	fmt.Println(strings.Repeat("─", 74))
	for i := range score.Alternatives {
		a := &score.Alternatives[i]
		indicator := ""
		if score.Best != nil && score.Best.Index == a.Index {
			indicator = " ← BEST"
		}
		fmt.Printf("%-16s  %-12d  %-9d  %-7s  %-7s  %s%s\n",
			a.Name(),
			a.Participants(),
			a.Converted(),
			formatPercent(a.ConversionRate()),
			formatZ(a.ZScore),
			formatProbability(a.Probability),
			indicator,
		)
	}
	fmt.Println()

	for _, claim := range stats.Conclude(score) {
		fmt.Println(renderClaim(claim))
	}
}

// renderClaim turns a structured claim into English. Phrasing lives
// here, in the presentation layer; the claims themselves are data.
func renderClaim(c stats.Claim) string {
	switch c.Kind {
	case stats.ClaimNoParticipants:
		return "There are no participants in this experiment yet."
	case stats.ClaimTotalParticipants:
		return fmt.Sprintf("There are %d participants in this experiment.", c.Participants)
	case stats.ClaimNoClearWinner:
		return "This experiment did not run long enough to find a clear winner."
	case stats.ClaimLeading:
		return fmt.Sprintf("The best choice is %s: it converted at %.1f%% (%.0f%% better than the runner-up).",
			c.Alternative.Name(), c.Rate, c.Improvement)
	case stats.ClaimSignificant:
		return fmt.Sprintf("With %.1f%% probability this result is statistically significant.", c.Probability)
	case stats.ClaimNotSignificant:
		return "This result is not statistically significant; keep collecting data."
	case stats.ClaimBanditLikelyBest:
		return fmt.Sprintf("With %.1f%% probability this alternative has the highest conversion rate.", c.Probability)
	case stats.ClaimBanditTooEarly:
		return fmt.Sprintf("Too early to call: %.1f%% probability this alternative is the best.", c.Probability)
	case stats.ClaimConvertedAtRate:
		return fmt.Sprintf("%s converted at %.1f%%.", c.Alternative.Name(), c.Rate)
	case stats.ClaimDidNotConvert:
		return fmt.Sprintf("%s did not convert.", c.Alternative.Name())
	case stats.ClaimChosen:
		return fmt.Sprintf("%s selected as the best alternative.", c.Alternative.Name())
	default:
		return string(c.Kind)
	}
}

func formatPercent(rate float64) string {
	if rate == 0 {
		return "0%"
	}
	return fmt.Sprintf("%.2f%%", rate*100)
}

func formatZ(z *float64) string {
	if z == nil || math.IsNaN(*z) || math.IsInf(*z, 0) {
		return "N/A"
	}
	return fmt.Sprintf("%.2f", *z)
}

func formatProbability(p *float64) string {
	if p == nil {
		return "N/A"
	}
	return fmt.Sprintf("%.1f%%", *p)
}
