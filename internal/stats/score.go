// Package stats scores experiment alternatives from their aggregate
// counts and derives a recommended outcome. Two strategies share one
// contract: a frequentist two-proportion z-test and a Bayesian bandit
// over Beta posteriors. Degenerate inputs (no participants, zero
// variance) produce absent or non-finite fields, never an error:
// statistical inconclusiveness is represented in the output.
package stats

import (
	"math"
	"sort"

	"github.com/peterkovacs/vanity/internal/experiment"
)

// Method names the strategy that produced a Score.
type Method string

const (
	MethodZScore Method = "z_score"
	MethodBandit Method = "bayes_bandit"
)

// DefaultThreshold is the probability (percent) an alternative must
// reach before it is recommended as the choice.
const DefaultThreshold = 90.0

// Score is the outcome of scoring all alternatives of one experiment.
// Alternatives are annotated copies in original index order; Base,
// Least, Best and Choice point into that slice.
type Score struct {
	Alternatives []experiment.Alternative

	// Base is the runner-up by conversion rate, the z-test baseline.
	Base *experiment.Alternative
	// Least is the worst performer among alternatives that converted.
	Least *experiment.Alternative
	// Best is the top performer, absent unless its rate is positive.
	Best *experiment.Alternative
	// Choice is the recommended outcome: the fixed outcome when the
	// experiment was completed with one, else Best when its probability
	// clears the threshold, else absent.
	Choice *experiment.Alternative

	Method Method
}

// Scorer is one scoring strategy. The outcome argument is the fixed
// outcome of a completed experiment, if any; threshold is the minimum
// probability (percent) for recommending a choice.
type Scorer interface {
	Score(alts []experiment.Alternative, outcome *experiment.Alternative, threshold float64) Score
}

// ZScorer is the frequentist strategy: each alternative's conversion
// rate is compared against the runner-up's with a two-proportion z
// statistic, mapped onto one-tailed normal critical values.
type ZScorer struct{}

func (ZScorer) Score(alts []experiment.Alternative, outcome *experiment.Alternative, threshold float64) Score {
	s := Score{
		Method:       MethodZScore,
		Alternatives: append([]experiment.Alternative(nil), alts...),
	}
	order := rateOrder(s.Alternatives)
	if len(order) < 2 {
		return s
	}

	base := &s.Alternatives[order[len(order)-2]]
	pc := base.ConversionRate()
	nc := float64(base.Participants())

	for i := range s.Alternatives {
		a := &s.Alternatives[i]
		p := a.ConversionRate()
		n := float64(a.Participants())
		// With zero participants on either side this yields NaN or Inf;
		// non-finite z is the defined "no signal" output, not an error.
		z := (p - pc) / math.Sqrt(math.Abs(p*(1-p)/n+pc*(1-pc)/nc))
		prob := probabilityForZ(z)
		a.ZScore = &z
		a.Probability = &prob
	}

	s.Base = base
	s.Least, s.Best = leastAndBest(s.Alternatives, order)
	annotateDifferences(s.Alternatives, s.Least)
	s.Choice = choose(&s, outcome, threshold)
	return s
}

// probabilityForZ maps a z statistic onto the one-tailed normal
// critical-value table. The four cutoffs are the full confidence table;
// anything below 1.28 carries no signal.
func probabilityForZ(z float64) float64 {
	switch {
	case z >= 3.08:
		return 99.9
	case z >= 2.33:
		return 99
	case z >= 1.65:
		return 95
	case z >= 1.28:
		return 90
	default:
		return 0
	}
}

// rateOrder returns alternative indexes sorted by conversion rate
// ascending. The sort is stable so equal rates keep declaration order.
func rateOrder(alts []experiment.Alternative) []int {
	order := make([]int, len(alts))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		return alts[order[i]].ConversionRate() < alts[order[j]].ConversionRate()
	})
	return order
}

// leastAndBest picks the lowest and highest performers, counting only
// alternatives that actually converted.
func leastAndBest(alts []experiment.Alternative, order []int) (least, best *experiment.Alternative) {
	for _, idx := range order {
		if alts[idx].ConversionRate() > 0 {
			least = &alts[idx]
			break
		}
	}
	if top := &alts[order[len(order)-1]]; top.ConversionRate() > 0 {
		best = top
	}
	return least, best
}

// annotateDifferences writes the percentage improvement over the least
// performer onto every alternative that beats it. A zero least rate
// (possible only through floating-point edge cases) annotates nothing
// rather than dividing by zero.
func annotateDifferences(alts []experiment.Alternative, least *experiment.Alternative) {
	if least == nil {
		return
	}
	leastRate := least.ConversionRate()
	if leastRate <= 0 {
		return
	}
	for i := range alts {
		if rate := alts[i].ConversionRate(); rate > leastRate {
			d := (rate - leastRate) / leastRate * 100
			alts[i].Difference = &d
		}
	}
}

// choose resolves the recommended outcome: a fixed outcome wins
// outright, else the best performer must clear the threshold.
func choose(s *Score, outcome *experiment.Alternative, threshold float64) *experiment.Alternative {
	if outcome != nil {
		for i := range s.Alternatives {
			if s.Alternatives[i].Index == outcome.Index {
				return &s.Alternatives[i]
			}
		}
	}
	if s.Best != nil && s.Best.Probability != nil && *s.Best.Probability >= threshold {
		return s.Best
	}
	return nil
}
