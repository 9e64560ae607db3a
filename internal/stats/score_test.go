package stats_test

import (
	"math"
	"testing"

	"github.com/peterkovacs/vanity/internal/experiment"
	"github.com/peterkovacs/vanity/internal/stats"
)

func alt(index, participants, converted int) experiment.Alternative {
	a := experiment.Alternative{ExperimentID: "test", Index: index}
	a.SetCounts(experiment.Counts{
		Participants: participants,
		Converted:    converted,
		Conversions:  converted,
	})
	return a
}

func TestZScorer_ClearWinner(t *testing.T) {
	alts := []experiment.Alternative{
		alt(0, 100, 80),
		alt(1, 100, 40),
	}

	s := stats.ZScorer{}.Score(alts, nil, stats.DefaultThreshold)

	if s.Method != stats.MethodZScore {
		t.Errorf("Method = %q, want %q", s.Method, stats.MethodZScore)
	}
	if s.Base == nil || s.Base.Index != 1 {
		t.Fatalf("Base = %v, want index 1", s.Base)
	}
	if s.Best == nil || s.Best.Index != 0 {
		t.Fatalf("Best = %v, want index 0", s.Best)
	}
	if s.Least == nil || s.Least.Index != 1 {
		t.Fatalf("Least = %v, want index 1", s.Least)
	}

	best := s.Best
	if best.ZScore == nil || *best.ZScore < 6.3 || *best.ZScore > 6.4 {
		t.Errorf("best z = %v, want ~6.32", best.ZScore)
	}
	if best.Probability == nil || *best.Probability != 99.9 {
		t.Errorf("best probability = %v, want 99.9", best.Probability)
	}
	if best.Difference == nil || math.Abs(*best.Difference-100) > 1e-9 {
		t.Errorf("best difference = %v, want 100%%", best.Difference)
	}

	if s.Choice == nil || s.Choice.Index != 0 {
		t.Errorf("Choice = %v, want index 0", s.Choice)
	}
}

func TestZScorer_NoSignal(t *testing.T) {
	// Nobody participated: z is non-finite, probability zero, and no
	// best, least or choice is named. Never an error or a panic.
	alts := []experiment.Alternative{
		alt(0, 0, 0),
		alt(1, 0, 0),
	}

	s := stats.ZScorer{}.Score(alts, nil, stats.DefaultThreshold)

	if s.Best != nil || s.Least != nil || s.Choice != nil {
		t.Errorf("degenerate score named best=%v least=%v choice=%v", s.Best, s.Least, s.Choice)
	}
	for i := range s.Alternatives {
		a := &s.Alternatives[i]
		if a.ZScore == nil || !math.IsNaN(*a.ZScore) {
			t.Errorf("alternative %d z = %v, want NaN", i, a.ZScore)
		}
		if a.Probability == nil || *a.Probability != 0 {
			t.Errorf("alternative %d probability = %v, want 0", i, a.Probability)
		}
	}
}

func TestZScorer_BelowThresholdNoChoice(t *testing.T) {
	// Close rates at modest volume: a lead without significance.
	alts := []experiment.Alternative{
		alt(0, 200, 22),
		alt(1, 200, 20),
	}

	s := stats.ZScorer{}.Score(alts, nil, stats.DefaultThreshold)

	if s.Best == nil || s.Best.Index != 0 {
		t.Fatalf("Best = %v, want index 0", s.Best)
	}
	if *s.Best.Probability != 0 {
		t.Errorf("probability = %v, want 0", *s.Best.Probability)
	}
	if s.Choice != nil {
		t.Errorf("Choice = %v, want none below threshold", s.Choice)
	}
}

func TestZScorer_FixedOutcomeWinsChoice(t *testing.T) {
	// A completed experiment's outcome is the choice even when the data
	// points the other way.
	alts := []experiment.Alternative{
		alt(0, 100, 80),
		alt(1, 100, 40),
	}
	outcome := &alts[1]

	s := stats.ZScorer{}.Score(alts, outcome, stats.DefaultThreshold)

	if s.Choice == nil || s.Choice.Index != 1 {
		t.Errorf("Choice = %v, want fixed outcome index 1", s.Choice)
	}
}

func TestZScorer_MonotoneInConversions(t *testing.T) {
	// Against a fixed baseline, more conversions never lower the z.
	prev := math.Inf(-1)
	for converted := 50; converted <= 90; converted += 10 {
		alts := []experiment.Alternative{
			alt(0, 100, converted),
			alt(1, 100, 40),
		}
		s := stats.ZScorer{}.Score(alts, nil, stats.DefaultThreshold)
		z := *s.Alternatives[0].ZScore
		if z < prev {
			t.Errorf("z dropped to %v at converted=%d (was %v)", z, converted, prev)
		}
		prev = z
	}
}

func TestZScorer_BaseIsRunnerUp(t *testing.T) {
	alts := []experiment.Alternative{
		alt(0, 1000, 100), // 10%
		alt(1, 1000, 120), // 12%
		alt(2, 1000, 50),  // 5%
	}

	s := stats.ZScorer{}.Score(alts, nil, stats.DefaultThreshold)

	if s.Base == nil || s.Base.Index != 0 {
		t.Errorf("Base = %v, want runner-up index 0", s.Base)
	}
	if s.Least == nil || s.Least.Index != 2 {
		t.Errorf("Least = %v, want index 2", s.Least)
	}
	if s.Best == nil || s.Best.Index != 1 {
		t.Errorf("Best = %v, want index 1", s.Best)
	}
}

func TestScore_DoesNotMutateInput(t *testing.T) {
	alts := []experiment.Alternative{
		alt(0, 100, 80),
		alt(1, 100, 40),
	}

	stats.ZScorer{}.Score(alts, nil, stats.DefaultThreshold)

	for i := range alts {
		if alts[i].ZScore != nil || alts[i].Probability != nil || alts[i].Difference != nil {
			t.Errorf("input alternative %d was annotated in place", i)
		}
	}
}

func TestZScorer_SingleAlternative(t *testing.T) {
	s := stats.ZScorer{}.Score([]experiment.Alternative{alt(0, 100, 50)}, nil, stats.DefaultThreshold)
	if s.Base != nil || s.Best != nil || s.Choice != nil {
		t.Errorf("single alternative scored: base=%v best=%v choice=%v", s.Base, s.Best, s.Choice)
	}
}
