package stats

import "github.com/peterkovacs/vanity/internal/experiment"

// ClaimKind discriminates the structured claims a Score gives rise to.
// Phrasing is a rendering concern; the engine only emits kinds and
// typed parameters.
type ClaimKind string

const (
	// ClaimNoParticipants: nobody has participated yet.
	ClaimNoParticipants ClaimKind = "no_participants"
	// ClaimTotalParticipants carries the participant total.
	ClaimTotalParticipants ClaimKind = "total_participants"
	// ClaimNoClearWinner: fewer than two alternatives converted.
	ClaimNoClearWinner ClaimKind = "no_clear_winner"
	// ClaimLeading names the front-runner with its rate and its lift
	// over the runner-up.
	ClaimLeading ClaimKind = "leading"
	// ClaimSignificant / ClaimNotSignificant qualify a z-score lead.
	ClaimSignificant    ClaimKind = "significant"
	ClaimNotSignificant ClaimKind = "not_significant"
	// ClaimBanditLikelyBest / ClaimBanditTooEarly qualify a bandit lead.
	ClaimBanditLikelyBest ClaimKind = "bandit_likely_best"
	ClaimBanditTooEarly   ClaimKind = "bandit_too_early"
	// ClaimConvertedAtRate reports one alternative's conversion rate.
	ClaimConvertedAtRate ClaimKind = "converted_at_rate"
	// ClaimDidNotConvert reports an alternative with no conversions.
	ClaimDidNotConvert ClaimKind = "did_not_convert"
	// ClaimChosen names the recommended outcome.
	ClaimChosen ClaimKind = "chosen"
)

// Claim is one discrete statement about a score. Which parameter fields
// are meaningful depends on Kind.
type Claim struct {
	Kind         ClaimKind
	Alternative  *experiment.Alternative
	Participants int
	Rate         float64 // percent
	Improvement  float64 // percent lift over the runner-up
	Probability  float64 // percent
}

// Conclude converts a score into an ordered list of claims. It always
// returns at least one claim, even under total data absence.
func Conclude(s Score) []Claim {
	var claims []Claim

	total := 0
	for i := range s.Alternatives {
		total += s.Alternatives[i].Participants()
	}
	if total == 0 {
		claims = append(claims, Claim{Kind: ClaimNoParticipants})
	} else {
		claims = append(claims, Claim{Kind: ClaimTotalParticipants, Participants: total})
	}

	// Rank all alternatives best first; only the ones that actually
	// converted can qualify for a winner.
	order := rateOrder(s.Alternatives)
	var ranked []*experiment.Alternative
	converters := 0
	for i := len(order) - 1; i >= 0; i-- {
		a := &s.Alternatives[order[i]]
		ranked = append(ranked, a)
		if a.ConversionRate() > 0 {
			converters++
		}
	}
	if converters < 2 {
		claims = append(claims, Claim{Kind: ClaimNoClearWinner})
		return claims
	}

	best, second := ranked[0], ranked[1]
	if best.ConversionRate() > second.ConversionRate() {
		lift := (best.ConversionRate() - second.ConversionRate()) / second.ConversionRate() * 100
		claims = append(claims, Claim{
			Kind:        ClaimLeading,
			Alternative: best,
			Rate:        best.ConversionRate() * 100,
			Improvement: lift,
		})
		claims = append(claims, confidenceClaim(s.Method, best))
		ranked = ranked[1:]
	}

	for _, a := range ranked {
		if a.ConversionRate() > 0 {
			claims = append(claims, Claim{
				Kind:        ClaimConvertedAtRate,
				Alternative: a,
				Rate:        a.ConversionRate() * 100,
			})
		} else {
			claims = append(claims, Claim{Kind: ClaimDidNotConvert, Alternative: a})
		}
	}

	if s.Choice != nil {
		claims = append(claims, Claim{Kind: ClaimChosen, Alternative: s.Choice})
	}
	return claims
}

// confidenceClaim qualifies the leading claim. The kind depends on the
// scoring method and on whether the leader's probability clears 90%.
func confidenceClaim(method Method, best *experiment.Alternative) Claim {
	prob := 0.0
	if best.Probability != nil {
		prob = *best.Probability
	}
	claim := Claim{Alternative: best, Probability: prob}
	if method == MethodBandit {
		if prob >= 90 {
			claim.Kind = ClaimBanditLikelyBest
		} else {
			claim.Kind = ClaimBanditTooEarly
		}
		return claim
	}
	if prob >= 90 {
		claim.Kind = ClaimSignificant
	} else {
		claim.Kind = ClaimNotSignificant
	}
	return claim
}
