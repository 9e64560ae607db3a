package stats

import (
	"math"

	"github.com/peterkovacs/vanity/internal/experiment"
)

// DefaultBanditSteps is the integration grid used when BanditScorer is
// zero-valued. Bandit scoring is the only unbounded-CPU operation in
// this package, so the step count is the caller's cost bound.
const DefaultBanditSteps = 4096

// BanditScorer is the Bayesian strategy: each alternative gets a
// Beta(converted+1, participants-converted+1) posterior and Probability
// becomes P(this alternative has the highest latent conversion rate),
// computed by deterministic numerical integration. No z-score is
// populated. Identical counts always produce identical probabilities;
// nothing here draws random numbers.
type BanditScorer struct {
	// Steps bounds the integration grid. Zero means
	// DefaultBanditSteps; odd values are rounded up (composite Simpson
	// needs an even interval count).
	Steps int
}

func (b BanditScorer) Score(alts []experiment.Alternative, outcome *experiment.Alternative, threshold float64) Score {
	s := Score{
		Method:       MethodBandit,
		Alternatives: append([]experiment.Alternative(nil), alts...),
	}
	order := rateOrder(s.Alternatives)
	if len(order) < 2 {
		return s
	}

	posteriors := make([]betaPosterior, len(s.Alternatives))
	for i := range s.Alternatives {
		a := &s.Alternatives[i]
		posteriors[i] = betaPosterior{
			alpha: float64(a.Converted()) + 1,
			beta:  float64(a.Participants()-a.Converted()) + 1,
		}
	}

	probs := probabilityBest(posteriors, b.steps())
	for i := range s.Alternatives {
		p := probs[i] * 100
		s.Alternatives[i].Probability = &p
	}

	s.Base = &s.Alternatives[order[len(order)-2]]
	s.Least, s.Best = leastAndBest(s.Alternatives, order)
	annotateDifferences(s.Alternatives, s.Least)
	s.Choice = choose(&s, outcome, threshold)
	return s
}

func (b BanditScorer) steps() int {
	steps := b.Steps
	if steps <= 0 {
		steps = DefaultBanditSteps
	}
	if steps < 16 {
		steps = 16
	}
	if steps%2 != 0 {
		steps++
	}
	return steps
}

type betaPosterior struct {
	alpha, beta float64
}

// pdf is the Beta density. Posterior parameters are always >= 1, so the
// density is finite everywhere on [0,1].
func (p betaPosterior) pdf(x float64) float64 {
	switch {
	case x <= 0:
		if p.alpha == 1 {
			return p.beta
		}
		return 0
	case x >= 1:
		if p.beta == 1 {
			return p.alpha
		}
		return 0
	}
	return math.Exp(lnBetaRecip(p.alpha, p.beta) +
		(p.alpha-1)*math.Log(x) + (p.beta-1)*math.Log(1-x))
}

// cdf is the regularized incomplete beta function I_x(alpha, beta).
func (p betaPosterior) cdf(x float64) float64 {
	return regIncBeta(p.alpha, p.beta, x)
}

// probabilityBest integrates, for each arm i,
//
//	P(i best) = ∫ pdf_i(x) · Π_{j≠i} cdf_j(x) dx over [0,1]
//
// with composite Simpson's rule, then renormalizes so the probabilities
// sum to exactly 1 (the raw integrals already sum to ~1 within the grid
// tolerance).
func probabilityBest(posteriors []betaPosterior, steps int) []float64 {
	k := len(posteriors)
	sums := make([]float64, k)
	h := 1.0 / float64(steps)

	pdfs := make([]float64, k)
	cdfs := make([]float64, k)
	for step := 0; step <= steps; step++ {
		x := float64(step) * h
		for j, p := range posteriors {
			pdfs[j] = p.pdf(x)
			cdfs[j] = p.cdf(x)
		}
		weight := simpsonWeight(step, steps)
		for i := 0; i < k; i++ {
			product := pdfs[i]
			for j := 0; j < k; j++ {
				if j != i {
					product *= cdfs[j]
				}
			}
			sums[i] += weight * product
		}
	}

	total := 0.0
	for i := range sums {
		sums[i] *= h / 3
		total += sums[i]
	}
	if total > 0 {
		for i := range sums {
			sums[i] /= total
		}
	}
	return sums
}

func simpsonWeight(step, steps int) float64 {
	switch {
	case step == 0 || step == steps:
		return 1
	case step%2 == 1:
		return 4
	default:
		return 2
	}
}

// lnBetaRecip is ln(1/B(a,b)) = lnΓ(a+b) - lnΓ(a) - lnΓ(b).
func lnBetaRecip(a, b float64) float64 {
	lgab, _ := math.Lgamma(a + b)
	lga, _ := math.Lgamma(a)
	lgb, _ := math.Lgamma(b)
	return lgab - lga - lgb
}

// regIncBeta evaluates I_x(a,b) by the continued-fraction expansion
// (Numerical Recipes 6.4), using the symmetry relation to stay in the
// rapidly converging region.
func regIncBeta(a, b, x float64) float64 {
	if x <= 0 {
		return 0
	}
	if x >= 1 {
		return 1
	}
	front := math.Exp(lnBetaRecip(a, b) + a*math.Log(x) + b*math.Log(1-x))
	if x < (a+1)/(a+b+2) {
		return front * betaCF(a, b, x) / a
	}
	return 1 - front*betaCF(b, a, 1-x)/b
}

func betaCF(a, b, x float64) float64 {
	const (
		maxIterations = 200
		epsilon       = 3e-14
		tiny          = 1e-30
	)

	qab := a + b
	qap := a + 1
	qam := a - 1
	c := 1.0
	d := 1 - qab*x/qap
	if math.Abs(d) < tiny {
		d = tiny
	}
	d = 1 / d
	result := d

	for m := 1; m <= maxIterations; m++ {
		fm := float64(m)
		m2 := 2 * fm

		aa := fm * (b - fm) * x / ((qam + m2) * (a + m2))
		d = 1 + aa*d
		if math.Abs(d) < tiny {
			d = tiny
		}
		c = 1 + aa/c
		if math.Abs(c) < tiny {
			c = tiny
		}
		d = 1 / d
		result *= d * c

		aa = -(a + fm) * (qab + fm) * x / ((a + m2) * (qap + m2))
		d = 1 + aa*d
		if math.Abs(d) < tiny {
			d = tiny
		}
		c = 1 + aa/c
		if math.Abs(c) < tiny {
			c = tiny
		}
		d = 1 / d
		delta := d * c
		result *= delta

		if math.Abs(delta-1) < epsilon {
			break
		}
	}
	return result
}
