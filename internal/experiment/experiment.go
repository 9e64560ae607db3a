package experiment

import (
	"fmt"
	"math"
	"strings"
	"time"
	"unicode"
)

// Experiment is one version of an A/B test definition: the ordered
// alternatives, their optional selection weights, and the default
// variant. It curates the in-memory definition only; persistence and
// counting live behind the Store interface.
type Experiment struct {
	Name    string
	Version int

	Alternatives []Alternative
	Weights      []float64 // optional; one weight per alternative
	Metrics      []string

	Enabled   bool
	Completed bool
	Outcome   *int // fixed outcome index, set when completed with a winner
	CreatedAt time.Time

	defaultIndex     int
	defaultDeclared  bool
	defaultCommitted bool
	saved            bool
}

// New declares an experiment over the given alternative values. The
// definition is not valid until Save has checked it.
func New(name string, values ...any) *Experiment {
	e := &Experiment{
		Name:      name,
		Enabled:   true,
		CreatedAt: time.Now(),
	}
	e.Alternatives = make([]Alternative, len(values))
	for i, v := range values {
		e.Alternatives[i] = Alternative{ExperimentID: e.ID(), Index: i, Value: v}
	}
	return e
}

// ID derives the stable experiment identifier from the name, suffixed
// with the version when one is set: "Big Button!" -> "big_button_",
// version 2 -> "big_button__2".
func (e *Experiment) ID() string {
	id := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return unicode.ToLower(r)
		}
		return '_'
	}, e.Name)
	if e.Version > 0 {
		id = fmt.Sprintf("%s_%d", id, e.Version)
	}
	return id
}

// SetDefault declares the default alternative by value. Once the default
// has been committed (by Save or a Default read) it cannot change.
func (e *Experiment) SetDefault(value any) error {
	if e.defaultCommitted {
		return configErr(e.Name, "default alternative already committed")
	}
	for i := range e.Alternatives {
		if e.Alternatives[i].ValueEqual(value) {
			e.defaultIndex = i
			e.defaultDeclared = true
			return nil
		}
	}
	// Remember the declaration so Save can warn and promote. Matching
	// is re-checked there because alternatives may still be edited.
	e.defaultIndex = -1
	e.defaultDeclared = true
	return nil
}

// SetDefaultIndex declares the default alternative by position. Stored
// definitions are restored through here; out-of-range indexes are left
// for Save to warn about and correct.
func (e *Experiment) SetDefaultIndex(index int) error {
	if e.defaultCommitted {
		return configErr(e.Name, "default alternative already committed")
	}
	e.defaultIndex = index
	e.defaultDeclared = true
	return nil
}

// Default returns the default alternative and commits it.
func (e *Experiment) Default() *Alternative {
	e.defaultCommitted = true
	if e.defaultIndex < 0 || e.defaultIndex >= len(e.Alternatives) {
		return &e.Alternatives[0]
	}
	return &e.Alternatives[e.defaultIndex]
}

// DefaultIndex returns the committed default's index.
func (e *Experiment) DefaultIndex() int {
	d := e.Default()
	return d.Index
}

// AlternativeForValue finds the alternative carrying the given payload.
func (e *Experiment) AlternativeForValue(value any) (*Alternative, bool) {
	for i := range e.Alternatives {
		if e.Alternatives[i].ValueEqual(value) {
			return &e.Alternatives[i], true
		}
	}
	return nil, false
}

// AlternativeAt returns the alternative at index. Out-of-range indexes
// are a caller error: in normal flow indexes originate from Assign.
func (e *Experiment) AlternativeAt(index int) (*Alternative, error) {
	if index < 0 || index >= len(e.Alternatives) {
		return nil, fmt.Errorf("experiment %q: alternative index %d out of range [0,%d)",
			e.Name, index, len(e.Alternatives))
	}
	return &e.Alternatives[index], nil
}

// Save validates the definition. Fatal problems (fewer than two
// alternatives, malformed weights) return a ConfigurationError;
// recoverable ones (missing or invalid default, missing metric) are
// auto-corrected and reported as warnings.
func (e *Experiment) Save() ([]Warning, error) {
	if len(e.Alternatives) < 2 {
		return nil, configErr(e.Name, "needs at least two alternatives, has %d", len(e.Alternatives))
	}
	if err := e.validateWeights(); err != nil {
		return nil, err
	}

	// Indexes and ids may be stale if alternatives were edited after New.
	id := e.ID()
	for i := range e.Alternatives {
		e.Alternatives[i].ExperimentID = id
		e.Alternatives[i].Index = i
	}

	var warnings []Warning
	if !e.defaultDeclared {
		e.defaultIndex = 0
		warnings = append(warnings, Warning{
			Code:    WarnDefaultPromoted,
			Message: fmt.Sprintf("experiment %q has no default alternative; using %s", e.Name, e.Alternatives[0].Name()),
		})
	} else if e.defaultIndex < 0 || e.defaultIndex >= len(e.Alternatives) {
		e.defaultIndex = 0
		warnings = append(warnings, Warning{
			Code:    WarnDefaultPromoted,
			Message: fmt.Sprintf("experiment %q default does not match any alternative; using %s", e.Name, e.Alternatives[0].Name()),
		})
	}
	e.defaultCommitted = true

	if len(e.Metrics) == 0 {
		e.Metrics = []string{id}
		warnings = append(warnings, Warning{
			Code:    WarnMetricDeclared,
			Message: fmt.Sprintf("experiment %q has no metric; tracking a metric named %q", e.Name, id),
		})
	}

	e.saved = true
	return warnings, nil
}

// Saved reports whether Save has validated this definition.
func (e *Experiment) Saved() bool { return e.saved }

// Weighted reports whether this experiment assigns by configured
// probabilities rather than by deterministic hashing.
func (e *Experiment) Weighted() bool { return len(e.Weights) > 0 }

func (e *Experiment) validateWeights() error {
	if len(e.Weights) == 0 {
		return nil
	}
	if len(e.Weights) != len(e.Alternatives) {
		return configErr(e.Name, "got %d selection weights for %d alternatives",
			len(e.Weights), len(e.Alternatives))
	}
	total := 0.0
	for i, w := range e.Weights {
		if math.IsNaN(w) || math.IsInf(w, 0) || w < 0 {
			return configErr(e.Name, "selection weight %d is malformed: %v", i, w)
		}
		total += w
	}
	if total <= 0 {
		return configErr(e.Name, "selection weights sum to zero")
	}
	return nil
}

// cumulativeWeights normalizes the weights into cumulative probability
// bounds in declaration order. Only valid after Save.
func (e *Experiment) cumulativeWeights() []float64 {
	total := 0.0
	for _, w := range e.Weights {
		total += w
	}
	cumulative := make([]float64, len(e.Weights))
	sum := 0.0
	for i, w := range e.Weights {
		sum += w / total
		cumulative[i] = sum
	}
	return cumulative
}

// Complete marks the experiment finished with a fixed outcome.
func (e *Experiment) Complete(outcome int) error {
	if outcome < 0 || outcome >= len(e.Alternatives) {
		return configErr(e.Name, "outcome index %d out of range [0,%d)", outcome, len(e.Alternatives))
	}
	e.Completed = true
	e.Enabled = false
	o := outcome
	e.Outcome = &o
	return nil
}
