package experiment

import (
	"context"
	"crypto/md5"
	"fmt"
	"log/slog"
	"math/big"
	"math/rand"
)

// Engine assigns identities to alternatives. Assignment is a pure
// function of (experiment, identity) plus, in weighted mode, the prior
// assignment held by the store. The engine never mutates alternative
// caches and holds no state across calls beyond its configuration.
type Engine struct {
	store      Store
	collecting bool
	draw       func() float64
	log        *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithCollecting controls whether the engine persists weighted-mode
// assignments and honors the store's flags. A non-collecting engine
// still assigns deterministically but writes nothing.
func WithCollecting(collecting bool) Option {
	return func(e *Engine) { e.collecting = collecting }
}

// WithDraw replaces the uniform [0,1) draw used for weighted-mode first
// assignments. Tests inject fixed draws here.
func WithDraw(draw func() float64) Option {
	return func(e *Engine) { e.draw = draw }
}

// WithLogger sets the logger used for non-fatal store trouble.
func WithLogger(log *slog.Logger) Option {
	return func(e *Engine) { e.log = log }
}

// NewEngine builds an assignment engine over the given counter store.
func NewEngine(store Store, opts ...Option) *Engine {
	e := &Engine{
		store:      store,
		collecting: true,
		draw:       rand.Float64,
		log:        slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Collecting reports whether the engine persists assignment state.
func (e *Engine) Collecting() bool { return e.collecting }

// Assign selects the alternative index for identity.
//
// A completed experiment with a fixed outcome always returns the
// outcome; a disabled experiment returns the default. Otherwise uniform
// mode hashes (name, identity), so the same pair yields the same index
// for the life of the experiment, and weighted mode looks up the prior
// assignment before drawing a new one.
func (e *Engine) Assign(ctx context.Context, exp *Experiment, identity string) (int, error) {
	if !exp.Saved() {
		return 0, configErr(exp.Name, "assign called before Save")
	}
	if exp.Completed && exp.Outcome != nil {
		return *exp.Outcome, nil
	}
	if !exp.Enabled {
		return exp.DefaultIndex(), nil
	}
	if exp.Weighted() {
		return e.assignWeighted(ctx, exp, identity)
	}
	return HashIndex(exp.Name, identity, len(exp.Alternatives)), nil
}

// HashIndex buckets identity into [0, count) by reducing the 128-bit MD5
// digest of "name/identity" modulo count. The hash is a pure function:
// the reproducibility guarantee survives process restarts. Distinct
// identities sharing a residue share an alternative; that collision is
// accepted behavior.
func HashIndex(name, identity string, count int) int {
	sum := md5.Sum([]byte(name + "/" + identity))
	n := new(big.Int).SetBytes(sum[:])
	return int(n.Mod(n, big.NewInt(int64(count))).Int64())
}

func (e *Engine) assignWeighted(ctx context.Context, exp *Experiment, identity string) (int, error) {
	if e.collecting {
		// Read before write: an existing assignment is returned
		// unchanged. A store failure reads as "no prior assignment".
		index, ok, err := e.store.Assignment(ctx, exp.ID(), identity)
		if err != nil {
			e.log.Warn("assignment lookup failed, drawing fresh",
				"experiment", exp.ID(), "error", err)
		} else if ok {
			return index, nil
		}
	}

	index := pickWeighted(exp.cumulativeWeights(), e.draw())

	if e.collecting {
		if err := e.store.SetAssignment(ctx, exp.ID(), identity, index); err != nil {
			e.log.Warn("assignment persist failed",
				"experiment", exp.ID(), "identity", identity, "error", err)
		}
	}
	return index, nil
}

// pickWeighted selects the first alternative whose cumulative
// probability exceeds the draw.
func pickWeighted(cumulative []float64, r float64) int {
	for i, bound := range cumulative {
		if r < bound {
			return i
		}
	}
	// Rounding can leave the final bound a hair under 1.0.
	return len(cumulative) - 1
}

// Participate records identity as a participant of the assigned
// alternative and returns the index. Convenience for callers that
// assign and count in one step; recording is skipped when the engine is
// not collecting.
func (e *Engine) Participate(ctx context.Context, exp *Experiment, identity string) (int, error) {
	index, err := e.Assign(ctx, exp, identity)
	if err != nil {
		return 0, err
	}
	if !e.collecting || exp.Completed {
		return index, nil
	}
	if err := e.store.AddParticipant(ctx, exp.ID(), index, identity); err != nil {
		return index, fmt.Errorf("record participant: %w", err)
	}
	return index, nil
}

// Convert records a conversion event for identity against its assigned
// alternative. Converting implies participating: the identity is
// recorded as a participant first, so converted can never exceed
// participants no matter how events arrive.
func (e *Engine) Convert(ctx context.Context, exp *Experiment, identity string) (int, error) {
	index, err := e.Assign(ctx, exp, identity)
	if err != nil {
		return 0, err
	}
	if !e.collecting || exp.Completed {
		return index, nil
	}
	if err := e.store.AddParticipant(ctx, exp.ID(), index, identity); err != nil {
		return index, fmt.Errorf("record participant: %w", err)
	}
	if err := e.store.AddConversion(ctx, exp.ID(), index, identity); err != nil {
		return index, fmt.Errorf("record conversion: %w", err)
	}
	return index, nil
}

// LoadCounts fills every alternative's counts cache from the store.
func (e *Engine) LoadCounts(ctx context.Context, exp *Experiment) []Counts {
	counts := make([]Counts, len(exp.Alternatives))
	for i := range exp.Alternatives {
		counts[i] = exp.Alternatives[i].Load(ctx, e.store)
	}
	return counts
}
