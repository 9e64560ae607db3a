package experiment

import (
	"context"
	"fmt"
	"reflect"
)

// Alternative is one variant under test. Its identity is the pair
// (experiment id, index); the value payload is opaque to the engine.
//
// Counts are a read-through cache over the counter store: absent until
// Load, then immutable until an explicit Refresh. The scoring fields
// (ZScore, Probability, Difference) are nil until a scoring strategy
// annotates a copy of the alternative.
type Alternative struct {
	ExperimentID string
	Index        int
	Value        any

	// Populated by scoring, never by this package.
	ZScore      *float64
	Probability *float64 // percent, 0-100
	Difference  *float64 // percent improvement over the least performer

	counts *Counts
}

// Name derives the display name from the index: "option A", "option B",
// and so on. Indexes past Z continue AA, AB in spreadsheet-column style.
func (a *Alternative) Name() string {
	return "option " + columnLabel(a.Index)
}

func columnLabel(index int) string {
	label := ""
	n := index
	for {
		label = string(rune('A'+n%26)) + label
		n = n/26 - 1
		if n < 0 {
			return label
		}
	}
}

// Load fetches counts from the store and caches them. Already-cached
// counts are returned as is; use Refresh to force a re-fetch. A store
// failure reads as zero counts; data unavailable is not an error here.
func (a *Alternative) Load(ctx context.Context, store Store) Counts {
	if a.counts != nil {
		return *a.counts
	}
	return a.Refresh(ctx, store)
}

// Refresh discards the cached counts and re-fetches from the store.
func (a *Alternative) Refresh(ctx context.Context, store Store) Counts {
	c, err := store.Counts(ctx, a.ExperimentID, a.Index)
	if err != nil {
		c = Counts{}
	}
	a.counts = &c
	return c
}

// SetCounts installs a counts snapshot directly, bypassing the store.
// Used by callers that already hold aggregates (and by tests).
func (a *Alternative) SetCounts(c Counts) {
	a.counts = &c
}

func (a *Alternative) Participants() int {
	if a.counts == nil {
		return 0
	}
	return a.counts.Participants
}

func (a *Alternative) Converted() int {
	if a.counts == nil {
		return 0
	}
	return a.counts.Converted
}

func (a *Alternative) Conversions() int {
	if a.counts == nil {
		return 0
	}
	return a.counts.Conversions
}

// ConversionRate is the comparison measure used wherever alternatives
// are ranked. Zero participants means a zero rate, not a division.
func (a *Alternative) ConversionRate() float64 {
	if a.counts == nil || a.counts.Participants == 0 {
		return 0.0
	}
	return float64(a.counts.Converted) / float64(a.counts.Participants)
}

// Equal reports whether two alternatives are the same variant. Only
// alternatives of the same experiment can be equal.
func (a *Alternative) Equal(b *Alternative) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.ExperimentID == b.ExperimentID && a.Index == b.Index
}

// ValueEqual compares the opaque payload. Payloads are application
// defined, so compare by deep equality instead of == (which panics on
// non-comparable dynamic types).
func (a *Alternative) ValueEqual(v any) bool {
	return reflect.DeepEqual(a.Value, v)
}

func (a *Alternative) String() string {
	return fmt.Sprintf("%s (%v)", a.Name(), a.Value)
}
