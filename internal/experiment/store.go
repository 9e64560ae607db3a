package experiment

import (
	"context"
	"time"
)

// Counts is one alternative's aggregate tallies as reported by the
// counter store. Participants counts each identity once, Converted
// counts identities that converted at least once, Conversions counts
// every conversion event.
type Counts struct {
	Participants int
	Converted    int
	Conversions  int
}

// Store is the counter store the engine depends on. The engine treats it
// as a synchronous collaborator: it issues single reads and writes, holds
// no locks across calls, and never retries. Retry and atomicity policy
// belong to the implementation.
//
// Lookups that may legitimately have no answer (a prior assignment, a
// fixed outcome, a timestamp) return ok=false rather than an error.
type Store interface {
	// Counts returns the aggregate tallies for one alternative.
	Counts(ctx context.Context, experimentID string, alternative int) (Counts, error)

	// AddParticipant records that identity participated in the given
	// alternative. Recording the same identity twice must not
	// double-increment.
	AddParticipant(ctx context.Context, experimentID string, alternative int, identity string) error

	// AddConversion records a conversion event for identity under the
	// given alternative. Repeat conversions increment Conversions but
	// count the identity in Converted only once.
	AddConversion(ctx context.Context, experimentID string, alternative int, identity string) error

	// Assignment returns the alternative previously persisted for
	// identity, if any.
	Assignment(ctx context.Context, experimentID, identity string) (index int, ok bool, err error)

	// SetAssignment persists identity's alternative. When two writers
	// race, first-writer-wins is acceptable; implementations must not
	// corrupt counts either way.
	SetAssignment(ctx context.Context, experimentID, identity string, alternative int) error

	Enabled(ctx context.Context, experimentID string) (bool, error)
	SetEnabled(ctx context.Context, experimentID string, enabled bool) error

	CreatedAt(ctx context.Context, experimentID string) (time.Time, bool, error)
	SetCreatedAt(ctx context.Context, experimentID string, t time.Time) error
	CompletedAt(ctx context.Context, experimentID string) (time.Time, bool, error)
	SetCompletedAt(ctx context.Context, experimentID string, t time.Time) error

	// Outcome is the alternative the experiment was completed with.
	Outcome(ctx context.Context, experimentID string) (index int, ok bool, err error)
	SetOutcome(ctx context.Context, experimentID string, alternative int) error

	// Destroy wipes every counter, assignment and flag for the
	// experiment.
	Destroy(ctx context.Context, experimentID string) error
}
